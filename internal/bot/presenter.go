package bot

import (
	"context"
	"fmt"
	"time"

	"ms-passbot/internal/models"
	"ms-passbot/internal/utils"
)

// chatPresenter shows one purchase in the chat it was started from, reusing
// the buy menu message for the payment link.
type chatPresenter struct {
	bot       *Bot
	chatID    int64
	messageID int
}

func (p *chatPresenter) PaymentLink(ctx context.Context, v models.Visitor, paymentURL string, timeout time.Duration) error {
	text := fmt.Sprintf(msgPayment, utils.HumanDate(v.EventDate), int(timeout.Round(time.Minute)/time.Minute))
	markup := paymentMarkup(paymentURL, p.bot.price())

	if p.messageID != 0 {
		if err := p.bot.msg.EditMenu(ctx, p.chatID, p.messageID, text, &markup); err == nil {
			return nil
		}
	}
	_, err := p.bot.msg.SendMenu(ctx, p.chatID, text, markup)
	return err
}

func (p *chatPresenter) Ticket(ctx context.Context, v models.Visitor) error {
	return p.bot.sendTicket(ctx, p.chatID, v)
}

// Ticket delivers a ticket resolved outside a chat flow. Private chat ids
// equal user ids.
func (b *Bot) Ticket(ctx context.Context, v models.Visitor) error {
	return b.sendTicket(ctx, v.UserID, v)
}

// Released tells the buyer an abandoned reservation was dropped.
func (b *Bot) Released(ctx context.Context, v models.Visitor) error {
	return b.msg.SendText(ctx, v.UserID, fmt.Sprintf(msgReleased, utils.HumanDate(v.EventDate)))
}

func (b *Bot) sendTicket(ctx context.Context, chatID int64, v models.Visitor) error {
	png, err := b.qr.Generate(ctx, v.RedemptionCode)
	if err != nil {
		return fmt.Errorf("render ticket: %w", err)
	}
	b.log.LogVisitor("DELIVER", v.RedemptionCode, fmt.Sprintf("ticket for %s to chat %d", v.EventDate, chatID))
	return b.msg.SendPhoto(ctx, chatID, png, fmt.Sprintf(msgTicketCaption, utils.HumanDate(v.EventDate), v.ShortCode()))
}
