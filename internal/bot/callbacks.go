package bot

import (
	"context"
	"fmt"
	"strconv"

	"ms-passbot/internal/registration"
	"ms-passbot/internal/utils"
)

type callbackRoute struct {
	prefix string
	admin  bool
	handle func(ctx context.Context, req *Request, arg string) error
}

// callbackTable is matched in order by prefix.
func (b *Bot) callbackTable() []callbackRoute {
	return []callbackRoute{
		{prefix: cbAgreement, handle: b.onAgreement},
		{prefix: cbBuy, handle: b.onBuy},
		{prefix: cbMenu, handle: b.onMenu},
		{prefix: cbRegError, handle: b.onRegError},
		{prefix: cbRegister, handle: b.onRegister},
		{prefix: cbSendCancel, admin: true, handle: b.onSendCancel},
		{prefix: cbSend, admin: true, handle: b.onSend},
	}
}

func (b *Bot) onAgreement(ctx context.Context, req *Request, _ string) error {
	markup := menuMarkup()
	if err := b.msg.EditMenu(ctx, req.ChatID, req.MessageID, msgAgreement, &markup); err != nil {
		return err
	}
	return b.msg.AnswerCallback(ctx, req.CallbackID, "")
}

func (b *Bot) onMenu(ctx context.Context, req *Request, _ string) error {
	markup := startMarkup()
	if err := b.msg.EditMenu(ctx, req.ChatID, req.MessageID, msgStart, &markup); err != nil {
		return err
	}
	return b.msg.AnswerCallback(ctx, req.CallbackID, "")
}

func (b *Bot) onBuy(ctx context.Context, req *Request, _ string) error {
	events, err := b.store.ListUpcomingFor(ctx, req.UserID, b.today())
	if err != nil {
		return err
	}

	text, markup := msgChooseDate, buyMarkup(events)
	if len(events) == 0 {
		text, markup = msgNoEvents, menuMarkup()
	}
	if err := b.msg.EditMenu(ctx, req.ChatID, req.MessageID, text, &markup); err != nil {
		return err
	}
	return b.msg.AnswerCallback(ctx, req.CallbackID, "")
}

func (b *Bot) onRegError(ctx context.Context, req *Request, reason string) error {
	text := msgUnknownError
	switch reason {
	case regErrRegistered:
		text = msgAlreadyRegistered
	case regErrSoldOut:
		text = msgNotAvailable
	}
	return b.msg.AnswerCallback(ctx, req.CallbackID, text)
}

// onRegister runs the whole purchase for the pressed date. It holds the
// handler until the payment settles.
func (b *Bot) onRegister(ctx context.Context, req *Request, date string) error {
	if _, err := utils.ParseDate(date); err != nil {
		return b.msg.AnswerCallback(ctx, req.CallbackID, msgEventNotFound)
	}
	if err := b.msg.AnswerCallback(ctx, req.CallbackID, ""); err != nil {
		b.log.Warn("BOT", fmt.Sprintf("answer callback: %v", err))
	}

	out, err := b.purchases.Purchase(ctx, registration.PurchaseRequest{
		UserID:    req.UserID,
		Date:      date,
		Presenter: &chatPresenter{bot: b, chatID: req.ChatID, messageID: req.MessageID},
	})
	if err != nil {
		return err
	}

	text := outcomeText(out.Kind)
	if text == "" {
		return nil
	}
	// the outcome may have been reached because ctx is ending
	return b.msg.SendText(context.WithoutCancel(ctx), req.ChatID, text)
}

// outcomeText is the message for an outcome the presenter has not already
// shown.
func outcomeText(kind registration.OutcomeKind) string {
	switch kind {
	case registration.OutcomeAlreadyRegistered:
		return msgAlreadyRegistered
	case registration.OutcomeEventFull:
		return msgNotAvailable
	case registration.OutcomeEventNotFound:
		return msgEventNotFound
	case registration.OutcomePaymentRejected:
		return msgPaymentRejected
	case registration.OutcomePaymentTimedOut:
		return msgPaymentTimedOut
	case registration.OutcomeInProgress:
		return msgInProgress
	case registration.OutcomeInterrupted:
		return msgInterrupted
	default:
		return ""
	}
}

func (b *Bot) onSend(ctx context.Context, req *Request, arg string) error {
	draftID, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return b.msg.AnswerCallback(ctx, req.CallbackID, msgDraftMissing)
	}

	b.draftsMu.Lock()
	text, ok := b.drafts[draftID]
	delete(b.drafts, draftID)
	b.draftsMu.Unlock()
	if !ok {
		return b.msg.AnswerCallback(ctx, req.CallbackID, msgDraftMissing)
	}

	if err := b.msg.AnswerCallback(ctx, req.CallbackID, ""); err != nil {
		b.log.Warn("BOT", fmt.Sprintf("answer callback: %v", err))
	}
	if err := b.msg.EditMenu(ctx, req.ChatID, req.MessageID, fmt.Sprintf(msgBroadcasting, msgAllUsers), nil); err != nil {
		b.log.Warn("BOT", fmt.Sprintf("mark broadcast started: %v", err))
	}

	report, err := b.broadcaster.Broadcast(ctx, text, nil)
	if err != nil {
		return err
	}
	return b.msg.SendText(ctx, req.ChatID, fmt.Sprintf(msgBroadcastDone, report.Sent, report.Total, report.Failed))
}

func (b *Bot) onSendCancel(ctx context.Context, req *Request, _ string) error {
	b.draftsMu.Lock()
	delete(b.drafts, req.UserID)
	b.draftsMu.Unlock()

	if err := b.msg.AnswerCallback(ctx, req.CallbackID, msgCancelled); err != nil {
		b.log.Warn("BOT", fmt.Sprintf("answer callback: %v", err))
	}
	return b.msg.DeleteMessage(ctx, req.ChatID, req.MessageID)
}
