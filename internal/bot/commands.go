package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"ms-passbot/internal/models"
	"ms-passbot/internal/utils"
)

const activatePrefix = "activate"

// Command is one entry of the slash command table.
type Command struct {
	Name   string
	Admin  bool
	Help   string
	Handle func(ctx context.Context, req *Request) error
}

func (b *Bot) commandTable() []Command {
	return []Command{
		{Name: "start", Help: "главное меню", Handle: b.handleStart},
		{Name: "help", Help: "список команд", Handle: b.handleHelp},
		{Name: "buy", Help: "купить пропуск", Handle: b.handleBuy},
		{Name: "mytickets", Help: "мои пропуска", Handle: b.handleMyTickets},

		{Name: "check", Admin: true, Help: "<код> проверить пропуск на входе", Handle: b.handleCheck},
		{Name: "addevent", Admin: true, Help: "[дата] [мест] добавить или изменить мероприятие", Handle: b.handleAddEvent},
		{Name: "delevent", Admin: true, Help: "<дата> удалить мероприятие", Handle: b.handleDelEvent},
		{Name: "events", Admin: true, Help: "заполненность мероприятий", Handle: b.handleEvents},
		{Name: "revoke", Admin: true, Help: "<user_id> [дата] аннулировать пропуска", Handle: b.handleRevoke},
		{Name: "sendall", Admin: true, Help: "рассылка всем пользователям", Handle: b.handleSendAll},
		{Name: "genqr", Admin: true, Help: "<код> QR-код пропуска", Handle: b.handleGenQR},
		{Name: "scannertoken", Admin: true, Help: "токен для сканера на входе", Handle: b.handleScannerToken},
	}
}

func (b *Bot) handleStart(ctx context.Context, req *Request) error {
	created, err := b.store.AddUser(ctx, models.User{
		UserID:    req.UserID,
		Username:  req.Username,
		FirstName: req.FirstName,
	})
	if err != nil {
		return err
	}
	if created {
		b.log.LogBot("NEW_USER", req.ChatID, fmt.Sprintf("user %d", req.UserID))
	}

	if len(req.Args) > 0 {
		arg := req.Args[0]
		switch {
		case strings.HasPrefix(arg, activatePrefix):
			return b.showOwnTicket(ctx, req, strings.TrimPrefix(arg, activatePrefix))
		case req.IsAdmin:
			return b.checkCode(ctx, req.ChatID, arg)
		}
	}

	_, err = b.msg.SendMenu(ctx, req.ChatID, msgStart, startMarkup())
	return err
}

// showOwnTicket answers the gateway return link: it reports the state of the
// caller's ticket matching prefix.
func (b *Bot) showOwnTicket(ctx context.Context, req *Request, prefix string) error {
	v, err := b.store.FindForUser(ctx, req.UserID, prefix)
	switch {
	case errors.Is(err, models.ErrVisitorNotFound), errors.Is(err, models.ErrAmbiguousCode):
		return b.msg.SendText(ctx, req.ChatID, msgTicketAbsent)
	case err != nil:
		return err
	}

	switch v.State() {
	case models.VisitorActive:
		return b.sendTicket(ctx, req.ChatID, *v)
	case models.VisitorUsed:
		return b.msg.SendText(ctx, req.ChatID, msgTicketUsed)
	default:
		return b.msg.SendText(ctx, req.ChatID, msgTicketUnpaid)
	}
}

func (b *Bot) handleHelp(ctx context.Context, req *Request) error {
	var sb strings.Builder
	sb.WriteString(msgHelpHeader)
	for _, cmd := range b.order {
		if cmd.Admin && !req.IsAdmin {
			continue
		}
		fmt.Fprintf(&sb, "\n/%s %s", cmd.Name, cmd.Help)
	}
	return b.msg.SendText(ctx, req.ChatID, sb.String())
}

func (b *Bot) handleBuy(ctx context.Context, req *Request) error {
	events, err := b.store.ListUpcomingFor(ctx, req.UserID, b.today())
	if err != nil {
		return err
	}
	if len(events) == 0 {
		_, err = b.msg.SendMenu(ctx, req.ChatID, msgNoEvents, menuMarkup())
		return err
	}
	_, err = b.msg.SendMenu(ctx, req.ChatID, msgChooseDate, buyMarkup(events))
	return err
}

func (b *Bot) handleMyTickets(ctx context.Context, req *Request) error {
	tickets, err := b.store.ListUserTickets(ctx, req.UserID, b.today())
	if err != nil {
		return err
	}
	if len(tickets) == 0 {
		return b.msg.SendText(ctx, req.ChatID, msgNoTickets)
	}
	for _, v := range tickets {
		if err := b.sendTicket(ctx, req.ChatID, v); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) handleCheck(ctx context.Context, req *Request) error {
	if len(req.Args) == 0 {
		return b.msg.SendText(ctx, req.ChatID, msgUsageCheck)
	}
	return b.checkCode(ctx, req.ChatID, req.Args[0])
}

func (b *Bot) checkCode(ctx context.Context, chatID int64, code string) error {
	check, err := b.admin.CheckCode(ctx, code)
	if errors.Is(err, models.ErrAmbiguousCode) {
		return b.msg.SendText(ctx, chatID, msgCodeAmbiguous)
	}
	if err != nil {
		return err
	}

	var text string
	switch check.Result {
	case models.CheckValid:
		text = msgCodeValid
	case models.CheckAlreadyUsed:
		text = msgCodeUsed
	case models.CheckUnpaid:
		text = msgCodeUnpaid
	default:
		text = msgCodeInvalid
	}
	return b.msg.SendText(ctx, chatID, text)
}

func (b *Bot) handleAddEvent(ctx context.Context, req *Request) error {
	args := req.Args

	var date string
	if len(args) > 0 {
		date = args[0]
	} else {
		answer, ok, err := b.ask(ctx, req.ChatID, msgAskDate)
		if !ok {
			return err
		}
		date = answer
	}
	if _, err := utils.ParseDate(date); err != nil {
		return b.msg.SendText(ctx, req.ChatID, fmt.Sprintf(msgBadDate, date))
	}

	capacity := b.opts.DefaultCapacity
	var raw string
	if len(args) > 1 {
		raw = args[1]
	} else {
		answer, ok, err := b.ask(ctx, req.ChatID, fmt.Sprintf(msgAskCapacity, b.opts.DefaultCapacity))
		if !ok {
			return err
		}
		raw = answer
	}
	if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
		capacity = n
	}

	event, created, err := b.admin.AddEvent(ctx, date, capacity)
	if errors.Is(err, models.ErrCapacityBelowCount) {
		return b.msg.SendText(ctx, req.ChatID, msgCapacityBelow)
	}
	if err != nil {
		return err
	}

	text := msgEventUpdated
	if created {
		text = msgEventCreated
	}
	return b.msg.SendText(ctx, req.ChatID, fmt.Sprintf(text, utils.HumanDate(event.Date), event.MaxCapacity))
}

func (b *Bot) handleDelEvent(ctx context.Context, req *Request) error {
	if len(req.Args) == 0 {
		return b.msg.SendText(ctx, req.ChatID, msgUsageDelEvent)
	}
	date, err := utils.NormalizeDate(req.Args[0])
	if err != nil {
		return b.msg.SendText(ctx, req.ChatID, fmt.Sprintf(msgBadDate, req.Args[0]))
	}

	removed, err := b.admin.DeleteEvent(ctx, date)
	if errors.Is(err, models.ErrEventNotFound) {
		return b.msg.SendText(ctx, req.ChatID, msgEventNotFound)
	}
	if err != nil {
		return err
	}
	return b.msg.SendText(ctx, req.ChatID, fmt.Sprintf(msgEventDeleted, utils.HumanDate(date), removed))
}

func (b *Bot) handleEvents(ctx context.Context, req *Request) error {
	events, err := b.admin.Events(ctx)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return b.msg.SendText(ctx, req.ChatID, msgNoEvents)
	}

	lines := []string{msgEventsHeader}
	for _, e := range events {
		lines = append(lines, fmt.Sprintf(msgEventLine, utils.HumanDate(e.Date), e.CurrentCount, e.MaxCapacity, e.Available()))
	}
	return b.msg.SendText(ctx, req.ChatID, strings.Join(lines, "\n"))
}

func (b *Bot) handleRevoke(ctx context.Context, req *Request) error {
	if len(req.Args) == 0 {
		return b.msg.SendText(ctx, req.ChatID, msgUsageRevoke)
	}
	userID, err := strconv.ParseInt(req.Args[0], 10, 64)
	if err != nil {
		return b.msg.SendText(ctx, req.ChatID, msgUsageRevoke)
	}

	var date string
	if len(req.Args) > 1 {
		if date, err = utils.NormalizeDate(req.Args[1]); err != nil {
			return b.msg.SendText(ctx, req.ChatID, fmt.Sprintf(msgBadDate, req.Args[1]))
		}
	}

	removed, err := b.admin.Revoke(ctx, userID, date)
	if err != nil {
		return err
	}
	return b.msg.SendText(ctx, req.ChatID, fmt.Sprintf(msgRevoked, removed))
}

// handleSendAll collects the newsletter text and shows a preview with
// send/cancel buttons. The draft is keyed by the admin's user id.
func (b *Bot) handleSendAll(ctx context.Context, req *Request) error {
	text, ok, err := b.ask(ctx, req.ChatID, msgAskBroadcast)
	if !ok {
		return err
	}

	b.draftsMu.Lock()
	b.drafts[req.UserID] = text
	b.draftsMu.Unlock()

	_, err = b.msg.SendMenu(ctx, req.ChatID, fmt.Sprintf(msgPreview, text), newsletterMarkup(req.UserID))
	return err
}

func (b *Bot) handleGenQR(ctx context.Context, req *Request) error {
	if len(req.Args) == 0 {
		return b.msg.SendText(ctx, req.ChatID, msgUsageGenQR)
	}
	png, err := b.qr.Generate(ctx, req.Args[0])
	if err != nil {
		return err
	}
	return b.msg.SendPhoto(ctx, req.ChatID, png, req.Args[0])
}

func (b *Bot) handleScannerToken(ctx context.Context, req *Request) error {
	if b.tokens == nil || !b.tokens.Enabled() {
		return b.msg.SendText(ctx, req.ChatID, msgScannerOff)
	}
	token, expires, err := b.tokens.Issue(req.UserID)
	if err != nil {
		return err
	}
	b.log.LogSecurity("SCANNER_TOKEN", fmt.Sprintf("issued to admin %d until %s", req.UserID, expires.Format("2006-01-02 15:04")))
	return b.msg.SendText(ctx, req.ChatID, fmt.Sprintf(msgScannerToken, expires.Format("15:04 02.01.2006"), token))
}

func (b *Bot) today() string {
	return utils.FormatDate(b.now())
}
