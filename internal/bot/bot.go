package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/semaphore"

	"ms-passbot/internal/logger"
	"ms-passbot/internal/metrics"
	"ms-passbot/internal/models"
	"ms-passbot/internal/registration"
)

type Store interface {
	AddUser(ctx context.Context, user models.User) (bool, error)
	ListUpcomingFor(ctx context.Context, userID int64, from string) ([]models.EventAvailability, error)
	ListUserTickets(ctx context.Context, userID int64, from string) ([]models.Visitor, error)
	FindForUser(ctx context.Context, userID int64, prefix string) (*models.Visitor, error)
}

type Purchaser interface {
	Purchase(ctx context.Context, req registration.PurchaseRequest) (registration.Outcome, error)
}

type AdminOps interface {
	CheckCode(ctx context.Context, code string) (models.CheckIn, error)
	AddEvent(ctx context.Context, date string, capacity int) (*models.Event, bool, error)
	DeleteEvent(ctx context.Context, date string) (int, error)
	Revoke(ctx context.Context, userID int64, date string) (int, error)
	Events(ctx context.Context) ([]models.Event, error)
}

type BroadcastRunner interface {
	Broadcast(ctx context.Context, text string, recipients []int64) (registration.BroadcastReport, error)
}

type TicketRenderer interface {
	Generate(ctx context.Context, code string) ([]byte, error)
}

type TokenIssuer interface {
	Enabled() bool
	Issue(adminID int64) (string, time.Time, error)
}

type Deps struct {
	Messenger   Messenger
	Store       Store
	Purchases   Purchaser
	Admin       AdminOps
	Broadcaster BroadcastRunner
	QR          TicketRenderer
	Tokens      TokenIssuer
}

type Options struct {
	AdminIDs        []int64
	Workers         int
	PromptTimeout   time.Duration
	DefaultCapacity int
	Price           decimal.Decimal
}

// Bot turns Telegram updates into registration and admin operations.
type Bot struct {
	msg         Messenger
	store       Store
	purchases   Purchaser
	admin       AdminOps
	broadcaster BroadcastRunner
	qr          TicketRenderer
	tokens      TokenIssuer

	opts      Options
	admins    map[int64]bool
	commands  map[string]Command
	order     []Command
	callbacks []callbackRoute
	prompts   *prompts
	workers   *semaphore.Weighted
	log       *logger.Logger
	now       func() time.Time

	draftsMu sync.Mutex
	drafts   map[int64]string
}

// Request is one inbound command or button press.
type Request struct {
	ChatID     int64
	UserID     int64
	MessageID  int
	Username   string
	FirstName  string
	Command    string
	Args       []string
	Data       string
	CallbackID string
	IsAdmin    bool
}

func New(deps Deps, opts Options, log *logger.Logger) *Bot {
	if log == nil {
		log = logger.NewNop()
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.PromptTimeout <= 0 {
		opts.PromptTimeout = 5 * time.Minute
	}

	b := &Bot{
		msg:         deps.Messenger,
		store:       deps.Store,
		purchases:   deps.Purchases,
		admin:       deps.Admin,
		broadcaster: deps.Broadcaster,
		qr:          deps.QR,
		tokens:      deps.Tokens,
		opts:        opts,
		admins:      make(map[int64]bool, len(opts.AdminIDs)),
		prompts:     newPrompts(opts.PromptTimeout),
		workers:     semaphore.NewWeighted(int64(opts.Workers)),
		log:         log,
		now:         time.Now,
		drafts:      make(map[int64]string),
	}
	for _, id := range opts.AdminIDs {
		b.admins[id] = true
	}

	b.order = b.commandTable()
	b.commands = make(map[string]Command, len(b.order))
	for _, cmd := range b.order {
		b.commands[cmd.Name] = cmd
	}
	b.callbacks = b.callbackTable()
	return b
}

// Run dispatches updates until ctx ends or the channel closes, then waits for
// in-flight handlers.
func (b *Bot) Run(ctx context.Context, updates <-chan tgbotapi.Update) {
	var wg sync.WaitGroup
	defer wg.Wait()

	b.log.Info("BOT", fmt.Sprintf("Handling updates with %d workers", b.opts.Workers))
	for {
		select {
		case <-ctx.Done():
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			// prompt answers skip the pool so a full pool of waiting
			// handlers can still be answered
			if b.deliverAnswer(upd) {
				continue
			}
			// the loop never waits for a slot; a full pool turns the
			// update away so answers for other chats keep flowing
			if !b.workers.TryAcquire(1) {
				wg.Add(1)
				go func() {
					defer wg.Done()
					b.rejectBusy(ctx, upd)
				}()
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer b.workers.Release(1)
				b.Handle(ctx, upd)
			}()
		}
	}
}

// Handle processes a single update.
func (b *Bot) Handle(ctx context.Context, upd tgbotapi.Update) {
	done := metrics.UpdateStarted()
	defer done()

	var (
		req  *Request
		name string
		err  error
	)
	defer func() {
		if r := recover(); r != nil {
			b.fail(ctx, req, name, fmt.Errorf("panic: %v", r))
		}
	}()

	switch {
	case upd.Message != nil:
		req, name = b.messageRequest(upd.Message), "message"
		if req.Command != "" {
			name = "/" + req.Command
		}
		err = b.handleMessage(ctx, req, upd.Message)
	case upd.CallbackQuery != nil:
		req, name = b.callbackRequest(upd.CallbackQuery), "callback "+upd.CallbackQuery.Data
		err = b.handleCallback(ctx, req)
	default:
		return
	}

	if err != nil {
		b.fail(ctx, req, name, err)
	}
}

// rejectBusy tells the sender to retry when every worker is taken.
func (b *Bot) rejectBusy(ctx context.Context, upd tgbotapi.Update) {
	metrics.TrackBusy()
	var err error
	switch {
	case upd.CallbackQuery != nil:
		err = b.msg.AnswerCallback(ctx, upd.CallbackQuery.ID, msgBusy)
	case upd.Message != nil && upd.Message.Chat != nil:
		b.log.LogBot("BUSY", upd.Message.Chat.ID, "worker pool full, update rejected")
		err = b.msg.SendText(ctx, upd.Message.Chat.ID, msgBusy)
	}
	if err != nil {
		b.log.Warn("BOT", fmt.Sprintf("busy reply: %v", err))
	}
}

func (b *Bot) deliverAnswer(upd tgbotapi.Update) bool {
	msg := upd.Message
	if msg == nil || msg.Chat == nil || msg.Text == "" {
		return false
	}
	if msg.IsCommand() && msg.Command() != "cancel" {
		return false
	}
	return b.prompts.deliver(msg.Chat.ID, msg.Text)
}

func (b *Bot) messageRequest(msg *tgbotapi.Message) *Request {
	req := &Request{MessageID: msg.MessageID}
	if msg.Chat != nil {
		req.ChatID = msg.Chat.ID
	}
	if msg.From != nil {
		req.UserID = msg.From.ID
		req.Username = msg.From.UserName
		req.FirstName = msg.From.FirstName
	}
	if msg.IsCommand() {
		req.Command = strings.ToLower(msg.Command())
		req.Args = strings.Fields(msg.CommandArguments())
	}
	req.IsAdmin = b.isAdmin(req.UserID)
	return req
}

func (b *Bot) callbackRequest(q *tgbotapi.CallbackQuery) *Request {
	req := &Request{CallbackID: q.ID, Data: q.Data}
	if q.From != nil {
		req.UserID = q.From.ID
		req.Username = q.From.UserName
		req.FirstName = q.From.FirstName
	}
	if q.Message != nil {
		req.MessageID = q.Message.MessageID
		if q.Message.Chat != nil {
			req.ChatID = q.Message.Chat.ID
		}
	}
	if req.ChatID == 0 {
		req.ChatID = req.UserID
	}
	req.IsAdmin = b.isAdmin(req.UserID)
	return req
}

func (b *Bot) handleMessage(ctx context.Context, req *Request, msg *tgbotapi.Message) error {
	if req.Command == "" {
		if msg.Text != "" && b.prompts.deliver(req.ChatID, msg.Text) {
			return nil
		}
		return b.msg.SendText(ctx, req.ChatID, msgUseCommands)
	}

	cmd, ok := b.commands[req.Command]
	if !ok {
		if req.Command == "cancel" && b.prompts.deliver(req.ChatID, msg.Text) {
			return nil
		}
		return b.msg.SendText(ctx, req.ChatID, msgUnknownCmd)
	}
	if cmd.Admin && !req.IsAdmin {
		b.log.LogSecurity("ADMIN_COMMAND", fmt.Sprintf("user %d tried /%s", req.UserID, cmd.Name))
		return nil
	}
	b.log.LogBot("COMMAND", req.ChatID, "/"+cmd.Name)
	return cmd.Handle(ctx, req)
}

func (b *Bot) handleCallback(ctx context.Context, req *Request) error {
	for _, route := range b.callbacks {
		if !strings.HasPrefix(req.Data, route.prefix) {
			continue
		}
		if route.admin && !req.IsAdmin {
			b.log.LogSecurity("ADMIN_CALLBACK", fmt.Sprintf("user %d pressed %q", req.UserID, req.Data))
			return b.msg.AnswerCallback(ctx, req.CallbackID, "")
		}
		return route.handle(ctx, req, strings.TrimPrefix(req.Data, route.prefix))
	}
	return b.msg.AnswerCallback(ctx, req.CallbackID, msgUnknownError)
}

func (b *Bot) isAdmin(userID int64) bool {
	return b.admins[userID]
}

// ask sends question and waits for the chat's next plain text message.
// ok is false when the user cancelled or did not answer in time; the user has
// already been told.
func (b *Bot) ask(ctx context.Context, chatID int64, question string) (answer string, ok bool, err error) {
	if err := b.msg.SendText(ctx, chatID, question); err != nil {
		return "", false, err
	}

	answer, err = b.prompts.wait(ctx, chatID)
	switch {
	case errors.Is(err, errPromptTimeout):
		return "", false, b.msg.SendText(ctx, chatID, msgPromptExpire)
	case errors.Is(err, errPromptReplaced):
		return "", false, nil
	case err != nil:
		return "", false, nil
	}

	answer = strings.TrimSpace(answer)
	if cancelWords[strings.ToLower(answer)] {
		return "", false, b.msg.SendText(ctx, chatID, msgCancelled)
	}
	return answer, true, nil
}

// fail logs a handler error, apologises to the user and reports it to every
// admin.
func (b *Bot) fail(ctx context.Context, req *Request, where string, err error) {
	b.log.Error("BOT", fmt.Sprintf("%s: %v", where, err))

	// the update may have been cut short by shutdown
	ctx = context.WithoutCancel(ctx)
	if req != nil && req.ChatID != 0 && !b.isAdmin(req.ChatID) {
		if sendErr := b.msg.SendText(ctx, req.ChatID, msgInternal); sendErr != nil {
			b.log.Warn("BOT", fmt.Sprintf("notify user of failure: %v", sendErr))
		}
	}
	for _, adminID := range b.opts.AdminIDs {
		if sendErr := b.msg.SendText(ctx, adminID, fmt.Sprintf(msgAdminError, where, err, err)); sendErr != nil {
			b.log.Error("BOT", fmt.Sprintf("report error to admin %d: %v", adminID, sendErr))
		}
	}
}

func (b *Bot) price() string {
	return b.opts.Price.String()
}
