package bot

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"ms-passbot/internal/auth"
	"ms-passbot/internal/models"
	"ms-passbot/internal/registration"
)

const (
	adminID int64 = 500
	userID  int64 = 700
)

type outgoing struct {
	kind      string
	chatID    int64
	messageID int
	text      string
	markup    *tgbotapi.InlineKeyboardMarkup
}

type fakeMessenger struct {
	mu      sync.Mutex
	out     []outgoing
	answers []string
	nextID  int
}

func (m *fakeMessenger) record(o outgoing) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.out = append(m.out, o)
}

func (m *fakeMessenger) SendText(_ context.Context, chatID int64, text string) error {
	m.record(outgoing{kind: "text", chatID: chatID, text: text})
	return nil
}

func (m *fakeMessenger) SendMenu(_ context.Context, chatID int64, text string, markup tgbotapi.InlineKeyboardMarkup) (int, error) {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.mu.Unlock()
	m.record(outgoing{kind: "menu", chatID: chatID, messageID: id, text: text, markup: &markup})
	return id, nil
}

func (m *fakeMessenger) EditMenu(_ context.Context, chatID int64, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup) error {
	m.record(outgoing{kind: "edit", chatID: chatID, messageID: messageID, text: text, markup: markup})
	return nil
}

func (m *fakeMessenger) SendPhoto(_ context.Context, chatID int64, _ []byte, caption string) error {
	m.record(outgoing{kind: "photo", chatID: chatID, text: caption})
	return nil
}

func (m *fakeMessenger) AnswerCallback(_ context.Context, _ string, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answers = append(m.answers, text)
	return nil
}

func (m *fakeMessenger) DeleteMessage(_ context.Context, chatID int64, messageID int) error {
	m.record(outgoing{kind: "delete", chatID: chatID, messageID: messageID})
	return nil
}

func (m *fakeMessenger) all() []outgoing {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]outgoing(nil), m.out...)
}

func (m *fakeMessenger) to(chatID int64) []outgoing {
	var out []outgoing
	for _, o := range m.all() {
		if o.chatID == chatID {
			out = append(out, o)
		}
	}
	return out
}

func (m *fakeMessenger) last(chatID int64) outgoing {
	msgs := m.to(chatID)
	if len(msgs) == 0 {
		return outgoing{}
	}
	return msgs[len(msgs)-1]
}

func (m *fakeMessenger) lastAnswer() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.answers) == 0 {
		return "<none>"
	}
	return m.answers[len(m.answers)-1]
}

type fakeStore struct {
	mu      sync.Mutex
	users   []models.User
	events  []models.EventAvailability
	tickets []models.Visitor
	byCode  map[string]models.Visitor
}

func (s *fakeStore) AddUser(_ context.Context, user models.User) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.UserID == user.UserID {
			return false, nil
		}
	}
	s.users = append(s.users, user)
	return true, nil
}

func (s *fakeStore) ListUpcomingFor(context.Context, int64, string) ([]models.EventAvailability, error) {
	return s.events, nil
}

func (s *fakeStore) ListUserTickets(context.Context, int64, string) ([]models.Visitor, error) {
	return s.tickets, nil
}

func (s *fakeStore) FindForUser(_ context.Context, uid int64, prefix string) (*models.Visitor, error) {
	for code, v := range s.byCode {
		if v.UserID == uid && strings.HasPrefix(code, prefix) {
			v := v
			return &v, nil
		}
	}
	return nil, models.ErrVisitorNotFound
}

type MockPurchaser struct {
	mock.Mock
}

func (m *MockPurchaser) Purchase(ctx context.Context, req registration.PurchaseRequest) (registration.Outcome, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(registration.Outcome), args.Error(1)
}

type MockAdmin struct {
	mock.Mock
}

func (m *MockAdmin) CheckCode(ctx context.Context, code string) (models.CheckIn, error) {
	args := m.Called(ctx, code)
	return args.Get(0).(models.CheckIn), args.Error(1)
}

func (m *MockAdmin) AddEvent(ctx context.Context, date string, capacity int) (*models.Event, bool, error) {
	args := m.Called(ctx, date, capacity)
	event, _ := args.Get(0).(*models.Event)
	return event, args.Bool(1), args.Error(2)
}

func (m *MockAdmin) DeleteEvent(ctx context.Context, date string) (int, error) {
	args := m.Called(ctx, date)
	return args.Int(0), args.Error(1)
}

func (m *MockAdmin) Revoke(ctx context.Context, uid int64, date string) (int, error) {
	args := m.Called(ctx, uid, date)
	return args.Int(0), args.Error(1)
}

func (m *MockAdmin) Events(ctx context.Context) ([]models.Event, error) {
	args := m.Called(ctx)
	events, _ := args.Get(0).([]models.Event)
	return events, args.Error(1)
}

type MockBroadcaster struct {
	mock.Mock
}

func (m *MockBroadcaster) Broadcast(ctx context.Context, text string, recipients []int64) (registration.BroadcastReport, error) {
	args := m.Called(ctx, text, recipients)
	return args.Get(0).(registration.BroadcastReport), args.Error(1)
}

type fakeQR struct{}

func (fakeQR) Generate(_ context.Context, code string) ([]byte, error) {
	return []byte("png:" + code), nil
}

type testBot struct {
	*Bot
	msg         *fakeMessenger
	store       *fakeStore
	purchases   *MockPurchaser
	admin       *MockAdmin
	broadcaster *MockBroadcaster
}

func newTestBot(t *testing.T) *testBot {
	t.Helper()
	tb := &testBot{
		msg:         &fakeMessenger{},
		store:       &fakeStore{byCode: map[string]models.Visitor{}},
		purchases:   new(MockPurchaser),
		admin:       new(MockAdmin),
		broadcaster: new(MockBroadcaster),
	}
	tb.Bot = New(Deps{
		Messenger:   tb.msg,
		Store:       tb.store,
		Purchases:   tb.purchases,
		Admin:       tb.admin,
		Broadcaster: tb.broadcaster,
		QR:          fakeQR{},
		Tokens:      auth.NewTokens("scanner-secret", time.Hour),
	}, Options{
		AdminIDs:        []int64{adminID},
		Workers:         4,
		PromptTimeout:   time.Second,
		DefaultCapacity: 250,
		Price:           decimal.RequireFromString("1500.00"),
	}, nil)
	tb.Bot.now = func() time.Time { return time.Date(2025, 5, 20, 12, 0, 0, 0, time.UTC) }
	return tb
}

func commandUpdate(from int64, text string) tgbotapi.Update {
	name := strings.Fields(text)[0]
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: from, UserName: "u", FirstName: "Anna"},
		Chat:      &tgbotapi.Chat{ID: from},
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}},
	}}
}

func textUpdate(from int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 2,
		From:      &tgbotapi.User{ID: from},
		Chat:      &tgbotapi.Chat{ID: from},
		Text:      text,
	}}
}

func callbackUpdate(from int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb-1",
		From:    &tgbotapi.User{ID: from},
		Message: &tgbotapi.Message{MessageID: 42, Chat: &tgbotapi.Chat{ID: from}},
		Data:    data,
	}}
}
