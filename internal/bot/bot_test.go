package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ms-passbot/internal/auth"
	"ms-passbot/internal/models"
	"ms-passbot/internal/registration"
)

func TestStart_RecordsUserAndShowsMenu(t *testing.T) {
	tb := newTestBot(t)

	tb.Handle(context.Background(), commandUpdate(userID, "/start"))
	tb.Handle(context.Background(), commandUpdate(userID, "/start"))

	require.Len(t, tb.store.users, 1)
	assert.Equal(t, "Anna", tb.store.users[0].FirstName)

	last := tb.msg.last(userID)
	assert.Equal(t, "menu", last.kind)
	assert.Equal(t, msgStart, last.text)
	assert.Equal(t, cbBuy, *last.markup.InlineKeyboard[0][0].CallbackData)
}

func TestStart_AdminWithCodeChecksTicket(t *testing.T) {
	tb := newTestBot(t)
	tb.admin.On("CheckCode", mock.Anything, "abc123").Return(models.CheckIn{Result: models.CheckValid}, nil).Once()

	tb.Handle(context.Background(), commandUpdate(adminID, "/start abc123"))

	assert.Equal(t, msgCodeValid, tb.msg.last(adminID).text)
	tb.admin.AssertExpectations(t)
}

func TestStart_UserWithCodeGetsMenu(t *testing.T) {
	tb := newTestBot(t)

	tb.Handle(context.Background(), commandUpdate(userID, "/start abc123"))

	assert.Equal(t, msgStart, tb.msg.last(userID).text)
	tb.admin.AssertNotCalled(t, "CheckCode", mock.Anything, mock.Anything)
}

func TestStart_ActivateShowsOwnTicket(t *testing.T) {
	tb := newTestBot(t)
	tb.store.byCode["aaaaa111"] = models.Visitor{UserID: userID, EventDate: "2025-06-01", RedemptionCode: "aaaaa111", IsActive: true}
	tb.store.byCode["bbbbb222"] = models.Visitor{UserID: userID, EventDate: "2025-06-08", RedemptionCode: "bbbbb222"}

	tb.Handle(context.Background(), commandUpdate(userID, "/start activateaaaaa"))
	last := tb.msg.last(userID)
	assert.Equal(t, "photo", last.kind)
	assert.Contains(t, last.text, "01.06.2025")
	assert.Contains(t, last.text, "aaaaa")

	tb.Handle(context.Background(), commandUpdate(userID, "/start activatebbbbb"))
	assert.Equal(t, msgTicketUnpaid, tb.msg.last(userID).text)

	tb.Handle(context.Background(), commandUpdate(userID, "/start activateccccc"))
	assert.Equal(t, msgTicketAbsent, tb.msg.last(userID).text)
}

func TestHelp_HidesAdminCommands(t *testing.T) {
	tb := newTestBot(t)

	tb.Handle(context.Background(), commandUpdate(userID, "/help"))
	userHelp := tb.msg.last(userID).text
	assert.Contains(t, userHelp, "/buy")
	assert.NotContains(t, userHelp, "/sendall")

	tb.Handle(context.Background(), commandUpdate(adminID, "/help"))
	assert.Contains(t, tb.msg.last(adminID).text, "/sendall")
}

func TestAdminCommandIgnoredForUsers(t *testing.T) {
	tb := newTestBot(t)

	tb.Handle(context.Background(), commandUpdate(userID, "/check abc"))

	assert.Empty(t, tb.msg.to(userID))
	tb.admin.AssertNotCalled(t, "CheckCode", mock.Anything, mock.Anything)
}

func TestUnknownCommandAndPlainText(t *testing.T) {
	tb := newTestBot(t)

	tb.Handle(context.Background(), commandUpdate(userID, "/dance"))
	assert.Equal(t, msgUnknownCmd, tb.msg.last(userID).text)

	tb.Handle(context.Background(), textUpdate(userID, "hello"))
	assert.Equal(t, msgUseCommands, tb.msg.last(userID).text)
}

func TestCheckCommand_Results(t *testing.T) {
	tests := []struct {
		result models.CheckResult
		err    error
		want   string
	}{
		{models.CheckValid, nil, msgCodeValid},
		{models.CheckAlreadyUsed, nil, msgCodeUsed},
		{models.CheckUnpaid, nil, msgCodeUnpaid},
		{models.CheckInvalid, nil, msgCodeInvalid},
		{"", models.ErrAmbiguousCode, msgCodeAmbiguous},
	}
	for _, tt := range tests {
		tb := newTestBot(t)
		tb.admin.On("CheckCode", mock.Anything, "abcde").Return(models.CheckIn{Result: tt.result}, tt.err)

		tb.Handle(context.Background(), commandUpdate(adminID, "/check abcde"))
		assert.Equal(t, tt.want, tb.msg.last(adminID).text)
	}

	tb := newTestBot(t)
	tb.Handle(context.Background(), commandUpdate(adminID, "/check"))
	assert.Equal(t, msgUsageCheck, tb.msg.last(adminID).text)
}

func TestBuy_ShowsUpcomingEvents(t *testing.T) {
	tb := newTestBot(t)

	tb.Handle(context.Background(), commandUpdate(userID, "/buy"))
	assert.Equal(t, msgNoEvents, tb.msg.last(userID).text)

	tb.store.events = []models.EventAvailability{{Event: models.Event{Date: "2025-06-01", MaxCapacity: 3}}}
	tb.Handle(context.Background(), callbackUpdate(userID, cbBuy))
	last := tb.msg.last(userID)
	assert.Equal(t, "edit", last.kind)
	assert.Equal(t, 42, last.messageID)
	assert.Equal(t, "reg:2025-06-01", *last.markup.InlineKeyboard[0][0].CallbackData)
}

func TestMyTickets(t *testing.T) {
	tb := newTestBot(t)

	tb.Handle(context.Background(), commandUpdate(userID, "/mytickets"))
	assert.Equal(t, msgNoTickets, tb.msg.last(userID).text)

	tb.store.tickets = []models.Visitor{
		{UserID: userID, EventDate: "2025-06-01", RedemptionCode: "1111122222", IsActive: true},
		{UserID: userID, EventDate: "2025-06-08", RedemptionCode: "3333344444", IsActive: true},
	}
	tb.Handle(context.Background(), commandUpdate(userID, "/mytickets"))

	var photos int
	for _, o := range tb.msg.to(userID) {
		if o.kind == "photo" {
			photos++
		}
	}
	assert.Equal(t, 2, photos)
}

func TestRegisterCallback_Outcomes(t *testing.T) {
	tests := []struct {
		kind registration.OutcomeKind
		want string
	}{
		{registration.OutcomeAlreadyRegistered, msgAlreadyRegistered},
		{registration.OutcomeEventFull, msgNotAvailable},
		{registration.OutcomePaymentRejected, msgPaymentRejected},
		{registration.OutcomePaymentTimedOut, msgPaymentTimedOut},
		{registration.OutcomeInProgress, msgInProgress},
		{registration.OutcomeInterrupted, msgInterrupted},
	}
	for _, tt := range tests {
		tb := newTestBot(t)
		tb.purchases.On("Purchase", mock.Anything, mock.MatchedBy(func(req registration.PurchaseRequest) bool {
			return req.UserID == userID && req.Date == "2025-06-01" && req.Presenter != nil
		})).Return(registration.Outcome{Kind: tt.kind}, nil)

		tb.Handle(context.Background(), callbackUpdate(userID, "reg:2025-06-01"))

		assert.Equal(t, tt.want, tb.msg.last(userID).text, tt.kind.String())
		tb.purchases.AssertExpectations(t)
	}
}

func TestRegisterCallback_PresenterShowsPaymentAndTicket(t *testing.T) {
	tb := newTestBot(t)
	v := models.Visitor{UserID: userID, EventDate: "2025-06-01", RedemptionCode: "abcdef0123"}
	tb.purchases.On("Purchase", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		req := args.Get(1).(registration.PurchaseRequest)
		ctx := args.Get(0).(context.Context)
		require.NoError(t, req.Presenter.PaymentLink(ctx, v, "https://pay.example/1", 4*time.Minute))
		v.IsActive = true
		require.NoError(t, req.Presenter.Ticket(ctx, v))
	}).Return(registration.Outcome{Kind: registration.OutcomeSuccess}, nil)

	tb.Handle(context.Background(), callbackUpdate(userID, "reg:2025-06-01"))

	msgs := tb.msg.to(userID)
	require.Len(t, msgs, 2)
	assert.Equal(t, "edit", msgs[0].kind)
	assert.Equal(t, 42, msgs[0].messageID)
	assert.Contains(t, msgs[0].text, "4 мин")
	assert.Equal(t, "https://pay.example/1", *msgs[0].markup.InlineKeyboard[0][0].URL)
	assert.Equal(t, "photo", msgs[1].kind)
	assert.Contains(t, msgs[1].text, "abcde")
}

func TestRegisterCallback_ErrorReportedToAdmins(t *testing.T) {
	tb := newTestBot(t)
	tb.purchases.On("Purchase", mock.Anything, mock.Anything).
		Return(registration.Outcome{}, errors.New("database is locked"))

	tb.Handle(context.Background(), callbackUpdate(userID, "reg:2025-06-01"))

	assert.Equal(t, msgInternal, tb.msg.last(userID).text)
	report := tb.msg.last(adminID).text
	assert.Contains(t, report, "reg:2025-06-01")
	assert.Contains(t, report, "database is locked")
}

func TestRegisterCallback_BadDate(t *testing.T) {
	tb := newTestBot(t)
	tb.Handle(context.Background(), callbackUpdate(userID, "reg:tomorrow"))
	assert.Equal(t, msgEventNotFound, tb.msg.lastAnswer())
	tb.purchases.AssertNotCalled(t, "Purchase", mock.Anything, mock.Anything)
}

func TestRegErrorCallbacks(t *testing.T) {
	tb := newTestBot(t)

	tb.Handle(context.Background(), callbackUpdate(userID, "regerr:registered"))
	assert.Equal(t, msgAlreadyRegistered, tb.msg.lastAnswer())

	tb.Handle(context.Background(), callbackUpdate(userID, "regerr:soldout"))
	assert.Equal(t, msgNotAvailable, tb.msg.lastAnswer())

	tb.Handle(context.Background(), callbackUpdate(userID, "regerr:what"))
	assert.Equal(t, msgUnknownError, tb.msg.lastAnswer())
}

func TestMenuAndAgreementCallbacks(t *testing.T) {
	tb := newTestBot(t)

	tb.Handle(context.Background(), callbackUpdate(userID, cbAgreement))
	assert.Equal(t, msgAgreement, tb.msg.last(userID).text)

	tb.Handle(context.Background(), callbackUpdate(userID, cbMenu))
	assert.Equal(t, msgStart, tb.msg.last(userID).text)
}

// converse runs a multi-turn command and feeds it answers as the prompts open.
func converse(t *testing.T, tb *testBot, chatID int64, command string, answers ...string) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		tb.Handle(context.Background(), commandUpdate(chatID, command))
	}()
	for _, answer := range answers {
		require.Eventually(t, func() bool { return tb.prompts.pending(chatID) }, time.Second, 5*time.Millisecond)
		tb.Handle(context.Background(), textUpdate(chatID, answer))
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("command did not finish")
	}
}

func TestAddEvent_MultiTurn(t *testing.T) {
	tb := newTestBot(t)
	tb.admin.On("AddEvent", mock.Anything, "01.06.2025", 120).
		Return(&models.Event{Date: "2025-06-01", MaxCapacity: 120}, true, nil).Once()

	converse(t, tb, adminID, "/addevent", "01.06.2025", "120")

	assert.Equal(t, "Мероприятие 01.06.2025 добавлено, мест: 120.", tb.msg.last(adminID).text)
	tb.admin.AssertExpectations(t)
}

func TestAddEvent_ArgsAndDefaults(t *testing.T) {
	tb := newTestBot(t)
	tb.admin.On("AddEvent", mock.Anything, "2025-06-01", 80).
		Return(&models.Event{Date: "2025-06-01", MaxCapacity: 80}, false, nil).Once()
	tb.admin.On("AddEvent", mock.Anything, "2025-06-08", 250).
		Return(&models.Event{Date: "2025-06-08", MaxCapacity: 250}, true, nil).Once()

	tb.Handle(context.Background(), commandUpdate(adminID, "/addevent 2025-06-01 80"))
	assert.Equal(t, "Мероприятие 01.06.2025 обновлено, мест: 80.", tb.msg.last(adminID).text)

	converse(t, tb, adminID, "/addevent 2025-06-08", "не знаю")
	assert.Contains(t, tb.msg.last(adminID).text, "мест: 250")

	tb.Handle(context.Background(), commandUpdate(adminID, "/addevent someday 10"))
	assert.Contains(t, tb.msg.last(adminID).text, "Неверный формат даты")
	tb.admin.AssertExpectations(t)
}

func TestAddEvent_CancelAndCapacityBelowCount(t *testing.T) {
	tb := newTestBot(t)

	converse(t, tb, adminID, "/addevent", "выход")
	assert.Equal(t, msgCancelled, tb.msg.last(adminID).text)
	tb.admin.AssertNotCalled(t, "AddEvent", mock.Anything, mock.Anything, mock.Anything)

	tb.admin.On("AddEvent", mock.Anything, "2025-06-01", 1).Return(nil, false, models.ErrCapacityBelowCount)
	tb.Handle(context.Background(), commandUpdate(adminID, "/addevent 2025-06-01 1"))
	assert.Equal(t, msgCapacityBelow, tb.msg.last(adminID).text)
}

func TestAddEvent_CancelCommand(t *testing.T) {
	tb := newTestBot(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		tb.Handle(context.Background(), commandUpdate(adminID, "/addevent"))
	}()
	require.Eventually(t, func() bool { return tb.prompts.pending(adminID) }, time.Second, 5*time.Millisecond)
	tb.Handle(context.Background(), commandUpdate(adminID, "/cancel"))
	<-done

	assert.Equal(t, msgCancelled, tb.msg.last(adminID).text)
	tb.admin.AssertNotCalled(t, "AddEvent", mock.Anything, mock.Anything, mock.Anything)
}

func TestPromptTimeout(t *testing.T) {
	tb := newTestBot(t)
	tb.prompts.timeout = 20 * time.Millisecond

	tb.Handle(context.Background(), commandUpdate(adminID, "/addevent"))

	assert.Equal(t, msgPromptExpire, tb.msg.last(adminID).text)
}

func TestDelEventEventsAndRevoke(t *testing.T) {
	tb := newTestBot(t)
	tb.admin.On("DeleteEvent", mock.Anything, "2025-06-01").Return(3, nil)
	tb.admin.On("DeleteEvent", mock.Anything, "2025-06-08").Return(0, models.ErrEventNotFound)
	tb.admin.On("Events", mock.Anything).Return([]models.Event{{Date: "2025-06-15", MaxCapacity: 10, CurrentCount: 4}}, nil)
	tb.admin.On("Revoke", mock.Anything, int64(700), "").Return(2, nil)
	tb.admin.On("Revoke", mock.Anything, int64(700), "2025-06-15").Return(1, nil)

	tb.Handle(context.Background(), commandUpdate(adminID, "/delevent 01.06.2025"))
	assert.Equal(t, "Мероприятие 01.06.2025 удалено, аннулировано пропусков: 3.", tb.msg.last(adminID).text)

	tb.Handle(context.Background(), commandUpdate(adminID, "/delevent 2025-06-08"))
	assert.Equal(t, msgEventNotFound, tb.msg.last(adminID).text)

	tb.Handle(context.Background(), commandUpdate(adminID, "/events"))
	assert.Equal(t, msgEventsHeader+"\n15.06.2025: 4/10, свободно 6", tb.msg.last(adminID).text)

	tb.Handle(context.Background(), commandUpdate(adminID, "/revoke 700"))
	assert.Equal(t, "Удалено записей: 2.", tb.msg.last(adminID).text)

	tb.Handle(context.Background(), commandUpdate(adminID, "/revoke 700 15.06.2025"))
	assert.Equal(t, "Удалено записей: 1.", tb.msg.last(adminID).text)

	tb.Handle(context.Background(), commandUpdate(adminID, "/revoke bob"))
	assert.Equal(t, msgUsageRevoke, tb.msg.last(adminID).text)
	tb.admin.AssertExpectations(t)
}

func TestSendAll_PreviewThenSend(t *testing.T) {
	tb := newTestBot(t)
	tb.broadcaster.On("Broadcast", mock.Anything, "Вечеринка в субботу!", []int64(nil)).
		Return(registration.BroadcastReport{Total: 10, Sent: 9, Failed: 1}, nil).Once()

	converse(t, tb, adminID, "/sendall", "Вечеринка в субботу!")

	preview := tb.msg.last(adminID)
	assert.Equal(t, "menu", preview.kind)
	assert.Equal(t, "Предпросмотр:\n\nВечеринка в субботу!", preview.text)
	sendData := *preview.markup.InlineKeyboard[0][0].CallbackData
	assert.Equal(t, "send:500", sendData)

	tb.Handle(context.Background(), callbackUpdate(adminID, sendData))
	assert.Equal(t, "Рассылка завершена: отправлено 9 из 10, ошибок 1.", tb.msg.last(adminID).text)

	// the draft is consumed
	tb.Handle(context.Background(), callbackUpdate(adminID, sendData))
	assert.Equal(t, msgDraftMissing, tb.msg.lastAnswer())
	tb.broadcaster.AssertExpectations(t)
}

func TestSendAll_Cancel(t *testing.T) {
	tb := newTestBot(t)
	converse(t, tb, adminID, "/sendall", "draft")

	tb.Handle(context.Background(), callbackUpdate(adminID, cbSendCancel))

	assert.Equal(t, "delete", tb.msg.last(adminID).kind)
	tb.Handle(context.Background(), callbackUpdate(adminID, "send:500"))
	assert.Equal(t, msgDraftMissing, tb.msg.lastAnswer())
	tb.broadcaster.AssertNotCalled(t, "Broadcast", mock.Anything, mock.Anything, mock.Anything)
}

func TestSendCallbackIgnoredForUsers(t *testing.T) {
	tb := newTestBot(t)
	tb.Handle(context.Background(), callbackUpdate(userID, "send:500"))
	assert.Equal(t, "", tb.msg.lastAnswer())
	tb.broadcaster.AssertNotCalled(t, "Broadcast", mock.Anything, mock.Anything, mock.Anything)
}

func TestGenQRAndScannerToken(t *testing.T) {
	tb := newTestBot(t)

	tb.Handle(context.Background(), commandUpdate(adminID, "/genqr deadbeef"))
	last := tb.msg.last(adminID)
	assert.Equal(t, "photo", last.kind)
	assert.Equal(t, "deadbeef", last.text)

	tb.Handle(context.Background(), commandUpdate(adminID, "/scannertoken"))
	text := tb.msg.last(adminID).text
	assert.True(t, strings.HasPrefix(text, "Токен сканера"), text)

	lines := strings.Split(text, "\n")
	issuedTo, err := auth.NewTokens("scanner-secret", time.Hour).Verify(lines[len(lines)-1])
	require.NoError(t, err)
	assert.Equal(t, adminID, issuedTo)
}

func TestNotifier(t *testing.T) {
	tb := newTestBot(t)
	v := models.Visitor{UserID: userID, EventDate: "2025-06-01", RedemptionCode: "abcdef99"}

	require.NoError(t, tb.Released(context.Background(), v))
	assert.Equal(t, "Оплата билета на 01.06.2025 не подтвердилась, бронь снята.", tb.msg.last(userID).text)

	require.NoError(t, tb.Ticket(context.Background(), v))
	assert.Equal(t, "photo", tb.msg.last(userID).kind)
}

func TestRun_DispatchesUntilCancelled(t *testing.T) {
	tb := newTestBot(t)
	updates := make(chan tgbotapi.Update)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		tb.Run(ctx, updates)
	}()

	updates <- commandUpdate(userID, "/start")
	require.Eventually(t, func() bool { return len(tb.msg.to(userID)) == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestRun_AnswersReachPromptsWhenPoolIsBusy(t *testing.T) {
	tb := newTestBot(t)
	require.NoError(t, tb.workers.Acquire(context.Background(), 3)) // leave a single slot
	tb.admin.On("AddEvent", mock.Anything, "01.06.2025", 30).
		Return(&models.Event{Date: "2025-06-01", MaxCapacity: 30}, true, nil).Once()

	updates := make(chan tgbotapi.Update)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tb.Run(ctx, updates)

	askedCapacity := fmt.Sprintf(msgAskCapacity, 250)

	updates <- commandUpdate(adminID, "/addevent")
	require.Eventually(t, func() bool { return tb.prompts.pending(adminID) }, time.Second, 5*time.Millisecond)
	updates <- textUpdate(adminID, "01.06.2025")
	require.Eventually(t, func() bool {
		return tb.msg.last(adminID).text == askedCapacity && tb.prompts.pending(adminID)
	}, time.Second, 5*time.Millisecond)

	// the pool is now full; other chats are turned away without stalling the loop
	updates <- commandUpdate(userID, "/help")
	require.Eventually(t, func() bool { return tb.msg.last(userID).text == msgBusy }, time.Second, 5*time.Millisecond)

	updates <- textUpdate(adminID, "30")
	require.Eventually(t, func() bool {
		return tb.msg.last(adminID).text == "Мероприятие 01.06.2025 добавлено, мест: 30."
	}, time.Second, 5*time.Millisecond)
}

func TestRun_FullPoolDoesNotBlockDispatch(t *testing.T) {
	tb := newTestBot(t)
	require.NoError(t, tb.workers.Acquire(context.Background(), 4))

	updates := make(chan tgbotapi.Update)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tb.Run(ctx, updates)

	for i := 0; i < 3; i++ {
		select {
		case updates <- textUpdate(userID, "привет"):
		case <-time.After(time.Second):
			t.Fatal("dispatch loop blocked on a full pool")
		}
	}
	require.Eventually(t, func() bool { return len(tb.msg.to(userID)) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, msgBusy, tb.msg.last(userID).text)

	select {
	case updates <- callbackUpdate(userID, cbMenu):
	case <-time.After(time.Second):
		t.Fatal("dispatch loop blocked on a full pool")
	}
	require.Eventually(t, func() bool { return tb.msg.lastAnswer() == msgBusy }, time.Second, 5*time.Millisecond)
}
