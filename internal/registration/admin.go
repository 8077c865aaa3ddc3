package registration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ms-passbot/internal/kafka"
	"ms-passbot/internal/logger"
	"ms-passbot/internal/metrics"
	"ms-passbot/internal/models"
	"ms-passbot/internal/utils"
)

// fullCodeLen is the length of a hex encoded sha256 redemption code.
const fullCodeLen = 64

type AdminStore interface {
	Redeem(ctx context.Context, code string) (models.CheckIn, error)
	FindByHash(ctx context.Context, code string, strict bool) (*models.Visitor, error)
	AddOrUpdateEvent(ctx context.Context, date string, maxCapacity int) (*models.Event, bool, error)
	DeleteEvent(ctx context.Context, date string) (int, error)
	Delete(ctx context.Context, userID int64, date string) (int, []string, error)
	ListEvents(ctx context.Context, from string) ([]models.Event, error)
	GetAvailable(ctx context.Context, date string) (int, error)
}

// CheckInNotifier receives every door check that matched a ticket.
type CheckInNotifier interface {
	EmitCheckIn(check models.CheckIn)
}

// Admin holds the staff operations: door checks and event management.
type Admin struct {
	Store    AdminStore
	Kafka    kafka.Publisher
	CheckIns CheckInNotifier

	log *logger.Logger
	now func() time.Time
}

func NewAdmin(store AdminStore, publisher kafka.Publisher, checkIns CheckInNotifier, log *logger.Logger) *Admin {
	if publisher == nil {
		publisher = kafka.NopPublisher{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Admin{Store: store, Kafka: publisher, CheckIns: checkIns, log: log, now: time.Now}
}

// CheckCode validates a ticket at the door and consumes it. A full code is
// looked up exactly; a prefix of at least models.ShortCodeLen characters is
// resolved first and fails with ErrAmbiguousCode when it matches several
// tickets. Anything shorter is invalid.
func (a *Admin) CheckCode(ctx context.Context, code string) (models.CheckIn, error) {
	code = strings.ToLower(strings.TrimSpace(code))

	if len(code) < models.ShortCodeLen {
		metrics.TrackCheckIn(string(models.CheckInvalid))
		a.log.LogSecurity("SHORT_CODE", fmt.Sprintf("door check with %d characters refused", len(code)))
		return models.CheckIn{Result: models.CheckInvalid, CheckedAt: a.now().UTC()}, nil
	}

	if len(code) < fullCodeLen {
		v, err := a.Store.FindByHash(ctx, code, false)
		switch {
		case errors.Is(err, models.ErrVisitorNotFound):
			metrics.TrackCheckIn(string(models.CheckInvalid))
			return models.CheckIn{Result: models.CheckInvalid, CheckedAt: a.now().UTC()}, nil
		case err != nil:
			return models.CheckIn{}, err
		}
		code = v.RedemptionCode
	}

	check, err := a.Store.Redeem(ctx, code)
	if err != nil {
		return models.CheckIn{}, fmt.Errorf("redeem: %w", err)
	}
	metrics.TrackCheckIn(string(check.Result))
	a.log.LogVisitor("CHECK", code, string(check.Result))

	if check.EventDate != "" && a.CheckIns != nil {
		a.CheckIns.EmitCheckIn(check)
	}
	if check.Result == models.CheckValid {
		redeemed := models.Visitor{UserID: check.UserID, EventDate: check.EventDate, RedemptionCode: code}
		a.publish(ctx, models.NewVisitorEventDto(models.VisitorRedeemed, redeemed, check.CheckedAt))
		a.refreshAvailable(ctx, check.EventDate)
	}
	return check, nil
}

// AddEvent creates an event or changes its capacity. date may be in any
// form utils.ParseDate accepts.
func (a *Admin) AddEvent(ctx context.Context, date string, capacity int) (*models.Event, bool, error) {
	date, err := utils.NormalizeDate(date)
	if err != nil {
		return nil, false, err
	}
	event, created, err := a.Store.AddOrUpdateEvent(ctx, date, capacity)
	if err != nil {
		return nil, false, err
	}

	action := "UPDATE"
	if created {
		action = "CREATE"
	}
	a.log.LogDatabase(action, "events", fmt.Sprintf("%s capacity %d", date, capacity))
	a.publish(ctx, models.NewEventChangeDto(models.EventUpserted, *event, a.now()))
	metrics.SetAvailable(date, event.Available())
	return event, created, nil
}

// DeleteEvent removes the event and its tickets, returning how many tickets
// were dropped.
func (a *Admin) DeleteEvent(ctx context.Context, date string) (int, error) {
	date, err := utils.NormalizeDate(date)
	if err != nil {
		return 0, err
	}
	removed, err := a.Store.DeleteEvent(ctx, date)
	if err != nil {
		return 0, err
	}

	a.log.LogDatabase("DELETE", "events", fmt.Sprintf("%s with %d visitors", date, removed))
	a.publish(ctx, models.NewEventChangeDto(models.EventDeleted, models.Event{Date: date}, a.now()))
	metrics.ForgetEvent(date)
	return removed, nil
}

// Revoke deletes a user's tickets for date, or all of them when date is empty.
func (a *Admin) Revoke(ctx context.Context, userID int64, date string) (int, error) {
	if date != "" {
		var err error
		if date, err = utils.NormalizeDate(date); err != nil {
			return 0, err
		}
	}
	removed, dates, err := a.Store.Delete(ctx, userID, date)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		a.log.LogDatabase("DELETE", "visitors", fmt.Sprintf("revoked %d tickets of %d", removed, userID))
	}
	for _, d := range dates {
		a.publish(ctx, models.NewVisitorEventDto(models.VisitorReleased, models.Visitor{UserID: userID, EventDate: d}, a.now()))
		a.refreshAvailable(ctx, d)
	}
	return removed, nil
}

// Events lists the events dated today or later.
func (a *Admin) Events(ctx context.Context) ([]models.Event, error) {
	return a.Store.ListEvents(ctx, utils.FormatDate(a.now()))
}

func (a *Admin) publish(ctx context.Context, event models.DomainEventDto) {
	if err := a.Kafka.PublishDomainEvent(ctx, event); err != nil {
		a.log.Warn("KAFKA", fmt.Sprintf("publish %s: %v", event.Type, err))
	}
}

func (a *Admin) refreshAvailable(ctx context.Context, date string) {
	if n, err := a.Store.GetAvailable(ctx, date); err == nil {
		metrics.SetAvailable(date, n)
	}
}
