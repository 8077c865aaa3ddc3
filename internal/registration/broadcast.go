package registration

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"ms-passbot/internal/logger"
	"ms-passbot/internal/metrics"
)

type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

type RecipientStore interface {
	ListUserIDs(ctx context.Context) ([]int64, error)
}

type BroadcastReport struct {
	Total  int
	Sent   int
	Failed int
}

// Broadcaster sends one text to many chats, throttled to stay under the chat
// platform's flood limit.
type Broadcaster struct {
	sender  Sender
	users   RecipientStore
	limiter *rate.Limiter
	log     *logger.Logger
}

func NewBroadcaster(sender Sender, users RecipientStore, perSecond int, log *logger.Logger) *Broadcaster {
	if perSecond < 1 {
		perSecond = 1
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Broadcaster{
		sender:  sender,
		users:   users,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
		log:     log,
	}
}

// Broadcast delivers text to recipients, or to every known user when
// recipients is nil. A failed send is counted and logged; it is not retried
// and does not stop the rest. Only ctx ending stops the loop early.
func (b *Broadcaster) Broadcast(ctx context.Context, text string, recipients []int64) (BroadcastReport, error) {
	if recipients == nil {
		ids, err := b.users.ListUserIDs(ctx)
		if err != nil {
			return BroadcastReport{}, fmt.Errorf("load recipients: %w", err)
		}
		recipients = ids
	}

	report := BroadcastReport{Total: len(recipients)}
	defer func() {
		metrics.TrackBroadcast("sent", report.Sent)
		metrics.TrackBroadcast("failed", report.Failed)
	}()

	for _, chatID := range recipients {
		if err := b.limiter.Wait(ctx); err != nil {
			b.log.Warn("BROADCAST", fmt.Sprintf("stopped after %d of %d: %v", report.Sent+report.Failed, report.Total, err))
			return report, err
		}
		if err := b.sender.SendText(ctx, chatID, text); err != nil {
			report.Failed++
			b.log.Warn("BROADCAST", fmt.Sprintf("chat %d: %v", chatID, err))
			continue
		}
		report.Sent++
	}

	b.log.Info("BROADCAST", fmt.Sprintf("delivered %d of %d, %d failed", report.Sent, report.Total, report.Failed))
	return report, nil
}
