package qr

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/skip2/go-qrcode"
	"golang.org/x/sync/semaphore"
)

const imageSize = 512

var ErrEmptyCode = errors.New("empty redemption code")

// QRGenerator renders redemption codes as PNG images. Rendering runs on a
// bounded number of workers so a burst of tickets cannot starve the bot.
type QRGenerator struct {
	botUsername string
	sem         *semaphore.Weighted
}

func NewQRGenerator(botUsername string, workers int) *QRGenerator {
	if workers < 1 {
		workers = 1
	}
	return &QRGenerator{
		botUsername: botUsername,
		sem:         semaphore.NewWeighted(int64(workers)),
	}
}

// TicketLink is the deep link encoded into the QR image. Scanning it with the
// staff account opens the bot with the full code as the /start argument.
func (q *QRGenerator) TicketLink(code string) string {
	if q.botUsername == "" {
		return code
	}
	return fmt.Sprintf("https://t.me/%s?start=%s", q.botUsername, url.QueryEscape(code))
}

// ActivationLink sends the buyer back to the bot after the payment form.
func (q *QRGenerator) ActivationLink(shortCode string) string {
	if q.botUsername == "" {
		return ""
	}
	return fmt.Sprintf("https://t.me/%s?start=activate%s", q.botUsername, shortCode)
}

// Generate renders the ticket QR. It blocks while all workers are busy and
// gives up when ctx is done.
func (q *QRGenerator) Generate(ctx context.Context, code string) ([]byte, error) {
	if code == "" {
		return nil, ErrEmptyCode
	}
	if err := q.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer q.sem.Release(1)

	img, err := qrcode.New(q.TicketLink(code), qrcode.Highest)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return img.PNG(imageSize)
}
