package bot

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	errPromptTimeout  = errors.New("prompt timed out")
	errPromptReplaced = errors.New("prompt replaced by a newer one")
)

// prompts routes plain text replies to the handler waiting on that chat.
// One chat has at most one open prompt; a new one replaces the old.
type prompts struct {
	mu      sync.Mutex
	waiting map[int64]chan string
	timeout time.Duration
}

func newPrompts(timeout time.Duration) *prompts {
	return &prompts{waiting: make(map[int64]chan string), timeout: timeout}
}

// wait blocks until the chat answers, the prompt times out or ctx ends.
func (p *prompts) wait(ctx context.Context, chatID int64) (string, error) {
	ch := make(chan string, 1)

	p.mu.Lock()
	if old, ok := p.waiting[chatID]; ok {
		close(old)
	}
	p.waiting[chatID] = ch
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		if p.waiting[chatID] == ch {
			delete(p.waiting, chatID)
		}
		p.mu.Unlock()
	}()

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case text, ok := <-ch:
		if !ok {
			return "", errPromptReplaced
		}
		return text, nil
	case <-timer.C:
		return "", errPromptTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// deliver hands text to the prompt open on chatID. It reports false when no
// prompt is waiting.
func (p *prompts) deliver(chatID int64, text string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, ok := p.waiting[chatID]
	if !ok {
		return false
	}
	delete(p.waiting, chatID)
	ch <- text
	return true
}

func (p *prompts) pending(chatID int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.waiting[chatID]
	return ok
}
