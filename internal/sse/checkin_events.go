package sse

import (
	"context"
	"sync"

	"ms-passbot/internal/models"
)

const clientBuffer = 16

// CheckInEmitter fans door checks out to the scanners watching an event date.
type CheckInEmitter struct {
	clients map[string][]chan models.CheckIn
	mu      sync.RWMutex
}

func NewCheckInEmitter() *CheckInEmitter {
	return &CheckInEmitter{
		clients: make(map[string][]chan models.CheckIn),
	}
}

// Subscribe registers a client for date. The channel is closed once ctx is done.
func (e *CheckInEmitter) Subscribe(ctx context.Context, date string) <-chan models.CheckIn {
	clientChan := make(chan models.CheckIn, clientBuffer)

	e.mu.Lock()
	e.clients[date] = append(e.clients[date], clientChan)
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.remove(date, clientChan)
	}()

	return clientChan
}

// EmitCheckIn delivers check to every subscriber of its date. Slow clients
// miss events rather than stall the door check.
func (e *CheckInEmitter) EmitCheckIn(check models.CheckIn) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, clientChan := range e.clients[check.EventDate] {
		select {
		case clientChan <- check:
		default:
		}
	}
}

func (e *CheckInEmitter) remove(date string, clientChan chan models.CheckIn) {
	e.mu.Lock()
	defer e.mu.Unlock()

	clients := e.clients[date]
	for i, ch := range clients {
		if ch == clientChan {
			e.clients[date] = append(clients[:i], clients[i+1:]...)
			close(clientChan)
			break
		}
	}
	if len(e.clients[date]) == 0 {
		delete(e.clients, date)
	}
}

// ClientCount returns how many scanners watch date.
func (e *CheckInEmitter) ClientCount(date string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.clients[date])
}
