// Package drops fans rare pack drops out to websocket listeners.
package drops

import (
	"context"
	"time"
)

// Drop describes a noteworthy reward pulled from a pack.
type Drop struct {
	UserID      string    `json:"user_id"`
	PackName    string    `json:"pack_name"`
	RewardTitle string    `json:"reward_title"`
	Rarity      string    `json:"rarity"`
	Timestamp   time.Time `json:"timestamp"`
}

// Broadcaster is a minimal pub/sub for drop announcements.
type Broadcaster struct {
	ch chan Drop
}

// NewBroadcaster creates a broadcaster with a buffered channel.
func NewBroadcaster(buffer int) *Broadcaster {
	return &Broadcaster{
		ch: make(chan Drop, buffer),
	}
}

// Send publishes a drop (non-blocking with drop on full buffer).
func (b *Broadcaster) Send(drop Drop) {
	select {
	case b.ch <- drop:
	default:
		// drop if listeners are slow; keep simple
	}
}

// Listen returns a channel plus a cancel function to stop listening.
func (b *Broadcaster) Listen(ctx context.Context) (<-chan Drop, context.CancelFunc) {
	listenerCtx, cancel := context.WithCancel(ctx)
	out := make(chan Drop, cap(b.ch))

	go func() {
		defer close(out)
		for {
			select {
			case <-listenerCtx.Done():
				return
			case drop, ok := <-b.ch:
				if !ok {
					return
				}
				select {
				case out <- drop:
				case <-listenerCtx.Done():
					return
				}
			}
		}
	}()

	return out, cancel
}

// SendWithTimeout publishes with timeout.
func (b *Broadcaster) SendWithTimeout(drop Drop, timeout time.Duration) bool {
	select {
	case b.ch <- drop:
		return true
	case <-time.After(timeout):
		return false
	}
}
