package service

import (
	"sync"

	"wapool/internal/constants"
	"wapool/internal/models"
)

// LogHub fans new audit entries out to live subscribers. Slow subscribers
// miss entries instead of blocking the publisher.
type LogHub struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]chan models.LogEntry
}

func NewLogHub() *LogHub {
	return &LogHub{subs: make(map[int]chan models.LogEntry)}
}

// Subscribe returns a channel of entries and a function that unsubscribes and closes it.
func (h *LogHub) Subscribe() (<-chan models.LogEntry, func()) {
	ch := make(chan models.LogEntry, constants.DefaultLogStreamBuffer)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *LogHub) Publish(entry models.LogEntry) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- entry:
		default:
		}
	}
}

// Subscribers returns the number of live subscribers.
func (h *LogHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
