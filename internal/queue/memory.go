package queue

import (
	"context"
	"log"
	"sync"
)

// MemoryTrigger is an in-process TickTrigger for offline mode and tests.
// A single consumer goroutine drains a buffered channel, preserving the
// per-consumer serialization the Redis trigger provides.
type MemoryTrigger struct {
	ch   chan string
	once sync.Once
}

// NewMemoryTrigger returns a trigger with a generous buffer; Enqueue
// never blocks the dispatcher under normal load.
func NewMemoryTrigger() *MemoryTrigger {
	return &MemoryTrigger{ch: make(chan string, 1024)}
}

func (t *MemoryTrigger) Enqueue(ctx context.Context, jobID string) error {
	select {
	case t.ch <- jobID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume drains the queue until ctx is cancelled. Start exactly once.
func (t *MemoryTrigger) Consume(ctx context.Context, handler TickHandler) {
	t.once.Do(func() {
		log.Println("[queue] In-process tick consumer started")
	})
	for {
		select {
		case <-ctx.Done():
			return
		case jobID := <-t.ch:
			handler(ctx, jobID)
		}
	}
}
