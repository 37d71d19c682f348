package notify

import (
	"sync"
	"testing"
)

type captureConsumer struct {
	mu     sync.Mutex
	events []Event
}

func (c *captureConsumer) Consume(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func TestDispatcher_DeliversInOrder(t *testing.T) {
	cons := &captureConsumer{}
	d := NewDispatcher(8, nil, cons)

	d.ResultPublished(1, "2024", "Term 1")
	d.ResultPublished(2, "2024", "Term 1")
	d.Close() // drains the buffer

	if len(cons.events) != 2 {
		t.Fatalf("delivered %d events, want 2", len(cons.events))
	}
	if cons.events[0].StudentID != 1 || cons.events[1].StudentID != 2 {
		t.Fatalf("events out of order: %v", cons.events)
	}
}

func TestDispatcher_NeverBlocksWhenFull(t *testing.T) {
	// No consumer goroutine can drain a buffer of one fast enough for a
	// burst; the publish side must stay non-blocking regardless.
	block := make(chan struct{})
	d := NewDispatcher(1, nil, consumerFunc(func(Event) { <-block }))

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			d.ResultPublished(int64(i), "2024", "Term 1")
		}
		close(done)
	}()
	<-done // would hang here if publishing blocked
	close(block)
	d.Close()
}

type consumerFunc func(Event)

func (f consumerFunc) Consume(ev Event) { f(ev) }
