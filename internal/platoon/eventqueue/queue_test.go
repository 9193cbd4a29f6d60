package eventqueue

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestQueue(capacity int) *Queue {
	return New(capacity, zerolog.Nop(), nil)
}

// TestPushDropsOnFull exercises I2: pushing to a full ring leaves the
// queue size unchanged and the push is simply dropped.
func TestPushDropsOnFull(t *testing.T) {
	q := newTestQueue(2)
	q.Push(Event{Kind: KindTick})
	q.Push(Event{Kind: KindTick})
	before := q.Len()
	q.Push(Event{Kind: KindTick}) // ring for KindTick is full; dropped
	after := q.Len()
	if before != after {
		t.Fatalf("expected queue length unchanged on drop: before=%d after=%d", before, after)
	}
}

// TestPopPriorityOrder exercises I1: pop always returns the most
// urgent (lowest-numbered) pending level first.
func TestPopPriorityOrder(t *testing.T) {
	q := newTestQueue(4)
	q.Push(Event{Kind: KindTick})      // priority 7
	q.Push(Event{Kind: KindUserInput}) // priority 8
	q.Push(Event{Kind: KindEmergency}) // priority 0

	ctx := context.Background()
	ev, ok := q.Pop(ctx)
	if !ok || ev.Kind != KindEmergency {
		t.Fatalf("expected Emergency first, got %+v ok=%v", ev, ok)
	}
	ev, ok = q.Pop(ctx)
	if !ok || ev.Kind != KindTick {
		t.Fatalf("expected Tick second, got %+v ok=%v", ev, ok)
	}
	ev, ok = q.Pop(ctx)
	if !ok || ev.Kind != KindUserInput {
		t.Fatalf("expected UserInput third, got %+v ok=%v", ev, ok)
	}
}

// TestFIFOWithinLevel checks ordering within a single priority level.
func TestFIFOWithinLevel(t *testing.T) {
	q := newTestQueue(4)
	q.Push(Event{Kind: KindTick, Payload: 1})
	q.Push(Event{Kind: KindTick, Payload: 2})

	ctx := context.Background()
	ev1, _ := q.Pop(ctx)
	ev2, _ := q.Pop(ctx)
	if ev1.Payload.(int) != 1 || ev2.Payload.(int) != 2 {
		t.Fatalf("expected FIFO order 1,2 got %v,%v", ev1.Payload, ev2.Payload)
	}
}

// TestPriorityPreemption is S6: push Tick x32 (capacity) to saturate
// its ring, then push one Emergency; the next pop must return the
// Emergency, not a Tick.
func TestPriorityPreemption(t *testing.T) {
	q := newTestQueue(32)
	for i := 0; i < 32; i++ {
		q.Push(Event{Kind: KindTick})
	}
	q.Push(Event{Kind: KindEmergency})

	ev, ok := q.Pop(context.Background())
	if !ok || ev.Kind != KindEmergency {
		t.Fatalf("expected Emergency to preempt saturated Tick ring, got %+v", ev)
	}
}

// TestPopBlocksUntilPush verifies Pop blocks when empty and wakes on
// a later Push.
func TestPopBlocksUntilPush(t *testing.T) {
	q := newTestQueue(4)
	result := make(chan Event, 1)
	go func() {
		ev, ok := q.Pop(context.Background())
		if ok {
			result <- ev
		}
	}()

	select {
	case <-result:
		t.Fatal("pop returned before any push")
	case <-time.After(50 * time.Millisecond):
	}

	q.Push(Event{Kind: KindShutdown})
	select {
	case ev := <-result:
		if ev.Kind != KindShutdown {
			t.Fatalf("unexpected kind: %v", ev.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("pop did not wake after push")
	}
}

// TestPopCancelledByContext verifies that cancelling the context wakes
// a Pop blocked on an empty queue and makes it report failure.
func TestPopCancelledByContext(t *testing.T) {
	q := newTestQueue(4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_, ok := q.Pop(ctx)
		if ok {
			t.Error("expected Pop to fail after cancellation")
		}
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pop did not return after context cancellation")
	}
}
