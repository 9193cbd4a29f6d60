// Package eventqueue implements the N-level priority ring buffer
// queue described in spec.md section 4.2: non-blocking push with
// drop-on-full, blocking strict-priority pop, FIFO within a level.
package eventqueue

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Recorder receives observability callbacks; metrics.Collector
// implements it. A nil Recorder is valid and simply does nothing.
type Recorder interface {
	Dropped(kind Kind)
	Depth(kind Kind, n int)
}

type noopRecorder struct{}

func (noopRecorder) Dropped(Kind)    {}
func (noopRecorder) Depth(Kind, int) {}

// Queue is a multi-producer, single-consumer priority queue: any
// number of goroutines may Push, but Pop is intended to be called by
// exactly one FSM-consumer goroutine per spec.md section 4.2/5.
type Queue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	rings    [NumLevels]*ring[Event]
	log      zerolog.Logger
	recorder Recorder
}

// New constructs a queue with one ring of the given capacity per
// priority level. capacity must be a power of two (spec.md's default
// is MAX_EVENTS = 32).
func New(capacity int, log zerolog.Logger, recorder Recorder) *Queue {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	q := &Queue{log: log, recorder: recorder}
	q.cond = sync.NewCond(&q.mu)
	for i := range q.rings {
		q.rings[i] = newRing[Event](capacity)
	}
	return q
}

// Push enqueues ev at the priority level implied by ev.Kind. It never
// blocks: if that level's ring is full, the event is dropped and a
// warning is logged (spec.md section 4.2, I2).
func (q *Queue) Push(ev Event) {
	level := PriorityOf(ev.Kind)
	q.mu.Lock()
	ok := q.rings[level].PushBack(ev)
	depth := q.rings[level].Len()
	q.mu.Unlock()

	q.recorder.Depth(ev.Kind, depth)
	if !ok {
		q.recorder.Dropped(ev.Kind)
		q.log.Warn().Stringer("kind", ev.Kind).Msg("eventqueue: ring full, dropping event")
		return
	}
	// Every stored push, Shutdown included, wakes a blocked Pop. A
	// dropped push returns above without waking: its ring is full, so
	// Pop already has an event to return.
	q.cond.Broadcast()
}

// Pop blocks until some level is non-empty (or ctx is done), then
// returns the first element of the lowest-numbered non-empty level.
// FIFO order is preserved within a level.
func (q *Queue) Pop(ctx context.Context) (Event, bool) {
	done := make(chan struct{})
	stopWaiting := context.AfterFunc(ctx, func() {
		close(done)
		// Wake up any goroutine blocked in cond.Wait so it can observe
		// ctx being done.
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer stopWaiting()

	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		for level := range q.rings {
			if ev, ok := q.rings[level].PopFront(); ok {
				q.recorder.Depth(ev.Kind, q.rings[level].Len())
				return ev, true
			}
		}
		select {
		case <-ctx.Done():
			return Event{}, false
		default:
		}
		q.cond.Wait()
	}
}

// Len returns the total number of pending events across all levels,
// primarily useful for tests.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, r := range q.rings {
		n += r.Len()
	}
	return n
}
