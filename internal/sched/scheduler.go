package sched

import (
	"container/heap"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
)

// Kind names a class of deadline. At most one timer per (arena, kind) is
// pending at any time; scheduling the same key again replaces the earlier
// deadline, and the replaced callback never fires.
type Kind string

const (
	KindGameStartCountdown Kind = "game_start_countdown"
	KindIdleReap           Kind = "idle_reap"
	KindRoundDeadline      Kind = "round_deadline"
	KindAgentCycle         Kind = "agent_cycle"
)

// Key identifies a pending timer.
type Key struct {
	Arena common.Address
	Kind  Kind
}

// DefaultTick is the dispatcher resolution. Callbacks fire on the first tick
// at or after their deadline, never before it.
const DefaultTick = 1 * time.Second

type entry struct {
	key     Key
	firesAt time.Time
	fn      func()
	seq     uint64
}

type entryHeap []*entry

func (h entryHeap) Len() int            { return len(h) }
func (h entryHeap) Less(i, j int) bool  { return h[i].firesAt.Before(h[j].firesAt) }
func (h entryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x interface{}) { *h = append(*h, x.(*entry)) }
func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Scheduler drives every deadline in the orchestrator from a single
// dispatcher goroutine. Entries live in a min-heap ordered by deadline; a
// key map carries the live sequence number per key so replaced or cancelled
// entries are skipped lazily when they surface.
//
// Callbacks run sequentially on the dispatcher goroutine and must be short:
// they enqueue work elsewhere, they never block.
type Scheduler struct {
	clk  clock.Clock
	tick time.Duration

	mu      sync.Mutex
	heap    entryHeap
	pending map[Key]uint64
	seq     uint64
	stopped bool

	wake chan struct{}
	quit chan struct{}
	done chan struct{}
}

func New(clk clock.Clock, tick time.Duration) *Scheduler {
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Scheduler{
		clk:     clk,
		tick:    tick,
		pending: map[Key]uint64{},
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Now returns the scheduler's view of current time.
func (s *Scheduler) Now() time.Time {
	return s.clk.Now()
}

// Start launches the dispatcher goroutine.
func (s *Scheduler) Start() {
	ticker := s.clk.Ticker(s.tick)
	go s.run(ticker)
}

// Stop halts the dispatcher. Pending timers never fire after Stop returns;
// scheduling after Stop is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	close(s.quit)
	<-s.done
}

// Schedule registers fn to run once at or after firesAt. It replaces any
// pending timer with the same key; the replaced callback does not fire.
func (s *Scheduler) Schedule(key Key, firesAt time.Time, fn func()) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.seq++
	e := &entry{key: key, firesAt: firesAt, fn: fn, seq: s.seq}
	s.pending[key] = e.seq
	heap.Push(&s.heap, e)
	s.mu.Unlock()

	// Nudge the dispatcher so deadlines already in the past fire without
	// waiting for the next tick.
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Cancel removes the pending timer for key. Cancelling an absent key is a
// no-op.
func (s *Scheduler) Cancel(key Key) {
	s.mu.Lock()
	delete(s.pending, key)
	s.mu.Unlock()
}

func (s *Scheduler) run(ticker *clock.Ticker) {
	defer close(s.done)
	defer ticker.Stop()

	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
		case <-s.wake:
		}
		for _, fn := range s.collectDue(s.clk.Now()) {
			fn()
		}
	}
}

// collectDue pops every live entry whose deadline has passed. Stale entries
// (replaced or cancelled) are discarded as they surface.
func (s *Scheduler) collectDue(now time.Time) []func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []func()
	for len(s.heap) > 0 {
		head := s.heap[0]
		live, ok := s.pending[head.key]
		if !ok || live != head.seq {
			heap.Pop(&s.heap)
			continue
		}
		if head.firesAt.After(now) {
			break
		}
		heap.Pop(&s.heap)
		delete(s.pending, head.key)
		due = append(due, head.fn)
	}
	return due
}
