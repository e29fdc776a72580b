package arena

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"clawarena/internal/game"
	"clawarena/internal/metrics"
	"clawarena/internal/sched"
	"clawarena/internal/signer"
)

// Config tunes the orchestrator's deadlines and plumbing.
type Config struct {
	ChainID uint64

	Countdown   time.Duration
	Learning    time.Duration
	IdleReap    time.Duration
	MoveTimeout time.Duration

	MailboxDepth int
	CASRetries   int
	DrainGrace   time.Duration
}

func DefaultConfig() Config {
	return Config{
		Countdown:    CountdownSeconds * time.Second,
		Learning:     LearningSeconds * time.Second,
		IdleReap:     IdleReapSeconds * time.Second,
		MoveTimeout:  10 * time.Second,
		MailboxDepth: 128,
		CASRetries:   5,
		DrainGrace:   10 * time.Second,
	}
}

// Deps are the injected collaborators: the only sources of time, I/O and
// non-determinism.
type Deps struct {
	Store     Store
	Sched     *sched.Scheduler
	Clock     clock.Clock
	Finalizer *signer.Finalizer
	Chain     Chain         // optional
	Log       *slog.Logger  // optional
	Metrics   *metrics.Set  // optional
}

type eventKind int

const (
	evJoin eventKind = iota
	evMove
	evFinalize
	evTimer
)

type event struct {
	ctx    context.Context
	kind   eventKind
	player common.Address
	move   game.Move
	timer  sched.Kind
	reply  chan eventResult
}

type eventResult struct {
	val any
	err error
}

type actor struct {
	mbox chan event
	stop chan struct{}
}

// Orchestrator multiplexes arena actors: every event for one arena —
// external command, timer callback, engine transition — passes through that
// arena's mailbox and is handled strictly sequentially. Timer callbacks
// enqueue events; they never mutate arenas directly.
type Orchestrator struct {
	cfg   Config
	store Store
	sch   *sched.Scheduler
	clk   clock.Clock
	fin   *signer.Finalizer
	chain Chain
	log   *slog.Logger
	met   *metrics.Set

	onFinalized func(common.Address, time.Time)
	onCancelled func(common.Address, time.Time)

	mu     sync.Mutex
	actors map[common.Address]*actor
	closed bool

	quit chan struct{}
	wg   sync.WaitGroup
}

func NewOrchestrator(cfg Config, d Deps) *Orchestrator {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		cfg:    cfg,
		store:  d.Store,
		sch:    d.Sched,
		clk:    d.Clock,
		fin:    d.Finalizer,
		chain:  d.Chain,
		log:    log,
		met:    d.Metrics,
		actors: map[common.Address]*actor{},
		quit:   make(chan struct{}),
	}
}

// SetFinalizedHook registers a callback invoked after each successful
// finalize. The agent uses it to arm the next-tournament countdown.
func (o *Orchestrator) SetFinalizedHook(fn func(common.Address, time.Time)) { o.onFinalized = fn }

// SetCancelledHook registers a callback invoked after each cancellation.
func (o *Orchestrator) SetCancelledHook(fn func(common.Address, time.Time)) { o.onCancelled = fn }

// CreateArena validates params, persists the new arena and arms its lobby
// timers. A zero address is synthesized from the name and creation instant.
func (o *Orchestrator) CreateArena(ctx context.Context, p Params) (*Arena, error) {
	now := o.clk.Now()
	if p.Address == (common.Address{}) {
		p.Address = synthesizeAddress(p.Name, now)
	}
	a, err := New(p, now)
	if err != nil {
		return nil, err
	}
	if _, err := o.actorFor(a.Address); err != nil {
		return nil, err
	}
	if err := o.store.InsertArena(ctx, a); err != nil {
		return nil, err
	}

	o.scheduleTimer(a.Address, sched.KindIdleReap, now.Add(o.cfg.IdleReap))
	if d := a.RegistrationDeadline; d != nil {
		o.scheduleTimer(a.Address, sched.KindRoundDeadline, *d)
	}

	o.log.Info("arena created",
		"arena", a.Address.Hex(),
		"name", a.Name,
		"gameType", a.GameType,
		"entryFee", a.EntryFee.Dec(),
		"maxPlayers", a.MaxPlayers,
		"createdBy", a.CreatedBy,
	)
	o.publishActiveCount(ctx)
	return a, nil
}

// Join admits a player into an open lobby.
func (o *Orchestrator) Join(ctx context.Context, addr, player common.Address) (*Arena, error) {
	res, err := o.dispatch(ctx, addr, event{kind: evJoin, player: player})
	if err != nil {
		return nil, err
	}
	return res.(*Arena), nil
}

// SubmitMove applies a player's move to the arena's active game.
func (o *Orchestrator) SubmitMove(ctx context.Context, addr, player common.Address, mv game.Move) (*game.MoveResult, error) {
	res, err := o.dispatch(ctx, addr, event{kind: evMove, player: player, move: mv})
	if err != nil {
		return nil, err
	}
	return res.(*game.MoveResult), nil
}

// Finalize runs the process_winners path: payout computation, signature,
// write-through. It is also enqueued automatically when a game finishes.
func (o *Orchestrator) Finalize(ctx context.Context, addr common.Address) (*Arena, error) {
	res, err := o.dispatch(ctx, addr, event{kind: evFinalize})
	if err != nil {
		return nil, err
	}
	return res.(*Arena), nil
}

// Restore rebuilds actors and timers for every non-terminal arena after a
// restart. Deadlines already in the past fire immediately.
func (o *Orchestrator) Restore(ctx context.Context) error {
	arenas, err := o.store.ListArenas(ctx)
	if err != nil {
		return fmt.Errorf("list arenas: %w", err)
	}
	now := o.clk.Now()
	for _, a := range arenas {
		if a.Terminal() || a.Frozen {
			continue
		}
		if _, err := o.actorFor(a.Address); err != nil {
			return err
		}
		switch {
		case !a.IsClosed && a.GameStatus == StatusWaiting:
			o.scheduleTimer(a.Address, sched.KindIdleReap, now.Add(o.cfg.IdleReap))
			if d := a.RegistrationDeadline; d != nil {
				o.scheduleTimer(a.Address, sched.KindRoundDeadline, *d)
			}
		case a.IsClosed && a.GameStatus == StatusWaiting:
			o.scheduleTimer(a.Address, sched.KindGameStartCountdown, now.Add(o.cfg.Countdown))
		case a.GameStatus == StatusLearning:
			end := now
			if a.LearningStartedAt != nil {
				end = a.LearningStartedAt.Add(o.cfg.Learning)
			}
			o.scheduleTimer(a.Address, sched.KindRoundDeadline, end)
		case a.GameStatus == StatusActive && a.Game != nil:
			o.scheduleTimer(a.Address, sched.KindRoundDeadline, a.Game.RoundDeadline)
		case a.GameStatus == StatusFinished && !a.IsFinalized:
			o.postAsync(a.Address, event{kind: evFinalize})
		}
	}
	o.publishActiveCount(ctx)
	return nil
}

// Close stops accepting events, drains mailboxes up to the configured grace
// period, then halts the actors. The scheduler is stopped first so no new
// timer callbacks arrive mid-drain.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	actors := make([]*actor, 0, len(o.actors))
	for _, a := range o.actors {
		actors = append(actors, a)
	}
	o.mu.Unlock()

	deadline := time.Now().Add(o.cfg.DrainGrace)
	for time.Now().Before(deadline) {
		drained := true
		for _, a := range actors {
			if len(a.mbox) > 0 {
				drained = false
				break
			}
		}
		if drained {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	close(o.quit)
	o.wg.Wait()
}

// ---- actor plumbing ----

func (o *Orchestrator) actorFor(addr common.Address) (*actor, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil, ErrShuttingDown
	}
	if a, ok := o.actors[addr]; ok {
		return a, nil
	}
	a := &actor{
		mbox: make(chan event, o.cfg.MailboxDepth),
		stop: make(chan struct{}),
	}
	o.actors[addr] = a
	o.wg.Add(1)
	go o.runActor(addr, a)
	return a, nil
}

// retireActor releases a terminal arena's goroutine and mailbox. A later
// event for the same address gets a fresh actor whose handlers bounce off
// the persisted terminal state.
func (o *Orchestrator) retireActor(addr common.Address) {
	o.mu.Lock()
	a, ok := o.actors[addr]
	if ok {
		delete(o.actors, addr)
	}
	o.mu.Unlock()
	if ok {
		close(a.stop)
	}
}

func (o *Orchestrator) runActor(addr common.Address, a *actor) {
	defer o.wg.Done()
	serve := func(ev event) {
		val, err := o.safeHandle(addr, ev)
		if ev.reply != nil {
			ev.reply <- eventResult{val: val, err: err}
		}
	}
	for {
		select {
		case <-o.quit:
			return
		case <-a.stop:
			// Retired. Answer stragglers that raced the retirement, then
			// exit; terminal-state guards reject them all.
			for {
				select {
				case ev := <-a.mbox:
					serve(ev)
				case <-time.After(50 * time.Millisecond):
					return
				case <-o.quit:
					return
				}
			}
		case ev := <-a.mbox:
			serve(ev)
		}
	}
}

// dispatch sends an event to the arena's mailbox and waits for its result.
// The caller's context bounds both the enqueue and the wait.
func (o *Orchestrator) dispatch(ctx context.Context, addr common.Address, ev event) (any, error) {
	a, err := o.actorFor(addr)
	if err != nil {
		return nil, err
	}
	ev.ctx = ctx
	ev.reply = make(chan eventResult, 1)

	select {
	case a.mbox <- ev:
	case <-a.stop:
		return nil, ErrTerminal
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrDeadlineExceeded, ctx.Err())
	case <-o.quit:
		return nil, ErrShuttingDown
	}

	select {
	case res := <-ev.reply:
		return res.val, res.err
	case <-a.stop:
		// The handler may retire the actor before its reply lands; give the
		// flush a moment before concluding the arena is gone.
		select {
		case res := <-ev.reply:
			return res.val, res.err
		case <-time.After(100 * time.Millisecond):
			return nil, ErrTerminal
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrDeadlineExceeded, ctx.Err())
		case <-o.quit:
			return nil, ErrShuttingDown
		}
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrDeadlineExceeded, ctx.Err())
	case <-o.quit:
		return nil, ErrShuttingDown
	}
}

// postAsync enqueues a fire-and-forget event from outside the caller path
// (timer callbacks, the actor itself).
func (o *Orchestrator) postAsync(addr common.Address, ev event) {
	go func() {
		a, err := o.actorFor(addr)
		if err != nil {
			return
		}
		select {
		case a.mbox <- ev:
		case <-a.stop:
		case <-o.quit:
		}
	}()
}

func (o *Orchestrator) scheduleTimer(addr common.Address, kind sched.Kind, at time.Time) {
	o.sch.Schedule(sched.Key{Arena: addr, Kind: kind}, at, func() {
		o.met.TimerFired(string(kind))
		o.postAsync(addr, event{kind: evTimer, timer: kind})
	})
}

func (o *Orchestrator) cancelTimers(addr common.Address) {
	for _, kind := range []sched.Kind{
		sched.KindIdleReap,
		sched.KindGameStartCountdown,
		sched.KindRoundDeadline,
	} {
		o.sch.Cancel(sched.Key{Arena: addr, Kind: kind})
	}
}

// safeHandle runs one event with panic isolation: a panicking handler
// freezes its arena and never takes the fleet down with it.
func (o *Orchestrator) safeHandle(addr common.Address, ev event) (val any, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.freeze(addr, fmt.Sprintf("panic: %v", r))
			val, err = nil, ErrFrozen
		}
	}()

	ctx := ev.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	switch ev.kind {
	case evJoin:
		val, err = o.handleJoin(ctx, addr, ev.player)
	case evMove:
		val, err = o.handleMove(ctx, addr, ev.player, ev.move)
	case evFinalize:
		val, err = o.handleFinalize(ctx, addr)
	case evTimer:
		err = o.handleTimer(ctx, addr, ev.timer)
	default:
		err = fmt.Errorf("unknown event kind %d", ev.kind)
	}

	var iv invariantViolation
	if errors.As(err, &iv) {
		o.freeze(addr, iv.Error())
		err = ErrFrozen
	}
	return val, err
}

// invariantViolation marks an internal bug: the arena is frozen rather than
// retried.
type invariantViolation struct{ err error }

func (e invariantViolation) Error() string { return e.err.Error() }
func (e invariantViolation) Unwrap() error { return e.err }

// freeze persists the diagnostic and blocks all further mutation of the
// arena. Errors freezing an already-broken arena are logged, not retried.
func (o *Orchestrator) freeze(addr common.Address, reason string) {
	o.log.Error("arena frozen", "arena", addr.Hex(), "reason", reason)
	o.met.ArenaFrozen()

	ctx := context.Background()
	_, ver, err := o.store.LoadArena(ctx, addr)
	if err != nil {
		o.log.Error("freeze: load failed", "arena", addr.Hex(), "err", err)
		return
	}
	if _, err := o.store.UpdateArena(ctx, addr, ver, func(a *Arena) error {
		a.Frozen = true
		a.FrozenReason = reason
		return nil
	}); err != nil {
		o.log.Error("freeze: persist failed", "arena", addr.Hex(), "err", err)
	}
	o.cancelTimers(addr)
}

// casUpdate applies mutate through the store's versioned update, retrying
// bounded times on conflict. Invariants are checked on every commit.
func (o *Orchestrator) casUpdate(ctx context.Context, addr common.Address, mutate func(*Arena) error) (*Arena, error) {
	for attempt := 0; ; attempt++ {
		cur, ver, err := o.store.LoadArena(ctx, addr)
		if err != nil {
			return nil, err
		}
		if cur.Frozen {
			return nil, ErrFrozen
		}
		var updated *Arena
		_, err = o.store.UpdateArena(ctx, addr, ver, func(a *Arena) error {
			if err := mutate(a); err != nil {
				return err
			}
			if err := a.CheckInvariants(); err != nil {
				return invariantViolation{err: err}
			}
			updated = a
			return nil
		})
		if err != nil {
			if errors.Is(err, ErrConflict) && attempt < o.cfg.CASRetries {
				continue
			}
			return nil, err
		}
		return updated, nil
	}
}

func (o *Orchestrator) publishActiveCount(ctx context.Context) {
	arenas, err := o.store.ListArenas(ctx)
	if err != nil {
		return
	}
	n := 0
	for _, a := range arenas {
		if !a.Terminal() && !a.Frozen {
			n++
		}
	}
	o.met.SetActiveArenas(n)
}

// synthesizeAddress derives an off-chain arena address from the name, the
// creation instant and a random component.
func synthesizeAddress(name string, now time.Time) common.Address {
	id := uuid.New()
	var nano [8]byte
	for i := 0; i < 8; i++ {
		nano[i] = byte(now.UnixNano() >> (8 * i))
	}
	return common.BytesToAddress(crypto.Keccak256([]byte(name), nano[:], id[:])[12:])
}
