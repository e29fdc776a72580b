package agent

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"

	"clawarena/internal/arena"
	"clawarena/internal/game"
	"clawarena/internal/metrics"
	"clawarena/internal/sched"
)

// Creator is the slice of the orchestrator the agent needs.
type Creator interface {
	CreateArena(ctx context.Context, p arena.Params) (*arena.Arena, error)
}

type Config struct {
	Network  arena.Network
	Treasury common.Address

	MinActive int
	MaxActive int

	PeakStartHour int // UTC, inclusive
	PeakEndHour   int // UTC, exclusive

	CreateRetries int
	RetryDelay    time.Duration
	FailThreshold int
	PauseCycles   int

	// CycleInterval is the regular heartbeat between observe/decide passes;
	// finalizations and cancellations pull cycles in ahead of it.
	CycleInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		Network:       arena.NetworkTestnet,
		MinActive:     2,
		MaxActive:     5,
		PeakStartHour: 14,
		PeakEndHour:   23,
		CreateRetries: 3,
		RetryDelay:    time.Minute,
		FailThreshold: 3,
		PauseCycles:   2,
		CycleInterval: 30 * time.Minute,
	}
}

var (
	nameAdjectives = []string{"Neon", "Golden", "Midnight", "Turbo", "Lucky", "Rusty", "Cosmic", "Electric"}
	nameNouns      = []string{"Claw", "Gauntlet", "Showdown", "Rumble", "Circuit", "Vault", "Arcade", "Scramble"}
	gameTypes      = []game.Type{game.TypeClaw, game.TypePrediction, game.TypeSpeed, game.TypeBlackjack}
)

// Agent runs the host cycle: observe the fleet, decide whether demand
// justifies a new tournament, pick a tier and create it.
type Agent struct {
	cfg    Config
	store  arena.Store
	create Creator
	sch    *sched.Scheduler
	clk    clock.Clock
	log    *slog.Logger
	met    *metrics.Set

	mu     sync.Mutex
	rng    *rand.Rand
	fails  map[Tier]int
	paused map[Tier]int
	seq    uint64
	nextAt time.Time
}

func New(cfg Config, store arena.Store, create Creator, sch *sched.Scheduler, clk clock.Clock, log *slog.Logger, met *metrics.Set, rng *rand.Rand) *Agent {
	if log == nil {
		log = slog.Default()
	}
	return &Agent{
		cfg:    cfg,
		store:  store,
		create: create,
		sch:    sch,
		clk:    clk,
		log:    log,
		met:    met,
		rng:    rng,
		fails:  map[Tier]int{},
		paused: map[Tier]int{},
	}
}

// cycleKey is the scheduler slot for the agent's own heartbeat; the zero
// arena address never collides with a real arena.
func cycleKey() sched.Key {
	return sched.Key{Arena: common.Address{}, Kind: sched.KindAgentCycle}
}

// Start arms the first cycle shortly after boot.
func (ag *Agent) Start() {
	ag.scheduleAt(ag.clk.Now().Add(time.Second))
}

// NotifyFinalized publishes the next-tournament countdown after every
// finalize: 5-15 minutes out during peak hours, 15-30 off-peak. The cycle
// is scheduled for that instant so the countdown is actually honored.
func (ag *Agent) NotifyFinalized(_ common.Address, at time.Time) {
	hour := at.UTC().Hour()
	peak := hour >= ag.cfg.PeakStartHour && hour < ag.cfg.PeakEndHour

	ag.mu.Lock()
	var delay time.Duration
	if peak {
		delay = time.Duration(5+ag.rng.Intn(10)) * time.Minute
	} else {
		delay = time.Duration(15+ag.rng.Intn(15)) * time.Minute
	}
	next := at.Add(delay)
	ag.nextAt = next
	ag.mu.Unlock()

	ag.log.Info("next tournament announced", "at", next.UTC(), "peak", peak)
	ag.scheduleAt(next)
}

// NotifyCancelled nudges a cycle in shortly after a cancellation so a fleet
// that dropped below the minimum is refilled promptly.
func (ag *Agent) NotifyCancelled(_ common.Address, at time.Time) {
	ag.scheduleAt(at.Add(30 * time.Second))
}

// NextTournamentAt reports the most recently announced countdown target.
func (ag *Agent) NextTournamentAt() (time.Time, bool) {
	ag.mu.Lock()
	defer ag.mu.Unlock()
	return ag.nextAt, !ag.nextAt.IsZero()
}

func (ag *Agent) scheduleAt(at time.Time) {
	ag.sch.Schedule(cycleKey(), at, func() {
		go ag.RunCycle(context.Background())
	})
}

// RunCycle executes one observe/decide/create pass and arms the next one.
func (ag *Agent) RunCycle(ctx context.Context) {
	obs, err := ag.observe(ctx)
	if err != nil {
		ag.log.Error("agent observation failed", "err", err)
		ag.scheduleAt(ag.clk.Now().Add(time.Minute))
		return
	}

	ag.mu.Lock()
	for tier, n := range ag.paused {
		if n > 0 {
			ag.paused[tier] = n - 1
		}
	}
	ag.mu.Unlock()

	create, reason, conf := ag.decide(obs)
	if create {
		if p, ok := ag.pickPolicy(obs); ok {
			ag.createArena(ctx, p, reason, conf)
		} else {
			ag.log.Info("agent: no eligible tier", "reason", reason, "active", obs.active)
		}
	}

	ag.scheduleAt(ag.clk.Now().Add(ag.cfg.CycleInterval))
}

type observation struct {
	active  int
	peak    bool
	weekend bool
	// fill is the 24h average lobby fill rate per tier, over closed lobbies.
	fill        map[Tier]float64
	overallFill float64
}

func (ag *Agent) observe(ctx context.Context) (observation, error) {
	arenas, err := ag.store.ListArenas(ctx)
	if err != nil {
		return observation{}, fmt.Errorf("list arenas: %w", err)
	}
	now := ag.clk.Now().UTC()
	obs := observation{
		peak:    now.Hour() >= ag.cfg.PeakStartHour && now.Hour() < ag.cfg.PeakEndHour,
		weekend: now.Weekday() == time.Saturday || now.Weekday() == time.Sunday,
		fill:    map[Tier]float64{},
	}

	type acc struct {
		sum float64
		n   int
	}
	byTier := map[Tier]*acc{}
	var total acc
	cutoff := now.Add(-24 * time.Hour)

	for _, a := range arenas {
		if !a.Terminal() && !a.Frozen {
			obs.active++
		}
		if !a.IsClosed || a.CreatedAt.Before(cutoff) || a.MaxPlayers == 0 {
			continue
		}
		fill := float64(len(a.Players)) / float64(a.MaxPlayers)
		total.sum += fill
		total.n++
		if tier, ok := TierFor(a.EntryFee); ok {
			t := byTier[tier]
			if t == nil {
				t = &acc{}
				byTier[tier] = t
			}
			t.sum += fill
			t.n++
		}
	}
	for tier, t := range byTier {
		obs.fill[tier] = t.sum / float64(t.n)
	}
	if total.n > 0 {
		obs.overallFill = total.sum / float64(total.n)
	}
	return obs, nil
}

func (ag *Agent) decide(obs observation) (bool, string, float64) {
	if obs.active >= ag.cfg.MaxActive {
		return false, "at_capacity", 0
	}
	if obs.active < ag.cfg.MinActive {
		return true, "below_min_active", 1.0
	}
	if obs.peak && obs.active < 4 {
		return true, "peak_demand", 0.8
	}
	if obs.overallFill >= 0.7 {
		return true, "high_fill_rate", obs.overallFill
	}
	return false, "demand_satisfied", 0
}

func (ag *Agent) eligible(p Policy, obs observation) bool {
	if p.PeakOnly && !obs.peak {
		return false
	}
	if p.WeekendOnly && !obs.weekend {
		return false
	}
	if p.MinFill > 0 {
		fill, ok := obs.fill[p.FillRef]
		if !ok || fill < p.MinFill {
			return false
		}
	}
	ag.mu.Lock()
	defer ag.mu.Unlock()
	return ag.paused[p.Tier] == 0
}

// pickPolicy draws a weighted random tier among the currently eligible rows.
func (ag *Agent) pickPolicy(obs observation) (Policy, bool) {
	var pool []Policy
	total := 0
	for _, p := range Policies() {
		if ag.eligible(p, obs) {
			pool = append(pool, p)
			total += p.Weight
		}
	}
	if total == 0 {
		return Policy{}, false
	}
	ag.mu.Lock()
	roll := ag.rng.Intn(total)
	ag.mu.Unlock()
	for _, p := range pool {
		if roll < p.Weight {
			return p, true
		}
		roll -= p.Weight
	}
	return pool[len(pool)-1], true
}

func (ag *Agent) buildParams(p Policy, reason string) arena.Params {
	ag.mu.Lock()
	ag.seq++
	name := fmt.Sprintf("%s %s #%d",
		nameAdjectives[ag.rng.Intn(len(nameAdjectives))],
		nameNouns[ag.rng.Intn(len(nameNouns))],
		ag.seq,
	)
	entry := sampleEntry(ag.rng, p)
	maxPlayers := p.MaxPlayers[ag.rng.Intn(len(p.MaxPlayers))]
	gameType := gameTypes[ag.rng.Intn(len(gameTypes))]
	ag.mu.Unlock()

	return arena.Params{
		Name:           name,
		EntryFee:       entry,
		MaxPlayers:     maxPlayers,
		ProtocolFeeBps: p.FeeBps,
		Treasury:       ag.cfg.Treasury,
		GameType:       gameType,
		Network:        ag.cfg.Network,
		CreatedBy:      arena.OriginAgent,
		CreationReason: reason,
	}
}

// createArena attempts the creation with spaced retries; a tier that keeps
// failing is benched for a few cycles.
func (ag *Agent) createArena(ctx context.Context, p Policy, reason string, conf float64) {
	params := ag.buildParams(p, reason)

	var lastErr error
	for attempt := 0; attempt < ag.cfg.CreateRetries; attempt++ {
		if attempt > 0 {
			t := ag.clk.Timer(ag.cfg.RetryDelay)
			<-t.C
		}
		a, err := ag.create.CreateArena(ctx, params)
		if err == nil {
			ag.mu.Lock()
			ag.fails[p.Tier] = 0
			ag.mu.Unlock()
			ag.met.AgentCreated(string(p.Tier))
			ag.log.Info("agent created arena",
				"arena", a.Address.Hex(),
				"tier", p.Tier,
				"name", a.Name,
				"entryFee", a.EntryFee.Dec(),
				"gameType", a.GameType,
				"reason", reason,
				"confidence", conf,
			)
			return
		}
		lastErr = err
	}

	ag.mu.Lock()
	ag.fails[p.Tier]++
	if ag.fails[p.Tier] >= ag.cfg.FailThreshold {
		ag.paused[p.Tier] = ag.cfg.PauseCycles
		ag.fails[p.Tier] = 0
	}
	ag.mu.Unlock()
	ag.log.Error("agent create failed", "tier", p.Tier, "err", lastErr)
}
