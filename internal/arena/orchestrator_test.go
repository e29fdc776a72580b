package arena_test

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"clawarena/internal/arena"
	"clawarena/internal/game"
	"clawarena/internal/sched"
	"clawarena/internal/signer"
	"clawarena/internal/store"
)

func addrN(n byte) common.Address {
	var a common.Address
	a[19] = n
	return a
}

type refundCall struct {
	arena  common.Address
	player common.Address
	amount *uint256.Int
}

// stubChain simulates the escrow adapter: a nil escrowed set admits
// everyone, otherwise only listed players.
type stubChain struct {
	mu       sync.Mutex
	escrowed map[common.Address]bool
	refunds  []refundCall
}

func (c *stubChain) HasPlayerJoined(_ context.Context, _, player common.Address) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.escrowed == nil {
		return true, nil
	}
	return c.escrowed[player], nil
}

func (c *stubChain) ObserveFinalization(context.Context, common.Address) (*arena.FinalizationReceipt, error) {
	return nil, nil
}

func (c *stubChain) RequestRefund(_ context.Context, a, player common.Address, amount *uint256.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refunds = append(c.refunds, refundCall{arena: a, player: player, amount: amount})
	return nil
}

func (c *stubChain) refundCalls() []refundCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]refundCall(nil), c.refunds...)
}

type env struct {
	clk   *clock.Mock
	sch   *sched.Scheduler
	st    *store.Memory
	orch  *arena.Orchestrator
	chain *stubChain
	local *signer.LocalSigner
}

func newEnv(t *testing.T, chain *stubChain) *env {
	t.Helper()
	clk := clock.NewMock()
	clk.Set(time.Unix(1_700_000_000, 0).UTC())

	sch := sched.New(clk, time.Second)
	sch.Start()
	t.Cleanup(sch.Stop)

	st := store.NewMemory(clk)

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	local := signer.NewLocalSigner(key)

	cfg := arena.DefaultConfig()
	cfg.ChainID = 31337

	deps := arena.Deps{
		Store:     st,
		Sched:     sch,
		Clock:     clk,
		Finalizer: signer.NewFinalizer(cfg.ChainID, local),
	}
	if chain != nil {
		deps.Chain = chain
	}
	orch := arena.NewOrchestrator(cfg, deps)
	t.Cleanup(orch.Close)

	return &env{clk: clk, sch: sch, st: st, orch: orch, chain: chain, local: local}
}

func (e *env) waitArena(t *testing.T, addr common.Address, desc string, pred func(*arena.Arena) bool) *arena.Arena {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	var last *arena.Arena
	for time.Now().Before(deadline) {
		a, _, err := e.st.LoadArena(context.Background(), addr)
		if err == nil {
			last = a
			if pred(a) {
				return a
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s; last state: %+v", desc, last)
	return nil
}

func baseParams(name string, maxPlayers uint32) arena.Params {
	return arena.Params{
		Name:           name,
		EntryFee:       uint256.NewInt(1_000_000_000_000_000), // 10^15
		MaxPlayers:     maxPlayers,
		ProtocolFeeBps: 250,
		Treasury:       addrN(0xEE),
		GameType:       game.TypeClaw,
		Network:        arena.NetworkTestnet,
		CreatedBy:      arena.OriginAdmin,
	}
}

// Full deadline-driven lifecycle: two players fill the lobby, nobody moves,
// every phase advances on its timer, and the finalize math lands on the
// documented numbers for a 2x10^15 pool at 250 bps.
func TestLifecycleDeadlineDriven(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)

	a, err := e.orch.CreateArena(ctx, baseParams("grand claw", 2))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	addr := a.Address

	p1, p2 := addrN(1), addrN(2)
	if _, err := e.orch.Join(ctx, addr, p1); err != nil {
		t.Fatalf("join p1: %v", err)
	}
	if _, err := e.orch.Join(ctx, addr, p2); err != nil {
		t.Fatalf("join p2: %v", err)
	}

	// Lobby is full: countdown to learning.
	e.clk.Add(11 * time.Second)
	e.waitArena(t, addr, "learning phase", func(a *arena.Arena) bool {
		return a.GameStatus == arena.StatusLearning
	})

	e.clk.Add(61 * time.Second)
	active := e.waitArena(t, addr, "active phase", func(a *arena.Arena) bool {
		return a.GameStatus == arena.StatusActive
	})
	if active.Game == nil || active.Game.Round != 1 {
		t.Fatalf("active game state mismatch: %+v", active.Game)
	}

	// Nobody grabs; the round deadline auto-plays both players and the
	// single claw round finishes the game, which self-finalizes.
	e.clk.Add(61 * time.Second)
	fin := e.waitArena(t, addr, "finalization", func(a *arena.Arena) bool {
		return a.IsFinalized
	})

	if fin.GameStatus != arena.StatusFinished {
		t.Fatalf("status = %q, want finished", fin.GameStatus)
	}
	if fin.UsedNonce != 1 {
		t.Fatalf("nonce = %d, want 1", fin.UsedNonce)
	}
	if len(fin.Winners) != 2 || len(fin.Payouts) != 2 {
		t.Fatalf("winners/payouts = %d/%d, want 2/2", len(fin.Winners), len(fin.Payouts))
	}
	want := uint256.NewInt(975_000_000_000_000) // (2e15 - 5e13) / 2
	for i, p := range fin.Payouts {
		if !p.Eq(want) {
			t.Fatalf("payout[%d] = %s, want %s", i, p.Dec(), want.Dec())
		}
	}

	// The signature must verify against the operator key over the exact
	// finalize digest.
	if len(fin.FinalizeSignature) != 65 {
		t.Fatalf("signature length = %d, want 65", len(fin.FinalizeSignature))
	}
	if v := fin.FinalizeSignature[64]; v != 27 && v != 28 {
		t.Fatalf("signature v = %d, want 27 or 28", v)
	}
	digest := signer.FinalizeDigest(31337, addr, fin.Winners, fin.Payouts, fin.UsedNonce)
	raw := append([]byte(nil), fin.FinalizeSignature...)
	raw[64] -= 27
	pub, err := crypto.SigToPub(digest[:], raw)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if got := crypto.PubkeyToAddress(*pub); got != e.local.Address() {
		t.Fatalf("recovered signer %s, want %s", got.Hex(), e.local.Address().Hex())
	}

	// Write-through artifacts.
	recs := e.st.PayoutRecords()
	if len(recs) != 2 {
		t.Fatalf("payout records = %d, want 2", len(recs))
	}
	for _, rec := range recs {
		if rec.Arena != addr || rec.Nonce != 1 || !rec.Amount.Eq(want) {
			t.Fatalf("payout record mismatch: %+v", rec)
		}
	}
	rows, err := e.st.Leaderboard(ctx, 0)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("leaderboard rows = %d, want 2", len(rows))
	}
	for _, row := range rows {
		if row.Wins != 1 || row.TournamentsPlayed != 1 || !row.TotalPayouts.Eq(want) {
			t.Fatalf("leaderboard row mismatch: %+v", row)
		}
	}

	// Terminal arenas reject everything.
	if _, err := e.orch.Join(ctx, addr, addrN(3)); !errors.Is(err, arena.ErrTerminal) {
		t.Fatalf("join after finalize: got %v, want ErrTerminal", err)
	}
	if _, err := e.orch.Finalize(ctx, addr); !errors.Is(err, arena.ErrAlreadyFinalized) {
		t.Fatalf("second finalize: got %v, want ErrAlreadyFinalized", err)
	}
}

// Move-driven prediction game: both players submit every round, rounds
// resolve immediately without waiting for deadlines.
func TestLifecycleMoveDriven(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)

	p := baseParams("oracle duel", 2)
	p.GameType = game.TypePrediction
	a, err := e.orch.CreateArena(ctx, p)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	addr := a.Address

	p1, p2 := addrN(1), addrN(2)
	for _, player := range []common.Address{p1, p2} {
		if _, err := e.orch.Join(ctx, addr, player); err != nil {
			t.Fatalf("join %s: %v", player.Hex(), err)
		}
	}
	e.clk.Add(11 * time.Second)
	e.waitArena(t, addr, "learning", func(a *arena.Arena) bool { return a.GameStatus == arena.StatusLearning })
	e.clk.Add(61 * time.Second)
	e.waitArena(t, addr, "active", func(a *arena.Arena) bool { return a.GameStatus == arena.StatusActive })

	for round := 1; round <= 3; round++ {
		cur := e.waitArena(t, addr, "round open", func(a *arena.Arena) bool {
			return a.GameStatus == arena.StatusActive && a.Game.Round == round
		})
		ch := cur.Game.Challenge.Prediction
		if ch == nil {
			t.Fatalf("round %d: no prediction challenge", round)
		}
		if _, err := e.orch.SubmitMove(ctx, addr, p1, game.Move{Prediction: &game.PredictionMove{Guess: ch.Min}}); err != nil {
			t.Fatalf("round %d p1 move: %v", round, err)
		}
		// Same round, duplicate submission is rejected.
		if _, err := e.orch.SubmitMove(ctx, addr, p1, game.Move{Prediction: &game.PredictionMove{Guess: ch.Min}}); !errors.Is(err, game.ErrAlreadySubmitted) {
			t.Fatalf("round %d duplicate: got %v, want ErrAlreadySubmitted", round, err)
		}
		res, err := e.orch.SubmitMove(ctx, addr, p2, game.Move{Prediction: &game.PredictionMove{Guess: ch.Max}})
		if err != nil {
			t.Fatalf("round %d p2 move: %v", round, err)
		}
		if !res.RoundResolved {
			t.Fatalf("round %d should resolve on the final submission", round)
		}
	}

	fin := e.waitArena(t, addr, "finalization", func(a *arena.Arena) bool { return a.IsFinalized })
	if len(fin.Game.History) != 3 {
		t.Fatalf("history length = %d, want 3", len(fin.Game.History))
	}

	// Conservation: payouts sum to pool minus fee.
	sum := new(uint256.Int)
	for _, p := range fin.Payouts {
		sum.Add(sum, p)
	}
	want := uint256.NewInt(1_950_000_000_000_000)
	if !sum.Eq(want) {
		t.Fatalf("payout sum = %s, want %s", sum.Dec(), want.Dec())
	}
	// Moves against a finished arena bounce.
	if _, err := e.orch.SubmitMove(ctx, addr, p1, game.Move{Prediction: &game.PredictionMove{Guess: 1}}); err == nil {
		t.Fatal("move after finalize should fail")
	}
}

func TestJoinGuards(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)

	a, err := e.orch.CreateArena(ctx, baseParams("guards", 2))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	addr := a.Address

	if _, err := e.orch.Join(ctx, addr, addrN(1)); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := e.orch.Join(ctx, addr, addrN(1)); !errors.Is(err, arena.ErrAlreadyJoined) {
		t.Fatalf("rejoin: got %v, want ErrAlreadyJoined", err)
	}
	if _, err := e.orch.Join(ctx, addr, addrN(2)); err != nil {
		t.Fatalf("join second: %v", err)
	}
	if _, err := e.orch.Join(ctx, addr, addrN(3)); !errors.Is(err, arena.ErrArenaFull) {
		t.Fatalf("overfill: got %v, want ErrArenaFull", err)
	}

	if _, err := e.orch.Join(ctx, addrN(0xAB), addrN(1)); !errors.Is(err, arena.ErrNotFound) {
		t.Fatalf("unknown arena: got %v, want ErrNotFound", err)
	}
	if _, err := e.orch.Finalize(ctx, addr); !errors.Is(err, arena.ErrNotFinished) {
		t.Fatalf("early finalize: got %v, want ErrNotFinished", err)
	}
}

func TestEscrowPreCheck(t *testing.T) {
	ctx := context.Background()
	chain := &stubChain{escrowed: map[common.Address]bool{addrN(1): true}}
	e := newEnv(t, chain)

	a, err := e.orch.CreateArena(ctx, baseParams("escrowed", 4))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := e.orch.Join(ctx, a.Address, addrN(1)); err != nil {
		t.Fatalf("escrowed join: %v", err)
	}
	if _, err := e.orch.Join(ctx, a.Address, addrN(2)); !errors.Is(err, arena.ErrEntryNotEscrowed) {
		t.Fatalf("unescrowed join: got %v, want ErrEntryNotEscrowed", err)
	}
}

func TestIdleReapEmptyLobby(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)

	a, err := e.orch.CreateArena(ctx, baseParams("ghost town", 4))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	e.clk.Add(21 * time.Second)
	got := e.waitArena(t, a.Address, "cancellation", func(a *arena.Arena) bool {
		return a.GameStatus == arena.StatusCancelled
	})
	if !got.IsClosed {
		t.Fatal("cancelled arena should be closed")
	}
	if n := len(e.st.RefundIntents()); n != 0 {
		t.Fatalf("empty lobby produced %d refund intents, want 0", n)
	}
}

func TestIdleReapSoloRefund(t *testing.T) {
	ctx := context.Background()
	chain := &stubChain{}
	e := newEnv(t, chain)

	a, err := e.orch.CreateArena(ctx, baseParams("lonely", 4))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	player := addrN(7)
	if _, err := e.orch.Join(ctx, a.Address, player); err != nil {
		t.Fatalf("join: %v", err)
	}

	// Join re-arms the reaper, so cancellation lands 20s after the join.
	e.clk.Add(21 * time.Second)
	e.waitArena(t, a.Address, "cancellation", func(a *arena.Arena) bool {
		return a.GameStatus == arena.StatusCancelled
	})

	intents := e.st.RefundIntents()
	if len(intents) != 1 {
		t.Fatalf("refund intents = %d, want 1", len(intents))
	}
	in := intents[0]
	if in.Player != player || in.Reason != "idle_reap" || !in.Amount.Eq(uint256.NewInt(1_000_000_000_000_000)) {
		t.Fatalf("refund intent mismatch: %+v", in)
	}
	calls := chain.refundCalls()
	if len(calls) != 1 || calls[0].player != player {
		t.Fatalf("chain refund calls mismatch: %+v", calls)
	}
}

// With quorum but an unfilled lobby the reaper closes registration and the
// tournament proceeds instead of dying.
func TestIdleReapQuorumShortCircuit(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)

	a, err := e.orch.CreateArena(ctx, baseParams("quorum", 4))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, p := range []common.Address{addrN(1), addrN(2)} {
		if _, err := e.orch.Join(ctx, a.Address, p); err != nil {
			t.Fatalf("join: %v", err)
		}
	}

	e.clk.Add(21 * time.Second)
	e.waitArena(t, a.Address, "close + learning", func(a *arena.Arena) bool {
		return a.GameStatus == arena.StatusLearning
	})
}

func TestRegistrationDeadline(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)

	// Quorum at the deadline: lobby closes.
	p := baseParams("deadline quorum", 8)
	d := e.clk.Now().Add(15 * time.Second)
	p.RegistrationDeadline = &d
	a, err := e.orch.CreateArena(ctx, p)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, pl := range []common.Address{addrN(1), addrN(2), addrN(3)} {
		if _, err := e.orch.Join(ctx, a.Address, pl); err != nil {
			t.Fatalf("join: %v", err)
		}
	}
	e.clk.Add(16 * time.Second)
	got := e.waitArena(t, a.Address, "deadline close", func(a *arena.Arena) bool {
		return a.IsClosed
	})
	if got.GameStatus == arena.StatusCancelled {
		t.Fatal("quorum arena cancelled at deadline")
	}
	if len(got.Players) != 3 {
		t.Fatalf("players fixed at %d, want 3", len(got.Players))
	}
	if _, err := e.orch.Join(ctx, a.Address, addrN(4)); !errors.Is(err, arena.ErrArenaClosed) {
		t.Fatalf("join after close: got %v, want ErrArenaClosed", err)
	}

	// Below quorum at the deadline: cancelled with a refund intent for the
	// sole player.
	p2 := baseParams("deadline starved", 8)
	d2 := e.clk.Now().Add(15 * time.Second)
	p2.RegistrationDeadline = &d2
	b, err := e.orch.CreateArena(ctx, p2)
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if _, err := e.orch.Join(ctx, b.Address, addrN(9)); err != nil {
		t.Fatalf("join second: %v", err)
	}
	e.clk.Add(16 * time.Second)
	e.waitArena(t, b.Address, "deadline cancel", func(a *arena.Arena) bool {
		return a.GameStatus == arena.StatusCancelled
	})
	intents := e.st.RefundIntents()
	if len(intents) != 1 || intents[0].Reason != "registration_deadline" {
		t.Fatalf("refund intents mismatch: %+v", intents)
	}
}

// Terminal arenas must release their actor goroutines; a daemon cycling
// tournaments continuously would otherwise grow one stuck goroutine per
// finished or cancelled arena.
func TestRetiredActorsReleaseGoroutines(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)

	base := runtime.NumGoroutine()
	const n = 30
	addrs := make([]common.Address, 0, n)
	for i := 0; i < n; i++ {
		a, err := e.orch.CreateArena(ctx, baseParams(fmt.Sprintf("ephemeral %d", i), 4))
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		addrs = append(addrs, a.Address)
	}
	if g := runtime.NumGoroutine(); g < base+n {
		t.Fatalf("expected an actor goroutine per lobby, have %d over baseline %d", g-base, base)
	}

	// The idle reaper cancels every empty lobby.
	e.clk.Add(21 * time.Second)
	for _, addr := range addrs {
		e.waitArena(t, addr, "cancellation", func(a *arena.Arena) bool {
			return a.GameStatus == arena.StatusCancelled
		})
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if runtime.NumGoroutine() <= base+3 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("retired actors still hold goroutines: %d over baseline %d",
		runtime.NumGoroutine()-base, base)
}

// buildFinishedArena assembles an arena whose game already ran to its final
// ranking but is not yet finalized, bypassing the timers.
func buildFinishedArena(t *testing.T, e *env, addr common.Address) *arena.Arena {
	t.Helper()
	now := e.clk.Now()
	p := baseParams("contested", 2)
	p.Address = addr
	a, err := arena.New(p, now)
	if err != nil {
		t.Fatalf("new arena: %v", err)
	}
	for _, pl := range []common.Address{addrN(1), addrN(2)} {
		if err := a.Join(pl, now); err != nil {
			t.Fatalf("join: %v", err)
		}
	}
	if err := a.Close(now); err != nil {
		t.Fatalf("close: %v", err)
	}
	g, err := game.New("g-contested", a.GameType, game.DeriveSeed(a.Address, a.CreatedAt), a.Players)
	if err != nil {
		t.Fatalf("new game: %v", err)
	}
	if err := a.BeginLearning(g, now); err != nil {
		t.Fatalf("begin learning: %v", err)
	}
	if err := a.BeginActive(now, 10*time.Second); err != nil {
		t.Fatalf("begin active: %v", err)
	}
	for i := 0; i < 16; i++ {
		if a.Game.AdvanceRound(now, 10*time.Second) {
			break
		}
	}
	if err := a.FinishGame(now); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if err := e.st.InsertArena(context.Background(), a); err != nil {
		t.Fatalf("insert: %v", err)
	}
	return a
}

// Two goroutines race to finalize the same finished arena: exactly one
// succeeds, and exactly one signature, nonce and payout set is recorded.
func TestConcurrentFinalizeOnce(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)
	a := buildFinishedArena(t, e, addrN(0xF1))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.orch.Finalize(ctx, a.Address)
		}(i)
	}
	wg.Wait()

	okCount := 0
	for _, err := range errs {
		switch {
		case err == nil:
			okCount++
		case errors.Is(err, arena.ErrAlreadyFinalized), errors.Is(err, arena.ErrTerminal):
		default:
			t.Fatalf("unexpected finalize error: %v", err)
		}
	}
	if okCount != 1 {
		t.Fatalf("finalize successes = %d, want exactly 1", okCount)
	}

	fin, _, err := e.st.LoadArena(ctx, a.Address)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !fin.IsFinalized || fin.UsedNonce != 1 {
		t.Fatalf("finalized=%t nonce=%d, want true/1", fin.IsFinalized, fin.UsedNonce)
	}
	if got := len(e.st.PayoutRecords()); got != len(fin.Winners) {
		t.Fatalf("payout records = %d, want %d", got, len(fin.Winners))
	}
}

// The last lobby seat is contested by two simultaneous joins: one wins, the
// other bounces with the full-lobby rejection, and the roster stays exact.
func TestConcurrentJoinLastSeat(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)

	a, err := e.orch.CreateArena(ctx, baseParams("last seat", 2))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := e.orch.Join(ctx, a.Address, addrN(1)); err != nil {
		t.Fatalf("first join: %v", err)
	}

	players := []common.Address{addrN(2), addrN(3)}
	var wg sync.WaitGroup
	errs := make([]error, len(players))
	for i := range players {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.orch.Join(ctx, a.Address, players[i])
		}(i)
	}
	wg.Wait()

	var okCount, fullCount int
	for _, err := range errs {
		switch {
		case err == nil:
			okCount++
		case errors.Is(err, arena.ErrArenaFull):
			fullCount++
		default:
			t.Fatalf("unexpected join error: %v", err)
		}
	}
	if okCount != 1 || fullCount != 1 {
		t.Fatalf("join outcomes = %d ok / %d full, want 1/1", okCount, fullCount)
	}
	got, _, err := e.st.LoadArena(ctx, a.Address)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got.Players) != 2 {
		t.Fatalf("roster = %d players, want 2", len(got.Players))
	}
}

// Restart recovery: a new orchestrator over the same store re-arms the
// learning deadline and the tournament still finishes.
func TestRestoreResumesLearning(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)

	a, err := e.orch.CreateArena(ctx, baseParams("resumed", 2))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	addr := a.Address
	for _, p := range []common.Address{addrN(1), addrN(2)} {
		if _, err := e.orch.Join(ctx, addr, p); err != nil {
			t.Fatalf("join: %v", err)
		}
	}
	e.clk.Add(11 * time.Second)
	e.waitArena(t, addr, "learning", func(a *arena.Arena) bool { return a.GameStatus == arena.StatusLearning })

	// Simulate a crash: drop the orchestrator and scheduler, keep the store.
	e.orch.Close()
	e.sch.Stop()

	sch2 := sched.New(e.clk, time.Second)
	sch2.Start()
	t.Cleanup(sch2.Stop)
	cfg := arena.DefaultConfig()
	cfg.ChainID = 31337
	orch2 := arena.NewOrchestrator(cfg, arena.Deps{
		Store:     e.st,
		Sched:     sch2,
		Clock:     e.clk,
		Finalizer: signer.NewFinalizer(cfg.ChainID, e.local),
	})
	t.Cleanup(orch2.Close)
	if err := orch2.Restore(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}

	e.clk.Add(61 * time.Second)
	e.waitArena(t, addr, "active after restore", func(a *arena.Arena) bool {
		return a.GameStatus == arena.StatusActive
	})
	e.clk.Add(61 * time.Second)
	e.waitArena(t, addr, "finalized after restore", func(a *arena.Arena) bool {
		return a.IsFinalized
	})
}
