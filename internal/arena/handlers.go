package arena

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"clawarena/internal/game"
	"clawarena/internal/payout"
	"clawarena/internal/sched"
	"clawarena/internal/signer"
)

// handleJoin admits a player and re-arms the lobby timers. The escrow
// pre-check is advisory: a chain read failure degrades to accepting the
// join rather than blocking the lobby.
func (o *Orchestrator) handleJoin(ctx context.Context, addr, player common.Address) (*Arena, error) {
	now := o.clk.Now()

	if o.chain != nil {
		ok, err := o.chain.HasPlayerJoined(ctx, addr, player)
		switch {
		case err != nil:
			o.log.Warn("escrow check failed, admitting optimistically",
				"arena", addr.Hex(), "player", player.Hex(), "err", err)
		case !ok:
			return nil, ErrEntryNotEscrowed
		}
	}

	updated, err := o.casUpdate(ctx, addr, func(a *Arena) error {
		return a.Join(player, now)
	})
	if err != nil {
		return nil, err
	}

	switch n := len(updated.Players); {
	case n == int(updated.MaxPlayers):
		// Full lobby: the idle reaper and registration deadline stand down,
		// the countdown starts.
		o.sch.Cancel(sched.Key{Arena: addr, Kind: sched.KindIdleReap})
		o.sch.Cancel(sched.Key{Arena: addr, Kind: sched.KindRoundDeadline})
		o.scheduleTimer(addr, sched.KindGameStartCountdown, now.Add(o.cfg.Countdown))
	case n <= 1:
		o.scheduleTimer(addr, sched.KindIdleReap, now.Add(o.cfg.IdleReap))
	}

	if err := o.store.UpdateLeaderboard(ctx, player, LeaderboardDelta{Played: 1}); err != nil {
		o.log.Error("leaderboard update failed", "player", player.Hex(), "err", err)
	}
	o.met.JoinAccepted()
	o.log.Info("player joined",
		"arena", addr.Hex(),
		"player", player.Hex(),
		"players", len(updated.Players),
		"maxPlayers", updated.MaxPlayers,
	)
	return updated, nil
}

// handleMove applies a move inside the CAS update so the engine mutation and
// the persisted snapshot commit together.
func (o *Orchestrator) handleMove(ctx context.Context, addr, player common.Address, mv game.Move) (*game.MoveResult, error) {
	now := o.clk.Now()

	var (
		res      *game.MoveResult
		finished bool
	)
	updated, err := o.casUpdate(ctx, addr, func(a *Arena) error {
		if a.GameStatus != StatusActive || a.Game == nil {
			return game.ErrNotActive
		}
		r, err := a.Game.Submit(player, mv, now)
		if err != nil {
			return err
		}
		res = r
		finished = false
		if r.RoundResolved {
			finished = a.Game.AdvanceRound(now, o.cfg.MoveTimeout)
			if finished {
				return a.FinishGame(now)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if res.RoundResolved {
		if finished {
			o.sch.Cancel(sched.Key{Arena: addr, Kind: sched.KindRoundDeadline})
			o.postAsync(addr, event{kind: evFinalize})
		} else {
			o.scheduleTimer(addr, sched.KindRoundDeadline, updated.Game.RoundDeadline)
		}
	}
	o.met.MoveAccepted(string(updated.GameType))
	return res, nil
}

// handleTimer routes a fired timer. Stale timers are common after state has
// moved on; every branch re-checks the arena before acting and otherwise
// drops the event.
func (o *Orchestrator) handleTimer(ctx context.Context, addr common.Address, kind sched.Kind) error {
	a, _, err := o.store.LoadArena(ctx, addr)
	if err != nil {
		o.log.Error("timer load failed", "arena", addr.Hex(), "kind", kind, "err", err)
		return nil
	}
	if a.Frozen || a.Terminal() {
		return nil
	}

	switch kind {
	case sched.KindIdleReap:
		return o.handleIdleReap(ctx, a)
	case sched.KindGameStartCountdown:
		return o.handleCountdown(ctx, a)
	case sched.KindRoundDeadline:
		return o.handleRoundDeadline(ctx, a)
	default:
		return nil
	}
}

// handleIdleReap fires while the lobby is starving: zero or one players
// after the reap window. With quorum already present it short-circuits
// straight into the countdown path.
func (o *Orchestrator) handleIdleReap(ctx context.Context, a *Arena) error {
	if a.IsClosed || a.GameStatus != StatusWaiting {
		return nil
	}
	now := o.clk.Now()
	if len(a.Players) >= MinPlayers {
		if _, err := o.casUpdate(ctx, a.Address, func(cur *Arena) error {
			return cur.Close(now)
		}); err != nil {
			return err
		}
		o.scheduleTimer(a.Address, sched.KindGameStartCountdown, now)
		o.log.Info("lobby closed by idle reaper", "arena", a.Address.Hex(), "players", len(a.Players))
		return nil
	}
	return o.cancelArena(ctx, a.Address, "idle_reap")
}

// handleCountdown creates the game and opens the learning phase.
func (o *Orchestrator) handleCountdown(ctx context.Context, a *Arena) error {
	if !a.IsClosed || a.GameStatus != StatusWaiting {
		return nil
	}
	now := o.clk.Now()
	gameID := uuid.NewString()

	updated, err := o.casUpdate(ctx, a.Address, func(cur *Arena) error {
		g, err := game.New(gameID, cur.GameType, game.DeriveSeed(cur.Address, cur.CreatedAt), cur.Players)
		if err != nil {
			return invariantViolation{err: fmt.Errorf("create game: %w", err)}
		}
		return cur.BeginLearning(g, now)
	})
	if err != nil {
		return err
	}

	o.scheduleTimer(a.Address, sched.KindRoundDeadline, now.Add(o.cfg.Learning))
	o.log.Info("learning phase started",
		"arena", a.Address.Hex(),
		"game", updated.Game.ID,
		"gameType", updated.GameType,
		"players", len(updated.Players),
	)
	return nil
}

// handleRoundDeadline serves three phases with one timer kind: the lobby's
// registration deadline, the end of learning, and per-round move deadlines.
// The kinds never overlap in time, so the arena state disambiguates.
func (o *Orchestrator) handleRoundDeadline(ctx context.Context, a *Arena) error {
	now := o.clk.Now()

	switch {
	case !a.IsClosed && a.GameStatus == StatusWaiting:
		// Registration deadline.
		if d := a.RegistrationDeadline; d == nil || now.Before(*d) {
			return nil
		}
		if len(a.Players) >= MinPlayers {
			if _, err := o.casUpdate(ctx, a.Address, func(cur *Arena) error {
				return cur.Close(now)
			}); err != nil {
				return err
			}
			o.sch.Cancel(sched.Key{Arena: a.Address, Kind: sched.KindIdleReap})
			o.scheduleTimer(a.Address, sched.KindGameStartCountdown, now.Add(o.cfg.Countdown))
			return nil
		}
		return o.cancelArena(ctx, a.Address, "registration_deadline")

	case a.GameStatus == StatusLearning:
		updated, err := o.casUpdate(ctx, a.Address, func(cur *Arena) error {
			return cur.BeginActive(now, o.cfg.MoveTimeout)
		})
		if err != nil {
			return err
		}
		o.scheduleTimer(a.Address, sched.KindRoundDeadline, updated.Game.RoundDeadline)
		o.log.Info("game active", "arena", a.Address.Hex(), "round", updated.Game.Round)
		return nil

	case a.GameStatus == StatusActive:
		return o.advanceOnDeadline(ctx, a.Address, now)

	default:
		return nil
	}
}

// advanceOnDeadline force-resolves the current round: absent players get
// engine auto-moves, then the round settles and the game either continues
// or finishes.
func (o *Orchestrator) advanceOnDeadline(ctx context.Context, addr common.Address, now time.Time) error {
	var finished bool
	updated, err := o.casUpdate(ctx, addr, func(cur *Arena) error {
		if cur.GameStatus != StatusActive || cur.Game == nil {
			return game.ErrNotActive
		}
		if now.Before(cur.Game.RoundDeadline) {
			// Stale timer; a fresher one is pending.
			return game.ErrNotActive
		}
		finished = cur.Game.AdvanceRound(now, o.cfg.MoveTimeout)
		if finished {
			return cur.FinishGame(now)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, game.ErrNotActive) {
			return nil
		}
		return err
	}

	if finished {
		o.postAsync(addr, event{kind: evFinalize})
	} else {
		o.scheduleTimer(addr, sched.KindRoundDeadline, updated.Game.RoundDeadline)
	}
	return nil
}

// cancelArena terminates a starved lobby. A sole paid player gets a refund
// intent; executing it on-chain is out of scope here.
func (o *Orchestrator) cancelArena(ctx context.Context, addr common.Address, reason string) error {
	now := o.clk.Now()
	updated, err := o.casUpdate(ctx, addr, func(cur *Arena) error {
		return cur.Cancel(now)
	})
	if err != nil {
		return err
	}

	if len(updated.Players) == 1 {
		player := updated.Players[0]
		intent := RefundIntent{
			ID:        uuid.NewString(),
			Arena:     addr,
			Player:    player,
			Amount:    updated.EntryFee,
			Reason:    reason,
			CreatedAt: now,
		}
		if err := o.store.AppendRefundIntent(ctx, intent); err != nil {
			o.log.Error("refund intent persist failed", "arena", addr.Hex(), "err", err)
		}
		if o.chain != nil {
			if err := o.chain.RequestRefund(ctx, addr, player, updated.EntryFee); err != nil {
				o.log.Error("refund request failed", "arena", addr.Hex(), "player", player.Hex(), "err", err)
			}
		}
	}

	o.cancelTimers(addr)
	o.met.Cancelled()
	o.log.Info("arena cancelled", "arena", addr.Hex(), "reason", reason, "players", len(updated.Players))
	o.publishActiveCount(ctx)
	if o.onCancelled != nil {
		o.onCancelled(addr, now)
	}
	o.retireActor(addr)
	return nil
}

// handleFinalize runs the full winner-processing path: compute the payout
// split, obtain the operator signature over the distribution, and commit
// signature, payouts and nonce in one CAS write. Payout or validation
// failures here are internal bugs and freeze the arena; signer transport
// failures leave it finished and retryable.
func (o *Orchestrator) handleFinalize(ctx context.Context, addr common.Address) (*Arena, error) {
	now := o.clk.Now()

	a, _, err := o.store.LoadArena(ctx, addr)
	if err != nil {
		return nil, err
	}
	if a.Frozen {
		return nil, ErrFrozen
	}
	if a.IsFinalized {
		return nil, ErrAlreadyFinalized
	}
	if a.GameStatus != StatusFinished {
		return nil, ErrNotFinished
	}

	winners := a.Winners
	split, err := payout.Compute(a.PayoutScheme, a.EntryFee, uint32(len(a.Players)), a.ProtocolFeeBps, len(winners))
	if err != nil {
		return nil, invariantViolation{err: fmt.Errorf("payout split: %w", err)}
	}

	nonce := a.UsedNonce + 1
	view := signer.ArenaView{
		Address:        a.Address,
		Players:        a.Players,
		EntryFee:       a.EntryFee,
		ProtocolFeeBps: a.ProtocolFeeBps,
		Closed:         a.IsClosed,
		Finished:       a.GameStatus == StatusFinished,
		Finalized:      a.IsFinalized,
		UsedNonce:      a.UsedNonce,
	}
	auth, err := o.fin.Authorize(ctx, view, winners, split.Payouts, nonce)
	if err != nil {
		o.met.SignerFailure(signer.Code(err))
		if errors.Is(err, signer.ErrServiceUnavailable) {
			o.log.Error("finalize signing unavailable, arena stays retryable", "arena", addr.Hex(), "err", err)
			return nil, err
		}
		return nil, invariantViolation{err: fmt.Errorf("finalize authorization: %w", err)}
	}

	updated, err := o.casUpdate(ctx, addr, func(cur *Arena) error {
		return cur.ApplyFinalization(auth.Signature, split.Payouts, nonce, now)
	})
	if err != nil {
		return nil, err
	}

	for rank, w := range winners {
		rec := PayoutRecord{
			Arena:     addr,
			Winner:    w,
			Amount:    split.Payouts[rank],
			Rank:      rank,
			Nonce:     nonce,
			CreatedAt: now,
		}
		if err := o.store.AppendPayoutRecord(ctx, rec); err != nil {
			o.log.Error("payout record persist failed", "arena", addr.Hex(), "winner", w.Hex(), "err", err)
		}
		if err := o.store.UpdateLeaderboard(ctx, w, LeaderboardDelta{Wins: 1, Payout: split.Payouts[rank]}); err != nil {
			o.log.Error("leaderboard update failed", "player", w.Hex(), "err", err)
		}
	}

	o.cancelTimers(addr)
	o.met.Finalized()
	o.log.Info("arena finalized",
		"arena", addr.Hex(),
		"nonce", nonce,
		"winners", len(winners),
		"pool", split.Pool.Dec(),
		"fee", split.Fee.Dec(),
	)
	o.publishActiveCount(ctx)
	if o.onFinalized != nil {
		o.onFinalized(addr, now)
	}
	o.retireActor(addr)
	return updated, nil
}
