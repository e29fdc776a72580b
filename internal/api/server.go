// Package api exposes the daemon's HTTP surface: the command endpoint,
// read-only arena and leaderboard views, rulebooks, metrics and health.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"clawarena/internal/arena"
	"clawarena/internal/command"
	"clawarena/internal/game"
	"clawarena/internal/payout"
	"clawarena/internal/signer"
)

const maxBodyBytes = 1 << 20

// Orchestrator is the slice of the arena orchestrator the API drives.
type Orchestrator interface {
	CreateArena(ctx context.Context, p arena.Params) (*arena.Arena, error)
	Join(ctx context.Context, addr, player common.Address) (*arena.Arena, error)
	SubmitMove(ctx context.Context, addr, player common.Address, mv game.Move) (*game.MoveResult, error)
	Finalize(ctx context.Context, addr common.Address) (*arena.Arena, error)
}

// Host is the slice of the autonomous agent the API reads: the announced
// next-tournament countdown.
type Host interface {
	NextTournamentAt() (time.Time, bool)
}

type Server struct {
	orch  Orchestrator
	store arena.Store
	host  Host
	log   *slog.Logger
}

func New(orch Orchestrator, store arena.Store, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{orch: orch, store: store, log: log}
}

// SetHost wires the agent's countdown into the read surface. Optional; the
// daemon may run with the agent disabled.
func (s *Server) SetHost(h Host) { s.host = h }

// Handler builds the route table. reg may be nil to skip /metrics.
func (s *Server) Handler(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/command", s.handleCommand)
	mux.HandleFunc("GET /v1/arenas", s.handleListArenas)
	mux.HandleFunc("GET /v1/arenas/{addr}", s.handleGetArena)
	mux.HandleFunc("GET /v1/leaderboard", s.handleLeaderboard)
	mux.HandleFunc("GET /v1/next", s.handleNextTournament)
	mux.HandleFunc("GET /v1/rules/{game}", s.handleRulebook)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	if reg != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	return mux
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("read body: %w", err))
		return
	}
	env, err := command.DecodeEnvelope(body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	ctx := r.Context()
	switch env.Type {
	case command.TypeArenaCreate:
		s.commandCreate(ctx, w, env)
	case command.TypeArenaJoin:
		s.commandJoin(ctx, w, env)
	case command.TypeArenaMove:
		s.commandMove(ctx, w, env)
	case command.TypeArenaFinalize:
		s.commandFinalize(ctx, w, env)
	default:
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("unknown command type %q", env.Type))
	}
}

func (s *Server) commandCreate(ctx context.Context, w http.ResponseWriter, env command.Envelope) {
	var cmd command.ArenaCreateCmd
	if err := env.Decode(&cmd); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	entry, err := uint256.FromDecimal(cmd.EntryFee)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("entryFee %q: %w", cmd.EntryFee, err))
		return
	}
	p := arena.Params{
		Name:           cmd.Name,
		EntryFee:       entry,
		MaxPlayers:     cmd.MaxPlayers,
		ProtocolFeeBps: cmd.ProtocolFeeBps,
		GameType:       game.Type(cmd.GameType),
		Network:        arena.Network(cmd.Network),
		CreatedBy:      arena.OriginAdmin,
		PayoutScheme:   payout.Scheme(cmd.PayoutScheme),
	}
	if p.Network == "" {
		p.Network = arena.NetworkTestnet
	}
	if cmd.Treasury != "" {
		if !common.IsHexAddress(cmd.Treasury) {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("treasury %q is not an address", cmd.Treasury))
			return
		}
		p.Treasury = common.HexToAddress(cmd.Treasury)
	}
	if cmd.RegistrationDeadline > 0 {
		d := time.Unix(cmd.RegistrationDeadline, 0).UTC()
		p.RegistrationDeadline = &d
	}

	a, err := s.orch.CreateArena(ctx, p)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, scrubArena(a))
}

func (s *Server) commandJoin(ctx context.Context, w http.ResponseWriter, env command.Envelope) {
	var cmd command.ArenaJoinCmd
	if err := env.Decode(&cmd); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	addr, player, err := parseAddrPair(cmd.Arena, cmd.Player)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	a, err := s.orch.Join(ctx, addr, player)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, scrubArena(a))
}

func (s *Server) commandMove(ctx context.Context, w http.ResponseWriter, env command.Envelope) {
	var cmd command.ArenaMoveCmd
	if err := env.Decode(&cmd); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	addr, player, err := parseAddrPair(cmd.Arena, cmd.Player)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	var mv game.Move
	if err := json.Unmarshal(cmd.Move, &mv); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid move: %w", err))
		return
	}
	res, err := s.orch.SubmitMove(ctx, addr, player, mv)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) commandFinalize(ctx context.Context, w http.ResponseWriter, env command.Envelope) {
	var cmd command.ArenaFinalizeCmd
	if err := env.Decode(&cmd); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if !common.IsHexAddress(cmd.Arena) {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("arena %q is not an address", cmd.Arena))
		return
	}
	a, err := s.orch.Finalize(ctx, common.HexToAddress(cmd.Arena))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, scrubArena(a))
}

func (s *Server) handleListArenas(w http.ResponseWriter, r *http.Request) {
	arenas, err := s.store.ListArenas(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	out := make([]*arena.Arena, len(arenas))
	for i, a := range arenas {
		out[i] = scrubArena(a)
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetArena(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("addr")
	if !common.IsHexAddress(raw) {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("%q is not an address", raw))
		return
	}
	a, _, err := s.store.LoadArena(r.Context(), common.HexToAddress(raw))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, scrubArena(a))
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.Leaderboard(r.Context(), 100)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if rows == nil {
		rows = []arena.LeaderboardRow{}
	}
	s.writeJSON(w, http.StatusOK, rows)
}

// handleNextTournament serves the agent's announced countdown; null when no
// tournament has finalized yet or the agent is disabled.
func (s *Server) handleNextTournament(w http.ResponseWriter, _ *http.Request) {
	var body struct {
		NextTournamentAt *time.Time `json:"nextTournamentAt"`
	}
	if s.host != nil {
		if at, ok := s.host.NextTournamentAt(); ok {
			at = at.UTC()
			body.NextTournamentAt = &at
		}
	}
	s.writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleRulebook(w http.ResponseWriter, r *http.Request) {
	t := game.Type(r.PathValue("game"))
	rb, ok := game.RulebookFor(t)
	if !ok {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("unknown game %q", t))
		return
	}
	s.writeJSON(w, http.StatusOK, rb)
}

// scrubArena strips server-side secrets from player-facing views: the
// prediction target and the speed answer must not leak mid-round.
func scrubArena(a *arena.Arena) *arena.Arena {
	if a.Game == nil || a.Game.Challenge == nil {
		return a
	}
	ch := *a.Game.Challenge
	if ch.Prediction != nil {
		p := *ch.Prediction
		p.Target = 0
		ch.Prediction = &p
	}
	if ch.Speed != nil {
		sp := *ch.Speed
		sp.Answer = ""
		ch.Speed = &sp
	}
	g := *a.Game
	g.Challenge = &ch
	cp := *a
	cp.Game = &g
	return &cp
}

func parseAddrPair(arenaHex, playerHex string) (common.Address, common.Address, error) {
	if !common.IsHexAddress(arenaHex) {
		return common.Address{}, common.Address{}, fmt.Errorf("arena %q is not an address", arenaHex)
	}
	if !common.IsHexAddress(playerHex) {
		return common.Address{}, common.Address{}, fmt.Errorf("player %q is not an address", playerHex)
	}
	return common.HexToAddress(arenaHex), common.HexToAddress(playerHex), nil
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("response encode failed", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, errorBody{Error: err.Error()})
}

// writeDomainError maps domain errors onto HTTP status codes.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, arena.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, arena.ErrAlreadyExists),
		errors.Is(err, arena.ErrConflict),
		errors.Is(err, arena.ErrAlreadyFinalized):
		status = http.StatusConflict
	case errors.Is(err, arena.ErrInvalidParams),
		errors.Is(err, arena.ErrArenaClosed),
		errors.Is(err, arena.ErrArenaFull),
		errors.Is(err, arena.ErrAlreadyJoined),
		errors.Is(err, arena.ErrRegistrationClosed),
		errors.Is(err, arena.ErrEntryNotEscrowed),
		errors.Is(err, arena.ErrNotFinished),
		errors.Is(err, arena.ErrTerminal),
		errors.Is(err, game.ErrInvalidMove),
		errors.Is(err, game.ErrNotActive),
		errors.Is(err, game.ErrNotParticipant),
		errors.Is(err, game.ErrAlreadySubmitted),
		errors.Is(err, game.ErrNoAttemptsLeft),
		errors.Is(err, game.ErrHandResolved),
		errors.Is(err, game.ErrRoundExpired):
		status = http.StatusBadRequest
	case errors.Is(err, arena.ErrShuttingDown),
		errors.Is(err, signer.ErrServiceUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, arena.ErrFrozen):
		status = http.StatusLocked
	}
	s.writeError(w, status, err)
}
