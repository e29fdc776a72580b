// Package metrics holds the orchestrator's Prometheus collectors. All
// methods are nil-safe so wiring metrics stays optional in tests.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Set struct {
	arenasActive   prometheus.Gauge
	arenasFrozen   prometheus.Counter
	timerFires     *prometheus.CounterVec
	joins          prometheus.Counter
	moves          *prometheus.CounterVec
	finalizations  prometheus.Counter
	cancellations  prometheus.Counter
	signerFailures *prometheus.CounterVec
	agentCreations *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Set {
	f := promauto.With(reg)
	return &Set{
		arenasActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "clawarena_arenas_active",
			Help: "Arenas currently in a non-terminal state.",
		}),
		arenasFrozen: f.NewCounter(prometheus.CounterOpts{
			Name: "clawarena_arenas_frozen_total",
			Help: "Arenas frozen after an invariant violation.",
		}),
		timerFires: f.NewCounterVec(prometheus.CounterOpts{
			Name: "clawarena_timer_fires_total",
			Help: "Timer callbacks fired, by kind.",
		}, []string{"kind"}),
		joins: f.NewCounter(prometheus.CounterOpts{
			Name: "clawarena_joins_total",
			Help: "Accepted player joins.",
		}),
		moves: f.NewCounterVec(prometheus.CounterOpts{
			Name: "clawarena_moves_total",
			Help: "Accepted game moves, by game type.",
		}, []string{"game"}),
		finalizations: f.NewCounter(prometheus.CounterOpts{
			Name: "clawarena_finalizations_total",
			Help: "Successfully signed finalizations.",
		}),
		cancellations: f.NewCounter(prometheus.CounterOpts{
			Name: "clawarena_cancellations_total",
			Help: "Arenas cancelled before play.",
		}),
		signerFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "clawarena_signer_failures_total",
			Help: "Finalize signing failures, by taxonomy code.",
		}, []string{"code"}),
		agentCreations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "clawarena_agent_creations_total",
			Help: "Arenas created by the autonomous host agent, by tier.",
		}, []string{"tier"}),
	}
}

func (m *Set) SetActiveArenas(n int) {
	if m != nil {
		m.arenasActive.Set(float64(n))
	}
}

func (m *Set) ArenaFrozen() {
	if m != nil {
		m.arenasFrozen.Inc()
	}
}

func (m *Set) TimerFired(kind string) {
	if m != nil {
		m.timerFires.WithLabelValues(kind).Inc()
	}
}

func (m *Set) JoinAccepted() {
	if m != nil {
		m.joins.Inc()
	}
}

func (m *Set) MoveAccepted(gameType string) {
	if m != nil {
		m.moves.WithLabelValues(gameType).Inc()
	}
}

func (m *Set) Finalized() {
	if m != nil {
		m.finalizations.Inc()
	}
}

func (m *Set) Cancelled() {
	if m != nil {
		m.cancellations.Inc()
	}
}

func (m *Set) SignerFailure(code string) {
	if m != nil {
		if code == "" {
			code = "internal"
		}
		m.signerFailures.WithLabelValues(code).Inc()
	}
}

func (m *Set) AgentCreated(tier string) {
	if m != nil {
		m.agentCreations.WithLabelValues(tier).Inc()
	}
}
