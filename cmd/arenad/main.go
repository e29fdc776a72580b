package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"clawarena/internal/agent"
	"clawarena/internal/api"
	"clawarena/internal/arena"
	"clawarena/internal/chain"
	"clawarena/internal/config"
	"clawarena/internal/metrics"
	"clawarena/internal/sched"
	"clawarena/internal/signer"
	"clawarena/internal/store"
)

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "arenad: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := clock.New()

	// Store: MongoDB when configured, otherwise in-memory with snapshots.
	var (
		st  arena.Store
		mem *store.Memory
	)
	if cfg.MongoURI != "" {
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return fmt.Errorf("connect mongo: %w", err)
		}
		defer func() { _ = client.Disconnect(context.Background()) }()
		if err := client.Ping(ctx, nil); err != nil {
			return fmt.Errorf("ping mongo: %w", err)
		}
		st = store.NewMongo(client.Database(cfg.MongoDB), clk)
		log.Info("store: mongodb", "db", cfg.MongoDB)
	} else {
		mem = store.NewMemory(clk)
		if err := mem.Restore(cfg.Home); err != nil {
			return fmt.Errorf("restore snapshot: %w", err)
		}
		st = mem
		log.Info("store: in-memory", "home", cfg.Home)
	}

	// Signing: remote service or the local operator key.
	var svc signer.Service
	if cfg.SignerURL != "" {
		svc = signer.NewRemoteSigner(cfg.SignerURL)
		log.Info("signer: remote", "url", cfg.SignerURL)
	} else {
		local, err := signer.LocalSignerFromHex(cfg.OperatorKeyHex)
		if err != nil {
			return fmt.Errorf("operator key: %w", err)
		}
		svc = local
		log.Info("signer: local", "operator", local.Address().Hex())
	}
	fin := signer.NewFinalizer(cfg.ChainID, svc)

	var chainAdapter arena.Chain
	if cfg.EthRPCURL != "" {
		eth, err := chain.Dial(ctx, cfg.EthRPCURL, cfg.EscrowAddr, log)
		if err != nil {
			return fmt.Errorf("eth rpc: %w", err)
		}
		defer eth.Close()
		chainAdapter = eth
		log.Info("escrow checks enabled", "rpc", cfg.EthRPCURL, "escrow", cfg.EscrowAddr.Hex())
	}

	reg := prometheus.NewRegistry()
	met := metrics.New(reg)

	sc := sched.New(clk, sched.DefaultTick)
	sc.Start()
	defer sc.Stop()

	ocfg := arena.DefaultConfig()
	ocfg.ChainID = cfg.ChainID
	orch := arena.NewOrchestrator(ocfg, arena.Deps{
		Store:     st,
		Sched:     sc,
		Clock:     clk,
		Finalizer: fin,
		Chain:     chainAdapter,
		Log:       log,
		Metrics:   met,
	})
	defer orch.Close()
	if err := orch.Restore(ctx); err != nil {
		return fmt.Errorf("restore arenas: %w", err)
	}

	apiSrv := api.New(orch, st, log)
	if cfg.AgentEnabled {
		acfg := agent.DefaultConfig()
		acfg.Network = arena.Network(cfg.Network)
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		ag := agent.New(acfg, st, orch, sc, clk, log, met, rng)
		orch.SetFinalizedHook(ag.NotifyFinalized)
		orch.SetCancelledHook(ag.NotifyCancelled)
		apiSrv.SetHost(ag)
		ag.Start()
		log.Info("host agent enabled")
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           apiSrv.Handler(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("http listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		log.Error("http shutdown", "err", err)
	}
	orch.Close()
	sc.Stop()
	if mem != nil {
		if err := mem.Save(cfg.Home); err != nil {
			log.Error("snapshot save", "err", err)
		}
	}
	return nil
}
