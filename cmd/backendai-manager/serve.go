package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/warren/pkg/accounting"
	"github.com/cuemby/warren/pkg/agentrpc"
	"github.com/cuemby/warren/pkg/cluster"
	"github.com/cuemby/warren/pkg/clusterrpc"
	"github.com/cuemby/warren/pkg/config"
	"github.com/cuemby/warren/pkg/events"
	"github.com/cuemby/warren/pkg/log"
	"github.com/cuemby/warren/pkg/metrics"
	"github.com/cuemby/warren/pkg/repository"
	"github.com/cuemby/warren/pkg/scheduler"
	"github.com/cuemby/warren/pkg/statestore"
	"github.com/cuemby/warren/pkg/storage"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run this node as a manager replica: raft, dispatcher, accounting, metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		if cfgPath == "" {
			return fmt.Errorf("serve: --config is required")
		}
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		return runManager(cfg)
	},
}

// runManager is serve's body, factored out so joinCmd can run the same
// daemon after overriding cfg.Node.Join from its --leader flag.
func runManager(cfg config.Config) error {
	log.Init(log.Config{Level: log.Level(cfg.Logging.Level), JSONOutput: cfg.Logging.JSONOutput})
	logger := log.WithComponent("serve")

	store, err := storage.NewBoltStore(cfg.Node.DataDir)
	if err != nil {
		return fmt.Errorf("serve: open storage: %w", err)
	}

	clu := cluster.New(cluster.Config{
		NodeID:   cfg.Node.ID,
		BindAddr: cfg.Node.BindAddr,
		DataDir:  cfg.Node.DataDir,
	})
	fsm := repository.NewFSM(store)

	if cfg.Node.Join != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := clu.Join(ctx, cfg.Node.Join, fsm, clusterrpc.NewClient()); err != nil {
			cancel()
			return fmt.Errorf("serve: join %s: %w", cfg.Node.Join, err)
		}
		cancel()
		logger.Info().Str("leader", cfg.Node.Join).Msg("joined existing cluster")
	} else {
		if err := clu.Bootstrap(fsm); err != nil {
			return fmt.Errorf("serve: bootstrap: %w", err)
		}
		logger.Info().Msg("bootstrapped single-node cluster")
	}

	repo := repository.New(clu, store)

	state, err := newStateStore(cfg)
	if err != nil {
		return err
	}
	defer state.Close()

	controlLis, err := net.Listen("tcp", cfg.Node.ControlAddr)
	if err != nil {
		return fmt.Errorf("serve: listen on control addr %s: %w", cfg.Node.ControlAddr, err)
	}
	grpcServer := grpc.NewServer()
	grpcServer.RegisterService(&clusterrpc.ServiceDesc, clusterrpc.NewServer(clu.AddVoter))
	go func() {
		if err := grpcServer.Serve(controlLis); err != nil {
			logger.Error().Err(err).Msg("control-plane rpc server stopped")
		}
	}()
	logger.Info().Str("addr", cfg.Node.ControlAddr).Msg("control-plane rpc listening")

	dispatcher := &scheduler.Dispatcher{
		Repo:   repo,
		State:  state,
		Agents: agentrpc.NewClient(),
		Events: events.NewBroker(),
	}

	recalculator := accounting.NewRecalculator(repo, state, cfg.Scheduler.LockTTL*2)
	recalculator.Start()
	defer recalculator.Stop()

	collector := metrics.NewCollector(repo, clu)
	collector.Start()
	defer collector.Stop()

	metricsSrv := &http.Server{Addr: cfg.Metrics.Addr, Handler: metrics.Handler()}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	logger.Info().Str("addr", cfg.Metrics.Addr).Msg("metrics endpoint listening")

	stopTicking := make(chan struct{})
	go runTickLoop(dispatcher, cfg.Scheduler.TickInterval, stopTicking, logger)

	logger.Info().Str("node_id", cfg.Node.ID).Msg("manager running, press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutting down")
	close(stopTicking)
	grpcServer.GracefulStop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	_ = metricsSrv.Shutdown(shutdownCtx)
	cancel()
	if err := clu.Shutdown(); err != nil {
		return fmt.Errorf("serve: shutdown cluster: %w", err)
	}
	return store.Close()
}

func runTickLoop(d *scheduler.Dispatcher, interval time.Duration, stop <-chan struct{}, logger zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := d.Tick(context.Background()); err != nil {
				logger.Error().Err(err).Msg("scheduling tick failed")
			}
		case <-stop:
			return
		}
	}
}

func newStateStore(cfg config.Config) (statestore.Store, error) {
	switch cfg.StateStore.Backend {
	case "", "memory":
		return statestore.NewMemoryStore(), nil
	case "redis":
		token := fmt.Sprintf("%s-%d", cfg.Node.ID, os.Getpid())
		return statestore.NewRedisStore(cfg.StateStore.Redis.Addr, cfg.StateStore.Redis.Password, cfg.StateStore.Redis.DB, token), nil
	default:
		return nil, fmt.Errorf("serve: unknown state store backend %q", cfg.StateStore.Backend)
	}
}
