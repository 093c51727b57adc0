package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"rpsls/broker/internal/config"
	httpapi "rpsls/broker/internal/http"
	"rpsls/broker/internal/journal"
	"rpsls/broker/internal/logging"
	"rpsls/broker/internal/match"
	"rpsls/broker/internal/presence"
	"rpsls/broker/internal/pubsub"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("broker exited", logging.Error(err))
	}
}

func run(cfg *config.Config, logger *logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//1.- Pick the fanout fabric: Redis when configured, in-process otherwise.
	var bus pubsub.Bus
	if cfg.RedisAddr != "" {
		redisBus := pubsub.NewRedisBus(cfg.RedisAddr, cfg.RedisPassword, logger)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := redisBus.Ping(pingCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("redis unreachable at %s: %w", cfg.RedisAddr, err)
		}
		logger.Info("using redis fanout", logging.String("addr", cfg.RedisAddr))
		bus = redisBus
	} else {
		bus = pubsub.NewFanout()
	}
	defer bus.Close()

	matchJournal, err := journal.New(cfg.JournalDir, logger, nil)
	if err != nil {
		return err
	}
	defer matchJournal.Close()

	//2.- The persister is wired through the commit hook; MarkDirty on a nil
	// persister is a no-op, so the closure is safe before assignment.
	var persister *match.Persister
	store := match.NewStore(cfg.BestOf, cfg.ExtendedMode,
		match.WithRecorder(matchJournal),
		match.WithCommitHook(func() { persister.MarkDirty() }),
	)

	persister, err = match.NewPersister(store, cfg.StatePath, cfg.StateInterval, logger)
	if err != nil {
		return fmt.Errorf("state persistence: %w", err)
	}
	defer persister.Close()

	sweeper := presence.NewSweeper(store, bus, logger, cfg.HeartbeatTTL, cfg.SweepInterval)
	sweeper.Start()
	defer sweeper.Stop()

	broker := NewBroker(store, bus, cfg, logger)
	if err := broker.StartupError(); err != nil {
		return fmt.Errorf("broker init: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/match/", broker.ServeWS)
	handlerOpts := httpapi.Options{
		Logger:      logger,
		Readiness:   broker,
		Stats:       broker.Stats,
		AdminToken:  cfg.AdminToken,
		RateLimiter: httpapi.NewFlushLimiter(cfg.JournalFlushWindow, cfg.JournalFlushBurst),
	}
	if matchJournal != nil {
		handlerOpts.Journal = matchJournal
	}
	handlers := httpapi.NewHandlerSet(handlerOpts)
	handlers.Register(mux)
	registerProtocolDocEndpoints(mux)

	server := &http.Server{
		Addr:    cfg.Address,
		Handler: logging.HTTPTraceMiddleware(logger)(mux),
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("broker listening",
			logging.String("url", listenerURL(cfg.Address, cfg.TLSCertPath != "")),
			logging.Bool("tls", cfg.TLSCertPath != ""))
		var err error
		if cfg.TLSCertPath != "" {
			err = server.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	//3.- Optional gRPC health endpoint for orchestrators that probe over gRPC.
	if cfg.GRPCAddress != "" {
		listener, err := net.Listen("tcp", cfg.GRPCAddress)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		grpcServer := grpc.NewServer()
		healthServer := health.NewServer()
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		healthpb.RegisterHealthServer(grpcServer, healthServer)

		group.Go(func() error {
			logger.Info("grpc health listening", logging.String("addr", cfg.GRPCAddress))
			return grpcServer.Serve(listener)
		})
		group.Go(func() error {
			<-groupCtx.Done()
			healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
			grpcServer.GracefulStop()
			return nil
		})
	}

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		//4.- Flush what we can before the process exits.
		if err := persister.Flush(); err != nil {
			logger.Warn("final state flush failed", logging.Error(err))
		}
		if err := matchJournal.FlushAll(); err != nil {
			logger.Warn("final journal flush failed", logging.Error(err))
		}
		return nil
	})

	return group.Wait()
}
