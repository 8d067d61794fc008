package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	router "github.com/abhimm5/chatapp/internal/adapters/http"
	wssignal "github.com/abhimm5/chatapp/internal/adapters/signal"
	"github.com/abhimm5/chatapp/internal/app"
	"github.com/abhimm5/chatapp/internal/app/expiry"
	"github.com/abhimm5/chatapp/internal/app/orch"
	"github.com/abhimm5/chatapp/internal/app/writebehind"
	"github.com/abhimm5/chatapp/internal/config"
	"github.com/abhimm5/chatapp/internal/infra/files"
	"github.com/abhimm5/chatapp/internal/infra/setup"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Mode == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server stopped with error")
	}
	log.Info().Msg("Server exited gracefully")
}

func run(ctx context.Context, cfg *config.Config) error {
	store, err := setup.OpenStore(ctx, cfg.Store, cfg.Mode == "debug")
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			log.Error().Err(err).Msg("closing store")
		}
	}()

	rdb, err := setup.OpenRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	avatars, err := files.NewAvatarStorage(afero.NewOsFs(), cfg.AvatarDir, "/avatars", cfg.Upload.MaxBytes)
	if err != nil {
		return err
	}

	// Deferred writes outlive request contexts; they are flushed on shutdown.
	writes := writebehind.New(context.Background(), writebehind.Config{Delay: cfg.Chat.PersistDelay})
	reg := app.NewRegistry(store, avatars, writes)
	rooms, err := app.NewRoomManager(store, writes, setup.NewLiveness(rdb, *cfg))
	if err != nil {
		return err
	}
	if err := rooms.Load(ctx); err != nil {
		return err
	}

	hub := wssignal.NewHub()
	o := &orch.Orchestrator{
		Registry:   reg,
		Rooms:      rooms,
		Matcher:    app.NewMatchmaker(reg, rooms),
		Notifier:   hub,
		Files:      avatars,
		Policy:     app.NewPolicy(cfg.Chat.Backpressure),
		ImageDelay: cfg.Chat.ImageRevealDelay,
	}
	ctl := wssignal.NewSignalWSController(o, hub, wssignal.Options{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		SendBuffer: cfg.Chat.SendBuffer,
	})

	r := router.SetupRouter(ctx, cfg, router.Deps{
		Orch:    o,
		Signal:  ctl,
		Avatars: avatars.HTTP(),
		Limiter: setup.NewUploadLimiter(rdb, *cfg),
	})
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	sweeper := expiry.NewSweeper(o, cfg.Chat.IdlePeriod, cfg.Chat.DormantAfter)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("chat server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		o.Wait()
		writes.Close(shutdownCtx)
		return nil
	})
	return g.Wait()
}
