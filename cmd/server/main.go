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
	"github.com/sourcegraph/conc"

	router "github.com/dkeye/msgpipe/internal/adapters/http"
	"github.com/dkeye/msgpipe/internal/adapters/rtc"
	"github.com/dkeye/msgpipe/internal/adapters/ws"
	"github.com/dkeye/msgpipe/internal/app"
	"github.com/dkeye/msgpipe/internal/config"
	"github.com/dkeye/msgpipe/internal/connector"
	"github.com/dkeye/msgpipe/internal/eventloop"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	fs := config.Flags()
	if err := fs.Parse(os.Args[1:]); err != nil {
		log.Fatal().Err(err).Msg("bad flags")
	}
	cfg, err := config.Load(fs)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	config.ApplyLogLevel(cfg.LogLevel)

	loop := eventloop.New()
	svc := &app.Service{
		Registry: app.NewRegistry(),
		Policy:   app.SimplePolicy{},
		Limiter:  app.NewRateLimiter(cfg.BroadcastLimit, cfg.BroadcastInterval),
		Options: []connector.Option{
			connector.WithDrainLimit(cfg.DrainLimit),
			connector.WithRejectFatal(cfg.RejectFatal),
		},
	}

	wsOpts := ws.DefaultOptions()
	wsOpts.ReadLimit = cfg.ReadLimit
	wsOpts.PingPeriod = cfg.PingPeriod
	wsOpts.WriteTimeout = cfg.WriteTimeout
	wsOpts.SendBuffer = cfg.SendBuffer

	ctl := &router.Controller{
		Loop:        loop,
		Service:     svc,
		WS:          wsOpts,
		WebRTC:      rtc.DefaultWebRTCConfig(),
		MaxBuffered: cfg.MaxBuffered,
	}

	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()

	r := router.SetupRouter(ctx, cfg, ctl)
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	var wg conc.WaitGroup
	wg.Go(func() { loop.Run(loopCtx) })
	wg.Go(func() {
		log.Info().Str("addr", addr).Msg("msgpipe server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	})

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := loop.Do(shutdownCtx, svc.Shutdown); err != nil {
		log.Error().Err(err).Msg("session shutdown")
	}
	stopLoop()
	wg.Wait()
	log.Info().Msg("Server exited gracefully")
}
