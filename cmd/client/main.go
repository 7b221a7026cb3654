package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Wyydra/ya-client/internal/adapter/driven/crypto/nacl"
	"github.com/Wyydra/ya-client/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/ya-client/internal/adapter/driven/media/pion"
	"github.com/Wyydra/ya-client/internal/adapter/driven/metrics"
	keystore "github.com/Wyydra/ya-client/internal/adapter/driven/persistence/memory"
	handler "github.com/Wyydra/ya-client/internal/adapter/driving/http"
	"github.com/Wyydra/ya-client/internal/config"
	"github.com/Wyydra/ya-client/internal/core/domain"
	"github.com/Wyydra/ya-client/internal/core/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

func main() {
	w := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	l := zerolog.New(w).With().Timestamp().Caller().Logger()
	log.Logger = l

	cfg, err := config.Parse("ya-client", os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		l.Fatal().Err(err).Msg("Invalid configuration")
	}
	zerolog.SetGlobalLevel(cfg.Level())

	box := nacl.NewBox()
	keys, created, err := config.LoadOrCreateKeyPair(cfg.KeyFile, box.GenerateKeyPair)
	if err != nil {
		l.Fatal().Err(err).Str("path", cfg.KeyFile).Msg("Failed to load key pair")
	}
	if created {
		l.Info().Str("path", cfg.KeyFile).Msg("Generated new key pair")
	}

	devices, err := pion.NewDevices()
	if err != nil {
		l.Fatal().Err(err).Msg("Failed to set up media devices")
	}
	peers, err := pion.NewPeerFactory(pion.Config{
		ICEServers:    cfg.ICE.STUN,
		GatherTimeout: cfg.ICE.GatherTimeout,
	}, devices)
	if err != nil {
		l.Fatal().Err(err).Msg("Failed to set up WebRTC")
	}

	self := domain.UserID(cfg.UserID)
	transport := ws.NewClient(ws.Config{
		ServerURL: cfg.ServerURL,
		UserID:    self,
	})

	mediaService := service.NewMediaService(devices)
	bridge := service.NewSignalingBridge(transport, self, cfg.DisplayNameOrID())
	callService := service.NewCallService(mediaService, peers, bridge, service.CallConfig{
		Constraints: cfg.Media,
		RingTimeout: cfg.RingTimeout,
		SendTimeout: cfg.SendTimeout,
	})
	hub := service.NewUpdateHub(callService)
	chatService := service.NewChatService(box, keystore.NewKeyCache(keystore.DefaultKeyTTL), keys)
	h := handler.NewHandler(callService, chatService, hub)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewRecorder(reg)
	h.Metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := transport.Run(ctx); err != nil {
			l.Fatal().Err(err).Msg("Signaling transport stopped")
		}
	}()
	go callService.Run(ctx)
	go hub.Run()

	updates, unsubscribe := callService.Subscribe()
	defer unsubscribe()
	go recorder.Watch(ctx, updates)

	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: h.NewRouter(),
	}

	go func() {
		l.Info().Str("addr", cfg.Listen).Str("user_id", self.String()).Msg("Starting control API")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Fatal().Err(err).Msg("Failed to start control API")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	l.Info().Msg("Shutting down client...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error().Err(err).Msg("Control API forced to shutdown")
	}

	// Hang up while the signaling socket is still open.
	callService.Stop()
	select {
	case <-callService.Done():
	case <-shutdownCtx.Done():
		l.Warn().Msg("Call service did not stop in time")
	}

	hub.Stop()
	transport.Close()
	cancel()
	<-transport.Done()
	l.Info().Msg("Client exited")
}
