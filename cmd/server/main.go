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

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	router "github.com/dkeye/Gallery/internal/adapters/http"
	"github.com/dkeye/Gallery/internal/app"
	"github.com/dkeye/Gallery/internal/config"
	"github.com/dkeye/Gallery/internal/core"
	"github.com/dkeye/Gallery/internal/logging"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	config.AddFlags(pflag.CommandLine)
	pflag.Parse()

	cfg, err := config.Load(pflag.CommandLine)
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
		os.Exit(1)
	}
	logFile := logging.Setup(cfg.Log)
	defer logFile.Close()
	log.Info().Str("mode", cfg.Mode).Int("port", cfg.Port).Str("static", cfg.StaticPath).Msg("config")

	newIDs := core.NewUUIDAllocator
	if cfg.Room.SessionIDs == "sequential" {
		newIDs = func() core.IDAllocator { return core.NewSequentialAllocator("s") }
	}
	rooms := app.NewRoomManager(ctx, app.RoomConfig{
		MaxClients:  cfg.Room.MaxClients,
		PatchRate:   cfg.Room.PatchRate,
		SpawnGrid:   cfg.Room.SpawnGrid,
		AutoDispose: cfg.Room.AutoDispose,
		IceServers:  cfg.WebRTC(),
		Policy:      app.PolicyByName(cfg.Room.Backpressure),
		NewIDs:      newIDs,
	})
	reg := app.NewRegistry()

	r := router.SetupRouter(ctx, cfg, rooms, reg)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Gallery server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := rooms.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("rooms did not stop in time")
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
