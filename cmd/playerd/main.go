package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hlsplayd/internal/api"
	"hlsplayd/internal/config"
	"hlsplayd/internal/engine"
	"hlsplayd/internal/fetch"
	"hlsplayd/internal/logger"
	"hlsplayd/internal/metrics"
	"hlsplayd/internal/model"
	"hlsplayd/internal/sink"
)

func main() {
	cfg := config.Load()

	listenAddr := flag.String("l", cfg.ListenAddr, "HTTP listen address")
	manifestURL := flag.String("m", cfg.ManifestURL, "Multivariant playlist URL to play")
	logLevel := flag.String("L", cfg.LogLevel, "Log level (error, warn, info, debug)")
	flag.Parse()

	log := logger.NewLogger(*logLevel)
	if *manifestURL == "" {
		log.Errorf("no manifest URL: pass -m or set MANIFEST_URL")
		os.Exit(1)
	}

	log.Infof("starting playback of %s", *manifestURL)

	engineCfg := engine.DefaultConfig()
	engineCfg.Buffer.ForwardTargetSeconds = cfg.ForwardBufferSeconds
	engineCfg.Buffer.BackBufferSeconds = cfg.BackBufferSeconds
	engineCfg.DefaultBandwidthBps = cfg.DefaultBandwidthBps
	engineCfg.ABR.SafetyFactor = cfg.ABRSafetyFactor
	if !cfg.PreloadFull {
		engineCfg.Preload = engine.PreloadMetadata
	}

	met := metrics.New()
	fetcher := fetch.NewHTTPFetcher(nil, log, cfg.UserAgent)
	sinks := map[model.TrackType]sink.MediaSink{
		model.TrackVideo: sink.NewMemorySink(logger.WithComponent(log, "sink.video")),
		model.TrackAudio: sink.NewMemorySink(logger.WithComponent(log, "sink.audio")),
		model.TrackText:  sink.NewMemorySink(logger.WithComponent(log, "sink.text")),
	}

	player := engine.NewPlayer(engineCfg, fetcher, sinks, engine.NewWallClock(), log, met)

	loadCtx, cancelLoad := context.WithTimeout(context.Background(), 30*time.Second)
	if err := player.Load(loadCtx, *manifestURL); err != nil {
		cancelLoad()
		log.Errorf("loading manifest: %v", err)
		os.Exit(1)
	}
	cancelLoad()
	player.Start()

	server := &http.Server{
		Addr:    *listenAddr,
		Handler: api.New(player, met, log),
	}

	go func() {
		log.Infof("status server listening on %s", *listenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("could not listen on %s: %v", *listenAddr, err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Infof("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()

	player.Stop()

	if err := server.Shutdown(ctx); err != nil {
		log.Errorf("server shutdown failed: %v", err)
		os.Exit(1)
	}

	log.Infof("exited gracefully")
}
