package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hyperjump/archivist/internal/server"
	"github.com/hyperjump/archivist/internal/tracker"
	"github.com/hyperjump/archivist/internal/watcher"
	"github.com/hyperjump/archivist/pkg/utils"
	"go.uber.org/zap"
)

func runServe() {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	backend := fs.String("backend", "", "archive backend URL (overrides config)")
	debug := fs.Bool("debug", false, "enable debug logging (requests, polling, drop folder events)")
	port := fs.Int("port", 0, "listen port (overrides config)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *backend != "" {
		cfg.Backend.URL = *backend
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.String("backend", cfg.Backend.URL),
		zap.Bool("debug", debugMode),
	)

	jobLog := tracker.WithListener(func(ev tracker.Event) {
		switch ev.Type {
		case tracker.EventTerminal:
			logger.Info("ingestion finished",
				zap.String("video_name", ev.VideoName),
				zap.String("status", string(ev.Job.Status)),
				zap.String("error", ev.Job.ErrorMessage))
		case tracker.EventPollError:
			logger.Warn("status poll failed", zap.String("video_name", ev.VideoName), zap.Error(ev.Err))
		}
	})
	comps, err := initializeComponents(cfg, logger, jobLog)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer comps.Close()

	refreshCtx, refreshCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := comps.Catalog.Refresh(refreshCtx, comps.Client); err != nil {
		logger.Warn("video catalog not loaded; filter names will not be checked until /api/videos is called", zap.Error(err))
	}
	refreshCancel()

	deps := server.Dependencies{
		Archive: comps.Client,
		Search:  comps.Search,
		Tracker: comps.Tracker,
		Recent:  comps.Recent,
		Catalog: comps.Catalog,
	}

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if len(cfg.Watch.Directories) > 0 {
		var jobs watcher.JobTracker
		if cfg.Watch.AutoTrackOrDefault() {
			jobs = comps.Tracker
		}
		drop := watcher.NewDropFolder(comps.Client, jobs, logger)
		watchOpts := []watcher.Option{}
		if debugMode {
			watchOpts = append(watchOpts, watcher.WithLogger(logger))
		}
		watchSvc := watcher.New(
			cfg.Watch.Directories,
			cfg.Watch.Extensions,
			cfg.Watch.RecursiveOrDefault(),
			drop.Handle,
			watchOpts...,
		)
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer watchSvc.Stop()
		go watchSvc.SyncExistingFiles()
		deps.Watch = watchSvc
	}

	srv := server.NewServer(deps, &cfg.Server, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}
