package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"featurestream/internal/api"
	"featurestream/internal/config"
	"featurestream/internal/drops"
	"featurestream/internal/engine"
	"featurestream/internal/generator"
	"featurestream/internal/ingest"
	"featurestream/internal/logging"
	"featurestream/internal/model"
	"featurestream/internal/storage"
)

const version = "0.3.0"

func main() {
	cfgPath := flag.String("config", "configs/featurestream.yaml", "Path to YAML/JSON config")
	synthetic := flag.Bool("synthetic", false, "Run the synthetic generator through the batcher and engine, dump state, and exit")
	statePath := flag.String("state-out", "data/balances.json", "State dump path for -synthetic")
	flag.Parse()

	manager, err := config.NewManager(config.ResolvePath(*cfgPath))
	if err != nil {
		slog.Error("failed to load config", "path", *cfgPath, "err", err)
		os.Exit(1)
	}
	cfg := manager.Get()

	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	sink, err := storage.NewStore(cfg.Storage)
	if err != nil {
		logger.Error("failed to open storage", "driver", cfg.Storage.Driver, "err", err)
		os.Exit(1)
	}
	if sink != nil {
		if err := sink.Init(context.Background()); err != nil {
			logger.Error("failed to init storage", "err", err)
			os.Exit(1)
		}
		defer sink.Close()
	}

	dropStore := drops.NewStore(cfg.Drops.StoreLimit)
	eng := engine.NewEngine(cfg, logger, dropStore, sink)

	if *synthetic {
		runSynthetic(eng, cfg, sink, logger, *statePath)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan model.RawEvent, cfg.Ingest.ChannelBuffer)
	eng.Start(ctx, events)

	ingest.StartREST(ctx, manager, events, logger)
	ingest.StartTCPStream(ctx, manager, events, logger)
	ingest.StartKafka(ctx, manager, events, logger)
	ingest.StartReplay(ctx, manager, events, logger)
	api.Start(ctx, manager, eng, dropStore, logger, version)

	stopWatch := make(chan struct{})
	go manager.Watch(3*time.Second,
		func(newCfg *config.Config) {
			eng.UpdateConfig(newCfg)
			logger.Info("config reloaded", "path", manager.Path())
		},
		func(err error) {
			logger.Warn("config reload failed", "err", err)
		},
		stopWatch,
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")
	close(stopWatch)
	cancel()

	if sink != nil {
		saveCtx, saveCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer saveCancel()
		if err := sink.SaveState(saveCtx, eng.ExportState()); err != nil {
			logger.Error("final state save failed", "err", err)
		}
	}
}

// runSynthetic replays a generated stream through the tumbling-window
// batcher and the engine, then dumps the full state. Window firing order is
// deterministic: keys are sorted before replay.
func runSynthetic(eng *engine.Engine, cfg *config.Config, sink storage.Store, logger *slog.Logger, statePath string) {
	stream := generator.Stream(cfg.Generator, time.Now().UTC())
	logger.Info("synthetic stream generated",
		"events", len(stream),
		"customers", cfg.Generator.Customers,
		"seed", cfg.Generator.Seed,
	)

	batches := engine.BatchByTimeWindow(stream, cfg.Window.BatchWindow())
	keys := make([]engine.WindowKey, 0, len(batches))
	for key := range batches {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return windowKeyLess(keys[i], keys[j]) })

	processed := 0
	for _, key := range keys {
		for _, events := range batches[key] {
			for _, raw := range events {
				if _, ok := eng.ProcessEvent(raw); ok {
					processed++
				}
			}
		}
	}
	logger.Info("synthetic replay done", "windows", len(keys), "processed", processed)

	state := eng.ExportState()
	if err := dumpState(statePath, state); err != nil {
		logger.Error("state dump failed", "path", statePath, "err", err)
		os.Exit(1)
	}
	logger.Info("state dumped", "path", statePath, "customers", len(state))

	if sink != nil {
		if err := sink.SaveState(context.Background(), state); err != nil {
			logger.Error("state save failed", "err", err)
			os.Exit(1)
		}
	}
}

func windowKeyLess(a, b engine.WindowKey) bool {
	if a.Year != b.Year {
		return a.Year < b.Year
	}
	if a.Month != b.Month {
		return a.Month < b.Month
	}
	if a.Day != b.Day {
		return a.Day < b.Day
	}
	if a.Hour != b.Hour {
		return a.Hour < b.Hour
	}
	return a.Minute < b.Minute
}

func dumpState(path string, state map[string]model.CustomerExport) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
