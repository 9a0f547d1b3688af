package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"option-observer/src/aggregator"
	"option-observer/src/config"
	"option-observer/src/feed"
	"option-observer/src/interfaces"
	"option-observer/src/livetable"
	"option-observer/src/logger"
	"option-observer/src/models"
	"option-observer/src/normalizer"
	"option-observer/src/projection"
	"option-observer/src/registry"
	"option-observer/src/server"
	"option-observer/src/storage"
)

// -----------------------------------------------------------------------------

func main() {

	// Parse command line flags
	configPath := flag.String("config", "../../config/default.yaml", "path to config file")
	flag.Parse()

	// Load config from YAML file + environment overlay
	cfg, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger.SetLevel(cfg.LogLevel)
	appLogger := logger.NewLogger(cfg.Name)

	// 1. Persistence sink
	store, err := storage.NewSnapshotStore(cfg.MConfig, logger.NewLogger("Storage"))
	if err != nil {
		appLogger.Critical("Failed to init storage: %v", err)
	}
	if err := store.Initialize(); err != nil {
		appLogger.Critical("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	// 2. Instrument registry. A failed master load degrades to an empty
	// registry rather than crashing: every tick misses and gets dropped, but
	// the process stays up for a later restart with a fresh master.
	regLogger := logger.NewLogger("Registry")
	var reg *registry.Registry
	rows, err := registry.LoadMaster(cfg.Registry.MasterPath, regLogger)
	if err != nil {
		appLogger.Error("Instrument master load failed: %v. Running with an empty registry.", err)
		reg = registry.NewRegistry(regLogger)
	} else {
		reg = registry.Build(rows, cfg.Registry, regLogger)
	}

	// 3. Analytics components
	table := livetable.NewLiveTable()
	norm := normalizer.NewNormalizer(reg, table, cfg.Pricing, cfg.Session,
		logger.NewLogger("Normalizer"))
	engine := projection.NewEngine(cfg.Pricing, cfg.Session, logger.NewLogger("Projection"))

	window := aggregator.NewTradingWindow(cfg.Session, logger.NewLogger("TradingWindow"))
	agg := aggregator.NewAggregator(store, window, logger.NewLogger("Aggregator"))

	// 4. Server (REST + websocket push)
	apiServer := server.NewAPIServer(cfg.MConfig, reg, table, engine, agg,
		logger.NewLogger("Server"))
	var srv interfaces.IDataExchanger = apiServer

	go func() {
		if err := srv.Start(); err != nil {
			appLogger.Error("Server failed: %v", err)
		}
	}()

	// 5. Schedule + feed
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	agg.Start(ctx)

	var source interfaces.IFeedSource = feed.NewWebSocketFeed(cfg.MConfig,
		logger.NewLogger("Feed"))
	if err := source.UpdateTokens(reg.Tokens()); err != nil {
		appLogger.Warning("Initial token subscription failed: %v", err)
	}

	wg := &sync.WaitGroup{}
	ticksChan := make(chan []models.MRawTick, 100)
	if err := source.Start(ctx, ticksChan, wg); err != nil {
		appLogger.Critical("Failed to start feed: %v", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	appLogger.Info("Starting ingestion loop (%d instruments registered)", reg.Len())

	// 6. Ingestion loop: one writer for the live table.
	for {
		select {
		case batch, ok := <-ticksChan:
			if !ok {
				appLogger.Info("Feed channel closed.")
				return
			}

			now := time.Now()
			snaps, metrics := norm.NormalizeBatch(batch, now)
			if len(snaps) == 0 {
				continue
			}

			payload := &models.MLatestData{
				Type:      "UPDATE",
				Snapshots: make(map[uint32]models.MInstrumentSnapshot, len(snaps)),
				Timestamp: now.UnixMilli(),
				Metrics:   metrics,
			}
			for _, snap := range snaps {
				table.Upsert(snap)
				agg.RecordLatest(snap)
				payload.Snapshots[snap.Token] = snap
			}
			payload.Spots = table.SpotsCopy()

			srv.UpdateAllDatas(payload)
			srv.Broadcast(payload)

		case <-quit:
			appLogger.Info("Shutdown signal received.")

			if err := source.Stop(); err != nil {
				appLogger.Warning("Feed stop: %v", err)
			}

			// Final snapshot before the schedule goes down.
			if written, err := agg.ForceFlush(); err != nil {
				appLogger.Error("Final flush failed: %v", err)
			} else {
				appLogger.Info("Final flush: %d records", written)
			}
			agg.Stop()

			cancel()
			wg.Wait()

			if err := srv.Stop(); err != nil {
				appLogger.Warning("Server stop: %v", err)
			}
			appLogger.Info("Shutdown complete.")
			return
		}
	}
}
