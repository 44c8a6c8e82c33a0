package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"voucherchain/config"
	"voucherchain/core"
	"voucherchain/core/events"
	"voucherchain/core/genesis"
	"voucherchain/indexer"
	"voucherchain/observability/logging"
	"voucherchain/observability/tracing"
	"voucherchain/rpc"
	"voucherchain/storage"
)

// runNode opens the chain database and serves until ctx is cancelled.
func runNode(ctx context.Context, cfg *config.Config) error {
	logger := logging.Setup(programName, cfg.Env, logging.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})

	logger.Info("config loaded",
		"rpc_address", cfg.RPCAddress,
		"data_dir", cfg.DataDir,
		"indexer", cfg.Indexer.Driver,
		"telemetry", cfg.Telemetry.Exporter,
		logging.MaskField("indexer_dsn", cfg.Indexer.DSN),
		logging.MaskField("hmac_secret", cfg.Auth.HMACSecret))

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Exporter:    cfg.Telemetry.Exporter,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		ServiceName: cfg.Telemetry.ServiceName,
		Environment: cfg.Env,
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("flush traces", "error", err)
		}
	}()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("prepare data directory: %w", err)
	}
	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	eventDB, err := indexer.Open(cfg.Indexer.Driver, cfg.Indexer.DSN)
	if err != nil {
		return err
	}
	idx, err := indexer.New(eventDB, logger)
	if err != nil {
		return err
	}
	defer idx.Close()

	broadcaster := rpc.NewBroadcaster()
	rt, err := core.NewRuntime(db, core.Options{
		ChainID:     cfg.ChainID,
		NetworkName: cfg.NetworkName,
		Emitter:     events.Multi{idx, broadcaster},
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("create runtime: %w", err)
	}

	if !rt.Bootstrapped() {
		if err := applyGenesis(rt, cfg.GenesisFile); err != nil {
			return err
		}
		logger.Info("genesis applied", "file", cfg.GenesisFile, "chain_id", cfg.ChainID)
	}
	block := rt.Block()
	logger.Info("chain ready", "height", block.Height, "timestamp", block.Timestamp, "network", cfg.NetworkName)

	server, err := rpc.NewServer(rpc.Options{
		Runtime:     rt,
		Events:      idx,
		Broadcaster: broadcaster,
		Auth:        authConfig(cfg),
		RateLimit:   rpc.RateLimit{RequestsPerMinute: cfg.RateLimit.RequestsPerMinute, Burst: cfg.RateLimit.Burst},
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		produceBlocks(gctx, rt, cfg.BlockInterval(), time.Now, logger.With("component", "producer"))
		return nil
	})
	g.Go(func() error {
		return server.Serve(gctx, cfg.RPCAddress)
	})
	err = g.Wait()
	logger.Info("node stopped", "height", rt.Block().Height)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func applyGenesis(rt *core.Runtime, path string) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("chain has no state and no genesis file is configured")
	}
	spec, err := genesis.LoadGenesisSpec(path)
	if err != nil {
		return fmt.Errorf("load genesis: %w", err)
	}
	if err := genesis.Apply(rt, spec); err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	}
	return nil
}
