// Command indexer wires the chain-sync client, consumer, gardener and
// HTTP control plane into one running process, grounded on the
// teacher's main.go (startSyncer/signal-handling shape): every
// long-running component runs in its own goroutine reporting into a
// shared error channel, and the first error or SIGINT/SIGTERM triggers
// an explicit Close/Shutdown of each component on the way out.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/cardano-chain-indexer/indexer/chainpoint"
	"github.com/cardano-chain-indexer/indexer/chainsync"
	"github.com/cardano-chain-indexer/indexer/chainsync/gouroboros"
	"github.com/cardano-chain-indexer/indexer/chainsync/ogmios"
	"github.com/cardano-chain-indexer/indexer/consumer"
	"github.com/cardano-chain-indexer/indexer/gardener"
	"github.com/cardano-chain-indexer/indexer/health"
	"github.com/cardano-chain-indexer/indexer/httpapi"
	"github.com/cardano-chain-indexer/indexer/logger"
	"github.com/cardano-chain-indexer/indexer/mailbox"
	"github.com/cardano-chain-indexer/indexer/metrics"
	"github.com/cardano-chain-indexer/indexer/model"
	"github.com/cardano-chain-indexer/indexer/registry"
	"github.com/cardano-chain-indexer/indexer/store/rollbackcell"
	"github.com/cardano-chain-indexer/indexer/store/sqlite"
)

// config is the JSON config file shape (SPEC_FULL.md's ambient
// "Configuration" section): defaults applied in code, the way the
// teacher's BlockIndexerConfig/BlockSyncerConfig never reach for a
// templating/config framework.
type config struct {
	Backend string `json:"backend"` // "gouroboros" or "ogmios"

	Gouroboros struct {
		NetworkMagic uint32 `json:"network_magic"`
		NodeAddress  string `json:"node_address"`
		KeepAlive    bool   `json:"keep_alive"`
	} `json:"gouroboros"`

	Ogmios struct {
		URL string `json:"url"`
	} `json:"ogmios"`

	DataDir string `json:"data_dir"`

	InputManagement string `json:"input_management"` // "mark" or "remove"
	StabilityWindow uint64 `json:"stability_window"`
	LongestRollback uint64 `json:"longest_rollback"`

	MailboxCapacity int `json:"mailbox_capacity"`

	RestartOnError bool `json:"restart_on_error"`
	RestartDelayMS int  `json:"restart_delay_ms"`

	GardenerThrottleSeconds int `json:"gardener_throttle_seconds"`

	HTTPAddr string `json:"http_addr"`

	LogLevel      string `json:"log_level"`
	JSONLogFormat bool   `json:"json_log_format"`
	LogFilePath   string `json:"log_file_path"`
}

func loadConfig(path string) (config, error) {
	var cfg config

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("could not read config file: %w", err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("could not parse config file: %w", err)
	}

	if cfg.Backend != "gouroboros" && cfg.Backend != "ogmios" {
		return cfg, fmt.Errorf("config: backend must be \"gouroboros\" or \"ogmios\", got %q", cfg.Backend)
	}

	if cfg.DataDir == "" {
		cfg.DataDir = "."
	}

	if cfg.MailboxCapacity <= 0 {
		cfg.MailboxCapacity = mailbox.DefaultCapacity
	}

	if cfg.RestartDelayMS <= 0 {
		cfg.RestartDelayMS = 2000
	}

	if cfg.GardenerThrottleSeconds <= 0 {
		cfg.GardenerThrottleSeconds = int(gardener.DefaultThrottleDelay.Seconds())
	}

	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	return cfg, nil
}

func inputManagement(s string) (model.InputManagement, error) {
	switch s {
	case "", "mark":
		return model.MarkSpentInputs, nil
	case "remove":
		return model.RemoveSpentInputs, nil
	default:
		return 0, fmt.Errorf("config: input_management must be \"mark\" or \"remove\", got %q", s)
	}
}

func run(cfg config) error {
	level := hclog.LevelFromString(cfg.LogLevel)
	if level == hclog.NoLevel {
		level = hclog.Info
	}

	baseLogger, err := logger.NewLogger(logger.LoggerConfig{
		Name:                "indexer",
		LogLevel:            level,
		JSONLogFormat:       cfg.JSONLogFormat,
		LogFilePath:         cfg.LogFilePath,
		RotatingLogsEnabled: cfg.LogFilePath != "",
	})
	if err != nil {
		return fmt.Errorf("could not build logger: %w", err)
	}

	inputMgmt, err := inputManagement(cfg.InputManagement)
	if err != nil {
		return err
	}

	db, err := sqlite.Open(filepath.Join(cfg.DataDir, "indexer.db"), 0)
	if err != nil {
		return fmt.Errorf("could not open store: %w", err)
	}
	defer db.Close()

	reg, err := registry.Load(db)
	if err != nil {
		return fmt.Errorf("could not load pattern registry: %w", err)
	}

	cell, err := rollbackcell.Open(filepath.Join(cfg.DataDir, "rollback_cell.db"))
	if err != nil {
		return fmt.Errorf("could not open rollback cell: %w", err)
	}
	defer cell.Close()

	h := health.New(configSummary(cfg))

	mb := mailbox.New(cfg.MailboxCapacity)

	var (
		backend chainsync.Backend
		fetcher httpapi.MetadataFetcher
	)

	switch cfg.Backend {
	case "gouroboros":
		gb := gouroboros.New(gouroboros.Config{
			NetworkMagic: cfg.Gouroboros.NetworkMagic,
			NodeAddress:  cfg.Gouroboros.NodeAddress,
			KeepAlive:    cfg.Gouroboros.KeepAlive,
		}, mb, baseLogger.Named("gouroboros"))
		backend, fetcher = gb, gb
	case "ogmios":
		backend = ogmios.New(ogmios.Config{URL: cfg.Ogmios.URL}, mb, baseLogger.Named("ogmios"))
	}

	resume := func() (chainpoint.Point, error) {
		if target, ok, err := cell.InFlight(); err != nil {
			return chainpoint.Point{}, fmt.Errorf("could not read rollback cell: %w", err)
		} else if ok {
			return target, nil
		}

		checkpoints, err := db.ListCheckpointsDesc()
		if err != nil {
			return chainpoint.Point{}, fmt.Errorf("could not list checkpoints: %w", err)
		}

		if len(checkpoints) == 0 {
			return chainpoint.Genesis, nil
		}

		return checkpoints[0], nil
	}

	client := chainsync.NewClient(backend, chainsync.Config{
		RestartOnError: cfg.RestartOnError,
		RestartDelay:   time.Duration(cfg.RestartDelayMS) * time.Millisecond,
	}, resume, cell, baseLogger.Named("chainsync"))

	cons := consumer.New(db, reg, mb, h, consumer.Config{
		InputManagement: inputMgmt,
		StabilityWindow: cfg.StabilityWindow,
		Observer:        client,
	}, baseLogger.Named("consumer"))

	gard := gardener.New(db, gardener.Config{
		InputManagement: inputMgmt,
		StabilityWindow: cfg.StabilityWindow,
		ThrottleDelay:   time.Duration(cfg.GardenerThrottleSeconds) * time.Second,
	}, baseLogger.Named("gardener"))

	server := httpapi.New(httpapi.Config{
		LongestRollback: cfg.LongestRollback,
		Addr:            cfg.HTTPAddr,
	}, db, reg, h, client, fetcher, baseLogger.Named("http"))

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 4)

	go func() { errCh <- taggedErr("chainsync", client.Sync()) }()
	go func() { errCh <- taggedErr("consumer", cons.Run()) }()
	go func() { errCh <- taggedErr("gardener", gard.Run()) }()
	go func() { errCh <- taggedErr("http", server.Run()) }()

	metrics.Refresh(false, nil, nil)

	var runErr error

	select {
	case <-signalCh:
		baseLogger.Info("received shutdown signal")
	case runErr = <-errCh:
		baseLogger.Error("component exited", "err", runErr)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	server.Shutdown(shutdownCtx) //nolint:errcheck
	gard.Close()
	mb.Close()
	client.Close() //nolint:errcheck

	return runErr
}

func taggedErr(component string, err error) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%s: %w", component, err)
}

func configSummary(cfg config) string {
	switch cfg.Backend {
	case "gouroboros":
		return fmt.Sprintf("gouroboros backend, network_magic=%d, node=%s", cfg.Gouroboros.NetworkMagic, cfg.Gouroboros.NodeAddress)
	case "ogmios":
		return fmt.Sprintf("ogmios backend, url=%s", cfg.Ogmios.URL)
	default:
		return "unconfigured backend"
	}
}

func main() {
	configPath := flag.String("config", "config.json", "path to the JSON config file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
