package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/rathix/relay/internal/alerts"
	"github.com/rathix/relay/internal/ble"
	"github.com/rathix/relay/internal/document"
	"github.com/rathix/relay/internal/push"
	"github.com/rathix/relay/internal/recording"
	"github.com/rathix/relay/internal/relayconfig"
	"github.com/rathix/relay/internal/rules"
	"github.com/rathix/relay/internal/sensors"
)

// deferredListener forwards rule-engine action batches to an
// alerts.Service assigned after construction — breaks the construction
// cycle (Core needs an Engine, Engine needs an ActionsListener, the
// Alert Service needs Core).
type deferredListener struct {
	mu     sync.Mutex
	target rules.ActionsListener
}

func (d *deferredListener) ProcessActions(actions []rules.Action) {
	d.mu.Lock()
	target := d.target
	d.mu.Unlock()
	if target != nil {
		target.ProcessActions(actions)
	}
}

func (d *deferredListener) setTarget(t rules.ActionsListener) {
	d.mu.Lock()
	d.target = t
	d.mu.Unlock()
}

func nowFunc() time.Time { return time.Now() }

func main() {
	configPath := flag.String("config", getEnv("RELAY_CONFIG", "relay.yaml"), "path to the relay's YAML configuration file")
	dataDir := flag.String("data-dir", getEnv("DATA_DIR", "/data"), "data directory for the app UUID file and push token store")
	logFormat := flag.String("log-format", getEnv("LOG_FORMAT", "json"), "log format (json or text)")
	flag.Parse()

	logger := setupLogger(*logFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *dataDir); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func setupLogger(format string) *slog.Logger {
	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stdout, nil)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, nil)
	}
	return slog.New(handler)
}

// run wires every component — State Core, Rule Engine, Alert Service,
// Parser Registry, BLE scan loop, recording sink, and push providers — and
// blocks until ctx is cancelled.
func run(ctx context.Context, logger *slog.Logger, configPath, dataDir string) error {
	cfg, errs := relayconfig.Load(configPath)
	for _, e := range errs {
		logger.Warn("relay config: invalid value, using default", "error", e)
	}

	boatID, err := relayconfig.ResolveBoatID(filepath.Join(dataDir, "boat-id"))
	if err != nil {
		return fmt.Errorf("resolve boat id: %w", err)
	}
	logger.Info("relay starting", "boat_id", boatID)

	recorder, closeRecorder, err := buildRecorder(cfg, logger)
	if err != nil {
		return fmt.Errorf("build recording sink: %w", err)
	}
	defer closeRecorder()

	listener := &deferredListener{}
	engine := rules.NewEngine(
		rules.WithLogger(logger),
		rules.WithMaxRules(cfg.Rules.MaxRules),
		rules.WithMaxDependencies(cfg.Rules.MaxDependencyPaths),
		rules.WithActionsListener(listener),
	)
	registerDomainRules(engine)

	core := document.NewCore(
		document.WithLogger(logger),
		document.WithChannelCapacity(cfg.Server.ChannelCapacity),
		document.WithFullStateInterval(cfg.FullStateIntervalDuration()),
		document.WithBoatID(boatID),
		document.WithRuleEngine(engine),
		document.WithRecorder(recorder),
	)

	tokenStore, err := push.NewTokenStore(filepath.Join(dataDir, "push-tokens.json"), logger)
	if err != nil {
		return fmt.Errorf("open push token store: %w", err)
	}

	providers, err := buildPushProviders(logger)
	if err != nil {
		return fmt.Errorf("build push providers: %w", err)
	}

	alertService := alerts.NewService(core, tokenStore, providers, alerts.WithLogger(logger))
	listener.setTarget(alertService)

	registry := sensors.NewRegistry()
	registry.Register(sensors.ManufacturerIDVictron, sensors.NewVictronParser())

	keyProvider := buildBluetoothKeyProvider(core)

	scanner, err := ble.NewHostScanner()
	if err != nil {
		logger.Warn("bluetooth adapter unavailable, BLE scan loop disabled", "error", err)
	}

	watcher := relayconfig.NewWatcher(configPath, func(newCfg *relayconfig.Config, errs []error) {
		for _, e := range errs {
			logger.Warn("relay config reload: invalid value, keeping previous", "error", e)
		}
		logger.Info("relay config reloaded",
			"max_rules", newCfg.Rules.MaxRules,
			"max_dependency_paths", newCfg.Rules.MaxDependencyPaths,
			"recording_enabled", newCfg.Recording.Enabled)
	}, logger)

	go core.Run(ctx)
	go watcher.Run(ctx)

	if scanner != nil {
		defer scanner.Close()
		loop := ble.NewLoop(scanner, registry, core, ble.WithLogger(logger), ble.WithKeyProvider(keyProvider))
		go loop.Run(ctx)
	}

	<-ctx.Done()
	logger.Info("relay shutting down")
	return nil
}

func buildRecorder(cfg *relayconfig.Config, logger *slog.Logger) (document.Recorder, func(), error) {
	if !cfg.Recording.Enabled {
		return recording.NoopSink{}, func() {}, nil
	}
	sink, err := recording.NewFileSink(cfg.Recording.Path, logger)
	if err != nil {
		return nil, nil, err
	}
	return sink, func() { sink.Close() }, nil
}

// buildPushProviders resolves the configured providers from the
// environment and attaches the deployment-specific signing/token-fetch
// callbacks each requires.
func buildPushProviders(logger *slog.Logger) (map[string]push.Provider, error) {
	configs := relayconfig.PushProviderConfigsFromEnv(logger)
	if len(configs) == 0 {
		return map[string]push.Provider{}, nil
	}

	var authorizeAPNS, authorizeFCM func(req *http.Request) error
	for _, cfg := range configs {
		switch cfg.Type {
		case "apns":
			fn, err := relayconfig.BuildAPNSAuthorizer(cfg)
			if err != nil {
				return nil, fmt.Errorf("apns authorizer: %w", err)
			}
			authorizeAPNS = fn
		case "fcm":
			fn, err := relayconfig.BuildFCMAuthorizer(cfg)
			if err != nil {
				return nil, fmt.Errorf("fcm authorizer: %w", err)
			}
			authorizeFCM = fn
		}
	}

	return push.BuildProviders(configs, authorizeAPNS, authorizeFCM)
}

// buildBluetoothKeyProvider resolves a Victron device's per-device AES key
// from its document metadata (set via the bluetooth:update-metadata
// command), hex-decoded on read.
func buildBluetoothKeyProvider(core *document.Core) ble.KeyProvider {
	return func(deviceID string) ([]byte, bool) {
		v, ok := core.Get("bluetooth.devices." + deviceID + ".metadata.encryptionKey")
		if !ok {
			return nil, false
		}
		hexKey, ok := v.(string)
		if !ok || hexKey == "" {
			return nil, false
		}
		key, err := hex.DecodeString(hexKey)
		if err != nil {
			return nil, false
		}
		return key, true
	}
}

func registerDomainRules(engine *rules.Engine) {
	engine.Register(rules.NewCriticalRangeRule(nowFunc))
	engine.Register(rules.NewCriticalRangeResolutionRule())
	engine.Register(rules.NewAnchorDraggingRule(nowFunc))
	engine.Register(rules.NewAnchorDraggingResolutionRule())
	engine.Register(rules.NewAISProximityRule())
	engine.Register(rules.NewAISProximityResolutionRule())
}
