package ble

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rathix/relay/internal/sensors"
)

const (
	defaultScanWindow = 10 * time.Second
	defaultRestWindow = 5 * time.Second
)

// CoreSink is the subset of document.Core the scan loop depends on: pushing
// discovered devices through the existing debounced batch path, pushing
// decoded sensor readings for selected devices, and reading selection
// state.
type CoreSink interface {
	UpdateBluetoothDevice(deviceID string, device any, kind string)
	UpdateBluetoothDeviceSensorData(ctx context.Context, deviceID string, data any) error
	Get(path string) (any, bool)
}

// KeyProvider resolves the per-device AES key a sensor parser needs (the
// Victron codec, for instance), or reports none is configured.
type KeyProvider func(deviceID string) ([]byte, bool)

// Option configures a Loop at construction time.
type Option func(*Loop)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(lo *Loop) {
		if l != nil {
			lo.logger = l
		}
	}
}

// WithClock overrides the time source (tests only).
func WithClock(fn func() time.Time) Option {
	return func(lo *Loop) { lo.clock = fn }
}

// WithWindows overrides the scan/rest durations (tests only; production
// always uses the default 10s/5s accumulate-then-flush cycle).
func WithWindows(scan, rest time.Duration) Option {
	return func(lo *Loop) { lo.scanWindow, lo.restWindow = scan, rest }
}

// WithKeyProvider sets the per-device encryption key lookup used for
// encrypted manufacturer-data formats (Victron).
func WithKeyProvider(kp KeyProvider) Option {
	return func(lo *Loop) { lo.keyProvider = kp }
}

// Loop runs the scan(10s)/rest(5s) discovery cycle: accumulate
// advertisements into a map keyed by device id for the scan window's
// duration, decode each through the parser registry, then flush the whole
// window as one batch.
type Loop struct {
	scanner     Scanner
	registry    *sensors.Registry
	core        CoreSink
	keyProvider KeyProvider
	logger      *slog.Logger
	clock       func() time.Time
	scanWindow  time.Duration
	restWindow  time.Duration
}

// NewLoop creates a scan loop driven by scanner, decoding manufacturer data
// through registry and publishing into core.
func NewLoop(scanner Scanner, registry *sensors.Registry, core CoreSink, opts ...Option) *Loop {
	l := &Loop{
		scanner:    scanner,
		registry:   registry,
		core:       core,
		logger:     slog.Default(),
		clock:      time.Now,
		scanWindow: defaultScanWindow,
		restWindow: defaultRestWindow,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run cycles scan/rest windows until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		l.runScanWindow(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(l.restWindow):
		}
	}
}

func (l *Loop) runScanWindow(ctx context.Context) {
	scanCtx, cancel := context.WithTimeout(ctx, l.scanWindow)
	defer cancel()

	var mu sync.Mutex
	batch := make(map[string]Advertisement)

	err := l.scanner.Scan(scanCtx, func(adv Advertisement) {
		mu.Lock()
		defer mu.Unlock()
		batch[adv.DeviceID] = adv
	})
	if err != nil && scanCtx.Err() == nil {
		l.logger.Warn("ble scan ended with error", "error", err)
	}

	l.flush(ctx, batch)
}

func (l *Loop) flush(ctx context.Context, batch map[string]Advertisement) {
	now := l.clock().UTC().Format(time.RFC3339)
	for id, adv := range batch {
		device := map[string]any{
			"id":       id,
			"name":     adv.Name,
			"rssi":     adv.RSSI,
			"lastSeen": now,
		}
		l.core.UpdateBluetoothDevice(id, device, "discovery")

		parsed := l.decode(id, adv)
		if parsed == nil {
			continue
		}
		if _, selected := l.core.Get("bluetooth.selectedDevices." + id); !selected {
			continue
		}
		if err := l.core.UpdateBluetoothDeviceSensorData(ctx, id, parsed); err != nil {
			l.logger.Warn("ble sensor data push failed", "device", id, "error", err)
		}
	}
}

func (l *Loop) decode(id string, adv Advertisement) map[string]any {
	if l.registry == nil || len(adv.ManufacturerData) == 0 {
		return nil
	}
	parser, ok := l.registry.FindParserFor(adv.ManufacturerData)
	if !ok || !parser.Matches(adv.ManufacturerData) {
		return nil
	}

	var opts sensors.ParseOptions
	if l.keyProvider != nil {
		if key, found := l.keyProvider(id); found {
			opts.EncryptionKey = key
		}
	}

	rec, err := parser.Parse(adv.ManufacturerData, opts)
	if err != nil {
		l.logger.Warn("ble manufacturer-data parse failed", "device", id, "error", err)
		return nil
	}
	return rec
}
