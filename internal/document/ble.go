package document

import (
	"context"
	"time"
)

// bleBatch accumulates device updates of one kind ("discovery" | "update")
// between commits.
type bleBatch struct {
	devices map[string]any
	timer   *time.Timer
}

// bleDebounceWindow returns the per-kind commit delay: discovery batches
// coalesce over a full second (bursty BLE scan results), update batches
// (single sensor ticks) flush much sooner.
func bleDebounceWindow(kind string) time.Duration {
	switch kind {
	case "discovery":
		return 1000 * time.Millisecond
	case "update":
		return 250 * time.Millisecond
	default:
		return 250 * time.Millisecond
	}
}

// UpdateBluetoothDevice enqueues a discovered/updated device keyed by id
// into the in-memory batch for its kind, (re)scheduling a debounced commit.
// Bursts of advertisements within the debounce window coalesce into a
// single replication event.
func (c *Core) UpdateBluetoothDevice(deviceID string, device any, kind string) {
	c.bleMu.Lock()
	defer c.bleMu.Unlock()

	batch, ok := c.bleQueues[kind]
	if !ok {
		batch = &bleBatch{devices: make(map[string]any)}
		c.bleQueues[kind] = batch
	}
	batch.devices[deviceID] = device

	if batch.timer != nil {
		batch.timer.Stop()
	}
	batch.timer = time.AfterFunc(bleDebounceWindow(kind), func() {
		c.flushBLEBatch(kind)
	})
}

// flushBLEBatch commits all devices queued for kind as a single patch
// submission, then clears the queue.
func (c *Core) flushBLEBatch(kind string) {
	c.bleMu.Lock()
	batch, ok := c.bleQueues[kind]
	if !ok || len(batch.devices) == 0 {
		c.bleMu.Unlock()
		return
	}
	devices := batch.devices
	batch.devices = make(map[string]any)
	c.bleMu.Unlock()

	ops := make([]Op, 0, len(devices)*2+1)
	for id, dev := range devices {
		ops = append(ops, Op{Op: "add", Path: "/bluetooth/devices/" + escapePointerToken(id), Value: dev})
		if _, selected := c.Get("bluetooth.selectedDevices." + id); selected {
			ops = append(ops, Op{Op: "add", Path: "/bluetooth/selectedDevices/" + escapePointerToken(id), Value: dev})
		}
	}
	ops = append(ops, Op{Op: "replace", Path: "/bluetooth/lastUpdated", Value: time.Now().UTC().Format(time.RFC3339)})

	// The BLE loop feeding this queue has no natural context to thread
	// through a debounce timer callback; a short local timeout bounds the
	// worst case where the mutation channel is saturated.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.ApplyPatchTyped(ctx, ops, kind); err != nil {
		c.logger.Warn("bluetooth batch commit failed", "kind", kind, "error", err)
	}
}
