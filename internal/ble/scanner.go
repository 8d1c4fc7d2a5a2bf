// Package ble runs the scan(10s)/rest(5s) discovery cycle, decodes each
// advertisement's manufacturer data through a sensors.Registry, and flushes
// one coalesced batch per scan window into the State Core.
package ble

import "context"

// Advertisement is one BLE discovery event: an observed device and its raw
// manufacturer-data payload, if any.
type Advertisement struct {
	DeviceID         string
	Name             string
	RSSI             int
	ManufacturerData []byte
}

// Scanner abstracts the radio so Loop is testable without real Bluetooth
// hardware.
type Scanner interface {
	// Scan runs until ctx is done, invoking onDiscover for every
	// advertisement observed. It returns when ctx is cancelled/expires, or
	// on an unrecoverable radio error.
	Scan(ctx context.Context, onDiscover func(Advertisement)) error
}
