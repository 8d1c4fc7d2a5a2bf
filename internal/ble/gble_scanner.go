package ble

import (
	"context"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
)

// HostScanner implements Scanner against the host's HCI Bluetooth adapter
// via go-ble/ble.
type HostScanner struct {
	device ble.Device
}

var _ Scanner = (*HostScanner)(nil)

// NewHostScanner opens the default Linux HCI device. Close the returned
// scanner's device on shutdown to release the adapter.
func NewHostScanner() (*HostScanner, error) {
	d, err := linux.NewDevice()
	if err != nil {
		return nil, err
	}
	ble.SetDefaultDevice(d)
	return &HostScanner{device: d}, nil
}

// Close releases the underlying HCI device.
func (s *HostScanner) Close() error {
	return s.device.Stop()
}

// Scan runs a passive, duplicate-allowing BLE advertisement scan until ctx
// is cancelled, invoking onDiscover for every advertisement received.
func (s *HostScanner) Scan(ctx context.Context, onDiscover func(Advertisement)) error {
	err := ble.Scan(ctx, true, func(a ble.Advertisement) {
		onDiscover(Advertisement{
			DeviceID:         a.Addr().String(),
			Name:             a.LocalName(),
			RSSI:             a.RSSI(),
			ManufacturerData: a.ManufacturerData(),
		})
	}, nil)
	if err == context.Canceled || err == context.DeadlineExceeded {
		return nil
	}
	return err
}
