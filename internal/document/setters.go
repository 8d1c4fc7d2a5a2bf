package document

import "context"

// SetWeatherData replaces the forecast sub-tree wholesale.
func (c *Core) SetWeatherData(ctx context.Context, v any) error {
	return c.ApplyPatch(ctx, []Op{{Op: "replace", Path: "/forecast", Value: v}})
}

// SetTideData replaces the tides sub-tree wholesale.
func (c *Core) SetTideData(ctx context.Context, v any) error {
	return c.ApplyPatch(ctx, []Op{{Op: "replace", Path: "/tides", Value: v}})
}

// UpdateAnchorState replaces the anchor sub-tree wholesale.
func (c *Core) UpdateAnchorState(ctx context.Context, v any) error {
	return c.ApplyPatch(ctx, []Op{{Op: "replace", Path: "/anchor", Value: v}})
}

// preservedSubtrees are the sub-trees receiveExternalStateUpdate must not
// touch: they're authoritative locally, not owned by any external feeder.
var preservedSubtrees = []string{"anchor", "tides", "forecast", "bluetooth"}

// ReceiveExternalStateUpdate replaces the document with v, except for the
// preserved sub-trees (anchor, tides, forecast, bluetooth), which are
// carried forward from the current document unchanged.
func (c *Core) ReceiveExternalStateUpdate(ctx context.Context, v map[string]any) error {
	merged := make(map[string]any, len(v)+len(preservedSubtrees))
	for k, val := range v {
		merged[k] = val
	}
	for _, key := range preservedSubtrees {
		if current, ok := c.Get(key); ok {
			merged[key] = current
		}
	}
	return c.ApplyPatch(ctx, []Op{{Op: "replace", Path: "", Value: merged}})
}

// UpdateBluetoothStatus replaces /bluetooth/status wholesale.
func (c *Core) UpdateBluetoothStatus(ctx context.Context, status any) error {
	return c.ApplyPatch(ctx, []Op{{Op: "replace", Path: "/bluetooth/status", Value: status}})
}

// UpdateBluetoothScanningStatus replaces /bluetooth/scanning.
func (c *Core) UpdateBluetoothScanningStatus(ctx context.Context, scanning bool) error {
	return c.ApplyPatch(ctx, []Op{{Op: "replace", Path: "/bluetooth/scanning", Value: scanning}})
}

// SetBluetoothDeviceSelected flips a device's selection flag, reconciling
// the /bluetooth/selectedDevices mirror: selecting a device copies its
// current record into the mirror, deselecting removes it.
func (c *Core) SetBluetoothDeviceSelected(ctx context.Context, deviceID string, selected bool) error {
	devicePath := "bluetooth.devices." + deviceID
	current, _ := c.Get(devicePath)
	if current == nil {
		current = map[string]any{}
	}

	ops := []Op{
		{Op: "add", Path: "/bluetooth/devices/" + escapePointerToken(deviceID) + "/selected", Value: selected},
	}
	if selected {
		ops = append(ops, Op{Op: "add", Path: "/bluetooth/selectedDevices/" + escapePointerToken(deviceID), Value: current})
	} else if _, ok := c.Get("bluetooth.selectedDevices." + deviceID); ok {
		ops = append(ops, Op{Op: "remove", Path: "/bluetooth/selectedDevices/" + escapePointerToken(deviceID)})
	}
	return c.ApplyPatch(ctx, ops)
}

// UpdateBluetoothDeviceSensorData pushes a decoded sensor reading for a
// device directly, bypassing the discovery/update debounce queue — sensor
// pushes are already batched upstream by the parser.
func (c *Core) UpdateBluetoothDeviceSensorData(ctx context.Context, deviceID string, data any) error {
	path := "/bluetooth/devices/" + escapePointerToken(deviceID) + "/sensorData"
	err := c.ApplyPatchTyped(ctx, []Op{{Op: "add", Path: path, Value: data}}, "sensor")
	if err != nil {
		return err
	}
	if _, ok := c.Get("bluetooth.selectedDevices." + deviceID); ok {
		mirrorPath := "/bluetooth/selectedDevices/" + escapePointerToken(deviceID) + "/sensorData"
		return c.ApplyPatchTyped(ctx, []Op{{Op: "add", Path: mirrorPath, Value: data}}, "sensor")
	}
	return nil
}

// UpdateBluetoothMetadata applies an incoming bluetooth:update-metadata
// client command, merging into the device's metadata sub-object rather
// than replacing it wholesale — an explicit userLabel set by a human must
// survive the next discovery-kind update overwriting other device fields.
func (c *Core) UpdateBluetoothMetadata(ctx context.Context, deviceID string, metadata map[string]any) error {
	path := "bluetooth.devices." + deviceID + ".metadata"
	existing, _ := c.Get(path)
	merged := map[string]any{}
	if m, ok := existing.(map[string]any); ok {
		for k, v := range m {
			merged[k] = v
		}
	}
	for k, v := range metadata {
		merged[k] = v
	}
	return c.ApplyPatchTyped(ctx, []Op{{
		Op:    "add",
		Path:  "/bluetooth/devices/" + escapePointerToken(deviceID) + "/metadata",
		Value: merged,
	}}, "metadata")
}
