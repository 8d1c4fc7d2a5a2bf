package sensors

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// ManufacturerIDVictron is Victron Energy's registered Bluetooth SIG
// manufacturer identifier.
const ManufacturerIDVictron uint16 = 0x02E1

// Victron record-type byte values (advertisement payload offset 4).
const (
	recordTypeBatteryMonitor byte = 0x02
	recordTypeSolarCharger   byte = 0x01
	recordTypeInverter       byte = 0x03
	recordTypeDCDC           byte = 0x04
	recordTypeSmartLithium   byte = 0x05
)

const victronMinPayloadLen = 8

// VictronParser decodes Victron Instant Readout manufacturer-data frames:
// an AES-128-CTR encrypted, bit-packed record keyed per device.
type VictronParser struct{}

// NewVictronParser creates a parser for Victron Instant Readout frames.
func NewVictronParser() *VictronParser { return &VictronParser{} }

// Matches reports whether payload is at least long enough to carry a
// Victron frame header. The registry has already dispatched on manufacturer
// ID, so this only guards against truncated payloads.
func (p *VictronParser) Matches(payload []byte) bool {
	return len(payload) >= victronMinPayloadLen
}

// Parse decrypts and decodes a Victron manufacturer-data payload.
//
// Layout: bytes[0:2] manufacturer ID, byte[4] record type, bytes[5:7] the
// little-endian CTR counter, byte[7] a key[0] integrity check byte,
// bytes[8:] the AES-128-CTR ciphertext.
func (p *VictronParser) Parse(payload []byte, opts ParseOptions) (map[string]any, error) {
	if len(payload) < victronMinPayloadLen {
		return nil, fmt.Errorf("sensors: victron payload too short: %d bytes", len(payload))
	}
	if len(opts.EncryptionKey) != 16 {
		return nil, nil
	}

	recordType := payload[4]
	counterLo, counterHi := payload[5], payload[6]
	keyCheckByte := payload[7]
	ciphertext := payload[8:]

	if keyCheckByte != opts.EncryptionKey[0] {
		return nil, nil
	}

	block, err := aes.NewCipher(opts.EncryptionKey)
	if err != nil {
		return nil, nil
	}

	iv := make([]byte, aes.BlockSize)
	iv[0], iv[1] = counterLo, counterHi

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCTR(block, iv).XORKeyStream(plaintext, ciphertext)

	switch recordType {
	case recordTypeBatteryMonitor:
		return decodeBatteryMonitor(plaintext), nil
	case recordTypeSolarCharger, recordTypeInverter, recordTypeDCDC, recordTypeSmartLithium:
		return map[string]any{"recordType": int(recordType), "raw": plaintext}, nil
	default:
		return map[string]any{"recordType": int(recordType), "raw": plaintext}, nil
	}
}

// batteryMonitorFields declares the bit-packed layout of a Victron
// battery-monitor record: name, bit width, and whether the raw value is
// two's-complement signed.
var batteryMonitorFields = []bitField{
	{"remainingMins", 16, false},
	{"voltage", 16, true},
	{"alarm", 16, false},
	{"aux", 16, false},
	{"auxMode", 2, false},
	{"current", 22, true},
	{"consumedAh", 20, false},
	{"soc", 10, false},
}

func decodeBatteryMonitor(data []byte) map[string]any {
	r := newBitReader(data)
	raw := make(map[string]rawField, len(batteryMonitorFields))
	for _, f := range batteryMonitorFields {
		raw[f.name] = r.read(f)
	}

	out := make(map[string]any)
	if v, ok := raw["remainingMins"].value(); ok {
		out["remainingMins"] = v
	} else {
		out["remainingMins"] = nil
	}
	if v, ok := raw["voltage"].value(); ok {
		out["voltage"] = float64(v) / 100
	} else {
		out["voltage"] = nil
	}
	if v, ok := raw["auxMode"].value(); ok {
		out["auxMode"] = v
	} else {
		out["auxMode"] = nil
	}
	if v, ok := raw["current"].value(); ok {
		out["current"] = float64(v) / 1000
	} else {
		out["current"] = nil
	}
	if v, ok := raw["consumedAh"].value(); ok {
		out["consumedAh"] = float64(v) / 10
	} else {
		out["consumedAh"] = nil
	}
	if v, ok := raw["soc"].value(); ok {
		out["soc"] = float64(v) / 10
	} else {
		out["soc"] = nil
	}

	if voltage, ok := out["voltage"].(float64); ok {
		if current, ok := out["current"].(float64); ok {
			out["power"] = voltage * current
		}
	}
	return out
}
