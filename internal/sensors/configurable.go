package sensors

import "fmt"

// FieldConfig describes one output field a ConfigurableParser extracts: a
// byte range read as a little- or big-endian integer, optionally signed,
// fed through a Formula as the variable x.
type FieldConfig struct {
	Name         string
	ByteOffset   int
	ByteLength   int
	LittleEndian bool
	Signed       bool
	Formula      *Formula
}

// ConfigurableParser decodes manufacturer-data payloads whose layout is
// described at runtime rather than compiled in, for sensors added without a
// dedicated Parser implementation. Each field's raw integer is fed through
// its own formula rather than a fixed scale factor, so unit conversions
// stay data, not code.
type ConfigurableParser struct {
	Fields []FieldConfig
}

// NewConfigurableParser creates a parser for the given field layout.
func NewConfigurableParser(fields []FieldConfig) *ConfigurableParser {
	return &ConfigurableParser{Fields: fields}
}

// Matches reports whether payload is long enough to satisfy every
// configured field's byte range.
func (p *ConfigurableParser) Matches(payload []byte) bool {
	for _, f := range p.Fields {
		if f.ByteOffset+f.ByteLength > len(payload) {
			return false
		}
	}
	return true
}

// Parse extracts and formula-evaluates every configured field. opts is
// unused; configurable sensors carry no per-device key material.
func (p *ConfigurableParser) Parse(payload []byte, _ ParseOptions) (map[string]any, error) {
	out := make(map[string]any, len(p.Fields))
	for _, f := range p.Fields {
		if f.ByteOffset+f.ByteLength > len(payload) {
			return nil, fmt.Errorf("sensors: configurable field %q out of bounds: payload has %d bytes", f.Name, len(payload))
		}
		raw := readInt(payload[f.ByteOffset:f.ByteOffset+f.ByteLength], f.LittleEndian, f.Signed)
		if f.Formula == nil {
			out[f.Name] = float64(raw)
			continue
		}
		v, err := f.Formula.Eval(float64(raw))
		if err != nil {
			return nil, fmt.Errorf("sensors: field %q: %w", f.Name, err)
		}
		out[f.Name] = v
	}
	return out, nil
}

func readInt(b []byte, littleEndian, signed bool) int64 {
	var raw uint64
	if littleEndian {
		for i := len(b) - 1; i >= 0; i-- {
			raw = raw<<8 | uint64(b[i])
		}
	} else {
		for i := 0; i < len(b); i++ {
			raw = raw<<8 | uint64(b[i])
		}
	}
	width := len(b) * 8
	if signed && width < 64 && raw&(1<<uint(width-1)) != 0 {
		return int64(raw) - int64(1<<uint(width))
	}
	return int64(raw)
}
