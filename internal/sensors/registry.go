// Package sensors maps BLE manufacturer-data payloads to typed sensor
// records: a registry keyed by manufacturer identifier, a Victron AES-128-CTR
// codec, and a configurable parser driven by a small formula evaluator.
package sensors

import "encoding/binary"

// Parser decodes one manufacturer's BLE advertisement payload into a
// record, or reports it does not recognize the payload.
type Parser interface {
	// Matches reports whether payload looks like this parser's format,
	// beyond the manufacturer ID dispatch the Registry already performed.
	Matches(payload []byte) bool
	// Parse decodes payload into a record. A nil record with a nil error
	// means the payload was recognized but could not be decoded (bad
	// integrity check, missing key) — distinct from a non-nil error, which
	// signals malformed input (wrong length, truncated frame).
	Parse(payload []byte, opts ParseOptions) (map[string]any, error)
}

// ParseOptions carries per-device decode parameters a Parser may need.
type ParseOptions struct {
	EncryptionKey []byte
}

// Registry dispatches a manufacturer-data payload to the Parser registered
// for its little-endian manufacturer identifier (the payload's first two
// bytes).
type Registry struct {
	parsers map[uint16]Parser
}

// NewRegistry creates an empty parser registry.
func NewRegistry() *Registry {
	return &Registry{parsers: make(map[uint16]Parser)}
}

// Register associates manufacturerID with parser, replacing any previous
// registration for that ID.
func (r *Registry) Register(manufacturerID uint16, parser Parser) {
	r.parsers[manufacturerID] = parser
}

// FindParserFor returns the parser registered for payload's manufacturer
// ID, or (nil, false) if none matches or the payload is too short to carry
// one.
func (r *Registry) FindParserFor(payload []byte) (Parser, bool) {
	if len(payload) < 2 {
		return nil, false
	}
	id := binary.LittleEndian.Uint16(payload[:2])
	p, ok := r.parsers[id]
	return p, ok
}
