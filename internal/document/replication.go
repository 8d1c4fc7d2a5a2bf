package document

// FullUpdateEvent is the wire shape of a state:full-update broadcast.
type FullUpdateEvent struct {
	Type      string `json:"type"`
	Data      any    `json:"data"`
	BoatID    string `json:"boatId"`
	Role      string `json:"role"`
	Timestamp int64  `json:"timestamp"`
}

// PatchEvent is the wire shape of a state:patch broadcast.
type PatchEvent struct {
	Type       string `json:"type"`
	Data       []Op   `json:"data"`
	BoatID     string `json:"boatId"`
	Timestamp  int64  `json:"timestamp"`
	UpdateType string `json:"updateType,omitempty"`
}

// ReplicationEvent is a discriminated union over the two replication
// channels. Exactly one of Full/Patch is non-nil — modeled as a tagged
// struct rather than an interface{} so a subscriber's switch is exhaustive
// and the compiler enforces it.
type ReplicationEvent struct {
	Full  *FullUpdateEvent
	Patch *PatchEvent
}
