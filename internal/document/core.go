package document

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// defaultChannelCapacity is the mutation channel's bound — the system's
// primary backpressure lever.
const defaultChannelCapacity = 1024

// defaultFullStateInterval is the cadence at which a full document snapshot
// is re-emitted to replication subscribers, independent of incremental
// patch traffic.
const defaultFullStateInterval = 5 * time.Minute

// RuleEngine receives deltas produced by a committed patch. Defined at the
// consumer (document doesn't import the rules package) so the narrowest
// interface needed lives right next to its caller.
type RuleEngine interface {
	UpdateState(delta Delta)
}

// Option configures a Core at construction time.
type Option func(*Core)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Core) { c.logger = l }
}

// WithChannelCapacity overrides the mutation channel bound (default 1024).
func WithChannelCapacity(n int) Option {
	return func(c *Core) { c.mutations = make(chan mutationRequest, n) }
}

// WithFullStateInterval overrides FULL_STATE_INTERVAL (default 5m).
func WithFullStateInterval(d time.Duration) Option {
	return func(c *Core) { c.fullStateInterval = d }
}

// WithDisallowedPathTokens overrides the filter-stage blocklist (default
// {"altitude"}).
func WithDisallowedPathTokens(tokens []string) Option {
	return func(c *Core) { c.disallowedTokens = tokens }
}

// WithBoatID sets the boat identifier stamped on every replication event.
func WithBoatID(id string) Option {
	return func(c *Core) { c.boatID = id }
}

// WithRuleEngine wires the component that receives updateState(delta)
// calls on every committed patch.
func WithRuleEngine(re RuleEngine) Option {
	return func(c *Core) { c.ruleEngine = re }
}

// WithRecorder wires an append-only sink invoked with every emitted
// replication event.
func WithRecorder(r Recorder) Option {
	return func(c *Core) { c.recorder = r }
}

type mutationRequest struct {
	ops        []Op
	updateType string
	result     chan<- error
}

// Core owns D and serializes every mutation through a single writer
// goroutine (Run). All other components observe D read-only and request
// mutations through Submit/ApplyPatch or the typed setters.
type Core struct {
	mu     sync.RWMutex
	doc    any // map[string]any, the document root
	logger *slog.Logger

	mutations        chan mutationRequest
	fullStateInterval time.Duration
	disallowedTokens  []string
	boatID            string
	ruleEngine        RuleEngine
	recorder          Recorder

	hasSentInitialFullState bool
	lastFullStateTime       time.Time

	subsMu sync.Mutex
	subs   map[chan ReplicationEvent]struct{}

	bleMu      sync.Mutex
	bleQueues  map[string]*bleBatch // keyed by kind: "discovery" | "update"
}

// NewCore creates a Core seeded with the default document schema: a deep
// template of typed placeholders.
func NewCore(opts ...Option) *Core {
	c := &Core{
		doc:               defaultSchema(),
		logger:            slog.Default(),
		mutations:         make(chan mutationRequest, defaultChannelCapacity),
		fullStateInterval: defaultFullStateInterval,
		disallowedTokens:  append([]string(nil), defaultDisallowedPathTokens...),
		subs:              make(map[chan ReplicationEvent]struct{}),
		bleQueues:         make(map[string]*bleBatch),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run is the State Core writer task: it drains the mutation channel in
// arrival order until ctx is cancelled, applying each request and emitting
// replication events. It owns every write to D; no other goroutine mutates
// doc directly.
func (c *Core) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("document core stopped")
			return
		case req := <-c.mutations:
			err := c.commit(ctx, req.ops, req.updateType)
			if req.result != nil {
				req.result <- err
			}
		}
	}
}

// ApplyPatch submits an RFC 6902 operation sequence for application. It
// blocks until the request is accepted onto the mutation channel (subject
// to the channel's bound — the system's backpressure point) and then blocks
// again until the writer task has processed it, returning any structural
// validation error.
func (c *Core) ApplyPatch(ctx context.Context, ops []Op) error {
	return c.submit(ctx, ops, "")
}

// ApplyPatchTyped is like ApplyPatch but tags the emitted state:patch event
// with an updateType ("discovery" | "update" | "sensor" | "metadata").
func (c *Core) ApplyPatchTyped(ctx context.Context, ops []Op, updateType string) error {
	return c.submit(ctx, ops, updateType)
}

func (c *Core) submit(ctx context.Context, ops []Op, updateType string) error {
	// Structural validation happens before the mutation channel so a
	// malformed submission never consumes a backpressure slot and never
	// reaches the writer task in the first place.
	if err := validateStructure(ops); err != nil {
		return err
	}

	result := make(chan error, 1)
	req := mutationRequest{ops: ops, updateType: updateType, result: result}

	select {
	case c.mutations <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// commit runs the filter/validate/materialize/apply/delta/emit pipeline.
// Must only be called from Run's goroutine.
func (c *Core) commit(ctx context.Context, ops []Op, updateType string) error {
	c.mu.Lock()
	filtered := filterOps(ops, c.disallowedTokens)
	validated := validateOps(c.doc, filtered)
	materialized := materializeOps(c.doc, validated)

	before := c.doc
	after := applyOps(c.doc, materialized)
	c.doc = after
	delta := computeDelta(after, validated)
	c.mu.Unlock()

	_ = before // the same root applyOps mutates in place, not a pre-apply copy

	if c.ruleEngine != nil && len(delta) > 0 {
		c.ruleEngine.UpdateState(delta)
	}

	c.emitPatch(ctx, validated, updateType)
	return nil
}

// emitPatch publishes the incremental replication event for a committed
// patch, interleaving a full snapshot first when shouldEmitFullState says
// the cadence demands one.
func (c *Core) emitPatch(ctx context.Context, ops []Op, updateType string) {
	now := time.Now()

	c.mu.Lock()
	emitFull := shouldEmitFullState(c.hasSentInitialFullState, c.lastFullStateTime, now, c.fullStateInterval)
	if emitFull {
		c.hasSentInitialFullState = true
		c.lastFullStateTime = now
	}
	c.mu.Unlock()

	if emitFull {
		c.emitFullSnapshot(now)
	}

	if len(ops) == 0 {
		return
	}

	evt := ReplicationEvent{
		Patch: &PatchEvent{
			Type:       "state:patch",
			Data:       ops,
			BoatID:     c.boatID,
			Timestamp:  clampTimestamp(now),
			UpdateType: updateType,
		},
	}
	c.publish(evt)
}

// emitFullSnapshot publishes state:full-update with the entire current D.
func (c *Core) emitFullSnapshot(now time.Time) {
	evt := ReplicationEvent{
		Full: &FullUpdateEvent{
			Type:      "state:full-update",
			Data:      c.Snapshot(),
			BoatID:    c.boatID,
			Role:      "boat-server",
			Timestamp: clampTimestamp(now),
		},
	}
	c.publish(evt)
}

func (c *Core) publish(evt ReplicationEvent) {
	if c.recorder != nil {
		c.recorder.Record(evt)
	}
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for ch := range c.subs {
		select {
		case ch <- evt:
		default:
			c.logger.Warn("replication subscriber too slow, dropping event")
		}
	}
}

// Subscribe returns a channel receiving every replication event emitted
// from this point on. The very first subscriber to attach (process-wide)
// triggers an immediate full snapshot, unless a patch has already forced
// one first.
func (c *Core) Subscribe() <-chan ReplicationEvent {
	ch := make(chan ReplicationEvent, 128)

	c.mu.Lock()
	needsFull := !c.hasSentInitialFullState
	if needsFull {
		c.hasSentInitialFullState = true
		c.lastFullStateTime = time.Now()
	}
	c.mu.Unlock()

	c.subsMu.Lock()
	c.subs[ch] = struct{}{}
	c.subsMu.Unlock()

	if needsFull {
		c.emitFullSnapshot(time.Now())
	}
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (c *Core) Unsubscribe(ch <-chan ReplicationEvent) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for existing := range c.subs {
		if (<-chan ReplicationEvent)(existing) == ch {
			delete(c.subs, existing)
			close(existing)
			return
		}
	}
}

// Snapshot returns a deep copy of the entire document D.
func (c *Core) Snapshot() any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneValue(c.doc)
}

// Get resolves a dot-notation or JSON-Pointer path against D, returning the
// value and whether it was present.
func (c *Core) Get(path string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := pointerGet(c.doc, splitPointer(path))
	if !ok {
		return nil, false
	}
	return cloneValue(v), true
}

// shouldEmitFullState is the pure gating predicate driving the replication
// cadence: once after first attach/first successful patch, then again every
// interval.
func shouldEmitFullState(hasSent bool, lastFull, now time.Time, interval time.Duration) bool {
	if !hasSent {
		return true
	}
	return now.Sub(lastFull) >= interval
}

// Recorder is an append-only sink for replication events.
type Recorder interface {
	Record(ReplicationEvent)
}
