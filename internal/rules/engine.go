package rules

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rathix/relay/internal/document"
)

const (
	defaultDebounceInterval = 1000 * time.Millisecond
	defaultDebounceMaxWait  = 5000 * time.Millisecond
)

// ActionsListener receives the action batch a single evaluation cycle
// produced. The Alert Service is the only consumer in this system, wired
// the same way notify.Engine is handed a StateSource rather than the
// engine reaching out to it.
type ActionsListener interface {
	ProcessActions(actions []Action)
}

// EngineOption configures an Engine at construction time.
type EngineOption func(*Engine)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logOrDefault(l) }
}

// WithDebounceInterval overrides the nominal debounce interval (default
// 1000ms).
func WithDebounceInterval(d time.Duration) EngineOption {
	return func(e *Engine) { e.debounceInterval = d }
}

// WithDebounceMaxWait overrides the debounce ceiling (default 5000ms).
func WithDebounceMaxWait(d time.Duration) EngineOption {
	return func(e *Engine) { e.debounceMaxWait = d }
}

// WithActionsListener wires the consumer of each cycle's action batch.
func WithActionsListener(l ActionsListener) EngineOption {
	return func(e *Engine) { e.listener = l }
}

// WithMaxRules overrides the soft cap on registered rule count (default 20).
func WithMaxRules(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxRules = n
		}
	}
}

// WithMaxDependencies overrides the soft cap on a single rule's DependsOn
// length (default 5).
func WithMaxDependencies(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxDependencies = n
		}
	}
}

// Stats exposes the engine's running evaluation counters for operational
// visibility.
type Stats struct {
	EvaluationCount     int64
	RulesTriggeredCount int64
	AvgEvaluationTime   time.Duration
	LastEvaluationTime  time.Time
}

// Engine is the Rule Engine: it holds the registered rule set, a flat
// path-keyed state cache, the path-to-rule reverse index, and a debounced
// evaluator. It implements document.RuleEngine so document.Core can call
// UpdateState(delta) without importing this package.
type Engine struct {
	logger           *slog.Logger
	debounceInterval time.Duration
	debounceMaxWait  time.Duration
	listener         ActionsListener
	maxRules         int
	maxDependencies  int

	mu            sync.Mutex
	rules         []Rule
	byPath        map[string][]int // dependency path -> rule indices
	globalBucket  []int            // rule indices with no DependsOn
	cache         map[string]any   // flat path -> last-seen value
	snapshotFn    func() map[string]any

	stats Stats

	debouncer *Debouncer
}

// NewEngine creates an Engine with no rules registered. Register domain
// rules with Register before wiring it to a document.Core.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		logger:           slog.Default(),
		debounceInterval: defaultDebounceInterval,
		debounceMaxWait:  defaultDebounceMaxWait,
		maxRules:         maxRules,
		maxDependencies:  maxDependencies,
		byPath:           make(map[string][]int),
		cache:            make(map[string]any),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.debouncer = NewDebouncer(e.debounceInterval, e.debounceMaxWait, e.runCycle)
	return e
}

// Register adds a rule to the engine, indexing it by its dependency paths
// (or the global bucket if DependsOn is empty). Soft caps on rule count and
// per-rule dependency count are logged, not enforced.
func (e *Engine) Register(r Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := len(e.rules)
	e.rules = append(e.rules, r)

	if len(e.rules) > e.maxRules {
		e.logger.Warn("rule count exceeds soft cap", "count", len(e.rules), "cap", e.maxRules)
	}
	if len(r.DependsOn) > e.maxDependencies {
		e.logger.Warn("rule dependency count exceeds soft cap", "rule", r.Name, "count", len(r.DependsOn), "cap", e.maxDependencies)
	}

	if len(r.DependsOn) == 0 {
		e.globalBucket = append(e.globalBucket, idx)
		return
	}
	for _, p := range r.DependsOn {
		e.byPath[p] = append(e.byPath[p], idx)
	}
}

// UpdateState implements document.RuleEngine. It folds delta into the
// engine's flat cache, records which paths actually changed by deep
// equality, and hands the resulting candidate rule set to the debouncer.
func (e *Engine) UpdateState(delta document.Delta) {
	e.mu.Lock()
	changed := make([]string, 0, len(delta))
	for path, v := range delta {
		if _, isRemoved := v.(document.Removed); isRemoved {
			if _, existed := e.cache[path]; existed {
				delete(e.cache, path)
				changed = append(changed, path)
			}
			continue
		}
		if prev, ok := e.cache[path]; !ok || !deepEqual(prev, v) {
			e.cache[path] = v
			changed = append(changed, path)
		}
	}
	if len(changed) == 0 {
		e.mu.Unlock()
		return
	}

	candidates := make(map[string]struct{}, len(e.globalBucket))
	for _, idx := range e.globalBucket {
		candidates[e.rules[idx].Name] = struct{}{}
	}
	for _, path := range changed {
		for _, idx := range e.matchingRuleIndices(path) {
			candidates[e.rules[idx].Name] = struct{}{}
		}
	}
	e.mu.Unlock()

	if len(candidates) == 0 {
		return
	}
	e.debouncer.Add(candidates)
}

// matchingRuleIndices returns rule indices whose DependsOn entry is an
// ancestor of (or equal to) the changed path — e.g. a rule depending on
// "navigation.position" matches a delta at "navigation.position.latitude".
// Must be called with e.mu held.
func (e *Engine) matchingRuleIndices(changedPath string) []int {
	var out []int
	tokens := strings.Split(changedPath, ".")
	for i := len(tokens); i >= 1; i-- {
		prefix := strings.Join(tokens[:i], ".")
		out = append(out, e.byPath[prefix]...)
	}
	return out
}

// Stop cancels any pending debounce timer.
func (e *Engine) Stop() {
	e.debouncer.Stop()
}

// StatsSnapshot returns a copy of the engine's current evaluation counters.
func (e *Engine) StatsSnapshot() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// SetSnapshotSource wires the function evaluation cycles call to obtain the
// current state view. The Rule Engine does not own D — the composition
// root supplies document.Core.Snapshot (type-asserted to map[string]any)
// so no import cycle exists back to document.Core.
func (e *Engine) SetSnapshotSource(fn func() map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.snapshotFn = fn
}

func (e *Engine) runCycle(candidates map[string]struct{}) {
	e.mu.Lock()
	names := make([]Rule, 0, len(candidates))
	for _, r := range e.rules {
		if _, ok := candidates[r.Name]; ok {
			names = append(names, r)
		}
	}
	snapshotFn := e.snapshotFn
	e.mu.Unlock()

	sort.SliceStable(names, func(i, j int) bool {
		return names[i].Priority > names[j].Priority
	})

	var state map[string]any
	if snapshotFn != nil {
		state = snapshotFn()
	} else {
		state = map[string]any{}
	}

	start := time.Now()
	var actions []Action
	triggered := 0

	for _, rule := range names {
		act := e.evaluateRule(rule, state)
		if act != nil {
			triggered++
			act.RuleName = rule.Name
			act.Timestamp = start
			actions = append(actions, *act)
		}
	}

	e.mu.Lock()
	e.stats.EvaluationCount++
	e.stats.RulesTriggeredCount += int64(triggered)
	e.stats.LastEvaluationTime = start
	elapsed := time.Since(start)
	if e.stats.EvaluationCount == 1 {
		e.stats.AvgEvaluationTime = elapsed
	} else {
		e.stats.AvgEvaluationTime = (e.stats.AvgEvaluationTime*time.Duration(e.stats.EvaluationCount-1) + elapsed) / time.Duration(e.stats.EvaluationCount)
	}
	e.mu.Unlock()

	if e.listener != nil && len(actions) > 0 {
		e.listener.ProcessActions(actions)
	}
}

// evaluateRule runs a single rule's Condition/Action, recovering from any
// panic so one broken rule never aborts the cycle.
func (e *Engine) evaluateRule(rule Rule, state map[string]any) (result *Action) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("rule evaluation panicked", "rule", rule.Name, "recovered", r)
			result = nil
		}
	}()

	ctx := Context{State: state, Source: "document"}
	if !rule.Condition(state, ctx) {
		return nil
	}
	return rule.Action(state, ctx)
}
