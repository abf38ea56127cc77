// Package engine implements the facade operations of §4.3: compile, start,
// tick_instance, activate_jobs, complete_job, fail_job, signal, cancel,
// inspect, read_events, plus the supplemented run_instance and TickAll.
// The Engine owns nothing but its dependencies (a Store, an Emitter, a
// metrics Set, a clock, a hasher) — all durable state lives behind the
// Store, mirroring the teacher's Engine/Store split in graph/engine.go and
// graph/store. The VM package supplies the pure step/race logic this
// package persists and fans out as RuntimeEvents.
package engine

import (
	"time"

	"github.com/adamtc007/ob-poc-sub001/bpmn"
	"github.com/adamtc007/ob-poc-sub001/bpmn/emit"
	"github.com/adamtc007/ob-poc-sub001/bpmn/metrics"
	"github.com/adamtc007/ob-poc-sub001/bpmn/store"
)

// defaultMaxSteps bounds a single fiber's uninterrupted run within one
// tick_instance call (§9's halting property; §4.2 Step contract).
const defaultMaxSteps = 1000

// defaultActivationTimeout is how long an activated job stays InFlight
// before a worker is assumed to have dropped it. Not currently enforced by
// a reclaim pass (no spec operation requires one); carried on the
// JobActivation record for a future worker-liveness sweep to use.
const defaultActivationTimeout = 5 * time.Minute

// Engine is the facade over one Store, wiring the VM's pure step/race
// functions to persistence and observability. Safe for concurrent use
// across different instance ids; callers ticking the same instance
// concurrently must serialize themselves (§5's single-writer-per-instance
// rule) — TickAll does this per instance, one goroutine each.
type Engine struct {
	store   store.Store
	emitter emit.Emitter
	metrics *metrics.Set

	maxSteps int
	clock    func() time.Time
	hasher   func([]byte) bpmn.Hash256
}

// Option configures an Engine at construction, the same functional-options
// shape as the teacher's graph.Option (graph/options.go).
type Option func(*Engine)

// WithMaxSteps overrides the per-tick fiber step budget (default 1000).
func WithMaxSteps(n int) Option {
	return func(e *Engine) { e.maxSteps = n }
}

// WithEmitter sets the observability side-channel (default: discard-all).
func WithEmitter(em emit.Emitter) Option {
	return func(e *Engine) { e.emitter = em }
}

// WithMetrics attaches a Prometheus metric Set (default: nil, metrics
// calls are skipped).
func WithMetrics(m *metrics.Set) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides the engine's notion of "now" (default: time.Now),
// for deterministic tests driving timer/cycle behavior.
func WithClock(f func() time.Time) Option {
	return func(e *Engine) { e.clock = f }
}

// WithHasher overrides the content-addressing hash (default:
// bpmn.HashBytes), for tests that want a cheaper non-cryptographic digest.
func WithHasher(f func([]byte) bpmn.Hash256) Option {
	return func(e *Engine) { e.hasher = f }
}

// New constructs an Engine over st with the given options applied in order.
func New(st store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:    st,
		emitter:  emit.NewNullEmitter(),
		maxSteps: defaultMaxSteps,
		clock:    time.Now,
		hasher:   bpmn.HashBytes,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// nowMs is the VM-facing clock: milliseconds since epoch, per §4.2's
// WaitTimer/WaitAny contracts which operate on nowMs() rather than
// time.Time directly.
func (e *Engine) nowMs() int64 {
	return e.clock().UnixMilli()
}
