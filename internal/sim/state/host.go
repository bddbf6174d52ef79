package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/signalsfoundry/flock-simulator/core"
	"github.com/signalsfoundry/flock-simulator/internal/journal"
	"github.com/signalsfoundry/flock-simulator/internal/logging"
	"github.com/signalsfoundry/flock-simulator/kb"
	"github.com/signalsfoundry/flock-simulator/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrEmptySelection indicates a move command named no known agents.
	ErrEmptySelection = errors.New("selection contains no known agents")
	// ErrInvalidTarget indicates a move target with a NaN or infinite component.
	ErrInvalidTarget = errors.New("move target must be finite")
	// ErrAgentNotFound indicates a requested agent was not found.
	ErrAgentNotFound = kb.ErrAgentNotFound
	// ErrAgentExists indicates an agent with the same ID is already stored.
	ErrAgentExists = kb.ErrAgentExists
	// ErrFlockAlloc indicates the simulation could not allocate a flock.
	ErrFlockAlloc = core.ErrFlockAlloc
)

// Command result labels reported to the metrics recorder.
const (
	ResultAccepted = "accepted"
	ResultEmpty    = "empty_selection"
	ResultInvalid  = "invalid_target"
	ResultRejected = "rejected"
)

// MetricsRecorder receives per-tick and per-command measurements.
type MetricsRecorder interface {
	ObserveTick(d time.Duration, flocks int, agentsByState map[string]int)
	ObserveCommand(result string)
	ObserveMotionEvent(event string)
}

// JournalSink durably records commands, motion events and tick traces.
type JournalSink interface {
	RecordCommand(journal.CommandRecord) error
	RecordMotion(journal.MotionRecord) error
	RecordTick(journal.TickEntry) error
}

// Host owns one simulation and the agent store it moves. Commands, ticks and
// reads are serialised by a single lock, so the simulation itself never sees
// concurrent access.
//
// The simulation must publish its motion notifications to the same store,
// which is how the host observes them.
type Host struct {
	mu sync.RWMutex

	store *kb.KnowledgeBase
	sim   *core.Simulation

	log     logging.Logger
	metrics MetricsRecorder
	journal JournalSink
	tracer  trace.Tracer

	last Snapshot

	subMu   sync.Mutex
	subs    map[int]func(Snapshot)
	nextSub int

	unsubscribeKB func()
}

// CommandResult describes an accepted move command.
type CommandResult struct {
	ID   string
	Tick uint64
	// FlockID names the registered flock. When every selected agent was
	// ineligible the flock is empty and is disbanded on the next tick.
	FlockID  uint64
	Admitted []string
	Skipped  []string
}

// HostOption customises Host construction.
type HostOption func(*Host)

// WithMetricsRecorder attaches an optional metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) HostOption {
	return func(h *Host) {
		h.metrics = m
	}
}

// WithJournal attaches an optional durable sink.
func WithJournal(j JournalSink) HostOption {
	return func(h *Host) {
		h.journal = j
	}
}

// WithTracer overrides the tracer used for command and tick spans.
func WithTracer(t trace.Tracer) HostOption {
	return func(h *Host) {
		if t != nil {
			h.tracer = t
		}
	}
}

// NewHost wraps a store and a simulation that notifies through that store.
func NewHost(store *kb.KnowledgeBase, sim *core.Simulation, log logging.Logger, opts ...HostOption) *Host {
	if log == nil {
		log = logging.Noop()
	}
	h := &Host{
		store:  store,
		sim:    sim,
		log:    log,
		tracer: otel.Tracer("github.com/signalsfoundry/flock-simulator/internal/sim/state"),
		subs:   make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	h.unsubscribeKB = store.Subscribe(h.onStoreEvent)
	h.last = h.snapshotLocked()
	return h
}

// Close detaches the host from the store and shuts the simulation down.
func (h *Host) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.unsubscribeKB != nil {
		h.unsubscribeKB()
		h.unsubscribeKB = nil
	}
	h.sim.Shutdown()
}

// AddAgent places a new agent in the store.
func (h *Host) AddAgent(a *model.Agent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.store.AddAgent(a)
}

// IssueMove orders the agents with the given IDs toward target. Unknown IDs
// are skipped; a selection with no known agents fails with ErrEmptySelection
// and a non-finite target with ErrInvalidTarget.
func (h *Host) IssueMove(ctx context.Context, ids []string, target model.Vec3) (CommandResult, error) {
	ctx, span := h.tracer.Start(ctx, "flock.IssueMove", trace.WithAttributes(
		attribute.Int("flock.selection_size", len(ids)),
	))
	defer span.End()

	h.mu.Lock()
	res := CommandResult{ID: uuid.NewString(), Tick: h.sim.Tick()}
	var err error
	if model.Finite(target) {
		res, err = h.issueMoveLocked(res, ids, target)
	} else {
		err = fmt.Errorf("%w: %v", ErrInvalidTarget, target)
	}
	h.mu.Unlock()

	result := ResultAccepted
	switch {
	case errors.Is(err, ErrEmptySelection):
		result = ResultEmpty
	case errors.Is(err, ErrInvalidTarget):
		result = ResultInvalid
	case err != nil:
		result = ResultRejected
	}
	h.observeCommand(ctx, res, ids, target, result, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return CommandResult{}, err
	}
	span.SetAttributes(
		attribute.String("flock.command_id", res.ID),
		attribute.Int64("flock.flock_id", int64(res.FlockID)),
		attribute.Int("flock.admitted", len(res.Admitted)),
	)
	return res, nil
}

func (h *Host) issueMoveLocked(res CommandResult, ids []string, target model.Vec3) (CommandResult, error) {
	selection := h.store.Select(ids...)
	if len(selection) == 0 {
		return res, fmt.Errorf("%w: %v", ErrEmptySelection, ids)
	}
	flock, err := h.sim.CommandMove(selection, target)
	if flock != nil {
		res.FlockID = flock.ID()
	}
	for _, a := range selection {
		if a.CanFlock() {
			res.Admitted = append(res.Admitted, a.ID)
		} else {
			res.Skipped = append(res.Skipped, a.ID)
		}
	}
	return res, err
}

func (h *Host) observeCommand(ctx context.Context, res CommandResult, ids []string, target model.Vec3, result string, err error) {
	if h.metrics != nil {
		h.metrics.ObserveCommand(result)
	}
	rec := journal.CommandRecord{
		ID:       res.ID,
		Tick:     res.Tick,
		AgentIDs: ids,
		Accepted: err == nil,
		FlockID:  res.FlockID,
	}
	// Non-finite values have no JSON or SQLite encoding; the error text keeps them.
	if model.Finite(target) {
		rec.Target = target
	}
	if err != nil {
		rec.Error = err.Error()
	}
	if h.journal != nil {
		if jerr := h.journal.RecordCommand(rec); jerr != nil {
			h.log.Warn(ctx, "journal command failed", logging.Err(jerr))
		}
	}

	if err != nil {
		h.log.Warn(ctx, "move command rejected",
			logging.String("result", result),
			logging.Int("selection", len(ids)),
			logging.Err(err),
		)
		return
	}
	h.log.Info(ctx, "move command accepted",
		logging.String("command_id", res.ID),
		logging.Uint64("flock_id", res.FlockID),
		logging.Int("admitted", len(res.Admitted)),
		logging.Int("skipped", len(res.Skipped)),
		logging.Float64("target_x", target.X()),
		logging.Float64("target_z", target.Z()),
	)
}

// Step runs one simulation tick and publishes the resulting snapshot.
func (h *Host) Step(ctx context.Context) Snapshot {
	_, span := h.tracer.Start(ctx, "flock.Tick")
	defer span.End()

	h.mu.Lock()
	start := time.Now()
	h.sim.OnSimulationTick()
	elapsed := time.Since(start)
	snap := h.snapshotLocked()
	h.last = snap
	h.mu.Unlock()

	span.SetAttributes(
		attribute.Int64("flock.tick", int64(snap.Tick)),
		attribute.Int("flock.flocks", len(snap.Flocks)),
	)

	if h.metrics != nil {
		h.metrics.ObserveTick(elapsed, len(snap.Flocks), snap.CountByState())
	}
	if h.journal != nil {
		if err := h.journal.RecordTick(snap.TraceEntry()); err != nil {
			h.log.Warn(ctx, "journal tick failed", logging.Uint64("tick", snap.Tick), logging.Err(err))
		}
	}
	h.publish(snap)
	return snap
}

// OnTick adapts Step to a tick-driver listener.
func (h *Host) OnTick(uint64, time.Time) {
	h.Step(context.Background())
}

// Snapshot returns the state as of the last tick or command.
func (h *Host) Snapshot() Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snapshotLocked()
}

// LastTick returns the snapshot published by the most recent Step.
func (h *Host) LastTick() Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.last
}

// AgentState returns the current view of one agent.
func (h *Host) AgentState(id string) (AgentView, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	a := h.store.GetAgent(id)
	if a == nil {
		return AgentView{}, fmt.Errorf("%w: %q", ErrAgentNotFound, id)
	}
	return h.agentViewLocked(a), nil
}

// Flocks returns the live flocks.
func (h *Host) Flocks() []FlockView {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.flocksLocked()
}

// Params returns the simulation's tuning.
func (h *Host) Params() core.Params {
	return h.sim.Params()
}

// MapBounds returns the map's extent when the map service knows it.
func (h *Host) MapBounds() (core.Bounds, bool) {
	if b, ok := h.sim.Map().(core.Bounded); ok {
		return b.MapBounds(), true
	}
	return core.Bounds{}, false
}

// HeightAt samples the map's terrain height at p.
func (h *Host) HeightAt(p model.Vec2) float64 {
	return h.sim.Map().HeightAt(p)
}

// Subscribe registers fn to receive every tick's snapshot. fn runs on the
// ticking goroutine and must not block.
func (h *Host) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	id := h.nextSub
	h.nextSub++
	h.subs[id] = fn
	return func() {
		h.subMu.Lock()
		defer h.subMu.Unlock()
		delete(h.subs, id)
	}
}

func (h *Host) publish(snap Snapshot) {
	h.subMu.Lock()
	subs := make([]func(Snapshot), 0, len(h.subs))
	for id := 0; id < h.nextSub; id++ {
		if fn, ok := h.subs[id]; ok {
			subs = append(subs, fn)
		}
	}
	h.subMu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

// onStoreEvent runs synchronously inside Simulation calls, which happen with
// h.mu held, so it must not take the lock.
func (h *Host) onStoreEvent(ev kb.Event) {
	if ev.Type != kb.EventMotionStart && ev.Type != kb.EventMotionEnd {
		return
	}
	if h.metrics != nil {
		h.metrics.ObserveMotionEvent(ev.Type.String())
	}
	if h.journal != nil {
		rec := journal.MotionRecord{Tick: h.sim.Tick(), AgentID: ev.AgentID, Event: ev.Type.String()}
		if err := h.journal.RecordMotion(rec); err != nil {
			h.log.Warn(context.Background(), "journal motion event failed", logging.Err(err))
		}
	}
	h.log.Debug(context.Background(), "motion event",
		logging.String("agent_id", ev.AgentID),
		logging.String("event", ev.Type.String()),
	)
}
