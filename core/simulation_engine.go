package core

import (
	"context"

	"github.com/signalsfoundry/flock-simulator/internal/logging"
	"github.com/signalsfoundry/flock-simulator/model"
)

// Notifier receives fire-and-forget motion notifications.
type Notifier interface {
	Emit(ev model.MotionEvent, agentID string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ev model.MotionEvent, agentID string)

// Emit implements Notifier.
func (f NotifierFunc) Emit(ev model.MotionEvent, agentID string) { f(ev, agentID) }

// Simulation is the flocking context: live flocks, movement state and the
// collaborators they need. It is not safe for concurrent use; callers drive
// commands and ticks from a single goroutine or guard it themselves.
type Simulation struct {
	params   Params
	mapSvc   MapService
	notifier Notifier
	log      logging.Logger

	states   *MovementStore
	flocks   *FlockRegistry
	steering *SteeringEngine

	markers    []Marker
	nextMarker uint64

	tick          uint64
	tickListeners []func(uint64)
}

// Option customises Simulation construction.
type Option func(*Simulation)

// WithParams replaces the default tuning.
func WithParams(p Params) Option {
	return func(s *Simulation) {
		s.params = p
	}
}

// WithLogger attaches a structured logger for flock lifecycle events.
func WithLogger(l logging.Logger) Option {
	return func(s *Simulation) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMaxFlocks caps the number of live flocks. Move commands that would
// exceed the cap fail.
func WithMaxFlocks(n int) Option {
	return func(s *Simulation) {
		s.flocks.limit = n
	}
}

// NewSimulation prepares an empty simulation over the given map. Motion
// notifications go to notifier, which may be nil.
func NewSimulation(mapSvc MapService, notifier Notifier, opts ...Option) (*Simulation, error) {
	if mapSvc == nil {
		return nil, ErrNoMapService
	}
	s := &Simulation{
		params:   DefaultParams(),
		mapSvc:   mapSvc,
		notifier: notifier,
		log:      logging.Noop(),
		states:   NewMovementStore(),
		flocks:   NewFlockRegistry(0),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.params.TickRate <= 0 {
		s.params.TickRate = DefaultParams().TickRate
	}
	if s.params.Mass <= 0 {
		s.params.Mass = DefaultParams().Mass
	}
	s.steering = NewSteeringEngine(s.params, s.states)
	return s, nil
}

// Shutdown drops every flock, marker and movement state.
func (s *Simulation) Shutdown() {
	s.flocks.reset()
	s.states.reset()
	s.markers = nil
	s.tickListeners = nil
}

// CommandMove is the input-layer entry point: it drops a marker at the
// clicked world point and issues a move command to its ground projection.
// Empty selections are ignored.
func (s *Simulation) CommandMove(selection []*model.Agent, point model.Vec3) (*Flock, error) {
	if len(selection) == 0 {
		return nil, nil
	}
	s.placeMarker(point)
	return s.issueMove(selection, model.XZ(point))
}

// RegisterTickListener adds a callback run at the end of every tick with the
// new tick count.
func (s *Simulation) RegisterTickListener(fn func(uint64)) {
	s.tickListeners = append(s.tickListeners, fn)
}

// Run advances the simulation by the given number of ticks.
func (s *Simulation) Run(ticks int) {
	for i := 0; i < ticks; i++ {
		s.OnSimulationTick()
	}
}

// Tick returns the number of ticks run so far.
func (s *Simulation) Tick() uint64 { return s.tick }

// Params returns the simulation's tuning.
func (s *Simulation) Params() Params { return s.params }

// Map returns the map service.
func (s *Simulation) Map() MapService { return s.mapSvc }

// Flocks returns the live flocks.
func (s *Simulation) Flocks() []*Flock { return s.flocks.Flocks() }

// FlockOf returns the flock the agent belongs to, or nil.
func (s *Simulation) FlockOf(id string) *Flock { return s.flocks.FlockOf(id) }

// MovementState returns the agent's movement state, if it was ever commanded.
func (s *Simulation) MovementState(id string) (MovementState, bool) {
	return s.states.Get(id)
}

// States exposes the movement store for read-only inspection.
func (s *Simulation) States() StateReader { return s.states }

// TrackedAgents returns the IDs of all agents with movement state.
func (s *Simulation) TrackedAgents() []string { return s.states.IDs() }

func (s *Simulation) emit(ev model.MotionEvent, id string) {
	if s.notifier != nil {
		s.notifier.Emit(ev, id)
	}
}

func (s *Simulation) logDebug(msg string, fields ...logging.Field) {
	s.log.Debug(context.Background(), msg, fields...)
}

func (s *Simulation) logWarn(msg string, fields ...logging.Field) {
	s.log.Warn(context.Background(), msg, fields...)
}
