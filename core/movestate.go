package core

import (
	"fmt"
	"sort"

	"github.com/signalsfoundry/flock-simulator/model"
)

// ArrivalState is an agent's phase of group motion.
type ArrivalState int

const (
	// StateMoving agents steer towards their flock's target.
	StateMoving ArrivalState = iota
	// StateSettling agents are next to stopped flockmates and jostle for space.
	StateSettling
	// StateArrived agents have stopped. Only a new move command leaves this state.
	StateArrived
)

func (s ArrivalState) String() string {
	switch s {
	case StateMoving:
		return "MOVING"
	case StateSettling:
		return "SETTLING"
	case StateArrived:
		return "ARRIVED"
	default:
		return fmt.Sprintf("ArrivalState(%d)", int(s))
	}
}

// MovementState is the per-agent motion record.
type MovementState struct {
	Velocity model.Vec2
	State    ArrivalState
}

// StateReader is the read side of the movement store used by the steering
// behaviours.
type StateReader interface {
	Get(id string) (MovementState, bool)
}

// MovementStore maps agent IDs to their movement state. Entries outlive
// flock membership and are never removed while the simulation runs.
type MovementStore struct {
	states map[string]MovementState
}

// NewMovementStore constructs an empty store.
func NewMovementStore() *MovementStore {
	return &MovementStore{states: make(map[string]MovementState)}
}

// Get returns the state for id and whether it exists.
func (s *MovementStore) Get(id string) (MovementState, bool) {
	ms, ok := s.states[id]
	return ms, ok
}

// Set stores ms for id, replacing any previous value.
func (s *MovementStore) Set(id string, ms MovementState) {
	s.states[id] = ms
}

// Ensure returns the state for id, creating a zero-velocity MOVING entry if
// absent. created reports whether a new entry was made.
func (s *MovementStore) Ensure(id string) (ms MovementState, created bool) {
	if ms, ok := s.states[id]; ok {
		return ms, false
	}
	ms = MovementState{State: StateMoving}
	s.states[id] = ms
	return ms, true
}

// Len returns the number of tracked agents.
func (s *MovementStore) Len() int {
	return len(s.states)
}

// IDs returns the tracked agent IDs in sorted order.
func (s *MovementStore) IDs() []string {
	ids := make([]string, 0, len(s.states))
	for id := range s.states {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *MovementStore) reset() {
	s.states = make(map[string]MovementState)
}

// mustGet looks up a state that the flock invariants guarantee exists.
func mustGet(r StateReader, id string) MovementState {
	ms, ok := r.Get(id)
	if !ok {
		panic(fmt.Sprintf("core: flock member %q has no movement state", id))
	}
	return ms
}
