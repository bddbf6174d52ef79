package core

import (
	"errors"

	"github.com/signalsfoundry/flock-simulator/internal/logging"
	"github.com/signalsfoundry/flock-simulator/model"
)

// ErrFlockAlloc is returned when the registry cannot take another flock.
var ErrFlockAlloc = errors.New("flock allocation failed")

// Flock is a set of agents sharing one destination.
//
// Members keep the order they were admitted in; the tick integrator walks
// them in that order so runs are reproducible.
type Flock struct {
	id      uint64
	members []*model.Agent
	index   map[string]int
	target  model.Vec2
}

func newFlock(id uint64, target model.Vec2) *Flock {
	return &Flock{
		id:     id,
		index:  make(map[string]int),
		target: target,
	}
}

// ID returns the registry-assigned flock ID.
func (f *Flock) ID() uint64 { return f.id }

// Target returns the flock's ground-plane destination.
func (f *Flock) Target() model.Vec2 { return f.target }

// Len returns the number of members.
func (f *Flock) Len() int { return len(f.members) }

// Contains reports whether the agent with the given ID is a member.
func (f *Flock) Contains(id string) bool {
	_, ok := f.index[id]
	return ok
}

// Members returns a copy of the member list in iteration order.
func (f *Flock) Members() []*model.Agent {
	return append([]*model.Agent(nil), f.members...)
}

// MemberIDs returns member IDs in iteration order.
func (f *Flock) MemberIDs() []string {
	ids := make([]string, len(f.members))
	for i, m := range f.members {
		ids[i] = m.ID
	}
	return ids
}

func (f *Flock) add(a *model.Agent) bool {
	if f.Contains(a.ID) {
		return false
	}
	f.index[a.ID] = len(f.members)
	f.members = append(f.members, a)
	return true
}

func (f *Flock) remove(id string) bool {
	i, ok := f.index[id]
	if !ok {
		return false
	}
	f.members = append(f.members[:i], f.members[i+1:]...)
	delete(f.index, id)
	for j := i; j < len(f.members); j++ {
		f.index[f.members[j].ID] = j
	}
	return true
}

// FlockRegistry owns the live flocks.
type FlockRegistry struct {
	flocks []*Flock
	nextID uint64
	// limit caps the number of live flocks; zero means unlimited.
	limit int
}

// NewFlockRegistry constructs an empty registry. A positive limit caps the
// number of live flocks.
func NewFlockRegistry(limit int) *FlockRegistry {
	return &FlockRegistry{limit: limit}
}

// Len returns the number of live flocks.
func (r *FlockRegistry) Len() int { return len(r.flocks) }

// Flocks returns the live flocks in registration order.
func (r *FlockRegistry) Flocks() []*Flock {
	return append([]*Flock(nil), r.flocks...)
}

// FlockOf returns the flock containing the agent, or nil.
func (r *FlockRegistry) FlockOf(id string) *Flock {
	for _, f := range r.flocks {
		if f.Contains(id) {
			return f
		}
	}
	return nil
}

// Get returns the flock with the given ID, or nil.
func (r *FlockRegistry) Get(id uint64) *Flock {
	for _, f := range r.flocks {
		if f.id == id {
			return f
		}
	}
	return nil
}

// detach removes the agent from every flock holding it and destroys flocks
// left empty. The walk runs from the back so removals do not disturb the
// indices still to be visited.
func (r *FlockRegistry) detach(id string) (destroyed []uint64) {
	for i := len(r.flocks) - 1; i >= 0; i-- {
		f := r.flocks[i]
		f.remove(id)
		if f.Len() == 0 {
			destroyed = append(destroyed, f.id)
			r.removeAt(i)
		}
	}
	return destroyed
}

// allocate creates an unregistered flock, failing when the registry is full.
func (r *FlockRegistry) allocate(target model.Vec2) (*Flock, error) {
	if r.limit > 0 && len(r.flocks) >= r.limit {
		return nil, ErrFlockAlloc
	}
	r.nextID++
	return newFlock(r.nextID, target), nil
}

func (r *FlockRegistry) register(f *Flock) {
	r.flocks = append(r.flocks, f)
}

func (r *FlockRegistry) removeAt(i int) {
	r.flocks = append(r.flocks[:i], r.flocks[i+1:]...)
}

func (r *FlockRegistry) reset() {
	r.flocks = nil
}

// IssueMoveCommand forms a new flock from the eligible agents in selection,
// heading for target. Agents already in other flocks are moved out first;
// flocks left empty are destroyed. Agents keep their velocity across the
// move; those with no movement state start at rest.
//
// It returns false only when the flock cannot be allocated, in which case
// the membership cleanup already done stays applied.
func (s *Simulation) IssueMoveCommand(selection []*model.Agent, target model.Vec2) bool {
	_, err := s.issueMove(selection, target)
	return err == nil
}

func (s *Simulation) issueMove(selection []*model.Agent, target model.Vec2) (*Flock, error) {
	for _, a := range selection {
		if !a.CanFlock() {
			continue
		}
		for _, id := range s.flocks.detach(a.ID) {
			s.logDebug("flock emptied by regroup", logging.Uint64("flock_id", id))
		}
	}

	flock, err := s.flocks.allocate(target)
	if err != nil {
		s.logWarn("move command rejected", logging.Err(err), logging.Int("live_flocks", s.flocks.Len()))
		return nil, err
	}

	for _, a := range selection {
		if !a.CanFlock() {
			continue
		}
		if !flock.add(a) {
			continue
		}

		ms, created := s.states.Ensure(a.ID)
		if created {
			s.emit(model.MotionStart, a.ID)
			continue
		}
		if ms.State == StateArrived {
			s.emit(model.MotionStart, a.ID)
		}
		ms.State = StateMoving
		s.states.Set(a.ID, ms)
	}

	s.flocks.register(flock)
	s.logDebug("flock created",
		logging.Uint64("flock_id", flock.id),
		logging.Int("members", flock.Len()),
		logging.Float64("target_x", target.X()),
		logging.Float64("target_z", target.Y()),
	)
	return flock, nil
}
