package kb

import (
	"errors"
	"fmt"
	"sync"

	"github.com/signalsfoundry/flock-simulator/model"
)

var (
	// ErrAgentExists indicates an agent with the same ID is already stored.
	ErrAgentExists = errors.New("agent already exists")
	// ErrAgentNotFound indicates a requested agent was not found.
	ErrAgentNotFound = errors.New("agent not found")
)

// EventType indicates what kind of change happened in the KB.
type EventType int

const (
	EventAgentUpdated EventType = iota
	EventAgentRemoved
	EventMotionStart
	EventMotionEnd
)

func (t EventType) String() string {
	switch t {
	case EventAgentUpdated:
		return "agent_updated"
	case EventAgentRemoved:
		return "agent_removed"
	case EventMotionStart:
		return "motion_start"
	case EventMotionEnd:
		return "motion_end"
	default:
		return "unknown"
	}
}

// Event is emitted to subscribers when something interesting happens.
type Event struct {
	Type    EventType
	AgentID string
	// Agent is a copy of the agent at the time of the event. It is the zero
	// value for motion events on agents the KB does not hold.
	Agent model.Agent
}

// KnowledgeBase is an in-memory, thread-safe store for agents. It doubles as
// the notification bus the simulator publishes motion events on.
//
// Agents are stored by pointer so the simulator can update poses in place.
// Callers that mutate agents outside the KB are responsible for their own
// synchronisation.
type KnowledgeBase struct {
	mu sync.RWMutex

	agents map[string]*model.Agent
	order  []string

	subs   map[int]func(Event)
	nextID int
}

// NewKnowledgeBase constructs an empty KB.
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{
		agents: make(map[string]*model.Agent),
		subs:   make(map[int]func(Event)),
	}
}

// AddAgent adds a new agent. It returns ErrAgentExists if the ID is taken.
func (kb *KnowledgeBase) AddAgent(a *model.Agent) error {
	if a == nil {
		return errors.New("agent is nil")
	}
	if a.ID == "" {
		return errors.New("agent ID is required")
	}

	kb.mu.Lock()
	defer kb.mu.Unlock()

	if _, exists := kb.agents[a.ID]; exists {
		return fmt.Errorf("%w: %q", ErrAgentExists, a.ID)
	}
	if a.Rotation == (model.Quat{}) {
		a.Rotation = model.IdentityQuat
	}
	kb.agents[a.ID] = a
	kb.order = append(kb.order, a.ID)
	return nil
}

// RemoveAgent deletes the agent with the given ID and notifies subscribers.
func (kb *KnowledgeBase) RemoveAgent(id string) error {
	kb.mu.Lock()
	a, ok := kb.agents[id]
	if !ok {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrAgentNotFound, id)
	}
	delete(kb.agents, id)
	for i, v := range kb.order {
		if v == id {
			kb.order = append(kb.order[:i], kb.order[i+1:]...)
			break
		}
	}
	event := Event{Type: EventAgentRemoved, AgentID: id, Agent: *a}
	subs := kb.subscribersLocked()
	kb.mu.Unlock()

	notify(subs, event)
	return nil
}

// GetAgent returns the agent with the given ID, or nil if not found.
func (kb *KnowledgeBase) GetAgent(id string) *model.Agent {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.agents[id]
}

// ListAgents returns a snapshot slice of all agents in insertion order.
func (kb *KnowledgeBase) ListAgents() []*model.Agent {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	res := make([]*model.Agent, 0, len(kb.order))
	for _, id := range kb.order {
		res = append(res, kb.agents[id])
	}
	return res
}

// Len returns the number of stored agents.
func (kb *KnowledgeBase) Len() int {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return len(kb.agents)
}

// Select resolves IDs into an ordered selection of agent references.
// Unknown and duplicate IDs are skipped; the first occurrence wins.
func (kb *KnowledgeBase) Select(ids ...string) []*model.Agent {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	seen := make(map[string]struct{}, len(ids))
	sel := make([]*model.Agent, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		a, ok := kb.agents[id]
		if !ok {
			continue
		}
		seen[id] = struct{}{}
		sel = append(sel, a)
	}
	return sel
}

// UpdateAgentPose sets an agent's position and rotation and notifies
// subscribers.
func (kb *KnowledgeBase) UpdateAgentPose(id string, pos model.Vec3, rot model.Quat) error {
	kb.mu.Lock()
	a, ok := kb.agents[id]
	if !ok {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrAgentNotFound, id)
	}
	a.Position = pos
	a.Rotation = rot
	event := Event{
		Type:    EventAgentUpdated,
		AgentID: id,
		Agent:   *a, // copy for safety
	}
	subs := kb.subscribersLocked()
	kb.mu.Unlock()

	// Notify subscribers outside the lock to avoid deadlocks.
	notify(subs, event)
	return nil
}

// Emit publishes a motion notification for the given agent. It is
// fire-and-forget: unknown agents still produce an event.
func (kb *KnowledgeBase) Emit(ev model.MotionEvent, agentID string) {
	kb.mu.RLock()
	event := Event{AgentID: agentID}
	switch ev {
	case model.MotionStart:
		event.Type = EventMotionStart
	case model.MotionEnd:
		event.Type = EventMotionEnd
	default:
		kb.mu.RUnlock()
		return
	}
	if a, ok := kb.agents[agentID]; ok {
		event.Agent = *a
	}
	subs := kb.subscribersLocked()
	kb.mu.RUnlock()

	notify(subs, event)
}

// Subscribe registers a callback for KB events. It returns an unsubscribe function.
func (kb *KnowledgeBase) Subscribe(fn func(Event)) (unsubscribe func()) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	id := kb.nextID
	kb.nextID++
	kb.subs[id] = fn

	return func() {
		kb.mu.Lock()
		defer kb.mu.Unlock()
		delete(kb.subs, id)
	}
}

// subscribersLocked returns subscribers in registration order.
func (kb *KnowledgeBase) subscribersLocked() []func(Event) {
	subs := make([]func(Event), 0, len(kb.subs))
	for id := 0; id < kb.nextID; id++ {
		if fn, ok := kb.subs[id]; ok {
			subs = append(subs, fn)
		}
	}
	return subs
}

func notify(subs []func(Event), event Event) {
	for _, sub := range subs {
		sub(event)
	}
}
