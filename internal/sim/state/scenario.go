package state

import (
	"context"
	"fmt"

	"github.com/signalsfoundry/flock-simulator/core"
	"github.com/signalsfoundry/flock-simulator/internal/logging"
	"github.com/signalsfoundry/flock-simulator/internal/tuning"
	"github.com/signalsfoundry/flock-simulator/kb"
)

// NewHostFromScenario builds a store, map and simulation from sc, populates
// the scenario's agents and wraps the result in a Host. Scripted commands are
// left to the caller.
func NewHostFromScenario(sc *tuning.Scenario, log logging.Logger, opts ...HostOption) (*Host, error) {
	if sc == nil {
		return nil, fmt.Errorf("scenario is nil")
	}
	mapSvc, err := sc.BuildMap()
	if err != nil {
		return nil, err
	}

	store := kb.NewKnowledgeBase()
	sim, err := core.NewSimulation(mapSvc, store,
		core.WithParams(sc.Tuning.Params()),
		core.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}

	h := NewHost(store, sim, log, opts...)
	for _, a := range sc.BuildAgents(mapSvc) {
		if err := h.AddAgent(a); err != nil {
			h.Close()
			return nil, fmt.Errorf("scenario %q: %w", sc.Name, err)
		}
	}
	return h, nil
}

// Script replays a scenario's scripted commands against a host as the
// simulation reaches each command's tick.
type Script struct {
	host *Host
	log  logging.Logger
	cmds []tuning.CommandSpec
	next int
}

// NewScript expects cmds sorted by tick, as ParseScenario leaves them.
func NewScript(h *Host, cmds []tuning.CommandSpec, log logging.Logger) *Script {
	if log == nil {
		log = logging.Noop()
	}
	return &Script{host: h, log: log, cmds: cmds}
}

// Apply issues every command due at or before the host's current tick and
// reports how many were issued. Rejected commands are logged and skipped.
func (s *Script) Apply(ctx context.Context) int {
	tick := s.host.LastTick().Tick
	issued := 0
	for s.next < len(s.cmds) && s.cmds[s.next].Tick <= tick {
		c := s.cmds[s.next]
		s.next++
		issued++
		if _, err := s.host.IssueMove(ctx, c.Agents, c.TargetVec()); err != nil {
			s.log.Warn(ctx, "scripted command rejected",
				logging.Uint64("tick", c.Tick),
				logging.Err(err),
			)
		}
	}
	return issued
}

// Done reports whether every command has been issued.
func (s *Script) Done() bool { return s.next >= len(s.cmds) }
