package journal

// TickEntry is one line of the tick trace: every commanded agent's pose and
// movement state after the tick.
type TickEntry struct {
	Tick    uint64        `json:"tick"`
	Flocks  int           `json:"flocks"`
	Agents  []AgentSample `json:"agents"`
	Markers int           `json:"markers,omitempty"`
}

// AgentSample is an agent's pose at the end of a tick.
type AgentSample struct {
	ID    string     `json:"id"`
	Pos   [3]float64 `json:"pos"`
	Yaw   float64    `json:"yaw"`
	Vel   [2]float64 `json:"vel"`
	State string     `json:"state"`
	Flock uint64     `json:"flock,omitempty"`
}

// CommandRecord is a move command as received by the host.
type CommandRecord struct {
	ID       string     `json:"id"`
	Tick     uint64     `json:"tick"`
	AgentIDs []string   `json:"agent_ids"`
	Target   [3]float64 `json:"target"`
	Accepted bool       `json:"accepted"`
	FlockID  uint64     `json:"flock_id,omitempty"`
	Error    string     `json:"error,omitempty"`
}

// MotionRecord is a motion-start or motion-end notification.
type MotionRecord struct {
	Tick    uint64 `json:"tick"`
	AgentID string `json:"agent_id"`
	Event   string `json:"event"`
}
