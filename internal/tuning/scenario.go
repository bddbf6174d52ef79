package tuning

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/signalsfoundry/flock-simulator/core"
	"github.com/signalsfoundry/flock-simulator/model"
	"gopkg.in/yaml.v3"
)

//go:embed scenario.schema.json
var scenarioSchemaJSON []byte

const scenarioSchemaURL = "scenario.schema.json"

// DefaultSelectionRadius is used for agents that do not set one.
const DefaultSelectionRadius = 1.0

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

// Scenario is a starting world plus scripted move commands.
type Scenario struct {
	Name     string        `yaml:"name"`
	Tuning   Tuning        `yaml:"tuning"`
	Map      MapSpec       `yaml:"map"`
	Agents   []AgentSpec   `yaml:"agents"`
	Commands []CommandSpec `yaml:"commands"`
}

// MapSpec describes a flat map, or a height field when Heights is set.
type MapSpec struct {
	Min     [2]float64 `yaml:"min"`
	Max     [2]float64 `yaml:"max"`
	Height  float64    `yaml:"height"`
	Rows    int        `yaml:"rows"`
	Cols    int        `yaml:"cols"`
	Heights []float64  `yaml:"heights"`
}

// AgentSpec is one agent's starting state. Position Y is replaced with the
// terrain height when the scenario is built.
type AgentSpec struct {
	ID              string     `yaml:"id"`
	Name            string     `yaml:"name"`
	Position        [3]float64 `yaml:"position"`
	Yaw             float64    `yaml:"yaw"`
	MaxSpeed        float64    `yaml:"max_speed"`
	SelectionRadius float64    `yaml:"selection_radius"`
	Stationary      bool       `yaml:"stationary"`
}

// CommandSpec issues a move for Agents toward Target at the start of Tick.
type CommandSpec struct {
	Tick   uint64     `yaml:"tick"`
	Agents []string   `yaml:"agents"`
	Target [3]float64 `yaml:"target"`
}

// TargetVec returns the command's world-space target.
func (c CommandSpec) TargetVec() model.Vec3 {
	return model.Vec3{c.Target[0], c.Target[1], c.Target[2]}
}

// LoadScenario reads, validates and decodes a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := ParseScenario(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ParseScenario validates a YAML scenario against the embedded schema and
// decodes it. Tuning keys the document omits keep their defaults.
func ParseScenario(raw []byte) (*Scenario, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("scenario yaml: %w", err)
	}
	if err := validateDocument(doc); err != nil {
		return nil, err
	}

	s := &Scenario{Tuning: Default()}
	if err := yaml.Unmarshal(raw, s); err != nil {
		return nil, fmt.Errorf("scenario yaml: %w", err)
	}
	if err := s.Tuning.Validate(); err != nil {
		return nil, err
	}
	if err := s.check(); err != nil {
		return nil, err
	}
	for i := range s.Agents {
		if s.Agents[i].SelectionRadius == 0 {
			s.Agents[i].SelectionRadius = DefaultSelectionRadius
		}
	}
	sort.SliceStable(s.Commands, func(i, j int) bool { return s.Commands[i].Tick < s.Commands[j].Tick })
	return s, nil
}

// check enforces the cross-field rules the schema cannot express.
func (s *Scenario) check() error {
	seen := make(map[string]struct{}, len(s.Agents))
	for _, a := range s.Agents {
		if _, dup := seen[a.ID]; dup {
			return fmt.Errorf("%w: duplicate agent id %q", ErrInvalidTuning, a.ID)
		}
		seen[a.ID] = struct{}{}
	}
	for _, c := range s.Commands {
		for _, id := range c.Agents {
			if _, ok := seen[id]; !ok {
				return fmt.Errorf("%w: command at tick %d references unknown agent %q", ErrInvalidTuning, c.Tick, id)
			}
		}
	}
	if s.Map.Max[0] < s.Map.Min[0] || s.Map.Max[1] < s.Map.Min[1] {
		return fmt.Errorf("%w: map max must not be below min", ErrInvalidTuning)
	}
	return nil
}

// BuildMap constructs the scenario's map service. A scenario without a map
// gets an unbounded-looking flat map large enough for any sane layout.
func (s *Scenario) BuildMap() (core.MapService, error) {
	m := s.Map
	if m.Min == m.Max {
		return &core.FlatMap{Bounds: core.Bounds{
			Min: model.Vec2{-1e6, -1e6},
			Max: model.Vec2{1e6, 1e6},
		}, Height: m.Height}, nil
	}
	bounds := core.Bounds{
		Min: model.Vec2{m.Min[0], m.Min[1]},
		Max: model.Vec2{m.Max[0], m.Max[1]},
	}
	if len(m.Heights) == 0 {
		return &core.FlatMap{Bounds: bounds, Height: m.Height}, nil
	}
	hf, err := core.NewHeightFieldMap(bounds, m.Rows, m.Cols, m.Heights)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTuning, err)
	}
	return hf, nil
}

// BuildAgents creates the scenario's agents, clamped into the map and set on
// the terrain.
func (s *Scenario) BuildAgents(mapSvc core.MapService) []*model.Agent {
	agents := make([]*model.Agent, 0, len(s.Agents))
	for _, spec := range s.Agents {
		ground := mapSvc.ClampToMapBounds(model.Vec2{spec.Position[0], spec.Position[2]})
		agents = append(agents, &model.Agent{
			ID:              spec.ID,
			Name:            spec.Name,
			Position:        model.OnGround(ground, mapSvc.HeightAt(ground)),
			Rotation:        model.YawQuat(spec.Yaw),
			MaxSpeed:        spec.MaxSpeed,
			SelectionRadius: spec.SelectionRadius,
			Stationary:      spec.Stationary,
		})
	}
	return agents
}

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource(scenarioSchemaURL, bytes.NewReader(scenarioSchemaJSON)); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = c.Compile(scenarioSchemaURL)
	})
	return schema, schemaErr
}

func validateDocument(doc any) error {
	sch, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile scenario schema: %w", err)
	}
	// Round-trip through JSON so YAML scalars take the JSON types the
	// validator expects.
	buf, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTuning, err)
	}
	var normalized any
	if err := json.Unmarshal(buf, &normalized); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTuning, err)
	}
	if err := sch.Validate(normalized); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTuning, err)
	}
	return nil
}
