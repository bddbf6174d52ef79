package tuning

import (
	"errors"
	"fmt"
	"os"

	"github.com/signalsfoundry/flock-simulator/core"
	"gopkg.in/yaml.v3"
)

// ErrInvalidTuning is returned when a tuning or scenario document fails
// validation.
var ErrInvalidTuning = errors.New("invalid tuning")

// Tuning is the file form of core.Params.
type Tuning struct {
	TickRateHz int     `yaml:"tick_rate_hz"`
	Mass       float64 `yaml:"mass"`
	Epsilon    float64 `yaml:"epsilon"`
	MaxForce   float64 `yaml:"max_force"`

	Weights Weights `yaml:"weights"`

	ArriveThreshold        float64 `yaml:"arrive_threshold"`
	MoveSeparationBuffer   float64 `yaml:"move_separation_buffer"`
	SettleSeparationBuffer float64 `yaml:"settle_separation_buffer"`
	CohesionRadius         float64 `yaml:"cohesion_radius"`
	AlignRadius            float64 `yaml:"align_radius"`
	SlowingRadius          float64 `yaml:"slowing_radius"`
	AdjacencySepDist       float64 `yaml:"adjacency_sep_dist"`
	SettleStopTolerance    float64 `yaml:"settle_stop_tolerance"`

	MarkerLifetimeTicks uint64 `yaml:"marker_lifetime_ticks"`
}

// Weights are the per-behaviour force scales.
type Weights struct {
	MoveSeparation   float64 `yaml:"move_separation"`
	MoveArrive       float64 `yaml:"move_arrive"`
	MoveCohesion     float64 `yaml:"move_cohesion"`
	MoveAlign        float64 `yaml:"move_align"`
	SettleSeparation float64 `yaml:"settle_separation"`
}

// Default returns the stock engine tuning.
func Default() Tuning {
	return FromParams(core.DefaultParams())
}

// FromParams converts simulation params into their file form.
func FromParams(p core.Params) Tuning {
	return Tuning{
		TickRateHz: p.TickRate,
		Mass:       p.Mass,
		Epsilon:    p.Epsilon,
		MaxForce:   p.MaxForce,
		Weights: Weights{
			MoveSeparation:   p.MoveSeparationScale,
			MoveArrive:       p.MoveArriveScale,
			MoveCohesion:     p.MoveCohesionScale,
			MoveAlign:        p.MoveAlignScale,
			SettleSeparation: p.SettleSeparationScale,
		},
		ArriveThreshold:        p.ArriveThreshold,
		MoveSeparationBuffer:   p.MoveSeparationBuffer,
		SettleSeparationBuffer: p.SettleSeparationBuffer,
		CohesionRadius:         p.CohesionRadius,
		AlignRadius:            p.AlignRadius,
		SlowingRadius:          p.SlowingRadius,
		AdjacencySepDist:       p.AdjacencySepDist,
		SettleStopTolerance:    p.SettleStopTolerance,
		MarkerLifetimeTicks:    p.MarkerLifetimeTicks,
	}
}

// Params converts the tuning into simulation params.
func (t Tuning) Params() core.Params {
	return core.Params{
		TickRate:               t.TickRateHz,
		Mass:                   t.Mass,
		Epsilon:                t.Epsilon,
		MaxForce:               t.MaxForce,
		MoveSeparationScale:    t.Weights.MoveSeparation,
		MoveArriveScale:        t.Weights.MoveArrive,
		MoveCohesionScale:      t.Weights.MoveCohesion,
		MoveAlignScale:         t.Weights.MoveAlign,
		SettleSeparationScale:  t.Weights.SettleSeparation,
		ArriveThreshold:        t.ArriveThreshold,
		MoveSeparationBuffer:   t.MoveSeparationBuffer,
		SettleSeparationBuffer: t.SettleSeparationBuffer,
		CohesionRadius:         t.CohesionRadius,
		AlignRadius:            t.AlignRadius,
		SlowingRadius:          t.SlowingRadius,
		AdjacencySepDist:       t.AdjacencySepDist,
		SettleStopTolerance:    t.SettleStopTolerance,
		MarkerLifetimeTicks:    t.MarkerLifetimeTicks,
	}
}

// Validate checks the values the integrator divides by or compares against.
func (t Tuning) Validate() error {
	switch {
	case t.TickRateHz <= 0:
		return fmt.Errorf("%w: tick_rate_hz must be positive, got %d", ErrInvalidTuning, t.TickRateHz)
	case t.Mass <= 0:
		return fmt.Errorf("%w: mass must be positive, got %v", ErrInvalidTuning, t.Mass)
	case t.MaxForce <= 0:
		return fmt.Errorf("%w: max_force must be positive, got %v", ErrInvalidTuning, t.MaxForce)
	case t.SlowingRadius <= 0:
		return fmt.Errorf("%w: slowing_radius must be positive, got %v", ErrInvalidTuning, t.SlowingRadius)
	case t.Epsilon < 0 || t.SettleStopTolerance < 0:
		return fmt.Errorf("%w: epsilon and settle_stop_tolerance must not be negative", ErrInvalidTuning)
	}
	return nil
}

// Load reads a tuning file. Keys missing from the file keep their default
// values.
func Load(path string) (Tuning, error) {
	t := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, err
	}
	return t, nil
}
