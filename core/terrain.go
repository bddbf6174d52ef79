package core

import (
	"errors"
	"fmt"
	"math"

	"github.com/signalsfoundry/flock-simulator/model"
)

// ErrNoMapService is returned when a simulation is created without a map.
var ErrNoMapService = errors.New("map service is required")

// MapService answers the terrain queries the integrator needs.
type MapService interface {
	// ClampToMapBounds returns the closest point to p inside the map.
	ClampToMapBounds(p model.Vec2) model.Vec2
	// HeightAt samples terrain height at a ground-plane point.
	HeightAt(p model.Vec2) float64
}

// Bounds is an axis-aligned ground-plane rectangle.
type Bounds struct {
	Min, Max model.Vec2
}

// Clamp returns the closest point to p inside b. A NaN component clamps to
// the lower edge.
func (b Bounds) Clamp(p model.Vec2) model.Vec2 {
	return model.Vec2{clamp(p.X(), b.Min.X(), b.Max.X()), clamp(p.Y(), b.Min.Y(), b.Max.Y())}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Min(math.Max(v, lo), hi)
}

// Contains reports whether p lies inside b, edges included.
func (b Bounds) Contains(p model.Vec2) bool {
	return p == b.Clamp(p)
}

// Bounded is implemented by maps with a known rectangular extent.
type Bounded interface {
	MapBounds() Bounds
}

// FlatMap is a rectangular map at a constant height.
type FlatMap struct {
	Bounds Bounds
	Height float64
}

// ClampToMapBounds implements MapService.
func (m *FlatMap) ClampToMapBounds(p model.Vec2) model.Vec2 { return m.Bounds.Clamp(p) }

// HeightAt implements MapService.
func (m *FlatMap) HeightAt(model.Vec2) float64 { return m.Height }

// MapBounds implements Bounded.
func (m *FlatMap) MapBounds() Bounds { return m.Bounds }

// HeightFieldMap samples heights from a regular grid laid over Bounds.
// Heights are row-major, Rows along Z and Cols along X, and interpolated
// bilinearly between grid points.
type HeightFieldMap struct {
	Bounds  Bounds
	Rows    int
	Cols    int
	Heights []float64
}

// NewHeightFieldMap validates the grid dimensions.
func NewHeightFieldMap(bounds Bounds, rows, cols int, heights []float64) (*HeightFieldMap, error) {
	if rows < 2 || cols < 2 {
		return nil, fmt.Errorf("height field needs at least 2x2 samples, got %dx%d", rows, cols)
	}
	if len(heights) != rows*cols {
		return nil, fmt.Errorf("height field has %d samples, want %d", len(heights), rows*cols)
	}
	if bounds.Max.X() <= bounds.Min.X() || bounds.Max.Y() <= bounds.Min.Y() {
		return nil, fmt.Errorf("height field bounds are empty: %+v", bounds)
	}
	return &HeightFieldMap{Bounds: bounds, Rows: rows, Cols: cols, Heights: heights}, nil
}

// ClampToMapBounds implements MapService.
func (m *HeightFieldMap) ClampToMapBounds(p model.Vec2) model.Vec2 { return m.Bounds.Clamp(p) }

// MapBounds implements Bounded.
func (m *HeightFieldMap) MapBounds() Bounds { return m.Bounds }

// HeightAt implements MapService.
func (m *HeightFieldMap) HeightAt(p model.Vec2) float64 {
	p = m.Bounds.Clamp(p)
	gx := (p.X() - m.Bounds.Min.X()) / (m.Bounds.Max.X() - m.Bounds.Min.X()) * float64(m.Cols-1)
	gz := (p.Y() - m.Bounds.Min.Y()) / (m.Bounds.Max.Y() - m.Bounds.Min.Y()) * float64(m.Rows-1)

	c0 := int(math.Floor(gx))
	r0 := int(math.Floor(gz))
	if c0 >= m.Cols-1 {
		c0 = m.Cols - 2
	}
	if r0 >= m.Rows-1 {
		r0 = m.Rows - 2
	}
	fx := gx - float64(c0)
	fz := gz - float64(r0)

	h00 := m.at(r0, c0)
	h01 := m.at(r0, c0+1)
	h10 := m.at(r0+1, c0)
	h11 := m.at(r0+1, c0+1)

	top := h00 + (h01-h00)*fx
	bottom := h10 + (h11-h10)*fx
	return top + (bottom-top)*fz
}

func (m *HeightFieldMap) at(row, col int) float64 {
	return m.Heights[row*m.Cols+col]
}
