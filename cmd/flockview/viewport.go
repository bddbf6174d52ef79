package main

import (
	"math"

	"github.com/signalsfoundry/flock-simulator/core"
	"github.com/signalsfoundry/flock-simulator/model"
)

// Terminal cells are roughly twice as tall as they are wide.
const cellAspect = 2.0

// viewport maps the world's ground plane onto terminal cells. X grows to the
// right and Z grows downwards.
type viewport struct {
	center model.Vec2
	// scale is world units per cell column.
	scale  float64
	width  int
	height int
}

func (v *viewport) resize(w, h int) {
	v.width, v.height = w, h
}

// fit centres b and picks the smallest scale that shows all of it.
func (v *viewport) fit(b core.Bounds) {
	v.center = model.Vec2{(b.Min.X() + b.Max.X()) / 2, (b.Min.Y() + b.Max.Y()) / 2}
	w := math.Max(float64(v.width), 1)
	h := math.Max(float64(v.height), 1)
	v.scale = math.Max((b.Max.X()-b.Min.X())/w, (b.Max.Y()-b.Min.Y())/(h*cellAspect))
	if v.scale <= 0 {
		v.scale = 1
	}
}

func (v *viewport) toCell(p model.Vec2) (int, int) {
	x := float64(v.width)/2 + (p.X()-v.center.X())/v.scale
	y := float64(v.height)/2 + (p.Y()-v.center.Y())/(v.scale*cellAspect)
	return int(math.Floor(x)), int(math.Floor(y))
}

// toWorld returns the ground point at the centre of cell (x, y).
func (v *viewport) toWorld(x, y int) model.Vec2 {
	return model.Vec2{v.center.X() + (float64(x)+0.5-float64(v.width)/2)*v.scale, v.center.Y() + (float64(y)+0.5-float64(v.height)/2)*v.scale*cellAspect}
}

func (v *viewport) zoom(factor float64) {
	v.scale *= factor
}

// pan moves the view by whole cells.
func (v *viewport) pan(dx, dy int) {
	v.center[0] += float64(dx) * v.scale
	v.center[1] += float64(dy) * v.scale * cellAspect
}

func (v *viewport) contains(x, y int) bool {
	return x >= 0 && y >= 0 && x < v.width && y < v.height
}

// extentOf returns a padded box around every agent, for backends that do not
// publish map bounds.
func extentOf(positions []model.Vec2) core.Bounds {
	if len(positions) == 0 {
		return core.Bounds{Min: model.Vec2{-50, -50}, Max: model.Vec2{50, 50}}
	}
	b := core.Bounds{Min: positions[0], Max: positions[0]}
	for _, p := range positions[1:] {
		b.Min[0] = math.Min(b.Min.X(), p.X())
		b.Min[1] = math.Min(b.Min.Y(), p.Y())
		b.Max[0] = math.Max(b.Max.X(), p.X())
		b.Max[1] = math.Max(b.Max.Y(), p.Y())
	}
	const pad = 20
	b.Min[0] -= pad
	b.Min[1] -= pad
	b.Max[0] += pad
	b.Max[1] += pad
	return b
}
