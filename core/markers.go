package core

import "github.com/signalsfoundry/flock-simulator/model"

// Marker is the cosmetic arrow dropped where a move command was issued.
// Markers do not take part in the simulation.
type Marker struct {
	ID       uint64
	Position model.Vec3
	// PlacedAt is the tick the marker was created on.
	PlacedAt uint64
}

func (s *Simulation) placeMarker(pos model.Vec3) Marker {
	s.nextMarker++
	m := Marker{ID: s.nextMarker, Position: pos, PlacedAt: s.tick}
	s.markers = append(s.markers, m)
	return m
}

// expireMarkers drops markers whose converge animation has played out.
func (s *Simulation) expireMarkers() {
	kept := s.markers[:0]
	for _, m := range s.markers {
		if s.tick-m.PlacedAt < s.params.MarkerLifetimeTicks {
			kept = append(kept, m)
		}
	}
	s.markers = kept
}

// Markers returns the markers currently on the map, oldest first.
func (s *Simulation) Markers() []Marker {
	return append([]Marker(nil), s.markers...)
}
