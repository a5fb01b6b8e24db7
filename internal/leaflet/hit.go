package leaflet

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// clickTolerance is the extra pixel slack around strokes and markers.
const clickTolerance = 3

// ShapeAt returns the topmost shape of an attached feature group under p
// (lng/lat), or nil.
func (m *Map) ShapeAt(p orb.Point) Path {
	click := m.pixel(p)
	for i := len(m.layers) - 1; i >= 0; i-- {
		g, ok := m.layers[i].(*FeatureGroup)
		if !ok {
			continue
		}
		for j := len(g.shapes) - 1; j >= 0; j-- {
			if m.hit(g.shapes[j], click) {
				return g.shapes[j]
			}
		}
	}
	return nil
}

func (m *Map) pixel(p orb.Point) orb.Point {
	x, y := m.toPixel(p)
	return orb.Point{x, y}
}

func (m *Map) pixels(ps []orb.Point) []orb.Point {
	out := make([]orb.Point, len(ps))
	for i, p := range ps {
		out[i] = m.pixel(p)
	}
	return out
}

func (m *Map) hit(shape Path, click orb.Point) bool {
	slack := shape.Style().Weight/2 + clickTolerance
	switch s := shape.(type) {
	case *CircleMarker:
		return planar.Distance(m.pixel(s.Center), click) <= s.PathStyle.Radius+slack
	case *Polyline:
		return nearLine(m.pixels(s.Points), click, slack)
	case *Polygon:
		rings := make(orb.Polygon, len(s.Rings))
		for i, r := range s.Rings {
			rings[i] = orb.Ring(m.pixels(r))
		}
		if planar.PolygonContains(rings, click) {
			return true
		}
		for _, r := range rings {
			if nearLine(r, click, slack) {
				return true
			}
		}
	}
	return false
}

func nearLine(ps []orb.Point, click orb.Point, slack float64) bool {
	for i := 1; i < len(ps); i++ {
		if planar.DistanceFromSegment(ps[i-1], ps[i], click) <= slack {
			return true
		}
	}
	return false
}
