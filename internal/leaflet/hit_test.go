package leaflet

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"
)

func TestShapeAt(t *testing.T) {
	m := NewMap(orb.Point{2.35, 48.85}, 13)
	g := NewFeatureGroup()

	marker := NewCircleMarker(orb.Point{2.35, 48.85}, PathStyle{Weight: 3, Radius: 4})
	square := NewPolygon(orb.Polygon{{{2.36, 48.86}, {2.37, 48.86}, {2.37, 48.87}, {2.36, 48.87}, {2.36, 48.86}}}, PathStyle{Weight: 3})
	line := NewPolyline(orb.LineString{{2.32, 48.84}, {2.34, 48.84}}, PathStyle{Weight: 3})
	g.AddLayer(marker)
	g.AddLayer(square)
	g.AddLayer(line)

	require.Nil(t, m.ShapeAt(orb.Point{2.35, 48.85}), "detached groups are not hit")
	m.AddLayer(g)

	require.Equal(t, marker, m.ShapeAt(orb.Point{2.35, 48.85}))
	require.Equal(t, square, m.ShapeAt(orb.Point{2.365, 48.865}))
	require.Equal(t, line, m.ShapeAt(orb.Point{2.33, 48.84}))
	require.Nil(t, m.ShapeAt(orb.Point{2.30, 48.80}))
}

func TestShapeAt_topmostWins(t *testing.T) {
	m := NewMap(orb.Point{2.35, 48.85}, 13)
	lower, upper := NewFeatureGroup(), NewFeatureGroup()
	a := NewCircleMarker(orb.Point{2.35, 48.85}, PathStyle{Radius: 4})
	b := NewCircleMarker(orb.Point{2.35, 48.85}, PathStyle{Radius: 4})
	lower.AddLayer(a)
	upper.AddLayer(b)
	m.AddLayer(lower)
	m.AddLayer(upper)

	require.Equal(t, b, m.ShapeAt(orb.Point{2.35, 48.85}))
}
