package leaflet

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"
)

func sampleMap() (*Map, *FeatureGroup) {
	m := NewMap(orb.Point{2.35, 48.85}, 13)
	m.SetZoomControl(&ZoomControl{Position: "topright", ZoomInTitle: "Zoomer", ZoomOutTitle: "Dézoomer"})
	m.AddLayer(NewTileLayer("https://tile.example/{z}/{x}/{y}.png", map[string]any{"attribution": "OSM"}))
	m.AddLayer(NewWMSTileLayer("https://wms.example/wms", map[string]any{"layers": "roads", "opacity": 0.5}))

	g := NewFeatureGroup()
	c := NewCircleMarker(orb.Point{2.35, 48.85}, PathStyle{Color: "#f00", Weight: 3, Radius: 4, FillOpacity: 0.5})
	c.BindPopup("<h4>Pothole</h4>")
	g.AddLayer(c)
	g.AddLayer(NewPolyline(orb.LineString{{2.3, 48.8}, {2.4, 48.9}}, PathStyle{Color: "#0f0", Weight: 3}))
	m.AddLayer(g)
	return m, g
}

func TestSnapshot(t *testing.T) {
	m, g := sampleMap()
	s := m.Snapshot()

	require.Equal(t, [2]float64{48.85, 2.35}, s.Center)
	require.Equal(t, [2]int{DefaultWidth, DefaultHeight}, s.Size)
	require.Len(t, s.Layers, 3)

	require.Equal(t, KindTile, s.Layers[0].Kind)
	require.Equal(t, KindWMS, s.Layers[1].Kind)
	require.Equal(t, "roads", s.Layers[1].Params.Layers)
	require.Equal(t, 0.5, *s.Layers[1].Opacity)

	fg := s.Layers[2]
	require.Equal(t, KindFeatureGroup, fg.Kind)
	require.Equal(t, g.Handle(), fg.Handle)
	require.Len(t, fg.Shapes, 2)
	require.Equal(t, orb.Point{2.35, 48.85}, fg.Shapes[0].Geometry.Coordinates)
	require.Equal(t, "<h4>Pothole</h4>", fg.Shapes[0].Popup)

	_, err := json.Marshal(s)
	require.NoError(t, err)
}

func TestScript(t *testing.T) {
	m, _ := sampleMap()
	m.OpenPopup(Popup{LatLng: orb.Point{2.35, 48.85}, Content: "</script>"})
	js := Script(m.Snapshot(), "map")

	require.True(t, strings.HasPrefix(js, "(function(){"))
	require.Contains(t, js, `L.map("map", {zoomControl: false}).setView([48.85, 2.35], 13)`)
	require.Contains(t, js, `L.control.zoom({"position":"topright","zoomInTitle":"Zoomer","zoomOutTitle":"Dézoomer"})`)
	require.Contains(t, js, `L.tileLayer("https://tile.example/{z}/{x}/{y}.png", {"attribution":"OSM","opacity":1})`)
	require.Contains(t, js, `L.tileLayer.wms("https://wms.example/wms", {"layers":"roads","opacity":0.5})`)
	require.Contains(t, js, `L.circleMarker([48.85,2.35], {"color":"#f00","fillOpacity":0.5,"radius":4,"weight":3}).bindPopup(`)
	require.Contains(t, js, `L.polyline([[48.8,2.3],[48.9,2.4]], {"color":"#0f0","weight":3})`)
	require.NotContains(t, js, "</script>", "popup content is escaped")
}

func TestScript_shapesShareViewOrder(t *testing.T) {
	paris := orb.Point{2.35, 48.85}
	m := NewMap(paris, 13)
	g := NewFeatureGroup()
	g.AddLayer(NewCircleMarker(paris, PathStyle{Color: "#f00", Weight: 3, Radius: 4, FillOpacity: 0.5}))
	g.AddLayer(NewPolygon(orb.Polygon{{{2.3, 48.8}, {2.4, 48.8}, {2.4, 48.9}, {2.3, 48.8}}}, PathStyle{Color: "#00f", Weight: 3, FillOpacity: 0.5}))
	m.AddLayer(g)
	m.OpenPopup(Popup{LatLng: paris, Content: "Paris"})

	js := Script(m.Snapshot(), "map")
	require.Contains(t, js, "setView([48.85, 2.35], 13)")
	require.Contains(t, js, "L.circleMarker([48.85,2.35],")
	require.Contains(t, js, "L.polygon([[[48.8,2.3],[48.8,2.4],[48.9,2.4],[48.8,2.3]]],")
	require.Contains(t, js, "setLatLng([48.85, 2.35])")
}

func TestMarshalJS(t *testing.T) {
	require.Equal(t, `{"a":1,"b":"x"}`, MarshalJS(map[string]any{"b": "x", "a": 1}))
	require.Equal(t, `[true,null]`, MarshalJS([]any{true, nil}))
	require.Equal(t, "null", MarshalJS(nil))
}
