package leaflet

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// State is a serialisable description of a map.
type State struct {
	Center      [2]float64   `json:"center" doc:"View centre as [lat, lng]"`
	Zoom        float64      `json:"zoom" doc:"View zoom"`
	Size        [2]int       `json:"size" doc:"Viewport size in pixels"`
	ZoomControl *ZoomControl `json:"zoomControl,omitempty" doc:"Zoom widget, if attached"`
	Layers      []LayerState `json:"layers" doc:"Attached layers in z-order"`
	Popup       *Popup       `json:"popup,omitempty" doc:"Open popup"`
}

// LayerState describes one attached layer.
type LayerState struct {
	Handle  Handle         `json:"handle"`
	Kind    Kind           `json:"kind"`
	URL     string         `json:"url,omitempty"`
	Options map[string]any `json:"options,omitempty"`
	Params  *WMSParams     `json:"params,omitempty"`
	Opacity *float64       `json:"opacity,omitempty"`
	Shapes  []ShapeState   `json:"shapes,omitempty"`
}

// ShapeState describes one vector shape of a feature group.
type ShapeState struct {
	Handle   Handle            `json:"handle"`
	Kind     Kind              `json:"kind"`
	Geometry *geojson.Geometry `json:"geometry"`
	Style    PathStyle         `json:"style"`
	Popup    string            `json:"popup,omitempty"`
}

// Snapshot captures the current map state.
func (m *Map) Snapshot() State {
	s := State{
		Center:      [2]float64{m.center.Lat(), m.center.Lon()},
		Zoom:        m.zoom,
		Size:        [2]int{m.size.X, m.size.Y},
		ZoomControl: m.zoomControl,
		Layers:      make([]LayerState, 0, len(m.layers)),
		Popup:       m.Popup(),
	}
	for _, l := range m.layers {
		s.Layers = append(s.Layers, layerState(l))
	}
	return s
}

func layerState(l Layer) LayerState {
	ls := LayerState{Handle: l.Handle(), Kind: l.Kind()}
	if o, ok := l.(Opaque); ok {
		op := o.Opacity()
		ls.Opacity = &op
	}
	switch v := l.(type) {
	case *WMSTileLayer:
		ls.URL = v.URL
		ls.Options = v.Options
		params := v.Params
		ls.Params = &params
	case *TileLayer:
		ls.URL = v.URL
		ls.Options = v.Options
	case *FeatureGroup:
		for _, p := range v.shapes {
			ls.Shapes = append(ls.Shapes, ShapeState{
				Handle:   p.Handle(),
				Kind:     p.Kind(),
				Geometry: geojson.NewGeometry(p.Geometry()),
				Style:    p.Style(),
				Popup:    p.PopupContent(),
			})
		}
	default:
		// Layers embedding a tile layer (e.g. a queryable WMS wrapper).
		if w, ok := l.(interface{ WMS() *WMSTileLayer }); ok {
			inner := layerState(w.WMS())
			inner.Handle = l.Handle()
			inner.Kind = l.Kind()
			return inner
		}
	}
	return ls
}

// Script renders s as a Leaflet bootstrap snippet that draws into the element
// with the given id and evaluates to the map.
func Script(s State, elementID string) string {
	var b strings.Builder
	b.WriteString("(function(){\n")
	fmt.Fprintf(&b, "var map = L.map(%s, {zoomControl: false}).setView([%v, %v], %v);\n",
		jsString(elementID), s.Center[0], s.Center[1], s.Zoom)
	if zc := s.ZoomControl; zc != nil {
		fmt.Fprintf(&b, "L.control.zoom(%s).addTo(map);\n", MarshalJS(map[string]any{
			"position": zc.Position, "zoomInTitle": zc.ZoomInTitle, "zoomOutTitle": zc.ZoomOutTitle,
		}))
	}
	for i, l := range s.Layers {
		switch l.Kind {
		case KindTile, KindWMS:
			opts := make(map[string]any, len(l.Options)+1)
			for k, v := range l.Options {
				opts[k] = v
			}
			if l.Opacity != nil {
				opts["opacity"] = *l.Opacity
			}
			ctor := "L.tileLayer"
			if l.Kind == KindWMS {
				ctor = "L.tileLayer.wms"
			}
			fmt.Fprintf(&b, "%s(%s, %s).addTo(map);\n", ctor, jsString(l.URL), MarshalJS(opts))
		case KindFeatureGroup:
			group := fmt.Sprintf("g%d", i)
			fmt.Fprintf(&b, "var %s = L.featureGroup().addTo(map);\n", group)
			for _, sh := range l.Shapes {
				fmt.Fprintf(&b, "L.%s(%s, %s)", sh.Kind, coordsJS(sh.Geometry), styleJS(sh.Style))
				if sh.Popup != "" {
					fmt.Fprintf(&b, ".bindPopup(%s)", jsString(sh.Popup))
				}
				fmt.Fprintf(&b, ".addTo(%s);\n", group)
			}
		}
	}
	if p := s.Popup; p != nil {
		fmt.Fprintf(&b, "L.popup().setLatLng([%v, %v]).setContent(%s).openOn(map);\n",
			p.LatLng.Lat(), p.LatLng.Lon(), jsString(p.Content))
	}
	b.WriteString("return map;\n})()")
	return b.String()
}

func styleJS(s PathStyle) string {
	m := map[string]any{"color": s.Color, "weight": s.Weight}
	if s.Radius != 0 {
		m["radius"] = s.Radius
	}
	if s.FillOpacity != 0 {
		m["fillOpacity"] = s.FillOpacity
	}
	return MarshalJS(m)
}

// coordsJS emits shape coordinates as Leaflet latlngs. The engine stores
// lng/lat, Leaflet reads [lat, lng].
func coordsJS(g *geojson.Geometry) string {
	if g == nil {
		return "null"
	}
	switch c := g.Coordinates.(type) {
	case orb.Point:
		return MarshalJS([]float64{c.Lat(), c.Lon()})
	case orb.LineString:
		return MarshalJS(pointsOf(c))
	case orb.Polygon:
		rings := make([]any, len(c))
		for i, r := range c {
			rings[i] = pointsOf(r)
		}
		return MarshalJS(rings)
	}
	return "null"
}

func pointsOf(ps []orb.Point) [][]float64 {
	out := make([][]float64, len(ps))
	for i, p := range ps {
		out[i] = []float64{p.Lat(), p.Lon()}
	}
	return out
}

// MarshalJS renders a value as a JavaScript literal with sorted object keys.
func MarshalJS(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fields := make([]string, 0, len(keys))
		for _, k := range keys {
			fields = append(fields, fmt.Sprintf("%s:%s", jsString(k), MarshalJS(v[k])))
		}
		return "{" + strings.Join(fields, ",") + "}"
	case []any:
		fields := make([]string, len(v))
		for i, e := range v {
			fields[i] = MarshalJS(e)
		}
		return "[" + strings.Join(fields, ",") + "]"
	case []float64:
		fields := make([]string, len(v))
		for i, f := range v {
			fields[i] = fmt.Sprintf("%v", f)
		}
		return "[" + strings.Join(fields, ",") + "]"
	case [][]float64:
		fields := make([]string, len(v))
		for i, arr := range v {
			fields[i] = MarshalJS(arr)
		}
		return "[" + strings.Join(fields, ",") + "]"
	case string:
		return jsString(v)
	case bool, int, int64, int32, uint, uint64, uint32, float64, float32:
		return fmt.Sprintf("%v", v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "null"
		}
		return string(data)
	}
}

// jsString quotes s for embedding in a script; json escapes <, > and & too.
func jsString(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}
