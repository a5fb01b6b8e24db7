package leaflet

import (
	"strings"
	"sync/atomic"

	"github.com/paulmach/orb"
)

// Handle identifies a layer once it has been attached to a map.
// Handles are unique across all maps in the process, like Leaflet stamps.
type Handle uint64

var lastHandle atomic.Uint64

// Kind is the closed set of layer types the engine knows how to draw.
type Kind string

const (
	KindTile         Kind = "tileLayer"
	KindWMS          Kind = "tileLayer.wms"
	KindCircleMarker Kind = "circleMarker"
	KindPolyline     Kind = "polyline"
	KindPolygon      Kind = "polygon"
	KindFeatureGroup Kind = "featureGroup"
)

// Layer is anything that can be attached to a Map.
type Layer interface {
	Kind() Kind
	Handle() Handle
	stamp() Handle
}

// Hooks is implemented by layers that react to being attached or detached.
type Hooks interface {
	OnAdd(m *Map)
	OnRemove(m *Map)
}

// Opaque is implemented by layers with an adjustable opacity.
type Opaque interface {
	Opacity() float64
	SetOpacity(opacity float64)
}

type layerBase struct {
	handle Handle
}

// Handle returns the layer handle, or 0 if the layer was never attached.
func (b *layerBase) Handle() Handle { return b.handle }

func (b *layerBase) stamp() Handle {
	if b.handle == 0 {
		b.handle = Handle(lastHandle.Add(1))
	}
	return b.handle
}

// ---------------------------------------------------------------------------
// Tile layers
// ---------------------------------------------------------------------------

// TileLayer is a plain z/x/y tiled image source.
type TileLayer struct {
	layerBase
	URL     string
	Options map[string]any
	opacity float64
}

// NewTileLayer creates a tile layer. An "opacity" option seeds the layer opacity.
func NewTileLayer(url string, options map[string]any) *TileLayer {
	return &TileLayer{
		URL:     url,
		Options: options,
		opacity: floatOption(options, "opacity", 1),
	}
}

func (l *TileLayer) Kind() Kind { return KindTile }

func (l *TileLayer) Opacity() float64 { return l.opacity }

func (l *TileLayer) SetOpacity(opacity float64) { l.opacity = clamp01(opacity) }

// WMSParams are the OGC request parameters of a WMS tile layer.
type WMSParams struct {
	Layers      string `json:"layers"`
	Styles      string `json:"styles"`
	Format      string `json:"format"`
	Transparent bool   `json:"transparent"`
	Version     string `json:"version"`
}

// ParseWMSParams reads WMS request parameters from layer options.
// Keys are matched case-insensitively; format and version get the Leaflet defaults.
func ParseWMSParams(options map[string]any) WMSParams {
	p := WMSParams{Format: "image/png", Version: "1.1.1"}
	for k, v := range options {
		switch strings.ToLower(k) {
		case "layers":
			p.Layers = stringOf(v)
		case "styles":
			p.Styles = stringOf(v)
		case "format":
			if s := stringOf(v); s != "" {
				p.Format = s
			}
		case "version":
			if s := stringOf(v); s != "" {
				p.Version = s
			}
		case "transparent":
			switch t := v.(type) {
			case bool:
				p.Transparent = t
			case string:
				p.Transparent = strings.EqualFold(t, "true")
			}
		}
	}
	return p
}

// WMSTileLayer requests tiles from an OGC Web Map Service.
type WMSTileLayer struct {
	TileLayer
	Params WMSParams
}

// NewWMSTileLayer creates a WMS tile layer from a service URL and options.
func NewWMSTileLayer(url string, options map[string]any) *WMSTileLayer {
	return &WMSTileLayer{
		TileLayer: *NewTileLayer(url, options),
		Params:    ParseWMSParams(options),
	}
}

func (l *WMSTileLayer) Kind() Kind { return KindWMS }

// ---------------------------------------------------------------------------
// Vector shapes
// ---------------------------------------------------------------------------

// PathStyle holds the drawing options of a vector shape.
type PathStyle struct {
	Color       string  `json:"color"`
	Weight      float64 `json:"weight"`
	Radius      float64 `json:"radius,omitempty"`
	FillOpacity float64 `json:"fillOpacity,omitempty"`
}

// Path is a vector shape with a style and an optional bound popup.
type Path interface {
	Layer
	Geometry() orb.Geometry
	Style() PathStyle
	PopupContent() string
}

type popupBinding struct {
	popup string
}

// BindPopup sets the HTML shown when the shape is clicked.
func (p *popupBinding) BindPopup(html string) { p.popup = html }

// PopupContent returns the bound popup HTML.
func (p *popupBinding) PopupContent() string { return p.popup }

// CircleMarker is a fixed-radius circle drawn at a point.
type CircleMarker struct {
	layerBase
	popupBinding
	Center    orb.Point
	PathStyle PathStyle
}

func NewCircleMarker(center orb.Point, style PathStyle) *CircleMarker {
	return &CircleMarker{Center: center, PathStyle: style}
}

func (c *CircleMarker) Kind() Kind             { return KindCircleMarker }
func (c *CircleMarker) Geometry() orb.Geometry { return c.Center }
func (c *CircleMarker) Style() PathStyle       { return c.PathStyle }

// Polyline is an open line.
type Polyline struct {
	layerBase
	popupBinding
	Points    orb.LineString
	PathStyle PathStyle
}

func NewPolyline(points orb.LineString, style PathStyle) *Polyline {
	return &Polyline{Points: points, PathStyle: style}
}

func (p *Polyline) Kind() Kind             { return KindPolyline }
func (p *Polyline) Geometry() orb.Geometry { return p.Points }
func (p *Polyline) Style() PathStyle       { return p.PathStyle }

// Polygon is a filled area with optional holes.
type Polygon struct {
	layerBase
	popupBinding
	Rings     orb.Polygon
	PathStyle PathStyle
}

func NewPolygon(rings orb.Polygon, style PathStyle) *Polygon {
	return &Polygon{Rings: rings, PathStyle: style}
}

func (p *Polygon) Kind() Kind             { return KindPolygon }
func (p *Polygon) Geometry() orb.Geometry { return p.Rings }
func (p *Polygon) Style() PathStyle       { return p.PathStyle }

// FeatureGroup collects shapes so they can be attached and removed as one unit.
type FeatureGroup struct {
	layerBase
	shapes []Path
}

func NewFeatureGroup() *FeatureGroup {
	return &FeatureGroup{}
}

func (g *FeatureGroup) Kind() Kind { return KindFeatureGroup }

// AddLayer appends a shape to the group.
func (g *FeatureGroup) AddLayer(p Path) {
	p.stamp()
	g.shapes = append(g.shapes, p)
}

// Layers returns the shapes in insertion order.
func (g *FeatureGroup) Layers() []Path {
	out := make([]Path, len(g.shapes))
	copy(out, g.shapes)
	return out
}

// Len returns the number of shapes in the group.
func (g *FeatureGroup) Len() int { return len(g.shapes) }

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func floatOption(options map[string]any, key string, def float64) float64 {
	if options == nil {
		return def
	}
	switch v := options[key].(type) {
	case float64:
		return clamp01(v)
	case int:
		return clamp01(float64(v))
	}
	return def
}

func stringOf(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
