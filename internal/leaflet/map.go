// Package leaflet is a retained map engine modelled on Leaflet's object model.
//
// A Map holds the view, an ordered list of attached layers (attach order is
// z-order), event listeners and the open popup. Nothing is drawn server-side:
// the state is exported with [Map.Snapshot] and turned into a Leaflet bootstrap
// script by [Script].
//
// Map is not safe for concurrent use; callers serialise access.
package leaflet

import (
	"image"
	"math"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// EventName names a map interaction event.
type EventName string

const (
	EventClick       EventName = "click"
	EventMoveEnd     EventName = "moveend"
	EventLayerAdd    EventName = "layeradd"
	EventLayerRemove EventName = "layerremove"
	EventPopupOpen   EventName = "popupopen"
)

// Event is passed to listeners.
type Event struct {
	Type           EventName
	LatLng         orb.Point   // lng/lat of a pointer event
	ContainerPoint image.Point // pixel of LatLng within the viewport
	Layer          Layer       // layeradd / layerremove
	Popup          *Popup      // popupopen
}

// ListenerID is returned by On and accepted by Off.
type ListenerID uint64

type listener struct {
	id    ListenerID
	event EventName
	fn    func(Event)
}

// Popup is an HTML bubble anchored at a point.
type Popup struct {
	LatLng  orb.Point `json:"latlng"`
	Content string    `json:"content"`
}

// ZoomControl is the +/- widget.
type ZoomControl struct {
	Position     string `json:"position"`
	ZoomInTitle  string `json:"zoomInTitle"`
	ZoomOutTitle string `json:"zoomOutTitle"`
}

const (
	DefaultWidth  = 800
	DefaultHeight = 600
	tileSize      = 256
)

// Map is a single map instance.
type Map struct {
	center      orb.Point
	zoom        float64
	size        image.Point
	zoomControl *ZoomControl

	layers    []Layer
	listeners []listener
	nextID    ListenerID
	popup     *Popup
}

// NewMap creates a map centred on center (lng/lat) at zoom.
func NewMap(center orb.Point, zoom float64) *Map {
	return &Map{
		center: center,
		zoom:   zoom,
		size:   image.Pt(DefaultWidth, DefaultHeight),
	}
}

// Center returns the view centre as lng/lat.
func (m *Map) Center() orb.Point { return m.center }

// Zoom returns the view zoom.
func (m *Map) Zoom() float64 { return m.zoom }

// Size returns the viewport size in pixels.
func (m *Map) Size() image.Point { return m.size }

// SetSize changes the viewport size. Non-positive dimensions are ignored.
func (m *Map) SetSize(width, height int) {
	if width > 0 && height > 0 {
		m.size = image.Pt(width, height)
	}
}

// SetView moves the map and fires moveend.
func (m *Map) SetView(center orb.Point, zoom float64) {
	m.center = center
	m.zoom = zoom
	m.Fire(EventMoveEnd, Event{LatLng: center})
}

// SetZoomControl attaches (or with nil, removes) the zoom widget.
func (m *Map) SetZoomControl(zc *ZoomControl) { m.zoomControl = zc }

// ZoomControl returns the attached zoom widget, if any.
func (m *Map) ZoomControl() *ZoomControl { return m.zoomControl }

// ---------------------------------------------------------------------------
// Layers
// ---------------------------------------------------------------------------

// AddLayer attaches l on top of the current layers and returns its handle.
// Adding an attached layer again is a no-op.
func (m *Map) AddLayer(l Layer) Handle {
	h := l.stamp()
	if m.HasLayer(l) {
		return h
	}
	m.layers = append(m.layers, l)
	if hk, ok := l.(Hooks); ok {
		hk.OnAdd(m)
	}
	m.Fire(EventLayerAdd, Event{Layer: l})
	return h
}

// RemoveLayer detaches l. Unknown layers are ignored.
func (m *Map) RemoveLayer(l Layer) {
	i := m.indexOf(l.Handle())
	if i < 0 {
		return
	}
	m.layers = slices.Delete(m.layers, i, i+1)
	if hk, ok := l.(Hooks); ok {
		hk.OnRemove(m)
	}
	m.Fire(EventLayerRemove, Event{Layer: l})
}

// HasLayer reports whether l is attached.
func (m *Map) HasLayer(l Layer) bool {
	return l.Handle() != 0 && m.indexOf(l.Handle()) >= 0
}

// EachLayer calls fn for every attached layer in z-order. fn may attach or
// detach layers; iteration runs over a snapshot.
func (m *Map) EachLayer(fn func(Layer)) {
	for _, l := range m.Layers() {
		fn(l)
	}
}

// Layers returns the attached layers in z-order.
func (m *Map) Layers() []Layer {
	return slices.Clone(m.layers)
}

func (m *Map) indexOf(h Handle) int {
	for i, l := range m.layers {
		if l.Handle() == h {
			return i
		}
	}
	return -1
}

// ---------------------------------------------------------------------------
// Events
// ---------------------------------------------------------------------------

// On subscribes fn to event. Subscribing twice registers twice.
func (m *Map) On(event EventName, fn func(Event)) ListenerID {
	m.nextID++
	m.listeners = append(m.listeners, listener{id: m.nextID, event: event, fn: fn})
	return m.nextID
}

// Off removes a listener registered with On.
func (m *Map) Off(id ListenerID) {
	m.listeners = slices.DeleteFunc(m.listeners, func(l listener) bool { return l.id == id })
}

// Fire dispatches an event to its listeners in registration order.
func (m *Map) Fire(event EventName, e Event) {
	e.Type = event
	for _, l := range slices.Clone(m.listeners) {
		if l.event == event {
			l.fn(e)
		}
	}
}

// Click fires a click at the given lng/lat, filling in the container point.
func (m *Map) Click(latlng orb.Point) {
	m.Fire(EventClick, Event{LatLng: latlng, ContainerPoint: m.ContainerPoint(latlng)})
}

// ---------------------------------------------------------------------------
// Popup
// ---------------------------------------------------------------------------

// OpenPopup replaces the open popup and fires popupopen.
func (m *Map) OpenPopup(p Popup) {
	m.popup = &p
	m.Fire(EventPopupOpen, Event{LatLng: p.LatLng, Popup: &p})
}

// ClosePopup closes the open popup, if any.
func (m *Map) ClosePopup() { m.popup = nil }

// Popup returns the open popup or nil.
func (m *Map) Popup() *Popup {
	if m.popup == nil {
		return nil
	}
	p := *m.popup
	return &p
}

// ---------------------------------------------------------------------------
// Projection (EPSG:3857 pixel space)
// ---------------------------------------------------------------------------

var circumference = 2 * math.Pi * 6378137.0

func (m *Map) worldSize() float64 {
	return tileSize * math.Pow(2, m.zoom)
}

// toPixel projects lng/lat to absolute world pixels at the current zoom.
func (m *Map) toPixel(p orb.Point) (float64, float64) {
	merc := project.WGS84.ToMercator(p)
	w := m.worldSize()
	x := (merc[0] + circumference/2) / circumference * w
	y := (circumference/2 - merc[1]) / circumference * w
	return x, y
}

func (m *Map) fromPixel(x, y float64) orb.Point {
	w := m.worldSize()
	merc := orb.Point{x/w*circumference - circumference/2, circumference/2 - y/w*circumference}
	return project.Mercator.ToWGS84(merc)
}

// Bounds returns the lng/lat bounds of the viewport.
func (m *Map) Bounds() orb.Bound {
	cx, cy := m.toPixel(m.center)
	hw, hh := float64(m.size.X)/2, float64(m.size.Y)/2
	sw := m.fromPixel(cx-hw, cy+hh)
	ne := m.fromPixel(cx+hw, cy-hh)
	return orb.Bound{Min: sw, Max: ne}
}

// ContainerPoint returns the pixel of p relative to the viewport's top-left corner.
func (m *Map) ContainerPoint(p orb.Point) image.Point {
	cx, cy := m.toPixel(m.center)
	px, py := m.toPixel(p)
	x := px - (cx - float64(m.size.X)/2)
	y := py - (cy - float64(m.size.Y)/2)
	return image.Pt(int(math.Round(x)), int(math.Round(y)))
}
