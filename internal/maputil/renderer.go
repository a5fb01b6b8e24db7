// Package maputil renders base layers and project features onto a map.
//
// A Renderer owns one map, the registry of base layers it attached, and the
// GetFeatureInfo machinery for queryable WMS layers. All methods are safe for
// concurrent use; map mutations are serialised on the renderer's mutex and
// event listeners run with that mutex held.
package maputil

import (
	"context"
	"errors"
	"sync"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-collab/internal/leaflet"
	"github.com/joeblew999/plat-collab/internal/metrics"
	"github.com/joeblew999/plat-collab/internal/templates"
	"github.com/joeblew999/plat-collab/internal/wms"
)

// ErrNoMap is returned by operations that need a map before CreateMap ran.
var ErrNoMap = errors.New("map not created")

// UpdateKind tells subscribers what changed.
type UpdateKind string

const (
	UpdateState UpdateKind = "state"
	UpdatePopup UpdateKind = "popup"
)

// Update is delivered to subscribers after the map changes.
type Update struct {
	Kind  UpdateKind
	Popup *leaflet.Popup
}

// Renderer is the map context: one map plus its layer registry.
type Renderer struct {
	mu       sync.Mutex
	m        *leaflet.Map
	registry map[int]leaflet.Handle

	queryLayer string
	generation uint64
	inflight   int
	idle       *sync.Cond // signalled on r.mu when inflight drops to zero
	ctx        context.Context
	cancel     context.CancelFunc

	subsMu sync.Mutex
	subs   map[chan Update]struct{}
	closed bool

	tmpl    *templates.Renderer
	wms     *wms.Client
	log     zerolog.Logger
	metrics *metrics.Metrics
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithTemplates sets the popup template renderer.
func WithTemplates(t *templates.Renderer) Option {
	return func(r *Renderer) { r.tmpl = t }
}

// WithWMSClient sets the GetFeatureInfo client.
func WithWMSClient(c *wms.Client) Option {
	return func(r *Renderer) { r.wms = c }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Renderer) { r.log = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Renderer) { r.metrics = m }
}

// New creates a renderer without a map.
func New(opts ...Option) *Renderer {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Renderer{
		registry: make(map[int]leaflet.Handle),
		ctx:      ctx,
		cancel:   cancel,
		subs:     make(map[chan Update]struct{}),
		log:      zerolog.Nop(),
	}
	r.idle = sync.NewCond(&r.mu)
	for _, opt := range opts {
		opt(r)
	}
	if r.tmpl == nil {
		r.tmpl = templates.Default()
	}
	if r.wms == nil {
		r.wms = wms.NewClient(0)
	}
	return r
}

// CreateMap creates the map and makes it current. A previous map is
// discarded along with its registry.
func (r *Renderer) CreateMap(opts MapOptions) *leaflet.Map {
	r.mu.Lock()
	defer r.mu.Unlock()

	lat, lng := opts.MapDefaultViewCenter[0], opts.MapDefaultViewCenter[1]
	if opts.Lat != nil {
		lat = *opts.Lat
	}
	if opts.Lng != nil {
		lng = *opts.Lng
	}
	zoom := opts.MapDefaultViewZoom
	if opts.Zoom != nil {
		zoom = *opts.Zoom
	}

	m := leaflet.NewMap(orb.Point{lng, lat}, zoom)
	if opts.ZoomControl == nil || *opts.ZoomControl {
		m.SetZoomControl(&leaflet.ZoomControl{
			Position:     "topright",
			ZoomInTitle:  "Zoomer",
			ZoomOutTitle: "Dézoomer",
		})
	}

	m.On(leaflet.EventPopupOpen, func(e leaflet.Event) {
		r.notify(Update{Kind: UpdatePopup, Popup: e.Popup})
	})
	for _, ev := range []leaflet.EventName{leaflet.EventLayerAdd, leaflet.EventLayerRemove, leaflet.EventMoveEnd} {
		m.On(ev, func(leaflet.Event) { r.notify(Update{Kind: UpdateState}) })
	}

	r.m = m
	r.registry = make(map[int]leaflet.Handle)
	r.generation++ // responses for the old map are stale
	r.notify(Update{Kind: UpdateState})
	return m
}

// Map returns the current map, or nil before CreateMap.
func (r *Renderer) Map() *leaflet.Map {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.m
}

// Snapshot returns the current map state.
func (r *Renderer) Snapshot() (leaflet.State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.m == nil {
		return leaflet.State{}, ErrNoMap
	}
	return r.m.Snapshot(), nil
}

// Registered returns a copy of the layer registry.
func (r *Renderer) Registered() map[int]leaflet.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[int]leaflet.Handle, len(r.registry))
	for k, v := range r.registry {
		out[k] = v
	}
	return out
}

// AddLayers attaches the given base layers in order and records them in the
// registry. With no layers, a single fallback tile layer is attached instead
// and the registry is left alone.
func (r *Renderer) AddLayers(layers []LayerDescriptor, fallbackService string, fallbackOptions map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.m == nil {
		return ErrNoMap
	}
	if len(layers) == 0 {
		if fallbackService == "" {
			r.log.Debug().Msg("no layers and no fallback service")
			return nil
		}
		r.m.AddLayer(leaflet.NewTileLayer(fallbackService, fallbackOptions))
		return nil
	}
	r.addLayers(layers)
	return nil
}

func (r *Renderer) addLayers(layers []LayerDescriptor) {
	for _, d := range layers {
		if d.Options == nil {
			r.log.Debug().Int("layer", d.ID).Msg("layer without options skipped")
			continue
		}

		var l leaflet.Layer
		switch d.SchemaType {
		case SchemaWMS:
			w := leaflet.NewWMSTileLayer(d.Service, d.Options)
			if d.Queryable {
				l = newQueryableWMS(r, w, d.Title)
			} else {
				l = w
			}
		case SchemaTMS:
			l = leaflet.NewTileLayer(d.Service, d.Options)
		default:
			r.log.Debug().Int("layer", d.ID).Str("schema_type", string(d.SchemaType)).Msg("unknown schema type ignored")
			continue
		}

		if d.Opacity != nil {
			if o, ok := l.(leaflet.Opaque); ok {
				o.SetOpacity(*d.Opacity)
			}
		}

		// A repeated id replaces the earlier layer so no attached base layer
		// is left outside the registry.
		if prev, ok := r.registry[d.ID]; ok {
			r.detach(prev)
		}
		r.registry[d.ID] = r.m.AddLayer(l)
	}
}

func (r *Renderer) detach(h leaflet.Handle) {
	r.m.EachLayer(func(l leaflet.Layer) {
		if l.Handle() == h {
			r.m.RemoveLayer(l)
		}
	})
}

// RemoveLayers detaches every registered base layer and clears the registry.
// Feature overlays are untouched.
func (r *Renderer) RemoveLayers() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeRegistered()
}

func (r *Renderer) removeRegistered() {
	if r.m == nil || len(r.registry) == 0 {
		clear(r.registry)
		return
	}
	handles := make(map[leaflet.Handle]struct{}, len(r.registry))
	for _, h := range r.registry {
		handles[h] = struct{}{}
	}
	r.m.EachLayer(func(l leaflet.Layer) {
		if _, ok := handles[l.Handle()]; ok {
			r.m.RemoveLayer(l)
		}
	})
	clear(r.registry)
}

// UpdateOpacity sets the opacity of a registered layer. Unknown ids are ignored.
func (r *Renderer) UpdateOpacity(layerID int, opacity float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.registry[layerID]
	if !ok || r.m == nil {
		return
	}
	r.m.EachLayer(func(l leaflet.Layer) {
		if l.Handle() != h {
			return
		}
		if o, ok := l.(leaflet.Opaque); ok {
			o.SetOpacity(opacity)
			r.notify(Update{Kind: UpdateState})
		}
	})
}

// UpdateOrder redraws the base layers in the order given. Attach order is
// z-order, so the last layer ends up on top. Every registered layer is
// detached first, which makes the result identical to RemoveLayers followed
// by AddLayers(layers).
func (r *Renderer) UpdateOrder(layers []LayerDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.m == nil {
		return ErrNoMap
	}
	r.removeRegistered()
	r.addLayers(layers)
	return nil
}

// AddMapEventListener subscribes fn to a map event. fn runs with the
// renderer locked and must not call back into the renderer.
func (r *Renderer) AddMapEventListener(event leaflet.EventName, fn func(leaflet.Event)) (leaflet.ListenerID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.m == nil {
		return 0, ErrNoMap
	}
	return r.m.On(event, fn), nil
}

// RemoveMapEventListener drops a listener added with AddMapEventListener.
func (r *Renderer) RemoveMapEventListener(id leaflet.ListenerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.m != nil {
		r.m.Off(id)
	}
}

// Click simulates a pointer click at latlng (lng/lat). An open popup is
// closed first, as Leaflet does. A shape under the pointer opens its bound
// popup, and the click then bubbles to the map listeners.
func (r *Renderer) Click(latlng orb.Point) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.m == nil {
		return ErrNoMap
	}
	r.m.ClosePopup()
	r.generation++
	if shape := r.m.ShapeAt(latlng); shape != nil && shape.PopupContent() != "" {
		r.m.OpenPopup(leaflet.Popup{LatLng: latlng, Content: shape.PopupContent()})
	}
	r.m.Click(latlng)
	return nil
}

// MoveTo changes the view and fires moveend.
func (r *Renderer) MoveTo(center orb.Point, zoom float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.m == nil {
		return ErrNoMap
	}
	r.m.SetView(center, zoom)
	return nil
}

// Resize sets the viewport size used for GetFeatureInfo pixel maths.
func (r *Renderer) Resize(width, height int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.m == nil {
		return ErrNoMap
	}
	r.m.SetSize(width, height)
	return nil
}

// SelectQueryLayer sets the title of the layer clicks should query.
func (r *Renderer) SelectQueryLayer(title string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queryLayer = title
}

// QueryLayer returns the selected query layer title.
func (r *Renderer) QueryLayer() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.queryLayer
}

// Wait blocks until in-flight GetFeatureInfo queries have finished.
func (r *Renderer) Wait() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for r.inflight > 0 {
		r.idle.Wait()
	}
}

// Close cancels in-flight queries and ends all subscriptions. Subscribing
// afterwards yields a closed channel.
func (r *Renderer) Close() {
	r.cancel()
	r.Wait()

	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	r.closed = true
	for ch := range r.subs {
		delete(r.subs, ch)
		close(ch)
	}
}

// Subscribe returns a channel of updates and a function to unsubscribe.
// Slow subscribers miss updates rather than blocking the map.
func (r *Renderer) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, 16)
	r.subsMu.Lock()
	if r.closed {
		r.subsMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	r.subs[ch] = struct{}{}
	r.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.subsMu.Lock()
			defer r.subsMu.Unlock()
			if _, ok := r.subs[ch]; ok {
				delete(r.subs, ch)
				close(ch)
			}
		})
	}
}

func (r *Renderer) notify(u Update) {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	for ch := range r.subs {
		select {
		case ch <- u:
		default:
		}
	}
}
