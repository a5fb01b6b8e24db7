package maputil

import (
	"errors"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-collab/internal/leaflet"
	"github.com/joeblew999/plat-collab/internal/metrics"
	"github.com/joeblew999/plat-collab/internal/wms"
)

// queryableWMS is a WMS layer that answers map clicks with a GetFeatureInfo
// popup while it is the selected query layer.
type queryableWMS struct {
	*leaflet.WMSTileLayer
	r        *Renderer
	title    string
	listener leaflet.ListenerID
}

func newQueryableWMS(r *Renderer, l *leaflet.WMSTileLayer, title string) *queryableWMS {
	return &queryableWMS{WMSTileLayer: l, r: r, title: title}
}

// WMS exposes the wrapped layer for snapshots.
func (q *queryableWMS) WMS() *leaflet.WMSTileLayer { return q.WMSTileLayer }

func (q *queryableWMS) OnAdd(m *leaflet.Map) {
	q.listener = m.On(leaflet.EventClick, func(e leaflet.Event) {
		q.r.queryFeatureInfo(m, q, e)
	})
}

func (q *queryableWMS) OnRemove(m *leaflet.Map) {
	m.Off(q.listener)
	q.listener = 0
}

// queryFeatureInfo runs with r.mu held (map listeners fire inside renderer
// operations). The request itself runs on its own goroutine.
func (r *Renderer) queryFeatureInfo(m *leaflet.Map, q *queryableWMS, e leaflet.Event) {
	if r.queryLayer != q.title {
		r.metrics.IncFeatureInfo(metrics.OutcomeSkipped)
		return
	}

	size := m.Size()
	req := wms.FeatureInfoRequest{
		Service: q.URL,
		Version: q.Params.Version,
		Layers:  q.Params.Layers,
		Format:  q.Params.Format,
		BBox:    m.Bounds(),
		Width:   size.X,
		Height:  size.Y,
		X:       e.ContainerPoint.X,
		Y:       e.ContainerPoint.Y,
	}

	r.generation++
	gen := r.generation
	latlng := e.LatLng
	title := q.title

	r.inflight++
	go func() {
		fc, err := r.wms.GetFeatureInfo(r.ctx, req)
		r.applyFeatureInfo(m, gen, latlng, title, fc, err)
	}()
}

func (r *Renderer) applyFeatureInfo(m *leaflet.Map, gen uint64, latlng orb.Point, title string, fc *geojson.FeatureCollection, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	defer r.queryDone()

	if gen != r.generation || m != r.m || r.ctx.Err() != nil {
		r.log.Debug().Uint64("generation", gen).Uint64("current", r.generation).Msg("stale feature info dropped")
		r.metrics.IncFeatureInfo(metrics.OutcomeStale)
		return
	}

	if err != nil {
		r.log.Warn().Err(err).Str("layer", title).Msg("feature info request failed")
		r.metrics.IncFeatureInfo(metrics.OutcomeError)
		message := MessageUnavailable
		if errors.Is(err, wms.ErrNotGeoJSON) {
			message = MessageNotGeoJSON
		}
		m.OpenPopup(leaflet.Popup{LatLng: latlng, Content: r.messageContent(title, message)})
		return
	}

	if fc == nil || len(fc.Features) == 0 {
		r.log.Info().Str("layer", title).Msg("no feature at clicked point")
		r.metrics.IncFeatureInfo(metrics.OutcomeEmpty)
		return
	}

	content, err := r.featureInfoContent(title, fc)
	if err != nil {
		r.log.Warn().Err(err).Msg("feature info popup render failed")
		return
	}
	r.metrics.IncFeatureInfo(metrics.OutcomeFound)
	m.OpenPopup(leaflet.Popup{LatLng: latlng, Content: content})
}

// queryDone runs with r.mu held.
func (r *Renderer) queryDone() {
	r.inflight--
	if r.inflight == 0 {
		r.idle.Broadcast()
	}
}
