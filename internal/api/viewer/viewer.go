// Package viewer contains the Datastar SSE handlers behind the map viewer page.
package viewer

import (
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-collab/internal/api"
	"github.com/joeblew999/plat-collab/internal/humastar"
	"github.com/joeblew999/plat-collab/internal/maputil"
	"github.com/joeblew999/plat-collab/internal/service"
	"github.com/joeblew999/plat-collab/internal/templates"
)

// DOM targets patched by the viewer handlers.
const (
	PopupSelector       = "#map-popup"
	FeatureListSelector = "#feature-list"
	TypeSelectSelector  = "#featuretype-select"
	LayerListSelector   = "#layer-list"
)

// Handler serves the viewer's SSE endpoints. Methods named Register* are
// discovered by huma.AutoRegister.
type Handler struct {
	humastar.Handler
	svc *api.Services
	bus *service.EventBus
	log zerolog.Logger
}

// New creates the viewer handler. Fragments come from renderer, or the
// embedded set when it is nil.
func New(svc *api.Services, renderer *templates.Renderer, log zerolog.Logger) *Handler {
	if renderer == nil {
		renderer = templates.Default()
	}
	bus := svc.Bus
	if bus == nil {
		bus = service.DefaultBus
	}
	return &Handler{
		Handler: humastar.Handler{Renderer: renderer},
		svc:     svc,
		bus:     bus,
		log:     log,
	}
}

type MapInput struct {
	ID string `path:"id" doc:"Map session ID"`
}

type SignalsMapInput struct {
	MapInput
	humastar.SignalsInput
}

type featureRow struct {
	ID         string
	Color      string
	FeatureURL string
	Title      string
	Status     string
}

func (h *Handler) renderFeatureList(features []maputil.Feature) string {
	items := make([]any, 0, len(features))
	for _, f := range features {
		p := f.Properties
		color := p.FeatureType.Color
		if color == "" {
			color = "#3388ff"
		}
		status := p.Status.Label
		if status == "" {
			status = p.Status.Value
		}
		items = append(items, featureRow{
			ID: f.ID, Color: color, FeatureURL: p.FeatureURL, Title: p.Title, Status: status,
		})
	}
	return h.RenderList("feature-row", items, "Aucun signalement", "Aucun signalement ne correspond aux filtres")
}

type layerCard struct {
	ID         int
	Title      string
	SchemaType maputil.SchemaType
	Service    string
	Opacity    float64
	Queryable  bool
}

func (h *Handler) renderLayerList(layers []maputil.LayerDescriptor) string {
	items := make([]any, 0, len(layers))
	for _, l := range layers {
		opacity := 1.0
		if l.Opacity != nil {
			opacity = *l.Opacity
		}
		items = append(items, layerCard{
			ID: l.ID, Title: l.Title, SchemaType: l.SchemaType, Service: l.Service,
			Opacity: opacity, Queryable: l.Queryable,
		})
	}
	return h.RenderList("layer-card", items, "Aucune couche", "Le fond de carte par défaut est affiché")
}

// stateSignals are the map signals the viewer binds to.
func stateSignals(sess *service.Session) (map[string]any, error) {
	state, err := sess.Renderer.Snapshot()
	if err != nil {
		return nil, err
	}
	overlays := 0
	for _, g := range sess.Renderer.Overlays() {
		overlays += g.Len()
	}
	return map[string]any{
		"layers":       len(sess.Renderer.Registered()),
		"overlaycount": overlays,
		"zoom":         state.Zoom,
		"center":       state.Center,
		"querylayer":   sess.Renderer.QueryLayer(),
	}, nil
}
