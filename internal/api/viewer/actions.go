package viewer

import (
	"context"
	"fmt"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-collab/internal/api"
	"github.com/joeblew999/plat-collab/internal/humastar"
	"github.com/joeblew999/plat-collab/internal/maputil"
	"github.com/joeblew999/plat-collab/internal/service"
)

// RegisterActions registers the Datastar actions of the viewer page.
func (h *Handler) RegisterActions(api huma.API) {
	tags := huma.OperationTags("viewer")
	huma.Post(api, "/api/v1/viewer/maps/{id}/filter", h.Filter, tags)
	huma.Get(api, "/api/v1/viewer/maps/{id}/feature-types", h.FeatureTypes, tags)
	huma.Post(api, "/api/v1/viewer/maps/{id}/basemap", h.SelectBaseMap, tags)
	huma.Post(api, "/api/v1/viewer/maps/{id}/opacity", h.SetOpacity, tags)
}

func (h *Handler) session(id string) (*service.Session, error) {
	sess, err := h.svc.Session.Get(id)
	if err != nil {
		return nil, huma.Error404NotFound(err.Error())
	}
	return sess, nil
}

// Filter redraws the project's features through the filter built from the
// featuretype, featurestatus and featuretitle signals.
func (h *Handler) Filter(ctx context.Context, input *SignalsMapInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	sess, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	if h.svc.Feature == nil {
		return nil, huma.Error503ServiceUnavailable("Database not available")
	}
	filter := &maputil.Filter{
		FeatureType:   signals.String("featuretype"),
		FeatureStatus: signals.String("featurestatus"),
		FeatureTitle:  signals.String("featuretitle"),
	}

	return h.Stream(func(sse humastar.SSE) {
		features, err := h.svc.Feature.All(ctx, sess.Project, filter)
		if err != nil {
			h.log.Error().Err(err).Str("project", sess.Project).Msg("feature query failed")
			sse.Error("Impossible de charger les signalements")
			return
		}
		if features == nil {
			features = []maputil.Feature{}
		}
		n, err := api.RenderFeatures(ctx, h.svc.Feature, sess, features, filter)
		if err != nil {
			sse.Error(err.Error())
			return
		}
		sse.Patch(h.renderFeatureList(features), FeatureListSelector)
		sse.Signals(map[string]any{
			"overlaycount": n,
			"success":      fmt.Sprintf("%d signalements affichés", n),
		})
	}), nil
}

// FeatureTypes fills the type filter with the project's feature types.
func (h *Handler) FeatureTypes(ctx context.Context, input *MapInput) (*huma.StreamResponse, error) {
	sess, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	if h.svc.Feature == nil {
		return nil, huma.Error503ServiceUnavailable("Database not available")
	}

	return h.Stream(func(sse humastar.SSE) {
		types, err := h.svc.Feature.Types(ctx, sess.Project)
		if err != nil {
			sse.Error("Impossible de charger les types")
			return
		}
		options := make([]humastar.SelectOptionData, 0, len(types))
		for _, t := range types {
			label := t.Title
			if label == "" {
				label = t.Slug
			}
			options = append(options, humastar.SelectOptionData{Value: t.Slug, Label: label})
		}
		sse.Patch(h.RenderSelect("Tous les types", options), TypeSelectSelector)
	}), nil
}

// SelectBaseMap replaces the map's base layers with the basemap named by
// the basemap signal. A zero basemap clears them.
func (h *Handler) SelectBaseMap(ctx context.Context, input *SignalsMapInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	sess, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	id := signals.Int("basemap")

	var layers []maputil.LayerDescriptor
	if id > 0 {
		layers, err = h.svc.BaseMap.Resolve(sess.Project, id, h.svc.Layer)
		if err != nil {
			return nil, huma.Error404NotFound(err.Error())
		}
	}

	return h.Stream(func(sse humastar.SSE) {
		if err := sess.Renderer.UpdateOrder(layers); err != nil {
			sse.Error(err.Error())
			return
		}
		sse.Patch(h.renderLayerList(layers), LayerListSelector)
		sse.Signals(map[string]any{
			"basemap":    id,
			"layers":     len(sess.Renderer.Registered()),
			"querylayer": sess.Renderer.QueryLayer(),
		})
		if id > 0 {
			sse.Success(fmt.Sprintf("%d couches affichées", len(layers)))
		} else {
			sse.Success("Fond de carte retiré")
		}
	}), nil
}

// SetOpacity applies the opacity signal to the base layer named by the
// layer signal and patches its card.
func (h *Handler) SetOpacity(ctx context.Context, input *SignalsMapInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	if !signals.Has("opacity") {
		return nil, huma.Error400BadRequest("Missing opacity signal")
	}
	sess, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	layerID := signals.Int("layer")
	handle, ok := sess.Renderer.Registered()[layerID]
	if !ok {
		return nil, huma.Error404NotFound(fmt.Sprintf("layer %d is not on the map", layerID))
	}

	return h.Stream(func(sse humastar.SSE) {
		sess.Renderer.UpdateOpacity(layerID, signals.Float("opacity"))
		state, err := sess.Renderer.Snapshot()
		if err != nil {
			sse.Error(err.Error())
			return
		}
		opacity := 1.0
		for _, l := range state.Layers {
			if l.Handle == handle && l.Opacity != nil {
				opacity = *l.Opacity
			}
		}
		sse.Patch(fmt.Sprintf("%.2f", opacity), fmt.Sprintf("#layer-%d .layer-opacity", layerID))
	}), nil
}
