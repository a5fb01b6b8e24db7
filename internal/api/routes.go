// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-collab/internal/maputil"
	"github.com/joeblew999/plat-collab/internal/service"
	"github.com/joeblew999/plat-collab/internal/wms"
)

// Services holds the service dependencies for API handlers.
type Services struct {
	Layer    *service.LayerService
	BaseMap  *service.BaseMapService
	Feature  *service.FeatureService // nil when the database is unavailable
	Source   *service.SourceService
	Session  *service.SessionService
	WMS      *wms.Client
	Bus      *service.EventBus
	Defaults Defaults
	DataDir  string
}

// Defaults are the project-wide map settings applied when a request leaves
// them out.
type Defaults struct {
	Center          [2]float64 // [lat, lng]
	Zoom            float64
	FallbackService string // tile URL used when a map has no base layers
	FallbackOptions map[string]any
}

// MapOptions builds createMap options from the defaults.
func (d Defaults) MapOptions() maputil.MapOptions {
	return maputil.MapOptions{MapDefaultViewCenter: d.Center, MapDefaultViewZoom: d.Zoom}
}

type MessageBody struct {
	Message string `json:"message" doc:"Result message"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
}

type ProjectInput struct {
	Project string `path:"project" minLength:"1" maxLength:"128" doc:"Project slug" example:"demo"`
}

// APIHandler holds the REST handlers. Methods named Register* are
// discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
	log zerolog.Logger
}

func NewAPIHandler(svc *Services, log zerolog.Logger) *APIHandler {
	if svc.WMS == nil {
		svc.WMS = wms.NewClient(0)
	}
	return &APIHandler{svc: svc, log: log}
}

// RegisterHealth registers the health check.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: Version}}, nil
}

// problem maps service errors onto HTTP errors.
func (h *APIHandler) problem(err error) error {
	var se huma.StatusError
	if errors.As(err, &se) {
		return err
	}
	switch {
	case errors.Is(err, service.ErrNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, service.ErrExists):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, service.ErrInvalid):
		return huma.Error422UnprocessableEntity(err.Error())
	case errors.Is(err, maputil.ErrNoMap):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, wms.ErrNotGeoJSON):
		return huma.Error422UnprocessableEntity(maputil.MessageNotGeoJSON)
	case errors.Is(err, wms.ErrUnavailable):
		return huma.Error502BadGateway(maputil.MessageUnavailable)
	}
	h.log.Error().Err(err).Msg("request failed")
	return huma.Error500InternalServerError("internal error")
}
