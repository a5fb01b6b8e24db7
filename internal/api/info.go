package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
)

// Version is reported by /health and /api/v1/info.
const Version = "0.1.0"

type InfoBody struct {
	Name     string   `json:"name" doc:"Service name"`
	Version  string   `json:"version" doc:"Service version"`
	DataDir  string   `json:"data_dir" doc:"Data directory path"`
	DB       bool     `json:"db" doc:"Whether the feature store is available"`
	Sessions int      `json:"sessions" doc:"Open map sessions"`
	Features []string `json:"features" doc:"Available features"`
}

// RegisterInfo registers the service description.
func (h *APIHandler) RegisterInfo(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

func (h *APIHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	features := []string{"wms", "tms", "featureinfo", "basemaps", "sessions"}
	if h.svc.Feature != nil {
		features = append(features, "duckdb")
	}
	sessions := 0
	if h.svc.Session != nil {
		sessions = h.svc.Session.Count()
	}
	return &struct{ Body InfoBody }{Body: InfoBody{
		Name:     "plat-collab",
		Version:  Version,
		DataDir:  h.svc.DataDir,
		DB:       h.svc.Feature != nil,
		Sessions: sessions,
		Features: features,
	}}, nil
}
