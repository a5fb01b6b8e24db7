package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-collab/internal/humastar"
	"github.com/joeblew999/plat-collab/internal/maputil"
	"github.com/joeblew999/plat-collab/internal/service"
)

type BaseMapInput struct {
	ProjectInput
	ID int `path:"id" minimum:"1" doc:"Basemap ID" example:"1"`
}

// BaseMapBody is a basemap with catalogue titles filled in.
type BaseMapBody struct {
	service.BaseMap
}

var basemapActions = []humastar.ActionDef{
	{Rel: "edit", Pattern: "/api/v1/projects/%s/basemaps/%d", Method: "PUT", Title: "Modifier le fond de carte"},
	{Rel: "delete", Pattern: "/api/v1/projects/%s/basemaps/%d", Method: "DELETE", Title: "Supprimer le fond de carte"},
	{Rel: "layers", Pattern: "/api/v1/projects/%s/basemaps/%d/layers", Method: "GET", Title: "Couches ordonnées"},
}

func (b BaseMapBody) Actions() []humastar.Action {
	return humastar.ActionsFor(basemapActions, b.Project, b.ID)
}

type BaseMapOutput struct {
	Body BaseMapBody
}

// RegisterBaseMaps registers the project basemap routes.
func (h *APIHandler) RegisterBaseMaps(api huma.API) {
	huma.Get(api, "/api/v1/projects/{project}/basemaps", h.ListBaseMaps, huma.OperationTags("basemaps"))
	huma.Register(api, huma.Operation{
		OperationID:   "create-basemap",
		Method:        "POST",
		Path:          "/api/v1/projects/{project}/basemaps",
		Summary:       "Create a basemap",
		Tags:          []string{"basemaps"},
		DefaultStatus: 201,
	}, h.CreateBaseMap)
	huma.Get(api, "/api/v1/projects/{project}/basemaps/{id}", h.GetBaseMap, huma.OperationTags("basemaps"))
	huma.Put(api, "/api/v1/projects/{project}/basemaps/{id}", h.PutBaseMap, huma.OperationTags("basemaps"))
	huma.Delete(api, "/api/v1/projects/{project}/basemaps/{id}", h.DeleteBaseMap, huma.OperationTags("basemaps"))
	huma.Get(api, "/api/v1/projects/{project}/basemaps/{id}/layers", h.GetBaseMapLayers, huma.OperationTags("basemaps"))
}

func (h *APIHandler) ListBaseMaps(ctx context.Context, input *ProjectInput) (*struct{ Body []service.BaseMap }, error) {
	basemaps := h.svc.BaseMap.List(input.Project)
	for i, b := range basemaps {
		basemaps[i] = service.WithTitles(b, h.svc.Layer)
	}
	return &struct{ Body []service.BaseMap }{Body: basemaps}, nil
}

func (h *APIHandler) CreateBaseMap(ctx context.Context, input *struct {
	ProjectInput
	Body service.BaseMap
}) (*BaseMapOutput, error) {
	created, err := h.svc.BaseMap.Create(input.Project, input.Body)
	if err != nil {
		return nil, h.problem(err)
	}
	return h.basemapOutput(created), nil
}

func (h *APIHandler) GetBaseMap(ctx context.Context, input *BaseMapInput) (*BaseMapOutput, error) {
	b, err := h.svc.BaseMap.Get(input.Project, input.ID)
	if err != nil {
		return nil, h.problem(err)
	}
	return h.basemapOutput(b), nil
}

func (h *APIHandler) PutBaseMap(ctx context.Context, input *struct {
	BaseMapInput
	Body service.BaseMap
}) (*BaseMapOutput, error) {
	updated, err := h.svc.BaseMap.Update(input.Project, input.ID, input.Body)
	if err != nil {
		return nil, h.problem(err)
	}
	return h.basemapOutput(updated), nil
}

func (h *APIHandler) DeleteBaseMap(ctx context.Context, input *BaseMapInput) (*struct{ Body MessageBody }, error) {
	if err := h.svc.BaseMap.Delete(input.Project, input.ID); err != nil {
		return nil, h.problem(err)
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Basemap deleted"}}, nil
}

// GetBaseMapLayers returns the descriptors a map receives for this basemap.
func (h *APIHandler) GetBaseMapLayers(ctx context.Context, input *BaseMapInput) (*struct{ Body []maputil.LayerDescriptor }, error) {
	layers, err := h.svc.BaseMap.Resolve(input.Project, input.ID, h.svc.Layer)
	if err != nil {
		return nil, h.problem(err)
	}
	return &struct{ Body []maputil.LayerDescriptor }{Body: layers}, nil
}

func (h *APIHandler) basemapOutput(b service.BaseMap) *BaseMapOutput {
	return &BaseMapOutput{Body: BaseMapBody{service.WithTitles(b, h.svc.Layer)}}
}
