package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-collab/internal/humastar"
	"github.com/joeblew999/plat-collab/internal/service"
)

type LayerIDInput struct {
	ID int `path:"id" minimum:"1" doc:"Layer ID" example:"3"`
}

// LayerBody is a catalogue layer with its actions.
type LayerBody struct {
	service.Layer
}

var layerActions = []humastar.ActionDef{
	{Rel: "edit", Pattern: "/api/v1/layers/%d", Method: "PUT", Title: "Modifier la couche"},
	{Rel: "delete", Pattern: "/api/v1/layers/%d", Method: "DELETE", Title: "Supprimer la couche"},
}

func (b LayerBody) Actions() []humastar.Action {
	return humastar.ActionsFor(layerActions, b.ID)
}

type LayerOutput struct {
	Body LayerBody
}

// RegisterLayers registers the layer catalogue routes.
func (h *APIHandler) RegisterLayers(api huma.API) {
	huma.Get(api, "/api/v1/layers", h.ListLayers, huma.OperationTags("layers"))
	huma.Register(api, huma.Operation{
		OperationID:   "create-layer",
		Method:        "POST",
		Path:          "/api/v1/layers",
		Summary:       "Create a layer",
		Tags:          []string{"layers"},
		DefaultStatus: 201,
	}, h.CreateLayer)
	huma.Get(api, "/api/v1/layers/{id}", h.GetLayer, huma.OperationTags("layers"))
	huma.Put(api, "/api/v1/layers/{id}", h.PutLayer, huma.OperationTags("layers"))
	huma.Delete(api, "/api/v1/layers/{id}", h.DeleteLayer, huma.OperationTags("layers"))
}

func (h *APIHandler) ListLayers(ctx context.Context, input *struct{}) (*struct{ Body []service.Layer }, error) {
	return &struct{ Body []service.Layer }{Body: h.svc.Layer.List()}, nil
}

func (h *APIHandler) CreateLayer(ctx context.Context, input *struct{ Body service.Layer }) (*LayerOutput, error) {
	created, err := h.svc.Layer.Create(input.Body)
	if err != nil {
		return nil, h.problem(err)
	}
	return &LayerOutput{Body: LayerBody{created}}, nil
}

func (h *APIHandler) GetLayer(ctx context.Context, input *LayerIDInput) (*LayerOutput, error) {
	layer, ok := h.svc.Layer.Get(input.ID)
	if !ok {
		return nil, huma.Error404NotFound("layer not found")
	}
	return &LayerOutput{Body: LayerBody{layer}}, nil
}

func (h *APIHandler) PutLayer(ctx context.Context, input *struct {
	LayerIDInput
	Body service.Layer
}) (*LayerOutput, error) {
	updated, err := h.svc.Layer.Update(input.ID, input.Body)
	if err != nil {
		return nil, h.problem(err)
	}
	return &LayerOutput{Body: LayerBody{updated}}, nil
}

func (h *APIHandler) DeleteLayer(ctx context.Context, input *LayerIDInput) (*struct{ Body MessageBody }, error) {
	if err := h.svc.Layer.Delete(input.ID); err != nil {
		return nil, h.problem(err)
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Layer deleted"}}, nil
}
