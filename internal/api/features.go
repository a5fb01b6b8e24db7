package api

import (
	"context"
	"net/url"
	"strconv"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-collab/internal/humastar"
	"github.com/joeblew999/plat-collab/internal/maputil"
	"github.com/joeblew999/plat-collab/internal/service"
)

type FeatureListInput struct {
	ProjectInput
	maputil.Filter
	Offset int `query:"offset" minimum:"0" default:"0" doc:"Items to skip"`
	Limit  int `query:"limit" minimum:"1" maximum:"500" default:"50" doc:"Page size"`
}

type FeatureListOutput struct {
	Body humastar.PageBody[maputil.Feature]
}

type FeatureInput struct {
	ProjectInput
	ID string `path:"id" doc:"Feature ID"`
}

type ImportInput struct {
	ProjectInput
	Source  string `query:"source" doc:"Import a file from the sources directory instead of the body" example:"signalements.geojson"`
	RawBody []byte `required:"false"`
}

type ImportBody struct {
	Imported int    `json:"imported" doc:"Number of features stored"`
	Message  string `json:"message" doc:"Result message"`
}

// RegisterFeatures registers the feature store routes.
func (h *APIHandler) RegisterFeatures(api huma.API) {
	huma.Get(api, "/api/v1/projects/{project}/features", h.ListFeatures, huma.OperationTags("features"))
	huma.Register(api, huma.Operation{
		OperationID:   "import-features",
		Method:        "POST",
		Path:          "/api/v1/projects/{project}/features",
		Summary:       "Import a GeoJSON FeatureCollection",
		Description:   "Coordinates are read as standard GeoJSON [lng, lat] and stored in the project feed's [lat, lng] order.",
		Tags:          []string{"features"},
		DefaultStatus: 201,
	}, h.ImportFeatures)
	huma.Get(api, "/api/v1/projects/{project}/features/{id}", h.GetFeature, huma.OperationTags("features"))
	huma.Delete(api, "/api/v1/projects/{project}/features/{id}", h.DeleteFeature, huma.OperationTags("features"))
	huma.Get(api, "/api/v1/projects/{project}/feature-types", h.ListFeatureTypes, huma.OperationTags("features"))
	huma.Get(api, "/api/v1/sources", h.ListSources, huma.OperationTags("features"))
}

func (h *APIHandler) features() (*service.FeatureService, error) {
	if h.svc.Feature == nil {
		return nil, huma.Error503ServiceUnavailable("Database not available")
	}
	return h.svc.Feature, nil
}

func (h *APIHandler) ListFeatures(ctx context.Context, input *FeatureListInput) (*FeatureListOutput, error) {
	fs, err := h.features()
	if err != nil {
		return nil, err
	}
	items, total, err := fs.List(ctx, input.Project, &input.Filter, input.Offset, input.Limit)
	if err != nil {
		return nil, h.problem(err)
	}
	return &FeatureListOutput{Body: humastar.PageBody[maputil.Feature]{
		Total:  total,
		Offset: input.Offset,
		Limit:  input.Limit,
		Data:   items,
		Query:  filterQuery(input.Filter),
	}}, nil
}

func filterQuery(f maputil.Filter) url.Values {
	q := url.Values{}
	if f.FeatureType != "" {
		q.Set("feature_type", f.FeatureType)
	}
	if f.FeatureStatus != "" {
		q.Set("status", f.FeatureStatus)
	}
	if f.FeatureTitle != "" {
		q.Set("title", f.FeatureTitle)
	}
	return q
}

func (h *APIHandler) ImportFeatures(ctx context.Context, input *ImportInput) (*struct{ Body ImportBody }, error) {
	fs, err := h.features()
	if err != nil {
		return nil, err
	}

	var fc *geojson.FeatureCollection
	if input.Source != "" {
		fc, err = h.svc.Source.Read(input.Source)
		if err != nil {
			return nil, h.problem(err)
		}
	} else {
		fc, err = geojson.UnmarshalFeatureCollection(input.RawBody)
		if err != nil || fc.Type != "FeatureCollection" {
			return nil, huma.Error422UnprocessableEntity(maputil.MessageNotGeoJSON)
		}
	}

	n, err := fs.Import(ctx, input.Project, fc)
	if err != nil {
		return nil, h.problem(err)
	}
	return &struct{ Body ImportBody }{Body: ImportBody{
		Imported: n,
		Message:  strconv.Itoa(n) + " features imported",
	}}, nil
}

func (h *APIHandler) GetFeature(ctx context.Context, input *FeatureInput) (*struct{ Body maputil.Feature }, error) {
	fs, err := h.features()
	if err != nil {
		return nil, err
	}
	f, err := fs.Get(ctx, input.Project, input.ID)
	if err != nil {
		return nil, h.problem(err)
	}
	return &struct{ Body maputil.Feature }{Body: f}, nil
}

func (h *APIHandler) DeleteFeature(ctx context.Context, input *FeatureInput) (*struct{ Body MessageBody }, error) {
	fs, err := h.features()
	if err != nil {
		return nil, err
	}
	if err := fs.Delete(ctx, input.Project, input.ID); err != nil {
		return nil, h.problem(err)
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Feature deleted"}}, nil
}

func (h *APIHandler) ListFeatureTypes(ctx context.Context, input *ProjectInput) (*struct{ Body []maputil.FeatureType }, error) {
	fs, err := h.features()
	if err != nil {
		return nil, err
	}
	types, err := fs.Types(ctx, input.Project)
	if err != nil {
		return nil, h.problem(err)
	}
	return &struct{ Body []maputil.FeatureType }{Body: types}, nil
}

func (h *APIHandler) ListSources(ctx context.Context, input *struct{}) (*struct{ Body []service.SourceFile }, error) {
	sources, err := h.svc.Source.List()
	if err != nil {
		return nil, h.problem(err)
	}
	return &struct{ Body []service.SourceFile }{Body: sources}, nil
}
