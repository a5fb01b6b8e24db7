package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-collab/internal/maputil"
	"github.com/joeblew999/plat-collab/internal/tiler"
)

type TileInput struct {
	ProjectInput
	maputil.Filter
	Z int `path:"z" minimum:"0" maximum:"22" doc:"Zoom"`
	X int `path:"x" minimum:"0" doc:"Column"`
	Y int `path:"y" minimum:"0" doc:"Row"`
}

type TileOutput struct {
	Status          int
	ContentType     string `header:"Content-Type"`
	ContentEncoding string `header:"Content-Encoding"`
	CacheControl    string `header:"Cache-Control"`
	Body            []byte
}

// RegisterTiles registers the feature vector tiles.
func (h *APIHandler) RegisterTiles(api huma.API) {
	huma.Get(api, "/api/v1/projects/{project}/tiles/{z}/{x}/{y}", h.GetTile,
		huma.OperationTags("features"),
		func(o *huma.Operation) {
			o.Summary = "Get a feature vector tile"
			o.Description = "Gzipped Mapbox vector tile of the project's features, filtered like the feature list. Empty tiles answer 204."
		},
	)
}

func (h *APIHandler) GetTile(ctx context.Context, input *TileInput) (*TileOutput, error) {
	fs, err := h.features()
	if err != nil {
		return nil, err
	}
	tile, err := tiler.Tile(input.Z, input.X, input.Y)
	if err != nil {
		if errors.Is(err, tiler.ErrOutOfRange) {
			return nil, huma.Error404NotFound(err.Error())
		}
		return nil, h.problem(err)
	}
	features, err := fs.All(ctx, input.Project, &input.Filter)
	if err != nil {
		return nil, h.problem(err)
	}
	data, err := tiler.Encode(features, tile, "")
	if err != nil {
		return nil, h.problem(err)
	}
	if data == nil {
		return &TileOutput{Status: http.StatusNoContent}, nil
	}
	return &TileOutput{
		Status:          http.StatusOK,
		ContentType:     "application/vnd.mapbox-vector-tile",
		ContentEncoding: "gzip",
		CacheControl:    "no-cache",
		Body:            data,
	}, nil
}
