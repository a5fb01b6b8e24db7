package api

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/danielgtaylor/huma/v2"
)

// ProxyInput carries the GetFeatureInfo parameters forwarded upstream.
// Anything else on the query string is dropped.
type ProxyInput struct {
	URL         string `query:"url" required:"true" doc:"WMS service URL" example:"https://data.geopf.fr/wms-r"`
	Request     string `query:"request" doc:"WMS request" example:"GetFeatureInfo"`
	Service     string `query:"service" doc:"OGC service" example:"WMS"`
	SRS         string `query:"srs" doc:"Spatial reference" example:"EPSG:4326"`
	Version     string `query:"version" doc:"WMS version" example:"1.3.0"`
	BBox        string `query:"bbox" doc:"Bounding box"`
	Height      string `query:"height" doc:"View height in pixels"`
	Width       string `query:"width" doc:"View width in pixels"`
	Layers      string `query:"layers" doc:"Layers"`
	QueryLayers string `query:"query_layers" doc:"Queried layers"`
	InfoFormat  string `query:"info_format" doc:"Response format" example:"application/json"`
	X           string `query:"x" doc:"Pixel column (WMS < 1.3.0)"`
	Y           string `query:"y" doc:"Pixel row (WMS < 1.3.0)"`
	I           string `query:"i" doc:"Pixel column (WMS 1.3.0)"`
	J           string `query:"j" doc:"Pixel row (WMS 1.3.0)"`
}

func (in *ProxyInput) params() url.Values {
	q := url.Values{}
	for k, v := range map[string]string{
		"request": in.Request, "service": in.Service, "srs": in.SRS, "version": in.Version,
		"bbox": in.BBox, "height": in.Height, "width": in.Width, "layers": in.Layers,
		"query_layers": in.QueryLayers, "info_format": in.InfoFormat,
		"x": in.X, "y": in.Y, "i": in.I, "j": in.J,
	} {
		if v != "" {
			q.Set(k, v)
		}
	}
	return q
}

type ProxyOutput struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

// RegisterProxy registers the GetFeatureInfo proxy.
func (h *APIHandler) RegisterProxy(api huma.API) {
	huma.Get(api, "/api/v1/proxy", h.Proxy,
		huma.OperationTags("proxy"),
		func(o *huma.Operation) {
			o.Summary = "Proxy a WMS GetFeatureInfo request"
			o.Description = "Forwards the whitelisted parameters and returns the upstream FeatureCollection. " +
				"Unreachable services give 502, non-GeoJSON answers 422."
		},
	)
}

func (h *APIHandler) Proxy(ctx context.Context, input *ProxyInput) (*ProxyOutput, error) {
	fc, err := h.svc.WMS.Proxy(ctx, input.URL, input.params())
	if err != nil {
		h.log.Warn().Err(err).Str("url", input.URL).Msg("feature info proxy failed")
		return nil, h.problem(err)
	}
	body, err := json.Marshal(fc)
	if err != nil {
		return nil, h.problem(err)
	}
	return &ProxyOutput{ContentType: "application/geo+json", Body: body}, nil
}
