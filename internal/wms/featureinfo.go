// Package wms issues OGC WMS GetFeatureInfo requests.
package wms

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

var (
	// ErrUnavailable means the upstream service could not be reached or read.
	ErrUnavailable = errors.New("data unavailable")
	// ErrNotGeoJSON means the upstream answered but not with a FeatureCollection.
	ErrNotGeoJSON = errors.New("data is not in GeoJSON format")
)

const (
	DefaultTimeout    = 60 * time.Second
	DefaultInfoFormat = "application/json"
	DefaultSRS        = "EPSG:4326"
	Version130        = "1.3.0"
)

// ProxyParams are the query keys forwarded by the proxy endpoint.
var ProxyParams = []string{
	"request", "service", "srs", "version", "bbox", "height", "width",
	"layers", "query_layers", "info_format",
}

// ProxyCoords are forwarded only when present.
var ProxyCoords = []string{"x", "y", "i", "j"}

// FeatureInfoRequest describes a GetFeatureInfo query at one pixel of a map view.
type FeatureInfoRequest struct {
	Service    string    // service endpoint, may carry its own query
	Version    string    // WMS version; "1.3.0" switches x/y to i/j
	Layers     string    // queried layer names
	Format     string    // image format of the map request
	InfoFormat string    // defaults to application/json
	SRS        string    // defaults to EPSG:4326
	BBox       orb.Bound // view bounds in SRS units
	Width      int       // view size in pixels
	Height     int
	X, Y       int // queried pixel within the view
}

// Params returns the request's query parameters.
func (r FeatureInfoRequest) Params() url.Values {
	infoFormat := r.InfoFormat
	if infoFormat == "" {
		infoFormat = DefaultInfoFormat
	}
	srs := r.SRS
	if srs == "" {
		srs = DefaultSRS
	}
	v := url.Values{}
	v.Set("request", "GetFeatureInfo")
	v.Set("service", "WMS")
	v.Set("srs", srs)
	v.Set("version", r.Version)
	v.Set("format", r.Format)
	v.Set("bbox", BBoxString(r.BBox))
	v.Set("height", strconv.Itoa(r.Height))
	v.Set("width", strconv.Itoa(r.Width))
	v.Set("layers", r.Layers)
	v.Set("query_layers", r.Layers)
	v.Set("info_format", infoFormat)

	xKey, yKey := "x", "y"
	if r.Version == Version130 {
		xKey, yKey = "i", "j"
	}
	v.Set(xKey, strconv.Itoa(r.X))
	v.Set(yKey, strconv.Itoa(r.Y))
	return v
}

// URL merges the parameters into the service URL.
func (r FeatureInfoRequest) URL() (string, error) {
	return withParams(r.Service, r.Params())
}

// BBoxString formats a bound as "minx,miny,maxx,maxy".
func BBoxString(b orb.Bound) string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return f(b.Min[0]) + "," + f(b.Min[1]) + "," + f(b.Max[0]) + "," + f(b.Max[1])
}

func withParams(service string, params url.Values) (string, error) {
	u, err := url.Parse(service)
	if err != nil {
		return "", fmt.Errorf("%w: parsing service url %q: %v", ErrUnavailable, service, err)
	}
	q := u.Query()
	for k, vs := range params {
		q[k] = vs
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Client fetches feature info over HTTP.
type Client struct {
	HTTP *http.Client
}

// NewClient creates a client with the given timeout (DefaultTimeout when zero).
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{HTTP: &http.Client{Timeout: timeout}}
}

// GetFeatureInfo runs the query and decodes the FeatureCollection.
func (c *Client) GetFeatureInfo(ctx context.Context, req FeatureInfoRequest) (*geojson.FeatureCollection, error) {
	u, err := req.URL()
	if err != nil {
		return nil, err
	}
	return c.fetch(ctx, u)
}

// Proxy forwards the whitelisted keys of params to serviceURL.
func (c *Client) Proxy(ctx context.Context, serviceURL string, params url.Values) (*geojson.FeatureCollection, error) {
	payload := url.Values{}
	for _, k := range ProxyParams {
		payload.Set(k, params.Get(k))
	}
	for _, k := range ProxyCoords {
		if v := params.Get(k); v != "" {
			payload.Set(k, v)
		}
	}
	u, err := withParams(serviceURL, payload)
	if err != nil {
		return nil, err
	}
	return c.fetch(ctx, u)
}

func (c *Client) fetch(ctx context.Context, u string) (*geojson.FeatureCollection, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	resp, err := c.httpClient().Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: upstream status %d", ErrNotGeoJSON, resp.StatusCode)
	}

	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil || fc.Type != "FeatureCollection" {
		return nil, ErrNotGeoJSON
	}
	return fc, nil
}

func (c *Client) httpClient() *http.Client {
	if c == nil || c.HTTP == nil {
		return http.DefaultClient
	}
	return c.HTTP
}
