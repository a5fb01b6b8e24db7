package wms

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func sampleRequest(version string) FeatureInfoRequest {
	return FeatureInfoRequest{
		Service: "https://example.org/geoserver/wms?map=roads",
		Version: version,
		Layers:  "roads",
		Format:  "image/png",
		BBox:    orb.Bound{Min: orb.Point{2.3, 48.8}, Max: orb.Point{2.4, 48.9}},
		Width:   800,
		Height:  600,
		X:       12,
		Y:       34,
	}
}

func TestParams_version130UsesIJ(t *testing.T) {
	p := sampleRequest("1.3.0").Params()
	require.Equal(t, "12", p.Get("i"))
	require.Equal(t, "34", p.Get("j"))
	require.False(t, p.Has("x"))
	require.False(t, p.Has("y"))
}

func TestParams_otherVersionsUseXY(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		version := rapid.StringMatching(`[0-9]\.[0-9]\.[0-9]`).Filter(func(v string) bool {
			return v != Version130
		}).Draw(rt, "version")
		p := sampleRequest(version).Params()
		require.Equal(rt, "12", p.Get("x"))
		require.Equal(rt, "34", p.Get("y"))
		require.False(rt, p.Has("i"))
		require.False(rt, p.Has("j"))
	})
}

func TestParams_fields(t *testing.T) {
	p := sampleRequest("1.1.1").Params()
	require.Equal(t, "GetFeatureInfo", p.Get("request"))
	require.Equal(t, "WMS", p.Get("service"))
	require.Equal(t, DefaultSRS, p.Get("srs"))
	require.Equal(t, "2.3,48.8,2.4,48.9", p.Get("bbox"))
	require.Equal(t, "600", p.Get("height"))
	require.Equal(t, "800", p.Get("width"))
	require.Equal(t, "roads", p.Get("layers"))
	require.Equal(t, "roads", p.Get("query_layers"))
	require.Equal(t, DefaultInfoFormat, p.Get("info_format"))
}

func TestURL_keepsServiceQuery(t *testing.T) {
	u, err := sampleRequest("1.1.1").URL()
	require.NoError(t, err)
	parsed, err := url.Parse(u)
	require.NoError(t, err)
	require.Equal(t, "roads", parsed.Query().Get("map"))
	require.Equal(t, "GetFeatureInfo", parsed.Query().Get("request"))
}

func TestGetFeatureInfo(t *testing.T) {
	var got url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"Point","coordinates":[2.35,48.85]},"properties":{"name":"Rue de Rivoli"}}]}`))
	}))
	defer srv.Close()

	req := sampleRequest("1.3.0")
	req.Service = srv.URL
	fc, err := NewClient(0).GetFeatureInfo(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, fc.Features, 1)
	require.Equal(t, "Rue de Rivoli", fc.Features[0].Properties["name"])
	require.Equal(t, "12", got.Get("i"))
}

func TestGetFeatureInfo_errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"not a collection", http.StatusOK, `{"type":"Feature"}`, ErrNotGeoJSON},
		{"not json", http.StatusOK, `<ServiceExceptionReport/>`, ErrNotGeoJSON},
		{"upstream error", http.StatusInternalServerError, `{}`, ErrNotGeoJSON},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			req := sampleRequest("1.1.1")
			req.Service = srv.URL
			_, err := NewClient(0).GetFeatureInfo(context.Background(), req)
			require.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestGetFeatureInfo_unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	req := sampleRequest("1.1.1")
	req.Service = addr
	_, err := NewClient(0).GetFeatureInfo(context.Background(), req)
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestProxy_forwardsWhitelist(t *testing.T) {
	var got url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
		w.Write([]byte(`{"type":"FeatureCollection","features":[]}`))
	}))
	defer srv.Close()

	in := url.Values{}
	in.Set("request", "GetFeatureInfo")
	in.Set("layers", "roads")
	in.Set("i", "5")
	in.Set("secret", "nope")

	fc, err := NewClient(0).Proxy(context.Background(), srv.URL, in)
	require.NoError(t, err)
	require.Empty(t, fc.Features)
	require.Equal(t, "roads", got.Get("layers"))
	require.Equal(t, "5", got.Get("i"))
	require.True(t, got.Has("bbox"), "whitelisted keys are always forwarded")
	require.False(t, got.Has("x"), "coordinates are forwarded only when present")
	require.False(t, got.Has("secret"))
}
