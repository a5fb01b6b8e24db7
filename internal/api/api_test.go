package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/maptile"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-collab/internal/db"
	"github.com/joeblew999/plat-collab/internal/maputil"
	"github.com/joeblew999/plat-collab/internal/service"
)

const signalements = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "id": "f1",
      "geometry": {"type": "Point", "coordinates": [2.35, 48.85]},
      "properties": {
        "title": "Nid de poule rue de Rivoli",
        "feature_type": {"slug": "pothole", "color": "#ff5500", "title": "Nid de poule"},
        "status": {"value": "published", "label": "Publié"}
      }
    },
    {
      "type": "Feature",
      "id": "f2",
      "geometry": {"type": "Point", "coordinates": [2.40, 48.90]},
      "properties": {
        "title": "Banc cassé",
        "feature_type": {"slug": "bench", "title": "Banc"},
        "status": {"value": "draft", "label": "Brouillon"}
      }
    }
  ]
}`

const rivoli = `{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"Point","coordinates":[2.35,48.85]},"properties":{"name":"Rue de Rivoli"}}]}`

func newTestServices(t *testing.T) *Services {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	bus := service.NewEventBus()
	svc := &Services{
		Layer:   service.NewLayerService(dir, bus),
		BaseMap: service.NewBaseMapService(dir, bus),
		Feature: service.NewFeatureService(conn, bus),
		Source:  service.NewSourceService(dir),
		Session: service.NewSessionService(bus),
		Bus:     bus,
		DataDir: dir,
		Defaults: Defaults{
			Center:          [2]float64{48.85, 2.35},
			Zoom:            13,
			FallbackService: "https://tile.openstreetmap.org/{z}/{x}/{y}.png",
		},
	}
	t.Cleanup(svc.Session.Close)
	return svc
}

func newTestAPI(t *testing.T, svc *Services) humatest.TestAPI {
	t.Helper()
	_, api := humatest.New(t, huma.DefaultConfig("Test API", Version))
	huma.AutoRegister(api, NewAPIHandler(svc, zerolog.Nop()))
	return api
}

func decode[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &v), resp.Body.String())
	return v
}

func upstream(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t, newTestServices(t))
	resp := api.Get("/health")
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, HealthBody{Status: "ok", Version: Version}, decode[HealthBody](t, resp))
}

func TestInfo(t *testing.T) {
	svc := newTestServices(t)
	api := newTestAPI(t, svc)
	svc.Session.Create("demo")

	info := decode[InfoBody](t, api.Get("/api/v1/info"))
	require.Equal(t, Version, info.Version)
	require.Equal(t, 1, info.Sessions)
}

func TestLayerRoutes(t *testing.T) {
	api := newTestAPI(t, newTestServices(t))

	resp := api.Post("/api/v1/layers", map[string]any{
		"title":       "Cadastre",
		"service":     "https://data.geopf.fr/wms-r",
		"schema_type": "wms",
		"options":     map[string]any{"layers": "CADASTRALPARCELS.PARCELLAIRE_EXPRESS"},
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	created := decode[service.Layer](t, resp)
	require.Equal(t, 1, created.ID)

	resp = api.Post("/api/v1/layers", map[string]any{"id": 1, "title": "Doublon", "service": "x", "schema_type": "tms"})
	require.Equal(t, http.StatusConflict, resp.Code)

	resp = api.Post("/api/v1/layers", map[string]any{"title": "WMTS", "service": "x", "schema_type": "wmts"})
	require.Equal(t, http.StatusUnprocessableEntity, resp.Code)

	require.Len(t, decode[[]service.Layer](t, api.Get("/api/v1/layers")), 1)
	require.Equal(t, http.StatusNotFound, api.Get("/api/v1/layers/9").Code)

	resp = api.Put("/api/v1/layers/1", map[string]any{
		"title": "Cadastre IGN", "service": "https://data.geopf.fr/wms-r", "schema_type": "wms",
	})
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "Cadastre IGN", decode[service.Layer](t, resp).Title)

	require.Equal(t, http.StatusOK, api.Delete("/api/v1/layers/1").Code)
	require.Equal(t, http.StatusNotFound, api.Delete("/api/v1/layers/1").Code)
}

func TestBaseMapRoutes(t *testing.T) {
	svc := newTestServices(t)
	api := newTestAPI(t, svc)
	_, err := svc.Layer.Create(service.Layer{
		Title: "Cadastre", Service: "https://data.geopf.fr/wms-r", SchemaType: maputil.SchemaWMS,
		Options: map[string]any{"layers": "CADASTRALPARCELS.PARCELLAIRE_EXPRESS"},
	})
	require.NoError(t, err)

	resp := api.Post("/api/v1/projects/demo/basemaps", map[string]any{
		"title":  "Plan",
		"layers": []map[string]any{{"id": 1, "opacity": 0.7, "queryable": true}},
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	b := decode[service.BaseMap](t, resp)
	require.Equal(t, "demo", b.Project)
	require.Equal(t, "Cadastre", b.Layers[0].Title)

	require.Len(t, decode[[]service.BaseMap](t, api.Get("/api/v1/projects/demo/basemaps")), 1)
	require.Empty(t, decode[[]service.BaseMap](t, api.Get("/api/v1/projects/other/basemaps")))
	require.Equal(t, http.StatusNotFound, api.Get("/api/v1/projects/other/basemaps/1").Code)

	layers := decode[[]maputil.LayerDescriptor](t, api.Get("/api/v1/projects/demo/basemaps/1/layers"))
	require.Len(t, layers, 1)
	require.Equal(t, "Cadastre", layers[0].Title)
	require.True(t, layers[0].Queryable)
	require.InDelta(t, 0.7, *layers[0].Opacity, 1e-9)

	resp = api.Put("/api/v1/projects/demo/basemaps/1", map[string]any{"title": "Plan IGN", "layers": []any{}})
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "Plan IGN", decode[service.BaseMap](t, resp).Title)

	require.Equal(t, http.StatusOK, api.Delete("/api/v1/projects/demo/basemaps/1").Code)
	require.Equal(t, http.StatusNotFound, api.Get("/api/v1/projects/demo/basemaps/1/layers").Code)
}

func TestFeatureRoutes(t *testing.T) {
	svc := newTestServices(t)
	api := newTestAPI(t, svc)

	resp := api.Post("/api/v1/projects/demo/features", strings.NewReader(signalements))
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	require.Equal(t, 2, decode[ImportBody](t, resp).Imported)

	page := decode[struct {
		Total int               `json:"total"`
		Data  []maputil.Feature `json:"data"`
	}](t, api.Get("/api/v1/projects/demo/features?limit=1"))
	require.Equal(t, 2, page.Total)
	require.Len(t, page.Data, 1)

	page = decode[struct {
		Total int               `json:"total"`
		Data  []maputil.Feature `json:"data"`
	}](t, api.Get("/api/v1/projects/demo/features?feature_type=bench"))
	require.Equal(t, 1, page.Total)
	require.Equal(t, "Banc cassé", page.Data[0].Properties.Title)

	f := decode[maputil.Feature](t, api.Get("/api/v1/projects/demo/features/f1"))
	require.Equal(t, "Nid de poule rue de Rivoli", f.Properties.Title)

	types := decode[[]maputil.FeatureType](t, api.Get("/api/v1/projects/demo/feature-types"))
	require.Len(t, types, 2)

	require.Equal(t, http.StatusOK, api.Delete("/api/v1/projects/demo/features/f1").Code)
	require.Equal(t, http.StatusNotFound, api.Get("/api/v1/projects/demo/features/f1").Code)

	resp = api.Post("/api/v1/projects/demo/features", strings.NewReader(`{"type":"Feature"}`))
	require.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	require.Contains(t, resp.Body.String(), maputil.MessageNotGeoJSON)
}

func TestFeatureRoutes_sources(t *testing.T) {
	svc := newTestServices(t)
	api := newTestAPI(t, svc)
	require.NoError(t, os.MkdirAll(svc.Source.SourcesDir(), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(svc.Source.SourcesDir(), "signalements.geojson"), []byte(signalements), 0o644))

	sources := decode[[]service.SourceFile](t, api.Get("/api/v1/sources"))
	require.Len(t, sources, 1)
	require.Equal(t, "signalements.geojson", sources[0].Name)

	resp := api.Post("/api/v1/projects/demo/features?source=signalements.geojson")
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	require.Equal(t, 2, decode[ImportBody](t, resp).Imported)

	require.Equal(t, http.StatusNotFound, api.Post("/api/v1/projects/demo/features?source=absent.geojson").Code)
	require.Equal(t, http.StatusUnprocessableEntity, api.Post("/api/v1/projects/demo/features?source=../secret.geojson").Code)
}

func TestFeatureRoutes_noDatabase(t *testing.T) {
	svc := newTestServices(t)
	svc.Feature = nil
	api := newTestAPI(t, svc)

	require.Equal(t, http.StatusServiceUnavailable, api.Get("/api/v1/projects/demo/features").Code)

	resp := api.Post("/api/v1/maps", map[string]any{"project": "demo"})
	id := decode[MapBody](t, resp).ID
	require.Equal(t, http.StatusServiceUnavailable, api.Post("/api/v1/maps/"+id+"/features", map[string]any{}).Code)
}

func TestMapSession(t *testing.T) {
	svc := newTestServices(t)
	api := newTestAPI(t, svc)
	wms := upstream(t, rivoli)

	fc := strings.NewReader(signalements)
	require.Equal(t, http.StatusCreated, api.Post("/api/v1/projects/demo/features", fc).Code)

	_, err := svc.Layer.Create(service.Layer{
		Title: "Voirie", Service: wms.URL, SchemaType: maputil.SchemaWMS,
		Options: map[string]any{"layers": "voirie", "version": "1.3.0"},
	})
	require.NoError(t, err)
	_, err = svc.BaseMap.Create("demo", service.BaseMap{
		Title:  "Plan",
		Layers: []service.ContextLayer{{LayerID: 1, Opacity: 1, Queryable: true}},
	})
	require.NoError(t, err)

	resp := api.Post("/api/v1/maps", map[string]any{"project": "demo", "width": 800, "height": 600})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	m := decode[MapBody](t, resp)
	require.NotEmpty(t, m.ID)
	require.Equal(t, [2]float64{48.85, 2.35}, m.State.Center)
	require.Equal(t, [2]int{800, 600}, m.State.Size)
	base := "/api/v1/maps/" + m.ID

	m = decode[MapBody](t, api.Post(base+"/layers", map[string]any{"basemap": 1}))
	require.Equal(t, []int{1}, m.Registered)

	m = decode[MapBody](t, api.Put(base+"/layers/1/opacity", map[string]any{"opacity": 0.4}))
	require.InDelta(t, 0.4, *m.State.Layers[0].Opacity, 1e-9)

	fb := decode[FeaturesBody](t, api.Post(base+"/features", map[string]any{}))
	require.Equal(t, 2, fb.Rendered)
	fb = decode[FeaturesBody](t, api.Post(base+"/features", map[string]any{"filter": map[string]any{"featureType": "pothole"}}))
	require.Equal(t, 1, fb.Rendered)

	// Clicking the marker opens its popup.
	m = decode[MapBody](t, api.Post(base+"/click", map[string]any{"lat": 48.85, "lng": 2.35}))
	require.NotNil(t, m.State.Popup)
	require.Contains(t, m.State.Popup.Content, "Nid de poule rue de Rivoli")

	// With a query layer, clicks elsewhere show its feature info.
	m = decode[MapBody](t, api.Put(base+"/query-layer", map[string]any{"title": "Voirie"}))
	require.Equal(t, "Voirie", m.QueryLayer)
	m = decode[MapBody](t, api.Post(base+"/click?wait=true", map[string]any{"lat": 48.86, "lng": 2.33}))
	require.NotNil(t, m.State.Popup)
	require.Contains(t, m.State.Popup.Content, "Rue de Rivoli")

	resp = api.Get(base + "/script")
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Header().Get("Content-Type"), "javascript")
	require.Contains(t, resp.Body.String(), "L.tileLayer.wms(")

	m = decode[MapBody](t, api.Put(base+"/layers/order", map[string]any{"layers": []map[string]any{
		{"id": 2, "schema_type": "tms", "service": "https://tile.example/{z}/{x}/{y}.png", "options": map[string]any{}},
		{"id": 1, "schema_type": "wms", "service": wms.URL, "options": map[string]any{"layers": "voirie"}},
	}}))
	require.Equal(t, []int{1, 2}, m.Registered)

	m = decode[MapBody](t, api.Post(base+"/view", map[string]any{"lat": 48.8, "lng": 2.3, "zoom": 11}))
	require.Equal(t, 11.0, m.State.Zoom)

	m = decode[MapBody](t, api.Delete(base+"/features"))
	for _, l := range m.State.Layers {
		require.Empty(t, l.Shapes)
	}
	m = decode[MapBody](t, api.Delete(base+"/layers"))
	require.Empty(t, m.Registered)

	require.Equal(t, http.StatusOK, api.Delete(base).Code)
	require.Equal(t, http.StatusNotFound, api.Get(base).Code)
	require.Equal(t, http.StatusNotFound, api.Post(base+"/layers", map[string]any{}).Code)
}

func TestMapSession_fallbackLayer(t *testing.T) {
	svc := newTestServices(t)
	api := newTestAPI(t, svc)

	m := decode[MapBody](t, api.Post("/api/v1/maps", map[string]any{"project": "demo", "zoom": 5}))
	require.Equal(t, 5.0, m.State.Zoom)

	m = decode[MapBody](t, api.Post("/api/v1/maps/"+m.ID+"/layers", map[string]any{}))
	require.Empty(t, m.Registered)
	require.Len(t, m.State.Layers, 1)
	require.Equal(t, svc.Defaults.FallbackService, m.State.Layers[0].URL)
}

func TestRenderFeatures_explicit(t *testing.T) {
	svc := newTestServices(t)
	sess := svc.Session.Create("demo")
	sess.Renderer.CreateMap(svc.Defaults.MapOptions())

	n, err := RenderFeatures(context.Background(), nil, sess, []maputil.Feature{}, nil)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Len(t, sess.Renderer.Overlays(), 1)

	_, err = RenderFeatures(context.Background(), nil, sess, nil, nil)
	require.Error(t, err)
}

func TestProxy(t *testing.T) {
	api := newTestAPI(t, newTestServices(t))

	ok := upstream(t, rivoli)
	resp := api.Get("/api/v1/proxy?url=" + ok.URL + "&request=GetFeatureInfo&version=1.3.0&i=10&j=20")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	require.Equal(t, "application/geo+json", resp.Header().Get("Content-Type"))
	require.Contains(t, resp.Body.String(), "Rue de Rivoli")

	html := upstream(t, "<html>erreur</html>")
	resp = api.Get("/api/v1/proxy?url=" + html.URL)
	require.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	require.Contains(t, resp.Body.String(), maputil.MessageNotGeoJSON)

	down := httptest.NewServer(http.NotFoundHandler())
	down.Close()
	resp = api.Get("/api/v1/proxy?url=" + down.URL)
	require.Equal(t, http.StatusBadGateway, resp.Code)
	require.Contains(t, resp.Body.String(), maputil.MessageUnavailable)

	require.Equal(t, http.StatusUnprocessableEntity, api.Get("/api/v1/proxy").Code)
}

func TestTileRoutes(t *testing.T) {
	svc := newTestServices(t)
	api := newTestAPI(t, svc)
	require.Equal(t, http.StatusCreated, api.Post("/api/v1/projects/demo/features", strings.NewReader(signalements)).Code)

	tile := maptile.At(orb.Point{2.35, 48.85}, 12)
	resp := api.Get(fmt.Sprintf("/api/v1/projects/demo/tiles/%d/%d/%d", tile.Z, tile.X, tile.Y))
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	require.Equal(t, "gzip", resp.Header().Get("Content-Encoding"))
	layers, err := mvt.UnmarshalGzipped(resp.Body.Bytes())
	require.NoError(t, err)
	require.Len(t, layers[0].Features, 1)
	require.Equal(t, "f1", layers[0].Features[0].Properties["id"])

	resp = api.Get(fmt.Sprintf("/api/v1/projects/demo/tiles/%d/%d/%d?feature_type=bench", tile.Z, tile.X, tile.Y))
	require.Equal(t, http.StatusNoContent, resp.Code)

	require.Equal(t, http.StatusNotFound, api.Get("/api/v1/projects/demo/tiles/2/9/0").Code)
	require.Equal(t, http.StatusUnprocessableEntity, api.Get("/api/v1/projects/demo/tiles/23/0/0").Code)
}
