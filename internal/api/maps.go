package api

import (
	"context"
	"fmt"
	"slices"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-collab/internal/humastar"
	"github.com/joeblew999/plat-collab/internal/leaflet"
	"github.com/joeblew999/plat-collab/internal/maputil"
	"github.com/joeblew999/plat-collab/internal/service"
)

// MapElementID is the DOM id the bootstrap script draws into.
const MapElementID = "map"

type MapInput struct {
	ID string `path:"id" doc:"Map session ID" example:"3f2a9c1e-5d1b-4b8e-9a57-1f0c2b7d9e10"`
}

type CreateMapRequest struct {
	Project     string   `json:"project" minLength:"1" maxLength:"128" doc:"Project slug" example:"demo"`
	Lat         *float64 `json:"lat,omitempty" minimum:"-90" maximum:"90" doc:"Initial latitude (project default when omitted)"`
	Lng         *float64 `json:"lng,omitempty" minimum:"-180" maximum:"180" doc:"Initial longitude (project default when omitted)"`
	Zoom        *float64 `json:"zoom,omitempty" minimum:"0" maximum:"24" doc:"Initial zoom (project default when omitted)"`
	ZoomControl *bool    `json:"zoomControl,omitempty" doc:"Attach the zoom widget (default true)"`
	Width       int      `json:"width,omitempty" minimum:"0" doc:"Viewport width in pixels"`
	Height      int      `json:"height,omitempty" minimum:"0" doc:"Viewport height in pixels"`
}

// MapBody is a map session and its current state.
type MapBody struct {
	ID         string        `json:"id" doc:"Map session ID"`
	Project    string        `json:"project" doc:"Project slug"`
	QueryLayer string        `json:"queryLayer,omitempty" doc:"Title of the layer clicks query"`
	Registered []int         `json:"registered" doc:"Registered base layer IDs"`
	State      leaflet.State `json:"state" doc:"Map state"`
}

var mapActions = []humastar.ActionDef{
	{Rel: "script", Pattern: "/api/v1/maps/%s/script", Method: "GET", Title: "Script Leaflet"},
	{Rel: "add-layers", Pattern: "/api/v1/maps/%s/layers", Method: "POST", Title: "Ajouter les couches"},
	{Rel: "add-features", Pattern: "/api/v1/maps/%s/features", Method: "POST", Title: "Afficher les signalements"},
	{Rel: "click", Pattern: "/api/v1/maps/%s/click", Method: "POST", Title: "Cliquer"},
	{Rel: "events", Pattern: "/api/v1/viewer/maps/%s/events", Method: "GET", Title: "Flux SSE"},
	{Rel: "delete", Pattern: "/api/v1/maps/%s", Method: "DELETE", Title: "Fermer la carte"},
}

var mapLayerActions = []humastar.ActionDef{
	{Rel: "remove-layers", Pattern: "/api/v1/maps/%s/layers", Method: "DELETE", Title: "Retirer les couches"},
	{Rel: "reorder", Pattern: "/api/v1/maps/%s/layers/order", Method: "PUT", Title: "Réordonner les couches"},
}

func (b MapBody) Actions() []humastar.Action {
	actions := humastar.ActionsFor(mapActions, b.ID)
	if len(b.Registered) > 0 {
		actions = append(actions, humastar.ActionsFor(mapLayerActions, b.ID)...)
	}
	return actions
}

type MapOutput struct {
	Body MapBody
}

type LayersRequest struct {
	Layers  []maputil.LayerDescriptor `json:"layers,omitempty" doc:"Explicit layer descriptors, bottom first"`
	BaseMap *int                      `json:"basemap,omitempty" doc:"Project basemap to resolve instead of explicit layers"`
}

type OpacityInput struct {
	MapInput
	Layer int `path:"layer" doc:"Layer ID"`
	Body  struct {
		Opacity float64 `json:"opacity" minimum:"0" maximum:"1" doc:"New opacity"`
	}
}

type FeaturesRequest struct {
	Filter   *maputil.Filter   `json:"filter,omitempty" doc:"Only draw matching features"`
	Features []maputil.Feature `json:"features,omitempty" doc:"Features to draw; the project's stored features when omitted"`
}

type FeaturesBody struct {
	Rendered int `json:"rendered" doc:"Shapes drawn"`
	MapBody
}

type LatLngRequest struct {
	Lat float64 `json:"lat" minimum:"-90" maximum:"90" doc:"Latitude"`
	Lng float64 `json:"lng" minimum:"-180" maximum:"180" doc:"Longitude"`
}

type ClickInput struct {
	MapInput
	Wait bool `query:"wait" doc:"Wait for feature info queries before answering"`
	Body LatLngRequest
}

type ViewInput struct {
	MapInput
	Body struct {
		LatLngRequest
		Zoom   float64 `json:"zoom" minimum:"0" maximum:"24" doc:"Zoom"`
		Width  int     `json:"width,omitempty" minimum:"0" doc:"Viewport width in pixels"`
		Height int     `json:"height,omitempty" minimum:"0" doc:"Viewport height in pixels"`
	}
}

type QueryLayerInput struct {
	MapInput
	Body struct {
		Title string `json:"title" doc:"Title of the queryable layer; empty disables queries"`
	}
}

type ScriptOutput struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

// RegisterMaps registers the map session routes.
func (h *APIHandler) RegisterMaps(api huma.API) {
	tags := huma.OperationTags("maps")
	huma.Register(api, huma.Operation{
		OperationID:   "create-map",
		Method:        "POST",
		Path:          "/api/v1/maps",
		Summary:       "Open a map session",
		Tags:          []string{"maps"},
		DefaultStatus: 201,
	}, h.CreateMap)
	huma.Get(api, "/api/v1/maps/{id}", h.GetMap, tags)
	huma.Delete(api, "/api/v1/maps/{id}", h.DeleteMap, tags)
	huma.Get(api, "/api/v1/maps/{id}/script", h.GetMapScript, tags)
	huma.Post(api, "/api/v1/maps/{id}/layers", h.AddMapLayers, tags)
	huma.Delete(api, "/api/v1/maps/{id}/layers", h.RemoveMapLayers, tags)
	huma.Put(api, "/api/v1/maps/{id}/layers/order", h.ReorderMapLayers, tags)
	huma.Put(api, "/api/v1/maps/{id}/layers/{layer}/opacity", h.SetLayerOpacity, tags)
	huma.Post(api, "/api/v1/maps/{id}/features", h.AddMapFeatures, tags)
	huma.Delete(api, "/api/v1/maps/{id}/features", h.RemoveMapFeatures, tags)
	huma.Put(api, "/api/v1/maps/{id}/query-layer", h.SetQueryLayer, tags)
	huma.Post(api, "/api/v1/maps/{id}/click", h.ClickMap, tags)
	huma.Post(api, "/api/v1/maps/{id}/view", h.MoveMap, tags)
}

func (h *APIHandler) CreateMap(ctx context.Context, input *struct{ Body CreateMapRequest }) (*MapOutput, error) {
	req := input.Body
	sess := h.svc.Session.Create(req.Project)

	opts := h.svc.Defaults.MapOptions()
	opts.Lat, opts.Lng, opts.Zoom, opts.ZoomControl = req.Lat, req.Lng, req.Zoom, req.ZoomControl
	sess.Renderer.CreateMap(opts)
	if req.Width > 0 && req.Height > 0 {
		if err := sess.Renderer.Resize(req.Width, req.Height); err != nil {
			return nil, h.problem(err)
		}
	}
	return h.mapOutput(sess)
}

func (h *APIHandler) GetMap(ctx context.Context, input *MapInput) (*MapOutput, error) {
	sess, err := h.svc.Session.Get(input.ID)
	if err != nil {
		return nil, h.problem(err)
	}
	return h.mapOutput(sess)
}

func (h *APIHandler) DeleteMap(ctx context.Context, input *MapInput) (*struct{ Body MessageBody }, error) {
	if err := h.svc.Session.Delete(input.ID); err != nil {
		return nil, h.problem(err)
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Map closed"}}, nil
}

func (h *APIHandler) GetMapScript(ctx context.Context, input *MapInput) (*ScriptOutput, error) {
	sess, err := h.svc.Session.Get(input.ID)
	if err != nil {
		return nil, h.problem(err)
	}
	state, err := sess.Renderer.Snapshot()
	if err != nil {
		return nil, h.problem(err)
	}
	return &ScriptOutput{
		ContentType: "text/javascript; charset=utf-8",
		Body:        []byte(leaflet.Script(state, MapElementID)),
	}, nil
}

// resolveLayers picks the descriptors of a layers request: a basemap wins
// over explicit layers.
func (h *APIHandler) resolveLayers(project string, req LayersRequest) ([]maputil.LayerDescriptor, error) {
	if req.BaseMap != nil {
		return h.svc.BaseMap.Resolve(project, *req.BaseMap, h.svc.Layer)
	}
	return req.Layers, nil
}

func (h *APIHandler) AddMapLayers(ctx context.Context, input *struct {
	MapInput
	Body LayersRequest
}) (*MapOutput, error) {
	sess, err := h.svc.Session.Get(input.ID)
	if err != nil {
		return nil, h.problem(err)
	}
	layers, err := h.resolveLayers(sess.Project, input.Body)
	if err != nil {
		return nil, h.problem(err)
	}
	d := h.svc.Defaults
	if err := sess.Renderer.AddLayers(layers, d.FallbackService, d.FallbackOptions); err != nil {
		return nil, h.problem(err)
	}
	return h.mapOutput(sess)
}

func (h *APIHandler) RemoveMapLayers(ctx context.Context, input *MapInput) (*MapOutput, error) {
	sess, err := h.svc.Session.Get(input.ID)
	if err != nil {
		return nil, h.problem(err)
	}
	sess.Renderer.RemoveLayers()
	return h.mapOutput(sess)
}

func (h *APIHandler) ReorderMapLayers(ctx context.Context, input *struct {
	MapInput
	Body LayersRequest
}) (*MapOutput, error) {
	sess, err := h.svc.Session.Get(input.ID)
	if err != nil {
		return nil, h.problem(err)
	}
	layers, err := h.resolveLayers(sess.Project, input.Body)
	if err != nil {
		return nil, h.problem(err)
	}
	if err := sess.Renderer.UpdateOrder(layers); err != nil {
		return nil, h.problem(err)
	}
	return h.mapOutput(sess)
}

func (h *APIHandler) SetLayerOpacity(ctx context.Context, input *OpacityInput) (*MapOutput, error) {
	sess, err := h.svc.Session.Get(input.ID)
	if err != nil {
		return nil, h.problem(err)
	}
	sess.Renderer.UpdateOpacity(input.Layer, input.Body.Opacity)
	return h.mapOutput(sess)
}

func (h *APIHandler) AddMapFeatures(ctx context.Context, input *struct {
	MapInput
	Body FeaturesRequest
}) (*struct{ Body FeaturesBody }, error) {
	sess, err := h.svc.Session.Get(input.ID)
	if err != nil {
		return nil, h.problem(err)
	}
	n, err := RenderFeatures(ctx, h.svc.Feature, sess, input.Body.Features, input.Body.Filter)
	if err != nil {
		return nil, h.problem(err)
	}
	out, err := h.mapOutput(sess)
	if err != nil {
		return nil, err
	}
	return &struct{ Body FeaturesBody }{Body: FeaturesBody{Rendered: n, MapBody: out.Body}}, nil
}

// RenderFeatures replaces a session's feature overlay. Without explicit
// features the project's stored ones are drawn; the filter applies either way.
func RenderFeatures(ctx context.Context, store *service.FeatureService, sess *service.Session, features []maputil.Feature, filter *maputil.Filter) (int, error) {
	if features == nil {
		if store == nil {
			return 0, huma.Error503ServiceUnavailable("Database not available")
		}
		var err error
		features, err = store.All(ctx, sess.Project, filter)
		if err != nil {
			return 0, err
		}
	}
	for _, g := range sess.Renderer.Overlays() {
		sess.Renderer.RemoveOverlay(g)
	}
	group, err := sess.Renderer.AddFeatures(features, filter)
	if err != nil {
		return 0, err
	}
	return group.Len(), nil
}

func (h *APIHandler) RemoveMapFeatures(ctx context.Context, input *MapInput) (*MapOutput, error) {
	sess, err := h.svc.Session.Get(input.ID)
	if err != nil {
		return nil, h.problem(err)
	}
	for _, g := range sess.Renderer.Overlays() {
		sess.Renderer.RemoveOverlay(g)
	}
	return h.mapOutput(sess)
}

func (h *APIHandler) SetQueryLayer(ctx context.Context, input *QueryLayerInput) (*MapOutput, error) {
	sess, err := h.svc.Session.Get(input.ID)
	if err != nil {
		return nil, h.problem(err)
	}
	sess.Renderer.SelectQueryLayer(input.Body.Title)
	return h.mapOutput(sess)
}

func (h *APIHandler) ClickMap(ctx context.Context, input *ClickInput) (*MapOutput, error) {
	sess, err := h.svc.Session.Get(input.ID)
	if err != nil {
		return nil, h.problem(err)
	}
	if err := sess.Renderer.Click(orb.Point{input.Body.Lng, input.Body.Lat}); err != nil {
		return nil, h.problem(err)
	}
	if input.Wait {
		sess.Renderer.Wait()
	}
	return h.mapOutput(sess)
}

func (h *APIHandler) MoveMap(ctx context.Context, input *ViewInput) (*MapOutput, error) {
	sess, err := h.svc.Session.Get(input.ID)
	if err != nil {
		return nil, h.problem(err)
	}
	b := input.Body
	if b.Width > 0 && b.Height > 0 {
		if err := sess.Renderer.Resize(b.Width, b.Height); err != nil {
			return nil, h.problem(err)
		}
	}
	if err := sess.Renderer.MoveTo(orb.Point{b.Lng, b.Lat}, b.Zoom); err != nil {
		return nil, h.problem(err)
	}
	return h.mapOutput(sess)
}

func (h *APIHandler) mapOutput(sess *service.Session) (*MapOutput, error) {
	state, err := sess.Renderer.Snapshot()
	if err != nil {
		return nil, h.problem(fmt.Errorf("map session %s: %w", sess.ID, err))
	}
	registered := []int{}
	for id := range sess.Renderer.Registered() {
		registered = append(registered, id)
	}
	slices.Sort(registered)
	return &MapOutput{Body: MapBody{
		ID:         sess.ID,
		Project:    sess.Project,
		QueryLayer: sess.Renderer.QueryLayer(),
		Registered: registered,
		State:      state,
	}}, nil
}
