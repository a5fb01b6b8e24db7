package maputil

import (
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// SchemaType is the tile protocol of a base layer.
type SchemaType string

const (
	SchemaWMS SchemaType = "wms"
	SchemaTMS SchemaType = "tms"
)

// LayerDescriptor describes one base layer of a basemap.
// Options are handed to the tile layer as-is; a nil Options skips the layer.
type LayerDescriptor struct {
	ID         int            `json:"id" doc:"Layer identifier" example:"3"`
	SchemaType SchemaType     `json:"schema_type" doc:"Tile protocol: wms or tms" example:"wms"`
	Service    string         `json:"service" doc:"Service URL or URL template" example:"https://wxs.ign.fr/essentiels/geoportail/r/wms"`
	Options    map[string]any `json:"options,omitempty" doc:"Tile layer options (layers, format, attribution...)"`
	Opacity    *float64       `json:"opacity,omitempty" minimum:"0" maximum:"1" doc:"Layer opacity (0-1)" example:"0.8"`
	Title      string         `json:"title,omitempty" doc:"Display title, also used to select the query layer" example:"Cadastre"`
	Queryable  bool           `json:"queryable,omitempty" doc:"Whether clicks query this layer with GetFeatureInfo"`
}

// MapOptions configures CreateMap. Lat, Lng and Zoom fall back to the
// project defaults when nil; MapDefaultViewCenter is [lat, lng].
type MapOptions struct {
	Lat                  *float64   `json:"lat,omitempty" doc:"Initial latitude"`
	Lng                  *float64   `json:"lng,omitempty" doc:"Initial longitude"`
	Zoom                 *float64   `json:"zoom,omitempty" doc:"Initial zoom"`
	MapDefaultViewCenter [2]float64 `json:"mapDefaultViewCenter" doc:"Default centre as [lat, lng]"`
	MapDefaultViewZoom   float64    `json:"mapDefaultViewZoom" doc:"Default zoom"`
	ZoomControl          *bool      `json:"zoomControl,omitempty" doc:"Attach the zoom widget (default true)"`
}

// FeatureType is the category a feature belongs to.
type FeatureType struct {
	Slug  string `json:"slug" doc:"Feature type slug" example:"pothole"`
	Color string `json:"color,omitempty" doc:"Display colour (CSS)" example:"#ff5500"`
	Title string `json:"title,omitempty" doc:"Display title" example:"Nid de poule"`
}

// Status is the workflow state of a feature.
type Status struct {
	Value string `json:"value" doc:"Status value" example:"published"`
	Label string `json:"label,omitempty" doc:"Display label" example:"Publié"`
}

// Creator is the author of a feature.
type Creator struct {
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
	FullName  string `json:"full_name,omitempty"`
}

// FeatureProperties are the attributes the renderer reads.
type FeatureProperties struct {
	FeatureType    FeatureType `json:"feature_type"`
	Status         Status      `json:"status"`
	Title          string      `json:"title"`
	Creator        *Creator    `json:"creator,omitempty"`
	UpdatedOn      string      `json:"updated_on,omitempty"`
	FeatureURL     string      `json:"feature_url,omitempty"`
	FeatureTypeURL string      `json:"feature_type_url,omitempty"`
}

// Feature is a GeoJSON-like feature as served by the project API.
type Feature struct {
	ID         string            `json:"id,omitempty" doc:"Feature identifier"`
	Geometry   *geojson.Geometry `json:"geometry" doc:"GeoJSON geometry"`
	Properties FeatureProperties `json:"properties"`
}

// Geom returns the feature geometry, or nil.
func (f Feature) Geom() orb.Geometry {
	if f.Geometry == nil {
		return nil
	}
	return f.Geometry.Geometry()
}

// Filter restricts which features are drawn. Empty fields do not constrain.
type Filter struct {
	FeatureType   string `json:"featureType,omitempty" query:"feature_type" doc:"Feature type slug"`
	FeatureStatus string `json:"featureStatus,omitempty" query:"status" doc:"Status value"`
	FeatureTitle  string `json:"featureTitle,omitempty" query:"title" doc:"Title substring"`
}

// Active reports whether any field constrains the result.
func (f *Filter) Active() bool {
	return f != nil && (f.FeatureType != "" || f.FeatureStatus != "" || f.FeatureTitle != "")
}

// Match reports whether feat passes every set field of the filter.
// A nil or empty filter matches everything.
func (f *Filter) Match(feat Feature) bool {
	if !f.Active() {
		return true
	}
	p := feat.Properties
	if f.FeatureType != "" && p.FeatureType.Slug != f.FeatureType {
		return false
	}
	if f.FeatureStatus != "" && p.Status.Value != f.FeatureStatus {
		return false
	}
	if f.FeatureTitle != "" && !strings.Contains(p.Title, f.FeatureTitle) {
		return false
	}
	return true
}
