// Package service contains the stores behind the map API: the layer
// catalogue, project basemaps, features and viewer map sessions.
package service

import (
	"errors"

	"github.com/joeblew999/plat-collab/internal/maputil"
)

var (
	ErrNotFound = errors.New("not found")
	ErrExists   = errors.New("already exists")
	ErrInvalid  = errors.New("invalid")
)

// Layer is a catalogue entry: a tile service that basemaps can reference.
type Layer struct {
	ID         int                `json:"id,omitempty" doc:"Layer identifier (generated when zero)" example:"3"`
	Title      string             `json:"title" required:"true" minLength:"1" maxLength:"256" doc:"Display title" example:"Cadastre"`
	Service    string             `json:"service" required:"true" minLength:"1" maxLength:"256" doc:"Service URL or URL template" example:"https://wxs.ign.fr/essentiels/geoportail/r/wms"`
	SchemaType maputil.SchemaType `json:"schema_type" enum:"wms,tms" default:"wms" doc:"Tile protocol"`
	Options    map[string]any     `json:"options,omitempty" doc:"Tile layer options (layers, format, attribution...)"`
}

// ContextLayer places a catalogue layer in a basemap.
type ContextLayer struct {
	LayerID   int     `json:"id" required:"true" doc:"Catalogue layer identifier" example:"3"`
	Title     string  `json:"title,omitempty" readOnly:"true" doc:"Catalogue layer title"`
	Order     int     `json:"order" required:"false" minimum:"0" doc:"Draw order; higher is drawn later, on top" example:"0"`
	Opacity   float64 `json:"opacity" required:"false" minimum:"0" maximum:"1" default:"1" doc:"Layer opacity (0-1)" example:"1"`
	Queryable bool    `json:"queryable" required:"false" doc:"Whether clicks query this layer"`
}

// BaseMap is a project's named stack of base layers.
type BaseMap struct {
	ID      int            `json:"id,omitempty" doc:"Basemap identifier (generated when zero)" example:"1"`
	Project string         `json:"project,omitempty" readOnly:"true" doc:"Owning project slug" example:"demo"`
	Title   string         `json:"title,omitempty" maxLength:"256" doc:"Display title" example:"Plan IGN"`
	Layers  []ContextLayer `json:"layers" doc:"Layers of the basemap"`
}

// Event represents a resource mutation.
type Event struct {
	Resource string // "layers", "basemaps", "features", "maps"
	Action   string // "created", "updated", "deleted"
	ID       string
}
