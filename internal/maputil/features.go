package maputil

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"

	"github.com/joeblew999/plat-collab/internal/leaflet"
)

// Shape styles.
const (
	markerRadius = 4
	strokeWeight = 3
	fillOpacity  = 0.5
	defaultColor = "#3388ff"
)

// AddFeatures draws the features passing filter into one feature group,
// attaches it, and returns it. Input geometries are lat/lng; the shapes hold
// lng/lat. Geometries other than Point, LineString and Polygon are skipped.
func (r *Renderer) AddFeatures(features []Feature, filter *Filter) (*leaflet.FeatureGroup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.m == nil {
		return nil, ErrNoMap
	}

	group := leaflet.NewFeatureGroup()
	counts := map[string]int{}
	for _, feat := range features {
		if !filter.Match(feat) {
			continue
		}
		shape := r.shape(feat)
		if shape == nil {
			continue
		}
		group.AddLayer(shape)
		counts[shape.Geometry().GeoJSONType()]++
	}
	r.m.AddLayer(group)

	for geom, n := range counts {
		r.metrics.AddFeaturesRendered(geom, n)
	}
	r.log.Debug().Int("features", len(features)).Int("rendered", group.Len()).Msg("features added")
	return group, nil
}

// RemoveOverlay detaches a group returned by AddFeatures.
func (r *Renderer) RemoveOverlay(group *leaflet.FeatureGroup) {
	if group == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.m != nil {
		r.m.RemoveLayer(group)
	}
}

// Overlays returns the attached feature groups in z-order.
func (r *Renderer) Overlays() []*leaflet.FeatureGroup {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.m == nil {
		return nil
	}
	var out []*leaflet.FeatureGroup
	for _, l := range r.m.Layers() {
		if g, ok := l.(*leaflet.FeatureGroup); ok {
			out = append(out, g)
		}
	}
	return out
}

func (r *Renderer) shape(feat Feature) leaflet.Path {
	g := feat.Geom()
	if g == nil {
		return nil
	}
	g = SwapAxes(g)

	color := feat.Properties.FeatureType.Color
	if color == "" {
		color = defaultColor
	}

	var shape interface {
		leaflet.Path
		BindPopup(string)
	}
	switch geom := g.(type) {
	case orb.Point:
		shape = leaflet.NewCircleMarker(geom, leaflet.PathStyle{
			Color: color, Weight: strokeWeight, Radius: markerRadius, FillOpacity: fillOpacity,
		})
	case orb.LineString:
		shape = leaflet.NewPolyline(geom, leaflet.PathStyle{Color: color, Weight: strokeWeight})
	case orb.Polygon:
		shape = leaflet.NewPolygon(geom, leaflet.PathStyle{
			Color: color, Weight: strokeWeight, FillOpacity: fillOpacity,
		})
	default:
		r.log.Debug().Str("feature", feat.ID).Str("geometry", g.GeoJSONType()).Msg("unsupported geometry skipped")
		return nil
	}

	content, err := r.popupContent(feat)
	if err != nil {
		r.log.Warn().Err(err).Str("feature", feat.ID).Msg("popup render failed")
	}
	shape.BindPopup(content)
	return shape
}

// SwapAxes returns a copy of g with the two coordinate axes exchanged,
// turning lat/lng into lng/lat and back.
func SwapAxes(g orb.Geometry) orb.Geometry {
	if g == nil {
		return nil
	}
	return project.Geometry(orb.Clone(g), func(p orb.Point) orb.Point {
		return orb.Point{p[1], p[0]}
	})
}
