// Package tiler encodes project features as gzipped Mapbox vector tiles.
//
// Features are stored [lat, lng]; they are swapped back to lng/lat before
// tiling so tiles line up with the web mercator grid.
package tiler

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"

	"github.com/joeblew999/plat-collab/internal/maputil"
)

// DefaultLayer is the MVT layer name features are written to.
const DefaultLayer = "features"

// MaxZoom is the deepest zoom tiles are cut for.
const MaxZoom = 22

// ErrOutOfRange is returned for tile coordinates outside the grid.
var ErrOutOfRange = errors.New("tile out of range")

// Tile returns the tile at z/x/y after checking it exists.
func Tile(z, x, y int) (maptile.Tile, error) {
	if z < 0 || z > MaxZoom {
		return maptile.Tile{}, fmt.Errorf("zoom %d: %w", z, ErrOutOfRange)
	}
	n := 1 << z
	if x < 0 || x >= n || y < 0 || y >= n {
		return maptile.Tile{}, fmt.Errorf("tile %d/%d/%d: %w", z, x, y, ErrOutOfRange)
	}
	return maptile.New(uint32(x), uint32(y), maptile.Zoom(z)), nil
}

// Encode writes the features intersecting tile into a single layer.
// An empty tile gives nil data and no error.
func Encode(features []maputil.Feature, tile maptile.Tile, layerName string) ([]byte, error) {
	if layerName == "" {
		layerName = DefaultLayer
	}
	bound := tile.Bound()

	fc := geojson.NewFeatureCollection()
	for _, feat := range features {
		// SwapAxes clones, so clipping below never touches the caller's features.
		g := maputil.SwapAxes(feat.Geom())
		if g == nil || !intersects(g, bound) {
			continue
		}
		f := geojson.NewFeature(g)
		p := feat.Properties
		f.Properties["id"] = feat.ID
		f.Properties["title"] = p.Title
		f.Properties["feature_type"] = p.FeatureType.Slug
		f.Properties["status"] = p.Status.Value
		if p.FeatureType.Color != "" {
			f.Properties["color"] = p.FeatureType.Color
		}
		fc.Append(f)
	}
	if len(fc.Features) == 0 {
		return nil, nil
	}

	layer := mvt.NewLayer(layerName, fc)
	if eps := simplifyEpsilon(tile.Z); eps > 0 {
		layer.Simplify(simplify.DouglasPeucker(eps))
	}
	layer.Clip(bound)
	layer.ProjectToTile(tile)
	layer.RemoveEmpty(0.5, 0.5)
	if len(layer.Features) == 0 {
		return nil, nil
	}

	data, err := mvt.MarshalGzipped(mvt.Layers{layer})
	if err != nil {
		return nil, fmt.Errorf("encoding tile %d/%d/%d: %w", tile.Z, tile.X, tile.Y, err)
	}
	return data, nil
}

// intersects is a tighter test than bound overlap for points and polygons.
func intersects(g orb.Geometry, bound orb.Bound) bool {
	if !g.Bound().Intersects(bound) {
		return false
	}
	switch g := g.(type) {
	case orb.Point:
		return bound.Contains(g)
	case orb.MultiPoint:
		for _, p := range g {
			if bound.Contains(p) {
				return true
			}
		}
		return false
	case orb.Polygon:
		for _, ring := range g {
			for _, p := range ring {
				if bound.Contains(p) {
					return true
				}
			}
		}
		// the polygon may cover the whole tile
		corners := []orb.Point{bound.Min, {bound.Max[0], bound.Min[1]}, bound.Max, {bound.Min[0], bound.Max[1]}, bound.Center()}
		for _, c := range corners {
			if planar.PolygonContains(g, c) {
				return true
			}
		}
		return false
	case orb.MultiPolygon:
		for _, poly := range g {
			if intersects(poly, bound) {
				return true
			}
		}
		return false
	case orb.MultiLineString:
		for _, ls := range g {
			if intersects(ls, bound) {
				return true
			}
		}
		return false
	}
	return true
}

// simplifyEpsilon is the Douglas-Peucker tolerance in degrees; none from z14.
func simplifyEpsilon(z maptile.Zoom) float64 {
	switch {
	case z >= 14:
		return 0
	case z >= 10:
		return 0.00001
	case z >= 6:
		return 0.0001
	default:
		return 0.0005
	}
}
