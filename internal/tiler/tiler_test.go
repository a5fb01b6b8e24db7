package tiler

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/joeblew999/plat-collab/internal/maputil"
)

func feature(id string, g orb.Geometry) maputil.Feature {
	return maputil.Feature{
		ID:       id,
		Geometry: geojson.NewGeometry(g),
		Properties: maputil.FeatureProperties{
			Title:       "Signalement " + id,
			FeatureType: maputil.FeatureType{Slug: "pothole", Color: "#ff5500"},
			Status:      maputil.Status{Value: "published"},
		},
	}
}

func TestTile(t *testing.T) {
	tile, err := Tile(3, 4, 2)
	require.NoError(t, err)
	require.Equal(t, maptile.New(4, 2, 3), tile)

	for _, c := range [][3]int{{-1, 0, 0}, {23, 0, 0}, {2, 4, 0}, {2, 0, 4}, {1, -1, 0}} {
		_, err := Tile(c[0], c[1], c[2])
		require.ErrorIs(t, err, ErrOutOfRange, "%v", c)
	}
}

func TestEncode(t *testing.T) {
	// [lat, lng] as stored
	paris := feature("1", orb.Point{48.85, 2.35})
	quai := feature("2", orb.LineString{{48.85, 2.30}, {48.86, 2.36}})
	tokyo := feature("3", orb.Point{35.68, 139.69})

	tile := maptile.At(orb.Point{2.35, 48.85}, 12)
	data, err := Encode([]maputil.Feature{paris, quai, tokyo}, tile, "")
	require.NoError(t, err)
	require.NotEmpty(t, data)

	layers, err := mvt.UnmarshalGzipped(data)
	require.NoError(t, err)
	require.Len(t, layers, 1)
	require.Equal(t, DefaultLayer, layers[0].Name)
	require.Len(t, layers[0].Features, 2)

	titles := []any{}
	for _, f := range layers[0].Features {
		titles = append(titles, f.Properties["title"])
	}
	require.ElementsMatch(t, []any{"Signalement 1", "Signalement 2"}, titles)

	// the caller's geometry is left as it was
	require.Equal(t, orb.Point{48.85, 2.35}, paris.Geom())
}

func TestEncode_emptyTile(t *testing.T) {
	tile := maptile.At(orb.Point{-70, -40}, 10)
	data, err := Encode([]maputil.Feature{feature("1", orb.Point{48.85, 2.35})}, tile, "signalements")
	require.NoError(t, err)
	require.Nil(t, data)
}

func TestEncode_polygonCoveringTile(t *testing.T) {
	big := feature("1", orb.Polygon{{{40, -10}, {40, 20}, {55, 20}, {55, -10}, {40, -10}}})
	tile := maptile.At(orb.Point{2.35, 48.85}, 14)
	data, err := Encode([]maputil.Feature{big}, tile, "")
	require.NoError(t, err)
	require.NotNil(t, data)
}

func TestEncode_tileCentreIsKept(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		z := rapid.IntRange(0, 16).Draw(t, "z")
		n := 1 << z
		tile, err := Tile(z, rapid.IntRange(0, n-1).Draw(t, "x"), rapid.IntRange(0, n-1).Draw(t, "y"))
		require.NoError(t, err)

		c := tile.Bound().Center()
		data, err := Encode([]maputil.Feature{feature("p", orb.Point{c.Lat(), c.Lon()})}, tile, "")
		require.NoError(t, err)
		require.NotNil(t, data)
	})
}
