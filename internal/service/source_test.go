package service

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSourceListAndRead(t *testing.T) {
	dir := t.TempDir()
	s := NewSourceService(dir)

	files, err := s.List()
	require.NoError(t, err)
	require.Empty(t, files)

	require.NoError(t, os.MkdirAll(s.SourcesDir(), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(s.SourcesDir(), "b.geojson"), []byte(potholes), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(s.SourcesDir(), "a.json"), []byte(`{"type":"FeatureCollection","features":[]}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(s.SourcesDir(), "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(s.SourcesDir(), "broken.geojson"), []byte("{"), 0644))

	files, err = s.List()
	require.NoError(t, err)
	require.Len(t, files, 3)
	require.Equal(t, "a.json", files[0].Name)
	require.Equal(t, "42 B", files[0].Size)

	fc, err := s.Read("b.geojson")
	require.NoError(t, err)
	require.Len(t, fc.Features, 3)

	_, err = s.Read("broken.geojson")
	require.ErrorIs(t, err, ErrInvalid)
	_, err = s.Read("../layers.json")
	require.ErrorIs(t, err, ErrInvalid)
	_, err = s.Read("notes.txt")
	require.ErrorIs(t, err, ErrInvalid)
	_, err = s.Read("missing.geojson")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFormatSize(t *testing.T) {
	require.Equal(t, "512 B", formatSize(512))
	require.Equal(t, "1.5 KB", formatSize(1536))
	require.Equal(t, "2.0 MB", formatSize(2*1024*1024))
}
