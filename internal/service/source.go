package service

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/paulmach/orb/geojson"
)

// SourceFile is a GeoJSON file waiting in the sources directory.
type SourceFile struct {
	Name string `json:"name" doc:"File name" example:"signalements.geojson"`
	Size string `json:"size" doc:"Human-readable size" example:"12.4 KB"`
}

// SourceService reads GeoJSON files dropped in <dataDir>/sources so they can
// be imported as project features.
type SourceService struct {
	sourcesDir string
}

// NewSourceService creates a source service.
func NewSourceService(dataDir string) *SourceService {
	return &SourceService{sourcesDir: filepath.Join(dataDir, "sources")}
}

// List returns the importable files ordered by name.
func (s *SourceService) List() ([]SourceFile, error) {
	entries, err := os.ReadDir(s.sourcesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []SourceFile{}, nil
		}
		return nil, err
	}

	files := []SourceFile{}
	for _, entry := range entries {
		if entry.IsDir() || !isGeoJSON(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, SourceFile{Name: entry.Name(), Size: formatSize(info.Size())})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// Read parses a source file as a FeatureCollection.
func (s *SourceService) Read(name string) (*geojson.FeatureCollection, error) {
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return nil, fmt.Errorf("source %q: %w", name, ErrInvalid)
	}
	if !isGeoJSON(name) {
		return nil, fmt.Errorf("source %q: unsupported file type: %w", name, ErrInvalid)
	}
	data, err := os.ReadFile(filepath.Join(s.sourcesDir, name))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("source %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("source %q: %w: %v", name, ErrInvalid, err)
	}
	return fc, nil
}

// SourcesDir returns the path to the sources directory.
func (s *SourceService) SourcesDir() string {
	return s.sourcesDir
}

func isGeoJSON(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".geojson", ".json":
		return true
	}
	return false
}

// formatSize returns a human-readable file size.
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
