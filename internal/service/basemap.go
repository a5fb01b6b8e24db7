package service

import (
	"fmt"
	"maps"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/joeblew999/plat-collab/internal/maputil"
)

// BaseMapService manages project basemaps.
type BaseMapService struct {
	dataDir  string
	basemaps map[int]BaseMap
	bus      *EventBus
	mu       sync.RWMutex
}

// NewBaseMapService creates a basemap service persisting to dataDir.
func NewBaseMapService(dataDir string, bus *EventBus) *BaseMapService {
	s := &BaseMapService{
		dataDir:  dataDir,
		basemaps: make(map[int]BaseMap),
		bus:      bus,
	}
	loadJSON(s.configFile(), &s.basemaps)
	if s.basemaps == nil {
		s.basemaps = make(map[int]BaseMap)
	}
	return s
}

// List returns the basemaps of a project ordered by ID.
func (s *BaseMapService) List(project string) []BaseMap {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []BaseMap{}
	for _, b := range s.basemaps {
		if b.Project == project {
			result = append(result, b)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Get returns a basemap of a project.
func (s *BaseMapService) Get(project string, id int) (BaseMap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.basemaps[id]
	if !ok || b.Project != project {
		return BaseMap{}, fmt.Errorf("basemap %d: %w", id, ErrNotFound)
	}
	return b, nil
}

// Create adds a basemap to a project.
func (s *BaseMapService) Create(project string, b BaseMap) (BaseMap, error) {
	if err := validateBaseMap(b); err != nil {
		return BaseMap{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if b.ID == 0 {
		b.ID = nextID(s.basemaps)
	}
	if _, exists := s.basemaps[b.ID]; exists {
		return BaseMap{}, fmt.Errorf("basemap %d: %w", b.ID, ErrExists)
	}
	b.Project = project
	normalise(&b)

	s.basemaps[b.ID] = b
	if err := saveJSON(s.configFile(), s.basemaps); err != nil {
		delete(s.basemaps, b.ID)
		return BaseMap{}, err
	}
	s.bus.Publish(Event{Resource: "basemaps", Action: "created", ID: strconv.Itoa(b.ID)})
	return b, nil
}

// Update replaces a basemap's title and layers.
func (s *BaseMapService) Update(project string, id int, b BaseMap) (BaseMap, error) {
	if err := validateBaseMap(b); err != nil {
		return BaseMap{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.basemaps[id]
	if !ok || prev.Project != project {
		return BaseMap{}, fmt.Errorf("basemap %d: %w", id, ErrNotFound)
	}
	b.ID, b.Project = id, project
	normalise(&b)

	s.basemaps[id] = b
	if err := saveJSON(s.configFile(), s.basemaps); err != nil {
		s.basemaps[id] = prev
		return BaseMap{}, err
	}
	s.bus.Publish(Event{Resource: "basemaps", Action: "updated", ID: strconv.Itoa(id)})
	return b, nil
}

// Delete removes a basemap.
func (s *BaseMapService) Delete(project string, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.basemaps[id]
	if !ok || prev.Project != project {
		return fmt.Errorf("basemap %d: %w", id, ErrNotFound)
	}
	delete(s.basemaps, id)
	if err := saveJSON(s.configFile(), s.basemaps); err != nil {
		s.basemaps[id] = prev
		return err
	}
	s.bus.Publish(Event{Resource: "basemaps", Action: "deleted", ID: strconv.Itoa(id)})
	return nil
}

// Resolve joins a basemap's layers with the catalogue into renderer
// descriptors, sorted by order. Layers missing from the catalogue are left out.
func (s *BaseMapService) Resolve(project string, id int, catalogue *LayerService) ([]maputil.LayerDescriptor, error) {
	b, err := s.Get(project, id)
	if err != nil {
		return nil, err
	}

	ctx := make([]ContextLayer, len(b.Layers))
	copy(ctx, b.Layers)
	sort.SliceStable(ctx, func(i, j int) bool { return ctx[i].Order < ctx[j].Order })

	out := make([]maputil.LayerDescriptor, 0, len(ctx))
	for _, c := range ctx {
		layer, ok := catalogue.Get(c.LayerID)
		if !ok {
			continue
		}
		opacity := c.Opacity
		options := maps.Clone(layer.Options) // nil stays nil; the renderer skips it
		out = append(out, maputil.LayerDescriptor{
			ID:         layer.ID,
			SchemaType: layer.SchemaType,
			Service:    layer.Service,
			Options:    options,
			Opacity:    &opacity,
			Title:      layer.Title,
			Queryable:  c.Queryable,
		})
	}
	return out, nil
}

func (s *BaseMapService) configFile() string {
	return filepath.Join(s.dataDir, "basemaps.json")
}

func validateBaseMap(b BaseMap) error {
	queryable := 0
	seen := make(map[int]bool, len(b.Layers))
	for _, c := range b.Layers {
		if c.Opacity < 0 || c.Opacity > 1 {
			return fmt.Errorf("layer %d opacity %v out of [0,1]: %w", c.LayerID, c.Opacity, ErrInvalid)
		}
		if c.Order < 0 {
			return fmt.Errorf("layer %d order %d is negative: %w", c.LayerID, c.Order, ErrInvalid)
		}
		if seen[c.LayerID] {
			return fmt.Errorf("layer %d appears twice: %w", c.LayerID, ErrInvalid)
		}
		seen[c.LayerID] = true
		if c.Queryable {
			queryable++
		}
	}
	if queryable > 1 {
		return fmt.Errorf("at most one queryable layer per basemap: %w", ErrInvalid)
	}
	return nil
}

// normalise drops read-only fields supplied by clients.
func normalise(b *BaseMap) {
	layers := make([]ContextLayer, len(b.Layers))
	for i, c := range b.Layers {
		c.Title = ""
		layers[i] = c
	}
	b.Layers = layers
}

// WithTitles fills in the catalogue titles of a basemap's layers.
func WithTitles(b BaseMap, catalogue *LayerService) BaseMap {
	layers := make([]ContextLayer, len(b.Layers))
	for i, c := range b.Layers {
		if l, ok := catalogue.Get(c.LayerID); ok {
			c.Title = l.Title
		}
		layers[i] = c
	}
	b.Layers = layers
	return b
}
