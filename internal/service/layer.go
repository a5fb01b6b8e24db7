package service

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/joeblew999/plat-collab/internal/maputil"
)

// LayerService manages the layer catalogue.
type LayerService struct {
	dataDir string
	layers  map[int]Layer
	bus     *EventBus
	mu      sync.RWMutex
}

// NewLayerService creates a layer service persisting to dataDir. Mutations
// are published on bus, which may be nil.
func NewLayerService(dataDir string, bus *EventBus) *LayerService {
	s := &LayerService{
		dataDir: dataDir,
		layers:  make(map[int]Layer),
		bus:     bus,
	}
	loadJSON(s.configFile(), &s.layers)
	if s.layers == nil {
		s.layers = make(map[int]Layer)
	}
	return s
}

// List returns all layers ordered by ID.
func (s *LayerService) List() []Layer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Layer, 0, len(s.layers))
	for _, v := range s.layers {
		result = append(result, v)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Get returns a layer by ID.
func (s *LayerService) Get(id int) (Layer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	layer, ok := s.layers[id]
	return layer, ok
}

// Create adds a layer. A zero ID is replaced by the next free one.
func (s *LayerService) Create(layer Layer) (Layer, error) {
	if err := validateLayer(layer); err != nil {
		return Layer{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if layer.ID == 0 {
		layer.ID = nextID(s.layers)
	}
	if _, exists := s.layers[layer.ID]; exists {
		return Layer{}, fmt.Errorf("layer %d: %w", layer.ID, ErrExists)
	}

	s.layers[layer.ID] = layer
	if err := saveJSON(s.configFile(), s.layers); err != nil {
		delete(s.layers, layer.ID)
		return Layer{}, err
	}
	s.bus.Publish(Event{Resource: "layers", Action: "created", ID: strconv.Itoa(layer.ID)})
	return layer, nil
}

// Update replaces a layer by ID.
func (s *LayerService) Update(id int, layer Layer) (Layer, error) {
	if err := validateLayer(layer); err != nil {
		return Layer{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, exists := s.layers[id]
	if !exists {
		return Layer{}, fmt.Errorf("layer %d: %w", id, ErrNotFound)
	}

	layer.ID = id
	s.layers[id] = layer
	if err := saveJSON(s.configFile(), s.layers); err != nil {
		s.layers[id] = prev
		return Layer{}, err
	}
	s.bus.Publish(Event{Resource: "layers", Action: "updated", ID: strconv.Itoa(id)})
	return layer, nil
}

// Delete removes a layer by ID.
func (s *LayerService) Delete(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, exists := s.layers[id]
	if !exists {
		return fmt.Errorf("layer %d: %w", id, ErrNotFound)
	}

	delete(s.layers, id)
	if err := saveJSON(s.configFile(), s.layers); err != nil {
		s.layers[id] = prev
		return err
	}
	s.bus.Publish(Event{Resource: "layers", Action: "deleted", ID: strconv.Itoa(id)})
	return nil
}

func (s *LayerService) configFile() string {
	return filepath.Join(s.dataDir, "layers.json")
}

func validateLayer(l Layer) error {
	switch l.SchemaType {
	case maputil.SchemaWMS, maputil.SchemaTMS:
	default:
		return fmt.Errorf("schema type %q: %w", l.SchemaType, ErrInvalid)
	}
	if l.Service == "" {
		return fmt.Errorf("layer service is required: %w", ErrInvalid)
	}
	return nil
}
