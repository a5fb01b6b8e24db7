package service

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// loadJSON reads path into v. A missing or unreadable file leaves v alone.
func loadJSON(path string, v any) {
	data, err := os.ReadFile(path)
	if err != nil {
		return // File doesn't exist yet, start empty
	}
	_ = json.Unmarshal(data, v)
}

// saveJSON writes v to path, creating the directory if needed.
func saveJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func nextID[T any](items map[int]T) int {
	last := 0
	for id := range items {
		if id > last {
			last = id
		}
	}
	return last + 1
}
