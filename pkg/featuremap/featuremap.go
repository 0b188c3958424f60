// Package featuremap holds the immutable table that assigns every semantic
// feature key a fixed slot in the embedding vector.
package featuremap

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Gobusters/ectologger"
	"gopkg.in/yaml.v3"
)

// Dimension is the fixed length of every embedding vector.
const Dimension = 128

// FeatureMap maps a feature key to its index in the embedding vector.
// It is never mutated after construction and is safe for concurrent use.
type FeatureMap struct {
	indices map[string]int
	version string
}

// New validates entries and returns a FeatureMap. Indices must lie in
// [0, Dimension) and no two keys may share an index.
func New(entries map[string]int, version string) (*FeatureMap, error) {
	indices := make(map[string]int, len(entries))
	owners := make(map[int]string, len(entries))

	for key, index := range entries {
		if index < 0 || index >= Dimension {
			return nil, fmt.Errorf("feature %q has index %d outside [0,%d)", key, index, Dimension)
		}
		if owner, ok := owners[index]; ok {
			return nil, fmt.Errorf("features %q and %q share index %d", owner, key, index)
		}
		owners[index] = key
		indices[key] = index
	}

	return &FeatureMap{indices: indices, version: version}, nil
}

// Empty returns a map with no features; every lookup misses.
func Empty() *FeatureMap {
	return &FeatureMap{indices: map[string]int{}, version: "empty"}
}

// Load reads a JSON or YAML key->index table from path. A missing file is
// not an error: the returned map is empty and embeddings degrade to zero
// vectors, which is logged at error level.
func Load(path string, logger ectologger.Logger) (*FeatureMap, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.WithField("path", path).Error("Feature map not found; embeddings will be all-zero vectors")
			return Empty(), nil
		}
		return nil, fmt.Errorf("failed to read feature map %s: %w", path, err)
	}

	entries := map[string]int{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &entries)
	default:
		err = json.Unmarshal(raw, &entries)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse feature map %s: %w", path, err)
	}

	fm, err := New(entries, filepath.Base(path))
	if err != nil {
		return nil, err
	}

	if fm.Len() == 0 {
		logger.WithField("path", path).Error("Feature map is empty; embeddings will be all-zero vectors")
	} else {
		logger.WithFields(map[string]any{"path": path, "features": fm.Len()}).Info("Loaded feature map")
	}

	return fm, nil
}

// Index returns the slot for key.
func (m *FeatureMap) Index(key string) (int, bool) {
	index, ok := m.indices[key]
	return index, ok
}

// Len returns the number of mapped features.
func (m *FeatureMap) Len() int {
	return len(m.indices)
}

// Version identifies where the map was loaded from.
func (m *FeatureMap) Version() string {
	return m.version
}
