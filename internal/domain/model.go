package domain

import (
	"fmt"
	"sort"
)

// ModelKey identifies a retrieval/embedding model. The set of valid keys is
// a closed registry; unknown keys never make it past ParseModelKey.
type ModelKey string

const (
	// ModelJinaV3 is the text-to-text retrieval model.
	ModelJinaV3 ModelKey = "jina_v3"
	// ModelSigLIP2 is the cross-modal (text/image) retrieval model.
	ModelSigLIP2 ModelKey = "siglip2"
)

// ModelInfo describes a registered model.
type ModelInfo struct {
	DisplayName   string
	Dimensions    int
	SupportsImage bool
	// VectorField is the index field holding this model's document vectors.
	VectorField string
}

var modelRegistry = map[ModelKey]ModelInfo{
	ModelJinaV3: {
		DisplayName: "Jina v3",
		Dimensions:  768,
		VectorField: "vec_jina_v3",
	},
	ModelSigLIP2: {
		DisplayName:   "SigLIP 2",
		Dimensions:    768,
		SupportsImage: true,
		VectorField:   "vec_siglip2",
	},
}

// ParseModelKey validates a raw model identifier against the registry.
func ParseModelKey(raw string) (ModelKey, error) {
	key := ModelKey(raw)
	if _, ok := modelRegistry[key]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownModel, raw)
	}
	return key, nil
}

// Model returns registry info for a key. ok is false for unregistered keys.
func Model(key ModelKey) (ModelInfo, bool) {
	info, ok := modelRegistry[key]
	return info, ok
}

// AllModelKeys returns every registered key in stable (sorted) order.
func AllModelKeys() []ModelKey {
	keys := make([]ModelKey, 0, len(modelRegistry))
	for k := range modelRegistry {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// ImageModelKeys returns registered keys that accept image input, sorted.
func ImageModelKeys() []ModelKey {
	var keys []ModelKey
	for k, info := range modelRegistry {
		if info.SupportsImage {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
