package core

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// AllDatasets selects every registered dataset.
const AllDatasets = "all"

// ErrUnknownDataset is returned when a key is not registered.
var ErrUnknownDataset = errors.New("unknown dataset")

var (
	registry   = make(map[string]DatasetDefinition)
	registryMu sync.RWMutex
)

// Register adds a dataset definition to the registry.
// Panics if a dataset with the same key is already registered.
func Register(def DatasetDefinition) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[def.Info.Key]; exists {
		panic(fmt.Sprintf("dataset already registered: %s", def.Info.Key))
	}
	registry[def.Info.Key] = def
}

// Get returns a dataset definition by key.
// Returns false if not found.
func Get(key string) (DatasetDefinition, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	def, ok := registry[key]
	return def, ok
}

// All returns all registered dataset definitions.
// Sorted by group then by key for consistent ordering.
func All() []DatasetDefinition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]DatasetDefinition, 0, len(registry))
	for _, def := range registry {
		result = append(result, def)
	}
	sortDefinitions(result)
	return result
}

func sortDefinitions(defs []DatasetDefinition) {
	sort.Slice(defs, func(i, j int) bool {
		if defs[i].Info.Group != defs[j].Info.Group {
			return defs[i].Info.Group < defs[j].Info.Group
		}
		return defs[i].Info.Key < defs[j].Info.Key
	})
}

// ByGroup returns all dataset definitions for a specific group.
// Sorted by key for consistent ordering.
func ByGroup(group string) []DatasetDefinition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	var result []DatasetDefinition
	for _, def := range registry {
		if def.Info.Group == group {
			result = append(result, def)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Info.Key < result[j].Info.Key
	})
	return result
}

// Groups returns all unique group names.
// Sorted alphabetically.
func Groups() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	seen := make(map[string]bool)
	for _, def := range registry {
		seen[def.Info.Group] = true
	}

	groups := make([]string, 0, len(seen))
	for g := range seen {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups
}

// Count returns the number of registered datasets.
func Count() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry)
}

// Clear removes all registered datasets.
// Primarily useful for testing.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]DatasetDefinition)
}

// Resolve returns the definitions for keys in run order. "all" selects every
// dataset. Selected datasets run after the selected datasets they depend on;
// otherwise group then key order is kept.
func Resolve(keys []string) ([]DatasetDefinition, error) {
	var selected []DatasetDefinition
	seen := map[string]bool{}
	for _, k := range keys {
		if k == AllDatasets {
			selected = All()
			break
		}
		if seen[k] {
			continue
		}
		def, ok := Get(k)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownDataset, k)
		}
		seen[k] = true
		selected = append(selected, def)
	}
	sortDefinitions(selected)
	return orderByDependencies(selected)
}

// orderByDependencies is a stable topological sort. Dependencies outside
// defs are ignored.
func orderByDependencies(defs []DatasetDefinition) ([]DatasetDefinition, error) {
	inSet := make(map[string]bool, len(defs))
	for _, d := range defs {
		inSet[d.Info.Key] = true
	}

	done := make(map[string]bool, len(defs))
	out := make([]DatasetDefinition, 0, len(defs))
	for len(out) < len(defs) {
		progressed := false
		for _, d := range defs {
			if done[d.Info.Key] {
				continue
			}
			ready := true
			for _, dep := range d.DependsOn {
				if inSet[dep] && !done[dep] {
					ready = false
					break
				}
			}
			if ready {
				done[d.Info.Key] = true
				out = append(out, d)
				progressed = true
				break
			}
		}
		if !progressed {
			return nil, fmt.Errorf("dataset dependency cycle among %d datasets", len(defs)-len(out))
		}
	}
	return out, nil
}
