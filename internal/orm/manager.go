// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package orm

import (
	"sort"
	"sync"

	"github.com/qolzam/dbkit/internal/database/expression"
	"github.com/qolzam/dbkit/internal/database/interfaces"
	"github.com/qolzam/dbkit/internal/pkg/log"
)

// ModelManager is a name-keyed registry of model schemas
type ModelManager struct {
	mu      sync.RWMutex
	schemas map[string]*Schema
}

func NewModelManager() *ModelManager {
	return &ModelManager{schemas: make(map[string]*Schema)}
}

// Register adds schema under its name, replacing any previous one
func (mm *ModelManager) Register(schema *Schema) error {
	if schema == nil || schema.Name == "" {
		return interfaces.ValidationError(nil, "schema needs a name")
	}
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.schemas[schema.Name] = schema
	return nil
}

// Configure registers the declared models, resolving each path in catalog.
// Names already registered are left alone; bad entries are logged and skipped.
func (mm *ModelManager) Configure(entries []interfaces.ModelConfig, catalog map[string]*Schema) {
	for _, entry := range entries {
		if entry.Name == "" {
			log.Error("Model entry with path %q has no name", entry.Path)
			continue
		}
		if _, ok := mm.Get(entry.Name); ok {
			continue
		}
		base, ok := catalog[entry.Path]
		if !ok || base == nil {
			log.Error("Model %s: unknown path %q", entry.Name, entry.Path)
			continue
		}

		schema := base.clone()
		schema.Name = entry.Name
		if entry.Schema != "" {
			schema.SQLSchema = entry.Schema
			schema.Dialects = nil
		}
		if err := mm.Register(schema); err != nil {
			log.Error("Model %s: %s", entry.Name, err.Error())
			continue
		}
		log.Info("Registered model %s", entry.Name)
	}
}

// Get returns the schema registered under name
func (mm *ModelManager) Get(name string) (*Schema, bool) {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	s, ok := mm.schemas[name]
	return s, ok
}

// NewModel creates an empty, unbound model of the named schema
func (mm *ModelManager) NewModel(name string) (*Model, error) {
	schema, ok := mm.Get(name)
	if !ok {
		return nil, interfaces.ConfigurationError("model %s is not registered", name)
	}
	return NewModel(schema), nil
}

// Names returns the registered model names in order
func (mm *ModelManager) Names() []string {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return sortedKeys(mm.schemas)
}

// StoreDefinition is a store catalog entry
type StoreDefinition struct {
	Model string
}

// StoreManager is a name-keyed registry of stores over one database
type StoreManager struct {
	models *ModelManager

	mu     sync.RWMutex
	stores map[string]*Store
}

func NewStoreManager(models *ModelManager) *StoreManager {
	return &StoreManager{
		models: models,
		stores: make(map[string]*Store),
	}
}

// Configure builds the declared stores over db, resolving each path in
// catalog. Names already configured are left alone; bad entries are logged
// and skipped.
func (sm *StoreManager) Configure(db Executor, entries []interfaces.StoreConfig, catalog map[string]StoreDefinition) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	for _, entry := range entries {
		if entry.Name == "" {
			log.Error("Store entry with path %q has no name", entry.Path)
			continue
		}
		if _, ok := sm.stores[entry.Name]; ok {
			continue
		}
		def, ok := catalog[entry.Path]
		if !ok {
			log.Error("Store %s: unknown path %q", entry.Name, entry.Path)
			continue
		}
		if _, ok := sm.models.Get(def.Model); !ok {
			log.Error("Store %s: model %s is not registered", entry.Name, def.Model)
			continue
		}
		sm.stores[entry.Name] = NewStore(entry.Name, def.Model, db, sm.models)
		log.Info("Registered store %s for model %s", entry.Name, def.Model)
	}
}

// Get returns the store registered under name
func (sm *StoreManager) Get(name string) (*Store, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	s, ok := sm.stores[name]
	return s, ok
}

// Names returns the configured store names in order
func (sm *StoreManager) Names() []string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sortedKeys(sm.stores)
}

// DecodeCriteriaJSON decodes the criteria wire shape. Filter and set keep
// their key order.
func DecodeCriteriaJSON(raw []byte) (*interfaces.Criteria, error) {
	if len(raw) == 0 {
		return &interfaces.Criteria{}, nil
	}
	v, err := expression.DecodeJSON(raw)
	if err != nil {
		return nil, interfaces.ValidationError(err, "invalid criteria JSON")
	}
	doc, ok := v.(expression.D)
	if !ok {
		return nil, interfaces.ValidationError(nil, "criteria must be an object, got %T", v)
	}

	input := doc.Map()
	for _, key := range []string{"filter", "set"} {
		if raw, ok := doc.Get(key); ok {
			input[key] = raw
		}
	}
	return interfaces.DecodeCriteria(input)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Catalog resolves the paths of model and store configuration entries
type Catalog struct {
	Models map[string]*Schema
	Stores map[string]StoreDefinition
}
