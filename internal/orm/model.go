// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package orm

import (
	"context"
	"reflect"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/mitchellh/mapstructure"
	"github.com/qolzam/dbkit/internal/database/expression"
	"github.com/qolzam/dbkit/internal/database/interfaces"
	"github.com/qolzam/dbkit/internal/pkg/log"
)

// Model is a record with dirty tracking. Set outside an init scope buffers
// the value until Commit; rows read from a driver are loaded inside
// BeginInit/EndInit and leave the model clean.
type Model struct {
	schema *Schema
	store  *Store

	values       map[string]interface{}
	modified     map[string]interface{}
	order        []string
	id           interface{}
	dirty        bool
	initializing bool
}

// NewModel creates an empty model with the schema defaults
func NewModel(schema *Schema) *Model {
	m := &Model{
		schema:   schema,
		values:   make(map[string]interface{}, len(schema.Fields)),
		modified: map[string]interface{}{},
	}
	for _, f := range schema.Fields {
		m.values[f.Name] = f.Default
	}
	return m
}

func (m *Model) ModelName() string { return m.schema.Name }

// Fields returns the declared fields, without the identifier field
func (m *Model) Fields() []string {
	idField := m.IDField()
	fields := make([]string, 0, len(m.schema.Fields))
	for _, f := range m.schema.Fields {
		if f.Name != idField {
			fields = append(fields, f.Name)
		}
	}
	return fields
}

func (m *Model) IDField() string { return m.schema.IDFieldName() }

func (m *Model) ID() interface{} { return m.id }

// SetID sets the identifier. An empty string clears it.
func (m *Model) SetID(id interface{}) {
	if s, ok := id.(string); ok && s == "" {
		id = nil
	}
	m.id = id
}

// Get returns the field value, a pending modification wins
func (m *Model) Get(field string) interface{} {
	if field == m.IDField() {
		return m.id
	}
	if v, ok := m.modified[field]; ok {
		return v
	}
	return m.values[field]
}

func (m *Model) IsDirty() bool { return m.dirty }

// Modified returns the modified fields in the order they were first set
func (m *Model) Modified() []string {
	return append([]string(nil), m.order...)
}

// Schema returns the model schema
func (m *Model) Schema() *Schema { return m.schema }

// BeginInit opens an init scope in which Set writes values directly
func (m *Model) BeginInit() { m.initializing = true }

// EndInit closes the init scope
func (m *Model) EndInit() { m.initializing = false }

// Set assigns a field. Unknown fields are rejected with a validation error.
func (m *Model) Set(field string, value interface{}) error {
	if field == m.IDField() {
		m.SetID(value)
		return nil
	}
	def, ok := m.schema.Field(field)
	if !ok {
		return interfaces.ValidationError(nil, "model %s has no field %s", m.ModelName(), field)
	}
	value = coerce(def.Default, value)

	if m.initializing {
		m.values[field] = value
		return nil
	}
	if _, seen := m.modified[field]; !seen {
		m.order = append(m.order, field)
	}
	m.modified[field] = value
	m.dirty = true
	return nil
}

// Init loads values without marking the model dirty. The identifier is read
// from the identifier field, falling back to _id. Unknown fields are skipped.
func (m *Model) Init(values map[string]interface{}) {
	m.BeginInit()
	defer m.EndInit()

	idField := m.IDField()
	for k, v := range values {
		if k == idField || k == DefaultIDField {
			continue
		}
		if err := m.Set(k, v); err != nil {
			log.Debug("Init %s: skip field %s", m.ModelName(), k)
		}
	}
	if id, ok := values[idField]; ok && id != nil {
		m.SetID(id)
	} else if id, ok := values[DefaultIDField]; ok {
		m.SetID(id)
	}
}

// Commit folds the modifications into the current values
func (m *Model) Commit() {
	for _, f := range m.order {
		m.values[f] = m.modified[f]
	}
	m.Discard()
}

// Discard drops the modifications
func (m *Model) Discard() {
	m.modified = map[string]interface{}{}
	m.order = nil
	m.dirty = false
}

// UpdaterConfig describes the modifications as one single-key object per
// field, in modification order.
func (m *Model) UpdaterConfig() []map[string]interface{} {
	config := make([]map[string]interface{}, 0, len(m.order))
	for _, f := range m.order {
		config = append(config, map[string]interface{}{f: m.modified[f]})
	}
	return config
}

// Document returns every field with the modifications overlaid, plus the
// identifier when one is set.
func (m *Model) Document() map[string]interface{} {
	doc := make(map[string]interface{}, len(m.values)+1)
	for k, v := range m.values {
		doc[k] = v
	}
	for k, v := range m.modified {
		doc[k] = v
	}
	if m.id != nil {
		doc[m.IDField()] = m.id
	}
	return doc
}

// Decode copies the document into v, a pointer to a struct tagged with `db`
func (m *Model) Decode(v interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "db",
		Result:           v,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(m.Document())
}

func (m *Model) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Document())
}

// Save persists the model through its store: an insert when it has no
// identifier, a point update when it is dirty. A clean model with an
// identifier is returned as is.
func (m *Model) Save(ctx context.Context) <-chan StoreResult {
	if m.store == nil {
		return failed(interfaces.ConfigurationError("model %s is not bound to a store", m.ModelName()))
	}
	if m.id == nil {
		return m.store.Add(ctx, m)
	}
	if m.dirty {
		return m.store.Update(ctx, m, &interfaces.Criteria{
			Collection: m.ModelName(),
			Set:        m.UpdaterConfig(),
			Filter:     expression.D{{Key: m.IDField(), Value: m.id}},
		})
	}
	return done(StoreResult{Models: []*Model{m}})
}

// coerce converts numeric values to the kind of the field default
func coerce(def, value interface{}) interface{} {
	if def == nil || value == nil {
		return value
	}
	target := reflect.TypeOf(def)
	if !isNumeric(target.Kind()) {
		return value
	}

	switch v := value.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			value = i
		} else if f, err := v.Float64(); err == nil {
			value = f
		} else {
			return value
		}
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return value
		}
		value = f
	}

	rv := reflect.ValueOf(value)
	if !isNumeric(rv.Kind()) || !rv.Type().ConvertibleTo(target) {
		return value
	}
	return rv.Convert(target).Interface()
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
