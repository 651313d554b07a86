// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package interfaces

import (
	"reflect"

	"github.com/mitchellh/mapstructure"
)

// Select is the polymorphic select, insert and update spec of a query.
//
//	nil or Fields == ["*"]   all fields
//	Fields                   column list
//	Fields + Values          insert
//	Set                      update description (equality grammar)
type Select struct {
	Fields []string      `json:"fields,omitempty" mapstructure:"fields"`
	Values []interface{} `json:"values,omitempty" mapstructure:"values"`
	Set    interface{}   `json:"set,omitempty" mapstructure:"set"`
}

// AllFields reports whether the spec selects every column
func (s *Select) AllFields() bool {
	if s == nil {
		return true
	}
	return len(s.Fields) == 1 && s.Fields[0] == "*" && len(s.Values) == 0 && s.Set == nil
}

// SortField is one entry of a sort clause
type SortField struct {
	Field string `json:"field" mapstructure:"field"`
	Order string `json:"order" mapstructure:"order"`
}

// Clause is a non-filter query modifier. A clause holds either a sort list,
// a limit or both; sort is always rendered before limit.
type Clause struct {
	Sort  []SortField `json:"sort,omitempty" mapstructure:"sort"`
	Limit *int64      `json:"limit,omitempty" mapstructure:"limit"`
}

// SortClause creates a sort clause
func SortClause(fields ...SortField) Clause {
	return Clause{Sort: fields}
}

// LimitClause creates a limit clause
func LimitClause(n int64) Clause {
	return Clause{Limit: &n}
}

// WriteOptions holds the driver specific write clause (e.g. MongoDB upsert/multi)
type WriteOptions struct {
	Upsert bool `json:"upsert,omitempty" mapstructure:"upsert"`
	Multi  bool `json:"multi,omitempty" mapstructure:"multi"`
}

// Criteria is the filter/criteria wire shape consumed by find and update.
// Filter and Set follow the expression grammar.
type Criteria struct {
	Collection string        `json:"collection,omitempty" mapstructure:"collection"`
	Select     *Select       `json:"select,omitempty" mapstructure:"select"`
	Filter     interface{}   `json:"filter,omitempty" mapstructure:"filter"`
	Set        interface{}   `json:"set,omitempty" mapstructure:"set"`
	Clauses    []Clause      `json:"clause,omitempty" mapstructure:"clause"`
	Options    *WriteOptions `json:"options,omitempty" mapstructure:"options"`
}

// DecodeCriteria decodes the criteria wire shape
// {collection?, select?, filter?, set?, clause?, options?}. Filter and set
// are kept as given. Unknown keys are rejected. An object valued clause is
// the write clause form and decodes into Options.
func DecodeCriteria(input interface{}) (*Criteria, error) {
	if input == nil {
		return &Criteria{}, nil
	}
	criteria := &Criteria{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       writeClauseHook,
		Result:           criteria,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(input); err != nil {
		return nil, ValidationError(err, "invalid criteria")
	}
	return criteria, nil
}

var criteriaType = reflect.TypeOf(Criteria{})

// writeClauseHook moves an object valued "clause" to "options"
func writeClauseHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if to != criteriaType {
		return data, nil
	}
	m, ok := data.(map[string]interface{})
	if !ok {
		return data, nil
	}
	clause, ok := m["clause"].(map[string]interface{})
	if !ok {
		return data, nil
	}
	if _, dup := m["options"]; dup {
		return nil, ValidationError(nil, "criteria has both a write clause and options")
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		if k != "clause" {
			out[k] = v
		}
	}
	out["options"] = clause
	return out, nil
}

// WriteOptionsOrDefault never returns nil
func (c *Criteria) WriteOptionsOrDefault() WriteOptions {
	if c == nil || c.Options == nil {
		return WriteOptions{}
	}
	return *c.Options
}

// FindRequest is the payload of a read operation
type FindRequest struct {
	Model string
	Query *Criteria
}

// Criteria returns the query criteria, never nil
func (r *FindRequest) Criteria() *Criteria {
	if r.Query == nil {
		return &Criteria{}
	}
	return r.Query
}

// UpdateRequest is the payload of an update operation
type UpdateRequest struct {
	Collection string
	Model      Record
	Criteria   *Criteria
}

// SetDescription returns the update description: the model's modified
// fields when a model with changes is attached, the criteria set otherwise.
func (r *UpdateRequest) SetDescription() interface{} {
	if r.Model != nil {
		if modified := r.Model.UpdaterConfig(); len(modified) > 0 {
			return modified
		}
	}
	if r.Criteria != nil {
		return r.Criteria.Set
	}
	return nil
}

// Filter returns the criteria filter or nil
func (r *UpdateRequest) Filter() interface{} {
	if r.Criteria == nil {
		return nil
	}
	return r.Criteria.Filter
}

// Clauses returns the criteria clauses or nil
func (r *UpdateRequest) Clauses() []Clause {
	if r.Criteria == nil {
		return nil
	}
	return r.Criteria.Clauses
}

// TableSpec is the payload of create and drop table operations
type TableSpec struct {
	Name      string
	IDField   string
	Statement string
}
