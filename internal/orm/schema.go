// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package orm

// DefaultIDField is the identifier field of a schema that names none
const DefaultIDField = "_id"

// FieldDef declares a model field and its default value. The default's kind
// decides how numeric values read back from a driver are coerced.
type FieldDef struct {
	Name    string
	Default interface{}
}

// Schema describes an entity: its fields, identifier field and SQL table DDL
type Schema struct {
	Name    string
	IDField string
	Fields  []FieldDef

	// SQLSchema is the table DDL for every SQL database type without an
	// entry in Dialects.
	SQLSchema string
	Dialects  map[string]string
}

// IDFieldName returns the identifier field, DefaultIDField when unset
func (s *Schema) IDFieldName() string {
	if s.IDField == "" {
		return DefaultIDField
	}
	return s.IDField
}

// FieldNames returns the declared field names in order
func (s *Schema) FieldNames() []string {
	names := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		names = append(names, f.Name)
	}
	return names
}

// Field looks up a field definition by name
func (s *Schema) Field(name string) (FieldDef, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDef{}, false
}

// DDL returns the table statement for databaseType, empty when none is known
func (s *Schema) DDL(databaseType string) string {
	if ddl, ok := s.Dialects[databaseType]; ok {
		return ddl
	}
	return s.SQLSchema
}

func (s *Schema) clone() *Schema {
	c := *s
	c.Fields = append([]FieldDef(nil), s.Fields...)
	if s.Dialects != nil {
		c.Dialects = make(map[string]string, len(s.Dialects))
		for k, v := range s.Dialects {
			c.Dialects[k] = v
		}
	}
	return &c
}
