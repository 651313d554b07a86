// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package orm

import (
	"context"
	"fmt"
	"strings"

	"github.com/qolzam/dbkit/internal/database/expression"
	"github.com/qolzam/dbkit/internal/database/interfaces"
	"github.com/qolzam/dbkit/internal/pkg/log"
)

// Executor runs database operations. *database.DB implements it.
type Executor interface {
	Execute(ctx context.Context, op *interfaces.DBOperation) <-chan interfaces.RepositoryResult
	DatabaseType() string
}

// StoreResult is the outcome of a store call
type StoreResult struct {
	Models   []*Model
	Affected int64
	Error    error
}

// Store is the data access object of one model type. It never caches records.
type Store struct {
	name      string
	modelName string
	db        Executor
	models    *ModelManager
}

// NewStore binds a store named name to the model modelName
func NewStore(name, modelName string, db Executor, models *ModelManager) *Store {
	return &Store{
		name:      name,
		modelName: modelName,
		db:        db,
		models:    models,
	}
}

func (s *Store) Name() string { return s.name }

func (s *Store) ModelName() string { return s.modelName }

// NewModel creates an empty model bound to this store
func (s *Store) NewModel() (*Model, error) {
	m, err := s.models.NewModel(s.modelName)
	if err != nil {
		return nil, err
	}
	m.store = s
	return m, nil
}

// Add inserts m. On success the model carries its identifier and is clean.
func (s *Store) Add(ctx context.Context, m *Model) <-chan StoreResult {
	if err := s.checkModel(m); err != nil {
		return failed(err)
	}

	return s.async(func() StoreResult {
		res := <-s.db.Execute(ctx, interfaces.NewDBOperation(interfaces.OperationInsert, m))
		if res.Error != nil {
			return StoreResult{Error: res.Error}
		}
		if m.ID() == nil && res.Result != nil {
			m.SetID(res.Result)
		}
		m.store = s
		m.Commit()
		return StoreResult{Models: []*Model{m}, Affected: 1}
	})
}

// Update applies criteria. With an identified model it is a point update
// returning the model; otherwise every matching row is updated and the rows
// are read back with the same filter. m may be nil when criteria carries a
// set description.
func (s *Store) Update(ctx context.Context, m *Model, criteria *interfaces.Criteria) <-chan StoreResult {
	if m != nil {
		if err := s.checkModel(m); err != nil {
			return failed(err)
		}
	} else if criteria == nil || criteria.Set == nil {
		return failed(interfaces.ValidationError(nil, "update on store %s needs a model or a set description", s.name))
	}

	c := &interfaces.Criteria{Collection: s.modelName}
	if criteria != nil {
		copied := *criteria
		c = &copied
		if c.Collection == "" {
			c.Collection = s.modelName
		}
	}

	req := &interfaces.UpdateRequest{Collection: c.Collection, Criteria: c}
	pointUpdate := false
	if m != nil {
		req.Model = m
		if id := m.ID(); id != nil {
			pointUpdate = true
			c.Filter = withID(c.Filter, m.IDField(), id)
		}
	}

	return s.async(func() StoreResult {
		res := <-s.db.Execute(ctx, interfaces.NewDBOperation(interfaces.OperationUpdate, req))
		if res.Error != nil {
			return StoreResult{Error: res.Error}
		}
		affected, _ := res.Result.(int64)
		if m != nil {
			m.Commit()
		}
		if pointUpdate {
			return StoreResult{Models: []*Model{m}, Affected: affected}
		}

		found := <-s.Find(ctx, &interfaces.Criteria{Collection: c.Collection, Filter: c.Filter})
		found.Affected = affected
		return found
	})
}

// Find reads the rows matching criteria, all rows when criteria is nil
func (s *Store) Find(ctx context.Context, criteria *interfaces.Criteria) <-chan StoreResult {
	req := &interfaces.FindRequest{Model: s.name, Query: criteria}

	return s.async(func() StoreResult {
		res := <-s.db.Execute(ctx, interfaces.NewDBOperation(interfaces.OperationRead, req))
		if res.Error != nil {
			return StoreResult{Error: res.Error}
		}
		rows, ok := res.Result.([]interfaces.Row)
		if !ok && res.Result != nil {
			return StoreResult{Error: fmt.Errorf("find on store %s: unexpected result %T", s.name, res.Result)}
		}

		models := make([]*Model, 0, len(rows))
		for _, row := range rows {
			m, err := s.NewModel()
			if err != nil {
				return StoreResult{Error: err}
			}
			m.Init(row)
			models = append(models, m)
		}
		return StoreResult{Models: models, Affected: int64(len(models))}
	})
}

// FindJSON decodes the criteria wire shape from raw and runs Find
func (s *Store) FindJSON(ctx context.Context, raw []byte) <-chan StoreResult {
	criteria, err := DecodeCriteriaJSON(raw)
	if err != nil {
		return failed(err)
	}
	return s.Find(ctx, criteria)
}

// Remove deletes m by its identifier
func (s *Store) Remove(ctx context.Context, m *Model) <-chan StoreResult {
	if err := s.checkModel(m); err != nil {
		return failed(err)
	}
	if m.ID() == nil {
		return failed(interfaces.ValidationError(nil, "remove on store %s needs an identified model", s.name))
	}

	return s.async(func() StoreResult {
		res := <-s.db.Execute(ctx, interfaces.NewDBOperation(interfaces.OperationDelete, m))
		if res.Error != nil {
			return StoreResult{Error: res.Error}
		}
		affected, _ := res.Result.(int64)
		return StoreResult{Models: []*Model{m}, Affected: affected}
	})
}

// CreateTable creates the model's table or collection
func (s *Store) CreateTable(ctx context.Context) <-chan StoreResult {
	return s.table(ctx, interfaces.OperationCreateTable)
}

// DropTable drops the model's table or collection
func (s *Store) DropTable(ctx context.Context) <-chan StoreResult {
	return s.table(ctx, interfaces.OperationDropTable)
}

func (s *Store) table(ctx context.Context, kind interfaces.OperationKind) <-chan StoreResult {
	schema, ok := s.models.Get(s.modelName)
	if !ok {
		return failed(interfaces.ConfigurationError("model %s is not registered", s.modelName))
	}
	spec := &interfaces.TableSpec{
		Name:      schema.Name,
		IDField:   schema.IDFieldName(),
		Statement: schema.DDL(s.db.DatabaseType()),
	}

	return s.async(func() StoreResult {
		res := <-s.db.Execute(ctx, interfaces.NewDBOperation(kind, spec))
		return StoreResult{Error: res.Error}
	})
}

func (s *Store) checkModel(m *Model) error {
	if m == nil {
		return interfaces.ValidationError(nil, "store %s needs a model", s.name)
	}
	if m.ModelName() != s.modelName {
		return interfaces.ValidationError(nil, "store %s expects model %s, got %s", s.name, s.modelName, m.ModelName())
	}
	return nil
}

func (s *Store) async(fn func() StoreResult) <-chan StoreResult {
	out := make(chan StoreResult, 1)
	go func() {
		defer close(out)
		result := fn()
		if result.Error != nil {
			log.Error("Store %s: %s", s.name, result.Error.Error())
		}
		out <- result
	}()
	return out
}

// withID adds the identifier equality to filter unless it already names idField
func withID(filter interface{}, idField string, id interface{}) interface{} {
	idFilter := expression.D{{Key: idField, Value: id}}
	if filter == nil {
		return idFilter
	}
	switch raw := filter.(type) {
	case string:
		filter = decodeFilter([]byte(raw))
	case []byte:
		filter = decodeFilter(raw)
	}
	doc, ok := expression.ToDocument(filter)
	if ok {
		if _, has := doc.Get(idField); has {
			return filter
		}
		if plainFields(doc) {
			return append(append(expression.D{}, doc...), idFilter...)
		}
	}
	return expression.D{{Key: "and", Value: []interface{}{filter, idFilter}}}
}

func decodeFilter(raw []byte) interface{} {
	v, err := expression.DecodeJSON(raw)
	if err != nil {
		return string(raw)
	}
	return v
}

// plainFields reports whether every key of doc is a field equality
func plainFields(doc expression.D) bool {
	for _, e := range doc {
		switch strings.ToLower(e.Key) {
		case "and", "or", "__op", "<", ">", "<=", ">=", "=", "==", "!=":
			return false
		}
	}
	return true
}

func failed(err error) <-chan StoreResult {
	return done(StoreResult{Error: err})
}

func done(result StoreResult) <-chan StoreResult {
	out := make(chan StoreResult, 1)
	out <- result
	close(out)
	return out
}
