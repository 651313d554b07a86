// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package query builds SQL statement text from a collection, a select spec,
// a filter description and a list of clauses.
package query

import (
	"errors"
	"strconv"
	"strings"

	"github.com/qolzam/dbkit/internal/database/expression"
	"github.com/qolzam/dbkit/internal/database/interfaces"
)

// Builder errors, always wrapped in an interfaces.ValidationError
var (
	ErrCriteriaDelete = errors.New("delete needs a single identifier equality filter")
	ErrInvalidSelect  = errors.New("invalid select config")
	ErrInvalidUpdate  = errors.New("invalid update config")
	ErrInvalidInsert  = errors.New("invalid insert config")
	ErrInvalidClause  = errors.New("invalid clause")

	ErrInvalidIdentifier = errors.New("invalid identifier")
)

// Dialect selects how clauses are rendered
type Dialect int

const (
	// Generic renders sort as "ORDER BY a asc; THEN BY b desc;" and limit as "limit N;"
	Generic Dialect = iota
	// ANSI renders "ORDER BY a ASC, b DESC LIMIT N"
	ANSI
)

// Option configures a Query
type Option func(*Query)

// WithDialect sets the clause dialect
func WithDialect(d Dialect) Option {
	return func(q *Query) {
		q.dialect = d
	}
}

// Query is an immutable statement description
type Query struct {
	collection string
	spec       *interfaces.Select
	filter     *expression.QueryExpression
	clauses    []interfaces.Clause
	dialect    Dialect
}

// New validates the inputs and creates a Query. The filter, when given, is parsed here.
// Collection, selected field and sort field names must be plain identifiers.
func New(collection string, spec *interfaces.Select, filter interface{}, clauses []interfaces.Clause, opts ...Option) (*Query, error) {
	if strings.TrimSpace(collection) == "" {
		return nil, interfaces.ValidationError(nil, "collection name is required")
	}
	if !expression.IsIdentifier(collection) {
		return nil, interfaces.ValidationError(ErrInvalidIdentifier, "collection %q", collection)
	}
	if spec != nil && !spec.AllFields() {
		for _, f := range spec.Fields {
			if !expression.IsIdentifier(f) {
				return nil, interfaces.ValidationError(ErrInvalidIdentifier, "field %q", f)
			}
		}
	}
	for _, c := range clauses {
		for _, s := range c.Sort {
			if strings.TrimSpace(s.Field) != "" && !expression.IsIdentifier(s.Field) {
				return nil, interfaces.ValidationError(ErrInvalidIdentifier, "sort field %q", s.Field)
			}
		}
	}

	q := &Query{
		collection: collection,
		spec:       spec,
		clauses:    clauses,
	}
	if filter != nil {
		parsed, err := expression.Parse(filter)
		if err != nil {
			return nil, err
		}
		q.filter = parsed
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

// NewDelete creates an identifier based delete query
func NewDelete(collection, idField string, id interface{}, opts ...Option) (*Query, error) {
	return New(collection, nil, expression.D{{Key: idField, Value: id}}, nil, opts...)
}

// Collection returns the target collection or table
func (q *Query) Collection() string { return q.collection }

// Spec returns the select spec, possibly nil
func (q *Query) Spec() *interfaces.Select { return q.spec }

// Filter returns the parsed filter, nil when none was given
func (q *Query) Filter() *expression.QueryExpression { return q.filter }

// Clauses returns the query clauses
func (q *Query) Clauses() []interfaces.Clause { return q.clauses }

// renderer writes comparison values either as SQL literals or as
// placeholders collecting the bound arguments.
type renderer struct {
	bind bool
	args []interface{}
}

func (r *renderer) value(v interface{}) string {
	if !r.bind {
		return expression.Literal(v)
	}
	r.args = append(r.args, expression.BindValue(v))
	return expression.Placeholder
}

func bound(render func(*renderer) (string, error)) (string, []interface{}, error) {
	r := &renderer{bind: true}
	stmt, err := render(r)
	if err != nil {
		return "", nil, err
	}
	return stmt, r.args, nil
}

// ToSelect renders a SELECT statement with inline literals
func (q *Query) ToSelect() (string, error) {
	return q.selectStatement(&renderer{})
}

// BindSelect renders a SELECT statement with "?" placeholders and their arguments
func (q *Query) BindSelect() (string, []interface{}, error) {
	return bound(q.selectStatement)
}

func (q *Query) selectStatement(r *renderer) (string, error) {
	cols, err := q.columns()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(cols)
	b.WriteString(" FROM ")
	b.WriteString(q.collection)

	if q.filter != nil {
		where := q.filter.Render(r.value)
		b.WriteString(" WHERE ")
		if q.filter.IsComposite() {
			b.WriteString(where)
		} else {
			b.WriteString("(" + where + ")")
		}
	}

	clauses, err := q.renderClauses()
	if err != nil {
		return "", err
	}
	b.WriteString(clauses)
	return b.String(), nil
}

// ToUpdate renders an UPDATE statement from the spec's Set description
func (q *Query) ToUpdate() (string, error) {
	return q.updateStatement(&renderer{})
}

// BindUpdate is ToUpdate with placeholders and arguments
func (q *Query) BindUpdate() (string, []interface{}, error) {
	return bound(q.updateStatement)
}

func (q *Query) updateStatement(r *renderer) (string, error) {
	if q.spec == nil || q.spec.Set == nil {
		return "", interfaces.ValidationError(ErrInvalidUpdate, "update needs a set description")
	}
	set, err := expression.Parse(q.spec.Set)
	if err != nil {
		return "", err
	}

	assignments := make([]string, 0, set.Len())
	for _, e := range set.Expressions() {
		c, ok := e.(expression.Comparison)
		if !ok || c.Op != expression.Equal {
			return "", interfaces.ValidationError(ErrInvalidUpdate, "set entries must be equalities, got %s", e.String())
		}
		assignments = append(assignments, c.Render(r.value))
	}

	s := "UPDATE " + q.collection + " SET " + strings.Join(assignments, ", ")
	if q.filter != nil {
		s += " WHERE " + q.filter.Render(r.value)
	}
	return s, nil
}

// ToInsert renders an INSERT statement from the spec's Fields and Values
func (q *Query) ToInsert() (string, error) {
	return q.insertStatement(&renderer{})
}

// BindInsert is ToInsert with placeholders and arguments
func (q *Query) BindInsert() (string, []interface{}, error) {
	return bound(q.insertStatement)
}

func (q *Query) insertStatement(r *renderer) (string, error) {
	if q.spec == nil || len(q.spec.Fields) == 0 || len(q.spec.Fields) != len(q.spec.Values) {
		return "", interfaces.ValidationError(ErrInvalidInsert, "insert needs matching fields and values")
	}

	fields := make([]string, len(q.spec.Fields))
	values := make([]string, len(q.spec.Values))
	for i, f := range q.spec.Fields {
		fields[i] = expression.ColumnName(f)
		values[i] = r.value(q.spec.Values[i])
	}
	return "INSERT INTO " + q.collection + " (" + strings.Join(fields, ",") + ") VALUES (" + strings.Join(values, ",") + ")", nil
}

// ToDelete renders a DELETE statement. Only a single identifier equality is accepted.
func (q *Query) ToDelete() (string, error) {
	return q.deleteStatement(&renderer{})
}

// BindDelete is ToDelete with a placeholder and its argument
func (q *Query) BindDelete() (string, []interface{}, error) {
	return bound(q.deleteStatement)
}

func (q *Query) deleteStatement(r *renderer) (string, error) {
	if q.filter == nil || q.filter.Len() != 1 {
		return "", interfaces.ValidationError(ErrCriteriaDelete, "delete on %s", q.collection)
	}
	c, ok := q.filter.Expressions()[0].(expression.Comparison)
	if !ok || c.Op != expression.Equal {
		return "", interfaces.ValidationError(ErrCriteriaDelete, "delete on %s", q.collection)
	}
	return "DELETE FROM " + q.collection + " WHERE " + c.Render(r.value), nil
}

func (q *Query) columns() (string, error) {
	if q.spec.AllFields() {
		return "*", nil
	}
	if len(q.spec.Fields) == 0 {
		return "", interfaces.ValidationError(ErrInvalidSelect, "select needs a field list")
	}
	cols := make([]string, len(q.spec.Fields))
	for i, f := range q.spec.Fields {
		cols[i] = expression.ColumnName(f)
	}
	return strings.Join(cols, ","), nil
}

func (q *Query) renderClauses() (string, error) {
	for _, c := range q.clauses {
		for _, s := range c.Sort {
			if strings.TrimSpace(s.Field) == "" {
				return "", interfaces.ValidationError(ErrInvalidClause, "sort field is empty")
			}
			if _, err := NormalizeOrder(s.Order); err != nil {
				return "", err
			}
		}
		if c.Limit != nil && *c.Limit < 0 {
			return "", interfaces.ValidationError(ErrInvalidClause, "negative limit %d", *c.Limit)
		}
	}
	if q.dialect == ANSI {
		return q.ansiClauses(), nil
	}
	return q.genericClauses(), nil
}

// genericClauses writes every sort before the limit, whatever the clause order
func (q *Query) genericClauses() string {
	var b strings.Builder
	var limit *int64
	sorted := false
	for _, c := range q.clauses {
		for _, s := range c.Sort {
			order, _ := NormalizeOrder(s.Order)
			if !sorted {
				b.WriteString(" ORDER BY ")
				sorted = true
			} else {
				b.WriteString(" THEN BY ")
			}
			b.WriteString(s.Field + " " + order + ";")
		}
		if c.Limit != nil {
			limit = c.Limit
		}
	}
	if limit != nil {
		b.WriteString(" limit " + strconv.FormatInt(*limit, 10) + ";")
	}
	return b.String()
}

func (q *Query) ansiClauses() string {
	var sorts []string
	var limit *int64
	for _, c := range q.clauses {
		for _, s := range c.Sort {
			order, _ := NormalizeOrder(s.Order)
			sorts = append(sorts, s.Field+" "+strings.ToUpper(order))
		}
		if c.Limit != nil {
			limit = c.Limit
		}
	}

	var b strings.Builder
	if len(sorts) > 0 {
		b.WriteString(" ORDER BY " + strings.Join(sorts, ", "))
	}
	if limit != nil {
		b.WriteString(" LIMIT " + strconv.FormatInt(*limit, 10))
	}
	return b.String()
}

// NormalizeOrder lowercases a sort order, defaulting to asc
func NormalizeOrder(order string) (string, error) {
	switch o := strings.ToLower(strings.TrimSpace(order)); o {
	case "":
		return "asc", nil
	case "asc", "desc":
		return o, nil
	default:
		return "", interfaces.ValidationError(ErrInvalidClause, "unknown sort order %q", order)
	}
}
