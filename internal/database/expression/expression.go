// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package expression parses filter descriptions into a boolean expression
// tree and renders the tree as SQL text. Driver adapters walk the tree through
// Operator and Operands instead of the SQL form.
package expression

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Operator represents a logical or comparison operator
type Operator string

const (
	And            Operator = "and"
	Or             Operator = "or"
	Less           Operator = "<"
	Greater        Operator = ">"
	LessOrEqual    Operator = "<="
	GreaterOrEqual Operator = ">="
	Equal          Operator = "="
	NotEqual       Operator = "!="
)

// Placeholder is the bind variable of the bound SQL form. Drivers rebind it
// to their own syntax.
const Placeholder = "?"

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

// IsIdentifier reports whether name is safe to write as a column or table name
func IsIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

// ValueFunc renders one comparison value as SQL text
type ValueFunc func(value interface{}) string

// legacyFieldPrefix is the path form older update descriptions used for model fields
const legacyFieldPrefix = "config.fields."

// IsComposite reports whether the operator joins child expressions
func (o Operator) IsComposite() bool {
	return o == And || o == Or
}

// IsComparison reports whether the operator compares a field to a value
func (o Operator) IsComparison() bool {
	switch o {
	case Less, Greater, LessOrEqual, GreaterOrEqual, Equal, NotEqual:
		return true
	}
	return false
}

// Expression is a node of the filter tree. The only implementations are
// Comparison, AndExpr and OrExpr.
type Expression interface {
	Operator() Operator
	// Operands returns [field, value] for comparisons and the children for composites
	Operands() []interface{}
	IsComposite() bool
	String() string
	// Render writes the SQL form, each value through value
	Render(value ValueFunc) string

	expressionNode()
}

// Comparison is a leaf expression: Field Op Value
type Comparison struct {
	Field string
	Op    Operator
	Value interface{}
}

func (c Comparison) Operator() Operator { return c.Op }

func (c Comparison) Operands() []interface{} { return []interface{}{c.Field, c.Value} }

func (c Comparison) IsComposite() bool { return false }

func (c Comparison) String() string { return c.Render(Literal) }

func (c Comparison) Render(value ValueFunc) string {
	return ColumnName(c.Field) + " " + string(c.Op) + " " + value(c.Value)
}

func (Comparison) expressionNode() {}

// AndExpr joins its children with AND
type AndExpr []Expression

func (a AndExpr) Operator() Operator { return And }

func (a AndExpr) Operands() []interface{} { return operands(a) }

func (a AndExpr) IsComposite() bool { return true }

func (a AndExpr) String() string { return a.Render(Literal) }

func (a AndExpr) Render(value ValueFunc) string { return join(a, And, value) }

func (AndExpr) expressionNode() {}

// OrExpr joins its children with OR
type OrExpr []Expression

func (o OrExpr) Operator() Operator { return Or }

func (o OrExpr) Operands() []interface{} { return operands(o) }

func (o OrExpr) IsComposite() bool { return true }

func (o OrExpr) String() string { return o.Render(Literal) }

func (o OrExpr) Render(value ValueFunc) string { return join(o, Or, value) }

func (OrExpr) expressionNode() {}

// Children returns the child expressions of a composite, nil for a comparison
func Children(e Expression) []Expression {
	switch v := e.(type) {
	case AndExpr:
		return v
	case OrExpr:
		return v
	}
	return nil
}

func operands(children []Expression) []interface{} {
	out := make([]interface{}, len(children))
	for i, c := range children {
		out[i] = c
	}
	return out
}

func join(children []Expression, op Operator, value ValueFunc) string {
	parts := make([]string, len(children))
	for i, c := range children {
		parts[i] = c.Render(value)
	}
	return "(" + strings.Join(parts, " "+strings.ToUpper(string(op))+" ") + ")"
}

// ColumnName strips the legacy model path prefix from a field name
func ColumnName(field string) string {
	return strings.TrimPrefix(field, legacyFieldPrefix)
}

// Literal renders a value as SQL text. Strings are single quoted,
// numbers and booleans are written as is.
func Literal(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return "NULL"
	case string:
		return quote(v)
	case []byte:
		return quote(string(v))
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int8:
		return strconv.FormatInt(int64(v), 10)
	case int16:
		return strconv.FormatInt(int64(v), 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint:
		return strconv.FormatUint(uint64(v), 10)
	case uint8:
		return strconv.FormatUint(uint64(v), 10)
	case uint16:
		return strconv.FormatUint(uint64(v), 10)
	case uint32:
		return strconv.FormatUint(uint64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return quote(fmt.Sprint(v))
	}
}

// BindValue converts a comparison value to a driver argument. Scalars pass
// through, anything else is bound as its text form.
func BindValue(value interface{}) interface{} {
	switch v := value.(type) {
	case nil, string, []byte, bool, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, float32, float64:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
