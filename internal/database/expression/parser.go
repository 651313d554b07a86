// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package expression

import (
	"errors"
	"strings"

	"github.com/qolzam/dbkit/internal/database/interfaces"
)

// Parse errors. Parse wraps them in an interfaces.ValidationError so both
// errors.Is(err, ErrMixedExpressions) and errors.Is(err, interfaces.ErrValidation) hold.
var (
	ErrEmptyExpression  = errors.New("expression is empty")
	ErrMixedExpressions = errors.New("expression mixes simple and composite entries at the top level")
	ErrInvalidShape     = errors.New("expression has an invalid shape")
	ErrUnknownOperator  = errors.New("unknown operator")
	ErrSingleOperand    = errors.New("composite expression needs at least two operands")
	ErrInvalidField     = errors.New("invalid field name")
)

const explicitOperatorKey = "__op"

const (
	maskSimple    = 1
	maskComposite = 2
)

// QueryExpression is a parsed filter or update description: an ordered list
// of top-level entries implicitly joined with AND.
type QueryExpression struct {
	description interface{}
	expressions []Expression
}

// Parse turns a filter description into a QueryExpression.
//
// Accepted descriptions are an object (map or D), an array of objects, or a
// JSON text (string or []byte). Within an object:
//
//	{"and": [...]} / {"or": [...]}     composite, at least two operands
//	{"<": {"f": v}}                    comparison with a symbol key
//	{"__op": "<", "f": v}              comparison with an explicit operator
//	{"f": v}                           equality
//
// Top-level entries must be all comparisons or all composites.
func Parse(description interface{}) (*QueryExpression, error) {
	if description == nil {
		return nil, invalid(ErrEmptyExpression, "nil description")
	}

	var list []Expression
	var err error
	switch t := description.(type) {
	case string:
		return ParseJSON([]byte(t))
	case []byte:
		return ParseJSON(t)
	default:
		list, err = parseAny(description)
	}
	if err != nil {
		return nil, err
	}
	if err := validate(list); err != nil {
		return nil, err
	}
	return &QueryExpression{description: description, expressions: list}, nil
}

// ParseJSON parses a JSON encoded description, keeping object key order
func ParseJSON(data []byte) (*QueryExpression, error) {
	v, err := DecodeJSON(data)
	if err != nil {
		return nil, invalid(ErrInvalidShape, "decode JSON expression: %v", err)
	}
	if v == nil {
		return nil, invalid(ErrEmptyExpression, "null description")
	}
	return Parse(v)
}

// MustParse is like Parse but panics on error. Intended for static descriptions.
func MustParse(description interface{}) *QueryExpression {
	q, err := Parse(description)
	if err != nil {
		panic(err)
	}
	return q
}

// Expressions returns the top-level entries
func (q *QueryExpression) Expressions() []Expression {
	return q.expressions
}

// Description returns the input the expression was parsed from
func (q *QueryExpression) Description() interface{} {
	return q.description
}

// Len returns the number of top-level entries
func (q *QueryExpression) Len() int {
	return len(q.expressions)
}

// IsComposite reports whether the expression is a single composite entry
func (q *QueryExpression) IsComposite() bool {
	return len(q.expressions) == 1 && q.expressions[0].IsComposite()
}

// String renders the SQL form, top-level entries joined with AND
func (q *QueryExpression) String() string {
	return q.Render(Literal)
}

// Render is String with each value written through value
func (q *QueryExpression) Render(value ValueFunc) string {
	parts := make([]string, len(q.expressions))
	for i, e := range q.expressions {
		parts[i] = e.Render(value)
	}
	return strings.Join(parts, " AND ")
}

func validate(list []Expression) error {
	mask := 0
	for _, e := range list {
		if e.IsComposite() {
			mask |= maskComposite
		} else {
			mask |= maskSimple
		}
	}
	switch mask {
	case 0:
		return invalid(ErrEmptyExpression, "no expression found")
	case maskSimple | maskComposite:
		return invalid(ErrMixedExpressions, "simple and composite expressions cannot be mixed")
	}
	return nil
}

func parseAny(v interface{}) ([]Expression, error) {
	if doc, ok := ToDocument(v); ok {
		return parseObject(doc)
	}
	if items, ok := toList(v); ok {
		var list []Expression
		for _, item := range items {
			doc, ok := ToDocument(item)
			if !ok {
				return nil, invalid(ErrInvalidShape, "array element is %T, not an object", item)
			}
			parsed, err := parseObject(doc)
			if err != nil {
				return nil, err
			}
			list = append(list, parsed...)
		}
		return list, nil
	}
	return nil, invalid(ErrInvalidShape, "description is %T", v)
}

func parseObject(doc D) ([]Expression, error) {
	for _, e := range doc {
		if strings.ToLower(e.Key) == explicitOperatorKey {
			return parseExplicit(doc)
		}
	}

	list := make([]Expression, 0, len(doc))
	for _, e := range doc {
		op := Operator(strings.ToLower(e.Key))
		switch {
		case op.IsComposite():
			children, err := parseAny(e.Value)
			if err != nil {
				return nil, err
			}
			if len(children) < 2 {
				return nil, invalid(ErrSingleOperand, "%s has %d operand(s)", op, len(children))
			}
			if op == And {
				list = append(list, AndExpr(children))
			} else {
				list = append(list, OrExpr(children))
			}
		case op.IsComparison() || op == "==":
			inner, ok := ToDocument(e.Value)
			if !ok || len(inner) != 1 {
				return nil, invalid(ErrInvalidShape, "operator %q needs an object with exactly one field", e.Key)
			}
			if err := checkField(inner[0].Key); err != nil {
				return nil, err
			}
			list = append(list, Comparison{Field: inner[0].Key, Op: normalize(op), Value: inner[0].Value})
		default:
			if err := checkField(e.Key); err != nil {
				return nil, err
			}
			list = append(list, Comparison{Field: e.Key, Op: Equal, Value: e.Value})
		}
	}
	return list, nil
}

func parseExplicit(doc D) ([]Expression, error) {
	if len(doc) != 2 {
		return nil, invalid(ErrInvalidShape, "%s object needs exactly one field besides the operator", explicitOperatorKey)
	}
	var op Operator
	var field E
	for _, e := range doc {
		if strings.ToLower(e.Key) == explicitOperatorKey {
			s, ok := e.Value.(string)
			if !ok {
				return nil, invalid(ErrUnknownOperator, "operator is %T", e.Value)
			}
			op = normalize(Operator(strings.ToLower(strings.TrimSpace(s))))
		} else {
			field = e
		}
	}
	if !op.IsComparison() {
		return nil, invalid(ErrUnknownOperator, "%q", op)
	}
	if field.Key == "" {
		return nil, invalid(ErrInvalidShape, "%s object has no field", explicitOperatorKey)
	}
	if err := checkField(field.Key); err != nil {
		return nil, err
	}
	return []Expression{Comparison{Field: field.Key, Op: op, Value: field.Value}}, nil
}

func checkField(name string) error {
	if !IsIdentifier(name) {
		return invalid(ErrInvalidField, "%q", name)
	}
	return nil
}

func normalize(op Operator) Operator {
	if op == "==" {
		return Equal
	}
	return op
}

func invalid(cause error, format string, a ...interface{}) error {
	return interfaces.ValidationError(cause, format, a...)
}
