// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package mongodb

import (
	"strings"

	"github.com/qolzam/dbkit/internal/database/expression"
	"github.com/qolzam/dbkit/internal/database/interfaces"
	"github.com/qolzam/dbkit/internal/database/query"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const objectIDField = "_id"

var operators = map[expression.Operator]string{
	expression.Less:           "$lt",
	expression.Greater:        "$gt",
	expression.LessOrEqual:    "$lte",
	expression.GreaterOrEqual: "$gte",
	expression.Equal:          "$eq",
	expression.NotEqual:       "$ne",
	expression.And:            "$and",
	expression.Or:             "$or",
}

// Query adapts a parsed query to MongoDB filter, options and update documents
type Query struct {
	*query.Query
	options interfaces.WriteOptions
}

// UpdateQuery is the Mongo form of an update: the filter, the update
// document and the write clause it was built with.
type UpdateQuery struct {
	Filter bson.M
	Update bson.M
	Clause interfaces.WriteOptions
}

// IsOperatorUpdate reports whether Update is a $set document rather than a replacement
func (u *UpdateQuery) IsOperatorUpdate() bool {
	_, ok := u.Update["$set"]
	return ok
}

// NewQuery validates the inputs the same way query.New does
func NewQuery(collection string, spec *interfaces.Select, filter interface{}, clauses []interfaces.Clause, opts *interfaces.WriteOptions) (*Query, error) {
	q, err := query.New(collection, spec, filter, clauses)
	if err != nil {
		return nil, err
	}
	mq := &Query{Query: q}
	if opts != nil {
		mq.options = *opts
	}
	return mq, nil
}

// ToSelect translates the filter into a Mongo filter document
func (q *Query) ToSelect() (bson.M, error) {
	filter := q.Filter()
	if filter == nil {
		return bson.M{}, nil
	}
	return filterDocument(filter.Expressions()), nil
}

// FindOptions translates the field list and clauses into find options
func (q *Query) FindOptions() *options.FindOptions {
	opts := options.Find()

	if spec := q.Spec(); !spec.AllFields() && len(spec.Fields) > 0 {
		projection := bson.D{}
		for _, f := range spec.Fields {
			projection = append(projection, bson.E{Key: expression.ColumnName(f), Value: 1})
		}
		opts.SetProjection(projection)
	}

	sort := bson.D{}
	var limit *int64
	for _, c := range q.Clauses() {
		for _, s := range c.Sort {
			dir := 1
			if strings.EqualFold(s.Order, "desc") {
				dir = -1
			}
			sort = append(sort, bson.E{Key: s.Field, Value: dir})
		}
		if c.Limit != nil {
			limit = c.Limit
		}
	}
	if len(sort) > 0 {
		opts.SetSort(sort)
	}
	if limit != nil {
		opts.SetLimit(*limit)
	}
	return opts
}

// ToUpdate builds the update document from the Set description. The flat
// document is wrapped in $set only when the write clause asks for multi or upsert.
func (q *Query) ToUpdate() (*UpdateQuery, error) {
	spec := q.Spec()
	if spec == nil || spec.Set == nil {
		return nil, interfaces.ValidationError(query.ErrInvalidUpdate, "update needs a set description")
	}
	set, err := expression.Parse(spec.Set)
	if err != nil {
		return nil, err
	}

	update := bson.M{}
	for _, e := range set.Expressions() {
		c, ok := e.(expression.Comparison)
		if !ok || c.Op != expression.Equal {
			return nil, interfaces.ValidationError(query.ErrInvalidUpdate, "set entries must be equalities, got %s", e.String())
		}
		update[expression.ColumnName(c.Field)] = bsonValue(c.Value)
	}

	filter, err := q.ToSelect()
	if err != nil {
		return nil, err
	}
	if q.options.Multi || q.options.Upsert {
		update = bson.M{"$set": update}
	}
	return &UpdateQuery{Filter: filter, Update: update, Clause: q.options}, nil
}

func filterDocument(list []expression.Expression) bson.M {
	if len(list) == 1 {
		return toDocument(list[0])
	}

	if list[0].IsComposite() {
		docs := bson.A{}
		for _, e := range list {
			docs = append(docs, toDocument(e))
		}
		return bson.M{operators[expression.And]: docs}
	}

	merged := bson.M{}
	docs := bson.A{}
	repeated := false
	for _, e := range list {
		doc := toDocument(e)
		for k, v := range doc {
			if _, ok := merged[k]; ok {
				repeated = true
			}
			merged[k] = v
		}
		docs = append(docs, doc)
	}
	if repeated {
		return bson.M{operators[expression.And]: docs}
	}
	return merged
}

func toDocument(e expression.Expression) bson.M {
	if c, ok := e.(expression.Comparison); ok {
		field := expression.ColumnName(c.Field)
		value := bsonValue(c.Value)
		if field == objectIDField {
			value = toObjectID(value)
		}
		return bson.M{field: bson.M{operators[c.Op]: value}}
	}

	docs := bson.A{}
	for _, child := range expression.Children(e) {
		docs = append(docs, toDocument(child))
	}
	return bson.M{operators[e.Operator()]: docs}
}

// bsonValue converts ordered documents decoded from JSON into their bson form
func bsonValue(v interface{}) interface{} {
	switch t := v.(type) {
	case expression.D:
		d := make(bson.D, len(t))
		for i, e := range t {
			d[i] = bson.E{Key: e.Key, Value: bsonValue(e.Value)}
		}
		return d
	case []interface{}:
		a := make(bson.A, len(t))
		for i, item := range t {
			a[i] = bsonValue(item)
		}
		return a
	}
	return v
}

// toObjectID converts a hex string id to an ObjectID, other values pass through
func toObjectID(v interface{}) interface{} {
	s, ok := v.(string)
	if !ok {
		return v
	}
	oid, err := primitive.ObjectIDFromHex(s)
	if err != nil {
		return v
	}
	return oid
}
