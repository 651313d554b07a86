// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package mongodb implements the document store driver and its query adapter.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/qolzam/dbkit/internal/database/expression"
	"github.com/qolzam/dbkit/internal/database/interfaces"
	"github.com/qolzam/dbkit/internal/pkg/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	pingTimeout = 2 * time.Second

	// errCodeNamespaceExists is returned by create on an existing collection
	errCodeNamespaceExists = 48
)

// Driver implements the database hooks for MongoDB. It does not take part
// in transactions.
type Driver struct {
	config   *interfaces.DatabaseConfig
	client   *mongo.Client
	database *mongo.Database
}

var (
	_ interfaces.Driver            = (*Driver)(nil)
	_ interfaces.TableManager      = (*Driver)(nil)
	_ interfaces.StatementExecutor = (*Driver)(nil)
	_ interfaces.ConnectionChecker = (*Driver)(nil)
)

// NewDriver creates a MongoDB driver
func NewDriver() *Driver {
	return &Driver{}
}

// InitInternal builds the client. mongo.Connect does not contact the server.
func (d *Driver) InitInternal(ctx context.Context, cfg *interfaces.DatabaseConfig) error {
	if cfg.Name == "" {
		return interfaces.ConfigurationError("mongodb database name is required")
	}
	d.config = cfg
	return d.connect(ctx)
}

func (d *Driver) connect(ctx context.Context) error {
	client, err := mongo.Connect(ctx, buildClientOptions(d.config))
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	d.client = client
	return nil
}

// OpenInternal pings the server and selects the database
func (d *Driver) OpenInternal(ctx context.Context) (interface{}, error) {
	if d.config == nil {
		return nil, interfaces.ConfigurationError("mongodb driver is not initialized")
	}
	if d.client == nil {
		if err := d.connect(ctx); err != nil {
			return nil, err
		}
	}
	if err := d.client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	d.database = d.client.Database(d.config.Name)
	return d.database, nil
}

// CloseInternal disconnects the client
func (d *Driver) CloseInternal(ctx context.Context) error {
	d.database = nil
	if d.client == nil {
		return nil
	}
	err := d.client.Disconnect(ctx)
	d.client = nil
	return err
}

// DisposeInternal releases the client and forgets the configuration
func (d *Driver) DisposeInternal(ctx context.Context) error {
	err := d.CloseInternal(ctx)
	d.config = nil
	return err
}

// IsConnected pings the server with a short timeout
func (d *Driver) IsConnected() bool {
	if d.client == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	return d.client.Ping(ctx, readpref.Primary()) == nil
}

// InsertInternal stores the model document and assigns its id
func (d *Driver) InsertInternal(ctx context.Context, rec interfaces.Record) (interface{}, error) {
	db, err := d.db()
	if err != nil {
		return nil, err
	}

	doc := bson.M{}
	for k, v := range rec.Document() {
		doc[k] = bsonValue(v)
	}

	var hexID string
	switch id := rec.ID().(type) {
	case nil:
		oid := primitive.NewObjectID()
		doc[objectIDField], hexID = oid, oid.Hex()
	case string:
		if id == "" {
			oid := primitive.NewObjectID()
			doc[objectIDField], hexID = oid, oid.Hex()
		} else {
			doc[objectIDField], hexID = toObjectID(id), id
		}
	default:
		doc[objectIDField], hexID = id, fmt.Sprint(id)
	}
	if rec.IDField() != objectIDField {
		doc[rec.IDField()] = hexID
	}

	if _, err := db.Collection(rec.ModelName()).InsertOne(ctx, doc); err != nil {
		log.Error("MongoDB Insert error: %s", err.Error())
		return nil, err
	}
	rec.SetID(hexID)
	return hexID, nil
}

// DeleteInternal removes the record by identifier
func (d *Driver) DeleteInternal(ctx context.Context, rec interfaces.Record) (int64, error) {
	db, err := d.db()
	if err != nil {
		return 0, err
	}
	if rec.ID() == nil {
		return 0, interfaces.ValidationError(nil, "delete on %s needs an id", rec.ModelName())
	}

	q, err := NewQuery(rec.ModelName(), nil, expression.D{{Key: objectIDField, Value: rec.ID()}}, nil, nil)
	if err != nil {
		return 0, err
	}
	filter, err := q.ToSelect()
	if err != nil {
		return 0, err
	}

	res, err := db.Collection(rec.ModelName()).DeleteOne(ctx, filter)
	if err != nil {
		log.Error("MongoDB Delete error: %s", err.Error())
		return 0, err
	}
	return res.DeletedCount, nil
}

// UpdateInternal runs UpdateMany/UpdateOne for $set documents and ReplaceOne
// for flat documents. A model update replaces with the full model document.
func (d *Driver) UpdateInternal(ctx context.Context, req *interfaces.UpdateRequest) (int64, error) {
	db, err := d.db()
	if err != nil {
		return 0, err
	}

	crit := req.Criteria
	if crit == nil {
		crit = &interfaces.Criteria{}
	}
	collection := req.Collection
	if collection == "" {
		collection = crit.Collection
	}

	q, err := NewQuery(collection, &interfaces.Select{Set: req.SetDescription()}, crit.Filter, crit.Clauses, crit.Options)
	if err != nil {
		return 0, err
	}
	uq, err := q.ToUpdate()
	if err != nil {
		return 0, err
	}

	coll := db.Collection(collection)
	if uq.IsOperatorUpdate() {
		opts := options.Update().SetUpsert(uq.Clause.Upsert)
		var res *mongo.UpdateResult
		if uq.Clause.Multi {
			res, err = coll.UpdateMany(ctx, uq.Filter, uq.Update, opts)
		} else {
			res, err = coll.UpdateOne(ctx, uq.Filter, uq.Update, opts)
		}
		if err != nil {
			log.Error("MongoDB Update error: %s", err.Error())
			return 0, err
		}
		return res.ModifiedCount + res.UpsertedCount, nil
	}

	replacement := uq.Update
	if req.Model != nil {
		replacement = bson.M{}
		for k, v := range req.Model.Document() {
			replacement[k] = bsonValue(v)
		}
	}
	delete(replacement, objectIDField)

	res, err := coll.ReplaceOne(ctx, uq.Filter, replacement)
	if err != nil {
		log.Error("MongoDB Replace error: %s", err.Error())
		return 0, err
	}
	return res.ModifiedCount, nil
}

// FindInternal runs the filter with projection, sort and limit options
func (d *Driver) FindInternal(ctx context.Context, req *interfaces.FindRequest) ([]interfaces.Row, error) {
	db, err := d.db()
	if err != nil {
		return nil, err
	}

	crit := req.Criteria()
	collection := req.Model
	if collection == "" {
		collection = crit.Collection
	}
	q, err := NewQuery(collection, crit.Select, crit.Filter, crit.Clauses, crit.Options)
	if err != nil {
		return nil, err
	}
	filter, err := q.ToSelect()
	if err != nil {
		return nil, err
	}

	cursor, err := db.Collection(collection).Find(ctx, filter, q.FindOptions())
	if err != nil {
		log.Error("MongoDB Find error: %s", err.Error())
		return nil, err
	}
	defer cursor.Close(ctx)

	rows := []interfaces.Row{}
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		rows = append(rows, toRow(doc))
	}
	return rows, cursor.Err()
}

// CreateTableInternal creates the collection, an existing one is not an error
func (d *Driver) CreateTableInternal(ctx context.Context, spec *interfaces.TableSpec) error {
	db, err := d.db()
	if err != nil {
		return err
	}
	err = db.CreateCollection(ctx, spec.Name)
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && cmdErr.Code == errCodeNamespaceExists {
		return nil
	}
	return err
}

// DropTableInternal drops the collection
func (d *Driver) DropTableInternal(ctx context.Context, spec *interfaces.TableSpec) error {
	db, err := d.db()
	if err != nil {
		return err
	}
	return db.Collection(spec.Name).Drop(ctx)
}

// ExecuteStatement runs a database command given as extended JSON
func (d *Driver) ExecuteStatement(ctx context.Context, statement string) error {
	db, err := d.db()
	if err != nil {
		return err
	}
	var cmd bson.D
	if err := bson.UnmarshalExtJSON([]byte(statement), false, &cmd); err != nil {
		return interfaces.ValidationError(err, "invalid command")
	}
	return db.RunCommand(ctx, cmd).Err()
}

func (d *Driver) db() (*mongo.Database, error) {
	if d.database == nil {
		return nil, interfaces.StateError("mongodb database is not open")
	}
	return d.database, nil
}

func toRow(doc bson.M) interfaces.Row {
	row := interfaces.Row{}
	for k, v := range doc {
		if oid, ok := v.(primitive.ObjectID); ok {
			row[k] = oid.Hex()
			continue
		}
		row[k] = v
	}
	return row
}

func buildClientOptions(cfg *interfaces.DatabaseConfig) *options.ClientOptions {
	uri := cfg.URL
	if uri == "" {
		uri = buildConnectionURI(cfg)
	}
	clientOptions := options.Client().ApplyURI(uri)

	mc := cfg.MongoConfig
	if mc == nil {
		return clientOptions
	}
	if mc.MaxPoolSize > 0 {
		clientOptions.SetMaxPoolSize(uint64(mc.MaxPoolSize))
	}
	if mc.MinPoolSize > 0 {
		clientOptions.SetMinPoolSize(uint64(mc.MinPoolSize))
	}
	if mc.ConnectTimeout > 0 {
		clientOptions.SetConnectTimeout(time.Duration(mc.ConnectTimeout) * time.Second)
	}
	if mc.SocketTimeout > 0 {
		clientOptions.SetSocketTimeout(time.Duration(mc.SocketTimeout) * time.Second)
	}
	if mc.MaxIdleTime > 0 {
		clientOptions.SetMaxConnIdleTime(time.Duration(mc.MaxIdleTime) * time.Second)
	}
	if mc.ServerSelectionTimeout > 0 {
		clientOptions.SetServerSelectionTimeout(time.Duration(mc.ServerSelectionTimeout) * time.Second)
	}
	return clientOptions
}

// buildConnectionURI builds MongoDB connection URI from config
func buildConnectionURI(cfg *interfaces.DatabaseConfig) string {
	uri := "mongodb://"
	if cfg.Username != "" && cfg.Password != "" {
		uri += fmt.Sprintf("%s:%s@", cfg.Username, cfg.Password)
	}
	uri += fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	var params []string
	if mc := cfg.MongoConfig; mc != nil {
		if mc.AuthDatabase != "" {
			params = append(params, "authSource="+mc.AuthDatabase)
		}
		if mc.ReplicaSet != "" {
			params = append(params, "replicaSet="+mc.ReplicaSet)
		}
		if mc.SSL {
			params = append(params, "ssl=true")
		}
	}
	for i, p := range params {
		if i == 0 {
			uri += "/?" + p
		} else {
			uri += "&" + p
		}
	}
	return uri
}
