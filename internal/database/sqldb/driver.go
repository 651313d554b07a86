// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package sqldb implements the relational driver hooks over sqlx. Engine
// specifics (connection string, id retrieval, connection setup) come from a Dialect.
package sqldb

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/qolzam/dbkit/internal/database/interfaces"
	"github.com/qolzam/dbkit/internal/database/query"
	"github.com/qolzam/dbkit/internal/pkg/log"
)

const pingTimeout = 2 * time.Second

// Dialect describes one relational engine
type Dialect struct {
	// Type is the database type the dialect serves, e.g. "mysql"
	Type string
	// DriverName is the database/sql driver name
	DriverName string
	// DSN builds the connection string
	DSN func(cfg *interfaces.DatabaseConfig) (string, error)
	// InsertReturning appends RETURNING <id> to inserts instead of using LastInsertId
	InsertReturning bool
	// Setup runs on the opened pool before the first ping
	Setup func(ctx context.Context, db *sqlx.DB, cfg *interfaces.DatabaseConfig) error
}

// TaskRunner runs a hook body. The default runs it on the calling goroutine.
type TaskRunner interface {
	Do(ctx context.Context, fn func() error) error
}

type directRunner struct{}

func (directRunner) Do(_ context.Context, fn func() error) error { return fn() }

// Option configures a Driver
type Option func(*Driver)

// WithTaskRunner routes every hook through r
func WithTaskRunner(r TaskRunner) Option {
	return func(d *Driver) {
		d.runner = r
	}
}

// Driver implements the database hooks for SQL engines
type Driver struct {
	dialect Dialect
	runner  TaskRunner

	mu     sync.Mutex
	config *interfaces.DatabaseConfig
	dsn    string
	db     *sqlx.DB
	tx     *sqlx.Tx
}

var (
	_ interfaces.Driver            = (*Driver)(nil)
	_ interfaces.TableManager      = (*Driver)(nil)
	_ interfaces.StatementExecutor = (*Driver)(nil)
	_ interfaces.ConnectionChecker = (*Driver)(nil)
	_ interfaces.Transactional     = (*Driver)(nil)
)

// NewDriver creates a relational driver for the dialect
func NewDriver(dialect Dialect, opts ...Option) *Driver {
	d := &Driver{dialect: dialect, runner: directRunner{}}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SetTaskRunner replaces the hook runner. Must not be called while hooks are running.
func (d *Driver) SetTaskRunner(r TaskRunner) {
	d.runner = r
}

// Dialect returns the driver dialect
func (d *Driver) Dialect() Dialect {
	return d.dialect
}

// DB returns the underlying *sqlx.DB connection, nil when closed
func (d *Driver) DB() *sqlx.DB {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.db
}

func (d *Driver) do(ctx context.Context, fn func() error) error {
	return d.runner.Do(ctx, func() error {
		d.mu.Lock()
		defer d.mu.Unlock()
		return fn()
	})
}

// InitInternal validates the configuration and builds the connection string
func (d *Driver) InitInternal(ctx context.Context, cfg *interfaces.DatabaseConfig) error {
	return d.do(ctx, func() error {
		if cfg.Name == "" {
			return interfaces.ConfigurationError("%s database name is required", d.dialect.Type)
		}
		dsn, err := d.dialect.DSN(cfg)
		if err != nil {
			return err
		}
		d.config = cfg
		d.dsn = dsn
		return nil
	})
}

// OpenInternal connects, applies pool settings and pings
func (d *Driver) OpenInternal(ctx context.Context) (interface{}, error) {
	var handle *sqlx.DB
	err := d.do(ctx, func() error {
		if d.config == nil {
			return interfaces.ConfigurationError("%s driver is not initialized", d.dialect.Type)
		}

		db, err := sqlx.Open(d.dialect.DriverName, d.dsn)
		if err != nil {
			return fmt.Errorf("failed to connect to %s: %w", d.dialect.Type, err)
		}

		if sc := d.config.SQLConfig; sc != nil {
			if sc.MaxOpenConnections > 0 {
				db.SetMaxOpenConns(sc.MaxOpenConnections)
			}
			if sc.MaxIdleConnections > 0 {
				db.SetMaxIdleConns(sc.MaxIdleConnections)
			}
			if sc.MaxLifetime > 0 {
				db.SetConnMaxLifetime(time.Duration(sc.MaxLifetime) * time.Second)
			}
		}

		if d.dialect.Setup != nil {
			if err := d.dialect.Setup(ctx, db, d.config); err != nil {
				db.Close()
				return err
			}
		}

		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return fmt.Errorf("failed to ping %s: %w", d.dialect.Type, err)
		}
		d.db = db
		handle = db
		return nil
	})
	if err != nil {
		return nil, err
	}
	return handle, nil
}

// CloseInternal rolls back an open transaction and closes the pool
func (d *Driver) CloseInternal(ctx context.Context) error {
	return d.do(ctx, func() error {
		return d.closeLocked()
	})
}

func (d *Driver) closeLocked() error {
	if d.tx != nil {
		if err := d.tx.Rollback(); err != nil {
			log.Warn("%s rollback on close: %s", d.dialect.Type, err.Error())
		}
		d.tx = nil
	}
	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	return err
}

// DisposeInternal closes the pool and forgets the configuration
func (d *Driver) DisposeInternal(ctx context.Context) error {
	return d.do(ctx, func() error {
		err := d.closeLocked()
		d.config = nil
		d.dsn = ""
		return err
	})
}

// IsConnected pings the database with a short timeout
func (d *Driver) IsConnected() bool {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	err := d.do(ctx, func() error {
		if d.db == nil {
			return interfaces.StateError("%s is not open", d.dialect.Type)
		}
		return d.db.PingContext(ctx)
	})
	return err == nil
}

// ext returns the running transaction or the pool
func (d *Driver) ext() (sqlx.ExtContext, error) {
	if d.tx != nil {
		return d.tx, nil
	}
	if d.db == nil {
		return nil, interfaces.StateError("%s is not open", d.dialect.Type)
	}
	return d.db, nil
}

func (d *Driver) newQuery(collection string, spec *interfaces.Select, filter interface{}, clauses []interfaces.Clause) (*query.Query, error) {
	return query.New(collection, spec, filter, clauses, query.WithDialect(query.ANSI))
}

// InsertInternal inserts the record and assigns the generated id when it had none
func (d *Driver) InsertInternal(ctx context.Context, rec interfaces.Record) (interface{}, error) {
	var id interface{}
	err := d.do(ctx, func() error {
		ext, err := d.ext()
		if err != nil {
			return err
		}

		idField := rec.IDField()
		hasID := !isEmptyID(rec.ID())
		spec := &interfaces.Select{}
		for _, f := range rec.Fields() {
			if f == idField {
				continue
			}
			spec.Fields = append(spec.Fields, f)
			spec.Values = append(spec.Values, rec.Get(f))
		}
		if hasID {
			spec.Fields = append(spec.Fields, idField)
			spec.Values = append(spec.Values, rec.ID())
		}

		q, err := d.newQuery(rec.ModelName(), spec, nil, nil)
		if err != nil {
			return err
		}
		stmt, args, err := q.BindInsert()
		if err != nil {
			return err
		}

		if d.dialect.InsertReturning {
			stmt += " RETURNING " + idField
			if err := ext.QueryRowxContext(ctx, ext.Rebind(stmt), args...).Scan(&id); err != nil {
				log.Error("%s Insert error: %s", d.dialect.Type, err.Error())
				return err
			}
		} else {
			res, err := ext.ExecContext(ctx, ext.Rebind(stmt), args...)
			if err != nil {
				log.Error("%s Insert error: %s", d.dialect.Type, err.Error())
				return err
			}
			if hasID {
				id = rec.ID()
			} else if id, err = res.LastInsertId(); err != nil {
				return err
			}
		}
		id = normalize(id)
		rec.SetID(id)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return id, nil
}

// DeleteInternal deletes the record by identifier
func (d *Driver) DeleteInternal(ctx context.Context, rec interfaces.Record) (int64, error) {
	var affected int64
	err := d.do(ctx, func() error {
		ext, err := d.ext()
		if err != nil {
			return err
		}
		if isEmptyID(rec.ID()) {
			return interfaces.ValidationError(query.ErrCriteriaDelete, "delete on %s needs an id", rec.ModelName())
		}
		q, err := query.NewDelete(rec.ModelName(), rec.IDField(), rec.ID(), query.WithDialect(query.ANSI))
		if err != nil {
			return err
		}
		stmt, args, err := q.BindDelete()
		if err != nil {
			return err
		}
		affected, err = exec(ctx, ext, stmt, args)
		if err != nil {
			log.Error("%s Delete error: %s", d.dialect.Type, err.Error())
		}
		return err
	})
	return affected, err
}

// UpdateInternal renders the update from the request's set description
func (d *Driver) UpdateInternal(ctx context.Context, req *interfaces.UpdateRequest) (int64, error) {
	var affected int64
	err := d.do(ctx, func() error {
		ext, err := d.ext()
		if err != nil {
			return err
		}
		collection := req.Collection
		if collection == "" && req.Criteria != nil {
			collection = req.Criteria.Collection
		}
		q, err := d.newQuery(collection, &interfaces.Select{Set: req.SetDescription()}, req.Filter(), req.Clauses())
		if err != nil {
			return err
		}
		stmt, args, err := q.BindUpdate()
		if err != nil {
			return err
		}
		affected, err = exec(ctx, ext, stmt, args)
		if err != nil {
			log.Error("%s Update error: %s", d.dialect.Type, err.Error())
		}
		return err
	})
	return affected, err
}

// FindInternal runs the select and scans every row into a map
func (d *Driver) FindInternal(ctx context.Context, req *interfaces.FindRequest) ([]interfaces.Row, error) {
	var out []interfaces.Row
	err := d.do(ctx, func() error {
		ext, err := d.ext()
		if err != nil {
			return err
		}
		crit := req.Criteria()
		collection := req.Model
		if collection == "" {
			collection = crit.Collection
		}
		q, err := d.newQuery(collection, crit.Select, crit.Filter, crit.Clauses)
		if err != nil {
			return err
		}
		stmt, args, err := q.BindSelect()
		if err != nil {
			return err
		}

		rows, err := ext.QueryxContext(ctx, ext.Rebind(stmt), args...)
		if err != nil {
			log.Error("%s Find error: %s", d.dialect.Type, err.Error())
			return err
		}
		defer rows.Close()

		out = []interfaces.Row{}
		for rows.Next() {
			m := map[string]interface{}{}
			if err := rows.MapScan(m); err != nil {
				return err
			}
			row := make(interfaces.Row, len(m))
			for k, v := range m {
				row[k] = normalize(v)
			}
			out = append(out, row)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CreateTableInternal runs the table DDL
func (d *Driver) CreateTableInternal(ctx context.Context, spec *interfaces.TableSpec) error {
	if spec.Statement == "" {
		return interfaces.ValidationError(nil, "no schema statement for table %s", spec.Name)
	}
	return d.ExecuteStatement(ctx, spec.Statement)
}

// DropTableInternal drops the table if it exists
func (d *Driver) DropTableInternal(ctx context.Context, spec *interfaces.TableSpec) error {
	if spec.Name == "" {
		return interfaces.ValidationError(nil, "table name is required")
	}
	return d.ExecuteStatement(ctx, "DROP TABLE IF EXISTS "+spec.Name)
}

// ExecuteStatement runs a raw statement, inside the open transaction if any
func (d *Driver) ExecuteStatement(ctx context.Context, statement string) error {
	return d.do(ctx, func() error {
		ext, err := d.ext()
		if err != nil {
			return err
		}
		_, err = ext.ExecContext(ctx, statement)
		return err
	})
}

// BeginTransactionInternal opens a transaction unless one is running
func (d *Driver) BeginTransactionInternal(ctx context.Context) error {
	return d.do(ctx, func() error {
		if d.tx != nil {
			return nil
		}
		if d.db == nil {
			return interfaces.StateError("%s is not open", d.dialect.Type)
		}
		tx, err := d.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		d.tx = tx
		return nil
	})
}

// EndTransactionInternal keeps a pending transaction for Commit and rolls
// back one without writes.
func (d *Driver) EndTransactionInternal(ctx context.Context, pending bool) error {
	return d.do(ctx, func() error {
		if pending || d.tx == nil {
			return nil
		}
		err := d.tx.Rollback()
		d.tx = nil
		return err
	})
}

// CommitInternal commits the running transaction
func (d *Driver) CommitInternal(ctx context.Context) error {
	return d.do(ctx, func() error {
		if d.tx == nil {
			return nil
		}
		err := d.tx.Commit()
		d.tx = nil
		return err
	})
}

// exec rebinds the "?" placeholders to the driver's bind type and runs stmt
func exec(ctx context.Context, ext sqlx.ExtContext, stmt string, args []interface{}) (int64, error) {
	res, err := ext.ExecContext(ctx, ext.Rebind(stmt), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func isEmptyID(id interface{}) bool {
	if id == nil {
		return true
	}
	s, ok := id.(string)
	return ok && s == ""
}

// normalize converts driver byte slices to strings
func normalize(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
