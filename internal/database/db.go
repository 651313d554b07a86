// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package database holds the driver independent database: the lifecycle
// state machine, CRUD dispatch and the dirty-commit transaction protocol.
package database

import (
	"context"
	"sync"
	"time"

	"github.com/qolzam/dbkit/internal/database/interfaces"
	"github.com/qolzam/dbkit/internal/database/observability"
	"github.com/qolzam/dbkit/internal/database/utils"
	"github.com/qolzam/dbkit/internal/pkg/log"
)

// State is the database lifecycle state
type State int

const (
	StateInvalid State = iota
	StateInit
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "invalid"
	}
}

// TransactionState is the state of the dirty-commit protocol
type TransactionState int

const (
	TxInvalid TransactionState = iota - 1
	TxBegin
	TxEndCommitPending
	TxEnded
	TxCommitInProgress
)

// Option configures a DB
type Option func(*DB)

// WithMetrics records operation and transaction metrics in mc
func WithMetrics(mc *observability.MetricsCollector) Option {
	return func(db *DB) {
		db.metrics = mc
	}
}

// DB wraps a driver with lifecycle checks. Every CRUD call returns a channel
// that receives exactly one result and is then closed.
type DB struct {
	driver  interfaces.Driver
	metrics *observability.MetricsCollector

	mu      sync.RWMutex
	state   State
	txState TransactionState
	dirty   bool
	txID    string
	config  *interfaces.DatabaseConfig
	client  interface{}
}

// New wraps driver in a DB in the invalid state
func New(driver interfaces.Driver, opts ...Option) *DB {
	db := &DB{
		driver:  driver,
		state:   StateInvalid,
		txState: TxInvalid,
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// Init stores the configuration and lets the driver prepare
func (db *DB) Init(ctx context.Context, cfg *interfaces.DatabaseConfig) error {
	if cfg == nil {
		return interfaces.ConfigurationError("database configuration is required")
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if db.state == StateOpen {
		return interfaces.StateError("cannot init an open database")
	}
	if err := db.driver.InitInternal(ctx, cfg); err != nil {
		return err
	}
	db.config = cfg
	db.state = StateInit
	return nil
}

// Open connects and returns the native client handle. Opening an open
// database returns the existing handle.
func (db *DB) Open(ctx context.Context) (interface{}, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.state == StateOpen {
		return db.client, nil
	}
	if db.config == nil {
		return nil, interfaces.ConfigurationError("database is not configured")
	}

	client, err := db.driver.OpenInternal(ctx)
	if err != nil {
		log.ErrorWithContext(ctx, "Open %s database %s failed: %s", db.config.Type, db.config.Name, err.Error())
		return nil, err
	}
	db.client = client
	db.state = StateOpen
	log.InfoWithContext(ctx, "Opened %s database %s", db.config.Type, db.config.Name)
	return client, nil
}

// Close commits a pending transaction and closes the connection
func (db *DB) Close(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.closeLocked(ctx)
}

func (db *DB) closeLocked(ctx context.Context) error {
	if db.state != StateOpen {
		return interfaces.StateError("cannot close a database in state %s", db.state)
	}
	if err := db.commitLocked(ctx); err != nil {
		return err
	}
	if err := db.driver.CloseInternal(ctx); err != nil {
		return err
	}
	db.txState = TxInvalid
	db.dirty = false
	db.client = nil
	db.state = StateClosed
	return nil
}

// Dispose closes an open database and releases the driver
func (db *DB) Dispose(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.state == StateInvalid {
		return interfaces.StateError("database is already disposed")
	}
	if db.state == StateOpen {
		if err := db.closeLocked(ctx); err != nil {
			return err
		}
	}
	if err := db.driver.DisposeInternal(ctx); err != nil {
		return err
	}
	db.state = StateInvalid
	db.config = nil
	return nil
}

// State returns the lifecycle state
func (db *DB) State() State {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.state
}

// TransactionState returns the transaction protocol state
func (db *DB) TransactionState() TransactionState {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.txState
}

// Client returns the native client handle, nil unless open
func (db *DB) Client() interface{} {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.client
}

// Config returns the stored configuration
func (db *DB) Config() *interfaces.DatabaseConfig {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.config
}

// DatabaseType returns the configured database type
func (db *DB) DatabaseType() string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.config == nil {
		return ""
	}
	return db.config.Type
}

// Driver returns the wrapped driver
func (db *DB) Driver() interfaces.Driver {
	return db.driver
}

// IsConnected is false unless open, then asks the driver when it can tell
func (db *DB) IsConnected() bool {
	db.mu.RLock()
	open := db.state == StateOpen
	db.mu.RUnlock()
	if !open {
		return false
	}
	if cc, ok := db.driver.(interfaces.ConnectionChecker); ok {
		return cc.IsConnected()
	}
	return true
}

// Execute dispatches op to the CRUD method of its kind
func (db *DB) Execute(ctx context.Context, op *interfaces.DBOperation) <-chan interfaces.RepositoryResult {
	if op == nil || op.Record == nil {
		return failed(interfaces.ValidationError(nil, "operation and its record are required"))
	}
	opID := op.ID
	if opID == "" {
		opID = utils.GenerateOperationID()
	}
	ctx = log.WithOperationID(ctx, opID)

	switch op.Kind {
	case interfaces.OperationInsert, interfaces.OperationDelete:
		rec, ok := op.Record.(interfaces.Record)
		if !ok {
			return failed(interfaces.ValidationError(nil, "%s needs a record, got %T", op.Kind, op.Record))
		}
		if op.Kind == interfaces.OperationInsert {
			return db.Insert(ctx, rec)
		}
		return db.Delete(ctx, rec)
	case interfaces.OperationRead:
		req, ok := op.Record.(*interfaces.FindRequest)
		if !ok {
			return failed(interfaces.ValidationError(nil, "read needs a find request, got %T", op.Record))
		}
		return db.Find(ctx, req)
	case interfaces.OperationUpdate:
		req, ok := op.Record.(*interfaces.UpdateRequest)
		if !ok {
			return failed(interfaces.ValidationError(nil, "update needs an update request, got %T", op.Record))
		}
		return db.Update(ctx, req)
	case interfaces.OperationCreateTable, interfaces.OperationDropTable:
		spec, ok := op.Record.(*interfaces.TableSpec)
		if !ok {
			return failed(interfaces.ValidationError(nil, "%s needs a table spec, got %T", op.Kind, op.Record))
		}
		if op.Kind == interfaces.OperationCreateTable {
			return db.CreateTable(ctx, spec)
		}
		return db.DropTable(ctx, spec)
	default:
		return failed(interfaces.ValidationError(interfaces.ErrUnsupportedOperation, "operation kind %d", op.Kind))
	}
}

// Insert stores rec. The result is the assigned id.
func (db *DB) Insert(ctx context.Context, rec interfaces.Record) <-chan interfaces.RepositoryResult {
	if rec == nil {
		return failed(interfaces.ValidationError(nil, "insert needs a record"))
	}
	return db.run(ctx, interfaces.OperationInsert, func() (interface{}, error) {
		return db.driver.InsertInternal(ctx, rec)
	})
}

// Delete removes rec by identifier. The result is the affected count.
func (db *DB) Delete(ctx context.Context, rec interfaces.Record) <-chan interfaces.RepositoryResult {
	if rec == nil {
		return failed(interfaces.ValidationError(nil, "delete needs a record"))
	}
	return db.run(ctx, interfaces.OperationDelete, func() (interface{}, error) {
		return db.driver.DeleteInternal(ctx, rec)
	})
}

// Update applies req. The result is the affected count.
func (db *DB) Update(ctx context.Context, req *interfaces.UpdateRequest) <-chan interfaces.RepositoryResult {
	if req == nil {
		return failed(interfaces.ValidationError(nil, "update needs a request"))
	}
	return db.run(ctx, interfaces.OperationUpdate, func() (interface{}, error) {
		return db.driver.UpdateInternal(ctx, req)
	})
}

// Find runs req. The result is a []interfaces.Row.
func (db *DB) Find(ctx context.Context, req *interfaces.FindRequest) <-chan interfaces.RepositoryResult {
	if req == nil {
		return failed(interfaces.ValidationError(nil, "find needs a request"))
	}
	return db.run(ctx, interfaces.OperationRead, func() (interface{}, error) {
		return db.driver.FindInternal(ctx, req)
	})
}

// CreateTable creates the table or collection described by spec
func (db *DB) CreateTable(ctx context.Context, spec *interfaces.TableSpec) <-chan interfaces.RepositoryResult {
	if spec == nil {
		return failed(interfaces.ValidationError(nil, "create table needs a table spec"))
	}
	return db.run(ctx, interfaces.OperationCreateTable, func() (interface{}, error) {
		tm, ok := db.driver.(interfaces.TableManager)
		if !ok {
			return nil, interfaces.NotImplementedError("CreateTableInternal")
		}
		return nil, tm.CreateTableInternal(ctx, spec)
	})
}

// DropTable drops the table or collection described by spec
func (db *DB) DropTable(ctx context.Context, spec *interfaces.TableSpec) <-chan interfaces.RepositoryResult {
	if spec == nil {
		return failed(interfaces.ValidationError(nil, "drop table needs a table spec"))
	}
	return db.run(ctx, interfaces.OperationDropTable, func() (interface{}, error) {
		tm, ok := db.driver.(interfaces.TableManager)
		if !ok {
			return nil, interfaces.NotImplementedError("DropTableInternal")
		}
		return nil, tm.DropTableInternal(ctx, spec)
	})
}

// ExecuteStatement runs a raw statement such as schema DDL
func (db *DB) ExecuteStatement(ctx context.Context, statement string) error {
	if db.State() != StateOpen {
		return interfaces.StateError("cannot execute a statement on a database in state %s", db.State())
	}
	se, ok := db.driver.(interfaces.StatementExecutor)
	if !ok {
		return interfaces.NotImplementedError("ExecuteStatement")
	}
	return se.ExecuteStatement(ctx, statement)
}

func (db *DB) run(ctx context.Context, kind interfaces.OperationKind, fn func() (interface{}, error)) <-chan interfaces.RepositoryResult {
	db.mu.RLock()
	state := db.state
	dbType := ""
	if db.config != nil {
		dbType = db.config.Type
	}
	db.mu.RUnlock()

	if state != StateOpen {
		return failed(interfaces.StateError("cannot %s on a database in state %s", kind, state))
	}

	result := make(chan interfaces.RepositoryResult, 1)
	go func() {
		defer close(result)

		start := time.Now()
		value, err := fn()
		if db.metrics != nil {
			db.metrics.ObserveOperation(dbType, kind.String(), start, err)
		}
		if err != nil {
			log.ErrorWithContext(ctx, "%s %s error: %s", dbType, kind, err.Error())
			result <- interfaces.RepositoryResult{Error: err}
			return
		}
		if kind.IsWrite() {
			db.markDirty()
		}
		result <- interfaces.RepositoryResult{Result: value}
	}()
	return result
}

func (db *DB) markDirty() {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.txState != TxBegin {
		return
	}
	db.dirty = true
	if db.metrics != nil {
		db.metrics.IncrementOperations(db.txID)
	}
}

// BeginTransaction starts the dirty-commit protocol. A no-op for
// non-transactional drivers and when a transaction is already begun.
// A commit pending transaction is resumed with its writes kept, so the
// next EndTransaction leaves it commit pending again.
func (db *DB) BeginTransaction(ctx context.Context) error {
	tr, ok := db.driver.(interfaces.Transactional)
	if !ok {
		return nil
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if db.state != StateOpen {
		return interfaces.StateError("cannot begin a transaction on a database in state %s", db.state)
	}
	if db.txState == TxBegin {
		return nil
	}
	if err := tr.BeginTransactionInternal(ctx); err != nil {
		return err
	}
	if db.txState == TxEndCommitPending {
		db.txState = TxBegin
		return nil
	}
	db.txState = TxBegin
	db.dirty = false
	db.txID = utils.GenerateTransactionID()
	if db.metrics != nil {
		db.metrics.StartTransaction(db.txID, db.config.Type)
	}
	return nil
}

// EndTransaction ends the begun transaction. It becomes commit pending
// when writes happened, ended otherwise.
func (db *DB) EndTransaction(ctx context.Context) error {
	tr, ok := db.driver.(interfaces.Transactional)
	if !ok {
		return nil
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if db.txState != TxBegin {
		return nil
	}
	pending := db.dirty
	if err := tr.EndTransactionInternal(ctx, pending); err != nil {
		db.txState = TxInvalid
		db.dirty = false
		if db.metrics != nil {
			db.metrics.FailTransaction(db.txID, err)
		}
		return err
	}
	if pending {
		db.txState = TxEndCommitPending
		return nil
	}
	db.txState = TxEnded
	if db.metrics != nil {
		db.metrics.RollbackTransaction(db.txID)
	}
	return nil
}

// Commit commits a commit pending transaction. In any other state it does nothing.
func (db *DB) Commit(ctx context.Context) error {
	if _, ok := db.driver.(interfaces.Transactional); !ok {
		return nil
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	return db.commitLocked(ctx)
}

func (db *DB) commitLocked(ctx context.Context) error {
	tr, ok := db.driver.(interfaces.Transactional)
	if !ok || db.txState != TxEndCommitPending {
		return nil
	}

	db.txState = TxCommitInProgress
	err := tr.CommitInternal(ctx)
	db.dirty = false
	db.txState = TxInvalid
	if db.metrics != nil {
		if err != nil {
			db.metrics.FailTransaction(db.txID, err)
		} else {
			db.metrics.CommitTransaction(db.txID)
		}
	}
	return err
}

func failed(err error) <-chan interfaces.RepositoryResult {
	result := make(chan interfaces.RepositoryResult, 1)
	result <- interfaces.RepositoryResult{Error: err}
	close(result)
	return result
}
