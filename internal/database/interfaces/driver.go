// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package interfaces

import (
	"context"
)

// Driver defines the hooks every storage engine binding implements.
// Lifecycle preconditions are enforced by database.DB, never by the driver.
type Driver interface {
	// Lifecycle hooks
	InitInternal(ctx context.Context, config *DatabaseConfig) error
	OpenInternal(ctx context.Context) (interface{}, error) // returns the native client handle
	CloseInternal(ctx context.Context) error
	DisposeInternal(ctx context.Context) error

	// CRUD hooks
	InsertInternal(ctx context.Context, record Record) (interface{}, error)
	DeleteInternal(ctx context.Context, record Record) (int64, error)
	UpdateInternal(ctx context.Context, request *UpdateRequest) (int64, error)
	FindInternal(ctx context.Context, request *FindRequest) ([]Row, error)
}

// TableManager is implemented by drivers that can create and drop collections
type TableManager interface {
	CreateTableInternal(ctx context.Context, spec *TableSpec) error
	DropTableInternal(ctx context.Context, spec *TableSpec) error
}

// StatementExecutor is implemented by drivers that accept raw statements (DDL)
type StatementExecutor interface {
	ExecuteStatement(ctx context.Context, statement string) error
}

// ConnectionChecker reports whether the underlying connection is still usable
type ConnectionChecker interface {
	IsConnected() bool
}

// Transactional marks a driver as taking part in the dirty-commit protocol.
// pending is true when writes happened since BeginTransactionInternal.
type Transactional interface {
	BeginTransactionInternal(ctx context.Context) error
	EndTransactionInternal(ctx context.Context, pending bool) error
	CommitInternal(ctx context.Context) error
}

// RepositoryResult represents the result of a database operation
type RepositoryResult struct {
	Result interface{}
	Error  error
}

// Database type constants
const (
	DatabaseTypeMongoDB    = "mongodb"
	DatabaseTypeMySQL      = "mysql"
	DatabaseTypePostgreSQL = "postgresql"
	DatabaseTypeSQLCipher  = "sqlcipher"
)

// IsSQLType reports whether the database type speaks SQL and needs table schemas
func IsSQLType(databaseType string) bool {
	switch databaseType {
	case DatabaseTypeMySQL, DatabaseTypePostgreSQL, DatabaseTypeSQLCipher:
		return true
	}
	return false
}

// UnimplementedDriver can be embedded by drivers that only support part of the hook set.
type UnimplementedDriver struct{}

func (UnimplementedDriver) InitInternal(ctx context.Context, config *DatabaseConfig) error {
	return NotImplementedError("InitInternal")
}

func (UnimplementedDriver) OpenInternal(ctx context.Context) (interface{}, error) {
	return nil, NotImplementedError("OpenInternal")
}

func (UnimplementedDriver) CloseInternal(ctx context.Context) error {
	return NotImplementedError("CloseInternal")
}

func (UnimplementedDriver) DisposeInternal(ctx context.Context) error {
	return NotImplementedError("DisposeInternal")
}

func (UnimplementedDriver) InsertInternal(ctx context.Context, record Record) (interface{}, error) {
	return nil, NotImplementedError("InsertInternal")
}

func (UnimplementedDriver) DeleteInternal(ctx context.Context, record Record) (int64, error) {
	return 0, NotImplementedError("DeleteInternal")
}

func (UnimplementedDriver) UpdateInternal(ctx context.Context, request *UpdateRequest) (int64, error) {
	return 0, NotImplementedError("UpdateInternal")
}

func (UnimplementedDriver) FindInternal(ctx context.Context, request *FindRequest) ([]Row, error) {
	return nil, NotImplementedError("FindInternal")
}
