// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package interfaces

// OperationKind identifies the request carried by a DBOperation
type OperationKind int

const (
	OperationInvalid OperationKind = iota - 1
	OperationInsert
	OperationRead
	OperationUpdate
	OperationDelete
	OperationCreateTable
	OperationDropTable
)

func (k OperationKind) String() string {
	switch k {
	case OperationInsert:
		return "insert"
	case OperationRead:
		return "read"
	case OperationUpdate:
		return "update"
	case OperationDelete:
		return "delete"
	case OperationCreateTable:
		return "createTable"
	case OperationDropTable:
		return "dropTable"
	default:
		return "invalid"
	}
}

// IsWrite reports whether the operation modifies stored data
func (k OperationKind) IsWrite() bool {
	return k == OperationInsert || k == OperationUpdate || k == OperationDelete
}

// DBOperation pairs an operation kind with its payload.
//
// Payload types per kind:
//
//	insert, delete       Record
//	read                 *FindRequest
//	update               *UpdateRequest
//	createTable, dropTable *TableSpec
type DBOperation struct {
	ID     string
	Kind   OperationKind
	Record interface{}
}

// NewDBOperation creates a new operation envelope
func NewDBOperation(kind OperationKind, record interface{}) *DBOperation {
	return &DBOperation{
		Kind:   kind,
		Record: record,
	}
}

// Record is the contract drivers see for a persisted entity
type Record interface {
	ModelName() string
	Fields() []string
	Get(field string) interface{}
	IDField() string
	ID() interface{}
	SetID(id interface{})
	Document() map[string]interface{}
	UpdaterConfig() []map[string]interface{}
}

// Row is a raw row or document returned by a driver before rehydration
type Row map[string]interface{}
