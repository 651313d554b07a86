// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package database

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/qolzam/dbkit/internal/database/interfaces"
	"github.com/qolzam/dbkit/internal/database/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDriver struct {
	mu       sync.Mutex
	calls    []string
	openErr  error
	writeErr error
	rows     []interfaces.Row
}

func (f *fakeDriver) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeDriver) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeDriver) InitInternal(ctx context.Context, cfg *interfaces.DatabaseConfig) error {
	f.record("init")
	return nil
}

func (f *fakeDriver) OpenInternal(ctx context.Context) (interface{}, error) {
	f.record("open")
	if f.openErr != nil {
		return nil, f.openErr
	}
	return "handle", nil
}

func (f *fakeDriver) CloseInternal(ctx context.Context) error {
	f.record("close")
	return nil
}

func (f *fakeDriver) DisposeInternal(ctx context.Context) error {
	f.record("dispose")
	return nil
}

func (f *fakeDriver) InsertInternal(ctx context.Context, rec interfaces.Record) (interface{}, error) {
	f.record("insert")
	return "id-1", f.writeErr
}

func (f *fakeDriver) DeleteInternal(ctx context.Context, rec interfaces.Record) (int64, error) {
	f.record("delete")
	return 1, f.writeErr
}

func (f *fakeDriver) UpdateInternal(ctx context.Context, req *interfaces.UpdateRequest) (int64, error) {
	f.record("update")
	return 2, f.writeErr
}

func (f *fakeDriver) FindInternal(ctx context.Context, req *interfaces.FindRequest) ([]interfaces.Row, error) {
	f.record("find")
	return f.rows, nil
}

type txDriver struct {
	fakeDriver
	pending []bool
}

func (t *txDriver) BeginTransactionInternal(ctx context.Context) error {
	t.record("begin")
	return nil
}

func (t *txDriver) EndTransactionInternal(ctx context.Context, pending bool) error {
	t.record("end")
	t.pending = append(t.pending, pending)
	return nil
}

func (t *txDriver) CommitInternal(ctx context.Context) error {
	t.record("commit")
	return nil
}

func (t *txDriver) CreateTableInternal(ctx context.Context, spec *interfaces.TableSpec) error {
	t.record("createTable")
	return nil
}

func (t *txDriver) DropTableInternal(ctx context.Context, spec *interfaces.TableSpec) error {
	t.record("dropTable")
	return nil
}

func (t *txDriver) ExecuteStatement(ctx context.Context, statement string) error {
	t.record("exec")
	return nil
}

type record struct{ id interface{} }

func (r *record) ModelName() string                       { return "user" }
func (r *record) Fields() []string                        { return []string{"name"} }
func (r *record) Get(string) interface{}                  { return "x" }
func (r *record) IDField() string                         { return "id" }
func (r *record) ID() interface{}                         { return r.id }
func (r *record) SetID(id interface{})                    { r.id = id }
func (r *record) Document() map[string]interface{}        { return map[string]interface{}{"name": "x"} }
func (r *record) UpdaterConfig() []map[string]interface{} { return nil }

var testConfig = &interfaces.DatabaseConfig{Type: "fake", Name: "test"}

func openDB(t *testing.T, d interfaces.Driver, opts ...Option) *DB {
	t.Helper()
	ctx := context.Background()
	db := New(d, opts...)
	require.NoError(t, db.Init(ctx, testConfig))
	_, err := db.Open(ctx)
	require.NoError(t, err)
	return db
}

func result(ch <-chan interfaces.RepositoryResult) interfaces.RepositoryResult {
	r := <-ch
	return r
}

func TestLifecycle(t *testing.T) {
	ctx := context.Background()
	d := &fakeDriver{}
	db := New(d)
	assert.Equal(t, StateInvalid, db.State())

	assert.ErrorIs(t, db.Init(ctx, nil), interfaces.ErrConfiguration)
	_, err := db.Open(ctx)
	assert.ErrorIs(t, err, interfaces.ErrConfiguration)

	require.NoError(t, db.Init(ctx, testConfig))
	assert.Equal(t, StateInit, db.State())
	assert.Equal(t, "fake", db.DatabaseType())

	handle, err := db.Open(ctx)
	require.NoError(t, err)
	assert.Equal(t, "handle", handle)
	assert.Equal(t, StateOpen, db.State())
	assert.True(t, db.IsConnected())

	again, err := db.Open(ctx)
	require.NoError(t, err)
	assert.Equal(t, handle, again)

	require.NoError(t, db.Close(ctx))
	assert.Equal(t, StateClosed, db.State())
	assert.Nil(t, db.Client())
	assert.False(t, db.IsConnected())
	assert.ErrorIs(t, db.Close(ctx), interfaces.ErrState)

	_, err = db.Open(ctx)
	require.NoError(t, err)

	require.NoError(t, db.Dispose(ctx))
	assert.Equal(t, StateInvalid, db.State())
	assert.Nil(t, db.Config())
	assert.ErrorIs(t, db.Dispose(ctx), interfaces.ErrState)

	assert.Equal(t, []string{"init", "open", "close", "open", "close", "dispose"}, d.Calls())
}

func TestOpen_DriverError(t *testing.T) {
	d := &fakeDriver{openErr: errors.New("refused")}
	db := New(d)
	require.NoError(t, db.Init(context.Background(), testConfig))
	_, err := db.Open(context.Background())
	assert.EqualError(t, err, "refused")
	assert.Equal(t, StateInit, db.State())
}

func TestExecute_NotOpenCallsNoHook(t *testing.T) {
	ctx := context.Background()
	d := &fakeDriver{}
	db := New(d)
	require.NoError(t, db.Init(ctx, testConfig))

	r := result(db.Execute(ctx, interfaces.NewDBOperation(interfaces.OperationInsert, &record{})))
	assert.ErrorIs(t, r.Error, interfaces.ErrState)
	assert.Equal(t, []string{"init"}, d.Calls())

	assert.ErrorIs(t, db.ExecuteStatement(ctx, "SELECT 1"), interfaces.ErrState)
}

func TestExecute_Dispatch(t *testing.T) {
	ctx := context.Background()
	d := &txDriver{fakeDriver: fakeDriver{rows: []interfaces.Row{{"name": "x"}}}}
	db := openDB(t, d)

	r := result(db.Execute(ctx, interfaces.NewDBOperation(interfaces.OperationInsert, &record{})))
	require.NoError(t, r.Error)
	assert.Equal(t, "id-1", r.Result)

	r = result(db.Execute(ctx, interfaces.NewDBOperation(interfaces.OperationRead, &interfaces.FindRequest{Model: "user"})))
	require.NoError(t, r.Error)
	assert.Equal(t, []interfaces.Row{{"name": "x"}}, r.Result)

	r = result(db.Execute(ctx, interfaces.NewDBOperation(interfaces.OperationUpdate, &interfaces.UpdateRequest{Collection: "user"})))
	require.NoError(t, r.Error)
	assert.Equal(t, int64(2), r.Result)

	r = result(db.Execute(ctx, interfaces.NewDBOperation(interfaces.OperationDelete, &record{id: 1})))
	require.NoError(t, r.Error)
	assert.Equal(t, int64(1), r.Result)

	r = result(db.Execute(ctx, interfaces.NewDBOperation(interfaces.OperationCreateTable, &interfaces.TableSpec{Name: "user"})))
	require.NoError(t, r.Error)
	r = result(db.Execute(ctx, interfaces.NewDBOperation(interfaces.OperationDropTable, &interfaces.TableSpec{Name: "user"})))
	require.NoError(t, r.Error)
	require.NoError(t, db.ExecuteStatement(ctx, "CREATE TABLE x (id INT)"))

	assert.Equal(t, []string{"init", "open", "insert", "find", "update", "delete", "createTable", "dropTable", "exec"}, d.Calls())
}

func TestExecute_KeepsCallerOperation(t *testing.T) {
	ctx := context.Background()
	db := openDB(t, &fakeDriver{})

	op := interfaces.NewDBOperation(interfaces.OperationInsert, &record{})
	require.NoError(t, result(db.Execute(ctx, op)).Error)
	assert.Empty(t, op.ID)

	op.ID = "op-7"
	require.NoError(t, result(db.Execute(ctx, op)).Error)
	assert.Equal(t, "op-7", op.ID)
}

func TestExecute_Validation(t *testing.T) {
	ctx := context.Background()
	db := openDB(t, &fakeDriver{})

	tests := []struct {
		name string
		op   *interfaces.DBOperation
	}{
		{name: "nil operation", op: nil},
		{name: "nil record", op: interfaces.NewDBOperation(interfaces.OperationInsert, nil)},
		{name: "wrong insert payload", op: interfaces.NewDBOperation(interfaces.OperationInsert, "x")},
		{name: "wrong read payload", op: interfaces.NewDBOperation(interfaces.OperationRead, &record{})},
		{name: "wrong update payload", op: interfaces.NewDBOperation(interfaces.OperationUpdate, &record{})},
		{name: "wrong table payload", op: interfaces.NewDBOperation(interfaces.OperationCreateTable, &record{})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := result(db.Execute(ctx, tt.op))
			assert.ErrorIs(t, r.Error, interfaces.ErrValidation)
		})
	}

	r := result(db.Execute(ctx, interfaces.NewDBOperation(interfaces.OperationInvalid, &record{})))
	assert.ErrorIs(t, r.Error, interfaces.ErrValidation)
	assert.ErrorIs(t, r.Error, interfaces.ErrUnsupportedOperation)
}

func TestMissingHooks(t *testing.T) {
	ctx := context.Background()
	db := openDB(t, &fakeDriver{})

	r := result(db.CreateTable(ctx, &interfaces.TableSpec{Name: "user"}))
	assert.ErrorIs(t, r.Error, interfaces.ErrNotImplemented)
	assert.ErrorIs(t, db.ExecuteStatement(ctx, "x"), interfaces.ErrNotImplemented)
}

func TestResultChannelClosed(t *testing.T) {
	db := openDB(t, &fakeDriver{})
	ch := db.Insert(context.Background(), &record{})
	<-ch
	_, ok := <-ch
	assert.False(t, ok)
}

func TestTransaction_DirtyCommit(t *testing.T) {
	ctx := context.Background()
	d := &txDriver{}
	mc := observability.NewMetricsCollector(prometheus.NewRegistry())
	db := openDB(t, d, WithMetrics(mc))

	assert.Equal(t, TxInvalid, db.TransactionState())
	require.NoError(t, db.BeginTransaction(ctx))
	require.NoError(t, db.BeginTransaction(ctx))
	assert.Equal(t, TxBegin, db.TransactionState())

	require.NoError(t, result(db.Insert(ctx, &record{})).Error)
	require.NoError(t, db.EndTransaction(ctx))
	assert.Equal(t, TxEndCommitPending, db.TransactionState())

	require.NoError(t, db.Commit(ctx))
	assert.Equal(t, TxInvalid, db.TransactionState())
	assert.Equal(t, int64(0), mc.ActiveTransactions())

	assert.Equal(t, []string{"init", "open", "begin", "insert", "end", "commit"}, d.Calls())
	assert.Equal(t, []bool{true}, d.pending)
}

func TestTransaction_ResumeKeepsPendingWrites(t *testing.T) {
	ctx := context.Background()
	d := &txDriver{}
	mc := observability.NewMetricsCollector(prometheus.NewRegistry())
	db := openDB(t, d, WithMetrics(mc))

	require.NoError(t, db.BeginTransaction(ctx))
	require.NoError(t, result(db.Insert(ctx, &record{})).Error)
	require.NoError(t, db.EndTransaction(ctx))
	require.Equal(t, TxEndCommitPending, db.TransactionState())

	require.NoError(t, db.BeginTransaction(ctx))
	assert.Equal(t, TxBegin, db.TransactionState())
	assert.Equal(t, int64(1), mc.ActiveTransactions())
	require.NoError(t, result(db.Find(ctx, &interfaces.FindRequest{Model: "user"})).Error)
	require.NoError(t, db.EndTransaction(ctx))
	assert.Equal(t, TxEndCommitPending, db.TransactionState())

	require.NoError(t, db.Commit(ctx))
	assert.Equal(t, TxInvalid, db.TransactionState())
	assert.Equal(t, int64(0), mc.ActiveTransactions())
	assert.Equal(t, []string{"init", "open", "begin", "insert", "end", "begin", "find", "end", "commit"}, d.Calls())
	assert.Equal(t, []bool{true, true}, d.pending)
}

func TestTransaction_CleanEndDoesNotCommit(t *testing.T) {
	ctx := context.Background()
	d := &txDriver{}
	db := openDB(t, d)

	require.NoError(t, db.BeginTransaction(ctx))
	require.NoError(t, result(db.Find(ctx, &interfaces.FindRequest{Model: "user"})).Error)
	require.NoError(t, db.EndTransaction(ctx))
	assert.Equal(t, TxEnded, db.TransactionState())

	require.NoError(t, db.Commit(ctx))
	require.NoError(t, db.EndTransaction(ctx))
	assert.Equal(t, []string{"init", "open", "begin", "find", "end"}, d.Calls())
	assert.Equal(t, []bool{false}, d.pending)
}

func TestTransaction_FailedWriteIsNotDirty(t *testing.T) {
	ctx := context.Background()
	d := &txDriver{fakeDriver: fakeDriver{writeErr: errors.New("constraint")}}
	db := openDB(t, d)

	require.NoError(t, db.BeginTransaction(ctx))
	assert.Error(t, result(db.Insert(ctx, &record{})).Error)
	require.NoError(t, db.EndTransaction(ctx))
	assert.Equal(t, TxEnded, db.TransactionState())
}

func TestTransaction_CloseCommitsPending(t *testing.T) {
	ctx := context.Background()
	d := &txDriver{}
	db := openDB(t, d)

	require.NoError(t, db.BeginTransaction(ctx))
	require.NoError(t, result(db.Update(ctx, &interfaces.UpdateRequest{Collection: "user"})).Error)
	require.NoError(t, db.EndTransaction(ctx))
	require.NoError(t, db.Close(ctx))

	assert.Equal(t, []string{"init", "open", "begin", "update", "end", "commit", "close"}, d.Calls())
}

func TestTransaction_NonTransactionalNoops(t *testing.T) {
	ctx := context.Background()
	d := &fakeDriver{}
	db := openDB(t, d)

	require.NoError(t, db.BeginTransaction(ctx))
	require.NoError(t, db.EndTransaction(ctx))
	require.NoError(t, db.Commit(ctx))
	assert.Equal(t, TxInvalid, db.TransactionState())
	assert.Equal(t, []string{"init", "open"}, d.Calls())
}

func TestTransaction_BeginRequiresOpen(t *testing.T) {
	db := New(&txDriver{})
	assert.ErrorIs(t, db.BeginTransaction(context.Background()), interfaces.ErrState)
}
