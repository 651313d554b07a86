// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package factory

import (
	"context"
	"errors"
	"testing"

	"github.com/qolzam/dbkit/internal/database"
	"github.com/qolzam/dbkit/internal/database/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memDriver struct {
	interfaces.UnimplementedDriver
	disposed bool
}

func (d *memDriver) InitInternal(ctx context.Context, cfg *interfaces.DatabaseConfig) error {
	d.disposed = false
	return nil
}

func (d *memDriver) OpenInternal(ctx context.Context) (interface{}, error) {
	return d, nil
}

func (d *memDriver) CloseInternal(ctx context.Context) error {
	return nil
}

func (d *memDriver) DisposeInternal(ctx context.Context) error {
	d.disposed = true
	return nil
}

func newTestFactory() (*DBFactory, map[string]*memDriver) {
	drivers := map[string]*memDriver{}
	f := NewDBFactory()
	for _, name := range []string{"mem", "mem2"} {
		name := name
		f.Register(name, func() interfaces.Driver {
			d := &memDriver{}
			drivers[name] = d
			return d
		})
	}
	return f, drivers
}

func TestValidateConfigErrors(t *testing.T) {
	f := NewDBFactory()

	cases := map[string]*interfaces.DatabaseConfig{
		"nil":          nil,
		"empty type":   {Name: "db"},
		"unsupported":  {Type: "oracle", Name: "db"},
		"missing name": {Type: interfaces.DatabaseTypeMongoDB, Host: "localhost"},
		"mongo host":   {Type: interfaces.DatabaseTypeMongoDB, Name: "db"},
		"mysql host":   {Type: interfaces.DatabaseTypeMySQL, Name: "db"},
		"pg host":      {Type: interfaces.DatabaseTypePostgreSQL, Name: "db"},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			err := f.ValidateConfig(cfg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, interfaces.ErrConfiguration))
		})
	}
}

func TestValidateConfigDefaults(t *testing.T) {
	f := NewDBFactory()

	mongo := &interfaces.DatabaseConfig{Type: interfaces.DatabaseTypeMongoDB, Name: "db", Host: "localhost"}
	require.NoError(t, f.ValidateConfig(mongo))
	assert.Equal(t, 27017, mongo.Port)
	require.NotNil(t, mongo.MongoConfig)
	assert.Equal(t, 100, mongo.MongoConfig.MaxPoolSize)
	assert.Equal(t, 10, mongo.MongoConfig.MinPoolSize)

	pg := &interfaces.DatabaseConfig{Type: interfaces.DatabaseTypePostgreSQL, Name: "db", Host: "localhost"}
	require.NoError(t, f.ValidateConfig(pg))
	assert.Equal(t, 5432, pg.Port)
	assert.Equal(t, "disable", pg.SQLConfig.SSLMode)
	assert.Equal(t, 50, pg.SQLConfig.MaxOpenConnections)

	my := &interfaces.DatabaseConfig{Type: interfaces.DatabaseTypeMySQL, Name: "db", URL: "root:pw@tcp(db:3306)/db"}
	require.NoError(t, f.ValidateConfig(my))
	assert.Equal(t, 3306, my.Port)

	cipher := &interfaces.DatabaseConfig{Type: interfaces.DatabaseTypeSQLCipher, Name: "app.db", Password: "k"}
	require.NoError(t, f.ValidateConfig(cipher))
	assert.Equal(t, ".", cipher.Path)
}

func TestTypes(t *testing.T) {
	f, _ := newTestFactory()
	assert.Equal(t, []string{"mem", "mem2", "mongodb", "mysql", "postgresql", "sqlcipher"}, f.Types())
}

func TestCreateDB(t *testing.T) {
	f, drivers := newTestFactory()

	db, err := f.CreateDB(context.Background(), &interfaces.DatabaseConfig{Type: "mem", Name: "db"})
	require.NoError(t, err)
	assert.Equal(t, database.StateInit, db.State())
	assert.Same(t, drivers["mem"], db.Driver())

	_, err = f.CreateDB(context.Background(), &interfaces.DatabaseConfig{Type: "oracle", Name: "db"})
	assert.True(t, errors.Is(err, interfaces.ErrConfiguration))
}

func TestDbManagerNotConfigured(t *testing.T) {
	m := NewDbManager(NewDBFactory())
	ctx := context.Background()

	_, err := m.Database()
	assert.True(t, errors.Is(err, interfaces.ErrConfiguration))
	_, err = m.OpenDatabase(ctx)
	assert.True(t, errors.Is(err, interfaces.ErrConfiguration))
	assert.True(t, errors.Is(m.CloseDatabase(ctx), interfaces.ErrConfiguration))
	assert.True(t, errors.Is(m.DisposeDatabase(ctx), interfaces.ErrConfiguration))

	_, err = m.Configure(ctx, nil)
	assert.True(t, errors.Is(err, interfaces.ErrConfiguration))
}

func TestDbManagerConfigure(t *testing.T) {
	f, drivers := newTestFactory()
	m := NewDbManager(f)
	ctx := context.Background()

	first, err := m.Configure(ctx, &interfaces.DatabaseConfig{Type: "mem", Name: "db"})
	require.NoError(t, err)

	again, err := m.Configure(ctx, &interfaces.DatabaseConfig{Type: "mem", Name: "other"})
	require.NoError(t, err)
	assert.Same(t, first, again)

	_, err = m.OpenDatabase(ctx)
	require.NoError(t, err)
	assert.Equal(t, database.StateOpen, first.State())

	second, err := m.Configure(ctx, &interfaces.DatabaseConfig{Type: "mem2", Name: "db"})
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.True(t, drivers["mem"].disposed)
	assert.Equal(t, database.StateInvalid, first.State())

	current, err := m.Database()
	require.NoError(t, err)
	assert.Same(t, second, current)
}

func TestDbManagerLifecycle(t *testing.T) {
	f, drivers := newTestFactory()
	m := NewDbManager(f)
	ctx := context.Background()

	_, err := m.Configure(ctx, &interfaces.DatabaseConfig{Type: "mem", Name: "db"})
	require.NoError(t, err)

	client, err := m.OpenDatabase(ctx)
	require.NoError(t, err)
	assert.Same(t, drivers["mem"], client)

	require.NoError(t, m.CloseDatabase(ctx))
	assert.Error(t, m.CloseDatabase(ctx))

	require.NoError(t, m.DisposeDatabase(ctx))
	assert.True(t, drivers["mem"].disposed)
	_, err = m.Database()
	assert.Error(t, err)
}

func TestDbManagerFailedConfigureKeepsNothing(t *testing.T) {
	f, _ := newTestFactory()
	m := NewDbManager(f)
	ctx := context.Background()

	_, err := m.Configure(ctx, &interfaces.DatabaseConfig{Type: "mem", Name: "db"})
	require.NoError(t, err)

	_, err = m.Configure(ctx, &interfaces.DatabaseConfig{Type: "oracle", Name: "db"})
	require.Error(t, err)
	_, err = m.Database()
	assert.Error(t, err)
}
