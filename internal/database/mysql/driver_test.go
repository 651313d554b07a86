// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package mysql

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/qolzam/dbkit/internal/database/interfaces"
	"github.com/qolzam/dbkit/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	dsn, err := buildDSN(&interfaces.DatabaseConfig{
		Name:      "app",
		Host:      "db",
		Port:      3306,
		Username:  "root",
		Password:  "pw",
		SQLConfig: &interfaces.SQLConfig{ConnectTimeout: 5},
	})
	require.NoError(t, err)

	parsed, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "root", parsed.User)
	assert.Equal(t, "pw", parsed.Passwd)
	assert.Equal(t, "db:3306", parsed.Addr)
	assert.Equal(t, "app", parsed.DBName)
	assert.True(t, parsed.ParseTime)
	assert.Equal(t, 5*time.Second, parsed.Timeout)
}

func TestBuildDSN_Errors(t *testing.T) {
	_, err := buildDSN(&interfaces.DatabaseConfig{Name: "app"})
	assert.ErrorIs(t, err, interfaces.ErrConfiguration)

	dsn, err := buildDSN(&interfaces.DatabaseConfig{URL: "u:p@tcp(h:1)/d"})
	require.NoError(t, err)
	assert.Equal(t, "u:p@tcp(h:1)/d", dsn)
}

func TestDriver_Integration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	d := NewDriver()
	require.NoError(t, d.InitInternal(ctx, testutil.LoadTestConfig().DatabaseConfig(t, interfaces.DatabaseTypeMySQL)))
	if _, err := d.OpenInternal(ctx); err != nil {
		t.Skipf("Skipping test: MySQL not available: %v", err)
	}
	defer d.DisposeInternal(context.Background())

	table := testutil.UniqueName(t)
	ddl := fmt.Sprintf("CREATE TABLE %s (id INT AUTO_INCREMENT PRIMARY KEY, body VARCHAR(64))", table)
	require.NoError(t, d.CreateTableInternal(ctx, &interfaces.TableSpec{Name: table, Statement: ddl}))
	defer d.DropTableInternal(ctx, &interfaces.TableSpec{Name: table})

	require.NoError(t, d.ExecuteStatement(ctx, fmt.Sprintf("INSERT INTO %s (body) VALUES ('x')", table)))
	rows, err := d.FindInternal(ctx, &interfaces.FindRequest{Model: table})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "x", rows[0]["body"])
	assert.True(t, d.IsConnected())
}
