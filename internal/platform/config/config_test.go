// Copyright (c) 2025 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/qolzam/dbkit/internal/database/interfaces"
	"github.com/stretchr/testify/require"
)

// TestLoadFromMap tests configuration loading from an in-memory map.
// This test is parallel-safe and has no side effects.
func TestLoadFromMap(t *testing.T) {
	t.Parallel()

	t.Run("Loads all provided values correctly", func(t *testing.T) {
		t.Parallel()

		testEnv := map[string]string{
			"DB_TYPE":              "postgresql",
			"DB_NAME":              "test-db",
			"DB_HOST":              "test-host",
			"DB_PORT":              "5433",
			"DB_USERNAME":          "test-user",
			"DB_PASSWORD":          "test-pass",
			"DB_SSL_MODE":          "require",
			"DB_MAX_OPEN_CONNS":    "55",
			"DB_MAX_IDLE_CONNS":    "23",
			"DB_CONN_MAX_LIFETIME": "321",
			"LOG_LEVEL":            "DEBUG",
			"LOG_FORMAT":           "json",
			"SERVER_PORT":          "9090",
			"DEBUG":                "true",
			"APP_CONFIG_FILE":      "app.json",
		}

		cfg, err := LoadFromMap(testEnv)
		require.NoError(t, err)

		require.Equal(t, "postgresql", cfg.Database.Type)
		require.Equal(t, "test-db", cfg.Database.Name)
		require.Equal(t, "test-host", cfg.Database.Host)
		require.Equal(t, 5433, cfg.Database.Port)
		require.Equal(t, "test-user", cfg.Database.Username)
		require.Equal(t, "test-pass", cfg.Database.Password)
		require.Equal(t, "require", cfg.Database.SSLMode)
		require.Equal(t, 55, cfg.Database.MaxOpenConns)
		require.Equal(t, 23, cfg.Database.MaxIdleConns)
		require.Equal(t, 321*time.Second, cfg.Database.ConnMaxLifetime)
		require.Equal(t, "debug", cfg.Log.Level)
		require.Equal(t, "json", cfg.Log.Format)
		require.Equal(t, 9090, cfg.Server.Port)
		require.True(t, cfg.Server.Debug)
		require.Equal(t, "app.json", cfg.App.ConfigFile)
	})

	t.Run("Applies defaults for missing values", func(t *testing.T) {
		t.Parallel()

		cfg, err := LoadFromMap(map[string]string{})
		require.NoError(t, err)

		require.Equal(t, "sqlcipher", cfg.Database.Type)
		require.Equal(t, "dbkit.db", cfg.Database.Name)
		require.Equal(t, "./data", cfg.Database.Path)
		require.Equal(t, 300*time.Second, cfg.Database.ConnMaxLifetime)
		require.True(t, cfg.Database.Metrics)
		require.Equal(t, "localhost", cfg.Server.Host)
		require.Equal(t, 8080, cfg.Server.Port)
		require.False(t, cfg.Server.Debug)
		require.Equal(t, "info", cfg.Log.Level)
		require.Equal(t, "console", cfg.Log.Format)
	})

	t.Run("Accepts Go durations for the connection lifetime", func(t *testing.T) {
		t.Parallel()

		cfg, err := LoadFromMap(map[string]string{"DB_CONN_MAX_LIFETIME": "2m"})
		require.NoError(t, err)
		require.Equal(t, 2*time.Minute, cfg.Database.ConnMaxLifetime)
	})

	t.Run("Reports every validation error", func(t *testing.T) {
		t.Parallel()

		_, err := LoadFromMap(map[string]string{
			"DB_TYPE":     "oracle",
			"SERVER_PORT": "70000",
			"LOG_LEVEL":   "loud",
			"LOG_FORMAT":  "xml",
		})
		require.Error(t, err)
		require.Contains(t, err.Error(), "DB_TYPE must be one of: mongodb, mysql, postgresql, sqlcipher")
		require.Contains(t, err.Error(), "; SERVER_PORT must be between 1 and 65535")
		require.Contains(t, err.Error(), "LOG_LEVEL must be one of")
		require.Contains(t, err.Error(), "LOG_FORMAT must be one of: console, json")
	})
}

func TestDatabaseConfig(t *testing.T) {
	t.Parallel()

	t.Run("SQL databases carry the pool settings", func(t *testing.T) {
		t.Parallel()

		cfg, err := LoadFromMap(map[string]string{"DB_TYPE": "mysql", "DB_HOST": "db", "DB_MAX_OPEN_CONNS": "7"})
		require.NoError(t, err)

		db := cfg.DatabaseConfig()
		require.Equal(t, "mysql", db.Type)
		require.Equal(t, "db", db.Host)
		require.NotNil(t, db.SQLConfig)
		require.Equal(t, 7, db.SQLConfig.MaxOpenConnections)
		require.Equal(t, 300, db.SQLConfig.MaxLifetime)
		require.Nil(t, db.MongoConfig)
	})

	t.Run("SQLCipher carries the cipher", func(t *testing.T) {
		t.Parallel()

		cfg, err := LoadFromMap(map[string]string{"DB_PASSWORD": "secret", "DB_CIPHER": "aes-256-cbc"})
		require.NoError(t, err)

		db := cfg.DatabaseConfig()
		require.Equal(t, "sqlcipher", db.Type)
		require.Equal(t, "secret", db.Password)
		require.Equal(t, "aes-256-cbc", db.CipherConfig.Cipher)
		require.Nil(t, db.SQLConfig)
	})

	t.Run("MongoDB carries the pool size", func(t *testing.T) {
		t.Parallel()

		cfg, err := LoadFromMap(map[string]string{"DB_TYPE": "mongodb", "DB_HOST": "mongo"})
		require.NoError(t, err)
		require.Equal(t, 50, cfg.DatabaseConfig().MongoConfig.MaxPoolSize)
	})
}

func TestApplyTo(t *testing.T) {
	t.Parallel()

	t.Run("Fills an app file without a database", func(t *testing.T) {
		t.Parallel()

		cfg, err := LoadFromMap(map[string]string{"DB_NAME": "env.db"})
		require.NoError(t, err)

		app := &interfaces.AppConfig{}
		cfg.ApplyTo(app)
		require.Equal(t, "sqlcipher", app.Database.Type)
		require.Equal(t, "env.db", app.Database.Name)
	})

	t.Run("Overlays only explicit values", func(t *testing.T) {
		t.Parallel()

		cfg, err := LoadFromMap(map[string]string{"DB_PASSWORD": "from-env", "DB_PORT": "5439"})
		require.NoError(t, err)

		app := &interfaces.AppConfig{Database: interfaces.DatabaseConfig{
			Type: "postgresql", Name: "file-db", Host: "file-host", Port: 5432,
		}}
		cfg.ApplyTo(app)
		require.Equal(t, "postgresql", app.Database.Type)
		require.Equal(t, "file-db", app.Database.Name)
		require.Equal(t, "file-host", app.Database.Host)
		require.Equal(t, 5439, app.Database.Port)
		require.Equal(t, "from-env", app.Database.Password)
	})

	t.Run("Another database type replaces the section", func(t *testing.T) {
		t.Parallel()

		cfg, err := LoadFromMap(map[string]string{"DB_TYPE": "mongodb", "DB_HOST": "mongo"})
		require.NoError(t, err)

		app := &interfaces.AppConfig{Database: interfaces.DatabaseConfig{Type: "postgresql", Name: "file-db"}}
		cfg.ApplyTo(app)
		require.Equal(t, "mongodb", app.Database.Type)
		require.Equal(t, "dbkit.db", app.Database.Name)
		require.Equal(t, "mongo", app.Database.Host)
	})
}

func TestLoadAppConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "app.json")
	content := `{
		"database": {"type": "sqlcipher", "name": "app.db", "path": "/tmp", "password": "k"},
		"models": [{"name": "user", "path": "model/user"}],
		"stores": [{"name": "user", "path": "stores/user"}]
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	app, err := LoadAppConfig(path)
	require.NoError(t, err)
	require.Equal(t, "sqlcipher", app.Database.Type)
	require.Equal(t, "app.db", app.Database.Name)
	require.Equal(t, []interfaces.ModelConfig{{Name: "user", Path: "model/user"}}, app.Models)
	require.Equal(t, []interfaces.StoreConfig{{Name: "user", Path: "stores/user"}}, app.Stores)

	_, err = LoadAppConfig(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
