// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package postgres binds the relational driver to PostgreSQL
package postgres

import (
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	"github.com/qolzam/dbkit/internal/database/interfaces"
	"github.com/qolzam/dbkit/internal/database/sqldb"
)

// Dialect is the PostgreSQL engine description. Generated ids are read
// back with RETURNING since lib/pq has no LastInsertId.
var Dialect = sqldb.Dialect{
	Type:            interfaces.DatabaseTypePostgreSQL,
	DriverName:      "postgres",
	DSN:             buildConnectionString,
	InsertReturning: true,
}

// NewDriver creates a PostgreSQL driver
func NewDriver() *sqldb.Driver {
	return sqldb.NewDriver(Dialect)
}

// buildConnectionString builds PostgreSQL connection string from config
func buildConnectionString(cfg *interfaces.DatabaseConfig) (string, error) {
	if cfg.URL != "" {
		return cfg.URL, nil
	}
	if cfg.Host == "" {
		return "", interfaces.ConfigurationError("postgresql host is required")
	}

	var parts []string
	parts = append(parts, fmt.Sprintf("host=%s", cfg.Host))
	parts = append(parts, fmt.Sprintf("port=%d", cfg.Port))
	parts = append(parts, fmt.Sprintf("dbname=%s", cfg.Name))

	if cfg.Username != "" {
		parts = append(parts, fmt.Sprintf("user=%s", cfg.Username))
	}
	if cfg.Password != "" {
		parts = append(parts, fmt.Sprintf("password=%s", cfg.Password))
	}

	sslMode := "disable"
	if cfg.SQLConfig != nil && cfg.SQLConfig.SSLMode != "" {
		sslMode = cfg.SQLConfig.SSLMode
	}
	parts = append(parts, fmt.Sprintf("sslmode=%s", sslMode))

	if cfg.SQLConfig != nil && cfg.SQLConfig.ConnectTimeout > 0 {
		parts = append(parts, fmt.Sprintf("connect_timeout=%d", cfg.SQLConfig.ConnectTimeout))
	}
	return strings.Join(parts, " "), nil
}
