// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package mysql binds the relational driver to MySQL
package mysql

import (
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/qolzam/dbkit/internal/database/interfaces"
	"github.com/qolzam/dbkit/internal/database/sqldb"
)

// Dialect is the MySQL engine description
var Dialect = sqldb.Dialect{
	Type:       interfaces.DatabaseTypeMySQL,
	DriverName: "mysql",
	DSN:        buildDSN,
}

// NewDriver creates a MySQL driver
func NewDriver() *sqldb.Driver {
	return sqldb.NewDriver(Dialect)
}

// buildDSN builds the MySQL data source name. A configured URL is used as is.
func buildDSN(cfg *interfaces.DatabaseConfig) (string, error) {
	if cfg.URL != "" {
		if _, err := mysql.ParseDSN(cfg.URL); err != nil {
			return "", interfaces.ConfigurationError("invalid mysql url: %v", err)
		}
		return cfg.URL, nil
	}
	if cfg.Host == "" {
		return "", interfaces.ConfigurationError("mysql host is required")
	}

	mc := mysql.NewConfig()
	mc.User = cfg.Username
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	mc.DBName = cfg.Name
	mc.ParseTime = true
	if cfg.SQLConfig != nil && cfg.SQLConfig.ConnectTimeout > 0 {
		mc.Timeout = time.Duration(cfg.SQLConfig.ConnectTimeout) * time.Second
	}
	return mc.FormatDSN(), nil
}
