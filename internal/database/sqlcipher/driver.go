// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package sqlcipher binds the relational driver to an encrypted SQLite file.
// All hooks run on a single worker in submission order.
package sqlcipher

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mutecomm/go-sqlcipher/v4"
	"github.com/qolzam/dbkit/internal/database/interfaces"
	"github.com/qolzam/dbkit/internal/database/sqldb"
	"github.com/qolzam/dbkit/internal/database/utils"
)

// Dialect is the SQLCipher engine description
var Dialect = sqldb.Dialect{
	Type:       interfaces.DatabaseTypeSQLCipher,
	DriverName: "sqlite3",
	DSN:        buildDSN,
	Setup:      setup,
}

// Driver is the relational driver with its hooks serialized on a TaskQueue
type Driver struct {
	*sqldb.Driver
	queue *utils.TaskQueue
}

// NewDriver creates a SQLCipher driver
func NewDriver() *Driver {
	queue := utils.NewTaskQueue()
	return &Driver{
		Driver: sqldb.NewDriver(Dialect, sqldb.WithTaskRunner(queue)),
		queue:  queue,
	}
}

// InitInternal restarts the worker after a dispose
func (d *Driver) InitInternal(ctx context.Context, cfg *interfaces.DatabaseConfig) error {
	if d.queue == nil {
		d.queue = utils.NewTaskQueue()
		d.Driver.SetTaskRunner(d.queue)
	}
	return d.Driver.InitInternal(ctx, cfg)
}

// DisposeInternal releases the database and stops the worker
func (d *Driver) DisposeInternal(ctx context.Context) error {
	err := d.Driver.DisposeInternal(ctx)
	if d.queue != nil {
		d.queue.Close()
		d.queue = nil
	}
	return err
}

// buildDSN returns the database file: <Path>/<Name>
func buildDSN(cfg *interfaces.DatabaseConfig) (string, error) {
	if cfg.URL != "" {
		return cfg.URL, nil
	}
	if cfg.Path == "" {
		return cfg.Name, nil
	}
	return filepath.Join(cfg.Path, cfg.Name), nil
}

// setup keeps a single connection so the key pragma applies to every statement
func setup(ctx context.Context, db *sqlx.DB, cfg *interfaces.DatabaseConfig) error {
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if cfg.Password != "" {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA key = %s", quote(cfg.Password))); err != nil {
			return fmt.Errorf("failed to set sqlcipher key: %w", err)
		}
	}
	if cc := cfg.CipherConfig; cc != nil {
		if cc.Cipher != "" {
			if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA cipher = %s", quote(cc.Cipher))); err != nil {
				return fmt.Errorf("failed to set sqlcipher cipher: %w", err)
			}
		}
		if cc.PageSize > 0 {
			if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA cipher_page_size = %d", cc.PageSize)); err != nil {
				return fmt.Errorf("failed to set sqlcipher page size: %w", err)
			}
		}
	}
	return nil
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
