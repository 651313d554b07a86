// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package factory creates databases from configuration and manages the
// single active database of a process.
package factory

import (
	"context"
	"sort"
	"sync"

	"github.com/qolzam/dbkit/internal/database"
	"github.com/qolzam/dbkit/internal/database/interfaces"
	"github.com/qolzam/dbkit/internal/database/mongodb"
	"github.com/qolzam/dbkit/internal/database/mysql"
	"github.com/qolzam/dbkit/internal/database/postgres"
	"github.com/qolzam/dbkit/internal/database/sqlcipher"
	"github.com/qolzam/dbkit/internal/pkg/log"
)

// DriverConstructor creates a fresh driver
type DriverConstructor func() interfaces.Driver

// DBFactory is a registry of driver constructors keyed by database type
type DBFactory struct {
	mu           sync.RWMutex
	constructors map[string]DriverConstructor
	dbOptions    []database.Option
}

// NewDBFactory creates a factory with the built-in drivers registered.
// opts are applied to every created database.
func NewDBFactory(opts ...database.Option) *DBFactory {
	f := &DBFactory{
		constructors: make(map[string]DriverConstructor),
		dbOptions:    opts,
	}
	f.Register(interfaces.DatabaseTypeMongoDB, func() interfaces.Driver { return mongodb.NewDriver() })
	f.Register(interfaces.DatabaseTypeMySQL, func() interfaces.Driver { return mysql.NewDriver() })
	f.Register(interfaces.DatabaseTypePostgreSQL, func() interfaces.Driver { return postgres.NewDriver() })
	f.Register(interfaces.DatabaseTypeSQLCipher, func() interfaces.Driver { return sqlcipher.NewDriver() })
	return f
}

// Register adds or replaces the constructor for a database type
func (f *DBFactory) Register(databaseType string, ctor DriverConstructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.constructors[databaseType] = ctor
}

// Types returns the registered database types in order
func (f *DBFactory) Types() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	types := make([]string, 0, len(f.constructors))
	for t := range f.constructors {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// CreateDB validates cfg, constructs the driver and initializes the database
func (f *DBFactory) CreateDB(ctx context.Context, cfg *interfaces.DatabaseConfig) (*database.DB, error) {
	if err := f.ValidateConfig(cfg); err != nil {
		return nil, err
	}

	f.mu.RLock()
	ctor := f.constructors[cfg.Type]
	f.mu.RUnlock()

	db := database.New(ctor(), f.dbOptions...)
	if err := db.Init(ctx, cfg); err != nil {
		return nil, err
	}
	return db, nil
}

// ValidateConfig checks the configuration and fills in defaults
func (f *DBFactory) ValidateConfig(cfg *interfaces.DatabaseConfig) error {
	if cfg == nil {
		return interfaces.ConfigurationError("database configuration is nil")
	}
	if cfg.Type == "" {
		return interfaces.ConfigurationError("database type is required")
	}

	f.mu.RLock()
	_, ok := f.constructors[cfg.Type]
	f.mu.RUnlock()
	if !ok {
		return interfaces.ConfigurationError("unsupported database type: %s", cfg.Type)
	}
	if cfg.Name == "" {
		return interfaces.ConfigurationError("database name is required")
	}

	switch cfg.Type {
	case interfaces.DatabaseTypeMongoDB:
		return validateMongoConfig(cfg)
	case interfaces.DatabaseTypeMySQL:
		return validateSQLConfig(cfg, 3306)
	case interfaces.DatabaseTypePostgreSQL:
		if err := validateSQLConfig(cfg, 5432); err != nil {
			return err
		}
		if cfg.SQLConfig.SSLMode == "" {
			cfg.SQLConfig.SSLMode = "disable" // Default SSL mode
		}
		return nil
	case interfaces.DatabaseTypeSQLCipher:
		return validateSQLCipherConfig(cfg)
	}
	return nil
}

// validateMongoConfig validates MongoDB configuration
func validateMongoConfig(cfg *interfaces.DatabaseConfig) error {
	if cfg.URL == "" && cfg.Host == "" {
		return interfaces.ConfigurationError("MongoDB host is required")
	}
	if cfg.Port <= 0 {
		cfg.Port = 27017 // Default MongoDB port
	}

	if cfg.MongoConfig == nil {
		cfg.MongoConfig = &interfaces.MongoDBConfig{}
	}
	mc := cfg.MongoConfig
	if mc.MaxPoolSize <= 0 {
		mc.MaxPoolSize = 100 // Default pool size
	}
	if mc.MinPoolSize <= 0 {
		mc.MinPoolSize = 10 // Default minimum pool size
	}
	if mc.ConnectTimeout <= 0 {
		mc.ConnectTimeout = 10 // Default 10 seconds
	}
	return nil
}

// validateSQLConfig validates MySQL and PostgreSQL configuration
func validateSQLConfig(cfg *interfaces.DatabaseConfig, defaultPort int) error {
	if cfg.URL == "" && cfg.Host == "" {
		return interfaces.ConfigurationError("%s host is required", cfg.Type)
	}
	if cfg.Port <= 0 {
		cfg.Port = defaultPort
	}

	if cfg.SQLConfig == nil {
		cfg.SQLConfig = &interfaces.SQLConfig{}
	}
	sc := cfg.SQLConfig
	if sc.MaxOpenConnections <= 0 {
		sc.MaxOpenConnections = 50 // Default max open connections
	}
	if sc.MaxIdleConnections <= 0 {
		sc.MaxIdleConnections = 10 // Default max idle connections
	}
	if sc.MaxLifetime <= 0 {
		sc.MaxLifetime = 300 // Default connection lifetime in seconds
	}
	if sc.ConnectTimeout <= 0 {
		sc.ConnectTimeout = 10 // Default 10 seconds
	}
	return nil
}

// validateSQLCipherConfig validates SQLCipher configuration
func validateSQLCipherConfig(cfg *interfaces.DatabaseConfig) error {
	if cfg.Path == "" && cfg.URL == "" {
		cfg.Path = "."
	}
	if cfg.Password == "" {
		log.Warn("SQLCipher database %s has no key, it will not be encrypted", cfg.Name)
	}
	return nil
}

// DbManager owns the single active database. Reconfiguring with another
// type disposes the current database first.
type DbManager struct {
	factory *DBFactory

	mu sync.Mutex
	db *database.DB
}

// NewDbManager creates a manager over factory
func NewDbManager(factory *DBFactory) *DbManager {
	return &DbManager{factory: factory}
}

// Configure returns the active database when it has the requested type,
// otherwise replaces it with a new one built from cfg.
func (m *DbManager) Configure(ctx context.Context, cfg *interfaces.DatabaseConfig) (*database.DB, error) {
	if cfg == nil {
		return nil, interfaces.ConfigurationError("database configuration is nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.db != nil {
		if m.db.DatabaseType() == cfg.Type {
			return m.db, nil
		}
		if m.db.State() != database.StateInvalid {
			if err := m.db.Dispose(ctx); err != nil {
				log.Error("Dispose %s database: %s", m.db.DatabaseType(), err.Error())
			}
		}
		m.db = nil
	}

	db, err := m.factory.CreateDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	m.db = db
	log.Info("Configured %s database %s", cfg.Type, cfg.Name)
	return db, nil
}

// Database returns the active database
func (m *DbManager) Database() (*database.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.db == nil {
		return nil, interfaces.ConfigurationError("database manager is not configured")
	}
	return m.db, nil
}

// OpenDatabase opens the active database
func (m *DbManager) OpenDatabase(ctx context.Context) (interface{}, error) {
	db, err := m.Database()
	if err != nil {
		return nil, err
	}
	return db.Open(ctx)
}

// CloseDatabase closes the active database
func (m *DbManager) CloseDatabase(ctx context.Context) error {
	db, err := m.Database()
	if err != nil {
		return err
	}
	return db.Close(ctx)
}

// DisposeDatabase disposes the active database and forgets it
func (m *DbManager) DisposeDatabase(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.db == nil {
		return interfaces.ConfigurationError("database manager is not configured")
	}
	err := m.db.Dispose(ctx)
	m.db = nil
	return err
}
