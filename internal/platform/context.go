// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package platform

import (
	"context"
	"fmt"

	"github.com/qolzam/dbkit/internal/database"
	"github.com/qolzam/dbkit/internal/database/factory"
	"github.com/qolzam/dbkit/internal/database/interfaces"
	"github.com/qolzam/dbkit/internal/orm"
	"github.com/qolzam/dbkit/internal/pkg/log"
)

// Context composes the database manager with the model and store registries
type Context struct {
	DB     *factory.DbManager
	Models *orm.ModelManager
	Stores *orm.StoreManager
}

// NewContext creates an empty context over the database factory f
func NewContext(f *factory.DBFactory) *Context {
	models := orm.NewModelManager()
	return &Context{
		DB:     factory.NewDbManager(f),
		Models: models,
		Stores: orm.NewStoreManager(models),
	}
}

// Bootstrap configures and opens the database, registers the models,
// creates the SQL tables and builds the stores
func (c *Context) Bootstrap(ctx context.Context, app *interfaces.AppConfig, catalog orm.Catalog) error {
	if app == nil {
		return interfaces.ConfigurationError("app configuration is required")
	}

	db, err := c.DB.Configure(ctx, &app.Database)
	if err != nil {
		return fmt.Errorf("failed to configure database: %w", err)
	}
	if _, err := c.DB.OpenDatabase(ctx); err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	log.Info("Database %s (%s) is open", app.Database.Name, db.DatabaseType())

	c.Models.Configure(app.Models, catalog.Models)

	if interfaces.IsSQLType(db.DatabaseType()) {
		for _, name := range c.Models.Names() {
			schema, _ := c.Models.Get(name)
			statement := schema.DDL(db.DatabaseType())
			if statement == "" {
				continue
			}
			if err := db.ExecuteStatement(ctx, statement); err != nil {
				log.Error("Schema of model %s: %s", name, err.Error())
			}
		}
	}

	c.Stores.Configure(db, app.Stores, catalog.Stores)
	return nil
}

// Store returns the configured store name
func (c *Context) Store(name string) (*orm.Store, bool) {
	return c.Stores.Get(name)
}

// Database returns the active database
func (c *Context) Database() (*database.DB, error) {
	return c.DB.Database()
}

// Shutdown disposes the active database
func (c *Context) Shutdown(ctx context.Context) error {
	return c.DB.DisposeDatabase(ctx)
}
