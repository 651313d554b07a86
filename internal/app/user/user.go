// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package user is the sample entity: a person with a name, an age and a place.
package user

import (
	"github.com/qolzam/dbkit/internal/database/interfaces"
	"github.com/qolzam/dbkit/internal/orm"
)

const (
	Name      = "user"
	ModelPath = "model/user"
	StorePath = "stores/user"
)

// Schema returns the user schema with a table statement per SQL database
func Schema() *orm.Schema {
	return &orm.Schema{
		Name:    Name,
		IDField: "id",
		Fields: []orm.FieldDef{
			{Name: "name", Default: ""},
			{Name: "age", Default: 0},
			{Name: "place", Default: ""},
		},
		SQLSchema: "CREATE TABLE IF NOT EXISTS user (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT, age INTEGER, place TEXT)",
		Dialects: map[string]string{
			interfaces.DatabaseTypeMySQL: "CREATE TABLE IF NOT EXISTS user (id BIGINT AUTO_INCREMENT PRIMARY KEY, name VARCHAR(255), age INT, place VARCHAR(255))",
			// user is reserved in PostgreSQL, the table name must stay quoted
			interfaces.DatabaseTypePostgreSQL: `CREATE TABLE IF NOT EXISTS "user" (id SERIAL PRIMARY KEY, name TEXT, age INTEGER, place TEXT)`,
		},
	}
}

// Catalog resolves the user model and store paths
func Catalog() orm.Catalog {
	return orm.Catalog{
		Models: map[string]*orm.Schema{ModelPath: Schema()},
		Stores: map[string]orm.StoreDefinition{StorePath: {Model: Name}},
	}
}

// AppConfig declares the user model and store over database
func AppConfig(database interfaces.DatabaseConfig) *interfaces.AppConfig {
	return &interfaces.AppConfig{
		Database: database,
		Models:   []interfaces.ModelConfig{{Name: Name, Path: ModelPath}},
		Stores:   []interfaces.StoreConfig{{Name: Name, Path: StorePath}},
	}
}
