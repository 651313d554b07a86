// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package interfaces

// AppConfig is the materialized configuration input: one database,
// the models to register and the stores to build over them.
type AppConfig struct {
	Database DatabaseConfig `json:"database"`
	Models   []ModelConfig  `json:"models"`
	Stores   []StoreConfig  `json:"stores"`
}

// ModelConfig declares a model. Path resolves the schema in the model catalog;
// Schema, when set, overrides the catalog's SQL DDL.
type ModelConfig struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Schema string `json:"schema,omitempty"`
}

// StoreConfig declares a store. Path resolves the definition in the store catalog.
type StoreConfig struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// DatabaseConfig represents the configuration of the single active database
type DatabaseConfig struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	URL      string `json:"url,omitempty"`
	Path     string `json:"path,omitempty"`

	// MongoDB specific
	MongoConfig *MongoDBConfig `json:"mongo,omitempty"`

	// MySQL / PostgreSQL / SQLCipher connection pool
	SQLConfig *SQLConfig `json:"sql,omitempty"`

	// SQLCipher specific
	CipherConfig *SQLCipherConfig `json:"cipher,omitempty"`
}

// MongoDBConfig represents MongoDB specific configuration
type MongoDBConfig struct {
	AuthDatabase           string `json:"authDatabase,omitempty"`
	ReplicaSet             string `json:"replicaSet,omitempty"`
	SSL                    bool   `json:"ssl,omitempty"`
	ConnectTimeout         int    `json:"connectTimeout,omitempty"`
	SocketTimeout          int    `json:"socketTimeout,omitempty"`
	MaxPoolSize            int    `json:"maxPoolSize,omitempty"`
	MinPoolSize            int    `json:"minPoolSize,omitempty"`
	MaxIdleTime            int    `json:"maxIdleTime,omitempty"`
	ServerSelectionTimeout int    `json:"serverSelectionTimeout,omitempty"`
}

// SQLConfig represents relational driver pool configuration
type SQLConfig struct {
	SSLMode            string `json:"sslMode,omitempty"`
	ConnectTimeout     int    `json:"connectTimeout,omitempty"`
	MaxOpenConnections int    `json:"maxOpenConnections,omitempty"`
	MaxIdleConnections int    `json:"maxIdleConnections,omitempty"`
	MaxLifetime        int    `json:"maxLifetime,omitempty"`
}

// SQLCipherConfig represents SQLCipher specific configuration
type SQLCipherConfig struct {
	Cipher   string `json:"cipher,omitempty"`
	PageSize int    `json:"pageSize,omitempty"`
}
