package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/qolzam/dbkit/internal/database/interfaces"
	"github.com/qolzam/dbkit/internal/pkg/log"
)

// Config is the process configuration read from the environment
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Log      LogConfig      `json:"log"`
	App      AppConfig      `json:"app"`

	// keys found in the environment, used by ApplyTo
	explicit map[string]bool
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Host  string `json:"host"`
	Port  int    `json:"port"`
	Debug bool   `json:"debug"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Type            string        `json:"type"`
	Name            string        `json:"name"`
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Username        string        `json:"username"`
	Password        string        `json:"password"`
	URL             string        `json:"url"`
	Path            string        `json:"path"`
	Cipher          string        `json:"cipher"`
	SSLMode         string        `json:"sslMode"`
	MaxOpenConns    int           `json:"maxOpenConns"`
	MaxIdleConns    int           `json:"maxIdleConns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime"`
	Metrics         bool          `json:"metrics"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// AppConfig holds application-related configuration
type AppConfig struct {
	Name       string `json:"name"`
	ConfigFile string `json:"configFile"`
}

// source reads raw configuration values by key
type source func(key string) (string, bool)

func (s source) get(key, defaultValue string) string {
	if value, ok := s(key); ok && value != "" {
		return value
	}
	return defaultValue
}

func (s source) getInt(key string, defaultValue int) int {
	if value, ok := s(key); ok {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func (s source) getBool(key string, defaultValue bool) bool {
	if value, ok := s(key); ok {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getSeconds reads a duration given either as seconds or as a Go duration
func (s source) getSeconds(key string, defaultValue time.Duration) time.Duration {
	if value, ok := s(key); ok {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

var envKeys = []string{
	"DB_TYPE", "DB_NAME", "DB_HOST", "DB_PORT", "DB_USERNAME", "DB_PASSWORD",
	"DB_URL", "DB_PATH", "DB_CIPHER", "DB_SSL_MODE",
	"DB_MAX_OPEN_CONNS", "DB_MAX_IDLE_CONNS", "DB_CONN_MAX_LIFETIME", "DB_METRICS",
	"LOG_LEVEL", "LOG_FORMAT",
	"SERVER_HOST", "SERVER_PORT", "DEBUG",
	"APP_NAME", "APP_CONFIG_FILE",
}

// LoadFromEnv loads configuration from the environment.
// Explicit environment variables win over values from a .env file, which
// win over the defaults.
func LoadFromEnv() (*Config, error) {
	envPaths := []string{
		".env",       // Current directory
		"../.env",    // From cmd/server
		"../../.env", // From internal/platform/config
	}

	var loadErr error
	for _, envPath := range envPaths {
		loadErr = godotenv.Load(envPath)
		if loadErr == nil {
			break
		}
	}
	if loadErr != nil {
		log.Info(".env file not found, using environment variables and defaults.")
	}

	return load(os.LookupEnv)
}

// LoadFromMap loads configuration from an in-memory map.
// It is the helper for testing configuration logic without touching
// process environment variables.
func LoadFromMap(envMap map[string]string) (*Config, error) {
	return load(func(key string) (string, bool) {
		value, ok := envMap[key]
		return value, ok
	})
}

func load(src source) (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Host:  src.get("SERVER_HOST", "localhost"),
			Port:  src.getInt("SERVER_PORT", 8080),
			Debug: src.getBool("DEBUG", false),
		},
		Database: DatabaseConfig{
			Type:            src.get("DB_TYPE", interfaces.DatabaseTypeSQLCipher),
			Name:            src.get("DB_NAME", "dbkit.db"),
			Host:            src.get("DB_HOST", ""),
			Port:            src.getInt("DB_PORT", 0),
			Username:        src.get("DB_USERNAME", ""),
			Password:        src.get("DB_PASSWORD", ""),
			URL:             src.get("DB_URL", ""),
			Path:            src.get("DB_PATH", "./data"),
			Cipher:          src.get("DB_CIPHER", ""),
			SSLMode:         src.get("DB_SSL_MODE", "disable"),
			MaxOpenConns:    src.getInt("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:    src.getInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: src.getSeconds("DB_CONN_MAX_LIFETIME", 300*time.Second),
			Metrics:         src.getBool("DB_METRICS", true),
		},
		Log: LogConfig{
			Level:  strings.ToLower(src.get("LOG_LEVEL", "info")),
			Format: strings.ToLower(src.get("LOG_FORMAT", "console")),
		},
		App: AppConfig{
			Name:       src.get("APP_NAME", "dbkit"),
			ConfigFile: src.get("APP_CONFIG_FILE", ""),
		},
		explicit: map[string]bool{},
	}
	for _, key := range envKeys {
		if value, ok := src(key); ok && value != "" {
			config.explicit[key] = true
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration for required fields
func (c *Config) Validate() error {
	var errors []string

	validDbTypes := []string{
		interfaces.DatabaseTypeMongoDB,
		interfaces.DatabaseTypeMySQL,
		interfaces.DatabaseTypePostgreSQL,
		interfaces.DatabaseTypeSQLCipher,
	}
	if !contains(validDbTypes, c.Database.Type) {
		errors = append(errors, fmt.Sprintf("DB_TYPE must be one of: %s", strings.Join(validDbTypes, ", ")))
	}
	if strings.TrimSpace(c.Database.Name) == "" {
		errors = append(errors, "DB_NAME is required")
	}
	if c.Database.Port < 0 || c.Database.Port > 65535 {
		errors = append(errors, "DB_PORT must be between 0 and 65535")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errors = append(errors, "SERVER_PORT must be between 1 and 65535")
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		errors = append(errors, "LOG_LEVEL must be one of: debug, info, warn, error")
	}
	if !contains([]string{"console", "json"}, c.Log.Format) {
		errors = append(errors, "LOG_FORMAT must be one of: console, json")
	}

	if len(errors) > 0 {
		return fmt.Errorf("validation errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

// DatabaseConfig converts the database section for the database factory
func (c *Config) DatabaseConfig() *interfaces.DatabaseConfig {
	db := c.Database
	cfg := &interfaces.DatabaseConfig{
		Type:     db.Type,
		Name:     db.Name,
		Host:     db.Host,
		Port:     db.Port,
		Username: db.Username,
		Password: db.Password,
		URL:      db.URL,
		Path:     db.Path,
	}
	switch db.Type {
	case interfaces.DatabaseTypeMongoDB:
		cfg.MongoConfig = &interfaces.MongoDBConfig{MaxPoolSize: db.MaxOpenConns}
	case interfaces.DatabaseTypeSQLCipher:
		cfg.Host = ""
		if db.Cipher != "" {
			cfg.CipherConfig = &interfaces.SQLCipherConfig{Cipher: db.Cipher}
		}
	default:
		cfg.SQLConfig = &interfaces.SQLConfig{
			SSLMode:            db.SSLMode,
			MaxOpenConnections: db.MaxOpenConns,
			MaxIdleConnections: db.MaxIdleConns,
			MaxLifetime:        int(db.ConnMaxLifetime / time.Second),
		}
	}
	return cfg
}

// ApplyTo overlays the database settings found in the environment onto the
// app file. An app file without a database type takes the whole section.
func (c *Config) ApplyTo(app *interfaces.AppConfig) {
	if app.Database.Type == "" {
		app.Database = *c.DatabaseConfig()
		return
	}

	db := &app.Database
	if c.explicit["DB_TYPE"] && c.Database.Type != db.Type {
		// another engine, the file's connection settings no longer apply
		*db = *c.DatabaseConfig()
		return
	}
	overlay := func(key string, dst *string, value string) {
		if c.explicit[key] {
			*dst = value
		}
	}
	overlay("DB_NAME", &db.Name, c.Database.Name)
	overlay("DB_HOST", &db.Host, c.Database.Host)
	overlay("DB_USERNAME", &db.Username, c.Database.Username)
	overlay("DB_PASSWORD", &db.Password, c.Database.Password)
	overlay("DB_URL", &db.URL, c.Database.URL)
	overlay("DB_PATH", &db.Path, c.Database.Path)
	if c.explicit["DB_PORT"] {
		db.Port = c.Database.Port
	}
	if c.explicit["DB_CIPHER"] {
		if db.CipherConfig == nil {
			db.CipherConfig = &interfaces.SQLCipherConfig{}
		}
		db.CipherConfig.Cipher = c.Database.Cipher
	}
}

// LoadAppConfig reads the app file: {database, models, stores}
func LoadAppConfig(path string) (*interfaces.AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read app config %s: %w", path, err)
	}
	app := &interfaces.AppConfig{}
	if err := json.Unmarshal(data, app); err != nil {
		return nil, fmt.Errorf("parse app config %s: %w", path, err)
	}
	return app, nil
}

// LogSettings converts the log section for log.Configure
func (c *Config) LogSettings() log.Config {
	return log.Config{Level: c.Log.Level, Format: c.Log.Format}
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
