// Package testutil provides environment-aware database configurations for
// integration tests.
package testutil

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/gofrs/uuid"

	dbi "github.com/qolzam/dbkit/internal/database/interfaces"
)

// TestConfig holds the connection settings of the test databases
type TestConfig struct {
	MongoHost     string
	MongoPort     int
	MongoDatabase string

	MySQLHost     string
	MySQLPort     int
	MySQLUser     string
	MySQLPassword string
	MySQLDatabase string

	PGHost     string
	PGPort     int
	PGUser     string
	PGPassword string
	PGDatabase string

	CipherKey string
}

// LoadTestConfig loads configuration from environment
func LoadTestConfig() *TestConfig {
	return &TestConfig{
		MongoHost:     getEnv("mongo_host", "127.0.0.1"),
		MongoPort:     getIntEnv("mongo_port", 27017),
		MongoDatabase: getEnv("mongo_database", "dbkit_test"),

		MySQLHost:     getEnv("mysql_host", "127.0.0.1"),
		MySQLPort:     getIntEnv("mysql_port", 3306),
		MySQLUser:     getEnv("mysql_user", "root"),
		MySQLPassword: getEnv("mysql_pass", "root"),
		MySQLDatabase: getEnv("mysql_database", "dbkit_test"),

		PGHost:     getEnv("pg_host", "127.0.0.1"),
		PGPort:     getIntEnv("pg_port", 5432),
		PGUser:     getEnv("pg_user", "postgres"),
		PGPassword: getEnv("pg_pass", "postgres"),
		PGDatabase: getEnv("pg_database", "dbkit_test"),

		CipherKey: getEnvOrEphemeral("cipher_key", "key"),
	}
}

// DatabaseConfig returns the database configuration for dbType
func (c *TestConfig) DatabaseConfig(t *testing.T, dbType string) *dbi.DatabaseConfig {
	t.Helper()

	switch dbType {
	case dbi.DatabaseTypeMongoDB:
		return &dbi.DatabaseConfig{
			Type: dbType,
			Name: c.MongoDatabase,
			Host: c.MongoHost,
			Port: c.MongoPort,
			MongoConfig: &dbi.MongoDBConfig{
				ConnectTimeout:         5,
				ServerSelectionTimeout: 2,
			},
		}
	case dbi.DatabaseTypeMySQL:
		return &dbi.DatabaseConfig{
			Type:      dbType,
			Name:      c.MySQLDatabase,
			Host:      c.MySQLHost,
			Port:      c.MySQLPort,
			Username:  c.MySQLUser,
			Password:  c.MySQLPassword,
			SQLConfig: &dbi.SQLConfig{ConnectTimeout: 2},
		}
	case dbi.DatabaseTypePostgreSQL:
		return &dbi.DatabaseConfig{
			Type:      dbType,
			Name:      c.PGDatabase,
			Host:      c.PGHost,
			Port:      c.PGPort,
			Username:  c.PGUser,
			Password:  c.PGPassword,
			SQLConfig: &dbi.SQLConfig{SSLMode: "disable", ConnectTimeout: 2},
		}
	case dbi.DatabaseTypeSQLCipher:
		return &dbi.DatabaseConfig{
			Type:     dbType,
			Name:     "test_" + SanitizeTestName(t.Name()) + ".db",
			Path:     t.TempDir(),
			Password: c.CipherKey,
		}
	}
	t.Fatalf("unknown database type %q", dbType)
	return nil
}

// UniqueName returns a collection or table name unique to the running test
func UniqueName(t *testing.T) string {
	return fmt.Sprintf("test_%s_%s", SanitizeTestName(t.Name()), strings.ReplaceAll(uuid.Must(uuid.NewV4()).String(), "-", "")[:16])
}

func getEnv(key, defVal string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return defVal
}

func getIntEnv(key string, defVal int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defVal
}

func getEnvOrEphemeral(key, prefix string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fmt.Sprintf("ephemeral-%s-%s", prefix, uuid.Must(uuid.NewV4()).String()[:8])
}

// SanitizeTestName cleans a test name to be used safely in DB/table names.
// Enforces length limits to prevent MongoDB InvalidNamespace errors (63 char limit).
func SanitizeTestName(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, " ", "_")
	reg := regexp.MustCompile(`[^a-zA-Z0-9_]+`)
	name = strings.ToLower(reg.ReplaceAllString(name, ""))

	// "test_" prefix + "_" + 16-char suffix leaves 41 characters for the name
	const maxTestNameLength = 41
	if len(name) > maxTestNameLength {
		name = name[:maxTestNameLength]
	}
	return name
}
