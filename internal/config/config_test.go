package config

import (
	"strings"
	"testing"
)

func base() Config {
	return Config{
		DBDriver:            "postgres",
		DBHost:              "localhost",
		DBPort:              5432,
		DBUser:              "nearhand",
		DBName:              "nearhand",
		DBSSLMode:           "disable",
		SQLitePath:          "nearhand.db",
		ShutdownTimeout:     10,
		FeedCacheTTLSeconds: 5,
	}
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	cfg := base()
	cfg.DBDriver = "oracle"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for unknown driver")
	}
}

func TestValidateSQLiteNeedsPath(t *testing.T) {
	cfg := base()
	cfg.DBDriver = "sqlite"
	cfg.SQLitePath = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for missing sqlite path")
	}
}

func TestDatabaseDSNPrefersExplicitURL(t *testing.T) {
	cfg := base()
	cfg.DatabaseURL = "postgres://elsewhere/db"
	if got := cfg.DatabaseDSN(); got != "postgres://elsewhere/db" {
		t.Fatalf("dsn = %s", got)
	}

	cfg.DatabaseURL = ""
	if got := cfg.DatabaseDSN(); !strings.Contains(got, "localhost:5432/nearhand") {
		t.Fatalf("dsn = %s", got)
	}
}
