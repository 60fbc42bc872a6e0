package config

import (
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfigRequiresJWTSecret(t *testing.T) {
	viper.Reset()
	t.Setenv("JWT_SECRET", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("LoadConfig should fail when JWT_SECRET is unset")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	viper.Reset()
	t.Setenv("JWT_SECRET", "test-secret")
	for _, key := range []string{"PORT", "GIN_MODE", "MIN_RESPONSE_TIME_MS",
		"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSLMODE"} {
		t.Setenv(key, "")
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Server.Port != "3080" {
		t.Errorf("port = %q, want 3080", cfg.Server.Port)
	}
	if cfg.Auth.MinResponseTimeMs != 1000 {
		t.Errorf("min response time = %d, want 1000", cfg.Auth.MinResponseTimeMs)
	}
	if !cfg.DevMode() {
		t.Error("default mode should be dev")
	}
	want := "host=localhost port=5432 user=dev password=devpass dbname=crm sslmode=disable"
	if dsn := cfg.Database.DSN(); dsn != want {
		t.Errorf("DSN = %q, want %q", dsn, want)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	viper.Reset()
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("GIN_MODE", "release")
	t.Setenv("PORT", "9090")
	t.Setenv("ALLOWED_ORIGINS", "https://crm.example.com,https://portale.example.com")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.DevMode() {
		t.Error("release mode should not be dev")
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("port = %q, want 9090", cfg.Server.Port)
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[0] != "https://crm.example.com" {
		t.Errorf("origins = %v", cfg.Server.AllowedOrigins)
	}
}
