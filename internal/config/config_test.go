package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	// keep a developer's .env out of the test
	chdir(t, t.TempDir())
	t.Setenv("RUNPOD_ENDPOINT_ID", "ep-1")
	t.Setenv("RUNPOD_API_KEY", "secret")
	t.Setenv("DB_HOST", "")
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatal(err)
		}
	})
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	t.Setenv("DEFAULT_IMAGE_WIDTH", "")
	t.Setenv("DEFAULT_GUIDANCE_SCALE", "")
	t.Setenv("DEFAULT_CHECK_INTERVAL", "")
	t.Setenv("DEFAULT_MAX_ATTEMPTS", "")
	t.Setenv("RUNPOD_BASE_URL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.DefaultImageWidth != 1024 || cfg.DefaultGuidanceScale != 3.5 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.CheckInterval != 2*time.Second {
		t.Fatalf("CheckInterval mismatch: got %s", cfg.CheckInterval)
	}
	if cfg.MaxAttempts != 150 {
		t.Fatalf("MaxAttempts mismatch: got %d", cfg.MaxAttempts)
	}
	if cfg.BaseURL != "https://api.runpod.ai/v2" {
		t.Fatalf("BaseURL mismatch: got %q", cfg.BaseURL)
	}
	if cfg.DB.Enabled() {
		t.Fatalf("ledger should be disabled without DB_HOST")
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("DEFAULT_NUM_IMAGES", "3")
	t.Setenv("DEFAULT_GUIDANCE_SCALE", "7.25")
	t.Setenv("DEFAULT_CHECK_INTERVAL", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.DefaultNumImages != 3 || cfg.DefaultGuidanceScale != 7.25 || cfg.CheckInterval != 5*time.Second {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
}

func TestLoadRequiresCredentials(t *testing.T) {
	setRequired(t)
	t.Setenv("RUNPOD_API_KEY", "")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "RUNPOD_API_KEY") {
		t.Fatalf("expected missing api key error, got %v", err)
	}
}

func TestLoadLedgerRequiresCompleteDB(t *testing.T) {
	setRequired(t)
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_USER", "flux")
	t.Setenv("DB_PASSWORD", "")
	t.Setenv("DB_NAME", "flux")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "DB_PASSWORD") {
		t.Fatalf("expected missing password error, got %v", err)
	}
}

func TestGetDSN(t *testing.T) {
	cfg := &Config{DB: DBConfig{Host: "db", Port: 5433, User: "u", Password: "p", Database: "d", SSLMode: "disable"}}
	want := "host=db port=5433 user=u password=p dbname=d sslmode=disable"
	if got := cfg.GetDSN(); got != want {
		t.Fatalf("GetDSN mismatch: got %q want %q", got, want)
	}
}
