package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pkgconfig "github.com/starford/commonplace/pkg/config"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should pass: %v", err)
	}
	if got := cfg.App.HTTP.Address(); got != ":8080" {
		t.Errorf("Address() = %q, want %q", got, ":8080")
	}
}

func TestHTTPConfig_Validate(t *testing.T) {
	cfg := HTTPConfig{Port: 0}
	if err := cfg.Validate(); err == nil {
		t.Error("port 0 should fail")
	}
	cfg.Port = 70000
	if err := cfg.Validate(); err == nil {
		t.Error("port above 65535 should fail")
	}
	cfg.Port = 8080
	if err := cfg.Validate(); err != nil {
		t.Errorf("port 8080 should pass: %v", err)
	}
}

func TestVaultConfig_RequiresPath(t *testing.T) {
	cfg := VaultConfig{}
	if err := cfg.Validate(); err == nil {
		t.Error("empty vault path should fail")
	}
}

func TestIndexConfig_Durations(t *testing.T) {
	cfg := IndexConfig{DebounceMS: 250, SweepIntervalS: 300}
	if got := cfg.Debounce(); got != 250*time.Millisecond {
		t.Errorf("Debounce() = %v, want 250ms", got)
	}
	if got := cfg.SweepInterval(); got != 5*time.Minute {
		t.Errorf("SweepInterval() = %v, want 5m", got)
	}
}

func TestIndexConfig_Validate(t *testing.T) {
	valid := IndexConfig{DebounceMS: 100, QueueSize: 64, SweepIntervalS: 0, MaxRetries: 3}
	if err := valid.Validate(); err != nil {
		t.Fatalf("disabled sweep should pass: %v", err)
	}

	bad := valid
	bad.SweepIntervalS = -1
	if err := bad.Validate(); err == nil {
		t.Error("negative sweep interval should fail")
	}

	bad = valid
	bad.DebounceMS = 0
	if err := bad.Validate(); err == nil {
		t.Error("zero debounce should fail")
	}

	bad = valid
	bad.QueueSize = 0
	if err := bad.Validate(); err == nil {
		t.Error("zero queue size should fail")
	}

	bad = valid
	bad.MaxRetries = 0
	if err := bad.Validate(); err == nil {
		t.Error("zero max retries should fail")
	}
}

func TestConfig_ValidatePropagates(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Index.MaxRetries = 0
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch the index error")
	}
	if !strings.Contains(err.Error(), "MaxRetries") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadConfig_FromYAML(t *testing.T) {
	t.Setenv("CP_TEST_VAULT", "/tmp/vault-from-env")

	yamlBody := `app:
  http:
    port: 9090
vault:
  path: ${CP_TEST_VAULT}
index:
  debounce_ms: 50
  sweep_interval_s: 0
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yamlBody), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.HTTP.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.App.HTTP.Port)
	}
	if cfg.Vault.Path != "/tmp/vault-from-env" {
		t.Errorf("vault path = %q, want the env-expanded value", cfg.Vault.Path)
	}
	if cfg.Index.DebounceMS != 50 || cfg.Index.SweepIntervalS != 0 {
		t.Errorf("index = %+v, want the file overlay applied", cfg.Index)
	}
	// Keys absent from the file keep their defaults.
	if cfg.SQLite.Path != "./commonplace.db" {
		t.Errorf("sqlite path = %q, want default", cfg.SQLite.Path)
	}
	if cfg.Index.MaxRetries != 5 {
		t.Errorf("max retries = %d, want default 5", cfg.Index.MaxRetries)
	}
}

func TestLoadConfig_Failures(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(filepath.Join(t.TempDir(), "absent.yaml"), cfg); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	_ = os.WriteFile(path, []byte("app:\n  http:\n    port: -1\n"), 0o644)
	cfg = NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err == nil {
		t.Error("expected validation failure for a negative port")
	}
}
