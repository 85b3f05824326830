package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if err != nil {
		t.Fatalf("Load() error = %v, want nil for missing file", err)
	}
	if cfg.AuthMode != AuthModeOpen {
		t.Fatalf("AuthMode = %q, want %q", cfg.AuthMode, AuthModeOpen)
	}
	if cfg.IPFilterMode != IPFilterModeAllowByDefault {
		t.Fatalf("IPFilterMode = %q, want %q", cfg.IPFilterMode, IPFilterModeAllowByDefault)
	}
}

func TestLoadParsesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gui_config.json")
	contents := `{"admin_password":"hunter2","upstream_proxy_url":"proxy.internal:8080","auth_mode":"strict","ip_filter_mode":"deny"}`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AdminPassword != "hunter2" {
		t.Fatalf("AdminPassword = %q, want hunter2", cfg.AdminPassword)
	}
	if cfg.UpstreamProxy != "proxy.internal:8080" {
		t.Fatalf("UpstreamProxy = %q", cfg.UpstreamProxy)
	}
	if cfg.AuthMode != AuthModeStrict {
		t.Fatalf("AuthMode = %q, want strict", cfg.AuthMode)
	}
}

func TestLoadMalformedFileIsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gui_config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for malformed config")
	}
}

func TestEnvOverridesFileValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gui_config.json")
	if err := os.WriteFile(path, []byte(`{"upstream_proxy_url":"file-proxy:8080"}`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	t.Setenv("NEXUS_UPSTREAM_PROXY", "env-proxy:9090")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.UpstreamProxy != "env-proxy:9090" {
		t.Fatalf("UpstreamProxy = %q, want env override", cfg.UpstreamProxy)
	}
}
