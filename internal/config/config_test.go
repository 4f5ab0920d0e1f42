package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoad_MissingDefaultFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	wd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(wd) })

	cfg, err := Load("", Overrides{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Source != "defaults" {
		t.Errorf("got Source %q, want defaults", cfg.Source)
	}
}

func TestLoad_ExplicitMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), Overrides{}); err == nil {
		t.Error("expected error for missing explicit config")
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dwell.yaml")
	content := `
endpoint: https://study.example.org
request_timeout: 5s
logging:
  level: debug
csrf:
  cookie_name: museumcsrf
paths:
  interaction: /collector/log/
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path, Overrides{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Endpoint != "https://study.example.org" {
		t.Errorf("got Endpoint %q", cfg.Endpoint)
	}
	if cfg.RequestTimeout != 5*time.Second {
		t.Errorf("got RequestTimeout %s", cfg.RequestTimeout)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "console" {
		t.Errorf("got Logging %+v", cfg.Logging)
	}
	if cfg.CSRF.CookieName != "museumcsrf" || cfg.CSRF.PrimePath != "/" {
		t.Errorf("got CSRF %+v", cfg.CSRF)
	}
	paths := cfg.EmitterPaths()
	if paths.Interaction != "/collector/log/" || paths.Page != "/logger/page/" {
		t.Errorf("got paths %+v", paths)
	}
	if cfg.Source != path {
		t.Errorf("got Source %q, want %q", cfg.Source, path)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DWELL_ENDPOINT", "http://127.0.0.1:9000")
	t.Setenv("DWELL_CSRF_TOKEN", "fixed")
	t.Setenv("DWELL_DB_PATH", "/tmp/other.db")

	cfg, err := Load(writeConfig(t, "endpoint: http://ignored:1\n"), Overrides{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Endpoint != "http://127.0.0.1:9000" {
		t.Errorf("got Endpoint %q", cfg.Endpoint)
	}
	if cfg.CSRF.Token != "fixed" {
		t.Errorf("got CSRF token %q", cfg.CSRF.Token)
	}
	if cfg.DBPath != "/tmp/other.db" {
		t.Errorf("got DBPath %q", cfg.DBPath)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"relative endpoint": "endpoint: /just/a/path\n",
		"bad scheme":        "endpoint: ftp://host\n",
		"negative timeout":  "request_timeout: -1s\n",
		"relative path":     "paths:\n  rating: rating/\n",
		"bad yaml":          "endpoint: [\n",
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, content), Overrides{}); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoad_OverridesValidatedOnce(t *testing.T) {
	t.Setenv("DWELL_ENDPOINT", "not a url")

	if _, err := Load(writeConfig(t, ""), Overrides{}); err == nil {
		t.Fatal("expected error for invalid environment endpoint")
	}

	cfg, err := Load(writeConfig(t, ""), Overrides{Endpoint: "https://study.example.org", LogLevel: "debug"})
	if err != nil {
		t.Fatalf("flag override should replace the invalid endpoint: %v", err)
	}
	if cfg.Endpoint != "https://study.example.org" {
		t.Errorf("got Endpoint %q", cfg.Endpoint)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("got Logging.Level %q", cfg.Logging.Level)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dwell.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
