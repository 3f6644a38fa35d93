package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Port != "8080" {
		t.Errorf("expected port 8080, got %s", cfg.Server.Port)
	}
	if cfg.LSP.StartTimeout != 15*time.Second {
		t.Errorf("expected start timeout 15s, got %v", cfg.LSP.StartTimeout)
	}
	if cfg.Facts.Path == "" {
		t.Error("expected default facts path")
	}
	if cfg.Exec.MaxConcurrent != 4 {
		t.Errorf("expected max_concurrent 4, got %d", cfg.Exec.MaxConcurrent)
	}
}

func TestLoadYAMLOverride(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "test.yaml")

	content := `
server:
  port: "9090"
  cors_origin: "http://example.com"
workspace:
  root: "/srv/project"
lsp:
  request_timeout: 10s
  servers:
    go:
      command: ["gopls", "serve"]
      extensions: [".go"]
      language_id: "go"
logging:
  level: "debug"
`
	if err := os.WriteFile(yamlPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Defaults()
	if err := loadYAML(&cfg, yamlPath); err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Workspace.Root != "/srv/project" {
		t.Errorf("expected workspace /srv/project, got %s", cfg.Workspace.Root)
	}
	if cfg.LSP.RequestTimeout != 10*time.Second {
		t.Errorf("expected request timeout 10s, got %v", cfg.LSP.RequestTimeout)
	}
	srv, ok := cfg.LSP.Servers["go"]
	if !ok {
		t.Fatal("expected go server config")
	}
	if srv.LanguageID != "go" || len(srv.Command) != 2 {
		t.Errorf("unexpected go server config: %+v", srv)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Logging.Level)
	}
	// Unchanged fields keep defaults
	if cfg.LSP.StartTimeout != 15*time.Second {
		t.Errorf("expected default start timeout, got %v", cfg.LSP.StartTimeout)
	}
}

func TestLoadYAMLMissing(t *testing.T) {
	cfg := Defaults()
	err := loadYAML(&cfg, "/nonexistent/path.yaml")
	if err != nil {
		t.Errorf("missing YAML should not error, got %v", err)
	}
}

func TestEnvOverride(t *testing.T) {
	cfg := Defaults()

	t.Setenv("WORKBENCH_PORT", "7070")
	t.Setenv("WORKBENCH_ROOT", "/tmp/ws")
	t.Setenv("WORKBENCH_LSP_REQUEST_TIMEOUT", "45s")
	t.Setenv("WORKBENCH_LOG_LEVEL", "warn")
	t.Setenv("WORKBENCH_EXEC_ALLOWLIST", "go, git")
	t.Setenv("WORKBENCH_FACTS_DSN", "postgres://test:test@db:5432/test")

	loadEnv(&cfg)

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port 7070, got %s", cfg.Server.Port)
	}
	if cfg.Workspace.Root != "/tmp/ws" {
		t.Errorf("expected root /tmp/ws, got %s", cfg.Workspace.Root)
	}
	if cfg.LSP.RequestTimeout != 45*time.Second {
		t.Errorf("expected request timeout 45s, got %v", cfg.LSP.RequestTimeout)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected log level warn, got %s", cfg.Logging.Level)
	}
	if len(cfg.Exec.Allowlist) != 2 || cfg.Exec.Allowlist[1] != "git" {
		t.Errorf("expected allowlist [go git], got %v", cfg.Exec.Allowlist)
	}
	if cfg.Facts.DSN != "postgres://test:test@db:5432/test" {
		t.Errorf("expected test DSN, got %s", cfg.Facts.DSN)
	}
}

func TestValidateRequired(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{
			name:   "empty port",
			modify: func(c *Config) { c.Server.Port = "" },
			errMsg: "server.port is required",
		},
		{
			name:   "empty workspace root",
			modify: func(c *Config) { c.Workspace.Root = "" },
			errMsg: "workspace.root is required",
		},
		{
			name:   "zero request timeout",
			modify: func(c *Config) { c.LSP.RequestTimeout = 0 },
			errMsg: "lsp.request_timeout must be > 0",
		},
		{
			name: "no facts sink",
			modify: func(c *Config) {
				c.Facts.DSN = ""
				c.Facts.Path = ""
			},
			errMsg: "facts.dsn or facts.path is required",
		},
		{
			name: "server without command",
			modify: func(c *Config) {
				c.LSP.Servers = map[string]LanguageServer{"go": {}}
			},
			errMsg: "lsp.servers.go.command is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.modify(&cfg)
			err := validate(&cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if err.Error() != tt.errMsg {
				t.Errorf("expected %q, got %q", tt.errMsg, err.Error())
			}
		})
	}
}

func TestLoadFromAppliesAllLayers(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "workbench.yaml")
	if err := os.WriteFile(yamlPath, []byte("server:\n  port: \"9191\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("WORKBENCH_LOG_LEVEL", "error")

	cfg, err := LoadFrom(yamlPath)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != "9191" {
		t.Errorf("expected yaml port 9191, got %s", cfg.Server.Port)
	}
	if cfg.Logging.Level != "error" {
		t.Errorf("expected env log level error, got %s", cfg.Logging.Level)
	}
}
