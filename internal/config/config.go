// Package config provides hierarchical configuration loading for Workbench.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the Workbench service.
type Config struct {
	Server    Server    `yaml:"server"`
	Logging   Logging   `yaml:"logging"`
	Workspace Workspace `yaml:"workspace"`
	LSP       LSP       `yaml:"lsp"`
	Facts     Facts     `yaml:"facts"`
	Cache     Cache     `yaml:"cache"`
	Exec      Exec      `yaml:"exec"`
	MCP       MCP       `yaml:"mcp"`
	Otel      Otel      `yaml:"otel"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port       string `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// Workspace holds the project root all file and tool operations are confined to.
type Workspace struct {
	Root string `yaml:"root"`
}

// LanguageServer defines how to launch one language server process.
type LanguageServer struct {
	Command    []string `yaml:"command"`     // e.g. ["gopls", "serve"]
	Extensions []string `yaml:"extensions"`  // file extensions this family serves, e.g. [".go"]
	LanguageID string   `yaml:"language_id"` // LSP languageId sent in didOpen
}

// LSP holds language-intelligence engine configuration.
type LSP struct {
	// Servers maps a language family name to its launch configuration.
	// Empty means the built-in defaults (see domain/lsp.DefaultServers).
	Servers map[string]LanguageServer `yaml:"servers"`

	// DefaultFamily serves files whose extension matches no configured family.
	DefaultFamily string `yaml:"default_family"`

	StartTimeout    time.Duration `yaml:"start_timeout"`    // initialize handshake deadline
	RequestTimeout  time.Duration `yaml:"request_timeout"`  // per-request deadline
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // graceful shutdown deadline
	DiagnosticsWait time.Duration `yaml:"diagnostics_wait"` // bounded wait for pushed diagnostics
	MaxDiagnostics  int           `yaml:"max_diagnostics"`  // cap per file, 0 = unlimited
}

// Facts holds change-log store configuration. When DSN is set the PostgreSQL
// adapter is used; otherwise facts are appended to the JSONL file at Path.
type Facts struct {
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
	HealthCheck     time.Duration `yaml:"health_check"`
	Path            string        `yaml:"path"`
}

// Cache holds the in-process file read cache configuration.
type Cache struct {
	MaxSizeMB int64         `yaml:"max_size_mb"`
	TTL       time.Duration `yaml:"ttl"`
}

// Exec holds whitelisted command execution configuration.
type Exec struct {
	Allowlist     []string      `yaml:"allowlist"` // permitted argv[0] values
	Timeout       time.Duration `yaml:"timeout"`
	MaxOutputKB   int           `yaml:"max_output_kb"`
	MaxConcurrent int64         `yaml:"max_concurrent"`
}

// MCP holds the Model Context Protocol server configuration. The tool surface
// is always mounted at /mcp on the main server; Addr additionally serves it
// on a dedicated listener when set.
type MCP struct {
	Addr    string `yaml:"addr"` // e.g. ":8081", empty disables the dedicated listener
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	APIKey  string `yaml:"api_key"` // empty disables auth
}

// Otel holds OpenTelemetry export configuration. Empty endpoint disables export.
type Otel struct {
	Endpoint string `yaml:"endpoint"`
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:       "8080",
			CORSOrigin: "http://localhost:3000",
		},
		Logging: Logging{
			Level:   "info",
			Service: "workbench",
		},
		Workspace: Workspace{
			Root: ".",
		},
		LSP: LSP{
			DefaultFamily:   "go",
			StartTimeout:    15 * time.Second,
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			DiagnosticsWait: 2 * time.Second,
			MaxDiagnostics:  200,
		},
		Facts: Facts{
			MaxConns:        5,
			MinConns:        1,
			MaxConnLifetime: time.Hour,
			MaxConnIdleTime: 10 * time.Minute,
			HealthCheck:     time.Minute,
			Path:            ".workbench/facts.jsonl",
		},
		Cache: Cache{
			MaxSizeMB: 64,
			TTL:       5 * time.Minute,
		},
		Exec: Exec{
			Allowlist:     []string{"go", "gofmt", "git", "make", "npm", "npx", "python3"},
			Timeout:       60 * time.Second,
			MaxOutputKB:   256,
			MaxConcurrent: 4,
		},
		MCP: MCP{
			Name:    "workbench",
			Version: "0.1.0",
		},
	}
}
