package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "workbench.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "WORKBENCH_PORT")
	setString(&cfg.Server.CORSOrigin, "WORKBENCH_CORS_ORIGIN")
	setString(&cfg.Logging.Level, "WORKBENCH_LOG_LEVEL")
	setString(&cfg.Logging.Service, "WORKBENCH_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "WORKBENCH_LOG_ASYNC")
	setString(&cfg.Workspace.Root, "WORKBENCH_ROOT")

	setString(&cfg.LSP.DefaultFamily, "WORKBENCH_LSP_DEFAULT_FAMILY")
	setDuration(&cfg.LSP.StartTimeout, "WORKBENCH_LSP_START_TIMEOUT")
	setDuration(&cfg.LSP.RequestTimeout, "WORKBENCH_LSP_REQUEST_TIMEOUT")
	setDuration(&cfg.LSP.ShutdownTimeout, "WORKBENCH_LSP_SHUTDOWN_TIMEOUT")
	setDuration(&cfg.LSP.DiagnosticsWait, "WORKBENCH_LSP_DIAGNOSTICS_WAIT")
	setInt(&cfg.LSP.MaxDiagnostics, "WORKBENCH_LSP_MAX_DIAGNOSTICS")

	setString(&cfg.Facts.DSN, "WORKBENCH_FACTS_DSN")
	setInt32(&cfg.Facts.MaxConns, "WORKBENCH_FACTS_MAX_CONNS")
	setInt32(&cfg.Facts.MinConns, "WORKBENCH_FACTS_MIN_CONNS")
	setDuration(&cfg.Facts.MaxConnLifetime, "WORKBENCH_FACTS_MAX_CONN_LIFETIME")
	setDuration(&cfg.Facts.MaxConnIdleTime, "WORKBENCH_FACTS_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Facts.HealthCheck, "WORKBENCH_FACTS_HEALTH_CHECK")
	setString(&cfg.Facts.Path, "WORKBENCH_FACTS_PATH")

	setInt64(&cfg.Cache.MaxSizeMB, "WORKBENCH_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.TTL, "WORKBENCH_CACHE_TTL")

	setStrings(&cfg.Exec.Allowlist, "WORKBENCH_EXEC_ALLOWLIST")
	setDuration(&cfg.Exec.Timeout, "WORKBENCH_EXEC_TIMEOUT")
	setInt(&cfg.Exec.MaxOutputKB, "WORKBENCH_EXEC_MAX_OUTPUT_KB")
	setInt64(&cfg.Exec.MaxConcurrent, "WORKBENCH_EXEC_MAX_CONCURRENT")

	setString(&cfg.MCP.Addr, "WORKBENCH_MCP_ADDR")
	setString(&cfg.MCP.Name, "WORKBENCH_MCP_NAME")
	setString(&cfg.MCP.Version, "WORKBENCH_MCP_VERSION")
	setString(&cfg.MCP.APIKey, "WORKBENCH_MCP_API_KEY")

	setString(&cfg.Otel.Endpoint, "WORKBENCH_OTEL_ENDPOINT")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Workspace.Root == "" {
		return errors.New("workspace.root is required")
	}
	if cfg.LSP.StartTimeout <= 0 {
		return errors.New("lsp.start_timeout must be > 0")
	}
	if cfg.LSP.RequestTimeout <= 0 {
		return errors.New("lsp.request_timeout must be > 0")
	}
	if cfg.Facts.DSN == "" && cfg.Facts.Path == "" {
		return errors.New("facts.dsn or facts.path is required")
	}
	if cfg.Exec.MaxConcurrent < 1 {
		return errors.New("exec.max_concurrent must be >= 1")
	}
	for name, srv := range cfg.LSP.Servers {
		if len(srv.Command) == 0 {
			return fmt.Errorf("lsp.servers.%s.command is required", name)
		}
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setStrings(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		*dst = parts
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
