// Package config assembles kestrel's runtime configuration: one
// sub-struct per concern, a DefaultConfig constructor, a JSON file
// loader, and an environment-override pass.
package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"
)

// DaemonConfig holds HTTP listener settings.
type DaemonConfig struct {
	HTTPAddr      string `json:"http_addr"`
	LogLevel      string `json:"log_level"`
	LogFormat     string `json:"log_format"`
	RequestLogFile string `json:"request_log_file"` // empty disables JSONL request logging
}

// EgressConfig controls the outbound blocklist filter.
type EgressConfig struct {
	BlocklistFile  string        `json:"blocklist_file"`
	ReloadInterval time.Duration `json:"reload_interval"`
}

// PoolConfig holds worker-pool settings. They are loaded and overridable
// but not consulted by the engine, whose pool always uses
// max(runtime.NumCPU(), 2) workers and a 30s idle timeout.
type PoolConfig struct {
	IdleTimeout time.Duration `json:"idle_timeout"`
	MaxWorkers  int           `json:"max_workers"`
}

// ExecutorConfig holds a per-invocation default timeout. It is loaded and
// overridable but not consulted by the HTTP dispatcher, which uses a fixed
// 5000 ms default.
type ExecutorConfig struct {
	DefaultTimeoutMillis int64 `json:"default_timeout_millis"`
}

// TracingConfig controls OpenTelemetry span export.
type TracingConfig struct {
	Enabled     bool    `json:"enabled"`
	Endpoint    string  `json:"endpoint"`
	ServiceName string  `json:"service_name"`
	SampleRate  float64 `json:"sample_rate"`
}

// MetricsConfig controls the Prometheus registry.
type MetricsConfig struct {
	Enabled          bool      `json:"enabled"`
	Namespace        string    `json:"namespace"`
	HistogramBuckets []float64 `json:"histogram_buckets"`
}

// ObservabilityConfig bundles tracing and metrics knobs.
type ObservabilityConfig struct {
	Tracing TracingConfig `json:"tracing"`
	Metrics MetricsConfig `json:"metrics"`
}

// AssetBackupConfig controls the optional S3 mirror of uploaded function
// manifests.
type AssetBackupConfig struct {
	Bucket string `json:"bucket"`
	Region string `json:"region"`
	Prefix string `json:"prefix"`
}

// KVConfig selects the backing store for resource-store KV resources.
type KVConfig struct {
	Backend   string `json:"backend"` // "memory" or "redis"
	RedisAddr string `json:"redis_addr"`
}

// SQLConfig optionally backs the SqlApi placeholder with a real,
// health-checked connection pool; every SqlApi call still returns
// NotImplemented.
type SQLConfig struct {
	DSN string `json:"dsn"`
}

// Config is the root configuration struct.
type Config struct {
	Daemon        DaemonConfig        `json:"daemon"`
	Egress        EgressConfig        `json:"egress"`
	Pool          PoolConfig          `json:"pool"`
	Executor      ExecutorConfig      `json:"executor"`
	Observability ObservabilityConfig `json:"observability"`
	AssetBackup   AssetBackupConfig   `json:"asset_backup"`
	KV            KVConfig            `json:"kv"`
	SQL           SQLConfig           `json:"sql"`
}

// DefaultConfig returns a Config with sensible defaults for running
// locally without any environment overrides.
func DefaultConfig() *Config {
	return &Config{
		Daemon: DaemonConfig{
			HTTPAddr:  ":8080",
			LogLevel:  "info",
			LogFormat: "text",
		},
		// RequestLogFile left empty: request logging goes to the console only
		// until a file destination is configured.
		Egress: EgressConfig{
			BlocklistFile:  "blocklist.tri1",
			ReloadInterval: 60 * time.Second,
		},
		Pool: PoolConfig{
			IdleTimeout: 30 * time.Second,
		},
		Executor: ExecutorConfig{
			DefaultTimeoutMillis: 5000,
		},
		Observability: ObservabilityConfig{
			Tracing: TracingConfig{
				Enabled:     false,
				Endpoint:    "localhost:4318",
				ServiceName: "kestrel",
				SampleRate:  1.0,
			},
			Metrics: MetricsConfig{
				Enabled:          true,
				Namespace:        "kestrel",
				HistogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
			},
		},
		KV: KVConfig{
			Backend: "memory",
		},
	}
}

// LoadFromFile loads a JSON config file on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv applies KESTREL_* environment overrides to cfg, field by
// field.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("KESTREL_HTTP_ADDR"); v != "" {
		cfg.Daemon.HTTPAddr = v
	}
	if v := os.Getenv("KESTREL_LOG_LEVEL"); v != "" {
		cfg.Daemon.LogLevel = v
	}
	if v := os.Getenv("KESTREL_LOG_FORMAT"); v != "" {
		cfg.Daemon.LogFormat = v
	}
	if v := os.Getenv("KESTREL_REQUEST_LOG_FILE"); v != "" {
		cfg.Daemon.RequestLogFile = v
	}
	if v := os.Getenv("egress.blocklist.file"); v != "" {
		cfg.Egress.BlocklistFile = v
	}
	if v := os.Getenv("KESTREL_BLOCKLIST_FILE"); v != "" {
		cfg.Egress.BlocklistFile = v
	}
	if v := os.Getenv("KESTREL_BLOCKLIST_RELOAD_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Egress.ReloadInterval = d
		}
	}
	if v := os.Getenv("KESTREL_POOL_IDLE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Pool.IdleTimeout = d
		}
	}
	if v := os.Getenv("KESTREL_POOL_MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pool.MaxWorkers = n
		}
	}
	if v := os.Getenv("KESTREL_INVOKE_DEFAULT_TIMEOUT_MILLIS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Executor.DefaultTimeoutMillis = n
		}
	}
	if v := os.Getenv("KESTREL_TRACING_ENABLED"); v != "" {
		cfg.Observability.Tracing.Enabled = parseBool(v)
	}
	if v := os.Getenv("KESTREL_TRACING_ENDPOINT"); v != "" {
		cfg.Observability.Tracing.Endpoint = v
	}
	if v := os.Getenv("KESTREL_TRACING_SAMPLE_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Observability.Tracing.SampleRate = f
		}
	}
	if v := os.Getenv("KESTREL_METRICS_ENABLED"); v != "" {
		cfg.Observability.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("KESTREL_METRICS_NAMESPACE"); v != "" {
		cfg.Observability.Metrics.Namespace = v
	}
	if v := os.Getenv("KESTREL_ASSET_BACKUP_BUCKET"); v != "" {
		cfg.AssetBackup.Bucket = v
	}
	if v := os.Getenv("KESTREL_ASSET_BACKUP_REGION"); v != "" {
		cfg.AssetBackup.Region = v
	}
	if v := os.Getenv("KESTREL_ASSET_BACKUP_PREFIX"); v != "" {
		cfg.AssetBackup.Prefix = v
	}
	if v := os.Getenv("KESTREL_KV_BACKEND"); v != "" {
		cfg.KV.Backend = v
	}
	if v := os.Getenv("KESTREL_REDIS_ADDR"); v != "" {
		cfg.KV.RedisAddr = v
		cfg.KV.Backend = "redis"
	}
	if v := os.Getenv("KESTREL_SQL_DSN"); v != "" {
		cfg.SQL.DSN = v
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes"
}
