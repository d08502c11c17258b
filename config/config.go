package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the coordinator's top-level configuration, decoded from a TOML
// file and overridable by environment variables for secrets and endpoints
// that operators should not have to commit to disk.
type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	Environment   string `toml:"Environment"`

	Database     DatabaseConfig     `toml:"database"`
	Identity     IdentityConfig     `toml:"identity"`
	Request      RequestConfig      `toml:"request"`
	Execution    ExecutionConfig    `toml:"execution"`
	KDF          ExternalService    `toml:"kdf"`
	Oracle       ExternalService    `toml:"oracle"`
	RateLimit    RateLimitConfig    `toml:"rate_limit"`
	Backpressure BackpressureConfig `toml:"backpressure"`
	TLS          TLSConfig          `toml:"tls"`
	Auth         AuthConfig         `toml:"auth"`
	AuditLog     AuditLogConfig     `toml:"audit_log"`
	Telemetry    TelemetryConfig    `toml:"telemetry"`
}

type DatabaseConfig struct {
	// Driver selects the gorm dialect: "postgres" or "sqlite".
	Driver string `toml:"driver"`
	// DSN is the connection string for the selected driver. For sqlite
	// this is a filesystem path; the DSN value is read from the
	// MPC_DATABASE_DSN environment variable when set, so deployments
	// never need to commit credentials to the TOML file.
	DSN string `toml:"dsn"`
	// LevelDBPath is the path to the single-use authorization-token
	// store used by the Key Envelope Service.
	LevelDBPath string `toml:"leveldb_path"`
}

type IdentityConfig struct {
	// LivenessWindow is how long a party is considered active after its
	// last-seen timestamp, which is set when the party registers or
	// re-registers.
	LivenessWindow time.Duration `toml:"liveness_window"`
}

type RequestConfig struct {
	// Expiry is optional; zero means requests never expire.
	Expiry time.Duration `toml:"expiry"`
}

type ExecutionConfig struct {
	// WrapResults is decoded from the file but no component reads it:
	// oracle results are always persisted as returned, never re-encrypted
	// under the requester's key-envelope handle.
	WrapResults bool `toml:"wrap_results"`
	MaxRetries  int  `toml:"max_retries"`
	RetryBase   time.Duration `toml:"retry_base"`
	RetryMax    time.Duration `toml:"retry_max"`
}

// ExternalService configures an outbound client to the KDF or oracle
// dependency. Endpoint is read from the environment when the
// corresponding *_ENDPOINT variable is set.
type ExternalService struct {
	Endpoint string        `toml:"endpoint"`
	Timeout  time.Duration `toml:"timeout"`
}

type RateLimitConfig struct {
	RatePerSecond float64 `toml:"rate_per_second"`
	Burst         int     `toml:"burst"`
}

// BackpressureConfig bounds the shared oracle/KDF call pool and the
// per-principal dataset upload quota (§5).
type BackpressureConfig struct {
	// CallBudget is the number of concurrent oracle and KDF calls the
	// coordinator admits at once. A non-positive value disables the pool.
	CallBudget int `toml:"call_budget"`
	// UploadQuotaPerPrincipal caps how many distinct datasets a single
	// principal may have in custody. A non-positive value disables it.
	UploadQuotaPerPrincipal int `toml:"upload_quota_per_principal"`
}

type TLSConfig struct {
	CertFile string `toml:"cert_file"`
	KeyFile  string `toml:"key_file"`
}

type AuthConfig struct {
	// HMACSecret validates bearer tokens; read from MPC_AUTH_SECRET when set.
	HMACSecret string `toml:"hmac_secret"`
	Issuer     string `toml:"issuer"`
	Audience   string `toml:"audience"`
}

type AuditLogConfig struct {
	Path       string `toml:"path"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `toml:"otlp_endpoint"`
	ServiceName  string `toml:"service_name"`
}

// Load loads the configuration from the given path, creating a starter
// file with sane defaults on first run, then applies environment overrides
// for values operators should not be required to commit to disk.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		def, err := createDefault(path)
		if err != nil {
			return nil, err
		}
		cfg = def
	} else {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MPC_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("MPC_AUTH_SECRET"); v != "" {
		cfg.Auth.HMACSecret = v
	}
	if v := os.Getenv("MPC_KDF_ENDPOINT"); v != "" {
		cfg.KDF.Endpoint = v
	}
	if v := os.Getenv("MPC_ORACLE_ENDPOINT"); v != "" {
		cfg.Oracle.Endpoint = v
	}
	if v := os.Getenv("MPC_OTLP_ENDPOINT"); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress: ":8443",
		Environment:   "development",
		Database: DatabaseConfig{
			Driver:      "sqlite",
			DSN:         "./coordinator-data/coordinator.db",
			LevelDBPath: "./coordinator-data/tokens",
		},
		Identity: IdentityConfig{
			LivenessWindow: 24 * time.Hour,
		},
		Request: RequestConfig{
			Expiry: 0,
		},
		Execution: ExecutionConfig{
			WrapResults: false,
			MaxRetries:  5,
			RetryBase:   250 * time.Millisecond,
			RetryMax:    10 * time.Second,
		},
		KDF: ExternalService{
			Endpoint: "http://127.0.0.1:9001",
			Timeout:  5 * time.Second,
		},
		Oracle: ExternalService{
			Endpoint: "http://127.0.0.1:9002",
			Timeout:  30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RatePerSecond: 5,
			Burst:         10,
		},
		Backpressure: BackpressureConfig{
			CallBudget:              16,
			UploadQuotaPerPrincipal: 100,
		},
		Auth: AuthConfig{
			Issuer:   "mpc-coordinator",
			Audience: "mpc-coordinator",
		},
		AuditLog: AuditLogConfig{
			Path:       "./coordinator-data/audit.log",
			MaxSizeMB:  100,
			MaxBackups: 10,
			MaxAgeDays: 90,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "mpc-coordinator",
		},
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
