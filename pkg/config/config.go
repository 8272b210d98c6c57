package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Photo retention policies for inspections that end up without any
// correlated photo. Both behaviors exist in the field; the choice is an
// explicit deployment decision, never inferred.
const (
	PhotoPolicyRetain  = "retain"
	PhotoPolicyDiscard = "discard"
)

// Config holds all configuration for the inspection engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values. Secrets (passwords) must
// only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8600"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Station identifies the inspection machine whose aggregates this
	// deployment maintains.
	Station StationConfig `yaml:"station"`

	// Ingest configures the telemetry feed source.
	Ingest IngestConfig `yaml:"ingest"`

	// Photos configures the two-phase photo storage areas.
	Photos PhotosConfig `yaml:"photos"`

	// Pipeline configures the correlation pipeline and its scheduler.
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"inspection"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"inspection_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"10"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MigrationsPath string `yaml:"migrations_path" env:"PGMIGRATIONS_PATH" env-default:"migrations"`
}

// StationConfig identifies the PLC station this engine serves.
type StationConfig struct {
	ID   string `yaml:"id" env:"STATION_ID" env-default:"MAQ-001"`
	Name string `yaml:"name" env:"STATION_NAME" env-default:"Fuel Inspection Line"`
}

// IngestConfig holds telemetry feed settings.
type IngestConfig struct {
	// SourceFile is the line-oriented JSON feed written by the external
	// PLC reader. The whole file is re-read on every tick; deduplication
	// is content-based, so this is safe.
	SourceFile string `yaml:"source_file" env:"INGEST_SOURCE_FILE" env-default:"data/plc_reads.jsonl"`
}

// PhotosConfig holds the two-phase photo storage areas. The engine only ever
// moves files staging -> committed; it never writes into staging.
type PhotosConfig struct {
	StagingDir   string `yaml:"staging_dir" env:"PHOTOS_STAGING_DIR" env-default:"media/photos/STAGING"`
	CommittedDir string `yaml:"committed_dir" env:"PHOTOS_COMMITTED_DIR" env-default:"media/photos/PROCESSED"`
}

// PipelineConfig holds correlation pipeline settings.
type PipelineConfig struct {
	// Interval between scheduler ticks.
	Interval time.Duration `yaml:"interval" env:"PIPELINE_INTERVAL" env-default:"30s"`

	// BatchSize caps how many unprocessed rows one tick segments.
	BatchSize int `yaml:"batch_size" env:"PIPELINE_BATCH_SIZE" env-default:"500"`

	// BoundaryField is the payload field carrying the start/end flag.
	BoundaryField string `yaml:"boundary_field" env:"PIPELINE_BOUNDARY_FIELD" env-default:"CycleFlag"`

	// SettlePeriod defers a closed cycle whose end row is younger than
	// this, giving photos time to land in staging first.
	SettlePeriod time.Duration `yaml:"settle_period" env:"PIPELINE_SETTLE_PERIOD" env-default:"5m"`

	// MatchWindow widens the cycle's [start, end] span when testing a
	// staged photo's capture timestamp.
	MatchWindow time.Duration `yaml:"match_window" env:"PIPELINE_MATCH_WINDOW" env-default:"2m"`

	// PhotoPolicy decides what happens to an inspection that ends up with
	// zero correlated photos: "retain" keeps it, "discard" rolls it back.
	PhotoPolicy string `yaml:"photo_policy" env:"PIPELINE_PHOTO_POLICY" env-default:"retain"`

	// ReconcileEvery runs the committed-area reconciliation pass every
	// N ticks (it also runs once at startup). 0 disables periodic runs.
	ReconcileEvery int `yaml:"reconcile_every" env:"PIPELINE_RECONCILE_EVERY" env-default:"10"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks invariants that cleanenv tags cannot express.
func (c *Config) Validate() error {
	switch c.Pipeline.PhotoPolicy {
	case PhotoPolicyRetain, PhotoPolicyDiscard:
	default:
		return fmt.Errorf("invalid pipeline.photo_policy %q (want %q or %q)",
			c.Pipeline.PhotoPolicy, PhotoPolicyRetain, PhotoPolicyDiscard)
	}

	if c.Pipeline.Interval <= 0 {
		return fmt.Errorf("pipeline.interval must be positive, got %s", c.Pipeline.Interval)
	}
	if c.Pipeline.BatchSize <= 0 {
		return fmt.Errorf("pipeline.batch_size must be positive, got %d", c.Pipeline.BatchSize)
	}

	if c.Photos.StagingDir == c.Photos.CommittedDir {
		return fmt.Errorf("photos.staging_dir and photos.committed_dir must differ")
	}

	return nil
}

// EnsurePhotoDirs creates the committed photo area if missing. The staging
// area is produced by the external capture system and is only checked.
func (c *Config) EnsurePhotoDirs() error {
	if err := os.MkdirAll(c.Photos.CommittedDir, 0o755); err != nil {
		return fmt.Errorf("failed to create committed photo dir: %w", err)
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
