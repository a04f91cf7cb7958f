package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is shared by both binaries; the edge reads service/edge/enrich
// sections, the forge reads service/forge/postgres/ingest/enrich/retention.
type Config struct {
	Service   ServiceConfig   `koanf:"service"`
	Edge      EdgeConfig      `koanf:"edge"`
	Forge     ForgeConfig     `koanf:"forge"`
	Postgres  PostgresConfig  `koanf:"postgres"`
	Ingest    IngestConfig    `koanf:"ingest"`
	Enrich    EnrichConfig    `koanf:"enrich"`
	Retention RetentionConfig `koanf:"retention"`
}

type ServiceConfig struct {
	InstanceID             string `koanf:"instance_id"`
	OpsListen              string `koanf:"ops_listen"`
	LogLevel               string `koanf:"log_level"`
	ShutdownTimeoutSeconds int    `koanf:"shutdown_timeout_seconds"`
}

type EdgeConfig struct {
	PixelListen           string        `koanf:"pixel_listen"`
	QueueCapacity         int           `koanf:"queue_capacity"`
	FailoverQueueCapacity int           `koanf:"failover_queue_capacity"`
	FailoverDir           string        `koanf:"failover_dir"`
	Endpoint              string        `koanf:"endpoint"`
	ReconnectMinBackoff   time.Duration `koanf:"reconnect_min_backoff"`
	ReconnectMaxBackoff   time.Duration `koanf:"reconnect_max_backoff"`
}

type ForgeConfig struct {
	Endpoint        string        `koanf:"endpoint"`
	MaxConns        int           `koanf:"max_conns"`
	WorkerCount     int           `koanf:"worker_count"`
	InputQueueSize  int           `koanf:"input_queue_size"`
	CatchupInterval time.Duration `koanf:"catchup_interval"`
	FailoverDir     string        `koanf:"failover_dir"`
	ArchiveCompress bool          `koanf:"archive_compress"`
}

type PostgresConfig struct {
	DSN      string `koanf:"dsn"`
	MaxConns int32  `koanf:"max_conns"`
	MinConns int32  `koanf:"min_conns"`
}

type IngestConfig struct {
	BatchSize       int `koanf:"batch_size"`
	FlushIntervalMs int `koanf:"flush_interval_ms"`
	QueueSize       int `koanf:"queue_size"`
}

type EnrichConfig struct {
	CidrRefreshInterval   time.Duration `koanf:"cidr_refresh_interval"`
	AWSRangesURL          string        `koanf:"aws_ranges_url"`
	GCPRangesURL          string        `koanf:"gcp_ranges_url"`
	GeoIPCityPath         string        `koanf:"geoip_city_path"`
	GeoIPASNPath          string        `koanf:"geoip_asn_path"`
	OnlineGeoURL          string        `koanf:"online_geo_url"`
	OnlineGeoMaxStaleDays int           `koanf:"online_geo_max_stale_days"`
	OnlineGeoRPM          int           `koanf:"online_geo_rpm"`
	RDNSTimeout           time.Duration `koanf:"rdns_timeout"`
	WhoisTimeout          time.Duration `koanf:"whois_timeout"`
	WhoisServer           string        `koanf:"whois_server"`
}

type RetentionConfig struct {
	Days     int    `koanf:"days"`
	Timezone string `koanf:"timezone"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Load YAML file first.
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	// Overlay environment variables: SMARTPIXL_EDGE__QUEUE_CAPACITY → edge.queue_capacity
	if err := k.Load(env.Provider("SMARTPIXL_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "SMARTPIXL_")
		s = strings.ToLower(s)
		s = strings.ReplaceAll(s, "__", ".")
		return s
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env config: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns the configuration defaults applied before the file and
// environment overlays.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			InstanceID:             "smartpixl-1",
			OpsListen:              ":9090",
			LogLevel:               "info",
			ShutdownTimeoutSeconds: 5,
		},
		Edge: EdgeConfig{
			PixelListen:           ":8080",
			QueueCapacity:         10000,
			FailoverQueueCapacity: 10000,
			FailoverDir:           "failover",
			Endpoint:              "/var/run/smartpixl/forge.sock",
			ReconnectMinBackoff:   time.Second,
			ReconnectMaxBackoff:   30 * time.Second,
		},
		Forge: ForgeConfig{
			Endpoint:        "/var/run/smartpixl/forge.sock",
			MaxConns:        4,
			WorkerCount:     4,
			InputQueueSize:  10000,
			CatchupInterval: 60 * time.Second,
			FailoverDir:     "failover",
			ArchiveCompress: true,
		},
		Postgres: PostgresConfig{
			MaxConns: 20,
			MinConns: 2,
		},
		Ingest: IngestConfig{
			BatchSize:       100,
			FlushIntervalMs: 500,
			QueueSize:       10000,
		},
		Enrich: EnrichConfig{
			CidrRefreshInterval:   7 * 24 * time.Hour,
			AWSRangesURL:          "https://ip-ranges.amazonaws.com/ip-ranges.json",
			GCPRangesURL:          "https://www.gstatic.com/ipranges/cloud.json",
			OnlineGeoURL:          "http://ip-api.com/json",
			OnlineGeoMaxStaleDays: 90,
			OnlineGeoRPM:          30,
			RDNSTimeout:           2 * time.Second,
			WhoisTimeout:          5 * time.Second,
			WhoisServer:           "whois.cymru.com:43",
		},
		Retention: RetentionConfig{
			Days:     90,
			Timezone: "UTC",
		},
	}
}

func (c *Config) Validate() error {
	if c.Edge.QueueCapacity <= 0 {
		return fmt.Errorf("config: edge.queue_capacity must be > 0 (got %d)", c.Edge.QueueCapacity)
	}
	if c.Edge.FailoverQueueCapacity <= 0 {
		return fmt.Errorf("config: edge.failover_queue_capacity must be > 0 (got %d)", c.Edge.FailoverQueueCapacity)
	}
	if c.Edge.FailoverDir == "" {
		return fmt.Errorf("config: edge.failover_dir is required")
	}
	if c.Edge.Endpoint == "" {
		return fmt.Errorf("config: edge.endpoint is required")
	}
	if c.Edge.ReconnectMinBackoff <= 0 || c.Edge.ReconnectMaxBackoff < c.Edge.ReconnectMinBackoff {
		return fmt.Errorf("config: edge reconnect backoff range is invalid (%s..%s)",
			c.Edge.ReconnectMinBackoff, c.Edge.ReconnectMaxBackoff)
	}
	if c.Forge.Endpoint == "" {
		return fmt.Errorf("config: forge.endpoint is required")
	}
	if c.Forge.MaxConns <= 0 {
		return fmt.Errorf("config: forge.max_conns must be > 0 (got %d)", c.Forge.MaxConns)
	}
	if c.Forge.WorkerCount <= 0 {
		return fmt.Errorf("config: forge.worker_count must be > 0 (got %d)", c.Forge.WorkerCount)
	}
	if c.Forge.InputQueueSize <= 0 {
		return fmt.Errorf("config: forge.input_queue_size must be > 0 (got %d)", c.Forge.InputQueueSize)
	}
	if c.Forge.CatchupInterval <= 0 {
		return fmt.Errorf("config: forge.catchup_interval must be > 0 (got %s)", c.Forge.CatchupInterval)
	}
	if c.Ingest.BatchSize <= 0 {
		return fmt.Errorf("config: ingest.batch_size must be > 0 (got %d)", c.Ingest.BatchSize)
	}
	if c.Ingest.FlushIntervalMs <= 0 {
		return fmt.Errorf("config: ingest.flush_interval_ms must be > 0 (got %d)", c.Ingest.FlushIntervalMs)
	}
	if c.Ingest.QueueSize <= 0 {
		return fmt.Errorf("config: ingest.queue_size must be > 0 (got %d)", c.Ingest.QueueSize)
	}
	if c.Postgres.MaxConns <= 0 {
		return fmt.Errorf("config: postgres.max_conns must be > 0 (got %d)", c.Postgres.MaxConns)
	}
	if c.Postgres.MinConns < 0 {
		return fmt.Errorf("config: postgres.min_conns must be >= 0 (got %d)", c.Postgres.MinConns)
	}
	if c.Service.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("config: service.shutdown_timeout_seconds must be > 0 (got %d)", c.Service.ShutdownTimeoutSeconds)
	}
	if c.Enrich.CidrRefreshInterval <= 0 {
		return fmt.Errorf("config: enrich.cidr_refresh_interval must be > 0 (got %s)", c.Enrich.CidrRefreshInterval)
	}
	if c.Enrich.OnlineGeoMaxStaleDays <= 0 {
		return fmt.Errorf("config: enrich.online_geo_max_stale_days must be > 0 (got %d)", c.Enrich.OnlineGeoMaxStaleDays)
	}
	if c.Enrich.OnlineGeoRPM <= 0 {
		return fmt.Errorf("config: enrich.online_geo_rpm must be > 0 (got %d)", c.Enrich.OnlineGeoRPM)
	}
	if c.Enrich.RDNSTimeout <= 0 {
		return fmt.Errorf("config: enrich.rdns_timeout must be > 0 (got %s)", c.Enrich.RDNSTimeout)
	}
	if c.Enrich.WhoisTimeout <= 0 {
		return fmt.Errorf("config: enrich.whois_timeout must be > 0 (got %s)", c.Enrich.WhoisTimeout)
	}
	if c.Retention.Days <= 0 {
		return fmt.Errorf("config: retention.days must be > 0 (got %d)", c.Retention.Days)
	}
	if _, err := time.LoadLocation(c.Retention.Timezone); err != nil {
		return fmt.Errorf("config: retention.timezone is invalid: %w", err)
	}
	return nil
}
