// Package config provides configuration management for the satellite
// observation pipeline.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds the complete application configuration loaded from environment
// variables.
type Config struct {
	Server     ServerConfig     `envPrefix:"SERVER_"`
	Mongo      MongoConfig      `envPrefix:"MONGO_"`
	Copernicus CopernicusConfig `envPrefix:"COPERNICUS_"`
	Download   DownloadConfig   `envPrefix:"DOWNLOAD_"`
	Moisture   MoistureConfig   `envPrefix:"MOISTURE_"`
	Sync       SyncConfig       `envPrefix:"SYNC_"`
	Publish    PublishConfig    `envPrefix:"NGSI_"`
	Logging    LoggingConfig    `envPrefix:"LOG_"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host            string        `env:"HOST" envDefault:"0.0.0.0"`
	Port            int           `env:"PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10m"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// MongoConfig contains MongoDB connection configuration.
type MongoConfig struct {
	URI      string `env:"URI" envDefault:"mongodb://localhost:27017"`
	Database string `env:"DB" envDefault:"openagri"`
}

// CopernicusConfig contains CDSE credentials and endpoints. Username and
// password are required for any catalog or download call, so their absence
// fails client construction rather than the first remote call.
type CopernicusConfig struct {
	Username    string        `env:"USERNAME"`
	Password    string        `env:"PASSWORD"`
	TokenURL    string        `env:"TOKEN_URL" envDefault:"https://identity.dataspace.copernicus.eu/auth/realms/CDSE/protocol/openid-connect/token"`
	CatalogURL  string        `env:"CATALOG_URL" envDefault:"https://catalogue.dataspace.copernicus.eu/odata/v1"`
	DownloadURL string        `env:"DOWNLOAD_URL" envDefault:"https://zipper.dataspace.copernicus.eu/odata/v1"`
	MaxProducts int           `env:"MAX_PRODUCTS" envDefault:"20"`
	Timeout     time.Duration `env:"TIMEOUT" envDefault:"30s"`
}

// DownloadConfig contains download manager tuning.
type DownloadConfig struct {
	OutputDir        string        `env:"OUTPUT_DIR" envDefault:"./sentinel_data"`
	MaxAttempts      int           `env:"MAX_ATTEMPTS" envDefault:"5"`
	BaseDelay        time.Duration `env:"BASE_DELAY" envDefault:"30s"`
	RateLimitDelay   time.Duration `env:"RATE_LIMIT_DELAY" envDefault:"60s"`
	ReadTimeout      time.Duration `env:"READ_TIMEOUT" envDefault:"5m"`
	SalvageThreshold int64         `env:"SALVAGE_THRESHOLD_BYTES" envDefault:"104857600"`
	MaxExtractors    int64         `env:"MAX_EXTRACTORS" envDefault:"2"`
}

// MoistureConfig contains the soil-moisture proxy calibration. The constants
// were derived empirically for raw IW GRD scenes; they are configuration, not
// invariants, and should be re-tuned per sensor and region.
type MoistureConfig struct {
	CalibrationConstant float64 `env:"CALIBRATION_CONSTANT" envDefault:"300000"`
	DryDb               float64 `env:"DRY_DB" envDefault:"-20"`
	WetDb               float64 `env:"WET_DB" envDefault:"-5"`
}

// SyncConfig contains the nightly sync job schedule and per-farm policy.
type SyncConfig struct {
	Enabled          bool          `env:"ENABLED" envDefault:"true"`
	NDVISchedule     string        `env:"NDVI_SCHEDULE" envDefault:"0 0 * * *"`
	MoistureSchedule string        `env:"MOISTURE_SCHEDULE" envDefault:"0 2 * * *"`
	NDVILookback     int           `env:"NDVI_LOOKBACK_DAYS" envDefault:"60"`
	MoistureLookback int           `env:"MOISTURE_LOOKBACK_DAYS" envDefault:"14"`
	MaxCloudCover    float64       `env:"MAX_CLOUD_COVER" envDefault:"30"`
	MaxScenesPerFarm int           `env:"MAX_SCENES_PER_FARM" envDefault:"10"`
	FarmAttempts     int           `env:"FARM_ATTEMPTS" envDefault:"3"`
	FarmRetryDelay   time.Duration `env:"FARM_RETRY_DELAY" envDefault:"60s"`
}

// PublishConfig contains the optional NGSI-LD graph-store publisher settings.
type PublishConfig struct {
	Enabled bool          `env:"ENABLED" envDefault:"false"`
	BaseURL string        `env:"BASE_URL" envDefault:"http://localhost:1026"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"10s"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

// Load parses configuration from the environment. A local .env file, when
// present, is loaded first so development setups match the deployed service.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Mongo.URI == "" {
		return fmt.Errorf("mongo URI is required")
	}

	if c.Copernicus.MaxProducts < 1 {
		return fmt.Errorf("max products must be at least 1, got %d", c.Copernicus.MaxProducts)
	}

	if c.Download.MaxAttempts < 1 {
		return fmt.Errorf("download attempts must be at least 1, got %d", c.Download.MaxAttempts)
	}

	if c.Download.MaxExtractors < 1 {
		return fmt.Errorf("extractor pool size must be at least 1, got %d", c.Download.MaxExtractors)
	}

	if c.Moisture.WetDb <= c.Moisture.DryDb {
		return fmt.Errorf("moisture wet ceiling (%v dB) must exceed dry floor (%v dB)", c.Moisture.WetDb, c.Moisture.DryDb)
	}

	if c.Sync.FarmAttempts < 1 {
		return fmt.Errorf("farm attempts must be at least 1, got %d", c.Sync.FarmAttempts)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", c.Logging.Level)
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format %q, must be one of: json, text", c.Logging.Format)
	}

	return nil
}

// HasCredentials reports whether CDSE credentials are configured.
func (c *CopernicusConfig) HasCredentials() bool {
	return c.Username != "" && c.Password != ""
}

// Address returns the server listen address in the format "host:port".
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
