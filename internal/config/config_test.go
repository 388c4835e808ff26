package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Download.MaxAttempts != 5 {
		t.Errorf("max attempts = %d, want 5", cfg.Download.MaxAttempts)
	}
	if cfg.Download.BaseDelay != 30*time.Second {
		t.Errorf("base delay = %v, want 30s", cfg.Download.BaseDelay)
	}
	if cfg.Download.SalvageThreshold != 104857600 {
		t.Errorf("salvage threshold = %d, want 100 MiB", cfg.Download.SalvageThreshold)
	}
	if cfg.Sync.MaxCloudCover != 30 {
		t.Errorf("max cloud cover = %v, want 30", cfg.Sync.MaxCloudCover)
	}
	if cfg.Sync.MaxScenesPerFarm != 10 {
		t.Errorf("max scenes = %d, want 10", cfg.Sync.MaxScenesPerFarm)
	}
	if cfg.Sync.NDVILookback != 60 || cfg.Sync.MoistureLookback != 14 {
		t.Errorf("lookbacks = %d/%d, want 60/14", cfg.Sync.NDVILookback, cfg.Sync.MoistureLookback)
	}
	if cfg.Moisture.CalibrationConstant != 300000 {
		t.Errorf("calibration constant = %v", cfg.Moisture.CalibrationConstant)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("COPERNICUS_USERNAME", "user@example.com")
	t.Setenv("COPERNICUS_PASSWORD", "secret")
	t.Setenv("SYNC_MAX_CLOUD_COVER", "45.5")
	t.Setenv("DOWNLOAD_BASE_DELAY", "10s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if !cfg.Copernicus.HasCredentials() {
		t.Error("credentials not picked up")
	}
	if cfg.Sync.MaxCloudCover != 45.5 {
		t.Errorf("max cloud cover = %v, want 45.5", cfg.Sync.MaxCloudCover)
	}
	if cfg.Download.BaseDelay != 10*time.Second {
		t.Errorf("base delay = %v, want 10s", cfg.Download.BaseDelay)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 0 }},
		{name: "missing mongo uri", mutate: func(c *Config) { c.Mongo.URI = "" }},
		{name: "zero attempts", mutate: func(c *Config) { c.Download.MaxAttempts = 0 }},
		{name: "zero extractors", mutate: func(c *Config) { c.Download.MaxExtractors = 0 }},
		{name: "inverted moisture scale", mutate: func(c *Config) { c.Moisture.WetDb = -30 }},
		{name: "zero farm attempts", mutate: func(c *Config) { c.Sync.FarmAttempts = 0 }},
		{name: "bad log level", mutate: func(c *Config) { c.Logging.Level = "verbose" }},
		{name: "bad log format", mutate: func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestHasCredentials(t *testing.T) {
	c := CopernicusConfig{}
	if c.HasCredentials() {
		t.Error("empty config reports credentials")
	}
	c.Username = "user"
	if c.HasCredentials() {
		t.Error("username alone reports credentials")
	}
	c.Password = "secret"
	if !c.HasCredentials() {
		t.Error("full credentials not detected")
	}
}

func TestAddress(t *testing.T) {
	s := ServerConfig{Host: "0.0.0.0", Port: 8080}
	if got := s.Address(); got != "0.0.0.0:8080" {
		t.Errorf("address = %s", got)
	}
}
