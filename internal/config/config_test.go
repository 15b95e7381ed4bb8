package config

import (
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Database: DatabaseConfig{Host: "localhost", Name: "mediatrack"},
		Import: ImportConfig{
			MaxFileSize:       10 * 1024 * 1024,
			ProgressFlushRows: 10,
			DateOrder:         DateOrderMDY,
			DuplicatePolicy:   DuplicateReject,
		},
		Rate: RateConfig{UploadsPerHour: 5, ManualPerMinute: 30},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing host", mutate: func(c *Config) { c.Database.Host = "" }, wantErr: true},
		{name: "missing db name", mutate: func(c *Config) { c.Database.Name = "" }, wantErr: true},
		{name: "bad date order", mutate: func(c *Config) { c.Import.DateOrder = "ymd" }, wantErr: true},
		{name: "bad duplicate policy", mutate: func(c *Config) { c.Import.DuplicatePolicy = "ignore" }, wantErr: true},
		{name: "zero file size", mutate: func(c *Config) { c.Import.MaxFileSize = 0 }, wantErr: true},
		{name: "zero flush cadence", mutate: func(c *Config) { c.Import.ProgressFlushRows = 0 }, wantErr: true},
		{name: "zero upload rate", mutate: func(c *Config) { c.Rate.UploadsPerHour = 0 }, wantErr: true},
		{name: "zero manual rate", mutate: func(c *Config) { c.Rate.ManualPerMinute = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("port = %s, want 8080", cfg.Server.Port)
	}
	if cfg.Import.MaxRows != 10000 {
		t.Errorf("max rows = %d, want 10000", cfg.Import.MaxRows)
	}
	if cfg.Import.DateOrder != DateOrderMDY {
		t.Errorf("date order = %s, want mdy", cfg.Import.DateOrder)
	}
	if cfg.Import.DuplicatePolicy != DuplicateReject {
		t.Errorf("duplicate policy = %s, want reject", cfg.Import.DuplicatePolicy)
	}
	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("read timeout = %v", cfg.Server.ReadTimeout)
	}
}

func TestGetDSN(t *testing.T) {
	db := DatabaseConfig{
		Host: "db", Port: "5432", User: "app", Password: "secret",
		Name: "mediatrack", SSLMode: "disable",
	}
	want := "host=db port=5432 user=app password=secret dbname=mediatrack sslmode=disable"
	if got := db.GetDSN(); got != want {
		t.Errorf("GetDSN() = %q, want %q", got, want)
	}
}
