package config

import (
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Remove(tmpfile.Name()) })

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}
	return tmpfile.Name()
}

func TestLoadAndValidate(t *testing.T) {
	path := writeConfig(t, `
source:
  kind: xlsx
  path: ./data/NEON_ML.xlsx
  sheet: AH NEON

capture:
  poll_interval: 500ms
  stability_duration: 4s
  min_change: 0.01
  trading_hours:
    enabled: true
    start: "07:00"
    end: "16:00"
  sections:
    - name: primary
      leg1_col: a
      leg2_col: b
      mid_col: c
      bid_col: f
      ask_col: g
      first_row: 4
      last_row: 67
      primary: true
      primary_first_row: 4
      primary_last_row: 29
    - name: derived1
      leg1_col: Z
      leg2_col: AA
      mid_col: AB
      first_row: 4
      last_row: 86

telegram:
  bot_token: "test_token"
  chat_id: "test_chat_id"
  enabled: true

storage:
  db_path: "./data/test.db"

logging:
  level: "info"
  format: "json"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Capture.PollInterval != 500*time.Millisecond {
		t.Errorf("Unexpected poll interval: %v", cfg.Capture.PollInterval)
	}
	if len(cfg.Capture.Sections) != 2 {
		t.Fatalf("Expected 2 sections, got %d", len(cfg.Capture.Sections))
	}
	if cfg.Source.PrefixCell != "B2" || cfg.Source.FallbackPrefix != "AHD" {
		t.Errorf("Unexpected prefix defaults: %q %q", cfg.Source.PrefixCell, cfg.Source.FallbackPrefix)
	}
	if cfg.Telegram.MaxRetries != 3 {
		t.Errorf("Unexpected telegram max retries default: %d", cfg.Telegram.MaxRetries)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	mc := cfg.MonitorConfig()
	if !mc.MinChange.Equal(decimal.RequireFromString("0.01")) {
		t.Errorf("MinChange = %v, want 0.01", mc.MinChange)
	}
	primary := mc.Sections[0]
	if primary.Leg1Col != "A" || primary.BidCol != "F" || !primary.Primary || primary.PrimaryLastRow != 29 {
		t.Errorf("Unexpected primary section: %+v", primary)
	}
	if mc.Sections[1].Primary {
		t.Error("derived section should not be primary")
	}

	sc := cfg.SheetConfig()
	if sc.Kind != "xlsx" || sc.Path != "./data/NEON_ML.xlsx" || sc.Timeout != 10*time.Second {
		t.Errorf("Unexpected sheet config: %+v", sc)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, `
source:
  path: ./live.xlsx
capture:
  sections:
    - leg1_col: A
      leg2_col: B
      mid_col: C
      first_row: 4
      last_row: 10
`)
	t.Setenv("SPREADWATCH_STORAGE_DB_PATH", "/tmp/override.db")
	t.Setenv("SPREADWATCH_CAPTURE_STABILITY_DURATION", "10s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Storage.DBPath != "/tmp/override.db" {
		t.Errorf("DBPath = %q, want env override", cfg.Storage.DBPath)
	}
	if cfg.Capture.StabilityDuration != 10*time.Second {
		t.Errorf("StabilityDuration = %v, want 10s", cfg.Capture.StabilityDuration)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if name := cfg.MonitorConfig().Sections[0].Name; name != "section1" {
		t.Errorf("default section name = %q, want section1", name)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func validConfig() *Config {
	return &Config{
		Source: SourceConfig{Kind: "csv", Path: "./export", Sheet: "Live"},
		Capture: CaptureConfig{
			PollInterval:      time.Second,
			StabilityDuration: 4 * time.Second,
			MinChange:         0.01,
			Sections: []SectionConfig{
				{Leg1Col: "A", Leg2Col: "B", MidCol: "C", FirstRow: 4, LastRow: 29},
			},
		},
		Storage: StorageConfig{DBPath: "./data/test.db"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"unknown source kind", func(c *Config) { c.Source.Kind = "xlsm" }, true},
		{"missing source path", func(c *Config) { c.Source.Path = "" }, true},
		{"poll interval too short", func(c *Config) { c.Capture.PollInterval = time.Millisecond }, true},
		{"zero stability", func(c *Config) { c.Capture.StabilityDuration = 0 }, true},
		{"zero min change", func(c *Config) { c.Capture.MinChange = 0 }, true},
		{"stale shorter than stability", func(c *Config) { c.Capture.StaleAfter = time.Second }, true},
		{"no sections", func(c *Config) { c.Capture.Sections = nil }, true},
		{"section missing mid", func(c *Config) { c.Capture.Sections[0].MidCol = "" }, true},
		{"section rows inverted", func(c *Config) { c.Capture.Sections[0].LastRow = 2 }, true},
		{"bad trading hours", func(c *Config) {
			c.Capture.TradingHours = TradingHoursConfig{Enabled: true, Start: "7am", End: "16:00"}
		}, true},
		{"trading hours inverted", func(c *Config) {
			c.Capture.TradingHours = TradingHoursConfig{Enabled: true, Start: "16:00", End: "07:00"}
		}, true},
		{"missing telegram token when enabled", func(c *Config) {
			c.Telegram = TelegramConfig{Enabled: true, ChatID: "1"}
		}, true},
		{"missing db path", func(c *Config) { c.Storage.DBPath = "" }, true},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTradingHoursContains(t *testing.T) {
	hours := TradingHoursConfig{Enabled: true, Start: "07:00", End: "16:00"}
	day := func(h, m int) time.Time { return time.Date(2025, 1, 6, h, m, 0, 0, time.Local) }

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"before open", day(6, 59), false},
		{"at open", day(7, 0), true},
		{"midday", day(12, 30), true},
		{"at close", day(16, 0), true},
		{"after close", day(16, 1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := hours.Contains(tt.at); got != tt.want {
				t.Errorf("Contains(%v) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}

	if !(TradingHoursConfig{}).Contains(day(3, 0)) {
		t.Error("disabled window should contain every time")
	}
}
