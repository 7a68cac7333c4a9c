package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/rewired-gh/spreadwatch/internal/monitor"
	"github.com/rewired-gh/spreadwatch/internal/sheet"
)

// Config represents the complete application configuration
type Config struct {
	Source   SourceConfig   `mapstructure:"source"`
	Capture  CaptureConfig  `mapstructure:"capture"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// SourceConfig locates the live workbook and its fixed cells
type SourceConfig struct {
	Kind               string        `mapstructure:"kind"` // "xlsx" or "csv"
	Path               string        `mapstructure:"path"`
	Sheet              string        `mapstructure:"sheet"`
	ReferenceSheet     string        `mapstructure:"reference_sheet"`
	PrefixCell         string        `mapstructure:"prefix_cell"`
	FallbackPrefix     string        `mapstructure:"fallback_prefix"`
	CashDateCell       string        `mapstructure:"cash_date_cell"`
	ThreeMonthDateCell string        `mapstructure:"three_month_date_cell"`
	Timeout            time.Duration `mapstructure:"timeout"`
	MaxRetries         int           `mapstructure:"max_retries"`
	RetryDelayBase     time.Duration `mapstructure:"retry_delay_base"`
}

// CaptureConfig holds debounce timing and the sections to scan
type CaptureConfig struct {
	PollInterval      time.Duration      `mapstructure:"poll_interval"`
	StabilityDuration time.Duration      `mapstructure:"stability_duration"`
	MinChange         float64            `mapstructure:"min_change"`
	StaleAfter        time.Duration      `mapstructure:"stale_after"` // 0 = keep forever
	TradingHours      TradingHoursConfig `mapstructure:"trading_hours"`
	Sections          []SectionConfig    `mapstructure:"sections"`
}

// TradingHoursConfig restricts polling to a daily local-time window
type TradingHoursConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Start   string `mapstructure:"start"` // "15:04"
	End     string `mapstructure:"end"`
}

// SectionConfig describes one block of spread rows
type SectionConfig struct {
	Name            string `mapstructure:"name"`
	Leg1Col         string `mapstructure:"leg1_col"`
	Leg2Col         string `mapstructure:"leg2_col"`
	MidCol          string `mapstructure:"mid_col"`
	BidCol          string `mapstructure:"bid_col"`
	AskCol          string `mapstructure:"ask_col"`
	BidVolumeCol    string `mapstructure:"bid_volume_col"`
	AskVolumeCol    string `mapstructure:"ask_volume_col"`
	FirstRow        int    `mapstructure:"first_row"`
	LastRow         int    `mapstructure:"last_row"`
	Primary         bool   `mapstructure:"primary"`
	PrimaryFirstRow int    `mapstructure:"primary_first_row"`
	PrimaryLastRow  int    `mapstructure:"primary_last_row"`
}

// StorageConfig holds storage and persistence configuration
type StorageConfig struct {
	DBPath    string        `mapstructure:"db_path"`
	Retention time.Duration `mapstructure:"retention"` // 0 = keep forever
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// MetricsConfig holds the Prometheus endpoint configuration
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"` // empty = disabled
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// Load reads configuration from file and environment variables
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)

	setDefaults(v)

	// SPREADWATCH_CAPTURE_POLL_INTERVAL overrides capture.poll_interval
	v.SetEnvPrefix("SPREADWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Source defaults
	v.SetDefault("source.kind", "xlsx")
	v.SetDefault("source.path", "./data/live.xlsx")
	v.SetDefault("source.sheet", "AH NEON")
	v.SetDefault("source.reference_sheet", "SOD")
	v.SetDefault("source.prefix_cell", "B2")
	v.SetDefault("source.fallback_prefix", "AHD")
	v.SetDefault("source.cash_date_cell", "C8")
	v.SetDefault("source.three_month_date_cell", "C9")
	v.SetDefault("source.timeout", "10s")
	v.SetDefault("source.max_retries", 3)
	v.SetDefault("source.retry_delay_base", "1s")

	// Capture defaults
	v.SetDefault("capture.poll_interval", "1s")
	v.SetDefault("capture.stability_duration", "4s")
	v.SetDefault("capture.min_change", 0.01)
	v.SetDefault("capture.stale_after", "0s")
	v.SetDefault("capture.trading_hours.enabled", false)
	v.SetDefault("capture.trading_hours.start", "07:00")
	v.SetDefault("capture.trading_hours.end", "16:00")

	// Storage defaults
	v.SetDefault("storage.db_path", "./data/spreadwatch.db")
	v.SetDefault("storage.retention", "0s")

	// Telegram defaults
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "2s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 5)
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Source config
	if c.Source.Kind != "xlsx" && c.Source.Kind != "csv" {
		return fmt.Errorf("source.kind must be one of: xlsx, csv")
	}
	if c.Source.Path == "" {
		return fmt.Errorf("source.path is required")
	}
	if c.Source.Sheet == "" {
		return fmt.Errorf("source.sheet is required")
	}
	if c.Source.MaxRetries < 0 {
		return fmt.Errorf("source.max_retries must not be negative")
	}

	// Validate Capture config
	if c.Capture.PollInterval < 100*time.Millisecond {
		return fmt.Errorf("capture.poll_interval must be at least 100ms")
	}
	if c.Capture.StabilityDuration <= 0 {
		return fmt.Errorf("capture.stability_duration must be positive")
	}
	if c.Capture.MinChange <= 0 {
		return fmt.Errorf("capture.min_change must be positive")
	}
	if c.Capture.StaleAfter < 0 {
		return fmt.Errorf("capture.stale_after must not be negative")
	}
	if c.Capture.StaleAfter > 0 && c.Capture.StaleAfter < c.Capture.StabilityDuration {
		return fmt.Errorf("capture.stale_after must be at least capture.stability_duration")
	}
	if c.Capture.TradingHours.Enabled {
		start, err := parseClock(c.Capture.TradingHours.Start)
		if err != nil {
			return fmt.Errorf("capture.trading_hours.start: %w", err)
		}
		end, err := parseClock(c.Capture.TradingHours.End)
		if err != nil {
			return fmt.Errorf("capture.trading_hours.end: %w", err)
		}
		if end <= start {
			return fmt.Errorf("capture.trading_hours.end must be after start")
		}
	}
	if len(c.Capture.Sections) == 0 {
		return fmt.Errorf("capture.sections must contain at least one section")
	}
	for i, s := range c.Capture.Sections {
		if s.Leg1Col == "" || s.Leg2Col == "" || s.MidCol == "" {
			return fmt.Errorf("capture.sections[%d]: leg1_col, leg2_col and mid_col are required", i)
		}
		if s.FirstRow < 1 || s.LastRow < s.FirstRow {
			return fmt.Errorf("capture.sections[%d]: rows must satisfy 1 <= first_row <= last_row", i)
		}
		if s.PrimaryFirstRow > 0 && s.PrimaryLastRow > 0 && s.PrimaryLastRow < s.PrimaryFirstRow {
			return fmt.Errorf("capture.sections[%d]: primary_last_row must not precede primary_first_row", i)
		}
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	// Validate Storage config
	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}
	if c.Storage.Retention < 0 {
		return fmt.Errorf("storage.retention must not be negative")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// Contains reports whether now falls inside the window, bounds inclusive.
// A disabled window always contains now.
func (t TradingHoursConfig) Contains(now time.Time) bool {
	if !t.Enabled {
		return true
	}
	start, err1 := parseClock(t.Start)
	end, err2 := parseClock(t.End)
	if err1 != nil || err2 != nil {
		return true
	}
	sinceMidnight := time.Duration(now.Hour())*time.Hour +
		time.Duration(now.Minute())*time.Minute +
		time.Duration(now.Second())*time.Second
	return sinceMidnight >= start && sinceMidnight <= end
}

func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// SheetConfig returns the source connection settings
func (c *Config) SheetConfig() sheet.Config {
	return sheet.Config{
		Kind:           c.Source.Kind,
		Path:           c.Source.Path,
		Timeout:        c.Source.Timeout,
		MaxRetries:     c.Source.MaxRetries,
		RetryDelayBase: c.Source.RetryDelayBase,
	}
}

// MonitorConfig returns the capture settings in the form the monitor consumes
func (c *Config) MonitorConfig() monitor.Config {
	sections := make([]monitor.Section, len(c.Capture.Sections))
	for i, s := range c.Capture.Sections {
		name := s.Name
		if name == "" {
			name = fmt.Sprintf("section%d", i+1)
		}
		sections[i] = monitor.Section{
			Name:            name,
			Leg1Col:         strings.ToUpper(s.Leg1Col),
			Leg2Col:         strings.ToUpper(s.Leg2Col),
			MidCol:          strings.ToUpper(s.MidCol),
			BidCol:          strings.ToUpper(s.BidCol),
			AskCol:          strings.ToUpper(s.AskCol),
			BidVolumeCol:    strings.ToUpper(s.BidVolumeCol),
			AskVolumeCol:    strings.ToUpper(s.AskVolumeCol),
			FirstRow:        s.FirstRow,
			LastRow:         s.LastRow,
			Primary:         s.Primary,
			PrimaryFirstRow: s.PrimaryFirstRow,
			PrimaryLastRow:  s.PrimaryLastRow,
		}
	}

	return monitor.Config{
		Sheet:              c.Source.Sheet,
		ReferenceSheet:     c.Source.ReferenceSheet,
		PrefixCell:         c.Source.PrefixCell,
		FallbackPrefix:     c.Source.FallbackPrefix,
		CashDateCell:       c.Source.CashDateCell,
		ThreeMonthDateCell: c.Source.ThreeMonthDateCell,
		PollInterval:       c.Capture.PollInterval,
		StabilityDuration:  c.Capture.StabilityDuration,
		MinChange:          decimal.NewFromFloat(c.Capture.MinChange),
		StaleAfter:         c.Capture.StaleAfter,
		Sections:           sections,
	}
}
