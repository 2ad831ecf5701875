package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from a YAML string like "12h".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = dur
	return nil
}

// ClockTime is a time of day that unmarshals from a YAML string like "11:31".
// The set flag distinguishes a configured midnight from an absent value.
type ClockTime struct {
	Hour   int
	Minute int
	set    bool
}

// At returns a configured clock time.
func At(hour, minute int) ClockTime {
	return ClockTime{Hour: hour, Minute: minute, set: true}
}

func (c *ClockTime) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseClockTime(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseClockTime parses a "HH:MM" string.
func ParseClockTime(s string) (ClockTime, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return ClockTime{}, fmt.Errorf("invalid time of day %q (want HH:MM)", s)
	}
	return At(t.Hour(), t.Minute()), nil
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// IsZero reports whether the clock time was never configured. A configured
// "00:00" is set.
func (c ClockTime) IsZero() bool {
	return !c.set
}

// On returns the clock time anchored to the date of t, in t's location.
func (c ClockTime) On(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), c.Hour, c.Minute, 0, 0, t.Location())
}

// Check kinds.
const (
	KindFreshness = "freshness"
	KindCount     = "count"
	KindFile      = "file"
)

// Check describes one monitored pipeline. Immutable once loaded.
type Check struct {
	Name        string    `yaml:"name"`
	Kind        string    `yaml:"kind"`
	Description string    `yaml:"description"`
	Table       string    `yaml:"table"`
	DateColumn  string    `yaml:"date_column"`
	ExtraWhere  string    `yaml:"extra_where"`
	WarnAfter   Duration  `yaml:"warn_after"`
	CritAfter   Duration  `yaml:"crit_after"`
	MinCount    int64     `yaml:"min_count"`
	Distinct    string    `yaml:"distinct"`
	Path        string    `yaml:"path"`
	Deadline    ClockTime `yaml:"deadline"`
	NotBefore   ClockTime `yaml:"not_before"`
}

// Checkin is a scheduled check-in point: a wall-clock time at which a named
// batch of pipelines is evaluated and summarized.
type Checkin struct {
	Title       string    `yaml:"title"`
	Description string    `yaml:"description"`
	Time        ClockTime `yaml:"time"`
	Pipelines   []string  `yaml:"pipelines"`
}

// WarehouseConfig holds data warehouse connection settings.
type WarehouseConfig struct {
	DSN          string   `yaml:"dsn"`
	QueryTimeout Duration `yaml:"query_timeout"`
}

// ChatConfig holds Google Chat webhook settings.
type ChatConfig struct {
	Enabled      bool   `yaml:"enabled"`
	WebhookURL   string `yaml:"webhook_url"`
	DashboardURL string `yaml:"dashboard_url"`
}

// EmailConfig holds SMTP settings for email alerts.
type EmailConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Host       string   `yaml:"host"`
	Port       int      `yaml:"port"`
	Username   string   `yaml:"username"`
	Password   string   `yaml:"password"`
	From       string   `yaml:"from"`
	Recipients []string `yaml:"recipients"`
}

// AlertsConfig holds all alert channel configuration.
type AlertsConfig struct {
	Chat  ChatConfig  `yaml:"chat"`
	Email EmailConfig `yaml:"email"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// StorageConfig holds local state storage settings. Retention bounds how
// much status history serve mode keeps.
type StorageConfig struct {
	Path      string   `yaml:"path"`
	Retention Duration `yaml:"retention"`
}

// Config is the root application configuration.
type Config struct {
	Warehouse         WarehouseConfig    `yaml:"warehouse"`
	Alerts            AlertsConfig       `yaml:"alerts"`
	Server            ServerConfig       `yaml:"server"`
	Storage           StorageConfig      `yaml:"storage"`
	Checkins          map[string]Checkin `yaml:"checkins"`
	Pipelines         []Check            `yaml:"pipelines"`
	QuickInterval     Duration           `yaml:"quick_interval"`
	SummaryTime       ClockTime          `yaml:"summary_time"`
	ExpectedOperators int64              `yaml:"expected_operators"`
}

// Pipeline returns the check with the given name, or false if unknown.
func (c *Config) Pipeline(name string) (Check, bool) {
	for _, p := range c.Pipelines {
		if p.Name == name {
			return p, true
		}
	}
	return Check{}, false
}

// CheckinNames returns the configured check-in point names, sorted.
func (c *Config) CheckinNames() []string {
	names := make([]string, 0, len(c.Checkins))
	for name := range c.Checkins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var validKinds = map[string]bool{
	KindFreshness: true,
	KindCount:     true,
	KindFile:      true,
}

// Load reads the config file at path, expands ${VAR} references from the
// environment (credentials are injected this way), then parses and
// validates it. A missing required field is an error here: configuration
// problems are fatal at startup, not at check time.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	// Apply defaults.
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "etlwatch.db"
	}
	if cfg.Storage.Retention.Duration == 0 {
		cfg.Storage.Retention = Duration{30 * 24 * time.Hour}
	}
	if cfg.QuickInterval.Duration == 0 {
		cfg.QuickInterval = Duration{5 * time.Minute}
	}
	if cfg.Warehouse.QueryTimeout.Duration == 0 {
		cfg.Warehouse.QueryTimeout = Duration{30 * time.Second}
	}
	if cfg.Alerts.Email.Port == 0 {
		cfg.Alerts.Email.Port = 587
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	if len(cfg.Pipelines) == 0 {
		return fmt.Errorf("at least one pipeline must be configured")
	}

	needsWarehouse := false
	names := make(map[string]bool, len(cfg.Pipelines))
	for i := range cfg.Pipelines {
		p := &cfg.Pipelines[i]
		if p.Name == "" {
			return fmt.Errorf("pipeline[%d]: name is required", i)
		}
		if names[p.Name] {
			return fmt.Errorf("duplicate pipeline name %q", p.Name)
		}
		names[p.Name] = true

		if !validKinds[p.Kind] {
			return fmt.Errorf("pipeline %q: invalid kind %q (must be freshness, count, or file)", p.Name, p.Kind)
		}

		switch p.Kind {
		case KindFreshness:
			needsWarehouse = true
			if p.Table == "" || p.DateColumn == "" {
				return fmt.Errorf("pipeline %q: freshness checks require table and date_column", p.Name)
			}
			if p.CritAfter.Duration == 0 {
				return fmt.Errorf("pipeline %q: crit_after is required", p.Name)
			}
			// The warning threshold defaults to half the critical one.
			if p.WarnAfter.Duration == 0 {
				p.WarnAfter = Duration{p.CritAfter.Duration / 2}
			}
			if p.WarnAfter.Duration > p.CritAfter.Duration {
				return fmt.Errorf("pipeline %q: warn_after %s exceeds crit_after %s", p.Name, p.WarnAfter, p.CritAfter)
			}
		case KindCount:
			needsWarehouse = true
			if p.Table == "" {
				return fmt.Errorf("pipeline %q: count checks require table", p.Name)
			}
			if p.DateColumn == "" && p.Distinct == "" {
				return fmt.Errorf("pipeline %q: count checks require date_column or distinct", p.Name)
			}
			if p.MinCount <= 0 {
				return fmt.Errorf("pipeline %q: min_count must be positive", p.Name)
			}
			// Count checks have no warning tier, only the critical minimum.
			if p.WarnAfter.Duration != 0 || p.CritAfter.Duration != 0 {
				return fmt.Errorf("pipeline %q: count checks take min_count only, not freshness thresholds", p.Name)
			}
		case KindFile:
			if p.Path == "" {
				return fmt.Errorf("pipeline %q: file checks require path", p.Name)
			}
			if p.Deadline.IsZero() {
				return fmt.Errorf("pipeline %q: file checks require a deadline", p.Name)
			}
		}
	}

	if needsWarehouse && cfg.Warehouse.DSN == "" {
		return fmt.Errorf("warehouse.dsn is required by database-backed checks")
	}

	for name, ci := range cfg.Checkins {
		if len(ci.Pipelines) == 0 {
			return fmt.Errorf("checkin %q: pipelines list is empty", name)
		}
		if ci.Time.IsZero() {
			return fmt.Errorf("checkin %q: time is required", name)
		}
		for _, pn := range ci.Pipelines {
			if !names[pn] {
				return fmt.Errorf("checkin %q references unknown pipeline %q", name, pn)
			}
		}
	}

	if cfg.Alerts.Chat.Enabled && cfg.Alerts.Chat.WebhookURL == "" {
		return fmt.Errorf("alerts.chat.webhook_url is required when chat alerts are enabled")
	}
	if cfg.Alerts.Email.Enabled {
		if cfg.Alerts.Email.Host == "" {
			return fmt.Errorf("alerts.email.host is required when email alerts are enabled")
		}
		if cfg.Alerts.Email.From == "" {
			return fmt.Errorf("alerts.email.from is required when email alerts are enabled")
		}
		if len(cfg.Alerts.Email.Recipients) == 0 {
			return fmt.Errorf("alerts.email.recipients must not be empty when email alerts are enabled")
		}
	}

	return nil
}
