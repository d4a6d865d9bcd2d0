package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	scriptdesk "github.com/goliatone/go-scriptdesk"
	"github.com/goliatone/go-scriptdesk/cron"
	"github.com/goliatone/go-scriptdesk/logging"
	"gopkg.in/yaml.v3"
)

const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Config is the scriptdesk runtime configuration.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Storage  StorageConfig  `yaml:"storage"`
	Runner   RunnerConfig   `yaml:"runner"`
	Reminder ReminderConfig `yaml:"reminder"`
	Rerun    RerunConfig    `yaml:"rerun"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Export   ExportConfig   `yaml:"export"`
	Users    []UserConfig   `yaml:"users"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type StorageConfig struct {
	Backend string `yaml:"backend"`
	Dir     string `yaml:"dir"`
	DSN     string `yaml:"dsn"`
	Table   string `yaml:"table"`
}

// RunnerConfig drives the simulated runner. StartDelay elapses before the
// record is marked running, CompleteDelay before it finishes.
type RunnerConfig struct {
	StartDelay    time.Duration `yaml:"start_delay"`
	CompleteDelay time.Duration `yaml:"complete_delay"`
	Result        string        `yaml:"result"`
	Fail          bool          `yaml:"fail"`
	FailureResult string        `yaml:"failure_result"`
}

// ReminderConfig schedules the pending approval reminder. Seconds switches
// Expression to the six field dialect; Timezone is an IANA name.
type ReminderConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Expression string `yaml:"expression"`
	Seconds    bool   `yaml:"seconds"`
	Timezone   string `yaml:"timezone"`
}

// Parser returns the cron dialect Expression is written in.
func (r ReminderConfig) Parser() cron.Parser {
	if r.Seconds {
		return cron.SecondsParser
	}
	return cron.StandardParser
}

// Location resolves Timezone, defaulting to the local zone.
func (r ReminderConfig) Location() (*time.Location, error) {
	if strings.TrimSpace(r.Timezone) == "" {
		return time.Local, nil
	}
	return time.LoadLocation(r.Timezone)
}

type RerunConfig struct {
	Suffix string `yaml:"suffix"`
}

// CatalogConfig points at a YAML catalog; empty Path uses the embedded one.
type CatalogConfig struct {
	Path string `yaml:"path"`
}

type ExportConfig struct {
	Dir string `yaml:"dir"`
}

type UserConfig struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Role        string   `yaml:"role"`
	Permissions []string `yaml:"permissions"`
}

func Default() Config {
	return Config{
		Log: LogConfig{Level: "info", Format: "console"},
		Storage: StorageConfig{
			Backend: BackendFile,
			Dir:     ".scriptdesk",
			Table:   "scriptdesk_kv",
		},
		Runner: RunnerConfig{
			StartDelay:    time.Second,
			CompleteDelay: 3 * time.Second,
			Result:        "Script executed successfully",
			FailureResult: "Script execution failed",
		},
		Reminder: ReminderConfig{Expression: "@every 1h"},
		Rerun:    RerunConfig{Suffix: " (rerun)"},
		Export:   ExportConfig{Dir: "."},
	}
}

// Load reads a YAML file on top of Default. A missing path returns defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, errors.Wrap(err, errors.CategoryBadInput, "read config file").
			WithTextCode(scriptdesk.CodeConfigInvalid).
			WithMetadata(map[string]any{"path": path})
	}
	return Parse(data)
}

// Parse decodes YAML on top of Default and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, scriptdesk.CloneError(scriptdesk.ErrConfigInvalid, "decode config", err, nil)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var problems []string

	if c.Runner.StartDelay < 0 {
		problems = append(problems, "runner.start_delay must not be negative")
	}
	if c.Runner.CompleteDelay < 0 {
		problems = append(problems, "runner.complete_delay must not be negative")
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		problems = append(problems, fmt.Sprintf("log.level: %v", err))
	}

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendFile:
		if strings.TrimSpace(c.Storage.Dir) == "" {
			problems = append(problems, "storage.dir is required for the file backend")
		}
	case BackendSQLite:
		if strings.TrimSpace(c.Storage.DSN) == "" {
			problems = append(problems, "storage.dsn is required for the sqlite backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("storage.backend %q is not supported", c.Storage.Backend))
	}

	if _, err := c.Reminder.Location(); err != nil {
		problems = append(problems, fmt.Sprintf("reminder.timezone: %v", err))
	}
	if c.Reminder.Enabled {
		if err := cron.ParseSpec(c.Reminder.Parser(), c.Reminder.Expression); err != nil {
			problems = append(problems, fmt.Sprintf("reminder.expression: %v", err))
		}
	}

	seen := make(map[string]struct{}, len(c.Users))
	for i, u := range c.Users {
		if strings.TrimSpace(u.ID) == "" {
			problems = append(problems, fmt.Sprintf("users[%d].id is required", i))
			continue
		}
		if _, dup := seen[u.ID]; dup {
			problems = append(problems, fmt.Sprintf("users[%d].id %q is duplicated", i, u.ID))
		}
		seen[u.ID] = struct{}{}
	}

	if len(problems) == 0 {
		return nil
	}
	return scriptdesk.CloneError(
		scriptdesk.ErrConfigInvalid,
		strings.Join(problems, "; "),
		nil,
		map[string]any{"problems": problems},
	)
}
