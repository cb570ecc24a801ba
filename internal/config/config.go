package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/Mavwarf/appicon/internal/paths"
	"github.com/Mavwarf/appicon/internal/render"
)

// DefaultFilter and DefaultCompression mirror the rasterizer defaults.
const (
	DefaultFilter      = render.DefaultFilter
	DefaultCompression = render.DefaultCompression
)

// Options holds global settings parsed from the "config" key. Every field
// can be overridden with an APPICON_* environment variable.
type Options struct {
	Workers     int    `json:"workers,omitempty" yaml:"workers,omitempty" env:"APPICON_WORKERS"`
	Filter      string `json:"filter,omitempty" yaml:"filter,omitempty" env:"APPICON_FILTER"`
	Compression string `json:"compression,omitempty" yaml:"compression,omitempty" env:"APPICON_COMPRESSION"`
	Serialize   bool   `json:"serialize,omitempty" yaml:"serialize,omitempty" env:"APPICON_SERIALIZE"`
	OutputDir   string `json:"output_dir,omitempty" yaml:"output_dir,omitempty" env:"APPICON_OUTPUT_DIR"`
	History     bool   `json:"history,omitempty" yaml:"history,omitempty" env:"APPICON_HISTORY"`
	HistoryPath string `json:"history_path,omitempty" yaml:"history_path,omitempty" env:"APPICON_HISTORY_PATH"`
}

// Config holds the top-level configuration: global options and hooks.
type Config struct {
	Options Options `json:"config" yaml:"config"`
	Hooks   []Hook  `json:"hooks,omitempty" yaml:"hooks,omitempty"`

	// Source is the file the config was read from; empty for defaults.
	Source string `json:"-" yaml:"-"`
}

// Hook is a notification fired after a generation run. Type selects which
// fields apply: webhook uses URL and Headers; mqtt uses Broker, Topic, QoS,
// Retain, ClientID, Username and Password; command uses Command and Timeout.
// When is "success", "failure" or "" (always). An empty Text sends the JSON
// run summary.
type Hook struct {
	Type     string            `json:"type" yaml:"type"`
	When     string            `json:"when,omitempty" yaml:"when,omitempty"`
	Text     string            `json:"text,omitempty" yaml:"text,omitempty"`
	URL      string            `json:"url,omitempty" yaml:"url,omitempty"`
	Headers  map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Broker   string            `json:"broker,omitempty" yaml:"broker,omitempty"`
	Topic    string            `json:"topic,omitempty" yaml:"topic,omitempty"`
	QoS      byte              `json:"qos,omitempty" yaml:"qos,omitempty"`
	Retain   bool              `json:"retain,omitempty" yaml:"retain,omitempty"`
	ClientID string            `json:"client_id,omitempty" yaml:"client_id,omitempty"`
	Username string            `json:"username,omitempty" yaml:"username,omitempty"`
	Password string            `json:"password,omitempty" yaml:"password,omitempty"`
	Command  string            `json:"command,omitempty" yaml:"command,omitempty"`
	Timeout  *int              `json:"timeout,omitempty" yaml:"timeout,omitempty"` // seconds; nil = default, 0 = none
}

// Defaults returns the configuration used when no file is found.
func Defaults() Config {
	return Config{Options: Options{
		Filter:      DefaultFilter,
		Compression: DefaultCompression,
	}}
}

// UnmarshalJSON sets defaults then decodes the JSON structure.
// Go's json.Unmarshal merges into existing struct fields, so only
// values present in JSON override the defaults.
func (c *Config) UnmarshalJSON(data []byte) error {
	*c = Defaults()
	type Alias Config
	return json.Unmarshal(data, (*Alias)(c))
}

// Load reads and parses a config file, then applies environment
// overrides. It tries, in order:
//  1. explicitPath (if non-empty; must exist)
//  2. appicon.json / appicon.yaml next to the running binary
//  3. ~/.config/appicon/appicon.json / appicon.yaml
//
// When nothing is found the defaults are used.
func Load(explicitPath string) (Config, error) {
	var cfg Config
	var err error
	switch p := find(explicitPath); {
	case explicitPath != "":
		cfg, err = readConfig(explicitPath)
	case p != "":
		cfg, err = readConfig(p)
	default:
		cfg = Defaults()
	}
	if err != nil {
		return Config{}, err
	}
	if err := env.Parse(&cfg.Options); err != nil {
		return Config{}, fmt.Errorf("parsing environment: %w", err)
	}
	return cfg, nil
}

// find returns the first existing config file in the implicit search
// locations, or "" when explicitPath is set or nothing exists.
func find(explicitPath string) string {
	if explicitPath != "" {
		return ""
	}
	var dirs []string
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exe))
	}
	if home, err := os.UserHomeDir(); err == nil {
		if runtime.GOOS == "windows" {
			dirs = append(dirs, filepath.Join(home, "AppData", "Roaming", paths.AppDirName))
		} else {
			dirs = append(dirs, filepath.Join(home, ".config", paths.AppDirName))
		}
	}
	for _, dir := range dirs {
		for _, name := range []string{paths.ConfigFileName, paths.ConfigYAMLName} {
			p := filepath.Join(dir, name)
			if _, err := os.Stat(p); err == nil {
				return p
			}
		}
	}
	return ""
}

func readConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := parse(path, data)
	if err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.Source = path
	return cfg, nil
}

// parse decodes data as YAML for .yaml/.yml files and JSON otherwise.
func parse(path string, data []byte) (Config, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		cfg := Defaults()
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
		return cfg, nil
	default:
		var cfg Config
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
		return cfg, nil
	}
}

var hookTypes = []string{"webhook", "mqtt", "command"}

// Validate reports the first problem found in cfg.
func Validate(cfg Config) error {
	o := cfg.Options
	if o.Workers < 0 {
		return fmt.Errorf("config: workers must be >= 0, got %d", o.Workers)
	}
	if o.Filter != "" && !slices.Contains(render.Filters(), o.Filter) {
		return fmt.Errorf("config: unknown filter %q (supported: %s)", o.Filter, strings.Join(render.Filters(), ", "))
	}
	if o.Compression != "" && !slices.Contains(render.Compressions(), o.Compression) {
		return fmt.Errorf("config: unknown compression %q (supported: %s)", o.Compression, strings.Join(render.Compressions(), ", "))
	}
	for i, h := range cfg.Hooks {
		if err := validateHook(h); err != nil {
			return fmt.Errorf("config: hook %d (%s): %w", i+1, h.Type, err)
		}
	}
	return nil
}

func validateHook(h Hook) error {
	if !slices.Contains(hookTypes, h.Type) {
		return fmt.Errorf("unknown type (supported: %s)", strings.Join(hookTypes, ", "))
	}
	switch h.When {
	case "", "success", "failure":
	default:
		return fmt.Errorf("unknown when %q", h.When)
	}
	switch h.Type {
	case "webhook":
		if h.URL == "" {
			return fmt.Errorf("url is required")
		}
	case "mqtt":
		if h.Broker == "" || h.Topic == "" {
			return fmt.Errorf("broker and topic are required")
		}
		if h.QoS > 2 {
			return fmt.Errorf("qos must be 0, 1 or 2")
		}
	case "command":
		if h.Command == "" {
			return fmt.Errorf("command is required")
		}
		if h.Timeout != nil && *h.Timeout < 0 {
			return fmt.Errorf("timeout must be >= 0")
		}
	}
	return nil
}
