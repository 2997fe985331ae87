package app

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/specialistvlad/condordag/dag"
	"gopkg.in/yaml.v3"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	LogFormat string `yaml:"log_format" toml:"log_format"`
	LogLevel  string `yaml:"log_level" toml:"log_level"`

	// OutDir receives the DAG, submit and input files. Empty means the
	// working directory.
	OutDir         string `yaml:"out_dir" toml:"out_dir"`
	CompressInputs bool   `yaml:"compress_inputs" toml:"compress_inputs"`

	ReportHostname    bool `yaml:"report_hostname" toml:"report_hostname"`
	AlwaysWriteOutput bool `yaml:"always_write_output" toml:"always_write_output"`

	// Submit overrides default submit variables of every graph.
	Submit map[string]string `yaml:"submit" toml:"submit"`
}

// DefaultConfig returns the configuration used when neither a file nor a
// flag sets a value.
func DefaultConfig() Config {
	return Config{
		LogFormat:      "text",
		LogLevel:       "info",
		ReportHostname: true,
	}
}

// NewConfig normalizes and validates cfg.
func NewConfig(cfg Config) (*Config, error) {
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, errors.New("invalid log-format: must be 'text' or 'json'")
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, errors.New("invalid log-level: must be 'debug', 'info', 'warn', or 'error'")
	}

	for k := range cfg.Submit {
		if k == "" {
			return nil, errors.New("submit variable names cannot be empty")
		}
		if strings.HasPrefix(strings.ToLower(k), "queue") {
			return nil, fmt.Errorf("submit variable '%s' is reserved", k)
		}
	}
	return &cfg, nil
}

// LoadFile reads a configuration file over the defaults. Files ending in
// .toml are read as TOML, anything else as YAML. Unknown keys are rejected.
func LoadFile(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		md, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			return cfg, fmt.Errorf("unknown keys in config file %s: %s", path, strings.Join(keys, ","))
		}
		return cfg, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// SubmitVars returns the submit overrides as variables.
func (c *Config) SubmitVars() dag.Vars {
	if len(c.Submit) == 0 {
		return nil
	}
	vars := make(dag.Vars, len(c.Submit))
	for k, v := range c.Submit {
		vars[k] = dag.String(v)
	}
	return vars
}
