// Package config loads and validates the embedding program's pipeline
// configuration from YAML, with environment-variable overrides for the
// common deployment knobs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"

	"ssw-proc-logging/internal/metrics"
	"ssw-proc-logging/pkg/distribution"
	"ssw-proc-logging/pkg/filesink"
	"ssw-proc-logging/pkg/queuesink"
	"ssw-proc-logging/pkg/severity"
)

// GroupConfig binds a distribution group to its sinks and gate.
type GroupConfig struct {
	Name           string   `yaml:"name"`
	Gate           string   `yaml:"gate"`
	RecordCallSite bool     `yaml:"record_call_site"`
	Console        bool     `yaml:"console"`
	FileSinks      []string `yaml:"file_sinks"`

	// Queued wraps the group's file sinks in queue adapters.
	Queued bool             `yaml:"queued"`
	Queue  queuesink.Config `yaml:"queue"`

	// Loggers lists the logger names bound to this group.
	Loggers []string `yaml:"loggers"`
}

// Config is the root configuration document.
type Config struct {
	Hub       distribution.Config  `yaml:"hub"`
	Groups    []GroupConfig        `yaml:"groups"`
	FileSinks []filesink.Config    `yaml:"file_sinks"`
	Metrics   metrics.ServerConfig `yaml:"metrics"`

	// InternalLogLevel controls the bootstrap logrus logger (default
	// "info").
	InternalLogLevel string `yaml:"internal_log_level"`
}

// LoadConfig carrega a configuração do arquivo YAML e aplica overrides de
// ambiente; valida antes de devolver.
func LoadConfig(configFile string) (*Config, error) {
	config := &Config{}

	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configFile, err)
		}
	}

	applyDefaults(config)
	applyEnvironmentOverrides(config)

	if err := ValidateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return config, nil
}

// applyDefaults preenche o que o arquivo não trouxe
func applyDefaults(config *Config) {
	if config.InternalLogLevel == "" {
		config.InternalLogLevel = "info"
	}
	if len(config.Groups) == 0 {
		config.Groups = []GroupConfig{{
			Name:    distribution.DefaultGroupName,
			Gate:    "Info",
			Console: true,
		}}
	}
	for i := range config.Groups {
		if config.Groups[i].Gate == "" {
			config.Groups[i].Gate = "Info"
		}
	}
	for i := range config.FileSinks {
		fs := &config.FileSinks[i]
		if fs.NameStyle == "" {
			fs.NameStyle = filesink.NameStyleNumeric
		}
		if fs.Advance.SizeLimit <= 0 {
			fs.Advance.SizeLimit = 10 << 20
		}
		if fs.Purge.MaxFiles <= 0 {
			fs.Purge.MaxFiles = 10
		}
		fs.CreateDirIfNeeded = true
	}
}

// applyEnvironmentOverrides aplica as variáveis SSW_* usadas nos deploys
func applyEnvironmentOverrides(config *Config) {
	if v := os.Getenv("SSW_LOG_DIR"); v != "" {
		for i := range config.FileSinks {
			config.FileSinks[i].Dir = v
		}
	}
	if v := os.Getenv("SSW_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.Metrics.Port = port
			config.Metrics.Enabled = true
		}
	}
	if v := os.Getenv("SSW_INTERNAL_LOG_LEVEL"); v != "" {
		config.InternalLogLevel = v
	}
}

// ValidateConfig rejects configurations that would fail at setup time.
func ValidateConfig(config *Config) error {
	sinkNames := make(map[string]bool)
	for i := range config.FileSinks {
		fs := &config.FileSinks[i]
		if fs.Name == "" {
			return fmt.Errorf("file sink %d: name is required", i)
		}
		if sinkNames[fs.Name] {
			return fmt.Errorf("file sink %q: duplicate name", fs.Name)
		}
		sinkNames[fs.Name] = true
		if fs.Dir == "" {
			return fmt.Errorf("file sink %q: dir is required", fs.Name)
		}
		if fs.GateText != "" {
			if _, err := severity.ParseLogGate(fs.GateText); err != nil {
				return fmt.Errorf("file sink %q: %w", fs.Name, err)
			}
		}
		if fs.NameStyle != filesink.NameStyleNumeric && fs.NameStyle != filesink.NameStyleByDate {
			return fmt.Errorf("file sink %q: unknown name style %q", fs.Name, fs.NameStyle)
		}
		if fs.Advance.AgeLimit < 0 || fs.Advance.AgeLimit > 0 && fs.Advance.AgeLimit < time.Second {
			return fmt.Errorf("file sink %q: age limit below 1s", fs.Name)
		}
	}

	groupNames := make(map[string]bool)
	for _, g := range config.Groups {
		if g.Name == "" {
			return fmt.Errorf("group with empty name")
		}
		if groupNames[g.Name] {
			return fmt.Errorf("group %q: duplicate name", g.Name)
		}
		groupNames[g.Name] = true
		if _, err := severity.ParseLogGate(g.Gate); err != nil {
			return fmt.Errorf("group %q: %w", g.Name, err)
		}
		for _, ref := range g.FileSinks {
			if !sinkNames[ref] {
				return fmt.Errorf("group %q references unknown file sink %q", g.Name, ref)
			}
		}
		if !g.Console && len(g.FileSinks) == 0 {
			return fmt.Errorf("group %q has no sinks", g.Name)
		}
	}
	return nil
}
