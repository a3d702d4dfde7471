// Package conf loads the process-wide configuration for telerelayd:
// log directory/level, transport defaults, and the share engine's
// precision-path threshold. Mirrors the teacher's YAML-via-goccy
// config loader (internal/conf in the original repo), generalized
// from tunnel/transport config to this domain's concerns.
package conf

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// Conf is the root configuration document.
type Conf struct {
	Log    Log    `yaml:"log"`
	Serial Serial `yaml:"serial"`
	UDP    UDP    `yaml:"udp"`
	Share  Share  `yaml:"share"`
}

type Log struct {
	// Directory holds both the diagnostic log (flog) and the
	// per-connection packet logs (internal/logger). Empty means the
	// packet logs go to "<exe_dir>/logs" and the diagnostic log goes
	// to stdout.
	Directory string `yaml:"directory"`
	Level     string `yaml:"level"` // debug|info|warn|error
}

type Serial struct {
	DefaultBaud uint32 `yaml:"default_baud"`
}

type UDP struct {
	ReadBufferBytes  int `yaml:"read_buffer_bytes"`
	WriteBufferBytes int `yaml:"write_buffer_bytes"`
}

type Share struct {
	// PrecisionPathThresholdMs is the interval at or below which the
	// share engine enables the sleep+spin precision path (spec §4.6).
	PrecisionPathThresholdMs uint64 `yaml:"precision_path_threshold_ms"`
}

// LoadFromFile reads and validates a YAML config file, filling
// defaults for anything left unset.
func LoadFromFile(path string) (*Conf, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Conf
	if err := yaml.Unmarshal(data, &c); err != nil {
		return &c, fmt.Errorf("parse config: %w", err)
	}

	c.setDefaults()
	if err := c.validate(); err != nil {
		return &c, err
	}
	return &c, nil
}

// Default returns a Conf with every field at its spec-mandated default.
func Default() *Conf {
	c := &Conf{}
	c.setDefaults()
	return c
}

func (c *Conf) setDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Serial.DefaultBaud == 0 {
		c.Serial.DefaultBaud = 115200
	}
	if c.UDP.ReadBufferBytes == 0 {
		c.UDP.ReadBufferBytes = 8 * 1024 * 1024
	}
	if c.UDP.WriteBufferBytes == 0 {
		c.UDP.WriteBufferBytes = 8 * 1024 * 1024
	}
	if c.Share.PrecisionPathThresholdMs == 0 {
		c.Share.PrecisionPathThresholdMs = 10
	}
}

func (c *Conf) validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug|info|warn|error, got %q", c.Log.Level)
	}
	if c.Serial.DefaultBaud == 0 {
		return fmt.Errorf("serial.default_baud must be > 0")
	}
	return nil
}
