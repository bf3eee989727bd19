package main

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gaugecode-go/drivers/bq40z50"

	"gopkg.in/yaml.v3"
)

// Config holds the console configuration. Flags override file values.
type Config struct {
	Bus      string `yaml:"bus"`
	Address  uint16 `yaml:"address"`
	SpeedKHz int64  `yaml:"speed_khz"`
	Map      string `yaml:"map,omitempty"` // empty selects the embedded map
	LogLevel string `yaml:"log_level"`
	Keys     Keys   `yaml:"keys"`
}

// Keys are the security key pairs used by unseal and full-access.
type Keys struct {
	Unseal     [2]uint16 `yaml:"unseal,flow"`
	FullAccess [2]uint16 `yaml:"full_access,flow"`
}

func DefaultConfig() Config {
	return Config{
		Address:  bq40z50.AddressDefault,
		SpeedKHz: 100,
		LogLevel: "info",
		Keys: Keys{
			Unseal:     [2]uint16{bq40z50.DefaultUnsealKey1, bq40z50.DefaultUnsealKey2},
			FullAccess: [2]uint16{bq40z50.DefaultFullAccessKey1, bq40z50.DefaultFullAccessKey2},
		},
	}
}

// loadConfig overlays the YAML file at path on DefaultConfig.
func loadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Address == 0 || c.Address > 0x7F {
		return fmt.Errorf("address 0x%X is not a 7-bit address", c.Address)
	}
	if c.SpeedKHz <= 0 || c.SpeedKHz > 400 {
		return fmt.Errorf("speed_khz %d outside 1..400", c.SpeedKHz)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}
