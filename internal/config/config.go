// Package config loads a flurry server's startup configuration from a
// JSON file into a small, flat, hand-validated struct (see DESIGN.md
// for why this stays on encoding/json rather than a config framework).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/itepastra/flurry/internal/flut"
)

// CanvasSpec is one entry in the "canvases" array of the config file.
type CanvasSpec struct {
	ID     uint8  `json:"id"`
	Width  uint16 `json:"width"`
	Height uint16 `json:"height"`
}

// Config is the full shape of a flurry server's JSON config file.
type Config struct {
	Canvases    []CanvasSpec `json:"canvases"`
	TCPAddr     string       `json:"tcp_addr"`
	HTTPAddr    string       `json:"http_addr"`
	BroadcastHz float64      `json:"broadcast_hz"`
	StatsHz     float64      `json:"stats_hz"`
	RedisAddr   string       `json:"redis_addr"`
}

// Default is the configuration used when no config file path is given:
// one 800x600 canvas, broadcasting at 20 Hz with 1 Hz stats and no
// cluster fan-out.
func Default() Config {
	return Config{
		Canvases:    []CanvasSpec{{ID: 0, Width: 800, Height: 600}},
		TCPAddr:     "0.0.0.0:7791",
		HTTPAddr:    "0.0.0.0:8080",
		BroadcastHz: 20,
		StatsHz:     1,
	}
}

// defaultConfigFile is the name Load falls back to looking for in the
// working directory when no path is given on the command line.
const defaultConfigFile = "flurry.json"

// Load reads and validates a config file. If path is empty, Load looks
// for flurry.json in the working directory; if that doesn't exist
// either, it returns Default().
func Load(path string) (Config, error) {
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err != nil {
			return Default(), nil
		}
		path = defaultConfigFile
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := Default()
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if len(c.Canvases) == 0 {
		return fmt.Errorf("at least one canvas is required")
	}
	seen := make(map[uint8]bool, len(c.Canvases))
	for _, cv := range c.Canvases {
		if cv.Width == 0 || cv.Height == 0 {
			return fmt.Errorf("canvas %d: width and height must be nonzero", cv.ID)
		}
		if seen[cv.ID] {
			return fmt.Errorf("canvas %d: duplicate id", cv.ID)
		}
		seen[cv.ID] = true
	}
	if c.BroadcastHz <= 0 {
		return fmt.Errorf("broadcast_hz must be positive")
	}
	if c.StatsHz <= 0 {
		return fmt.Errorf("stats_hz must be positive")
	}
	return nil
}

// BroadcastInterval converts BroadcastHz into a tick period.
func (c Config) BroadcastInterval() time.Duration {
	return time.Duration(float64(time.Second) / c.BroadcastHz)
}

// StatsInterval converts StatsHz into a tick period.
func (c Config) StatsInterval() time.Duration {
	return time.Duration(float64(time.Second) / c.StatsHz)
}

// CanvasConfigs converts the config file's canvas list into the shape
// flut.NewStore expects.
func (c Config) CanvasConfigs() []flut.CanvasConfig {
	out := make([]flut.CanvasConfig, len(c.Canvases))
	for i, cv := range c.Canvases {
		out[i] = flut.CanvasConfig{ID: cv.ID, Width: cv.Width, Height: cv.Height}
	}
	return out
}

// ClusterEnabled reports whether the config asks for Redis-backed
// cluster fan-out.
func (c Config) ClusterEnabled() bool {
	return c.RedisAddr != ""
}
