package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pgaskin/kcal"
	"github.com/pgaskin/kcal/ddc"
	"github.com/pgaskin/kcal/osd"
	"github.com/pgaskin/kcal/portal"
	"github.com/pgaskin/kcal/preset"
	"github.com/pgaskin/kcal/props"
	"github.com/pgaskin/kcal/redshift"
	"github.com/pgaskin/kcal/sysfs"
	"gopkg.in/yaml.v3"
)

// Config is the kcal configuration file.
type Config struct {
	Hardware struct {
		Backend string `yaml:"backend"` // sysfs, x11, or ddc
		Path    string `yaml:"path"`    // sysfs control file, discovered if empty
		Monitor string `yaml:"monitor"` // ddc monitor edid id (e.g., ACRE70C-A55C5042)
		Blind   bool   `yaml:"blind"`   // ddc monitor has broken reads
	} `yaml:"hardware"`

	Properties string `yaml:"properties"`

	Mode struct {
		Source    string  `yaml:"source"` // property, solar, or portal
		Latitude  float64 `yaml:"latitude"`
		Longitude float64 `yaml:"longitude"`
		Elevation float64 `yaml:"elevation"`
	} `yaml:"mode"`

	Presets      string        `yaml:"presets"` // embedded catalog if empty
	State        string        `yaml:"state"`
	ResumeWindow time.Duration `yaml:"resume_window"`
	AutoApply    bool          `yaml:"auto_apply"`

	OSD struct {
		Enabled bool          `yaml:"enabled"`
		Timeout time.Duration `yaml:"timeout"`
		Anchor  string        `yaml:"anchor"` // e.g., bottom-center
		Offset  int           `yaml:"offset"`
	} `yaml:"osd"`
}

var osdAnchors = map[string]osd.Anchor{
	"top-left":      osd.AnchorTopLeft,
	"top-center":    osd.AnchorTopCenter,
	"top-right":     osd.AnchorTopRight,
	"middle-left":   osd.AnchorMiddleLeft,
	"middle-center": osd.AnchorMiddleCenter,
	"middle-right":  osd.AnchorMiddleRight,
	"bottom-left":   osd.AnchorBottomLeft,
	"bottom-center": osd.AnchorBottomCenter,
	"bottom-right":  osd.AnchorBottomRight,
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	var c Config
	c.Hardware.Backend = "sysfs"
	c.Properties = filepath.Join(xdgDir("XDG_CONFIG_HOME", ".config"), "kcal", "properties")
	c.Mode.Source = "property"
	c.Mode.Elevation = -6 // civil twilight
	c.State = filepath.Join(xdgDir("XDG_STATE_HOME", ".local/state"), "kcal", "session.json")
	c.ResumeWindow = 10 * time.Minute
	c.OSD.Timeout = 2 * time.Second
	c.OSD.Anchor = "bottom-center"
	c.OSD.Offset = 96
	return &c
}

// DefaultConfigPath returns the default path to the config file.
func DefaultConfigPath() string {
	return filepath.Join(xdgDir("XDG_CONFIG_HOME", ".config"), "kcal", "config.yaml")
}

// LoadConfig loads the config file at path on top of the defaults. A missing
// file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(buf, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	switch c.Hardware.Backend {
	case "sysfs", "x11":
	case "ddc":
		if c.Hardware.Monitor == "" {
			return fmt.Errorf("hardware: ddc backend requires a monitor id")
		}
	default:
		return fmt.Errorf("hardware: unknown backend %q", c.Hardware.Backend)
	}
	switch c.Mode.Source {
	case "property", "portal":
	case "solar":
		if c.Mode.Latitude < -90 || c.Mode.Latitude > 90 || c.Mode.Longitude < -180 || c.Mode.Longitude > 180 {
			return fmt.Errorf("mode: invalid location %f,%f", c.Mode.Latitude, c.Mode.Longitude)
		}
	default:
		return fmt.Errorf("mode: unknown source %q", c.Mode.Source)
	}
	if c.Properties == "" {
		return fmt.Errorf("properties: path required")
	}
	if c.ResumeWindow < 0 {
		return fmt.Errorf("resume_window: must not be negative")
	}
	if c.OSD.Timeout <= 0 {
		return fmt.Errorf("osd: timeout must be positive")
	}
	if _, ok := osdAnchors[c.OSD.Anchor]; !ok {
		return fmt.Errorf("osd: unknown anchor %q", c.OSD.Anchor)
	}
	return nil
}

// OverlayStyle gets the overlay style.
func (c *Config) OverlayStyle() osd.Style {
	return osd.DefaultStyle().Anchor(osdAnchors[c.OSD.Anchor], c.OSD.Offset)
}

func xdgDir(env, fallback string) string {
	if d := os.Getenv(env); filepath.IsAbs(d) {
		return d
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), fallback)
	}
	return filepath.Join(home, fallback)
}

// OpenHardware opens the configured calibration control surface. The returned
// function releases it.
func (c *Config) OpenHardware(logger *slog.Logger) (kcal.Hardware, func(), error) {
	switch c.Hardware.Backend {
	case "sysfs":
		path := c.Hardware.Path
		if path == "" {
			p, err := sysfs.Find()
			if err != nil {
				return nil, nil, fmt.Errorf("find kcal control file: %w", err)
			}
			path = p
		}
		logger.Debug("using kcal control file", "path", path)
		return sysfs.File{Path: path}, func() {}, nil
	case "x11":
		m, fatal, err := redshift.New(logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to display: %w", err)
		}
		go func() {
			if err, ok := <-fatal; ok && err != nil {
				logger.Error("display connection failed", "error", err)
			}
		}()
		return redshift.Hardware{Manager: m}, m.Close, nil
	case "ddc":
		ci, err := ddc.OpenMonitor(c.Hardware.Monitor)
		if err != nil {
			return nil, nil, fmt.Errorf("open monitor %s: %w", c.Hardware.Monitor, err)
		}
		g, err := ddc.NewGain(ci, c.Hardware.Blind)
		if err != nil {
			ci.Close()
			return nil, nil, fmt.Errorf("open monitor %s: %w", c.Hardware.Monitor, err)
		}
		return g, func() { ci.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", c.Hardware.Backend)
	}
}

// OpenStore opens the property store.
func (c *Config) OpenStore() *props.Store {
	return props.Open(c.Properties)
}

// OpenMode opens the configured mode flag. If it can be watched, watch is a
// function which calls fn on changes until the returned function is called.
func (c *Config) OpenMode(store *props.Store, logger *slog.Logger) (mode kcal.ModeFlag, watch func(fn func()) (func(), error), closer func(), err error) {
	switch c.Mode.Source {
	case "property":
		return props.ModeFlag{Store: store}, nil, func() {}, nil
	case "solar":
		return redshift.Daylight{
			Latitude:  c.Mode.Latitude,
			Longitude: c.Mode.Longitude,
			Elevation: c.Mode.Elevation,
		}, nil, func() {}, nil
	case "portal":
		p, err := portal.New(logger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect to desktop portal: %w", err)
		}
		return p, p.Watch, func() { p.Close() }, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown mode source %q", c.Mode.Source)
	}
}

// LoadPresets loads the configured preset catalog.
func (c *Config) LoadPresets() (*preset.Catalog, error) {
	if c.Presets == "" {
		return preset.Default(), nil
	}
	f, err := os.Open(c.Presets)
	if err != nil {
		return nil, fmt.Errorf("load presets: %w", err)
	}
	defer f.Close()
	cat, err := preset.Load(f)
	if err != nil {
		return nil, fmt.Errorf("load presets %s: %w", c.Presets, err)
	}
	return cat, nil
}
