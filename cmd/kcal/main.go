// Command kcal edits and applies display color calibration profiles.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/pgaskin/kcal"
	"github.com/pgaskin/kcal/preset"
	"github.com/pgaskin/kcal/props"
	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "kcal",
	Short: "Display color calibration",
	Long: `Edit and apply display color calibration profiles.

The calibration is a red, green, and blue value from 0 to 255. Separate day and
night profiles are stored in a property file, and the active one is chosen by a
mode flag. Changes made while editing are previewed on the display immediately,
and are only saved when confirmed.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", DefaultConfigPath(), "config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "show debug logs")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: verbose,
	}))
}

// app contains the collaborators built from the config.
type app struct {
	cfg       *Config
	logger    *slog.Logger
	props     *props.Store
	store     kcal.Store
	hw        kcal.Hardware
	mode      kcal.ModeFlag
	watchMode func(fn func()) (func(), error) // nil if the mode flag can't be watched
	presets   *preset.Catalog
	closers   []func()
}

// openApp loads the config and opens everything. If hw is false, the hardware
// is not opened.
func openApp(hw bool) (*app, error) {
	a := &app{logger: newLogger()}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	a.cfg = cfg
	a.logger.Debug("loaded config", "path", configPath, "backend", cfg.Hardware.Backend, "mode", cfg.Mode.Source)

	a.props = cfg.OpenStore()
	a.store = props.Profiles{Store: a.props}

	if a.presets, err = cfg.LoadPresets(); err != nil {
		return nil, err
	}

	mode, watch, closeMode, err := cfg.OpenMode(a.props, a.logger)
	if err != nil {
		return nil, err
	}
	a.mode, a.watchMode = mode, watch
	a.closers = append(a.closers, closeMode)

	if hw {
		h, closeHW, err := cfg.OpenHardware(a.logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.hw = h
		a.closers = append(a.closers, closeHW)
	}
	return a, nil
}

// Controller creates a new calibration controller. The hardware must have
// been opened.
func (a *app) Controller() *kcal.Controller {
	if a.hw == nil {
		panic(fmt.Errorf("hardware not opened"))
	}
	return kcal.New(a.store, a.hw, a.mode, a.presets, a.logger)
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
