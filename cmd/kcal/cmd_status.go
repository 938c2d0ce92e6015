package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/pgaskin/kcal"
	"github.com/pgaskin/kcal/calproto"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the calibration state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		w := cmd.OutOrStdout()
		active := calproto.ProfileOf(a.mode.IsDay())
		fmt.Fprintf(w, "mode:       %s (%s)\n", active, a.cfg.Mode.Source)

		if fi, err := os.Stat(a.props.Path()); err == nil {
			fmt.Fprintf(w, "properties: %s (modified %s)\n", a.props.Path(), humanize.Time(fi.ModTime()))
		} else if errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(w, "properties: %s (not created)\n", a.props.Path())
		} else {
			fmt.Fprintf(w, "properties: %s (%v)\n", a.props.Path(), err)
		}

		if v, err := a.hw.Read(); err != nil {
			fmt.Fprintf(w, "hardware:   %s (%v)\n", a.cfg.Hardware.Backend, err)
		} else {
			fmt.Fprintf(w, "hardware:   %s %s\n", a.cfg.Hardware.Backend, v)
		}

		if s, err := readSnapshot(a.cfg.State); err == nil {
			fmt.Fprintf(w, "session:    suspended %s, editing %s %s\n", humanize.Time(s.Saved), s.Profile, s.Working)
		} else if !errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(w, "session:    %v\n", err)
		}

		for _, p := range []calproto.Profile{calproto.Day, calproto.Night} {
			v, err := a.store.Get(p)
			printProfile(w, p, v, err, a.presets)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// readSnapshot reads a suspended session from the state file.
func readSnapshot(path string) (kcal.Snapshot, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return kcal.Snapshot{}, err
	}
	s, err := kcal.ParseSnapshot(buf)
	if err != nil {
		return kcal.Snapshot{}, fmt.Errorf("read session %s: %w", path, err)
	}
	return s, nil
}
