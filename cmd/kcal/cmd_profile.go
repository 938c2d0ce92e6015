package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/pgaskin/kcal"
	"github.com/pgaskin/kcal/calproto"
	"github.com/pgaskin/kcal/preset"
	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:       "get [day|night|active|all]",
	Short:     "Show a saved calibration profile",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"day", "night", "active", "all"},
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		which := "active"
		if len(args) != 0 {
			which = args[0]
		}
		var ps []calproto.Profile
		switch which {
		case "active":
			ps = []calproto.Profile{calproto.ProfileOf(a.mode.IsDay())}
		case "all":
			ps = []calproto.Profile{calproto.Day, calproto.Night}
		default:
			p, err := calproto.ParseProfile(which)
			if err != nil {
				return err
			}
			ps = []calproto.Profile{p}
		}
		for _, p := range ps {
			v, err := a.store.Get(p)
			printProfile(cmd.OutOrStdout(), p, v, err, a.presets)
		}
		return nil
	},
}

var setCmd = &cobra.Command{
	Use:   "set day|night r g b",
	Short: "Save a calibration profile without previewing it",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := calproto.ParseProfile(args[0])
		if err != nil {
			return err
		}
		var v calproto.Vector
		for ch, s := range args[1:] {
			n, err := strconv.ParseUint(s, 10, 8)
			if err != nil {
				return fmt.Errorf("channel %d: %w", ch, calproto.ErrMalformed)
			}
			v[ch] = uint8(n)
		}

		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.store.Set(p, v); err != nil {
			return fmt.Errorf("%w: %w", kcal.ErrStoreWrite, err)
		}
		a.logger.Debug("saved calibration", "profile", p, "vector", v)
		return nil
	},
}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply the saved calibration for the active profile",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Controller().ApplyActive()
	},
}

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List calibration presets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		for i := 1; i < a.presets.Len(); i++ {
			e, _ := a.presets.At(i)
			fmt.Fprintf(cmd.OutOrStdout(), "%2d  %-11s  %s\n", i, e.Vector, e.Name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(presetsCmd)
}

// printProfile prints a saved profile as returned by [kcal.Store.Get].
func printProfile(w io.Writer, p calproto.Profile, v calproto.Vector, err error, presets *preset.Catalog) {
	switch {
	case err == nil:
		fmt.Fprintf(w, "%-5s  %-11s  %s\n", p, v, presetName(presets, v))
	case errors.Is(err, kcal.ErrUnset):
		fmt.Fprintf(w, "%-5s  %-11s  (default)\n", p, calproto.Default)
	default:
		fmt.Fprintf(w, "%-5s  %-11s  (default, %v)\n", p, calproto.Default, err)
	}
}

func presetName(presets *preset.Catalog, v calproto.Vector) string {
	e, _ := presets.At(presets.IndexOf(v))
	return e.Name
}
