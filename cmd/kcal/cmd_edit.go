package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/pgaskin/kcal"
	"github.com/pgaskin/kcal/calproto"
	"github.com/spf13/cobra"
)

var editCmd = &cobra.Command{
	Use:   "edit",
	Short: "Interactively edit the active calibration profile",
	Long: `Interactively edit the active calibration profile with a live preview.

Commands:
  r|g|b <0-255>     set a channel
  preset <n>        apply a preset (see "kcal presets")
  reset             reset to 255 255 255
  mode day|night    switch to editing another profile (discards changes)
  show              show the current state
  ok                save and exit
  cancel            restore the previous calibration and exit

Interrupting or closing the input cancels the session.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return runEditor(ctx, a.Controller(), cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(editCmd)
}

// runEditor runs an edit session on c using line commands from in until it is
// confirmed or cancelled. If ctx is done or in is closed, the session is
// cancelled. Errors from individual commands are printed rather than
// returned.
func runEditor(ctx context.Context, c *kcal.Controller, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := c.BeginSession(); err != nil {
		fmt.Fprintf(out, "error: %v\n", err)
	}
	printState(out, c)

	for {
		var (
			line string
			ok   bool
		)
		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "interrupted, cancelling")
			return c.Cancel()
		case line, ok = <-lines:
			if !ok {
				return c.Cancel()
			}
		}
		done, err := editCommand(c, line)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
		if done {
			return nil
		}
		if c.State() == kcal.Editing {
			printState(out, c)
		}
	}
}

// editCommand runs a single editor command, returning true if the session has
// ended.
func editCommand(c *kcal.Controller, line string) (bool, error) {
	f := strings.Fields(line)
	if len(f) == 0 {
		return false, nil
	}
	arg := func() (int, error) {
		if len(f) != 2 {
			return 0, fmt.Errorf("%s: expected one argument", f[0])
		}
		n, err := strconv.Atoi(f[1])
		if err != nil {
			return 0, fmt.Errorf("%s: invalid number %q", f[0], f[1])
		}
		return n, nil
	}
	switch cmd := strings.ToLower(f[0]); cmd {
	case "r", "g", "b":
		n, err := arg()
		if err != nil {
			return false, err
		}
		if n < calproto.Min || n > calproto.Max {
			return false, fmt.Errorf("%s: value %d out of range", cmd, n)
		}
		return false, c.AdjustChannel(strings.Index("rgb", cmd), n)
	case "preset":
		n, err := arg()
		if err != nil {
			return false, err
		}
		if _, ok := c.Presets().At(n); !ok || n == 0 {
			return false, fmt.Errorf("preset: no preset %d", n)
		}
		return false, c.ApplyPreset(n)
	case "reset":
		return false, c.ResetToDefault()
	case "mode":
		if len(f) != 2 {
			return false, fmt.Errorf("mode: expected day or night")
		}
		p, err := calproto.ParseProfile(f[1])
		if err != nil {
			return false, fmt.Errorf("mode: %w", err)
		}
		return false, c.SwitchProfile(p)
	case "show", "":
		return false, nil
	case "ok":
		return true, c.Confirm()
	case "cancel", "quit", "exit":
		return true, c.Cancel()
	default:
		return false, fmt.Errorf("unknown command %q", f[0])
	}
}

func printState(w io.Writer, c *kcal.Controller) {
	v := c.Working()
	e, _ := c.Presets().At(c.Selected())
	fmt.Fprintf(w, "%-5s  %-11s  R %3d%%  G %3d%%  B %3d%%  [%d] %s\n",
		c.Profile(), v, v.Percent(0), v.Percent(1), v.Percent(2), c.Selected(), e.Name)
}
