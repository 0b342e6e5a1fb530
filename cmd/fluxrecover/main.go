// Command fluxrecover recovers bit streams from floppy flux captures: clock
// recovery, sync detection, multi-revolution fusion and Reed–Solomon block
// correction.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/banshee-data/fluxrecovery/internal/config"
	"github.com/banshee-data/fluxrecovery/internal/flux/vfo"
	"github.com/banshee-data/fluxrecovery/internal/monitoring"
	"github.com/banshee-data/fluxrecovery/internal/recovery"
	"github.com/banshee-data/fluxrecovery/internal/units"
	"github.com/spf13/cobra"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	preset     string
	verbose    bool
	trace      bool
	quiet      bool

	tuning *config.TuningConfig
}

// params builds pipeline parameters from the tuning config and preset.
func (g *globalOptions) params() recovery.Params {
	p := recovery.ParamsFromTuning(g.tuning)
	if g.preset != "" {
		p.VFO.BitRate = units.MustLookup(g.preset).CellRate
	}
	return p
}

func (g *globalOptions) setup(cmd *cobra.Command) error {
	if g.preset != "" && !units.IsValid(g.preset) {
		return fmt.Errorf("unknown --preset %q (valid: %s)", g.preset, units.GetValidPresetsString())
	}
	if g.configPath != "" {
		cfg, err := config.LoadTuningConfig(g.configPath)
		if err != nil {
			return err
		}
		g.tuning = cfg
	} else {
		g.tuning = config.EmptyTuningConfig()
	}

	errOut := cmd.ErrOrStderr()
	if g.quiet {
		monitoring.SetLogger(nil)
	} else {
		monitoring.SetLogger(func(format string, v ...interface{}) {
			fmt.Fprintf(errOut, format+"\n", v...)
		})
	}

	// Every stream goes through the monitoring logger so --quiet mutes all.
	ops := monitoring.LogWriter("")
	var diag, trace = ops, ops
	if !g.verbose && !g.trace {
		diag = nil
	}
	if !g.trace {
		trace = nil
		vfo.SetDebugLogger(nil)
	} else {
		vfo.SetDebugLogger(monitoring.LogWriter(""))
	}
	recovery.SetLogWriters(ops, diag, trace)
	return nil
}

func newRootCmd() *cobra.Command {
	g := &globalOptions{}
	root := &cobra.Command{
		Use:           "fluxrecover",
		Short:         "Recover data from floppy flux captures",
		Long:          "Decode flux captures with a PLL data separator, find sync marks, fuse multiple revolutions and repair Reed-Solomon protected blocks",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return g.setup(cmd)
		},
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "Tuning config JSON (defaults apply for omitted keys)")
	root.PersistentFlags().StringVar(&g.preset, "preset", "", "Recording format preset: "+units.GetValidPresetsString())
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Log per-track diagnostics")
	root.PersistentFlags().BoolVar(&g.trace, "trace", false, "Log per-revolution and per-mark telemetry")
	root.PersistentFlags().BoolVarP(&g.quiet, "quiet", "q", false, "Suppress all log output")

	root.AddCommand(
		newDecodeCmd(g),
		newFuseCmd(g),
		newRecoverCmd(g),
		newECCCmd(g),
		newRunsCmd(g),
		newVersionCmd(),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
