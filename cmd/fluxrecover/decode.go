package main

import (
	"fmt"
	"os"

	"github.com/banshee-data/fluxrecovery/internal/recovery"
	"github.com/banshee-data/fluxrecovery/internal/report"
	"github.com/banshee-data/fluxrecovery/internal/units"
	"github.com/spf13/cobra"
)

func newDecodeCmd(g *globalOptions) *cobra.Command {
	var (
		out        string
		plotPath   string
		histPath   string
		traceLimit int
	)
	cmd := &cobra.Command{
		Use:   "decode FILE",
		Short: "Decode one revolution and report clock and sync statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			intervals, err := readFlux(args[0])
			if err != nil {
				return err
			}
			params := g.params()
			p := recovery.NewPipeline(params, nil)
			if plotPath != "" {
				p.EnableTrace(traceLimit)
			}
			rev, err := p.DecodeRevolution(intervals)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "intervals: %d (%.2f rpm)\n", len(intervals), units.RPM(intervals, params.VFO.SamplingRate))
			fmt.Fprintf(w, "bits: %d (dropped %d)\n", rev.BitCount, rev.Dropped)
			c := rev.Clock
			fmt.Fprintf(w, "pulses: %d valid %d early %d late %d clamped %d\n", c.Pulses, c.Valid, c.Early, c.Late, c.Clamped)
			fmt.Fprintf(w, "cell: mean %.3f sd %.3f min %.3f max %.3f phase error %.4f\n",
				c.CellMean, c.CellStdDev, c.CellMin, c.CellMax, c.PhaseError)
			fmt.Fprintf(w, "resyncs: %d\n", rev.Resyncs)
			s := rev.SyncStats
			fmt.Fprintf(w, "sync: seen %d accepted %d rejected %d echoes %d superseded %d\n",
				s.Seen, s.Accepted, s.Rejected, s.Echoes, s.Superseded)
			for _, m := range rev.Marks {
				fmt.Fprintf(w, "  %s\n", m)
			}

			if out != "" {
				if err := os.WriteFile(out, rev.Bits, 0o644); err != nil {
					return err
				}
			}
			if plotPath != "" {
				pl, err := report.CellTracePlot(args[0], rev.Trace, params.VFO.SamplingRate/params.VFO.BitRate)
				if err != nil {
					return err
				}
				if err := report.SavePNG(plotPath, pl); err != nil {
					return err
				}
			}
			if histPath != "" {
				pl, err := report.IntervalHistogramPlot(args[0], intervals, 0)
				if err != nil {
					return err
				}
				if err := report.SavePNG(histPath, pl); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "Write packed cell bits to this file")
	cmd.Flags().StringVar(&plotPath, "plot", "", "Write a PNG of cell size per pulse")
	cmd.Flags().StringVar(&histPath, "hist", "", "Write a PNG histogram of flux intervals")
	cmd.Flags().IntVar(&traceLimit, "trace-limit", 20000, "Maximum pulses kept for --plot")
	return cmd
}
