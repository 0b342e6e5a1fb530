package main

import (
	"fmt"
	"os"

	"github.com/banshee-data/fluxrecovery/internal/db"
	"github.com/banshee-data/fluxrecovery/internal/recovery"
	"github.com/banshee-data/fluxrecovery/internal/report"
	"github.com/banshee-data/fluxrecovery/internal/security"
	"github.com/spf13/cobra"
)

func newRecoverCmd(g *globalOptions) *cobra.Command {
	var (
		dbPath     string
		outDir     string
		plotDir    string
		chartDir   string
		traceLimit int
	)
	cmd := &cobra.Command{
		Use:   "recover FILE...",
		Short: "Decode, align and fuse every revolution of one or more tracks",
		Long: "Files named <track>_<rev>.<ext> are grouped into tracks; a file without an underscore is a track of its own. " +
			"Tracks are recovered concurrently.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tracks, err := groupTracks(args)
			if err != nil {
				return err
			}
			for _, dir := range []string{outDir, plotDir, chartDir} {
				if dir == "" {
					continue
				}
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("failed to create output dir: %w", err)
				}
			}

			var rec recovery.Recorder
			if dbPath != "" {
				store, err := db.NewDB(dbPath)
				if err != nil {
					return fmt.Errorf("failed to open database: %w", err)
				}
				defer store.Close()
				rec = store
			}

			params := g.params()
			p := recovery.NewPipeline(params, rec)
			if plotDir != "" {
				p.EnableTrace(traceLimit)
			}
			results, err := p.RecoverTracks(cmd.Context(), tracks)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%-12s %4s %8s %6s %8s %10s  %s\n", "TRACK", "REVS", "BITS", "WEAK", "AGREE", "CONFIDENCE", "RUN")
			for _, res := range results {
				f := res.Fused
				fmt.Fprintf(w, "%-12s %4d %8d %6d %8.4f %10.4f  %s\n",
					res.Label, len(res.Revolutions), f.TotalBits, f.WeakBits, f.AgreementRatio(), f.OverallConfidence, res.ID)
				if err := writeTrackOutputs(res, params, outDir, plotDir, chartDir); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "Record runs in this SQLite database")
	cmd.Flags().StringVar(&outDir, "out", "", "Write fused bits as <track>.bin into this directory")
	cmd.Flags().StringVar(&plotDir, "plot", "", "Write cell trace PNGs of each reference revolution into this directory")
	cmd.Flags().StringVar(&chartDir, "chart", "", "Write fused confidence HTML charts into this directory")
	cmd.Flags().IntVar(&traceLimit, "trace-limit", 20000, "Maximum pulses kept per revolution for --plot")
	return cmd
}

func writeTrackOutputs(res *recovery.TrackResult, params recovery.Params, outDir, plotDir, chartDir string) error {
	if outDir != "" {
		path, err := security.OutputPath(outDir, res.Label, ".bin")
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, res.Fused.Bits, 0o644); err != nil {
			return err
		}
	}
	if plotDir != "" {
		ref := res.Revolutions[res.Reference]
		pl, err := report.CellTracePlot(fmt.Sprintf("Track %s rev %d", res.Label, res.Reference), ref.Trace,
			params.VFO.SamplingRate/params.VFO.BitRate)
		if err != nil {
			return fmt.Errorf("plot %s: %w", res.Label, err)
		}
		path, err := security.OutputPath(plotDir, res.Label, ".png")
		if err != nil {
			return err
		}
		if err := report.SavePNG(path, pl); err != nil {
			return err
		}
	}
	if chartDir != "" {
		path, err := security.OutputPath(chartDir, res.Label, ".html")
		if err != nil {
			return err
		}
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := report.ConfidenceChart(f, res, report.DefaultMaxPoints); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}
	return nil
}
