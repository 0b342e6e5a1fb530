package main

import (
	"fmt"
	"time"

	"github.com/banshee-data/fluxrecovery/internal/db"
	"github.com/banshee-data/fluxrecovery/internal/version"
	"github.com/spf13/cobra"
)

func newRunsCmd(_ *globalOptions) *cobra.Command {
	var (
		dbPath   string
		limit    int
		show     string
		deleteID string
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List, show or delete recorded recovery runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := db.NewDB(dbPath)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer store.Close()

			ctx := cmd.Context()
			w := cmd.OutOrStdout()
			switch {
			case deleteID != "":
				if err := store.DeleteRun(ctx, deleteID); err != nil {
					return err
				}
				fmt.Fprintf(w, "deleted %s\n", deleteID)
				return nil
			case show != "":
				r, err := store.GetRun(ctx, show)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "run %s track %s at %s (%s)\n", r.RunID, r.Label, r.StartedAt.Format(time.RFC3339), r.Duration)
				fmt.Fprintf(w, "method %s bits %d unanimous %d majority %d weak %d uncertain %d confidence %.4f\n",
					r.Method, r.TotalBits, r.UnanimousBits, r.MajorityBits, r.WeakBits, r.UncertainBits, r.OverallConfidence)
				for _, rr := range r.PerRevolution {
					mark := "corr"
					if rr.AlignedOnMark {
						mark = "mark"
					}
					fmt.Fprintf(w, "  rev %d: %d bits offset %+d (%s) agree %d/%d resyncs %d cell %.2f±%.2f\n",
						rr.Revolution, rr.BitCount, rr.Offset, mark, rr.AgreeingBits, rr.CoveredBits, rr.Resyncs, rr.CellMean, rr.CellStdDev)
				}
				return nil
			}

			runs, err := store.ListRuns(ctx, limit)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%-36s %-12s %-20s %8s %6s %8s\n", "RUN", "TRACK", "STARTED", "BITS", "WEAK", "AGREE")
			for _, r := range runs {
				fmt.Fprintf(w, "%-36s %-12s %-20s %8d %6d %8.4f\n",
					r.RunID, r.Label, r.StartedAt.Format("2006-01-02 15:04:05"), r.TotalBits, r.WeakBits, r.AgreementRatio())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "fluxrecover.db", "SQLite database path")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to list (0 for all)")
	cmd.Flags().StringVar(&show, "show", "", "Show one run with its revolutions")
	cmd.Flags().StringVar(&deleteID, "delete", "", "Delete one run")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
