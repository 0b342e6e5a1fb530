package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/fluxrecovery/internal/recovery"
)

var ErrRunNotFound = errors.New("db: run not found")

// Run is a persisted RecoverTrack result.
type Run struct {
	RunID       string
	Label       string
	StartedAt   time.Time
	Duration    time.Duration
	Revolutions int
	Reference   int
	Method      string

	TotalBits         int
	UnanimousBits     int
	MajorityBits      int
	WeakBits          int
	UncertainBits     int
	OverallConfidence float64

	FusedBits []byte
	WeakMask  []byte

	// PerRevolution is only populated by GetRun.
	PerRevolution []RunRevolution
}

// AgreementRatio is the share of bits where a majority of revisions agreed.
func (r *Run) AgreementRatio() float64 {
	if r.TotalBits == 0 {
		return 0
	}
	return float64(r.UnanimousBits+r.MajorityBits) / float64(r.TotalBits)
}

// RunRevolution summarises one decoded revolution of a run.
type RunRevolution struct {
	Revolution    int
	BitCount      int
	DroppedBits   int
	Marks         int
	Resyncs       int
	Offset        int
	AlignedOnMark bool
	CoveredBits   int
	AgreeingBits  int
	Pulses        int
	ValidPulses   int
	ClampedPulses int
	CellMean      float64
	CellStdDev    float64
}

// RecordTrack implements recovery.Recorder.
func (db *DB) RecordTrack(ctx context.Context, res *recovery.TrackResult) error {
	if res == nil || res.Fused == nil {
		return errors.New("db: track result has no fused output")
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	f := res.Fused
	_, err = tx.ExecContext(ctx, `
		INSERT INTO recovery_runs (
			run_id, label, started_at, duration_ns, revolutions, reference, method,
			total_bits, unanimous_bits, majority_bits, weak_bits, uncertain_bits,
			overall_confidence, fused_bits, weak_mask
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID, res.Label, res.StartedAt.UnixNano(), int64(res.Duration), len(res.Revolutions), res.Reference, f.Method.String(),
		f.TotalBits, f.UnanimousBits, f.MajorityBits, f.WeakBits, f.UncertainBits,
		f.OverallConfidence, f.Bits, f.WeakMask,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", res.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_revolutions (
			run_id, revolution, bit_count, dropped_bits, marks, resyncs,
			offset_bits, aligned_on_mark, covered_bits, agreeing_bits,
			pulses, valid_pulses, clamped_pulses, cell_mean, cell_stddev
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare revolutions: %w", err)
	}
	defer stmt.Close()

	for i, rev := range res.Revolutions {
		var offset int
		var onMark bool
		if i < len(res.Offsets) {
			offset = res.Offsets[i]
		}
		if i < len(res.AlignedOnMark) {
			onMark = res.AlignedOnMark[i]
		}
		var covered, agreeing int
		if i < len(f.Revisions) {
			covered, agreeing = f.Revisions[i].Covered, f.Revisions[i].Agreeing
		}
		_, err := stmt.ExecContext(ctx,
			res.ID, i, rev.BitCount, rev.Dropped, len(rev.Marks), rev.Resyncs,
			offset, onMark, covered, agreeing,
			rev.Clock.Pulses, rev.Clock.Valid, rev.Clock.Clamped, rev.Clock.CellMean, rev.Clock.CellStdDev,
		)
		if err != nil {
			return fmt.Errorf("insert revolution %d of %s: %w", i, res.ID, err)
		}
	}
	return tx.Commit()
}

const runColumns = `
	run_id, label, started_at, duration_ns, revolutions, reference, method,
	total_bits, unanimous_bits, majority_bits, weak_bits, uncertain_bits,
	overall_confidence, fused_bits, weak_mask`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	var r Run
	var started, duration int64
	err := row.Scan(
		&r.RunID, &r.Label, &started, &duration, &r.Revolutions, &r.Reference, &r.Method,
		&r.TotalBits, &r.UnanimousBits, &r.MajorityBits, &r.WeakBits, &r.UncertainBits,
		&r.OverallConfidence, &r.FusedBits, &r.WeakMask,
	)
	if err != nil {
		return nil, err
	}
	r.StartedAt = time.Unix(0, started)
	r.Duration = time.Duration(duration)
	return &r, nil
}

// ListRuns returns the most recent runs, newest first. A limit of zero or
// less returns every run. Bit payloads and per-revolution rows are omitted.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.QueryContext(ctx, `SELECT `+runColumns+`
		FROM recovery_runs
		ORDER BY started_at DESC, run_id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.FusedBits, r.WeakMask = nil, nil
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns one run with its per-revolution rows.
func (db *DB) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := db.QueryRowContext(ctx, `SELECT `+runColumns+`
		FROM recovery_runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT revolution, bit_count, dropped_bits, marks, resyncs,
		       offset_bits, aligned_on_mark, covered_bits, agreeing_bits,
		       pulses, valid_pulses, clamped_pulses, cell_mean, cell_stddev
		FROM run_revolutions
		WHERE run_id = ?
		ORDER BY revolution`, runID)
	if err != nil {
		return nil, fmt.Errorf("query revolutions of %s: %w", runID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var rr RunRevolution
		if err := rows.Scan(
			&rr.Revolution, &rr.BitCount, &rr.DroppedBits, &rr.Marks, &rr.Resyncs,
			&rr.Offset, &rr.AlignedOnMark, &rr.CoveredBits, &rr.AgreeingBits,
			&rr.Pulses, &rr.ValidPulses, &rr.ClampedPulses, &rr.CellMean, &rr.CellStdDev,
		); err != nil {
			return nil, fmt.Errorf("scan revolution: %w", err)
		}
		r.PerRevolution = append(r.PerRevolution, rr)
	}
	return r, rows.Err()
}

// DeleteRun removes a run and its revolutions.
func (db *DB) DeleteRun(ctx context.Context, runID string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM recovery_runs WHERE run_id = ?`, runID)
	if err != nil {
		return fmt.Errorf("delete run %s: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

var _ recovery.Recorder = (*DB)(nil)
