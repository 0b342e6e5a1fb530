// Package fusion merges several independent reads of the same region into
// one result, weighting each read by its confidence, quality, integrity and
// recency, and marking the positions where the reads disagree.
//
// Fusion never mutates its inputs. All functions are safe to call
// concurrently on distinct or shared read-only revisions.
package fusion

import (
	"errors"
	"fmt"
)

// MaxRevisions bounds the revisions accepted by a single merge.
const MaxRevisions = 32

var (
	ErrNoRevisions      = errors.New("fusion: no revisions")
	ErrEmptyRevisions   = errors.New("fusion: all revisions are empty")
	ErrTooManyRevisions = fmt.Errorf("fusion: more than %d revisions", MaxRevisions)
	ErrInvalidRevision  = errors.New("fusion: invalid revision")
)

// Revision is one independently obtained copy of a bit range.
type Revision struct {
	// Bits is packed MSB-first; only the first BitCount bits are read.
	Bits     []byte
	BitCount int
	// Skip is the number of leading positions this copy does not cover,
	// such as the padding Shift prepends. They never vote.
	Skip int

	// Confidence optionally holds one 0..255 value per position.
	Confidence []byte
	// Timing optionally holds one flux timing value per position.
	Timing []uint32

	// IntegrityOK is set when a checksum over this copy passed.
	IntegrityOK bool
	// Quality is a 0..100 score. Zero means not scored.
	Quality int
}

func (r *Revision) bit(i int) uint8 {
	return (r.Bits[i/8] >> (7 - uint(i%8))) & 1
}

// covers reports whether bit position i was read by this copy.
func (r *Revision) covers(i int) bool { return i >= r.Skip && i < r.BitCount }

func (r *Revision) hasConfidence(i int) bool { return i < len(r.Confidence) }
func (r *Revision) hasTiming(i int) bool     { return i < len(r.Timing) }

// validate checks one revision against its declared length. positions is
// the number of addressable positions (bits, or bytes for byte merges).
func (r *Revision) validate(idx int, positions int) error {
	switch {
	case r.BitCount < 0:
		return fmt.Errorf("%w %d: negative bit count %d", ErrInvalidRevision, idx, r.BitCount)
	case r.Skip < 0:
		return fmt.Errorf("%w %d: negative skip %d", ErrInvalidRevision, idx, r.Skip)
	case len(r.Bits)*8 < r.BitCount:
		return fmt.Errorf("%w %d: %d bytes cannot hold %d bits", ErrInvalidRevision, idx, len(r.Bits), r.BitCount)
	case r.Confidence != nil && len(r.Confidence) < positions:
		return fmt.Errorf("%w %d: %d confidence values for %d positions", ErrInvalidRevision, idx, len(r.Confidence), positions)
	case r.Timing != nil && len(r.Timing) < positions:
		return fmt.Errorf("%w %d: %d timing values for %d positions", ErrInvalidRevision, idx, len(r.Timing), positions)
	case r.Quality < 0 || r.Quality > 100:
		return fmt.Errorf("%w %d: quality %d out of range", ErrInvalidRevision, idx, r.Quality)
	}
	return nil
}

// checkRevisions applies the argument rules shared by every merge. span
// returns the number of positions a revision covers.
func checkRevisions(revs []Revision, span func(*Revision) int) (int, error) {
	if len(revs) == 0 {
		return 0, ErrNoRevisions
	}
	if len(revs) > MaxRevisions {
		return 0, fmt.Errorf("%w: got %d", ErrTooManyRevisions, len(revs))
	}
	longest := 0
	for i := range revs {
		n := span(&revs[i])
		if err := revs[i].validate(i, n); err != nil {
			return 0, err
		}
		if n > longest {
			longest = n
		}
	}
	if longest == 0 {
		return 0, ErrEmptyRevisions
	}
	return longest, nil
}

func bitSpan(r *Revision) int { return r.BitCount }

// RevisionStats describes how one revision contributed to a merge.
type RevisionStats struct {
	Covered  int // positions the revision voted on
	Agreeing int // of those, positions matching the fused value
}

// AgreementRatio returns Agreeing/Covered, or 0 for an empty revision.
func (s RevisionStats) AgreementRatio() float64 {
	if s.Covered == 0 {
		return 0
	}
	return float64(s.Agreeing) / float64(s.Covered)
}
