package fusion

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// MergeTracks runs Merge over independent revision sets concurrently, at
// most GOMAXPROCS at a time. Results are returned in input order. The first
// failing track cancels the tracks not yet started.
func MergeTracks(ctx context.Context, tracks [][]Revision, opts Options) ([]*Result, error) {
	out := make([]*Result, len(tracks))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range tracks {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			res, err := Merge(tracks[i], opts)
			if err != nil {
				return fmt.Errorf("track %d: %w", i, err)
			}
			out[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
