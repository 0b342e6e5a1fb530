package main

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/banshee-data/fluxrecovery/internal/recovery"
)

// readFlux loads one revolution of flux intervals. Files ending in .u32 hold
// little-endian uint32 values; anything else is decimal text separated by
// whitespace, with # starting a comment.
func readFlux(path string) ([]uint32, error) {
	if strings.EqualFold(filepath.Ext(path), ".u32") {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if len(data)%4 != 0 {
			return nil, fmt.Errorf("%s: length %d is not a multiple of 4", path, len(data))
		}
		out := make([]uint32, len(data)/4)
		for i := range out {
			out[i] = binary.LittleEndian.Uint32(data[i*4:])
		}
		return out, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []uint32
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		for _, field := range strings.Fields(text) {
			v, err := strconv.ParseUint(field, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: %w", path, line, err)
			}
			out = append(out, uint32(v))
		}
	}
	return out, sc.Err()
}

// trackKey splits "<track>_<rev>.<ext>" into its track label. Files without
// an underscore are tracks of their own.
func trackKey(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if i := strings.LastIndexByte(base, '_'); i > 0 {
		return base[:i]
	}
	return base
}

// groupTracks reads every file and groups revolutions by track label.
// Tracks are ordered by label and revolutions by file name.
func groupTracks(paths []string) ([]recovery.Track, error) {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	byLabel := make(map[string]*recovery.Track)
	var labels []string
	for _, p := range sorted {
		intervals, err := readFlux(p)
		if err != nil {
			return nil, err
		}
		key := trackKey(p)
		tr, ok := byLabel[key]
		if !ok {
			tr = &recovery.Track{Label: key}
			byLabel[key] = tr
			labels = append(labels, key)
		}
		tr.Revolutions = append(tr.Revolutions, intervals)
	}
	sort.Strings(labels)

	tracks := make([]recovery.Track, len(labels))
	for i, l := range labels {
		tracks[i] = *byLabel[l]
	}
	return tracks, nil
}
