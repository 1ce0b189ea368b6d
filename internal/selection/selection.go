// Package selection picks the single torrent to expose per release
// group, driven by a user-configured chain of comparison criteria.
package selection

import (
	"errors"
	"sort"

	"github.com/welp-ops/gazelle-subsonic/internal/music"
)

// ErrNoCandidates is returned when Select is called with an empty
// torrent list. Callers are expected to never do that.
var ErrNoCandidates = errors.New("selection: no candidate torrents")

// Criterion names one comparison strategy in a policy's sort order.
type Criterion string

const (
	BySeeders   Criterion = "seeders"
	ByFormat    Criterion = "format"
	ByYear      Criterion = "year"
	ByNumTracks Criterion = "numTracks"
)

// SeederThreshold configures the seeders criterion. When Always is set,
// raw seeder counts are compared outright. Otherwise any two torrents
// at or above Min are considered equally well seeded and the tie moves
// on to the next criterion.
type SeederThreshold struct {
	Always bool
	Min    int
}

// Policy is the user's release preference: which criteria to consult,
// in which order, and their parameters. Criteria absent from SortOrder
// are never consulted.
//
// Formats doubles as the format preference ranking. An older behavior
// also filtered candidates to the listed formats before sorting; that
// filter is intentionally not applied anymore, re-enabling it changes
// which torrents are selectable at all.
type Policy struct {
	SortOrder         []Criterion
	Formats           []music.Format
	Seeders           SeederThreshold
	PreferNewEditions bool
}

// Select returns the best torrent under the policy. The sort is stable,
// so a full tie across all criteria preserves the input order and the
// result is deterministic for a given input.
func Select(p Policy, torrents []music.Torrent) (music.Torrent, error) {
	if len(torrents) == 0 {
		return music.Torrent{}, ErrNoCandidates
	}
	sorted := make([]music.Torrent, len(torrents))
	copy(sorted, torrents)
	sort.SliceStable(sorted, func(i, j int) bool {
		return compare(p, sorted[i], sorted[j]) < 0
	})
	return sorted[0], nil
}

// compare runs the criteria chain, earlier criteria win. Negative means
// a is the better torrent.
func compare(p Policy, a, b music.Torrent) int {
	for _, criterion := range p.SortOrder {
		if c := compareBy(p, criterion, a, b); c != 0 {
			return c
		}
	}
	return 0
}

func compareBy(p Policy, criterion Criterion, a, b music.Torrent) int {
	switch criterion {
	case BySeeders:
		if !p.Seeders.Always && a.Seeders >= p.Seeders.Min && b.Seeders >= p.Seeders.Min {
			return 0 // both well enough seeded
		}
		return intCompare(b.Seeders, a.Seeders)
	case ByFormat:
		return intCompare(formatRank(p.Formats, a.Format), formatRank(p.Formats, b.Format))
	case ByYear:
		if p.PreferNewEditions {
			return intCompare(b.Year, a.Year)
		}
		return intCompare(a.Year, b.Year)
	case ByNumTracks:
		return intCompare(len(b.Files), len(a.Files))
	}
	return 0
}

// formatRank is the position of f in the preference list; formats not
// listed rank below every listed one and tie with each other.
func formatRank(prefs []music.Format, f music.Format) int {
	for i, p := range prefs {
		if p == f {
			return i
		}
	}
	return len(prefs)
}

func intCompare(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
