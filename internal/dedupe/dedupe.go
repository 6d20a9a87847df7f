// Package dedupe drops incomplete records and collapses duplicate identities.
package dedupe

import (
	"strings"

	"github.com/ibeckermayer/trendteller/internal/types"
)

// Stats counts what Records removed
type Stats struct {
	Incomplete int `json:"incomplete"`
	Duplicates int `json:"duplicates"`
}

// Records removes records whose normalized text or identity is blank, then
// keeps the first occurrence of each identity key. Order is otherwise kept.
func Records(in []types.NormalizedRecord) ([]types.NormalizedRecord, Stats) {
	var stats Stats
	seen := make(map[string]bool, len(in))
	out := make([]types.NormalizedRecord, 0, len(in))

	for _, r := range in {
		if !complete(r) {
			stats.Incomplete++
			continue
		}
		key := r.Key()
		if seen[key] {
			stats.Duplicates++
			continue
		}
		seen[key] = true
		out = append(out, r)
	}

	return out, stats
}

func complete(r types.NormalizedRecord) bool {
	return strings.TrimSpace(r.Normalized) != "" && strings.TrimSpace(r.Identity) != ""
}
