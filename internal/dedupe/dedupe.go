// Package dedupe merges records that describe the same meeting.
package dedupe

import "github.com/user/race-archive/internal/domain"

// Dedupe keeps the first record for each ID and preserves input order.
// Records without an ID are kept as they are.
func Dedupe(records []*domain.Record) []*domain.Record {
	seen := make(map[string]struct{}, len(records))
	out := make([]*domain.Record, 0, len(records))
	for _, r := range records {
		if r == nil {
			continue
		}
		if r.ID != "" {
			if _, dup := seen[r.ID]; dup {
				continue
			}
			seen[r.ID] = struct{}{}
		}
		out = append(out, r)
	}
	return out
}
