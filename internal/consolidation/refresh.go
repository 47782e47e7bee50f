package consolidation

import (
	"time"

	"cortex/internal/logging"
	"cortex/internal/store"
)

const (
	refreshMinAge             = 90 * 24 * time.Hour
	refreshRecentAccessWithin = 30 * 24 * time.Hour
)

// RefreshSummary reports what a refresh pass did.
type RefreshSummary struct {
	Flagged          int
	AlreadyPermanent int
	Skipped          int
}

// Refresh flags facts eligible for passive re-verification without spending
// any API credits: a fact qualifies when it's old enough that it might have
// drifted but has still been accessed recently enough that someone cares
// about its accuracy. Refresh only records the needs_reverify flag; it makes
// no verification call itself.
func Refresh(db *store.DB) (RefreshSummary, error) {
	var summary RefreshSummary

	facts, err := db.ListFacts()
	if err != nil {
		return summary, err
	}

	now := time.Now().UTC()
	for _, f := range facts {
		if f.Confidence >= 1.0 {
			summary.AlreadyPermanent++
			continue
		}

		if needsReverify, _ := f.Metadata["needs_reverify"].(bool); needsReverify {
			summary.Skipped++
			continue
		}

		age := now.Sub(f.VerifiedAt)
		sinceAccess := now.Sub(f.LastAccessedAt)
		recentlyAccessed := sinceAccess <= refreshRecentAccessWithin

		if age <= refreshMinAge || !recentlyAccessed {
			summary.Skipped++
			continue
		}

		metadata := f.Metadata
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata["needs_reverify"] = true
		if err := db.UpdateFactMetadata(f.ID, metadata); err != nil {
			logging.StoreWarn("refresh: flagging fact=%s: %v", f.ID, err)
			continue
		}
		summary.Flagged++
	}

	return summary, nil
}
