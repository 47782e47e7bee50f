package consolidation

import (
	"math"
	"time"

	"cortex/internal/logging"
	"cortex/internal/store"
)

const (
	graduationPermanentAccessCount   = 10
	graduationPermanentAge           = 90 * 24 * time.Hour
	graduationEstablishedAccessCount = 3
	graduationEstablishedAge         = 30 * 24 * time.Hour
	graduationEstablishedConfidence  = 0.95
	graduationDecayStaleAge          = 180 * 24 * time.Hour
	graduationDecayStep              = 0.1
	graduationReverifyThreshold      = 0.5
)

// GraduationSummary reports what a graduation pass did.
type GraduationSummary struct {
	Promoted           int
	Decayed            int
	FlaggedForReverify int
}

// Graduate walks every knowledge_cache fact and applies the promotion/decay
// rules: facts accessed often enough and old enough without contradiction
// earn higher confidence, facts untouched for a long stretch lose a little,
// and anything that drops below the reverify threshold gets flagged rather
// than silently trusted. Facts already at confidence 1.0 are permanent and
// skipped entirely.
func Graduate(db *store.DB, dryRun bool) (GraduationSummary, error) {
	var summary GraduationSummary

	facts, err := db.ListFacts()
	if err != nil {
		return summary, err
	}

	now := time.Now().UTC()
	for _, f := range facts {
		if f.Confidence >= 1.0 {
			continue
		}

		age := now.Sub(f.VerifiedAt)
		sinceAccess := now.Sub(f.LastAccessedAt)
		contradicted, _ := f.Metadata["contradicted"].(bool)

		newConfidence := f.Confidence
		changed := false

		switch {
		case f.AccessCount >= graduationPermanentAccessCount && age > graduationPermanentAge && !contradicted:
			newConfidence = 1.0
			summary.Promoted++
			changed = true
		case f.AccessCount >= graduationEstablishedAccessCount && age > graduationEstablishedAge && !contradicted && f.Confidence < graduationEstablishedConfidence:
			newConfidence = graduationEstablishedConfidence
			summary.Promoted++
			changed = true
		case sinceAccess > graduationDecayStaleAge && f.Confidence < 1.0:
			newConfidence = math.Round(math.Max(0, f.Confidence-graduationDecayStep)*100) / 100
			summary.Decayed++
			changed = true
		}

		metadata := f.Metadata
		if newConfidence < graduationReverifyThreshold {
			if metadata == nil {
				metadata = map[string]any{}
			}
			metadata["needs_reverify"] = true
			summary.FlaggedForReverify++
			changed = true
		}

		if !changed || dryRun {
			continue
		}
		if err := db.UpdateFactConfidence(f.ID, newConfidence); err != nil {
			logging.StoreWarn("graduation: updating confidence for fact=%s: %v", f.ID, err)
			continue
		}
		if metadata != nil {
			if err := db.UpdateFactMetadata(f.ID, metadata); err != nil {
				logging.StoreWarn("graduation: updating metadata for fact=%s: %v", f.ID, err)
			}
		}
	}

	return summary, nil
}
