// Package scoring implements the memory engine's recency, importance, and
// composite scoring, plus the dedup-verdict classifier. Every formula here
// is load-bearing: retrieval ranking and ingest dedup both depend on it
// producing the same numbers every time for the same inputs.
package scoring

import (
	"math"
	"time"

	"cortex/internal/embedding"
)

// Strategy selects which weighting of similarity/recency/importance a
// retrieval call uses to rank candidates.
type Strategy string

const (
	StrategyBalanced   Strategy = "balanced"
	StrategyRecency    Strategy = "recency"
	StrategyImportance Strategy = "importance"
)

// weights holds the (similarity, recency, importance) weighting for a
// strategy. Unrecognized strategies fall back to balanced.
var weights = map[Strategy][3]float64{
	StrategyBalanced:   {0.50, 0.25, 0.25},
	StrategyRecency:    {0.30, 0.55, 0.15},
	StrategyImportance: {0.35, 0.15, 0.50},
}

// recencyHalfLife is chosen so that Recency(7 days) ≈ 0.5, matching the
// "≈0.5 at one week" requirement exactly at t=168h.
const recencyHalfLife = 7 * 24 * time.Hour

// Recency returns a monotone-decreasing score in (0, 1] for the given age:
// ≈1 for age≈0, ≈0.5 at one week, asymptotically approaching 0 thereafter.
func Recency(age time.Duration) float64 {
	if age < 0 {
		age = 0
	}
	return math.Exp(-math.Ln2 * float64(age) / float64(recencyHalfLife))
}

// Signal names an importance-lifting flag attached to a memory at ingest.
type Signal string

const (
	SignalUserCorrection Signal = "user_correction"
	SignalUserPreference Signal = "user_preference"
	SignalDecision       Signal = "decision"
	SignalErrorCorrection Signal = "error_correction"
)

const baseImportance = 0.2

var signalFloor = map[Signal]float64{
	SignalUserCorrection:  0.9,
	SignalUserPreference:  0.7,
	SignalDecision:        0.7,
	SignalErrorCorrection: 0.8,
}

// Importance computes a memory's importance score from its signal flags.
// The base is 0.2; each present signal lifts the score to at least its
// floor, and multiple signals take the maximum floor.
func Importance(signals []Signal) float64 {
	score := baseImportance
	for _, s := range signals {
		if floor, ok := signalFloor[s]; ok && floor > score {
			score = floor
		}
	}
	return score
}

// Similarity returns the cosine similarity of two unit vectors clamped to
// [0, 1] — the scoring model treats negative similarity the same as none.
func Similarity(a, b []float32) (float64, error) {
	sim, err := embedding.CosineSimilarity(a, b)
	if err != nil {
		return 0, err
	}
	if sim < 0 {
		return 0, nil
	}
	if sim > 1 {
		return 1, nil
	}
	return sim, nil
}

// Candidate is one scoreable row: a memory or a knowledge fact.
type Candidate struct {
	ID         string
	Embedding  []float32
	Age        time.Duration
	Importance float64
	CreatedAt  time.Time
}

// Composite combines similarity, recency, and importance per the given
// strategy's weight table.
func Composite(strategy Strategy, similarity, recency, importance float64) float64 {
	w, ok := weights[strategy]
	if !ok {
		w = weights[StrategyBalanced]
	}
	return w[0]*similarity + w[1]*recency + w[2]*importance
}

// Score scores a single candidate against a query embedding under strategy.
func Score(strategy Strategy, query []float32, c Candidate) (float64, error) {
	sim, err := Similarity(query, c.Embedding)
	if err != nil {
		return 0, err
	}
	rec := Recency(c.Age)
	return Composite(strategy, sim, rec, c.Importance), nil
}

// Rank sorts candidates by composite score descending, breaking ties by
// newer created-at first, and truncates to limit (0 or negative means no
// truncation).
func Rank(scores []float64, candidates []Candidate, limit int) []Candidate {
	type scored struct {
		score float64
		cand  Candidate
	}
	paired := make([]scored, len(candidates))
	for i, c := range candidates {
		paired[i] = scored{scores[i], c}
	}
	for i := 1; i < len(paired); i++ {
		for j := i; j > 0; j-- {
			a, b := paired[j-1], paired[j]
			swap := b.score > a.score
			if b.score == a.score && b.cand.CreatedAt.After(a.cand.CreatedAt) {
				swap = true
			}
			if !swap {
				break
			}
			paired[j-1], paired[j] = paired[j], paired[j-1]
		}
	}
	out := make([]Candidate, len(paired))
	for i, s := range paired {
		out[i] = s.cand
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// DedupVerdict classifies how a new embedding relates to the closest existing
// row in a candidate window.
type DedupVerdict string

const (
	VerdictExactDup DedupVerdict = "exact_dup"
	VerdictNearDup  DedupVerdict = "near_dup"
	VerdictUnique   DedupVerdict = "unique"
)

const (
	exactDupThreshold = 0.95
	nearDupThreshold  = 0.85
)

// Dedup computes the max cosine similarity between v and the candidate
// window, returning the verdict and the ID of the matched row (empty for
// VerdictUnique).
func Dedup(v []float32, window []Candidate) (DedupVerdict, string, float64, error) {
	var best float64
	var bestID string
	for _, c := range window {
		sim, err := Similarity(v, c.Embedding)
		if err != nil {
			return "", "", 0, err
		}
		if sim > best {
			best = sim
			bestID = c.ID
		}
	}
	switch {
	case best >= exactDupThreshold:
		return VerdictExactDup, bestID, best, nil
	case best >= nearDupThreshold:
		return VerdictNearDup, bestID, best, nil
	default:
		return VerdictUnique, "", best, nil
	}
}
