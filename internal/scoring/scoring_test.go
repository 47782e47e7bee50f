package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecencyMonotonicAndHalfLife(t *testing.T) {
	now := Recency(0)
	assert.InDelta(t, 1.0, now, 1e-9)

	week := Recency(7 * 24 * time.Hour)
	assert.InDelta(t, 0.5, week, 1e-9)

	older := Recency(30 * 24 * time.Hour)
	assert.Less(t, older, week)
	assert.Greater(t, older, 0.0)
}

func TestRecencyNegativeAgeClamped(t *testing.T) {
	assert.InDelta(t, 1.0, Recency(-time.Hour), 1e-9)
}

func TestImportanceSignals(t *testing.T) {
	assert.Equal(t, 0.2, Importance(nil))
	assert.Equal(t, 0.9, Importance([]Signal{SignalUserCorrection}))
	assert.Equal(t, 0.7, Importance([]Signal{SignalUserPreference}))
	assert.Equal(t, 0.7, Importance([]Signal{SignalDecision}))
	assert.Equal(t, 0.8, Importance([]Signal{SignalErrorCorrection}))
	// multiple signals take the max floor
	assert.Equal(t, 0.9, Importance([]Signal{SignalDecision, SignalUserCorrection}))
}

func TestSimilarityClamped(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{1, 0}
	sim, err := Similarity(a, b)
	assert.NoError(t, err)
	assert.InDelta(t, 1.0, sim, 1e-6)

	opposite := []float32{-1, 0}
	sim, err = Similarity(a, opposite)
	assert.NoError(t, err)
	assert.Equal(t, 0.0, sim, "negative cosine clamps to 0")
}

func TestCompositeWeights(t *testing.T) {
	assert.InDelta(t, 0.5*1+0.25*0.5+0.25*0.3, Composite(StrategyBalanced, 1, 0.5, 0.3), 1e-9)
	assert.InDelta(t, 0.3*1+0.55*0.5+0.15*0.3, Composite(StrategyRecency, 1, 0.5, 0.3), 1e-9)
	assert.InDelta(t, 0.35*1+0.15*0.5+0.5*0.3, Composite(StrategyImportance, 1, 0.5, 0.3), 1e-9)
	// unknown strategy falls back to balanced
	assert.Equal(t, Composite(StrategyBalanced, 1, 0.5, 0.3), Composite(Strategy("bogus"), 1, 0.5, 0.3))
}

func TestRankOrdersByScoreThenNewest(t *testing.T) {
	older := time.Now().Add(-time.Hour)
	newer := time.Now()
	candidates := []Candidate{
		{ID: "a", CreatedAt: older},
		{ID: "b", CreatedAt: newer},
		{ID: "c", CreatedAt: older},
	}
	scores := []float64{0.5, 0.5, 0.9}
	ranked := Rank(scores, candidates, 0)
	assert.Equal(t, []string{"c", "b", "a"}, []string{ranked[0].ID, ranked[1].ID, ranked[2].ID})
}

func TestRankLimit(t *testing.T) {
	candidates := []Candidate{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	scores := []float64{0.1, 0.5, 0.9}
	ranked := Rank(scores, candidates, 2)
	assert.Len(t, ranked, 2)
	assert.Equal(t, "c", ranked[0].ID)
}

func TestDedupThresholds(t *testing.T) {
	v := []float32{1, 0, 0}
	window := []Candidate{
		{ID: "near", Embedding: []float32{0.9, 0.436, 0}},
		{ID: "unique", Embedding: []float32{0, 1, 0}},
	}

	verdict, id, _, err := Dedup(v, window)
	assert.NoError(t, err)
	assert.Equal(t, VerdictNearDup, verdict)
	assert.Equal(t, "near", id)

	exactWindow := []Candidate{{ID: "exact", Embedding: []float32{1, 0, 0}}}
	verdict, id, score, err := Dedup(v, exactWindow)
	assert.NoError(t, err)
	assert.Equal(t, VerdictExactDup, verdict)
	assert.Equal(t, "exact", id)
	assert.InDelta(t, 1.0, score, 1e-6)

	uniqueWindow := []Candidate{{ID: "far", Embedding: []float32{0, 1, 0}}}
	verdict, id, _, err = Dedup(v, uniqueWindow)
	assert.NoError(t, err)
	assert.Equal(t, VerdictUnique, verdict)
	assert.Equal(t, "", id)
}
