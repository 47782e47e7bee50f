package usage

import (
	"context"
	"time"

	"cortex/internal/logging"
	"cortex/internal/store"
)

// Recorder adapts a Tracker and the durable store to the single-call shape
// llmclient.Client expects for usage reporting. The Tracker keeps the
// in-process aggregate (and its own periodic JSON snapshot, cheap to read
// back for a running process's live totals); the store keeps one durable row
// per call so history survives a restart and can be queried by time range.
//
// Subprocess-delegated agents (builder, verifier, researcher) report their
// own token usage independently — they never share this client, so Recorder
// only ever sees calls made by the component it's wired into.
type Recorder struct {
	tracker *Tracker
	db      *store.DB
	agent   string
}

// NewRecorder builds a Recorder attributing every call it sees to agent, the
// name of the component holding the llmclient.Client this recorder backs.
func NewRecorder(tracker *Tracker, db *store.DB, agent string) *Recorder {
	return &Recorder{tracker: tracker, db: db, agent: agent}
}

// RecordUsage implements llmclient.UsageRecorder.
func (r *Recorder) RecordUsage(provider, model string, inputTokens, outputTokens int, duration time.Duration, success bool, errMsg string) {
	if r.tracker != nil {
		ctx := WithShardContext(context.Background(), r.agent, "system", r.agent)
		r.tracker.Track(ctx, model, provider, inputTokens, outputTokens, r.agent)
	}
	if r.db != nil {
		if err := r.db.RecordUsage(&store.UsageRecord{
			Agent:        r.agent,
			Model:        model,
			Provider:     provider,
			InputTokens:  inputTokens,
			OutputTokens: outputTokens,
			DurationMS:   duration.Milliseconds(),
			Success:      success,
			Error:        errMsg,
		}); err != nil {
			logging.UsageWarn("Recorder: persisting usage record for agent=%s model=%s: %v", r.agent, model, err)
		}
	}
}
