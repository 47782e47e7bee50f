package brain

import (
	"cortex/internal/ingest"
	"cortex/internal/scoring"
)

// ingestTurn wraps a single memory-gate recommendation as an ingest.Turn.
// It carries no separate user/assistant split — the memory-gate call already
// distilled the exchange into one statement worth remembering.
func ingestTurn(text string, importance float64, tags []string, signals []scoring.Signal) ingest.Turn {
	return ingest.Turn{
		UserMessage: text,
		SourceAgent: "brain",
		Tags:        tags,
		Signals:     signals,
		Importance:  importance,
	}
}
