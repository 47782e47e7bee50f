package main

import (
	"strings"
	"testing"

	"cortex/internal/project"
	"cortex/internal/store"
)

func TestFormatBriefNoActivity(t *testing.T) {
	brief := formatBrief(project.Digest{}, store.MemoryStats{})
	if !strings.Contains(brief, "No tasks completed") {
		t.Fatalf("expected empty-completed notice, got: %s", brief)
	}
	if !strings.Contains(brief, "Queue empty") {
		t.Fatalf("expected empty-queue notice, got: %s", brief)
	}
}

func TestFormatBriefSummarizesOverflow(t *testing.T) {
	d := project.Digest{
		CompletedTitles: []string{"a", "b", "c"},
		CompletedCount:  5,
	}
	brief := formatBrief(d, store.MemoryStats{})
	if !strings.Contains(brief, "+2 more") {
		t.Fatalf("expected overflow count in brief, got: %s", brief)
	}
}

func TestSummarizeJoinsUpToThree(t *testing.T) {
	got := summarize([]string{"a", "b", "c", "d"}, 4)
	if got != "a, b, c +1 more" {
		t.Fatalf("expected 'a, b, c +1 more', got '%s'", got)
	}
}
