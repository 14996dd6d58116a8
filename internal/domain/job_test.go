package domain

import (
	"testing"
	"time"
)

func TestProviderJobTransitions(t *testing.T) {
	job := NewProviderJob("j1", "seedream-4", time.Now())
	if job.State != ProviderPending {
		t.Fatalf("initial state = %s, want PENDING", job.State)
	}
	if err := job.Advance(ProviderCompleted); err == nil {
		t.Fatalf("PENDING -> COMPLETED must be rejected")
	}
	for _, next := range []ProviderState{ProviderRunning, ProviderRunning, ProviderFailed} {
		if err := job.Advance(next); err != nil {
			t.Fatalf("Advance(%s): %v", next, err)
		}
	}
	if err := job.Advance(ProviderRunning); err == nil {
		t.Fatalf("FAILED is terminal")
	}
}

func TestJobStatusTerminal(t *testing.T) {
	if JobStatusRunning.Terminal() {
		t.Fatalf("running is not terminal")
	}
	if !JobStatusCompleted.Terminal() || !JobStatusFailed.Terminal() {
		t.Fatalf("completed and failed are terminal")
	}
}
