package domain

import "testing"

func TestTransitionsAreMonotonic(t *testing.T) {
	allowed := []struct {
		from, to CallStatus
	}{
		{StatusPending, StatusTranscribing},
		{StatusTranscribing, StatusScoring},
		{StatusScoring, StatusCompleted},
		{StatusPending, StatusFailed},
		{StatusTranscribing, StatusFailed},
		{StatusScoring, StatusFailed},
	}
	for _, tc := range allowed {
		if !CanTransition(tc.from, tc.to) {
			t.Fatalf("expected %s -> %s to be allowed", tc.from, tc.to)
		}
	}

	denied := []struct {
		from, to CallStatus
	}{
		{StatusCompleted, StatusFailed},
		{StatusCompleted, StatusScoring},
		{StatusFailed, StatusTranscribing},
		{StatusFailed, StatusFailed},
		{StatusScoring, StatusTranscribing},
		{StatusTranscribing, StatusPending},
		{StatusPending, StatusScoring},
	}
	for _, tc := range denied {
		if CanTransition(tc.from, tc.to) {
			t.Fatalf("expected %s -> %s to be denied", tc.from, tc.to)
		}
	}
}

func TestStatusRanksNeverRegressIntoTerminal(t *testing.T) {
	if StatusFailed.Rank() < StatusScoring.Rank() {
		t.Fatalf("failed must rank at least as high as any live stage")
	}
	if !StatusFailed.IsTerminal() || !StatusCompleted.IsTerminal() {
		t.Fatalf("completed and failed are terminal")
	}
	if StatusScoring.IsTerminal() {
		t.Fatalf("scoring is not terminal")
	}
}

func TestCallValidateEnforcesStatusDependentFields(t *testing.T) {
	base := func() Call {
		return Call{ID: "c1", Status: StatusPending}
	}

	call := base()
	if err := call.Validate(); err != nil {
		t.Fatalf("pending call should validate: %v", err)
	}

	call = base()
	call.Transcript = []TranscriptEntry{{Role: RoleUser, Content: "hi"}}
	if err := call.Validate(); err == nil {
		t.Fatalf("transcript before scoring must be rejected")
	}

	call = base()
	call.Status = StatusScoring
	call.Transcript = []TranscriptEntry{{Role: RoleUser, Content: "hi"}}
	if err := call.Validate(); err != nil {
		t.Fatalf("transcript in scoring should validate: %v", err)
	}

	call = base()
	call.Status = StatusScoring
	call.Analysis = &ScoringResult{}
	if err := call.Validate(); err == nil {
		t.Fatalf("analysis before completed must be rejected")
	}

	call = base()
	call.ErrorMessage = "boom"
	if err := call.Validate(); err == nil {
		t.Fatalf("error message outside failed must be rejected")
	}

	call = base()
	call.Status = StatusFailed
	call.ErrorMessage = "boom"
	if err := call.Validate(); err != nil {
		t.Fatalf("failed call with message should validate: %v", err)
	}
}
