package production

import (
	"errors"
	"testing"
)

func TestDecisionOutcomeTable(t *testing.T) {
	cases := []struct {
		from, decision, want string
		changed              bool
	}{
		{LotQuarantine, DecisionPass, LotReleased, true},
		{LotQuarantine, DecisionHold, LotHold, true},
		{LotQuarantine, DecisionFail, LotRejected, true},
		{LotHold, DecisionPass, LotReleased, true},
		{LotHold, DecisionHold, LotHold, false},
		{LotHold, DecisionFail, LotRejected, true},
		{LotReleased, DecisionPass, LotReleased, false},
		{LotReleased, DecisionHold, LotHold, true},
		{LotReleased, DecisionFail, LotRejected, true},
	}
	for _, tc := range cases {
		got, changed, err := DecisionOutcome(tc.from, tc.decision)
		if err != nil {
			t.Fatalf("%s+%s: %v", tc.from, tc.decision, err)
		}
		if got != tc.want || changed != tc.changed {
			t.Fatalf("%s+%s: want=%s/%v got=%s/%v", tc.from, tc.decision, tc.want, tc.changed, got, changed)
		}
	}
}

func TestDecisionOutcomeRejectsTerminalStatuses(t *testing.T) {
	for _, s := range []string{LotCreated, LotRejected, LotConsumed, LotFinished} {
		if _, _, err := DecisionOutcome(s, DecisionPass); !errors.Is(err, ErrStateConflict) {
			t.Fatalf("%s: want ErrStateConflict got=%v", s, err)
		}
	}
	if _, _, err := DecisionOutcome(LotQuarantine, "MAYBE"); !errors.Is(err, ErrValidation) {
		t.Fatalf("unknown decision: want ErrValidation got=%v", err)
	}
}

func TestCanFinish(t *testing.T) {
	if CanFinish(LotConsumed, nil) {
		t.Fatalf("consumed lot without children must not finish")
	}
	if !CanFinish(LotConsumed, []string{LotFinished, LotRejected}) {
		t.Fatalf("all children done: want finish")
	}
	if CanFinish(LotConsumed, []string{LotFinished, LotReleased}) {
		t.Fatalf("child still released: want no finish")
	}
	if CanFinish(LotReleased, []string{LotFinished}) {
		t.Fatalf("only consumed lots finish")
	}
}
