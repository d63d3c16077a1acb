package production

import (
	"errors"
	"testing"
	"time"
)

func versionWith(status string, g FlowGraph) *FlowVersion {
	raw, _ := g.Encode()
	return &FlowVersion{Status: status, VersionNum: 1, Graph: raw}
}

func TestOnlyDraftAcceptsGraphChanges(t *testing.T) {
	for _, status := range []string{VersionReview, VersionPublished, VersionDeprecated} {
		if _, err := AsDraft(versionWith(status, linearGraph())); !errors.Is(err, ErrImmutableVersion) {
			t.Fatalf("%s: want ErrImmutableVersion got=%v", status, err)
		}
	}
	d, err := AsDraft(versionWith(VersionDraft, FlowGraph{}))
	if err != nil {
		t.Fatalf("AsDraft: %v", err)
	}
	tr, err := d.ReplaceGraph(linearGraph())
	if err != nil {
		t.Fatalf("ReplaceGraph: %v", err)
	}
	if tr.From != VersionDraft || tr.To != VersionDraft {
		t.Fatalf("transition: got=%s->%s", tr.From, tr.To)
	}
	if _, ok := tr.Updates["graph"]; !ok {
		t.Fatalf("graph update missing: %+v", tr.Updates)
	}
}

func TestSubmitRequiresCompleteGraph(t *testing.T) {
	d, _ := AsDraft(versionWith(VersionDraft, FlowGraph{}))
	if _, err := d.Submit(); !errors.Is(err, ErrIncompleteGraph) {
		t.Fatalf("empty submit: want ErrIncompleteGraph got=%v", err)
	}
	d, _ = AsDraft(versionWith(VersionDraft, linearGraph()))
	tr, err := d.Submit()
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if tr.To != VersionReview {
		t.Fatalf("to: want=REVIEW got=%s", tr.To)
	}
}

func TestReviewTransitions(t *testing.T) {
	r, err := AsReview(versionWith(VersionReview, linearGraph()))
	if err != nil {
		t.Fatalf("AsReview: %v", err)
	}
	if _, err := r.Approve(" ", time.Now()); !errors.Is(err, ErrValidation) {
		t.Fatalf("approve without reviewer: want ErrValidation got=%v", err)
	}
	tr, err := r.Approve("qa-1", time.Now())
	if err != nil || tr.To != VersionPublished {
		t.Fatalf("approve: tr=%+v err=%v", tr, err)
	}
	if _, err := r.Reject("qa-1", ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("reject without reason: want ErrValidation got=%v", err)
	}
	tr, err = r.Reject("qa-1", "missing CCP gate")
	if err != nil || tr.To != VersionDraft {
		t.Fatalf("reject: tr=%+v err=%v", tr, err)
	}
	if _, err := AsReview(versionWith(VersionDraft, linearGraph())); !errors.Is(err, ErrStateConflict) {
		t.Fatalf("approve a draft: want ErrStateConflict got=%v", err)
	}
}

func TestDeprecateOnlyFromPublished(t *testing.T) {
	if _, err := AsPublished(versionWith(VersionReview, linearGraph())); !errors.Is(err, ErrStateConflict) {
		t.Fatalf("want ErrStateConflict got=%v", err)
	}
	p, err := AsPublished(versionWith(VersionPublished, linearGraph()))
	if err != nil {
		t.Fatalf("AsPublished: %v", err)
	}
	tr := p.Deprecate(time.Now())
	if tr.From != VersionPublished || tr.To != VersionDeprecated {
		t.Fatalf("transition: got=%s->%s", tr.From, tr.To)
	}
	if _, graphTouched := tr.Updates["graph"]; graphTouched {
		t.Fatalf("deprecation must not touch the graph")
	}
}
