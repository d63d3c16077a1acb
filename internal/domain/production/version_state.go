package production

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// VersionTransition is a guarded row update: it applies only while the row
// is still in From.
type VersionTransition struct {
	From    string
	To      string
	Event   string
	Updates map[string]any
}

// Each live lifecycle status is its own type exposing only the operations
// that status permits. DEPRECATED permits none. Graph mutation exists on
// DraftVersion alone.

type DraftVersion struct{ v *FlowVersion }
type ReviewVersion struct{ v *FlowVersion }
type PublishedVersion struct{ v *FlowVersion }

// AsDraft is the only entry point to graph editing; every other status is
// immutable.
func AsDraft(v *FlowVersion) (DraftVersion, error) {
	if v == nil {
		return DraftVersion{}, Errorf(ErrNotFound, "flow version not found")
	}
	if v.Status != VersionDraft {
		return DraftVersion{}, Errorf(ErrImmutableVersion, "flow version %d is %s; only DRAFT versions can be modified", v.VersionNum, v.Status)
	}
	return DraftVersion{v: v}, nil
}

func AsReview(v *FlowVersion) (ReviewVersion, error) {
	if v == nil {
		return ReviewVersion{}, Errorf(ErrNotFound, "flow version not found")
	}
	if v.Status != VersionReview {
		return ReviewVersion{}, Errorf(ErrStateConflict, "flow version %d is %s, expected REVIEW", v.VersionNum, v.Status)
	}
	return ReviewVersion{v: v}, nil
}

func AsPublished(v *FlowVersion) (PublishedVersion, error) {
	if v == nil {
		return PublishedVersion{}, Errorf(ErrNotFound, "flow version not found")
	}
	if v.Status != VersionPublished {
		return PublishedVersion{}, Errorf(ErrStateConflict, "flow version %d is %s, expected PUBLISHED", v.VersionNum, v.Status)
	}
	return PublishedVersion{v: v}, nil
}

func (d DraftVersion) Version() *FlowVersion { return d.v }

// ReplaceGraph validates structure only; completeness is checked on submit.
func (d DraftVersion) ReplaceGraph(g FlowGraph) (VersionTransition, error) {
	if err := g.Validate(); err != nil {
		return VersionTransition{}, err
	}
	raw, err := g.Encode()
	if err != nil {
		return VersionTransition{}, Errorf(ErrValidation, "encode graph: %v", err)
	}
	return VersionTransition{
		From:    VersionDraft,
		To:      VersionDraft,
		Event:   EventFlowDraftUpdated,
		Updates: map[string]any{"graph": datatypes.JSON(raw)},
	}, nil
}

func (d DraftVersion) Submit() (VersionTransition, error) {
	g, err := ParseGraph(d.v.Graph)
	if err != nil {
		return VersionTransition{}, err
	}
	if err := g.CheckComplete(); err != nil {
		return VersionTransition{}, err
	}
	return VersionTransition{
		From:    VersionDraft,
		To:      VersionReview,
		Event:   EventFlowSubmitted,
		Updates: map[string]any{"status": VersionReview, "rejection_reason": ""},
	}, nil
}

func (r ReviewVersion) Version() *FlowVersion { return r.v }

func (r ReviewVersion) Approve(reviewerID string, now time.Time) (VersionTransition, error) {
	reviewerID = strings.TrimSpace(reviewerID)
	if reviewerID == "" {
		return VersionTransition{}, Errorf(ErrValidation, "reviewer is required to approve")
	}
	return VersionTransition{
		From:  VersionReview,
		To:    VersionPublished,
		Event: EventFlowApproved,
		Updates: map[string]any{
			"status":       VersionPublished,
			"reviewed_by":  reviewerID,
			"published_at": now.UTC(),
		},
	}, nil
}

func (r ReviewVersion) Reject(reviewerID, reason string) (VersionTransition, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return VersionTransition{}, Errorf(ErrValidation, "rejection reason is required")
	}
	return VersionTransition{
		From:  VersionReview,
		To:    VersionDraft,
		Event: EventFlowRejected,
		Updates: map[string]any{
			"status":           VersionDraft,
			"reviewed_by":      strings.TrimSpace(reviewerID),
			"rejection_reason": reason,
		},
	}, nil
}

func (p PublishedVersion) Version() *FlowVersion { return p.v }

func (p PublishedVersion) Deprecate(now time.Time) VersionTransition {
	return VersionTransition{
		From:  VersionPublished,
		To:    VersionDeprecated,
		Event: EventFlowDeprecated,
		Updates: map[string]any{
			"status":        VersionDeprecated,
			"deprecated_at": now.UTC(),
		},
	}
}
