package aggregates

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/language"
	"gorm.io/datatypes"

	"github.com/yungbote/lotline-backend/internal/data/repos"
	domainagg "github.com/yungbote/lotline-backend/internal/domain/aggregates"
	"github.com/yungbote/lotline-backend/internal/domain/production"
	"github.com/yungbote/lotline-backend/internal/platform/dbctx"
)

type FlowAggregateDeps struct {
	Base BaseDeps

	Definitions repos.FlowDefinitionRepo
	Versions    repos.FlowVersionRepo
	Runs        repos.ProductionRunRepo
	Audit       repos.AuditEventRepo
}

type flowAggregate struct {
	deps  FlowAggregateDeps
	audit *auditLog
}

func NewFlowAggregate(deps FlowAggregateDeps) domainagg.FlowAggregate {
	deps.Base = deps.Base.withDefaults()
	return &flowAggregate{deps: deps, audit: newAuditLog(deps.Audit, deps.Base.Effects)}
}

func (a *flowAggregate) Contract() domainagg.Contract {
	return domainagg.FlowAggregateContract
}

func (a *flowAggregate) configured(op string) error {
	if a.deps.Definitions == nil || a.deps.Versions == nil || a.deps.Runs == nil || a.deps.Audit == nil {
		return domainagg.NewError(domainagg.CodeInternal, op, "flow aggregate repos not configured", nil)
	}
	return nil
}

// normalizeNames trims the localized display names and checks that every
// key is a well-formed language tag.
func normalizeNames(in map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(in))
	for k, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		tag, err := language.Parse(strings.TrimSpace(k))
		if err != nil {
			return nil, ValidationError(fmt.Sprintf("name key %q is not a language tag", k))
		}
		out[tag.String()] = v
	}
	if len(out) == 0 {
		return nil, ValidationError("at least one localized name is required")
	}
	return out, nil
}

func (a *flowAggregate) CreateDefinition(ctx context.Context, in domainagg.CreateDefinitionInput) (*production.FlowDefinition, error) {
	const op = "Production.Flow.CreateDefinition"
	if err := a.configured(op); err != nil {
		return nil, err
	}
	names, err := normalizeNames(in.Name)
	if err != nil {
		return nil, MapError(op, err)
	}
	nameJSON, _ := json.Marshal(names)

	var out *production.FlowDefinition
	err = executeWriteFx(ctx, a.deps.Base, op, func(dbc dbctx.Context, fx *afterCommit) error {
		def, err := a.deps.Definitions.Create(dbc, &production.FlowDefinition{
			Name:        datatypes.JSON(nameJSON),
			Description: strings.TrimSpace(in.Description),
			OwnerID:     strings.TrimSpace(in.OwnerID),
		})
		if err != nil {
			return err
		}
		if _, err := a.audit.append(dbc, fx, auditEntry{
			EventType:  production.EventFlowCreated,
			EntityType: production.EntityFlowDefinition,
			EntityID:   def.ID.String(),
			ActorID:    def.OwnerID,
			New:        def,
		}); err != nil {
			return err
		}
		out = def
		return nil
	})
	return out, err
}

func (a *flowAggregate) DeleteDefinition(ctx context.Context, definitionID uuid.UUID, actorID string) error {
	const op = "Production.Flow.DeleteDefinition"
	if err := a.configured(op); err != nil {
		return err
	}
	return executeWriteFx(ctx, a.deps.Base, op, func(dbc dbctx.Context, fx *afterCommit) error {
		def, err := a.deps.Definitions.LockByID(dbc, definitionID)
		if err != nil {
			return err
		}
		if def == nil {
			return NotFoundError("flow definition not found: " + definitionID.String())
		}
		n, err := a.deps.Versions.CountByDefinition(dbc, def.ID)
		if err != nil {
			return err
		}
		if n > 0 {
			return ConflictError(fmt.Sprintf("flow definition has %d versions and cannot be deleted", n))
		}
		if err := a.deps.Definitions.Delete(dbc, def.ID); err != nil {
			return err
		}
		_, err = a.audit.append(dbc, fx, auditEntry{
			EventType:  production.EventFlowDeleted,
			EntityType: production.EntityFlowDefinition,
			EntityID:   def.ID.String(),
			ActorID:    actorID,
			Old:        def,
		})
		return err
	})
}

func (a *flowAggregate) CreateDraft(ctx context.Context, definitionID uuid.UUID, actorID string) (*production.FlowVersion, error) {
	const op = "Production.Flow.CreateDraft"
	if err := a.configured(op); err != nil {
		return nil, err
	}
	var out *production.FlowVersion
	err := executeWriteFx(ctx, a.deps.Base, op, func(dbc dbctx.Context, fx *afterCommit) error {
		// The definition lock serializes version numbering.
		def, err := a.deps.Definitions.LockByID(dbc, definitionID)
		if err != nil {
			return err
		}
		if def == nil {
			return NotFoundError("flow definition not found: " + definitionID.String())
		}
		open, err := a.deps.Versions.GetByStatus(dbc, def.ID, []string{production.VersionDraft, production.VersionReview})
		if err != nil {
			return err
		}
		if open != nil {
			return ConflictError(fmt.Sprintf("version %d is already %s; finish or discard it first", open.VersionNum, open.Status))
		}
		latest, err := a.deps.Versions.GetLatest(dbc, def.ID)
		if err != nil {
			return err
		}
		num := 1
		graph := datatypes.JSON(`{"nodes":[],"edges":[]}`)
		forkedFrom := ""
		if latest != nil {
			num = latest.VersionNum + 1
			graph = latest.Graph
			forkedFrom = latest.ID.String()
		}
		v, err := a.deps.Versions.Create(dbc, &production.FlowVersion{
			FlowDefinitionID: def.ID,
			VersionNum:       num,
			Status:           production.VersionDraft,
			Graph:            graph,
			CreatedBy:        strings.TrimSpace(actorID),
		})
		if err != nil {
			return err
		}
		meta := map[string]any{"version_num": num}
		if forkedFrom != "" {
			meta["forked_from"] = forkedFrom
		}
		if _, err := a.audit.append(dbc, fx, auditEntry{
			EventType:  production.EventFlowDraftCreated,
			EntityType: production.EntityFlowVersion,
			EntityID:   v.ID.String(),
			ActorID:    actorID,
			New:        versionState(v),
			Metadata:   meta,
		}); err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func (a *flowAggregate) UpdateDraft(ctx context.Context, in domainagg.UpdateDraftInput) (*production.FlowVersion, error) {
	const op = "Production.Flow.UpdateDraft"
	if err := a.configured(op); err != nil {
		return nil, err
	}
	return a.transition(ctx, op, in.VersionID, in.ActorID, func(dbc dbctx.Context, v *production.FlowVersion) (production.VersionTransition, map[string]any, error) {
		d, err := production.AsDraft(v)
		if err != nil {
			return production.VersionTransition{}, nil, err
		}
		t, err := d.ReplaceGraph(in.Graph)
		if err != nil {
			return t, nil, err
		}
		return t, map[string]any{"nodes": len(in.Graph.Nodes), "edges": len(in.Graph.Edges)}, nil
	})
}

func (a *flowAggregate) DiscardDraft(ctx context.Context, versionID uuid.UUID, actorID string) error {
	const op = "Production.Flow.DiscardDraft"
	if err := a.configured(op); err != nil {
		return err
	}
	return executeWriteFx(ctx, a.deps.Base, op, func(dbc dbctx.Context, fx *afterCommit) error {
		v, err := a.deps.Versions.LockByID(dbc, versionID)
		if err != nil {
			return err
		}
		if _, err := production.AsDraft(v); err != nil {
			return err
		}
		ok, err := a.deps.Versions.DeleteDraft(dbc, v.ID)
		if err != nil {
			return err
		}
		if err := RequireCASSuccess(ok, "flow version changed while discarding"); err != nil {
			return err
		}
		_, err = a.audit.append(dbc, fx, auditEntry{
			EventType:  production.EventFlowDraftDiscarded,
			EntityType: production.EntityFlowVersion,
			EntityID:   v.ID.String(),
			ActorID:    actorID,
			Old:        versionState(v),
		})
		return err
	})
}

func (a *flowAggregate) SubmitForReview(ctx context.Context, versionID uuid.UUID, actorID string) (*production.FlowVersion, error) {
	const op = "Production.Flow.SubmitForReview"
	if err := a.configured(op); err != nil {
		return nil, err
	}
	return a.transition(ctx, op, versionID, actorID, func(dbc dbctx.Context, v *production.FlowVersion) (production.VersionTransition, map[string]any, error) {
		d, err := production.AsDraft(v)
		if err != nil {
			return production.VersionTransition{}, nil, err
		}
		t, err := d.Submit()
		return t, nil, err
	})
}

func (a *flowAggregate) Approve(ctx context.Context, versionID uuid.UUID, reviewerID string) (*production.FlowVersion, error) {
	const op = "Production.Flow.Approve"
	if err := a.configured(op); err != nil {
		return nil, err
	}
	var out *production.FlowVersion
	err := executeWriteFx(ctx, a.deps.Base, op, func(dbc dbctx.Context, fx *afterCommit) error {
		v, err := a.deps.Versions.GetByID(dbc, versionID)
		if err != nil {
			return err
		}
		if v == nil {
			return NotFoundError("flow version not found: " + versionID.String())
		}
		// Definition first, then versions: the same order CreateDraft uses.
		if _, err := a.deps.Definitions.LockByID(dbc, v.FlowDefinitionID); err != nil {
			return err
		}
		if v, err = a.deps.Versions.LockByID(dbc, versionID); err != nil {
			return err
		}
		r, err := production.AsReview(v)
		if err != nil {
			return err
		}
		now := a.deps.Base.Now()
		publish, err := r.Approve(reviewerID, now)
		if err != nil {
			return err
		}

		// The previous PUBLISHED version steps aside before the new one
		// takes the single published slot. Runs pinned to it keep running.
		prior, err := a.deps.Versions.GetByStatus(dbc, v.FlowDefinitionID, []string{production.VersionPublished})
		if err != nil {
			return err
		}
		if prior != nil {
			p, err := production.AsPublished(prior)
			if err != nil {
				return err
			}
			dep := p.Deprecate(now)
			ok, err := a.deps.Base.CASGuard.ApplyVersionTransition(dbc, prior.ID, dep)
			if err != nil {
				return err
			}
			if err := RequireCASSuccess(ok, "published version changed during approval"); err != nil {
				return err
			}
			if _, err := a.audit.append(dbc, fx, auditEntry{
				EventType:  dep.Event,
				EntityType: production.EntityFlowVersion,
				EntityID:   prior.ID.String(),
				ActorID:    reviewerID,
				Old:        map[string]any{"status": dep.From},
				New:        map[string]any{"status": dep.To},
				Metadata:   map[string]any{"superseded_by": v.ID.String()},
			}); err != nil {
				return err
			}
		}

		ok, err := a.deps.Base.CASGuard.ApplyVersionTransition(dbc, v.ID, publish)
		if err != nil {
			return err
		}
		if err := RequireCASSuccess(ok, "flow version changed during approval"); err != nil {
			return err
		}
		meta := map[string]any{"version_num": v.VersionNum}
		if prior != nil {
			meta["deprecated_version_id"] = prior.ID.String()
		}
		if _, err := a.audit.append(dbc, fx, auditEntry{
			EventType:  publish.Event,
			EntityType: production.EntityFlowVersion,
			EntityID:   v.ID.String(),
			ActorID:    reviewerID,
			Old:        map[string]any{"status": publish.From},
			New:        map[string]any{"status": publish.To},
			Metadata:   meta,
		}); err != nil {
			return err
		}
		out, err = a.deps.Versions.GetByID(dbc, v.ID)
		return err
	})
	return out, err
}

func (a *flowAggregate) Reject(ctx context.Context, versionID uuid.UUID, reviewerID, reason string) (*production.FlowVersion, error) {
	const op = "Production.Flow.Reject"
	if err := a.configured(op); err != nil {
		return nil, err
	}
	return a.transition(ctx, op, versionID, reviewerID, func(dbc dbctx.Context, v *production.FlowVersion) (production.VersionTransition, map[string]any, error) {
		r, err := production.AsReview(v)
		if err != nil {
			return production.VersionTransition{}, nil, err
		}
		t, err := r.Reject(reviewerID, reason)
		return t, map[string]any{"reason": strings.TrimSpace(reason)}, err
	})
}

func (a *flowAggregate) Deprecate(ctx context.Context, versionID uuid.UUID, actorID string) (*production.FlowVersion, error) {
	const op = "Production.Flow.Deprecate"
	if err := a.configured(op); err != nil {
		return nil, err
	}
	return a.transition(ctx, op, versionID, actorID, func(dbc dbctx.Context, v *production.FlowVersion) (production.VersionTransition, map[string]any, error) {
		p, err := production.AsPublished(v)
		if err != nil {
			return production.VersionTransition{}, nil, err
		}
		active, err := a.deps.Runs.CountActiveByVersion(dbc, v.ID)
		if err != nil {
			return production.VersionTransition{}, nil, err
		}
		if active > 0 {
			return production.VersionTransition{}, nil, production.Errorf(production.ErrActiveRunsExist,
				"flow version %d has %d active runs", v.VersionNum, active)
		}
		return p.Deprecate(a.deps.Base.Now()), nil, nil
	})
}

type versionStep func(dbc dbctx.Context, v *production.FlowVersion) (production.VersionTransition, map[string]any, error)

// transition locks the version, lets step pick the lifecycle move, applies
// it with a status guard and records the audit event.
func (a *flowAggregate) transition(ctx context.Context, op string, versionID uuid.UUID, actorID string, step versionStep) (*production.FlowVersion, error) {
	var out *production.FlowVersion
	err := executeWriteFx(ctx, a.deps.Base, op, func(dbc dbctx.Context, fx *afterCommit) error {
		v, err := a.deps.Versions.LockByID(dbc, versionID)
		if err != nil {
			return err
		}
		if v == nil {
			return NotFoundError("flow version not found: " + versionID.String())
		}
		t, meta, err := step(dbc, v)
		if err != nil {
			return err
		}
		before := versionState(v)
		ok, err := a.deps.Base.CASGuard.ApplyVersionTransition(dbc, v.ID, t)
		if err != nil {
			return err
		}
		if err := RequireCASSuccess(ok, "flow version changed concurrently"); err != nil {
			return err
		}
		after, err := a.deps.Versions.GetByID(dbc, v.ID)
		if err != nil {
			return err
		}
		if _, err := a.audit.append(dbc, fx, auditEntry{
			EventType:  t.Event,
			EntityType: production.EntityFlowVersion,
			EntityID:   v.ID.String(),
			ActorID:    actorID,
			Old:        before,
			New:        versionState(after),
			Metadata:   meta,
		}); err != nil {
			return err
		}
		out = after
		return nil
	})
	return out, err
}

// versionState is the audited view of a version; the graph is summarized.
func versionState(v *production.FlowVersion) map[string]any {
	if v == nil {
		return nil
	}
	g, _ := production.ParseGraph(v.Graph)
	return map[string]any{
		"status":      v.Status,
		"version_num": v.VersionNum,
		"nodes":       len(g.Nodes),
		"edges":       len(g.Edges),
	}
}
