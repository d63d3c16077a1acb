package graph

import (
	"context"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/lotline-backend/internal/domain/production"
	"github.com/yungbote/lotline-backend/internal/platform/logger"
	"github.com/yungbote/lotline-backend/internal/platform/neo4jdb"
)

// GenealogyProjection mirrors committed lots and genealogy links into neo4j
// as (:Lot)-[:FEEDS]->(:Lot). Postgres stays the source of truth; the
// projection is rebuilt by re-sending links and is safe to repeat.
type GenealogyProjection struct {
	client *neo4jdb.Client
	log    *logger.Logger

	schemaOnce sync.Once
}

func NewGenealogyProjection(client *neo4jdb.Client, log *logger.Logger) *GenealogyProjection {
	return &GenealogyProjection{client: client, log: log.With("projection", "Neo4jGenealogy")}
}

func (p *GenealogyProjection) enabled() bool {
	return p != nil && p.client != nil && p.client.Driver != nil
}

func lotRecord(l *production.Lot, now string) map[string]any {
	rec := map[string]any{
		"id":         l.ID.String(),
		"lot_code":   l.LotCode,
		"lot_type":   l.LotType,
		"status":     l.Status,
		"seq":        l.Seq,
		"size":       production.SizeVariant(l.LotType),
		"created_at": l.CreatedAt.UTC().Format(time.RFC3339Nano),
		"synced_at":  now,
	}
	if l.WeightKg != nil {
		rec["weight_kg"] = *l.WeightKg
	}
	return rec
}

func (p *GenealogyProjection) ensureSchema(ctx context.Context, session neo4j.SessionWithContext) {
	p.schemaOnce.Do(func() {
		for _, q := range []string{
			`CREATE CONSTRAINT lot_id_unique IF NOT EXISTS FOR (l:Lot) REQUIRE l.id IS UNIQUE`,
			`CREATE INDEX lot_code_idx IF NOT EXISTS FOR (l:Lot) ON (l.lot_code)`,
		} {
			res, err := session.Run(ctx, q, nil)
			if err != nil {
				p.log.Warn("neo4j schema init failed (continuing)", "error", err)
				continue
			}
			_, _ = res.Consume(ctx)
		}
	})
}

func (p *GenealogyProjection) write(ctx context.Context, query string, params map[string]any) error {
	session := p.client.WriteSession(ctx)
	defer session.Close(ctx)
	p.ensureSchema(ctx, session)
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	return err
}

// ProjectLink upserts both lots and the FEEDS edge between them.
func (p *GenealogyProjection) ProjectLink(ctx context.Context, parent, child *production.Lot, link *production.GenealogyLink) error {
	if !p.enabled() || parent == nil || child == nil || link == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	rel := map[string]any{
		"id":         link.ID.String(),
		"created_by": link.CreatedBy,
		"created_at": link.CreatedAt.UTC().Format(time.RFC3339Nano),
		"synced_at":  now,
	}
	if link.QuantityKg != nil {
		rel["quantity_kg"] = *link.QuantityKg
	}
	return p.write(ctx, `
MERGE (a:Lot {id: $parent.id})
SET a += $parent
MERGE (b:Lot {id: $child.id})
SET b += $child
MERGE (a)-[e:FEEDS]->(b)
SET e += $rel
`, map[string]any{
		"parent": lotRecord(parent, now),
		"child":  lotRecord(child, now),
		"rel":    rel,
	})
}

// UpdateLot refreshes the status of an already projected lot.
func (p *GenealogyProjection) UpdateLot(ctx context.Context, lot *production.Lot) error {
	if !p.enabled() || lot == nil {
		return nil
	}
	return p.write(ctx, `
MATCH (l:Lot {id: $id})
SET l.status = $status, l.synced_at = $synced_at
`, map[string]any{
		"id":        lot.ID.String(),
		"status":    lot.Status,
		"synced_at": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (p *GenealogyProjection) AuditAppended(context.Context, *production.AuditEvent) error {
	return nil
}

func (p *GenealogyProjection) GenealogyChanged(ctx context.Context, parent, child *production.Lot, link *production.GenealogyLink) error {
	return p.ProjectLink(ctx, parent, child, link)
}

func (p *GenealogyProjection) LotChanged(ctx context.Context, lot *production.Lot) error {
	return p.UpdateLot(ctx, lot)
}
