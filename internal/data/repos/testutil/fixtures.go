package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/lotline-backend/internal/domain/production"
)

var lotSeq atomic.Int64

// LinearGraph builds start -> steps... -> end. Each step id is used as its
// English label; ids prefixed "qc" become qc_gate nodes.
func LinearGraph(stepIDs ...string) types.FlowGraph {
	g := types.FlowGraph{}
	ids := append([]string{"start"}, stepIDs...)
	ids = append(ids, "end")
	for i, id := range ids {
		kind := types.NodeProcess
		switch {
		case i == 0:
			kind = types.NodeStart
		case i == len(ids)-1:
			kind = types.NodeEnd
		case len(id) >= 2 && id[:2] == "qc":
			kind = types.NodeQCGate
		}
		g.Nodes = append(g.Nodes, types.FlowNode{
			ID:   id,
			Type: kind,
			Data: types.NodeData{Label: map[string]string{"en": id}},
		})
		if i > 0 {
			g.Edges = append(g.Edges, types.FlowEdge{
				ID:     fmt.Sprintf("e%d", i),
				Source: ids[i-1],
				Target: id,
			})
		}
	}
	return g
}

func mustJSON(tb testing.TB, v any) datatypes.JSON {
	tb.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		tb.Fatalf("marshal fixture: %v", err)
	}
	return datatypes.JSON(b)
}

func SeedDefinition(tb testing.TB, ctx context.Context, tx *gorm.DB, name string) *types.FlowDefinition {
	tb.Helper()
	d := &types.FlowDefinition{
		ID:      uuid.New(),
		Name:    mustJSON(tb, map[string]string{"en": name}),
		OwnerID: "owner",
	}
	if err := tx.WithContext(ctx).Create(d).Error; err != nil {
		tb.Fatalf("seed definition: %v", err)
	}
	return d
}

func SeedVersion(tb testing.TB, ctx context.Context, tx *gorm.DB, defID uuid.UUID, num int, status string, g types.FlowGraph) *types.FlowVersion {
	tb.Helper()
	raw, err := g.Encode()
	if err != nil {
		tb.Fatalf("encode graph: %v", err)
	}
	v := &types.FlowVersion{
		ID:               uuid.New(),
		FlowDefinitionID: defID,
		VersionNum:       num,
		Status:           status,
		Graph:            datatypes.JSON(raw),
		CreatedBy:        "author",
	}
	if status == types.VersionPublished {
		now := time.Now().UTC()
		v.PublishedAt = &now
	}
	if err := tx.WithContext(ctx).Create(v).Error; err != nil {
		tb.Fatalf("seed version: %v", err)
	}
	return v
}

// SeedPublishedFlow creates a definition with one PUBLISHED version.
func SeedPublishedFlow(tb testing.TB, ctx context.Context, tx *gorm.DB, stepIDs ...string) (*types.FlowDefinition, *types.FlowVersion) {
	tb.Helper()
	d := SeedDefinition(tb, ctx, tx, "flow")
	v := SeedVersion(tb, ctx, tx, d.ID, 1, types.VersionPublished, LinearGraph(stepIDs...))
	return d, v
}

func SeedRun(tb testing.TB, ctx context.Context, tx *gorm.DB, versionID uuid.UUID, status string, stepCount int) *types.ProductionRun {
	tb.Helper()
	now := time.Now().UTC()
	n := lotSeq.Add(1)
	r := &types.ProductionRun{
		ID:             uuid.New(),
		RunCode:        types.FormatCode(types.RunCodeType, now, types.DefaultSiteCode, int(n%types.MaxCodeSeq)+1),
		FlowVersionID:  versionID,
		Status:         status,
		StepCount:      stepCount,
		StartedBy:      "operator",
		StartedAt:      &now,
		IdempotencyKey: uuid.NewString(),
	}
	if err := tx.WithContext(ctx).Create(r).Error; err != nil {
		tb.Fatalf("seed run: %v", err)
	}
	return r
}

// LotSeqPrefix is the code_sequence counter behind Lot.Seq.
const LotSeqPrefix = "lot#"

// SeedLot inserts a lot directly, bypassing registration. Seq comes from the
// same counter registration uses, so creation order follows call order.
func SeedLot(tb testing.TB, ctx context.Context, tx *gorm.DB, lotType, status string, weightKg *float64) *types.Lot {
	tb.Helper()
	var n int64
	if err := tx.WithContext(ctx).Raw(`
		INSERT INTO code_sequence (prefix, last_seq, updated_at) VALUES (?, 1, ?)
		ON CONFLICT (prefix) DO UPDATE SET last_seq = code_sequence.last_seq + 1
		RETURNING last_seq`, LotSeqPrefix, time.Now().UTC()).Scan(&n).Error; err != nil {
		tb.Fatalf("seed lot seq: %v", err)
	}
	l := &types.Lot{
		ID:         uuid.New(),
		LotCode:    types.FormatCode(lotType, time.Date(2026, 1, 24, 0, 0, 0, 0, time.UTC), "TEST", int(lotSeq.Add(1)%types.MaxCodeSeq)+1),
		LotType:    lotType,
		Seq:        n,
		Status:     status,
		WeightKg:   weightKg,
		OperatorID: "operator",
		Metadata:   datatypes.JSON([]byte("{}")),
	}
	if err := tx.WithContext(ctx).Create(l).Error; err != nil {
		tb.Fatalf("seed lot: %v", err)
	}
	return l
}

func SeedLink(tb testing.TB, ctx context.Context, tx *gorm.DB, parentID, childID uuid.UUID, qty *float64) *types.GenealogyLink {
	tb.Helper()
	g := &types.GenealogyLink{
		ID:          uuid.New(),
		ParentLotID: parentID,
		ChildLotID:  childID,
		QuantityKg:  qty,
		CreatedBy:   "operator",
	}
	if err := tx.WithContext(ctx).Create(g).Error; err != nil {
		tb.Fatalf("seed link: %v", err)
	}
	return g
}

func SeedBuffer(tb testing.TB, ctx context.Context, tx *gorm.DB, code string, capacityKg float64, allowed ...string) *types.Buffer {
	tb.Helper()
	b := &types.Buffer{
		ID:              uuid.New(),
		BufferCode:      code,
		BufferType:      "CHILLER",
		AllowedLotTypes: mustJSON(tb, allowed),
		CapacityKg:      capacityKg,
		TempMinC:        0,
		TempMaxC:        4,
		IsActive:        true,
	}
	if err := tx.WithContext(ctx).Create(b).Error; err != nil {
		tb.Fatalf("seed buffer: %v", err)
	}
	return b
}

func SeedTemperatureViolation(tb testing.TB, ctx context.Context, tx *gorm.DB, lotID uuid.UUID, measure string, tempC float64) *types.TemperatureLog {
	tb.Helper()
	log := &types.TemperatureLog{
		ID:              uuid.New(),
		LotID:           &lotID,
		TemperatureC:    tempC,
		MeasurementType: measure,
		IsViolation:     true,
		RecordedBy:      "operator",
		RecordedAt:      time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(log).Error; err != nil {
		tb.Fatalf("seed temperature log: %v", err)
	}
	return log
}
