package lots

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/lotline-backend/internal/data/repos/testutil"
	types "github.com/yungbote/lotline-backend/internal/domain/production"
	"github.com/yungbote/lotline-backend/internal/pkg/pointers"
	"github.com/yungbote/lotline-backend/internal/platform/dbctx"
)

func TestGenealogyLinkRepo(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	repo := NewGenealogyLinkRepo(db, testutil.Logger(t))

	raw := testutil.SeedLot(t, ctx, db, "RAW", types.LotReleased, pointers.Float64(100))
	deb1 := testutil.SeedLot(t, ctx, db, "DEB", types.LotReleased, nil)
	deb2 := testutil.SeedLot(t, ctx, db, "DEB", types.LotReleased, nil)

	if _, err := repo.Create(dbc, &types.GenealogyLink{ParentLotID: raw.ID, ChildLotID: deb1.ID, QuantityKg: pointers.Float64(40)}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := repo.Create(dbc, &types.GenealogyLink{ParentLotID: raw.ID, ChildLotID: deb2.ID, QuantityKg: pointers.Float64(35)}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	sum, err := repo.SumQuantityFromParent(dbc, raw.ID)
	if err != nil || sum != 75 {
		t.Fatalf("SumQuantityFromParent: want=75 got=%v err=%v", sum, err)
	}
	down, err := repo.ListByParents(dbc, []uuid.UUID{raw.ID})
	if err != nil || len(down) != 2 {
		t.Fatalf("ListByParents: want=2 got=%d err=%v", len(down), err)
	}
	up, err := repo.ListByChildren(dbc, []uuid.UUID{deb2.ID})
	if err != nil || len(up) != 1 || up[0].ParentLotID != raw.ID {
		t.Fatalf("ListByChildren: err=%v got=%v", err, up)
	}
	if got, err := repo.Get(dbc, raw.ID, deb1.ID); err != nil || got == nil {
		t.Fatalf("Get: err=%v got=%v", err, got)
	}

	if _, err := repo.Create(dbc, &types.GenealogyLink{ParentLotID: raw.ID, ChildLotID: deb1.ID}); err == nil {
		t.Fatalf("duplicate link: want unique violation")
	}
	_, err = repo.Create(dbc, &types.GenealogyLink{ParentLotID: raw.ID, ChildLotID: raw.ID})
	if err == nil || !strings.Contains(err.Error(), "genealogy_self_link") {
		t.Fatalf("self link: want genealogy_self_link got=%v", err)
	}
}

func TestLotCoreImmutable(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	repo := NewLotRepo(db, testutil.Logger(t))

	lot := testutil.SeedLot(t, ctx, db, "RAW", types.LotQuarantine, pointers.Float64(10))

	ok, err := repo.UpdateStatus(dbc, lot.ID, []string{types.LotReleased}, types.LotConsumed)
	if err != nil || ok {
		t.Fatalf("UpdateStatus from wrong status: want=false got=%v err=%v", ok, err)
	}
	ok, err = repo.UpdateStatus(dbc, lot.ID, []string{types.LotQuarantine}, types.LotReleased)
	if err != nil || !ok {
		t.Fatalf("UpdateStatus: want=true got=%v err=%v", ok, err)
	}

	err = db.Model(&types.Lot{}).Where("id = ?", lot.ID).Update("lot_type", "DEB").Error
	if err == nil || !strings.Contains(err.Error(), "lot_core_immutable") {
		t.Fatalf("lot type change: want lot_core_immutable got=%v", err)
	}

	got, err := repo.GetByCode(dbc, lot.LotCode)
	if err != nil || got == nil || got.Status != types.LotReleased {
		t.Fatalf("GetByCode: err=%v got=%v", err, got)
	}
}

func TestConsumedLotOnlyMovesToFinished(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	repo := NewLotRepo(db, testutil.Logger(t))

	lot := testutil.SeedLot(t, ctx, db, "RAW", types.LotConsumed, pointers.Float64(10))

	frozen := []struct {
		name    string
		updates map[string]interface{}
	}{
		{"status reversal", map[string]interface{}{"status": types.LotQuarantine}},
		{"temperature", map[string]interface{}{"temperature_c": 99.0}},
		{"step index", map[string]interface{}{"step_index": 7}},
		{"run", map[string]interface{}{"run_id": uuid.New()}},
		{"weight", map[string]interface{}{"weight_kg": 11.0}},
		{"metadata", map[string]interface{}{"metadata": `{"note":"edited"}`}},
		{"mixed", map[string]interface{}{"temperature_c": 99.0, "step_index": 7, "status": types.LotQuarantine}},
	}
	for _, tc := range frozen {
		err := db.Model(&types.Lot{}).Where("id = ?", lot.ID).Updates(tc.updates).Error
		if err == nil || !strings.Contains(err.Error(), "lot_core_immutable") {
			t.Fatalf("%s on CONSUMED lot: want lot_core_immutable got=%v", tc.name, err)
		}
	}

	got, err := repo.GetByID(dbc, lot.ID)
	if err != nil || got == nil || got.Status != types.LotConsumed || got.TemperatureC != nil || got.StepIndex != nil {
		t.Fatalf("CONSUMED lot changed: err=%v got=%+v", err, got)
	}

	ok, err := repo.UpdateStatus(dbc, lot.ID, []string{types.LotConsumed}, types.LotFinished)
	if err != nil || !ok {
		t.Fatalf("CONSUMED -> FINISHED: want=true got=%v err=%v", ok, err)
	}

	for _, updates := range []map[string]interface{}{
		{"status": types.LotConsumed},
		{"operator_id": "someone-else"},
		{"updated_at": got.UpdatedAt},
	} {
		err := db.Model(&types.Lot{}).Where("id = ?", lot.ID).Updates(updates).Error
		if err == nil || !strings.Contains(err.Error(), "lot_core_immutable") {
			t.Fatalf("update %v on FINISHED lot: want lot_core_immutable got=%v", updates, err)
		}
	}
}
