package compliance

import (
	"errors"
	"testing"

	"github.com/yungbote/lotline-backend/internal/domain/production"
)

func TestRequireNotes(t *testing.T) {
	p := DefaultPolicy()
	if err := RequireNotes(p, production.DecisionPass, ""); err != nil {
		t.Fatalf("PASS without notes: %v", err)
	}
	for _, d := range []string{production.DecisionHold, production.DecisionFail} {
		if err := RequireNotes(p, d, "  short   "); !errors.Is(err, production.ErrValidation) {
			t.Fatalf("%s short notes: want ErrValidation got=%v", d, err)
		}
		if err := RequireNotes(p, d, "metal fragment found in batch"); err != nil {
			t.Fatalf("%s long notes: %v", d, err)
		}
	}
	// Rune count, not bytes.
	if err := RequireNotes(p, production.DecisionHold, "ááááááááá"); !errors.Is(err, production.ErrValidation) {
		t.Fatalf("nine accented runes: want ErrValidation got=%v", err)
	}
}

func TestCheckSkuPurity(t *testing.T) {
	p := DefaultPolicy()
	if err := CheckSkuPurity(p, "FRZ15", "SKW15", nil); err != nil {
		t.Fatalf("matching variant: %v", err)
	}
	if err := CheckSkuPurity(p, "FRZ15", "SKW30", nil); !errors.Is(err, production.ErrSkuMismatch) {
		t.Fatalf("size-locked child: want ErrSkuMismatch got=%v", err)
	}
	if err := CheckSkuPurity(p, "FRZ15", "MIX", []string{"SKW15"}); err != nil {
		t.Fatalf("unsized parent: %v", err)
	}
	if err := CheckSkuPurity(p, "PAL", "FG30", []string{"FG15", "RAW"}); !errors.Is(err, production.ErrSkuMismatch) {
		t.Fatalf("mixed pallet: want ErrSkuMismatch got=%v", err)
	}
	if err := CheckSkuPurity(p, "PAL", "FG15", []string{"FG15"}); err != nil {
		t.Fatalf("pure pallet: %v", err)
	}
}

func TestCheckBufferPurity(t *testing.T) {
	if err := CheckBufferPurity("FRZ-A", []string{"FRZ15"}, "FRZ15"); err != nil {
		t.Fatalf("allowed: %v", err)
	}
	if err := CheckBufferPurity("FRZ-A", []string{"FRZ15"}, "FRZ30"); !errors.Is(err, production.ErrBufferPurity) {
		t.Fatalf("excluded: want ErrBufferPurity got=%v", err)
	}
}

func TestEvaluateTemperature(t *testing.T) {
	p := DefaultPolicy()
	ev := EvaluateTemperature(p, production.MeasureSurface, 7.5, nil, false)
	if !ev.Violation || ev.ThresholdC == nil || *ev.ThresholdC != 4.0 {
		t.Fatalf("surface 7.5: got=%+v", ev)
	}
	if ev := EvaluateTemperature(p, production.MeasureCore, -20, nil, false); ev.Violation {
		t.Fatalf("core -20: got=%+v", ev)
	}
	band := &TemperatureBand{MinC: -25, MaxC: -22}
	if ev := EvaluateTemperature(p, production.MeasureCore, -20, band, false); !ev.Violation || ev.Reason != "outside_buffer_band" {
		t.Fatalf("outside band: got=%+v", ev)
	}
	if ev := EvaluateTemperature(p, production.MeasureCore, -20, nil, true); !ev.Violation || ev.Reason != "operator_flagged" {
		t.Fatalf("forced: got=%+v", ev)
	}
}

func TestCheckCapacityIsSoft(t *testing.T) {
	p := DefaultPolicy()
	c := CheckCapacity(p, 100, 80, 50)
	if !c.Override || c.ExcessKg != 30 {
		t.Fatalf("over capacity: got=%+v", c)
	}
	p.CapacitySoftLimitRatio = 1.5
	if c := CheckCapacity(p, 100, 80, 50); c.Override {
		t.Fatalf("within soft limit: got=%+v", c)
	}
}

func TestPolicyNormalizeAndValidate(t *testing.T) {
	p := Policy{SiteCode: "pest", TemperatureThresholdsC: map[string]float64{"surface": 5}}.Normalize()
	if p.SiteCode != "PEST" {
		t.Fatalf("site: want=PEST got=%s", p.SiteCode)
	}
	if p.TemperatureThresholdsC[production.MeasureSurface] != 5 || p.TemperatureThresholdsC[production.MeasureCore] != -18 {
		t.Fatalf("thresholds: got=%v", p.TemperatureThresholdsC)
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	bad := p
	bad.SizeLockedTypes = []string{"NOPE"}
	if err := bad.Validate(); err == nil {
		t.Fatalf("unknown size-locked type should fail validation")
	}
}

func TestEnforcerReadsCurrentSnapshot(t *testing.T) {
	p := DefaultPolicy()
	p.QCNotesMinLength = 3
	e := NewEnforcer(Static(p))
	if err := e.RequireNotes(production.DecisionHold, "abc"); err != nil {
		t.Fatalf("custom min length: %v", err)
	}
}
