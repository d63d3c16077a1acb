package compliance

import (
	"strings"
	"unicode/utf8"

	"github.com/yungbote/lotline-backend/internal/domain/production"
)

// RequireNotes enforces the minimum note length for HOLD and FAIL decisions.
func RequireNotes(p Policy, decision, notes string) error {
	if decision != production.DecisionHold && decision != production.DecisionFail {
		return nil
	}
	if utf8.RuneCountInString(strings.TrimSpace(notes)) < p.QCNotesMinLength {
		return production.Errorf(production.ErrValidation,
			"notes of at least %d characters are required for %s decisions", p.QCNotesMinLength, decision)
	}
	return nil
}

// CheckSkuPurity decides whether parentType may feed a child of childType
// given the types of the child's existing parents. Every sized parent of one
// child must share a single size variant, and a size-locked child accepts
// only its own variant. Unsized parents (raw material, packaging) are free.
func CheckSkuPurity(p Policy, childType, parentType string, existingParentTypes []string) error {
	variant := production.SizeVariant(parentType)
	if variant == "" {
		return nil
	}
	if p.IsSizeLocked(childType) {
		if want := production.SizeVariant(childType); want != variant {
			return production.Errorf(production.ErrSkuMismatch,
				"%s lot accepts only size %s parents, got %s", childType, want, parentType)
		}
	}
	for _, t := range existingParentTypes {
		if other := production.SizeVariant(t); other != "" && other != variant {
			return production.Errorf(production.ErrSkuMismatch,
				"child already aggregates size %s (%s); cannot add size %s (%s)", other, t, variant, parentType)
		}
	}
	return nil
}

// CheckBufferPurity rejects lots whose type the buffer was not built for.
func CheckBufferPurity(bufferCode string, allowed []string, lotType string) error {
	for _, t := range allowed {
		if t == lotType {
			return nil
		}
	}
	return production.Errorf(production.ErrBufferPurity,
		"buffer %s does not accept %s lots (allowed: %s)", bufferCode, lotType, strings.Join(allowed, ","))
}

// TemperatureBand is a buffer's acceptable range.
type TemperatureBand struct {
	MinC float64
	MaxC float64
}

type TemperatureEvaluation struct {
	Violation  bool
	ThresholdC *float64
	Reason     string
}

// EvaluateTemperature classifies a reading. forced marks an operator-flagged
// violation regardless of thresholds.
func EvaluateTemperature(p Policy, measurementType string, tempC float64, band *TemperatureBand, forced bool) TemperatureEvaluation {
	out := TemperatureEvaluation{}
	if th, ok := p.TemperatureThresholdsC[measurementType]; ok {
		th := th
		out.ThresholdC = &th
		if tempC > th {
			out.Violation = true
			out.Reason = "threshold_exceeded"
		}
	}
	if band != nil && (tempC < band.MinC || tempC > band.MaxC) {
		out.Violation = true
		if out.Reason == "" {
			out.Reason = "outside_buffer_band"
		}
	}
	if forced && !out.Violation {
		out.Violation = true
		out.Reason = "operator_flagged"
	}
	return out
}

type CapacityCheck struct {
	LimitKg  float64
	LoadKg   float64
	Override bool
	ExcessKg float64
}

// CheckCapacity never fails; exceeding the soft limit is recorded as a
// manager override.
func CheckCapacity(p Policy, capacityKg, currentLoadKg, incomingKg float64) CapacityCheck {
	limit := capacityKg * p.CapacitySoftLimitRatio
	load := currentLoadKg + incomingKg
	out := CapacityCheck{LimitKg: limit, LoadKg: load}
	if capacityKg > 0 && load > limit {
		out.Override = true
		out.ExcessKg = load - limit
	}
	return out
}
