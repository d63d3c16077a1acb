// Package compliance holds the food-safety rules checked inside every
// mutating transaction. Rules are pure; the policy values come from a
// hot-reloadable file.
package compliance

import (
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/lotline-backend/internal/domain/production"
)

// Policy is the tunable part of the compliance rules.
type Policy struct {
	SiteCode string `yaml:"site_code"`

	// Readings above the threshold for their measurement type are violations.
	TemperatureThresholdsC map[string]float64 `yaml:"temperature_thresholds_c"`

	// Lot types whose SKU size variant must be preserved through genealogy.
	SizeLockedTypes []string `yaml:"size_locked_types"`

	QCNotesMinLength int `yaml:"qc_notes_min_length"`

	// Buffers accept load up to capacity * ratio before an override is recorded.
	CapacitySoftLimitRatio float64 `yaml:"capacity_soft_limit_ratio"`

	RunArchiveRetention time.Duration `yaml:"run_archive_retention"`

	Genealogy GenealogyLimits `yaml:"genealogy"`

	TraceabilityCacheTTL time.Duration `yaml:"traceability_cache_ttl"`
}

type GenealogyLimits struct {
	DefaultDepth     int `yaml:"default_depth"`
	MaxDepth         int `yaml:"max_depth"`
	TreeDefaultDepth int `yaml:"tree_default_depth"`
	TreeMaxDepth     int `yaml:"tree_max_depth"`
	// Bound of the reverse walk used as the cycle safety net on link.
	CycleCheckDepth int `yaml:"cycle_check_depth"`
	// Bound of finish propagation towards ancestors.
	PropagationDepth int `yaml:"propagation_depth"`
}

func DefaultPolicy() Policy {
	return Policy{
		SiteCode: production.DefaultSiteCode,
		TemperatureThresholdsC: map[string]float64{
			production.MeasureSurface: 4.0,
			production.MeasureCore:    -18.0,
			production.MeasureAmbient: -18.0,
		},
		SizeLockedTypes:        []string{"SKW15", "SKW30", "FRZ15", "FRZ30", "FG15", "FG30"},
		QCNotesMinLength:       10,
		CapacitySoftLimitRatio: 1.0,
		RunArchiveRetention:    30 * 24 * time.Hour,
		Genealogy: GenealogyLimits{
			DefaultDepth:     1,
			MaxDepth:         10,
			TreeDefaultDepth: 3,
			TreeMaxDepth:     5,
			CycleCheckDepth:  10,
			PropagationDepth: 10,
		},
		TraceabilityCacheTTL: 300 * time.Second,
	}
}

// Normalize fills zero values from the defaults and upper-cases keys.
func (p Policy) Normalize() Policy {
	def := DefaultPolicy()
	p.SiteCode = strings.ToUpper(strings.TrimSpace(p.SiteCode))
	if p.SiteCode == "" {
		p.SiteCode = def.SiteCode
	}
	thresholds := make(map[string]float64, len(def.TemperatureThresholdsC))
	for k, v := range def.TemperatureThresholdsC {
		thresholds[k] = v
	}
	for k, v := range p.TemperatureThresholdsC {
		thresholds[strings.ToUpper(strings.TrimSpace(k))] = v
	}
	p.TemperatureThresholdsC = thresholds
	if p.SizeLockedTypes == nil {
		p.SizeLockedTypes = def.SizeLockedTypes
	}
	if p.QCNotesMinLength <= 0 {
		p.QCNotesMinLength = def.QCNotesMinLength
	}
	if p.CapacitySoftLimitRatio <= 0 {
		p.CapacitySoftLimitRatio = def.CapacitySoftLimitRatio
	}
	if p.RunArchiveRetention <= 0 {
		p.RunArchiveRetention = def.RunArchiveRetention
	}
	if p.TraceabilityCacheTTL <= 0 {
		p.TraceabilityCacheTTL = def.TraceabilityCacheTTL
	}
	g := &p.Genealogy
	if g.DefaultDepth <= 0 {
		g.DefaultDepth = def.Genealogy.DefaultDepth
	}
	if g.MaxDepth <= 0 {
		g.MaxDepth = def.Genealogy.MaxDepth
	}
	if g.TreeDefaultDepth <= 0 {
		g.TreeDefaultDepth = def.Genealogy.TreeDefaultDepth
	}
	if g.TreeMaxDepth <= 0 {
		g.TreeMaxDepth = def.Genealogy.TreeMaxDepth
	}
	if g.CycleCheckDepth <= 0 {
		g.CycleCheckDepth = def.Genealogy.CycleCheckDepth
	}
	if g.PropagationDepth <= 0 {
		g.PropagationDepth = def.Genealogy.PropagationDepth
	}
	return p
}

// Validate rejects policies that would make rules meaningless.
func (p Policy) Validate() error {
	if !production.ValidSiteCode(p.SiteCode) {
		return fmt.Errorf("site_code %q must be 4 uppercase letters", p.SiteCode)
	}
	for k := range p.TemperatureThresholdsC {
		if !production.IsMeasurementType(k) {
			return fmt.Errorf("unknown measurement type %q in temperature_thresholds_c", k)
		}
	}
	for _, t := range p.SizeLockedTypes {
		if !production.IsLotType(t) {
			return fmt.Errorf("unknown lot type %q in size_locked_types", t)
		}
	}
	if p.Genealogy.DefaultDepth > p.Genealogy.MaxDepth {
		return fmt.Errorf("genealogy.default_depth %d exceeds max_depth %d", p.Genealogy.DefaultDepth, p.Genealogy.MaxDepth)
	}
	if p.Genealogy.TreeDefaultDepth > p.Genealogy.TreeMaxDepth {
		return fmt.Errorf("genealogy.tree_default_depth %d exceeds tree_max_depth %d", p.Genealogy.TreeDefaultDepth, p.Genealogy.TreeMaxDepth)
	}
	return nil
}

func (p Policy) IsSizeLocked(lotType string) bool {
	for _, t := range p.SizeLockedTypes {
		if t == lotType {
			return true
		}
	}
	return false
}

// Source yields the policy snapshot current at call time.
type Source interface {
	Current() Policy
}

// Static is a fixed policy source.
type Static Policy

func (s Static) Current() Policy { return Policy(s) }
