package workflows

import "time"

const (
	GenealogyReportWorkflowName = "genealogy_report"
	ArchiveSweepWorkflowName    = "run_archive_sweep"

	ActivityBuildReport    = "genealogy_report_build"
	ActivityArchiveExpired = "run_archive_expired"

	// ArchiveSweepWorkflowID is fixed so at most one sweep schedule exists.
	ArchiveSweepWorkflowID = "lotline-run-archive-sweep"
)

type ReportInput struct {
	LotCode string `json:"lot_code"`
}

type ArchiveSweepInput struct {
	// Batch bounds each archive activity call.
	Batch int `json:"batch"`
	// MaxBatches stops the sweep early; zero means DefaultMaxBatches.
	MaxBatches int `json:"max_batches,omitempty"`
}

type ArchiveBatchInput struct {
	Now   time.Time `json:"now"`
	Limit int       `json:"limit"`
}

type ArchiveSweepResult struct {
	Archived int `json:"archived"`
	Batches  int `json:"batches"`
}

const DefaultMaxBatches = 50
