// Package aggregates implements the production write boundaries.
//
// Each aggregate composes table repos from internal/data/repos, owns the
// transaction of every mutation and maps storage failures onto the
// domain error kinds. Reads for dashboards and traces live in services.
package aggregates
