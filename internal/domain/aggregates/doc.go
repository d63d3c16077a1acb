// Package aggregates defines the write boundaries of the production tracker.
//
// Every method of an aggregate is one logical mutation: it runs in a single
// database transaction, applies the compliance rules against rows it has
// locked, appends audit events and either commits everything or nothing.
// Failures are *Error values carrying both a coarse Code and the specific
// rule Kind.
package aggregates
