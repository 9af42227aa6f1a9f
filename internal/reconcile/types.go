// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package reconcile implements ConflictReconciler: canonical field
// normalization, cross-document statistics, variance flagging, and
// reliability-weighted source recommendation across a deal's
// extractions.
package reconcile

import "time"

// Status is the lifecycle state of an ExtractionConflict.
type Status string

const (
	StatusOpen      Status = "OPEN"
	StatusResolved  Status = "RESOLVED"
	StatusDismissed Status = "DISMISSED"
)

// SourceEntry is one document's reported value for a canonical field.
type SourceEntry struct {
	DocumentType string
	Value        float64
	Confidence   float64
	ExtractionID string
	DocumentID   string
	ExtractedAt  time.Time
}

// Conflict is one per (deal, canonical field) while OPEN.
type Conflict struct {
	DealID            string
	Field             string
	Sources           map[string]SourceEntry // keyed by DocumentType
	VariancePercent   float64
	RecommendedSource string
	RecommendedValue  float64
	RecommendedReason string
	Status            Status
	ResolvedValue     *float64
	ResolvedBy        string
	ResolvedAt        *time.Time
	ResolvedReason    string
}

// Statistics summarizes the numeric spread across a field's sources.
type Statistics struct {
	Min             float64
	Max             float64
	Mean            float64
	Median          float64
	StdDev          float64
	VariancePercent float64
	Defined         bool
}

// Extraction is one document's extracted fields, the reconciler's input
// unit — a narrower view of provenance.Record-adjacent data scoped to
// what cross-document reconciliation needs.
type Extraction struct {
	DocumentID   string
	DocumentType string
	ExtractionID string
	ExtractedAt  time.Time
	Fields       map[string]FieldValue
}

// FieldValue is one raw (not yet canonicalized) extracted field.
type FieldValue struct {
	Value      float64
	Confidence float64
}
