// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package provenance builds and scores the per-field provenance record
// every extracted or parsed value carries: who produced it, how
// confident the producer was, and whether a human still needs to
// furnish supporting evidence.
package provenance

import "time"

// Source identifies who/what produced a field's value.
type Source string

const (
	SourceAI    Source = "AI"
	SourceDoc   Source = "DOC"
	SourceHuman Source = "HUMAN"
)

// Record is one per (session, fieldPath).
type Record struct {
	FieldPath      string
	Value          any
	Source         Source
	Confidence     float64
	Rationale      string
	EvidenceNeeded *string
	ArtifactID     string
	AsOf           time.Time
}

// sensitiveNumericFields maps each field that demands documentary backing
// to the document type that should eventually supply it, per spec §4.5
// step 6.
var sensitiveNumericFields = map[string]string{
	"purchase_price": "PSA",
	"noi":             "T12",
	"ltv":             "Debt Schedule",
	"cap_rate":        "Appraisal",
}

// Builder constructs FieldProvenance rows for a parsed result.
type Builder struct {
	now func() time.Time
}

// New returns a Builder using the real wall clock.
func New() *Builder {
	return &Builder{now: time.Now}
}

// Build produces one Record per entry in fields (fieldPath -> value,
// already coerced by the schema normalizer). Every record defaults to
// source=AI, confidence 0.6 (0 if the value is nil), and a generic
// rationale. Sensitive numeric fields get evidenceNeeded stamped with the
// document type that should back them, since their source isn't DOC.
func (b *Builder) Build(fields map[string]any) []Record {
	now := b.now()
	records := make([]Record, 0, len(fields))

	for fieldPath, value := range fields {
		confidence := 0.6
		if value == nil {
			confidence = 0
		}

		record := Record{
			FieldPath:  fieldPath,
			Value:      value,
			Source:     SourceAI,
			Confidence: confidence,
			Rationale:  "Extracted from input text",
			AsOf:       now,
		}

		if docType, ok := sensitiveNumericFields[fieldPath]; ok && record.Source != SourceDoc {
			needed := docType
			record.EvidenceNeeded = &needed
		}

		records = append(records, record)
	}

	return records
}

// IsSensitiveNumeric reports whether fieldPath is one of the fields that
// requires documentary evidence when its source isn't DOC.
func IsSensitiveNumeric(fieldPath string) bool {
	_, ok := sensitiveNumericFields[fieldPath]
	return ok
}
