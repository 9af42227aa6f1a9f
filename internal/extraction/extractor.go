// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package extraction normalizes a single document's raw extracted fields
// into the canonical vocabulary the rest of the pipeline reasons about.
package extraction

import (
	"axonflow/platform/internal/gwerr"
	"axonflow/platform/internal/reconcile"
)

// RawField is one field as a document parser produced it, before
// canonicalization.
type RawField struct {
	Value      float64
	Confidence float64
}

// DocumentExtraction is a single document's raw extraction result.
type DocumentExtraction struct {
	DocumentID    string
	DocumentType  string
	ExtractedData map[string]RawField
}

// FieldValue is one canonical field after normalization.
type FieldValue struct {
	Value       float64
	Confidence  float64
	Source      string
	NeedsReview bool
}

// Status summarizes how well a document mapped onto the canonical schema.
type Status string

const (
	StatusMapped     Status = "MAPPED"
	StatusUnmappable Status = "UNMAPPABLE"
)

// NormalizedExtraction is DocumentExtractor.Normalize's result.
type NormalizedExtraction struct {
	DocumentID        string
	DocumentType      string
	Fields            map[string]FieldValue
	OverallConfidence float64
	Status            Status
}

// Extractor normalizes raw per-document extractions onto the canonical
// field vocabulary reconcile.NormalizeFieldName defines.
type Extractor struct {
	lowConfidenceThreshold float64
}

func New(lowConfidenceThreshold float64) *Extractor {
	return &Extractor{lowConfidenceThreshold: lowConfidenceThreshold}
}

// Normalize maps every raw field onto the canonical vocabulary, flags
// low-confidence fields for review, and computes the overall score as the
// plain mean of the fields' confidences. A raw name with no canonical
// alias is kept under that name and counts like a mapped field. It errors
// (never panics) on an empty extraction.
func (e *Extractor) Normalize(ext DocumentExtraction) (NormalizedExtraction, error) {
	if len(ext.ExtractedData) == 0 {
		return NormalizedExtraction{}, gwerr.New(gwerr.KindValidationFailed, "empty_extraction", "extracted data must contain at least one field")
	}

	fields := make(map[string]FieldValue, len(ext.ExtractedData))
	for raw, value := range ext.ExtractedData {
		canonical := reconcile.NormalizeFieldName(raw)
		fields[canonical] = FieldValue{
			Value:       value.Value,
			Confidence:  value.Confidence,
			Source:      ext.DocumentType,
			NeedsReview: value.Confidence < e.lowConfidenceThreshold,
		}
	}

	result := NormalizedExtraction{
		DocumentID:   ext.DocumentID,
		DocumentType: ext.DocumentType,
		Fields:       fields,
	}

	if len(fields) == 0 {
		result.Status = StatusUnmappable
		result.OverallConfidence = 0
		return result, nil
	}

	var confidenceSum float64
	for _, fv := range fields {
		confidenceSum += fv.Confidence
	}
	result.OverallConfidence = confidenceSum / float64(len(fields))
	result.Status = StatusMapped

	return result, nil
}
