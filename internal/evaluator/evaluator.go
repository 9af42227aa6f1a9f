// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package evaluator scores a parsed deal against schema completeness,
// numeric-consistency, and provenance checks, producing the sub-scores
// and critical flags ParseOrchestrator uses to decide OK vs EVAL_FAILED.
package evaluator

import (
	"fmt"
	"strings"

	"axonflow/platform/internal/provenance"
)

// requiredFields must be present (non-null; the string "unknown" counts as
// present) or the parse is forced to EVAL_FAILED regardless of sub-scores.
var requiredFields = []string{"name", "asset_type", "asset_address"}

// Report is the output of Evaluate.
type Report struct {
	SchemaCompleteness int
	NumericConsistency int
	Provenance         int
	CriticalFlags      []string
}

// Failed reports whether this report forces EVAL_FAILED: any critical
// flag, or any sub-score below minScore.
func (r Report) Failed(minScore int) bool {
	if len(r.CriticalFlags) > 0 {
		return true
	}
	return r.SchemaCompleteness < minScore || r.NumericConsistency < minScore || r.Provenance < minScore
}

// Evaluate scores fields (the normalized parsed result) and records (the
// FieldProvenance rows ProvenanceBuilder produced for the same fields).
func Evaluate(fields map[string]any, records []provenance.Record) Report {
	completeness, criticalFlags := schemaCompleteness(fields)
	numeric := numericConsistency(fields)
	prov := provenanceScore(records)

	return Report{
		SchemaCompleteness: completeness,
		NumericConsistency: numeric,
		Provenance:         prov,
		CriticalFlags:      criticalFlags,
	}
}

func schemaCompleteness(fields map[string]any) (int, []string) {
	score := 100
	var flags []string

	for _, name := range requiredFields {
		if !isPresent(fields[name]) {
			score -= 25
			flags = append(flags, fmt.Sprintf("missing %s", name))
		}
	}

	if score < 0 {
		score = 0
	}
	return score, flags
}

func isPresent(value any) bool {
	if value == nil {
		return false
	}
	if s, ok := value.(string); ok {
		trimmed := strings.TrimSpace(s)
		if trimmed == "" {
			return false
		}
		if strings.EqualFold(trimmed, "unknown") {
			return true
		}
	}
	return true
}

func numericConsistency(fields map[string]any) int {
	score := 100

	for _, v := range fields {
		if n, ok := asFloat(v); ok && n < 0 {
			score -= 15
		}
	}

	if capRate, ok := asFloat(fields["cap_rate"]); ok {
		if capRate < 0 || capRate > 1.5 {
			score -= 15
		}
	}

	if ltv, ok := asFloat(fields["ltv"]); ok {
		if ltv < 0 || ltv > 2 {
			score -= 15
		}
	}

	price, priceOK := asFloat(fields["purchase_price"])
	ltv, ltvOK := asFloat(fields["ltv"])
	senior, seniorOK := asFloat(fields["senior_debt"])
	mezz, mezzOK := asFloat(fields["mezzanine_debt"])
	if priceOK && ltvOK && seniorOK && mezzOK && price != 0 {
		debt := senior + mezz
		if diff := (debt/price) - ltv; abs(diff) > 0.05 {
			score -= 15
		}
	}

	if score < 0 {
		score = 0
	}
	return score
}

func provenanceScore(records []provenance.Record) int {
	score := 100

	for _, r := range records {
		if !provenance.IsSensitiveNumeric(r.FieldPath) {
			continue
		}
		flagged := false
		if r.Source != provenance.SourceDoc && r.EvidenceNeeded == nil {
			flagged = true
		}
		if r.Confidence <= 0 {
			flagged = true
		}
		if flagged {
			score -= 20
		}
	}

	if score < 0 {
		score = 0
	}
	return score
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
