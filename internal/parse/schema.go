// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package parse

import (
	"math"
	"strconv"
	"strings"
)

// FieldKind distinguishes how DeclaredSchema coerces a raw value.
type FieldKind int

const (
	KindString FieldKind = iota
	KindNumeric
)

// DeclaredSchema lists every field the deal-parsing prompt is expected to
// populate and how to coerce it. Required fields are checked by both
// Validate (structural presence) and the Evaluator (meaningful content).
var DeclaredSchema = map[string]FieldKind{
	"name":           KindString,
	"asset_type":     KindString,
	"asset_address":  KindString,
	"purchase_price": KindNumeric,
	"noi":            KindNumeric,
	"ltv":            KindNumeric,
	"cap_rate":       KindNumeric,
	"senior_debt":    KindNumeric,
	"mezzanine_debt": KindNumeric,
}

// RequiredFields must structurally exist (even if their coerced value is
// null) for Validate to pass.
var RequiredFields = []string{"name", "asset_type", "asset_address"}

// Normalize coerces every key raw declares against DeclaredSchema: numeric
// fields become a finite float64 or nil, string fields become a trimmed
// string or nil. Fields raw doesn't mention are omitted entirely rather
// than defaulted, so Validate can tell "absent" from "present but null".
func Normalize(raw map[string]any) map[string]any {
	out := make(map[string]any, len(DeclaredSchema))

	for field, kind := range DeclaredSchema {
		value, present := raw[field]
		if !present {
			continue
		}
		switch kind {
		case KindNumeric:
			out[field] = coerceNumeric(value)
		case KindString:
			out[field] = coerceString(value)
		}
	}

	return out
}

func coerceNumeric(v any) any {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return nil
		}
		return n
	case float32:
		return coerceNumeric(float64(n))
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case string:
		trimmed := strings.TrimSpace(n)
		if trimmed == "" {
			return nil
		}
		parsed, err := strconv.ParseFloat(strings.ReplaceAll(trimmed, ",", ""), 64)
		if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
			return nil
		}
		return parsed
	default:
		return nil
	}
}

func coerceString(v any) any {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil
	}
	return trimmed
}

// Validate reports the structural errors in normalized (missing required
// fields entirely). It does not judge content quality — "unknown" or a
// null value for a present key is a schema-valid (if evaluator-flagged)
// result; a key RequiredFields names that is entirely absent from the
// provider's output is a validation failure, since it means the model
// didn't even attempt that field.
func Validate(normalized map[string]any) []string {
	var errs []string
	for _, field := range RequiredFields {
		if _, present := normalized[field]; !present {
			errs = append(errs, "missing required field: "+field)
		}
	}
	return errs
}
