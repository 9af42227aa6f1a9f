// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package parse implements ParseOrchestrator: the two-attempt LLM
// parse-validate loop that turns free-form deal text into a
// schema-normalized, provenance-tagged, evaluator-scored structured
// result.
package parse

import (
	"time"

	"axonflow/platform/internal/evaluator"
	"axonflow/platform/internal/provenance"
)

// Status is the terminal (or pending) state of a ParseSession.
type Status string

const (
	StatusPending            Status = "PENDING"
	StatusOK                 Status = "OK"
	StatusEvalFailed         Status = "EVAL_FAILED"
	StatusValidationFailed   Status = "VALIDATION_FAILED"
	StatusProviderError      Status = "PROVIDER_ERROR"
)

// RawAttempt records one LLM call's raw response, tagged with which
// variant produced it.
type RawAttempt struct {
	Variant  string
	Response string
}

// Session is one parse attempt end to end.
type Session struct {
	ID                     string
	UserID                 string
	InputText              string
	InputSource            string
	Provider               string
	Model                  string
	PromptVersion          string
	SchemaVersion          string
	Status                 Status
	Attempts               int
	RawProviderResponses   []RawAttempt
	ParsedResult           map[string]any
	FieldProvenances       []provenance.Record
	EvaluatorReport        *evaluator.Report
	LatencyMs              int64
	ForceAccepted          bool
	ForceAcceptedRationale string
	CompletedAt            *time.Time
}
