// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package parse

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"axonflow/platform/internal/evaluator"
	"axonflow/platform/internal/gwerr"
	"axonflow/platform/internal/llmoracle"
	"axonflow/platform/internal/provenance"
	"axonflow/platform/shared/logger"
)

// Orchestrator runs the two-attempt parse-validate loop against an
// Oracle and persists the result through a Repository.
type Orchestrator struct {
	oracle       llmoracle.Oracle
	repo         Repository
	prov         *provenance.Builder
	log          *logger.Logger
	evalMinScore int
	now          func() time.Time
	newID        func() string
}

// Config bundles the policy knobs Orchestrator needs from policyconfig.Config.
type Config struct {
	EvalMinScore int
}

// New creates an Orchestrator.
func New(oracle llmoracle.Oracle, repo Repository, cfg Config, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		oracle:       oracle,
		repo:         repo,
		prov:         provenance.New(),
		log:          log,
		evalMinScore: cfg.EvalMinScore,
		now:          time.Now,
		newID:        uuid.NewString,
	}
}

// Parse runs the full spec §4.5 workflow: BASE call, validate, optional
// STRICT_REPAIR retry, provenance build, evaluator scoring, atomic
// persist. The returned *Session always has a terminal status (never
// PENDING) except when err is a provider error, in which case the caller
// should surface a 502.
func (o *Orchestrator) Parse(ctx context.Context, userID, inputText, inputSource string) (*Session, error) {
	start := o.now()

	session := &Session{
		ID:            o.newID(),
		UserID:        userID,
		InputText:     inputText,
		InputSource:   inputSource,
		PromptVersion: "v1",
		SchemaVersion: "v1",
		Status:        StatusPending,
	}

	normalized, rawResp, err := o.attempt(ctx, session, llmoracle.VariantBase, inputText)
	if err != nil {
		return o.failProviderError(ctx, session, err)
	}
	session.Model = rawResp.Model
	session.Provider = o.oracle.Name()

	validationErrs := Validate(normalized)
	if len(validationErrs) > 0 {
		repairNormalized, repairResp, err := o.attempt(ctx, session, llmoracle.VariantStrictRepair, inputText)
		session.Attempts = 2
		if err != nil {
			return o.failProviderError(ctx, session, err)
		}
		normalized = repairNormalized
		validationErrs = Validate(normalized)
		if len(validationErrs) > 0 {
			return o.finishValidationFailed(ctx, session, normalized, start)
		}
		session.Model = repairResp.Model
	} else {
		session.Attempts = 1
	}

	session.ParsedResult = normalized
	session.FieldProvenances = o.prov.Build(normalized)
	report := evaluator.Evaluate(normalized, session.FieldProvenances)
	session.EvaluatorReport = &report

	if report.Failed(o.evalMinScore) {
		session.Status = StatusEvalFailed
	} else {
		session.Status = StatusOK
	}

	return o.finish(ctx, session, start)
}

// attempt calls the oracle with variant, records the raw attempt, and
// normalizes its output.
func (o *Orchestrator) attempt(ctx context.Context, session *Session, variant llmoracle.Variant, inputText string) (map[string]any, *llmoracle.Response, error) {
	messages := []llmoracle.Message{
		{Role: "system", Content: dealParsingSystemPrompt(variant)},
		{Role: "user", Content: inputText},
	}

	resp, err := o.oracle.Call(ctx, messages, llmoracle.CallOptions{Variant: variant})
	if err != nil {
		return nil, nil, err
	}

	session.RawProviderResponses = append(session.RawProviderResponses, RawAttempt{
		Variant:  string(variant),
		Response: resp.Raw,
	})

	raw := resp.Output
	if raw == nil {
		raw = decodeJSONObject(resp.Raw)
	}

	return Normalize(raw), resp, nil
}

func (o *Orchestrator) failProviderError(ctx context.Context, session *Session, cause error) (*Session, error) {
	session.Status = StatusProviderError
	now := o.now()
	session.CompletedAt = &now

	if err := o.repo.Save(ctx, session); err != nil && o.log != nil {
		o.log.Error(session.UserID, session.ID, "failed to persist provider-error session", map[string]interface{}{"error": err.Error()})
	}

	return session, gwerr.Wrap(gwerr.KindProviderUnavailable, "provider_unavailable", "the LLM provider is currently unavailable", cause)
}

func (o *Orchestrator) finishValidationFailed(ctx context.Context, session *Session, normalized map[string]any, start time.Time) (*Session, error) {
	session.Status = StatusValidationFailed
	session.ParsedResult = normalized
	// Provenance covers every declared field here, with absent ones as nil,
	// so a failed parse still records what the oracle did not supply.
	declared := make(map[string]any, len(DeclaredSchema))
	for field := range DeclaredSchema {
		declared[field] = normalized[field]
	}
	session.FieldProvenances = o.prov.Build(declared)
	report := evaluator.Evaluate(normalized, session.FieldProvenances)
	session.EvaluatorReport = &report
	return o.finish(ctx, session, start)
}

func (o *Orchestrator) finish(ctx context.Context, session *Session, start time.Time) (*Session, error) {
	now := o.now()
	session.CompletedAt = &now
	session.LatencyMs = now.Sub(start).Milliseconds()

	if err := o.repo.Save(ctx, session); err != nil {
		if o.log != nil {
			o.log.Error(session.UserID, session.ID, "failed to persist parse session", map[string]interface{}{"error": err.Error()})
		}
		session.Status = StatusProviderError
		return session, gwerr.Wrap(gwerr.KindInternal, "persist_failed", "failed to persist parse result", err)
	}

	return session, nil
}

// ForceAccept flips an EVAL_FAILED session to OK, recording the
// rationale for audit visibility.
func (o *Orchestrator) ForceAccept(ctx context.Context, sessionID, rationale string) (*Session, error) {
	session, err := o.repo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != StatusEvalFailed {
		return nil, gwerr.New(gwerr.KindValidationFailed, "not_eval_failed", "only an EVAL_FAILED session can be force-accepted")
	}

	session.Status = StatusOK
	session.ForceAccepted = true
	session.ForceAcceptedRationale = rationale

	if err := o.repo.Save(ctx, session); err != nil {
		return nil, gwerr.Wrap(gwerr.KindInternal, "persist_failed", "failed to persist force-accept", err)
	}

	return session, nil
}

func dealParsingSystemPrompt(variant llmoracle.Variant) string {
	base := "Extract the declared deal fields as a JSON object. Use null for any field you cannot determine."
	if variant == llmoracle.VariantStrictRepair {
		return base + " Your previous response did not satisfy the required schema; return strictly valid JSON with every required field present."
	}
	return base
}

// decodeJSONObject best-effort parses raw as a JSON object; a provider
// that doesn't return valid JSON yields an empty map rather than a panic,
// letting Validate report the missing fields instead of the orchestrator
// crashing on malformed output.
func decodeJSONObject(raw string) map[string]any {
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]any{}
	}
	return out
}
