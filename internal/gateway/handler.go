// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package gateway composes the security, consent, and rate-limit guards
// in front of every AI-touching endpoint, dispatches to the
// feature-specific worker, and persists one AIAudit record per request —
// GatewayHandler (C11) per spec §4.9.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"axonflow/platform/internal/consent"
	"axonflow/platform/internal/extraction"
	"axonflow/platform/internal/gwerr"
	"axonflow/platform/internal/lineage"
	"axonflow/platform/internal/llmoracle"
	"axonflow/platform/internal/parse"
	"axonflow/platform/internal/policyconfig"
	"axonflow/platform/internal/ratelimit"
	"axonflow/platform/internal/reconcile"
	"axonflow/platform/internal/security"
	"axonflow/platform/shared/logger"
)

// Handler composes C2-C10 behind the guard chain §4.9 specifies and
// exposes the HTTP surface §6 names.
type Handler struct {
	Config     *policyconfig.Config
	AuthSecret []byte

	RateLimiter ratelimit.Limiter
	Consent     *consent.Engine
	Security    *security.Pipeline
	Oracle      llmoracle.Oracle
	Parser      *parse.Orchestrator
	Reconciler  *reconcile.Reconciler
	Ledger      *lineage.Ledger
	Extractor   *extraction.Extractor
	AuditRepo   AuditRepository

	log   *logger.Logger
	now   func() time.Time
	newID func() string

	extractionsMu sync.Mutex
	extractions   map[string][]reconcile.Extraction
}

func New(
	cfg *policyconfig.Config, authSecret []byte,
	limiter ratelimit.Limiter, consentEngine *consent.Engine, sec *security.Pipeline,
	oracle llmoracle.Oracle, parser *parse.Orchestrator, reconciler *reconcile.Reconciler,
	ledger *lineage.Ledger, extractor *extraction.Extractor, auditRepo AuditRepository,
	log *logger.Logger, newID func() string,
) *Handler {
	return &Handler{
		Config: cfg, AuthSecret: authSecret,
		RateLimiter: limiter, Consent: consentEngine, Security: sec,
		Oracle: oracle, Parser: parser, Reconciler: reconciler,
		Ledger: ledger, Extractor: extractor, AuditRepo: auditRepo,
		log: log, now: time.Now, newID: newID,
		extractions: make(map[string][]reconcile.Extraction),
	}
}

// storeExtraction accumulates one document's normalized extraction for a
// deal, for /ai/synthesize to reconcile later. This is gateway-local
// bookkeeping, not a persisted entity — a real deployment would read
// extractions back from the DocumentExtraction repository instead.
func (h *Handler) storeExtraction(dealID string, ext reconcile.Extraction) {
	h.extractionsMu.Lock()
	defer h.extractionsMu.Unlock()
	h.extractions[dealID] = append(h.extractions[dealID], ext)
}

func (h *Handler) loadExtractions(dealID string) []reconcile.Extraction {
	h.extractionsMu.Lock()
	defer h.extractionsMu.Unlock()
	out := make([]reconcile.Extraction, len(h.extractions[dealID]))
	copy(out, h.extractions[dealID])
	return out
}

// guardContext carries everything the guard chain accumulates for the
// eventual AIAudit write.
type guardContext struct {
	claims      Claims
	checkResult security.CheckResult
	endpoint    string
	dealID      string
}

// writeJSON writes v as the JSON response body with status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError recovers a gwerr.Error (or any error) into the typed HTTP
// response the taxonomy describes; guard failures never leak as a bare
// 500 with an internal message.
func writeError(w http.ResponseWriter, err error) {
	ge, ok := gwerr.As(err)
	if !ok {
		ge = gwerr.New(gwerr.KindInternal, "unexpected_error", "an unexpected error occurred")
	}
	body := map[string]any{"reason": ge.Reason, "message": ge.Message}
	for k, v := range ge.Details {
		body[k] = v
	}
	if ge.Kind == gwerr.KindRateLimited {
		if seconds, ok := ge.Details["retryAfterSeconds"].(int64); ok {
			w.Header().Set("Retry-After", strconv.FormatInt(seconds, 10))
		}
	}
	writeJSON(w, ge.Kind.HTTPStatus(), body)
}

// guardAIRequest runs steps 1-5 of spec §4.9: authenticate, rate-limit
// check, consent check, input security check, then records the rate-limit
// usage. On any failure it writes the typed response itself and returns
// ok=false; callers must not proceed.
func (h *Handler) guardAIRequest(w http.ResponseWriter, r *http.Request, endpoint, dealID string, feature consent.Feature, userInput string) (guardContext, bool) {
	claims, err := authenticate(r, h.AuthSecret)
	if err != nil {
		writeError(w, err)
		return guardContext{}, false
	}

	rlStart := h.now()
	rlResult := h.RateLimiter.Check(claims.UserID, claims.OrganizationID)
	guardLatency.WithLabelValues("rate_limit").Observe(float64(h.now().Sub(rlStart).Milliseconds()))
	if !rlResult.Allowed {
		rateLimitDenials.WithLabelValues(string(rlResult.LimitType)).Inc()
		requestsTotal.WithLabelValues("rate_limited").Inc()
		writeError(w, gwerr.New(gwerr.KindRateLimited, rlResult.Reason, "rate limit exceeded").WithDetails(map[string]any{
			"limitType":         string(rlResult.LimitType),
			"retryAfterSeconds": rlResult.RetryAfterSeconds,
		}))
		return guardContext{}, false
	}

	consentStart := h.now()
	consentResult := h.Consent.Check(r.Context(), claims.UserID, feature)
	guardLatency.WithLabelValues("consent").Observe(float64(h.now().Sub(consentStart).Milliseconds()))
	consentChecks.WithLabelValues(consentResult.Reason).Inc()
	if !consentResult.Valid {
		requestsTotal.WithLabelValues("consent_required").Inc()
		writeError(w, gwerr.New(gwerr.KindConsentRequired, consentResult.Reason, "consent required for this feature").WithDetails(map[string]any{
			"consentRequired": consentResult.RequiresConsent,
			"policyVersion":   h.Config.CurrentPolicyVersion,
		}))
		return guardContext{}, false
	}

	securityStart := h.now()
	checkResult := h.Security.Check(claims.UserID, "", userInput, security.Options{
		MaxInputLength: h.Config.MaxInputLength,
		BlockThreshold: h.Config.JailbreakBlockThreshold,
		WarnThreshold:  h.Config.JailbreakWarnThreshold,
	})
	guardLatency.WithLabelValues("security").Observe(float64(h.now().Sub(securityStart).Milliseconds()))
	if checkResult.Blocked {
		for _, pattern := range checkResult.PatternsMatched {
			securityBlocks.WithLabelValues(pattern).Inc()
		}
		requestsTotal.WithLabelValues("security_blocked").Inc()
		h.persistAudit(r.Context(), claims, endpoint, dealID, userInput, "", checkResult, false, []string{"jailbreak_detected"}, "")
		writeError(w, gwerr.New(gwerr.KindSecurityBlocked, "jailbreak_detected", "input blocked by security pipeline"))
		return guardContext{}, false
	}

	h.RateLimiter.Record(claims.UserID, claims.OrganizationID)

	return guardContext{claims: claims, checkResult: checkResult, endpoint: endpoint, dealID: dealID}, true
}

// persistAudit writes one AIAudit row, best-effort: a failure is logged
// and never surfaced to the client per spec §7.
func (h *Handler) persistAudit(ctx context.Context, claims Claims, endpoint, dealID, prompt, response string, check security.CheckResult, validationPassed bool, validationIssues []string, model string) {
	audit := &AIAudit{
		ID:               h.newID(),
		UserID:           claims.UserID,
		Role:             claims.Role,
		OrganizationID:   claims.OrganizationID,
		DealID:           dealID,
		Endpoint:         endpoint,
		PromptSummary:    summarizePrompt(prompt),
		FullPrompt:       prompt,
		FullResponse:     response,
		SystemPromptHash: hashSystemPrompt(prompt),
		ModelUsed:        model,
		ResponseLength:   len(response),
		ValidationPassed: validationPassed,
		ValidationIssues: validationIssues,
		Security: SecurityContext{
			SanitizationApplied: check.WasModified,
			JailbreakScore:      check.JailbreakScore,
			JailbreakPatterns:   check.PatternsMatched,
		},
		CreatedAt: h.now(),
	}
	if err := h.AuditRepo.Save(ctx, audit); err != nil {
		h.logError(requestLog{userID: claims.UserID, dealID: dealID, endpoint: endpoint}, "failed to persist ai audit record", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// Router builds the mux.Router exposing the full HTTP surface §6 names.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/ai-consent/grant", h.handleConsentGrant).Methods(http.MethodPost)
	r.HandleFunc("/api/ai-consent/withdraw", h.handleConsentWithdraw).Methods(http.MethodPost)
	r.HandleFunc("/api/ai-consent/features", h.handleConsentFeatures).Methods(http.MethodPatch)
	r.HandleFunc("/api/ai-consent/status", h.handleConsentStatus).Methods(http.MethodGet)

	r.HandleFunc("/api/deals/{id}/chat", h.handleDealChat).Methods(http.MethodPost)
	r.HandleFunc("/api/deals/{id}/summarize", h.handleDealSummarize).Methods(http.MethodPost)
	r.HandleFunc("/api/deals/{id}/ai/extract", h.handleDealExtract).Methods(http.MethodPost)
	r.HandleFunc("/api/deals/{id}/ai/synthesize", h.handleDealSynthesize).Methods(http.MethodPost)
	r.HandleFunc("/api/deals/{id}/ai/conflicts/{field}/resolve", h.handleConflictResolve).Methods(http.MethodPost)

	r.HandleFunc("/api/llm/deal-parse", h.handleDealParse).Methods(http.MethodPost)

	return r
}
