// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"axonflow/platform/internal/consent"
	"axonflow/platform/internal/extraction"
	"axonflow/platform/internal/gwerr"
	"axonflow/platform/internal/lineage"
	"axonflow/platform/internal/llmoracle"
	"axonflow/platform/internal/parse"
	"axonflow/platform/internal/reconcile"
	"axonflow/platform/internal/security"
)

// --- Consent endpoints ---

type grantRequest struct {
	AllowDealParsing      *bool `json:"allowDealParsing,omitempty"`
	AllowChatAssistant    *bool `json:"allowChatAssistant,omitempty"`
	AllowDocumentAnalysis *bool `json:"allowDocumentAnalysis,omitempty"`
	AllowInsights         *bool `json:"allowInsights,omitempty"`
}

func (h *Handler) handleConsentGrant(w http.ResponseWriter, r *http.Request) {
	claims, err := authenticate(r, h.AuthSecret)
	if err != nil {
		writeError(w, err)
		return
	}

	var req grantRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	record, err := h.Consent.Grant(r.Context(), claims.UserID, claims.OrganizationID, consent.GrantOptions{
		AllowDealParsing:      req.AllowDealParsing,
		AllowChatAssistant:    req.AllowChatAssistant,
		AllowDocumentAnalysis: req.AllowDocumentAnalysis,
		AllowInsights:         req.AllowInsights,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

type withdrawRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (h *Handler) handleConsentWithdraw(w http.ResponseWriter, r *http.Request) {
	claims, err := authenticate(r, h.AuthSecret)
	if err != nil {
		writeError(w, err)
		return
	}

	var req withdrawRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	record, err := h.Consent.Withdraw(r.Context(), claims.UserID, req.Reason)
	if err != nil {
		if errors.Is(err, consent.ErrNotFound) {
			writeError(w, gwerr.New(gwerr.KindNotFound, "no_consent_record", "no consent record exists for this user"))
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

type featureRequest struct {
	Feature string `json:"feature"`
	Allowed bool   `json:"allowed"`
}

func (h *Handler) handleConsentFeatures(w http.ResponseWriter, r *http.Request) {
	claims, err := authenticate(r, h.AuthSecret)
	if err != nil {
		writeError(w, err)
		return
	}

	var req featureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, gwerr.New(gwerr.KindValidationFailed, "malformed_body", "request body must be valid JSON"))
		return
	}

	feature := consent.Feature(req.Feature)
	if !feature.IsValid() {
		writeError(w, gwerr.New(gwerr.KindValidationFailed, "invalid_feature", "unrecognized feature toggle"))
		return
	}

	record, err := h.Consent.UpdateFeature(r.Context(), claims.UserID, feature, req.Allowed)
	if err != nil {
		if errors.Is(err, consent.ErrNotFound) {
			writeError(w, gwerr.New(gwerr.KindNotFound, "no_consent_record", "no consent record exists for this user"))
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *Handler) handleConsentStatus(w http.ResponseWriter, r *http.Request) {
	claims, err := authenticate(r, h.AuthSecret)
	if err != nil {
		writeError(w, err)
		return
	}
	status := h.Consent.GetStatus(r.Context(), claims.UserID)
	writeJSON(w, http.StatusOK, status)
}

// --- Deal AI endpoints ---

type chatRequest struct {
	Message             string   `json:"message"`
	ConversationHistory []string `json:"conversationHistory,omitempty"`
}

func (h *Handler) handleDealChat(w http.ResponseWriter, r *http.Request) {
	dealID := mux.Vars(r)["id"]

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, gwerr.New(gwerr.KindValidationFailed, "malformed_body", "request body must be valid JSON"))
		return
	}

	guard, ok := h.guardAIRequest(w, r, "chat", dealID, consent.FeatureChatAssistant, req.Message)
	if !ok {
		return
	}

	messages := []llmoracle.Message{
		{Role: "system", Content: fmt.Sprintf("You are assisting with deal %s.", dealID)},
		{Role: "user", Content: guard.checkResult.SanitizedInput},
	}
	response, err := h.callOracle(w, r, guard, messages, security.ExpectedChat)
	if err != nil {
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"response": response.Raw, "context": map[string]any{"dealId": dealID}})
}

func (h *Handler) handleDealSummarize(w http.ResponseWriter, r *http.Request) {
	dealID := mux.Vars(r)["id"]
	prompt := fmt.Sprintf("Summarize deal %s.", dealID)

	guard, ok := h.guardAIRequest(w, r, "summarize", dealID, consent.FeatureInsights, prompt)
	if !ok {
		return
	}

	messages := []llmoracle.Message{
		{Role: "system", Content: "You produce concise underwriting summaries."},
		{Role: "user", Content: guard.checkResult.SanitizedInput},
	}
	response, err := h.callOracle(w, r, guard, messages, security.ExpectedChat)
	if err != nil {
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"summary": response.Raw})
}

type extractRequest struct {
	DocumentID   string `json:"documentId"`
	DocumentType string `json:"documentType"`
}

func (h *Handler) handleDealExtract(w http.ResponseWriter, r *http.Request) {
	dealID := mux.Vars(r)["id"]

	var req extractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, gwerr.New(gwerr.KindValidationFailed, "malformed_body", "request body must be valid JSON"))
		return
	}

	prompt := fmt.Sprintf("Extract underwriting fields as a flat JSON object of {field: {value, confidence}} from document %s (%s) of deal %s.", req.DocumentID, req.DocumentType, dealID)
	guard, ok := h.guardAIRequest(w, r, "ai/extract", dealID, consent.FeatureDocumentAnalysis, prompt)
	if !ok {
		return
	}

	messages := []llmoracle.Message{
		{Role: "system", Content: "You extract structured financial fields from real-estate documents."},
		{Role: "user", Content: guard.checkResult.SanitizedInput},
	}
	response, err := h.callOracle(w, r, guard, messages, security.ExpectedJSON)
	if err != nil {
		return
	}

	rawFields := decodeRawFields(response.Output)
	normalized, normErr := h.Extractor.Normalize(extraction.DocumentExtraction{
		DocumentID: req.DocumentID, DocumentType: req.DocumentType, ExtractedData: rawFields,
	})
	if normErr != nil {
		writeError(w, normErr)
		return
	}

	h.storeExtraction(dealID, reconcile.Extraction{
		DocumentID: req.DocumentID, DocumentType: req.DocumentType, ExtractionID: h.newID(),
		ExtractedAt: h.now(), Fields: toReconcileFields(normalized.Fields),
	})

	for field, fv := range normalized.Fields {
		confidence := fv.Confidence
		_, _ = h.Ledger.Track(r.Context(), dealID, "default", field, lineage.TrackInput{
			Value: fv.Value, SourceType: lineage.SourceAIExtracted, SourceDocID: req.DocumentID,
			ExtractionConfidence: &confidence,
		})
	}

	writeJSON(w, http.StatusOK, normalized)
}

func (h *Handler) handleDealSynthesize(w http.ResponseWriter, r *http.Request) {
	dealID := mux.Vars(r)["id"]

	guard, ok := h.guardAIRequest(w, r, "ai/synthesize", dealID, consent.FeatureDocumentAnalysis, "")
	if !ok {
		return
	}

	extractions := h.loadExtractions(dealID)
	conflicts, err := h.Reconciler.Reconcile(r.Context(), dealID, extractions)
	if err != nil {
		writeError(w, err)
		return
	}
	for _, c := range conflicts {
		conflictsByField.WithLabelValues(c.Field).Inc()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"crossReferenceMatrix": extractions,
		"conflicts":            conflicts,
		"summary":              fmt.Sprintf("%d extraction(s) reconciled, %d conflict(s) for %s", len(extractions), len(conflicts), guard.claims.UserID),
	})
}

type resolveRequest struct {
	ResolvedValue float64 `json:"resolvedValue"`
	Reason        string  `json:"reason,omitempty"`
}

func (h *Handler) handleConflictResolve(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	dealID, field := vars["id"], vars["field"]

	claims, err := authenticate(r, h.AuthSecret)
	if err != nil {
		writeError(w, err)
		return
	}

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, gwerr.New(gwerr.KindValidationFailed, "malformed_body", "request body must be valid JSON"))
		return
	}

	resolved, err := h.Reconciler.Resolve(r.Context(), dealID, field, req.ResolvedValue, claims.UserID, req.Reason)
	if err != nil {
		if errors.Is(err, reconcile.ErrNotFound) {
			writeError(w, gwerr.New(gwerr.KindNotFound, "conflict_not_found", "no open conflict for this field"))
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resolved)
}

type dealParseRequest struct {
	InputText   string `json:"inputText"`
	InputSource string `json:"inputSource,omitempty"`
}

func (h *Handler) handleDealParse(w http.ResponseWriter, r *http.Request) {
	var req dealParseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, gwerr.New(gwerr.KindValidationFailed, "malformed_body", "request body must be valid JSON"))
		return
	}

	guard, ok := h.guardAIRequest(w, r, "llm/deal-parse", "", consent.FeatureDealParsing, req.InputText)
	if !ok {
		return
	}

	session, err := h.Parser.Parse(r.Context(), guard.claims.UserID, guard.checkResult.SanitizedInput, req.InputSource)
	if err != nil {
		parseAttempts.WithLabelValues("provider_error").Inc()
		h.persistAudit(r.Context(), guard.claims, guard.endpoint, "", req.InputText, "", guard.checkResult, false, []string{"provider_unavailable"}, "")
		writeError(w, err)
		return
	}

	parseAttempts.WithLabelValues(string(session.Status)).Inc()
	if session.EvaluatorReport != nil {
		evaluatorScores.WithLabelValues("schema_completeness").Observe(float64(session.EvaluatorReport.SchemaCompleteness))
		evaluatorScores.WithLabelValues("numeric_consistency").Observe(float64(session.EvaluatorReport.NumericConsistency))
		evaluatorScores.WithLabelValues("provenance").Observe(float64(session.EvaluatorReport.Provenance))
	}

	h.persistAudit(r.Context(), guard.claims, guard.endpoint, "", req.InputText, fmt.Sprintf("%v", session.ParsedResult), guard.checkResult,
		session.Status == parse.StatusOK, nil, session.Model)

	switch session.Status {
	case parse.StatusOK:
		writeJSON(w, http.StatusOK, session)
	case parse.StatusEvalFailed, parse.StatusValidationFailed:
		writeJSON(w, http.StatusUnprocessableEntity, session)
	default:
		writeJSON(w, http.StatusOK, session)
	}
}

// callOracle calls the oracle, validates its output, and persists the
// audit record; on a provider error it writes the 502 response itself and
// returns a non-nil error so the caller stops.
func (h *Handler) callOracle(w http.ResponseWriter, r *http.Request, guard guardContext, messages []llmoracle.Message, expected security.ExpectedType) (*llmoracle.Response, error) {
	response, err := h.Oracle.Call(r.Context(), messages, llmoracle.CallOptions{})
	if err != nil {
		h.persistAudit(r.Context(), guard.claims, guard.endpoint, guard.dealID, guard.checkResult.SanitizedInput, "", guard.checkResult, false, []string{"provider_unavailable"}, "")
		writeError(w, gwerr.Wrap(gwerr.KindProviderUnavailable, "oracle_call_failed", "the language model provider is unavailable", err))
		return nil, err
	}

	validation := h.Security.ValidateResponse(guard.claims.UserID, "", response.Raw, expected)
	passed := validation.Severity == security.SeverityNone || validation.Severity == security.SeverityLow
	h.persistAudit(r.Context(), guard.claims, guard.endpoint, guard.dealID, guard.checkResult.SanitizedInput, response.Raw, guard.checkResult,
		passed, validation.Issues, response.Model)

	return response, nil
}

func decodeRawFields(output map[string]any) map[string]extraction.RawField {
	fields := make(map[string]extraction.RawField, len(output))
	for key, raw := range output {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		value, _ := entry["value"].(float64)
		confidence, _ := entry["confidence"].(float64)
		fields[key] = extraction.RawField{Value: value, Confidence: confidence}
	}
	return fields
}

func toReconcileFields(fields map[string]extraction.FieldValue) map[string]reconcile.FieldValue {
	out := make(map[string]reconcile.FieldValue, len(fields))
	for field, fv := range fields {
		out[field] = reconcile.FieldValue{Value: fv.Value, Confidence: fv.Confidence}
	}
	return out
}
