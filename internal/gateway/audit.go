// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package gateway

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// maxPromptSummaryLen bounds AIAudit.PromptSummary per spec §4.9 step 8.
const maxPromptSummaryLen = 200

// SecurityContext is the security-pipeline outcome attached to an audit
// record.
type SecurityContext struct {
	SanitizationApplied    bool
	JailbreakScore         float64
	JailbreakPatterns      []string
	OutputValidationPassed bool
}

// AIAudit is one logged AI interaction, persisted regardless of whether
// the request ultimately succeeded.
type AIAudit struct {
	ID               string
	UserID           string
	Role             string
	OrganizationID   string
	DealID           string
	Endpoint         string
	PromptSummary    string
	FullPrompt       string
	FullResponse     string
	SystemPromptHash string
	ModelUsed        string
	ContextFields    []string
	ResponseLength   int
	ValidationPassed bool
	ValidationIssues []string
	Security         SecurityContext
	CreatedAt        time.Time
}

// summarizePrompt truncates prompt to maxPromptSummaryLen runes.
func summarizePrompt(prompt string) string {
	runes := []rune(prompt)
	if len(runes) <= maxPromptSummaryLen {
		return prompt
	}
	return string(runes[:maxPromptSummaryLen])
}

// hashSystemPrompt returns the SHA-256 hex digest of prompt. persistAudit
// passes it the request prompt, so the digest fingerprints that prompt
// rather than the system prompt sent to the oracle.
func hashSystemPrompt(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}

// AuditRepository persists AIAudit rows. Writes are best-effort from the
// GatewayHandler's perspective — a failure is logged, never propagated to
// the client, per spec §4.9/§7.
type AuditRepository interface {
	Save(ctx context.Context, audit *AIAudit) error
}

// MockAuditRepository is an in-memory AuditRepository for tests.
type MockAuditRepository struct {
	mu      sync.Mutex
	Audits  []*AIAudit
	SaveErr error
}

func NewMockAuditRepository() *MockAuditRepository {
	return &MockAuditRepository{}
}

var _ AuditRepository = (*MockAuditRepository)(nil)

func (r *MockAuditRepository) Save(ctx context.Context, audit *AIAudit) error {
	if r.SaveErr != nil {
		return r.SaveErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Audits = append(r.Audits, audit)
	return nil
}

// PostgresAuditRepository implements AuditRepository using PostgreSQL.
type PostgresAuditRepository struct {
	db *sql.DB
}

func NewPostgresAuditRepository(db *sql.DB) *PostgresAuditRepository {
	return &PostgresAuditRepository{db: db}
}

var _ AuditRepository = (*PostgresAuditRepository)(nil)

func (r *PostgresAuditRepository) Save(ctx context.Context, audit *AIAudit) error {
	contextFields, err := json.Marshal(audit.ContextFields)
	if err != nil {
		return fmt.Errorf("marshal ai audit context fields: %w", err)
	}
	validationIssues, err := json.Marshal(audit.ValidationIssues)
	if err != nil {
		return fmt.Errorf("marshal ai audit validation issues: %w", err)
	}
	jailbreakPatterns, err := json.Marshal(audit.Security.JailbreakPatterns)
	if err != nil {
		return fmt.Errorf("marshal ai audit jailbreak patterns: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO ai_audits (
			id, user_id, role, organization_id, deal_id, endpoint, prompt_summary,
			full_prompt, full_response, system_prompt_hash, model_used, context_fields,
			response_length, validation_passed, validation_issues, sanitization_applied,
			jailbreak_score, jailbreak_patterns, output_validation_passed, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
	`,
		audit.ID, audit.UserID, audit.Role, audit.OrganizationID, audit.DealID, audit.Endpoint, audit.PromptSummary,
		audit.FullPrompt, audit.FullResponse, audit.SystemPromptHash, audit.ModelUsed, contextFields,
		audit.ResponseLength, audit.ValidationPassed, validationIssues, audit.Security.SanitizationApplied,
		audit.Security.JailbreakScore, jailbreakPatterns, audit.Security.OutputValidationPassed, audit.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert ai audit: %w", err)
	}
	return nil
}
