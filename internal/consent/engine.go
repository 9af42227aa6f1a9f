// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package consent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"axonflow/platform/shared/logger"
)

// Engine is the GDPR consent lifecycle: check, grant, withdraw,
// updateFeature, createGracePeriod, getStatus, all persisted through a
// Repository. Audit writes are best-effort — a failure is logged but never
// fails the mutation that triggered it.
type Engine struct {
	repo                 Repository
	log                  *logger.Logger
	enabled              bool
	gracePeriodDays      int
	expirationMonths     int
	currentPolicyVersion string
	now                  func() time.Time
}

// Config bundles the policy knobs Engine needs from policyconfig.Config.
type Config struct {
	Enabled              bool
	GracePeriodDays      int
	ExpirationMonths     int
	CurrentPolicyVersion string
}

// New creates an Engine backed by repo.
func New(repo Repository, cfg Config, log *logger.Logger) *Engine {
	return &Engine{
		repo:                 repo,
		log:                  log,
		enabled:              cfg.Enabled,
		gracePeriodDays:      cfg.GracePeriodDays,
		expirationMonths:     cfg.ExpirationMonths,
		currentPolicyVersion: cfg.CurrentPolicyVersion,
		now:                  time.Now,
	}
}

// Check evaluates feature-gated access for userID. feature may be empty to
// check general consent validity without a feature gate. The decision
// table's rows are evaluated in order; the first matching row wins.
func (e *Engine) Check(ctx context.Context, userID string, feature Feature) CheckResult {
	if !e.enabled {
		return CheckResult{Valid: true, Reason: "consent_disabled", RequiresConsent: false}
	}
	if userID == "" {
		return CheckResult{Valid: false, Reason: "no_user_id", RequiresConsent: true}
	}

	record, err := e.repo.FindByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return CheckResult{Valid: false, Reason: "no_consent_record", RequiresConsent: true}
		}
		return CheckResult{Valid: false, Reason: "no_consent_record", RequiresConsent: true}
	}

	now := e.now()

	if record.WithdrawnAt != nil {
		return CheckResult{Valid: false, Reason: "consent_withdrawn", RequiresConsent: true, Record: record}
	}

	if !record.ConsentGiven {
		if record.ExpiresAt != nil && record.ExpiresAt.After(now) {
			return CheckResult{Valid: true, Reason: "grace_period", RequiresConsent: false, Record: record}
		}
		return CheckResult{Valid: false, Reason: "consent_not_given", RequiresConsent: true, Record: record}
	}

	if record.ExpiresAt != nil && !record.ExpiresAt.After(now) {
		return CheckResult{Valid: false, Reason: "consent_expired", RequiresConsent: true, Record: record}
	}

	// Grace-period records are stamped with the PRE_CONSENT sentinel and
	// must never be compared against the live policy version once
	// ConsentGiven is true — that comparison is reserved for records that
	// actually went through a real consent flow.
	if record.ConsentVersion != gracePeriodVersion && record.ConsentVersion != e.currentPolicyVersion {
		return CheckResult{Valid: false, Reason: "policy_updated", RequiresConsent: true, Record: record}
	}

	if feature != "" && !record.Features.Get(feature) {
		return CheckResult{Valid: false, Reason: "feature_not_allowed", RequiresConsent: false, Record: record}
	}

	return CheckResult{Valid: true, Reason: "consent_valid", RequiresConsent: false, Record: record}
}

// Grant upserts a consent record for userID and emits a CONSENT_GIVEN
// audit entry carrying the before/after state.
func (e *Engine) Grant(ctx context.Context, userID, orgID string, opts GrantOptions) (*Record, error) {
	now := e.now()
	before, _ := e.repo.FindByUser(ctx, userID)

	record := &Record{
		UserID:         userID,
		OrganizationID: orgID,
		ConsentGiven:   true,
		ConsentVersion: e.currentPolicyVersion,
		ConsentedAt:    now,
		WithdrawnAt:    nil,
		ExpiresAt:      addMonths(now, e.expirationMonths),
		Features:       opts.toggles(),
		ConsentMethod:  MethodUI,
		IPAddress:      opts.IPAddress,
		UserAgent:      opts.UserAgent,
	}

	if err := e.repo.Upsert(ctx, record); err != nil {
		return nil, fmt.Errorf("upsert consent record: %w", err)
	}

	e.audit(ctx, userID, ActionConsentGiven, recordState(before), recordState(record), opts.IPAddress, opts.UserAgent, "")

	return record, nil
}

// Withdraw requires an existing record; it clears ConsentGiven, stamps
// WithdrawnAt, and flips every feature toggle off.
func (e *Engine) Withdraw(ctx context.Context, userID, reason string) (*Record, error) {
	existing, err := e.repo.FindByUser(ctx, userID)
	if err != nil {
		return nil, ErrNotFound
	}

	now := e.now()
	before := recordState(existing)

	updated := *existing
	updated.ConsentGiven = false
	updated.WithdrawnAt = &now
	updated.Features = allFeatures(false)

	if err := e.repo.Upsert(ctx, &updated); err != nil {
		return nil, fmt.Errorf("upsert consent record: %w", err)
	}

	e.audit(ctx, userID, ActionConsentWithdrawn, before, recordState(&updated), existing.IPAddress, existing.UserAgent, reason)

	return &updated, nil
}

// UpdateFeature requires an existing record and a valid feature name.
func (e *Engine) UpdateFeature(ctx context.Context, userID string, feature Feature, allowed bool) (*Record, error) {
	if !feature.IsValid() {
		return nil, fmt.Errorf("invalid feature: %q", feature)
	}

	existing, err := e.repo.FindByUser(ctx, userID)
	if err != nil {
		return nil, ErrNotFound
	}

	before := map[string]any{string(feature): existing.Features.Get(feature)}

	updated := *existing
	updated.Features = updated.Features.Set(feature, allowed)

	if err := e.repo.Upsert(ctx, &updated); err != nil {
		return nil, fmt.Errorf("upsert consent record: %w", err)
	}

	after := map[string]any{string(feature): allowed}
	e.audit(ctx, userID, ActionFeatureToggled, before, after, existing.IPAddress, existing.UserAgent, "")

	return &updated, nil
}

// CreateGracePeriod returns the existing record unchanged if one already
// exists. Otherwise it creates a PRE_CONSENT record with every feature
// toggle on, expiring after gracePeriodDays, so migrated users keep
// working during the migration window.
func (e *Engine) CreateGracePeriod(ctx context.Context, userID, orgID string) (*Record, error) {
	if existing, err := e.repo.FindByUser(ctx, userID); err == nil {
		return existing, nil
	}

	now := e.now()
	expires := now.Add(time.Duration(e.gracePeriodDays) * 24 * time.Hour)

	record := &Record{
		UserID:         userID,
		OrganizationID: orgID,
		ConsentGiven:   false,
		ConsentVersion: gracePeriodVersion,
		ConsentedAt:    now,
		ExpiresAt:      &expires,
		Features:       allFeatures(true),
		ConsentMethod:  MethodGrandfathered,
	}

	if err := e.repo.Upsert(ctx, record); err != nil {
		return nil, fmt.Errorf("create grace period record: %w", err)
	}

	return record, nil
}

// GetStatus derives a human-facing status view from the stored record and
// the current policy version.
func (e *Engine) GetStatus(ctx context.Context, userID string) Status {
	record, err := e.repo.FindByUser(ctx, userID)
	if err != nil {
		return Status{HasConsent: false, RequiresConsent: true}
	}

	now := e.now()
	inGrace := !record.ConsentGiven && record.ExpiresAt != nil && record.ExpiresAt.After(now)
	requiresReconsent := record.ConsentVersion != gracePeriodVersion && record.ConsentVersion != e.currentPolicyVersion
	expired := record.ExpiresAt != nil && !record.ExpiresAt.After(now)

	hasConsent := record.ConsentGiven && record.WithdrawnAt == nil && !expired && !requiresReconsent

	return Status{
		HasConsent:        hasConsent,
		RequiresConsent:   !hasConsent && !inGrace,
		RequiresReconsent: requiresReconsent && record.ConsentGiven,
		InGracePeriod:     inGrace,
		Record:            record,
	}
}

// audit writes a best-effort ConsentAudit entry: a failure is logged, not
// propagated, so the caller's mutation always succeeds independently of
// the audit trail's availability.
func (e *Engine) audit(ctx context.Context, userID string, action Action, before, after map[string]any, ip, ua, reason string) {
	entry := &Audit{
		UserID:        userID,
		ConsentID:     uuid.NewString(),
		Action:        action,
		PolicyVersion: e.currentPolicyVersion,
		BeforeState:   before,
		AfterState:    after,
		IPAddress:     ip,
		UserAgent:     ua,
		Reason:        reason,
		CreatedAt:     e.now(),
	}

	if err := e.repo.AppendAudit(ctx, entry); err != nil && e.log != nil {
		e.log.Error(userID, "", "failed to write consent audit entry", map[string]interface{}{
			"action": string(action),
			"error":  err.Error(),
		})
	}
}

func recordState(r *Record) map[string]any {
	if r == nil {
		return nil
	}
	return map[string]any{
		"consentGiven":   r.ConsentGiven,
		"consentVersion": r.ConsentVersion,
		"features": map[string]bool{
			"dealParsing":      r.Features.DealParsing,
			"chatAssistant":    r.Features.ChatAssistant,
			"documentAnalysis": r.Features.DocumentAnalysis,
			"insights":         r.Features.Insights,
		},
	}
}

// addMonths adds n calendar months to t and returns a pointer to the
// result; it never returns nil.
func addMonths(t time.Time, n int) *time.Time {
	result := t.AddDate(0, n, 0)
	return &result
}
