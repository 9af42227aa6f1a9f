// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package consent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		Enabled:              true,
		GracePeriodDays:      14,
		ExpirationMonths:     12,
		CurrentPolicyVersion: "1.0.0",
	}
}

func newEngineWithClock(t *testing.T, cfg Config, now time.Time) (*Engine, *MockRepository) {
	t.Helper()
	repo := NewMockRepository()
	e := New(repo, cfg, nil)
	e.now = func() time.Time { return now }
	return e, repo
}

func TestCheck_ConsentDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	e, _ := newEngineWithClock(t, cfg, time.Now())

	res := e.Check(context.Background(), "", FeatureDealParsing)
	assert.True(t, res.Valid)
	assert.Equal(t, "consent_disabled", res.Reason)
}

func TestCheck_NoUserID(t *testing.T) {
	e, _ := newEngineWithClock(t, testConfig(), time.Now())

	res := e.Check(context.Background(), "", FeatureDealParsing)
	assert.False(t, res.Valid)
	assert.Equal(t, "no_user_id", res.Reason)
	assert.True(t, res.RequiresConsent)
}

func TestCheck_NoConsentRecord(t *testing.T) {
	e, _ := newEngineWithClock(t, testConfig(), time.Now())

	res := e.Check(context.Background(), "u1", FeatureDealParsing)
	assert.False(t, res.Valid)
	assert.Equal(t, "no_consent_record", res.Reason)
}

func TestCheck_ConsentWithdrawn(t *testing.T) {
	now := time.Now()
	e, repo := newEngineWithClock(t, testConfig(), now)
	withdrawn := now.Add(-time.Hour)
	repo.records["u1"] = &Record{
		UserID:         "u1",
		ConsentGiven:   false,
		ConsentVersion: "1.0.0",
		WithdrawnAt:    &withdrawn,
	}

	res := e.Check(context.Background(), "u1", FeatureDealParsing)
	assert.False(t, res.Valid)
	assert.Equal(t, "consent_withdrawn", res.Reason)
}

// TestCheck_GracePeriodAllowsAccess covers the "grace period allows
// access" scenario: a PRE_CONSENT record with ConsentGiven false but an
// unexpired ExpiresAt grants access without requiring consent.
func TestCheck_GracePeriodAllowsAccess(t *testing.T) {
	now := time.Now()
	e, repo := newEngineWithClock(t, testConfig(), now)
	expires := now.Add(10 * 24 * time.Hour)
	repo.records["u1"] = &Record{
		UserID:         "u1",
		ConsentGiven:   false,
		ConsentVersion: gracePeriodVersion,
		ExpiresAt:      &expires,
		Features:       allFeatures(true),
	}

	res := e.Check(context.Background(), "u1", FeatureDealParsing)
	assert.True(t, res.Valid)
	assert.Equal(t, "grace_period", res.Reason)
}

func TestCheck_ConsentNotGivenAndGraceExpired(t *testing.T) {
	now := time.Now()
	e, repo := newEngineWithClock(t, testConfig(), now)
	expired := now.Add(-time.Hour)
	repo.records["u1"] = &Record{
		UserID:         "u1",
		ConsentGiven:   false,
		ConsentVersion: gracePeriodVersion,
		ExpiresAt:      &expired,
	}

	res := e.Check(context.Background(), "u1", FeatureDealParsing)
	assert.False(t, res.Valid)
	assert.Equal(t, "consent_not_given", res.Reason)
}

func TestCheck_ConsentExpired(t *testing.T) {
	now := time.Now()
	e, repo := newEngineWithClock(t, testConfig(), now)
	expired := now.Add(-time.Minute)
	repo.records["u1"] = &Record{
		UserID:         "u1",
		ConsentGiven:   true,
		ConsentVersion: "1.0.0",
		ExpiresAt:      &expired,
		Features:       allFeatures(true),
	}

	res := e.Check(context.Background(), "u1", FeatureDealParsing)
	assert.False(t, res.Valid)
	assert.Equal(t, "consent_expired", res.Reason)
}

// TestCheck_PolicyBumpForcesReconsent covers the "policy bump forces
// reconsent" scenario: an old ConsentVersion on an otherwise-valid,
// unexpired, consented record is rejected.
func TestCheck_PolicyBumpForcesReconsent(t *testing.T) {
	now := time.Now()
	e, repo := newEngineWithClock(t, testConfig(), now)
	expires := now.Add(30 * 24 * time.Hour)
	repo.records["u1"] = &Record{
		UserID:         "u1",
		ConsentGiven:   true,
		ConsentVersion: "0.9.0",
		ExpiresAt:      &expires,
		Features:       allFeatures(true),
	}

	res := e.Check(context.Background(), "u1", FeatureDealParsing)
	assert.False(t, res.Valid)
	assert.Equal(t, "policy_updated", res.Reason)
	assert.True(t, res.RequiresConsent)
}

func TestCheck_FeatureNotAllowed(t *testing.T) {
	now := time.Now()
	e, repo := newEngineWithClock(t, testConfig(), now)
	expires := now.Add(30 * 24 * time.Hour)
	repo.records["u1"] = &Record{
		UserID:         "u1",
		ConsentGiven:   true,
		ConsentVersion: "1.0.0",
		ExpiresAt:      &expires,
		Features:       FeatureToggles{DealParsing: false, ChatAssistant: true, DocumentAnalysis: true, Insights: true},
	}

	res := e.Check(context.Background(), "u1", FeatureDealParsing)
	assert.False(t, res.Valid)
	assert.Equal(t, "feature_not_allowed", res.Reason)
	assert.False(t, res.RequiresConsent)
}

func TestCheck_ConsentValid(t *testing.T) {
	now := time.Now()
	e, repo := newEngineWithClock(t, testConfig(), now)
	expires := now.Add(30 * 24 * time.Hour)
	repo.records["u1"] = &Record{
		UserID:         "u1",
		ConsentGiven:   true,
		ConsentVersion: "1.0.0",
		ExpiresAt:      &expires,
		Features:       allFeatures(true),
	}

	res := e.Check(context.Background(), "u1", FeatureDealParsing)
	assert.True(t, res.Valid)
	assert.Equal(t, "consent_valid", res.Reason)
}

func TestGrant_CreatesRecordAndAudit(t *testing.T) {
	now := time.Now()
	e, repo := newEngineWithClock(t, testConfig(), now)

	record, err := e.Grant(context.Background(), "u1", "org1", GrantOptions{IPAddress: "1.2.3.4", UserAgent: "test-agent"})
	require.NoError(t, err)
	assert.True(t, record.ConsentGiven)
	assert.Equal(t, "1.0.0", record.ConsentVersion)
	assert.Equal(t, "org1", record.OrganizationID)
	assert.True(t, record.Features.DealParsing)
	require.NotNil(t, record.ExpiresAt)
	assert.WithinDuration(t, now.AddDate(0, 12, 0), *record.ExpiresAt, time.Second)

	audits := repo.Audits()
	require.Len(t, audits, 1)
	assert.Equal(t, ActionConsentGiven, audits[0].Action)
	assert.Nil(t, audits[0].BeforeState)
}

func TestGrant_RespectsPerFeatureOverrides(t *testing.T) {
	e, _ := newEngineWithClock(t, testConfig(), time.Now())
	no := false

	record, err := e.Grant(context.Background(), "u1", "org1", GrantOptions{AllowInsights: &no})
	require.NoError(t, err)
	assert.True(t, record.Features.DealParsing)
	assert.False(t, record.Features.Insights)
}

func TestWithdraw_ClearsConsentAndFeatures(t *testing.T) {
	now := time.Now()
	e, repo := newEngineWithClock(t, testConfig(), now)
	repo.records["u1"] = &Record{UserID: "u1", ConsentGiven: true, ConsentVersion: "1.0.0", Features: allFeatures(true)}

	record, err := e.Withdraw(context.Background(), "u1", "user requested deletion")
	require.NoError(t, err)
	assert.False(t, record.ConsentGiven)
	require.NotNil(t, record.WithdrawnAt)
	assert.False(t, record.Features.DealParsing)

	audits := repo.Audits()
	require.Len(t, audits, 1)
	assert.Equal(t, ActionConsentWithdrawn, audits[0].Action)
	assert.Equal(t, "user requested deletion", audits[0].Reason)
}

func TestWithdraw_NoRecordReturnsNotFound(t *testing.T) {
	e, _ := newEngineWithClock(t, testConfig(), time.Now())

	_, err := e.Withdraw(context.Background(), "u1", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateFeature_TogglesSingleFeature(t *testing.T) {
	e, repo := newEngineWithClock(t, testConfig(), time.Now())
	repo.records["u1"] = &Record{UserID: "u1", ConsentGiven: true, ConsentVersion: "1.0.0", Features: allFeatures(true)}

	record, err := e.UpdateFeature(context.Background(), "u1", FeatureInsights, false)
	require.NoError(t, err)
	assert.False(t, record.Features.Insights)
	assert.True(t, record.Features.DealParsing)

	audits := repo.Audits()
	require.Len(t, audits, 1)
	assert.Equal(t, ActionFeatureToggled, audits[0].Action)
}

func TestUpdateFeature_InvalidFeatureErrors(t *testing.T) {
	e, repo := newEngineWithClock(t, testConfig(), time.Now())
	repo.records["u1"] = &Record{UserID: "u1", ConsentGiven: true, ConsentVersion: "1.0.0", Features: allFeatures(true)}

	_, err := e.UpdateFeature(context.Background(), "u1", Feature("bogus"), false)
	assert.Error(t, err)
}

func TestCreateGracePeriod_CreatesWhenMissing(t *testing.T) {
	now := time.Now()
	e, repo := newEngineWithClock(t, testConfig(), now)

	record, err := e.CreateGracePeriod(context.Background(), "u1", "org1")
	require.NoError(t, err)
	assert.Equal(t, gracePeriodVersion, record.ConsentVersion)
	assert.False(t, record.ConsentGiven)
	assert.True(t, record.Features.DealParsing)
	require.NotNil(t, record.ExpiresAt)
	assert.WithinDuration(t, now.Add(14*24*time.Hour), *record.ExpiresAt, time.Second)

	_, err = repo.FindByUser(context.Background(), "u1")
	assert.NoError(t, err)
}

func TestCreateGracePeriod_NoopWhenRecordExists(t *testing.T) {
	e, repo := newEngineWithClock(t, testConfig(), time.Now())
	existing := &Record{UserID: "u1", ConsentGiven: true, ConsentVersion: "1.0.0"}
	repo.records["u1"] = existing

	record, err := e.CreateGracePeriod(context.Background(), "u1", "org1")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", record.ConsentVersion)
}

func TestGetStatus_NoRecord(t *testing.T) {
	e, _ := newEngineWithClock(t, testConfig(), time.Now())

	status := e.GetStatus(context.Background(), "u1")
	assert.False(t, status.HasConsent)
	assert.True(t, status.RequiresConsent)
}

func TestGetStatus_InGracePeriod(t *testing.T) {
	now := time.Now()
	e, repo := newEngineWithClock(t, testConfig(), now)
	expires := now.Add(5 * 24 * time.Hour)
	repo.records["u1"] = &Record{UserID: "u1", ConsentGiven: false, ConsentVersion: gracePeriodVersion, ExpiresAt: &expires}

	status := e.GetStatus(context.Background(), "u1")
	assert.False(t, status.HasConsent)
	assert.True(t, status.InGracePeriod)
	assert.False(t, status.RequiresConsent)
}

func TestGetStatus_RequiresReconsentAfterPolicyBump(t *testing.T) {
	now := time.Now()
	e, repo := newEngineWithClock(t, testConfig(), now)
	expires := now.Add(30 * 24 * time.Hour)
	repo.records["u1"] = &Record{UserID: "u1", ConsentGiven: true, ConsentVersion: "0.9.0", ExpiresAt: &expires}

	status := e.GetStatus(context.Background(), "u1")
	assert.False(t, status.HasConsent)
	assert.True(t, status.RequiresReconsent)
}

func TestGetStatus_ValidConsent(t *testing.T) {
	now := time.Now()
	e, repo := newEngineWithClock(t, testConfig(), now)
	expires := now.Add(30 * 24 * time.Hour)
	repo.records["u1"] = &Record{UserID: "u1", ConsentGiven: true, ConsentVersion: "1.0.0", ExpiresAt: &expires}

	status := e.GetStatus(context.Background(), "u1")
	assert.True(t, status.HasConsent)
	assert.False(t, status.RequiresConsent)
	assert.False(t, status.RequiresReconsent)
}
