// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestReconcile_RecommendsT12 covers spec scenario 7: RENT_ROLL reports a
// higher NOI than T12 with enough spread to cross the variance
// threshold, and T12 wins the reliability-weighted recommendation.
func TestReconcile_RecommendsT12(t *testing.T) {
	repo := NewMockRepository()
	r := New(repo, Config{VarianceThreshold: 0.05})

	extractions := []Extraction{
		{
			DocumentID: "doc-rentroll", DocumentType: "RENT_ROLL", ExtractionID: "ex1",
			ExtractedAt: time.Now().Add(-time.Hour),
			Fields:      map[string]FieldValue{"noi": {Value: 1_200_000, Confidence: 0.9}},
		},
		{
			DocumentID: "doc-t12", DocumentType: "T12", ExtractionID: "ex2",
			ExtractedAt: time.Now(),
			Fields:      map[string]FieldValue{"noi": {Value: 1_080_000, Confidence: 0.95}},
		},
	}

	conflicts, err := r.Reconcile(context.Background(), "deal1", extractions)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)

	c := conflicts[0]
	assert.Equal(t, FieldNetOperatingIncome, c.Field)
	assert.Equal(t, "T12", c.RecommendedSource)
	assert.InDelta(t, 0.105, c.VariancePercent, 0.01)
	assert.Equal(t, StatusOpen, c.Status)
}

func TestReconcile_NoConflictBelowThreshold(t *testing.T) {
	repo := NewMockRepository()
	r := New(repo, Config{VarianceThreshold: 0.05})

	extractions := []Extraction{
		{DocumentID: "d1", DocumentType: "RENT_ROLL", Fields: map[string]FieldValue{"noi": {Value: 1_000_000, Confidence: 0.9}}},
		{DocumentID: "d2", DocumentType: "T12", Fields: map[string]FieldValue{"noi": {Value: 1_005_000, Confidence: 0.95}}},
	}

	conflicts, err := r.Reconcile(context.Background(), "deal1", extractions)
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestReconcile_SingleSourceNeverConflicts(t *testing.T) {
	repo := NewMockRepository()
	r := New(repo, Config{VarianceThreshold: 0.05})

	extractions := []Extraction{
		{DocumentID: "d1", DocumentType: "T12", Fields: map[string]FieldValue{"noi": {Value: 1_000_000, Confidence: 0.9}}},
	}

	conflicts, err := r.Reconcile(context.Background(), "deal1", extractions)
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestNormalizeFieldName_HandlesAbbreviationsAndCasing(t *testing.T) {
	assert.Equal(t, FieldNetOperatingIncome, NormalizeFieldName("noi"))
	assert.Equal(t, FieldNetOperatingIncome, NormalizeFieldName("net_operating_income"))
	assert.Equal(t, FieldGrossPotentialRent, NormalizeFieldName("GPR"))
	assert.Equal(t, "unmapped_field", NormalizeFieldName("unmapped_field"))
}

func TestResolve_SetsResolvedStateAndDefaultsReason(t *testing.T) {
	repo := NewMockRepository()
	r := New(repo, Config{VarianceThreshold: 0.05})
	repo.conflicts[key("deal1", FieldNetOperatingIncome)] = &Conflict{
		DealID: "deal1", Field: FieldNetOperatingIncome, Status: StatusOpen,
		RecommendedReason: "T12 is more reliable",
	}

	resolved, err := r.Resolve(context.Background(), "deal1", FieldNetOperatingIncome, 1_080_000, "user1", "")
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedValue)
	assert.Equal(t, 1_080_000.0, *resolved.ResolvedValue)
	assert.Equal(t, "T12 is more reliable", resolved.ResolvedReason)
}

func TestDismiss_RequiresReason(t *testing.T) {
	repo := NewMockRepository()
	r := New(repo, Config{VarianceThreshold: 0.05})
	repo.conflicts[key("deal1", FieldNetOperatingIncome)] = &Conflict{DealID: "deal1", Field: FieldNetOperatingIncome, Status: StatusOpen}

	_, err := r.Dismiss(context.Background(), "deal1", FieldNetOperatingIncome, "user1", "")
	assert.Error(t, err)
}

func TestDismiss_SetsDismissedStatus(t *testing.T) {
	repo := NewMockRepository()
	r := New(repo, Config{VarianceThreshold: 0.05})
	repo.conflicts[key("deal1", FieldNetOperatingIncome)] = &Conflict{DealID: "deal1", Field: FieldNetOperatingIncome, Status: StatusOpen}

	dismissed, err := r.Dismiss(context.Background(), "deal1", FieldNetOperatingIncome, "user1", "not material")
	require.NoError(t, err)
	assert.Equal(t, StatusDismissed, dismissed.Status)
	assert.Equal(t, "not material", dismissed.ResolvedReason)
}

func TestReconcile_PreservesTerminalStatusOnReReconcile(t *testing.T) {
	repo := NewMockRepository()
	r := New(repo, Config{VarianceThreshold: 0.05})
	repo.conflicts[key("deal1", FieldNetOperatingIncome)] = &Conflict{
		DealID: "deal1", Field: FieldNetOperatingIncome, Status: StatusDismissed, ResolvedReason: "already handled",
	}

	extractions := []Extraction{
		{DocumentID: "d1", DocumentType: "RENT_ROLL", Fields: map[string]FieldValue{"noi": {Value: 1_200_000, Confidence: 0.9}}},
		{DocumentID: "d2", DocumentType: "T12", Fields: map[string]FieldValue{"noi": {Value: 1_080_000, Confidence: 0.95}}},
	}

	_, err := r.Reconcile(context.Background(), "deal1", extractions)
	require.NoError(t, err)

	stored, err := repo.Find(context.Background(), "deal1", FieldNetOperatingIncome)
	require.NoError(t, err)
	assert.Equal(t, StatusDismissed, stored.Status)
}
