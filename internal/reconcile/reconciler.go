// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package reconcile

import (
	"context"
	"fmt"
	"time"

	"axonflow/platform/internal/gwerr"
)

// Reconciler runs the spec §4.7 pipeline over a deal's extractions.
type Reconciler struct {
	repo              Repository
	varianceThreshold float64
	now               func() time.Time
}

// Config bundles the policy knob Reconciler needs from policyconfig.Config.
type Config struct {
	VarianceThreshold float64
}

func New(repo Repository, cfg Config) *Reconciler {
	return &Reconciler{repo: repo, varianceThreshold: cfg.VarianceThreshold, now: time.Now}
}

// Reconcile normalizes field names, builds the cross-reference matrix,
// computes statistics per field, flags conflicts, recommends a source,
// and upserts the result — preserving any already-terminal conflict.
func (r *Reconciler) Reconcile(ctx context.Context, dealID string, extractions []Extraction) ([]*Conflict, error) {
	matrix := crossReferenceMatrix(extractions)

	var conflicts []*Conflict
	for field, sources := range matrix {
		conflict := r.evaluateField(dealID, field, sources)
		if conflict == nil {
			continue
		}
		if err := r.repo.Upsert(ctx, conflict); err != nil {
			return nil, fmt.Errorf("upsert conflict for %s: %w", field, err)
		}
		conflicts = append(conflicts, conflict)
	}

	return conflicts, nil
}

// crossReferenceMatrix normalizes every field name across every
// extraction and groups one SourceEntry per document type, per field.
func crossReferenceMatrix(extractions []Extraction) map[string]map[string]SourceEntry {
	matrix := make(map[string]map[string]SourceEntry)

	for _, ext := range extractions {
		for rawField, fv := range ext.Fields {
			canonical := NormalizeFieldName(rawField)
			if matrix[canonical] == nil {
				matrix[canonical] = make(map[string]SourceEntry)
			}
			matrix[canonical][ext.DocumentType] = SourceEntry{
				DocumentType: ext.DocumentType,
				Value:        fv.Value,
				Confidence:   fv.Confidence,
				ExtractionID: ext.ExtractionID,
				DocumentID:   ext.DocumentID,
				ExtractedAt:  ext.ExtractedAt,
			}
		}
	}

	return matrix
}

// evaluateField returns nil when the field has fewer than two sources or
// its variance doesn't clear the threshold (no conflict to report).
func (r *Reconciler) evaluateField(dealID, field string, sources map[string]SourceEntry) *Conflict {
	if len(sources) < 2 {
		return nil
	}

	values := make([]float64, 0, len(sources))
	for _, s := range sources {
		values = append(values, s.Value)
	}

	stats := computeStatistics(values)
	if !stats.Defined || stats.VariancePercent < r.varianceThreshold {
		return nil
	}

	recSource, recEntry, recReason := recommend(sources)

	return &Conflict{
		DealID:            dealID,
		Field:             field,
		Sources:           sources,
		VariancePercent:   stats.VariancePercent,
		RecommendedSource: recSource,
		RecommendedValue:  recEntry.Value,
		RecommendedReason: recReason,
		Status:            StatusOpen,
	}
}

// recommend picks argmax(reliabilityRank(documentType) * confidence),
// ties broken by higher reliability then by newer ExtractedAt.
func recommend(sources map[string]SourceEntry) (string, SourceEntry, string) {
	var bestDocType string
	var bestEntry SourceEntry
	bestScore := -1.0

	for docType, entry := range sources {
		rank := ReliabilityRank(docType)
		score := float64(rank) * entry.Confidence

		if score > bestScore {
			bestScore, bestDocType, bestEntry = score, docType, entry
			continue
		}
		if score == bestScore {
			currentRank := ReliabilityRank(bestDocType)
			if rank > currentRank || (rank == currentRank && entry.ExtractedAt.After(bestEntry.ExtractedAt)) {
				bestDocType, bestEntry = docType, entry
			}
		}
	}

	reason := fmt.Sprintf(
		"%s has the highest reliability-weighted confidence (reliability %d x confidence %.2f)",
		bestDocType, ReliabilityRank(bestDocType), bestEntry.Confidence,
	)
	return bestDocType, bestEntry, reason
}

// Resolve sets a conflict to RESOLVED with the given value, defaulting
// the reason to the stored recommendation rationale. It returns
// ErrNotFound unless an OPEN conflict exists for the field.
func (r *Reconciler) Resolve(ctx context.Context, dealID, field string, resolvedValue float64, resolvedBy, reason string) (*Conflict, error) {
	conflict, err := r.repo.Find(ctx, dealID, field)
	if err != nil {
		return nil, err
	}
	if conflict.Status != StatusOpen {
		return nil, ErrNotFound
	}

	now := r.now()
	conflict.Status = StatusResolved
	conflict.ResolvedValue = &resolvedValue
	conflict.ResolvedBy = resolvedBy
	conflict.ResolvedAt = &now
	if reason == "" {
		reason = conflict.RecommendedReason
	}
	conflict.ResolvedReason = reason

	if err := r.repo.Upsert(ctx, conflict); err != nil {
		return nil, err
	}
	return conflict, nil
}

// Dismiss sets a conflict to DISMISSED; reason is required. It returns
// ErrNotFound unless an OPEN conflict exists for the field.
func (r *Reconciler) Dismiss(ctx context.Context, dealID, field, resolvedBy, reason string) (*Conflict, error) {
	if reason == "" {
		return nil, gwerr.New(gwerr.KindValidationFailed, "reason_required", "a reason is required to dismiss a conflict")
	}

	conflict, err := r.repo.Find(ctx, dealID, field)
	if err != nil {
		return nil, err
	}
	if conflict.Status != StatusOpen {
		return nil, ErrNotFound
	}

	now := r.now()
	conflict.Status = StatusDismissed
	conflict.ResolvedBy = resolvedBy
	conflict.ResolvedAt = &now
	conflict.ResolvedReason = reason

	if err := r.repo.Upsert(ctx, conflict); err != nil {
		return nil, err
	}
	return conflict, nil
}
