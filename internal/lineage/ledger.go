// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package lineage

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"axonflow/platform/internal/gwerr"
)

// prioritizedFields ranks the fields the review queue favors, highest
// priority first.
var prioritizedFields = []string{
	"purchasePrice", "netOperatingIncome", "capRate", "grossPotentialRent",
	"effectiveGrossIncome", "vacancyRate", "operatingExpenses", "debtService",
	"cashOnCash", "irr",
}

// Ledger implements Track/Verify/SuggestNext against a Repository.
type Ledger struct {
	repo Repository
	now  func() time.Time
}

func New(repo Repository) *Ledger {
	return &Ledger{repo: repo, now: time.Now}
}

// Track upserts a field's current value, computing its initial
// verification status and pushing the superseded value onto history when
// the value actually changed.
func (l *Ledger) Track(ctx context.Context, dealID, modelID, field string, in TrackInput) (*Record, error) {
	existing, err := l.repo.Find(ctx, dealID, modelID, field)
	if err != nil && err != ErrNotFound {
		return nil, err
	}

	now := l.now()
	status := initialStatus(in.SourceType)

	record := &Record{
		DealID:               dealID,
		ModelID:              modelID,
		Field:                field,
		CurrentValue:         in.Value,
		SourceType:           in.SourceType,
		SourceDocID:          in.SourceDocID,
		SourceField:          in.SourceField,
		ExtractionConfidence: in.ExtractionConfidence,
		VerificationStatus:   status,
		UpdatedAt:            now,
	}
	if in.SourceDocID != "" {
		record.ExtractedAt = &now
	}

	if existing != nil {
		record.History = existing.History
		record.VerifiedBy = existing.VerifiedBy
		record.VerifiedAt = existing.VerifiedAt
		record.VerificationNotes = existing.VerificationNotes

		if existing.CurrentValue != in.Value {
			entry := HistoryEntry{
				Value:              existing.CurrentValue,
				UpdatedAt:          existing.UpdatedAt,
				SourceType:         existing.SourceType,
				VerificationStatus: existing.VerificationStatus,
			}
			record.History = prependHistory(existing.History, entry)

			if existing.VerificationStatus == StatusHumanVerified {
				record.VerificationStatus = StatusNeedsReview
			}
		} else {
			// Value unchanged: verification state carries forward
			// untouched rather than being recomputed from SourceType.
			record.VerificationStatus = existing.VerificationStatus
		}
	}

	if err := l.repo.Upsert(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

func initialStatus(sourceType SourceType) VerificationStatus {
	switch sourceType {
	case SourceAIExtracted:
		return StatusAIExtracted
	case SourceManual:
		return StatusNeedsReview
	default:
		return StatusUnverified
	}
}

func prependHistory(history []HistoryEntry, entry HistoryEntry) []HistoryEntry {
	out := append([]HistoryEntry{entry}, history...)
	if len(out) > maxHistory {
		out = out[:maxHistory]
	}
	return out
}

// Verify requires an existing record.
func (l *Ledger) Verify(ctx context.Context, dealID, modelID, field, verifierID, notes string) (*Record, error) {
	record, err := l.repo.Find(ctx, dealID, modelID, field)
	if err != nil {
		if err == ErrNotFound {
			return nil, gwerr.New(gwerr.KindNotFound, "lineage_not_found", "no lineage record exists for this field")
		}
		return nil, err
	}

	now := l.now()
	record.VerificationStatus = StatusHumanVerified
	record.VerifiedBy = verifierID
	record.VerifiedAt = &now
	record.VerificationNotes = notes

	if err := l.repo.Upsert(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// SuggestNext ranks every non-human-verified record for dealID by review
// priority and returns the top limit.
func (l *Ledger) SuggestNext(ctx context.Context, dealID string, limit int) ([]Suggestion, error) {
	candidates, err := l.repo.ListCandidates(ctx, dealID)
	if err != nil {
		return nil, err
	}

	now := l.now()
	suggestions := make([]Suggestion, 0, len(candidates))
	for _, record := range candidates {
		score, reason := scoreCandidate(record, now)
		suggestions = append(suggestions, Suggestion{
			DealID: record.DealID, ModelID: record.ModelID, Field: record.Field,
			Score: score, Reason: reason,
		})
	}

	sort.Slice(suggestions, func(i, j int) bool { return suggestions[i].Score > suggestions[j].Score })

	if limit > 0 && len(suggestions) > limit {
		suggestions = suggestions[:limit]
	}
	return suggestions, nil
}

func scoreCandidate(record *Record, now time.Time) (float64, string) {
	var components []string

	priorityBonus := 0.0
	if idx := indexOf(prioritizedFields, record.Field); idx >= 0 {
		priorityBonus = float64(len(prioritizedFields)-idx) * 10
		components = append(components, fmt.Sprintf("priority field (+%.0f)", priorityBonus))
	}

	confidence := 0.0
	if record.ExtractionConfidence != nil {
		confidence = *record.ExtractionConfidence
	}
	confidenceBonus := (1 - confidence) * 50
	components = append(components, fmt.Sprintf("low confidence %.2f (+%.0f)", confidence, confidenceBonus))

	needsReviewBonus := 0.0
	if record.VerificationStatus == StatusNeedsReview {
		needsReviewBonus = 30
		components = append(components, "flagged needs review (+30)")
	}

	ageDays := now.Sub(record.UpdatedAt).Hours() / 24
	ageBonus := math.Min(ageDays*2, 20)
	components = append(components, fmt.Sprintf("age %.1f days (+%.0f)", ageDays, ageBonus))

	score := priorityBonus + confidenceBonus + needsReviewBonus + ageBonus
	reason := fmt.Sprintf("%s: %s", record.Field, joinReasons(components))

	return score, reason
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

func joinReasons(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}
