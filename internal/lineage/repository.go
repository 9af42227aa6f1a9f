// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package lineage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no record exists for a (dealId, modelId, field).
var ErrNotFound = errors.New("lineage record not found")

// Repository persists DataLineage rows and supports the review-queue scan
// SuggestNext needs.
type Repository interface {
	Find(ctx context.Context, dealID, modelID, field string) (*Record, error)
	Upsert(ctx context.Context, record *Record) error
	// ListCandidates returns every record for dealID whose
	// VerificationStatus is not HUMAN_VERIFIED — the pool SuggestNext
	// scores and ranks.
	ListCandidates(ctx context.Context, dealID string) ([]*Record, error)
}
