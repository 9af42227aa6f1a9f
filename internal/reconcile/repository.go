// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package reconcile

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a conflict lookup misses.
var ErrNotFound = errors.New("conflict not found")

// Repository persists ExtractionConflict rows, enforcing at most one OPEN
// conflict per (dealId, normalized field) via upsert semantics.
type Repository interface {
	// Upsert writes conflict keyed by (DealID, Field). If an existing row
	// for that key is already RESOLVED or DISMISSED, the implementation
	// must preserve its terminal status rather than reopening it.
	Upsert(ctx context.Context, conflict *Conflict) error
	Find(ctx context.Context, dealID, field string) (*Conflict, error)
	ListByDeal(ctx context.Context, dealID string) ([]*Conflict, error)
}
