// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package consent

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Repository when no record exists for a user.
var ErrNotFound = errors.New("consent record not found")

// Repository persists consent records and their audit trail. Implementations
// must serialize mutations per userID — the spec relies on the database's
// row-level uniqueness constraint on userID to do this, so an in-memory
// implementation must emulate that with its own lock.
type Repository interface {
	FindByUser(ctx context.Context, userID string) (*Record, error)
	Upsert(ctx context.Context, record *Record) error
	AppendAudit(ctx context.Context, audit *Audit) error
}
