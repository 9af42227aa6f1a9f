// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package parse

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a session ID has no matching Session.
var ErrNotFound = errors.New("parse session not found")

// Repository persists ParseSession and its FieldProvenance rows. Save
// must be atomic (single transaction) per spec §5: if persistence fails
// after a successful LLM call, the orchestrator treats it as equivalent
// to a PROVIDER_ERROR rather than silently dropping the result.
type Repository interface {
	Save(ctx context.Context, session *Session) error
	FindByID(ctx context.Context, id string) (*Session, error)
}
