// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package reconcile

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

var _ Repository = (*PostgresRepository)(nil)

func (r *PostgresRepository) Upsert(ctx context.Context, conflict *Conflict) error {
	var currentStatus string
	err := r.db.QueryRowContext(ctx,
		`SELECT status FROM extraction_conflicts WHERE deal_id = $1 AND field = $2`,
		conflict.DealID, conflict.Field,
	).Scan(&currentStatus)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("check existing conflict status: %w", err)
	}
	if err == nil && Status(currentStatus) != StatusOpen {
		return nil
	}

	sources, err := json.Marshal(conflict.Sources)
	if err != nil {
		return fmt.Errorf("marshal conflict sources: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO extraction_conflicts (
			deal_id, field, sources, variance_percent, recommended_source,
			recommended_value, recommended_reason, status, resolved_value,
			resolved_by, resolved_at, resolved_reason
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (deal_id, field) DO UPDATE SET
			sources = EXCLUDED.sources,
			variance_percent = EXCLUDED.variance_percent,
			recommended_source = EXCLUDED.recommended_source,
			recommended_value = EXCLUDED.recommended_value,
			recommended_reason = EXCLUDED.recommended_reason,
			status = EXCLUDED.status,
			resolved_value = EXCLUDED.resolved_value,
			resolved_by = EXCLUDED.resolved_by,
			resolved_at = EXCLUDED.resolved_at,
			resolved_reason = EXCLUDED.resolved_reason
	`,
		conflict.DealID, conflict.Field, sources, conflict.VariancePercent, conflict.RecommendedSource,
		conflict.RecommendedValue, conflict.RecommendedReason, string(conflict.Status), conflict.ResolvedValue,
		nullString(conflict.ResolvedBy), conflict.ResolvedAt, nullString(conflict.ResolvedReason),
	)
	if err != nil {
		return fmt.Errorf("upsert extraction conflict: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Find(ctx context.Context, dealID, field string) (*Conflict, error) {
	var conflict Conflict
	var sources []byte
	var status string
	var resolvedBy, resolvedReason sql.NullString

	err := r.db.QueryRowContext(ctx, `
		SELECT deal_id, field, sources, variance_percent, recommended_source,
			   recommended_value, recommended_reason, status, resolved_value,
			   resolved_by, resolved_at, resolved_reason
		FROM extraction_conflicts WHERE deal_id = $1 AND field = $2
	`, dealID, field).Scan(
		&conflict.DealID, &conflict.Field, &sources, &conflict.VariancePercent, &conflict.RecommendedSource,
		&conflict.RecommendedValue, &conflict.RecommendedReason, &status, &conflict.ResolvedValue,
		&resolvedBy, &conflict.ResolvedAt, &resolvedReason,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find extraction conflict: %w", err)
	}

	conflict.Status = Status(status)
	conflict.ResolvedBy = resolvedBy.String
	conflict.ResolvedReason = resolvedReason.String
	if err := json.Unmarshal(sources, &conflict.Sources); err != nil {
		return nil, fmt.Errorf("unmarshal conflict sources: %w", err)
	}

	return &conflict, nil
}

func (r *PostgresRepository) ListByDeal(ctx context.Context, dealID string) ([]*Conflict, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT deal_id, field, sources, variance_percent, recommended_source,
			   recommended_value, recommended_reason, status, resolved_value,
			   resolved_by, resolved_at, resolved_reason
		FROM extraction_conflicts WHERE deal_id = $1
	`, dealID)
	if err != nil {
		return nil, fmt.Errorf("list extraction conflicts: %w", err)
	}
	defer rows.Close()

	var out []*Conflict
	for rows.Next() {
		var conflict Conflict
		var sources []byte
		var status string
		var resolvedBy, resolvedReason sql.NullString

		if err := rows.Scan(
			&conflict.DealID, &conflict.Field, &sources, &conflict.VariancePercent, &conflict.RecommendedSource,
			&conflict.RecommendedValue, &conflict.RecommendedReason, &status, &conflict.ResolvedValue,
			&resolvedBy, &conflict.ResolvedAt, &resolvedReason,
		); err != nil {
			return nil, fmt.Errorf("scan extraction conflict: %w", err)
		}

		conflict.Status = Status(status)
		conflict.ResolvedBy = resolvedBy.String
		conflict.ResolvedReason = resolvedReason.String
		if err := json.Unmarshal(sources, &conflict.Sources); err != nil {
			return nil, fmt.Errorf("unmarshal conflict sources: %w", err)
		}
		out = append(out, &conflict)
	}

	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
