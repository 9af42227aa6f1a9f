// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package consent

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PostgresRepository implements Repository using PostgreSQL. One row per
// user in consent_records (upserted via ON CONFLICT), and one append-only
// row per mutation in consent_audit.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository wraps an existing *sql.DB opened with the lib/pq
// driver.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

var _ Repository = (*PostgresRepository)(nil)

func (r *PostgresRepository) FindByUser(ctx context.Context, userID string) (*Record, error) {
	query := `
		SELECT user_id, organization_id, consent_given, consent_version,
			   consented_at, withdrawn_at, expires_at, features,
			   consent_method, ip_address, user_agent
		FROM consent_records
		WHERE user_id = $1
	`

	var record Record
	var featuresJSON []byte
	var orgID, ipAddress, userAgent sql.NullString
	var method string

	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&record.UserID, &orgID, &record.ConsentGiven, &record.ConsentVersion,
		&record.ConsentedAt, &record.WithdrawnAt, &record.ExpiresAt, &featuresJSON,
		&method, &ipAddress, &userAgent,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find consent record: %w", err)
	}

	if err := json.Unmarshal(featuresJSON, &record.Features); err != nil {
		return nil, fmt.Errorf("unmarshal feature toggles: %w", err)
	}

	record.OrganizationID = orgID.String
	record.ConsentMethod = Method(method)
	record.IPAddress = ipAddress.String
	record.UserAgent = userAgent.String

	return &record, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, record *Record) error {
	features, err := json.Marshal(record.Features)
	if err != nil {
		return fmt.Errorf("marshal feature toggles: %w", err)
	}

	query := `
		INSERT INTO consent_records (
			user_id, organization_id, consent_given, consent_version,
			consented_at, withdrawn_at, expires_at, features,
			consent_method, ip_address, user_agent
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (user_id) DO UPDATE SET
			organization_id = EXCLUDED.organization_id,
			consent_given   = EXCLUDED.consent_given,
			consent_version = EXCLUDED.consent_version,
			consented_at    = EXCLUDED.consented_at,
			withdrawn_at    = EXCLUDED.withdrawn_at,
			expires_at      = EXCLUDED.expires_at,
			features        = EXCLUDED.features,
			consent_method  = EXCLUDED.consent_method,
			ip_address      = EXCLUDED.ip_address,
			user_agent      = EXCLUDED.user_agent
	`

	_, err = r.db.ExecContext(ctx, query,
		record.UserID, nullString(record.OrganizationID), record.ConsentGiven, record.ConsentVersion,
		record.ConsentedAt, record.WithdrawnAt, record.ExpiresAt, features,
		string(record.ConsentMethod), nullString(record.IPAddress), nullString(record.UserAgent),
	)
	if err != nil {
		return fmt.Errorf("upsert consent record: %w", err)
	}

	return nil
}

func (r *PostgresRepository) AppendAudit(ctx context.Context, audit *Audit) error {
	before, err := json.Marshal(audit.BeforeState)
	if err != nil {
		return fmt.Errorf("marshal before state: %w", err)
	}
	after, err := json.Marshal(audit.AfterState)
	if err != nil {
		return fmt.Errorf("marshal after state: %w", err)
	}

	query := `
		INSERT INTO consent_audit (
			consent_id, user_id, action, policy_version, before_state,
			after_state, ip_address, user_agent, reason, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = r.db.ExecContext(ctx, query,
		audit.ConsentID, audit.UserID, string(audit.Action), audit.PolicyVersion, before,
		after, nullString(audit.IPAddress), nullString(audit.UserAgent), nullString(audit.Reason), audit.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append consent audit: %w", err)
	}

	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
