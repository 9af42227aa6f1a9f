// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package lineage

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

func (r *PostgresRepository) Upsert(ctx context.Context, record *Record) error {
	history, err := json.Marshal(record.History)
	if err != nil {
		return fmt.Errorf("marshal lineage history: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO data_lineage (
			deal_id, model_id, field, current_value, source_type, source_doc_id,
			source_field, extracted_at, extraction_confidence, verification_status,
			verified_by, verified_at, verification_notes, history, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (deal_id, model_id, field) DO UPDATE SET
			current_value = EXCLUDED.current_value,
			source_type = EXCLUDED.source_type,
			source_doc_id = EXCLUDED.source_doc_id,
			source_field = EXCLUDED.source_field,
			extracted_at = EXCLUDED.extracted_at,
			extraction_confidence = EXCLUDED.extraction_confidence,
			verification_status = EXCLUDED.verification_status,
			verified_by = EXCLUDED.verified_by,
			verified_at = EXCLUDED.verified_at,
			verification_notes = EXCLUDED.verification_notes,
			history = EXCLUDED.history,
			updated_at = EXCLUDED.updated_at
	`,
		record.DealID, record.ModelID, record.Field, record.CurrentValue, string(record.SourceType),
		nullString(record.SourceDocID), nullString(record.SourceField), record.ExtractedAt,
		record.ExtractionConfidence, string(record.VerificationStatus), nullString(record.VerifiedBy),
		record.VerifiedAt, nullString(record.VerificationNotes), history, record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert lineage record: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Find(ctx context.Context, dealID, modelID, field string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT deal_id, model_id, field, current_value, source_type, source_doc_id,
			   source_field, extracted_at, extraction_confidence, verification_status,
			   verified_by, verified_at, verification_notes, history, updated_at
		FROM data_lineage WHERE deal_id = $1 AND model_id = $2 AND field = $3
	`, dealID, modelID, field)

	record, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find lineage record: %w", err)
	}
	return record, nil
}

func (r *PostgresRepository) ListCandidates(ctx context.Context, dealID string) ([]*Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT deal_id, model_id, field, current_value, source_type, source_doc_id,
			   source_field, extracted_at, extraction_confidence, verification_status,
			   verified_by, verified_at, verification_notes, history, updated_at
		FROM data_lineage WHERE deal_id = $1 AND verification_status != $2
	`, dealID, string(StatusHumanVerified))
	if err != nil {
		return nil, fmt.Errorf("list lineage candidates: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lineage record: %w", err)
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

// rowScanner abstracts over *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(s rowScanner) (*Record, error) {
	var record Record
	var sourceType, verificationStatus string
	var sourceDocID, sourceField, verifiedBy, verificationNotes sql.NullString
	var history []byte

	err := s.Scan(
		&record.DealID, &record.ModelID, &record.Field, &record.CurrentValue, &sourceType, &sourceDocID,
		&sourceField, &record.ExtractedAt, &record.ExtractionConfidence, &verificationStatus,
		&verifiedBy, &record.VerifiedAt, &verificationNotes, &history, &record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.SourceType = SourceType(sourceType)
	record.VerificationStatus = VerificationStatus(verificationStatus)
	record.SourceDocID = sourceDocID.String
	record.SourceField = sourceField.String
	record.VerifiedBy = verifiedBy.String
	record.VerificationNotes = verificationNotes.String

	if len(history) > 0 {
		if err := json.Unmarshal(history, &record.History); err != nil {
			return nil, fmt.Errorf("unmarshal lineage history: %w", err)
		}
	}

	return &record, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
