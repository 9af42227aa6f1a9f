// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package parse

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PostgresRepository implements Repository using PostgreSQL. Save writes
// the session row and every FieldProvenance row inside one transaction,
// per spec §5's atomicity requirement.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

var _ Repository = (*PostgresRepository)(nil)

func (r *PostgresRepository) Save(ctx context.Context, session *Session) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	rawResponses, err := json.Marshal(session.RawProviderResponses)
	if err != nil {
		return fmt.Errorf("marshal raw responses: %w", err)
	}
	parsedResult, err := json.Marshal(session.ParsedResult)
	if err != nil {
		return fmt.Errorf("marshal parsed result: %w", err)
	}
	var evaluatorReport []byte
	if session.EvaluatorReport != nil {
		evaluatorReport, err = json.Marshal(session.EvaluatorReport)
		if err != nil {
			return fmt.Errorf("marshal evaluator report: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO parse_sessions (
			id, user_id, input_text, input_source, provider, model,
			prompt_version, schema_version, status, attempts,
			raw_provider_responses, parsed_result, evaluator_report,
			latency_ms, force_accepted, force_accepted_rationale, completed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			attempts = EXCLUDED.attempts,
			raw_provider_responses = EXCLUDED.raw_provider_responses,
			parsed_result = EXCLUDED.parsed_result,
			evaluator_report = EXCLUDED.evaluator_report,
			latency_ms = EXCLUDED.latency_ms,
			force_accepted = EXCLUDED.force_accepted,
			force_accepted_rationale = EXCLUDED.force_accepted_rationale,
			completed_at = EXCLUDED.completed_at
	`,
		session.ID, nullString(session.UserID), session.InputText, session.InputSource,
		session.Provider, session.Model, session.PromptVersion, session.SchemaVersion,
		string(session.Status), session.Attempts, rawResponses, parsedResult, evaluatorReport,
		session.LatencyMs, session.ForceAccepted, nullString(session.ForceAcceptedRationale),
		session.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert parse session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM field_provenance WHERE session_id = $1`, session.ID); err != nil {
		return fmt.Errorf("clear field provenance: %w", err)
	}

	for _, p := range session.FieldProvenances {
		var evidenceNeeded sql.NullString
		if p.EvidenceNeeded != nil {
			evidenceNeeded = sql.NullString{String: *p.EvidenceNeeded, Valid: true}
		}
		value, err := json.Marshal(p.Value)
		if err != nil {
			return fmt.Errorf("marshal provenance value for %s: %w", p.FieldPath, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO field_provenance (
				session_id, field_path, value, source, confidence,
				rationale, evidence_needed, artifact_id, as_of
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, session.ID, p.FieldPath, value, string(p.Source), p.Confidence,
			p.Rationale, evidenceNeeded, nullString(p.ArtifactID), p.AsOf)
		if err != nil {
			return fmt.Errorf("insert field provenance for %s: %w", p.FieldPath, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit parse session: %w", err)
	}
	return nil
}

func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*Session, error) {
	var session Session
	var userID, status, forceAcceptedRationale sql.NullString
	var rawResponses, parsedResult, evaluatorReport []byte

	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, input_text, input_source, provider, model,
			   prompt_version, schema_version, status, attempts,
			   raw_provider_responses, parsed_result, evaluator_report,
			   latency_ms, force_accepted, force_accepted_rationale, completed_at
		FROM parse_sessions WHERE id = $1
	`, id).Scan(
		&session.ID, &userID, &session.InputText, &session.InputSource,
		&session.Provider, &session.Model, &session.PromptVersion, &session.SchemaVersion,
		&status, &session.Attempts, &rawResponses, &parsedResult, &evaluatorReport,
		&session.LatencyMs, &session.ForceAccepted, &forceAcceptedRationale, &session.CompletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find parse session: %w", err)
	}

	session.UserID = userID.String
	session.Status = Status(status.String)
	session.ForceAcceptedRationale = forceAcceptedRationale.String

	if err := json.Unmarshal(rawResponses, &session.RawProviderResponses); err != nil {
		return nil, fmt.Errorf("unmarshal raw responses: %w", err)
	}
	if err := json.Unmarshal(parsedResult, &session.ParsedResult); err != nil {
		return nil, fmt.Errorf("unmarshal parsed result: %w", err)
	}
	if len(evaluatorReport) > 0 {
		if err := json.Unmarshal(evaluatorReport, &session.EvaluatorReport); err != nil {
			return nil, fmt.Errorf("unmarshal evaluator report: %w", err)
		}
	}

	return &session, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
