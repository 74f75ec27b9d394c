package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/rvaldes/tributario/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

type qualificationRepository struct {
	pool *pgxpool.Pool
}

// NewQualificationRepository wires a repository over the datos_tributarios
// document table.
func NewQualificationRepository(pool *pgxpool.Pool) QualificationRepository {
	return &qualificationRepository{pool: pool}
}

func (r *qualificationRepository) ListActive(ctx context.Context, limit int) ([]domain.QualificationRecord, error) {
	if limit <= 0 {
		limit = 10000
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, doc
		FROM datos_tributarios
		WHERE (doc->>'activo')::boolean IS TRUE
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list active qualifications: %w", err)
	}
	defer rows.Close()

	records := make([]domain.QualificationRecord, 0, 64)
	for rows.Next() {
		var id string
		var doc []byte
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, fmt.Errorf("scan qualification row: %w", err)
		}
		var record domain.QualificationRecord
		if err := json.Unmarshal(doc, &record); err != nil {
			// Malformed documents are skipped, never fatal to the batch.
			log.Printf("[repository] skipping malformed qualification %s: %v", id, err)
			continue
		}
		record.ID = id
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate qualification rows: %w", err)
	}
	return records, nil
}
