package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rvaldes/tributario/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type reportRepository struct {
	pool *pgxpool.Pool
}

// NewReportRepository wires a repository over the reportes document table.
func NewReportRepository(pool *pgxpool.Pool) ReportRepository {
	return &reportRepository{pool: pool}
}

func (r *reportRepository) Append(ctx context.Context, run domain.ReportRun) (domain.ReportRun, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	doc, err := json.Marshal(run)
	if err != nil {
		return domain.ReportRun{}, fmt.Errorf("marshal report run: %w", err)
	}
	if _, err := r.pool.Exec(ctx, `
		INSERT INTO reportes (id, usuario_generador_id, fecha_generacion, doc)
		VALUES ($1, $2, $3, $4)
	`, run.ID, run.UsuarioGeneradorID, run.FechaGeneracion, doc); err != nil {
		return domain.ReportRun{}, fmt.Errorf("insert report run: %w", err)
	}
	return run, nil
}

func (r *reportRepository) ListRecent(ctx context.Context, identity domain.Identity, limit int) ([]domain.ReportRun, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, doc
		FROM reportes
		ORDER BY fecha_generacion DESC
		LIMIT $1
	`
	args := []any{limit}
	if !identity.SeesAllHistory() {
		query = `
			SELECT id, doc
			FROM reportes
			WHERE usuario_generador_id = $1
			ORDER BY fecha_generacion DESC
			LIMIT $2
		`
		args = []any{identity.ID, limit}
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list report runs: %w", err)
	}
	defer rows.Close()

	runs := make([]domain.ReportRun, 0, limit)
	for rows.Next() {
		var id string
		var doc []byte
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, fmt.Errorf("scan report row: %w", err)
		}
		var run domain.ReportRun
		if err := json.Unmarshal(doc, &run); err != nil {
			return nil, fmt.Errorf("unmarshal report run %s: %w", id, err)
		}
		run.ID = id
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate report rows: %w", err)
	}
	return runs, nil
}
