package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository wires a repository over the usuarios document table.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

func (r *userRepository) GetRut(ctx context.Context, userID string) (string, error) {
	var rut pgtype.Text
	err := r.pool.QueryRow(ctx, `
		SELECT doc->>'rut'
		FROM usuarios
		WHERE id = $1
	`, userID).Scan(&rut)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get user rut: %w", err)
	}
	if !rut.Valid {
		return "", nil
	}
	return rut.String, nil
}
