package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"idmigrate/internal/domain"
)

type UserAttributeRepository interface {
	GetByUserID(ctx context.Context, userID string) (domain.UserAttribute, error)
}

type PgUserAttributeRepository struct {
	pool *pgxpool.Pool
}

func NewPgUserAttributeRepository(pool *pgxpool.Pool) *PgUserAttributeRepository {
	return &PgUserAttributeRepository{pool: pool}
}

// GetByUserID busca por la clave resuelta (id legado o id hosted), en texto.
func (r *PgUserAttributeRepository) GetByUserID(ctx context.Context, userID string) (domain.UserAttribute, error) {
	const query = `
		SELECT user_id::text, attribute
		FROM user_attributes
		WHERE user_id::text = $1
		LIMIT 1
	`
	var a domain.UserAttribute
	err := r.pool.QueryRow(ctx, query, userID).Scan(&a.UserID, &a.Attribute)
	if err != nil {
		return domain.UserAttribute{}, err
	}
	return a, nil
}
