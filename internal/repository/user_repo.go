package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"idmigrate/internal/domain"
)

// LegacyUserRepository da acceso de lectura al almacen de credenciales previo.
type LegacyUserRepository interface {
	GetByEmail(ctx context.Context, email string) (domain.LegacyUser, error)
}

// PgLegacyUserRepository implementa LegacyUserRepository usando pgxpool.
type PgLegacyUserRepository struct {
	pool *pgxpool.Pool
}

func NewPgLegacyUserRepository(pool *pgxpool.Pool) *PgLegacyUserRepository {
	return &PgLegacyUserRepository{pool: pool}
}

func (r *PgLegacyUserRepository) GetByEmail(ctx context.Context, email string) (domain.LegacyUser, error) {
	const query = `
		SELECT id, email, password
		FROM users
		WHERE LOWER(email) = LOWER($1)
		LIMIT 1
	`
	var u domain.LegacyUser
	err := r.pool.QueryRow(ctx, query, email).Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
	)
	if err != nil {
		return domain.LegacyUser{}, err
	}
	return u, nil
}
