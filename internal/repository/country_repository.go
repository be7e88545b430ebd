package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-desk/internal/domain"
)

// CountryRepository serves the countries reference table.
type CountryRepository interface {
	List(ctx context.Context) ([]domain.Country, error)
}

type countryRepository struct {
	pool *pgxpool.Pool
}

// NewCountryRepository builds repository.
func NewCountryRepository(pool *pgxpool.Pool) CountryRepository {
	return &countryRepository{pool: pool}
}

func (r *countryRepository) List(ctx context.Context) ([]domain.Country, error) {
	const query = `SELECT id, name, code FROM countries ORDER BY name ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Country
	for rows.Next() {
		var country domain.Country
		if err := rows.Scan(&country.ID, &country.Name, &country.Code); err != nil {
			return nil, err
		}
		result = append(result, country)
	}
	return result, rows.Err()
}
