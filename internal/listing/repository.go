package listing

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgxRepository struct {
	pool *pgxpool.Pool
}

// NewPgxRepository reads listings from public.listings.
func NewPgxRepository(pool *pgxpool.Pool) Repository {
	return &pgxRepository{pool: pool}
}

func (r *pgxRepository) FindByID(ctx context.Context, id string) (*Listing, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Select("id", "base_price", "cleaning_fee", "service_fee").
		From("public.listings").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get listing query failed: %w", err)
	}

	var l Listing
	if err := r.pool.QueryRow(ctx, query, args...).Scan(
		&l.ID, &l.Price.BasePrice, &l.Price.CleaningFee, &l.Price.ServiceFee,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get listing failed: %w", err)
	}
	return &l, nil
}
