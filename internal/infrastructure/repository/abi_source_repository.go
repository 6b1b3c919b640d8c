package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safeutils/safe-decoder-service/internal/domain"
	"github.com/safeutils/safe-decoder-service/shared/postgres"
)

type abiSourceRepository struct {
	db *sql.DB
}

// NewAbiSourceRepository creates a PostgreSQL-backed domain.AbiSourceRepository.
func NewAbiSourceRepository(db *sql.DB) domain.AbiSourceRepository {
	return &abiSourceRepository{db: db}
}

func (r *abiSourceRepository) GetOrCreate(ctx context.Context, name, url string) (*domain.AbiSource, error) {
	source, err := r.get(ctx, name, url)
	if err == nil {
		return source, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get abi source: %w", err)
	}

	source = &domain.AbiSource{}
	err = r.db.QueryRowContext(ctx, queryInsertAbiSource, name, url).
		Scan(&source.ID, &source.Name, &source.URL)
	if postgres.IsUniqueViolation(err, "abi_sources_name_url_unique") {
		return r.get(ctx, name, url)
	}
	if err != nil {
		return nil, fmt.Errorf("insert abi source: %w", err)
	}
	return source, nil
}

func (r *abiSourceRepository) get(ctx context.Context, name, url string) (*domain.AbiSource, error) {
	var source domain.AbiSource
	err := r.db.QueryRowContext(ctx, queryGetAbiSource, name, url).
		Scan(&source.ID, &source.Name, &source.URL)
	if err != nil {
		return nil, err
	}
	return &source, nil
}
