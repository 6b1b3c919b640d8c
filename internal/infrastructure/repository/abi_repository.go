// Package repository implements the domain repositories on PostgreSQL.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/safeutils/safe-decoder-service/internal/abihash"
	"github.com/safeutils/safe-decoder-service/internal/domain"
	"github.com/safeutils/safe-decoder-service/shared/postgres"
)

type abiRepository struct {
	db *sql.DB
}

// NewAbiRepository creates a PostgreSQL-backed domain.AbiRepository.
func NewAbiRepository(db *sql.DB) domain.AbiRepository {
	return &abiRepository{db: db}
}

func (r *abiRepository) GetByHash(ctx context.Context, hash []byte) (*domain.Abi, error) {
	row := r.db.QueryRowContext(ctx, queryGetAbiByHash, hash)
	abi, err := scanAbi(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get abi by hash: %w", err)
	}
	return abi, nil
}

func (r *abiRepository) GetOrCreate(ctx context.Context, abiJSON json.RawMessage, relevance int, sourceID int64) (*domain.Abi, error) {
	hash, err := abihash.Hash(abiJSON)
	if err != nil {
		return nil, err
	}

	existing, err := r.GetByHash(ctx, hash)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	canonical, err := abihash.Canonicalize(abiJSON)
	if err != nil {
		return nil, err
	}

	row := r.db.QueryRowContext(ctx, queryInsertAbi, hash, canonical, relevance, sourceID)
	abi, err := scanAbi(row)
	if postgres.IsUniqueViolation(err, "abis_abi_hash_unique") {
		// Lost a race with a concurrent insert of the same document.
		return r.GetByHash(ctx, hash)
	}
	if err != nil {
		return nil, fmt.Errorf("insert abi: %w", err)
	}
	return abi, nil
}

func (r *abiRepository) StreamByRelevanceAsc(ctx context.Context, fn func(*domain.Abi) error) error {
	return r.stream(ctx, fn, queryStreamAbisByRelevance)
}

func (r *abiRepository) StreamCreatedAfter(ctx context.Context, after time.Time, fn func(*domain.Abi) error) error {
	return r.stream(ctx, fn, queryStreamAbisCreatedAfter, after)
}

func (r *abiRepository) stream(ctx context.Context, fn func(*domain.Abi) error, query string, args ...any) error {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("stream abis: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		abi, err := scanAbi(rows)
		if err != nil {
			return fmt.Errorf("scan abi: %w", err)
		}
		if err := fn(abi); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (r *abiRepository) LastCreated(ctx context.Context) (time.Time, error) {
	var created time.Time
	if err := r.db.QueryRowContext(ctx, queryLastAbiCreated).Scan(&created); err != nil {
		return time.Time{}, fmt.Errorf("last abi created: %w", err)
	}
	// The epoch sentinel means the table is empty.
	if created.Unix() == 0 {
		return time.Time{}, nil
	}
	return created, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAbi(row rowScanner) (*domain.Abi, error) {
	var abi domain.Abi
	var abiJSON []byte
	err := row.Scan(
		&abi.ID,
		&abi.AbiHash,
		&abiJSON,
		&abi.Relevance,
		&abi.SourceID,
		&abi.Created,
		&abi.Modified,
	)
	if err != nil {
		return nil, err
	}
	abi.AbiJSON = json.RawMessage(abiJSON)
	return &abi, nil
}
