package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/safeutils/safe-decoder-service/internal/domain"
	"github.com/safeutils/safe-decoder-service/shared/postgres"
)

type contractRepository struct {
	db *sql.DB
}

// NewContractRepository creates a PostgreSQL-backed domain.ContractRepository.
func NewContractRepository(db *sql.DB) domain.ContractRepository {
	return &contractRepository{db: db}
}

func (r *contractRepository) Get(ctx context.Context, address []byte, chainID int64) (*domain.Contract, error) {
	row := r.db.QueryRowContext(ctx, queryGetContract, address, chainID)
	contract, err := scanContract(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get contract: %w", err)
	}
	return contract, nil
}

func (r *contractRepository) GetOrCreate(ctx context.Context, address []byte, chainID int64) (*domain.Contract, bool, error) {
	contract, err := r.Get(ctx, address, chainID)
	if err == nil {
		return contract, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, err
	}

	row := r.db.QueryRowContext(ctx, queryInsertContract, address, chainID)
	contract, err = scanContract(row)
	if postgres.IsUniqueViolation(err, "address_chain_unique") {
		contract, err = r.Get(ctx, address, chainID)
		return contract, false, err
	}
	if err != nil {
		return nil, false, fmt.Errorf("insert contract: %w", err)
	}
	return contract, true, nil
}

func (r *contractRepository) Update(ctx context.Context, contract *domain.Contract) error {
	result, err := r.db.ExecContext(ctx, queryUpdateContract,
		contract.Name,
		contract.DisplayName,
		contract.Description,
		contract.TrustedForDelegateCall,
		nilIfEmpty(contract.Implementation),
		contract.FetchRetries,
		contract.AbiID,
		contract.ProjectID,
		contract.ID,
	)
	if err != nil {
		return fmt.Errorf("update contract: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update contract: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *contractRepository) UpdateInfo(ctx context.Context, address []byte, info domain.ContractInfo) (int64, error) {
	result, err := r.db.ExecContext(ctx, queryUpdateContractInfo,
		info.Name,
		info.DisplayName,
		info.TrustedForDelegateCall,
		address,
	)
	if err != nil {
		return 0, fmt.Errorf("update contract info: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("update contract info: %w", err)
	}
	return affected, nil
}

func (r *contractRepository) StreamWithoutAbi(ctx context.Context, maxRetries int, fn func(*domain.Contract) error) error {
	return r.stream(ctx, fn, queryStreamContractsWithoutAbi, maxRetries)
}

func (r *contractRepository) StreamProxies(ctx context.Context, fn func(*domain.Contract) error) error {
	return r.stream(ctx, fn, queryStreamContractProxies)
}

func (r *contractRepository) stream(ctx context.Context, fn func(*domain.Contract) error, query string, args ...any) error {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("stream contracts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		contract, err := scanContract(rows)
		if err != nil {
			return fmt.Errorf("scan contract: %w", err)
		}
		if err := fn(contract); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (r *contractRepository) AbiJSONFor(ctx context.Context, address []byte, chainID *int64) (json.RawMessage, error) {
	var abiJSON []byte
	var err error
	if chainID != nil {
		err = r.db.QueryRowContext(ctx, queryAbiJSONForAddressChain, address, *chainID).Scan(&abiJSON)
	} else {
		err = r.db.QueryRowContext(ctx, queryAbiJSONForAddress, address).Scan(&abiJSON)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("abi for address: %w", err)
	}
	return json.RawMessage(abiJSON), nil
}

func (r *contractRepository) List(ctx context.Context, filter domain.ContractFilter) (*domain.ContractPage, error) {
	address := nilIfEmpty(filter.Address)
	chainIDs := chainIDsParam(filter.ChainIDs)
	trusted := boolParam(filter.TrustedForDelegateCall)

	var total int64
	if err := r.db.QueryRowContext(ctx, queryCountContracts, address, chainIDs, trusted).Scan(&total); err != nil {
		return nil, fmt.Errorf("count contracts: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, queryListContracts,
		address, chainIDs, trusted, filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("list contracts: %w", err)
	}
	defer rows.Close()

	page := &domain.ContractPage{Total: total}
	for rows.Next() {
		detail, err := scanContractDetail(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contract: %w", err)
		}
		page.Contracts = append(page.Contracts, detail)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return page, nil
}

// chainIDsParam maps an empty filter to SQL NULL so the query's chain guard
// is skipped entirely.
func chainIDsParam(ids []int64) any {
	if len(ids) == 0 {
		return nil
	}
	return pq.Array(ids)
}

func boolParam(b *bool) any {
	if b == nil {
		return nil
	}
	return *b
}

func nilIfEmpty(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func scanContract(row rowScanner) (*domain.Contract, error) {
	var contract domain.Contract
	var implementation []byte
	err := row.Scan(
		&contract.ID,
		&contract.Address,
		&contract.ChainID,
		&contract.Name,
		&contract.DisplayName,
		&contract.Description,
		&contract.TrustedForDelegateCall,
		&implementation,
		&contract.FetchRetries,
		&contract.AbiID,
		&contract.ProjectID,
		&contract.Created,
		&contract.Modified,
	)
	if err != nil {
		return nil, err
	}
	contract.Implementation = implementation
	return &contract, nil
}

func scanContractDetail(row rowScanner) (*domain.ContractDetail, error) {
	var detail domain.ContractDetail
	var implementation, abiJSON, abiHash []byte
	var abiModified sql.NullTime
	var projectDescription, projectLogo sql.NullString
	err := row.Scan(
		&detail.ID,
		&detail.Address,
		&detail.ChainID,
		&detail.Name,
		&detail.DisplayName,
		&detail.Description,
		&detail.TrustedForDelegateCall,
		&implementation,
		&detail.FetchRetries,
		&detail.AbiID,
		&detail.ProjectID,
		&detail.Created,
		&detail.Modified,
		&abiJSON,
		&abiHash,
		&abiModified,
		&projectDescription,
		&projectLogo,
	)
	if err != nil {
		return nil, err
	}
	detail.Implementation = implementation
	if detail.AbiID != nil {
		detail.Abi = &domain.Abi{
			ID:       *detail.AbiID,
			AbiHash:  abiHash,
			AbiJSON:  json.RawMessage(abiJSON),
			Modified: abiModified.Time,
		}
	}
	if detail.ProjectID != nil {
		detail.Project = &domain.Project{
			ID:          *detail.ProjectID,
			Description: projectDescription.String,
			LogoFile:    projectLogo.String,
		}
	}
	return &detail, nil
}
