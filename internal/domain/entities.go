// Package domain holds the entities and repository contracts shared by the
// decoder, the metadata pipeline and the HTTP surface.
package domain

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"time"
)

// AbiSource identifies where an ABI document was obtained from, for example
// an explorer API or the bundled fixtures.
type AbiSource struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Abi is a stored contract ABI, deduplicated by its canonical hash.
type Abi struct {
	ID        int64           `json:"id"`
	AbiHash   []byte          `json:"abi_hash"`
	AbiJSON   json.RawMessage `json:"abi_json"`
	Relevance int             `json:"relevance"`
	SourceID  int64           `json:"source_id"`
	Created   time.Time       `json:"created"`
	Modified  time.Time       `json:"modified"`
}

// HexHash returns the ABI hash as a 0x-prefixed hex string.
func (a *Abi) HexHash() string {
	return "0x" + hex.EncodeToString(a.AbiHash)
}

// Project groups contracts that belong to the same protocol or product.
type Project struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	LogoFile    string `json:"logo_file"`
}

// Contract is an on-chain contract on a specific chain, identified by the
// (address, chain_id) pair. Address and Implementation are raw 20-byte
// values.
type Contract struct {
	ID                     int64      `json:"id"`
	Address                []byte     `json:"address"`
	ChainID                int64      `json:"chain_id"`
	Name                   *string    `json:"name"`
	DisplayName            *string    `json:"display_name"`
	Description            *string    `json:"description"`
	TrustedForDelegateCall bool       `json:"trusted_for_delegate_call"`
	Implementation         []byte     `json:"implementation"`
	FetchRetries           int        `json:"fetch_retries"`
	AbiID                  *int64     `json:"abi_id"`
	ProjectID              *int64     `json:"project_id"`
	Created                time.Time  `json:"created"`
	Modified               time.Time  `json:"modified"`
}

// HasAbi reports whether metadata download succeeded for this contract.
func (c *Contract) HasAbi() bool {
	return c.AbiID != nil
}

// ContractInfo carries the curated fields applied to well known contracts.
type ContractInfo struct {
	Name                   string
	DisplayName            string
	TrustedForDelegateCall bool
}

// ContractFilter narrows contract listings. A nil TrustedForDelegateCall or
// empty Address/ChainIDs leaves that dimension unfiltered.
type ContractFilter struct {
	Address                []byte
	ChainIDs               []int64
	TrustedForDelegateCall *bool
	Limit                  int
	Offset                 int
}

// ContractDetail is a contract row together with its joined ABI and project,
// when present. Shaped for the public contract listings.
type ContractDetail struct {
	Contract
	Abi     *Abi
	Project *Project
}

// ContractPage is one page of a contract listing together with the total
// row count for the filter.
type ContractPage struct {
	Contracts []*ContractDetail
	Total     int64
}

// AbiRepository persists deduplicated ABIs.
type AbiRepository interface {
	// GetByHash returns the ABI with the given canonical hash, or
	// ErrNotFound.
	GetByHash(ctx context.Context, hash []byte) (*Abi, error)

	// GetOrCreate stores the ABI if its hash is new and returns the stored
	// row either way. Concurrent inserts of the same hash converge on the
	// existing row.
	GetOrCreate(ctx context.Context, abiJSON json.RawMessage, relevance int, sourceID int64) (*Abi, error)

	// StreamByRelevanceAsc yields every ABI ordered by ascending relevance
	// then ascending id, so that later (more relevant) entries win when
	// loaded into a selector map.
	StreamByRelevanceAsc(ctx context.Context, fn func(*Abi) error) error

	// StreamCreatedAfter yields ABIs created strictly after the given
	// instant, in the same order as StreamByRelevanceAsc.
	StreamCreatedAfter(ctx context.Context, after time.Time, fn func(*Abi) error) error

	// LastCreated returns the creation time of the newest ABI, or the zero
	// time when the table is empty.
	LastCreated(ctx context.Context) (time.Time, error)
}

// AbiSourceRepository persists ABI provenance records.
type AbiSourceRepository interface {
	GetOrCreate(ctx context.Context, name, url string) (*AbiSource, error)
}

// ContractRepository persists per-chain contract rows.
type ContractRepository interface {
	// Get returns the contract for (address, chainID), or ErrNotFound.
	Get(ctx context.Context, address []byte, chainID int64) (*Contract, error)

	// GetOrCreate returns the existing row for (address, chainID) or
	// inserts an empty one.
	GetOrCreate(ctx context.Context, address []byte, chainID int64) (*Contract, bool, error)

	// Update persists the mutable fields of an existing contract.
	Update(ctx context.Context, contract *Contract) error

	// UpdateInfo applies curated name and trust metadata to every row with
	// the given address, on any chain, and returns the number of rows
	// touched.
	UpdateInfo(ctx context.Context, address []byte, info ContractInfo) (int64, error)

	// StreamWithoutAbi yields contracts whose metadata download has not
	// succeeded yet and that still have download attempts left.
	StreamWithoutAbi(ctx context.Context, maxRetries int, fn func(*Contract) error) error

	// StreamProxies yields contracts with a known proxy implementation.
	StreamProxies(ctx context.Context, fn func(*Contract) error) error

	// AbiJSONFor returns the ABI document for the given address. When
	// chainID is non-nil only that chain is considered; otherwise the
	// match on the lowest chain id wins. Returns ErrNotFound when no row
	// with an ABI exists.
	AbiJSONFor(ctx context.Context, address []byte, chainID *int64) (json.RawMessage, error)

	// List returns one page of contracts for the filter, newest first,
	// along with the total count.
	List(ctx context.Context, filter ContractFilter) (*ContractPage, error)
}

// TaskEnqueuer schedules background metadata work.
type TaskEnqueuer interface {
	EnqueueProcessMetadata(ctx context.Context, address string, chainID int64, skipAttemptCheck bool) error
}
