// Package providers implements the explorer clients used to download
// contract metadata, plus the ordered pool that tries them in turn.
package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// ContractMetadata is the verified-source information returned by one
// explorer for a contract.
type ContractMetadata struct {
	Name           string          `json:"name"`
	AbiJSON        json.RawMessage `json:"abi_json"`
	Implementation string          `json:"implementation,omitempty"`
}

// EnhancedContractMetadata pairs downloaded metadata with the contract it
// belongs to and the provider that produced it.
type EnhancedContractMetadata struct {
	Address string
	ChainID int64
	Source  string
	*ContractMetadata
}

// MetadataProvider downloads contract metadata from one explorer.
//
// Implementations return domain.ErrNotFound when the contract is not
// verified on the explorer and domain.ErrChainNotSupported when they have
// no endpoint for the chain.
type MetadataProvider interface {
	Name() string
	GetContractMetadata(ctx context.Context, address string, chainID int64) (*ContractMetadata, error)
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
