package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/safeutils/safe-decoder-service/internal/domain"
)

// blockscoutChains maps chain ids to their Blockscout instance. Chains
// without an entry are reported as unsupported.
var blockscoutChains = map[int64]string{
	1:     "https://eth.blockscout.com",
	10:    "https://optimism.blockscout.com",
	100:   "https://gnosis.blockscout.com",
	137:   "https://polygon.blockscout.com",
	8453:  "https://base.blockscout.com",
	42161: "https://arbitrum.blockscout.com",
}

// BlockscoutProvider downloads metadata through the Blockscout GraphQL
// API of the chain's instance.
type BlockscoutProvider struct {
	chains map[int64]string
	apiKey string
	client *http.Client
}

// NewBlockscoutProvider creates a Blockscout client over the default
// per-chain instances.
func NewBlockscoutProvider(apiKey string, timeout time.Duration) *BlockscoutProvider {
	return &BlockscoutProvider{
		chains: blockscoutChains,
		apiKey: apiKey,
		client: newHTTPClient(timeout),
	}
}

func (p *BlockscoutProvider) Name() string { return "blockscout" }

type blockscoutResponse struct {
	Data struct {
		Address struct {
			SmartContract *struct {
				Name string `json:"name"`
				Abi  string `json:"abi"`
			} `json:"smartContract"`
		} `json:"address"`
	} `json:"data"`
}

func (p *BlockscoutProvider) GetContractMetadata(ctx context.Context, address string, chainID int64) (*ContractMetadata, error) {
	base, ok := p.chains[chainID]
	if !ok {
		return nil, domain.ErrChainNotSupported
	}

	query := fmt.Sprintf(`{address(hash: "%s") {smartContract {name abi}}}`, address)
	payload, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/v1/graphql", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("blockscout request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("blockscout returned status %d", resp.StatusCode)
	}

	var body blockscoutResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("blockscout response: %w", err)
	}

	contract := body.Data.Address.SmartContract
	if contract == nil || contract.Abi == "" {
		return nil, domain.ErrNotFound
	}
	if !json.Valid([]byte(contract.Abi)) {
		return nil, fmt.Errorf("blockscout returned invalid ABI for %s", address)
	}
	return &ContractMetadata{Name: contract.Name, AbiJSON: json.RawMessage(contract.Abi)}, nil
}
