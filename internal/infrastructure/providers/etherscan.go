package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/safeutils/safe-decoder-service/internal/domain"
)

const etherscanBaseURL = "https://api.etherscan.io/v2/api"

// EtherscanProvider downloads metadata from the Etherscan v2 multichain
// API. Requests are paced with a token bucket so the account quota is
// respected across goroutines.
type EtherscanProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
}

// NewEtherscanProvider creates an Etherscan client limited to
// maxRequestsPerSecond.
func NewEtherscanProvider(apiKey string, maxRequestsPerSecond int, timeout time.Duration) *EtherscanProvider {
	if maxRequestsPerSecond <= 0 {
		maxRequestsPerSecond = 1
	}
	return &EtherscanProvider{
		baseURL: etherscanBaseURL,
		apiKey:  apiKey,
		client:  newHTTPClient(timeout),
		limiter: rate.NewLimiter(rate.Limit(maxRequestsPerSecond), maxRequestsPerSecond),
	}
}

func (p *EtherscanProvider) Name() string { return "etherscan" }

type etherscanResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  []struct {
		ContractName   string `json:"ContractName"`
		ABI            string `json:"ABI"`
		Proxy          string `json:"Proxy"`
		Implementation string `json:"Implementation"`
	} `json:"result"`
}

func (p *EtherscanProvider) GetContractMetadata(ctx context.Context, address string, chainID int64) (*ContractMetadata, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("chainid", strconv.FormatInt(chainID, 10))
	params.Set("module", "contract")
	params.Set("action", "getsourcecode")
	params.Set("address", address)
	if p.apiKey != "" {
		params.Set("apikey", p.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("etherscan request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("etherscan returned status %d", resp.StatusCode)
	}

	var body etherscanResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("etherscan response: %w", err)
	}
	if body.Status != "1" || len(body.Result) == 0 {
		if strings.Contains(body.Message, "Invalid chainid") {
			return nil, domain.ErrChainNotSupported
		}
		return nil, domain.ErrNotFound
	}

	result := body.Result[0]
	if result.ABI == "" || strings.Contains(result.ABI, "not verified") {
		return nil, domain.ErrNotFound
	}
	if !json.Valid([]byte(result.ABI)) {
		return nil, fmt.Errorf("etherscan returned invalid ABI for %s", address)
	}

	metadata := &ContractMetadata{
		Name:    result.ContractName,
		AbiJSON: json.RawMessage(result.ABI),
	}
	if result.Proxy == "1" && result.Implementation != "" {
		metadata.Implementation = result.Implementation
	}
	return metadata, nil
}
