package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/safeutils/safe-decoder-service/internal/domain"
)

const sourcifyBaseURL = "https://sourcify.dev/server"

// SourcifyProvider downloads metadata from the Sourcify verification
// service. Full and partial matches are both accepted.
type SourcifyProvider struct {
	baseURL string
	client  *http.Client
}

// NewSourcifyProvider creates a Sourcify client.
func NewSourcifyProvider(timeout time.Duration) *SourcifyProvider {
	return &SourcifyProvider{
		baseURL: sourcifyBaseURL,
		client:  newHTTPClient(timeout),
	}
}

func (p *SourcifyProvider) Name() string { return "sourcify" }

type sourcifyFilesResponse struct {
	Status string `json:"status"`
	Files  []struct {
		Name    string `json:"name"`
		Content string `json:"content"`
	} `json:"files"`
}

// sourcifyMetadata is the solc metadata.json document Sourcify stores for
// each verified contract.
type sourcifyMetadata struct {
	Output struct {
		Abi json.RawMessage `json:"abi"`
	} `json:"output"`
	Settings struct {
		CompilationTarget map[string]string `json:"compilationTarget"`
	} `json:"settings"`
}

func (p *SourcifyProvider) GetContractMetadata(ctx context.Context, address string, chainID int64) (*ContractMetadata, error) {
	url := fmt.Sprintf("%s/files/any/%d/%s", p.baseURL, chainID, address)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sourcify request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, domain.ErrNotFound
	case http.StatusBadRequest:
		return nil, domain.ErrChainNotSupported
	default:
		return nil, fmt.Errorf("sourcify returned status %d", resp.StatusCode)
	}

	var body sourcifyFilesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("sourcify response: %w", err)
	}

	for _, file := range body.Files {
		if file.Name != "metadata.json" {
			continue
		}
		var metadata sourcifyMetadata
		if err := json.Unmarshal([]byte(file.Content), &metadata); err != nil {
			return nil, fmt.Errorf("sourcify metadata: %w", err)
		}
		if len(metadata.Output.Abi) == 0 {
			continue
		}
		name := ""
		for _, target := range metadata.Settings.CompilationTarget {
			name = target
			break
		}
		return &ContractMetadata{Name: name, AbiJSON: metadata.Output.Abi}, nil
	}
	return nil, domain.ErrNotFound
}
