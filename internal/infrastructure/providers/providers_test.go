package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safeutils/safe-decoder-service/internal/domain"
	"github.com/safeutils/safe-decoder-service/shared/logging"
	"github.com/safeutils/safe-decoder-service/shared/monitoring"
)

const testAddress = "0xA77DE01e157f9f57C7c4A326eeE9C4874D0598b6"

func testLogger() *logging.Logger {
	return logging.NewLogger(&logging.Config{Level: "error", Service: "test"})
}

func testMetrics() *monitoring.Metrics {
	return monitoring.NewMetrics(prometheus.NewRegistry())
}

func TestEtherscanVerifiedContract(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "100", r.URL.Query().Get("chainid"))
		assert.Equal(t, "contract", r.URL.Query().Get("module"))
		assert.Equal(t, "getsourcecode", r.URL.Query().Get("action"))
		assert.Equal(t, testAddress, r.URL.Query().Get("address"))

		json.NewEncoder(w).Encode(map[string]any{
			"status":  "1",
			"message": "OK",
			"result": []map[string]string{{
				"ContractName": "GnosisSafe",
				"ABI":          `[{"name": "execTransaction", "type": "function"}]`,
				"Proxy":        "0",
			}},
		})
	}))
	defer server.Close()

	provider := NewEtherscanProvider("key", 5, time.Second)
	provider.baseURL = server.URL

	metadata, err := provider.GetContractMetadata(context.Background(), testAddress, 100)
	require.NoError(t, err)
	assert.Equal(t, "GnosisSafe", metadata.Name)
	assert.JSONEq(t, `[{"name": "execTransaction", "type": "function"}]`, string(metadata.AbiJSON))
	assert.Empty(t, metadata.Implementation)
}

func TestEtherscanUnverifiedContract(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"status":  "0",
			"message": "NOTOK",
			"result":  []map[string]string{},
		})
	}))
	defer server.Close()

	provider := NewEtherscanProvider("key", 5, time.Second)
	provider.baseURL = server.URL

	_, err := provider.GetContractMetadata(context.Background(), testAddress, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEtherscanProxyImplementation(t *testing.T) {
	implementation := "0xd9Db270c1B5E3Bd161E8c8503c55cEABeE709552"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"status": "1",
			"result": []map[string]string{{
				"ContractName":   "GnosisSafeProxy",
				"ABI":            `[]`,
				"Proxy":          "1",
				"Implementation": implementation,
			}},
		})
	}))
	defer server.Close()

	provider := NewEtherscanProvider("key", 5, time.Second)
	provider.baseURL = server.URL

	metadata, err := provider.GetContractMetadata(context.Background(), testAddress, 1)
	require.NoError(t, err)
	assert.Equal(t, implementation, metadata.Implementation)
}

func TestSourcifyMetadataFile(t *testing.T) {
	metadataJSON := `{
		"output": {"abi": [{"name": "transfer", "type": "function"}]},
		"settings": {"compilationTarget": {"contracts/Token.sol": "Token"}}
	}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/files/any/1/"+testAddress)
		json.NewEncoder(w).Encode(map[string]any{
			"status": "full",
			"files": []map[string]string{
				{"name": "Token.sol", "content": "contract Token {}"},
				{"name": "metadata.json", "content": metadataJSON},
			},
		})
	}))
	defer server.Close()

	provider := NewSourcifyProvider(time.Second)
	provider.baseURL = server.URL

	metadata, err := provider.GetContractMetadata(context.Background(), testAddress, 1)
	require.NoError(t, err)
	assert.Equal(t, "Token", metadata.Name)
	assert.JSONEq(t, `[{"name": "transfer", "type": "function"}]`, string(metadata.AbiJSON))
}

func TestSourcifyNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	provider := NewSourcifyProvider(time.Second)
	provider.baseURL = server.URL

	_, err := provider.GetContractMetadata(context.Background(), testAddress, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBlockscoutUnsupportedChain(t *testing.T) {
	provider := NewBlockscoutProvider("", time.Second)

	_, err := provider.GetContractMetadata(context.Background(), testAddress, 424242)
	assert.ErrorIs(t, err, domain.ErrChainNotSupported)
}

func TestBlockscoutSmartContract(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"address": map[string]any{
					"smartContract": map[string]string{
						"name": "MultiSend",
						"abi":  `[{"name": "multiSend", "type": "function"}]`,
					},
				},
			},
		})
	}))
	defer server.Close()

	provider := NewBlockscoutProvider("", time.Second)
	provider.chains = map[int64]string{100: server.URL}

	metadata, err := provider.GetContractMetadata(context.Background(), testAddress, 100)
	require.NoError(t, err)
	assert.Equal(t, "MultiSend", metadata.Name)
}

type stubProvider struct {
	name     string
	metadata *ContractMetadata
	err      error
	calls    int
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) GetContractMetadata(ctx context.Context, address string, chainID int64) (*ContractMetadata, error) {
	s.calls++
	return s.metadata, s.err
}

func TestPoolPrefersEarlierProvider(t *testing.T) {
	first := &stubProvider{name: "etherscan", metadata: &ContractMetadata{Name: "First"}}
	second := &stubProvider{name: "sourcify", metadata: &ContractMetadata{Name: "Second"}}

	pool := NewPool([]MetadataProvider{first, second}, nil, testLogger(), testMetrics())

	enhanced, err := pool.GetContractMetadata(context.Background(), testAddress, 1)
	require.NoError(t, err)
	assert.Equal(t, "First", enhanced.Name)
	assert.Equal(t, "etherscan", enhanced.Source)
	assert.Equal(t, 0, second.calls)
}

func TestPoolFallsThroughMissesAndErrors(t *testing.T) {
	first := &stubProvider{name: "etherscan", err: domain.ErrNotFound}
	second := &stubProvider{name: "sourcify", err: assert.AnError}
	third := &stubProvider{name: "blockscout", metadata: &ContractMetadata{Name: "Third"}}

	pool := NewPool([]MetadataProvider{first, second, third}, nil, testLogger(), testMetrics())

	enhanced, err := pool.GetContractMetadata(context.Background(), testAddress, 1)
	require.NoError(t, err)
	assert.Equal(t, "blockscout", enhanced.Source)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
}

func TestPoolAllMissesReturnsNotFound(t *testing.T) {
	first := &stubProvider{name: "etherscan", err: domain.ErrNotFound}
	second := &stubProvider{name: "blockscout", err: domain.ErrChainNotSupported}

	pool := NewPool([]MetadataProvider{first, second}, nil, testLogger(), testMetrics())

	_, err := pool.GetContractMetadata(context.Background(), testAddress, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
