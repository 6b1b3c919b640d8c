package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safeutils/safe-decoder-service/internal/decoder"
	"github.com/safeutils/safe-decoder-service/internal/domain"
	"github.com/safeutils/safe-decoder-service/shared/logging"
	"github.com/safeutils/safe-decoder-service/shared/monitoring"
)

const checksummedAddress = "0x1b9a0DA11a5caCE4e7035993Cbb2E4B1B3b164Cf"

type stubContractRepo struct {
	page    *domain.ContractPage
	listErr error
	filters []domain.ContractFilter
}

func (r *stubContractRepo) Get(ctx context.Context, address []byte, chainID int64) (*domain.Contract, error) {
	return nil, domain.ErrNotFound
}

func (r *stubContractRepo) GetOrCreate(ctx context.Context, address []byte, chainID int64) (*domain.Contract, bool, error) {
	return nil, false, domain.ErrNotFound
}

func (r *stubContractRepo) Update(ctx context.Context, contract *domain.Contract) error {
	return nil
}

func (r *stubContractRepo) UpdateInfo(ctx context.Context, address []byte, info domain.ContractInfo) (int64, error) {
	return 0, nil
}

func (r *stubContractRepo) StreamWithoutAbi(ctx context.Context, maxRetries int, fn func(*domain.Contract) error) error {
	return nil
}

func (r *stubContractRepo) StreamProxies(ctx context.Context, fn func(*domain.Contract) error) error {
	return nil
}

func (r *stubContractRepo) AbiJSONFor(ctx context.Context, address []byte, chainID *int64) (json.RawMessage, error) {
	return nil, domain.ErrNotFound
}

func (r *stubContractRepo) List(ctx context.Context, filter domain.ContractFilter) (*domain.ContractPage, error) {
	r.filters = append(r.filters, filter)
	if r.listErr != nil {
		return nil, r.listErr
	}
	if r.page != nil {
		return r.page, nil
	}
	return &domain.ContractPage{}, nil
}

type stubDecoder struct {
	method    string
	params    []*decoder.ParameterDecoded
	accuracy  decoder.Accuracy
	decodeErr error
	loads     int
}

func (d *stubDecoder) LoadNewAbis(ctx context.Context) (int, error) {
	d.loads++
	return 0, nil
}

func (d *stubDecoder) DecodeTransactionWithTypes(ctx context.Context, data []byte, address *common.Address, chainID *int64) (string, []*decoder.ParameterDecoded, error) {
	if d.decodeErr != nil {
		return "", nil, d.decodeErr
	}
	return d.method, d.params, nil
}

func (d *stubDecoder) GetDecodingAccuracy(ctx context.Context, data []byte, address *common.Address, chainID *int64) (decoder.Accuracy, error) {
	return d.accuracy, nil
}

type memCache struct {
	entries map[string]string
}

func newMemCache() *memCache {
	return &memCache{entries: map[string]string{}}
}

func (c *memCache) key(address, path string, params map[string]string) string {
	return strings.ToLower(address) + "|" + path + "|" +
		params["limit"] + "|" + params["offset"] + "|" + params["chain_ids"]
}

func (c *memCache) Get(ctx context.Context, address, path string, params map[string]string) (string, error) {
	return c.entries[c.key(address, path, params)], nil
}

func (c *memCache) Set(ctx context.Context, address, path string, params map[string]string, body string) error {
	c.entries[c.key(address, path, params)] = body
	return nil
}

func newTestRouter(t *testing.T, repo *stubContractRepo, dec *stubDecoder, cache ResponseCache) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if cache == nil {
		cache = newMemCache()
	}
	handlers := NewHandlers(
		repo,
		dec,
		cache,
		logging.NewLogger(&logging.Config{Level: "error", Service: "test"}),
		monitoring.NewMetrics(prometheus.NewRegistry()),
		"1.2.3",
		"https://assets.example.org/logos",
	)
	return NewRouter(handlers, "test")
}

func perform(router *gin.Engine, method, target, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	request := httptest.NewRequest(method, target, reader)
	if body != "" {
		request.Header.Set("Content-Type", "application/json")
	}
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	return recorder
}

func contractPage() *domain.ContractPage {
	name := "GnosisSafeProxy"
	abiID := int64(7)
	projectID := int64(2)
	modified := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	detail := &domain.ContractDetail{
		Contract: domain.Contract{
			ID:        1,
			Address:   common.HexToAddress(checksummedAddress).Bytes(),
			ChainID:   1,
			Name:      &name,
			AbiID:     &abiID,
			ProjectID: &projectID,
			Modified:  modified,
		},
		Abi: &domain.Abi{
			ID:       abiID,
			AbiHash:  []byte{0xde, 0xad, 0xbe, 0xef},
			AbiJSON:  json.RawMessage(`[]`),
			Modified: modified,
		},
		Project: &domain.Project{
			ID:          projectID,
			Description: "Safe smart accounts",
			LogoFile:    "safe.png",
		},
	}
	return &domain.ContractPage{Contracts: []*domain.ContractDetail{detail}, Total: 1}
}

func TestHealthAndAbout(t *testing.T) {
	router := newTestRouter(t, &stubContractRepo{}, &stubDecoder{}, nil)

	response := perform(router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, response.Code)
	assert.Equal(t, `"OK"`, response.Body.String())

	response = perform(router, http.MethodGet, "/api/v1/about", "")
	assert.Equal(t, http.StatusOK, response.Code)
	assert.JSONEq(t, `{"version":"1.2.3"}`, response.Body.String())
}

func TestListContractsSerialization(t *testing.T) {
	repo := &stubContractRepo{page: contractPage()}
	router := newTestRouter(t, repo, &stubDecoder{}, nil)

	response := perform(router, http.MethodGet, "/api/v1/contracts", "")
	require.Equal(t, http.StatusOK, response.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(response.Body.Bytes(), &body))
	assert.EqualValues(t, 1, body["count"])
	assert.Nil(t, body["next"])
	assert.Nil(t, body["previous"])

	results := body["results"].([]any)
	require.Len(t, results, 1)
	contract := results[0].(map[string]any)
	assert.Equal(t, checksummedAddress, contract["address"])
	assert.Equal(t, "GnosisSafeProxy", contract["name"])
	assert.EqualValues(t, 1, contract["chain_id"])

	abi := contract["abi"].(map[string]any)
	assert.Equal(t, "0xdeadbeef", abi["abi_hash"])
	assert.Equal(t, []any{}, abi["abi_json"])

	project := contract["project"].(map[string]any)
	assert.Equal(t, "Safe smart accounts", project["description"])
	assert.Equal(t, "https://assets.example.org/logos/safe.png", project["logo_file"])
}

func TestListContractsPaginationLinks(t *testing.T) {
	repo := &stubContractRepo{page: &domain.ContractPage{Total: 25}}
	router := newTestRouter(t, repo, &stubDecoder{}, nil)

	response := perform(router, http.MethodGet, "/api/v1/contracts?limit=10&offset=10", "")
	require.Equal(t, http.StatusOK, response.Code)

	var body PaginatedResponse[ContractPublic]
	require.NoError(t, json.Unmarshal(response.Body.Bytes(), &body))
	require.NotNil(t, body.Next)
	require.NotNil(t, body.Previous)
	assert.Contains(t, *body.Next, "offset=20")
	assert.Contains(t, *body.Previous, "offset=0")

	require.Len(t, repo.filters, 1)
	assert.Equal(t, 10, repo.filters[0].Limit)
	assert.Equal(t, 10, repo.filters[0].Offset)
}

func TestListContractsForwardsFilters(t *testing.T) {
	repo := &stubContractRepo{}
	router := newTestRouter(t, repo, &stubDecoder{}, nil)

	response := perform(router, http.MethodGet,
		"/api/v1/contracts?chain_ids=1&chain_ids=137&trusted_for_delegate_call=true", "")
	require.Equal(t, http.StatusOK, response.Code)

	require.Len(t, repo.filters, 1)
	assert.Equal(t, []int64{1, 137}, repo.filters[0].ChainIDs)
	require.NotNil(t, repo.filters[0].TrustedForDelegateCall)
	assert.True(t, *repo.filters[0].TrustedForDelegateCall)
}

func TestListContractsRejectsBadQuery(t *testing.T) {
	router := newTestRouter(t, &stubContractRepo{}, &stubDecoder{}, nil)

	for _, target := range []string{
		"/api/v1/contracts?limit=0",
		"/api/v1/contracts?limit=ten",
		"/api/v1/contracts?offset=-1",
		"/api/v1/contracts?chain_ids=mainnet",
		"/api/v1/contracts?trusted_for_delegate_call=maybe",
	} {
		response := perform(router, http.MethodGet, target, "")
		assert.Equal(t, http.StatusUnprocessableEntity, response.Code, target)
	}
}

func TestListContractsCapsLimit(t *testing.T) {
	repo := &stubContractRepo{}
	router := newTestRouter(t, repo, &stubDecoder{}, nil)

	response := perform(router, http.MethodGet, "/api/v1/contracts?limit=500", "")
	require.Equal(t, http.StatusOK, response.Code)
	require.Len(t, repo.filters, 1)
	assert.Equal(t, maxPageSize, repo.filters[0].Limit)
}

func TestContractsByAddressRejectsNonChecksummed(t *testing.T) {
	router := newTestRouter(t, &stubContractRepo{}, &stubDecoder{}, nil)

	response := perform(router, http.MethodGet,
		"/api/v1/contracts/"+strings.ToLower(checksummedAddress), "")
	require.Equal(t, http.StatusBadRequest, response.Code)
	assert.JSONEq(t, `{"detail":"Address is not checksummed"}`, response.Body.String())
}

func TestContractsByAddressUsesResponseCache(t *testing.T) {
	repo := &stubContractRepo{page: contractPage()}
	cache := newMemCache()
	router := newTestRouter(t, repo, &stubDecoder{}, cache)

	first := perform(router, http.MethodGet, "/api/v1/contracts/"+checksummedAddress, "")
	require.Equal(t, http.StatusOK, first.Code)
	require.Len(t, repo.filters, 1)
	assert.Equal(t, common.HexToAddress(checksummedAddress).Bytes(), repo.filters[0].Address)

	second := perform(router, http.MethodGet, "/api/v1/contracts/"+checksummedAddress, "")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Len(t, repo.filters, 1, "second request must be served from the cache")
	assert.Equal(t, first.Body.String(), second.Body.String())
}

func TestDataDecoderValidation(t *testing.T) {
	router := newTestRouter(t, &stubContractRepo{}, &stubDecoder{}, nil)

	for name, body := range map[string]string{
		"not json":           `{"data":`,
		"missing 0x":         `{"data":"12345678"}`,
		"uppercase hex":      `{"data":"0xABCD"}`,
		"odd nibble count":   `{"data":"0xabc"}`,
		"chainId without to": `{"data":"0x","chainId":1}`,
		"to not an address":  `{"data":"0x","to":"safe.eth"}`,
	} {
		response := perform(router, http.MethodPost, "/api/v1/data-decoder", body)
		assert.Equal(t, http.StatusUnprocessableEntity, response.Code, name)
	}
}

func TestDataDecoderNoSelectorMatch(t *testing.T) {
	dec := &stubDecoder{decodeErr: domain.ErrCannotDecode}
	router := newTestRouter(t, &stubContractRepo{}, dec, nil)

	response := perform(router, http.MethodPost, "/api/v1/data-decoder", `{"data":"0x12345678"}`)
	require.Equal(t, http.StatusNotFound, response.Code)
	assert.JSONEq(t, `{"detail":"Cannot find function selector to decode data"}`, response.Body.String())
	assert.Equal(t, 1, dec.loads, "decode must refresh the ABI registry first")
}

func TestDataDecoderUnexpectedProblem(t *testing.T) {
	dec := &stubDecoder{decodeErr: domain.ErrUnexpectedDecoding}
	router := newTestRouter(t, &stubContractRepo{}, dec, nil)

	response := perform(router, http.MethodPost, "/api/v1/data-decoder", `{"data":"0x12345678"}`)
	assert.Equal(t, http.StatusInternalServerError, response.Code)
}

func TestDataDecoderDecodes(t *testing.T) {
	dec := &stubDecoder{
		method: "addOwnerWithThreshold",
		params: []*decoder.ParameterDecoded{
			{Name: "owner", Type: "address", Value: checksummedAddress},
			{Name: "_threshold", Type: "uint256", Value: "1"},
		},
		accuracy: decoder.AccuracyOnlyFunctionMatch,
	}
	router := newTestRouter(t, &stubContractRepo{}, dec, nil)

	response := perform(router, http.MethodPost, "/api/v1/data-decoder", `{"data":"0x0d582f13"}`)
	require.Equal(t, http.StatusOK, response.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(response.Body.Bytes(), &body))
	assert.Equal(t, "addOwnerWithThreshold", body["method"])
	assert.Equal(t, "ONLY_FUNCTION_MATCH", body["accuracy"])

	parameters := body["parameters"].([]any)
	require.Len(t, parameters, 2)
	first := parameters[0].(map[string]any)
	assert.Equal(t, "owner", first["name"])
	assert.Equal(t, checksummedAddress, first["value"])
	assert.NotContains(t, parameters[0], "value_decoded")
}
