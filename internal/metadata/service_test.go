package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safeutils/safe-decoder-service/internal/domain"
	"github.com/safeutils/safe-decoder-service/internal/infrastructure/providers"
	"github.com/safeutils/safe-decoder-service/shared/logging"
	"github.com/safeutils/safe-decoder-service/shared/monitoring"
)

var (
	proxyAddress = common.HexToAddress("0xA77DE01e157f9f57C7c4A326eeE9C4874D0598b6")
	implAddress  = common.HexToAddress("0x4350c99B0fbB011ccB013BB4Ce75732eFC9A02dd")
)

type fakeFetcher struct {
	metadata map[string]*providers.EnhancedContractMetadata
	calls    int
}

func (f *fakeFetcher) GetContractMetadata(ctx context.Context, address string, chainID int64) (*providers.EnhancedContractMetadata, error) {
	f.calls++
	if m, ok := f.metadata[address]; ok {
		return m, nil
	}
	return nil, domain.ErrNotFound
}

type fakeAttemptGate struct {
	exhausted map[string]bool
}

func (g *fakeAttemptGate) key(address string, chainID int64, maxRetries int) string {
	return fmt.Sprintf("%s:%d:%d", address, chainID, maxRetries)
}

func (g *fakeAttemptGate) ShouldAttempt(ctx context.Context, address string, chainID int64, maxRetries int) (bool, error) {
	return !g.exhausted[g.key(address, chainID, maxRetries)], nil
}

func (g *fakeAttemptGate) MarkExhausted(ctx context.Context, address string, chainID int64, maxRetries int) error {
	g.exhausted[g.key(address, chainID, maxRetries)] = true
	return nil
}

type fakeInvalidator struct {
	invalidated []string
}

func (i *fakeInvalidator) Invalidate(ctx context.Context, address string) error {
	i.invalidated = append(i.invalidated, address)
	return nil
}

type enqueuedTask struct {
	address          string
	chainID          int64
	skipAttemptCheck bool
}

type fakeEnqueuer struct {
	tasks []enqueuedTask
}

func (e *fakeEnqueuer) EnqueueProcessMetadata(ctx context.Context, address string, chainID int64, skipAttemptCheck bool) error {
	e.tasks = append(e.tasks, enqueuedTask{address, chainID, skipAttemptCheck})
	return nil
}

type memContractRepo struct {
	contracts []*domain.Contract
	nextID    int64
}

func (r *memContractRepo) find(address []byte, chainID int64) *domain.Contract {
	for _, c := range r.contracts {
		if bytes.Equal(c.Address, address) && c.ChainID == chainID {
			return c
		}
	}
	return nil
}

func (r *memContractRepo) Get(ctx context.Context, address []byte, chainID int64) (*domain.Contract, error) {
	if c := r.find(address, chainID); c != nil {
		return c, nil
	}
	return nil, domain.ErrNotFound
}

func (r *memContractRepo) GetOrCreate(ctx context.Context, address []byte, chainID int64) (*domain.Contract, bool, error) {
	if c := r.find(address, chainID); c != nil {
		return c, false, nil
	}
	r.nextID++
	c := &domain.Contract{ID: r.nextID, Address: address, ChainID: chainID}
	r.contracts = append(r.contracts, c)
	return c, true, nil
}

func (r *memContractRepo) Update(ctx context.Context, contract *domain.Contract) error {
	if c := r.find(contract.Address, contract.ChainID); c != nil {
		*c = *contract
		return nil
	}
	return domain.ErrNotFound
}

func (r *memContractRepo) UpdateInfo(ctx context.Context, address []byte, info domain.ContractInfo) (int64, error) {
	return 0, nil
}

func (r *memContractRepo) StreamWithoutAbi(ctx context.Context, maxRetries int, fn func(*domain.Contract) error) error {
	for _, c := range r.contracts {
		if !c.HasAbi() && c.FetchRetries <= maxRetries {
			if err := fn(c); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *memContractRepo) StreamProxies(ctx context.Context, fn func(*domain.Contract) error) error {
	return nil
}

func (r *memContractRepo) AbiJSONFor(ctx context.Context, address []byte, chainID *int64) (json.RawMessage, error) {
	return nil, domain.ErrNotFound
}

func (r *memContractRepo) List(ctx context.Context, filter domain.ContractFilter) (*domain.ContractPage, error) {
	return &domain.ContractPage{}, nil
}

type memAbiRepo struct {
	abis []*domain.Abi
}

func (r *memAbiRepo) GetByHash(ctx context.Context, hash []byte) (*domain.Abi, error) {
	return nil, domain.ErrNotFound
}

func (r *memAbiRepo) GetOrCreate(ctx context.Context, abiJSON json.RawMessage, relevance int, sourceID int64) (*domain.Abi, error) {
	abi := &domain.Abi{ID: int64(len(r.abis) + 1), AbiJSON: abiJSON, Relevance: relevance, SourceID: sourceID}
	r.abis = append(r.abis, abi)
	return abi, nil
}

func (r *memAbiRepo) StreamByRelevanceAsc(ctx context.Context, fn func(*domain.Abi) error) error {
	return nil
}

func (r *memAbiRepo) StreamCreatedAfter(ctx context.Context, after time.Time, fn func(*domain.Abi) error) error {
	return nil
}

func (r *memAbiRepo) LastCreated(ctx context.Context) (time.Time, error) {
	return time.Time{}, nil
}

type memSourceRepo struct {
	sources []*domain.AbiSource
}

func (r *memSourceRepo) GetOrCreate(ctx context.Context, name, url string) (*domain.AbiSource, error) {
	for _, s := range r.sources {
		if s.Name == name && s.URL == url {
			return s, nil
		}
	}
	s := &domain.AbiSource{ID: int64(len(r.sources) + 1), Name: name, URL: url}
	r.sources = append(r.sources, s)
	return s, nil
}

type fixture struct {
	service     *Service
	fetcher     *fakeFetcher
	attempts    *fakeAttemptGate
	invalidator *fakeInvalidator
	enqueuer    *fakeEnqueuer
	contracts   *memContractRepo
	abis        *memAbiRepo
}

func newFixture(metadata map[string]*providers.EnhancedContractMetadata) *fixture {
	f := &fixture{
		fetcher:     &fakeFetcher{metadata: metadata},
		attempts:    &fakeAttemptGate{exhausted: map[string]bool{}},
		invalidator: &fakeInvalidator{},
		enqueuer:    &fakeEnqueuer{},
		contracts:   &memContractRepo{},
		abis:        &memAbiRepo{},
	}
	f.service = NewService(
		f.fetcher,
		f.contracts,
		f.abis,
		&memSourceRepo{},
		f.attempts,
		f.invalidator,
		f.enqueuer,
		logging.NewLogger(&logging.Config{Level: "error", Service: "test"}),
		monitoring.NewMetrics(prometheus.NewRegistry()),
	)
	return f
}

func verifiedMetadata(address common.Address, implementation string) *providers.EnhancedContractMetadata {
	return &providers.EnhancedContractMetadata{
		Address: address.Hex(),
		ChainID: 1,
		Source:  "etherscan",
		ContractMetadata: &providers.ContractMetadata{
			Name:           "GnosisSafeProxy",
			AbiJSON:        json.RawMessage(`[{"name": "masterCopy", "type": "function", "inputs": []}]`),
			Implementation: implementation,
		},
	}
}

func TestProcessStoresMetadata(t *testing.T) {
	f := newFixture(map[string]*providers.EnhancedContractMetadata{
		proxyAddress.Hex(): verifiedMetadata(proxyAddress, ""),
	})

	stored, err := f.service.Process(context.Background(), proxyAddress.Hex(), 1, false)
	require.NoError(t, err)
	assert.True(t, stored)

	contract := f.contracts.find(proxyAddress.Bytes(), 1)
	require.NotNil(t, contract)
	assert.True(t, contract.HasAbi())
	require.NotNil(t, contract.Name)
	assert.Equal(t, "GnosisSafeProxy", *contract.Name)
	assert.Equal(t, 1, contract.FetchRetries)

	assert.Equal(t, []string{proxyAddress.Hex()}, f.invalidator.invalidated)
	assert.Len(t, f.abis.abis, 1)
	assert.Empty(t, f.enqueuer.tasks)
}

func TestProcessUnknownContractIncrementsRetries(t *testing.T) {
	f := newFixture(nil)

	stored, err := f.service.Process(context.Background(), proxyAddress.Hex(), 1, false)
	require.NoError(t, err)
	assert.False(t, stored)

	contract := f.contracts.find(proxyAddress.Bytes(), 1)
	require.NotNil(t, contract)
	assert.False(t, contract.HasAbi())
	assert.Equal(t, 1, contract.FetchRetries)
}

func TestProcessSkipsWhenBudgetSpent(t *testing.T) {
	f := newFixture(nil)

	// First attempt spends the eager budget.
	_, err := f.service.Process(context.Background(), proxyAddress.Hex(), 1, false)
	require.NoError(t, err)
	require.Equal(t, 1, f.fetcher.calls)

	// Second attempt hits the contract row and marks the negative cache.
	stored, err := f.service.Process(context.Background(), proxyAddress.Hex(), 1, false)
	require.NoError(t, err)
	assert.False(t, stored)
	assert.Equal(t, 1, f.fetcher.calls)

	// Third attempt is stopped by the cache alone.
	_, err = f.service.Process(context.Background(), proxyAddress.Hex(), 1, false)
	require.NoError(t, err)
	assert.Equal(t, 1, f.fetcher.calls)
}

func TestProcessSkipAttemptCheckBypassesGate(t *testing.T) {
	f := newFixture(nil)
	require.NoError(t, f.attempts.MarkExhausted(context.Background(), proxyAddress.Hex(), 1, 0))

	_, err := f.service.Process(context.Background(), proxyAddress.Hex(), 1, true)
	require.NoError(t, err)
	assert.Equal(t, 1, f.fetcher.calls)
}

func TestProcessSkipsContractWithAbi(t *testing.T) {
	f := newFixture(nil)
	abiID := int64(7)
	f.contracts.contracts = append(f.contracts.contracts, &domain.Contract{
		ID: 1, Address: proxyAddress.Bytes(), ChainID: 1, AbiID: &abiID,
	})

	stored, err := f.service.Process(context.Background(), proxyAddress.Hex(), 1, false)
	require.NoError(t, err)
	assert.False(t, stored)
	assert.Equal(t, 0, f.fetcher.calls)
	assert.True(t, f.attempts.exhausted[f.attempts.key(proxyAddress.Hex(), 1, 0)])
}

func TestProcessProxyEnqueuesImplementation(t *testing.T) {
	f := newFixture(map[string]*providers.EnhancedContractMetadata{
		proxyAddress.Hex(): verifiedMetadata(proxyAddress, implAddress.Hex()),
	})

	stored, err := f.service.Process(context.Background(), proxyAddress.Hex(), 1, false)
	require.NoError(t, err)
	assert.True(t, stored)

	contract := f.contracts.find(proxyAddress.Bytes(), 1)
	require.NotNil(t, contract)
	assert.Equal(t, implAddress.Bytes(), contract.Implementation)

	require.Len(t, f.enqueuer.tasks, 1)
	assert.Equal(t, implAddress.Hex(), f.enqueuer.tasks[0].address)
	assert.Equal(t, int64(1), f.enqueuer.tasks[0].chainID)
	assert.False(t, f.enqueuer.tasks[0].skipAttemptCheck)
}
