package decoder

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/safeutils/safe-decoder-service/internal/domain"
	"github.com/safeutils/safe-decoder-service/shared/logging"
	"github.com/safeutils/safe-decoder-service/shared/monitoring"
)

// execTransactionSelector is the Safe execTransaction(address,uint256,
// bytes,uint8,uint256,uint256,uint256,address,address,bytes) selector.
var execTransactionSelector = [4]byte{0x6a, 0x76, 0x12, 0x02}

const contractAbiCacheSize = 2048

type contractKey struct {
	address  common.Address
	chainID  int64
	anyChain bool
}

// Service is the in-memory selector registry. The global selector table is
// built from every stored ABI at startup and extended by hot reloads;
// per-contract ABIs are resolved lazily and memoized in a fixed-size LRU.
type Service struct {
	abis      domain.AbiRepository
	contracts domain.ContractRepository
	logger    *logging.Logger
	metrics   *monitoring.Metrics

	mu             sync.RWMutex
	fnSelectors    map[[4]byte]*Function
	lastAbiCreated time.Time

	// multisendSelectors is immutable after construction.
	multisendSelectors map[[4]byte]*Function

	contractAbis *lru.Cache[contractKey, *contractAbi]
}

// NewService creates a decoder over the given repositories. Call Init
// before decoding.
func NewService(abis domain.AbiRepository, contracts domain.ContractRepository, logger *logging.Logger, metrics *monitoring.Metrics) (*Service, error) {
	multisend, err := parseAbi(json.RawMessage(multiSendAbiJSON))
	if err != nil {
		return nil, fmt.Errorf("parse multisend abi: %w", err)
	}
	cache, err := lru.New[contractKey, *contractAbi](contractAbiCacheSize)
	if err != nil {
		return nil, err
	}
	return &Service{
		abis:               abis,
		contracts:          contracts,
		logger:             logger,
		metrics:            metrics,
		fnSelectors:        make(map[[4]byte]*Function),
		multisendSelectors: multisend.functions,
		contractAbis:       cache,
	}, nil
}

// Init builds the selector table from every stored ABI, ordered so that
// higher relevance ABIs overwrite colliding selectors from lower ones.
func (s *Service) Init(ctx context.Context) error {
	last, err := s.abis.LastCreated(ctx)
	if err != nil {
		return err
	}

	selectors := make(map[[4]byte]*Function)
	loaded := 0
	err = s.abis.StreamByRelevanceAsc(ctx, func(abi *domain.Abi) error {
		parsed, err := parseAbi(abi.AbiJSON)
		if err != nil {
			s.logger.WithError(err).WithField("abi_hash", abi.HexHash()).
				Warn("Skipping unparseable ABI")
			return nil
		}
		for selector, fn := range parsed.functions {
			selectors[selector] = fn
		}
		loaded++
		return nil
	})
	if err != nil {
		return fmt.Errorf("load abis: %w", err)
	}

	s.mu.Lock()
	s.fnSelectors = selectors
	s.lastAbiCreated = last
	s.mu.Unlock()

	s.metrics.AbisLoaded.Add(float64(loaded))
	s.logger.WithFields(map[string]any{
		"abis":      loaded,
		"selectors": len(selectors),
	}).Info("Contract ABIs loaded for decoding")
	return nil
}

// AddAbi extends the selector table with the document's functions without
// rebuilding it. Existing selectors are never overwritten, so decodes
// already holding a reference keep a consistent view. Returns true when at
// least one selector was added.
func (s *Service) AddAbi(doc json.RawMessage) (bool, error) {
	parsed, err := parseAbi(doc)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	added := false
	for selector, fn := range parsed.functions {
		if _, exists := s.fnSelectors[selector]; !exists {
			s.fnSelectors[selector] = fn
			added = true
		}
	}
	return added, nil
}

// LoadNewAbis folds in ABIs stored after the last load. Returns the number
// of ABIs that contributed at least one new selector.
func (s *Service) LoadNewAbis(ctx context.Context) (int, error) {
	s.mu.RLock()
	last := s.lastAbiCreated
	s.mu.RUnlock()

	newLast, err := s.abis.LastCreated(ctx)
	if err != nil {
		return 0, err
	}

	loaded := 0
	visit := func(abi *domain.Abi) error {
		added, err := s.AddAbi(abi.AbiJSON)
		if err != nil {
			s.logger.WithError(err).WithField("abi_hash", abi.HexHash()).
				Warn("Skipping unparseable ABI")
			return nil
		}
		if added {
			loaded++
		}
		return nil
	}

	if last.IsZero() {
		err = s.abis.StreamByRelevanceAsc(ctx, visit)
	} else {
		err = s.abis.StreamCreatedAfter(ctx, last, visit)
	}
	if err != nil {
		return 0, fmt.Errorf("load new abis: %w", err)
	}

	s.mu.Lock()
	s.lastAbiCreated = newLast
	s.mu.Unlock()

	if loaded > 0 {
		s.metrics.AbisLoaded.Add(float64(loaded))
	}
	return loaded, nil
}

// contractAbiFor returns the parsed ABI stored for the contract, or nil
// when none is known. chainID nil means "any chain, lowest id first".
func (s *Service) contractAbiFor(ctx context.Context, address common.Address, chainID *int64) (*contractAbi, error) {
	key := contractKey{address: address, anyChain: chainID == nil}
	if chainID != nil {
		key.chainID = *chainID
	}
	if cached, ok := s.contractAbis.Get(key); ok {
		return cached, nil
	}

	doc, err := s.contracts.AbiJSONFor(ctx, address.Bytes(), chainID)
	if errors.Is(err, domain.ErrNotFound) {
		s.contractAbis.Add(key, nil)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	parsed, err := parseAbi(doc)
	if err != nil {
		s.logger.WithError(err).WithField("address", address.Hex()).
			Warn("Stored contract ABI does not parse")
		s.contractAbis.Add(key, nil)
		return nil, nil
	}
	s.contractAbis.Add(key, parsed)
	return parsed, nil
}

// resolveContractAbi looks up the contract's ABI on the requested chain,
// falling back to any chain when the exact chain has none.
func (s *Service) resolveContractAbi(ctx context.Context, address common.Address, chainID *int64) (*contractAbi, error) {
	entry, err := s.contractAbiFor(ctx, address, chainID)
	if err != nil || entry != nil {
		return entry, err
	}
	if chainID != nil {
		return s.contractAbiFor(ctx, address, nil)
	}
	return nil, nil
}

// GetAbiFunction returns the ABI function matching the calldata selector,
// preferring the contract's own ABI over the global table when an address
// is supplied. Unknown selectors resolve to the contract's fallback
// function when it has one. Returns nil when nothing matches.
func (s *Service) GetAbiFunction(ctx context.Context, data []byte, address *common.Address, chainID *int64) (*Function, error) {
	if len(data) < 4 {
		return nil, nil
	}
	var selector [4]byte
	copy(selector[:], data[:4])

	s.mu.RLock()
	global, known := s.fnSelectors[selector]
	s.mu.RUnlock()

	if known {
		if address != nil {
			entry, err := s.resolveContractAbi(ctx, *address, chainID)
			if err != nil {
				return nil, err
			}
			if entry != nil {
				if specific, ok := entry.functions[selector]; ok {
					return specific, nil
				}
			}
		}
		return global, nil
	}

	if address != nil {
		entry, err := s.resolveContractAbi(ctx, *address, chainID)
		if err != nil {
			return nil, err
		}
		if entry != nil && entry.hasFallback {
			return fallbackFunction, nil
		}
	}
	return nil, nil
}

// decodeData decodes calldata into the matched function name and its
// normalized parameters. Returns domain.ErrCannotDecode when no function
// matches and domain.ErrUnexpectedDecoding when the matched ABI rejects
// the payload.
func (s *Service) decodeData(ctx context.Context, data []byte, address *common.Address, chainID *int64) (string, []*ParameterDecoded, error) {
	if len(data) == 0 {
		return "", nil, domain.ErrCannotDecode
	}

	fn, err := s.GetAbiFunction(ctx, data, address, chainID)
	if err != nil {
		return "", nil, err
	}
	if fn == nil {
		return "", nil, fmt.Errorf("%w: 0x%s", domain.ErrCannotDecode, hex.EncodeToString(data))
	}

	params, err := fn.Decode(data[4:])
	if err != nil {
		s.logger.WithError(err).WithField("data", "0x"+hex.EncodeToString(data)).
			Warn("Cannot decode calldata")
		return "", nil, fmt.Errorf("%w: %v", domain.ErrUnexpectedDecoding, err)
	}
	return fn.Name, params, nil
}

// DecodeTransactionWithTypes decodes calldata into the function name and
// its typed parameters, including nested MultiSend and execTransaction
// payloads.
func (s *Service) DecodeTransactionWithTypes(ctx context.Context, data []byte, address *common.Address, chainID *int64) (string, []*ParameterDecoded, error) {
	method, params, err := s.decodeData(ctx, data, address, chainID)
	if err != nil {
		return "", nil, err
	}
	if err := s.decodeNestedParameters(ctx, data, params, chainID); err != nil {
		return "", nil, err
	}
	return method, params, nil
}

// GetDataDecoded decodes calldata for serialization, mapping decode
// failures to nil instead of errors. Infrastructure errors still
// propagate.
func (s *Service) GetDataDecoded(ctx context.Context, data []byte, address *common.Address, chainID *int64) (*DataDecoded, error) {
	if len(data) == 0 {
		return nil, nil
	}
	method, params, err := s.DecodeTransactionWithTypes(ctx, data, address, chainID)
	if errors.Is(err, domain.ErrCannotDecode) || errors.Is(err, domain.ErrUnexpectedDecoding) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &DataDecoded{Method: method, Parameters: params}, nil
}

// decodeNestedParameters fills value_decoded for MultiSend batches and
// for the inner data of a Safe execTransaction call.
func (s *Service) decodeNestedParameters(ctx context.Context, data []byte, params []*ParameterDecoded, chainID *int64) error {
	var selector [4]byte
	copy(selector[:], data[:4])

	if _, isMultisend := s.multisendSelectors[selector]; isMultisend && len(params) > 0 {
		decoded, err := s.DecodeMultisendData(ctx, data, chainID)
		if err != nil {
			return err
		}
		if decoded != nil {
			params[0].ValueDecoded = decoded
		}
		return nil
	}

	if selector == execTransactionSelector && len(params) > 2 {
		innerHex, _ := params[2].Value.(string)
		inner := common.FromHex(innerHex)
		if len(inner) == 0 {
			return nil
		}
		var to *common.Address
		if toHex, ok := params[0].Value.(string); ok && common.IsHexAddress(toHex) {
			addr := common.HexToAddress(toHex)
			to = &addr
		}
		decoded, err := s.GetDataDecoded(ctx, inner, to, chainID)
		if err != nil {
			return err
		}
		if decoded != nil {
			params[2].ValueDecoded = decoded
		}
	}
	return nil
}

// DecodeMultisendData decodes a MultiSend batch into its inner
// transactions, each recursively decoded against its own target address.
// Malformed batches yield nil with a warning, not an error.
func (s *Service) DecodeMultisendData(ctx context.Context, data []byte, chainID *int64) ([]*MultisendDecoded, error) {
	txs, err := s.ParseMultiSendCalldata(data)
	if err != nil {
		s.logger.WithError(err).WithField("data", "0x"+hex.EncodeToString(data)).
			Warn("Problem decoding multisend transaction")
		return nil, nil
	}

	decoded := make([]*MultisendDecoded, 0, len(txs))
	for _, tx := range txs {
		to := tx.To
		dataDecoded, err := s.GetDataDecoded(ctx, tx.Data, &to, chainID)
		if err != nil {
			return nil, err
		}
		var dataHex *string
		if len(tx.Data) > 0 {
			h := "0x" + hex.EncodeToString(tx.Data)
			dataHex = &h
		}
		decoded = append(decoded, &MultisendDecoded{
			Operation:   int(tx.Operation),
			To:          tx.To.Hex(),
			Value:       tx.Value.String(),
			Data:        dataHex,
			DataDecoded: dataDecoded,
		})
	}
	return decoded, nil
}

// GetDecodingAccuracy classifies how specific the ABI match for the
// calldata is, given the optional target contract and chain.
func (s *Service) GetDecodingAccuracy(ctx context.Context, data []byte, address *common.Address, chainID *int64) (Accuracy, error) {
	if len(data) < 4 {
		return AccuracyNoMatch, nil
	}
	var selector [4]byte
	copy(selector[:], data[:4])

	s.mu.RLock()
	_, known := s.fnSelectors[selector]
	s.mu.RUnlock()
	if !known {
		return AccuracyNoMatch, nil
	}

	if address != nil {
		if chainID != nil {
			entry, err := s.contractAbiFor(ctx, *address, chainID)
			if err != nil {
				return "", err
			}
			if entry != nil {
				if _, ok := entry.functions[selector]; ok {
					return AccuracyFullMatch, nil
				}
			}
		}
		entry, err := s.contractAbiFor(ctx, *address, nil)
		if err != nil {
			return "", err
		}
		if entry != nil {
			return AccuracyPartialMatch, nil
		}
	}
	return AccuracyOnlyFunctionMatch, nil
}
