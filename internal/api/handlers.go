// Package api exposes the decoder and the contract registry over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/safeutils/safe-decoder-service/internal/decoder"
	"github.com/safeutils/safe-decoder-service/internal/domain"
	"github.com/safeutils/safe-decoder-service/shared/logging"
	"github.com/safeutils/safe-decoder-service/shared/monitoring"
)

// calldataPattern is the accepted shape of the data field: 0x-prefixed,
// lowercase, whole bytes.
var calldataPattern = regexp.MustCompile(`^0x(?:[0-9a-f]{2})*$`)

// CalldataDecoder is the slice of the decoder the HTTP surface needs.
type CalldataDecoder interface {
	LoadNewAbis(ctx context.Context) (int, error)
	DecodeTransactionWithTypes(ctx context.Context, data []byte, address *common.Address, chainID *int64) (string, []*decoder.ParameterDecoded, error)
	GetDecodingAccuracy(ctx context.Context, data []byte, address *common.Address, chainID *int64) (decoder.Accuracy, error)
}

// ResponseCache stores rendered responses for the per-address contract
// endpoint.
type ResponseCache interface {
	Get(ctx context.Context, address, path string, params map[string]string) (string, error)
	Set(ctx context.Context, address, path string, params map[string]string, body string) error
}

// Handlers groups the HTTP handlers and their dependencies.
type Handlers struct {
	contracts   domain.ContractRepository
	decoder     CalldataDecoder
	cache       ResponseCache
	logger      *logging.Logger
	metrics     *monitoring.Metrics
	version     string
	logoBaseURL string
}

// NewHandlers wires the HTTP handlers.
func NewHandlers(
	contracts domain.ContractRepository,
	calldataDecoder CalldataDecoder,
	responseCache ResponseCache,
	logger *logging.Logger,
	metrics *monitoring.Metrics,
	version string,
	logoBaseURL string,
) *Handlers {
	return &Handlers{
		contracts:   contracts,
		decoder:     calldataDecoder,
		cache:       responseCache,
		logger:      logger,
		metrics:     metrics,
		version:     version,
		logoBaseURL: logoBaseURL,
	}
}

// Health reports liveness.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, "OK")
}

// About reports the running service version.
func (h *Handlers) About(c *gin.Context) {
	c.JSON(http.StatusOK, AboutResponse{Version: h.version})
}

// ListContracts serves GET /api/v1/contracts: a paginated listing filtered
// by chain_ids and the trusted_for_delegate_call flag.
func (h *Handlers) ListContracts(c *gin.Context) {
	query := c.Request.URL.Query()
	limit, offset, err := parsePagination(query)
	if err != nil {
		unprocessable(c, err)
		return
	}
	chainIDs, err := parseChainIDs(query)
	if err != nil {
		unprocessable(c, err)
		return
	}
	trusted, err := parseOptionalBool(query.Get("trusted_for_delegate_call"))
	if err != nil {
		unprocessable(c, err)
		return
	}

	page, err := h.contracts.List(c.Request.Context(), domain.ContractFilter{
		ChainIDs:               chainIDs,
		TrustedForDelegateCall: trusted,
		Limit:                  limit,
		Offset:                 offset,
	})
	if err != nil {
		h.logger.WithError(err).Error("Listing contracts failed")
		internalError(c)
		return
	}

	c.JSON(http.StatusOK, paginate(proxyAwareURL(c.Request), limit, offset,
		page.Total, renderContracts(page.Contracts, h.logoBaseURL)))
}

// GetContractsByAddress serves GET /api/v1/contracts/:address: the per-chain
// rows for one checksummed address, served from the response cache when
// possible.
func (h *Handlers) GetContractsByAddress(c *gin.Context) {
	address := c.Param("address")
	if !isChecksumAddress(address) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Detail: "Address is not checksummed"})
		return
	}

	query := c.Request.URL.Query()
	limit, offset, err := parsePagination(query)
	if err != nil {
		unprocessable(c, err)
		return
	}
	chainIDs, err := parseChainIDs(query)
	if err != nil {
		unprocessable(c, err)
		return
	}

	ctx := c.Request.Context()
	path := c.Request.URL.Path
	params := cacheParams(query)

	cached, err := h.cache.Get(ctx, address, path, params)
	if err != nil {
		h.logger.WithError(err).Warn("Contract cache read failed")
	}
	if cached != "" {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(cached))
		return
	}

	page, err := h.contracts.List(ctx, domain.ContractFilter{
		Address:  common.HexToAddress(address).Bytes(),
		ChainIDs: chainIDs,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		h.logger.WithError(err).Error("Listing contracts by address failed")
		internalError(c)
		return
	}

	response := paginate(proxyAwareURL(c.Request), limit, offset,
		page.Total, renderContracts(page.Contracts, h.logoBaseURL))
	body, err := json.Marshal(response)
	if err != nil {
		internalError(c)
		return
	}
	if err := h.cache.Set(ctx, address, path, params, string(body)); err != nil {
		h.logger.WithError(err).Warn("Contract cache write failed")
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

// DecodeData serves POST /api/v1/data-decoder.
func (h *Handlers) DecodeData(c *gin.Context) {
	var request DataDecoderRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		unprocessable(c, errors.New("invalid request body"))
		return
	}
	if !calldataPattern.MatchString(request.Data) {
		unprocessable(c, errors.New("data must be a 0x-prefixed lowercase hex string"))
		return
	}
	if request.ChainID != nil && request.To == nil {
		unprocessable(c, errors.New("chainId requires to"))
		return
	}
	var address *common.Address
	if request.To != nil {
		if !common.IsHexAddress(*request.To) {
			unprocessable(c, errors.New("to is not a valid address"))
			return
		}
		parsed := common.HexToAddress(*request.To)
		address = &parsed
	}

	ctx := c.Request.Context()
	if _, err := h.decoder.LoadNewAbis(ctx); err != nil {
		h.logger.WithError(err).Warn("Loading new ABIs before decode failed")
	}

	data := common.FromHex(request.Data)
	start := time.Now()
	method, parameters, err := h.decoder.DecodeTransactionWithTypes(ctx, data, address, request.ChainID)
	h.metrics.DecodeDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrCannotDecode):
			c.JSON(http.StatusNotFound, ErrorResponse{Detail: "Cannot find function selector to decode data"})
		case errors.Is(err, domain.ErrUnexpectedDecoding):
			h.logger.WithError(err).Error("Unexpected problem decoding data")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Detail: "Unexpected problem decoding data"})
		default:
			h.logger.WithError(err).Error("Decoding request failed")
			internalError(c)
		}
		return
	}

	accuracy, err := h.decoder.GetDecodingAccuracy(ctx, data, address, request.ChainID)
	if err != nil {
		h.logger.WithError(err).Error("Resolving decoding accuracy failed")
		internalError(c)
		return
	}
	h.metrics.DecoderRequests.WithLabelValues(string(accuracy)).Inc()

	if parameters == nil {
		parameters = []*decoder.ParameterDecoded{}
	}
	c.JSON(http.StatusOK, DataDecodedResponse{
		Method:     method,
		Parameters: parameters,
		Accuracy:   accuracy,
	})
}

func parseChainIDs(query url.Values) ([]int64, error) {
	values := query["chain_ids"]
	chainIDs := make([]int64, 0, len(values))
	for _, raw := range values {
		chainID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, errors.New("chain_ids must be integers")
		}
		chainIDs = append(chainIDs, chainID)
	}
	return chainIDs, nil
}

func parseOptionalBool(raw string) (*bool, error) {
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, errors.New("trusted_for_delegate_call must be a boolean")
	}
	return &value, nil
}

// cacheParams flattens the query into the shape the response cache keys on.
// Repeated parameters are joined so every spelling of the same filter set
// shares a cache entry.
func cacheParams(query url.Values) map[string]string {
	params := make(map[string]string, len(query))
	for key, values := range query {
		params[key] = strings.Join(values, ",")
	}
	return params
}

func isChecksumAddress(address string) bool {
	return common.IsHexAddress(address) && common.HexToAddress(address).Hex() == address
}

func unprocessable(c *gin.Context, err error) {
	c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Detail: err.Error()})
}

func internalError(c *gin.Context) {
	c.JSON(http.StatusInternalServerError, ErrorResponse{Detail: "Internal server error"})
}
