package api

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/safeutils/safe-decoder-service/internal/decoder"
	"github.com/safeutils/safe-decoder-service/internal/domain"
)

// AboutResponse describes the running service.
type AboutResponse struct {
	Version string `json:"version"`
}

// ProjectPublic is the project block embedded in contract responses.
type ProjectPublic struct {
	Description string `json:"description"`
	LogoFile    string `json:"logo_file"`
}

// AbiPublic is the ABI block embedded in contract responses. AbiHash is the
// 0x-prefixed hex rendering of the stored hash.
type AbiPublic struct {
	AbiJSON  json.RawMessage `json:"abi_json"`
	AbiHash  string          `json:"abi_hash"`
	Modified time.Time       `json:"modified"`
}

// ContractPublic is one contract row as served by the contract listings.
// The address is rendered EIP-55 checksummed.
type ContractPublic struct {
	Address     string         `json:"address"`
	Name        *string        `json:"name"`
	DisplayName *string        `json:"display_name"`
	ChainID     int64          `json:"chain_id"`
	Project     *ProjectPublic `json:"project"`
	Abi         *AbiPublic     `json:"abi"`
	Modified    time.Time      `json:"modified"`
}

// DataDecoderRequest is the POST /data-decoder body. ChainID narrows the
// contract ABI lookup and is only meaningful together with To.
type DataDecoderRequest struct {
	Data    string  `json:"data"`
	To      *string `json:"to"`
	ChainID *int64  `json:"chainId"`
}

// DataDecodedResponse is the decoded calldata together with the accuracy of
// the match that produced it.
type DataDecodedResponse struct {
	Method     string                      `json:"method"`
	Parameters []*decoder.ParameterDecoded `json:"parameters"`
	Accuracy   decoder.Accuracy            `json:"accuracy"`
}

// ErrorResponse carries a client-facing error message.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

func renderContract(detail *domain.ContractDetail, logoBaseURL string) ContractPublic {
	public := ContractPublic{
		Address:     common.BytesToAddress(detail.Address).Hex(),
		Name:        detail.Name,
		DisplayName: detail.DisplayName,
		ChainID:     detail.ChainID,
		Modified:    detail.Modified,
	}
	if detail.Project != nil {
		public.Project = &ProjectPublic{
			Description: detail.Project.Description,
			LogoFile:    logoURL(logoBaseURL, detail.Project.LogoFile),
		}
	}
	if detail.Abi != nil {
		public.Abi = &AbiPublic{
			AbiJSON:  detail.Abi.AbiJSON,
			AbiHash:  detail.Abi.HexHash(),
			Modified: detail.Abi.Modified,
		}
	}
	return public
}

func renderContracts(details []*domain.ContractDetail, logoBaseURL string) []ContractPublic {
	contracts := make([]ContractPublic, 0, len(details))
	for _, detail := range details {
		contracts = append(contracts, renderContract(detail, logoBaseURL))
	}
	return contracts
}

func logoURL(baseURL, logoFile string) string {
	if baseURL == "" || logoFile == "" {
		return logoFile
	}
	return strings.TrimSuffix(baseURL, "/") + "/" + strings.TrimPrefix(logoFile, "/")
}
