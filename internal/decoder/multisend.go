package decoder

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// multiSendAbiJSON is the ABI of the Safe MultiSend contract. Its selector
// table is kept separate from the database-backed registry so batch
// detection works even on an empty database.
const multiSendAbiJSON = `[
	{
		"type": "function",
		"name": "multiSend",
		"inputs": [{"name": "transactions", "type": "bytes"}],
		"outputs": [],
		"stateMutability": "payable"
	}
]`

// MultisendTx is one packed transaction of a MultiSend batch.
type MultisendTx struct {
	Operation uint8
	To        common.Address
	Value     *big.Int
	Data      []byte
}

// parseMultiSendPacked parses the packed transactions blob of a MultiSend
// call: repeated (operation u8, to 20 bytes, value u256, data length u256,
// data) tuples with no separators.
func parseMultiSendPacked(packed []byte) ([]MultisendTx, error) {
	const headerLen = 1 + 20 + 32 + 32

	var txs []MultisendTx
	for offset := 0; offset < len(packed); {
		if len(packed)-offset < headerLen {
			return nil, fmt.Errorf("truncated multisend header at offset %d", offset)
		}
		operation := packed[offset]
		offset++

		var to common.Address
		copy(to[:], packed[offset:offset+20])
		offset += 20

		value := new(big.Int).SetBytes(packed[offset : offset+32])
		offset += 32

		dataLen := new(big.Int).SetBytes(packed[offset : offset+32])
		offset += 32
		if !dataLen.IsInt64() || dataLen.Int64() > int64(len(packed)-offset) {
			return nil, fmt.Errorf("truncated multisend data at offset %d", offset)
		}

		n := int(dataLen.Int64())
		var data []byte
		if n > 0 {
			data = append([]byte(nil), packed[offset:offset+n]...)
			offset += n
		}

		txs = append(txs, MultisendTx{
			Operation: operation,
			To:        to,
			Value:     value,
			Data:      data,
		})
	}
	return txs, nil
}

// ParseMultiSendCalldata parses full multiSend(bytes) calldata into its
// inner transactions. Returns an error when the selector is not a known
// MultiSend function or the payload is malformed.
func (s *Service) ParseMultiSendCalldata(data []byte) ([]MultisendTx, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("calldata too short for a multisend call")
	}
	var selector [4]byte
	copy(selector[:], data[:4])

	fn, ok := s.multisendSelectors[selector]
	if !ok {
		return nil, fmt.Errorf("selector 0x%x is not a multisend function", selector)
	}

	values, err := fn.Inputs.UnpackValues(data[4:])
	if err != nil {
		return nil, fmt.Errorf("unpack multisend calldata: %w", err)
	}
	packed, ok := values[0].([]byte)
	if !ok {
		return nil, fmt.Errorf("multisend transactions argument is not bytes")
	}
	return parseMultiSendPacked(packed)
}
