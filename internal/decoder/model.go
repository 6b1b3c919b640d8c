package decoder

import (
	"bytes"
	"encoding/json"
	"fmt"

	ethabi "github.com/ethereum/go-ethereum/accounts/abi"
)

// Function is one callable entry of a contract ABI, keyed by its 4-byte
// selector.
type Function struct {
	Selector [4]byte
	Name     string
	Inputs   ethabi.Arguments
}

// fallbackFunction is the synthetic descriptor used when calldata hits a
// contract's fallback. It has no inputs, so decoding yields an empty
// parameter list.
var fallbackFunction = &Function{Name: "fallback"}

// contractAbi is the parsed form of one contract's ABI document.
type contractAbi struct {
	functions   map[[4]byte]*Function
	hasFallback bool
}

// parseAbi parses an ABI JSON document into per-selector functions.
// Selectors are computed by go-ethereum, including tuple expansion for
// struct parameters.
func parseAbi(doc json.RawMessage) (*contractAbi, error) {
	parsed, err := ethabi.JSON(bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}

	result := &contractAbi{
		functions:   make(map[[4]byte]*Function, len(parsed.Methods)),
		hasFallback: parsed.HasFallback(),
	}
	for _, method := range parsed.Methods {
		var selector [4]byte
		copy(selector[:], method.ID)
		result.functions[selector] = &Function{
			Selector: selector,
			Name:     method.RawName,
			Inputs:   method.Inputs,
		}
	}
	return result, nil
}

// Decode unpacks the argument section of calldata (without the selector)
// and normalizes every value for JSON serialization.
func (f *Function) Decode(params []byte) ([]*ParameterDecoded, error) {
	values, err := f.Inputs.UnpackValues(params)
	if err != nil {
		return nil, err
	}

	decoded := make([]*ParameterDecoded, len(f.Inputs))
	for i, input := range f.Inputs {
		decoded[i] = &ParameterDecoded{
			Name:  input.Name,
			Type:  input.Type.String(),
			Value: normalizeValue(values[i]),
		}
	}
	return decoded, nil
}
