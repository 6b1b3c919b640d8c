// Package decoder turns raw transaction calldata into structured method
// calls using the ABIs collected by the metadata pipeline.
package decoder

// Accuracy describes how specific the ABI match for a decoding was.
type Accuracy string

const (
	// AccuracyFullMatch means the ABI came from the exact contract on the
	// exact chain.
	AccuracyFullMatch Accuracy = "FULL_MATCH"
	// AccuracyPartialMatch means the ABI came from the same contract
	// address on a different chain.
	AccuracyPartialMatch Accuracy = "PARTIAL_MATCH"
	// AccuracyOnlyFunctionMatch means the selector matched a function of
	// some other contract.
	AccuracyOnlyFunctionMatch Accuracy = "ONLY_FUNCTION_MATCH"
	// AccuracyNoMatch means the selector is unknown.
	AccuracyNoMatch Accuracy = "NO_MATCH"
)

// ParameterDecoded is one decoded function argument. ValueDecoded is only
// populated for nested transaction payloads (MultiSend batches and Safe
// execTransaction data).
type ParameterDecoded struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	Value        any    `json:"value"`
	ValueDecoded any    `json:"value_decoded,omitempty"`
}

// DataDecoded is a decoded method call.
type DataDecoded struct {
	Method     string              `json:"method"`
	Parameters []*ParameterDecoded `json:"parameters"`
}

// MultisendDecoded is one inner transaction of a MultiSend batch.
type MultisendDecoded struct {
	Operation   int          `json:"operation"`
	To          string       `json:"to"`
	Value       string       `json:"value"`
	Data        *string      `json:"data"`
	DataDecoded *DataDecoded `json:"data_decoded"`
}
