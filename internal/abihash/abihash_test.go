package abihash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalizeSortsKeysAtEveryDepth(t *testing.T) {
	doc := []byte(`{"b": 1, "a": {"z": [2, 1], "y": "x"}}`)

	canonical, err := Canonicalize(doc)
	require.NoError(t, err)
	assert.Equal(t, `{"a": {"y": "x", "z": [2, 1]}, "b": 1}`, string(canonical))
}

func TestCanonicalizePreservesNumberLiterals(t *testing.T) {
	canonical, err := Canonicalize([]byte(`[1e3, 0.5, 10]`))
	require.NoError(t, err)
	assert.Equal(t, `[1e3, 0.5, 10]`, string(canonical))
}

func TestCanonicalizeEscapesNonASCII(t *testing.T) {
	canonical, err := Canonicalize([]byte(`{"name": "héllo"}`))
	require.NoError(t, err)
	assert.Equal(t, "{\"name\": \"h\\u00e9llo\"}", string(canonical))
}

func TestHashIgnoresKeyOrderAndWhitespace(t *testing.T) {
	a := []byte(`[{"name":"transfer","type":"function","inputs":[{"name":"to","type":"address"}]}]`)
	b := []byte(`[ {
		"inputs": [ { "type": "address", "name": "to" } ],
		"type": "function",
		"name": "transfer"
	} ]`)

	ha, err := Hash(a)
	require.NoError(t, err)
	hb, err := Hash(b)
	require.NoError(t, err)

	assert.Equal(t, ha, hb)
	assert.Len(t, ha, Size)
}

func TestHashDiffersForDifferentDocuments(t *testing.T) {
	ha, err := Hash([]byte(`[{"name": "transfer"}]`))
	require.NoError(t, err)
	hb, err := Hash([]byte(`[{"name": "approve"}]`))
	require.NoError(t, err)

	assert.NotEqual(t, ha, hb)
}

func TestHashRejectsInvalidJSON(t *testing.T) {
	_, err := Hash([]byte(`{"name":`))
	assert.Error(t, err)

	_, err = Hash([]byte(`{} trailing`))
	assert.Error(t, err)
}

func TestHexHash(t *testing.T) {
	h, err := HexHash([]byte(`[]`))
	require.NoError(t, err)
	assert.Len(t, h, 2+2*Size)
	assert.Equal(t, "0x", h[:2])
}

func TestParseHex(t *testing.T) {
	raw, err := ParseHex("0xDEADBEEF")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, raw)

	_, err = ParseHex("0x01")
	assert.Error(t, err)

	_, err = ParseHex("zzzz")
	assert.Error(t, err)
}
