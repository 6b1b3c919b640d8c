// Package abihash computes the canonical hash used to deduplicate ABIs.
//
// Two ABI documents that differ only in key order or whitespace must map to
// the same hash, so the document is re-serialized into a canonical form
// (sorted keys, fixed separators, ASCII-escaped strings, numeric literals
// preserved verbatim) before hashing. The hash is the last 4 bytes of the
// MD5 digest of that canonical form.
package abihash

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf16"
)

// Size is the length in bytes of a computed ABI hash.
const Size = 4

// Hash returns the 4-byte canonical hash for the given ABI document.
// The document may be any JSON value (typically a list of function and
// event descriptions).
func Hash(abiJSON []byte) ([]byte, error) {
	canonical, err := Canonicalize(abiJSON)
	if err != nil {
		return nil, err
	}
	sum := md5.Sum(canonical)
	digest := hex.EncodeToString(sum[:])
	raw, err := hex.DecodeString(digest[len(digest)-2*Size:])
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// HexHash returns the canonical hash as a 0x-prefixed hex string.
func HexHash(abiJSON []byte) (string, error) {
	raw, err := Hash(abiJSON)
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(raw), nil
}

// Canonicalize re-serializes a JSON document into its canonical byte form:
// object keys sorted at every depth, ", " and ": " separators, non-ASCII
// characters escaped, and number literals kept exactly as they appeared.
func Canonicalize(doc []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("abihash: invalid JSON: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("abihash: trailing data after JSON document")
	}

	var buf bytes.Buffer
	if err := writeCanonical(&buf, value); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, value any) error {
	switch v := value.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if v {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		buf.WriteString(v.String())
	case string:
		writeEscapedString(buf, v)
	case []any:
		buf.WriteByte('[')
		for i, elem := range v {
			if i > 0 {
				buf.WriteString(", ")
			}
			if err := writeCanonical(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteString(", ")
			}
			writeEscapedString(buf, k)
			buf.WriteString(": ")
			if err := writeCanonical(buf, v[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("abihash: unsupported JSON value %T", value)
	}
	return nil
}

// writeEscapedString writes s as a JSON string with every non-ASCII rune
// escaped as \uXXXX (surrogate pairs for runes above the BMP).
func writeEscapedString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		default:
			switch {
			case r < 0x20:
				fmt.Fprintf(buf, `\u%04x`, r)
			case r < 0x7f:
				buf.WriteByte(byte(r))
			case r <= 0xffff:
				fmt.Fprintf(buf, `\u%04x`, r)
			default:
				hi, lo := utf16.EncodeRune(r)
				fmt.Fprintf(buf, `\u%04x\u%04x`, hi, lo)
			}
		}
	}
	buf.WriteByte('"')
}

// ParseHex decodes a 0x-prefixed or bare hex hash string into raw bytes.
func ParseHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("abihash: invalid hex hash %q: %w", s, err)
	}
	if len(raw) != Size {
		return nil, fmt.Errorf("abihash: hash must be %d bytes, got %d", Size, len(raw))
	}
	return raw, nil
}
