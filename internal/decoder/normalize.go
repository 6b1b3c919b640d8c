package decoder

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"reflect"

	"github.com/ethereum/go-ethereum/common"
)

// normalizeValue maps a value unpacked by go-ethereum into the JSON-stable
// form served to clients: integers and booleans become strings, byte
// strings become 0x-prefixed lowercase hex, addresses are checksummed, and
// composite values are normalized recursively.
//
// Booleans render as "True"/"False" rather than JSON booleans, matching
// the historical serialization clients already parse.
func normalizeValue(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case bool:
		if v {
			return "True"
		}
		return "False"
	case *big.Int:
		return v.String()
	case common.Address:
		return v.Hex()
	case []byte:
		return "0x" + hex.EncodeToString(v)
	case string:
		return v
	case int8, int16, int32, int64, int, uint8, uint16, uint32, uint64, uint:
		return fmt.Sprintf("%d", v)
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Array:
		// Fixed-size byte arrays (bytes1..bytes32) come out as [N]uint8.
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			raw := make([]byte, rv.Len())
			reflect.Copy(reflect.ValueOf(raw), rv)
			return "0x" + hex.EncodeToString(raw)
		}
		return normalizeSequence(rv)
	case reflect.Slice:
		return normalizeSequence(rv)
	case reflect.Struct:
		// Tuples are unpacked into anonymous structs; serialize them as a
		// list of field values, in declaration order.
		fields := make([]any, rv.NumField())
		for i := range fields {
			fields[i] = normalizeValue(rv.Field(i).Interface())
		}
		return fields
	case reflect.Ptr:
		if rv.IsNil() {
			return nil
		}
		return normalizeValue(rv.Elem().Interface())
	}
	return value
}

func normalizeSequence(rv reflect.Value) []any {
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = normalizeValue(rv.Index(i).Interface())
	}
	return out
}
