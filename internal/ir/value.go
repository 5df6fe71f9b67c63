package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"unicode/utf16"
)

// IRValue is the sealed set of values allowed in account data and transaction
// payloads. There is no float type: account hashes must agree bit-for-bit
// across nodes.
type IRValue interface {
	irValue()
}

type (
	// IRNull only appears when decoding stored JSON. Hashing and canonical
	// encoding reject it.
	IRNull struct{}
	// IRString is a string value.
	IRString string
	// IRInt is always int64. Balances too large for it are carried as
	// decimal IRStrings.
	IRInt int64
	// IRBool is a boolean value.
	IRBool bool
	// IRArray is an ordered list of values.
	IRArray []IRValue
	// IRObject is account data, a transaction payload, or a nested object.
	// Iterate with SortedKeys when order matters.
	IRObject map[string]IRValue
)

func (IRNull) irValue()   {}
func (IRString) irValue() {}
func (IRInt) irValue()    {}
func (IRBool) irValue()   {}
func (IRArray) irValue()  {}
func (IRObject) irValue() {}

// Clone returns a deep copy of obj. A nil object clones to nil.
func (obj IRObject) Clone() IRObject {
	if obj == nil {
		return nil
	}
	out := make(IRObject, len(obj))
	for k, v := range obj {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep-copies any IR value. Scalars are returned as is.
func CloneValue(v IRValue) IRValue {
	switch val := v.(type) {
	case IRObject:
		return val.Clone()
	case IRArray:
		if val == nil {
			return IRArray(nil)
		}
		out := make(IRArray, len(val))
		for i, elem := range val {
			out[i] = CloneValue(elem)
		}
		return out
	}
	return v
}

// GetString returns the string stored under key, or "" when absent or not a string.
func (obj IRObject) GetString(key string) string {
	s, _ := obj[key].(IRString)
	return string(s)
}

// SortedKeys returns the keys ordered by UTF-16 code units, the order
// canonical JSON requires. Plain string comparison orders by UTF-8 bytes and
// differs for characters outside the BMP.
func (obj IRObject) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

func compareUTF16(a, b string) int {
	return slices.Compare(utf16.Encode([]rune(a)), utf16.Encode([]rune(b)))
}

// MarshalJSON writes obj as canonical JSON, so stored and served account
// data is byte-identical to what was hashed.
func (obj IRObject) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(obj)
}

// MarshalJSON writes arr as canonical JSON.
func (arr IRArray) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(arr)
}

// UnmarshalJSON decodes an object. Nulls decode to IRNull; floats are rejected.
func (obj *IRObject) UnmarshalJSON(data []byte) error {
	v, err := decodeIR(data, true)
	if err != nil {
		return err
	}
	o, ok := v.(IRObject)
	if !ok {
		return fmt.Errorf("expected JSON object, got %T", v)
	}
	*obj = o
	return nil
}

// UnmarshalJSON decodes an array. Nulls decode to IRNull; floats are rejected.
func (arr *IRArray) UnmarshalJSON(data []byte) error {
	v, err := decodeIR(data, true)
	if err != nil {
		return err
	}
	a, ok := v.(IRArray)
	if !ok {
		return fmt.Errorf("expected JSON array, got %T", v)
	}
	*arr = a
	return nil
}

// UnmarshalIRValue parses untrusted JSON, such as a submitted transaction.
// Floats and nulls are both rejected.
func UnmarshalIRValue(data []byte) (IRValue, error) {
	return decodeIR(data, false)
}

func decodeIR(data []byte, allowNull bool) (IRValue, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return liftValue(raw, allowNull)
}

// liftValue converts decoded JSON or plain Go values into the sealed IR types.
func liftValue(v any, allowNull bool) (IRValue, error) {
	switch val := v.(type) {
	case nil:
		if allowNull {
			return IRNull{}, nil
		}
		return nil, fmt.Errorf("null is forbidden")
	case IRValue:
		return val, nil
	case string:
		return IRString(val), nil
	case bool:
		return IRBool(val), nil
	case int:
		return IRInt(val), nil
	case int64:
		return IRInt(val), nil
	case json.Number:
		if strings.ContainsAny(string(val), ".eE") {
			return nil, fmt.Errorf("floats are forbidden: %s", val)
		}
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("number out of int64 range: %s", val)
		}
		return IRInt(n), nil
	case float32, float64:
		return nil, fmt.Errorf("floats are forbidden: %v", val)
	case []any:
		arr := make(IRArray, len(val))
		for i, elem := range val {
			conv, err := liftValue(elem, allowNull)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = conv
		}
		return arr, nil
	case map[string]any:
		obj := make(IRObject, len(val))
		for k, elem := range val {
			conv, err := liftValue(elem, allowNull)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			obj[k] = conv
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}
