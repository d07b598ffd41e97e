// Copyright 2025 The rpc-proxy-framework Authors
// SPDX-License-Identifier: MIT

package marshal

import (
	"encoding/json"
	"math"
	"strconv"
	"unsafe"

	"github.com/kekxv/rpc-proxy-framework/types"
)

// signedRange holds the inclusive bounds of each signed tag; unsignedMax
// holds the maximum of each unsigned one.
var signedRange = map[types.Tag][2]int64{
	types.TagInt8:  {math.MinInt8, math.MaxInt8},
	types.TagInt16: {math.MinInt16, math.MaxInt16},
	types.TagInt32: {math.MinInt32, math.MaxInt32},
	types.TagInt64: {math.MinInt64, math.MaxInt64},
}

var unsignedMax = map[types.Tag]uint64{
	types.TagUint8:  math.MaxUint8,
	types.TagUint16: math.MaxUint16,
	types.TagUint32: math.MaxUint32,
	types.TagUint64: math.MaxUint64,
}

func jsonNumber(raw json.RawMessage) (json.Number, error) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", types.Errorf(types.KindMalformedArg, "expected a number, got %s", compact(raw))
	}
	return n, nil
}

// storeNumeric parses raw and writes it to p with the width of tag.
// Over-range values fail with value_out_of_range.
func storeNumeric(p unsafe.Pointer, tag types.Tag, raw json.RawMessage) error {
	n, err := jsonNumber(raw)
	if err != nil {
		return err
	}

	switch tag {
	case types.TagFloat:
		f, err := n.Float64()
		if err != nil {
			return types.Errorf(types.KindMalformedArg, "bad float value %q", n.String())
		}
		if math.Abs(f) > math.MaxFloat32 {
			return types.Errorf(types.KindValueOutOfRange, "%s does not fit float", n.String())
		}
		*(*float32)(p) = float32(f)
		return nil
	case types.TagDouble:
		f, err := n.Float64()
		if err != nil {
			return types.Errorf(types.KindMalformedArg, "bad double value %q", n.String())
		}
		*(*float64)(p) = f
		return nil
	}

	if bounds, ok := signedRange[tag]; ok {
		v, err := strconv.ParseInt(n.String(), 10, 64)
		if err != nil {
			return types.Errorf(types.KindValueOutOfRange, "%q does not fit %s", n.String(), tag)
		}
		if v < bounds[0] || v > bounds[1] {
			return types.Errorf(types.KindValueOutOfRange, "%d does not fit %s", v, tag)
		}
		storeIntBits(p, tag, uint64(v))
		return nil
	}

	if maxVal, ok := unsignedMax[tag]; ok {
		v, err := strconv.ParseUint(n.String(), 10, 64)
		if err != nil {
			return types.Errorf(types.KindValueOutOfRange, "%q does not fit %s", n.String(), tag)
		}
		if v > maxVal {
			return types.Errorf(types.KindValueOutOfRange, "%d does not fit %s", v, tag)
		}
		storeIntBits(p, tag, v)
		return nil
	}

	return types.Errorf(types.KindUnknownTypeTag, "%q is not numeric", tag)
}

func storeIntBits(p unsafe.Pointer, tag types.Tag, bits uint64) {
	switch tag.Size() {
	case 1:
		*(*uint8)(p) = uint8(bits)
	case 2:
		*(*uint16)(p) = uint16(bits)
	case 4:
		*(*uint32)(p) = uint32(bits)
	default:
		*(*uint64)(p) = bits
	}
}

// loadScalar reads the value of a scalar tag at p into its JSON form.
func loadScalar(p unsafe.Pointer, tag types.Tag) any {
	switch tag {
	case types.TagInt8:
		return *(*int8)(p)
	case types.TagUint8:
		return *(*uint8)(p)
	case types.TagInt16:
		return *(*int16)(p)
	case types.TagUint16:
		return *(*uint16)(p)
	case types.TagInt32:
		return *(*int32)(p)
	case types.TagUint32:
		return *(*uint32)(p)
	case types.TagInt64:
		return *(*int64)(p)
	case types.TagUint64:
		return *(*uint64)(p)
	case types.TagFloat:
		return *(*float32)(p)
	case types.TagDouble:
		return *(*float64)(p)
	case types.TagBool:
		return *(*uint8)(p) != 0
	case types.TagPointer:
		return uint64(*(*uintptr)(p))
	}
	return nil
}

// loadWordScalar reads an integer-family return value from a machine-word
// slot. Generic dispatchers widen sub-word integer returns to a full word,
// so the word is read first and then truncated to the declared width.
func loadWordScalar(p unsafe.Pointer, tag types.Tag) any {
	if tag.IsInteger() || tag == types.TagBool {
		bits := *(*uintptr)(p)
		switch tag {
		case types.TagInt8:
			return int8(bits)
		case types.TagUint8:
			return uint8(bits)
		case types.TagInt16:
			return int16(bits)
		case types.TagUint16:
			return uint16(bits)
		case types.TagInt32:
			return int32(bits)
		case types.TagUint32:
			return uint32(bits)
		case types.TagInt64:
			return int64(bits)
		case types.TagUint64:
			return uint64(bits)
		case types.TagBool:
			return bits != 0
		}
	}
	return loadScalar(p, tag)
}

// cStringAt reads a NUL-terminated byte sequence starting at the word w.
// The double indirection converts a raw machine word into a pointer
// without tripping go vet's uintptr checks.
func cStringAt(w uintptr) string {
	if w == 0 {
		return ""
	}
	p := *(**byte)(unsafe.Pointer(&w))
	n := 0
	for *(*byte)(unsafe.Add(unsafe.Pointer(p), n)) != 0 {
		n++
	}
	return string(unsafe.Slice(p, n))
}

// bytesAt returns n bytes of native memory starting at the word w.
func bytesAt(w uintptr, n int) []byte {
	if w == 0 || n <= 0 {
		return nil
	}
	p := *(**byte)(unsafe.Pointer(&w))
	return unsafe.Slice(p, n)
}

// parseWord parses a machine word from a JSON number. Negative values are
// accepted as their two's complement word.
func parseWord(n json.Number) (uintptr, error) {
	if u, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
		return uintptr(u), nil
	}
	i, err := strconv.ParseInt(n.String(), 10, 64)
	if err != nil {
		return 0, err
	}
	return uintptr(i), nil
}

func compact(raw json.RawMessage) string {
	if len(raw) > 64 {
		return string(raw[:64]) + "..."
	}
	return string(raw)
}
