// Package session provides the per-virtual-user key/value store.
package session

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
)

// Kind identifies the type held by a Value.
type Kind int

const (
	// KindInvalid is the zero Value; it never compares equal to anything.
	KindInvalid Kind = iota
	KindString
	KindNumber
	KindBool
	KindBytes
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "boolean"
	case KindBytes:
		return "bytes"
	default:
		return "invalid"
	}
}

// Value is a session value: a string, a number, a boolean or a byte sequence.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	raw  []byte
}

// String returns a string Value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number returns a numeric Value.
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }

// Int returns a numeric Value from an integer.
func Int(n int64) Value { return Value{kind: KindNumber, num: float64(n)} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Bytes returns a byte sequence Value. The slice is copied.
func Bytes(p []byte) Value {
	c := make([]byte, len(p))
	copy(c, p)
	return Value{kind: KindBytes, raw: c}
}

// Kind returns the type of the value.
func (v Value) Kind() Kind { return v.kind }

// IsValid reports whether v holds a value.
func (v Value) IsValid() bool { return v.kind != KindInvalid }

// AsNumber returns the numeric content and whether v is a number.
func (v Value) AsNumber() (float64, bool) { return v.num, v.kind == KindNumber }

// AsBool returns the boolean content and whether v is a boolean.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// Bytes returns the value rendered as bytes. Byte values are returned as a copy.
func (v Value) Bytes() []byte {
	if v.kind == KindBytes {
		c := make([]byte, len(v.raw))
		copy(c, v.raw)
		return c
	}
	return []byte(v.String())
}

// Len returns the length of a string or byte value and 0 otherwise.
func (v Value) Len() int {
	switch v.kind {
	case KindString:
		return len(v.str)
	case KindBytes:
		return len(v.raw)
	default:
		return 0
	}
}

// String renders the value as text. Integral numbers have no fractional part.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		if v.num == math.Trunc(v.num) && math.Abs(v.num) < 1e15 {
			return strconv.FormatInt(int64(v.num), 10)
		}
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindBytes:
		return string(v.raw)
	default:
		return ""
	}
}

// GoString makes values readable in test failure output.
func (v Value) GoString() string {
	switch v.kind {
	case KindString:
		return strconv.Quote(v.str)
	case KindBytes:
		return fmt.Sprintf("bytes(%d)", len(v.raw))
	default:
		return v.String()
	}
}

// Equal reports whether v and o hold the same kind and content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	case KindBytes:
		return bytes.Equal(v.raw, o.raw)
	default:
		return false
	}
}

// Loose reports whether v and o are equal after textual coercion. A number
// extracted from JSON compares loosely equal to the same number held as a
// string in the session.
func (v Value) Loose(o Value) bool {
	if v.Equal(o) {
		return true
	}
	if !v.IsValid() || !o.IsValid() {
		return false
	}
	return v.String() == o.String()
}
