package xmlrpc

import "time"

// Tag is an XML-RPC type tag as used in method signatures.
type Tag string

// The closed set of protocol type tags. Every decodable Value maps to
// exactly one of these via Value.Tag().
const (
	TagString   Tag = "string"
	TagArray    Tag = "array"
	TagBoolean  Tag = "boolean"
	TagInt      Tag = "int"
	TagDouble   Tag = "double"
	TagStruct   Tag = "struct"
	TagDateTime Tag = "dateTime.iso8601"
	TagBase64   Tag = "base64"

	// TagNil is reported for <nil/> extension values. It is not part of
	// the signature vocabulary, so a nil argument never matches a
	// declared parameter slot; it exists so mismatch diagnostics can
	// name what was actually received.
	TagNil Tag = "nil"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNil Kind = iota
	KindString
	KindArray
	KindBool
	KindInt
	KindDouble
	KindStruct
	KindDateTime
	KindBase64
)

// Value is a decoded XML-RPC value: a closed tagged union over the
// protocol's eight types plus the <nil/> extension.
//
// Values are immutable once constructed. The zero Value is the nil value.
type Value struct {
	kind    Kind
	str     string
	arr     []Value
	boolean bool
	num     int
	dbl     float64
	members map[string]Value
	ts      time.Time
	raw     []byte
}

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Int returns an int value. XML-RPC ints are 32-bit; the codec rejects
// out-of-range values at encode/decode time.
func Int(i int) Value { return Value{kind: KindInt, num: i} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, boolean: b} }

// Double returns a double value.
func Double(f float64) Value { return Value{kind: KindDouble, dbl: f} }

// Array returns an array value holding elems in order.
func Array(elems ...Value) Value { return Value{kind: KindArray, arr: elems} }

// Struct returns a struct value. The members map is used as-is; callers
// must not mutate it afterwards.
func Struct(members map[string]Value) Value { return Value{kind: KindStruct, members: members} }

// DateTime returns a dateTime.iso8601 value.
func DateTime(t time.Time) Value { return Value{kind: KindDateTime, ts: t} }

// Base64 returns a base64 (opaque bytes) value.
func Base64(b []byte) Value { return Value{kind: KindBase64, raw: b} }

// Nil returns the nil extension value. Encoding it in a response requires
// AllowNone on the endpoint.
func Nil() Value { return Value{kind: KindNil} }

// Kind returns the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNil reports whether v is the nil value.
func (v Value) IsNil() bool { return v.kind == KindNil }

// Tag classifies v into its protocol type tag.
//
// The mapping is total and deterministic: each variant maps to exactly one
// tag. The case order mirrors the classification rule order the protocol
// mapping was specified with (boolean is listed before int; application
// signatures may depend on booleans never classifying as ints).
func (v Value) Tag() Tag {
	switch v.kind {
	case KindString:
		return TagString
	case KindArray:
		return TagArray
	case KindBool:
		return TagBoolean
	case KindInt:
		return TagInt
	case KindDouble:
		return TagDouble
	case KindStruct:
		return TagStruct
	case KindDateTime:
		return TagDateTime
	case KindBase64:
		return TagBase64
	default:
		return TagNil
	}
}

// Str returns the string payload. ok is false if v is not a string.
func (v Value) Str() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

// Slice returns the array elements. ok is false if v is not an array.
func (v Value) Slice() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	return v.arr, true
}

// Boolean returns the boolean payload. ok is false if v is not a boolean.
func (v Value) Boolean() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.boolean, true
}

// Num returns the int payload. ok is false if v is not an int.
func (v Value) Num() (int, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.num, true
}

// Float returns the double payload. ok is false if v is not a double.
func (v Value) Float() (float64, bool) {
	if v.kind != KindDouble {
		return 0, false
	}
	return v.dbl, true
}

// Members returns the struct members. ok is false if v is not a struct.
// Callers must not mutate the returned map.
func (v Value) Members() (map[string]Value, bool) {
	if v.kind != KindStruct {
		return nil, false
	}
	return v.members, true
}

// Time returns the dateTime payload. ok is false if v is not a dateTime.
func (v Value) Time() (time.Time, bool) {
	if v.kind != KindDateTime {
		return time.Time{}, false
	}
	return v.ts, true
}

// Bytes returns the base64 payload. ok is false if v is not base64.
// Callers must not mutate the returned slice.
func (v Value) Bytes() ([]byte, bool) {
	if v.kind != KindBase64 {
		return nil, false
	}
	return v.raw, true
}

// classifyArgs maps each argument to its type tag, in call order.
func classifyArgs(args []Value) []Tag {
	tags := make([]Tag, len(args))
	for i, a := range args {
		tags[i] = a.Tag()
	}
	return tags
}
