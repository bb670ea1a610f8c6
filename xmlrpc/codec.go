package xmlrpc

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// maxNestingDepth bounds how deeply arrays/structs may nest in a request.
// The transport already caps the body size, but a small body can still
// encode pathological nesting; we refuse it rather than recurse without
// bound.
const maxNestingDepth = 64

// dateTimeLayout is the compact ISO-8601 form the protocol uses on the wire.
const dateTimeLayout = "20060102T15:04:05"

// dateTimeLayoutExtended accepts the dashed variant some clients emit.
const dateTimeLayoutExtended = "2006-01-02T15:04:05"

const responseHeader = `<?xml version="1.0"?>` + "\n"

// ErrNilValue is returned when encoding a nil value without AllowNone.
var ErrNilValue = errors.New("xmlrpc: nil value in response (AllowNone is disabled)")

// DecodeError indicates that a request body is not a well-formed XML-RPC
// method call.
type DecodeError struct {
	Reason string
	Cause  error
}

func (e *DecodeError) Error() string {
	if e == nil {
		return "xmlrpc: decode error: <nil>"
	}
	if e.Cause != nil {
		return "xmlrpc: decode: " + e.Reason + ": " + e.Cause.Error()
	}
	return "xmlrpc: decode: " + e.Reason
}

func (e *DecodeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func decodeErrorf(cause error, format string, args ...any) error {
	return &DecodeError{Reason: fmt.Sprintf(format, args...), Cause: cause}
}

// DecodeRequest parses one XML-RPC request body into the called method name
// and its positional arguments.
//
// The decoder enforces structure only; body size policy belongs to the
// caller. Failures are reported as *DecodeError.
func DecodeRequest(body []byte) (string, []Value, error) {
	d := xml.NewDecoder(bytes.NewReader(body))

	root, err := nextStart(d)
	if err != nil {
		return "", nil, decodeErrorf(err, "request is not well-formed XML")
	}
	if root == nil {
		return "", nil, decodeErrorf(nil, "empty request")
	}
	if root.Name.Local != "methodCall" {
		return "", nil, decodeErrorf(nil, "unexpected top-level element <%s>", root.Name.Local)
	}

	var method string
	var seenMethod bool
	var args []Value
	for {
		tok, err := d.Token()
		if err != nil {
			return "", nil, decodeErrorf(err, "truncated method call")
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "methodName":
				if seenMethod {
					return "", nil, decodeErrorf(nil, "duplicate <methodName>")
				}
				method, err = readText(d)
				if err != nil {
					return "", nil, err
				}
				method = strings.TrimSpace(method)
				seenMethod = true
			case "params":
				if args != nil {
					return "", nil, decodeErrorf(nil, "duplicate <params>")
				}
				args, err = parseParams(d)
				if err != nil {
					return "", nil, err
				}
			default:
				return "", nil, decodeErrorf(nil, "unexpected element <%s> in method call", t.Name.Local)
			}
		case xml.CharData:
			if len(bytes.TrimSpace(t)) != 0 {
				return "", nil, decodeErrorf(nil, "unexpected text in method call")
			}
		case xml.EndElement:
			// </methodCall>
			if !seenMethod || method == "" {
				return "", nil, decodeErrorf(nil, "missing method name")
			}
			if args == nil {
				args = []Value{}
			}
			return method, args, nil
		}
	}
}

// nextStart returns the first StartElement, skipping the XML declaration,
// comments, and whitespace. A nil element with nil error means EOF before
// any element.
func nextStart(d *xml.Decoder) (*xml.StartElement, error) {
	for {
		tok, err := d.Token()
		if err == io.EOF {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			return &t, nil
		case xml.CharData:
			if len(bytes.TrimSpace(t)) != 0 {
				return nil, errors.New("unexpected text before root element")
			}
		}
	}
}

// readText consumes the content of the current element up to its end tag
// and returns the accumulated character data. Nested elements are rejected.
func readText(d *xml.Decoder) (string, error) {
	var sb strings.Builder
	for {
		tok, err := d.Token()
		if err != nil {
			return "", decodeErrorf(err, "truncated element")
		}
		switch t := tok.(type) {
		case xml.CharData:
			sb.Write(t)
		case xml.EndElement:
			return sb.String(), nil
		case xml.StartElement:
			return "", decodeErrorf(nil, "unexpected element <%s> in text content", t.Name.Local)
		}
	}
}

func parseParams(d *xml.Decoder) ([]Value, error) {
	args := []Value{}
	for {
		tok, err := d.Token()
		if err != nil {
			return nil, decodeErrorf(err, "truncated <params>")
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local != "param" {
				return nil, decodeErrorf(nil, "unexpected element <%s> in <params>", t.Name.Local)
			}
			v, err := parseParam(d)
			if err != nil {
				return nil, err
			}
			args = append(args, v)
		case xml.CharData:
			if len(bytes.TrimSpace(t)) != 0 {
				return nil, decodeErrorf(nil, "unexpected text in <params>")
			}
		case xml.EndElement:
			return args, nil
		}
	}
}

func parseParam(d *xml.Decoder) (Value, error) {
	var v Value
	seen := false
	for {
		tok, err := d.Token()
		if err != nil {
			return Value{}, decodeErrorf(err, "truncated <param>")
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local != "value" || seen {
				return Value{}, decodeErrorf(nil, "malformed <param>")
			}
			v, err = parseValue(d, 0)
			if err != nil {
				return Value{}, err
			}
			seen = true
		case xml.CharData:
			if len(bytes.TrimSpace(t)) != 0 {
				return Value{}, decodeErrorf(nil, "unexpected text in <param>")
			}
		case xml.EndElement:
			if !seen {
				return Value{}, decodeErrorf(nil, "<param> without <value>")
			}
			return v, nil
		}
	}
}

// parseValue parses the content of a <value> element whose start tag has
// already been consumed. An untyped value is a string.
func parseValue(d *xml.Decoder, depth int) (Value, error) {
	if depth > maxNestingDepth {
		return Value{}, decodeErrorf(nil, "value nesting exceeds %d levels", maxNestingDepth)
	}
	var text strings.Builder
	for {
		tok, err := d.Token()
		if err != nil {
			return Value{}, decodeErrorf(err, "truncated <value>")
		}
		switch t := tok.(type) {
		case xml.CharData:
			text.Write(t)
		case xml.StartElement:
			if strings.TrimSpace(text.String()) != "" {
				return Value{}, decodeErrorf(nil, "mixed content in <value>")
			}
			v, err := parseTyped(d, t, depth)
			if err != nil {
				return Value{}, err
			}
			if err := consumeEnd(d, "value"); err != nil {
				return Value{}, err
			}
			return v, nil
		case xml.EndElement:
			return String(text.String()), nil
		}
	}
}

func parseTyped(d *xml.Decoder, start xml.StartElement, depth int) (Value, error) {
	switch start.Name.Local {
	case "string":
		s, err := readText(d)
		if err != nil {
			return Value{}, err
		}
		return String(s), nil
	case "int", "i4":
		s, err := readText(d)
		if err != nil {
			return Value{}, err
		}
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return Value{}, decodeErrorf(nil, "invalid int %q", strings.TrimSpace(s))
		}
		if n < math.MinInt32 || n > math.MaxInt32 {
			return Value{}, decodeErrorf(nil, "int %d out of 32-bit range", n)
		}
		return Int(int(n)), nil
	case "boolean":
		s, err := readText(d)
		if err != nil {
			return Value{}, err
		}
		switch strings.TrimSpace(s) {
		case "0":
			return Bool(false), nil
		case "1":
			return Bool(true), nil
		}
		return Value{}, decodeErrorf(nil, "invalid boolean %q", strings.TrimSpace(s))
	case "double":
		s, err := readText(d)
		if err != nil {
			return Value{}, err
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return Value{}, decodeErrorf(nil, "invalid double %q", strings.TrimSpace(s))
		}
		return Double(f), nil
	case "dateTime.iso8601":
		s, err := readText(d)
		if err != nil {
			return Value{}, err
		}
		s = strings.TrimSpace(s)
		t, err := time.Parse(dateTimeLayout, s)
		if err != nil {
			t, err = time.Parse(dateTimeLayoutExtended, s)
		}
		if err != nil {
			return Value{}, decodeErrorf(nil, "invalid dateTime %q", s)
		}
		return DateTime(t), nil
	case "base64":
		s, err := readText(d)
		if err != nil {
			return Value{}, err
		}
		// Encoders commonly wrap base64 payloads; strip all whitespace.
		s = strings.Map(func(r rune) rune {
			switch r {
			case ' ', '\t', '\r', '\n':
				return -1
			}
			return r
		}, s)
		raw, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return Value{}, decodeErrorf(nil, "invalid base64 payload")
		}
		return Base64(raw), nil
	case "array":
		return parseArray(d, depth+1)
	case "struct":
		return parseStruct(d, depth+1)
	case "nil":
		if err := consumeEnd(d, "nil"); err != nil {
			return Value{}, err
		}
		return Nil(), nil
	}
	return Value{}, decodeErrorf(nil, "unsupported value type <%s>", start.Name.Local)
}

// parseArray parses <array><data><value>...</value>...</data></array> with
// the <array> start tag already consumed.
func parseArray(d *xml.Decoder, depth int) (Value, error) {
	dataStart, err := nextStart(d)
	if err != nil || dataStart == nil || dataStart.Name.Local != "data" {
		return Value{}, decodeErrorf(err, "malformed <array>")
	}
	var elems []Value
	for {
		tok, err := d.Token()
		if err != nil {
			return Value{}, decodeErrorf(err, "truncated <array>")
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local != "value" {
				return Value{}, decodeErrorf(nil, "unexpected element <%s> in array data", t.Name.Local)
			}
			v, err := parseValue(d, depth)
			if err != nil {
				return Value{}, err
			}
			elems = append(elems, v)
		case xml.CharData:
			if len(bytes.TrimSpace(t)) != 0 {
				return Value{}, decodeErrorf(nil, "unexpected text in array data")
			}
		case xml.EndElement:
			// </data>; the matching </array> follows.
			if err := consumeEnd(d, "array"); err != nil {
				return Value{}, err
			}
			return Array(elems...), nil
		}
	}
}

// parseStruct parses <struct><member><name>..</name><value>..</value>
// </member>...</struct> with the <struct> start tag already consumed.
// Duplicate member names keep the last occurrence.
func parseStruct(d *xml.Decoder, depth int) (Value, error) {
	members := map[string]Value{}
	for {
		tok, err := d.Token()
		if err != nil {
			return Value{}, decodeErrorf(err, "truncated <struct>")
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local != "member" {
				return Value{}, decodeErrorf(nil, "unexpected element <%s> in <struct>", t.Name.Local)
			}
			name, v, err := parseMember(d, depth)
			if err != nil {
				return Value{}, err
			}
			members[name] = v
		case xml.CharData:
			if len(bytes.TrimSpace(t)) != 0 {
				return Value{}, decodeErrorf(nil, "unexpected text in <struct>")
			}
		case xml.EndElement:
			return Struct(members), nil
		}
	}
}

func parseMember(d *xml.Decoder, depth int) (string, Value, error) {
	var name string
	var v Value
	var seenName, seenValue bool
	for {
		tok, err := d.Token()
		if err != nil {
			return "", Value{}, decodeErrorf(err, "truncated <member>")
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "name":
				if seenName {
					return "", Value{}, decodeErrorf(nil, "duplicate <name> in <member>")
				}
				name, err = readText(d)
				if err != nil {
					return "", Value{}, err
				}
				seenName = true
			case "value":
				if seenValue {
					return "", Value{}, decodeErrorf(nil, "duplicate <value> in <member>")
				}
				v, err = parseValue(d, depth)
				if err != nil {
					return "", Value{}, err
				}
				seenValue = true
			default:
				return "", Value{}, decodeErrorf(nil, "unexpected element <%s> in <member>", t.Name.Local)
			}
		case xml.CharData:
			if len(bytes.TrimSpace(t)) != 0 {
				return "", Value{}, decodeErrorf(nil, "unexpected text in <member>")
			}
		case xml.EndElement:
			if !seenName || !seenValue {
				return "", Value{}, decodeErrorf(nil, "incomplete <member>")
			}
			return name, v, nil
		}
	}
}

// consumeEnd reads up to the end tag of the named element, allowing only
// whitespace in between.
func consumeEnd(d *xml.Decoder, name string) error {
	for {
		tok, err := d.Token()
		if err != nil {
			return decodeErrorf(err, "truncated <%s>", name)
		}
		switch t := tok.(type) {
		case xml.EndElement:
			return nil
		case xml.CharData:
			if len(bytes.TrimSpace(t)) != 0 {
				return decodeErrorf(nil, "unexpected text in <%s>", name)
			}
		case xml.StartElement:
			return decodeErrorf(nil, "unexpected element <%s> in <%s>", t.Name.Local, name)
		}
	}
}

// EncodeResponse wraps a single return value as a one-element
// methodResponse envelope.
//
// Encoding a nil value fails with ErrNilValue unless allowNone is set;
// any other Value always encodes. Struct members are emitted in sorted
// key order so output is deterministic.
func EncodeResponse(v Value, allowNone bool) ([]byte, error) {
	var b bytes.Buffer
	b.WriteString(responseHeader)
	b.WriteString("<methodResponse><params><param>")
	if err := writeValue(&b, v, allowNone); err != nil {
		return nil, err
	}
	b.WriteString("</param></params></methodResponse>")
	return b.Bytes(), nil
}

// EncodeFault produces a self-contained fault envelope. It never fails,
// whatever the code and message contents; it is the last line of defense
// when everything else has failed.
func EncodeFault(code int, message string) []byte {
	var b bytes.Buffer
	b.WriteString(responseHeader)
	b.WriteString("<methodResponse><fault><value><struct>")
	fmt.Fprintf(&b, "<member><name>faultCode</name><value><int>%d</int></value></member>", code)
	b.WriteString("<member><name>faultString</name><value><string>")
	b.WriteString(escapeString(message))
	b.WriteString("</string></value></member>")
	b.WriteString("</struct></value></fault></methodResponse>")
	return b.Bytes()
}

func writeValue(b *bytes.Buffer, v Value, allowNone bool) error {
	switch v.kind {
	case KindNil:
		if !allowNone {
			return ErrNilValue
		}
		b.WriteString("<value><nil/></value>")
	case KindString:
		b.WriteString("<value><string>")
		b.WriteString(escapeString(v.str))
		b.WriteString("</string></value>")
	case KindInt:
		if v.num < math.MinInt32 || v.num > math.MaxInt32 {
			return fmt.Errorf("xmlrpc: int %d out of 32-bit range", v.num)
		}
		fmt.Fprintf(b, "<value><int>%d</int></value>", v.num)
	case KindBool:
		if v.boolean {
			b.WriteString("<value><boolean>1</boolean></value>")
		} else {
			b.WriteString("<value><boolean>0</boolean></value>")
		}
	case KindDouble:
		b.WriteString("<value><double>")
		b.WriteString(strconv.FormatFloat(v.dbl, 'g', -1, 64))
		b.WriteString("</double></value>")
	case KindDateTime:
		b.WriteString("<value><dateTime.iso8601>")
		b.WriteString(v.ts.Format(dateTimeLayout))
		b.WriteString("</dateTime.iso8601></value>")
	case KindBase64:
		b.WriteString("<value><base64>")
		b.WriteString(base64.StdEncoding.EncodeToString(v.raw))
		b.WriteString("</base64></value>")
	case KindArray:
		b.WriteString("<value><array><data>")
		for _, elem := range v.arr {
			if err := writeValue(b, elem, allowNone); err != nil {
				return err
			}
		}
		b.WriteString("</data></array></value>")
	case KindStruct:
		names := make([]string, 0, len(v.members))
		for name := range v.members {
			names = append(names, name)
		}
		sort.Strings(names)
		b.WriteString("<value><struct>")
		for _, name := range names {
			b.WriteString("<member><name>")
			b.WriteString(escapeString(name))
			b.WriteString("</name>")
			if err := writeValue(b, v.members[name], allowNone); err != nil {
				return err
			}
			b.WriteString("</member>")
		}
		b.WriteString("</struct></value>")
	}
	return nil
}

func escapeString(s string) string {
	var b bytes.Buffer
	// EscapeText only fails on writer errors; bytes.Buffer has none.
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
