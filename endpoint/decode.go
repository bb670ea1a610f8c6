package endpoint

import (
	"encoding"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
)

// defaultFieldLimit is the maximum byte length accepted for a decoded
// field value when no maxLength tag is present. Body fields are exempt;
// their size policy belongs to the endpoint (or transport) that owns them.
var defaultFieldLimit = 16 * 1024 // 16KB

// Unmarshal populates dst (must be a non-nil pointer to a struct) from the
// request.
//
// Supported sources and struct tags:
//   - `path:"name"` — r.PathValue()
//   - `query:"name"` — r.URL.Query()
//   - `header:"name"` — r.Header
//   - `cookie:"name"` — r.Cookie(name)
//   - `body:""` — the request body, read in full
//   - use a name of "-" to ignore the field entirely
//   - `maxLength:"n"` — maximum byte length for the field value
//
// The name defaults to the lowercased field name. A flag after the name
// selects []byte decoding: `query:"sig,base64url"` or `body:",base64"`.
//
// If several source tags are present on one field, precedence is: path,
// query, header, cookie, body. Untagged struct fields are recursed into;
// untagged non-struct fields default to path-then-query lookup. Fields
// with no matching data are left at their zero value.
//
// Values exceeding the field's length limit are a 400 Bad Request. The
// default limit is 16KB; `maxLength:"0"` means no limit. Body fields are
// unlimited unless a maxLength tag says otherwise.
func Unmarshal(r *http.Request, dst any) error {
	if r == nil {
		return Error(http.StatusInternalServerError, "", errors.New("endpoint: decode: nil request"))
	}
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return Error(http.StatusInternalServerError, "", errors.New("endpoint: decode: dst must be a non-nil pointer"))
	}
	root := v.Elem()
	if root.Kind() == reflect.Pointer {
		if root.IsNil() {
			root.Set(reflect.New(root.Type().Elem()))
		}
		root = root.Elem()
	}
	if root.Kind() != reflect.Struct {
		return Error(http.StatusInternalServerError, "", errors.New("endpoint: decode: dst must point to a struct"))
	}
	st := &decodeState{r: r}
	return st.unmarshalStruct(root)
}

// decodeState carries the per-request decoding context, including the
// lazily read body so at most one field may consume it.
type decodeState struct {
	r        *http.Request
	body     []byte
	bodyRead bool
}

func (st *decodeState) readBody() ([]byte, error) {
	if st.bodyRead {
		return st.body, nil
	}
	st.bodyRead = true
	if st.r.Body == nil || st.r.Body == http.NoBody {
		return nil, nil
	}
	b, err := io.ReadAll(st.r.Body)
	if err != nil {
		return nil, Error(http.StatusBadRequest, "", fmt.Errorf("endpoint: decode: read body: %w", err))
	}
	st.body = b
	return b, nil
}

// sourceTag is one parsed source annotation: a parameter name plus an
// optional []byte encoding flag (base64 | base64url).
type sourceTag struct {
	Name     string
	Encoding string
}

func parseSourceTag(sf reflect.StructField, source string) (sourceTag, bool) {
	raw, ok := sf.Tag.Lookup(source)
	if !ok {
		return sourceTag{}, false
	}
	name, enc, _ := strings.Cut(raw, ",")
	if name == "" {
		name = strings.ToLower(sf.Name)
	}
	return sourceTag{Name: name, Encoding: strings.TrimSpace(enc)}, true
}

func fieldLengthLimit(sf reflect.StructField, isBody bool) (int, error) {
	raw, ok := sf.Tag.Lookup("maxLength")
	if !ok || strings.TrimSpace(raw) == "" {
		if isBody {
			return 0, nil
		}
		return defaultFieldLimit, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("endpoint: decode: invalid maxLength tag %q", raw)
	}
	return n, nil
}

func (st *decodeState) unmarshalStruct(structVal reflect.Value) error {
	t := structVal.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if sf.PkgPath != "" { // unexported
			continue
		}
		fv := structVal.Field(i)

		tags := make(map[string]sourceTag)
		for _, source := range []string{"path", "query", "header", "cookie", "body"} {
			if tag, ok := parseSourceTag(sf, source); ok {
				tags[source] = tag
			}
		}

		ignored := false
		for _, tag := range tags {
			if tag.Name == "-" {
				ignored = true
			}
		}
		if ignored {
			continue
		}

		// Untagged struct fields are containers to recurse into; a
		// struct implementing TextUnmarshaler (e.g. time.Time) is a
		// leaf value.
		if len(tags) == 0 && isPlainStruct(fv) {
			fv2 := fv
			if fv2.Kind() == reflect.Pointer {
				if fv2.IsNil() {
					fv2.Set(reflect.New(fv2.Type().Elem()))
				}
				fv2 = fv2.Elem()
			}
			if err := st.unmarshalStruct(fv2); err != nil {
				return err
			}
			continue
		}

		// Untagged non-struct fields default to path then query.
		if len(tags) == 0 {
			name := strings.ToLower(sf.Name)
			tags["path"] = sourceTag{Name: name}
			tags["query"] = sourceTag{Name: name}
		}

		_, isBody := tags["body"]
		limit, err := fieldLengthLimit(sf, isBody)
		if err != nil {
			return Error(http.StatusInternalServerError, "", err)
		}

		for _, source := range []string{"path", "query", "header", "cookie", "body"} {
			tag, ok := tags[source]
			if !ok {
				continue
			}
			values, present, err := st.lookupSource(source, tag.Name)
			if err != nil {
				return err
			}
			if !present {
				continue
			}
			for _, val := range values {
				if limit > 0 && len(val) > limit {
					return Error(http.StatusBadRequest, fmt.Sprintf("parameter %s too long", tag.Name), nil)
				}
			}
			if err := setField(fv, sf.Name, values, tag.Encoding); err != nil {
				return err
			}
			break
		}
	}
	return nil
}

func isPlainStruct(fv reflect.Value) bool {
	t := fv.Type()
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return false
	}
	um := reflect.TypeFor[encoding.TextUnmarshaler]()
	return !t.Implements(um) && !reflect.PointerTo(t).Implements(um)
}

// lookupSource fetches the raw values for a parameter from one source.
// present is false when the source carries no data for the name.
func (st *decodeState) lookupSource(source, name string) (values [][]byte, present bool, err error) {
	switch source {
	case "path":
		v := st.r.PathValue(name)
		if v == "" {
			return nil, false, nil
		}
		return [][]byte{[]byte(v)}, true, nil
	case "query":
		var q = st.r.URL.Query()
		vs, ok := q[name]
		if !ok || len(vs) == 0 {
			return nil, false, nil
		}
		out := make([][]byte, len(vs))
		for i, s := range vs {
			out[i] = []byte(s)
		}
		return out, true, nil
	case "header":
		vs := st.r.Header.Values(name)
		if len(vs) == 0 {
			return nil, false, nil
		}
		out := make([][]byte, len(vs))
		for i, s := range vs {
			out[i] = []byte(s)
		}
		return out, true, nil
	case "cookie":
		c, err := st.r.Cookie(name)
		if err != nil {
			return nil, false, nil
		}
		return [][]byte{[]byte(c.Value)}, true, nil
	case "body":
		b, err := st.readBody()
		if err != nil {
			return nil, false, err
		}
		if b == nil {
			return nil, false, nil
		}
		return [][]byte{b}, true, nil
	}
	return nil, false, Error(http.StatusInternalServerError, "", fmt.Errorf("endpoint: decode: unknown source %q", source))
}

// setField assigns raw values to a struct field, allocating through
// pointers as needed.
func setField(fv reflect.Value, fieldName string, values [][]byte, enc string) error {
	if len(values) == 0 {
		return nil
	}

	if fv.Kind() == reflect.Pointer {
		if fv.IsNil() {
			fv.Set(reflect.New(fv.Type().Elem()))
		}
		fv = fv.Elem()
	}

	// TextUnmarshaler takes priority over kind-based decoding.
	if fv.CanAddr() {
		if um, ok := fv.Addr().Interface().(encoding.TextUnmarshaler); ok {
			if err := um.UnmarshalText(values[0]); err != nil {
				return Error(http.StatusBadRequest, fmt.Sprintf("invalid value for %s", fieldName), err)
			}
			return nil
		}
	}

	switch fv.Kind() {
	case reflect.String:
		fv.SetString(string(values[0]))
	case reflect.Bool:
		b, err := strconv.ParseBool(string(values[0]))
		if err != nil {
			return Error(http.StatusBadRequest, fmt.Sprintf("invalid boolean for %s", fieldName), err)
		}
		fv.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(string(values[0]), 10, fv.Type().Bits())
		if err != nil {
			return Error(http.StatusBadRequest, fmt.Sprintf("invalid integer for %s", fieldName), err)
		}
		fv.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(string(values[0]), 10, fv.Type().Bits())
		if err != nil {
			return Error(http.StatusBadRequest, fmt.Sprintf("invalid integer for %s", fieldName), err)
		}
		fv.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(string(values[0]), fv.Type().Bits())
		if err != nil {
			return Error(http.StatusBadRequest, fmt.Sprintf("invalid number for %s", fieldName), err)
		}
		fv.SetFloat(f)
	case reflect.Slice:
		switch fv.Type().Elem().Kind() {
		case reflect.Uint8: // []byte
			b, err := decodeBytes(values[0], enc)
			if err != nil {
				return Error(http.StatusBadRequest, fmt.Sprintf("invalid value for %s", fieldName), err)
			}
			fv.SetBytes(b)
		case reflect.String: // []string from repeated values
			out := make([]string, len(values))
			for i, v := range values {
				out[i] = string(v)
			}
			fv.Set(reflect.ValueOf(out))
		default:
			return Error(http.StatusInternalServerError, "", fmt.Errorf("endpoint: decode: unsupported slice type for field %s", fieldName))
		}
	default:
		return Error(http.StatusInternalServerError, "", fmt.Errorf("endpoint: decode: unsupported type for field %s", fieldName))
	}
	return nil
}

func decodeBytes(raw []byte, enc string) ([]byte, error) {
	switch enc {
	case "":
		out := make([]byte, len(raw))
		copy(out, raw)
		return out, nil
	case "base64":
		return base64.StdEncoding.DecodeString(string(raw))
	case "base64url":
		return base64.RawURLEncoding.DecodeString(string(raw))
	}
	return nil, fmt.Errorf("unknown encoding %q", enc)
}
