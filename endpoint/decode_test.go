package endpoint

import (
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestUnmarshalSources(t *testing.T) {
	type params struct {
		Name   string   `query:"name"`
		Agent  string   `header:"User-Agent"`
		Sess   string   `cookie:"sess"`
		Body   []byte   `body:""`
		Tags   []string `query:"tag"`
		Count  int      `query:"count"`
		Ratio  float64  `query:"ratio"`
		Active bool     `query:"active"`
	}

	req := httptest.NewRequest(http.MethodPost,
		"/?name=ada&tag=a&tag=b&count=7&ratio=2.5&active=true",
		strings.NewReader("hello"))
	req.Header.Set("User-Agent", "unit-test")
	req.AddCookie(&http.Cookie{Name: "sess", Value: "s123"})

	var p params
	if err := Unmarshal(req, &p); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if p.Name != "ada" {
		t.Errorf("Name: got %q", p.Name)
	}
	if p.Agent != "unit-test" {
		t.Errorf("Agent: got %q", p.Agent)
	}
	if p.Sess != "s123" {
		t.Errorf("Sess: got %q", p.Sess)
	}
	if string(p.Body) != "hello" {
		t.Errorf("Body: got %q", p.Body)
	}
	if len(p.Tags) != 2 || p.Tags[0] != "a" || p.Tags[1] != "b" {
		t.Errorf("Tags: got %v", p.Tags)
	}
	if p.Count != 7 || p.Ratio != 2.5 || !p.Active {
		t.Errorf("scalars: got %d %v %v", p.Count, p.Ratio, p.Active)
	}
}

func TestUnmarshalDefaultName(t *testing.T) {
	// With an empty tag name the lowercased field name is used.
	type params struct {
		Token string `query:""`
	}
	req := httptest.NewRequest(http.MethodGet, "/?token=t1", nil)
	var p params
	if err := Unmarshal(req, &p); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if p.Token != "t1" {
		t.Errorf("got %q, want %q", p.Token, "t1")
	}
}

func TestUnmarshalSourcePrecedence(t *testing.T) {
	// path beats query, query beats header.
	type params struct {
		ID string `query:"id" header:"X-Id"`
	}
	req := httptest.NewRequest(http.MethodGet, "/?id=from-query", nil)
	req.Header.Set("X-Id", "from-header")
	var p params
	if err := Unmarshal(req, &p); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if p.ID != "from-query" {
		t.Errorf("got %q, want query value", p.ID)
	}

	// With no query value the header fills in.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Id", "from-header")
	p = params{}
	if err := Unmarshal(req, &p); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if p.ID != "from-header" {
		t.Errorf("got %q, want header value", p.ID)
	}
}

func TestUnmarshalIgnoredField(t *testing.T) {
	type params struct {
		Skip string `query:"-"`
	}
	req := httptest.NewRequest(http.MethodGet, "/?skip=nope", nil)
	var p params
	if err := Unmarshal(req, &p); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if p.Skip != "" {
		t.Errorf("ignored field was set: %q", p.Skip)
	}
}

func TestUnmarshalByteEncodings(t *testing.T) {
	type params struct {
		Std []byte `query:"std,base64"`
		URL []byte `query:"url,base64url"`
	}
	std := base64.StdEncoding.EncodeToString([]byte{0xff, 0x01})
	url := base64.RawURLEncoding.EncodeToString([]byte{0xfe, 0x02})
	req := httptest.NewRequest(http.MethodGet, "/?std="+std+"&url="+url, nil)

	var p params
	if err := Unmarshal(req, &p); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(p.Std) != 2 || p.Std[0] != 0xff {
		t.Errorf("Std: got %v", p.Std)
	}
	if len(p.URL) != 2 || p.URL[0] != 0xfe {
		t.Errorf("URL: got %v", p.URL)
	}

	// Invalid base64 is a client error.
	req = httptest.NewRequest(http.MethodGet, "/?std=%21%21", nil)
	p = params{}
	err := Unmarshal(req, &p)
	var ee *EndpointError
	if !errors.As(err, &ee) || ee.Status != http.StatusBadRequest {
		t.Errorf("got %v, want a 400", err)
	}
}

func TestUnmarshalTextUnmarshaler(t *testing.T) {
	type params struct {
		When time.Time `query:"when"`
	}
	req := httptest.NewRequest(http.MethodGet, "/?when=2021-03-04T05:06:07Z", nil)
	var p params
	if err := Unmarshal(req, &p); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	want := time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)
	if !p.When.Equal(want) {
		t.Errorf("got %v, want %v", p.When, want)
	}
}

func TestUnmarshalNestedStruct(t *testing.T) {
	type page struct {
		Limit  int `query:"limit"`
		Offset int `query:"offset"`
	}
	type params struct {
		Name string `query:"name"`
		Page page
	}
	req := httptest.NewRequest(http.MethodGet, "/?name=n&limit=10&offset=20", nil)
	var p params
	if err := Unmarshal(req, &p); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if p.Page.Limit != 10 || p.Page.Offset != 20 {
		t.Errorf("nested: got %+v", p.Page)
	}
}

func TestUnmarshalLengthLimit(t *testing.T) {
	type params struct {
		Note string `query:"note" maxLength:"4"`
	}
	req := httptest.NewRequest(http.MethodGet, "/?note=12345", nil)
	var p params
	err := Unmarshal(req, &p)
	var ee *EndpointError
	if !errors.As(err, &ee) || ee.Status != http.StatusBadRequest {
		t.Fatalf("got %v, want a 400", err)
	}

	req = httptest.NewRequest(http.MethodGet, "/?note=1234", nil)
	p = params{}
	if err := Unmarshal(req, &p); err != nil {
		t.Fatalf("Unmarshal at the limit: %v", err)
	}
	if p.Note != "1234" {
		t.Errorf("got %q", p.Note)
	}
}

func TestUnmarshalBodyUnlimitedByDefault(t *testing.T) {
	type params struct {
		Body []byte `body:""`
	}
	big := strings.Repeat("x", defaultFieldLimit+1)
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))
	var p params
	if err := Unmarshal(req, &p); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(p.Body) != len(big) {
		t.Errorf("got %d body bytes, want %d", len(p.Body), len(big))
	}
}

func TestUnmarshalBodyLimit(t *testing.T) {
	type params struct {
		Body []byte `body:"" maxLength:"8"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("way past eight"))
	var p params
	err := Unmarshal(req, &p)
	var ee *EndpointError
	if !errors.As(err, &ee) || ee.Status != http.StatusBadRequest {
		t.Errorf("got %v, want a 400", err)
	}
}

func TestUnmarshalInvalidScalars(t *testing.T) {
	type params struct {
		N int `query:"n"`
	}
	req := httptest.NewRequest(http.MethodGet, "/?n=abc", nil)
	var p params
	err := Unmarshal(req, &p)
	var ee *EndpointError
	if !errors.As(err, &ee) || ee.Status != http.StatusBadRequest {
		t.Errorf("got %v, want a 400", err)
	}
}

func TestUnmarshalMissingFieldsStayZero(t *testing.T) {
	type params struct {
		Name  string `query:"name"`
		Count int    `query:"count"`
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	var p params
	if err := Unmarshal(req, &p); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if p.Name != "" || p.Count != 0 {
		t.Errorf("missing fields set: %+v", p)
	}
}

func TestUnmarshalBadDestination(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if err := Unmarshal(req, nil); err == nil {
		t.Error("nil destination accepted")
	}
	var s string
	if err := Unmarshal(req, &s); err == nil {
		t.Error("non-struct destination accepted")
	}
}
