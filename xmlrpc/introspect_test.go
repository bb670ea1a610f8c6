package xmlrpc

import (
	"context"
	"reflect"
	"strings"
	"testing"
)

func introspectEndpoint(t *testing.T) *XMLRPCEndpoint {
	t.Helper()
	e := NewEndpoint()
	noop := func(_ context.Context, _ *Call) (Value, error) {
		return String("ok"), nil
	}
	e.Register("blog_view", Method{
		Handler: noop,
		Params:  []string{"id"},
		Signature: []Signature{
			{TagStruct, TagString},
			{TagStruct, TagString, TagInt},
		},
		Help: "Fetches a post by id.",
	})
	e.Register("ping", Method{Handler: noop})
	e.Register("_reload", Method{Handler: noop})
	return e
}

func TestSystemListMethods(t *testing.T) {
	e := introspectEndpoint(t)
	h := serveRPC(e)

	rec := postRPC(t, h, callBody("system.listMethods"))
	result, fault := decodeResponse(t, rec.Body.Bytes())
	if fault != nil {
		t.Fatalf("unexpected fault: %v", fault)
	}
	elems, ok := result.Slice()
	if !ok {
		t.Fatalf("result is not an array: %#v", result)
	}
	var names []string
	for _, el := range elems {
		s, ok := el.Str()
		if !ok {
			t.Fatalf("non-string element: %#v", el)
		}
		names = append(names, s)
	}

	// Published wire names in sorted order, internal-only methods omitted.
	want := []string{
		"blog.view",
		"ping",
		"system.listMethods",
		"system.methodHelp",
		"system.methodSignature",
	}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("got %v, want %v", names, want)
	}

	// Same registry, same answer.
	rec = postRPC(t, h, callBody("system.listMethods"))
	again, _ := decodeResponse(t, rec.Body.Bytes())
	if !reflect.DeepEqual(again, result) {
		t.Error("repeated listMethods calls disagree")
	}
}

func TestSystemMethodSignature(t *testing.T) {
	e := introspectEndpoint(t)
	h := serveRPC(e)

	query := func(name string) (Value, *Fault) {
		rec := postRPC(t, h, callBody("system.methodSignature",
			`<value><string>`+name+`</string></value>`))
		return decodeResponse(t, rec.Body.Bytes())
	}

	result, fault := query("blog.view")
	if fault != nil {
		t.Fatalf("unexpected fault: %v", fault)
	}
	want := Array(
		Array(String("struct"), String("string")),
		Array(String("struct"), String("string"), String("int")),
	)
	if !reflect.DeepEqual(result, want) {
		t.Errorf("got %#v, want %#v", result, want)
	}

	// No declared signatures comes back as an empty string, not an array.
	result, fault = query("ping")
	if fault != nil {
		t.Fatalf("unexpected fault: %v", fault)
	}
	if s, ok := result.Str(); !ok || s != "" {
		t.Errorf("got %#v, want empty string", result)
	}

	_, fault = query("does.not.exist")
	if fault == nil {
		t.Fatal("expected a fault")
	}
	if fault.Code != 0 || fault.Message != "No such method name" {
		t.Errorf("got fault (%d, %q)", fault.Code, fault.Message)
	}
}

func TestSystemMethodHelp(t *testing.T) {
	e := introspectEndpoint(t)
	h := serveRPC(e)

	query := func(name string) (Value, *Fault) {
		rec := postRPC(t, h, callBody("system.methodHelp",
			`<value><string>`+name+`</string></value>`))
		return decodeResponse(t, rec.Body.Bytes())
	}

	// Declared signatures are appended after the trimmed help text.
	result, fault := query("blog.view")
	if fault != nil {
		t.Fatalf("unexpected fault: %v", fault)
	}
	help, _ := result.Str()
	want := "Fetches a post by id.\n\nMethod signature: [[struct, string], [struct, string, int]]"
	if help != want {
		t.Errorf("got %q, want %q", help, want)
	}

	// No signatures means no suffix.
	result, fault = query("ping")
	if fault != nil {
		t.Fatalf("unexpected fault: %v", fault)
	}
	if help, _ = result.Str(); help != "" {
		t.Errorf("got %q, want empty help", help)
	}

	_, fault = query("does.not.exist")
	if fault == nil {
		t.Fatal("expected a fault")
	}
	if fault.Message != "No such method name" {
		t.Errorf("got fault message %q", fault.Message)
	}
}

func TestSystemMethodHelpTrimsDocstring(t *testing.T) {
	e := NewEndpoint()
	e.Register("messy", Method{
		Handler: func(_ context.Context, _ *Call) (Value, error) {
			return String("ok"), nil
		},
		Help: "\n    Summary line.\n\n        Indented detail.\n    Back to base.\n\n",
	})

	rec := postRPC(t, serveRPC(e), callBody("system.methodHelp",
		`<value><string>messy</string></value>`))
	result, fault := decodeResponse(t, rec.Body.Bytes())
	if fault != nil {
		t.Fatalf("unexpected fault: %v", fault)
	}
	help, _ := result.Str()
	want := "Summary line.\n\n    Indented detail.\nBack to base."
	if help != want {
		t.Errorf("got %q, want %q", help, want)
	}
}

func TestSystemMethodsRejectBadArguments(t *testing.T) {
	e := NewEndpoint()
	// methodHelp declares [string, string]; an int argument must be
	// rejected by the same signature machinery as user methods.
	rec := postRPC(t, serveRPC(e), callBody("system.methodHelp", `<value><int>1</int></value>`))
	_, fault := decodeResponse(t, rec.Body.Bytes())
	if fault == nil {
		t.Fatal("expected a signature fault")
	}
	if !strings.Contains(fault.Message, "Incorrect argument signature") {
		t.Errorf("got fault message %q", fault.Message)
	}
}

func TestTrimHelp(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"single line", "  Just this.  ", "Just this."},
		{
			"common indent stripped",
			"Summary.\n    line one\n      line two\n    line three",
			"Summary.\nline one\n  line two\nline three",
		},
		{
			"surrounding blank lines dropped",
			"\n\nSummary.\n    detail\n\n\n",
			"Summary.\n    detail",
		},
		{
			"tabs expand to the next stop",
			"Summary.\n\tone\n        two",
			"Summary.\none\ntwo",
		},
		{
			"blank interior lines preserved",
			"Summary.\n\n    after gap",
			"Summary.\n\nafter gap",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := trimHelp(tt.in); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExpandTabs(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"no tabs", "no tabs"},
		{"\tx", "        x"},
		{"ab\tx", "ab      x"},
		{"12345678\tx", "12345678        x"},
		{"a\nb\tc", "a\nb       c"},
	}
	for _, tt := range tests {
		if got := expandTabs(tt.in, 8); got != tt.want {
			t.Errorf("expandTabs(%q): got %q, want %q", tt.in, got, tt.want)
		}
	}
}
