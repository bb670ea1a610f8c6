package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mnehpets/xmlserve/endpoint"
	"github.com/rs/zerolog"
)

func TestAccessLogProcessor(t *testing.T) {
	var buf bytes.Buffer
	p := NewAccessLogProcessor(zerolog.New(&buf))

	req := httptest.NewRequest(http.MethodPost, "/RPC2", nil)
	req.RemoteAddr = "10.0.0.9:1234"
	rec := httptest.NewRecorder()
	err := p.Process(rec, req, func(w http.ResponseWriter, _ *http.Request) error {
		w.WriteHeader(http.StatusTeapot)
		return nil
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, buf.String())
	}
	if entry["level"] != "info" {
		t.Errorf("got level %v, want info", entry["level"])
	}
	if entry["method"] != "POST" || entry["path"] != "/RPC2" {
		t.Errorf("got method=%v path=%v", entry["method"], entry["path"])
	}
	if entry["remote"] != "10.0.0.9:1234" {
		t.Errorf("got remote %v", entry["remote"])
	}
	if entry["status"] != float64(http.StatusTeapot) {
		t.Errorf("got status %v, want %d", entry["status"], http.StatusTeapot)
	}
	if entry["message"] != "request" {
		t.Errorf("got message %v", entry["message"])
	}
	if _, ok := entry["duration"]; !ok {
		t.Error("missing duration field")
	}
}

func TestAccessLogImplicitStatus(t *testing.T) {
	var buf bytes.Buffer
	p := NewAccessLogProcessor(zerolog.New(&buf))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	// Writing a body without WriteHeader implies a 200.
	err := p.Process(httptest.NewRecorder(), req, func(w http.ResponseWriter, _ *http.Request) error {
		_, werr := w.Write([]byte("ok"))
		return werr
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["status"] != float64(http.StatusOK) {
		t.Errorf("got status %v, want %d", entry["status"], http.StatusOK)
	}
}

func TestAccessLogErrorPath(t *testing.T) {
	var buf bytes.Buffer
	p := NewAccessLogProcessor(zerolog.New(&buf))

	boom := errors.New("downstream failed")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	err := p.Process(httptest.NewRecorder(), req, func(http.ResponseWriter, *http.Request) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("error not propagated: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["level"] != "error" {
		t.Errorf("got level %v, want error", entry["level"])
	}
	if entry["error"] != "downstream failed" {
		t.Errorf("got error field %v", entry["error"])
	}
	// A plain error is written as a 500 by the handler wrapper.
	if entry["status"] != float64(http.StatusInternalServerError) {
		t.Errorf("got status %v, want %d", entry["status"], http.StatusInternalServerError)
	}
}

func TestAccessLogEndpointErrorStatus(t *testing.T) {
	// The error response is written after the processor unwinds, so the
	// logged status must come from the error, not the recorder.
	var buf bytes.Buffer
	p := NewAccessLogProcessor(zerolog.New(&buf))

	req := httptest.NewRequest(http.MethodGet, "/RPC2", nil)
	err := p.Process(httptest.NewRecorder(), req, func(http.ResponseWriter, *http.Request) error {
		return endpoint.Error(http.StatusMethodNotAllowed, "XML-RPC requires POST method", nil)
	})
	if err == nil {
		t.Fatal("error not propagated")
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["status"] != float64(http.StatusMethodNotAllowed) {
		t.Errorf("got status %v, want %d", entry["status"], http.StatusMethodNotAllowed)
	}
	if entry["level"] != "error" {
		t.Errorf("got level %v, want error", entry["level"])
	}
}
