package middleware

import (
	"errors"
	"net/http"
	"time"

	"github.com/mnehpets/xmlserve/endpoint"
	"github.com/rs/zerolog"
)

// AccessLogProcessor emits one structured log line per request.
//
// It wraps the response writer to capture the status code written by the
// renderer; the chain's behavior is otherwise unchanged.
type AccessLogProcessor struct {
	Logger zerolog.Logger
}

// NewAccessLogProcessor creates an access-log processor using logger.
func NewAccessLogProcessor(logger zerolog.Logger) *AccessLogProcessor {
	return &AccessLogProcessor{Logger: logger}
}

// Process implements endpoint.Processor.
func (p *AccessLogProcessor) Process(w http.ResponseWriter, r *http.Request, next func(w http.ResponseWriter, r *http.Request) error) error {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w}
	err := next(rec, r)

	// An error returned up the chain is written by the handler wrapper
	// after this processor unwinds, outside the recorder; derive the
	// status it will write from the error itself.
	status := rec.status()
	if err != nil && rec.code == 0 {
		status = http.StatusInternalServerError
		var ee *endpoint.EndpointError
		if errors.As(err, &ee) && ee != nil && ee.Status >= 100 {
			status = ee.Status
		}
	}

	evt := p.Logger.Info()
	if err != nil {
		evt = p.Logger.Error().Err(err)
	}
	evt.Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("remote", r.RemoteAddr).
		Int("status", status).
		Dur("duration", time.Since(start)).
		Msg("request")
	return err
}

// statusRecorder captures the response status written downstream.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.code == 0 {
		sr.code = code
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.code == 0 {
		sr.code = http.StatusOK
	}
	return sr.ResponseWriter.Write(b)
}

func (sr *statusRecorder) status() int {
	if sr.code == 0 {
		return http.StatusOK
	}
	return sr.code
}

var _ endpoint.Processor = (*AccessLogProcessor)(nil)
