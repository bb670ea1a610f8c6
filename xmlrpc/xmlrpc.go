package xmlrpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/mnehpets/xmlserve/endpoint"
)

// DefaultMaxBodyLength is the request body cap applied when an endpoint
// does not set its own.
const DefaultMaxBodyLength = 4 << 20 // 4MB

// Fault is an XML-RPC fault: a protocol-level failure answered with a
// well-formed fault envelope rather than a transport error.
//
// Methods may return a *Fault as their error to answer the call with that
// fault. The dispatcher itself uses code 0 for "no such method" and
// signature mismatches; the message carries the diagnostic detail.
type Fault struct {
	Code    int
	Message string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("xmlrpc: fault %d: %s", f.Code, f.Message)
}

// NewFault creates a Fault.
func NewFault(code int, message string) *Fault {
	return &Fault{Code: code, Message: message}
}

// Call carries the per-call context supplied to a method handler.
//
// A fresh Call is built for every dispatch; handlers never share state
// through it.
type Call struct {
	// Method is the internal method id (wire name with dots replaced by
	// underscores); Name is the wire name as received.
	Method string
	Name   string

	// Args maps declared parameter names to the positional arguments,
	// bound first-to-first. Arguments beyond the declared names are
	// dropped; missing arguments are simply absent from the map.
	Args map[string]Value

	// Request is the transport request that carried the call.
	Request *http.Request
}

// HandlerFunc is an XML-RPC method implementation.
//
// Returning a *Fault answers the call with that fault envelope. Any other
// non-nil error is treated as an internal failure and surfaced as an HTTP
// error by the transport.
type HandlerFunc func(ctx context.Context, call *Call) (Value, error)

// Method is a registered XML-RPC method.
type Method struct {
	// Handler implements the method.
	Handler HandlerFunc

	// Params names the positional parameters, in call order. Arguments
	// are bound to these names in Call.Args; a method with no declared
	// names receives an empty Args map.
	Params []string

	// Signature optionally declares the valid calling conventions.
	// Element 0 of each alternative is the return type, the rest are
	// parameter types. With no signatures declared, any argument list
	// reaches the handler (signature checking is opt-in per method).
	Signature []Signature

	// Help is the documentation returned by system.methodHelp. It is
	// trimmed docstring-style: common indentation and surrounding blank
	// lines are removed.
	Help string
}

// XMLRPCEndpoint is a registry of XML-RPC methods plus the endpoint
// function that dispatches calls to them.
// Use endpoint.Handler(e.Endpoint, processors...) to create an http.Handler.
//
// The endpoint is stateless per call: registration is expected to complete
// before serving begins, after which the registry is only read.
type XMLRPCEndpoint struct {
	mu      sync.RWMutex
	methods map[string]*Method

	// AllowNone permits <nil/> values in responses (an extension to the
	// XML-RPC specification).
	AllowNone bool

	// MaxBodyLength caps the request body size. Zero means
	// DefaultMaxBodyLength.
	MaxBodyLength int64
}

// NewEndpoint creates an XML-RPC method registry with the introspection
// methods (system.listMethods, system.methodSignature, system.methodHelp)
// pre-registered.
func NewEndpoint() *XMLRPCEndpoint {
	e := &XMLRPCEndpoint{
		methods: make(map[string]*Method),
	}
	e.registerSystemMethods()
	return e
}

// resolveMethodName translates a wire method name to its internal id by
// replacing dots with underscores (system.methodHelp -> system_methodHelp).
//
// The transform is lossy: an internal id containing a literal underscore
// cannot be told apart from one whose wire name used a dot. That ambiguity
// is accepted; publishMethodName is only a true inverse for names without
// underscores.
func resolveMethodName(name string) string {
	return strings.ReplaceAll(name, ".", "_")
}

// publishMethodName translates an internal method id to its public wire
// name (blog_view -> blog.view).
func publishMethodName(name string) string {
	return strings.ReplaceAll(name, "_", ".")
}

// Register adds a method under the given name. The name may be the wire
// form ("blog.view") or the internal form ("blog_view"); it is stored under
// the internal id either way.
//
// Register panics on a nil handler or a name collision; registration is a
// startup-time activity and both are programming errors.
func (e *XMLRPCEndpoint) Register(name string, m Method) {
	if m.Handler == nil {
		panic("xmlrpc: nil handler for method " + name)
	}
	id := resolveMethodName(name)
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.methods[id]; exists {
		panic("xmlrpc: method name collision: " + id)
	}
	e.methods[id] = &m
}

// lookup fetches a method by internal id.
func (e *XMLRPCEndpoint) lookup(id string) (*Method, bool) {
	e.mu.RLock()
	m, ok := e.methods[id]
	e.mu.RUnlock()
	return m, ok
}

func (e *XMLRPCEndpoint) maxBodyLength() int64 {
	if e.MaxBodyLength > 0 {
		return e.MaxBodyLength
	}
	return DefaultMaxBodyLength
}

// rpcParams is deliberately empty: the endpoint reads the body itself so
// the size policy can reject a request before any of it is buffered, and
// so a malformed envelope maps to an XML-RPC-specific error response
// rather than the generic body-decoding error.
type rpcParams struct{}

// Endpoint is the endpoint function that processes XML-RPC requests.
// Pass to endpoint.Handler() to create an http.Handler.
func (e *XMLRPCEndpoint) Endpoint(w http.ResponseWriter, r *http.Request, _ rpcParams) (endpoint.Renderer, error) {
	if r.Method != http.MethodPost {
		return nil, endpoint.Error(http.StatusMethodNotAllowed, "XML-RPC requires POST method", nil)
	}

	contentType := r.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "text/xml") &&
		!strings.HasPrefix(contentType, "application/xml") {
		return nil, endpoint.Error(http.StatusUnsupportedMediaType, "Content-Type must be text/xml", nil)
	}

	// Body size policy runs before any read: no declared length is a 411,
	// an empty or over-limit declaration a 413, with no bytes consumed.
	if r.ContentLength < 0 {
		return nil, endpoint.Error(http.StatusLengthRequired, "Content-Length required", nil)
	}
	if r.ContentLength == 0 || r.ContentLength > e.maxBodyLength() {
		return nil, endpoint.Error(http.StatusRequestEntityTooLarge, "XML body too large", nil)
	}

	// The declared length passed; the reader still caps the actual bytes
	// in case the declaration lied.
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, e.maxBodyLength()))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, endpoint.Error(http.StatusRequestEntityTooLarge, "XML body too large", err)
		}
		return nil, endpoint.Error(http.StatusBadRequest, "failed to read request body", err)
	}

	return e.handleBody(r, body)
}

// handleBody runs the dispatch pipeline for one decoded request: decode,
// resolve, signature check, bind, invoke, encode.
func (e *XMLRPCEndpoint) handleBody(r *http.Request, body []byte) (endpoint.Renderer, error) {
	wireName, args, err := DecodeRequest(body)
	if err != nil {
		// A body that is not a method call at all is a transport-level
		// rejection, not a fault response.
		return nil, endpoint.Error(http.StatusBadRequest, "malformed XML-RPC request", err)
	}

	id := resolveMethodName(wireName)
	m, ok := e.lookup(id)
	if !ok {
		return faultRenderer(0, "No method by that name"), nil
	}

	if len(m.Signature) > 0 {
		observed := classifyArgs(args)
		if _, ok := matchSignature(m.Signature, observed); !ok {
			msg := fmt.Sprintf("Incorrect argument signature. %s received does not match %s signature for method %s",
				formatTags(observed), formatSignatures(m.Signature), wireName)
			return faultRenderer(0, msg), nil
		}
	}

	call := &Call{
		Method:  id,
		Name:    wireName,
		Args:    bindArgs(m.Params, args),
		Request: r,
	}

	result, err := e.invoke(r.Context(), m, call)
	if err != nil {
		if f, ok := err.(*Fault); ok {
			return faultRenderer(f.Code, f.Message), nil
		}
		return nil, endpoint.Error(http.StatusInternalServerError, "internal error", err)
	}

	resp, err := EncodeResponse(result, e.AllowNone)
	if err != nil {
		return nil, endpoint.Error(http.StatusInternalServerError, "internal error", err)
	}
	return &xmlrpcRenderer{body: resp}, nil
}

// bindArgs zips the positional arguments with the declared parameter
// names; binding stops at the shorter of the two lists.
func bindArgs(names []string, args []Value) map[string]Value {
	n := len(names)
	if len(args) < n {
		n = len(args)
	}
	bound := make(map[string]Value, n)
	for i := 0; i < n; i++ {
		bound[names[i]] = args[i]
	}
	return bound
}

func (e *XMLRPCEndpoint) invoke(ctx context.Context, m *Method, call *Call) (result Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("xmlrpc panic in %s: %v", call.Method, r)
			err = fmt.Errorf("xmlrpc: method %s panicked", call.Method)
		}
	}()
	return m.Handler(ctx, call)
}

// xmlrpcRenderer writes an XML-RPC response body.
type xmlrpcRenderer struct {
	body []byte
}

func (rr *xmlrpcRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, err := w.Write(rr.body)
	return err
}

func faultRenderer(code int, message string) endpoint.Renderer {
	return &xmlrpcRenderer{body: EncodeFault(code, message)}
}
