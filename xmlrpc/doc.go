// Package xmlrpc provides an XML-RPC server endpoint integrated with the
// endpoint processor/renderer chain.
//
// This package implements the XML-RPC specification
// (http://www.xmlrpc.com/spec) and its introspection extension
// (system.listMethods, system.methodSignature, system.methodHelp).
//
// # Basic Usage
//
// Create an endpoint, register methods, and serve via HTTP:
//
//	e := xmlrpc.NewEndpoint()
//	e.Register("userinfo", xmlrpc.Method{
//	    Handler: userInfo,
//	    Params:  []string{"username", "age"},
//	    Signature: []xmlrpc.Signature{
//	        {xmlrpc.TagStruct, xmlrpc.TagString},
//	        {xmlrpc.TagStruct, xmlrpc.TagString, xmlrpc.TagInt},
//	    },
//	    Help: "Returns a struct describing the named user.",
//	})
//	http.Handle("/RPC2", endpoint.Handler(e.Endpoint))
//	http.ListenAndServe(":8080", nil)
//
// Handlers receive the bound arguments by declared parameter name:
//
//	func userInfo(ctx context.Context, call *xmlrpc.Call) (xmlrpc.Value, error) {
//	    username, _ := call.Args["username"].Str()
//	    return xmlrpc.Struct(map[string]xmlrpc.Value{
//	        "username": xmlrpc.String(username),
//	    }), nil
//	}
//
// # Method Names
//
// Wire method names use dots; internally a dot becomes an underscore, so
// "blog.view" and "blog_view" name the same method. The translation is
// deliberately lossy: an internal name with a literal underscore is
// published with a dot. system.listMethods reports names in published
// form.
//
// # Signatures
//
// Each signature lists the return type first, then the parameter types.
// Declaring several signatures lets a method accept different argument
// lists; an incoming call must match one of them exactly (no coercion
// between types, an int never satisfies a double slot). Methods without
// declared signatures accept any arguments.
//
// # Faults
//
// Protocol-level failures are answered with a fault envelope and HTTP 200.
// Unknown methods and signature mismatches use fault code 0. A handler may
// answer with its own fault by returning a *Fault as its error:
//
//	return xmlrpc.Value{}, xmlrpc.NewFault(0, "no such user")
//
// Other handler errors and panics are not protocol outcomes; they surface
// as HTTP 500 through the endpoint chain.
//
// # Processor Integration
//
// Processors can be passed to endpoint.Handler for cross-cutting concerns:
//
//	http.Handle("/RPC2", endpoint.Handler(e.Endpoint, authProcessor, logProcessor))
//
// Processor errors return HTTP error responses (not XML-RPC faults).
package xmlrpc
