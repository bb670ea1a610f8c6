package main

import (
	"context"
	"log"
	"net/http"

	"github.com/mnehpets/xmlserve/endpoint"
	"github.com/mnehpets/xmlserve/xmlrpc"
)

var users = map[string]int{
	"alice": 31,
	"bob":   11,
}

// UserStatus returns a fixed status string. No signature is declared, so
// any argument list reaches the handler.
func UserStatus(ctx context.Context, call *xmlrpc.Call) (xmlrpc.Value, error) {
	return xmlrpc.String("basic string"), nil
}

// UserInfo returns a struct describing the named user. The optional age
// argument is only echoed back when it is over 10.
func UserInfo(ctx context.Context, call *xmlrpc.Call) (xmlrpc.Value, error) {
	username, _ := call.Args["username"].Str()
	if _, ok := users[username]; !ok {
		return xmlrpc.Value{}, xmlrpc.NewFault(0, "no such user: "+username)
	}
	resp := map[string]xmlrpc.Value{
		"username": xmlrpc.String(username),
	}
	if age, ok := call.Args["age"].Num(); ok && age > 10 {
		resp["age"] = xmlrpc.Int(age)
	}
	return xmlrpc.Struct(resp), nil
}

func main() {
	e := xmlrpc.NewEndpoint()

	e.Register("userstatus", xmlrpc.Method{
		Handler:   UserStatus,
		Signature: []xmlrpc.Signature{{xmlrpc.TagString}},
		Help:      "Returns the service status as a string.",
	})
	e.Register("userinfo", xmlrpc.Method{
		Handler: UserInfo,
		Params:  []string{"username", "age"},
		Signature: []xmlrpc.Signature{
			{xmlrpc.TagStruct, xmlrpc.TagString},
			{xmlrpc.TagStruct, xmlrpc.TagString, xmlrpc.TagInt},
		},
		Help: "Returns a struct describing the named user.",
	})

	http.Handle("/RPC2", endpoint.Handler(e.Endpoint))

	log.Println("Starting server on :8080")
	log.Fatal(http.ListenAndServe(":8080", nil))
}
