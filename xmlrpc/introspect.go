package xmlrpc

// XML-RPC introspection (system.listMethods, system.methodSignature,
// system.methodHelp). The three methods are ordinary registry entries that
// read the registry's own metadata.

import (
	"context"
	"math"
	"sort"
	"strings"
)

func (e *XMLRPCEndpoint) registerSystemMethods() {
	e.Register("system.listMethods", Method{
		Handler:   e.systemListMethods,
		Signature: []Signature{{TagArray}},
		Help:      "Returns an array of the names of all XML-RPC methods available on this endpoint.",
	})
	e.Register("system.methodSignature", Method{
		Handler: e.systemMethodSignature,
		Params:  []string{"name"},
		Signature: []Signature{
			{TagArray, TagString},
			{TagString, TagString},
		},
		Help: `Returns an array of the valid signatures for a method.

The first value of each signature is the return type of the method; the
rest are the parameter types. Multiple signatures indicate the method can
be called with different sets of parameters. If the method declares no
signatures, an empty string is returned instead.`,
	})
	e.Register("system.methodHelp", Method{
		Handler:   e.systemMethodHelp,
		Params:    []string{"name"},
		Signature: []Signature{{TagString, TagString}},
		Help:      "Returns the documentation string for a method.",
	})
}

func (e *XMLRPCEndpoint) systemListMethods(_ context.Context, _ *Call) (Value, error) {
	e.mu.RLock()
	names := make([]string, 0, len(e.methods))
	for id := range e.methods {
		// A leading underscore marks a method as internal-only.
		if strings.HasPrefix(id, "_") {
			continue
		}
		names = append(names, publishMethodName(id))
	}
	e.mu.RUnlock()

	// Sorted so repeated calls on an unchanged registry agree.
	sort.Strings(names)
	elems := make([]Value, len(names))
	for i, n := range names {
		elems[i] = String(n)
	}
	return Array(elems...), nil
}

func (e *XMLRPCEndpoint) systemMethodSignature(_ context.Context, call *Call) (Value, error) {
	name, _ := call.Args["name"].Str()
	m, ok := e.lookup(resolveMethodName(name))
	if !ok {
		return Value{}, NewFault(0, "No such method name")
	}
	if len(m.Signature) == 0 {
		return String(""), nil
	}
	sigs := make([]Value, len(m.Signature))
	for i, sig := range m.Signature {
		tags := make([]Value, len(sig))
		for j, t := range sig {
			tags[j] = String(string(t))
		}
		sigs[i] = Array(tags...)
	}
	return Array(sigs...), nil
}

func (e *XMLRPCEndpoint) systemMethodHelp(_ context.Context, call *Call) (Value, error) {
	name, _ := call.Args["name"].Str()
	m, ok := e.lookup(resolveMethodName(name))
	if !ok {
		return Value{}, NewFault(0, "No such method name")
	}
	help := trimHelp(m.Help)
	if len(m.Signature) > 0 {
		help += "\n\nMethod signature: " + formatSignatures(m.Signature)
	}
	return String(help), nil
}

// trimHelp normalizes a help text the way docstrings are conventionally
// trimmed: tabs expanded, the first line stripped, the common leading
// indentation of the remaining lines removed, and leading/trailing blank
// lines dropped.
func trimHelp(doc string) string {
	if doc == "" {
		return ""
	}
	lines := strings.Split(expandTabs(doc, 8), "\n")

	indent := math.MaxInt
	for _, line := range lines[1:] {
		stripped := strings.TrimLeft(line, " ")
		if stripped != "" {
			if n := len(line) - len(stripped); n < indent {
				indent = n
			}
		}
	}

	trimmed := []string{strings.TrimSpace(lines[0])}
	if indent < math.MaxInt {
		for _, line := range lines[1:] {
			if len(line) > indent {
				line = line[indent:]
			} else {
				line = ""
			}
			trimmed = append(trimmed, strings.TrimRight(line, " \t"))
		}
	}

	for len(trimmed) > 0 && trimmed[len(trimmed)-1] == "" {
		trimmed = trimmed[:len(trimmed)-1]
	}
	for len(trimmed) > 0 && trimmed[0] == "" {
		trimmed = trimmed[1:]
	}
	return strings.Join(trimmed, "\n")
}

// expandTabs replaces tabs with spaces, advancing to the next multiple of
// size, per the usual tab-stop rules.
func expandTabs(s string, size int) string {
	if !strings.Contains(s, "\t") {
		return s
	}
	var b strings.Builder
	col := 0
	for _, r := range s {
		switch r {
		case '\t':
			n := size - col%size
			for i := 0; i < n; i++ {
				b.WriteByte(' ')
			}
			col += n
		case '\n':
			b.WriteRune(r)
			col = 0
		default:
			b.WriteRune(r)
			col++
		}
	}
	return b.String()
}
