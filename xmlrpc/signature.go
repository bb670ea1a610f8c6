package xmlrpc

import "strings"

// Signature is one declared calling convention for a method: element 0 is
// the return type tag, elements 1..N are the parameter type tags in call
// order. A method may declare several signatures (overloads).
type Signature []Tag

// matchSignature checks the observed argument tags against the declared
// alternatives in declaration order and returns the first alternative with
// equal arity and position-wise equal tags.
//
// Matching is exact: tags never widen or coerce (an int argument does not
// satisfy a double slot). ok is false when no alternative matches.
func matchSignature(declared []Signature, observed []Tag) (Signature, bool) {
	for _, sig := range declared {
		if len(sig)-1 != len(observed) {
			continue
		}
		matched := true
		for i, tag := range observed {
			if sig[i+1] != tag {
				matched = false
				break
			}
		}
		if matched {
			return sig, true
		}
	}
	return nil, false
}

// formatTags renders a tag list as e.g. "[string, int]".
func formatTags(tags []Tag) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, t := range tags {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(string(t))
	}
	b.WriteByte(']')
	return b.String()
}

// formatSignatures renders a signature set as e.g.
// "[[struct, string], [struct, string, int]]".
func formatSignatures(sigs []Signature) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, sig := range sigs {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(formatTags([]Tag(sig)))
	}
	b.WriteByte(']')
	return b.String()
}
