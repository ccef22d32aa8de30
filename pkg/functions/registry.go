// Package functions maps logical function names and key=value arguments onto
// paid edge-function endpoints.
package functions

import (
	"fmt"
	"net/url"
	"strings"
)

// PathPrefix is where edge functions are mounted on the resource server
const PathPrefix = "/functions/v1/"

// Param is one query parameter
type Param struct {
	Key   string
	Value string
}

// Params is an insertion-ordered set of query parameters
type Params []Param

// Get returns the value for key
func (p Params) Get(key string) (string, bool) {
	for _, kv := range p {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

// Set replaces an existing key in place or appends a new one
func (p Params) Set(key, value string) Params {
	for i := range p {
		if p[i].Key == key {
			p[i].Value = value
			return p
		}
	}
	return append(p, Param{Key: key, Value: value})
}

// Merge returns a copy of p with every override applied in order
func (p Params) Merge(overrides Params) Params {
	merged := append(Params(nil), p...)
	for _, kv := range overrides {
		merged = merged.Set(kv.Key, kv.Value)
	}
	return merged
}

// Encode renders the params as a query string, spaces as '+'
func (p Params) Encode() string {
	var b strings.Builder
	for i, kv := range p {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(kv.Key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(kv.Value))
	}
	return b.String()
}

func (p Params) String() string {
	parts := make([]string, len(p))
	for i, kv := range p {
		parts[i] = fmt.Sprintf("%s: %s", kv.Key, kv.Value)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Function describes one paid edge function
type Function struct {
	Name        string
	Description string
	Defaults    Params
}

// Registry is the ordered set of known functions
type Registry struct {
	functions []Function
}

// NewRegistry creates a registry; later duplicates are ignored
func NewRegistry(fns ...Function) *Registry {
	r := &Registry{}
	for _, fn := range fns {
		if _, ok := r.Lookup(fn.Name); ok {
			continue
		}
		r.functions = append(r.functions, fn)
	}
	return r
}

// DefaultRegistry returns the built-in function catalogue
func DefaultRegistry() *Registry {
	return NewRegistry(
		Function{
			Name:        "toolzv4",
			Description: "IPv4 Network Connectivity Testing Tool",
			Defaults:    Params{{"target", "8.8.8.8"}, {"count", "4"}, {"timeout", "5000"}},
		},
		Function{
			Name:        "url-qr-code-generator",
			Description: "URL QR Code Generator",
			Defaults:    Params{{"url", "https://example.com"}, {"size", "200"}},
		},
		Function{
			Name:        "email-validator",
			Description: "Email Validator - Validates email address format using RFC-style patterns",
			Defaults:    Params{{"email", "user@example.com"}},
		},
	)
}

// Lookup finds a function by name
func (r *Registry) Lookup(name string) (Function, bool) {
	for _, fn := range r.functions {
		if fn.Name == name {
			return fn, true
		}
	}
	return Function{}, false
}

// Functions returns the registered functions in registration order
func (r *Registry) Functions() []Function {
	return append([]Function(nil), r.functions...)
}

// Names returns the registered names in registration order
func (r *Registry) Names() []string {
	names := make([]string, len(r.functions))
	for i, fn := range r.functions {
		names[i] = fn.Name
	}
	return names
}

// Path builds the endpoint path for fn called with params
func Path(name string, params Params) string {
	if len(params) == 0 {
		return PathPrefix + name
	}
	return PathPrefix + name + "?" + params.Encode()
}
