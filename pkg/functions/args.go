package functions

import (
	"fmt"
	"io"
	"strings"
)

// UsageError reports a malformed invocation
type UsageError struct {
	Message string
	// ShowRegistry asks the caller to print the full catalogue
	ShowRegistry bool
}

func (e *UsageError) Error() string {
	return e.Message
}

// Invocation is a resolved function call
type Invocation struct {
	Function Function
	Params   Params
	Path     string
}

// ParseArgs resolves command-line arguments against the registry. No arguments
// is always a usage error. Otherwise a non-empty override names the function,
// in which case every argument is a parameter.
func ParseArgs(args []string, override string, registry *Registry) (*Invocation, error) {
	var (
		name   string
		tokens []string
	)

	switch {
	case len(args) == 0:
		return nil, &UsageError{Message: "no function specified", ShowRegistry: true}
	case override != "":
		name, tokens = override, args
	default:
		name, tokens = args[0], args[1:]
	}

	fn, ok := registry.Lookup(name)
	if !ok {
		return nil, &UsageError{
			Message: fmt.Sprintf("'%s' is not a known function. Available functions: %s",
				name, strings.Join(registry.Names(), ", ")),
		}
	}

	var overrides Params
	for _, tok := range tokens {
		key, value, found := strings.Cut(tok, "=")
		if !found {
			continue
		}
		overrides = overrides.Set(key, value)
	}

	params := fn.Defaults.Merge(overrides)
	return &Invocation{
		Function: fn,
		Params:   params,
		Path:     Path(fn.Name, params),
	}, nil
}

// PrintUsage writes the usage line and, when asked, the catalogue
func PrintUsage(w io.Writer, program string, registry *Registry, err *UsageError) {
	if !err.ShowRegistry {
		fmt.Fprintf(w, "Error: %s\n", err.Message)
		return
	}
	fmt.Fprintf(w, "Usage: %s <function_name> [param=value ...]\n", program)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Available functions:")
	for _, fn := range registry.Functions() {
		fmt.Fprintf(w, "  %s: %s\n", fn.Name, fn.Description)
		fmt.Fprintf(w, "    Default params: %s\n", fn.Defaults)
	}
}
