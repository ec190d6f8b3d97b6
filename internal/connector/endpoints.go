package connector

import (
	"errors"
	"fmt"

	"github.com/timmy/sissync/internal/domain"
)

// ErrUnknownEndpoint is returned when an override names an endpoint the source does not have.
var ErrUnknownEndpoint = errors.New("unknown endpoint")

// Endpoint lists are in dependency order: a step establishing parent rows
// always precedes any step whose rows reference them.
var defaultEndpoints = map[domain.Source][]string{
	domain.SourceArbor: {
		"academic_years",
		"staff",
		"students",
		"guardians",
		"classes",
		"enrolments",
		"attendance",
		"grades",
	},
	domain.SourceWonde: {
		"school",
		"employees",
		"students",
		"contacts",
		"classes",
		"groups",
		"attendance",
		"assessments",
	},
}

// DefaultEndpoints returns a copy of the ordered default endpoint list of source.
func DefaultEndpoints(source domain.Source) []string {
	return append([]string(nil), defaultEndpoints[source]...)
}

// ResolveEndpoints turns an override list into the endpoints a run executes.
// An empty override selects the defaults; otherwise the result is the
// overridden subset in default dependency order, without duplicates.
func ResolveEndpoints(source domain.Source, overrides []string) ([]string, error) {
	defaults, ok := defaultEndpoints[source]
	if !ok {
		return nil, fmt.Errorf("%w: source %q", ErrUnknownEndpoint, source)
	}
	if len(overrides) == 0 {
		return DefaultEndpoints(source), nil
	}

	want := make(map[string]struct{}, len(overrides))
	for _, name := range overrides {
		if !contains(defaults, name) {
			return nil, fmt.Errorf("%w: %s has no endpoint %q", ErrUnknownEndpoint, source, name)
		}
		want[name] = struct{}{}
	}

	resolved := make([]string, 0, len(want))
	for _, name := range defaults {
		if _, ok := want[name]; ok {
			resolved = append(resolved, name)
		}
	}
	return resolved, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
