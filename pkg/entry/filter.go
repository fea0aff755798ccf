package entry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrInvalidFilter is returned for a name filter that is not a valid pattern.
var ErrInvalidFilter = errors.New("invalid name filter")

// Filter matches entry names against one or more wildcard patterns.
// Matching is case-insensitive. The zero value matches everything.
type Filter struct {
	patterns []string
}

// ParseFilter builds a Filter from the text typed into the filter box.
// Several patterns may be separated by commas or whitespace. An empty text
// behaves like "*".
func ParseFilter(text string) (Filter, error) {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	if len(fields) == 0 {
		return Filter{}, nil
	}

	patterns := make([]string, 0, len(fields))
	for _, f := range fields {
		p := strings.ToLower(f)
		if !doublestar.ValidatePattern(p) {
			return Filter{}, fmt.Errorf("%w: %q", ErrInvalidFilter, f)
		}
		patterns = append(patterns, p)
	}
	return Filter{patterns: patterns}, nil
}

// Match reports whether name passes the filter.
func (f Filter) Match(name string) bool {
	if len(f.patterns) == 0 {
		return true
	}
	name = strings.ToLower(name)
	for _, p := range f.patterns {
		// Patterns were validated in ParseFilter.
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	return false
}

// String returns the filter in the form it was parsed from.
func (f Filter) String() string {
	if len(f.patterns) == 0 {
		return "*"
	}
	return strings.Join(f.patterns, ",")
}
