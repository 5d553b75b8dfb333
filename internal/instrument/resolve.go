package instrument

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrConfigNotFound   = errors.New("configuration not found")
	ErrNoMatchingConfig = errors.New("no configuration describes the file")
	ErrAmbiguousConfig  = errors.New("more than one configuration describes the file")
	ErrInvalidConfig    = errors.New("invalid configuration")
)

// ResolveError reports why no single configuration could be selected. It
// carries the concrete mismatch so a user can fix the configuration without
// reading code.
type ResolveError struct {
	Kind       error
	Requested  string
	Available  []string
	Required   []string
	Candidates []string
}

func (e *ResolveError) Error() string {
	switch e.Kind {
	case ErrConfigNotFound:
		return fmt.Sprintf("requested a non-existent configuration %q; configurations are: %s",
			e.Requested, strings.Join(e.Candidates, ", "))

	case ErrNoMatchingConfig:
		if e.Requested != "" {
			return fmt.Sprintf("requested configuration %q does not describe the input file; "+
				"it requires columns %s, but the file only contains the columns %s",
				e.Requested, strings.Join(e.Required, ", "), strings.Join(e.Available, ", "))
		}
		return fmt.Sprintf("no configuration describes the columns of the input file; columns are: %s",
			strings.Join(e.Available, ", "))

	case ErrAmbiguousConfig:
		return fmt.Sprintf("too many configurations describe the columns of the input file; "+
			"matching configurations are: %s", strings.Join(e.Candidates, ", "))
	}
	return fmt.Sprintf("resolving configuration: %v", e.Kind)
}

func (e *ResolveError) Unwrap() error {
	return e.Kind
}

// Resolve selects the configuration describing a file that contains the
// available columns. A non-empty requested name must exist among candidates
// and describe the file. Otherwise exactly one candidate must have all of
// its required columns available.
func Resolve(available []string, requested string, candidates map[string]*Config) (*Config, error) {
	columns := make(map[string]struct{}, len(available))
	for _, c := range available {
		columns[c] = struct{}{}
	}
	availableSorted := sortedKeys(columns)

	if requested != "" {
		config, ok := candidates[requested]
		if !ok {
			return nil, &ResolveError{
				Kind:       ErrConfigNotFound,
				Requested:  requested,
				Candidates: Names(candidates),
			}
		}
		if !describes(config, columns) {
			return nil, &ResolveError{
				Kind:      ErrNoMatchingConfig,
				Requested: requested,
				Available: availableSorted,
				Required:  config.RequiredColumns(),
			}
		}
		return config, nil
	}

	var matches []string
	for name, config := range candidates {
		if describes(config, columns) {
			matches = append(matches, name)
		}
	}
	sort.Strings(matches)

	switch len(matches) {
	case 0:
		return nil, &ResolveError{Kind: ErrNoMatchingConfig, Available: availableSorted}
	case 1:
		return candidates[matches[0]], nil
	default:
		return nil, &ResolveError{Kind: ErrAmbiguousConfig, Available: availableSorted, Candidates: matches}
	}
}

func describes(c *Config, columns map[string]struct{}) bool {
	for _, col := range c.RequiredColumns() {
		if _, ok := columns[col]; !ok {
			return false
		}
	}
	return true
}

// ForFormat returns the subset of candidates usable with the given
// container format.
func ForFormat(candidates map[string]*Config, format string) map[string]*Config {
	out := make(map[string]*Config, len(candidates))
	for name, c := range candidates {
		if c.Format == "" || strings.EqualFold(c.Format, format) {
			out[name] = c
		}
	}
	return out
}
