// Package keypolicy implements per-parameter cache-key projection
// strategies: which call arguments feed the canonical seed, and how. Go has
// no runtime signature introspection equivalent to Python's
// inspect.signature, so Policy binds strategies to argument positions by an
// explicit parameter-name list supplied at registration time instead of
// discovering names from the wrapped function itself.
package keypolicy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/neelbauman/beautyspot/canon"
)

// Strategy is a per-parameter hashing strategy.
type Strategy int

const (
	// Default canonicalizes the argument value as-is.
	Default Strategy = iota
	// Ignore drops the argument from the canonical seed entirely.
	Ignore
	// PathStat substitutes a string path argument with (path, size, mtime_ns).
	PathStat
	// FileContent substitutes a string path argument with the SHA-256 of
	// its file contents.
	FileContent
)

// Policy projects a call's (args, kwargs) into the value fed to the
// Canonicalizer. ParamNames must list the wrapped function's parameter
// names in positional order so that per-parameter strategies bind
// correctly regardless of whether a caller passes a value positionally or
// by name.
type Policy struct {
	ParamNames []string
	Per        map[string]Strategy
}

// NewDefault returns a Policy that applies Default to every parameter.
func NewDefault(paramNames ...string) Policy {
	return Policy{ParamNames: paramNames}
}

// NewMap returns a Policy applying per-parameter strategies; parameters not
// present in per use Default, per spec.md's "unknown parameters use
// DEFAULT" rule.
func NewMap(paramNames []string, per map[string]Strategy) Policy {
	return Policy{ParamNames: paramNames, Per: per}
}

// Apply projects positional args and keyword kwargs into the canonical seed
// value handed to canon.Encode. Positional args are matched to ParamNames
// by index; entries in kwargs override by name.
func (p Policy) Apply(args []any, kwargs map[string]any) (any, error) {
	values := make(map[string]any, len(p.ParamNames))
	for i, name := range p.ParamNames {
		if i < len(args) {
			values[name] = args[i]
		}
	}
	for name, v := range kwargs {
		values[name] = v
	}

	seed := make([][2]any, 0, len(values))
	for _, name := range p.ParamNames {
		v, present := values[name]
		if !present {
			continue
		}
		strategy := Default
		if p.Per != nil {
			if s, ok := p.Per[name]; ok {
				strategy = s
			}
		}
		if strategy == Ignore {
			continue
		}
		projected, err := project(strategy, v)
		if err != nil {
			return nil, fmt.Errorf("keypolicy: parameter %q: %w", name, err)
		}
		seed = append(seed, [2]any{name, projected})
	}

	// Any remaining kwargs not named in ParamNames still participate under
	// Default, preserving the "unknown parameters use DEFAULT" guarantee.
	// Map iteration order is randomized per process, so the extra names are
	// sorted before being appended — otherwise the canonical seed's element
	// order, and so its canon.Encode bytes, would vary nondeterministically
	// across runs for the same call.
	extra := make([]string, 0, len(kwargs))
	for name := range kwargs {
		found := false
		for _, pn := range p.ParamNames {
			if pn == name {
				found = true
				break
			}
		}
		if !found {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		seed = append(seed, [2]any{name, kwargs[name]})
	}

	return seed, nil
}

func project(strategy Strategy, v any) (any, error) {
	switch strategy {
	case Default, Ignore:
		return v, nil
	case PathStat:
		path, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("PathStat requires a string path, got %T", v)
		}
		info, err := os.Stat(path)
		if err != nil {
			return []any{path, -1, -1}, nil
		}
		return []any{path, info.Size(), info.ModTime().UnixNano()}, nil
	case FileContent:
		path, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("FileContent requires a string path, got %T", v)
		}
		sum, err := hashFile(path)
		if err != nil {
			return nil, err
		}
		return sum, nil
	default:
		return nil, fmt.Errorf("unknown strategy %v", strategy)
	}
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("keypolicy: opening %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("keypolicy: reading %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Seed computes the canonical-seed bytes for a call, combining Policy.Apply
// with canon.Encode.
func Seed(p Policy, args []any, kwargs map[string]any) ([]byte, error) {
	projected, err := p.Apply(args, kwargs)
	if err != nil {
		return nil, err
	}
	return canon.Encode(projected)
}
