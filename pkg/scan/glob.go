// The Redis port lists cache keys matching a glob pattern (KEYS); the following module implements glob matching.
// Patterns are split on '/' into elements, and a key matches when each of its '/' separated parts matches the element
// at the same position.

package scan

import (
	"fmt"
	"iter"
	"strings"

	"v.io/v23/glob"
)

// MatchGlob filters the `keys` stream with the given glob pattern. It returns an error if the pattern is invalid.
func MatchGlob(pattern string, keys iter.Seq[string]) (iter.Seq[string], error) {
	parsedPattern, err := glob.Parse(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
	}
	return func(yield func(string) bool) {
		for key := range keys {
			if matchKey(parsedPattern, key) {
				if !yield(key) {
					return
				}
			}
		}
	}, nil
}

// matchKey checks every '/' separated part of key against the pattern element at the same position.
func matchKey(pattern *glob.Glob, key string) bool {
	parts := strings.Split(key, "/")
	if len(parts) != pattern.Len() {
		return false
	}
	for _, part := range parts {
		if !pattern.Head().Match(part) {
			return false
		}
		pattern = pattern.Tail()
	}
	return true
}
