// Package props parses dot-path properties text into nested maps. Lines have
// the form `key=value`; dots in the key create nested objects, so
// `bravo.alpha=xray` yields {"bravo": {"alpha": "xray"}}. Blank lines and
// `#`-prefixed comments are skipped.
package props

import (
	"fmt"
	"sort"
	"strings"
)

func Parse(input string) (map[string]any, error) {
	out := make(map[string]any)
	for lineNumber, line := range strings.Split(input, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			return nil, fmt.Errorf("props: line %d has no separator: %q", lineNumber+1, line)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" {
			return nil, fmt.Errorf("props: line %d has an empty key", lineNumber+1)
		}
		if err := assign(out, strings.Split(key, "."), value); err != nil {
			return nil, fmt.Errorf("props: line %d: %w", lineNumber+1, err)
		}
	}
	return out, nil
}

func assign(target map[string]any, path []string, value string) error {
	for _, segment := range path {
		if strings.TrimSpace(segment) == "" {
			return fmt.Errorf("empty path segment in %q", strings.Join(path, "."))
		}
	}

	for _, segment := range path[:len(path)-1] {
		child, ok := target[segment]
		if !ok {
			next := make(map[string]any)
			target[segment] = next
			target = next
			continue
		}
		nested, ok := child.(map[string]any)
		if !ok {
			return fmt.Errorf("key %q already holds a value", segment)
		}
		target = nested
	}

	leaf := path[len(path)-1]
	if existing, ok := target[leaf]; ok {
		if _, isMap := existing.(map[string]any); isMap {
			return fmt.Errorf("key %q already holds an object", leaf)
		}
	}
	target[leaf] = value
	return nil
}

// flatten inverts Parse, producing dot-joined leaf paths mapped to their
// string values with deterministic iteration order left to the caller's sort.
func flatten(input map[string]any) map[string]string {
	out := make(map[string]string)
	flattenInto(out, "", input)
	return out
}

func flattenInto(out map[string]string, prefix string, input map[string]any) {
	keys := make([]string, 0, len(input))
	for key := range input {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		switch value := input[key].(type) {
		case map[string]any:
			flattenInto(out, path, value)
		case string:
			out[path] = value
		default:
			out[path] = fmt.Sprint(value)
		}
	}
}
