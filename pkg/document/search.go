package document

import (
	"sort"
	"strconv"
)

// Match is one hit of a tree search: the absolute path of the matched node and
// the node itself.
type Match struct {
	Path  []string
	Value any
}

// Pointer renders the match location.
func (m Match) Pointer() string { return FormatPointer(m.Path) }

// Parent returns the path of the container holding the match.
func (m Match) Parent() []string {
	if len(m.Path) == 0 {
		return nil
	}
	return m.Path[:len(m.Path)-1]
}

// FindKey returns every object member named key below root, depth first with
// object keys visited in sorted order. The value of a matched member is not
// searched further.
func FindKey(root any, key string) []Match {
	var out []Match
	walk(root, nil, func(path []string, parent map[string]any, k string, v any) bool {
		if parent != nil && k == key {
			out = append(out, Match{Path: clonePath(path), Value: v})
			return false
		}
		return true
	})
	return out
}

// FindValue returns every scalar node equal to want (see Equal), in the same
// order FindKey uses.
func FindValue(root any, want any) []Match {
	var out []Match
	walk(root, nil, func(path []string, _ map[string]any, _ string, v any) bool {
		if !IsContainer(v) && Equal(v, want) {
			out = append(out, Match{Path: clonePath(path), Value: v})
		}
		return true
	})
	return out
}

// First returns the first match, if any.
func First(matches []Match) (Match, bool) {
	if len(matches) == 0 {
		return Match{}, false
	}
	return matches[0], true
}

type visitFunc func(path []string, parent map[string]any, key string, v any) bool

func walk(node any, path []string, visit visitFunc) {
	switch n := node.(type) {
	case map[string]any:
		keys := make([]string, 0, len(n))
		for k := range n {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			child := n[k]
			childPath := append(path, k)
			if visit(childPath, n, k, child) {
				walk(child, childPath, visit)
			}
		}
	case []any:
		for i, child := range n {
			childPath := append(path, strconv.Itoa(i))
			if visit(childPath, nil, "", child) {
				walk(child, childPath, visit)
			}
		}
	}
}

func clonePath(path []string) []string {
	out := make([]string, len(path))
	copy(out, path)
	return out
}
