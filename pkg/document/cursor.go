package document

import (
	"fmt"
	"strconv"
)

// Cursor addresses one node of a tree: it owns the tree root and records the
// node's absolute path inside it. Relative pointers ascend along that path, so
// a cursor never needs a separate parent reference.
//
// Cursors are values; Set and Place mutate the shared root in place.
type Cursor struct {
	owner *any
	path  []string
}

// NewCursor returns a cursor at the root of the tree held by owner. A nil
// tree is allowed: the first write creates the root container.
func NewCursor(owner *any) Cursor {
	if owner == nil {
		owner = new(any)
	}
	return Cursor{owner: owner}
}

// At returns a cursor at the root of an object tree.
func At(root Object) Cursor {
	var v any = root
	return Cursor{owner: &v}
}

// Root returns the tree the cursor belongs to.
func (c Cursor) Root() any {
	if c.owner == nil {
		return nil
	}
	return *c.owner
}

// Path returns a copy of the cursor's absolute token path.
func (c Cursor) Path() []string {
	out := make([]string, len(c.path))
	copy(out, c.path)
	return out
}

// Pointer returns the cursor location as an absolute pointer.
func (c Cursor) Pointer() string { return FormatPointer(c.path) }

// Depth is the number of segments between the root and the cursor.
func (c Cursor) Depth() int { return len(c.path) }

// Node resolves the node the cursor points at.
func (c Cursor) Node() (any, error) {
	return lookup(c.Root(), c.path, c.Pointer())
}

// Get resolves pointer relative to the cursor.
func (c Cursor) Get(pointer string) (any, error) {
	tokens, err := c.target(pointer)
	if err != nil {
		return nil, err
	}
	return lookup(c.Root(), tokens, pointer)
}

// Descend returns a cursor positioned at pointer. The target must exist.
func (c Cursor) Descend(pointer string) (Cursor, error) {
	tokens, err := c.target(pointer)
	if err != nil {
		return Cursor{}, err
	}
	if _, err := lookup(c.Root(), tokens, pointer); err != nil {
		return Cursor{}, err
	}
	return Cursor{owner: c.owner, path: tokens}, nil
}

// Set writes value at pointer, creating missing intermediate containers. An
// intermediate becomes an Array when the following token is "-" or an array
// index and an Object otherwise. The tree is left untouched on error.
func (c Cursor) Set(pointer string, value any) error {
	_, err := c.Place(pointer, value)
	return err
}

// Place is Set returning a cursor at the written value. Append tokens in the
// pointer are replaced by the concrete index the value landed on.
func (c Cursor) Place(pointer string, value any) (Cursor, error) {
	if c.owner == nil {
		return Cursor{}, pointerErr(pointer, ErrCannotInferContainer)
	}
	// a bare jump count would replace the context node itself
	if p, err := ParsePointer(pointer); err == nil && p.Relative && len(p.Tokens) == 0 {
		return Cursor{}, pointerErr(pointer, fmt.Errorf("%w: no path after the jump count", ErrMalformedPointer))
	}
	tokens, err := c.target(pointer)
	if err != nil {
		return Cursor{}, err
	}
	if len(tokens) == 0 {
		return Cursor{}, pointerErr(pointer, fmt.Errorf("%w: pointer addresses the document root", ErrCannotInferContainer))
	}
	root := *c.owner
	if isNil(root) {
		root = vivify(tokens[0])
	}
	updated, concrete, err := setIn(root, tokens, value)
	if err != nil {
		return Cursor{}, pointerErr(pointer, err)
	}
	*c.owner = updated
	return Cursor{owner: c.owner, path: concrete}, nil
}

// target turns pointer into absolute root tokens for this cursor.
func (c Cursor) target(pointer string) ([]string, error) {
	p, err := ParsePointer(pointer)
	if err != nil {
		return nil, err
	}
	if !p.Relative {
		return joinTokens(c.path, p.Tokens), nil
	}
	if p.Jump > len(c.path) {
		return nil, pointerErr(pointer, fmt.Errorf("%w: jump %d from %q (depth %d)", ErrJumpOverflow, p.Jump, c.Pointer(), len(c.path)))
	}
	return joinTokens(c.path[:len(c.path)-p.Jump], p.Tokens), nil
}

// Get resolves an absolute pointer against root.
func Get(root any, pointer string) (any, error) {
	return NewCursor(&root).Get(pointer)
}

// Set writes value into an object tree at an absolute pointer. root must be
// non-nil since the write is made in place.
func Set(root Object, pointer string, value any) error {
	if root == nil {
		return pointerErr(pointer, fmt.Errorf("%w: nil root object", ErrCannotInferContainer))
	}
	return At(root).Set(pointer, value)
}

func joinTokens(base, rest []string) []string {
	out := make([]string, 0, len(base)+len(rest))
	out = append(out, base...)
	return append(out, rest...)
}

// isNil reports a missing node, including nil containers held in an
// interface.
func isNil(v any) bool {
	switch n := v.(type) {
	case nil:
		return true
	case map[string]any:
		return n == nil
	case []any:
		return n == nil
	}
	return false
}

func vivify(next string) any {
	if next == AppendToken || IsArrayIndex(next) {
		return []any{}
	}
	return map[string]any{}
}

// setIn writes value at tokens below node and returns the (possibly
// reallocated) node together with the concrete path that was written.
// Children are attached to their parent only after the recursive write
// succeeded, so a failure never leaves partially created structure behind.
func setIn(node any, tokens []string, value any) (any, []string, error) {
	token := tokens[0]
	last := len(tokens) == 1

	switch n := node.(type) {
	case map[string]any:
		if token == AppendToken {
			return nil, nil, fmt.Errorf("%w: %q applied to an object", ErrNotArray, token)
		}
		if n == nil {
			n = map[string]any{}
		}
		if last {
			n[token] = value
			return n, []string{token}, nil
		}
		child, ok := n[token]
		if !ok || isNil(child) {
			child = vivify(tokens[1])
		}
		updated, rest, err := setIn(child, tokens[1:], value)
		if err != nil {
			return nil, nil, err
		}
		n[token] = updated
		return n, append([]string{token}, rest...), nil

	case []any:
		idx, err := arrayIndex(token, len(n))
		if err != nil {
			return nil, nil, err
		}
		if last {
			if idx == len(n) {
				n = append(n, value)
			} else {
				n[idx] = value
			}
			return n, []string{strconv.Itoa(idx)}, nil
		}
		var child any
		if idx < len(n) {
			child = n[idx]
		}
		if isNil(child) {
			child = vivify(tokens[1])
		}
		updated, rest, err := setIn(child, tokens[1:], value)
		if err != nil {
			return nil, nil, err
		}
		if idx == len(n) {
			n = append(n, updated)
		} else {
			n[idx] = updated
		}
		return n, append([]string{strconv.Itoa(idx)}, rest...), nil

	default:
		return nil, nil, fmt.Errorf("%w: token %q on %T", ErrNotContainer, token, node)
	}
}

// arrayIndex maps a token to a write position in an array of length n.
// Writing at n appends.
func arrayIndex(token string, n int) (int, error) {
	if token == AppendToken {
		return n, nil
	}
	if !IsArrayIndex(token) {
		return 0, fmt.Errorf("%w: %q is not an array index", ErrMalformedPointer, token)
	}
	idx, err := strconv.Atoi(token)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedPointer, err)
	}
	if idx > n {
		return 0, fmt.Errorf("%w: index %d, length %d", ErrIndexOutOfRange, idx, n)
	}
	return idx, nil
}

func lookup(root any, tokens []string, pointer string) (any, error) {
	cur := root
	for i, token := range tokens {
		switch n := cur.(type) {
		case map[string]any:
			child, ok := n[token]
			if !ok {
				return nil, pointerErr(pointer, fmt.Errorf("%w: missing key %q at %q", ErrNotFound, token, FormatPointer(tokens[:i])))
			}
			cur = child
		case []any:
			if !IsArrayIndex(token) {
				return nil, pointerErr(pointer, fmt.Errorf("%w: %q is not an array index", ErrNotFound, token))
			}
			idx, err := strconv.Atoi(token)
			if err != nil || idx >= len(n) {
				return nil, pointerErr(pointer, fmt.Errorf("%w: index %s, length %d", ErrNotFound, token, len(n)))
			}
			cur = n[idx]
		default:
			return nil, pointerErr(pointer, fmt.Errorf("%w: token %q on %T", ErrNotContainer, token, cur))
		}
	}
	return cur, nil
}
