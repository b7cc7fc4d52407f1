package merge

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"trialcore/pkg/document"
)

// ScalarPolicy decides what happens when two non-container values differ.
type ScalarPolicy int

const (
	// HeadWins overwrites the base value.
	HeadWins ScalarPolicy = iota
	// MustAgree fails with a ConflictError.
	MustAgree
)

// Merger applies a Rule tree. The zero value merges everything by inference
// with HeadWins.
type Merger struct {
	rule    *Rule
	scalars ScalarPolicy
}

// Option configures a Merger.
type Option func(*Merger)

// WithScalarPolicy overrides the scalar policy.
func WithScalarPolicy(p ScalarPolicy) Option {
	return func(m *Merger) { m.scalars = p }
}

// New returns a merger for rule.
func New(rule *Rule, opts ...Option) *Merger {
	m := &Merger{rule: rule}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Merge returns head merged onto base. Neither input is modified and the
// result shares no containers with them.
func (m *Merger) Merge(base, head any) (any, error) {
	return m.merge(nil, document.Clone(base), head, m.rule)
}

// MergeObjects is Merge for object roots.
func (m *Merger) MergeObjects(base, head document.Object) (document.Object, error) {
	out, err := m.Merge(base, head)
	if err != nil {
		return nil, err
	}
	obj, ok := out.(map[string]any)
	if !ok {
		return nil, &ConflictError{Base: base, Head: head, Reason: "merge result is not an object"}
	}
	return obj, nil
}

// merge owns base (already a private copy) and may mutate it.
func (m *Merger) merge(path []string, base, head any, rule *Rule) (any, error) {
	switch rule.strategy() {
	case Overwrite:
		return document.Clone(head), nil
	case Immutable:
		if base != nil && !document.Equal(base, head) {
			return nil, m.conflict(path, base, head, "immutable value changed")
		}
		return document.Clone(head), nil
	case ObjectMerge:
		b, bok := base.(map[string]any)
		h, hok := head.(map[string]any)
		if !hok || (!bok && base != nil) {
			return nil, m.conflict(path, base, head, "objectMerge needs two objects")
		}
		if b == nil {
			b = map[string]any{}
		}
		return m.mergeObject(path, b, h, rule)
	case Append:
		b, h, err := m.arrays(path, base, head, "append")
		if err != nil {
			return nil, err
		}
		return append(b, document.Clone(h).([]any)...), nil
	case ArrayMergeByID:
		b, h, err := m.arrays(path, base, head, "arrayMergeById")
		if err != nil {
			return nil, err
		}
		return m.mergeByID(path, b, h, rule)
	case Inferred:
		return m.infer(path, base, head, rule)
	default:
		return nil, fmt.Errorf("%w: unknown strategy %q at %s", ErrConflict, rule.strategy(), document.FormatPointer(path))
	}
}

func (m *Merger) infer(path []string, base, head any, rule *Rule) (any, error) {
	if b, ok := base.(map[string]any); ok {
		if h, ok := head.(map[string]any); ok {
			return m.mergeObject(path, b, h, rule)
		}
	}
	if b, ok := base.([]any); ok {
		if h, ok := head.([]any); ok {
			return union(b, h), nil
		}
	}
	if base == nil || document.Equal(base, head) || m.scalars == HeadWins {
		return document.Clone(head), nil
	}
	return nil, m.conflict(path, base, head, "values differ")
}

func (m *Merger) mergeObject(path []string, base, head map[string]any, rule *Rule) (any, error) {
	keys := make([]string, 0, len(head))
	for k := range head {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		merged, err := m.merge(append(path, k), base[k], head[k], rule.Property(k))
		if err != nil {
			return nil, err
		}
		base[k] = merged
	}
	return base, nil
}

// union appends head elements not already present in base. Elements already
// present are left as they are, which makes re-merging the same head a no-op.
func union(base, head []any) []any {
	n := len(base)
	for _, h := range head {
		found := false
		for _, b := range base[:n] {
			if document.Equal(b, h) {
				found = true
				break
			}
		}
		if !found {
			base = append(base, document.Clone(h))
		}
	}
	return base
}

// mergeByID matches head elements to base elements by id. Head elements
// sharing an id are folded onto the same base element in order.
func (m *Merger) mergeByID(path []string, base, head []any, rule *Rule) (any, error) {
	idRef := rule.idRef()
	baseIdx, err := indexByKey(path, base, idRef)
	if err != nil {
		return nil, err
	}
	for i, h := range head {
		key, ok := elementKey(h, idRef)
		if !ok {
			return nil, &KeyError{Path: document.FormatPointer(path), Key: idRef, Err: ErrMissingKey}
		}
		pos, ok := baseIdx[keyString(key)]
		if !ok {
			baseIdx[keyString(key)] = len(base)
			base = append(base, document.Clone(h))
			continue
		}
		merged, err := m.merge(append(path, strconv.Itoa(pos)), base[pos], h, rule.Item())
		if err != nil {
			return nil, fmt.Errorf("head element %d: %w", i, err)
		}
		base[pos] = merged
	}
	return base, nil
}

func (m *Merger) arrays(path []string, base, head any, strategy string) ([]any, []any, error) {
	h, ok := head.([]any)
	if !ok {
		return nil, nil, m.conflict(path, base, head, strategy+" needs an array head")
	}
	if base == nil {
		return []any{}, h, nil
	}
	b, ok := base.([]any)
	if !ok {
		return nil, nil, m.conflict(path, base, head, strategy+" needs an array base")
	}
	return b, h, nil
}

func (m *Merger) conflict(path []string, base, head any, reason string) error {
	return &ConflictError{Path: document.FormatPointer(path), Base: base, Head: head, Reason: reason}
}

func indexByKey(path []string, elems []any, idRef string) (map[string]int, error) {
	idx := make(map[string]int, len(elems))
	for i, e := range elems {
		key, ok := elementKey(e, idRef)
		if !ok {
			return nil, &KeyError{Path: document.FormatPointer(append(path, strconv.Itoa(i))), Key: idRef, Err: ErrMissingKey}
		}
		k := keyString(key)
		if _, dup := idx[k]; dup {
			return nil, &KeyError{Path: document.FormatPointer(path), Key: key, Err: ErrDuplicateKey}
		}
		idx[k] = i
	}
	return idx, nil
}

func elementKey(elem any, idRef string) (any, bool) {
	if !strings.HasPrefix(idRef, "/") {
		obj, ok := elem.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := obj[idRef]
		return v, ok && v != nil
	}
	v, err := document.Get(elem, idRef)
	if err != nil || v == nil {
		return nil, false
	}
	return v, true
}

// keyString normalizes keys so json.Number("1") and 1 collide.
func keyString(key any) string {
	if s, ok := key.(string); ok {
		return "s:" + s
	}
	if f, ok := document.Number(key); ok {
		return "n:" + strconv.FormatFloat(f, 'g', -1, 64)
	}
	b, err := json.Marshal(key)
	if err != nil {
		return fmt.Sprintf("v:%v", key)
	}
	return "j:" + string(b)
}
