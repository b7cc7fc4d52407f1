package schema

import (
	"fmt"
	"path"
	"strings"

	"trialcore/internal/merge"
	"trialcore/pkg/document"
)

// ruleCompiler turns mergeStrategy/mergeOptions annotations into merge.Rule
// trees. $ref targets are memoized by absolute reference so recursive schemas
// terminate; a node consisting of a bare $ref shares the target's rule.
type ruleCompiler struct {
	raw  map[string]any
	memo map[string]*merge.Rule
}

var mergeKeywords = []string{"mergeStrategy", "mergeOptions", "properties", "additionalProperties", "items", "allOf"}

func (c *ruleCompiler) ref(base, ref string) (*merge.Rule, error) {
	file, frag, _ := strings.Cut(ref, "#")
	name := base
	if file != "" {
		name = path.Clean(path.Join(path.Dir(base), file))
	}
	key := name + "#" + frag
	if r, ok := c.memo[key]; ok {
		return r, nil
	}
	doc, ok := c.raw[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s (referenced from %s)", ErrUnknownSchema, name, base)
	}
	node, err := document.Get(doc, frag)
	if err != nil {
		return nil, fmt.Errorf("resolve %s#%s: %w", name, frag, err)
	}
	r := &merge.Rule{}
	c.memo[key] = r
	if err := c.fill(r, name, node); err != nil {
		delete(c.memo, key)
		return nil, err
	}
	return r, nil
}

func (c *ruleCompiler) node(base string, node any) (*merge.Rule, error) {
	obj, ok := node.(map[string]any)
	if !ok {
		return nil, nil
	}
	if ref, ok := obj["$ref"].(string); ok && !hasAny(obj, mergeKeywords) {
		return c.ref(base, ref)
	}
	r := &merge.Rule{}
	if err := c.fill(r, base, obj); err != nil {
		return nil, err
	}
	return r, nil
}

func (c *ruleCompiler) fill(r *merge.Rule, base string, node any) error {
	obj, ok := node.(map[string]any)
	if !ok {
		return nil
	}
	if ref, ok := obj["$ref"].(string); ok {
		target, err := c.ref(base, ref)
		if err != nil {
			return err
		}
		absorb(r, target)
	}
	if all, ok := obj["allOf"].([]any); ok {
		for _, sub := range all {
			rule, err := c.node(base, sub)
			if err != nil {
				return err
			}
			absorb(r, rule)
		}
	}
	if s, ok := obj["mergeStrategy"].(string); ok {
		r.Strategy = merge.Strategy(s)
	}
	if opts, ok := obj["mergeOptions"].(map[string]any); ok {
		if id, ok := opts["idRef"].(string); ok {
			r.IDRef = id
		}
	}
	if props, ok := obj["properties"].(map[string]any); ok {
		for name, sub := range props {
			rule, err := c.node(base, sub)
			if err != nil {
				return err
			}
			if rule == nil {
				continue
			}
			if r.Properties == nil {
				r.Properties = make(map[string]*merge.Rule, len(props))
			}
			r.Properties[name] = combine(r.Properties[name], rule)
		}
	}
	if sub, ok := obj["additionalProperties"]; ok {
		rule, err := c.node(base, sub)
		if err != nil {
			return err
		}
		r.AdditionalProperties = combine(r.AdditionalProperties, rule)
	}
	if sub, ok := obj["items"]; ok {
		rule, err := c.node(base, sub)
		if err != nil {
			return err
		}
		r.Items = combine(r.Items, rule)
	}
	return nil
}

// absorb copies src's annotations into dst without mutating src.
func absorb(dst, src *merge.Rule) {
	if src == nil {
		return
	}
	if src.Strategy != merge.Inferred {
		dst.Strategy = src.Strategy
	}
	if src.IDRef != "" {
		dst.IDRef = src.IDRef
	}
	for name, p := range src.Properties {
		if dst.Properties == nil {
			dst.Properties = make(map[string]*merge.Rule, len(src.Properties))
		}
		dst.Properties[name] = combine(dst.Properties[name], p)
	}
	dst.AdditionalProperties = combine(dst.AdditionalProperties, src.AdditionalProperties)
	dst.Items = combine(dst.Items, src.Items)
}

// combine returns a rule holding a overlaid with b. Shared inputs are never
// modified; when one side is nil the other is returned as is.
func combine(a, b *merge.Rule) *merge.Rule {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	out := &merge.Rule{}
	absorb(out, a)
	absorb(out, b)
	return out
}

func hasAny(obj map[string]any, keys []string) bool {
	for _, k := range keys {
		if _, ok := obj[k]; ok {
			return true
		}
	}
	return false
}
