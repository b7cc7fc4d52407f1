// Package merge combines two JSON documents under per-field strategies, in the
// spirit of JSON Schema merge annotations (mergeStrategy, mergeOptions.idRef).
package merge

// Strategy names a merge behaviour for one schema location.
type Strategy string

const (
	// Inferred picks objectMerge for object pairs, union for array pairs and
	// the merger's scalar policy for everything else.
	Inferred       Strategy = ""
	ObjectMerge    Strategy = "objectMerge"
	Overwrite      Strategy = "overwrite"
	Append         Strategy = "append"
	ArrayMergeByID Strategy = "arrayMergeById"
	Immutable      Strategy = "immutable"
)

// DefaultIDRef is the key arrayMergeById uses when no idRef is declared.
const DefaultIDRef = "id"

// Rule is the merge annotation tree for a document shape. Rules may be
// shared and may form cycles when compiled from recursive schemas.
type Rule struct {
	Strategy Strategy
	// IDRef identifies array elements under ArrayMergeByID: either a member
	// name or an absolute pointer into the element.
	IDRef                string
	Properties           map[string]*Rule
	AdditionalProperties *Rule
	Items                *Rule
}

// Property returns the rule for an object member, falling back to
// AdditionalProperties. Nil rules yield nil.
func (r *Rule) Property(name string) *Rule {
	if r == nil {
		return nil
	}
	if p, ok := r.Properties[name]; ok {
		return p
	}
	return r.AdditionalProperties
}

// Item returns the rule applied to array elements.
func (r *Rule) Item() *Rule {
	if r == nil {
		return nil
	}
	return r.Items
}

func (r *Rule) strategy() Strategy {
	if r == nil {
		return Inferred
	}
	return r.Strategy
}

func (r *Rule) idRef() string {
	if r == nil || r.IDRef == "" {
		return DefaultIDRef
	}
	return r.IDRef
}
