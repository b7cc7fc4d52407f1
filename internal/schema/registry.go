// Package schema loads the trial JSON schemas, validates documents against
// them and derives merge rules from their mergeStrategy annotations.
package schema

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"trialcore/internal/merge"
)

//go:embed schemas
var embedded embed.FS

// ClinicalTrial is the root trial document schema.
const ClinicalTrial = "clinical_trial.json"

const baseURL = "mem://trialcore/"

// ErrUnknownSchema is returned for names the registry does not hold.
var ErrUnknownSchema = errors.New("unknown schema")

// Registry compiles schemas found in a file system. Schema names are slash
// separated paths relative to the file system root, e.g. "assays/wes_assay.json".
type Registry struct {
	mu       sync.Mutex
	raw      map[string]any
	compiler *jsonschema.Compiler
	loaded   map[string]*Schema
	rules    *ruleCompiler
}

// Default returns a registry over the schemas shipped with the binary.
func Default() (*Registry, error) {
	sub, err := fs.Sub(embedded, "schemas")
	if err != nil {
		return nil, err
	}
	return NewRegistry(sub)
}

// NewRegistry reads every *.json file of fsys.
func NewRegistry(fsys fs.FS) (*Registry, error) {
	r := &Registry{
		raw:      make(map[string]any),
		compiler: jsonschema.NewCompiler(),
		loaded:   make(map[string]*Schema),
	}
	r.compiler.Draft = jsonschema.Draft7
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, ".json") {
			return nil
		}
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		doc, err := decode(data)
		if err != nil {
			return fmt.Errorf("schema %s: %w", p, err)
		}
		if err := r.compiler.AddResource(baseURL+p, bytes.NewReader(data)); err != nil {
			return fmt.Errorf("schema %s: %w", p, err)
		}
		r.raw[p] = doc
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load schemas: %w", err)
	}
	r.rules = &ruleCompiler{raw: r.raw, memo: make(map[string]*merge.Rule)}
	return r, nil
}

// Names lists the schemas in the registry.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.raw))
	for name := range r.raw {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Load compiles (once) and returns the named schema.
func (r *Registry) Load(name string) (*Schema, error) {
	name = path.Clean(strings.TrimPrefix(name, "/"))
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.loaded[name]; ok {
		return s, nil
	}
	if _, ok := r.raw[name]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSchema, name)
	}
	compiled, err := r.compiler.Compile(baseURL + name)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	rules, err := r.rules.ref(name, "")
	if err != nil {
		return nil, fmt.Errorf("merge rules for %s: %w", name, err)
	}
	s := &Schema{name: name, compiled: compiled, rules: rules}
	r.loaded[name] = s
	return s, nil
}

// Rules is Load followed by Schema.Rules.
func (r *Registry) Rules(name string) (*merge.Rule, error) {
	s, err := r.Load(name)
	if err != nil {
		return nil, err
	}
	return s.Rules(), nil
}

// Schema is a compiled schema with its merge rules.
type Schema struct {
	name     string
	compiled *jsonschema.Schema
	rules    *merge.Rule
}

// Name returns the registry name of the schema.
func (s *Schema) Name() string { return s.name }

// Rules returns the merge annotations of the schema.
func (s *Schema) Rules() *merge.Rule { return s.rules }

// Validate checks doc against the schema. Any Go value that marshals to JSON
// is accepted.
func (s *Schema) Validate(doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return &ValidationError{Schema: s.name, Detail: []string{"document is not JSON: " + err.Error()}}
	}
	v, err := decode(data)
	if err != nil {
		return &ValidationError{Schema: s.name, Detail: []string{err.Error()}}
	}
	if err := s.compiled.Validate(v); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return &ValidationError{Schema: s.name, Detail: leafCauses(verr)}
		}
		return &ValidationError{Schema: s.name, Detail: []string{err.Error()}}
	}
	return nil
}

func decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func leafCauses(err *jsonschema.ValidationError) []string {
	if len(err.Causes) == 0 {
		loc := err.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		return []string{loc + ": " + err.Message}
	}
	var out []string
	for _, c := range err.Causes {
		out = append(out, leafCauses(c)...)
	}
	return out
}
