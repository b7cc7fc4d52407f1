// Package template reads upload templates: per worksheet, where the
// preamble and data objects go in the trial document and which pointer and
// coercion each column key maps to.
package template

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"trialcore/pkg/document"
)

//go:embed templates
var builtin embed.FS

var (
	ErrInvalidTemplate  = errors.New("invalid template")
	ErrUnknownTemplate  = errors.New("unknown template")
	ErrUnknownCoercion  = errors.New("unknown coercion")
	ErrDuplicateField   = errors.New("duplicate template key")
	ErrUnknownWorksheet = errors.New("worksheet not in template")
)

// Kind tags a field as a plain value or an artifact placeholder.
type Kind int

const (
	Scalar Kind = iota
	Artifact
)

func (k Kind) String() string {
	if k == Artifact {
		return "artifact"
	}
	return "scalar"
}

// FieldDef maps one column key to a pointer and a coercion.
type FieldDef struct {
	Key          string
	MergePointer document.Pointer
	Kind         Kind
	Coercion     string
	coerce       CoerceFunc
}

// Coerce converts a raw cell value.
func (f *FieldDef) Coerce(raw any, env Env) (any, error) {
	v, err := f.coerce(raw, env)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Coercion, err)
	}
	return v, nil
}

// IsArtifact reports whether the field holds an upload placeholder.
func (f *FieldDef) IsArtifact() bool { return f.Kind == Artifact }

// FieldName is the final token of the merge pointer; artifact storage keys
// end with it.
func (f *FieldDef) FieldName() string { return f.MergePointer.Last() }

// Fields is a case-insensitive key to field lookup.
type Fields map[string]*FieldDef

// Lookup finds a field by column key, ignoring case and surrounding space.
func (f Fields) Lookup(key string) (*FieldDef, bool) {
	def, ok := f[normalizeKey(key)]
	return def, ok
}

// Keys lists the normalized keys in sorted order.
func (f Fields) Keys() []string {
	out := make([]string, 0, len(f))
	for k := range f {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Worksheet describes the placement of one worksheet's objects.
type Worksheet struct {
	Name                  string
	PreambleObjectPointer string
	DataObjectPointer     string
	PreambleObjectSchema  string
	Preamble              Fields
	Data                  Fields
	// Sections groups data column keys the way the template lists them.
	Sections map[string][]string
}

// Fields returns every key of the worksheet, preamble and data alike.
func (ws *Worksheet) Fields() Fields {
	out := make(Fields, len(ws.Preamble)+len(ws.Data))
	for k, f := range ws.Preamble {
		out[k] = f
	}
	for k, f := range ws.Data {
		out[k] = f
	}
	return out
}

// Template is a parsed upload template.
type Template struct {
	Assay      string
	Worksheets map[string]*Worksheet
}

// Worksheet returns the named worksheet definition.
func (t *Template) Worksheet(name string) (*Worksheet, error) {
	ws, ok := t.Worksheets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (assay %s)", ErrUnknownWorksheet, name, t.Assay)
	}
	return ws, nil
}

type fileTemplate struct {
	Assay      string                   `yaml:"assay"`
	Worksheets map[string]fileWorksheet `yaml:"worksheets"`
}

type fileWorksheet struct {
	PreambleObjectPointer string                          `yaml:"preamble_object_pointer"`
	DataObjectPointer     string                          `yaml:"data_object_pointer"`
	PreambleObjectSchema  string                          `yaml:"preamble_object_schema"`
	PreambleRows          map[string]fileField            `yaml:"preamble_rows"`
	DataColumns           map[string]map[string]fileField `yaml:"data_columns"`
}

type fileField struct {
	MergePointer string `yaml:"merge_pointer"`
	Type         string `yaml:"type"`
	IsArtifact   bool   `yaml:"is_artifact"`
}

// Parse decodes a YAML template and resolves each field's coercion through
// reg. A nil reg uses the built-in coercions.
func Parse(data []byte, reg *Registry) (*Template, error) {
	if reg == nil {
		reg = NewRegistry()
	}
	var raw fileTemplate
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	if strings.TrimSpace(raw.Assay) == "" {
		return nil, fmt.Errorf("%w: missing assay", ErrInvalidTemplate)
	}
	if len(raw.Worksheets) == 0 {
		return nil, fmt.Errorf("%w: no worksheets", ErrInvalidTemplate)
	}
	t := &Template{Assay: raw.Assay, Worksheets: make(map[string]*Worksheet, len(raw.Worksheets))}
	for name, fw := range raw.Worksheets {
		ws, err := buildWorksheet(name, fw, reg)
		if err != nil {
			return nil, fmt.Errorf("worksheet %q: %w", name, err)
		}
		t.Worksheets[name] = ws
	}
	return t, nil
}

// LoadFile reads a template from disk.
func LoadFile(path string, reg *Registry) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	return Parse(data, reg)
}

// Builtin returns the template shipped for an assay, e.g. "wes".
func Builtin(assay string, reg *Registry) (*Template, error) {
	data, err := fs.ReadFile(builtin, "templates/"+assay+"_template.yaml")
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTemplate, assay)
	}
	return Parse(data, reg)
}

func buildWorksheet(name string, fw fileWorksheet, reg *Registry) (*Worksheet, error) {
	for label, p := range map[string]string{
		"preamble_object_pointer": fw.PreambleObjectPointer,
		"data_object_pointer":     fw.DataObjectPointer,
	} {
		parsed, err := document.ParsePointer(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTemplate, label, err)
		}
		if parsed.Relative || len(parsed.Tokens) == 0 {
			return nil, fmt.Errorf("%w: %s %q must be a non-root absolute pointer", ErrInvalidTemplate, label, p)
		}
	}
	if fw.PreambleObjectSchema == "" {
		return nil, fmt.Errorf("%w: missing preamble_object_schema", ErrInvalidTemplate)
	}
	ws := &Worksheet{
		Name:                  name,
		PreambleObjectPointer: fw.PreambleObjectPointer,
		DataObjectPointer:     fw.DataObjectPointer,
		PreambleObjectSchema:  fw.PreambleObjectSchema,
		Preamble:              Fields{},
		Data:                  Fields{},
		Sections:              map[string][]string{},
	}
	seen := map[string]bool{}
	add := func(dst Fields, key string, ff fileField) error {
		norm := normalizeKey(key)
		if seen[norm] {
			return fmt.Errorf("%w: %q", ErrDuplicateField, key)
		}
		seen[norm] = true
		def, err := buildField(key, ff, reg)
		if err != nil {
			return err
		}
		dst[norm] = def
		return nil
	}
	for key, ff := range fw.PreambleRows {
		if err := add(ws.Preamble, key, ff); err != nil {
			return nil, err
		}
	}
	for section, cols := range fw.DataColumns {
		for key, ff := range cols {
			if err := add(ws.Data, key, ff); err != nil {
				return nil, err
			}
			ws.Sections[section] = append(ws.Sections[section], normalizeKey(key))
		}
		sort.Strings(ws.Sections[section])
	}
	return ws, nil
}

func buildField(key string, ff fileField, reg *Registry) (*FieldDef, error) {
	p, err := document.ParsePointer(ff.MergePointer)
	if err != nil {
		return nil, fmt.Errorf("%w: key %q: %v", ErrInvalidTemplate, key, err)
	}
	if len(p.Tokens) == 0 {
		return nil, fmt.Errorf("%w: key %q: merge_pointer addresses its context itself", ErrInvalidTemplate, key)
	}
	def := &FieldDef{Key: key, MergePointer: p, Coercion: ff.Type}
	if ff.IsArtifact {
		def.Kind = Artifact
		if def.Coercion == "" {
			def.Coercion = CoerceArtifact
		}
		if p.Last() == document.AppendToken {
			return nil, fmt.Errorf("%w: artifact key %q needs a named final token", ErrInvalidTemplate, key)
		}
	} else if def.Coercion == CoerceArtifact {
		return nil, fmt.Errorf("%w: key %q uses %s without is_artifact", ErrInvalidTemplate, key, CoerceArtifact)
	}
	if def.Coercion == "" {
		return nil, fmt.Errorf("%w: key %q has no type", ErrInvalidTemplate, key)
	}
	fn, ok := reg.Lookup(def.Coercion)
	if !ok {
		return nil, fmt.Errorf("%w: %q for key %q", ErrUnknownCoercion, def.Coercion, key)
	}
	def.coerce = fn
	return def, nil
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
