package document

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGetRoundTrip(t *testing.T) {
	tests := []struct {
		pointer string
		// container type expected at each prefix of the pointer
		kinds []string
	}{
		{pointer: "/a", kinds: []string{"object"}},
		{pointer: "/a/b/c", kinds: []string{"object", "object", "object"}},
		{pointer: "/a/0/b", kinds: []string{"object", "array", "object"}},
		{pointer: "/a/-", kinds: []string{"object", "array"}},
		{pointer: "/0/x", kinds: []string{"array", "object"}},
		{pointer: "/samples/0/files/-/name", kinds: []string{"object", "array", "object", "array", "object"}},
	}
	for _, tt := range tests {
		t.Run(tt.pointer, func(t *testing.T) {
			var root any
			c := NewCursor(&root)
			placed, err := c.Place(tt.pointer, "v")
			require.NoError(t, err)

			got, err := Get(c.Root(), placed.Pointer())
			require.NoError(t, err)
			assert.Equal(t, "v", got, spew.Sdump(c.Root()))

			p := MustParsePointer(placed.Pointer())
			for i := range tt.kinds {
				node, err := Get(c.Root(), FormatPointer(p.Tokens[:i]))
				require.NoError(t, err)
				switch tt.kinds[i] {
				case "array":
					assert.IsType(t, []any{}, node, "prefix %d of %s", i, tt.pointer)
				case "object":
					assert.IsType(t, map[string]any{}, node, "prefix %d of %s", i, tt.pointer)
				}
			}
		})
	}
}

func TestSetRelativePointer(t *testing.T) {
	context := map[string]any{"Pid": 1}
	root := Object{"participants": []any{context}}

	c, err := At(root).Descend("/participants/0")
	require.NoError(t, err)
	require.NoError(t, c.Set("0/prop1/prop2", map[string]any{"more": "props"}))

	want := Object{"participants": []any{
		map[string]any{"Pid": 1, "prop1": map[string]any{"prop2": map[string]any{"more": "props"}}},
	}}
	assert.True(t, Equal(want, c.Root()), spew.Sdump(c.Root()))
	assert.Contains(t, context, "prop1", "context is mutated in place")
}

func TestSetRelativeAscends(t *testing.T) {
	root := Object{"batch": map[string]any{"records": []any{map[string]any{"id": "r1"}}}}
	c, err := At(root).Descend("/batch/records/0")
	require.NoError(t, err)

	require.NoError(t, c.Set("2/assay_creator", "DFCI"))
	got, err := c.Get("2/assay_creator")
	require.NoError(t, err)
	assert.Equal(t, "DFCI", got)

	require.NoError(t, c.Set("1/-", map[string]any{"id": "r2"}))
	records, err := c.Get("1")
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestSetAppend(t *testing.T) {
	for _, contents := range [][]any{{1, 2}, {"x", "x"}, {map[string]any{}, nil}} {
		root := Object{"arr": append([]any(nil), contents...)}
		placed, err := At(root).Place("/arr/-", "new")
		require.NoError(t, err)
		arr := placed.Root().(map[string]any)["arr"].([]any)
		require.Len(t, arr, 3)
		assert.Equal(t, "new", arr[2])
		assert.Equal(t, "/arr/2", placed.Pointer())
	}
}

func TestSetIndexEqualLengthAppends(t *testing.T) {
	root := Object{"arr": []any{"a"}}
	require.NoError(t, Set(root, "/arr/1", "b"))
	assert.Equal(t, []any{"a", "b"}, root["arr"])

	err := Set(root, "/arr/5", "z")
	require.ErrorIs(t, err, ErrIndexOutOfRange)
	assert.Equal(t, []any{"a", "b"}, root["arr"])
}

func TestSetJumpOverflow(t *testing.T) {
	root := Object{"a": []any{map[string]any{}}}
	c, err := At(root).Descend("/a/0")
	require.NoError(t, err)
	require.Equal(t, 2, c.Depth())

	require.NoError(t, c.Set("2/x", 1))
	assert.Equal(t, 1, root["x"])

	err = c.Set("3/x", 1)
	require.ErrorIs(t, err, ErrJumpOverflow)
	var perr *PointerError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "3/x", perr.Pointer)
}

func TestSetFailures(t *testing.T) {
	tests := []struct {
		name    string
		pointer string
		wantErr error
	}{
		{name: "append to object", pointer: "/obj/-", wantErr: ErrNotArray},
		{name: "through scalar", pointer: "/scalar/x", wantErr: ErrNotContainer},
		{name: "document root", pointer: "", wantErr: ErrCannotInferContainer},
		{name: "non index on array", pointer: "/arr/name", wantErr: ErrMalformedPointer},
		{name: "malformed", pointer: "obj", wantErr: ErrMalformedPointer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := Object{"obj": map[string]any{"k": "v"}, "scalar": "s", "arr": []any{}}
			before := CloneObject(root)
			err := Set(root, tt.pointer, 1)
			require.ErrorIs(t, err, tt.wantErr)
			assert.True(t, Equal(before, root), "tree modified on failure: %s", spew.Sdump(root))
		})
	}
}

func TestSetFailureLeavesNoPartialStructure(t *testing.T) {
	root := Object{"a": map[string]any{"s": "scalar"}}
	err := Set(root, "/a/new/s/x/7", 1)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
	assert.NotContains(t, root["a"], "new")

	err = Set(root, "/a/other/-/s/x", 1)
	require.NoError(t, err)
	got, err := Get(root, "/a/other/0/s/x")
	require.NoError(t, err)
	assert.Equal(t, 1, got)
}

func TestSetRelativeWithoutPath(t *testing.T) {
	root := Object{"a": []any{map[string]any{"x": 1}}}
	c, err := At(root).Descend("/a/0")
	require.NoError(t, err)
	for _, p := range []string{"0", "1", "2"} {
		err = c.Set(p, "clobber")
		require.ErrorIs(t, err, ErrMalformedPointer, p)
	}
	assert.Equal(t, map[string]any{"x": 1}, root["a"].([]any)[0])

	got, err := c.Get("1")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSetNilContainers(t *testing.T) {
	err := Set(nil, "/a", 1)
	require.ErrorIs(t, err, ErrCannotInferContainer)

	root := Object{"a": Object(nil), "l": []any(nil)}
	require.NoError(t, Set(root, "/a/b", 1))
	require.NoError(t, Set(root, "/l/-", "x"))
	require.NoError(t, Set(root, "/m", Object(nil)))
	require.NoError(t, Set(root, "/m/n/0", true))
	assert.Equal(t, map[string]any{"b": 1}, root["a"])
	assert.Equal(t, []any{"x"}, root["l"])
	assert.Equal(t, map[string]any{"n": []any{true}}, root["m"])

	var typed any = Object(nil)
	c := NewCursor(&typed)
	require.NoError(t, c.Set("/k", "v"))
	assert.Equal(t, map[string]any{"k": "v"}, c.Root())
}

func TestGetMissing(t *testing.T) {
	root := Object{"a": []any{"x"}, "s": 1}
	_, err := Get(root, "/a/3")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = Get(root, "/b")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = Get(root, "/s/x")
	require.ErrorIs(t, err, ErrNotContainer)

	v, err := Get(root, "")
	require.NoError(t, err)
	assert.True(t, Equal(root, v))
}

func TestDescendRequiresTarget(t *testing.T) {
	_, err := At(Object{}).Descend("/missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCursorPathIsCopy(t *testing.T) {
	c, err := At(Object{"a": map[string]any{}}).Descend("/a")
	require.NoError(t, err)
	p := c.Path()
	p[0] = "mutated"
	assert.Equal(t, "/a", c.Pointer())
	node, err := c.Node()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, node)
}
