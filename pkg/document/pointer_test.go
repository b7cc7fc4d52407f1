package document

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePointer(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Pointer
	}{
		{name: "whole document", in: "", want: Pointer{}},
		{name: "absolute", in: "/a/b/0", want: Pointer{Tokens: []string{"a", "b", "0"}}},
		{name: "escaped tokens", in: "/a~1b/c~0d", want: Pointer{Tokens: []string{"a/b", "c~d"}}},
		{name: "empty token", in: "/", want: Pointer{Tokens: []string{""}}},
		{name: "relative without rest", in: "1", want: Pointer{Relative: true, Jump: 1}},
		{name: "relative", in: "0/prop1/prop2", want: Pointer{Relative: true, Tokens: []string{"prop1", "prop2"}}},
		{name: "relative append", in: "2/files/-", want: Pointer{Relative: true, Jump: 2, Tokens: []string{"files", "-"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePointer(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want.Relative, got.Relative)
			assert.Equal(t, tt.want.Jump, got.Jump)
			assert.Equal(t, len(tt.want.Tokens), len(got.Tokens))
			for i := range tt.want.Tokens {
				assert.Equal(t, tt.want.Tokens[i], got.Tokens[i])
			}
			assert.Equal(t, tt.in, got.String())
		})
	}
}

func TestParsePointerMalformed(t *testing.T) {
	for _, in := range []string{"a/b", "01/x", "-1/x", "x", "/a~2", "/a~", "1.5/x"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParsePointer(in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedPointer), "got %v", err)
			var perr *PointerError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, in, perr.Pointer)
		})
	}
}

func TestPointerHelpers(t *testing.T) {
	p := MustParsePointer("/a/b")
	assert.Equal(t, "b", p.Last())
	assert.Equal(t, "/a/b/c", p.Append("c").String())
	assert.Equal(t, "/a/b", p.String(), "Append must not alias")
	assert.Equal(t, "", Pointer{}.Last())
	assert.Equal(t, "", FormatPointer(nil))

	assert.True(t, IsArrayIndex("0"))
	assert.True(t, IsArrayIndex("12"))
	assert.False(t, IsArrayIndex("012"))
	assert.False(t, IsArrayIndex("-"))
	assert.False(t, IsArrayIndex("a"))

	assert.Panics(t, func() { MustParsePointer("bad") })
}
