package document

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// AppendToken is the RFC 6901 token addressing the position past the last
// element of an array.
const AppendToken = "-"

// canonicalIntRE matches non-negative integers without leading zeros, the
// grammar shared by array indexes and relative jump counts.
var canonicalIntRE = regexp.MustCompile(`^(0|[1-9][0-9]*)$`)

// Pointer is a parsed absolute (RFC 6901) or relative JSON pointer.
//
// Relative pointers carry a jump count: the number of path segments to ascend
// from the cursor before applying Tokens as an absolute path.
type Pointer struct {
	Relative bool
	Jump     int
	Tokens   []string
}

// ParsePointer parses "/a/b", "" (whole document) or "<N>/a/b".
func ParsePointer(s string) (Pointer, error) {
	if s == "" {
		return Pointer{}, nil
	}
	if strings.HasPrefix(s, "/") {
		tokens, err := splitTokens(s[1:])
		if err != nil {
			return Pointer{}, pointerErr(s, err)
		}
		return Pointer{Tokens: tokens}, nil
	}

	jump, rest, hasRest := strings.Cut(s, "/")
	if !canonicalIntRE.MatchString(jump) {
		return Pointer{}, pointerErr(s, fmt.Errorf("%w: jump count %q is not a non-negative integer", ErrMalformedPointer, jump))
	}
	n, err := strconv.Atoi(jump)
	if err != nil {
		return Pointer{}, pointerErr(s, fmt.Errorf("%w: %v", ErrMalformedPointer, err))
	}
	p := Pointer{Relative: true, Jump: n}
	if hasRest {
		tokens, err := splitTokens(rest)
		if err != nil {
			return Pointer{}, pointerErr(s, err)
		}
		p.Tokens = tokens
	}
	return p, nil
}

// MustParsePointer is ParsePointer for pointers known at compile time.
func MustParsePointer(s string) Pointer {
	p, err := ParsePointer(s)
	if err != nil {
		panic(err)
	}
	return p
}

// String renders the pointer back to its textual form.
func (p Pointer) String() string {
	abs := FormatPointer(p.Tokens)
	if !p.Relative {
		return abs
	}
	return strconv.Itoa(p.Jump) + abs
}

// Last returns the final token, or "" for a pointer without tokens.
func (p Pointer) Last() string {
	if len(p.Tokens) == 0 {
		return ""
	}
	return p.Tokens[len(p.Tokens)-1]
}

// Append returns a copy of the pointer with extra tokens.
func (p Pointer) Append(tokens ...string) Pointer {
	out := Pointer{Relative: p.Relative, Jump: p.Jump, Tokens: make([]string, 0, len(p.Tokens)+len(tokens))}
	out.Tokens = append(out.Tokens, p.Tokens...)
	out.Tokens = append(out.Tokens, tokens...)
	return out
}

// FormatPointer renders absolute tokens as an RFC 6901 pointer.
func FormatPointer(tokens []string) string {
	if len(tokens) == 0 {
		return ""
	}
	var b strings.Builder
	for _, t := range tokens {
		b.WriteByte('/')
		b.WriteString(escapeToken(t))
	}
	return b.String()
}

// IsArrayIndex reports whether token is a canonical array index.
func IsArrayIndex(token string) bool {
	return canonicalIntRE.MatchString(token)
}

func splitTokens(s string) ([]string, error) {
	raw := strings.Split(s, "/")
	out := make([]string, len(raw))
	for i, r := range raw {
		t, err := unescapeToken(r)
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}

func unescapeToken(t string) (string, error) {
	if !strings.Contains(t, "~") {
		return t, nil
	}
	var b strings.Builder
	for i := 0; i < len(t); i++ {
		c := t[i]
		if c != '~' {
			b.WriteByte(c)
			continue
		}
		if i+1 >= len(t) {
			return "", fmt.Errorf("%w: dangling escape in %q", ErrMalformedPointer, t)
		}
		switch t[i+1] {
		case '0':
			b.WriteByte('~')
		case '1':
			b.WriteByte('/')
		default:
			return "", fmt.Errorf("%w: invalid escape ~%c in %q", ErrMalformedPointer, t[i+1], t)
		}
		i++
	}
	return b.String(), nil
}

func escapeToken(t string) string {
	t = strings.ReplaceAll(t, "~", "~0")
	return strings.ReplaceAll(t, "/", "~1")
}
