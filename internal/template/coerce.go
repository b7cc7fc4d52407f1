package template

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// Built-in coercion names.
const (
	CoerceString    = "string"
	CoerceInteger   = "integer"
	CoerceNumber    = "number"
	CoerceBoolean   = "boolean"
	CoerceDate      = "date"
	CoerceTime      = "time"
	CoerceDatetime  = "datetime"
	CoerceEncrypted = "encrypted"
	CoerceArtifact  = "artifact"
)

var (
	ErrCoerce       = errors.New("cannot coerce value")
	ErrNoEncryptKey = errors.New("encrypted field without an encrypt key")
)

// encryptedLen is the number of hex characters kept from the keyed hash.
const encryptedLen = 32

// Env carries per-run inputs of coercions.
type Env struct {
	// EncryptKey keys the hash of encrypted fields.
	EncryptKey []byte
	// NewPlaceholder mints artifact placeholder tokens; uuid v4 when nil.
	NewPlaceholder func() string
}

func (e Env) placeholder() string {
	if e.NewPlaceholder != nil {
		return e.NewPlaceholder()
	}
	return uuid.NewString()
}

// CoerceFunc converts a raw cell value.
type CoerceFunc func(raw any, env Env) (any, error)

// Registry maps coercion names to functions.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]CoerceFunc
}

// NewRegistry returns a registry holding the built-in coercions.
func NewRegistry() *Registry {
	r := &Registry{funcs: map[string]CoerceFunc{}}
	r.Register(CoerceString, coerceString)
	r.Register(CoerceInteger, coerceInteger)
	r.Register(CoerceNumber, coerceNumber)
	r.Register(CoerceBoolean, coerceBoolean)
	r.Register(CoerceDate, coerceDate)
	r.Register(CoerceTime, coerceTime)
	r.Register(CoerceDatetime, coerceDatetime)
	r.Register(CoerceEncrypted, coerceEncrypted)
	r.Register(CoerceArtifact, coerceArtifact)
	return r
}

// Register adds or replaces a coercion.
func (r *Registry) Register(name string, fn CoerceFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// Lookup returns the named coercion.
func (r *Registry) Lookup(name string) (CoerceFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

func coerceErr(raw any, want string) error {
	return fmt.Errorf("%w: %v (%T) is not a valid %s", ErrCoerce, raw, raw, want)
}

func coerceString(raw any, _ Env) (any, error) {
	return stringOf(raw)
}

func stringOf(raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case bool:
		return strconv.FormatBool(v), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case time.Time:
		return v.Format(time.RFC3339), nil
	}
	return "", coerceErr(raw, "string")
}

func coerceInteger(raw any, _ Env) (any, error) {
	switch v := raw.(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case uint64:
		if v > math.MaxInt64 {
			return nil, coerceErr(raw, "integer")
		}
		return int64(v), nil
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return nil, coerceErr(raw, "integer")
		}
		return int64(v), nil
	case json.Number:
		return coerceInteger(v.String(), Env{})
	case string:
		s := strings.TrimSpace(v)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return coerceInteger(f, Env{})
		}
	}
	return nil, coerceErr(raw, "integer")
}

func coerceNumber(raw any, _ Env) (any, error) {
	switch v := raw.(type) {
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case float64:
		return v, nil
	case json.Number:
		return coerceNumber(v.String(), Env{})
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return f, nil
		}
	}
	return nil, coerceErr(raw, "number")
}

func coerceBoolean(raw any, _ Env) (any, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case int, int64, float64, json.Number:
		s, _ := stringOf(v)
		return coerceBoolean(s, Env{})
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "t", "yes", "y", "1":
			return true, nil
		case "false", "f", "no", "n", "0":
			return false, nil
		}
	}
	return nil, coerceErr(raw, "boolean")
}

var (
	dateLayouts     = []string{"2006-01-02", "2006/01/02", "01/02/2006", time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"}
	timeLayouts     = []string{"15:04:05", "15:04", "3:04:05 PM", "3:04 PM"}
	datetimeLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02 15:04", "2006-01-02"}
)

func parseWith(raw any, layouts []string, want string) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range layouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
	}
	return time.Time{}, coerceErr(raw, want)
}

func coerceDate(raw any, _ Env) (any, error) {
	t, err := parseWith(raw, dateLayouts, "date")
	if err != nil {
		return nil, err
	}
	return t.Format("2006-01-02"), nil
}

func coerceTime(raw any, _ Env) (any, error) {
	t, err := parseWith(raw, timeLayouts, "time")
	if err != nil {
		return nil, err
	}
	return t.Format("15:04:05"), nil
}

func coerceDatetime(raw any, _ Env) (any, error) {
	t, err := parseWith(raw, datetimeLayouts, "datetime")
	if err != nil {
		return nil, err
	}
	return t.UTC().Format(time.RFC3339), nil
}

// coerceEncrypted replaces an identifier with its keyed BLAKE2b MAC, hex
// encoded and truncated.
func coerceEncrypted(raw any, env Env) (any, error) {
	if len(env.EncryptKey) == 0 {
		return nil, ErrNoEncryptKey
	}
	s, err := stringOf(raw)
	if err != nil {
		return nil, err
	}
	h, err := blake2b.New256(env.EncryptKey)
	if err != nil {
		return nil, fmt.Errorf("encrypt key: %w", err)
	}
	h.Write([]byte(s))
	return hex.EncodeToString(h.Sum(nil))[:encryptedLen], nil
}

// coerceArtifact takes the local file path and returns a fresh placeholder.
func coerceArtifact(raw any, env Env) (any, error) {
	s, ok := raw.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return nil, coerceErr(raw, "file path")
	}
	return env.placeholder(), nil
}
