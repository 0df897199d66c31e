// Package querykey derives the canonical identity of a procedure call. The
// page generator and the client cache both key entries with For, so an
// entry computed on the server is found by the client without a refetch.
//
// The key text follows the query key shape used by tRPC clients:
//
//	[["profile","getUserByUsername"],{"input":{"username":"alice"},"type":"query"}]
//
// Object keys are sorted at every depth, so map insertion order and
// struct-vs-map input shapes do not matter. Values keep their types: the
// string "1" and the number 1 produce different keys. Timestamps are written
// as {"$date":"<RFC 3339 nano UTC>"} and byte strings as {"$bytes":"<base64>"}.
package querykey

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/leggettc18/chirp/wire"
)

// ErrInvalidProcedure is returned for an empty or malformed procedure path.
var ErrInvalidProcedure = errors.New("querykey: invalid procedure")

// Key is comparable and safe to use as a map key.
type Key struct {
	procedure string
	text      string
}

// For returns the canonical key of a query against procedure with input.
// A nil input produces a key without an "input" member.
func For(procedure string, input any) (Key, error) {
	segs, err := splitProcedure(procedure)
	if err != nil {
		return Key{}, err
	}
	n, err := wire.Normalize(input)
	if err != nil {
		return Key{}, err
	}

	var b bytes.Buffer
	b.WriteString("[[")
	for i, s := range segs {
		if i > 0 {
			b.WriteByte(',')
		}
		writeString(&b, s)
	}
	b.WriteString("],{")
	if n != nil {
		b.WriteString(`"input":`)
		writeValue(&b, n)
		b.WriteByte(',')
	}
	b.WriteString(`"type":"query"}]`)
	return Key{procedure: procedure, text: b.String()}, nil
}

// MustFor is For for static inputs; it panics on error.
func MustFor(procedure string, input any) Key {
	k, err := For(procedure, input)
	if err != nil {
		panic(err)
	}
	return k
}

func (k Key) String() string    { return k.text }
func (k Key) Procedure() string { return k.procedure }
func (k Key) IsZero() bool      { return k.text == "" }

// Hash returns the first 16 hex characters of SHA-256 over the key text.
func (k Key) Hash() string {
	sum := sha256.Sum256([]byte(k.text))
	return hex.EncodeToString(sum[:])[:16]
}

func splitProcedure(procedure string) ([]string, error) {
	if procedure == "" {
		return nil, fmt.Errorf("%w: empty name", ErrInvalidProcedure)
	}
	segs := strings.Split(procedure, ".")
	for _, s := range segs {
		if !isIdent(s) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidProcedure, procedure)
		}
	}
	return segs, nil
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

func writeValue(b *bytes.Buffer, v any) {
	switch x := v.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		b.WriteString(strconv.FormatBool(x))
	case string:
		writeString(b, x)
	case int64:
		b.WriteString(strconv.FormatInt(x, 10))
	case float64:
		// An integral float shares the key of the int64 it equals.
		if x == math.Trunc(x) && x >= math.MinInt64 && x < math.MaxInt64 {
			b.WriteString(strconv.FormatInt(int64(x), 10))
		} else {
			b.WriteString(strconv.FormatFloat(x, 'g', -1, 64))
		}
	case time.Time:
		b.WriteString(`{"$date":`)
		writeString(b, x.UTC().Format(time.RFC3339Nano))
		b.WriteByte('}')
	case []byte:
		b.WriteString(`{"$bytes":`)
		writeString(b, base64.StdEncoding.EncodeToString(x))
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, e := range x {
			if i > 0 {
				b.WriteByte(',')
			}
			writeValue(b, e)
		}
		b.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			writeString(b, k)
			b.WriteByte(':')
			writeValue(b, x[k])
		}
		b.WriteByte('}')
	}
}

func writeString(b *bytes.Buffer, s string) {
	enc := json.NewEncoder(b)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	// Encode appends a newline.
	b.Truncate(b.Len() - 1)
}
