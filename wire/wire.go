// Package wire is the serializer shared by page generation and the client
// cache. It extends plain JSON with type tags so that timestamps, 64-bit
// integers and byte strings survive the trip from server to browser.
//
// Wire form:
//
//	{"json": <plain JSON>, "meta": {"values": {"<path>": "<tag>"}}}
//
// Tags are "Date" (RFC 3339 nano, UTC), "int" (int64 as a JSON number) and
// "bytes" (standard base64). A path joins map keys and array indices with
// '.', escaping '.' and '\' with '\'; an empty key segment is written "\_".
// The root value has the empty path. meta is omitted when nothing is tagged.
//
// Usage:
//
//	data, err := wire.Encode(map[string]any{"at": time.Now()})
//	v, err := wire.Decode(data) // map[string]any{"at": time.Time{...}}
package wire

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	TagDate  = "Date"
	TagInt   = "int"
	TagBytes = "bytes"
)

// maxDepth bounds nesting; pointer cycles hit it.
const maxDepth = 64

type envelope struct {
	JSON any   `json:"json"`
	Meta *meta `json:"meta,omitempty"`
}

type meta struct {
	Values map[string]string `json:"values"`
}

// Encode normalizes v and writes its wire form. Output is deterministic.
func Encode(v any) ([]byte, error) {
	n, err := Normalize(v)
	if err != nil {
		return nil, err
	}
	tags := map[string]string{}
	plain := flatten(n, nil, tags)
	env := envelope{JSON: plain}
	if len(tags) > 0 {
		env.Meta = &meta{Values: tags}
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("wire: encode: %w", err)
	}
	return data, nil
}

// Decode parses a wire form and returns the normalized value it describes.
func Decode(data []byte) (any, error) {
	var raw struct {
		JSON json.RawMessage `json:"json"`
		Meta *meta           `json:"meta"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("wire: decode envelope: %w", err)
	}
	if raw.JSON == nil {
		return nil, fmt.Errorf("wire: decode: missing json field")
	}
	dec := json.NewDecoder(bytes.NewReader(raw.JSON))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("wire: decode json: %w", err)
	}

	if raw.Meta != nil {
		for path, tag := range raw.Meta.Values {
			segs, err := splitPath(path)
			if err != nil {
				return nil, err
			}
			tree, err = applyTag(tree, segs, tag, path)
			if err != nil {
				return nil, err
			}
		}
	}
	return numbersToFloat(tree)
}

// Convert copies a decoded value into a typed destination, typically a
// pointer to a struct with json tags.
func Convert(v any, dst any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("wire: convert: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("wire: convert into %T: %w", dst, err)
	}
	return nil
}

// flatten turns a normalized value into plain JSON, recording tags.
func flatten(v any, path []string, tags map[string]string) any {
	switch x := v.(type) {
	case time.Time:
		tags[joinPath(path)] = TagDate
		return x.UTC().Format(time.RFC3339Nano)
	case int64:
		tags[joinPath(path)] = TagInt
		return json.Number(strconv.FormatInt(x, 10))
	case []byte:
		tags[joinPath(path)] = TagBytes
		return base64.StdEncoding.EncodeToString(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = flatten(e, append(path, strconv.Itoa(i)), tags)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = flatten(e, append(path, k), tags)
		}
		return out
	default:
		return v
	}
}

func applyTag(node any, segs []string, tag, path string) (any, error) {
	if len(segs) == 0 {
		return decodeTagged(node, tag, path)
	}
	switch x := node.(type) {
	case map[string]any:
		child, ok := x[segs[0]]
		if !ok {
			return nil, fmt.Errorf("wire: decode: tag path %q not found", path)
		}
		v, err := applyTag(child, segs[1:], tag, path)
		if err != nil {
			return nil, err
		}
		x[segs[0]] = v
		return x, nil
	case []any:
		i, err := strconv.Atoi(segs[0])
		if err != nil || i < 0 || i >= len(x) {
			return nil, fmt.Errorf("wire: decode: tag path %q not found", path)
		}
		v, err := applyTag(x[i], segs[1:], tag, path)
		if err != nil {
			return nil, err
		}
		x[i] = v
		return x, nil
	default:
		return nil, fmt.Errorf("wire: decode: tag path %q not found", path)
	}
}

func decodeTagged(node any, tag, path string) (any, error) {
	switch tag {
	case TagDate:
		s, ok := node.(string)
		if !ok {
			return nil, fmt.Errorf("wire: decode: %q tagged Date is not a string", path)
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("wire: decode %q: %w", path, err)
		}
		return t.UTC(), nil
	case TagInt:
		n, ok := node.(json.Number)
		if !ok {
			return nil, fmt.Errorf("wire: decode: %q tagged int is not a number", path)
		}
		i, err := strconv.ParseInt(n.String(), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("wire: decode %q: %w", path, err)
		}
		return i, nil
	case TagBytes:
		s, ok := node.(string)
		if !ok {
			return nil, fmt.Errorf("wire: decode: %q tagged bytes is not a string", path)
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("wire: decode %q: %w", path, err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("wire: decode: unknown tag %q at %q", tag, path)
	}
}

func numbersToFloat(v any) (any, error) {
	switch x := v.(type) {
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return nil, fmt.Errorf("wire: decode number %q: %w", x, err)
		}
		return f, nil
	case []any:
		for i, e := range x {
			n, err := numbersToFloat(e)
			if err != nil {
				return nil, err
			}
			x[i] = n
		}
		return x, nil
	case map[string]any:
		for k, e := range x {
			n, err := numbersToFloat(e)
			if err != nil {
				return nil, err
			}
			x[k] = n
		}
		return x, nil
	default:
		return v, nil
	}
}

func escapeSegment(s string) string {
	if s == "" {
		return `\_`
	}
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, ".", `\.`)
}

func joinPath(path []string) string {
	parts := make([]string, len(path))
	for i, p := range path {
		parts[i] = escapeSegment(p)
	}
	return strings.Join(parts, ".")
}

func splitPath(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	var segs []string
	var cur strings.Builder
	for i := 0; i < len(path); i++ {
		c := path[i]
		switch c {
		case '\\':
			if i+1 >= len(path) {
				return nil, fmt.Errorf("wire: decode: dangling escape in path %q", path)
			}
			i++
			switch path[i] {
			case '.', '\\':
				cur.WriteByte(path[i])
			case '_':
			default:
				return nil, fmt.Errorf("wire: decode: bad escape in path %q", path)
			}
		case '.':
			segs = append(segs, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	return append(segs, cur.String()), nil
}
