package wire

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// SerializationError reports a value the wire format cannot carry. It is a
// contract violation between server and client, never a data condition.
type SerializationError struct {
	Path   string
	Type   string
	Reason string
}

func (e *SerializationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("wire: cannot serialize %s: %s", e.Type, e.Reason)
	}
	return fmt.Sprintf("wire: cannot serialize %s at %q: %s", e.Type, e.Path, e.Reason)
}

var (
	timeType    = reflect.TypeOf(time.Time{})
	rawJSONType = reflect.TypeOf(json.RawMessage(nil))
)

// Normalize maps v into the wire value domain: nil, bool, string, float64,
// int64, time.Time, []byte, []any and map[string]any. Structs become maps
// keyed by their json names.
func Normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	return normalize(reflect.ValueOf(v), nil, 0)
}

func normalize(rv reflect.Value, path []string, depth int) (any, error) {
	if !rv.IsValid() {
		return nil, nil
	}
	if depth > maxDepth {
		return nil, &SerializationError{Path: joinPath(path), Type: rv.Type().String(), Reason: "nesting too deep"}
	}

	t := rv.Type()
	if t == timeType {
		return rv.Interface().(time.Time).UTC(), nil
	}
	if t == rawJSONType {
		var v any
		if rv.Len() == 0 {
			return nil, nil
		}
		if err := json.Unmarshal(rv.Bytes(), &v); err != nil {
			return nil, &SerializationError{Path: joinPath(path), Type: t.String(), Reason: err.Error()}
		}
		return normalize(reflect.ValueOf(v), path, depth+1)
	}

	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
		return normalize(rv.Elem(), path, depth+1)

	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return nil, &SerializationError{Path: joinPath(path), Type: t.String(), Reason: "unsigned value overflows int64"}
		}
		return int64(u), nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if err := checkFloat(f, path, t); err != nil {
			return nil, err
		}
		return f, nil

	case reflect.Slice:
		if rv.IsNil() {
			return nil, nil
		}
		if t.Elem().Kind() == reflect.Uint8 {
			b := make([]byte, rv.Len())
			copy(b, rv.Bytes())
			return b, nil
		}
		return normalizeList(rv, path, depth)
	case reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			b := make([]byte, rv.Len())
			reflect.Copy(reflect.ValueOf(b), rv)
			return b, nil
		}
		return normalizeList(rv, path, depth)

	case reflect.Map:
		if t.Key().Kind() != reflect.String {
			return nil, &SerializationError{Path: joinPath(path), Type: t.String(), Reason: "map key is not a string"}
		}
		if rv.IsNil() {
			return nil, nil
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := iter.Key().String()
			v, err := normalize(iter.Value(), append(path, k), depth+1)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil

	case reflect.Struct:
		out := make(map[string]any, t.NumField())
		if err := normalizeStruct(rv, path, depth, out); err != nil {
			return nil, err
		}
		return out, nil
	}

	return nil, &SerializationError{Path: joinPath(path), Type: t.String(), Reason: "unsupported kind " + rv.Kind().String()}
}

func normalizeList(rv reflect.Value, path []string, depth int) (any, error) {
	out := make([]any, rv.Len())
	for i := range out {
		v, err := normalize(rv.Index(i), append(path, strconv.Itoa(i)), depth+1)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// normalizeStruct follows encoding/json field rules: exported fields only,
// json:"-" skipped, renames and omitempty honoured, untagged embedded
// structs inlined.
func normalizeStruct(rv reflect.Value, path []string, depth int, out map[string]any) error {
	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")

		if f.Anonymous && name == "" {
			ft := f.Type
			fv := rv.Field(i)
			if ft.Kind() == reflect.Pointer {
				if fv.IsNil() {
					continue
				}
				ft, fv = ft.Elem(), fv.Elem()
			}
			if ft.Kind() == reflect.Struct && ft != timeType {
				if err := normalizeStruct(fv, path, depth+1, out); err != nil {
					return err
				}
				continue
			}
		}
		if !f.IsExported() {
			continue
		}
		if name == "" {
			name = f.Name
		}
		fv := rv.Field(i)
		if strings.Contains(opts, "omitempty") && isEmpty(fv) {
			continue
		}
		v, err := normalize(fv, append(path, name), depth+1)
		if err != nil {
			return err
		}
		out[name] = v
	}
	return nil
}

func isEmpty(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		return v.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return v.IsNil()
	case reflect.Struct:
		return false
	}
	return v.IsZero()
}

func checkFloat(f float64, path []string, t reflect.Type) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return &SerializationError{Path: joinPath(path), Type: t.String(), Reason: "non-finite float"}
	}
	return nil
}
