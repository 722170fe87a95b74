// Package layering normalises raw Go values into the shapes the scope tree
// understands (objects as map[string]any, arrays as []any) and merges layered
// snapshots ordered from strongest to weakest.
package layering

import "reflect"

// Merge composes snapshots ordered from strongest to weakest, returning a new
// map that keeps explicit keys from stronger layers while filling any missing
// data from weaker ones. Nested objects are merged key by key; every other
// value (arrays included) is taken whole from the strongest layer defining it.
func Merge(layers ...map[string]any) map[string]any {
	if len(layers) == 0 {
		return nil
	}
	merged := Clone(Normalize(layers[len(layers)-1]))
	out, _ := merged.(map[string]any)
	if out == nil {
		out = map[string]any{}
	}
	for i := len(layers) - 2; i >= 0; i-- {
		strong, _ := Normalize(layers[i]).(map[string]any)
		out = mergeObject(strong, out)
	}
	return out
}

func mergeObject(strong, weak map[string]any) map[string]any {
	result := make(map[string]any, len(strong)+len(weak))
	for key, value := range weak {
		result[key] = Clone(value)
	}
	for key, value := range strong {
		strongObj, strongIsObj := value.(map[string]any)
		weakObj, weakIsObj := result[key].(map[string]any)
		if strongIsObj && weakIsObj {
			result[key] = mergeObject(strongObj, weakObj)
			continue
		}
		result[key] = Clone(value)
	}
	return result
}

// Normalize converts maps keyed by strings into map[string]any and slices or
// arrays into []any, recursively. Byte slices and every other kind are
// returned untouched. Cyclic inputs are not detected.
func Normalize(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case map[string]any:
		for key, item := range v {
			if normalized := Normalize(item); !sameShape(item, normalized) {
				v[key] = normalized
			}
		}
		return v
	case []any:
		for i, item := range v {
			if normalized := Normalize(item); !sameShape(item, normalized) {
				v[i] = normalized
			}
		}
		return v
	case []byte:
		return v
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return value
		}
		if rv.IsNil() {
			return nil
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = Normalize(iter.Value().Interface())
		}
		return out
	case reflect.Slice:
		if rv.IsNil() {
			return nil
		}
		fallthrough
	case reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = Normalize(rv.Index(i).Interface())
		}
		return out
	default:
		return value
	}
}

// IsObject reports whether value is a normalised object.
func IsObject(value any) bool {
	_, ok := value.(map[string]any)
	return ok
}

// IsArray reports whether value is a normalised array.
func IsArray(value any) bool {
	_, ok := value.([]any)
	return ok
}

// Clone deep copies normalised objects and arrays. Any other value is returned
// as is.
func Clone(value any) any {
	switch v := value.(type) {
	case map[string]any:
		if v == nil {
			return v
		}
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = Clone(item)
		}
		return out
	case []any:
		if v == nil {
			return v
		}
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Clone(item)
		}
		return out
	default:
		return value
	}
}

// sameShape guards in-place rewrites so already normalised values are not
// reassigned while iterating.
func sameShape(a, b any) bool {
	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	if !ra.IsValid() || !rb.IsValid() {
		return !ra.IsValid() && !rb.IsValid()
	}
	if ra.Type() != rb.Type() {
		return false
	}
	switch ra.Kind() {
	case reflect.Map, reflect.Slice:
		return ra.Pointer() == rb.Pointer()
	default:
		return true
	}
}
