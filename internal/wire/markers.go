package wire

import "encoding/json"

// Marker key names embedded in JSON values to cross handle ids over
// the wire.
const (
	HostMarkerKey = "DENO_WORLD_INST_ID" // PHP -> Go JSON: a PHP-held handle
	PhpMarkerKey  = "PHP_WORLD_INST_ID"  // Go -> PHP JSON: a Go-held handle
)

// MarkerFor wraps a handle id in the single-key object used to mark a
// value flowing to the named side of the bridge.
func MarkerFor(key string, id int32) json.RawMessage {
	raw, _ := json.Marshal(map[string]int32{key: id})
	return raw
}

// AsMarker reports whether v (already unmarshaled into a generic
// map[string]any, as produced by encoding/json for an object) is a
// single-key handle marker, and returns the id if so.
func AsMarker(v any, key string) (int32, bool) {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 1 {
		return 0, false
	}
	raw, ok := m[key]
	if !ok {
		return 0, false
	}
	switch n := raw.(type) {
	case float64:
		return int32(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int32(i), true
	default:
		return 0, false
	}
}

// Revive walks a decoded JSON value tree (maps/slices from
// encoding/json) and replaces every marker object keyed by key with
// the result of resolve(id). Used on both sides to rehydrate handle
// markers into live proxies/objects without a second parse pass.
func Revive(v any, key string, resolve func(id int32) any) any {
	switch t := v.(type) {
	case map[string]any:
		if id, ok := AsMarker(t, key); ok {
			return resolve(id)
		}
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = Revive(val, key, resolve)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Revive(val, key, resolve)
		}
		return out
	default:
		return v
	}
}
