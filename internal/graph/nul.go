package graph

import "strings"

// nulReplacement is the private-use code point substituted for any raw NUL
// byte in a string key or value before persistence. Postgres text/JSONB
// columns reject embedded NUL bytes outright.
const nulReplacement = ""

// replaceNUL walks v (the result of json.Unmarshal into interface{} — so
// only map[string]any, []any, string, float64, bool, and nil ever appear)
// replacing every NUL byte in string keys and string values. It is
// idempotent: a tree with no NUL bytes (including one that already
// contains nulReplacement from a previous pass) is returned unchanged.
//
// Two keys differing only by their NUL bytes collapse to one entry; which
// value survives follows Go's unordered map iteration, and the collision is
// not logged. object.SanitizeKeys is not applied on this path, so it does
// not prevent such collisions here.
func replaceNUL(v any) any {
	switch val := v.(type) {
	case string:
		return replaceNULString(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, sub := range val {
			out[replaceNULString(k)] = replaceNUL(sub)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, sub := range val {
			out[i] = replaceNUL(sub)
		}
		return out
	default:
		return v
	}
}

func replaceNULString(s string) string {
	if !strings.ContainsRune(s, 0) {
		return s
	}
	return strings.ReplaceAll(s, "\x00", nulReplacement)
}
