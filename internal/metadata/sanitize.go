package metadata

// Reserved keys with meaning to the document store.
const (
	KeyID     = "id"
	KeyType   = "type"
	KeyUserID = "user_id"
)

// Sanitize flattens every value of in to a primitive, preserving key order,
// and forces user_id to userID. It never fails.
func Sanitize(userID string, in Map) Map {
	out := make(Map, 0, len(in)+1)
	for _, e := range in {
		out = append(out, Entry{Key: e.Key, Value: e.Value.Flatten()})
	}
	return out.Set(KeyUserID, String(userID))
}

// SanitizeMap is Sanitize for an unordered map.
func SanitizeMap(userID string, in map[string]any) Map {
	return Sanitize(userID, FromMap(in))
}

// IsPrimitive reports whether every value in m is a primitive.
func IsPrimitive(m Map) bool {
	for _, e := range m {
		if !e.Value.Kind().Primitive() {
			return false
		}
	}
	return true
}
