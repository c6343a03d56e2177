package metadata

import (
	"bytes"
	"encoding/json"
)

// Entry is one key/value pair of a Map.
type Entry struct {
	Key   string
	Value Value
}

// Map is an insertion-ordered metadata mapping. Keys are unique.
type Map []Entry

// FromMap converts an unordered map. Keys are taken in sorted order since
// Go maps carry no insertion order.
func FromMap(m map[string]any) Map {
	out := make(Map, 0, len(m))
	for _, k := range sortedKeys(m) {
		out = append(out, Entry{Key: k, Value: FromAny(m[k])})
	}
	return out
}

// Pairs builds a Map from alternating key, value arguments. It panics on an
// odd count or a non-string key, both of which are programming errors.
func Pairs(kv ...any) Map {
	if len(kv)%2 != 0 {
		panic("metadata: Pairs requires an even number of arguments")
	}
	var m Map
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			panic("metadata: Pairs keys must be strings")
		}
		m = m.Set(key, FromAny(kv[i+1]))
	}
	return m
}

// Get returns the value for key.
func (m Map) Get(key string) (Value, bool) {
	for _, e := range m {
		if e.Key == key {
			return e.Value, true
		}
	}
	return Value{}, false
}

// GetString returns the value for key when it is a non-empty string.
func (m Map) GetString(key string) (string, bool) {
	v, ok := m.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.Str()
	return s, ok && s != ""
}

// Set replaces the value of an existing key in place or appends a new entry.
func (m Map) Set(key string, v Value) Map {
	for i := range m {
		if m[i].Key == key {
			m[i].Value = v
			return m
		}
	}
	return append(m, Entry{Key: key, Value: v})
}

// Clone returns a shallow copy.
func (m Map) Clone() Map {
	if m == nil {
		return nil
	}
	out := make(Map, len(m))
	copy(out, m)
	return out
}

// Keys returns the keys in order.
func (m Map) Keys() []string {
	keys := make([]string, len(m))
	for i, e := range m {
		keys[i] = e.Key
	}
	return keys
}

// ToMap returns the Go form of every value keyed by name.
func (m Map) ToMap() map[string]any {
	out := make(map[string]any, len(m))
	for _, e := range m {
		out[e.Key] = e.Value.Interface()
	}
	return out
}

// MarshalJSON encodes the map as an object with keys in insertion order.
func (m Map) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(e.Value.Interface())
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
