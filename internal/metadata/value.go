// Package metadata models document metadata as tagged values and flattens
// them into the primitive-only form vector indexes accept.
package metadata

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindSequence
	KindMapping
	KindOther
)

var kindNames = [...]string{"null", "string", "int", "float", "bool", "sequence", "mapping", "other"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Primitive reports whether values of this kind can be stored as-is.
func (k Kind) Primitive() bool {
	return k <= KindBool
}

// Value is a tagged metadata value: a primitive, a sequence, a mapping, or
// an opaque Other that is only ever stringified.
type Value struct {
	kind  Kind
	str   string
	num   int64
	flt   float64
	bit   bool
	seq   []Value
	items Map
	other any
}

func Null() Value { return Value{kind: KindNull} }
func String(s string) Value { return Value{kind: KindString, str: s} }
func Int(i int64) Value { return Value{kind: KindInt, num: i} }
func Float(f float64) Value { return Value{kind: KindFloat, flt: f} }
func Bool(b bool) Value { return Value{kind: KindBool, bit: b} }
func Sequence(vs ...Value) Value { return Value{kind: KindSequence, seq: vs} }
func Mapping(m Map) Value { return Value{kind: KindMapping, items: m} }

// Strings builds a sequence of string values.
func Strings(ss []string) Value {
	vs := make([]Value, len(ss))
	for i, s := range ss {
		vs[i] = String(s)
	}
	return Sequence(vs...)
}

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// Str returns the string payload and whether v is a string.
func (v Value) Str() (string, bool) { return v.str, v.kind == KindString }

// Elems returns the elements of a sequence, or nil.
func (v Value) Elems() []Value { return v.seq }

// Entries returns the entries of a mapping, or nil.
func (v Value) Entries() Map { return v.items }

// FromAny classifies an arbitrary Go value. It is total: anything that is
// not a primitive, sequence or mapping becomes KindOther.
func FromAny(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case string:
		return String(t)
	case []byte:
		return String(string(t))
	case bool:
		return Bool(t)
	case int:
		return Int(int64(t))
	case int8:
		return Int(int64(t))
	case int16:
		return Int(int64(t))
	case int32:
		return Int(int64(t))
	case int64:
		return Int(t)
	case uint:
		return fromUint(uint64(t))
	case uint8:
		return Int(int64(t))
	case uint16:
		return Int(int64(t))
	case uint32:
		return Int(int64(t))
	case uint64:
		return fromUint(t)
	case float32:
		return Float(float64(t))
	case float64:
		return Float(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return Int(i)
		}
		if f, err := t.Float64(); err == nil {
			return Float(f)
		}
		return String(t.String())
	case []string:
		return Strings(t)
	case []any:
		vs := make([]Value, len(t))
		for i, e := range t {
			vs[i] = FromAny(e)
		}
		return Sequence(vs...)
	case Map:
		return Mapping(t)
	case map[string]any:
		return Mapping(FromMap(t))
	case map[string]string:
		m := make(Map, 0, len(t))
		for _, k := range sortedKeys(t) {
			m = append(m, Entry{Key: k, Value: String(t[k])})
		}
		return Mapping(m)
	}
	return fromReflect(reflect.ValueOf(x), x)
}

func fromUint(u uint64) Value {
	if u > math.MaxInt64 {
		return Value{kind: KindOther, other: u}
	}
	return Int(int64(u))
}

func fromReflect(rv reflect.Value, orig any) Value {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Null()
		}
		return FromAny(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return Sequence()
		}
		vs := make([]Value, rv.Len())
		for i := range vs {
			vs[i] = FromAny(rv.Index(i).Interface())
		}
		return Sequence(vs...)
	case reflect.Map:
		type kv struct {
			key string
			val reflect.Value
		}
		pairs := make([]kv, 0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			pairs = append(pairs, kv{fmt.Sprint(iter.Key().Interface()), iter.Value()})
		}
		sort.Slice(pairs, func(i, j int) bool { return pairs[i].key < pairs[j].key })
		m := make(Map, len(pairs))
		for i, p := range pairs {
			m[i] = Entry{Key: p.key, Value: FromAny(p.val.Interface())}
		}
		return Mapping(m)
	case reflect.String:
		return String(rv.String())
	case reflect.Bool:
		return Bool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return fromUint(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return Float(rv.Float())
	}
	return Value{kind: KindOther, other: orig}
}

// Interface returns the Go form of v: nil, string, int64, float64, bool,
// []any, map[string]any, or the original opaque value.
func (v Value) Interface() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindString:
		return v.str
	case KindInt:
		return v.num
	case KindFloat:
		return v.flt
	case KindBool:
		return v.bit
	case KindSequence:
		out := make([]any, len(v.seq))
		for i, e := range v.seq {
			out[i] = e.Interface()
		}
		return out
	case KindMapping:
		return v.items.ToMap()
	}
	return v.other
}

// Flatten reduces v to a primitive value. Primitives are returned as-is,
// sequences join their elements with ", ", mappings join "key=value" pairs
// with "; " one level deep, and anything else is stringified.
func (v Value) Flatten() Value {
	switch v.kind {
	case KindSequence:
		parts := make([]string, len(v.seq))
		for i, e := range v.seq {
			parts[i] = e.text()
		}
		return String(strings.Join(parts, ", "))
	case KindMapping:
		parts := make([]string, len(v.items))
		for i, e := range v.items {
			parts[i] = e.Key + "=" + e.Value.text()
		}
		return String(strings.Join(parts, "; "))
	case KindOther:
		return String(fmt.Sprint(v.other))
	}
	return v
}

// text is the default string representation of v. Nested sequences and
// mappings render as JSON.
func (v Value) text() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindString:
		return v.str
	case KindInt:
		return strconv.FormatInt(v.num, 10)
	case KindFloat:
		return strconv.FormatFloat(v.flt, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.bit)
	case KindSequence, KindMapping:
		b, err := json.Marshal(v.Interface())
		if err != nil {
			return fmt.Sprint(v.Interface())
		}
		return string(b)
	}
	return fmt.Sprint(v.other)
}

// String implements fmt.Stringer.
func (v Value) String() string {
	return v.text()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
