package metadata

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   Map
		want map[string]any
	}{
		{
			name: "sequence joins with comma",
			in:   Pairs("skills", []string{"a", "b"}),
			want: map[string]any{"skills": "a, b", "user_id": "u1"},
		},
		{
			name: "mapping joins key=value",
			in:   Pairs("x", map[string]any{"k": 1}),
			want: map[string]any{"x": "k=1", "user_id": "u1"},
		},
		{
			name: "primitives and null unchanged",
			in:   Pairs("n", 5, "f", nil),
			want: map[string]any{"n": int64(5), "f": nil, "user_id": "u1"},
		},
		{
			name: "floats and bools unchanged",
			in:   Pairs("score", 0.75, "active", true),
			want: map[string]any{"score": 0.75, "active": true, "user_id": "u1"},
		},
		{
			name: "multi-key mapping keeps order",
			in:   Pairs("x", Pairs("b", 2, "a", "one")),
			want: map[string]any{"x": "b=2; a=one", "user_id": "u1"},
		},
		{
			name: "nested structures use default representation",
			in:   Pairs("deep", map[string]any{"inner": []any{"p", 1}}),
			want: map[string]any{"deep": `inner=["p",1]`, "user_id": "u1"},
		},
		{
			name: "mixed sequence stringifies elements",
			in:   Pairs("mixed", []any{1, "two", 3.5, false, nil}),
			want: map[string]any{"mixed": "1, two, 3.5, false, null", "user_id": "u1"},
		},
		{
			name: "empty sequence becomes empty string",
			in:   Pairs("education", []string{}),
			want: map[string]any{"education": "", "user_id": "u1"},
		},
		{
			name: "other values are stringified",
			in:   Pairs("point", struct{ X, Y int }{1, 2}),
			want: map[string]any{"point": "{1 2}", "user_id": "u1"},
		},
		{
			name: "caller user_id is overwritten",
			in:   Pairs("user_id", "intruder", "type", "profile"),
			want: map[string]any{"user_id": "u1", "type": "profile"},
		},
		{
			name: "empty input gains user_id",
			in:   nil,
			want: map[string]any{"user_id": "u1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Sanitize("u1", tt.in)
			assert.True(t, IsPrimitive(out))
			assert.Equal(t, tt.want, out.ToMap())
		})
	}
}

func TestSanitize_PreservesOrder(t *testing.T) {
	in := Pairs("type", "profile", "summary", "s", "skills", []string{"go"}, "education", []string{})
	out := Sanitize("u1", in)
	assert.Equal(t, []string{"type", "summary", "skills", "education", "user_id"}, out.Keys())

	in = Pairs("user_id", "x", "type", "cv_raw")
	out = Sanitize("u1", in)
	assert.Equal(t, []string{"user_id", "type"}, out.Keys())
}

func TestSanitize_DoesNotMutateInput(t *testing.T) {
	in := Pairs("user_id", "other", "skills", []string{"a"})
	_ = Sanitize("u1", in)

	v, _ := in.Get("user_id")
	s, _ := v.Str()
	assert.Equal(t, "other", s)
	skills, _ := in.Get("skills")
	assert.Equal(t, KindSequence, skills.Kind())
}

func TestSanitizeMap(t *testing.T) {
	out := SanitizeMap("u2", map[string]any{"b": []int{1, 2}, "a": "x"})
	assert.Equal(t, []string{"a", "b", "user_id"}, out.Keys())
	assert.Equal(t, "1, 2", out.ToMap()["b"])
}

func TestFromAny_Kinds(t *testing.T) {
	var nilPtr *int
	seven := 7
	tests := []struct {
		in   any
		want Kind
	}{
		{nil, KindNull},
		{nilPtr, KindNull},
		{&seven, KindInt},
		{"s", KindString},
		{[]byte("b"), KindString},
		{true, KindBool},
		{int8(1), KindInt},
		{uint32(1), KindInt},
		{uint64(1 << 63), KindOther},
		{float32(1.5), KindFloat},
		{json.Number("12"), KindInt},
		{json.Number("1.5"), KindFloat},
		{[]any{1}, KindSequence},
		{[3]int{1, 2, 3}, KindSequence},
		{map[string]string{"a": "b"}, KindMapping},
		{map[int]bool{1: true}, KindMapping},
		{struct{ A int }{1}, KindOther},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FromAny(tt.in).Kind(), "%T", tt.in)
	}
}

func TestMap_SetAndGet(t *testing.T) {
	var m Map
	m = m.Set("a", String("1"))
	m = m.Set("b", Int(2))
	m = m.Set("a", String("3"))

	require.Len(t, m, 2)
	s, ok := m.GetString("a")
	assert.True(t, ok)
	assert.Equal(t, "3", s)

	_, ok = m.GetString("b")
	assert.False(t, ok, "non-string values are not returned by GetString")
	_, ok = m.Get("missing")
	assert.False(t, ok)
}

func TestMap_MarshalJSON(t *testing.T) {
	m := Pairs("z", 1, "a", []string{"x"}, "m", nil)
	b, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Equal(t, `{"z":1,"a":["x"],"m":null}`, string(b))
}

func TestPairs_Panics(t *testing.T) {
	assert.Panics(t, func() { Pairs("odd") })
	assert.Panics(t, func() { Pairs(1, "x") })
}
