package key

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalPreservesOrder(t *testing.T) {
	t.Parallel()

	var k Key
	require.NoError(t, json.Unmarshal([]byte(`{"z":"last","a":1,"m":null,"b":true}`), &k))

	assert.Equal(t, []string{"z", "a", "m", "b"}, k.Names())

	v, ok := k.Get("a")
	require.True(t, ok)
	n, isNum := v.Num()
	assert.True(t, isNum)
	assert.InDelta(t, 1.0, n, 0)

	v, ok = k.Get("m")
	require.True(t, ok)
	assert.True(t, v.IsNull())

	v, ok = k.Get("b")
	require.True(t, ok)
	assert.Equal(t, KindBool, v.Kind())
}

func TestUnmarshalRejectsNested(t *testing.T) {
	t.Parallel()

	var k Key
	require.Error(t, json.Unmarshal([]byte(`{"a":{"b":1}}`), &k))
	require.Error(t, json.Unmarshal([]byte(`{"a":[1]}`), &k))
	require.Error(t, json.Unmarshal([]byte(`[1,2]`), &k))
}

func TestUnmarshalNullObject(t *testing.T) {
	t.Parallel()

	k := Of("a", 1)
	require.NoError(t, json.Unmarshal([]byte(`null`), &k))
	assert.Empty(t, k)
}

func TestMarshalRoundTripOrder(t *testing.T) {
	t.Parallel()

	k := Of("upload", "2021-01-01", "views", 12, "removed", nil)
	k = append(k, Field{Name: "skip", Value: Undefined()})

	data, err := json.Marshal(k)
	require.NoError(t, err)
	assert.JSONEq(t, `{"upload":"2021-01-01","views":12,"removed":null}`, string(data))
	assert.Equal(t, `{"upload":"2021-01-01","views":12,"removed":null}`, string(data))
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	k := Key{
		{Name: "a", Value: Undefined()},
		{Name: "b", Value: Null()},
		{Name: "c", Value: String("x")},
	}
	got := k.Normalize()
	assert.Equal(t, []string{"b", "c"}, got.Names())
	assert.Len(t, k, 3, "Normalize must not modify the receiver")
}

func TestWith(t *testing.T) {
	t.Parallel()

	k := Of("a", 1, "b", 2)
	got := k.With("a", String("x")).With("c", Bool(true))

	assert.Equal(t, []string{"a", "b", "c"}, got.Names())
	v, _ := got.Get("a")
	s, _ := v.Str()
	assert.Equal(t, "x", s)

	orig, _ := k.Get("a")
	assert.Equal(t, KindNumber, orig.Kind())
}

func TestFromMap(t *testing.T) {
	t.Parallel()

	m := map[string]any{"channelId": "UC1", "upload": "2021-01-01", "views": 3.0}
	k := FromMap(m, "upload", "channelId", "missing")

	assert.Equal(t, []string{"upload", "channelId"}, k.Names())
}

func TestOfPanics(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { Of("a") })
	assert.Panics(t, func() { Of(1, "a") })
}

func TestValueOf(t *testing.T) {
	t.Parallel()

	s := "ptr"
	var nilPtr *string

	tests := []struct {
		in   any
		want Kind
	}{
		{in: nil, want: KindNull},
		{in: "x", want: KindString},
		{in: &s, want: KindString},
		{in: nilPtr, want: KindNull},
		{in: true, want: KindBool},
		{in: 3, want: KindNumber},
		{in: int64(3), want: KindNumber},
		{in: uint16(3), want: KindNumber},
		{in: 2.5, want: KindNumber},
		{in: json.Number("42"), want: KindNumber},
		{in: Undefined(), want: KindUndefined},
		{in: struct{}{}, want: KindString},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ValueOf(tt.in).Kind(), "ValueOf(%#v)", tt.in)
	}
}

func TestValueEqual(t *testing.T) {
	t.Parallel()

	assert.True(t, Int(3).Equal(Number(3)))
	assert.False(t, Int(3).Equal(String("3")))
	assert.True(t, Null().Equal(Null()))
	assert.False(t, Null().Equal(Undefined()))
	assert.False(t, Bool(true).Equal(Bool(false)))
}

func TestKeyString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `{cat:"Fruit", n:2, x:null}`, Of("cat", "Fruit", "n", 2, "x", nil).String())
}
