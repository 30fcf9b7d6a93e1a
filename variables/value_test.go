package variables

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromNative_Primitives(t *testing.T) {
	assert.True(t, FromNative(nil).IsNull())

	b, ok := FromNative(true).AsBool()
	assert.True(t, ok)
	assert.True(t, b)

	n, ok := FromNative(3).AsNumber()
	assert.True(t, ok)
	assert.Equal(t, 3.0, n)

	s, ok := FromNative("hi").AsString()
	assert.True(t, ok)
	assert.Equal(t, "hi", s)
}

func TestFromNative_CompoundAndRoundTrip(t *testing.T) {
	native := map[string]interface{}{
		"items": []interface{}{1.0, "two", true},
		"n":     2.0,
	}
	v := FromNative(native)
	assert.Equal(t, KindObject, v.Kind())

	back := v.ToNative()
	m, ok := back.(map[string]interface{})
	assert.True(t, ok)
	assert.Equal(t, 2.0, m["n"])
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "", Null().Stringify())
	assert.Equal(t, "true", Bool(true).Stringify())
	assert.Equal(t, "3", Number(3.0).Stringify())
	assert.Equal(t, "3.5", Number(3.5).Stringify())
	assert.Equal(t, "hello", String("hello").Stringify())
	assert.Equal(t, "[1,2]", Array([]Value{Number(1), Number(2)}).Stringify())
	assert.Equal(t, "{a=1,b=2}", Object(map[string]Value{"a": Number(1), "b": Number(2)}).Stringify())
}

func TestEqual_StrictNoCoercion(t *testing.T) {
	assert.True(t, Equal(Number(1), Number(1)))
	assert.False(t, Equal(Number(1), String("1")), "no cross-kind coercion")
	assert.True(t, Equal(Array([]Value{Number(1)}), Array([]Value{Number(1)})))
	assert.False(t, Equal(Array([]Value{Number(1)}), Array([]Value{Number(2)})))
	assert.True(t, Equal(
		Object(map[string]Value{"a": Bool(true)}),
		Object(map[string]Value{"a": Bool(true)}),
	))
}
