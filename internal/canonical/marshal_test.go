package canonical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", "hello", `"hello"`},
		{"empty string", "", `""`},
		{"int", 42, "42"},
		{"negative int64", int64(-100), "-100"},
		{"uint32", uint32(4294967295), "4294967295"},
		{"uint64", uint64(18446744073709551615), "18446744073709551615"},
		{"bool true", true, "true"},
		{"bool false", false, "false"},
		{"empty array", []any{}, "[]"},
		{"empty object", Object{}, "{}"},
		{"uint32 slice", []uint32{1, 2, 3}, "[1,2,3]"},
		{"string slice", []string{"a", "b"}, `["a","b"]`},
		{"nested", Object{"a": []any{1, "x", true}}, `{"a":[1,"x",true]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Marshal(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalSortedKeys(t *testing.T) {
	obj := Object{
		"zebra": 1,
		"alpha": 2,
		"beta":  Object{"y": 1, "x": 2},
	}

	result, err := Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"beta":{"x":2,"y":1},"zebra":1}`, string(result))
}

func TestMarshalUTF16Ordering(t *testing.T) {
	// U+10000 encodes as the surrogate pair D800 DC00, which sorts before
	// U+E000 in UTF-16 but after it in UTF-8.
	obj := Object{
		"\uE000":     1,
		"\U00010000": 2,
	}

	result, err := Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, "{\"\U00010000\":2,\"\uE000\":1}", string(result))
}

func TestMarshalNoHTMLEscape(t *testing.T) {
	result, err := Marshal("<script>a & b</script>")
	require.NoError(t, err)
	assert.Equal(t, `"<script>a & b</script>"`, string(result))
}

func TestMarshalLineSeparators(t *testing.T) {
	result, err := Marshal("a\u2028b\u2029c")
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\u2029c\"", string(result))

	// A literal backslash followed by the text u2028 stays escaped.
	result, err = Marshal(`x\u2028`)
	require.NoError(t, err)
	assert.Equal(t, `"x\\u2028"`, string(result))
}

func TestMarshalNFC(t *testing.T) {
	composed, err := Marshal("caf\u00E9")
	require.NoError(t, err)
	decomposed, err := Marshal("cafe\u0301")
	require.NoError(t, err)
	assert.Equal(t, composed, decomposed)

	k1, err := Marshal(Object{"caf\u00E9": 1})
	require.NoError(t, err)
	k2, err := Marshal(Object{"cafe\u0301": 1})
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
}

func TestMarshalRejects(t *testing.T) {
	tests := []struct {
		name   string
		input  any
		errMsg string
	}{
		{"null", nil, "null"},
		{"float64", 3.14, "float"},
		{"float32", float32(1), "float"},
		{"nested float", Object{"a": []any{1.5}}, "float"},
		{"unsupported", struct{}{}, "unsupported"},
		{"nfc collision", Object{"caf\u00E9": 1, "cafe\u0301": 2}, "collide"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Marshal(tt.input)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

type point struct{ x, y int }

func (p point) CanonicalValue() any {
	return Object{"x": p.x, "y": p.y}
}

func TestMarshalMarshaler(t *testing.T) {
	result, err := Marshal([]any{point{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, `[{"x":1,"y":2}]`, string(result))
}
