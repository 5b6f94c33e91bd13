package message

import (
	"math"
	"testing"

	"github.com/c360/readport/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoerce_Int(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int64
		ok   bool
	}{
		{"plain", "42", 42, true},
		{"negative", "-17", -17, true},
		{"explicit plus", "+5", 5, true},
		{"padded", "  12 ", 12, true},
		{"max int64", "9223372036854775807", math.MaxInt64, true},
		{"overflow", "9223372036854775808", 0, false},
		{"decimal point", "1.0", 0, false},
		{"empty", "", 0, false},
		{"blank", "   ", 0, false},
		{"letters", "12a", 0, false},
		{"hex", "0x1F", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Coerce(tt.in, KindInt)
			if !tt.ok {
				require.Error(t, err)
				var ce *CoercionError
				require.ErrorAs(t, err, &ce)
				assert.Equal(t, KindInt, ce.Kind)
				assert.Equal(t, tt.in, ce.Text)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, KindInt, v.Kind())
			assert.Equal(t, tt.want, v.Int())
		})
	}
}

func TestCoerce_Float(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want float64
		ok   bool
	}{
		{"decimal", "45.3", 45.3, true},
		{"negative", "-0.25", -0.25, true},
		{"integer literal", "7", 7, true},
		{"scientific", "1.5e3", 1500, true},
		{"scientific negative exponent", "2E-2", 0.02, true},
		{"padded", " 19.8\t", 19.8, true},
		{"empty", "", 0, false},
		{"garbage", "x1", 0, false},
		{"hex float", "0x1p4", 0, false},
		{"underscore", "1_000.5", 0, false},
		{"out of range", "1e400", 0, false},
		{"nan rejected", "NaN", 0, false},
		{"inf rejected", "+Inf", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Coerce(tt.in, KindFloat)
			if !tt.ok {
				require.Error(t, err)
				assert.True(t, errors.IsInvalid(err), "coercion errors are parse failures")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, KindFloat, v.Kind())
			assert.InDelta(t, tt.want, v.Float(), 1e-12)
		})
	}
}

func TestCoerce_NonFiniteAllowed(t *testing.T) {
	opts := CoerceOptions{AllowNonFinite: true}

	v, err := CoerceWith("NaN", KindFloat, opts)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(v.Float()))

	v, err = CoerceWith("-Inf", KindFloat, opts)
	require.NoError(t, err)
	assert.True(t, math.IsInf(v.Float(), -1))

	// Range errors are still errors even when infinities are allowed
	_, err = CoerceWith("1e400", KindFloat, opts)
	require.Error(t, err)
}

func TestCoerce_Text(t *testing.T) {
	v, err := Coerce("  OK \r", KindText)
	require.NoError(t, err)
	assert.Equal(t, KindText, v.Kind())
	assert.Equal(t, "OK", v.Text())

	v, err = Coerce("", KindText)
	require.NoError(t, err)
	assert.Equal(t, "", v.Text())
}

func TestCoerce_Deterministic(t *testing.T) {
	for _, in := range []string{"1", "-3.5", "abc", "1e3"} {
		for _, kind := range []Kind{KindInt, KindFloat, KindText} {
			a, errA := Coerce(in, kind)
			b, errB := Coerce(in, kind)
			assert.Equal(t, errA == nil, errB == nil)
			assert.True(t, a.Equal(b), "%q as %s", in, kind)
		}
	}
}

func TestParseKind(t *testing.T) {
	for name, want := range map[string]Kind{
		"int": KindInt, "INTEGER": KindInt, "float": KindFloat, "double": KindFloat,
		"text": KindText, "str": KindText, " string ": KindText,
	} {
		got, err := ParseKind(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := ParseKind("bool")
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestValue_String(t *testing.T) {
	assert.Equal(t, "-4", IntValue(-4).String())
	assert.Equal(t, "0.5", FloatValue(0.5).String())
	assert.Equal(t, "3", FloatValue(3).String())
	assert.Equal(t, "A1", TextValue("A1").String())
	assert.True(t, FloatValue(math.NaN()).Equal(FloatValue(math.NaN())))
	assert.False(t, IntValue(1).Equal(FloatValue(1)))
}
