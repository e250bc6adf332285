package model

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefined_RejectsNonFinite(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		ok   bool
	}{
		{"zero", 0, true},
		{"negative", -3.5, true},
		{"nan", math.NaN(), false},
		{"+inf", math.Inf(1), false},
		{"-inf", math.Inf(-1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.ok, Defined(tt.in).IsDefined())
		})
	}
}

func TestValue_ZeroIsUndefined(t *testing.T) {
	var v Value
	assert.False(t, v.IsDefined())
	assert.Equal(t, "NA", v.String())
	_, ok := v.Float()
	assert.False(t, ok)
}

func TestValue_JSON(t *testing.T) {
	data, err := json.Marshal(struct {
		A Value `json:"a"`
		B Value `json:"b"`
	}{A: Defined(1.5), B: Undefined()})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1.5,"b":null}`, string(data))

	var got struct {
		A Value `json:"a"`
		B Value `json:"b"`
	}
	require.NoError(t, json.Unmarshal(data, &got))
	f, ok := got.A.Float()
	assert.True(t, ok)
	assert.InDelta(t, 1.5, f, 1e-12)
	assert.False(t, got.B.IsDefined())
}

func TestValue_String(t *testing.T) {
	assert.Equal(t, "15", Defined(15).String())
	assert.Equal(t, "0.25", Defined(0.25).String())
}
