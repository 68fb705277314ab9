package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuccessState_MarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		in   SuccessState
		want string
	}{
		{"success", Success, "true"},
		{"failure", Failure, "false"},
		{"skipped", Skipped, `"skipped"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := json.Marshal(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(out))
		})
	}
}

func TestSuccessState_UnmarshalJSON(t *testing.T) {
	var s SuccessState
	require.NoError(t, json.Unmarshal([]byte("true"), &s))
	assert.True(t, s.Bool())
	assert.False(t, s.IsSkipped())

	require.NoError(t, json.Unmarshal([]byte(`"skipped"`), &s))
	assert.True(t, s.IsSkipped())
	assert.True(t, s.Bool(), "a skipped state reads as true")

	require.NoError(t, json.Unmarshal([]byte("false"), &s))
	assert.False(t, s.Bool())

	err := json.Unmarshal([]byte(`"bogus"`), &s)
	assert.Error(t, err)
}

func TestSuccessState_Bool_SkippedReadsTrue(t *testing.T) {
	assert.True(t, Skipped.Bool())
	assert.Equal(t, "skipped", Skipped.String())
}

func TestBoolState(t *testing.T) {
	assert.Equal(t, Success, BoolState(true))
	assert.Equal(t, Failure, BoolState(false))
}

func TestDomainError(t *testing.T) {
	wrapped := assert.AnError
	err := NewDomainError(ErrCodeResolution, "device lookup failed", wrapped)
	assert.ErrorIs(t, err, wrapped)
	assert.Contains(t, err.Error(), ErrCodeResolution)
	assert.Contains(t, err.Error(), "device lookup failed")

	bare := NewDomainError(ErrCodeInvalid, "bad input", nil)
	assert.Nil(t, bare.Unwrap())
	assert.Equal(t, "invalid_input: bad input", bare.Error())
}
