package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJobID(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    int64
		wantErr bool
	}{
		{name: "valid id", raw: "42", want: 42},
		{name: "zero rejected", raw: "0", wantErr: true},
		{name: "negative rejected", raw: "-3", wantErr: true},
		{name: "non-numeric rejected", raw: "abc", wantErr: true},
		{name: "empty rejected", raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := parseJobID(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, id)
		})
	}
}

func TestIsGlobPattern(t *testing.T) {
	assert.True(t, isGlobPattern("tag_*"))
	assert.True(t, isGlobPattern("macro_?pply"))
	assert.True(t, isGlobPattern("{tag_add,tag_remove}"))
	assert.True(t, isGlobPattern("[mt]ag_add"))
	assert.False(t, isGlobPattern("tag_add"))
	assert.False(t, isGlobPattern(""))
}

func TestOrDash(t *testing.T) {
	assert.Equal(t, "-", orDash(""))
	assert.Equal(t, "agent", orDash("agent"))
}

func TestResultFromJobPayload(t *testing.T) {
	t.Run("nil payload", func(t *testing.T) {
		res := resultFromJobPayload(nil)
		require.NotNil(t, res)
		assert.False(t, res.Success)
		assert.Empty(t, res.Message)
	})

	t.Run("rehydrated payload", func(t *testing.T) {
		res := resultFromJobPayload(map[string]any{
			"success": true,
			"message": "Added tags to 3 tickets",
			"data":    map[string]any{"view_id": float64(10)},
		})
		assert.True(t, res.Success)
		assert.Equal(t, "Added tags to 3 tickets", res.Message)
		assert.Equal(t, float64(10), res.Data["view_id"])
	})
}
