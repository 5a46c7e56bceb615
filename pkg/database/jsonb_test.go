package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type metricsBlob struct {
	Count int            `json:"count"`
	Per   map[string]int `json:"per"`
}

func TestJSONBValueScanRoundTrip(t *testing.T) {
	original := NewJSONB(metricsBlob{Count: 3, Per: map[string]int{"studies": 3}})

	value, err := original.Value()
	require.NoError(t, err)

	var decoded JSONB[metricsBlob]
	require.NoError(t, decoded.Scan(value))

	assert.Equal(t, original.Data, decoded.GetValue())
}

func TestJSONBScanRejectsNonBytes(t *testing.T) {
	var decoded JSONB[metricsBlob]
	err := decoded.Scan(42)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected []byte")
}
