package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckValue_CleanValues(t *testing.T) {
	clean := []string{
		"Worked on the analytical engine",
		"ada@example.com",
		"2026-08-28",
		"",
	}
	for _, value := range clean {
		assert.Nil(t, CheckValue("content", value), "value %q must not be flagged", value)
	}
}

func TestCheckValue_DetectsInjection(t *testing.T) {
	result := CheckValue("content", "'; DROP TABLE entries--")
	require.NotNil(t, result)
	assert.True(t, result.IsSQLi)
	assert.NotEmpty(t, result.Fingerprint)
	assert.Equal(t, "content", result.Field)
}

func TestCheckRecord(t *testing.T) {
	results := CheckRecord("plain narrative", map[string]string{
		"role":   "engineer",
		"search": "1' OR '1'='1",
	})
	require.Len(t, results, 1)
	assert.Equal(t, "search", results[0].Field)
	assert.True(t, results[0].IsSQLi)
}

func TestCheckRecord_Clean(t *testing.T) {
	results := CheckRecord("plain narrative", map[string]string{"role": "engineer"})
	assert.Empty(t, results)
}
