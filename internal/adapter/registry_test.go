package adapter

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelfRegistration(t *testing.T) {
	tests := []struct {
		name     string
		adapter  string
		expected bool
	}{
		{"duckdb registered", "duckdb", true},
		{"postgres registered", "postgres", true},
		{"unknown not registered", "unknown_db", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRegistered(tt.adapter), "IsRegistered(%q)", tt.adapter)
		})
	}

	assert.Subset(t, ListAdapters(), []string{"duckdb", "postgres"})
}

func TestNewAdapter(t *testing.T) {
	a, err := NewAdapter(Config{Type: "duckdb"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &DuckDBAdapter{}, a)

	a, err = NewAdapter(Config{Type: "postgres"}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	assert.Equal(t, "postgres", a.DialectName())
}

func TestNewAdapter_UnknownType(t *testing.T) {
	_, err := NewAdapter(Config{Type: "oracle"}, nil)
	require.Error(t, err)

	var unknownErr *UnknownAdapterError
	require.ErrorAs(t, err, &unknownErr)
	assert.Equal(t, "oracle", unknownErr.Type)
	assert.Contains(t, unknownErr.Available, "duckdb")
	assert.Contains(t, err.Error(), "shipmerge.yaml")
}

func TestNewAdapter_EmptyType(t *testing.T) {
	_, err := NewAdapter(Config{}, nil)
	require.Error(t, err)
	assert.Equal(t, "adapter type not specified", err.Error())
}

func TestRegister(t *testing.T) {
	Register("test_adapter", func(*slog.Logger) Adapter { return nil })

	assert.True(t, IsRegistered("test_adapter"))
	factory, ok := Get("test_adapter")
	assert.True(t, ok)
	assert.NotNil(t, factory)
}
