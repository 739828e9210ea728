package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestIsMoney(t *testing.T) {
	tests := []struct {
		value string
		valid bool
	}{
		{"1", true},
		{"0.01", true},
		{"2000.50", true},
		{"2000.500", true},
		{"9999999999.99", true},
		{"0", false},
		{"-1", false},
		{"0.001", false},
		{"6000.005", false},
		{"10000000000", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			require.Equal(t, tt.valid, IsMoney(decimal.RequireFromString(tt.value)))
		})
	}
}
