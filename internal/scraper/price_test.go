package scraper

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"890", 890, true},
		{"R$ 3.899", 3899, true},
		{"R$ 1.234,56", 1234.56, true},
		{"$1,234.56", 1234.56, true},
		{"$1,399", 1399, true},
		{"12.34", 12.34, true},
		{"899.99", 899.99, true},
		{"1.234.567", 1234567, true},
		{"3899.5", 3899.5, true},
		{"  899,90  ", 899.9, true},
		{"", 0, false},
		{"no digits here", 0, false},
		{"0", 0, false},
		{"999999999999", 0, false}, // absurdly large
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := parsePrice(tt.in)
			require.Equal(t, tt.ok, ok)
			if tt.ok {
				require.InDelta(t, tt.want, got, 0.001)
			}
		})
	}
}

func TestPlausibleRejectsNonPrices(t *testing.T) {
	require.False(t, plausible(0))
	require.False(t, plausible(-10))
	require.False(t, plausible(maxPlausiblePrice))
	require.True(t, plausible(0.01))
	require.True(t, plausible(maxPlausiblePrice-1))
}
