package countries

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestName(t *testing.T) {
	for _, tc := range []struct{ in, want string }{
		{"US", "United States"},
		{" us ", "United States"},
		{"GB", "United Kingdom"},
		{"ZZ", "ZZ"},
		{"  ZZ ", "ZZ"},
		{"Narnia", "Narnia"},
		{"", ""},
		{"United States", "United States"},
	} {
		require.Equal(t, tc.want, Name(tc.in), "input %q", tc.in)
	}
}

func TestKnown(t *testing.T) {
	require.True(t, Known("de"))
	require.False(t, Known("ZZ"))
}
