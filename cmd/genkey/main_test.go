package main

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewKey(t *testing.T) {
	t.Parallel()

	k1, err := newKey(16)
	require.NoError(t, err)
	require.Regexp(t, regexp.MustCompile(`^[0-9a-f]{32}$`), k1)

	k2, err := newKey(16)
	require.NoError(t, err)
	require.NotEqual(t, k1, k2)

	_, err = newKey(0)
	require.Error(t, err)
}
