package steperrors

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

//go:noinline
func captureNested(skip int) string {
	return captureInner(skip)
}

//go:noinline
func captureInner(skip int) string {
	return stack(skip)
}

func Test_stack_StartsAtCaller(t *testing.T) {
	s := captureNested(0)

	inner := strings.Index(s, "captureInner")
	nested := strings.Index(s, "captureNested")
	require.GreaterOrEqual(t, inner, 0)
	require.Greater(t, nested, inner)
	require.NotContains(t, s, "stack.go")
}

func Test_stack_Skip(t *testing.T) {
	s := captureNested(1)

	require.NotContains(t, s, "captureInner")
	require.Contains(t, s, "captureNested")
}
