package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContext_EnterLeave(t *testing.T) {
	c := NewContext()

	require.NoError(t, c.enter("A"))
	require.NoError(t, c.enter("B"))
	require.Equal(t, []string{"A", "B"}, c.Chain())
	require.ElementsMatch(t, []string{"A", "B"}, c.InFlight())

	c.leave("B")
	require.Equal(t, []string{"A"}, c.Chain())
	require.ElementsMatch(t, []string{"A"}, c.InFlight())

	c.leave("A")
	require.Empty(t, c.Chain())
	require.Empty(t, c.InFlight())
}

func TestContext_CycleDetected(t *testing.T) {
	c := NewContext()
	require.NoError(t, c.enter("A"))
	require.NoError(t, c.enter("B"))

	err := c.enter("A")
	require.Equal(t, KindCycle, KindOf(err))
	require.ErrorContains(t, err, "A → B → A")

	var pe *Error
	require.ErrorAs(t, err, &pe)
	require.Equal(t, []string{"A", "B", "A"}, pe.Chain)
}

func TestContext_DepthExceeded(t *testing.T) {
	c := NewContext(WithMaxDepth(2))
	require.NoError(t, c.enter("A"))
	require.NoError(t, c.enter("B"))

	err := c.enter("C")
	require.Equal(t, KindDepthExceeded, KindOf(err))
	require.ErrorContains(t, err, "A → B → C")

	// Failed enter must not register anything.
	require.Equal(t, []string{"A", "B"}, c.Chain())
	require.ElementsMatch(t, []string{"A", "B"}, c.InFlight())
}

func TestContext_AlreadyInFlight(t *testing.T) {
	c := NewContext()
	require.NoError(t, c.enter("A"))

	// Simulate the same name arriving from a sibling branch: the name is
	// in flight but no longer on this branch's stack.
	c.stack = c.stack[:0]

	err := c.enter("A")
	require.Equal(t, KindAlreadyInFlight, KindOf(err))
}

func TestContext_CycleCheckedBeforeDepth(t *testing.T) {
	c := NewContext(WithMaxDepth(1))
	require.NoError(t, c.enter("A"))

	// "A" again violates both cycle and depth; cycle must win.
	require.Equal(t, KindCycle, KindOf(c.enter("A")))
}

func TestContext_DefaultMaxDepth(t *testing.T) {
	c := NewContext(WithMaxDepth(0))
	require.Equal(t, defaultMaxDepth, c.maxDepth)
}
