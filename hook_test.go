package sharedstream

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOnSubscription_RunsBeforeAnyValueAndComposesOutsideIn(t *testing.T) {
	var order []string
	base := CollectorFunc[int](func(v int) error {
		order = append(order, "base")
		return nil
	})

	inner := OnSubscription[int](base, func(sink Collector[int]) error {
		order = append(order, "inner")
		return nil
	})
	outer := OnSubscription[int](inner, func(sink Collector[int]) error {
		order = append(order, "outer")
		return nil
	})

	require.NoError(t, runSubscriptionHooks[int](outer))
	require.Equal(t, []string{"outer", "inner"}, order)

	require.NoError(t, outer.Collect(1))
	require.Equal(t, []string{"outer", "inner", "base"}, order)
}

func TestOnSubscription_PropagatesHookError(t *testing.T) {
	sentinel := errors.New("hook failed")
	base := CollectorFunc[int](func(v int) error { return nil })
	wrapped := OnSubscription[int](base, func(sink Collector[int]) error { return sentinel })

	err := runSubscriptionHooks[int](wrapped)
	require.ErrorIs(t, err, sentinel)
}
