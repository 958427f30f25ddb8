package sharedstream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIntSignal_WatchWakesOnChange(t *testing.T) {
	s := newIntSignal(0)
	val, changed := s.Watch()
	require.Equal(t, 0, val)

	go s.set(1)

	select {
	case <-changed:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for change")
	}
	require.Equal(t, 1, s.Value())
}

func TestIntSignal_SameValueDoesNotWake(t *testing.T) {
	s := newIntSignal(5)
	_, changed := s.Watch()
	s.set(5)

	select {
	case <-changed:
		t.Fatal("unexpected wake for a no-op set")
	case <-time.After(20 * time.Millisecond):
	}
}
