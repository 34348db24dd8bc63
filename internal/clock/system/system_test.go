package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClockNowUTC(t *testing.T) {
	t.Parallel()

	clk := New()
	before := time.Now().UTC().Add(-time.Second)
	got := clk.Now()
	after := time.Now().UTC().Add(time.Second)

	require.Equal(t, time.UTC, got.Location())
	require.True(t, got.After(before) && got.Before(after))
	require.Zero(t, got.Nanosecond()%int(time.Millisecond))
}

func TestClockZeroPrecisionKeepsNanos(t *testing.T) {
	t.Parallel()

	var clk *Clock
	first := clk.Now()
	second := (&Clock{}).Now()
	require.False(t, second.Before(first))
}
