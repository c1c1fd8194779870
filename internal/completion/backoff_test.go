package completion

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestComputeBackoff(t *testing.T) {
	now := time.Date(2025, time.October, 27, 12, 0, 0, 0, time.UTC)
	base := 500 * time.Millisecond

	cases := []struct {
		name       string
		retryAfter string
		attempt    int
		want       time.Duration
	}{
		{name: "exponential first", attempt: 1, want: 500 * time.Millisecond},
		{name: "exponential third", attempt: 3, want: 2 * time.Second},
		{name: "integer seconds", retryAfter: "2", attempt: 1, want: 2 * time.Second},
		{name: "integer seconds padded", retryAfter: " 7 ", attempt: 4, want: 7 * time.Second},
		{name: "zero seconds", retryAfter: "0", attempt: 2, want: 0},
		{name: "negative falls back", retryAfter: "-3", attempt: 2, want: time.Second},
		{name: "http date", retryAfter: now.Add(3 * time.Second).Format(http.TimeFormat), attempt: 1, want: 3 * time.Second},
		{name: "past http date floors at base", retryAfter: now.Add(-time.Minute).Format(http.TimeFormat), attempt: 3, want: base},
		{name: "garbage falls back", retryAfter: "soon", attempt: 2, want: time.Second},
		{name: "huge seconds capped", retryAfter: "9999999999", attempt: 1, want: maxDelay},
		{name: "int64 max seconds capped", retryAfter: "9223372036854775807", attempt: 1, want: maxDelay},
		{name: "far http date capped", retryAfter: now.AddDate(50, 0, 0).Format(http.TimeFormat), attempt: 1, want: maxDelay},
		{name: "large attempt capped", attempt: 64, want: maxDelay},
		{name: "attempt past shift width capped", attempt: 1000, want: maxDelay},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, computeBackoff(tc.retryAfter, base, tc.attempt, now))
		})
	}
}

func TestComputeBackoffIsMonotonic(t *testing.T) {
	now := time.Now()
	prev := time.Duration(0)
	for attempt := 1; attempt <= 80; attempt++ {
		delay := computeBackoff("", 250*time.Millisecond, attempt, now)
		require.GreaterOrEqual(t, delay, prev)
		require.Positive(t, delay)
		require.LessOrEqual(t, delay, maxDelay)
		prev = delay
	}
}

func TestUniformJitterBounds(t *testing.T) {
	require.Zero(t, uniformJitter(0))
	for i := 0; i < 500; i++ {
		j := uniformJitter(20 * time.Millisecond)
		require.GreaterOrEqual(t, j, time.Duration(0))
		require.LessOrEqual(t, j, 20*time.Millisecond)
	}
}

func TestSleepContextReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
	require.NoError(t, sleepContext(context.Background(), time.Millisecond))
}
