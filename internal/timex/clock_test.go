package timex

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFake_SleepAdvancesTime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)

	require.NoError(t, Sleep(context.Background(), f, 500*time.Millisecond))
	require.NoError(t, Sleep(context.Background(), f, time.Second))
	f.Advance(time.Minute)

	assert.Equal(t, start.Add(time.Minute+1500*time.Millisecond), f.Now())
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, f.Sleeps())
}

func TestSleep_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Sleep(ctx, Real(), time.Hour)
	assert.ErrorIs(t, err, context.Canceled)

	err = Sleep(ctx, Real(), 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSleep_ZeroDurationReturnsImmediately(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	require.NoError(t, Sleep(context.Background(), f, 0))
	assert.Empty(t, f.Sleeps())
}
