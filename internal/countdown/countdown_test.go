package countdown_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memeindex/memeindex/internal/countdown"
)

func TestTick(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   countdown.Remaining
		want countdown.Remaining
	}{
		{name: "seconds", in: countdown.Remaining{Seconds: 5}, want: countdown.Remaining{Seconds: 4}},
		{name: "borrow minute", in: countdown.Remaining{Minutes: 1}, want: countdown.Remaining{Seconds: 59}},
		{name: "borrow hour", in: countdown.Remaining{Hours: 2}, want: countdown.Remaining{Hours: 1, Minutes: 59, Seconds: 59}},
		{name: "borrow day", in: countdown.Remaining{Days: 1}, want: countdown.Remaining{Hours: 23, Minutes: 59, Seconds: 59}},
		{name: "zero stays zero", in: countdown.Remaining{}, want: countdown.Remaining{}},
		{name: "default", in: countdown.Default(), want: countdown.Remaining{Days: 23, Hours: 12, Minutes: 23, Seconds: 22}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, tc.in.Tick())
		})
	}
}

func TestTickMatchesDuration(t *testing.T) {
	t.Parallel()

	r := countdown.Remaining{Days: 1, Hours: 0, Minutes: 0, Seconds: 3}
	for i := 0; i < 10; i++ {
		next := r.Tick()
		assert.Equal(t, r.Duration()-time.Second, next.Duration())
		r = next
	}
}

func TestUntil(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := now.Add(2*24*time.Hour + 3*time.Hour + 4*time.Minute + 5*time.Second + 900*time.Millisecond)

	r := countdown.Until(now, end)
	assert.Equal(t, countdown.Remaining{Days: 2, Hours: 3, Minutes: 4, Seconds: 5}, r)
	assert.True(t, countdown.Until(end, now).IsZero())
}

func TestString(t *testing.T) {
	t.Parallel()

	r := countdown.Remaining{Days: 3, Hours: 4, Minutes: 5, Seconds: 6}
	assert.Equal(t, "03:04:05:06", r.String())
	assert.Equal(t, "03 Days 04 Hours 05 Min 06 Sec", r.Labeled())
	assert.Equal(t, "23:12:23:23", countdown.Default().String())
}

func TestRun(t *testing.T) {
	t.Parallel()

	t.Run("stops at zero", func(t *testing.T) {
		t.Parallel()
		var seen []countdown.Remaining
		err := countdown.Run(context.Background(), countdown.Remaining{Seconds: 3}, time.Millisecond, func(r countdown.Remaining) {
			seen = append(seen, r)
		})
		require.NoError(t, err)
		require.Len(t, seen, 4)
		assert.True(t, seen[3].IsZero())
	})

	t.Run("zero start returns at once", func(t *testing.T) {
		t.Parallel()
		calls := 0
		err := countdown.Run(context.Background(), countdown.Remaining{}, time.Hour, func(countdown.Remaining) { calls++ })
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("cancelled", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := countdown.Run(ctx, countdown.Default(), time.Hour, func(countdown.Remaining) {})
		require.ErrorIs(t, err, context.Canceled)
	})
}
