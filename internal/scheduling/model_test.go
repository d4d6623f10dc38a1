package scheduling

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeStatus(t *testing.T) {
	cases := map[string]Status{
		"Scheduled":   StatusScheduled,
		"scheduled":   StatusScheduled,
		"CONFIRMED":   StatusConfirmed,
		"CheckIn":     StatusCheckIn,
		"check in":    StatusCheckIn,
		"check-in":    StatusCheckIn,
		"checkedIn":   StatusCheckIn,
		"Completed":   StatusCompleted,
		"Cancelled":   StatusCancelled,
		"canceled":    StatusCancelled,
		" cancelled ": StatusCancelled,
	}

	for raw, want := range cases {
		got, ok := NormalizeStatus(raw)
		require.True(t, ok, "input %q", raw)
		require.Equal(t, want, got, "input %q", raw)
	}

	for _, raw := range []string{"", "done", "no-show", "scheduledd"} {
		_, ok := NormalizeStatus(raw)
		require.False(t, ok, "input %q", raw)
	}
}
