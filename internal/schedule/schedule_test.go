package schedule_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cellsentry/cellsentry/internal/schedule"
)

func TestParseCron(t *testing.T) {
	t.Parallel()

	cases := []struct {
		scenario string
		given    string
		valid    bool
	}{
		{"valid_5_fields", "*/15 * * * *", true},
		{"nightly", "0 3 * * *", true},
		{"macro_hourly", "@hourly", true},
		{"macro_every", "@every 5m", true},
		{"invalid_field_count", "* * * *", false},
		{"invalid_token", "70 * * * *", false},
		{"empty", "", false},
		{"whitespace", "   ", false},
	}

	for _, tc := range cases {
		t.Run(tc.scenario, func(t *testing.T) {
			t.Parallel()
			err := schedule.ParseCron(tc.given)
			if tc.valid {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	_, err := schedule.New("not a cron", func() {})
	require.Error(t, err)

	trigger, err := schedule.New("@hourly", func() {})
	require.NoError(t, err)
	require.NotNil(t, trigger)
}
