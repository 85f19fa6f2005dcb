package report_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/rollgate/internal/report"
)

func TestParseWindow(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw     string
		hours   int
		wantErr bool
	}{
		{raw: "24h", hours: 24},
		{raw: "72h", hours: 72},
		{raw: "7d", hours: 168},
		{raw: "36", hours: 36},
		{raw: " 24H ", hours: 24},
		{raw: "1d", hours: 24},
		{raw: "", wantErr: true},
		{raw: "abc", wantErr: true},
		{raw: "h", wantErr: true},
		{raw: "0h", wantErr: true},
		{raw: "-3d", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			t.Parallel()

			w, parseErr := report.ParseWindow(tc.raw)
			if tc.wantErr {
				require.ErrorIs(t, parseErr, report.ErrInvalidWindow)

				return
			}

			require.NoError(t, parseErr)
			assert.Equal(t, tc.hours, w.Hours)
		})
	}
}

func TestWindow_String_NormalizesToHours(t *testing.T) {
	t.Parallel()

	w, parseErr := report.ParseWindow("7d")
	require.NoError(t, parseErr)

	assert.Equal(t, "168h", w.String())
	assert.Equal(t, 168*time.Hour, w.Duration())
}
