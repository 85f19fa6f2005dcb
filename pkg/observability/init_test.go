package observability_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/rollgate/pkg/observability"
)

func TestInit_NoExportersUsesNoopProviders(t *testing.T) {
	providers, err := observability.Init(observability.DefaultConfig())
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, providers.Shutdown(context.Background())) })

	assert.NotNil(t, providers.Tracer)
	assert.NotNil(t, providers.Meter)
	assert.NotNil(t, providers.Logger)
	assert.Nil(t, providers.MetricsHandler)

	// Spans and instruments must be safe to use against no-op providers.
	_, span := providers.Tracer.Start(context.Background(), "noop-span")
	span.End()
}

func TestInit_PrometheusServesMeterInstruments(t *testing.T) {
	cfg := observability.DefaultConfig()
	cfg.PrometheusEnabled = true

	providers, err := observability.Init(cfg)
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, providers.Shutdown(context.Background())) })

	require.NotNil(t, providers.MetricsHandler)

	// Instruments created on the shared meter must reach the scrape endpoint.
	cm, err := observability.NewControllerMetrics(providers.Meter)
	require.NoError(t, err)

	cm.RecordRun(context.Background(), observability.ModeCLI, "ok", 250*time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
	rec := httptest.NewRecorder()

	providers.MetricsHandler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "rollgate_runs_total")
}

func TestParseOTLPHeaders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want map[string]string
	}{
		{name: "empty", raw: "", want: nil},
		{name: "single pair", raw: "authorization=Bearer tok", want: map[string]string{"authorization": "Bearer tok"}},
		{
			name: "multiple pairs with spaces",
			raw:  " api-key = secret , tenant=blog ",
			want: map[string]string{"api-key": "secret", "tenant": "blog"},
		},
		{name: "missing separator", raw: "garbage", want: nil},
		{name: "partial garbage kept", raw: "a=b,garbage", want: map[string]string{"a": "b"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.want, observability.ParseOTLPHeaders(tc.raw))
		})
	}
}
