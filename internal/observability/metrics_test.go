package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(MetricsHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetricsExposed(t *testing.T) {
	RecordRunStarted()
	RecordTurn("coder", 120*time.Millisecond, true)
	RecordInvocationError("reviewer", "rate_limit")
	RecordSelection("selector", "cache")
	RecordSnapshot("save", 3*time.Millisecond, true)
	RecordProviderCall("mistral", time.Second, false)
	RecordProviderFailover("primary")
	RecordRunFinished("completed", "finished", 42*time.Second)

	body := scrape(t)

	for _, want := range []string{
		`triad_turn_total{role="coder",status="success"}`,
		`triad_invocation_errors_total{kind="rate_limit",role="reviewer"}`,
		`triad_selector_decisions_total{path="cache",selector="selector"}`,
		`triad_snapshot_total{op="save",status="success"}`,
		`triad_provider_call_total{provider="mistral",status="error"}`,
		`triad_provider_failover_total{profile="primary"}`,
		`triad_run_total{outcome="finished",status="completed"}`,
		"triad_run_duration_seconds_bucket",
		"triad_active_runs",
	} {
		assert.Contains(t, body, want)
	}
}

func TestEnsureRegisteredTwice(t *testing.T) {
	assert.NotPanics(t, func() {
		EnsureRegistered()
		EnsureRegistered()
	})
}
