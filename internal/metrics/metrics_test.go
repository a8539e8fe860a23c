package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oszuidwest/zwfm-silencewatch/internal/silence"
	"github.com/oszuidwest/zwfm-silencewatch/internal/types"
)

func newTestMetrics(t *testing.T) *SilenceMetrics {
	t.Helper()
	m, err := NewSilenceMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	return m
}

func TestSilenceDetectedCountsByCategory(t *testing.T) {
	m := newTestMetrics(t)

	m.SilenceDetected(silence.Silence{Category: silence.CategoryUnnatural, DurationMs: 12000})
	m.SilenceDetected(silence.Silence{Category: silence.CategoryNatural, DurationMs: 4000})
	m.SilenceDetected(silence.Silence{Category: silence.CategoryUnnatural, DurationMs: 8000})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.silencesTotal.WithLabelValues("unnatural")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.silencesTotal.WithLabelValues("natural")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.silenceDuration))
}

func TestSilenceAlertCountsBySeverity(t *testing.T) {
	m := newTestMetrics(t)

	m.SilenceAlert(silence.Alert{Severity: silence.SeverityHigh})
	m.SilenceAlert(silence.Alert{Severity: silence.SeverityMedium})
	m.SilenceAlert(silence.Alert{Severity: silence.SeverityHigh})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.alertsTotal.WithLabelValues("high")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.alertsTotal.WithLabelValues("medium")))
}

func TestLevelAndStateGauges(t *testing.T) {
	m := newTestMetrics(t)

	m.MonitorStateChanged(types.StateRunning)
	m.LevelUpdated(silence.Update{LevelDB: -62.5, Silent: true, State: silence.OpenRun})
	assert.Equal(t, -62.5, testutil.ToFloat64(m.levelDB))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runOpen))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.monitorRunning))

	m.LevelUpdated(silence.Update{LevelDB: -12, State: silence.NoRun})
	assert.Equal(t, 0.0, testutil.ToFloat64(m.runOpen))

	m.LevelUpdated(silence.Update{LevelDB: -70, Silent: true, State: silence.OpenRun})
	m.MonitorStateChanged(types.StateStopped)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.runOpen))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.monitorRunning))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := newTestMetrics(t)
	m.SilenceAlert(silence.Alert{Severity: silence.SeverityMedium})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `silencewatch_alerts_total{severity="medium"} 1`)
	assert.Contains(t, string(body), "silencewatch_level_db")
}

func TestDuplicateRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewSilenceMetrics(reg)
	require.NoError(t, err)
	_, err = NewSilenceMetrics(reg)
	assert.Error(t, err)
}
