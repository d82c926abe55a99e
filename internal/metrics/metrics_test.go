package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGate(t *testing.T) {
	SetGate("audio_valid", true)
	assert.Equal(t, 1.0, testutil.ToFloat64(gateState.WithLabelValues("audio_valid")))
	SetGate("audio_valid", false)
	assert.Equal(t, 0.0, testutil.ToFloat64(gateState.WithLabelValues("audio_valid")))
}

func TestSetSectionIsExclusive(t *testing.T) {
	all := []string{"calm", "groove", "peak"}
	SetSection("peak", all)
	assert.Equal(t, 1.0, testutil.ToFloat64(sectionState.WithLabelValues("peak")))
	assert.Equal(t, 0.0, testutil.ToFloat64(sectionState.WithLabelValues("calm")))
}

func TestRecordSwitchCountsReasons(t *testing.T) {
	before := testutil.ToFloat64(switchDenialsTotal.WithLabelValues("phase_window"))
	hits := testutil.ToFloat64(prefetchCacheHitsTotal)

	RecordSwitch("foreground", "auto", "denied", []string{"phase_window"}, false, 0)
	RecordSwitch("foreground", "auto", "committed", nil, true, 200*time.Millisecond)

	assert.Equal(t, before+1, testutil.ToFloat64(switchDenialsTotal.WithLabelValues("phase_window")))
	assert.Equal(t, hits+1, testutil.ToFloat64(prefetchCacheHitsTotal))
}

func TestHandlerServesMetrics(t *testing.T) {
	SetResolution(0.85)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "liveweb_resolution_scale 0.85"))
}
