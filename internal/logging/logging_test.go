package logging

import (
	"bytes"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danielpatrickdp/liveweb-controlplane/internal/gate"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/preset"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/resolution"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// #region helpers
func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	s, err := state.NewStore(filepath.Join(t.TempDir(), "log.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s.DB()
}

// #endregion helpers

// #region logger-tests
func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("warn", false, &buf)
	require.NoError(t, err)

	logger.Info().Msg("quiet")
	logger.Warn().Msg("loud")
	assert.NotContains(t, buf.String(), "quiet")
	assert.Contains(t, buf.String(), "loud")
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New("shouting", false, nil)
	assert.Error(t, err)
}

func TestComponentTag(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := New("debug", false, &buf)
	tagged := Component(logger, "gate")
	tagged.Info().Msg("flip")
	assert.Contains(t, buf.String(), `"component":"gate"`)
}

// #endregion logger-tests

// #region switch-report-tests
func TestLogSwitchReportUpsertsByID(t *testing.T) {
	db := setupDB(t)
	rep := preset.SwitchReport{
		ID:        "r1",
		TaskID:    "t1",
		Scope:     preset.Foreground,
		Origin:    preset.Manual,
		PresetID:  "a",
		Outcome:   preset.OutcomeStarted,
		StartedAt: t0,
	}
	require.NoError(t, LogSwitchReport(db, rep))

	rep.Outcome = preset.OutcomeCommitted
	rep.FinishedAt = t0.Add(time.Second)
	rep.Total = time.Second
	rep.Fetch = 300 * time.Millisecond
	require.NoError(t, LogSwitchReport(db, rep))

	got, err := ListSwitchReports(db, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, preset.OutcomeCommitted, got[0].Outcome)
	assert.Equal(t, time.Second, got[0].Total)
	assert.Equal(t, 300*time.Millisecond, got[0].Fetch)
	assert.Equal(t, t0.Add(time.Second), got[0].FinishedAt)
}

func TestLogSwitchReportKeepsReasons(t *testing.T) {
	db := setupDB(t)
	require.NoError(t, LogSwitchReport(db, preset.SwitchReport{
		ID:          "r2",
		Scope:       preset.Background,
		Origin:      preset.Auto,
		Outcome:     preset.OutcomeDenied,
		Reasons:     []gate.Reason{gate.ReasonBackoff, gate.ReasonPhaseWindow},
		RequestedAt: t0,
	}))
	got, err := ListSwitchReports(db, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []gate.Reason{gate.ReasonBackoff, gate.ReasonPhaseWindow}, got[0].Reasons)
	assert.Equal(t, "", got[0].PresetID)
}

func TestListSwitchReportsNewestFirst(t *testing.T) {
	db := setupDB(t)
	for i, id := range []string{"old", "mid", "new"} {
		LogSwitchReport(db, preset.SwitchReport{
			ID: id, Scope: preset.Foreground, Origin: preset.Auto, Outcome: preset.OutcomeCommitted,
			FinishedAt: t0.Add(time.Duration(i) * time.Second),
		})
	}
	got, err := ListSwitchReports(db, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "new", got[0].ID)
	assert.Equal(t, "mid", got[1].ID)
}

func TestLogSwitchReportClosedDB(t *testing.T) {
	db := setupDB(t)
	db.Close()
	err := LogSwitchReport(db, preset.SwitchReport{ID: "x", Outcome: preset.OutcomeStarted})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "log switch report"))
}

// #endregion switch-report-tests

// #region resolution-tests
func TestLogResolutionCommitOnlyCommits(t *testing.T) {
	db := setupDB(t)
	require.NoError(t, LogResolutionCommit(db, resolution.Decision{Action: resolution.ActionProbe}))
	require.NoError(t, LogResolutionCommit(db, resolution.Decision{
		Action: resolution.ActionCommit, Direction: resolution.Down, From: 0, To: 1, Scale: 0.85, At: t0,
	}))

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM resolution_commits`).Scan(&n))
	assert.Equal(t, 1, n)
}

// #endregion resolution-tests
