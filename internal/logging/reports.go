package logging

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/danielpatrickdp/liveweb-controlplane/internal/gate"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/preset"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/resolution"
)

// #region log-switch-report
// LogSwitchReport upserts a report into switch_reports. A load writes the
// same id twice: once when it starts and again when it finishes.
func LogSwitchReport(db *sql.DB, rep preset.SwitchReport) error {
	created := rep.FinishedAt
	if created.IsZero() {
		created = rep.StartedAt
	}
	if created.IsZero() {
		created = rep.RequestedAt
	}
	if created.IsZero() {
		created = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO switch_reports (id, task_id, scope, origin, preset_id, anchor, outcome, reasons, class, error,
		                             cache_hit, fetch_ms, apply_ms, total_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   outcome = excluded.outcome, class = excluded.class, error = excluded.error,
		   fetch_ms = excluded.fetch_ms, apply_ms = excluded.apply_ms, total_ms = excluded.total_ms,
		   created_at = excluded.created_at`,
		rep.ID,
		nullIfEmpty(rep.TaskID),
		string(rep.Scope),
		string(rep.Origin),
		nullIfEmpty(rep.PresetID),
		boolInt(rep.Anchor),
		string(rep.Outcome),
		nullIfEmpty(joinReasons(rep.Reasons)),
		nullIfEmpty(string(rep.Class)),
		nullIfEmpty(rep.Error),
		boolInt(rep.CacheHit),
		rep.Fetch.Milliseconds(),
		rep.Apply.Milliseconds(),
		rep.Total.Milliseconds(),
		created.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log switch report: %w", err)
	}
	return nil
}
// #endregion log-switch-report

// #region list-switch-reports
// ListSwitchReports returns the most recent reports, newest first.
func ListSwitchReports(db *sql.DB, limit int) ([]preset.SwitchReport, error) {
	rows, err := db.Query(
		`SELECT id, task_id, scope, origin, preset_id, anchor, outcome, reasons, class, error,
		        cache_hit, fetch_ms, apply_ms, total_ms, created_at
		 FROM switch_reports ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list switch reports: %w", err)
	}
	defer rows.Close()

	var out []preset.SwitchReport
	for rows.Next() {
		var rep preset.SwitchReport
		var taskID, presetID, reasons, class, errText sql.NullString
		var scope, origin, outcome, created string
		var anchor, cacheHit int
		var fetchMs, applyMs, totalMs int64
		if err := rows.Scan(&rep.ID, &taskID, &scope, &origin, &presetID, &anchor, &outcome, &reasons,
			&class, &errText, &cacheHit, &fetchMs, &applyMs, &totalMs, &created); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		rep.TaskID = taskID.String
		rep.Scope = preset.Scope(scope)
		rep.Origin = preset.Origin(origin)
		rep.PresetID = presetID.String
		rep.Anchor = anchor != 0
		rep.Outcome = preset.Outcome(outcome)
		rep.Reasons = splitReasons(reasons.String)
		rep.Class = preset.FailureClass(class.String)
		rep.Error = errText.String
		rep.CacheHit = cacheHit != 0
		rep.Fetch = time.Duration(fetchMs) * time.Millisecond
		rep.Apply = time.Duration(applyMs) * time.Millisecond
		rep.Total = time.Duration(totalMs) * time.Millisecond
		rep.FinishedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, rep)
	}
	return out, rows.Err()
}
// #endregion list-switch-reports

// #region log-resolution
// LogResolutionCommit records a committed ladder move. Other actions are ignored.
func LogResolutionCommit(db *sql.DB, d resolution.Decision) error {
	if d.Action != resolution.ActionCommit {
		return nil
	}
	at := d.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := db.Exec(
		`INSERT INTO resolution_commits (direction, from_index, to_index, scale, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		string(d.Direction), d.From, d.To, d.Scale, at.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log resolution commit: %w", err)
	}
	return nil
}
// #endregion log-resolution

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func joinReasons(rs []gate.Reason) string {
	parts := make([]string, len(rs))
	for i, r := range rs {
		parts[i] = string(r)
	}
	return strings.Join(parts, ",")
}

func splitReasons(s string) []gate.Reason {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]gate.Reason, len(parts))
	for i, p := range parts {
		out[i] = gate.Reason(p)
	}
	return out
}
// #endregion helpers
