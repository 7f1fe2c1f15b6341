package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mlpilot/mlpilot/internal/run"
	"github.com/mlpilot/mlpilot/internal/verify"
)

// CreateRun registers a run at request acceptance. Idempotent on run ID.
func (s *SQLiteStore) CreateRun(ctx context.Context, runID, description, taskType, datasetURI string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, description, task_type, dataset_uri)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, runID, description, taskType, datasetURI)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// AppendTransition appends one phase-transition event to the run's log.
// The log is append-only: an existing (run_id, seq) pair is an error.
func (s *SQLiteStore) AppendTransition(ctx context.Context, ev run.TransitionEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_events (run_id, seq, phase, outcome, diagnostics, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ev.RunID, ev.Seq, string(ev.Phase), ev.Outcome, ev.Diagnostics, ev.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("failed to append transition: %w", err)
	}
	return nil
}

// Transitions returns the run's full event log in sequence order.
func (s *SQLiteStore) Transitions(ctx context.Context, runID string) ([]run.TransitionEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, phase, outcome, diagnostics, timestamp
		FROM run_events
		WHERE run_id = ?
		ORDER BY seq
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transitions: %w", err)
	}
	defer rows.Close()

	var transitions []run.TransitionEvent
	for rows.Next() {
		var ev run.TransitionEvent
		var phase string
		if err := rows.Scan(&ev.RunID, &ev.Seq, &phase, &ev.Outcome, &ev.Diagnostics, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		ev.Phase = run.Phase(phase)
		transitions = append(transitions, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transitions: %w", err)
	}

	return transitions, nil
}

// LastPhase derives the run's latest phase from the event log.
func (s *SQLiteStore) LastPhase(ctx context.Context, runID string) (run.Phase, error) {
	var phase string
	err := s.db.QueryRowContext(ctx, `
		SELECT phase
		FROM run_events
		WHERE run_id = ?
		ORDER BY seq DESC
		LIMIT 1
	`, runID).Scan(&phase)

	if err == sql.ErrNoRows {
		return "", fmt.Errorf("no events recorded for run: %s", runID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to query last phase: %w", err)
	}

	return run.Phase(phase), nil
}

// outcomePayload is the JSON form of an outcome's variant fields.
type outcomePayload struct {
	Summary   *verify.SolutionSummary `json:"summary,omitempty"`
	Rejection *run.Rejection          `json:"rejection,omitempty"`
}

// SaveOutcome stores the terminal record for a run. Saving is idempotent:
// re-saving the same run keeps the first record, so repeated outcome queries
// always return the identical record.
func (s *SQLiteStore) SaveOutcome(ctx context.Context, outcome Outcome) error {
	payload, err := json.Marshal(outcomePayload{
		Summary:   outcome.Summary,
		Rejection: outcome.Rejection,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal outcome: %w", err)
	}

	recordedAt := outcome.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO outcomes (run_id, kind, payload, recorded_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id) DO NOTHING
	`, outcome.RunID, outcome.Kind, string(payload), recordedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save outcome: %w", err)
	}
	return nil
}

// Outcome retrieves the terminal record for a run, or nil if the run is
// still in flight.
func (s *SQLiteStore) Outcome(ctx context.Context, runID string) (*Outcome, error) {
	var kind, payload string
	var recordedAt time.Time

	err := s.db.QueryRowContext(ctx, `
		SELECT kind, payload, recorded_at
		FROM outcomes
		WHERE run_id = ?
	`, runID).Scan(&kind, &payload, &recordedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query outcome: %w", err)
	}

	var decoded outcomePayload
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		return nil, fmt.Errorf("failed to unmarshal outcome: %w", err)
	}

	return &Outcome{
		RunID:      runID,
		Kind:       kind,
		Summary:    decoded.Summary,
		Rejection:  decoded.Rejection,
		RecordedAt: recordedAt,
	}, nil
}
