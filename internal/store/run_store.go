package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/soyeahso/actionloop/internal/agent"
	"github.com/soyeahso/actionloop/internal/memory"
)

// timeLayout is fixed-width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(timeLayout, s)
	return t
}

// SQLiteRunStore implements RunStore on a SQLite database.
type SQLiteRunStore struct {
	db *DB
}

// NewSQLiteRunStore creates a run store using the given database.
func NewSQLiteRunStore(db *DB) *SQLiteRunStore {
	return &SQLiteRunStore{db: db}
}

// BeginRun inserts the run in the running state.
func (s *SQLiteRunStore) BeginRun(ctx context.Context, run agent.RunInfo) error {
	_, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO runs (id, task, model, state, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Task, run.Model, string(agent.StateRunning), formatTime(run.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

// RecordStep inserts one step and bumps the run's step count.
func (s *SQLiteRunStore) RecordStep(ctx context.Context, runID string, rec memory.StepRecord) error {
	step := StepFromRecord(rec)
	calls, err := json.Marshal(step.Calls)
	if err != nil {
		return fmt.Errorf("encode calls: %w", err)
	}

	tx, err := s.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO steps (run_id, idx, tool_choice, content, provider, model, calls, parse_error,
		                    terminal, input_tokens, output_tokens, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, step.Index, step.ToolChoice, step.Content, step.Provider, step.Model, string(calls),
		step.ParseError, step.Terminal, step.InputTokens, step.OutputTokens,
		formatTime(step.StartedAt), formatTime(step.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("insert step %d of run %s: %w", step.Index, runID, err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE runs SET step_count = ? WHERE id = ?`, step.Index, runID); err != nil {
		return fmt.Errorf("update run %s: %w", runID, err)
	}
	return tx.Commit()
}

// FinishRun stores the final state. The run row is created if BeginRun never
// reached the database.
func (s *SQLiteRunStore) FinishRun(ctx context.Context, res *agent.RunResult) error {
	r := RunFromResult(res)
	_, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO runs (id, task, model, state, answer, error, error_kind, step_count,
		                   input_tokens, output_tokens, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   model = excluded.model,
		   state = excluded.state,
		   answer = excluded.answer,
		   error = excluded.error,
		   error_kind = excluded.error_kind,
		   step_count = excluded.step_count,
		   input_tokens = excluded.input_tokens,
		   output_tokens = excluded.output_tokens,
		   finished_at = excluded.finished_at`,
		r.ID, r.Task, r.Model, r.State, r.Answer, r.Error, r.ErrorKind, r.StepCount,
		r.InputTokens, r.OutputTokens, formatTime(r.StartedAt), formatTime(r.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", r.ID, err)
	}
	return nil
}

const runColumns = `id, task, model, state, answer, error, error_kind, step_count,
	input_tokens, output_tokens, started_at, finished_at`

func scanRun(row interface{ Scan(...any) error }) (Run, error) {
	var r Run
	var started, finished string
	err := row.Scan(&r.ID, &r.Task, &r.Model, &r.State, &r.Answer, &r.Error, &r.ErrorKind,
		&r.StepCount, &r.InputTokens, &r.OutputTokens, &started, &finished)
	if err != nil {
		return Run{}, err
	}
	r.StartedAt = parseTime(started)
	r.FinishedAt = parseTime(finished)
	return r, nil
}

// ListRuns returns the most recent runs first, without their steps.
func (s *SQLiteRunStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id LIMIT ?`, listLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns one run with all of its steps.
func (s *SQLiteRunStore) GetRun(ctx context.Context, id string) (*Run, error) {
	r, err := scanRun(s.db.sql.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}

	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT idx, tool_choice, content, provider, model, calls, parse_error, terminal,
		        input_tokens, output_tokens, started_at, finished_at
		 FROM steps WHERE run_id = ? ORDER BY idx`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("load steps of %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var st Step
		var calls, started, finished string
		if err := rows.Scan(&st.Index, &st.ToolChoice, &st.Content, &st.Provider, &st.Model, &calls,
			&st.ParseError, &st.Terminal, &st.InputTokens, &st.OutputTokens, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		if err := json.Unmarshal([]byte(calls), &st.Calls); err != nil {
			return nil, fmt.Errorf("decode calls of step %d: %w", st.Index, err)
		}
		st.StartedAt = parseTime(started)
		st.FinishedAt = parseTime(finished)
		r.Steps = append(r.Steps, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Close closes the underlying database.
func (s *SQLiteRunStore) Close() error {
	return s.db.Close()
}
