package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/soyeahso/actionloop/internal/agent"
	"github.com/soyeahso/actionloop/internal/logging"
	"github.com/soyeahso/actionloop/internal/memory"
)

// PostgresRunStore implements RunStore on Postgres through a pgx pool.
type PostgresRunStore struct {
	pool *pgxpool.Pool
	log  *logging.Logger
}

// OpenPostgres connects to dsn and applies pending migrations.
func OpenPostgres(ctx context.Context, dsn string, log *logging.Logger) (*PostgresRunStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping Postgres: %w", err)
	}

	s := &PostgresRunStore{pool: pool, log: log.Sub("store.postgres")}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	s.log.Info().Msg("postgres run store ready")
	return s, nil
}

func (s *PostgresRunStore) migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	for _, m := range postgresMigrations {
		var applied bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, m.Version,
		).Scan(&applied); err != nil {
			return fmt.Errorf("checking migration %d: %w", m.Version, err)
		}
		if applied {
			continue
		}

		s.log.Info().Int("version", m.Version).Str("name", m.Name).Msg("applying migration")

		err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.SQL); err != nil {
				return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
			}
			if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.Version); err != nil {
				return fmt.Errorf("recording migration %d: %w", m.Version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresRunStore) BeginRun(ctx context.Context, run agent.RunInfo) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, task, model, state, started_at) VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.Task, run.Model, string(agent.StateRunning), run.StartedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

func (s *PostgresRunStore) RecordStep(ctx context.Context, runID string, rec memory.StepRecord) error {
	step := StepFromRecord(rec)
	calls, err := json.Marshal(step.Calls)
	if err != nil {
		return fmt.Errorf("encode calls: %w", err)
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO steps (run_id, idx, tool_choice, content, provider, model, calls, parse_error,
			                    terminal, input_tokens, output_tokens, started_at, finished_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9, $10, $11, $12, $13)`,
			runID, step.Index, step.ToolChoice, step.Content, step.Provider, step.Model, string(calls),
			step.ParseError, step.Terminal, step.InputTokens, step.OutputTokens,
			step.StartedAt, step.FinishedAt,
		)
		if err != nil {
			return fmt.Errorf("insert step %d of run %s: %w", step.Index, runID, err)
		}
		if _, err := tx.Exec(ctx, `UPDATE runs SET step_count = $1 WHERE id = $2`, step.Index, runID); err != nil {
			return fmt.Errorf("update run %s: %w", runID, err)
		}
		return nil
	})
}

func (s *PostgresRunStore) FinishRun(ctx context.Context, res *agent.RunResult) error {
	r := RunFromResult(res)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, task, model, state, answer, error, error_kind, step_count,
		                   input_tokens, output_tokens, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (id) DO UPDATE SET
		   model = EXCLUDED.model,
		   state = EXCLUDED.state,
		   answer = EXCLUDED.answer,
		   error = EXCLUDED.error,
		   error_kind = EXCLUDED.error_kind,
		   step_count = EXCLUDED.step_count,
		   input_tokens = EXCLUDED.input_tokens,
		   output_tokens = EXCLUDED.output_tokens,
		   finished_at = EXCLUDED.finished_at`,
		r.ID, r.Task, r.Model, r.State, r.Answer, r.Error, r.ErrorKind, r.StepCount,
		r.InputTokens, r.OutputTokens, r.StartedAt, r.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", r.ID, err)
	}
	return nil
}

const pgRunColumns = `id, task, model, state, answer, error, error_kind, step_count,
	input_tokens, output_tokens, started_at, finished_at`

func scanPgRun(row pgx.Row) (Run, error) {
	var r Run
	var finished *time.Time
	err := row.Scan(&r.ID, &r.Task, &r.Model, &r.State, &r.Answer, &r.Error, &r.ErrorKind,
		&r.StepCount, &r.InputTokens, &r.OutputTokens, &r.StartedAt, &finished)
	if err != nil {
		return Run{}, err
	}
	r.StartedAt = r.StartedAt.UTC()
	if finished != nil {
		r.FinishedAt = finished.UTC()
	}
	return r, nil
}

func (s *PostgresRunStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgRunColumns+` FROM runs ORDER BY started_at DESC, id LIMIT $1`, listLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *PostgresRunStore) GetRun(ctx context.Context, id string) (*Run, error) {
	r, err := scanPgRun(s.pool.QueryRow(ctx, `SELECT `+pgRunColumns+` FROM runs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT idx, tool_choice, content, provider, model, calls::text, parse_error, terminal,
		        input_tokens, output_tokens, started_at, finished_at
		 FROM steps WHERE run_id = $1 ORDER BY idx`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("load steps of %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var st Step
		var calls string
		if err := rows.Scan(&st.Index, &st.ToolChoice, &st.Content, &st.Provider, &st.Model, &calls,
			&st.ParseError, &st.Terminal, &st.InputTokens, &st.OutputTokens, &st.StartedAt, &st.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		if err := json.Unmarshal([]byte(calls), &st.Calls); err != nil {
			return nil, fmt.Errorf("decode calls of step %d: %w", st.Index, err)
		}
		st.StartedAt = st.StartedAt.UTC()
		st.FinishedAt = st.FinishedAt.UTC()
		r.Steps = append(r.Steps, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Close releases the pool.
func (s *PostgresRunStore) Close() error {
	s.pool.Close()
	return nil
}
