package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of SQLite schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create runs and steps",
		SQL: `
			CREATE TABLE runs (
				id             TEXT PRIMARY KEY,
				task           TEXT NOT NULL,
				model          TEXT NOT NULL DEFAULT '',
				state          TEXT NOT NULL,
				answer         TEXT NOT NULL DEFAULT '',
				error          TEXT NOT NULL DEFAULT '',
				error_kind     TEXT NOT NULL DEFAULT '',
				step_count     INTEGER NOT NULL DEFAULT 0,
				input_tokens   INTEGER NOT NULL DEFAULT 0,
				output_tokens  INTEGER NOT NULL DEFAULT 0,
				started_at     TEXT NOT NULL,
				finished_at    TEXT NOT NULL DEFAULT ''
			);

			CREATE INDEX idx_runs_started ON runs (started_at);

			CREATE TABLE steps (
				run_id         TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
				idx            INTEGER NOT NULL,
				tool_choice    TEXT NOT NULL,
				content        TEXT NOT NULL DEFAULT '',
				provider       TEXT NOT NULL DEFAULT '',
				model          TEXT NOT NULL DEFAULT '',
				calls          TEXT NOT NULL DEFAULT '[]',
				parse_error    TEXT NOT NULL DEFAULT '',
				terminal       INTEGER NOT NULL DEFAULT 0,
				input_tokens   INTEGER NOT NULL DEFAULT 0,
				output_tokens  INTEGER NOT NULL DEFAULT 0,
				started_at     TEXT NOT NULL,
				finished_at    TEXT NOT NULL,
				PRIMARY KEY (run_id, idx)
			);
		`,
	},
	{
		Version: 2,
		Name:    "index runs by state",
		SQL: `
			CREATE INDEX idx_runs_state ON runs (state, started_at);
		`,
	},
}

// postgresMigrations mirrors migrations for Postgres.
var postgresMigrations = []migration{
	{
		Version: 1,
		Name:    "create runs and steps",
		SQL: `
			CREATE TABLE IF NOT EXISTS runs (
				id             TEXT PRIMARY KEY,
				task           TEXT NOT NULL,
				model          TEXT NOT NULL DEFAULT '',
				state          TEXT NOT NULL,
				answer         TEXT NOT NULL DEFAULT '',
				error          TEXT NOT NULL DEFAULT '',
				error_kind     TEXT NOT NULL DEFAULT '',
				step_count     INTEGER NOT NULL DEFAULT 0,
				input_tokens   INTEGER NOT NULL DEFAULT 0,
				output_tokens  INTEGER NOT NULL DEFAULT 0,
				started_at     TIMESTAMPTZ NOT NULL,
				finished_at    TIMESTAMPTZ
			);

			CREATE INDEX IF NOT EXISTS idx_runs_started ON runs (started_at);

			CREATE TABLE IF NOT EXISTS steps (
				run_id         TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
				idx            INTEGER NOT NULL,
				tool_choice    TEXT NOT NULL,
				content        TEXT NOT NULL DEFAULT '',
				provider       TEXT NOT NULL DEFAULT '',
				model          TEXT NOT NULL DEFAULT '',
				calls          JSONB NOT NULL DEFAULT '[]'::jsonb,
				parse_error    TEXT NOT NULL DEFAULT '',
				terminal       BOOLEAN NOT NULL DEFAULT FALSE,
				input_tokens   INTEGER NOT NULL DEFAULT 0,
				output_tokens  INTEGER NOT NULL DEFAULT 0,
				started_at     TIMESTAMPTZ NOT NULL,
				finished_at    TIMESTAMPTZ NOT NULL,
				PRIMARY KEY (run_id, idx)
			);
		`,
	},
	{
		Version: 2,
		Name:    "index runs by state",
		SQL: `
			CREATE INDEX IF NOT EXISTS idx_runs_state ON runs (state, started_at);
		`,
	},
}
