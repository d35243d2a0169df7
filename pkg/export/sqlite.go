package export

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Sternrassler/gh-harvester/pkg/logging"
	"github.com/Sternrassler/gh-harvester/pkg/model"
	"github.com/rs/zerolog"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	started_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
	run_id       TEXT NOT NULL REFERENCES runs(id),
	login        TEXT NOT NULL,
	name         TEXT NOT NULL DEFAULT '',
	company      TEXT NOT NULL DEFAULT '',
	location     TEXT NOT NULL DEFAULT '',
	email        TEXT NOT NULL DEFAULT '',
	hireable     BOOLEAN NOT NULL DEFAULT 0,
	bio          TEXT NOT NULL DEFAULT '',
	public_repos INTEGER NOT NULL DEFAULT 0,
	followers    INTEGER NOT NULL DEFAULT 0,
	following    INTEGER NOT NULL DEFAULT 0,
	created_at   TEXT NOT NULL DEFAULT '',
	position     INTEGER NOT NULL,
	PRIMARY KEY (run_id, login)
);

CREATE TABLE IF NOT EXISTS repositories (
	run_id           TEXT NOT NULL REFERENCES runs(id),
	login            TEXT NOT NULL,
	full_name        TEXT NOT NULL,
	created_at       TEXT NOT NULL DEFAULT '',
	stargazers_count INTEGER NOT NULL DEFAULT 0,
	watchers_count   INTEGER NOT NULL DEFAULT 0,
	language         TEXT NOT NULL DEFAULT '',
	has_projects     BOOLEAN NOT NULL DEFAULT 0,
	has_wiki         BOOLEAN NOT NULL DEFAULT 0,
	license_name     TEXT NOT NULL DEFAULT '',
	position         INTEGER NOT NULL,
	PRIMARY KEY (run_id, full_name),
	FOREIGN KEY (run_id, login) REFERENCES users(run_id, login)
);

CREATE INDEX IF NOT EXISTS idx_repositories_login ON repositories(run_id, login);
`

// SQLiteSink stores the records of one run in a SQLite database. Rows of
// every run are kept and tagged with the run ID.
//
// Users are keyed by (run, login) and repositories by (run, full_name), so a
// record listed twice in one run is stored once, at its first position. The
// CSV sink keeps such duplicates. Repositories must belong to a user already
// written in the same run.
type SQLiteSink struct {
	conn   *sql.DB
	runID  string
	logger zerolog.Logger
}

// NewSQLiteSink opens (or creates) the database at path and registers runID.
// Use ":memory:" for a throwaway database.
func NewSQLiteSink(ctx context.Context, path, runID string) (*SQLiteSink, error) {
	if runID == "" {
		return nil, fmt.Errorf("sqlite: run id is required")
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	// A single connection keeps ":memory:" databases alive across calls.
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON"} {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}
	if _, err := conn.ExecContext(ctx, schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}
	if _, err := conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO runs (id, started_at) VALUES (?, ?)`,
		runID, time.Now().UTC(),
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: registering run %s: %w", runID, err)
	}

	return &SQLiteSink{
		conn:   conn,
		runID:  runID,
		logger: logging.NewLogger("sqlite-sink").With().Str("run_id", runID).Logger(),
	}, nil
}

// DB exposes the underlying connection pool for queries.
func (s *SQLiteSink) DB() *sql.DB {
	return s.conn
}

// WriteUsers inserts users in one transaction. Duplicate logins are skipped.
func (s *SQLiteSink) WriteUsers(ctx context.Context, users []model.UserRecord) error {
	skipped := 0
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO users (
				run_id, login, name, company, location, email, hireable, bio,
				public_repos, followers, following, created_at, position
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (run_id, login) DO NOTHING`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, u := range users {
			res, err := stmt.ExecContext(ctx,
				s.runID, u.Login, u.Name, u.Company, u.Location, u.Email, u.Hireable, u.Bio,
				u.PublicRepos, u.Followers, u.Following, u.CreatedAt, i,
			)
			if err != nil {
				return fmt.Errorf("inserting user %s: %w", u.Login, err)
			}
			skipped += duplicate(res)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sqlite: writing users: %w", err)
	}
	s.logStored("Users stored", len(users), skipped)
	return nil
}

// WriteRepositories inserts repos in one transaction. Duplicate full names
// are skipped; a repository whose owner was not written fails the whole batch.
func (s *SQLiteSink) WriteRepositories(ctx context.Context, repos []model.RepositoryRecord) error {
	skipped := 0
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO repositories (
				run_id, login, full_name, created_at, stargazers_count, watchers_count,
				language, has_projects, has_wiki, license_name, position
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (run_id, full_name) DO NOTHING`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, r := range repos {
			res, err := stmt.ExecContext(ctx,
				s.runID, r.Login, r.FullName, r.CreatedAt, r.StargazersCount, r.WatchersCount,
				r.Language, r.HasProjects, r.HasWiki, r.LicenseName, i,
			)
			if err != nil {
				return fmt.Errorf("inserting repository %s: %w", r.FullName, err)
			}
			skipped += duplicate(res)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sqlite: writing repositories: %w", err)
	}
	s.logStored("Repositories stored", len(repos), skipped)
	return nil
}

// duplicate is 1 when an insert was skipped by its conflict clause.
func duplicate(res sql.Result) int {
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return 1
	}
	return 0
}

func (s *SQLiteSink) logStored(msg string, total, skipped int) {
	if skipped > 0 {
		s.logger.Warn().Int("count", total-skipped).Int("duplicates", skipped).Msg(msg)
		return
	}
	s.logger.Info().Int("count", total).Msg(msg)
}

// Users reads back the users of runID in insertion order.
func (s *SQLiteSink) Users(ctx context.Context, runID string) ([]model.UserRecord, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT login, name, company, location, email, hireable, bio,
		       public_repos, followers, following, created_at
		FROM users WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: querying users: %w", err)
	}
	defer rows.Close()

	var users []model.UserRecord
	for rows.Next() {
		var u model.UserRecord
		if err := rows.Scan(&u.Login, &u.Name, &u.Company, &u.Location, &u.Email, &u.Hireable, &u.Bio,
			&u.PublicRepos, &u.Followers, &u.Following, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Repositories reads back the repositories of runID in insertion order.
func (s *SQLiteSink) Repositories(ctx context.Context, runID string) ([]model.RepositoryRecord, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT login, full_name, created_at, stargazers_count, watchers_count,
		       language, has_projects, has_wiki, license_name
		FROM repositories WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: querying repositories: %w", err)
	}
	defer rows.Close()

	var repos []model.RepositoryRecord
	for rows.Next() {
		var r model.RepositoryRecord
		if err := rows.Scan(&r.Login, &r.FullName, &r.CreatedAt, &r.StargazersCount, &r.WatchersCount,
			&r.Language, &r.HasProjects, &r.HasWiki, &r.LicenseName); err != nil {
			return nil, fmt.Errorf("sqlite: scanning repository: %w", err)
		}
		repos = append(repos, r)
	}
	return repos, rows.Err()
}

// Close closes the database.
func (s *SQLiteSink) Close() error {
	return s.conn.Close()
}

func (s *SQLiteSink) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
