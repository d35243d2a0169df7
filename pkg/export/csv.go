package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Sternrassler/gh-harvester/pkg/logging"
	"github.com/Sternrassler/gh-harvester/pkg/model"
	"github.com/rs/zerolog"
)

const (
	// DefaultUsersFile is the users table file name.
	DefaultUsersFile = "users.csv"

	// DefaultRepositoriesFile is the repositories table file name.
	DefaultRepositoriesFile = "repositories.csv"
)

// WriteUsersCSV writes a header row and one row per user.
func WriteUsersCSV(w io.Writer, users []model.UserRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(model.UserColumns); err != nil {
		return err
	}
	for _, u := range users {
		if err := cw.Write(u.Row()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteRepositoriesCSV writes a header row and one row per repository.
func WriteRepositoriesCSV(w io.Writer, repos []model.RepositoryRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(model.RepositoryColumns); err != nil {
		return err
	}
	for _, r := range repos {
		if err := cw.Write(r.Row()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// CSVSink writes users and repositories to two files in one directory.
type CSVSink struct {
	dir       string
	usersFile string
	reposFile string
	logger    zerolog.Logger
}

// NewCSVSink creates dir if needed. Empty file names fall back to the defaults.
func NewCSVSink(dir, usersFile, reposFile string) (*CSVSink, error) {
	if dir == "" {
		dir = "."
	}
	if usersFile == "" {
		usersFile = DefaultUsersFile
	}
	if reposFile == "" {
		reposFile = DefaultRepositoriesFile
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	return &CSVSink{
		dir:       dir,
		usersFile: usersFile,
		reposFile: reposFile,
		logger:    logging.NewLogger("csv-sink"),
	}, nil
}

// UsersPath returns the path of the users file.
func (s *CSVSink) UsersPath() string {
	return filepath.Join(s.dir, s.usersFile)
}

// RepositoriesPath returns the path of the repositories file.
func (s *CSVSink) RepositoriesPath() string {
	return filepath.Join(s.dir, s.reposFile)
}

// WriteUsers replaces the users table with users.
func (s *CSVSink) WriteUsers(_ context.Context, users []model.UserRecord) error {
	path := s.UsersPath()
	if err := writeFileAtomic(path, func(w io.Writer) error {
		return WriteUsersCSV(w, users)
	}); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	s.logger.Info().Int("count", len(users)).Str("path", path).Msg("Users written")
	return nil
}

// WriteRepositories replaces the repositories table with repos.
func (s *CSVSink) WriteRepositories(_ context.Context, repos []model.RepositoryRecord) error {
	path := s.RepositoriesPath()
	if err := writeFileAtomic(path, func(w io.Writer) error {
		return WriteRepositoriesCSV(w, repos)
	}); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	s.logger.Info().Int("count", len(repos)).Str("path", path).Msg("Repositories written")
	return nil
}

// Close is a no-op; every write already closed its file.
func (s *CSVSink) Close() error { return nil }

// writeFileAtomic writes to a temporary file next to path and renames it
// into place, so readers never observe a partial table.
func writeFileAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
