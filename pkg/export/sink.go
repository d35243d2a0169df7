// Package export writes harvested records to CSV files and SQLite.
package export

import (
	"context"
	"errors"

	"github.com/Sternrassler/gh-harvester/pkg/model"
)

// Sink receives the records of one harvest run. Each method is called at
// most once per run, after its flow has completed.
type Sink interface {
	WriteUsers(ctx context.Context, users []model.UserRecord) error
	WriteRepositories(ctx context.Context, repos []model.RepositoryRecord) error
	Close() error
}

// MultiSink fans every write out to all sinks in order.
type MultiSink []Sink

// WriteUsers writes users to every sink, stopping at the first error.
func (m MultiSink) WriteUsers(ctx context.Context, users []model.UserRecord) error {
	for _, s := range m {
		if err := s.WriteUsers(ctx, users); err != nil {
			return err
		}
	}
	return nil
}

// WriteRepositories writes repos to every sink, stopping at the first error.
func (m MultiSink) WriteRepositories(ctx context.Context, repos []model.RepositoryRecord) error {
	for _, s := range m {
		if err := s.WriteRepositories(ctx, repos); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink and joins their errors.
func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
