// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ashureev/selve/internal/domain"
)

// Repository defines the interface for persisting sessions, answers and the question bank.
type Repository interface {
	// CreateSession inserts a new session record.
	CreateSession(ctx context.Context, session *domain.Session) error

	// GetSession retrieves a session by ID. It returns nil, nil when absent.
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)

	// UpdateSession locks the session, passes the stored state to mutate and
	// writes back status, current step, metadata and completion time. An error
	// from mutate aborts the write and is returned unchanged. It returns
	// domain.ErrNotFound if the session does not exist.
	UpdateSession(ctx context.Context, sessionID string, mutate func(*domain.Session) error) (*domain.Session, error)

	// CompleteSession marks the session completed if it is not already.
	// The returned bool is true only for the call that performed the transition.
	CompleteSession(ctx context.Context, sessionID string, at time.Time) (bool, error)

	// UpsertAnswer creates or overwrites the answer for (session, question), then
	// recomputes the session's current step from the distinct answer count.
	// Both writes happen in one transaction.
	UpsertAnswer(ctx context.Context, answer *domain.Answer) (*domain.Answer, int, error)

	// ListAnswers returns a session's answers ordered by creation time.
	ListAnswers(ctx context.Context, sessionID string) ([]*domain.Answer, error)

	// ListQuestions returns all questions ordered by position.
	ListQuestions(ctx context.Context) ([]*domain.Question, error)

	// ListSections returns all sections ordered by position.
	ListSections(ctx context.Context) ([]*domain.Section, error)

	// ListCheckpoints returns all checkpoints ordered by section and position.
	ListCheckpoints(ctx context.Context) ([]*domain.Checkpoint, error)

	// SaveCatalog upserts sections, questions and checkpoints.
	SaveCatalog(ctx context.Context, catalog *domain.Catalog) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Open returns a Repository for the given driver.
// For sqlite the dsn is a file path; for postgres it is a connection URL.
func Open(driver, dsn string) (Repository, error) {
	switch driver {
	case DriverSQLite, "":
		s, err := NewSQLite(dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverPostgres:
		s, err := NewPostgres(dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}
