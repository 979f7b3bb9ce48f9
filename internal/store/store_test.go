package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/selve/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type factory struct {
	name string
	open func(t *testing.T) Repository
}

func factories() []factory {
	return []factory{
		{"sqlite", func(t *testing.T) Repository {
			t.Helper()
			s, err := NewSQLite(filepath.Join(t.TempDir(), "selve.db"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		}},
		{"memory", func(t *testing.T) Repository {
			t.Helper()
			return NewMemory()
		}},
	}
}

func newSession(id string, now time.Time) *domain.Session {
	return &domain.Session{
		ID:        id,
		Status:    domain.StatusInProgress,
		Metadata:  json.RawMessage(`{"source":"test"}`),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func newAnswer(sessionID, questionID, value string, now time.Time) *domain.Answer {
	return &domain.Answer{
		ID:         sessionID + "-" + questionID + "-" + value,
		SessionID:  sessionID,
		QuestionID: questionID,
		Value:      json.RawMessage(value),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestSessionRoundTrip(t *testing.T) {
	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			repo := f.open(t)
			ctx := context.Background()
			now := time.Now().UTC().Truncate(time.Microsecond)

			missing, err := repo.GetSession(ctx, "nope")
			require.NoError(t, err)
			assert.Nil(t, missing)

			user := "user-1"
			s := newSession("s1", now)
			s.UserID = &user
			require.NoError(t, repo.CreateSession(ctx, s))

			got, err := repo.GetSession(ctx, "s1")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, domain.StatusInProgress, got.Status)
			assert.Equal(t, 0, got.CurrentStep)
			require.NotNil(t, got.UserID)
			assert.Equal(t, "user-1", *got.UserID)
			assert.JSONEq(t, `{"source":"test"}`, string(got.Metadata))
			assert.Nil(t, got.CompletedAt)
			assert.True(t, now.Equal(got.CreatedAt))
		})
	}
}

func TestUpdateSessionMissing(t *testing.T) {
	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			repo := f.open(t)
			called := false
			_, err := repo.UpdateSession(context.Background(), "ghost", func(*domain.Session) error {
				called = true
				return nil
			})
			assert.True(t, errors.Is(err, domain.ErrNotFound), "got %v", err)
			assert.False(t, called)
		})
	}
}

func TestUpdateSessionMutatesStoredState(t *testing.T) {
	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			repo := f.open(t)
			ctx := context.Background()
			now := time.Now().UTC().Truncate(time.Microsecond)
			require.NoError(t, repo.CreateSession(ctx, newSession("s1", now)))
			_, _, err := repo.UpsertAnswer(ctx, newAnswer("s1", "q1", `1`, now))
			require.NoError(t, err)

			later := now.Add(time.Minute)
			updated, err := repo.UpdateSession(ctx, "s1", func(s *domain.Session) error {
				assert.Equal(t, 1, s.CurrentStep, "mutate must see the stored step")
				s.Metadata = json.RawMessage(`{"source":"patched"}`)
				s.Complete(later)
				s.UpdatedAt = later
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, domain.StatusCompleted, updated.Status)

			got, err := repo.GetSession(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, 1, got.CurrentStep)
			assert.Equal(t, domain.StatusCompleted, got.Status)
			require.NotNil(t, got.CompletedAt)
			assert.True(t, later.Equal(*got.CompletedAt))
			assert.JSONEq(t, `{"source":"patched"}`, string(got.Metadata))
		})
	}
}

func TestUpdateSessionMutateErrorAborts(t *testing.T) {
	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			repo := f.open(t)
			ctx := context.Background()
			now := time.Now().UTC()
			require.NoError(t, repo.CreateSession(ctx, newSession("s1", now)))

			reject := errors.New("rejected")
			_, err := repo.UpdateSession(ctx, "s1", func(s *domain.Session) error {
				s.Metadata = json.RawMessage(`{"source":"lost"}`)
				return reject
			})
			assert.Same(t, reject, err)

			got, err := repo.GetSession(ctx, "s1")
			require.NoError(t, err)
			assert.JSONEq(t, `{"source":"test"}`, string(got.Metadata))
		})
	}
}

func TestUpsertAnswerRecountsStep(t *testing.T) {
	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			repo := f.open(t)
			ctx := context.Background()
			now := time.Now().UTC()
			require.NoError(t, repo.CreateSession(ctx, newSession("s1", now)))

			_, step, err := repo.UpsertAnswer(ctx, newAnswer("s1", "q1", `1`, now))
			require.NoError(t, err)
			assert.Equal(t, 1, step)

			_, step, err = repo.UpsertAnswer(ctx, newAnswer("s1", "q2", `"b"`, now.Add(time.Millisecond)))
			require.NoError(t, err)
			assert.Equal(t, 2, step)

			// Resubmission overwrites the value, keeps the row and the step.
			stored, step, err := repo.UpsertAnswer(ctx, newAnswer("s1", "q1", `5`, now.Add(2*time.Millisecond)))
			require.NoError(t, err)
			assert.Equal(t, 2, step)
			assert.JSONEq(t, `5`, string(stored.Value))
			assert.Equal(t, "s1-q1-1", stored.ID, "original row identity must survive overwrite")

			answers, err := repo.ListAnswers(ctx, "s1")
			require.NoError(t, err)
			require.Len(t, answers, 2)
			assert.Equal(t, "q1", answers[0].QuestionID)
			assert.Equal(t, "q2", answers[1].QuestionID)

			s, err := repo.GetSession(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, 2, s.CurrentStep)
		})
	}
}

func TestUpsertAnswerUnknownSession(t *testing.T) {
	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			repo := f.open(t)
			_, _, err := repo.UpsertAnswer(context.Background(), newAnswer("ghost", "q1", `1`, time.Now()))
			assert.True(t, errors.Is(err, domain.ErrNotFound), "got %v", err)
		})
	}
}

func TestConcurrentUpsertSameQuestion(t *testing.T) {
	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			repo := f.open(t)
			ctx := context.Background()
			now := time.Now().UTC()
			require.NoError(t, repo.CreateSession(ctx, newSession("s1", now)))

			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					a := newAnswer("s1", "q1", fmt.Sprint(i), now)
					_, _, err := repo.UpsertAnswer(ctx, a)
					assert.NoError(t, err)
				}(i)
			}
			wg.Wait()

			answers, err := repo.ListAnswers(ctx, "s1")
			require.NoError(t, err)
			assert.Len(t, answers, 1)

			s, err := repo.GetSession(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, 1, s.CurrentStep)
		})
	}
}

func TestConcurrentUpsertDistinctQuestions(t *testing.T) {
	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			repo := f.open(t)
			ctx := context.Background()
			now := time.Now().UTC()
			require.NoError(t, repo.CreateSession(ctx, newSession("s1", now)))

			const n = 12
			var wg sync.WaitGroup
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, _, err := repo.UpsertAnswer(ctx, newAnswer("s1", fmt.Sprintf("q%d", i), `1`, now))
					assert.NoError(t, err)
				}(i)
			}
			wg.Wait()

			answers, err := repo.ListAnswers(ctx, "s1")
			require.NoError(t, err)
			assert.Len(t, answers, n)

			s, err := repo.GetSession(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, len(answers), s.CurrentStep)
		})
	}
}

// Metadata updates racing answers and completion must not roll back the
// step, reopen the session or clear its completion time.
func TestConcurrentUpdateWithAnswersAndCompletion(t *testing.T) {
	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			repo := f.open(t)
			ctx := context.Background()
			now := time.Now().UTC().Truncate(time.Microsecond)
			require.NoError(t, repo.CreateSession(ctx, newSession("s1", now)))

			const n = 8
			var wg sync.WaitGroup
			for i := 0; i < n; i++ {
				wg.Add(2)
				go func(i int) {
					defer wg.Done()
					_, _, err := repo.UpsertAnswer(ctx, newAnswer("s1", fmt.Sprintf("q%d", i), `1`, now))
					assert.NoError(t, err)
				}(i)
				go func(i int) {
					defer wg.Done()
					_, err := repo.UpdateSession(ctx, "s1", func(s *domain.Session) error {
						s.Metadata = json.RawMessage(fmt.Sprintf(`{"rev":%d}`, i))
						s.UpdatedAt = now
						return nil
					})
					assert.NoError(t, err)
				}(i)
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.CompleteSession(ctx, "s1", now)
				assert.NoError(t, err)
			}()
			wg.Wait()

			s, err := repo.GetSession(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, n, s.CurrentStep)
			assert.Equal(t, domain.StatusCompleted, s.Status)
			require.NotNil(t, s.CompletedAt)
			assert.True(t, now.Equal(*s.CompletedAt))
		})
	}
}

func TestCompleteSessionOnce(t *testing.T) {
	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			repo := f.open(t)
			ctx := context.Background()
			now := time.Now().UTC().Truncate(time.Microsecond)
			require.NoError(t, repo.CreateSession(ctx, newSession("s1", now)))

			done, err := repo.CompleteSession(ctx, "s1", now)
			require.NoError(t, err)
			assert.True(t, done)

			done, err = repo.CompleteSession(ctx, "s1", now.Add(time.Hour))
			require.NoError(t, err)
			assert.False(t, done)

			s, err := repo.GetSession(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, domain.StatusCompleted, s.Status)
			require.NotNil(t, s.CompletedAt)
			assert.True(t, now.Equal(*s.CompletedAt))

			_, err = repo.CompleteSession(ctx, "ghost", now)
			assert.True(t, errors.Is(err, domain.ErrNotFound))
		})
	}
}

func TestSaveCatalog(t *testing.T) {
	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			repo := f.open(t)
			ctx := context.Background()

			catalog := &domain.Catalog{
				Sections: []*domain.Section{{ID: "b", Order: 2, Title: "B"}, {ID: "a", Order: 1, Title: "A"}},
				Questions: []*domain.Question{
					{ID: "q2", Order: 2, SectionID: "a", Type: "text-input", Text: "Two"},
					{ID: "q1", Order: 1, SectionID: "a", Type: "scale-slider", Text: "One",
						Config: json.RawMessage(`{"min":1,"max":5}`), Required: true},
				},
				Checkpoints: []*domain.Checkpoint{{ID: "c1", SectionID: "a", Order: 1, Title: "Start", Message: "Go"}},
			}
			require.NoError(t, repo.SaveCatalog(ctx, catalog))
			// Saving twice is an upsert.
			catalog.Questions[0].Text = "Two (edited)"
			require.NoError(t, repo.SaveCatalog(ctx, catalog))

			qs, err := repo.ListQuestions(ctx)
			require.NoError(t, err)
			require.Len(t, qs, 2)
			assert.Equal(t, "q1", qs[0].ID)
			assert.True(t, qs[0].Required)
			assert.JSONEq(t, `{"min":1,"max":5}`, string(qs[0].Config))
			assert.Equal(t, "Two (edited)", qs[1].Text)

			secs, err := repo.ListSections(ctx)
			require.NoError(t, err)
			require.Len(t, secs, 2)
			assert.Equal(t, "a", secs[0].ID)

			cps, err := repo.ListCheckpoints(ctx)
			require.NoError(t, err)
			require.Len(t, cps, 1)
		})
	}
}

func TestRebind(t *testing.T) {
	pg := &SQLStore{driver: DriverPostgres}
	assert.Equal(t, "SELECT 1 FROM t WHERE a = $1 AND b = $2", pg.rebind("SELECT 1 FROM t WHERE a = ? AND b = ?"))

	lite := &SQLStore{driver: DriverSQLite}
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
}

func TestForUpdate(t *testing.T) {
	assert.Equal(t, " FOR UPDATE", (&SQLStore{driver: DriverPostgres}).forUpdate())
	assert.Empty(t, (&SQLStore{driver: DriverSQLite}).forUpdate())
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open("oracle", "")
	assert.Error(t, err)
}
