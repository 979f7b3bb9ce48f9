package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ashureev/selve/internal/api"
	"github.com/ashureev/selve/internal/assessment"
	"github.com/ashureev/selve/internal/catalog"
	"github.com/ashureev/selve/internal/domain"
	"github.com/ashureev/selve/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) *Client {
	t.Helper()
	repo := store.NewMemory()
	bank, err := catalog.LoadFile("../catalog/testdata/bank.yaml")
	require.NoError(t, err)
	require.NoError(t, catalog.Seed(context.Background(), repo, bank))

	svc, err := assessment.NewService(repo, assessment.Options{})
	require.NoError(t, err)
	r := chi.NewRouter()
	api.NewHandler(svc, nil).RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return New(srv.URL, WithHTTPClient(srv.Client()))
}

func TestClientRoundTrip(t *testing.T) {
	c := newServer(t)
	ctx := context.Background()

	s, err := c.CreateSession(ctx, map[string]any{"source": "cli"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, s.Status)

	step, err := c.Next(ctx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, step.Question)
	assert.Equal(t, "q-name", step.Question.ID)
	assert.Equal(t, "text-input", step.Question.View.Kind)

	a, n, err := c.SubmitAnswer(ctx, s.ID, "q-name", json.RawMessage(`"Ada"`))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "q-name", a.QuestionID)

	got, err := c.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, got.Answers, 1)

	done, err := c.Complete(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, done.IsCompleted())
}

func TestClientAPIError(t *testing.T) {
	c := newServer(t)

	_, err := c.GetSession(context.Background(), "missing")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "not found")
}

func TestDraftsReconciliation(t *testing.T) {
	d := NewDrafts()
	d.Set("q1", json.RawMessage(`"local"`))
	d.Set("q2", json.RawMessage(`3`))
	assert.Equal(t, []string{"q1", "q2"}, d.Pending())
	assert.Empty(t, d.Conflicts())

	// Server confirms a different value: the draft is replaced, not merged.
	d.Confirm(&domain.Answer{QuestionID: "q1", Value: json.RawMessage(`"server"`)})
	v, ok := d.Draft("q1")
	require.True(t, ok)
	assert.JSONEq(t, `"server"`, string(v))
	assert.Equal(t, []string{"q2"}, d.Pending())

	d.Set("q1", json.RawMessage(`"edited"`))
	assert.Equal(t, []string{"q1"}, d.Conflicts())

	// Whitespace differences are not conflicts.
	d.Confirm(&domain.Answer{QuestionID: "q3", Value: json.RawMessage(`[1, 2]`)})
	d.Set("q3", json.RawMessage(`[1,2]`))
	assert.Equal(t, []string{"q1"}, d.Conflicts())
}

func TestDraftsSync(t *testing.T) {
	c := newServer(t)
	ctx := context.Background()
	s, err := c.CreateSession(ctx, nil)
	require.NoError(t, err)

	d := NewDrafts()
	d.Set("q-name", json.RawMessage(`"Ada"`))
	d.Set("q-parties", json.RawMessage(`6`))

	n, err := d.Sync(ctx, c, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Empty(t, d.Pending())
	assert.Empty(t, d.Conflicts())

	d.Set("q-parties", json.RawMessage(`42`))
	_, err = d.Sync(ctx, c, s.ID)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	var syncErr *SyncError
	require.True(t, errors.As(err, &syncErr))
	assert.Equal(t, "q-parties", syncErr.QuestionID)
	assert.Equal(t, []string{"q-parties"}, d.Conflicts(), "rejected draft stays until discarded")

	d.Discard(syncErr.QuestionID)
	assert.Empty(t, d.Conflicts())
	v, _ := d.Draft("q-parties")
	assert.JSONEq(t, `6`, string(v), "discard falls back to the confirmed value")

	// A rejected first answer is dropped entirely and no longer blocks Sync.
	d.Set("q-age", json.RawMessage(`"teen"`))
	_, err = d.Sync(ctx, c, s.ID)
	require.True(t, errors.As(err, &syncErr))
	d.Discard(syncErr.QuestionID)
	_, ok := d.Draft("q-age")
	assert.False(t, ok)

	d.Set("q-recharge", json.RawMessage(`["reading"]`))
	n, err = d.Sync(ctx, c, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
