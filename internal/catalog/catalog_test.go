package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/selve/internal/domain"
	"github.com/ashureev/selve/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile(t *testing.T) {
	c, err := LoadFile("testdata/bank.yaml")
	require.NoError(t, err)

	require.Len(t, c.Sections, 2)
	require.Len(t, c.Questions, 4)
	require.Len(t, c.Checkpoints, 2)

	q := c.Question("q-parties")
	require.NotNil(t, q)
	assert.Equal(t, "energy", q.SectionID)
	assert.True(t, q.Required)
	assert.JSONEq(t, `{"min":1,"max":7,"minLabel":"Strongly disagree","maxLabel":"Strongly agree"}`, string(q.Config))

	assert.Equal(t, "q-name", c.Questions[0].ID)
}

func TestParseRejectsBadBanks(t *testing.T) {
	tests := map[string]string{
		"unknown section": `
sections: [{id: a, order: 1, title: A}]
questions: [{id: q1, order: 1, section: b, type: text-input, text: x}]`,
		"duplicate question": `
sections: [{id: a, order: 1, title: A}]
questions:
  - {id: q1, order: 1, section: a, type: text-input, text: x}
  - {id: q1, order: 2, section: a, type: text-input, text: y}`,
		"missing type": `
sections: [{id: a, order: 1, title: A}]
questions: [{id: q1, order: 1, section: a, text: x}]`,
		"orphan checkpoint": `
sections: [{id: a, order: 1, title: A}]
checkpoints: [{id: c1, section: z, order: 1, title: t, message: m}]`,
		"not yaml": "sections: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestStoreSourceLoad(t *testing.T) {
	repo := store.NewMemory()
	bank, err := LoadFile("testdata/bank.yaml")
	require.NoError(t, err)
	require.NoError(t, repo.SaveCatalog(context.Background(), bank))

	c, err := NewStoreSource(repo).Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, c.Questions, 4)
	assert.Len(t, c.Sections, 2)
	assert.Len(t, c.Checkpoints, 2)
}

type mapCache struct {
	mu     sync.Mutex
	data   map[string][]byte
	getErr error
	sets   int
}

func (m *mapCache) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.data[key], nil
}

func (m *mapCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	m.data[key] = value
	return nil
}

func (m *mapCache) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

type countingSource struct {
	calls int
	cat   *domain.Catalog
}

func (c *countingSource) Load(context.Context) (*domain.Catalog, error) {
	c.calls++
	return c.cat, nil
}

func TestCachedLoad(t *testing.T) {
	src := &countingSource{cat: &domain.Catalog{
		Sections:  []*domain.Section{{ID: "a", Order: 1, Title: "A"}},
		Questions: []*domain.Question{{ID: "q1", Order: 1, SectionID: "a", Type: "yes-no"}},
	}}
	cache := &mapCache{data: map[string][]byte{}}
	cached := NewCached(src, cache, time.Minute, nil)
	ctx := context.Background()

	first, err := cached.Load(ctx)
	require.NoError(t, err)
	second, err := cached.Load(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, src.calls, "second load must be served from cache")
	assert.Equal(t, 1, cache.sets)
	assert.Equal(t, first.Questions[0].ID, second.Questions[0].ID)

	require.NoError(t, cached.Invalidate(ctx))
	_, err = cached.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestCachedLoadBypassesBrokenCache(t *testing.T) {
	src := &countingSource{cat: &domain.Catalog{}}
	cache := &mapCache{data: map[string][]byte{}, getErr: errors.New("connection refused")}

	_, err := NewCached(src, cache, time.Minute, nil).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)
}

func TestCachedLoadDiscardsGarbage(t *testing.T) {
	src := &countingSource{cat: &domain.Catalog{}}
	cache := &mapCache{data: map[string][]byte{CacheKey: []byte("{oops")}}

	_, err := NewCached(src, cache, time.Minute, nil).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)
}

func TestNewRedisCacheRejectsBadURL(t *testing.T) {
	_, err := NewRedisCache("not-a-url://")
	assert.Error(t, err)
}

func TestSeed(t *testing.T) {
	repo := store.NewMemory()
	bank, err := LoadFile("testdata/bank.yaml")
	require.NoError(t, err)

	require.NoError(t, Seed(context.Background(), repo, bank))
	// Seeding twice upserts rather than duplicating.
	require.NoError(t, Seed(context.Background(), repo, bank))

	qs, err := repo.ListQuestions(context.Background())
	require.NoError(t, err)
	assert.Len(t, qs, 4)

	bad := &domain.Catalog{Questions: []*domain.Question{{ID: "q1", SectionID: "nowhere", Type: "yes-no"}}}
	assert.Error(t, Seed(context.Background(), repo, bad))
}

func TestShippedBankIsValid(t *testing.T) {
	c, err := LoadFile("../../configs/questions.yaml")
	require.NoError(t, err)
	assert.Len(t, c.Questions, 7)
	assert.Len(t, c.Checkpoints, 2)
}
