package sessioncache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tavleenbajwa8/research-brief-generator/internal/brief"
)

type memStore struct {
	contexts map[string]*brief.UserContext
	reads    int
	saveErr  error
}

func (m *memStore) GetContext(_ context.Context, userID string) (*brief.UserContext, error) {
	m.reads++
	return m.contexts[userID], nil
}

func (m *memStore) SaveBrief(_ context.Context, userID string, b *brief.FinalBrief) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	uc := m.contexts[userID]
	if uc == nil {
		uc = &brief.UserContext{UserID: userID}
		m.contexts[userID] = uc
	}
	uc.PreviousTopics = append(uc.PreviousTopics, b.Topic)
	return nil
}

func newTestCache(t *testing.T, store Store) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client, store, time.Minute, zaptest.NewLogger(t)), s
}

func TestGetContextReadThrough(t *testing.T) {
	store := &memStore{contexts: map[string]*brief.UserContext{
		"u1": {UserID: "u1", PreviousTopics: []string{"fusion"}},
	}}
	cache, s := newTestCache(t, store)
	ctx := context.Background()

	uc, err := cache.GetContext(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"fusion"}, uc.PreviousTopics)
	assert.True(t, s.Exists("briefgen:context:u1"))

	uc, err = cache.GetContext(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"fusion"}, uc.PreviousTopics)
	assert.Equal(t, 1, store.reads, "second read is served from redis")

	s.FastForward(2 * time.Minute)
	assert.False(t, s.Exists("briefgen:context:u1"))
}

func TestGetContextUnknownUser(t *testing.T) {
	cache, s := newTestCache(t, &memStore{contexts: map[string]*brief.UserContext{}})
	uc, err := cache.GetContext(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, uc)
	assert.False(t, s.Exists("briefgen:context:ghost"))
}

func TestSaveBriefInvalidates(t *testing.T) {
	store := &memStore{contexts: map[string]*brief.UserContext{
		"u1": {UserID: "u1", PreviousTopics: []string{"fusion"}},
	}}
	cache, s := newTestCache(t, store)
	ctx := context.Background()

	_, err := cache.GetContext(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, cache.SaveBrief(ctx, "u1", &brief.FinalBrief{BriefID: "b", Topic: "fission"}))
	assert.False(t, s.Exists("briefgen:context:u1"))

	uc, err := cache.GetContext(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"fusion", "fission"}, uc.PreviousTopics)
}

func TestSaveBriefStoreError(t *testing.T) {
	cache, _ := newTestCache(t, &memStore{contexts: map[string]*brief.UserContext{}, saveErr: errors.New("disk full")})
	err := cache.SaveBrief(context.Background(), "u1", &brief.FinalBrief{})
	assert.EqualError(t, err, "disk full")
}

func TestRedisDownFallsBackToStore(t *testing.T) {
	store := &memStore{contexts: map[string]*brief.UserContext{"u1": {UserID: "u1"}}}
	cache, s := newTestCache(t, store)
	s.Close()

	uc, err := cache.GetContext(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", uc.UserID)
}

func TestCorruptEntryIsDiscarded(t *testing.T) {
	store := &memStore{contexts: map[string]*brief.UserContext{"u1": {UserID: "u1"}}}
	cache, s := newTestCache(t, store)
	require.NoError(t, s.Set("briefgen:context:u1", "{not json"))

	uc, err := cache.GetContext(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", uc.UserID)
	assert.Equal(t, 1, store.reads)
}
