package sqlite_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-relay/internal/domain/entity"
	"social-relay/internal/infra/adapter/persistence/sqlite"
	"social-relay/internal/infra/db"
	"social-relay/internal/repository"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newStore(t *testing.T) repository.JobStore {
	t.Helper()
	ctx := context.Background()
	database, err := db.OpenSQLite(ctx, filepath.Join(t.TempDir(), "data", "relay.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, db.MigrateSQLite(ctx, database))
	// Migrations are idempotent.
	require.NoError(t, db.MigrateSQLite(ctx, database))
	return sqlite.NewJobStore(database)
}

func job(id string, status entity.JobStatus, created time.Time) *entity.Job {
	return &entity.Job{
		ID:          id,
		Platform:    entity.PlatformTwitter,
		Message:     "hello " + id,
		Status:      status,
		MaxAttempts: 3,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

func ids(jobs []*entity.Job) []string {
	out := make([]string, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.ID)
	}
	return out
}

func TestJobStore_PutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	scheduled := base.Add(time.Hour)
	j := job("a", entity.StatusFailed, base)
	j.ContentID = "doc-1"
	j.CollectionID = "posts"
	j.MediaURLs = []string{"https://cdn.example.com/a.png"}
	j.ReplyToID = "99"
	j.ScheduledAt = &scheduled
	j.Attempt = 3
	j.LastError = entity.NewServiceError("twitter", entity.CodeServerError, "upstream 503",
		entity.WithStatus(503))
	j.Result = &entity.PublishResult{PostID: "123", PostURL: "https://x.com/i/web/status/123"}
	require.NoError(t, s.Put(ctx, j))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, entity.PlatformTwitter, got.Platform)
	assert.Equal(t, "doc-1", got.ContentID)
	assert.Equal(t, "posts", got.CollectionID)
	assert.Equal(t, []string{"https://cdn.example.com/a.png"}, got.MediaURLs)
	assert.Equal(t, "99", got.ReplyToID)
	require.NotNil(t, got.ScheduledAt)
	assert.True(t, scheduled.Equal(*got.ScheduledAt))
	assert.True(t, base.Equal(got.CreatedAt))
	assert.Nil(t, got.ProcessedAt)
	assert.Nil(t, got.NextRetryAt)
	assert.Equal(t, 3, got.Attempt)
	require.NotNil(t, got.LastError)
	assert.Equal(t, entity.CodeServerError, got.LastError.Code)
	assert.Equal(t, 503, got.LastError.StatusCode)
	assert.Equal(t, &entity.PublishResult{PostID: "123", PostURL: "https://x.com/i/web/status/123"}, got.Result)

	missing, err := s.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestJobStore_PutOverwrites(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	j := job("a", entity.StatusQueued, base)
	require.NoError(t, s.Put(ctx, j))

	j.Status = entity.StatusCancelled
	j.UpdatedAt = base.Add(time.Minute)
	require.NoError(t, s.Put(ctx, j))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCancelled, got.Status)
	assert.True(t, base.Add(time.Minute).Equal(got.UpdatedAt))
}

func TestJobStore_ListFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.Put(ctx, job("late", entity.StatusQueued, base.Add(2*time.Second))))
	require.NoError(t, s.Put(ctx, job("early", entity.StatusQueued, base)))
	require.NoError(t, s.Put(ctx, job("done", entity.StatusPublished, base.Add(time.Second))))

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"early", "done", "late"}, ids(all))

	queued, err := s.List(ctx, entity.StatusQueued)
	require.NoError(t, err)
	assert.Equal(t, []string{"early", "late"}, ids(queued))

	failed, err := s.List(ctx, entity.StatusFailed)
	require.NoError(t, err)
	assert.Empty(t, failed)
	assert.NotNil(t, failed)
}

func TestJobStore_Update(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.Put(ctx, job("a", entity.StatusQueued, base)))

	got, err := s.Update(ctx, "a", func(j *entity.Job) bool {
		j.Attempt++
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, 1, got.Attempt)

	_, err = s.Update(ctx, "a", func(j *entity.Job) bool {
		j.Attempt = 99
		return false
	})
	require.NoError(t, err)

	stored, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Attempt)

	missing, err := s.Update(ctx, "nope", func(*entity.Job) bool { return true })
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestJobStore_ClaimEligible(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	future := base.Add(time.Hour)

	scheduled := job("scheduled", entity.StatusQueued, base)
	scheduled.ScheduledAt = &future
	backingOff := job("backoff", entity.StatusQueued, base.Add(time.Second))
	backingOff.NextRetryAt = &future

	for _, j := range []*entity.Job{
		job("third", entity.StatusQueued, base.Add(3*time.Second)),
		job("first", entity.StatusQueued, base.Add(time.Second)),
		job("second", entity.StatusQueued, base.Add(2*time.Second)),
		job("published", entity.StatusPublished, base),
		scheduled,
		backingOff,
	} {
		require.NoError(t, s.Put(ctx, j))
	}

	now := base.Add(time.Minute)
	claimed, err := s.ClaimEligible(ctx, now, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, ids(claimed))
	for _, j := range claimed {
		assert.Equal(t, entity.StatusProcessing, j.Status)
		assert.True(t, now.Equal(j.UpdatedAt))
	}

	rest, err := s.ClaimEligible(ctx, now, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"third"}, ids(rest))

	later, err := s.ClaimEligible(ctx, future, 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"scheduled", "backoff"}, ids(later))

	none, err := s.ClaimEligible(ctx, future, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestJobStore_ClaimEligibleConcurrent(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	for i := range 20 {
		require.NoError(t, s.Put(ctx, job(string(rune('a'+i)), entity.StatusQueued, base.Add(time.Duration(i)*time.Second))))
	}

	var (
		mu   sync.Mutex
		seen = map[string]int{}
		wg   sync.WaitGroup
	)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := s.ClaimEligible(ctx, base.Add(time.Hour), 5)
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			for _, j := range claimed {
				seen[j.ID]++
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 20)
	for id, n := range seen {
		assert.Equal(t, 1, n, "job %s claimed more than once", id)
	}
}

func TestJobStore_CountAndCleanup(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	old := base.Add(-48 * time.Hour)
	require.NoError(t, s.Put(ctx, job("old-published", entity.StatusPublished, old)))
	require.NoError(t, s.Put(ctx, job("old-failed", entity.StatusFailed, old)))
	require.NoError(t, s.Put(ctx, job("old-queued", entity.StatusQueued, old)))
	require.NoError(t, s.Put(ctx, job("new-published", entity.StatusPublished, base)))

	counts, err := s.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[entity.JobStatus]int{
		entity.StatusPublished: 2,
		entity.StatusFailed:    1,
		entity.StatusQueued:    1,
	}, counts)

	n, err := s.DeleteTerminalBefore(ctx, base.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	remaining, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"old-queued", "new-published"}, ids(remaining))
}
