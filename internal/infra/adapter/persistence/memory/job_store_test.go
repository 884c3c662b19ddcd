package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-relay/internal/domain/entity"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func job(id string, status entity.JobStatus, created time.Time) *entity.Job {
	return &entity.Job{
		ID:          id,
		Platform:    entity.PlatformTwitter,
		Message:     "hello " + id,
		MediaURLs:   []string{"https://cdn.example.com/" + id + ".png"},
		Status:      status,
		MaxAttempts: 3,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

func TestJobStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewJobStore()
	require.NoError(t, s.Put(ctx, job("a", entity.StatusQueued, base)))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	got.Status = entity.StatusFailed
	got.MediaURLs[0] = "mutated"

	again, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusQueued, again.Status)
	assert.Equal(t, "https://cdn.example.com/a.png", again.MediaURLs[0])

	missing, err := s.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestJobStore_ListOrdersByCreation(t *testing.T) {
	ctx := context.Background()
	s := NewJobStore()
	require.NoError(t, s.Put(ctx, job("late", entity.StatusQueued, base.Add(2*time.Second))))
	require.NoError(t, s.Put(ctx, job("early", entity.StatusQueued, base)))
	require.NoError(t, s.Put(ctx, job("done", entity.StatusPublished, base.Add(time.Second))))

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"early", "done", "late"}, ids(all))

	queued, err := s.List(ctx, entity.StatusQueued)
	require.NoError(t, err)
	assert.Equal(t, []string{"early", "late"}, ids(queued))
}

func TestJobStore_ClaimEligible(t *testing.T) {
	ctx := context.Background()
	s := NewJobStore()
	now := base.Add(time.Minute)
	future := now.Add(time.Hour)

	scheduled := job("scheduled", entity.StatusQueued, base)
	scheduled.ScheduledAt = &future
	backingOff := job("backoff", entity.StatusQueued, base)
	backingOff.NextRetryAt = &future

	for _, j := range []*entity.Job{
		job("third", entity.StatusQueued, base.Add(3*time.Second)),
		job("first", entity.StatusQueued, base.Add(1*time.Second)),
		job("second", entity.StatusQueued, base.Add(2*time.Second)),
		job("busy", entity.StatusProcessing, base),
		scheduled,
		backingOff,
	} {
		require.NoError(t, s.Put(ctx, j))
	}

	claimed, err := s.ClaimEligible(ctx, now, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, ids(claimed))
	for _, j := range claimed {
		assert.Equal(t, entity.StatusProcessing, j.Status)
	}

	counts, err := s.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[entity.JobStatus]int{
		entity.StatusProcessing: 3,
		entity.StatusQueued:     3,
	}, counts)

	again, err := s.ClaimEligible(ctx, now, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"third"}, ids(again))

	none, err := s.ClaimEligible(ctx, now, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestJobStore_Update(t *testing.T) {
	ctx := context.Background()
	s := NewJobStore()
	require.NoError(t, s.Put(ctx, job("a", entity.StatusQueued, base)))

	got, err := s.Update(ctx, "a", func(j *entity.Job) bool {
		j.Status = entity.StatusCancelled
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCancelled, got.Status)

	_, err = s.Update(ctx, "a", func(j *entity.Job) bool {
		j.Status = entity.StatusQueued
		return false
	})
	require.NoError(t, err)
	stored, _ := s.Get(ctx, "a")
	assert.Equal(t, entity.StatusCancelled, stored.Status, "rejected change is not persisted")

	missing, err := s.Update(ctx, "nope", func(*entity.Job) bool { return true })
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestJobStore_DeleteTerminalBefore(t *testing.T) {
	ctx := context.Background()
	s := NewJobStore()
	old := base.Add(-48 * time.Hour)
	for _, j := range []*entity.Job{
		job("old-published", entity.StatusPublished, old),
		job("old-failed", entity.StatusFailed, old),
		job("old-cancelled", entity.StatusCancelled, old),
		job("old-queued", entity.StatusQueued, old),
		job("fresh-published", entity.StatusPublished, base),
	} {
		require.NoError(t, s.Put(ctx, j))
	}

	removed, err := s.DeleteTerminalBefore(ctx, base.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	left, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"old-queued", "fresh-published"}, ids(left))
}

func ids(jobs []*entity.Job) []string {
	out := make([]string, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.ID)
	}
	return out
}
