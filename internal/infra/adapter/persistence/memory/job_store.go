// Package memory provides the default in-process job store.
// Jobs live for the lifetime of the process only.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"social-relay/internal/domain/entity"
	"social-relay/internal/repository"
)

// JobStore is a mutex-guarded map of jobs.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*entity.Job
}

// NewJobStore creates an empty store.
func NewJobStore() repository.JobStore {
	return &JobStore{jobs: make(map[string]*entity.Job)}
}

func (s *JobStore) Get(_ context.Context, id string) (*entity.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id].Clone(), nil
}

func (s *JobStore) Put(_ context.Context, job *entity.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *JobStore) List(_ context.Context, status entity.JobStatus) ([]*entity.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*entity.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if status == "" || job.Status == status {
			out = append(out, job.Clone())
		}
	}
	sortByCreated(out)
	return out, nil
}

func (s *JobStore) Update(_ context.Context, id string, fn func(job *entity.Job) bool) (*entity.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	job := stored.Clone()
	if fn(job) {
		s.jobs[id] = job.Clone()
	}
	return job, nil
}

func (s *JobStore) ClaimEligible(_ context.Context, now time.Time, limit int) ([]*entity.Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var eligible []*entity.Job
	for _, job := range s.jobs {
		if job.EligibleAt(now) {
			eligible = append(eligible, job)
		}
	}
	sortByCreated(eligible)
	if len(eligible) > limit {
		eligible = eligible[:limit]
	}

	out := make([]*entity.Job, 0, len(eligible))
	for _, job := range eligible {
		job.Status = entity.StatusProcessing
		job.UpdatedAt = now
		out = append(out, job.Clone())
	}
	return out, nil
}

func (s *JobStore) CountByStatus(_ context.Context) (map[entity.JobStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[entity.JobStatus]int, 5)
	for _, job := range s.jobs {
		counts[job.Status]++
	}
	return counts, nil
}

func (s *JobStore) DeleteTerminalBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, job := range s.jobs {
		if job.Status.IsTerminal() && job.UpdatedAt.Before(cutoff) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed, nil
}

// sortByCreated orders jobs oldest first, breaking ties by id.
func sortByCreated(jobs []*entity.Job) {
	slices.SortFunc(jobs, func(a, b *entity.Job) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
}
