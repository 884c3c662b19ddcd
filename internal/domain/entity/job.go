// Package entity defines the core domain entities and validation logic for the application.
// It contains the delivery Job, the closed Platform variant, the ServiceError
// taxonomy shared by every layer, and the validation rules applied before a
// job is queued.
package entity

import (
	"maps"
	"slices"
	"time"
)

// JobStatus is the lifecycle state of a delivery job.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusPublished  JobStatus = "published"
	StatusFailed     JobStatus = "failed"
	StatusCancelled  JobStatus = "cancelled"
)

// IsTerminal reports whether no further transition happens without an explicit retry.
func (s JobStatus) IsTerminal() bool {
	return s == StatusPublished || s == StatusFailed || s == StatusCancelled
}

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusPublished, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// JobSpec is the caller input for a new delivery job.
type JobSpec struct {
	Platform     Platform
	ContentID    string
	CollectionID string
	Message      string
	MediaURLs    []string
	ScheduledAt  *time.Time
	// MaxAttempts of zero selects the queue default.
	MaxAttempts int
	// ReplyToID and QuoteID are honored by platforms that support threads.
	ReplyToID string
	QuoteID   string
}

// PublishResult identifies the post created on the remote platform.
type PublishResult struct {
	PostID  string `json:"post_id"`
	PostURL string `json:"post_url,omitempty"`
}

// Job is one queued request to publish a message to one platform.
//
// Status transitions: queued -> processing -> {published | queued (retry) |
// failed | cancelled}. Only the dispatch loop moves a job out of processing.
type Job struct {
	ID           string
	Platform     Platform
	ContentID    string
	CollectionID string
	Message      string
	MediaURLs    []string
	ReplyToID    string
	QuoteID      string
	ScheduledAt  *time.Time

	Status      JobStatus
	Attempt     int
	MaxAttempts int
	LastError   *ServiceError
	Result      *PublishResult

	CreatedAt   time.Time
	UpdatedAt   time.Time
	ProcessedAt *time.Time
	NextRetryAt *time.Time
}

// EligibleAt reports whether a queued job may be dispatched at now.
func (j *Job) EligibleAt(now time.Time) bool {
	if j.Status != StatusQueued {
		return false
	}
	if j.ScheduledAt != nil && now.Before(*j.ScheduledAt) {
		return false
	}
	if j.NextRetryAt != nil && now.Before(*j.NextRetryAt) {
		return false
	}
	return true
}

// AttemptsExhausted reports whether the current attempt was the last allowed one.
func (j *Job) AttemptsExhausted() bool {
	return j.Attempt >= j.MaxAttempts
}

// Clone returns a deep copy so callers never share mutable state with the store.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	out := *j
	out.MediaURLs = slices.Clone(j.MediaURLs)
	out.ScheduledAt = cloneTime(j.ScheduledAt)
	out.ProcessedAt = cloneTime(j.ProcessedAt)
	out.NextRetryAt = cloneTime(j.NextRetryAt)
	if j.Result != nil {
		r := *j.Result
		out.Result = &r
	}
	if j.LastError != nil {
		e := *j.LastError
		e.Details = maps.Clone(j.LastError.Details)
		out.LastError = &e
	}
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
