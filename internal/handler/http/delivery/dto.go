// Package delivery provides the HTTP API for enqueueing and inspecting
// delivery jobs and for checking platform credentials.
package delivery

import (
	"time"

	"social-relay/internal/common/pagination"
	"social-relay/internal/domain/entity"
)

// CreateRequest is the JSON body of POST /jobs.
type CreateRequest struct {
	Platform     string     `json:"platform" example:"twitter"`
	ContentID    string     `json:"content_id" example:"post-42"`
	CollectionID string     `json:"collection_id,omitempty" example:"blog"`
	Message      string     `json:"message" example:"New post is live"`
	MediaURLs    []string   `json:"media_urls,omitempty"`
	ScheduledAt  *time.Time `json:"scheduled_at,omitempty" example:"2026-01-02T15:04:05Z"`
	MaxAttempts  int        `json:"max_attempts,omitempty" example:"3"`
	ReplyToID    string     `json:"reply_to_id,omitempty"`
	QuoteID      string     `json:"quote_id,omitempty"`
}

// CreateResponse is returned when a job is accepted.
type CreateResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// ErrorDTO is the stored last error of a job.
type ErrorDTO struct {
	Code        string         `json:"code"`
	Message     string         `json:"message"`
	UserMessage string         `json:"user_message"`
	Retryable   bool           `json:"retryable"`
	StatusCode  int            `json:"status_code,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// JobDTO is the JSON representation of a job.
type JobDTO struct {
	ID           string                `json:"id"`
	Platform     string                `json:"platform"`
	ContentID    string                `json:"content_id"`
	CollectionID string                `json:"collection_id,omitempty"`
	Message      string                `json:"message"`
	MediaURLs    []string              `json:"media_urls,omitempty"`
	ReplyToID    string                `json:"reply_to_id,omitempty"`
	QuoteID      string                `json:"quote_id,omitempty"`
	Status       string                `json:"status"`
	Attempt      int                   `json:"attempt"`
	MaxAttempts  int                   `json:"max_attempts"`
	LastError    *ErrorDTO             `json:"last_error,omitempty"`
	Result       *entity.PublishResult `json:"result,omitempty"`
	ScheduledAt  *time.Time            `json:"scheduled_at,omitempty"`
	NextRetryAt  *time.Time            `json:"next_retry_at,omitempty"`
	ProcessedAt  *time.Time            `json:"processed_at,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

// ListResponse wraps one page of GET /jobs results. Count is the number
// of jobs on this page.
type ListResponse struct {
	Jobs       []JobDTO            `json:"jobs"`
	Count      int                 `json:"count"`
	Pagination pagination.Metadata `json:"pagination"`
}

// VerifyResponse is returned by POST /platforms/{platform}/verify.
type VerifyResponse struct {
	Platform string `json:"platform"`
	Valid    bool   `json:"valid"`
}

// PlatformDTO describes one supported platform.
type PlatformDTO struct {
	Name          string `json:"name"`
	Configured    bool   `json:"configured"`
	MaxCharacters int    `json:"max_characters"`
	MaxMedia      int    `json:"max_media"`
}

func (r CreateRequest) spec(platform entity.Platform) entity.JobSpec {
	return entity.JobSpec{
		Platform:     platform,
		ContentID:    r.ContentID,
		CollectionID: r.CollectionID,
		Message:      r.Message,
		MediaURLs:    r.MediaURLs,
		ScheduledAt:  r.ScheduledAt,
		MaxAttempts:  r.MaxAttempts,
		ReplyToID:    r.ReplyToID,
		QuoteID:      r.QuoteID,
	}
}

func toDTO(j *entity.Job) JobDTO {
	dto := JobDTO{
		ID:           j.ID,
		Platform:     string(j.Platform),
		ContentID:    j.ContentID,
		CollectionID: j.CollectionID,
		Message:      j.Message,
		MediaURLs:    j.MediaURLs,
		ReplyToID:    j.ReplyToID,
		QuoteID:      j.QuoteID,
		Status:       string(j.Status),
		Attempt:      j.Attempt,
		MaxAttempts:  j.MaxAttempts,
		Result:       j.Result,
		ScheduledAt:  j.ScheduledAt,
		NextRetryAt:  j.NextRetryAt,
		ProcessedAt:  j.ProcessedAt,
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
	}
	if e := j.LastError; e != nil {
		dto.LastError = &ErrorDTO{
			Code:        string(e.Code),
			Message:     e.Message,
			UserMessage: e.UserMessage(),
			Retryable:   e.Retryable(),
			StatusCode:  e.StatusCode,
			Details:     e.Details,
			Timestamp:   e.Timestamp,
		}
	}
	return dto
}
