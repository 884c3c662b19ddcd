// Package jobcodec encodes the JSON columns shared by the SQL job stores.
package jobcodec

import (
	"encoding/json"
	"fmt"

	"social-relay/internal/domain/entity"
)

// Columns holds a job's JSON encoded columns. LastError and Result are nil
// when the job has none, which the stores write as NULL.
type Columns struct {
	MediaURLs []byte
	LastError []byte
	Result    []byte
}

// Encode marshals the JSON columns of job. A nil media list encodes as "[]".
func Encode(job *entity.Job) (Columns, error) {
	var (
		c   Columns
		err error
	)
	c.MediaURLs = []byte("[]")
	if job.MediaURLs != nil {
		if c.MediaURLs, err = json.Marshal(job.MediaURLs); err != nil {
			return Columns{}, fmt.Errorf("marshal media_urls: %w", err)
		}
	}
	if job.LastError != nil {
		if c.LastError, err = json.Marshal(job.LastError); err != nil {
			return Columns{}, fmt.Errorf("marshal last_error: %w", err)
		}
	}
	if job.Result != nil {
		if c.Result, err = json.Marshal(job.Result); err != nil {
			return Columns{}, fmt.Errorf("marshal result: %w", err)
		}
	}
	return c, nil
}

// Decode fills job's media, last error and result from c.
func Decode(job *entity.Job, c Columns) error {
	if len(c.MediaURLs) > 0 {
		if err := json.Unmarshal(c.MediaURLs, &job.MediaURLs); err != nil {
			return fmt.Errorf("unmarshal media_urls: %w", err)
		}
	}
	if len(c.Result) > 0 {
		var res entity.PublishResult
		if err := json.Unmarshal(c.Result, &res); err != nil {
			return fmt.Errorf("unmarshal result: %w", err)
		}
		job.Result = &res
	}
	if len(c.LastError) > 0 {
		se, err := decodeServiceError(c.LastError)
		if err != nil {
			return fmt.Errorf("unmarshal last_error: %w", err)
		}
		job.LastError = se
	}
	return nil
}

// decodeServiceError rebuilds the error through NewServiceError so the
// retry flag follows the stored code.
func decodeServiceError(data []byte) (*entity.ServiceError, error) {
	var stored entity.ServiceError
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, err
	}
	opts := []entity.ServiceErrorOption{entity.WithStatus(stored.StatusCode)}
	for k, v := range stored.Details {
		opts = append(opts, entity.WithDetail(k, v))
	}
	se := entity.NewServiceError(stored.Service, stored.Code, stored.Message, opts...)
	se.Timestamp = stored.Timestamp
	return se, nil
}

// Nullable returns b, or an untyped nil for an empty column so drivers bind NULL.
func Nullable(b []byte) any {
	if b == nil {
		return nil
	}
	return b
}
