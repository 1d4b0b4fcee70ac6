// Package client talks to the heavy-view HTTP API and implements the
// polling contract for queued jobs.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"notes-ai-jobs/internal/domain/model"
)

var (
	ErrPollTimeout = errors.New("Job timed out.")
	ErrRateLimited = errors.New("daily heavy AI limit reached")
	ErrJobNotFound = errors.New("job not found")
	errEmptyJobID  = errors.New("server returned an empty job id")
)

const defaultFailText = "Job failed"

// JobFailedError carries the server's error string verbatim.
type JobFailedError struct {
	Message string
}

func (e *JobFailedError) Error() string { return e.Message }

// APIError is any non-success answer the client does not map to a sentinel.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Code, e.Message)
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Submission is the answer to a view request: a result or a job id.
type Submission struct {
	Result json.RawMessage
	JobID  string
}

// Request asks for a heavy view.
func (c *Client) Request(ctx context.Context, jobType model.JobType, input string) (Submission, error) {
	var body io.Reader
	if input != "" {
		b, err := json.Marshal(map[string]string{"input": input})
		if err != nil {
			return Submission{}, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	code, raw, err := c.do(ctx, http.MethodPost, "/api/"+string(jobType), body)
	if err != nil {
		return Submission{}, err
	}
	switch code {
	case http.StatusOK:
		return Submission{Result: raw}, nil
	case http.StatusAccepted:
		var q struct {
			JobID string `json:"job_id"`
		}
		if err := json.Unmarshal(raw, &q); err != nil {
			return Submission{}, fmt.Errorf("decode queued response: %w", err)
		}
		if q.JobID == "" {
			return Submission{}, errEmptyJobID
		}
		return Submission{JobID: q.JobID}, nil
	case http.StatusTooManyRequests:
		return Submission{}, ErrRateLimited
	default:
		return Submission{}, apiError(code, raw)
	}
}

// Status fetches the current state of a job once.
func (c *Client) Status(ctx context.Context, jobID string) (*model.JobState, error) {
	code, raw, err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(jobID), nil)
	if err != nil {
		return nil, err
	}
	switch code {
	case http.StatusOK:
		var st model.JobState
		if err := json.Unmarshal(raw, &st); err != nil {
			return nil, fmt.Errorf("decode job state: %w", err)
		}
		return &st, nil
	case http.StatusNotFound:
		return nil, ErrJobNotFound
	default:
		return nil, apiError(code, raw)
	}
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp.StatusCode, raw, nil
}

func apiError(code int, raw []byte) error {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &e) == nil && e.Error != "" {
		return &APIError{Code: code, Message: e.Error}
	}
	return &APIError{Code: code, Message: http.StatusText(code)}
}
