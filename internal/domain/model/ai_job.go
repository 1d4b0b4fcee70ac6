package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"notes-ai-jobs/internal/domain"
)

// JobType enumerates the heavy AI views that run asynchronously.
type JobType string

const (
	JobTypeDigest          JobType = "digest"
	JobTypeGraph           JobType = "graph"
	JobTypeRecommendations JobType = "recommendations"
	JobTypeContradictions  JobType = "contradictions"
)

// AllJobTypes returns the closed set of job types in a stable order.
func AllJobTypes() []JobType {
	return []JobType{JobTypeDigest, JobTypeGraph, JobTypeRecommendations, JobTypeContradictions}
}

// ParseJobType maps a raw string (e.g. a route segment) onto the enum.
func ParseJobType(s string) (JobType, error) {
	t := JobType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllJobTypes() {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", domain.ErrUnknownJobType, s)
}

// Category returns the budget category the job type is charged against.
func (t JobType) Category() BudgetCategory {
	return BudgetCategoryHeavy
}

// UsesInput reports whether a request's input feeds the computation and so
// belongs in the cache key. The heavy views read only the user's notes.
func (t JobType) UsesInput() bool {
	return false
}

// BudgetCategory groups job types that share one daily counter.
type BudgetCategory string

const BudgetCategoryHeavy BudgetCategory = "heavy"

type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusActive    JobStatus = "active"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransitionTo reports whether a write moving the job from s to next keeps
// the lifecycle monotonic: queued -> active -> {completed|failed}.
// active -> active is allowed so every attempt can re-mark the job.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusQueued:
		return next == JobStatusActive || next.IsTerminal()
	case JobStatusActive:
		return next == JobStatusActive || next.IsTerminal()
	default:
		return false
	}
}

// Job is the durable record of one submitted heavy request.
type Job struct {
	ID        string
	UserID    int64
	Type      JobType
	Status    JobStatus
	Result    json.RawMessage // set only when completed
	Error     string          // set only when failed
	CacheKey  string
	Attempts  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewJob builds a queued job row for a freshly enqueued request.
func NewJob(id string, userID int64, jobType JobType, cacheKey string) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:        id,
		UserID:    userID,
		Type:      jobType,
		Status:    JobStatusQueued,
		CacheKey:  cacheKey,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// JobUpdate is a single status write issued by the worker owning the attempt.
// Attempt is the 1-based delivery number; stores keep the highest seen.
type JobUpdate struct {
	Status  JobStatus
	Result  json.RawMessage
	Error   string
	Attempt int
}

// JobPayload travels through the queue with every delivery.
type JobPayload struct {
	UserID   int64  `json:"userId"`
	CacheKey string `json:"cacheKey"`
	Input    string `json:"input,omitempty"`
}

// JobState is the answer served to a polling client.
type JobState struct {
	Status JobStatus       `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// State projects the durable row onto the polling answer.
func (j *Job) State() *JobState {
	st := &JobState{Status: j.Status}
	switch j.Status {
	case JobStatusCompleted:
		st.Result = j.Result
	case JobStatusFailed:
		st.Error = j.Error
	}
	return st
}

// CacheKey is the deterministic fingerprint of a request, e.g. "digest:42"
// or "graph:42:<input>" when a disambiguator is present.
func CacheKey(t JobType, userID int64, disambiguator string) string {
	key := fmt.Sprintf("%s:%d", t, userID)
	if disambiguator != "" {
		key += ":" + disambiguator
	}
	return key
}

// BudgetKey names the daily counter for a user and category, e.g. "budget:heavy:42".
func BudgetKey(userID int64, c BudgetCategory) string {
	return fmt.Sprintf("budget:%s:%d", c, userID)
}
