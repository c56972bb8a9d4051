package model

import (
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"launchkit-core/internal/domain"

	"github.com/google/uuid"
)

type JobType string

const (
	JobTypeSummarize JobType = "SUMMARIZE"
	JobTypeClassify  JobType = "CLASSIFY"
	JobTypeSentiment JobType = "SENTIMENT"
	JobTypeExtract   JobType = "EXTRACT"
	JobTypeTranslate JobType = "TRANSLATE"
)

// JobTypes lists every job type accepted at admission.
var JobTypes = []JobType{
	JobTypeSummarize,
	JobTypeClassify,
	JobTypeSentiment,
	JobTypeExtract,
	JobTypeTranslate,
}

// ParseJobType accepts either the canonical upper-case name or the
// lower-case route form ("summarize").
func ParseJobType(s string) (JobType, error) {
	t := JobType(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range JobTypes {
		if t == known {
			return t, nil
		}
	}
	return "", domain.ErrInvalidJobType
}

type JobStatus string

const (
	JobStatusQueued     JobStatus = "QUEUED"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusSucceeded  JobStatus = "SUCCEEDED"
	JobStatusFailed     JobStatus = "FAILED"
)

// validTransitions defines the allowed job status transitions.
// PROCESSING -> PROCESSING covers a task re-claimed after a lost lease or a retry.
var validTransitions = map[JobStatus][]JobStatus{
	JobStatusQueued:     {JobStatusProcessing, JobStatusFailed},
	JobStatusProcessing: {JobStatusProcessing, JobStatusSucceeded, JobStatusFailed},
}

// IsTerminal reports whether no further transitions are permitted.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

// CanTransitionTo reports whether moving from s to next is allowed.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Job is one unit of AI work owned by an organization.
type Job struct {
	ID          string          `json:"id"`
	OrgID       string          `json:"orgId"`
	Type        JobType         `json:"type"`
	Status      JobStatus       `json:"status"`
	Input       json.RawMessage `json:"input"`
	Output      json.RawMessage `json:"output,omitempty"`
	Error       *string         `json:"error,omitempty"`
	TokenUsed   int64           `json:"tokenUsed"`
	CostCents   int64           `json:"costCents"`
	CreatedAt   time.Time       `json:"createdAt"`
	StartedAt   *time.Time      `json:"startedAt,omitempty"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}

// NewJob validates the input payload and builds a QUEUED job.
func NewJob(orgID string, jobType JobType, input json.RawMessage) (*Job, error) {
	if orgID == "" {
		return nil, domain.ErrInvalidArgument
	}
	jobType, err := ParseJobType(string(jobType))
	if err != nil {
		return nil, err
	}
	if !isJSONObject(input) {
		return nil, domain.ErrInvalidArgument
	}
	return &Job{
		ID:        uuid.NewString(),
		OrgID:     orgID,
		Type:      jobType,
		Status:    JobStatusQueued,
		Input:     input,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// JobResult carries the values written by the terminal success transition.
type JobResult struct {
	Output      json.RawMessage
	TokenUsed   int64
	CostCents   int64
	CompletedAt time.Time
}

// JobCreated is returned synchronously by the admission path.
type JobCreated struct {
	ID        string    `json:"id"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// JobView is a job enriched with live queue metadata while it is not terminal.
type JobView struct {
	*Job
	QueueState        string `json:"queueState,omitempty"`
	QueueProgress     *int   `json:"queueProgress,omitempty"`
	QueueAttempts     *int   `json:"queueAttempts,omitempty"`
	QueueFailedReason string `json:"queueFailedReason,omitempty"`
}

// JobPage is one page of an organization's jobs, newest first.
type JobPage struct {
	Jobs   []*Job `json:"jobs"`
	Total  int    `json:"total"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

// EstimateTokens approximates token usage as one token per four characters.
func EstimateTokens(text string) int64 {
	n := int64(utf8.RuneCountInString(text))
	return (n + 3) / 4
}

func isJSONObject(raw json.RawMessage) bool {
	var obj map[string]json.RawMessage
	return len(raw) > 0 && json.Unmarshal(raw, &obj) == nil && obj != nil
}

// AIJobTask is the work-queue payload for one job. The task id equals JobID.
type AIJobTask struct {
	JobID string          `json:"jobId"`
	OrgID string          `json:"orgId"`
	Type  JobType         `json:"type"`
	Input json.RawMessage `json:"input"`
}

// JobCompletedEvent is the data of a job.completed webhook.
type JobCompletedEvent struct {
	JobID       string          `json:"jobId"`
	Type        JobType         `json:"type"`
	Status      JobStatus       `json:"status"`
	Result      json.RawMessage `json:"result"`
	TokensUsed  int64           `json:"tokensUsed"`
	CostCents   int64           `json:"costCents"`
	CompletedAt string          `json:"completedAt"`
}

// JobFailedEvent is the data of a job.failed webhook.
type JobFailedEvent struct {
	JobID    string    `json:"jobId"`
	Type     JobType   `json:"type"`
	Status   JobStatus `json:"status"`
	Error    string    `json:"error"`
	FailedAt string    `json:"failedAt"`
	Attempts int       `json:"attempts"`
}
