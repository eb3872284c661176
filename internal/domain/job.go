package domain

import "context"

// JobInput holds generation parameters forwarded to the worker as {"input": ...}.
// The client does not inspect it.
type JobInput map[string]interface{}

// JobHandle identifies an asynchronous job on the remote endpoint
type JobHandle string

// JobStatus is the state reported by the remote endpoint
type JobStatus string

const (
	StatusInQueue    JobStatus = "IN_QUEUE"
	StatusInProgress JobStatus = "IN_PROGRESS"
	StatusCompleted  JobStatus = "COMPLETED"
	StatusFailed     JobStatus = "FAILED"
	StatusCancelled  JobStatus = "CANCELLED"
)

// IsTerminal reports whether no further transition follows s.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Known reports whether s belongs to the documented status vocabulary.
func (s JobStatus) Known() bool {
	switch s {
	case StatusInQueue, StatusInProgress, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// JobOutput is the worker payload attached to a finished job
type JobOutput struct {
	Images    []string `json:"images"`
	Seed      int64    `json:"seed"`
	NumImages int      `json:"num_images"`
	S3URLs    []string `json:"s3_urls,omitempty"`
	ImageURL  string   `json:"image_url,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// JobResult is the status document returned by runsync and status calls
type JobResult struct {
	ID            string     `json:"id"`
	Status        JobStatus  `json:"status"`
	Output        *JobOutput `json:"output,omitempty"`
	ExecutionTime int64      `json:"executionTime,omitempty"`
	DelayTime     int64      `json:"delayTime,omitempty"`
	Error         string     `json:"error,omitempty"`
}

// Images returns the base64 artifacts of the result, if any.
func (r *JobResult) Images() []string {
	if r == nil || r.Output == nil {
		return nil
	}
	return r.Output.Images
}

// CancelResponse is the acknowledgement returned by the cancel call
type CancelResponse struct {
	ID     string    `json:"id"`
	Status JobStatus `json:"status"`
}

// JobClient defines the remote operations of a serverless generation endpoint
type JobClient interface {
	// RunSync submits input and blocks until the endpoint returns a result
	RunSync(ctx context.Context, input JobInput) (*JobResult, error)

	// Run submits input and returns the handle of the queued job
	Run(ctx context.Context, input JobInput) (JobHandle, error)

	// Status fetches the current state of a job
	Status(ctx context.Context, handle JobHandle) (*JobResult, error)

	// Cancel asks the endpoint to cancel a job
	Cancel(ctx context.Context, handle JobHandle) (*CancelResponse, error)
}
