package model

import (
	"strings"
	"time"
)

// RequestStatus represents the lifecycle state of a diagram request.
type RequestStatus string

const (
	RequestStatusPending    RequestStatus = "pending"
	RequestStatusProcessing RequestStatus = "processing"
	RequestStatusCompleted  RequestStatus = "completed"
)

const (
	// DefaultDiagramType is used when a client omits context.diagramType.
	DefaultDiagramType = "architecture"

	// DefaultFormat is the primary diagram language.
	DefaultFormat = "graphviz"

	// DefaultRetentionDays is the purge horizon for old requests.
	DefaultRetentionDays = 7
)

// IsTerminal reports whether no further transitions are allowed.
func (s RequestStatus) IsTerminal() bool {
	return s == RequestStatusCompleted
}

// Request is one unit of diagram work awaiting human fulfillment.
type Request struct {
	ID          int64         `json:"id"`
	Message     string        `json:"message"`
	DiagramType string        `json:"diagramType"`
	Format      string        `json:"format"`
	CurrentCode string        `json:"currentCode,omitempty"`
	Status      RequestStatus `json:"status"`
	CreatedAt   time.Time     `json:"createdAt"`
	ProcessedAt *time.Time    `json:"processedAt,omitempty"`
}

// Age returns how long ago the request was created.
func (r *Request) Age() time.Duration {
	return time.Since(r.CreatedAt)
}

// Response is the fulfiller's answer to a request.
type Response struct {
	ID          int64     `json:"id"`
	RequestID   int64     `json:"requestId"`
	DiagramCode string    `json:"diagramCode"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NewRequest holds the fields needed to create a request.
type NewRequest struct {
	Message     string
	DiagramType string
	Format      string
	CurrentCode string
}

// Validate checks the prompt and fills in default kind and format.
func (r *NewRequest) Validate() error {
	if strings.TrimSpace(r.Message) == "" {
		return ErrMessageRequired
	}
	if r.DiagramType == "" {
		r.DiagramType = DefaultDiagramType
	}
	if r.Format == "" {
		r.Format = DefaultFormat
	}
	return nil
}

// PurgeResult reports how many rows a purge removed.
type PurgeResult struct {
	Responses int64 `json:"responses"`
	Requests  int64 `json:"requests"`
}
