package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JobStatus represents the state of a remote print job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

func (s JobStatus) String() string {
	return string(s)
}

func (s *JobStatus) Scan(value interface{}) error {
	switch v := value.(type) {
	case string:
		*s = JobStatus(v)
	case []byte:
		*s = JobStatus(v)
	}
	return nil
}

func (s JobStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// JobPayload is the opaque JSON document of a job, stored as text
type JobPayload json.RawMessage

func (p JobPayload) MarshalJSON() ([]byte, error) {
	if len(p) == 0 {
		return []byte("null"), nil
	}
	return p, nil
}

func (p *JobPayload) UnmarshalJSON(data []byte) error {
	*p = append((*p)[0:0], data...)
	return nil
}

func (p *JobPayload) Scan(value interface{}) error {
	switch v := value.(type) {
	case string:
		*p = JobPayload(v)
	case []byte:
		*p = append((*p)[0:0], v...)
	case nil:
		*p = nil
	default:
		return fmt.Errorf("cannot scan %T into JobPayload", value)
	}
	return nil
}

func (p JobPayload) Value() (driver.Value, error) {
	if len(p) == 0 {
		return nil, nil
	}
	return string(p), nil
}

// JobType is what the agent is asked to print
type JobType string

const (
	JobTypeKOT  JobType = "kot"
	JobTypeBill JobType = "bill"
	JobTypeTest JobType = "test"
)

// Valid reports whether the job type is known
func (t JobType) Valid() bool {
	return t == JobTypeKOT || t == JobTypeBill || t == JobTypeTest
}

// PrintJob is a job stored in the remote queue. One job is one physical
// print attempt; the payload is opaque to the queue.
type PrintJob struct {
	ID           string     `gorm:"primaryKey;size:36" json:"id"`
	JobType      JobType    `gorm:"size:16;not null" json:"job_type"`
	PrinterRole  string     `gorm:"size:32;index" json:"printer_role,omitempty"`
	Payload      JobPayload `gorm:"type:text" json:"payload"`
	Status       JobStatus  `gorm:"size:16;index;not null" json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	AgentID      string     `gorm:"size:64" json:"agent_id,omitempty"`
	ClaimToken   string     `gorm:"size:36;index" json:"-"`
	Attempts     int        `gorm:"default:0" json:"attempts"`
	CreatedAt    time.Time  `gorm:"index" json:"created_at"`
	PickedAt     *time.Time `json:"picked_at,omitempty"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// JobStatusView is what status lookups return
type JobStatusView struct {
	ID           string     `json:"id"`
	Status       JobStatus  `json:"status"`
	ErrorMessage string     `json:"error_message"`
	CreatedAt    time.Time  `json:"created_at"`
	ProcessedAt  *time.Time `json:"processed_at"`
}

// StatusView returns the read-only projection used by status lookups
func (j *PrintJob) StatusView() JobStatusView {
	return JobStatusView{
		ID:           j.ID,
		Status:       j.Status,
		ErrorMessage: j.ErrorMessage,
		CreatedAt:    j.CreatedAt,
		ProcessedAt:  j.ProcessedAt,
	}
}

// RawPayload is the payload of jobs the reference agent understands: either
// finalized ESC/POS bytes, or an HTML document the agent rasterizes itself.
type RawPayload struct {
	Printer string `json:"printer,omitempty"`
	Address string `json:"address,omitempty"` // host[:port] of the network printer
	Paper   string `json:"paper,omitempty"`
	Data    []byte `json:"data,omitempty"` // base64 in JSON
	HTML    string `json:"html,omitempty"`
}
