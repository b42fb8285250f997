package status

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle of a video record.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusProcessed  Status = "processed"
	StatusFailed     Status = "failed"
)

// StaleReason is the error recorded when the reconciler fails an abandoned job.
const StaleReason = "processing abandoned: no progress before stale timeout"

var allStatuses = []Status{StatusProcessing, StatusProcessed, StatusFailed}

// AllStatuses returns every known status in lifecycle order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus converts user input into a Status.
func ParseStatus(value string) (Status, bool) {
	candidate := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == candidate {
			return status, true
		}
	}
	return "", false
}

// ErrInvalidRecord reports a record that cannot be persisted.
var ErrInvalidRecord = errors.New("invalid status record")

// Record is the persisted status of one video, keyed by video id.
type Record struct {
	ID        string    `json:"id"`
	UID       string    `json:"uid"`
	Status    Status    `json:"status"`
	Filename  string    `json:"filename,omitempty"`
	Error     string    `json:"error,omitempty"`
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsTerminal reports whether no job is working on the record.
func (r *Record) IsTerminal() bool {
	return r != nil && r.Status != StatusProcessing
}

// Patch is a partial update. Nil fields are left untouched; a pointer to an
// empty string clears the field.
type Patch struct {
	UID      *string
	Status   *Status
	Filename *string
	Error    *string
}

// Processed returns the patch that finalizes a successful job.
func Processed(filename string) Patch {
	status := StatusProcessed
	cleared := ""
	return Patch{Status: &status, Filename: &filename, Error: &cleared}
}

// Failed returns the patch that records a failed job.
func Failed(message string) Patch {
	status := StatusFailed
	if strings.TrimSpace(message) == "" {
		message = "unknown failure"
	}
	return Patch{Status: &status, Error: &message}
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.UID == nil && p.Status == nil && p.Filename == nil && p.Error == nil
}

func (p Patch) validate() error {
	if p.IsEmpty() {
		return fmt.Errorf("%w: patch sets no fields", ErrInvalidRecord)
	}
	if p.Status != nil {
		if _, ok := ParseStatus(string(*p.Status)); !ok {
			return fmt.Errorf("%w: unknown status %q", ErrInvalidRecord, *p.Status)
		}
	}
	return nil
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC()
	}
	return time.Time{}
}
