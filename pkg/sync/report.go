package sync

import (
	"fmt"
	"time"

	"github.com/sidkik/parasync/pkg/config"
	"github.com/sidkik/parasync/pkg/tree"
)

// Status summarizes how an apply went.
type Status string

const (
	// StatusSuccess means that every operation succeeded.
	StatusSuccess Status = "success"

	// StatusPartial means that some operations failed.
	StatusPartial Status = "partial"

	// StatusFailed means that no operation succeeded.
	StatusFailed Status = "failed"
)

// Failure is an operation that couldn't be applied.
type Failure struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

func (f Failure) String() string {
	return fmt.Sprintf("%s: %s", f.Path, f.Reason)
}

// TrashRecord tracks a file that was moved to the trash instead of being
// deleted or overwritten.
type TrashRecord struct {
	OriginalRelativePath string    `json:"originalRelativePath"`
	TrashedPath          string    `json:"trashedPath"`
	TrashedAt            time.Time `json:"trashedAt"`
	Side                 tree.Side `json:"side"`
}

// SyncReport is the outcome of an apply.
type SyncReport struct {
	Pair string      `json:"pair"`
	Mode config.Mode `json:"mode"`

	Copied  []string  `json:"copied"`
	Trashed []string  `json:"trashed"`
	Failed  []Failure `json:"failed"`

	// Conflicts are the paths that were modified on both sides at
	// indistinguishable times. They're resolved in favor of the local copy.
	Conflicts []string `json:"conflicts,omitempty"`

	TrashRecords     []TrashRecord `json:"trashRecords,omitempty"`
	BytesTransferred int64         `json:"bytesTransferred"`

	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`

	// Cancelled is set if the apply was interrupted before every operation
	// was attempted.
	Cancelled bool `json:"cancelled,omitempty"`
}

// Status returns the overall status of the apply.
func (r SyncReport) Status() Status {
	switch {
	case len(r.Failed) == 0 && !r.Cancelled:
		return StatusSuccess
	case len(r.Copied) == 0 && len(r.Trashed) == 0:
		return StatusFailed
	}
	return StatusPartial
}

func (r *SyncReport) fail(path string, err error) {
	r.Failed = append(r.Failed, Failure{Path: path, Reason: err.Error()})
}
