package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/search-harvest/internal/ledger"
)

// GlobalState is the state of one harvest invocation.
type GlobalState string

// Global states. A run starts Idle, becomes Running and ends in one of the
// terminal states.
const (
	StateIdle      GlobalState = "idle"
	StateRunning   GlobalState = "running"
	StateDone      GlobalState = "done"
	StateExhausted GlobalState = "exhausted"
	StateError     GlobalState = "error"
)

// DateStatus is the outcome of one candidate date in a run.
type DateStatus string

// Date outcomes. Partial and Pending dates are picked up by the next run.
const (
	DateCompleted DateStatus = "completed"
	DatePartial   DateStatus = "partial"
	DateSkipped   DateStatus = "skipped"
	DateFailed    DateStatus = "failed"
	DatePending   DateStatus = "pending"
)

// DateResult reports what happened to one date.
type DateResult struct {
	Date        time.Time  `json:"date" yaml:"date"`
	Status      DateStatus `json:"status" yaml:"status"`
	StartOffset int64      `json:"start_offset" yaml:"start_offset"`
	Offset      int64      `json:"offset" yaml:"offset"`
	Pages       int        `json:"pages" yaml:"pages"`
	Fetched     int64      `json:"fetched" yaml:"fetched"`
	Records     int64      `json:"records" yaml:"records"`
	Error       string     `json:"error,omitempty" yaml:"error,omitempty"`
	ErrorKind   string     `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
}

// Summary is the report of one invocation, used for notifications.
type Summary struct {
	RunID     uuid.UUID           `json:"run_id" yaml:"run_id"`
	Mode      Mode                `json:"mode" yaml:"mode"`
	State     GlobalState         `json:"state" yaml:"state"`
	StartedAt time.Time           `json:"started_at" yaml:"started_at"`
	Elapsed   time.Duration       `json:"elapsed" yaml:"elapsed"`
	Budget    int                 `json:"budget" yaml:"budget"`
	CallsUsed int                 `json:"calls_used" yaml:"calls_used"`
	StoppedBy string              `json:"stopped_by,omitempty" yaml:"stopped_by,omitempty"`
	Fallback  bool                `json:"fallback,omitempty" yaml:"fallback,omitempty"`
	Pruned    *ledger.PruneResult `json:"pruned,omitempty" yaml:"pruned,omitempty"`
	Dates     []DateResult        `json:"dates" yaml:"dates"`
}

// TotalRecords sums the aggregated rows written across dates.
func (s *Summary) TotalRecords() int64 {
	var n int64
	for _, d := range s.Dates {
		n += d.Records
	}
	return n
}

// Count returns the number of dates with status.
func (s *Summary) Count(status DateStatus) int {
	n := 0
	for _, d := range s.Dates {
		if d.Status == status {
			n++
		}
	}
	return n
}

// Failures returns the failed dates.
func (s *Summary) Failures() []DateResult {
	var out []DateResult
	for _, d := range s.Dates {
		if d.Status == DateFailed {
			out = append(out, d)
		}
	}
	return out
}
