package executor

import (
	"time"

	"github.com/lucernlabs/recordflow/internal/bulkclient"
)

// RecordError is one record's failure, indexed against the caller's
// original input slice (not the batch it landed in).
type RecordError struct {
	Index   int
	ID      string
	Code    string
	Message string
}

// Result aggregates every batch's outcome for one Execute call, per
// §4.5's continue-on-error semantics: a failed batch does not stop
// the remaining batches from running.
type Result struct {
	TotalRecords int
	SuccessCount int
	FailureCount int
	IDs          []string // indexed like the input; empty string at a failed index
	Errors       []RecordError
	Duration     time.Duration
}

// AllSucceeded reports whether every record in the call succeeded.
func (r *Result) AllSucceeded() bool { return r.FailureCount == 0 && r.TotalRecords > 0 }

// IsPartialSuccess reports whether some records succeeded and some
// failed.
func (r *Result) IsPartialSuccess() bool { return r.SuccessCount > 0 && r.FailureCount > 0 }

func newResult(total int) *Result {
	return &Result{TotalRecords: total, IDs: make([]string, total)}
}

func (r *Result) absorb(b batch, br bulkclient.BatchResult) {
	r.SuccessCount += br.SuccessCount
	r.FailureCount += br.FailureCount
	for i, id := range br.IDs {
		if id != "" {
			r.IDs[b.offset+i] = id
		}
	}
	for _, e := range br.Errors {
		r.Errors = append(r.Errors, RecordError{
			Index:   b.offset + e.Index,
			ID:      e.ID,
			Code:    e.Code,
			Message: e.Message,
		})
	}
}

func (r *Result) absorbFailure(b batch, err error) {
	r.FailureCount += len(b.records)
	for i := range b.records {
		r.Errors = append(r.Errors, RecordError{
			Index:   b.offset + i,
			Message: err.Error(),
		})
	}
}
