package executor

import "github.com/lucernlabs/recordflow/internal/bulkclient"

// MaxBatchSize is the largest batch this executor will submit in one
// bulk request, matching the server's documented bulk-request cap
// (§4.5).
const MaxBatchSize = 1000

// Operation is the bulk write kind a Batch request performs.
type Operation int

const (
	OpCreate Operation = iota
	OpUpdate
	OpUpsert
	OpDelete
)

func (o Operation) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpUpsert:
		return "upsert"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// batch is one partition of the caller's records, remembering the
// offset into the original slice so per-record errors can be reported
// against the caller's own indices.
type batch struct {
	offset  int
	records []bulkclient.Record
}

// partition splits records into batches of at most size records each.
func partition(records []bulkclient.Record, size int) []batch {
	if size <= 0 || size > MaxBatchSize {
		size = MaxBatchSize
	}
	batches := make([]batch, 0, (len(records)+size-1)/size)
	for offset := 0; offset < len(records); offset += size {
		end := offset + size
		if end > len(records) {
			end = len(records)
		}
		batches = append(batches, batch{offset: offset, records: records[offset:end]})
	}
	return batches
}
