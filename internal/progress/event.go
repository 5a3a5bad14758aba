// Package progress implements the structured event stream shared
// across every phase (C10): a single channel-based bus producers emit
// onto at a throttled cadence, with error-taxonomy-aware error
// events. The core never chooses a renderer (§4.10); consumers
// (console, JSON-lines, the optional WebSocket stream in stream.go)
// subscribe to the same bus.
package progress

import (
	"time"

	"github.com/google/uuid"
)

// Phase names one stage of a migration run, per §4.10.
type Phase string

const (
	PhaseAnalyzing Phase = "analyzing"
	PhaseExporting Phase = "exporting"
	PhaseImporting Phase = "importing"
	PhaseDeferred  Phase = "deferred"
	PhaseM2M       Phase = "m2m"
	PhaseComplete  Phase = "complete"
	PhaseError     Phase = "error"
)

// Event is one point in the progress stream, per §4.10's field list
// plus the error-event shape from §7.
type Event struct {
	ID           string
	Timestamp    time.Time
	Phase        Phase
	Entity       string
	Field        string
	Relationship string
	Tier         int
	Current      int
	Total        int
	RPS          float64
	Message      string

	// Error-event fields, set only when Phase == PhaseError, per §7.
	ErrorKind    string
	Source       string
	RecordIndex  int
	Code         string
}

func newEvent(phase Phase) Event {
	return Event{ID: uuid.New().String(), Timestamp: time.Now(), Phase: phase}
}

// Progress builds a plain progress event for phase/entity at
// current/total.
func Progress(phase Phase, entity string, current, total int) Event {
	e := newEvent(phase)
	e.Entity = entity
	e.Current = current
	e.Total = total
	return e
}

// Tiered builds a progress event additionally carrying a tier index,
// for Phase B's per-tier reporting.
func Tiered(phase Phase, tier int, entity string, current, total int) Event {
	e := Progress(phase, entity, current, total)
	e.Tier = tier
	return e
}

// Errorf builds an error event, per §7's `{kind, source?, entity?,
// record_index?, code?, message}`.
func Errorf(kind, source, entity string, recordIndex int, code, message string) Event {
	e := newEvent(PhaseError)
	e.ErrorKind = kind
	e.Source = source
	e.Entity = entity
	e.RecordIndex = recordIndex
	e.Code = code
	e.Message = message
	return e
}

// Complete builds the terminal success/partial-success event.
func Complete(message string) Event {
	e := newEvent(PhaseComplete)
	e.Message = message
	return e
}
