package importer

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/lucernlabs/recordflow/internal/archive"
	"github.com/lucernlabs/recordflow/internal/bulkclient"
	"github.com/lucernlabs/recordflow/internal/graph"
	"github.com/lucernlabs/recordflow/internal/progress"
	"github.com/lucernlabs/recordflow/internal/schema"
)

// Options configures one import run, per §4.9/§7.
type Options struct {
	Mode                Mode
	ContinueOnError     bool
	SkipMissingColumns  bool
	MaxParallelEntities int
	BatchOptions        bulkclient.BatchOptions

	// TargetSource is the connection pool source name to write
	// against.
	TargetSource string
}

func (o Options) maxParallelEntities() int {
	if o.MaxParallelEntities <= 0 {
		return 4
	}
	return o.MaxParallelEntities
}

// PhaseError is one record- or entity-scoped failure surfaced by a
// phase, matching §7's error-event shape.
type PhaseError struct {
	Entity      string
	Field       string
	RecordIndex int
	SourceID    string
	Kind        string
	Code        string
	Message     string
}

// PhaseResult is what every phase processor returns, per §4.9.
type PhaseResult struct {
	Success      bool
	Processed    int
	SuccessCount int
	FailureCount int
	Duration     time.Duration
	Errors       []PhaseError
}

// ImportContext is the shared, mutable state threaded through every
// phase, per §4.9's `ImportContext{data, plan, id_map, options,
// progress, field_metadata}`.
type ImportContext struct {
	Schema *schema.Schema
	Plan   *graph.ExecutionPlan
	IDMap  *IdentityMap
	Options Options
	Progress *progress.Emitter

	// FieldMetadata is populated by Phase A: entity (lowercased) ->
	// field logical name (lowercased) -> metadata.
	FieldMetadata map[string]map[string]bulkclient.FieldMetadata

	// Associations holds the source-side m2m links read from the
	// archive, keyed by relationship name, for Phase D.
	Associations map[string][]archive.Association

	dataMu sync.RWMutex
	data   map[string][]bulkclient.Record // entity (lowercased) -> records, as loaded from the archive
}

// NewContext builds an ImportContext over data and associations (as
// loaded from an archive.Reader, keyed by entity logical name and
// relationship name respectively).
func NewContext(s *schema.Schema, plan *graph.ExecutionPlan, data map[string][]bulkclient.Record, associations map[string][]archive.Association, opts Options, bus *progress.Bus) *ImportContext {
	lowered := make(map[string][]bulkclient.Record, len(data))
	for entity, recs := range data {
		lowered[strings.ToLower(entity)] = recs
	}
	return &ImportContext{
		Schema:        s,
		Plan:          plan,
		IDMap:         NewIdentityMap(),
		Options:       opts,
		Progress:      progress.NewEmitter(bus),
		FieldMetadata: make(map[string]map[string]bulkclient.FieldMetadata),
		Associations:  associations,
		data:          lowered,
	}
}

// RecordsOf returns a snapshot slice of entity's records. Records
// themselves are immutable within a run (§3); phases derive their own
// write copies rather than mutate what RecordsOf returns.
func (c *ImportContext) RecordsOf(entity string) []bulkclient.Record {
	c.dataMu.RLock()
	defer c.dataMu.RUnlock()
	return c.data[strings.ToLower(entity)]
}

// SetRecordsOf replaces entity's record set, used by Phase A when
// --skip-missing-columns strips fields from every record.
func (c *ImportContext) SetRecordsOf(entity string, records []bulkclient.Record) {
	c.dataMu.Lock()
	defer c.dataMu.Unlock()
	c.data[strings.ToLower(entity)] = records
}

// Entities returns every entity name present in the loaded data.
func (c *ImportContext) Entities() []string {
	c.dataMu.RLock()
	defer c.dataMu.RUnlock()
	names := make([]string, 0, len(c.data))
	for name := range c.data {
		names = append(names, name)
	}
	return names
}

// Phase is one stage of the import pipeline, per §4.9/§9.
type Phase interface {
	Name() string
	Process(ctx context.Context, ictx *ImportContext) (PhaseResult, error)
}
