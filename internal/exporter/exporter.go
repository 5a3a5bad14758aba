// Package exporter implements the bulk export side (C8): a concurrent
// per-entity paged scan streamed into a portable archive, plus a
// many-to-many association capture pass, per spec §4.8.
package exporter

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lucernlabs/recordflow/internal/archive"
	"github.com/lucernlabs/recordflow/internal/bulkclient"
	"github.com/lucernlabs/recordflow/internal/pool"
	"github.com/lucernlabs/recordflow/internal/progress"
	"github.com/lucernlabs/recordflow/internal/resilience"
	"github.com/lucernlabs/recordflow/internal/schema"
)

// defaultPageSize mirrors the executor's default batch size: neither
// the retrieval page nor the write batch has a reason to diverge from
// the service's natural 1000-record page.
const defaultPageSize = 1000

// Options configures one export run.
type Options struct {
	SourceName string
	PageSize   int
}

func (o Options) pageSize() int {
	if o.PageSize <= 0 {
		return defaultPageSize
	}
	return o.PageSize
}

// EntityResult is one entity's export outcome.
type EntityResult struct {
	Entity  string
	Records int
	Error   error
}

// Result is the outcome of one export run.
type Result struct {
	Entities     []EntityResult
	Associations map[string]int
	Duration     time.Duration
}

// Success reports whether every entity completed without error.
func (r Result) Success() bool {
	for _, e := range r.Entities {
		if e.Error != nil {
			return false
		}
	}
	return true
}

// Exporter drives one schema's worth of entities and many-to-many
// relationships out of the source service and into an archive.Writer.
type Exporter struct {
	Pool     *pool.Pool
	Progress *progress.Emitter
}

// New builds an Exporter.
func New(p *pool.Pool, emitter *progress.Emitter) *Exporter {
	return &Exporter{Pool: p, Progress: emitter}
}

// Export writes s's schema, then every entity's records and every
// many-to-many relationship's associations, to w. No dependency
// ordering is required for export (§4.8): entities are scanned
// concurrently up to the pool's recommended parallelism, each one
// sequentially paged internally. The archive is finalized only once
// every entity has either completed or recorded a final error.
func (ex *Exporter) Export(ctx context.Context, s *schema.Schema, w *archive.Writer, opts Options) (Result, error) {
	start := time.Now()

	if err := w.WriteSchema(s); err != nil {
		return Result{}, fmt.Errorf("exporter: write schema: %w", err)
	}
	if err := w.BeginData(); err != nil {
		return Result{}, fmt.Errorf("exporter: begin data: %w", err)
	}

	dop, err := ex.Pool.TotalRecommendedParallelism(ctx)
	if err != nil {
		return Result{}, err
	}
	if dop < 1 {
		dop = 1
	}

	entities := make([]string, len(s.Entities))
	for i, e := range s.Entities {
		entities[i] = e.LogicalName
	}
	sort.Strings(entities)

	results := ex.scanEntities(ctx, w, opts, entities, dop)

	assocCounts, err := ex.captureAssociations(ctx, s, w, opts)
	if err != nil {
		return Result{}, err
	}

	if err := w.Close(); err != nil {
		return Result{}, fmt.Errorf("exporter: close archive: %w", err)
	}

	ex.Progress.Boundary(progress.Complete("export finished"))

	return Result{Entities: results, Associations: assocCounts, Duration: time.Since(start)}, nil
}

// scanEntities runs one goroutine per entity, bounded by dop. Each
// goroutine pages an entity to exhaustion entirely over the network
// before taking writerMu, so the slow part (retrieval) overlaps across
// entities; only the in-memory append to w is serialized, since
// archive.Writer holds at most one open <entity> block at a time.
func (ex *Exporter) scanEntities(ctx context.Context, w *archive.Writer, opts Options, entities []string, dop int) []EntityResult {
	sem := make(chan struct{}, dop)
	var wg sync.WaitGroup
	var writerMu sync.Mutex
	results := make([]EntityResult, len(entities))

	for i, entity := range entities {
		wg.Add(1)
		go func(i int, entity string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			n, err := ex.scanEntity(ctx, w, &writerMu, opts, entity)
			results[i] = EntityResult{Entity: entity, Records: n, Error: err}
			if err != nil {
				ex.Progress.Error(progress.Errorf(string(resilience.KindOf(err)), opts.SourceName, entity, 0, "", err.Error()))
			}
		}(i, entity)
	}
	wg.Wait()
	return results
}

// scanEntity pages entity to exhaustion, buffering its records, then
// appends them to w under writerMu.
func (ex *Exporter) scanEntity(ctx context.Context, w *archive.Writer, writerMu *sync.Mutex, opts Options, entity string) (int, error) {
	handle, err := ex.Pool.Acquire(ctx, opts.SourceName)
	if err != nil {
		return 0, err
	}
	defer ex.Pool.Release(handle)

	var records []bulkclient.Record
	ids := make([]string, 0)
	cookie := ""
	for {
		page, err := handle.Client.Retrieve(ctx, entity, cookie, opts.pageSize())
		if err != nil {
			return len(records), resilience.New(resilience.ConnectionFailed, err).WithSource(opts.SourceName).WithEntity(entity)
		}
		records = append(records, page.Records...)
		for _, rec := range page.Records {
			id, _ := rec["id"].(string)
			ids = append(ids, id)
		}
		ex.Progress.Record(progress.PhaseExporting, entity, len(records), len(records))

		if !page.HasMore {
			break
		}
		cookie = page.Cookie

		if err := ctx.Err(); err != nil {
			return len(records), err
		}
	}

	writerMu.Lock()
	defer writerMu.Unlock()
	if err := w.BeginEntity(entity); err != nil {
		return len(records), err
	}
	for i, rec := range records {
		if err := w.WriteRecord(ids[i], rec); err != nil {
			return i, err
		}
	}
	if err := w.EndEntity(); err != nil {
		return len(records), err
	}
	return len(records), nil
}

// captureAssociations pages through every many-to-many relationship
// declared in s and writes each row into w. Run after entity scanning
// completes so the writer's associations buffer is filled once, right
// before Close flushes it.
func (ex *Exporter) captureAssociations(ctx context.Context, s *schema.Schema, w *archive.Writer, opts Options) (map[string]int, error) {
	handle, err := ex.Pool.Acquire(ctx, opts.SourceName)
	if err != nil {
		return nil, err
	}
	defer ex.Pool.Release(handle)

	rels := s.ManyToManyRelationships()
	sort.Slice(rels, func(i, j int) bool { return rels[i].Name < rels[j].Name })

	counts := make(map[string]int, len(rels))
	for _, rel := range rels {
		n, err := ex.captureRelationship(ctx, handle.Client, w, rel.Name, rel.EntityA, opts)
		if err != nil {
			return counts, err
		}
		counts[rel.Name] = n
	}
	return counts, nil
}

func (ex *Exporter) captureRelationship(ctx context.Context, client bulkclient.Client, w *archive.Writer, relationship, fromEntity string, opts Options) (int, error) {
	total := 0
	cookie := ""
	for {
		page, err := client.RetrieveAssociations(ctx, relationship, cookie, opts.pageSize())
		if err != nil {
			return total, resilience.New(resilience.ConnectionFailed, err).WithSource(opts.SourceName)
		}
		for _, a := range page.Associations {
			w.WriteAssociation(relationship, fromEntity, a.FromID, a.ToEntity, a.ToID)
			total++
		}
		ex.Progress.Boundary(progress.Event{Phase: progress.PhaseExporting, Relationship: relationship, Current: total, Total: total})

		if !page.HasMore {
			break
		}
		cookie = page.Cookie

		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
	return total, nil
}
