package importer

import (
	"context"
	"sort"
	"time"

	"github.com/lucernlabs/recordflow/internal/bulkclient"
	"github.com/lucernlabs/recordflow/internal/executor"
	"github.com/lucernlabs/recordflow/internal/progress"
	"github.com/lucernlabs/recordflow/internal/resilience"
)

// DeferredFieldsPhase is Phase C (§4.9): resolves every entity's
// deferred lookup fields through the identity map populated by Phase
// B and writes them back with UpdateMultiple. Readers observe the
// identity map only after Phase B has globally quiesced, so this
// phase must run strictly after every tier in EntitiesPhase.
type DeferredFieldsPhase struct {
	Executor *executor.Executor
}

func (p *DeferredFieldsPhase) Name() string { return "deferred_fields" }

func (p *DeferredFieldsPhase) Process(ctx context.Context, ictx *ImportContext) (PhaseResult, error) {
	start := time.Now()
	result := PhaseResult{Success: true}

	entities := make([]string, 0, len(ictx.Plan.DeferredFields))
	for entity := range ictx.Plan.DeferredFields {
		entities = append(entities, entity)
	}
	sort.Strings(entities)

	for _, entity := range entities {
		fields := ictx.Plan.DeferredFields[entity]
		if len(fields) == 0 {
			continue
		}
		pr := p.resolveEntity(ctx, ictx, entity, fields)
		result.Processed += pr.Processed
		result.SuccessCount += pr.SuccessCount
		result.FailureCount += pr.FailureCount
		result.Errors = append(result.Errors, pr.Errors...)
		if !pr.Success {
			result.Success = false
		}
	}

	result.Duration = time.Since(start)
	return result, nil
}

func (p *DeferredFieldsPhase) resolveEntity(ctx context.Context, ictx *ImportContext, entity string, fields []string) PhaseResult {
	pr := PhaseResult{Success: true}
	records := ictx.RecordsOf(entity)

	var updates []bulkclient.Record
	var origins []bulkclient.Record

	for _, rec := range records {
		src := sourceID(rec)
		targetID, ok := ictx.IDMap.Get(entity, src)
		if !ok {
			continue // phase B never wrote this record; already reported there
		}

		resolved := bulkclient.Record{"id": targetID}
		unresolved := false
		for _, field := range fields {
			v, present := rec[field]
			if !present {
				continue
			}
			ref, ok := v.(bulkclient.Reference)
			if !ok {
				resolved[field] = v
				continue
			}
			newID, ok := ictx.IDMap.Get(ref.Entity, ref.ID)
			if !ok {
				unresolved = true
				break
			}
			resolved[field] = bulkclient.Reference{Entity: ref.Entity, ID: newID}
		}

		if unresolved {
			pr.FailureCount++
			pr.Errors = append(pr.Errors, PhaseError{
				Entity:   entity,
				SourceID: src,
				Kind:     string(resilience.NotFound),
				Message:  "deferred field references an unresolved identifier, skipped",
			})
			ictx.Progress.Error(progress.Errorf(string(resilience.NotFound), "", entity, 0, "", "deferred field skipped: unresolved reference"))
			continue
		}
		if len(resolved) == 1 {
			continue // no deferred field actually present on this record
		}
		updates = append(updates, resolved)
		origins = append(origins, rec)
	}

	pr.Processed = len(updates)
	if len(updates) == 0 {
		return pr
	}

	res, err := p.Executor.Execute(ctx, ictx.Options.TargetSource, entity, executor.OpUpdate, updates, ictx.Options.BatchOptions)
	if err != nil && res == nil {
		pr.Success = false
		pr.FailureCount += len(updates)
		pr.Errors = append(pr.Errors, PhaseError{Entity: entity, Message: err.Error()})
		return pr
	}

	pr.SuccessCount += res.SuccessCount
	pr.FailureCount += res.FailureCount
	for _, re := range res.Errors {
		pr.Errors = append(pr.Errors, PhaseError{
			Entity:      entity,
			RecordIndex: re.Index,
			SourceID:    sourceID(origins[re.Index]),
			Code:        re.Code,
			Message:     re.Message,
		})
	}
	if res.FailureCount > 0 {
		pr.Success = false
	}
	ictx.Progress.Boundary(progress.Progress(progress.PhaseDeferred, entity, pr.Processed, pr.Processed))
	return pr
}
