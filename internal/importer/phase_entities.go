package importer

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lucernlabs/recordflow/internal/bulkclient"
	"github.com/lucernlabs/recordflow/internal/executor"
	"github.com/lucernlabs/recordflow/internal/progress"
)

// EntitiesPhase is Phase B (§4.9): for each tier in order, writes
// every entity's non-deferred fields through the bulk executor and
// records the resulting source→target identifiers in the identity
// map. Tier k+1 never starts until tier k (including its recorded
// failures) has completed.
type EntitiesPhase struct {
	Executor *executor.Executor
}

func (p *EntitiesPhase) Name() string { return "entities" }

func (p *EntitiesPhase) Process(ctx context.Context, ictx *ImportContext) (PhaseResult, error) {
	start := time.Now()
	result := PhaseResult{Success: true}

	mode := ictx.Options.Mode.orDefault()
	op := opForMode(mode)

	for tier, entities := range ictx.Plan.Tiers {
		sorted := append([]string(nil), entities...)
		sort.Strings(sorted)

		sem := make(chan struct{}, ictx.Options.maxParallelEntities())
		var wg sync.WaitGroup
		var mu sync.Mutex
		tierFailed := false

		for _, entity := range sorted {
			wg.Add(1)
			go func(entity string) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()

				pr := p.writeEntity(ctx, ictx, tier, entity, mode, op)

				mu.Lock()
				result.Processed += pr.Processed
				result.SuccessCount += pr.SuccessCount
				result.FailureCount += pr.FailureCount
				result.Errors = append(result.Errors, pr.Errors...)
				if !pr.Success {
					result.Success = false
					tierFailed = true
				}
				mu.Unlock()
			}(entity)
		}
		wg.Wait()

		// Tier k+1 never starts until tier k has completed, including its
		// recorded failures; outside continue-on-error mode a failed
		// tier cancels every subsequent tier (§4.9 Phase B item 2).
		if tierFailed && !ictx.Options.ContinueOnError {
			break
		}
	}

	result.Duration = time.Since(start)
	return result, nil
}

func (p *EntitiesPhase) writeEntity(ctx context.Context, ictx *ImportContext, tier int, entity string, mode Mode, op executor.Operation) PhaseResult {
	records := ictx.RecordsOf(entity)
	deferred := ictx.Plan.DeferredFields[entity]

	writeRecords := make([]bulkclient.Record, len(records))
	for i, rec := range records {
		w := cloneWithout(rec, deferred...)
		if mode == ModeCreate {
			w = cloneWithout(w, "id")
		}
		writeRecords[i] = w
	}

	res, err := p.Executor.Execute(ctx, ictx.Options.TargetSource, entity, op, writeRecords, ictx.Options.BatchOptions)

	pr := PhaseResult{Success: true, Processed: len(records)}
	if res != nil {
		pr.SuccessCount = res.SuccessCount
		pr.FailureCount = res.FailureCount
		for _, re := range res.Errors {
			pr.Errors = append(pr.Errors, PhaseError{
				Entity:      entity,
				RecordIndex: re.Index,
				SourceID:    sourceID(records[re.Index]),
				Code:        re.Code,
				Message:     re.Message,
			})
		}
		for i, targetID := range res.IDs {
			if targetID == "" {
				continue
			}
			ictx.IDMap.Set(entity, sourceID(records[i]), targetID)
		}
	}
	if err != nil && res == nil {
		pr.Success = false
		pr.FailureCount = len(records)
		pr.Errors = append(pr.Errors, PhaseError{Entity: entity, Message: err.Error()})
	} else if pr.FailureCount > 0 {
		pr.Success = false
	}

	ictx.Progress.RecordTier(progress.PhaseImporting, tier, entity, pr.Processed, pr.Processed)
	for _, fe := range pr.Errors {
		ictx.Progress.Error(progress.Errorf(fe.Kind, "", entity, fe.RecordIndex, fe.Code, fe.Message))
	}
	return pr
}

func opForMode(mode Mode) executor.Operation {
	switch mode {
	case ModeCreate:
		return executor.OpCreate
	case ModeUpdate:
		return executor.OpUpdate
	default:
		return executor.OpUpsert
	}
}
