package importer

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lucernlabs/recordflow/internal/archive"
	"github.com/lucernlabs/recordflow/internal/bulkclient"
	"github.com/lucernlabs/recordflow/internal/pool"
	"github.com/lucernlabs/recordflow/internal/progress"
	"github.com/lucernlabs/recordflow/internal/resilience"
)

// m2mParallelism bounds concurrent Associate calls; m2m tails are
// small relative to entity data, so a modest fixed degree is enough
// rather than wiring the rate controller for it.
const m2mParallelism = 8

// ManyToManyPhase is Phase D (§4.9): translates both endpoints of
// every exported association through the identity map and issues
// associate requests. The `role` entity falls back to a by-identifier
// lookup against the target when the identity map has no entry for
// it, since role identifiers are commonly stable across organizations
// and name-based lookup is explicitly out of scope.
type ManyToManyPhase struct {
	Pool         *pool.Pool
	TargetSource string
}

func (p *ManyToManyPhase) Name() string { return "many_to_many" }

func (p *ManyToManyPhase) Process(ctx context.Context, ictx *ImportContext) (PhaseResult, error) {
	start := time.Now()
	result := PhaseResult{Success: true}

	handle, err := p.Pool.Acquire(ctx, p.targetSource(ictx))
	if err != nil {
		return PhaseResult{}, err
	}
	client := handle.Client
	p.Pool.Release(handle)

	relationships := make([]string, 0, len(ictx.Plan.M2M))
	for _, rel := range ictx.Plan.M2M {
		relationships = append(relationships, rel.Name)
	}
	sort.Strings(relationships)

	for _, rel := range relationships {
		assocs := ictx.Associations[rel]
		pr := p.processRelationship(ctx, ictx, client, rel, assocs)
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

func (p *ManyToManyPhase) targetSource(ictx *ImportContext) string {
	if p.TargetSource != "" {
		return p.TargetSource
	}
	return ictx.Options.TargetSource
}

func (p *ManyToManyPhase) processRelationship(ctx context.Context, ictx *ImportContext, client bulkclient.Client, relationship string, assocs []archive.Association) PhaseResult {
	pr := PhaseResult{Success: true, Processed: len(assocs)}

	sem := make(chan struct{}, m2mParallelism)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, a := range assocs {
		wg.Add(1)
		go func(a archive.Association) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			fromID, ok := p.resolve(ctx, ictx, client, a.FromEntity, a.FromID)
			if !ok {
				mu.Lock()
				pr.FailureCount++
				pr.Errors = append(pr.Errors, PhaseError{
					Entity: a.FromEntity, SourceID: a.FromID,
					Kind: string(resilience.NotFound), Message: "m2m from-endpoint unresolved, skipped",
				})
				mu.Unlock()
				return
			}
			toID, ok := p.resolve(ctx, ictx, client, a.ToEntity, a.ToID)
			if !ok {
				mu.Lock()
				pr.FailureCount++
				pr.Errors = append(pr.Errors, PhaseError{
					Entity: a.ToEntity, SourceID: a.ToID,
					Kind: string(resilience.NotFound), Message: "m2m to-endpoint unresolved, skipped",
				})
				mu.Unlock()
				return
			}

			err := client.Associate(ctx, bulkclient.Association{
				Relationship: relationship, FromID: fromID, ToEntity: a.ToEntity, ToID: toID,
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil && resilience.Classify(err) != resilience.AlreadyExists {
				pr.FailureCount++
				pr.Errors = append(pr.Errors, PhaseError{
					Entity: a.ToEntity, Kind: string(resilience.Classify(err)), Message: err.Error(),
				})
				ictx.Progress.Error(progress.Errorf(string(resilience.Classify(err)), "", a.ToEntity, 0, "", err.Error()))
				return
			}
			pr.SuccessCount++
		}(a)
	}
	wg.Wait()

	if pr.FailureCount > 0 {
		pr.Success = false
	}
	ictx.Progress.Boundary(progress.Event{Phase: progress.PhaseM2M, Relationship: relationship, Current: pr.Processed, Total: pr.Processed})
	return pr
}

// resolve translates a source id on entity through the identity map,
// falling back to a target-side by-identifier lookup for the `role`
// entity per §4.9 Phase D.
func (p *ManyToManyPhase) resolve(ctx context.Context, ictx *ImportContext, client bulkclient.Client, entity, sourceID string) (string, bool) {
	if targetID, ok := ictx.IDMap.Get(strings.ToLower(entity), sourceID); ok {
		return targetID, true
	}
	if strings.ToLower(entity) == "role" {
		if exists, err := client.LookupByID(ctx, entity, sourceID); err == nil && exists {
			return sourceID, true
		}
	}
	return "", false
}
