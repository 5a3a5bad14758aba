package importer

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/lucernlabs/recordflow/internal/bulkclient"
	"github.com/lucernlabs/recordflow/internal/pool"
	"github.com/lucernlabs/recordflow/internal/progress"
	"github.com/lucernlabs/recordflow/internal/resilience"
)

// ValidationPhase is Phase A (§4.9): it retrieves target field
// metadata for every entity present in the data, strips or reports
// fields absent from the target, and drops fields the current mode
// excludes before any write happens.
type ValidationPhase struct {
	Pool *pool.Pool
}

func (p *ValidationPhase) Name() string { return "target_field_validation" }

func (p *ValidationPhase) Process(ctx context.Context, ictx *ImportContext) (PhaseResult, error) {
	start := time.Now()
	result := PhaseResult{Success: true}

	entities := ictx.Entities()
	sort.Strings(entities)

	var missingFields []PhaseError

	for _, entity := range entities {
		handle, err := p.Pool.Acquire(ctx, ictx.Options.TargetSource)
		if err != nil {
			return PhaseResult{}, err
		}
		meta, err := handle.Client.Metadata(ctx, entity)
		p.Pool.Release(handle)
		if err != nil {
			return PhaseResult{}, err
		}

		byName := make(map[string]bulkclient.FieldMetadata, len(meta))
		for _, m := range meta {
			byName[strings.ToLower(m.Name)] = m
		}
		ictx.FieldMetadata[entity] = byName

		records := ictx.RecordsOf(entity)
		present := make(map[string]bool)
		for _, rec := range records {
			for field := range rec {
				if field == "id" {
					continue
				}
				present[strings.ToLower(field)] = true
			}
		}

		var missing []string
		for field := range present {
			if _, ok := byName[field]; !ok {
				missing = append(missing, field)
			}
		}
		sort.Strings(missing)

		if len(missing) > 0 {
			if !ictx.Options.SkipMissingColumns {
				for _, field := range missing {
					missingFields = append(missingFields, PhaseError{
						Entity:  entity,
						Field:   field,
						Kind:    string(resilience.SchemaMismatch),
						Message: "field not present on target",
					})
				}
				continue
			}
			stripped := make([]bulkclient.Record, len(records))
			for i, rec := range records {
				stripped[i] = cloneWithout(rec, missing...)
			}
			records = stripped
		}

		records = dropFieldsForMode(records, byName, ictx.Options.Mode.orDefault())
		ictx.SetRecordsOf(entity, records)

		result.Processed += len(records)
		ictx.Progress.Boundary(progress.Progress(progress.PhaseAnalyzing, entity, len(records), len(records)))
	}

	result.Duration = time.Since(start)

	if len(missingFields) > 0 {
		result.Success = false
		result.Errors = missingFields
		result.FailureCount = len(missingFields)
		for _, fe := range missingFields {
			ictx.Progress.Error(progress.Errorf(fe.Kind, "", fe.Entity, 0, "", fe.Message))
		}
		return result, resilience.New(resilience.SchemaMismatch, errMissingFields(missingFields)).WithEntity(missingFields[0].Entity)
	}

	result.SuccessCount = result.Processed
	return result, nil
}

func errMissingFields(errs []PhaseError) error {
	var b strings.Builder
	b.WriteString("missing target fields: ")
	for i, e := range errs {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(e.Entity + "." + e.Field)
	}
	return errors.New(b.String())
}
