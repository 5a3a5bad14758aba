package importer

import (
	"context"
	"log/slog"

	"github.com/lucernlabs/recordflow/internal/progress"
)

// Importer runs the ordered phase pipeline over one ImportContext,
// per §4.9/§9's "phase pipeline as objects" design note.
type Importer struct {
	Phases []Phase
	Logger *slog.Logger
}

// New builds an Importer with the standard four-phase pipeline in
// order: Target Field Validation, Entities, Deferred Fields,
// Many-to-Many.
func New(validation *ValidationPhase, entities *EntitiesPhase, deferred *DeferredFieldsPhase, m2m *ManyToManyPhase, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{
		Phases: []Phase{validation, entities, deferred, m2m},
		Logger: logger,
	}
}

// Run executes every phase in order against ictx. A phase that
// returns a non-nil error, or a PhaseResult with Success == false,
// stops the pipeline unless ictx.Options.ContinueOnError is set, in
// which case the remaining phases still run (matching §4.9's
// continue-on-error stance at the record/batch level, extended to the
// phase level for operator convenience). Run returns the result of
// every phase that ran, in order; phases after a stop are not run
// and have no result.
func (im *Importer) Run(ctx context.Context, ictx *ImportContext) ([]PhaseResult, error) {
	results := make([]PhaseResult, 0, len(im.Phases))
	var firstErr error

	for _, phase := range im.Phases {
		ictx.Progress.Boundary(progress.Event{Phase: phaseEventFor(phase.Name()), Message: phase.Name() + " started"})

		res, err := phase.Process(ctx, ictx)
		results = append(results, res)

		im.Logger.Info("phase complete",
			"phase", phase.Name(),
			"success", res.Success,
			"processed", res.Processed,
			"failures", res.FailureCount,
		)

		if err != nil {
			im.Logger.Error("phase failed", "phase", phase.Name(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
			if !ictx.Options.ContinueOnError {
				return results, err
			}
			continue
		}
		if !res.Success && !ictx.Options.ContinueOnError {
			return results, firstErrorOf(res)
		}
	}

	ictx.Progress.Boundary(progress.Complete("import finished"))
	return results, firstErr
}

func phaseEventFor(name string) progress.Phase {
	switch name {
	case "target_field_validation":
		return progress.PhaseAnalyzing
	case "entities":
		return progress.PhaseImporting
	case "deferred_fields":
		return progress.PhaseDeferred
	case "many_to_many":
		return progress.PhaseM2M
	default:
		return progress.PhaseImporting
	}
}

func firstErrorOf(res PhaseResult) error {
	if len(res.Errors) == 0 {
		return nil
	}
	return &PhasePipelineError{Errors: res.Errors}
}

// PhasePipelineError wraps a phase's accumulated PhaseErrors for a
// caller that wants the whole list rather than just the first one.
type PhasePipelineError struct {
	Errors []PhaseError
}

func (e *PhasePipelineError) Error() string {
	if len(e.Errors) == 0 {
		return "importer: phase failed"
	}
	msg := e.Errors[0].Message
	if len(e.Errors) > 1 {
		msg += " (+more)"
	}
	return msg
}
