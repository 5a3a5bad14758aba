package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lucernlabs/recordflow/internal/archive"
	"github.com/lucernlabs/recordflow/internal/bulkclient"
	"github.com/lucernlabs/recordflow/internal/config"
	"github.com/lucernlabs/recordflow/internal/executor"
	"github.com/lucernlabs/recordflow/internal/graph"
	"github.com/lucernlabs/recordflow/internal/importer"
	"github.com/lucernlabs/recordflow/internal/progress"
	"github.com/lucernlabs/recordflow/pkg/logger"
)

var importMode string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Read an archive and write it into a target, tiered (C9)",
	Long: `import reads the archive named by the config's archive.path,
builds the dependency-ordered execution plan (§4.7), then runs the
four-phase pipeline against the configured target: target field
validation, entities by tier, deferred fields, and many-to-many
associations (§4.9).`,
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVar(&importMode, "mode", "upsert", "write mode: create, update, or upsert (default: upsert)")
}

func runImport(cmd *cobra.Command, args []string) error {
	if configPath == "" {
		return fmt.Errorf("recordflow: --config is required")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	mode := importer.Mode(importMode)
	if err := mode.Validate(); err != nil {
		return err
	}

	log := logger.NewLogger(cfg.Log.ToLoggerConfig())
	ctx := logger.WithRunID(cmd.Context(), logger.NewRunID())

	reader, err := archive.Open(cfg.Archive.Path)
	if err != nil {
		return fmt.Errorf("recordflow: open archive: %w", err)
	}
	defer reader.Close()

	s, err := reader.Schema()
	if err != nil {
		return fmt.Errorf("recordflow: read archive schema: %w", err)
	}
	plan := graph.Plan(s)

	data, err := loadArchiveData(reader, plan)
	if err != nil {
		return err
	}
	associations, err := loadArchiveAssociations(reader, plan)
	if err != nil {
		return err
	}

	wiring, err := buildRunWiring(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer wiring.Close()

	bus := progress.NewBus()
	defer bus.Stop()
	attachConsoleSubscriber(bus, log)

	opts := importer.Options{
		Mode:                mode,
		ContinueOnError:     cfg.Bulk.ContinueOnError,
		SkipMissingColumns:  cfg.Bulk.SkipMissingColumns,
		MaxParallelEntities: cfg.Bulk.MaxParallelEntities,
		BatchOptions:        cfg.Bulk.ToBatchOptions(),
		TargetSource:        cfg.Target.Name,
	}
	ictx := importer.NewContext(s, plan, data, associations, opts, bus)

	rate := newRateController(cfg)
	exec := executor.New(wiring.Pool, rate, wiring.Tracker, executor.Options{
		BatchSize:          cfg.Bulk.BatchSize,
		MaxParallelBatches: cfg.Bulk.MaxParallelBatches,
		Logger:             log,
	})

	im := importer.New(
		&importer.ValidationPhase{Pool: wiring.Pool},
		&importer.EntitiesPhase{Executor: exec},
		&importer.DeferredFieldsPhase{Executor: exec},
		&importer.ManyToManyPhase{Pool: wiring.Pool, TargetSource: cfg.Target.Name},
		log,
	)

	results, runErr := im.Run(ctx, ictx)
	for _, r := range results {
		log.Info("phase result", "success", r.Success, "processed", r.Processed, "succeeded", r.SuccessCount, "failed", r.FailureCount, "duration", logger.Elapsed(r.Duration))
	}
	if runErr != nil {
		return fmt.Errorf("recordflow: import: %w", runErr)
	}
	mapped := 0
	for _, entity := range ictx.Entities() {
		mapped += ictx.IDMap.Count(entity)
	}
	log.Info("import finished", "identities_mapped", mapped)
	return nil
}

// loadArchiveData reads every entity named by plan's tiers out of
// reader, keyed by entity logical name, per the ImportContext shape
// §4.9 expects.
func loadArchiveData(reader *archive.Reader, plan *graph.ExecutionPlan) (map[string][]bulkclient.Record, error) {
	data := make(map[string][]bulkclient.Record)
	for _, tier := range plan.Tiers {
		for _, entity := range tier {
			records, err := reader.Records(entity)
			if err != nil {
				return nil, fmt.Errorf("recordflow: read %s records: %w", entity, err)
			}
			data[entity] = records
		}
	}
	return data, nil
}

// loadArchiveAssociations reads every many-to-many relationship's
// association rows named by plan.M2M, keyed by relationship name.
func loadArchiveAssociations(reader *archive.Reader, plan *graph.ExecutionPlan) (map[string][]archive.Association, error) {
	associations := make(map[string][]archive.Association)
	for _, rel := range plan.M2M {
		assocs, err := reader.Associations(rel.Name)
		if err != nil {
			return nil, fmt.Errorf("recordflow: read %s associations: %w", rel.Name, err)
		}
		associations[rel.Name] = assocs
	}
	return associations, nil
}
