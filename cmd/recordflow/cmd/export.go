package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lucernlabs/recordflow/internal/archive"
	"github.com/lucernlabs/recordflow/internal/config"
	"github.com/lucernlabs/recordflow/internal/exporter"
	"github.com/lucernlabs/recordflow/internal/progress"
	"github.com/lucernlabs/recordflow/internal/schema"
	"github.com/lucernlabs/recordflow/pkg/logger"
)

var exportSchemaPath string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Scan a source's entities into a portable archive (C8)",
	Long: `export reads a schema (--schema), scans every entity it names from
the configured source concurrently at the connection pool's
recommended parallelism, and writes the result — plus every
many-to-many association — to the archive named by the config's
archive.path, per spec §4.8.`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportSchemaPath, "schema", "", "path to the data_schema.xml describing what to export")
	_ = exportCmd.MarkFlagRequired("schema")
}

func runExport(cmd *cobra.Command, args []string) error {
	if configPath == "" {
		return fmt.Errorf("recordflow: --config is required")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := logger.NewLogger(cfg.Log.ToLoggerConfig())
	ctx := logger.WithRunID(cmd.Context(), logger.NewRunID())

	schemaFile, err := os.Open(exportSchemaPath)
	if err != nil {
		return fmt.Errorf("recordflow: open schema: %w", err)
	}
	s, err := schema.Read(schemaFile)
	schemaFile.Close()
	if err != nil {
		return fmt.Errorf("recordflow: parse schema: %w", err)
	}

	wiring, err := buildRunWiring(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer wiring.Close()

	bus := progress.NewBus()
	defer bus.Stop()
	attachConsoleSubscriber(bus, log)

	out, err := os.Create(cfg.Archive.Path)
	if err != nil {
		return fmt.Errorf("recordflow: create archive: %w", err)
	}
	defer out.Close()

	writer := archive.NewWriter(out)
	ex := exporter.New(wiring.Pool, progress.NewEmitter(bus))

	result, err := ex.Export(ctx, s, writer, exporter.Options{SourceName: cfg.Source.Name})
	if err != nil {
		return fmt.Errorf("recordflow: export: %w", err)
	}

	for _, er := range result.Entities {
		status := "ok"
		if er.Error != nil {
			status = er.Error.Error()
		}
		log.Info("entity exported", "entity", er.Entity, "records", er.Records, "status", status)
	}
	if !result.Success() {
		return fmt.Errorf("recordflow: export completed with per-entity failures, see log")
	}
	log.Info("export finished", "duration", logger.Elapsed(result.Duration))
	return nil
}
