package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lucernlabs/recordflow/internal/config"
)

var validateConfigCmd = &cobra.Command{
	Use:   "validate-config",
	Short: "Load and validate a run configuration without doing any I/O",
	Long: `validate-config loads the file named by --config (layered under
defaults and RECORDFLOW_* environment overrides), runs its
Configuration-kind validation (§7), and prints the resolved config
with connection secrets redacted. Useful for catching a malformed
profile before committing to an export or import run.`,
	RunE: runValidateConfig,
}

func runValidateConfig(cmd *cobra.Command, args []string) error {
	if configPath == "" {
		return fmt.Errorf("recordflow: --config is required")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	sanitized := config.NewDefaultSanitizer().Sanitize(cfg)
	out, err := json.MarshalIndent(sanitized, "", "  ")
	if err != nil {
		return fmt.Errorf("recordflow: render config: %w", err)
	}

	cmd.Println("configuration is valid")
	cmd.Println(string(out))
	return nil
}
