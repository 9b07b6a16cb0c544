package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dokzlo13/dimplan/internal/app"
	"github.com/dokzlo13/dimplan/internal/config"
	"github.com/dokzlo13/dimplan/internal/db"
	"github.com/dokzlo13/dimplan/internal/plan"
	"github.com/dokzlo13/dimplan/internal/storage"
)

var (
	exportOut  string
	importFile string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the stored plan as YAML",
	Long: `Export the plan held in the database as a plan file.

Examples:
  # Print to stdout
  dimplan export

  # Write to a file
  dimplan export --out plan.yaml
`,
	RunE: runExport,
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Replace the stored plan with a plan file",
	Long: `Import a plan file into the database, replacing the stored plan.

The import is recorded in the change ledger. A running daemon picks it up
on its next start.

Examples:
  dimplan import --plan plan.yaml
`,
	RunE: runImport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output file (default: stdout)")
	importCmd.Flags().StringVarP(&importFile, "plan", "p", "", "Plan file to import")
	importCmd.MarkFlagRequired("plan")
	rootCmd.AddCommand(exportCmd, importCmd)
}

// loadStoredPlan reads the plan from the configured database
func loadStoredPlan() (plan.Configuration, error) {
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return plan.Configuration{}, err
	}
	defer database.Close()

	return storage.NewPlanStore(storage.NewStore(database.DB)).Load()
}

func runExport(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	planCfg, err := loadStoredPlan()
	if err != nil {
		return err
	}

	if exportOut != "" {
		if err := config.WritePlan(exportOut, planCfg); err != nil {
			return err
		}
		log.Info().Str("file", exportOut).Int("channels", len(planCfg.Channels)).Msg("Exported plan")
		return nil
	}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	defer enc.Close()
	return enc.Encode(planCfg)
}

func runImport(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	planCfg, err := config.ReadPlan(importFile)
	if err != nil {
		return err
	}

	services, err := app.NewServices(cfg)
	if err != nil {
		return fmt.Errorf("open services: %w", err)
	}
	defer services.Close()

	report, err := services.Plan.Replace(planCfg)
	if err != nil {
		return fmt.Errorf("import %s: %w", importFile, err)
	}

	log.Info().
		Str("file", importFile).
		Int("loaded", len(report.Loaded)).
		Strs("skipped", report.Skipped).
		Msg("Imported plan")
	return nil
}
