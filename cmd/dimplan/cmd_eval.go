package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dokzlo13/dimplan/internal/config"
	"github.com/dokzlo13/dimplan/internal/daycycle"
	"github.com/dokzlo13/dimplan/internal/plan"
)

var (
	evalPlanFile string
	evalAt       string
	evalJSON     bool
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Print every channel's level at a time of day",
	Long: `Evaluate a plan once and print the level of each channel.

The plan is read from --plan when given, otherwise from the database
named in the configuration file.

Examples:
  # Levels right now from the stored plan
  dimplan eval

  # Levels at 07:30 from a plan file, no database needed
  dimplan eval --plan plan.yaml --at 07:30
`,
	RunE: runEval,
}

func init() {
	evalCmd.Flags().StringVarP(&evalPlanFile, "plan", "p", "", "Plan file to evaluate instead of the stored plan")
	evalCmd.Flags().StringVar(&evalAt, "at", "", "Time of day as HH:MM or HH:MM:SS (default: now)")
	evalCmd.Flags().BoolVar(&evalJSON, "json", false, "Print levels as JSON")
	rootCmd.AddCommand(evalCmd)
}

func runEval(cmd *cobra.Command, args []string) error {
	var (
		planCfg plan.Configuration
		loc     = time.Local
		err     error
	)

	if evalPlanFile != "" {
		planCfg, err = config.ReadPlan(evalPlanFile)
		if err != nil {
			return err
		}
	} else {
		if err := loadConfig(); err != nil {
			return err
		}
		loc = cfg.Evaluator.Location()
		planCfg, err = loadStoredPlan()
		if err != nil {
			return err
		}
	}

	at := daycycle.Of(time.Now().In(loc))
	if evalAt != "" {
		if at, err = daycycle.Parse(evalAt); err != nil {
			return fmt.Errorf("invalid --at: %w", err)
		}
	}

	p, _, err := plan.Load(planCfg)
	if err != nil {
		return err
	}

	levels, err := p.Values(at)
	if err != nil {
		return err
	}

	if evalJSON {
		return printLevelsJSON(cmd.OutOrStdout(), at, levels)
	}
	return printLevels(cmd.OutOrStdout(), at, p.IDs(), levels)
}

func printLevels(out io.Writer, at daycycle.TimeOfDay, ids []string, levels map[string]plan.Level) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "CHANNEL\tLEVEL @ %s\tPINNED\n", at)
	for _, id := range ids {
		level := levels[id]
		value := "-"
		if level.OK {
			value = fmt.Sprintf("%.2f", level.Value)
		}
		fmt.Fprintf(w, "%s\t%s\t%t\n", id, value, level.Pinned)
	}
	return w.Flush()
}

func printLevelsJSON(out io.Writer, at daycycle.TimeOfDay, levels map[string]plan.Level) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"time":   at.String(),
		"levels": levels,
	})
}
