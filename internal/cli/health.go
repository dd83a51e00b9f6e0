package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"docqa/internal/usecase"
)

var healthJSON bool

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check component health",
	Long: `Probe the catalog, indexes, embedding backend, and language model and
report per-component status. Exits non-zero when any component is degraded.`,
	RunE: runHealth,
}

func init() {
	rootCmd.AddCommand(healthCmd)
	healthCmd.Flags().BoolVar(&healthJSON, "json", false, "output as JSON")
}

func runHealth(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := GetConfig()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	model, err := newLLM(cfg)
	if err != nil {
		return fmt.Errorf("llm configuration: %w", err)
	}

	report := usecase.NewHealth(a.catalog, a.lexical, a.vectors, a.embedder, model).Check(ctx)

	if healthJSON {
		output, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(output))
	} else {
		fmt.Printf("Overall: %s\n", report.Overall)
		for _, c := range report.Components {
			fmt.Printf("  %-18s %-9s %s\n", c.Name, c.Status, c.Detail)
		}
	}

	if report.Overall != usecase.StatusOK {
		return fmt.Errorf("one or more components degraded")
	}
	return nil
}
