package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"flowcore/internal/orchestrator"
)

var planCmd = &cobra.Command{
	Use:   "plan <workflow>",
	Short: "Print the execution waves for a workflow",
	Long:  "Builds the dependency graph for the named workflow and prints its wave-by-wave scheduling order without dispatching any requests.",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlan,
}

func runPlan(cmd *cobra.Command, args []string) error {
	_, result, err := loadCatalog()
	if err != nil {
		return err
	}
	wf, err := findWorkflow(result, args[0])
	if err != nil {
		return err
	}

	g, err := orchestrator.Plan(wf)
	if err != nil {
		return err
	}

	type waveView struct {
		Wave  int      `json:"wave"`
		Steps []string `json:"steps"`
	}
	var waves []waveView
	for i, wave := range g.Waves {
		var ids []string
		for _, idx := range wave {
			ids = append(ids, g.Nodes[idx].Step.ID)
		}
		waves = append(waves, waveView{Wave: i, Steps: ids})
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(waves); err != nil {
		return fmt.Errorf("encoding plan: %w", err)
	}
	return nil
}
