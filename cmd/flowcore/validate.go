package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"flowcore/internal/orchestrator"
)

var validateCmd = &cobra.Command{
	Use:   "validate <workflow>",
	Short: "Validate a workflow against its task catalog",
	Long:  "Loads every task/workflow document and checks the named workflow's schema, dataflow compatibility, and graph shape without running it.",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	resolver, result, err := loadCatalog()
	if err != nil {
		return err
	}
	for _, le := range result.Errors {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: skipped %s: %v\n", le.FilePath, le.Err)
	}

	wf, err := findWorkflow(result, args[0])
	if err != nil {
		return err
	}

	report := orchestrator.Validate(wf, resolver)
	for _, w := range report.Warnings {
		fmt.Fprintf(cmd.OutOrStdout(), "warning: %s\n", w)
	}
	for _, e := range report.Errors {
		fmt.Fprintf(cmd.OutOrStdout(), "error: %s\n", e.Error())
	}

	if !report.Valid {
		return fmt.Errorf("workflow %q failed validation with %d error(s)", args[0], len(report.Errors))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "workflow %q is valid\n", args[0])
	return nil
}
