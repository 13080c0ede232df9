// Command flowcore is the authoring-side CLI for the workflow engine: it
// loads Task/Workflow documents from disk and drives validate/plan/execute
// against them, the way station's cmd/main wraps its internal engine in a
// set of cobra subcommands for manual and integration testing.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	tasksDir     string
	workflowsDir string

	rootCmd = &cobra.Command{
		Use:   "flowcore",
		Short: "Declarative HTTP workflow orchestration engine",
		Long:  "flowcore loads Task and Workflow documents and validates, plans or executes them against live HTTP endpoints.",
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&tasksDir, "tasks-dir", "tasks", "directory of *.task.yaml/json documents")
	rootCmd.PersistentFlags().StringVar(&workflowsDir, "workflows-dir", "workflows", "directory of *.workflow.yaml/json documents")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(executeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
