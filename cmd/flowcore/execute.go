package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"flowcore/internal/appconfig"
	"flowcore/internal/orchestrator"
)

var (
	inputFile      string
	dryRun         bool
	maxConcurrency int
	timeoutFlag    time.Duration

	executeCmd = &cobra.Command{
		Use:   "execute <workflow>",
		Short: "Execute a workflow against its task catalog",
		Long:  "Loads the named workflow and its tasks, resolves an input document, and drives it to completion (or, with --dry-run, resolves and validates every step without dispatching HTTP calls).",
		Args:  cobra.ExactArgs(1),
		RunE:  runExecute,
	}
)

func init() {
	executeCmd.Flags().StringVar(&inputFile, "input", "-", "JSON input document (file path, or - for stdin)")
	executeCmd.Flags().BoolVar(&dryRun, "dry-run", false, "resolve and validate every step without dispatching HTTP calls")
	executeCmd.Flags().IntVar(&maxConcurrency, "max-concurrency", 0, "override the configured max concurrent steps per wave (0 = use config default)")
	executeCmd.Flags().DurationVar(&timeoutFlag, "timeout", 0, "override the configured per-request HTTP timeout (0 = use config default)")
}

func runExecute(cmd *cobra.Command, args []string) error {
	resolver, result, err := loadCatalog()
	if err != nil {
		return err
	}
	wf, err := findWorkflow(result, args[0])
	if err != nil {
		return err
	}

	input, err := readInput(inputFile)
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	cfg, err := appconfig.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	o, err := buildOrchestrator(cfg, resolver)
	if err != nil {
		return err
	}

	timeout := timeoutFlag
	if timeout == 0 {
		timeout = cfg.HTTPTimeout
	}

	execResult := o.Execute(context.Background(), wf, input, orchestrator.Options{
		Timeout:        timeout,
		MaxConcurrency: maxConcurrency,
		DryRun:         dryRun,
		Resolver:       resolver,
	})

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(execResult); err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	if !execResult.Success {
		return fmt.Errorf("workflow %q did not complete successfully", args[0])
	}
	return nil
}

func readInput(path string) (map[string]any, error) {
	var raw []byte
	var err error
	if path == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var input map[string]any
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, err
	}
	return input, nil
}
