package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/dvloznov/statement-pipeline/internal/logger"
	"github.com/dvloznov/statement-pipeline/internal/pipeline"
)

var (
	startDate string
	endDate   string
	timeout   time.Duration
)

var triggerCommands = []struct {
	use   string
	op    string
	short string
}{
	{"unlock", pipeline.OpRemovePassword, "Remove the password from raw statement PDFs"},
	{"parse", pipeline.OpParseDocument, "Extract statement documents from unlocked PDFs"},
	{"structure", pipeline.OpStructureData, "Build the yearly statement tables"},
	{"unify", pipeline.OpProcessData, "Unify statements and items per year"},
}

func init() {
	for _, tc := range triggerCommands {
		op := tc.op
		cmd := &cobra.Command{
			Use:   tc.use,
			Short: tc.short,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runTrigger(cmd, op)
			},
		}
		cmd.Flags().StringVar(&startDate, "start", "", "first date of the range, YYYY-MM-DD (required)")
		cmd.Flags().StringVar(&endDate, "end", "", "last date of the range, YYYY-MM-DD (required)")
		cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Minute, "overall time limit")
		cmd.MarkFlagRequired("start")
		cmd.MarkFlagRequired("end")
		rootCmd.AddCommand(cmd)
	}
}

func runTrigger(cmd *cobra.Command, op string) error {
	rng, err := pipeline.ParseRange(startDate, endDate)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx = logger.WithContext(ctx, a.Log)

	rep, err := a.Runner.Run(ctx, op, rng)
	printReport(cmd.OutOrStdout(), rep)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func printReport(w io.Writer, rep pipeline.Report) {
	for _, f := range rep.Files {
		fmt.Fprintln(w, f)
	}
	failed := rep.Failed()
	for _, it := range failed {
		fmt.Fprintf(w, "FAILED %s: %v\n", it.Source, it.Err)
	}
	fmt.Fprintf(w, "%s: %d files written, %d failed\n", rep.Operation, len(rep.Files), len(failed))
}
