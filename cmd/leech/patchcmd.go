package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/leechsync/leech/internal/block"
	"github.com/leechsync/leech/internal/leecherr"
	"github.com/leechsync/leech/internal/patch"
)

var (
	patchFieldFlag string
	patchValueFlag string
	patchFileFlag  string
)

var patchCmd = &cobra.Command{
	Use:   "patch",
	Short: "Apply a patch file against the configured destination adapters",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openContext("patch")
		if err != nil {
			return err
		}
		var report patch.Report
		runErr := a.withLock(func() error {
			var err error
			report, err = runPatch(cmd, a, patchFieldFlag, patchValueFlag, patchFileFlag)
			return err
		})
		if runErr != nil {
			return runErr
		}
		a.log.Info("patch applied", "correlation_id", report.CorrelationID,
			"applied", report.Applied, "skipped_idempotent", report.SkippedIdempotent)
		return nil
	},
}

func init() {
	patchCmd.Flags().StringVar(&patchFieldFlag, "field", "", "qualifier field name (required)")
	patchCmd.Flags().StringVar(&patchValueFlag, "value", "", "qualifier value (required)")
	patchCmd.Flags().StringVar(&patchFileFlag, "file", "", "patch file to apply (required)")
	_ = patchCmd.MarkFlagRequired("field")
	_ = patchCmd.MarkFlagRequired("value")
	_ = patchCmd.MarkFlagRequired("file")
}

func runPatch(cmd *cobra.Command, a *appContext, field, value, file string) (patch.Report, error) {
	raw, err := os.ReadFile(file)
	if err != nil {
		return patch.Report{}, leecherr.New(leecherr.KindBadInvocation, "patch", fmt.Errorf("reading %s: %w", file, err))
	}
	p, err := block.DecodePatch(raw)
	if err != nil {
		return patch.Report{}, err
	}

	st := patchStoreAdapter{st: a.store}
	ctx := cmd.Context()
	report, err := patch.Apply(ctx, st, p, patch.Qualifier{Field: field, Value: value}, openDestination(ctx, a.cfg))
	if err != nil {
		var pc *patch.PartialCommitError
		if errors.As(err, &pc) {
			a.log.Error("partial commit", "correlation_id", pc.CorrelationID,
				"committed", pc.Committed, "failed", pc.Failed, "err", pc.Err)
		}
		return patch.Report{}, err
	}
	return report, nil
}
