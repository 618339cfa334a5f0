package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leechsync/leech/internal/fingerprint"
	"github.com/leechsync/leech/internal/leecherr"
)

var inspectBlockFlag string

// inspectCmd is a supplemented diagnostic (grounded on original_source/'s
// prettier.py): it decodes and prints a single block, reusing the block
// codec's decode path, with no parsing logic of its own.
var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Decode and print a single block",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openContext("inspect")
		if err != nil {
			return err
		}
		return runInspect(a, inspectBlockFlag)
	},
}

func init() {
	inspectCmd.Flags().StringVar(&inspectBlockFlag, "block", "", "block fingerprint to inspect (required)")
	_ = inspectCmd.MarkFlagRequired("block")
}

type inspectOp struct {
	Operation string `json:"operation"`
	Count     int    `json:"count"`
}

type inspectReport struct {
	TableID          string      `json:"table_id"`
	Parent           string      `json:"parent"`
	StateFp          string      `json:"state_fingerprint"`
	Timestamp        int64       `json:"timestamp"`
	PrimaryFields    []string    `json:"primary_fields"`
	SubsidiaryFields []string    `json:"subsidiary_fields"`
	Ops              []inspectOp `json:"ops"`
}

func runInspect(a *appContext, fpStr string) error {
	fp, err := fingerprint.Parse(fpStr)
	if err != nil {
		return leecherr.New(leecherr.KindBadInvocation, "inspect", fmt.Errorf("parsing --block: %w", err))
	}
	b, err := a.store.GetBlock(fp)
	if err != nil {
		return err
	}

	counts := map[string]int{}
	for _, op := range b.Diff.Ops {
		counts[op.Tag.String()]++
	}
	report := inspectReport{
		TableID:          string(b.TableID),
		Parent:           b.Parent.String(),
		StateFp:          b.StateFingerprint.String(),
		Timestamp:        b.Timestamp.Unix(),
		PrimaryFields:    b.Schema.Primary,
		SubsidiaryFields: b.Schema.Subsidiary,
	}
	for _, tag := range []string{"INSERT", "DELETE", "UPDATE"} {
		if n, ok := counts[tag]; ok {
			report.Ops = append(report.Ops, inspectOp{Operation: tag, Count: n})
		}
	}

	var raw []byte
	if a.cfg.PrettyPrint {
		raw, err = json.MarshalIndent(report, "", "  ")
	} else {
		raw, err = json.Marshal(report)
	}
	if err != nil {
		return fmt.Errorf("inspect: marshaling report: %w", err)
	}
	fmt.Println(string(raw))
	return nil
}
