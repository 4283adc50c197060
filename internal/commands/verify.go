package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"voicevault/internal/capture"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [session-id...]",
	Short: "Re-verify audio checksums",
	Long: `Verify recomputes the checksum of every audio segment and reports
mismatches and missing files. Nothing is repaired or deleted: a failed
verification is information for an operator, not a trigger.

Without arguments every session is verified.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, st, err := bootstrap()
		if err != nil {
			return err
		}
		svc := capture.NewService(st)

		ids := args
		if len(ids) == 0 {
			sessions, listErr := st.List(cmd.Context())
			if listErr != nil && len(sessions) == 0 {
				return listErr
			}
			if listErr != nil {
				fmt.Fprintf(os.Stderr, "warning: %v\n", listErr)
			}
			for _, s := range sessions {
				ids = append(ids, s.ID)
			}
		}

		bad := 0
		for _, id := range ids {
			report, err := svc.VerifyIntegrity(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("verifying %s: %w", id, err)
			}
			if report.OK() {
				fmt.Printf("%-24s ok (%d segments)\n", id, report.Checked)
				continue
			}
			bad++
			fmt.Printf("%-24s FAILED\n", id)
			for _, m := range report.Mismatches {
				if m.Missing {
					fmt.Printf("  segment %d: %s missing\n", m.Seq, m.Filename)
				} else {
					fmt.Printf("  segment %d: %s checksum %s, expected %s\n", m.Seq, m.Filename, m.Actual, m.Expected)
				}
			}
		}

		if bad > 0 {
			return fmt.Errorf("%d session(s) failed verification", bad)
		}
		return nil
	},
}
