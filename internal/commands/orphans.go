package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"voicevault/internal/capture"
)

var orphansCmd = &cobra.Command{
	Use:   "orphans",
	Short: "Report audio files absent from session metadata",
	Long: `Orphans walks the storage tree for audio files no session references,
typically left by a crash between a file write and its metadata append.
Each orphan comes with a suggested action (ATTACH, QUARANTINE, DISCARD);
acting on a suggestion is always a human decision.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, st, err := bootstrap()
		if err != nil {
			return err
		}

		orphans, scanErr := capture.NewService(st).RecoverOrphans(cmd.Context())
		if scanErr != nil && len(orphans) == 0 {
			return scanErr
		}
		if scanErr != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", scanErr)
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(orphans)
		}

		if len(orphans) == 0 {
			fmt.Println("no orphans")
			return nil
		}
		for _, o := range orphans {
			fmt.Printf("%-24s %-10s %8d bytes  %s\n", o.SessionID, o.Suggested, o.SizeBytes, o.Path)
		}
		return nil
	},
}

func init() {
	orphansCmd.Flags().Bool("json", false, "Output as JSON")
}
