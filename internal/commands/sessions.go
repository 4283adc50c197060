package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List sessions in the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, st, err := bootstrap()
		if err != nil {
			return err
		}

		sessions, listErr := st.List(cmd.Context())
		if listErr != nil && len(sessions) == 0 {
			return listErr
		}
		if listErr != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", listErr)
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(sessions)
		}

		if len(sessions) == 0 {
			fmt.Println("no sessions")
			return nil
		}
		for _, s := range sessions {
			fmt.Printf("%-24s %-12s segments=%-3d reopens=%d  %s\n",
				s.ID, s.State, len(s.Segments), s.ReopenCount, s.Name)
		}
		return nil
	},
}

func init() {
	sessionsCmd.Flags().Bool("json", false, "Output as JSON")
}
