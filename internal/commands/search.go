package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"voicevault/internal/search"
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Find a session by name or topic",
	Long: `Search resolves a query through exact, fuzzy, and chronological matching.
Semantic matching needs the running server's embeddings; offline search
covers name matching over whatever the store holds.`,
	Args: cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, st, err := bootstrap()
		if err != nil {
			return err
		}

		engine := search.New(st, nil, nil, "sessions")
		if err := engine.Rebuild(cmd.Context()); err != nil {
			return err
		}

		limit, _ := cmd.Flags().GetInt("limit")
		owner, _ := cmd.Flags().GetString("owner")
		jsonOutput, _ := cmd.Flags().GetBool("json")

		resp := engine.Search(cmd.Context(), strings.Join(args, " "), search.Filters{
			OwnerID: owner,
			Limit:   limit,
		})

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		}

		fmt.Printf("%s (%s)\n", resp.Status, resp.Kind)
		for _, c := range resp.Results {
			fmt.Printf("  %-24s %-12s %.2f  %s\n", c.SessionID, c.State, c.Confidence, c.Name)
		}
		for _, s := range resp.Suggestions {
			fmt.Printf("  - %s\n", s)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().Int("limit", 10, "Maximum results for chronological listing")
	searchCmd.Flags().String("owner", "", "Restrict to one owner")
	searchCmd.Flags().Bool("json", false, "Output as JSON")
}
