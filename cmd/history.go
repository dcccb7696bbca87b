package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/sw33tLie/idwatch/pkg/history"
	"github.com/sw33tLie/idwatch/pkg/watchlist"
)

// historyCmd implements: idwatch history <name>
var historyCmd = &cobra.Command{
	Use:   "history <name>",
	Short: "Print the recorded id history of a name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if !watchlist.ValidName(name) {
			return fmt.Errorf("invalid name %q", name)
		}
		store := history.NewStore(viper.GetString("datadir"))
		records := store.Load(name)

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			out, err := history.Encode(records)
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		}

		if len(records) == 0 {
			fmt.Printf("No history for %s in %s\n", name, store.Path(name))
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "DATETIME\tOLD ID\tNEW ID")
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\n", r.Datetime, ptrOrNull(r.OldUserID), ptrOrNull(r.NewUserID))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().Bool("json", false, "Print the raw history file contents")
}

func ptrOrNull(s *string) string {
	if s == nil {
		return "null"
	}
	return *s
}
