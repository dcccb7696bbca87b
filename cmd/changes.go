package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/sw33tLie/idwatch/internal/utils"
	"github.com/sw33tLie/idwatch/pkg/storage"
)

var changesCmd = &cobra.Command{
	Use:   "changes",
	Short: "Show recent id changes from the event log (default 50)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		dbPath, _ := cmd.Flags().GetString("dbpath")
		limit, _ := cmd.Flags().GetInt("limit")
		name, _ := cmd.Flags().GetString("name")
		sinceStr, _ := cmd.Flags().GetString("since")

		opts := storage.ListOptions{Username: name, Limit: limit}
		if sinceStr != "" {
			since, err := time.Parse(time.RFC3339, sinceStr)
			if err != nil {
				return fmt.Errorf("invalid --since value %q (want RFC3339): %w", sinceStr, err)
			}
			opts.Since = since
		}

		db, err := openEventLog(dbPath)
		if err != nil {
			return err
		}
		defer db.Close()

		changes, err := db.ListRecentChanges(cmd.Context(), opts)
		if err != nil {
			return err
		}
		for _, c := range changes {
			ts := c.OccurredAt.Local().Format("2006-01-02 15:04:05")
			fmt.Printf("%s  %-11s  %s  %s  %s -> %s\n", ts, c.ChangeType, c.Platform, c.Username, orNull(c.OldUserID), orNull(c.NewUserID))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(changesCmd)
	changesCmd.Flags().String("dbpath", "idwatch.sqlite", "Path to SQLite DB file")
	changesCmd.Flags().Int("limit", 50, "Number of recent changes to show")
	changesCmd.Flags().String("name", "", "Only show changes for this name")
	changesCmd.Flags().String("since", "", "Only show changes at or after this time (RFC3339)")
}

// openEventLog opens an existing event log; it never creates one.
func openEventLog(dbPath string) (*storage.DB, error) {
	abs, err := utils.GetAbsDBPath(dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, fmt.Errorf("database not found: %s", abs)
	}
	return storage.Open(abs)
}

func orNull(id string) string {
	if id == "" {
		return "null"
	}
	return id
}
