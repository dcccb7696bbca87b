package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/sw33tLie/idwatch/internal/utils"
)

// dbCmd represents the db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Interact with the id change event log",
}

// shellCmd represents the shell command
var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start an interactive shell to the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, _ := cmd.Flags().GetString("dbpath")
		abs, err := utils.GetAbsDBPath(dbPath)
		if err != nil {
			return err
		}
		if _, err := os.Stat(abs); os.IsNotExist(err) {
			return fmt.Errorf("database file not found: %s", abs)
		}

		sqlitePath, err := exec.LookPath("sqlite3")
		if err != nil {
			return fmt.Errorf("sqlite3 command not found in your PATH. Please install it to use the db shell")
		}

		fmt.Println("--> Database schema:")
		schemaCmd := exec.Command(sqlitePath, abs, ".schema")
		schemaCmd.Stdout = os.Stdout
		schemaCmd.Stderr = os.Stderr
		if err := schemaCmd.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: couldn't retrieve schema: %v\n", err)
		}
		fmt.Println("\n--> Starting interactive shell... (Ctrl+D to exit)")

		c := exec.Command(sqlitePath, abs)
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr

		return c.Run()
	},
}

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Prints per-name counts of logged id changes.",
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, _ := cmd.Flags().GetString("dbpath")
		db, err := openEventLog(dbPath)
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats(cmd.Context())
		if err != nil {
			return err
		}

		if len(stats) == 0 {
			fmt.Println("No data in the database to generate stats.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight)
		fmt.Fprintln(w, "NAME\tFIRST SEEN\tCHANGED\tINVALID\tVALID AGAIN\tLAST CHANGE\t")

		var totalChanged, totalInvalid int
		for _, s := range stats {
			last := "-"
			if !s.LastChange.IsZero() {
				last = s.LastChange.Local().Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%s\t\n", s.Username, s.FirstSeen, s.Changed, s.Invalid, s.ValidAgain, last)
			totalChanged += s.Changed
			totalInvalid += s.Invalid
		}

		fmt.Fprintln(w, " \t \t \t \t \t \t")
		fmt.Fprintf(w, "TOTAL (%d names)\t \t%d\t%d\t \t \t\n", len(stats), totalChanged, totalInvalid)

		w.Flush()

		return nil
	},
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(shellCmd)
	dbCmd.AddCommand(statsCmd)
	dbCmd.PersistentFlags().String("dbpath", "idwatch.sqlite", "Path to SQLite DB file")
}
