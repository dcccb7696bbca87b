package cmd

import (
	"os"
	"sort"

	"github.com/spf13/cobra"
	"github.com/sw33tLie/idwatch/internal/utils"
	devplatform "github.com/sw33tLie/idwatch/pkg/platforms/dev"
)

// monitor dev: replays a scripted scenario without touching the network
var monitorDevCmd = &cobra.Command{
	Use:   "dev",
	Short: "Run the tracking logic against a scripted in-memory site",
	RunE: func(cmd *cobra.Command, _ []string) error {
		scripts := devplatform.Scenario()
		names := make([]string, 0, len(scripts))
		for name := range scripts {
			names = append(names, name)
		}
		sort.Strings(names)

		dataDir, _ := cmd.Flags().GetString("datadir")
		if !cmd.Flags().Changed("datadir") {
			tmp, err := os.MkdirTemp("", "idwatch-dev-")
			if err != nil {
				return err
			}
			dataDir = tmp
		}
		utils.Log.Infof("Writing dev history to %s", dataDir)

		cycles, _ := cmd.Flags().GetInt("cycles")
		return runMonitor(cmd.Context(), devplatform.NewFetcher(scripts), names, devplatform.Pattern, dataDir, cycles)
	},
}

func init() {
	monitorCmd.AddCommand(monitorDevCmd)
	monitorDevCmd.Flags().Int("cycles", 5, "Number of cycles to run")
}
