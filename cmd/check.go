package cmd

import (
	"bytes"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/sw33tLie/idwatch/internal/utils"
	"github.com/sw33tLie/idwatch/pkg/extract"
	"github.com/sw33tLie/idwatch/pkg/platforms/soundcloud"
	"github.com/sw33tLie/idwatch/pkg/watchlist"
)

// pages larger than this are truncated before parsing
const maxCheckBody = 4 << 20

// checkCmd implements: idwatch check <name>
var checkCmd = &cobra.Command{
	Use:   "check <name>",
	Short: "Fetch one profile once and show what would be tracked",
	Args:  cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, _ []string) error {
		return bindSiteFlags(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if !watchlist.ValidName(name) {
			return fmt.Errorf("invalid name %q", name)
		}

		extractor, err := extract.New(viper.GetString("site.pattern"))
		if err != nil {
			return err
		}
		fetcher, err := newSiteFetcher()
		if err != nil {
			return err
		}

		resp, err := fetcher.Fetch(cmd.Context(), name)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		fmt.Printf("URL:     %s\n", fetcher.ProfileURL(name))
		fmt.Printf("Status:  %d\n", resp.StatusCode)
		if resp.NotFound() {
			fmt.Println("Profile not found.")
			return nil
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxCheckBody))
		if err != nil {
			return fmt.Errorf("reading body: %w", err)
		}

		chunkSize, _ := cmd.Flags().GetInt("chunk-size")
		id, ok, err := extractor.Scan(bytes.NewReader(body), chunkSize)
		if err != nil {
			return err
		}
		if ok {
			fmt.Printf("User ID: %s\n", id)
		} else {
			fmt.Println("User ID: not found")
		}

		details, err := soundcloud.ParseDetails(bytes.NewReader(body))
		if err != nil {
			utils.Log.Debugf("Could not parse page details: %v", err)
			return nil
		}
		printField("Title", details.Title)
		printField("Username", details.Username)
		printField("Permalink", details.Permalink)
		if details.UserID != "" && details.UserID != id {
			printField("Page ID", details.UserID)
		}
		if details.Followers > 0 {
			fmt.Printf("%-9s%d\n", "Followers:", details.Followers)
		}
		printField("About", details.Description)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().Int("chunk-size", extract.DefaultChunkSize, "Bytes scanned at a time when looking for the id")
	addSiteFlags(checkCmd)
}

func printField(label, value string) {
	if value == "" {
		return
	}
	fmt.Printf("%-9s%s\n", label+":", value)
}
