package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/sw33tLie/idwatch/internal/utils"
	"github.com/sw33tLie/idwatch/pkg/extract"
	"github.com/sw33tLie/idwatch/pkg/history"
	"github.com/sw33tLie/idwatch/pkg/monitor"
	"github.com/sw33tLie/idwatch/pkg/platforms"
	"github.com/sw33tLie/idwatch/pkg/platforms/soundcloud"
	"github.com/sw33tLie/idwatch/pkg/storage"
	"github.com/sw33tLie/idwatch/pkg/watchlist"
	"github.com/sw33tLie/idwatch/pkg/whttp"
)

// monitorCmd implements: idwatch monitor
var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Poll the watchlist forever and record id changes",
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return bindSiteFlags(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		path := viper.GetString("watchlist")
		names, err := watchlist.Read(path)
		if errors.Is(err, watchlist.ErrNotFound) {
			utils.Log.Warnf("Usernames file '%s' not found.", path)
		} else if err != nil {
			return err
		}

		fetcher, err := newSiteFetcher()
		if err != nil {
			return err
		}
		return runMonitor(cmd.Context(), fetcher, names, viper.GetString("site.pattern"), viper.GetString("datadir"), 0)
	},
}

func init() {
	rootCmd.AddCommand(monitorCmd)

	monitorCmd.PersistentFlags().Float64("interval", 2.5, "Seconds to wait between poll cycles")
	monitorCmd.PersistentFlags().String("watchlist", "usernames.txt", "File with one profile name per line")
	monitorCmd.PersistentFlags().Int("chunk-size", extract.DefaultChunkSize, "Bytes scanned at a time when looking for the id")
	monitorCmd.PersistentFlags().Int("concurrency", 1, "Number of names fetched in parallel")
	monitorCmd.PersistentFlags().Bool("db", false, "Also log every change to the SQLite event log")
	monitorCmd.PersistentFlags().String("dbpath", "idwatch.sqlite", "Path to SQLite DB file")
	addSiteFlags(monitorCmd)

	viper.BindPFlag("interval", monitorCmd.PersistentFlags().Lookup("interval"))
	viper.BindPFlag("watchlist", monitorCmd.PersistentFlags().Lookup("watchlist"))
	viper.BindPFlag("chunksize", monitorCmd.PersistentFlags().Lookup("chunk-size"))
	viper.BindPFlag("concurrency", monitorCmd.PersistentFlags().Lookup("concurrency"))
	viper.BindPFlag("db", monitorCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("dbpath", monitorCmd.PersistentFlags().Lookup("dbpath"))
}

// addSiteFlags registers the flags describing how profiles are fetched and scanned.
func addSiteFlags(c *cobra.Command) {
	c.PersistentFlags().String("site-url", soundcloud.PLATFORM_URL, "Base URL profiles live under (<site-url>/<name>)")
	c.PersistentFlags().String("pattern", soundcloud.ID_PATTERN, "Regular expression with one capture group matching the id")
	c.PersistentFlags().Float64("timeout", 30, "Per-request timeout in seconds")
	c.PersistentFlags().Int("retries", 2, "Retries on connection errors and 5xx responses")
}

// bindSiteFlags binds the site flags of the command being run. It runs at
// execution time because several commands share the same viper keys.
func bindSiteFlags(c *cobra.Command) error {
	for key, flag := range map[string]string{
		"site.url":     "site-url",
		"site.pattern": "pattern",
		"timeout":      "timeout",
		"retries":      "retries",
	} {
		if err := viper.BindPFlag(key, c.Flags().Lookup(flag)); err != nil {
			return err
		}
	}
	return nil
}

func newSiteFetcher() (*soundcloud.Fetcher, error) {
	client, err := whttp.NewClient(whttp.ClientOptions{
		Proxy:    viper.GetString("proxy"),
		Timeout:  seconds(viper.GetFloat64("timeout")),
		RetryMax: viper.GetInt("retries"),
	})
	if err != nil {
		return nil, err
	}
	return soundcloud.NewFetcher(viper.GetString("site.url"), client), nil
}

// runMonitor wires the store, extractor and optional event log, then runs until
// interrupted or until cycles cycles have run (0 = forever).
func runMonitor(ctx context.Context, fetcher platforms.ProfileFetcher, names []string, pattern, dataDir string, cycles int) error {
	extractor, err := extract.New(pattern)
	if err != nil {
		return err
	}

	cfg := monitor.Config{
		Fetcher:     fetcher,
		Store:       history.NewStore(dataDir),
		Extractor:   extractor,
		Names:       names,
		Interval:    seconds(viper.GetFloat64("interval")),
		ChunkSize:   viper.GetInt("chunksize"),
		Concurrency: viper.GetInt("concurrency"),
		Cycles:      cycles,
		Log:         utils.Log,
	}

	if viper.GetBool("db") {
		dbPath, err := utils.GetAbsDBPath(viper.GetString("dbpath"))
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return err
		}
		db, err := storage.Open(dbPath)
		if err != nil {
			return err
		}
		defer db.Close()
		cfg.Events = db
	}

	m, err := monitor.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return m.Run(ctx)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
