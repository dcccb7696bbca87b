package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/sw33tLie/idwatch/internal/utils"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

var cfgFile string

const (
	LOGO = `	 _     _                _       _     
	(_) __| |_      ____ _| |_ ___| |__  
	| |/ _` + "`" + ` \ \ /\ / / _` + "`" + ` | __/ __| '_ \ 
	| | (_| |\ V  V / (_| | || (__| | | |
	|_|\__,_| \_/\_/ \__,_|\__\___|_| |_|

`
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "idwatch",
	Short: "Track the numeric ids behind public profile names.",
	Long: LOGO + `idwatch polls a watchlist of public profiles, extracts the numeric user id embedded in each page,
and keeps a per-name history of every id change. It also notices when a profile disappears and comes back.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.idwatch.yaml)")

	// Global flags
	rootCmd.PersistentFlags().StringP("proxy", "", "", "HTTP Proxy used for every request (Example: http://127.0.0.1:8080)")
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
	rootCmd.PersistentFlags().String("datadir", "./monitor_data", "Directory holding one <name>_data.json history file per name")

	viper.BindPFlag("proxy", rootCmd.PersistentFlags().Lookup("proxy"))
	viper.BindPFlag("loglevel", rootCmd.PersistentFlags().Lookup("loglevel"))
	viper.BindPFlag("datadir", rootCmd.PersistentFlags().Lookup("datadir"))
}

// initConfig reads in .env, config file and ENV variables if set.
func initConfig() {
	// A missing .env is the common case.
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".idwatch")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("idwatch")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	configErr := viper.ReadInConfig()

	// Init log library
	if err := utils.SetLogLevel(viper.GetString("loglevel")); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	if configErr != nil {
		if _, ok := configErr.(viper.ConfigFileNotFoundError); !ok {
			utils.Log.Warnf("Could not read config file: %v", configErr)
		}
	} else {
		utils.Log.Debugf("Using config file %s", viper.ConfigFileUsed())
	}
}
