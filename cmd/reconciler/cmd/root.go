package cmd

import (
	"fmt"
	"os"
	"strings"

	"settlement-reconciliation-service/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// envKeyReplacer maps flag-style keys onto environment variable names
var envKeyReplacer = strings.NewReplacer("-", "_")

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "reconciler",
	Short: "Settlement vs POS revenue reconciliation tool",
	Long: `Reconciler compares the monthly settlement sheet exported by finance with
the revenue recorded by the clinic POS, branch by branch and day by day, and
reports every branch whose difference exceeds the materiality threshold.

Examples:
  reconciler reconcile --settlement-file desember.csv --year 2025 --month 12
  reconciler reconcile --settlement-file desember.csv --year 2025 --month 12 --output-format json
  reconciler version`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig reads in config file and ENV variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)

		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file: %s\n", err)
			os.Exit(4)
		}
	}

	// RECONCILER_SETTLEMENT_FILE, RECONCILER_API_BASE_URL, ...
	viper.SetEnvPrefix("RECONCILER")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

	initLogger(viper.GetBool("verbose"))
	if cfgFile != "" {
		logger.GetGlobalLogger().WithField("config_file", viper.ConfigFileUsed()).Debug("Using config file")
	}
}

// initLogger installs the global logger. Verbose runs log at debug level.
func initLogger(verbose bool) {
	config := logger.DefaultConfig()
	if verbose {
		config = logger.DebugConfig()
	}

	log, err := logger.NewLogger(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logger: %s\n", err)
		return
	}
	logger.SetGlobalLogger(log)
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
