// Package cmd provides the CLI commands for upcheck.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile  string
	workerID string
	verbose  bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "upcheck",
	Short: "Active health checking for upstream backend peers",
	Long: `upcheck probes the backend peers of named upstream groups and
aggregates the results into a flap-damped up/down verdict per peer:
  - Fixed HTTP-style probe with status, header and body validation
  - N-in-a-row damping before a verdict flips
  - Multiple worker processes sharing one peer set via NATS JetStream KV
  - JSON status reports and Prometheus metrics

Run a worker daemon with 'upcheck run' and inspect it with
'upcheck status'.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./upcheck.json)")
	rootCmd.PersistentFlags().StringVar(&workerID, "worker", "", "Worker ID (default: hostname)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	// Bind flags to viper
	viper.BindPFlag("worker_id", rootCmd.PersistentFlags().Lookup("worker"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	// Environment variable bindings
	viper.BindEnv("worker_id", "UPCHECK_WORKER_ID")
	viper.BindEnv("config", "UPCHECK_CONFIG")
}

// initConfig reads in ENV variables if set.
func initConfig() {
	viper.AutomaticEnv()

	if cfgFile == "" {
		cfgFile = viper.GetString("config")
	}
	if cfgFile == "" {
		cfgFile = "upcheck.json"
	}
}

// getWorkerID returns the worker ID from flag, env, or hostname.
func getWorkerID() string {
	if workerID != "" {
		return workerID
	}
	if id := viper.GetString("worker_id"); id != "" {
		return id
	}
	hostname, err := os.Hostname()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Warning: could not determine hostname:", err)
		return "worker"
	}
	return hostname
}
