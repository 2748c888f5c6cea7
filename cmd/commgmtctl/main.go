package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/jihwankim/commgmt/internal/config"
	"github.com/jihwankim/commgmt/internal/runtime"
	"github.com/jihwankim/commgmt/internal/telemetry"
)

var (
	cfgFile string
	verbose bool
	version = "dev" // set by build flags
)

var rootCmd = &cobra.Command{
	Use:   "commgmtctl",
	Short: "Operate and inspect a filesystem-based service-discovery registry",
	Long: `commgmtctl drives the same offer/find/watch operations a proxy or
skeleton binding performs against the discovery root, for manual testing
and operational inspection of what is currently offered.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultConfigPath, "configuration file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	rootCmd.AddCommand(offerCmd)
	rootCmd.AddCommand(findCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(registryDumpCmd)
}

// bootstrap loads configuration and initializes the process-wide
// runtime singleton, the way every subcommand needs to before it can
// touch the discovery client.
func bootstrap() (*runtime.Runtime, error) {
	level := telemetry.LevelInfo
	if verbose {
		level = telemetry.LevelDebug
	}
	telemetry.InitGlobal(telemetry.Config{Level: level, Format: telemetry.FormatText})
	log := telemetry.New(telemetry.Config{Level: level, Format: telemetry.FormatText})

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := runtime.Init(cfg, log); err != nil {
		return nil, err
	}
	return runtime.Instance(), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
