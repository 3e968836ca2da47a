package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sledctl/sledctl/internal/config"
)

// Config is the nexus binary's full configuration, embedding the
// fields every sledctl process needs plus whatever is specific to the
// central controller role (currently none beyond Base).
type Config struct {
	config.Base `mapstructure:",squash"`
}

var (
	cfgFile string
	cfg     Config
)

var rootCmd = &cobra.Command{
	Use:   "nexus",
	Short: "nexus - the sledctl central controller",
	Long: `nexus is the authoritative registry of projects, instances, and
sleds. It reconciles desired instance state against the state reported
by sled controllers over NATS.`,
}

// Execute runs the root command, exiting the process on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (TOML)")
	rootCmd.PersistentFlags().String("host", "", "address this process listens on")
	rootCmd.PersistentFlags().String("nats-host", "", "NATS server host (overrides config file and env)")
	rootCmd.PersistentFlags().String("nats-token", "", "NATS authentication token (overrides config file and env)")

	viper.BindPFlag("host", rootCmd.PersistentFlags().Lookup("host"))
	viper.BindPFlag("nats.host", rootCmd.PersistentFlags().Lookup("nats-host"))
	viper.BindPFlag("nats.token", rootCmd.PersistentFlags().Lookup("nats-token"))
}

func initConfig() {
	if err := config.Load("NEXUS", cfgFile); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	if err := viper.Unmarshal(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to unmarshal config: %v\n", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
}
