package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sledctl/sledctl/internal/config"
)

// Config is the sled-agent binary's full configuration.
type Config struct {
	config.Base `mapstructure:",squash"`

	// Address is what this sled advertises to nexus at registration
	// time; sled↔central RPC dials back into it indirectly via NATS
	// subjects, but the address is retained in the central registry
	// for display and future direct-dial transports.
	Address string `mapstructure:"address"`

	// VLAN is an optional 802.1Q tag applied to guest NICs this sled
	// creates; empty means untagged.
	VLAN string `mapstructure:"vlan"`
}

var (
	cfgFile string
	cfg     Config
)

var rootCmd = &cobra.Command{
	Use:   "sled-agent",
	Short: "sled-agent - a sledctl sled controller",
	Long: `sled-agent owns one sled's simulated instances: it accepts
desired-state requests from nexus, drives each instance's simulated
state machine, and reports completed transitions back.`,
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
	rootCmd.PersistentFlags().String("address", "", "address this sled advertises to nexus")
	rootCmd.PersistentFlags().String("vlan", "", "802.1Q tag for guest NICs (empty for untagged)")
	rootCmd.PersistentFlags().String("nats-host", "", "NATS server host (overrides config file and env)")
	rootCmd.PersistentFlags().String("nats-token", "", "NATS authentication token (overrides config file and env)")

	viper.BindPFlag("address", rootCmd.PersistentFlags().Lookup("address"))
	viper.BindPFlag("vlan", rootCmd.PersistentFlags().Lookup("vlan"))
	viper.BindPFlag("nats.host", rootCmd.PersistentFlags().Lookup("nats-host"))
	viper.BindPFlag("nats.token", rootCmd.PersistentFlags().Lookup("nats-token"))
}

func initConfig() {
	if err := config.Load("SLED_AGENT", cfgFile); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	if err := viper.Unmarshal(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to unmarshal config: %v\n", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
}
