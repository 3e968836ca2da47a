package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sledctl/sledctl/nexus"
	"github.com/sledctl/sledctl/rpc"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the nexus central controller service",
	Long: `Start the nexus daemon: connect to NATS and serve sled registration and
instance-state-update notifications against the in-memory
project/instance/sled registry. It does not serve project or instance
requests over NATS.`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(_ *cobra.Command, _ []string) error {
	nc, err := rpc.Connect(cfg.NATS.Host, cfg.NATS.Token)
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	defer nc.Close()

	controller, err := nexus.NewController()
	if err != nil {
		return fmt.Errorf("initialize registry: %w", err)
	}

	notifySub, err := rpc.ServeController(nc, controller.NotifyInstanceUpdated)
	if err != nil {
		return fmt.Errorf("subscribe to instance notifications: %w", err)
	}
	defer notifySub.Unsubscribe()

	registerSub, err := rpc.ServeRegister(nc, func(sledID uuid.UUID, address string) error {
		client := rpc.NewSledClient(nc, sledID)
		_, err := controller.RegisterSled(sledID, address, client)
		return err
	})
	if err != nil {
		return fmt.Errorf("subscribe to sled registration: %w", err)
	}
	defer registerSub.Unsubscribe()

	slog.Info("nexus daemon started", "host", cfg.Host, "nats", cfg.NATS.Host)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	<-ctx.Done()

	slog.Info("nexus daemon shutting down")
	return nil
}
