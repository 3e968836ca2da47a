package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sledctl/sledctl/rpc"
	"github.com/sledctl/sledctl/sledagent"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the sled-agent service",
	Long: `Start the sled-agent daemon: register this sled with nexus, then
serve instance_ensure requests against a local SimInstance registry,
forwarding completed transitions back over NATS.`,
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

	sledID := uuid.New()
	agent := sledagent.New(sledID, sledagent.ModeAuto, rpc.NotifyFunc(nc))
	defer agent.Shutdown()

	if cfg.VLAN != "" {
		vlan, err := sledagent.ParseVlanID(cfg.VLAN)
		if err != nil {
			return fmt.Errorf("invalid vlan config: %w", err)
		}
		agent.SetVlan(&vlan)
	}

	ensureSub, err := rpc.ServeSledAgent(nc, agent, sledID)
	if err != nil {
		return fmt.Errorf("serve instance_ensure: %w", err)
	}
	defer ensureSub.Unsubscribe()

	if err := rpc.RegisterSelf(nc, sledID, cfg.Address); err != nil {
		return fmt.Errorf("register with nexus: %w", err)
	}

	slog.Info("sled-agent started", "sledId", sledID, "address", cfg.Address, "nats", cfg.NATS.Host)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	<-ctx.Done()

	slog.Info("sled-agent shutting down", "sledId", sledID)
	return nil
}
