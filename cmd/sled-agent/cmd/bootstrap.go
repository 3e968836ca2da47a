package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sledctl/sledctl/shamir"
	"github.com/sledctl/sledctl/trustquorum"
)

// bootstrapCmd drives the trust-quorum share exchange this sled
// participates in before it can unlock local storage: serve this
// sled's own share to peers, and collect a threshold of shares from
// the peers named on the command line. It does not wire the
// reconstructed secret into anything (storage unlock is out of
// scope); it exists to exercise the trustquorum/shamir packages as a
// standalone operation the way a real bootstrap sequence would invoke
// them before starting the rest of the daemon.
var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Serve this sled's rack-secret share and collect a threshold from peers",
	RunE:  runBootstrap,
}

var (
	bootstrapPeers     string
	bootstrapThreshold int
	bootstrapListen    string
)

func init() {
	rootCmd.AddCommand(bootstrapCmd)
	bootstrapCmd.Flags().StringVar(&bootstrapPeers, "peers", "", "comma-separated IPv6 addresses of rack-mates to collect shares from")
	bootstrapCmd.Flags().IntVar(&bootstrapThreshold, "threshold", 1, "number of shares required to reconstruct the rack secret")
	bootstrapCmd.Flags().StringVar(&bootstrapListen, "listen", "::", "IPv6 address to serve this sled's own share on")
}

func runBootstrap(cmd *cobra.Command, args []string) error {
	identity, err := trustquorum.NewIdentity()
	if err != nil {
		return fmt.Errorf("generate trust quorum identity: %w", err)
	}

	// In a real rack this sled's share would already be on disk from
	// the initial split; here a fresh split stands in for that
	// provisioning step.
	shares, err := shamir.Split([]byte("rack-secret-placeholder-material"), bootstrapThreshold, bootstrapThreshold)
	if err != nil {
		return fmt.Errorf("split rack secret: %w", err)
	}

	server, err := trustquorum.NewServer(bootstrapListen, identity, shares[0])
	if err != nil {
		return fmt.Errorf("start trust quorum server: %w", err)
	}
	go func() { _ = server.Run() }()
	defer server.Close()

	if bootstrapPeers == "" {
		fmt.Println("serving trust quorum share on", server.Addr())
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		<-ctx.Done()
		return nil
	}

	peers := strings.Split(bootstrapPeers, ",")
	verifier := shamir.NewVerifier(shares)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	collected, err := trustquorum.CollectShares(ctx, peers, identity, verifier, bootstrapThreshold)
	if err != nil {
		return fmt.Errorf("collect rack secret shares: %w", err)
	}

	secret, err := shamir.Combine(collected)
	if err != nil {
		return fmt.Errorf("reconstruct rack secret: %w", err)
	}

	fmt.Printf("reconstructed %d-byte rack secret from %d shares\n", len(secret), len(collected))
	return nil
}
