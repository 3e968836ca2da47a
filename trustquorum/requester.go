package trustquorum

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sledctl/sledctl/shamir"
)

// dialTimeout bounds how long a single peer connection attempt may take.
const dialTimeout = 5 * time.Second

// RequestShare dials a single peer's trust quorum server, completes
// the handshake, and receives its share. addr is a bare IPv6 host
// (the fixed Port is appended) or an explicit host:port.
func RequestShare(ctx context.Context, addr string, self Identity) (shamir.Share, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp6", withDefaultPort(addr))
	if err != nil {
		return shamir.Share{}, fmt.Errorf("trustquorum: dial %s: %w", addr, err)
	}
	defer conn.Close()

	session, err := runHandshake(conn, self, true)
	if err != nil {
		return shamir.Share{}, fmt.Errorf("trustquorum: handshake with %s: %w", addr, err)
	}

	payload, err := session.Recv()
	if err != nil {
		return shamir.Share{}, fmt.Errorf("trustquorum: receive share from %s: %w", addr, err)
	}

	return decodeShare(payload)
}

// CollectShares dials every address in peers concurrently. Once k
// valid shares (verified against verifier, when non-nil) have arrived
// it cancels any still-outstanding dials; it returns after every
// per-peer attempt has finished. Per-peer
// failures (a rack-mate that is down, or sends a share that fails
// verification) are expected in normal operation — a rack tolerates
// some sleds being unreachable — so they're aggregated rather than
// failing the whole collection unless too few peers respond.
func CollectShares(ctx context.Context, peers []string, self Identity, verifier *shamir.Verifier, k int) ([]shamir.Share, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu      sync.Mutex
		shares  []shamir.Share
		seen    = make(map[byte]bool)
		allErrs *multierror.Error
		wg      sync.WaitGroup
	)

	for _, addr := range peers {
		wg.Add(1)
		go func(addr string) {
			defer wg.Done()

			sh, err := RequestShare(ctx, addr, self)
			if err != nil {
				mu.Lock()
				allErrs = multierror.Append(allErrs, fmt.Errorf("%s: %w", addr, err))
				mu.Unlock()
				return
			}
			if verifier != nil {
				if err := verifier.Verify(sh); err != nil {
					mu.Lock()
					allErrs = multierror.Append(allErrs, fmt.Errorf("%s: %w", addr, err))
					mu.Unlock()
					return
				}
			}

			mu.Lock()
			if seen[sh.X] {
				// Two peers served the same share; it can't count
				// toward the threshold twice.
				allErrs = multierror.Append(allErrs, fmt.Errorf("%s: duplicate share x=%d", addr, sh.X))
				mu.Unlock()
				return
			}
			seen[sh.X] = true
			shares = append(shares, sh)
			haveEnough := len(shares) >= k
			mu.Unlock()

			if haveEnough {
				cancel()
			}
		}(addr)
	}

	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(shares) < k {
		if allErrs != nil {
			return nil, fmt.Errorf("trustquorum: only collected %d/%d shares: %w", len(shares), k, allErrs)
		}
		return nil, fmt.Errorf("trustquorum: only collected %d/%d shares", len(shares), k)
	}
	return shares[:k], nil
}
