// Package trustquorum implements the rack-initialization share
// exchange protocol: each sled holds one share of a Shamir-split rack
// secret, and on boot dials its rack-mates over IPv6 to collect enough
// shares to reconstruct it. The wire protocol is a from-scratch
// authenticated transport (see handshake.go/session.go) carrying
// exactly one Share message per connection.
package trustquorum

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/sledctl/sledctl/shamir"
)

// Port is the fixed TCP port every sled's trust quorum server listens
// on.
const Port = 7645

// withDefaultPort normalizes a peer/listen address: a bare IPv6 host
// gets the protocol's fixed Port appended; an address that already
// carries a port passes through.
func withDefaultPort(addr string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, strconv.Itoa(Port))
}

// Server accepts trust quorum connections and answers each with this
// sled's share. It never serves more than one share per connection.
type Server struct {
	identity Identity
	share    shamir.Share

	listener net.Listener
	done     chan struct{}
}

// NewServer constructs a Server bound to an IPv6-only listener. addr
// should be an IPv6 address such as "::" (all interfaces) or a
// specific link-local address; it may carry an explicit port ("[::1]:0"
// style), otherwise the fixed protocol Port is used. IPv4 is never
// used for this protocol.
func NewServer(addr string, identity Identity, share shamir.Share) (*Server, error) {
	listenAddr := withDefaultPort(addr)
	ln, err := net.Listen("tcp6", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("trustquorum: listen on %s: %w", listenAddr, err)
	}
	return &Server{
		identity: identity,
		share:    share,
		listener: ln,
		done:     make(chan struct{}),
	}, nil
}

// Addr returns the server's bound address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Run accepts connections until Close is called, spawning one
// responder goroutine per connection so a slow or hostile peer never
// blocks the accept loop.
func (s *Server) Run() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return nil
			default:
				return fmt.Errorf("trustquorum: accept: %w", err)
			}
		}
		go s.runResponder(conn)
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	close(s.done)
	return s.listener.Close()
}

func (s *Server) runResponder(conn net.Conn) {
	defer conn.Close()

	addr := conn.RemoteAddr()
	slog.Debug("trust quorum: accepted connection", "addr", addr)

	session, err := runHandshake(conn, s.identity, false)
	if err != nil {
		slog.Warn("trust quorum: handshake failed", "addr", addr, "err", err)
		return
	}

	payload, err := encodeShare(s.share)
	if err != nil {
		slog.Warn("trust quorum: encode share failed", "addr", addr, "err", err)
		return
	}

	if err := session.Send(payload); err != nil {
		slog.Warn("trust quorum: send share failed", "addr", addr, "err", err)
		return
	}

	slog.Info("trust quorum: sent share", "addr", addr)
}
