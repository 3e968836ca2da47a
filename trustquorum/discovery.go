package trustquorum

import (
	"fmt"
	"net"
	"time"

	"golang.org/x/net/ipv6"
)

// multicastGroup is the link-local multicast address sleds announce
// themselves on. It is scoped per-interface, so each interface joins
// separately.
const multicastGroup = "ff02::1:7645"

const announceInterval = 2 * time.Second

// Announcer periodically multicasts this sled's own address on iface
// so rack-mates can discover it without prior configuration.
type Announcer struct {
	conn    *ipv6.PacketConn
	iface   *net.Interface
	payload []byte
	stop    chan struct{}
}

// NewAnnouncer joins the trust quorum multicast group on iface and
// prepares to announce selfAddr.
func NewAnnouncer(iface *net.Interface, selfAddr string) (*Announcer, error) {
	udpConn, err := net.ListenPacket("udp6", fmt.Sprintf("[::]:%d", Port))
	if err != nil {
		return nil, fmt.Errorf("trustquorum: listen for multicast: %w", err)
	}

	pc := ipv6.NewPacketConn(udpConn)
	group := net.ParseIP(multicastGroup)
	if err := pc.JoinGroup(iface, &net.UDPAddr{IP: group}); err != nil {
		udpConn.Close()
		return nil, fmt.Errorf("trustquorum: join multicast group on %s: %w", iface.Name, err)
	}

	return &Announcer{
		conn:    pc,
		iface:   iface,
		payload: []byte(selfAddr),
		stop:    make(chan struct{}),
	}, nil
}

// Run sends an announcement every announceInterval until Close is called.
func (a *Announcer) Run() {
	dst := &net.UDPAddr{IP: net.ParseIP(multicastGroup), Port: Port}
	ticker := time.NewTicker(announceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := a.conn.WriteTo(a.payload, nil, dst); err != nil {
				continue // a dropped announcement is benign; the next tick retries
			}
		case <-a.stop:
			return
		}
	}
}

// Close stops announcing and leaves the multicast group.
func (a *Announcer) Close() error {
	close(a.stop)
	return a.conn.Close()
}

// Listener receives announcements from rack-mates and reports their
// source addresses via Peers.
type Listener struct {
	conn *ipv6.PacketConn
	buf  []byte
}

// NewListener joins the trust quorum multicast group on iface to
// receive peer announcements.
func NewListener(iface *net.Interface) (*Listener, error) {
	udpConn, err := net.ListenPacket("udp6", fmt.Sprintf("[::]:%d", Port))
	if err != nil {
		return nil, fmt.Errorf("trustquorum: listen for multicast: %w", err)
	}

	pc := ipv6.NewPacketConn(udpConn)
	group := net.ParseIP(multicastGroup)
	if err := pc.JoinGroup(iface, &net.UDPAddr{IP: group}); err != nil {
		udpConn.Close()
		return nil, fmt.Errorf("trustquorum: join multicast group on %s: %w", iface.Name, err)
	}

	return &Listener{conn: pc, buf: make([]byte, 512)}, nil
}

// Next blocks until an announcement arrives and returns the
// announcing peer's address as it reported itself.
func (l *Listener) Next() (string, error) {
	n, _, _, err := l.conn.ReadFrom(l.buf)
	if err != nil {
		return "", fmt.Errorf("trustquorum: read multicast announcement: %w", err)
	}
	return string(l.buf[:n]), nil
}

// Close leaves the multicast group.
func (l *Listener) Close() error {
	return l.conn.Close()
}
