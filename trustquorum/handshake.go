package trustquorum

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"net"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// Identity is a sled's long-term signing keypair, used to authenticate
// the ephemeral key exchange performed on every trust quorum
// connection. A fresh X25519 key pair is generated per connection;
// Identity only proves the connection's ephemeral key genuinely came
// from the sled claiming to hold it.
type Identity struct {
	Public  ed25519.PublicKey
	private ed25519.PrivateKey
}

// NewIdentity generates a fresh signing identity.
func NewIdentity() (Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Identity{}, fmt.Errorf("trustquorum: generate identity: %w", err)
	}
	return Identity{Public: pub, private: priv}, nil
}

type helloMessage struct {
	Identity     []byte
	EphemeralPub []byte
	Signature    []byte
}

// runHandshake performs a mutually-authenticated X25519 key exchange
// over conn and returns an established Session. Both sides run the
// same logic; isInitiator decides which side sends its hello first and
// the nonce-space assignment, so the two directions never reuse a
// nonce under the same key.
func runHandshake(conn net.Conn, self Identity, isInitiator bool) (*Session, error) {
	ephPub, ephPriv, err := newEphemeralKeypair()
	if err != nil {
		return nil, err
	}

	ourHello := helloMessage{
		Identity:     []byte(self.Public),
		EphemeralPub: ephPub[:],
		Signature:    ed25519.Sign(self.private, ephPub[:]),
	}

	theirHello, err := exchangeHello(conn, ourHello, isInitiator)
	if err != nil {
		return nil, err
	}

	if len(theirHello.Identity) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("trustquorum: peer identity has wrong size %d", len(theirHello.Identity))
	}
	peerIdentity := ed25519.PublicKey(theirHello.Identity)
	if !ed25519.Verify(peerIdentity, theirHello.EphemeralPub, theirHello.Signature) {
		return nil, fmt.Errorf("trustquorum: peer's ephemeral key signature did not verify")
	}

	var theirEphPub [32]byte
	if len(theirHello.EphemeralPub) != 32 {
		return nil, fmt.Errorf("trustquorum: peer ephemeral key has wrong size %d", len(theirHello.EphemeralPub))
	}
	copy(theirEphPub[:], theirHello.EphemeralPub)

	shared, err := curve25519.X25519(ephPriv[:], theirEphPub[:])
	if err != nil {
		return nil, fmt.Errorf("trustquorum: X25519: %w", err)
	}

	key, err := deriveSessionKey(shared)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("trustquorum: build AEAD: %w", err)
	}

	return newSession(conn, aead, isInitiator, peerIdentity), nil
}

func newEphemeralKeypair() (pub, priv [32]byte, err error) {
	if _, err = rand.Read(priv[:]); err != nil {
		return pub, priv, fmt.Errorf("trustquorum: generate ephemeral key: %w", err)
	}
	p, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return pub, priv, fmt.Errorf("trustquorum: derive ephemeral public key: %w", err)
	}
	copy(pub[:], p)
	return pub, priv, nil
}

// exchangeHello sends ours and reads theirs. The initiator writes
// first to avoid both sides blocking on a read of an unbuffered
// stream socket.
func exchangeHello(conn net.Conn, ours helloMessage, isInitiator bool) (helloMessage, error) {
	if isInitiator {
		if err := sendHello(conn, ours); err != nil {
			return helloMessage{}, err
		}
		return recvHello(conn)
	}
	theirs, err := recvHello(conn)
	if err != nil {
		return helloMessage{}, err
	}
	if err := sendHello(conn, ours); err != nil {
		return helloMessage{}, err
	}
	return theirs, nil
}

func sendHello(conn net.Conn, h helloMessage) error {
	buf := make([]byte, 0, len(h.Identity)+len(h.EphemeralPub)+len(h.Signature)+12)
	buf = appendLenPrefixed(buf, h.Identity)
	buf = appendLenPrefixed(buf, h.EphemeralPub)
	buf = appendLenPrefixed(buf, h.Signature)
	return writeFrame(conn, buf)
}

func recvHello(conn net.Conn) (helloMessage, error) {
	buf, err := readFrame(conn)
	if err != nil {
		return helloMessage{}, err
	}
	var h helloMessage
	rest := buf
	for _, field := range []*[]byte{&h.Identity, &h.EphemeralPub, &h.Signature} {
		v, tail, err := readLenPrefixed(rest)
		if err != nil {
			return helloMessage{}, fmt.Errorf("trustquorum: malformed hello: %w", err)
		}
		*field = v
		rest = tail
	}
	return h, nil
}

func appendLenPrefixed(buf, field []byte) []byte {
	var lenBuf [4]byte
	lenBuf[0] = byte(len(field) >> 24)
	lenBuf[1] = byte(len(field) >> 16)
	lenBuf[2] = byte(len(field) >> 8)
	lenBuf[3] = byte(len(field))
	buf = append(buf, lenBuf[:]...)
	return append(buf, field...)
}

func readLenPrefixed(buf []byte) (field, rest []byte, err error) {
	if len(buf) < 4 {
		return nil, nil, fmt.Errorf("truncated length prefix")
	}
	n := int(buf[0])<<24 | int(buf[1])<<16 | int(buf[2])<<8 | int(buf[3])
	buf = buf[4:]
	if len(buf) < n {
		return nil, nil, fmt.Errorf("truncated field of declared length %d", n)
	}
	return buf[:n], buf[n:], nil
}

// deriveSessionKey stretches the raw X25519 shared secret into a
// chacha20poly1305 key via HKDF, so the session key is never the bare
// Diffie-Hellman output.
func deriveSessionKey(shared []byte) ([]byte, error) {
	kdf := hkdf.New(sha256.New, shared, nil, []byte("sledctl-trust-quorum-v1"))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("trustquorum: derive session key: %w", err)
	}
	return key, nil
}
