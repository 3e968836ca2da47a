package trustquorum

import (
	"crypto/cipher"
	"crypto/ed25519"
	"encoding/binary"
	"fmt"
	"net"
)

// Session is an authenticated, encrypted trust-quorum connection
// established by runHandshake. Exactly one application-level message
// (a Share) flows over it before the connection is closed, per the
// protocol diagram this package implements.
type Session struct {
	conn net.Conn
	aead cipher.AEAD

	// sendCounter/recvCounter keep the two directions' nonces disjoint
	// under a single shared key: the initiator's sends use even
	// counters, the responder's odd, so neither side ever reuses a
	// nonce the other has used.
	sendCounter uint64
	recvCounter uint64

	PeerIdentity ed25519.PublicKey
}

func newSession(conn net.Conn, aead cipher.AEAD, isInitiator bool, peerIdentity ed25519.PublicKey) *Session {
	s := &Session{conn: conn, aead: aead, PeerIdentity: peerIdentity}
	if isInitiator {
		s.sendCounter, s.recvCounter = 0, 1
	} else {
		s.sendCounter, s.recvCounter = 1, 0
	}
	return s
}

func nonceFor(counter uint64, size int) []byte {
	nonce := make([]byte, size)
	binary.BigEndian.PutUint64(nonce[size-8:], counter)
	return nonce
}

// Send encrypts and sends one application message.
func (s *Session) Send(plaintext []byte) error {
	nonce := nonceFor(s.sendCounter, s.aead.NonceSize())
	sealed := s.aead.Seal(nil, nonce, plaintext, nil)
	s.sendCounter += 2
	return writeFrame(s.conn, sealed)
}

// Recv reads and decrypts one application message.
func (s *Session) Recv() ([]byte, error) {
	sealed, err := readFrame(s.conn)
	if err != nil {
		return nil, err
	}
	nonce := nonceFor(s.recvCounter, s.aead.NonceSize())
	plaintext, err := s.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("trustquorum: decrypt failed (tampered or out-of-order message): %w", err)
	}
	s.recvCounter += 2
	return plaintext, nil
}

// Close closes the underlying connection.
func (s *Session) Close() error {
	return s.conn.Close()
}
