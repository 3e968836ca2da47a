package shamir

import (
	"bytes"
	"crypto/sha256"
	"fmt"
)

// Verifier checks that a received Share matches the digest the
// secret's owner recorded when it was first split, so a corrupted or
// maliciously substituted share is caught before it corrupts a
// reconstruction rather than after.
type Verifier struct {
	digests map[byte][]byte
}

// NewVerifier computes a commitment digest for every share up front.
func NewVerifier(shares []Share) *Verifier {
	v := &Verifier{digests: make(map[byte][]byte, len(shares))}
	for _, sh := range shares {
		v.digests[sh.X] = digestShare(sh)
	}
	return v
}

// Verify reports whether sh matches the digest recorded for its X
// value at NewVerifier time. A share whose X was never seen is
// rejected outright.
func (v *Verifier) Verify(sh Share) error {
	want, ok := v.digests[sh.X]
	if !ok {
		return fmt.Errorf("shamir: no commitment recorded for share x=%d", sh.X)
	}
	if !bytes.Equal(want, digestShare(sh)) {
		return fmt.Errorf("shamir: share x=%d failed verification", sh.X)
	}
	return nil
}

func digestShare(sh Share) []byte {
	h := sha256.New()
	h.Write([]byte{sh.X})
	h.Write(sh.Y)
	return h.Sum(nil)
}
