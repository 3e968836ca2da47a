package trustquorum

import (
	"fmt"

	"github.com/sledctl/sledctl/shamir"
)

// encodeShare serializes a shamir.Share as its X byte followed by the
// raw Y bytes; there is no ambiguity to resolve at decode time because
// a session carries exactly one message of known type.
func encodeShare(sh shamir.Share) ([]byte, error) {
	if len(sh.Y) == 0 {
		return nil, fmt.Errorf("trustquorum: refusing to encode an empty share")
	}
	buf := make([]byte, 1+len(sh.Y))
	buf[0] = sh.X
	copy(buf[1:], sh.Y)
	return buf, nil
}

func decodeShare(buf []byte) (shamir.Share, error) {
	if len(buf) < 2 {
		return shamir.Share{}, fmt.Errorf("trustquorum: share payload too short (%d bytes)", len(buf))
	}
	return shamir.Share{X: buf[0], Y: append([]byte(nil), buf[1:]...)}, nil
}
