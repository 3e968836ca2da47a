package shamir

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomSecret(t *testing.T, n int) []byte {
	t.Helper()
	secret := make([]byte, n)
	_, err := rand.Read(secret)
	require.NoError(t, err)
	return secret
}

func TestSplitCombine_AnyKOfNReconstructs(t *testing.T) {
	secret := randomSecret(t, 32)

	shares, err := Split(secret, 3, 5)
	require.NoError(t, err)
	require.Len(t, shares, 5)

	subsets := [][]int{{0, 1, 2}, {0, 2, 4}, {1, 3, 4}, {2, 3, 4}}
	for _, idx := range subsets {
		subset := make([]Share, len(idx))
		for i, j := range idx {
			subset[i] = shares[j]
		}
		got, err := Combine(subset)
		require.NoError(t, err)
		assert.Equal(t, secret, got, "subset %v should reconstruct the secret", idx)
	}
}

func TestCombine_FewerThanKSharesFailsToReconstruct(t *testing.T) {
	secret := randomSecret(t, 16)

	shares, err := Split(secret, 4, 6)
	require.NoError(t, err)

	got, err := Combine(shares[:3])
	require.NoError(t, err) // interpolation always produces output...
	assert.NotEqual(t, secret, got, "...but with k-1 shares it must not be the real secret")
}

func TestCombine_RejectsDuplicateX(t *testing.T) {
	shares, err := Split(randomSecret(t, 8), 2, 3)
	require.NoError(t, err)

	_, err = Combine([]Share{shares[0], shares[0]})
	assert.Error(t, err)
}

func TestSplit_RejectsInvalidThresholds(t *testing.T) {
	secret := randomSecret(t, 8)

	_, err := Split(secret, 0, 5)
	assert.Error(t, err)

	_, err = Split(secret, 6, 5)
	assert.Error(t, err)

	_, err = Split([]byte{}, 1, 1)
	assert.Error(t, err)
}

func TestVerifier_AcceptsGenuineSharesAndRejectsTampering(t *testing.T) {
	shares, err := Split(randomSecret(t, 16), 3, 5)
	require.NoError(t, err)

	v := NewVerifier(shares)
	for _, sh := range shares {
		assert.NoError(t, v.Verify(sh))
	}

	tampered := shares[0]
	tampered.Y = append([]byte(nil), tampered.Y...)
	tampered.Y[0] ^= 0xff
	assert.Error(t, v.Verify(tampered))
}

func TestGFArithmetic_MulInverseRoundTrips(t *testing.T) {
	for x := 1; x < 256; x++ {
		inv := gfInv(byte(x))
		assert.Equal(t, byte(1), gfMul(byte(x), inv), "x=%d", x)
	}
}
