package sledagent

import (
	"testing"

	"github.com/sledctl/sledctl/apierr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVlanID(t *testing.T) {
	v, err := NewVlanID(100)
	require.NoError(t, err)
	assert.Equal(t, "100", v.String())

	_, err = NewVlanID(4094)
	assert.NoError(t, err)

	_, err = NewVlanID(4095)
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.KindInvalidRequest))
}

func TestParseVlanID(t *testing.T) {
	v, err := ParseVlanID("42")
	require.NoError(t, err)
	assert.Equal(t, VlanID(42), v)

	for _, bad := range []string{"", "abc", "-1", "70000"} {
		_, err := ParseVlanID(bad)
		assert.Error(t, err, "input %q", bad)
		assert.True(t, apierr.Is(err, apierr.KindInvalidValue), "input %q", bad)
	}

	_, err = ParseVlanID("4095")
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.KindInvalidRequest))
}
