package sledagent

import (
	"strconv"

	"github.com/sledctl/sledctl/apierr"
)

// VlanMax is the maximum VLAN value (inclusive), as specified by IEEE
// 802.1Q.
const VlanMax uint16 = 4094

// VlanID is a validated VLAN tag a sled applies to the guest NICs it
// creates. The zero value is a valid (untagged/priority) VLAN; use the
// pointer form for "no VLAN configured".
type VlanID uint16

// NewVlanID validates id against the 802.1Q range.
func NewVlanID(id uint16) (VlanID, error) {
	if id > VlanMax {
		return 0, apierr.InvalidRequest("VLAN %d out of range (maximum %d)", id, VlanMax)
	}
	return VlanID(id), nil
}

// ParseVlanID parses and validates a VLAN tag from its string form, as
// it arrives from configuration.
func ParseVlanID(s string) (VlanID, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, apierr.InvalidValue(s, "%v", err)
	}
	return NewVlanID(uint16(n))
}

func (v VlanID) String() string {
	return strconv.Itoa(int(v))
}
