package optionspace_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcpcore/dhcpd/internal/optionspace"
)

func TestDHCPUniverse_Lookup(t *testing.T) {
	u := optionspace.NewDHCPUniverse()

	def, ok := u.LookupByName("domain-name")
	require.True(t, ok)
	assert.Equal(t, "dhcp", def.Universe)

	byCode, ok := u.Lookup(def.Code)
	require.True(t, ok)
	assert.Equal(t, def.Name, byCode.Name)
}

func TestDHCPUniverse_RegisterCustom(t *testing.T) {
	u := optionspace.NewDHCPUniverse()

	err := u.RegisterCustom(optionspace.Definition{
		Universe: "dhcp",
		Code:     200,
		Name:     "custom-option",
		Format:   []optionspace.Format{optionspace.FormatText},
	})
	require.NoError(t, err)

	def, ok := u.LookupByName("custom-option")
	require.True(t, ok)
	assert.EqualValues(t, 200, def.Code)
}

func TestRegistry(t *testing.T) {
	r := optionspace.NewRegistry()
	r.Register(optionspace.NewDHCPUniverse())

	u, ok := r.Universe("dhcp")
	require.True(t, ok)
	assert.Equal(t, "dhcp", u.Name())

	_, ok = r.Universe("missing")
	assert.False(t, ok)
}
