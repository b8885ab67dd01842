package confparse_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcpcore/dhcpd/internal/confparse"
	"github.com/dhcpcore/dhcpd/internal/token"
)

func parse(t *testing.T, src string) (*confparse.File, *confparse.Parser) {
	t.Helper()

	lx := token.New(strings.NewReader(src), "test")
	p := confparse.New(lx)
	f := p.Parse()

	return f, p
}

func TestParser_FixedAddressHost(t *testing.T) {
	src := `
host foo {
  hardware ethernet 00:11:22:33:44:55;
  fixed-address 10.0.0.7;
}
`
	f, p := parse(t, src)

	require.False(t, p.WarningsOccurred())
	require.Len(t, f.Hosts, 1)

	h := f.Hosts[0]
	assert.Equal(t, "foo", h.Name)
	assert.Equal(t, []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}, h.HWAddr)
	require.NotNil(t, h.FixedAddress)
}

func TestParser_SubnetWithRange(t *testing.T) {
	src := `
subnet 10.0.0.0 netmask 255.255.255.0 {
  range 10.0.0.100 10.0.0.101;
  authoritative;
}
`
	f, p := parse(t, src)

	require.False(t, p.WarningsOccurred())
	require.Len(t, f.Subnets, 1)

	sn := f.Subnets[0]
	assert.Equal(t, "10.0.0.0", sn.Network)
	assert.Equal(t, "255.255.255.0", sn.Netmask)
	require.Len(t, sn.Pools, 1)
	require.Len(t, sn.Pools[0].Ranges, 1)
	assert.Equal(t, "10.0.0.100", sn.Pools[0].Ranges[0].Start)
	assert.Equal(t, "10.0.0.101", sn.Pools[0].Ranges[0].End)
}

func TestParser_PoolPermitDeny(t *testing.T) {
	src := `
subnet 10.0.0.0 netmask 255.255.255.0 {
  pool {
    deny unknown-clients;
    range 10.0.0.10 10.0.0.20;
  }
}
`
	f, p := parse(t, src)

	require.False(t, p.WarningsOccurred())
	require.Len(t, f.Subnets[0].Pools, 1)
	assert.Contains(t, f.Subnets[0].Pools[0].Prohibit, "unknown-clients")
}

func TestParser_ClassMatchIf(t *testing.T) {
	src := `
class "foo" {
  match if option exists dhcp-client-identifier;
}
`
	f, p := parse(t, src)

	require.False(t, p.WarningsOccurred())
	require.Len(t, f.Classes, 1)
	assert.Equal(t, "foo", f.Classes[0].Name)
	require.NotNil(t, f.Classes[0].Match)
}

func TestParser_IfElsifElse(t *testing.T) {
	src := `
if known {
  set x = "a";
} elsif static {
  set x = "b";
} else {
  set x = "c";
}
`
	f, _ := parse(t, src)

	require.Len(t, f.Root.Stmts, 1)

	ifs, ok := f.Root.Stmts[0].(*confparse.IfStmt)
	require.True(t, ok)
	require.Len(t, ifs.Elifs, 1)
	require.Len(t, ifs.Else, 1)
}

func TestParser_OnCommitHook(t *testing.T) {
	src := `
on commit {
  set x = "bye";
}
`
	f, p := parse(t, src)

	require.False(t, p.WarningsOccurred())
	require.Len(t, f.Root.Stmts, 1)

	on, ok := f.Root.Stmts[0].(*confparse.OnStmt)
	require.True(t, ok)
	assert.Equal(t, []confparse.OnEvent{confparse.OnCommit}, on.Events)
}

func TestParser_OptionSupersedePrecedence(t *testing.T) {
	src := `
option domain-name "a";
supersede option domain-name "c";
`
	f, p := parse(t, src)

	require.False(t, p.WarningsOccurred())
	require.Len(t, f.Root.Stmts, 2)

	opt1, ok := f.Root.Stmts[0].(*confparse.OptionStmt)
	require.True(t, ok)
	assert.Equal(t, confparse.OptSupersede, opt1.Action)
	assert.Equal(t, "domain-name", opt1.Name)
}

func TestParser_ResyncOnMalformedStatement(t *testing.T) {
	src := `
host foo {
  this is not valid;
  fixed-address 10.0.0.7;
}
`
	f, p := parse(t, src)

	require.True(t, p.WarningsOccurred())
	require.Len(t, f.Hosts, 1)
	require.NotNil(t, f.Hosts[0].FixedAddress)
}

func TestParser_ScopeViolation(t *testing.T) {
	src := `
class "foo" {
  host bar {
    fixed-address 10.0.0.1;
  }
}
`
	_, p := parse(t, src)

	require.True(t, p.WarningsOccurred())
}

func TestParser_SwitchCaseDefault(t *testing.T) {
	src := `
switch (option dhcp-message-type) {
  case 1:
    set x = "discover";
  default:
    set x = "other";
}
`
	f, p := parse(t, src)

	require.False(t, p.WarningsOccurred())
	require.Len(t, f.Root.Stmts, 1)

	sw, ok := f.Root.Stmts[0].(*confparse.SwitchStmt)
	require.True(t, ok)
	require.Len(t, sw.Cases, 1)
	require.Len(t, sw.Default, 1)
}

func TestParser_SharedNetworkWithSubnets(t *testing.T) {
	src := `
shared-network office {
  subnet 10.0.0.0 netmask 255.255.255.0 {
    range 10.0.0.10 10.0.0.20;
  }
  subnet 10.0.1.0 netmask 255.255.255.0 {
    range 10.0.1.10 10.0.1.20;
  }
}
`
	f, p := parse(t, src)

	require.False(t, p.WarningsOccurred())
	require.Len(t, f.SharedNetwork, 1)
	assert.Len(t, f.SharedNetwork[0].Subnets, 2)
}
