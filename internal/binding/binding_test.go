package binding_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcpcore/dhcpd/internal/binding"
)

func TestScope_VarLeafToRootFirstHit(t *testing.T) {
	root := binding.NewRoot()
	root.SetVar("x", binding.Value{Data: []byte("root")})

	mid := binding.NewChild(root)

	leaf := binding.NewChild(mid)
	leaf.SetVar("x", binding.Value{Data: []byte("leaf")})

	v, ok := leaf.Var("x")
	require.True(t, ok)
	assert.Equal(t, "leaf", string(v.Data))

	v, ok = mid.Var("x")
	require.True(t, ok)
	assert.Equal(t, "root", string(v.Data))
}

func TestScope_OptionSupersede(t *testing.T) {
	root := binding.NewRoot()
	root.Supersede("dhcp", "domain-name", binding.Value{Data: []byte("a")})

	subnet := binding.NewChild(root)
	subnet.Supersede("dhcp", "domain-name", binding.Value{Data: []byte("b")})

	host := binding.NewChild(subnet)
	host.Supersede("dhcp", "domain-name", binding.Value{Data: []byte("c")})

	v, ok := host.Option("dhcp", "domain-name")
	require.True(t, ok)
	assert.Equal(t, "c", string(v.Data))

	v, ok = subnet.Option("dhcp", "domain-name")
	require.True(t, ok)
	assert.Equal(t, "b", string(v.Data))
}

func TestScope_OptionDefaultDoesNotOverride(t *testing.T) {
	root := binding.NewRoot()
	root.Supersede("dhcp", "domain-name", binding.Value{Data: []byte("a")})

	child := binding.NewChild(root)
	child.Default("dhcp", "domain-name", binding.Value{Data: []byte("ignored")})

	v, ok := child.Option("dhcp", "domain-name")
	require.True(t, ok)
	assert.Equal(t, "a", string(v.Data))
}

func TestScope_OptionDefaultAppliesWhenNoOuter(t *testing.T) {
	root := binding.NewRoot()
	child := binding.NewChild(root)
	child.Default("dhcp", "domain-name", binding.Value{Data: []byte("fallback")})

	v, ok := child.Option("dhcp", "domain-name")
	require.True(t, ok)
	assert.Equal(t, "fallback", string(v.Data))
}

func TestScope_AppendPrepend(t *testing.T) {
	root := binding.NewRoot()
	root.Supersede("dhcp", "x", binding.Value{Data: []byte("A")})

	child := binding.NewChild(root)
	child.Append("dhcp", "x", binding.Value{Data: []byte("B")})

	v, _ := child.Option("dhcp", "x")
	assert.Equal(t, "AB", string(v.Data))

	child2 := binding.NewChild(root)
	child2.Prepend("dhcp", "x", binding.Value{Data: []byte("B")})

	v2, _ := child2.Option("dhcp", "x")
	assert.Equal(t, "BA", string(v2.Data))
}

func TestScope_IsAuthoritative(t *testing.T) {
	root := binding.NewRoot()
	yes := true
	root.Authoritative = &yes

	child := binding.NewChild(root)
	assert.True(t, child.IsAuthoritative())

	no := false
	child.Authoritative = &no
	assert.False(t, child.IsAuthoritative())
}

func TestScope_UnsetVar(t *testing.T) {
	root := binding.NewRoot()
	root.SetVar("x", binding.Value{Data: []byte("a")})
	root.UnsetVar("x")

	_, ok := root.Var("x")
	assert.False(t, ok)
}
