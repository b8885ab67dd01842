package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcpcore/dhcpd/internal/config"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "dhcpd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	return path
}

func TestLoad_Valid(t *testing.T) {
	path := writeConfigFile(t, `
enabled: true
interfaces: [eth0]
config_file: /etc/dhcpd/dhcpd.conf
journal_path: /var/lib/dhcpd/leases
lease_duration: 3600
`)

	c, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"eth0"}, c.Interfaces)
	assert.Equal(t, "/etc/dhcpd/dhcpd.conf", c.ConfigFile)
}

func TestLoad_DisabledSkipsValidation(t *testing.T) {
	path := writeConfigFile(t, "enabled: false\n")

	c, err := config.Load(path)
	require.NoError(t, err)
	assert.False(t, c.Enabled)
}

func TestConfig_Validate_MissingFields(t *testing.T) {
	path := writeConfigFile(t, "enabled: true\n")

	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestDDNSConfig_Validate(t *testing.T) {
	d := &config.DDNSConfig{Server: "127.0.0.1:53", Net: "udp", ForwardZone: "example.com"}
	assert.NoError(t, d.Validate())

	bad := &config.DDNSConfig{Server: "127.0.0.1:53", Net: "udp", ForwardZone: "not a domain!"}
	assert.Error(t, bad.Validate())

	disabled := &config.DDNSConfig{}
	assert.NoError(t, disabled.Validate())
}
