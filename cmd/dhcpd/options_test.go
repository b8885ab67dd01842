package main

import (
	"errors"
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOptions_defaults(t *testing.T) {
	opts, err := parseOptions("dhcpd", nil)
	require.NoError(t, err)

	assert.Equal(t, defaultConfigFile, opts.configFile)
	assert.False(t, opts.foreground)
	assert.Zero(t, opts.port)
	assert.Empty(t, opts.interfaces)
	assert.False(t, opts.checkOnly)
	assert.False(t, opts.help)
}

func TestParseOptions_overrides(t *testing.T) {
	opts, err := parseOptions("dhcpd", []string{
		"-c", "/tmp/dhcpd.yaml",
		"-f",
		"-p", "6700",
		"-i", "eth0",
		"-i", "eth1",
		"-t",
	})
	require.NoError(t, err)

	assert.Equal(t, "/tmp/dhcpd.yaml", opts.configFile)
	assert.True(t, opts.foreground)
	assert.Equal(t, 6700, opts.port)
	assert.Equal(t, stringListFlag{"eth0", "eth1"}, opts.interfaces)
	assert.True(t, opts.checkOnly)
}

func TestParseOptions_help(t *testing.T) {
	opts, err := parseOptions("dhcpd", []string{"-h"})
	require.NoError(t, err)
	assert.True(t, opts.help)
}

func TestParseOptions_unknownFlag(t *testing.T) {
	_, err := parseOptions("dhcpd", []string{"-bogus"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, flag.ErrHelp))
}

func TestStringListFlag(t *testing.T) {
	var f stringListFlag

	assert.Equal(t, "[]", f.String())

	require.NoError(t, f.Set("eth0"))
	require.NoError(t, f.Set("eth1"))
	assert.Equal(t, stringListFlag{"eth0", "eth1"}, f)
	assert.Equal(t, "[eth0 eth1]", f.String())
}
