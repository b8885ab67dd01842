package main

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyStartupError(t *testing.T) {
	leaseErr := &os.PathError{Op: "open", Path: "/var/lib/dhcpd/dhcpd.leases", Err: errors.New("permission denied")}
	assert.Equal(t, exitCodeLeaseFileError, classifyStartupError(leaseErr))

	wrapped := errors.Join(errors.New("opening journal"), leaseErr)
	assert.Equal(t, exitCodeLeaseFileError, classifyStartupError(wrapped))

	bindErr := errors.New("listening on udp :67: bind: address already in use")
	assert.Equal(t, exitCodeBindError, classifyStartupError(bindErr))
}
