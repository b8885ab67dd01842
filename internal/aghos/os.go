// Package aghos contains the OS-specific privilege-drop helpers
// cmd/dhcpd uses to give up root after binding the listening socket.
package aghos

import (
	"fmt"
	"runtime"

	"github.com/AdguardTeam/golibs/errors"
)

// Unsupported is a helper that returns a wrapped [errors.ErrUnsupported].
func Unsupported(op string) (err error) {
	return fmt.Errorf("%s: not supported on %s: %w", op, runtime.GOOS, errors.ErrUnsupported)
}
