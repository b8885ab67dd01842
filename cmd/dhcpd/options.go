package main

import (
	"flag"
	"fmt"
	"io"
)

// options are the command-line options §6 "CLI" requires at minimum: a
// config path override, a foreground flag, a listening-port override, an
// interface list, and a check-only mode.
//
// Grounded on internal/next/cmd/opt.go's options struct and parseOptions
// shape, narrowed from AdGuardHome's full long/short flag table to the
// handful of flags this server needs.
type options struct {
	// configFile is the path to the YAML ambient config (internal/config's
	// Config), overriding the compile-time default.
	configFile string

	// foreground, if true, keeps the process attached to its controlling
	// terminal instead of detaching. This module never daemonizes on its
	// own — detaching is left to the caller (e.g. systemd, a supervisor) —
	// so this flag only raises the log level from info to debug; it exists
	// for CLI parity with ISC dhcpd's `-f`.
	foreground bool

	// port overrides the standard DHCPv4 server port (67) for the listening
	// socket. 0 means use the default.
	port int

	// interfaces, if non-empty, overrides Config.Interfaces.
	interfaces stringListFlag

	// checkOnly, if true, parses and validates the configuration and DSL
	// file, reports the result, and exits without binding a socket.
	checkOnly bool

	// help, if true, prints the usage message and exits successfully.
	help bool
}

// stringListFlag accumulates repeated `-i eth0 -i eth1`-style flag values,
// since the standard flag package has no built-in repeatable-flag type.
type stringListFlag []string

// String implements the flag.Value interface for stringListFlag.
func (f *stringListFlag) String() string {
	if f == nil {
		return ""
	}

	return fmt.Sprint([]string(*f))
}

// Set implements the flag.Value interface for stringListFlag.
func (f *stringListFlag) Set(v string) error {
	*f = append(*f, v)

	return nil
}

const defaultConfigFile = "/etc/dhcpd/dhcpd.yaml"

// newFlagSet builds the FlagSet shared by parseOptions and usage, so the
// help text always reflects exactly the flags parseOptions registers.
func newFlagSet(cmdName string, opts *options) *flag.FlagSet {
	flags := flag.NewFlagSet(cmdName, flag.ContinueOnError)

	flags.StringVar(&opts.configFile, "c", defaultConfigFile, "path to the configuration file")
	flags.BoolVar(&opts.foreground, "f", false, "run in the foreground")
	flags.IntVar(&opts.port, "p", 0, "listening port (default 67, paired with 68)")
	flags.Var(&opts.interfaces, "i", "interface to listen on (repeatable; overrides the config file's list)")
	flags.BoolVar(&opts.checkOnly, "t", false, "check configuration and lease journal, then exit")
	flags.BoolVar(&opts.help, "h", false, "print this help message and exit")

	return flags
}

// parseOptions parses args (normally os.Args[1:]) into an *options.
func parseOptions(cmdName string, args []string) (opts *options, err error) {
	opts = &options{}
	flags := newFlagSet(cmdName, opts)
	flags.Usage = func() { usage(cmdName, flags.Output()) }

	if err = flags.Parse(args); err != nil {
		return nil, err
	}

	return opts, nil
}

// usage prints a usage message to w, rebuilding a throwaway FlagSet so it
// never depends on one already having been parsed.
func usage(cmdName string, w io.Writer) {
	_, _ = fmt.Fprintf(w, "Usage of %s:\n", cmdName)
	flags := newFlagSet(cmdName, &options{})
	flags.SetOutput(w)
	flags.PrintDefaults()
}
