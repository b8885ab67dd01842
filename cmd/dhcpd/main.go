// Command dhcpd runs the DHCPv4 server: it loads the ambient YAML config and
// the host/subnet/group DSL it points to, replays the lease journal, binds
// the listening socket, and serves DHCPDISCOVER/REQUEST/DECLINE/RELEASE/
// INFORM and BOOTP traffic until told to stop.
//
// Exit codes (§6 "CLI"): 0 on success; a distinct non-zero code per class of
// startup failure (argument error, config parse error, lease journal
// error, socket bind failure, privilege-drop failure).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/osutil"

	"github.com/dhcpcore/dhcpd/internal/aghos"
	"github.com/dhcpcore/dhcpd/internal/config"
	"github.com/dhcpcore/dhcpd/internal/server"
)

// Exit codes for each class of startup failure §6 "CLI" names. Arranged so
// a caller scripting around this binary can tell failure classes apart
// without parsing log output.
const (
	exitCodeConfigError    osutil.ExitCode = 2
	exitCodeLeaseFileError osutil.ExitCode = 3
	exitCodeBindError      osutil.ExitCode = 4
	exitCodePrivDropError  osutil.ExitCode = 5
)

// shutdownTimeout bounds how long Shutdown waits for the event loop and
// read loop to exit after a shutdown signal.
const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(int(run(context.Background(), os.Args[1:])))
}

func run(ctx context.Context, args []string) (code osutil.ExitCode) {
	opts, err := parseOptions("dhcpd", args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return osutil.ExitCodeSuccess
		}

		return osutil.ExitCodeArgumentError
	}

	if opts.help {
		usage("dhcpd", os.Stdout)

		return osutil.ExitCodeSuccess
	}

	logger := newLogger(opts)

	cfg, err := config.Load(opts.configFile)
	if err != nil {
		logger.ErrorContext(ctx, "loading config", "error", err)

		return exitCodeConfigError
	}

	if len(opts.interfaces) > 0 {
		cfg.Interfaces = opts.interfaces
	}

	rt, err := config.LoadNetwork(cfg, logger)
	if err != nil {
		logger.ErrorContext(ctx, "loading network declarations", "error", err)

		return exitCodeConfigError
	}

	if opts.checkOnly {
		logger.InfoContext(ctx, "configuration OK",
			"networks", len(rt.Networks), "leases", len(rt.Leases))

		return osutil.ExitCodeSuccess
	}

	probeInterfaces(ctx, logger, cfg.Interfaces)

	srv, err := server.New(cfg, rt, logger, opts.port)
	if err != nil {
		logger.ErrorContext(ctx, "starting server", "error", err)

		return classifyStartupError(err)
	}

	if err = dropPrivileges(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "dropping privileges", "error", err)

		return exitCodePrivDropError
	}

	watcher, err := config.NewWatcher(cfg, logger)
	if err != nil {
		logger.WarnContext(ctx, "config watch disabled", "error", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err = srv.Start(runCtx); err != nil {
		logger.ErrorContext(ctx, "starting event loop", "error", err)

		return exitCodeBindError
	}

	if watcher != nil {
		go watcher.Run(runCtx, cfg, func(next *config.Runtime) {
			if rerr := srv.Reload(cfg, next); rerr != nil {
				logger.ErrorContext(runCtx, "applying reloaded config", "error", rerr)
			} else {
				logger.InfoContext(runCtx, "config reloaded")
			}
		})
	}

	code = waitForSignal(ctx, logger, srv)

	if watcher != nil {
		_ = watcher.Close()
	}

	return code
}

// waitForSignal blocks until a shutdown signal arrives, then shuts srv down.
//
// Grounded on internal/next/cmd/signal.go's signalHandler: the same
// osutil.DefaultSignalNotifier/NotifyShutdownSignal pairing, narrowed to
// shutdown-only since this server's reload path already runs continuously
// via config.Watcher rather than waiting for a signal to trigger it.
func waitForSignal(ctx context.Context, logger *slog.Logger, srv *server.Server) osutil.ExitCode {
	sigCh := make(chan os.Signal, 1)
	notifier := osutil.DefaultSignalNotifier{}
	osutil.NotifyShutdownSignal(notifier, sigCh)
	defer signal.Stop(sigCh)

	sig := <-sigCh
	logger.InfoContext(ctx, "received signal, shutting down", "signal", sig)

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.ErrorContext(ctx, "shutdown", "error", err)

		return osutil.ExitCodeFailure
	}

	return osutil.ExitCodeSuccess
}

// dropPrivileges switches to an unprivileged user/group after the listening
// socket is already bound, following the common daemon pattern of binding a
// privileged port as root then giving up root for everything else. It's a
// no-op when the process isn't running as root, since there's nothing to
// drop.
//
// Grounded on internal/aghos.SetUser/SetGroup (user_unix.go's
// syscall.Setuid/Setgid), reused directly rather than reimplemented.
func dropPrivileges(ctx context.Context, logger *slog.Logger) error {
	if os.Geteuid() != 0 {
		return nil
	}

	const unprivilegedGroup = "nogroup"
	const unprivilegedUser = "nobody"

	if err := aghos.SetGroup(unprivilegedGroup); err != nil {
		return fmt.Errorf("setting group: %w", err)
	}

	if err := aghos.SetUser(unprivilegedUser); err != nil {
		return fmt.Errorf("setting user: %w", err)
	}

	logger.InfoContext(ctx, "dropped root privileges", "user", unprivilegedUser, "group", unprivilegedGroup)

	return nil
}

// classifyStartupError maps a server.New failure to the distinct exit code
// its underlying cause belongs to: a journal open failure is a lease-file
// error, anything else from listener construction is a bind failure.
func classifyStartupError(err error) osutil.ExitCode {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return exitCodeLeaseFileError
	}

	return exitCodeBindError
}

// newLogger builds the process-wide logger, grounded on
// internal/home/log.go's newSlogLogger.
func newLogger(opts *options) *slog.Logger {
	lvl := slog.LevelInfo
	if opts.foreground {
		lvl = slog.LevelDebug
	}

	return slogutil.New(&slogutil.Config{
		Format:       slogutil.FormatAdGuardLegacy,
		Level:        lvl,
		AddTimestamp: true,
	})
}
