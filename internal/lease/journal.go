package lease

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/google/renameio/v2/maybe"
)

// journalPerm is the permission bits for the lease journal file, matching
// internal/dhcpsvc/db.go's databasePerm.
const journalPerm fs.FileMode = 0o640

// Writer serializes a single lease into its `lease <ip> { … }` journal
// record. [ReadJournal] in this package is the matching reader (the journal
// shares the configuration language's grammar per §4.6 "Lease journal
// format").
type Writer func(w io.Writer, l *Lease) error

// Journal is an append-only record of lease state transitions, generalizing
// internal/dhcpsvc/db.go's single JSON-snapshot dbStore into the text
// append-log described by §4.6: "a text stream of top-level records …
// replaying the entire journal against a clean snapshot reproduces the
// current state exactly."
//
// Journal is safe for concurrent use.
type Journal struct {
	mu sync.Mutex

	path      string
	write     Writer
	appendLog *os.File

	// entriesSinceRewrite counts appended records since the last full
	// rewrite; [Journal.NeedsRewrite] compares it with rewriteThreshold.
	entriesSinceRewrite int
}

// rewriteThreshold is the number of appended entries after which
// [Journal.NeedsRewrite] reports true and Append/AppendRaw log a debug
// message. The Journal does not compact itself: a full rewrite into a
// single up-to-date snapshot happens only when a caller invokes
// [Journal.Rewrite].
const rewriteThreshold = 1000

// Open opens (creating if absent) the journal file at path for appending.
func Open(path string) (*Journal, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, journalPerm)
	if err != nil {
		return nil, fmt.Errorf("opening lease journal: %w", err)
	}

	return &Journal{path: path, appendLog: f}, nil
}

// Close closes the underlying append file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.appendLog.Close()
}

// Append writes a single journal record for l, per the commit rule of §4.5:
// "any transition that changes any persisted field … is journaled before
// the response leaves the host."
func (j *Journal) Append(ctx context.Context, logger *slog.Logger, l *Lease, write Writer) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.write = write

	buf := bufio.NewWriter(j.appendLog)
	if err := write(buf, l); err != nil {
		return fmt.Errorf("serializing lease record: %w", err)
	}

	if err := buf.Flush(); err != nil {
		return fmt.Errorf("flushing lease record: %w", err)
	}

	j.entriesSinceRewrite++
	if j.entriesSinceRewrite >= rewriteThreshold {
		logger.DebugContext(ctx, "journal rewrite threshold reached", "entries", j.entriesSinceRewrite)
	}

	return nil
}

// AppendRaw writes a pre-serialized record verbatim, for journal entries
// that aren't a [Lease] — the `host <name> { … }` and `group <name> { … }`
// records §4.6 requires for objects created through the OMAPI boundary
// (internal/omapi formats these via [WriteHostRecord]/[WriteGroupRecord]).
func (j *Journal) AppendRaw(ctx context.Context, logger *slog.Logger, record []byte) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, err := j.appendLog.Write(record); err != nil {
		return fmt.Errorf("appending raw journal record: %w", err)
	}

	j.entriesSinceRewrite++
	if j.entriesSinceRewrite >= rewriteThreshold {
		logger.DebugContext(ctx, "journal rewrite threshold reached", "entries", j.entriesSinceRewrite)
	}

	return nil
}

// NeedsRewrite reports whether enough records have been appended since the
// last [Journal.Rewrite] to warrant compaction.
func (j *Journal) NeedsRewrite() bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.entriesSinceRewrite >= rewriteThreshold
}

// Rewrite replaces the journal file with a single record per lease in
// leases, using [maybe.WriteFile]'s atomic rename so a crash mid-rewrite
// never leaves a half-written journal (same mechanism as
// internal/dhcpsvc/db.go's dbStore, generalized from one JSON document to
// one record per lease).
func (j *Journal) Rewrite(leases []*Lease) (err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.write == nil {
		return errors.Error("rewrite requested before any append configured a writer")
	}

	var buf []byte
	for _, l := range leases {
		w := &byteSliceWriter{}
		if err = j.write(w, l); err != nil {
			return fmt.Errorf("serializing lease %s: %w", l.IP, err)
		}

		buf = append(buf, w.data...)
	}

	if err = maybe.WriteFile(j.path, buf, journalPerm); err != nil {
		return fmt.Errorf("rewriting lease journal: %w", err)
	}

	if err = j.appendLog.Close(); err != nil {
		return fmt.Errorf("closing stale append handle: %w", err)
	}

	j.appendLog, err = os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, journalPerm)
	if err != nil {
		return fmt.Errorf("reopening lease journal: %w", err)
	}

	j.entriesSinceRewrite = 0

	return nil
}

// byteSliceWriter is a minimal io.Writer accumulating into a slice, avoiding
// a bytes.Buffer import for this narrow use.
type byteSliceWriter struct{ data []byte }

func (w *byteSliceWriter) Write(p []byte) (int, error) {
	w.data = append(w.data, p...)

	return len(p), nil
}

// timeOrZero formats t as RFC 3339, or "" if t is the zero value — the same
// convention internal/dhcpsvc/db.go's toDBLease uses for static leases with
// no real expiry.
func timeOrZero(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return t.Format(time.RFC3339)
}
