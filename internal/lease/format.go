package lease

import (
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/dhcpcore/dhcpd/internal/confparse"
)

// timeLayout is the lease-file timestamp format: a weekday digit (0 =
// Sunday) followed by the date and time, matching the `lease <ip> { … }`
// block fields named by §4.6 ("starts", "ends", "tstp", "tsfp",
// "timestamp").
const timeLayout = "2006/01/02 15:04:05"

func writeTime(w io.Writer, field string, t time.Time) {
	if t.IsZero() {
		return
	}

	fmt.Fprintf(w, "  %s %d %s;\n", field, int(t.Weekday()), t.UTC().Format(timeLayout))
}

// WriteRecord serializes l as a `lease <ip> { … }` journal block (§4.6).
// Hook bodies are config-declared, not per-lease state, so they are not
// re-serialized here; a rewrite re-attaches them from the live
// configuration when the lease is reloaded.
func WriteRecord(w io.Writer, l *Lease) error {
	fmt.Fprintf(w, "lease %s {\n", l.IP)

	writeTime(w, "starts", l.Starts)
	writeTime(w, "ends", l.Ends)
	writeTime(w, "tstp", l.TSTP)
	writeTime(w, "tsfp", l.TSFP)
	writeTime(w, "timestamp", l.Timestamp)

	if len(l.HWAddr) > 0 {
		fmt.Fprintf(w, "  hardware %s %s;\n", l.HWType, hexColon(l.HWAddr))
	}

	if len(l.UID) > 0 {
		fmt.Fprintf(w, "  uid %s;\n", hexColon(l.UID))
	}

	if l.ClientHostname != "" {
		fmt.Fprintf(w, "  client-hostname %q;\n", l.ClientHostname)
	}

	if l.Hostname != "" {
		fmt.Fprintf(w, "  hostname %q;\n", l.Hostname)
	}

	if l.Abandoned {
		fmt.Fprintf(w, "  abandoned;\n")
	}

	if l.Bootp {
		fmt.Fprintf(w, "  bootp;\n")
	}

	if l.BillingClass != "" {
		fmt.Fprintf(w, "  billing class %q;\n", l.BillingClass)
	}

	fmt.Fprintf(w, "  binding state %s;\n", l.State)
	_, err := fmt.Fprintf(w, "}\n")

	return err
}

// WriteHostRecord serializes a dynamic host object as a `host <name> { … }`
// journal block (§4.6: "plus `host` and `group` records for dynamic
// host/group objects created via OMAPI"). Only the fields OMAPI can set are
// written; a host's executable statements are config-declared and, like a
// lease's hooks, aren't re-serialized here.
func WriteHostRecord(w io.Writer, h *confparse.Host) error {
	fmt.Fprintf(w, "host %s {\n", h.Name)

	if len(h.HWAddr) > 0 {
		hwType := h.HWType
		if hwType == "" {
			hwType = "ethernet"
		}

		fmt.Fprintf(w, "  hardware %s %s;\n", hwType, hexColon(h.HWAddr))
	}

	if len(h.UID) > 0 {
		fmt.Fprintf(w, "  uid %s;\n", hexColon(h.UID))
	}

	if h.GroupRef != "" {
		fmt.Fprintf(w, "  group %q;\n", h.GroupRef)
	}

	if h.Dynamic {
		fmt.Fprintf(w, "  dynamic;\n")
	}

	if h.Deleted {
		fmt.Fprintf(w, "  deleted;\n")
	}

	_, err := fmt.Fprintf(w, "}\n")

	return err
}

// WriteGroupRecord serializes a named group object as a `group <name> { … }`
// journal block (§4.6). Like [WriteHostRecord], the group's statement list
// itself is config-declared state, not per-object OMAPI state, so it is not
// re-serialized here — only the fact of the group's existence under name.
func WriteGroupRecord(w io.Writer, g *confparse.Group) error {
	fmt.Fprintf(w, "group %q {\n", g.Name)
	_, err := fmt.Fprintf(w, "}\n")

	return err
}

// hexColon renders b as colon-separated hex octets, e.g. "00:11:22".
func hexColon(b []byte) string {
	s := hex.EncodeToString(b)

	out := make([]byte, 0, len(s)+len(s)/2)
	for i := 0; i < len(s); i += 2 {
		if i > 0 {
			out = append(out, ':')
		}

		out = append(out, s[i:i+2]...)
	}

	return string(out)
}
