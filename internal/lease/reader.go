package lease

import (
	"fmt"
	"io"
	"net/netip"
	"strconv"
	"time"

	"github.com/dhcpcore/dhcpd/internal/confparse"
	"github.com/dhcpcore/dhcpd/internal/token"
)

// ReadJournal replays a §4.6 lease-journal text stream record by record,
// returning the final per-IP lease state, per-name dynamic host objects,
// and per-name group objects after applying last-writer-wins supersession
// ("later records for the same IP supersede earlier ones", §4.6).
// internal/config's LoadNetwork calls this at startup, before [Open] begins
// appending further records, and again on each configuration reload.
//
// ReadJournal only understands the record shapes [WriteRecord],
// [WriteHostRecord], and [WriteGroupRecord] emit — it is this server's own
// journal reader, not a general ISC dhcpd.leases parser. Those writers
// never emit hook bodies (`on <event> { … }` is config-declared state, not
// per-record state — see [WriteRecord]'s doc comment), so this reader
// doesn't need to round-trip them; skipStatement's brace-balancing exists
// only to tolerate an unrecognized *bare* field gracefully, not to parse
// arbitrary nested statements.
func ReadJournal(
	r io.Reader,
	name string,
) (leases map[netip.Addr]*Lease, hosts map[string]*confparse.Host, groups map[string]*confparse.Group, err error) {
	lx := token.New(r, name)

	leases = map[netip.Addr]*Lease{}
	hosts = map[string]*confparse.Host{}
	groups = map[string]*confparse.Group{}

	for {
		tok := lx.Peek()

		switch tok.Kind {
		case token.EOF:
			return leases, hosts, groups, nil
		case token.LEASE:
			var l *Lease
			if l, err = readLeaseRecord(lx); err != nil {
				return nil, nil, nil, err
			}

			leases[l.IP] = l
		case token.HOST:
			var h *confparse.Host
			if h, err = readHostRecord(lx); err != nil {
				return nil, nil, nil, err
			}

			hosts[h.Name] = h
		case token.GROUP:
			var g *confparse.Group
			if g, err = readGroupRecord(lx); err != nil {
				return nil, nil, nil, err
			}

			groups[g.Name] = g
		default:
			return nil, nil, nil, fmt.Errorf("journal %s: unexpected %q at %s", name, tok.Literal, tok.Pos)
		}
	}
}

func readLeaseRecord(lx *token.Lexer) (l *Lease, err error) {
	lx.Next() // "lease"

	addrTok := lx.Next()

	ip, err := netip.ParseAddr(addrTok.Literal)
	if err != nil {
		return nil, fmt.Errorf("lease record at %s: invalid address %q: %w", addrTok.Pos, addrTok.Literal, err)
	}

	if _, err = expect(lx, token.LBRACE); err != nil {
		return nil, err
	}

	l = &Lease{IP: ip}

	for {
		tok := lx.Peek()

		switch tok.Kind {
		case token.RBRACE, token.EOF:
			lx.Next()

			return l, nil
		case token.STARTS:
			lx.Next()
			if l.Starts, err = readDateTime(lx); err != nil {
				return nil, err
			}
		case token.ENDS:
			lx.Next()
			if l.Ends, err = readDateTime(lx); err != nil {
				return nil, err
			}
		case token.TSTP:
			lx.Next()
			if l.TSTP, err = readDateTime(lx); err != nil {
				return nil, err
			}
		case token.TSFP:
			lx.Next()
			if l.TSFP, err = readDateTime(lx); err != nil {
				return nil, err
			}
		case token.TIMESTAMP:
			lx.Next()
			if l.Timestamp, err = readDateTime(lx); err != nil {
				return nil, err
			}
		case token.HARDWARE:
			lx.Next()
			l.HWType = lx.Next().Literal
			if l.HWAddr, err = readColonHex(lx); err != nil {
				return nil, err
			}
		case token.UID:
			lx.Next()
			if l.UID, err = readUID(lx); err != nil {
				return nil, err
			}
		case token.CLIENT_HOSTNAME:
			lx.Next()
			l.ClientHostname = lx.Next().Literal
		case token.HOSTNAME:
			lx.Next()
			l.Hostname = lx.Next().Literal
		case token.ABANDONED:
			lx.Next()
			l.Abandoned = true
		case token.BOOTP:
			lx.Next()
			l.Bootp = true
		case token.BINDING:
			lx.Next()
			if _, err = expect(lx, token.STATE); err != nil {
				return nil, err
			}

			l.State = parseState(lx.Next().Literal)
		case token.NAME:
			if tok.Literal == "billing" {
				lx.Next()
				if _, err = expect(lx, token.CLASS); err != nil {
					return nil, err
				}

				l.BillingClass = lx.Next().Literal
			} else if err = skipStatement(lx); err != nil {
				return nil, err
			}
		default:
			if err = skipStatement(lx); err != nil {
				return nil, err
			}
		}

		if _, err = expect(lx, token.SEMI); err != nil {
			return nil, err
		}
	}
}

func readHostRecord(lx *token.Lexer) (h *confparse.Host, err error) {
	lx.Next() // "host"

	name := lx.Next().Literal
	h = &confparse.Host{Group: &confparse.Group{Name: name}, Name: name}

	if _, err = expect(lx, token.LBRACE); err != nil {
		return nil, err
	}

	for {
		tok := lx.Peek()

		switch tok.Kind {
		case token.RBRACE, token.EOF:
			lx.Next()

			return h, nil
		case token.HARDWARE:
			lx.Next()
			h.HWType = lx.Next().Literal
			if h.HWAddr, err = readColonHex(lx); err != nil {
				return nil, err
			}
		case token.UID:
			lx.Next()
			if h.UID, err = readUID(lx); err != nil {
				return nil, err
			}
		case token.GROUP:
			lx.Next()
			h.GroupRef = lx.Next().Literal
		case token.NAME:
			switch tok.Literal {
			case "dynamic":
				lx.Next()
				h.Dynamic = true
			case "deleted":
				lx.Next()
				h.Deleted = true
			default:
				if err = skipStatement(lx); err != nil {
					return nil, err
				}
			}
		default:
			if err = skipStatement(lx); err != nil {
				return nil, err
			}
		}

		if _, err = expect(lx, token.SEMI); err != nil {
			return nil, err
		}
	}
}

func readGroupRecord(lx *token.Lexer) (*confparse.Group, error) {
	lx.Next() // "group"

	g := &confparse.Group{Name: lx.Next().Literal}

	if _, err := expect(lx, token.LBRACE); err != nil {
		return nil, err
	}

	for {
		tok := lx.Peek()
		if tok.Kind == token.RBRACE || tok.Kind == token.EOF {
			lx.Next()

			return g, nil
		}

		if err := skipStatement(lx); err != nil {
			return nil, err
		}
	}
}

func readUID(lx *token.Lexer) ([]byte, error) {
	if lx.Peek().Kind == token.STRING {
		return []byte(lx.Next().Literal), nil
	}

	return readColonHex(lx)
}

func expect(lx *token.Lexer, kind token.Kind) (token.Token, error) {
	tok := lx.Next()
	if tok.Kind != kind {
		return tok, fmt.Errorf("%s: unexpected %q", tok.Pos, tok.Literal)
	}

	return tok, nil
}

// readColonHex parses a sequence of 8-bit hex numbers separated by ':',
// mirroring internal/confparse's parser.go parseColonHex for the journal's
// shared grammar (§4.6).
func readColonHex(lx *token.Lexer) ([]byte, error) {
	var out []byte

	for {
		numTok := lx.Next()

		n, err := strconv.ParseUint(numTok.Literal, 16, 8)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid hex byte %q", numTok.Pos, numTok.Literal)
		}

		out = append(out, byte(n))

		if lx.Peek().Kind != token.COLON {
			return out, nil
		}

		lx.Next()
	}
}

// readDateTime consumes a §4.6 timestamp in the shape [writeTime] emits: a
// weekday digit (informational; the date fields are authoritative), then a
// slash-separated date, then a colon-separated time, e.g.
// "4 2026/07/30 00:00:00".
func readDateTime(lx *token.Lexer) (time.Time, error) {
	lx.Next() // weekday digit

	yearTok := lx.Next()
	if _, err := expect(lx, token.SLASH); err != nil {
		return time.Time{}, err
	}

	monthTok := lx.Next()
	if _, err := expect(lx, token.SLASH); err != nil {
		return time.Time{}, err
	}

	dayTok := lx.Next()
	hourTok := lx.Next()

	if _, err := expect(lx, token.COLON); err != nil {
		return time.Time{}, err
	}

	minTok := lx.Next()
	if _, err := expect(lx, token.COLON); err != nil {
		return time.Time{}, err
	}

	secTok := lx.Next()

	year, err := strconv.Atoi(yearTok.Literal)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: invalid year %q", yearTok.Pos, yearTok.Literal)
	}

	// Two-digit-year compatibility (original_source/parse.c, supplement 2):
	// a year below 1900 is an offset from 1900.
	if year < 1900 {
		year += 1900
	}

	month, _ := strconv.Atoi(monthTok.Literal)
	day, _ := strconv.Atoi(dayTok.Literal)
	hour, _ := strconv.Atoi(hourTok.Literal)
	minute, _ := strconv.Atoi(minTok.Literal)
	sec, _ := strconv.Atoi(secTok.Literal)

	return time.Date(year, time.Month(month), day, hour, minute, sec, 0, time.UTC), nil
}

// parseState maps a `binding state <name>` literal to its [State], per
// [State.String]'s naming. An unrecognized name maps to StateFree, the
// same default a zero-value Lease already carries.
func parseState(name string) State {
	switch name {
	case "backup":
		return StateBackup
	case "active":
		return StateActive
	case "expired":
		return StateExpired
	case "released":
		return StateReleased
	case "abandoned":
		return StateAbandoned
	case "reset":
		return StateReset
	case "bootp":
		return StateBootp
	default:
		return StateFree
	}
}

// skipStatement advances past one unrecognized field, consuming a balanced
// `{ … }` block in full (for statements like `on commit { … }` that this
// reader doesn't model) or, for a bare field, every token up to but not
// including the next ';' or the record's closing '}'.
func skipStatement(lx *token.Lexer) error {
	for {
		tok := lx.Peek()

		switch tok.Kind {
		case token.EOF, token.RBRACE, token.SEMI:
			return nil
		case token.LBRACE:
			if err := skipBlock(lx); err != nil {
				return err
			}
		default:
			lx.Next()
		}
	}
}

// skipBlock consumes a balanced '{' … '}' pair.
func skipBlock(lx *token.Lexer) error {
	if _, err := expect(lx, token.LBRACE); err != nil {
		return err
	}

	for depth := 1; depth > 0; {
		tok := lx.Next()

		switch tok.Kind {
		case token.EOF:
			return fmt.Errorf("%s: unexpected end of file in nested block", tok.Pos)
		case token.LBRACE:
			depth++
		case token.RBRACE:
			depth--
		}
	}

	return nil
}
