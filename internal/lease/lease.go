// Package lease implements the per-IP lease record and its lifecycle state
// machine (§4.5 "Lease state machine"): Free → (Active | Bootp) →
// Expired/Released/Abandoned, with a binding-scope map and deferred
// COMMIT/EXPIRY/RELEASE hooks.
//
// Grounded on internal/dhcpsvc/lease.go's Lease/Clone/IsBlocked and
// dhcpd/v4.go's leaseExpireStatic handling, generalized from a single
// (hwaddr, ip, expiry) triple to the full field set §4.3 "Lease" names.
package lease

import (
	"net/netip"
	"time"

	"github.com/AdguardTeam/golibs/errors"

	"github.com/dhcpcore/dhcpd/internal/binding"
	"github.com/dhcpcore/dhcpd/internal/confparse"
)

// State is a lease's position in the lifecycle state machine (§4.5).
type State int

// Lease states.
const (
	StateFree State = iota
	StateBackup
	StateActive
	StateExpired
	StateReleased
	StateAbandoned
	StateReset
	StateBootp
)

// String implements the fmt.Stringer interface for State.
func (s State) String() string {
	switch s {
	case StateFree:
		return "free"
	case StateBackup:
		return "backup"
	case StateActive:
		return "active"
	case StateExpired:
		return "expired"
	case StateReleased:
		return "released"
	case StateAbandoned:
		return "abandoned"
	case StateReset:
		return "reset"
	case StateBootp:
		return "bootp"
	default:
		return "unknown"
	}
}

// transitions enumerates the legal source states for each target state
// (§4.5's transition table). A transition not listed here is rejected by
// [Lease.TransitionTo].
var transitions = map[State][]State{
	StateActive:    {StateFree, StateBackup, StateExpired, StateReleased, StateAbandoned, StateReset},
	StateBootp:     {StateFree, StateBackup},
	StateExpired:   {StateActive, StateBootp},
	StateReleased:  {StateActive, StateBootp},
	StateAbandoned: {StateActive, StateFree, StateBootp},
	StateFree:      {StateExpired, StateReleased, StateAbandoned, StateReset, StateBackup},
	StateReset:     {StateActive, StateExpired, StateReleased, StateAbandoned},
	StateBackup:    {StateFree},
}

// ErrIllegalTransition is returned by [Lease.TransitionTo] when the
// requested state change is not in the transition table.
const ErrIllegalTransition errors.Error = "illegal lease state transition"

// Hook is a deferred statement tree installed by an `on <event> { … }`
// statement (§4.3, §4.5), to be run through internal/evalexpr.Exec against
// the lease's binding scope at the named transition.
type Hook struct {
	Events []confparse.OnEvent
	Body   []confparse.Statement
}

// Lease is one IPv4 address binding (§4.3 "Lease").
type Lease struct {
	IP netip.Addr

	HWAddr   []byte
	HWType   string
	UID      []byte
	Hostname string
	// ClientHostname is the client-supplied hostname (option 12), distinct
	// from Hostname which may be server-assigned.
	ClientHostname string

	Starts    time.Time
	Ends      time.Time
	TSTP      time.Time
	TSFP      time.Time
	Timestamp time.Time

	State State

	// Bootp marks a lease satisfied from a dynamic-bootp pool or a host's
	// fixed-address as a BOOTP binding rather than a leased DHCP binding
	// (§4.5 "BOOTP").
	Bootp bool
	// Abandoned marks an address taken off the free list after failing an
	// ICMP availability probe (§4.4 step 4.4, §4.5).
	Abandoned bool
	// PeerIsOwner is carried for failover compatibility parsing; failover
	// synchronization itself is out of scope (§3 "failover peer").
	PeerIsOwner bool

	// BillingClass is the name of the class this lease is billed against,
	// or "" if unbilled (§4.4 step 6, §C supplement 3).
	BillingClass string

	Hooks []Hook

	// Scope is the lease's own binding scope, the innermost link in the
	// group chain a request against this lease evaluates options in.
	Scope *binding.Scope
}

// Clone returns a deep copy of l.
func (l *Lease) Clone() *Lease {
	if l == nil {
		return nil
	}

	out := *l
	out.HWAddr = append([]byte(nil), l.HWAddr...)
	out.UID = append([]byte(nil), l.UID...)
	out.Hooks = append([]Hook(nil), l.Hooks...)

	return &out
}

// IsExpired reports whether l's Ends timestamp has passed as of now. A
// static (fixed-address) lease modeled with a zero Ends never expires.
func (l *Lease) IsExpired(now time.Time) bool {
	return !l.Ends.IsZero() && !l.Ends.After(now) && l.State == StateActive
}

// TransitionTo attempts to move l into next, validating against the
// transition table. On success it stamps Timestamp; it does not run hooks
// itself (that needs internal/evalexpr's execution context, which this
// package does not depend on to avoid coupling the lease model to the
// expression engine) — callers look up the event a transition implies via
// [EventForState], fetch the matching bodies via [Lease.HooksFor], and run
// them through evalexpr.Exec against l.Scope.
func (l *Lease) TransitionTo(next State, now time.Time) error {
	allowed := transitions[next]

	ok := false
	for _, from := range allowed {
		if l.State == from {
			ok = true

			break
		}
	}

	if !ok {
		return errors.Annotate(ErrIllegalTransition, "%s -> %s: %w", l.State, next)
	}

	l.State = next
	l.Timestamp = now

	return nil
}

// eventFor returns the hook event a transition into state corresponds to,
// and whether one exists.
func eventFor(state State) (confparse.OnEvent, bool) {
	switch state {
	case StateActive, StateBootp:
		return confparse.OnCommit, true
	case StateExpired:
		return confparse.OnExpiry, true
	case StateReleased:
		return confparse.OnRelease, true
	default:
		return 0, false
	}
}

// HooksFor returns the statement bodies installed for event across all of
// l's hooks, in install order.
func (l *Lease) HooksFor(event confparse.OnEvent) [][]confparse.Statement {
	var bodies [][]confparse.Statement
	for _, h := range l.Hooks {
		for _, e := range h.Events {
			if e == event {
				bodies = append(bodies, h.Body)

				break
			}
		}
	}

	return bodies
}

// InstallHook implements the evalexpr.HookInstaller interface, recording a
// deferred statement tree to run when l transitions into the state tied to
// event.
func (l *Lease) InstallHook(event confparse.OnEvent, body []confparse.Statement) {
	l.Hooks = append(l.Hooks, Hook{Events: []confparse.OnEvent{event}, Body: body})
}

// EventForState exposes eventFor for callers that drive TransitionTo and then need to know which hook list to execute.
func EventForState(state State) (confparse.OnEvent, bool) { return eventFor(state) }
