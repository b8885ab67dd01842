// Host lookup implements §4.4 step 2: "Probe the hwaddr hash, then the uid
// hash (from option 61), then any configured `host-identifier option` keyed
// scope. Collect all matching host declarations."
//
// The ISC dhcpd original (original_source/omapi/hash.c) chains collisions
// through an open hash table sized to a prime bucket count. Go's builtin
// map already provides amortized O(1) lookup with its own collision
// handling, so HostIndex reuses it directly rather than reimplementing
// hash.c's bucket chaining — the supplement is expressed here as "multiple
// keyed lookup tables converging on the same host set," not as a literal
// port of the C hash function.
package alloc

import (
	"encoding/hex"
	"sync"

	"github.com/AdguardTeam/golibs/errors"

	"github.com/dhcpcore/dhcpd/internal/confparse"
)

// ErrHostNotFound is returned by [HostIndex.Remove] when no host with the
// given name is indexed.
const ErrHostNotFound errors.Error = "host not found"

// ErrHostExists is returned by [HostIndex.Add] when a host with the given
// name is already indexed (OMAPI create must not silently clobber).
const ErrHostExists errors.Error = "host already exists"

// HostIndex indexes host declarations by hardware address, client
// identifier (uid), dynamic host-identifier option value, and name.
//
// [HostIndex.Add] and [HostIndex.Remove] are reachable from internal/omapi's
// create/delete boundary as well as from the dispatch loop, so mutation
// takes mu for writing and every lookup (ByHWAddr/ByUID/Candidates/ByName)
// takes it for reading, matching internal/dhcpsvc/leaseindex.go's
// mutex-guarded index.
type HostIndex struct {
	mu sync.RWMutex

	byHWAddr map[string][]*confparse.Host
	byUID    map[string][]*confparse.Host
	// byIdentOption maps an option name to the hosts declared with
	// `host-identifier option <name> <expr>` for that option.
	byIdentOption map[string][]*confparse.Host
	byName        map[string]*confparse.Host
}

// NewHostIndex builds an index over hosts.
func NewHostIndex(hosts []*confparse.Host) *HostIndex {
	idx := &HostIndex{
		byHWAddr:      map[string][]*confparse.Host{},
		byUID:         map[string][]*confparse.Host{},
		byIdentOption: map[string][]*confparse.Host{},
		byName:        map[string]*confparse.Host{},
	}

	for _, h := range hosts {
		idx.insert(h)
	}

	return idx
}

// insert adds h to every applicable index, skipping tombstoned hosts. Callers
// must hold mu for writing.
func (idx *HostIndex) insert(h *confparse.Host) {
	if h.Deleted {
		return
	}

	if len(h.HWAddr) > 0 {
		key := hex.EncodeToString(h.HWAddr)
		idx.byHWAddr[key] = append(idx.byHWAddr[key], h)
	}

	if len(h.UID) > 0 {
		key := hex.EncodeToString(h.UID)
		idx.byUID[key] = append(idx.byUID[key], h)
	}

	if h.HostIdentifierOption != "" {
		// The identifier expression's value is resolved per-request
		// (it may reference packet/option data), so only the option
		// name is indexable ahead of time; Candidates below returns every
		// host for a name and leaves comparing evaluated bytes to the caller.
		idx.byIdentOption[h.HostIdentifierOption] = append(
			idx.byIdentOption[h.HostIdentifierOption], h,
		)
	}

	if h.Name != "" {
		idx.byName[h.Name] = h
	}
}

// ByHWAddr returns hosts whose `hardware ethernet` matches mac.
func (idx *HostIndex) ByHWAddr(mac []byte) []*confparse.Host {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return idx.byHWAddr[hex.EncodeToString(mac)]
}

// ByUID returns hosts whose `uid` matches uid (option 61's contents).
func (idx *HostIndex) ByUID(uid []byte) []*confparse.Host {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return idx.byUID[hex.EncodeToString(uid)]
}

// Candidates returns every host declaring `host-identifier option name`,
// regardless of the identifier's evaluated value. The identifier
// expression's value isn't known ahead of time (it may reference
// packet/option data), so the caller evaluates HostIdentifierExpr once per
// candidate via internal/evalexpr and filters by value equality itself.
func (idx *HostIndex) Candidates(name string) []*confparse.Host {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return idx.byIdentOption[name]
}

// ByName returns the host declared under name, and whether one was found.
// Named lookup backs internal/omapi's update/delete-by-name boundary —
// host declarations are otherwise matched by hwaddr/uid/identifier, never
// by name, during ordinary request handling.
func (idx *HostIndex) ByName(name string) (*confparse.Host, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	h, ok := idx.byName[name]

	return h, ok
}

// Add indexes a newly created dynamic host object (§3 "Host declaration":
// "`dynamic` … from OMAPI, must be persisted into the lease journal").
// It returns [ErrHostExists] if name is already in use.
func (idx *HostIndex) Add(h *confparse.Host) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, ok := idx.byName[h.Name]; ok {
		return errors.Annotate(ErrHostExists, "%s: %w", h.Name)
	}

	idx.insert(h)

	return nil
}

// Remove tombstones and de-indexes the host declared under name. It returns
// [ErrHostNotFound] if no such host is indexed.
func (idx *HostIndex) Remove(name string) (*confparse.Host, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	h, ok := idx.byName[name]
	if !ok {
		return nil, errors.Annotate(ErrHostNotFound, "%s: %w", name)
	}

	h.Deleted = true
	delete(idx.byName, name)

	if len(h.HWAddr) > 0 {
		idx.removeFrom(idx.byHWAddr, hex.EncodeToString(h.HWAddr), h)
	}

	if len(h.UID) > 0 {
		idx.removeFrom(idx.byUID, hex.EncodeToString(h.UID), h)
	}

	if h.HostIdentifierOption != "" {
		idx.removeFrom(idx.byIdentOption, h.HostIdentifierOption, h)
	}

	return h, nil
}

// removeFrom deletes h from the slice keyed by key in m, preserving order
// among the remaining entries.
func (idx *HostIndex) removeFrom(m map[string][]*confparse.Host, key string, h *confparse.Host) {
	entries := m[key]
	for i, cand := range entries {
		if cand == h {
			m[key] = append(entries[:i], entries[i+1:]...)

			break
		}
	}
}
