package alloc

import (
	"fmt"
	"math"
	"math/big"
	"net/netip"
)

// maxRangeLen mirrors internal/dhcpsvc/iprange.go's maxRangeLen: offsets are
// tracked with a uint64-backed bitset, but the legacy bitset arithmetic this
// is grounded on assumes a 32-bit-addressable space, which is all IPv4
// requires.
const maxRangeLen = math.MaxUint32

// addrRange is an inclusive range of IPv4 addresses, adapted from
// internal/dhcpsvc/iprange.go's ipRange for per-pool use (§3 "Pool" /
// "range").
type addrRange struct {
	start netip.Addr
	end   netip.Addr
}

// newAddrRange validates and constructs an addrRange from a parsed
// confparse.AddrRange's (start, end) strings, already resolved to
// netip.Addr by the caller.
func newAddrRange(start, end netip.Addr) (addrRange, error) {
	if !start.Is4() || !end.Is4() {
		return addrRange{}, fmt.Errorf("range %s-%s must be ipv4", start, end)
	}

	if end.Less(start) {
		return addrRange{}, fmt.Errorf("range start %s is greater than end %s", start, end)
	}

	diff := new(big.Int).Sub(
		new(big.Int).SetBytes(end.AsSlice()),
		new(big.Int).SetBytes(start.AsSlice()),
	)

	if !diff.IsUint64() || diff.Uint64() > maxRangeLen {
		return addrRange{}, fmt.Errorf("range %s-%s exceeds maximum length", start, end)
	}

	return addrRange{start: start, end: end}, nil
}

// contains reports whether ip falls within r.
func (r addrRange) contains(ip netip.Addr) bool {
	return ip.Is4() && !ip.Less(r.start) && !r.end.Less(ip)
}

// offset returns ip's distance from r.start, and false if ip is not in r.
func (r addrRange) offset(ip netip.Addr) (uint64, bool) {
	if !r.contains(ip) {
		return 0, false
	}

	startBytes := r.start.As4()
	ipBytes := ip.As4()

	var start, cur uint32
	for i := 0; i < 4; i++ {
		start = start<<8 | uint32(startBytes[i])
		cur = cur<<8 | uint32(ipBytes[i])
	}

	return uint64(cur - start), true
}

// addrAt returns the address at offset n within r, and false if out of
// range.
func (r addrRange) addrAt(n uint64) (netip.Addr, bool) {
	size, _ := r.offset(r.end)
	if n > size {
		return netip.Addr{}, false
	}

	ip := r.start
	for i := uint64(0); i < n; i++ {
		ip = ip.Next()
	}

	return ip, true
}

// String implements the fmt.Stringer interface.
func (r addrRange) String() string {
	return fmt.Sprintf("%s-%s", r.start, r.end)
}
