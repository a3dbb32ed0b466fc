package sender

import (
	"fmt"
	"net/netip"
	"sync"
)

// Targets walks a list of IPv4 prefixes address by address. Next is safe
// for concurrent use.
type Targets struct {
	mu       sync.Mutex
	prefixes []netip.Prefix
	idx      int
	next     netip.Addr
	size     uint64
	issued   uint64
	limit    uint64
}

// NewTargets rejects anything but IPv4 prefixes.
func NewTargets(prefixes ...netip.Prefix) (*Targets, error) {
	t := &Targets{}
	for _, prefix := range prefixes {
		if !prefix.IsValid() || !prefix.Addr().Is4() {
			return nil, fmt.Errorf("sender: %s is not an IPv4 prefix", prefix)
		}
		prefix = prefix.Masked()
		t.prefixes = append(t.prefixes, prefix)
		t.size += uint64(1) << (32 - prefix.Bits())
	}
	if len(t.prefixes) > 0 {
		t.next = t.prefixes[0].Addr()
	}
	return t, nil
}

// ParseTargets accepts prefixes and bare addresses.
func ParseTargets(args ...string) (*Targets, error) {
	prefixes := make([]netip.Prefix, 0, len(args))
	for _, arg := range args {
		prefix, err := netip.ParsePrefix(arg)
		if err != nil {
			addr, aerr := netip.ParseAddr(arg)
			if aerr != nil {
				return nil, fmt.Errorf("sender: invalid target %q: %w", arg, err)
			}
			prefix = netip.PrefixFrom(addr, addr.BitLen())
		}
		prefixes = append(prefixes, prefix)
	}
	return NewTargets(prefixes...)
}

// Limit caps the number of addresses handed out, 0 for no cap.
func (t *Targets) Limit(n uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.limit = n
}

// Size is the number of addresses Next will return in total.
func (t *Targets) Size() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.limit > 0 && t.limit < t.size {
		return t.limit
	}
	return t.size
}

func (t *Targets) Next() (netip.Addr, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.limit > 0 && t.issued >= t.limit {
		return netip.Addr{}, false
	}
	for t.idx < len(t.prefixes) {
		prefix := t.prefixes[t.idx]
		nIP := t.next
		if nIP.IsValid() && prefix.Contains(nIP) {
			t.next = nIP.Next()
			t.issued++
			return nIP, true
		}
		t.idx++
		if t.idx < len(t.prefixes) {
			t.next = t.prefixes[t.idx].Addr()
		}
	}
	return netip.Addr{}, false
}
