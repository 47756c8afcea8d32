package security

import (
	"fmt"
	"net/netip"
	"strings"
)

// IPMatcher answers exact-address and prefix membership for IPv4 and IPv6.
type IPMatcher struct {
	addrs    map[netip.Addr]struct{}
	prefixes []netip.Prefix
}

func NewIPMatcher(entries []string) (*IPMatcher, error) {
	m := &IPMatcher{addrs: make(map[netip.Addr]struct{})}
	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid CIDR %q: %w", entry, err)
			}
			if prefix.Addr().Is4In6() {
				bits := prefix.Bits() - 96
				if bits < 0 {
					return nil, fmt.Errorf("invalid CIDR %q: mapped prefix shorter than /96", entry)
				}
				prefix = netip.PrefixFrom(prefix.Addr().Unmap(), bits)
			}
			m.prefixes = append(m.prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid IP %q: %w", entry, err)
		}
		m.addrs[addr.Unmap()] = struct{}{}
	}
	return m, nil
}

func (m *IPMatcher) Contains(addr netip.Addr) bool {
	if m == nil || !addr.IsValid() {
		return false
	}
	addr = addr.Unmap()
	if _, ok := m.addrs[addr]; ok {
		return true
	}
	for _, p := range m.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ContainsString parses ip and reports membership; unparsable input never matches.
func (m *IPMatcher) ContainsString(ip string) bool {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false
	}
	return m.Contains(addr)
}

func (m *IPMatcher) Len() int {
	if m == nil {
		return 0
	}
	return len(m.addrs) + len(m.prefixes)
}
