package netx

import (
	"fmt"
	"net/netip"
	"strings"
)

// CIDRSet holds the networks whose forwarding headers are trusted.
type CIDRSet struct {
	prefixes []netip.Prefix
}

// ParseCIDRSet accepts CIDRs and bare addresses; blanks are skipped.
func ParseCIDRSet(items []string) (*CIDRSet, error) {
	set := &CIDRSet{}
	for _, raw := range items {
		s := strings.TrimSpace(raw)
		if s == "" {
			continue
		}
		if !strings.Contains(s, "/") {
			addr, err := netip.ParseAddr(s)
			if err != nil {
				return nil, fmt.Errorf("invalid ip: %q", s)
			}
			set.prefixes = append(set.prefixes, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
			continue
		}
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return nil, fmt.Errorf("invalid cidr %q: %w", s, err)
		}
		set.prefixes = append(set.prefixes, p.Masked())
	}
	return set, nil
}

func (s *CIDRSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.prefixes)
}

func (s *CIDRSet) Contains(addr netip.Addr) bool {
	if s == nil || !addr.IsValid() {
		return false
	}
	addr = addr.Unmap()
	for _, p := range s.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
