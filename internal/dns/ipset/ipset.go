// Package ipset implements the designated-address-range set the relay
// classifies resolved addresses against (the "chnroute" list). Ranges are
// loaded from CIDR list files, kept sorted per address family, and queried
// with a binary search over raw binary addresses.
package ipset

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"sort"
	"strings"
)

// Set answers membership queries for raw IPv4/IPv6 addresses. It is
// immutable after load and therefore safe for concurrent use.
type Set struct {
	v4 []net.IPNet
	v6 []net.IPNet
}

// Load parses a CIDR list from r. Each line holds one CIDR or bare IP
// (treated as /32 or /128); '#' starts a comment. Both families may be
// mixed in one file.
func Load(r io.Reader) (*Set, error) {
	s := &Set{}
	if err := s.load(r); err != nil {
		return nil, err
	}
	s.sortRanges()
	return s, nil
}

// LoadFiles parses and merges one or more CIDR list files.
func LoadFiles(paths []string) (*Set, error) {
	s := &Set{}
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		err = s.load(f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	s.sortRanges()
	return s, nil
}

func (s *Set) load(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if idx := strings.IndexByte(text, '#'); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if !strings.Contains(text, "/") {
			if strings.Contains(text, ":") {
				text += "/128"
			} else {
				text += "/32"
			}
		}
		// ParseCIDR yields a 4-byte IPNet for IPv4 CIDRs and 16-byte for IPv6
		_, ipnet, err := net.ParseCIDR(text)
		if err != nil {
			return fmt.Errorf("line %d: invalid CIDR %q", line, text)
		}
		switch len(ipnet.IP) {
		case net.IPv4len:
			s.v4 = append(s.v4, *ipnet)
		case net.IPv6len:
			s.v6 = append(s.v6, *ipnet)
		}
	}
	return scanner.Err()
}

// sortRanges orders each family by network base address so Contains can
// binary-search. The chnroute data is aggregated and non-overlapping, so
// base-address order is also containment order.
func (s *Set) sortRanges() {
	byBase := func(nets []net.IPNet) func(i, j int) bool {
		return func(i, j int) bool {
			for k := range nets[i].IP {
				if nets[i].IP[k] != nets[j].IP[k] {
					return nets[i].IP[k] < nets[j].IP[k]
				}
			}
			return false
		}
	}
	sort.Slice(s.v4, byBase(s.v4))
	sort.Slice(s.v6, byBase(s.v6))
}

// Len returns the number of loaded ranges per family.
func (s *Set) Len() (v4, v6 int) {
	return len(s.v4), len(s.v6)
}

// Contains reports whether addr is inside any loaded range. addr holds
// exactly 4 raw bytes, or 16 when v6 is set; malformed input reports false.
func (s *Set) Contains(addr []byte, v6 bool) bool {
	if v6 {
		if len(addr) != net.IPv6len {
			return false
		}
		return find(addr, s.v6)
	}
	if len(addr) != net.IPv4len {
		return false
	}
	return find(addr, s.v4)
}

// compare orders ip against a network by the network's mask: 0 means ip is
// inside the network.
func compare(ip []byte, ipnet *net.IPNet) int {
	for i := 0; i < len(ip); i++ {
		a, b := ip[i]&ipnet.Mask[i], ipnet.IP[i]&ipnet.Mask[i]
		if a < b {
			return -1
		}
		if a > b {
			return 1
		}
	}
	return 0
}

func find(ip []byte, nets []net.IPNet) bool {
	for lo, hi := 0, len(nets); lo < hi; {
		mid := int(uint(lo+hi) >> 1)
		switch compare(ip, &nets[mid]) {
		case -1:
			hi = mid
		case 0:
			return true
		default:
			lo = mid + 1
		}
	}
	return false
}
