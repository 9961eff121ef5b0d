package domain

import "net/netip"

// Alias is a named, appliance-managed set of addresses referenced by firewall rules.
// It is rebuilt from every fetch and never cached across operations.
type Alias struct {
	// Handle is the appliance-assigned identifier used to address the alias on write.
	Handle  string
	Name    string
	Members MemberSet

	// Attributes holds the non-member fields seen on fetch (type, enabled, description...)
	// so that a write can echo them back unchanged.
	Attributes map[string]string
}

// MemberSet is an insertion-ordered set of address literals.
// Order is preserved only because some write endpoints are sensitive to it.
// Members compare by canonical IP form, so "FD00::1" and "fd00::1" are the same member;
// the literal first seen is kept. Entries that are not IP addresses compare as written.
type MemberSet struct {
	items []string
}

// NewMemberSet builds a set from addrs, dropping empty strings and duplicates.
func NewMemberSet(addrs ...string) MemberSet {
	s := MemberSet{items: make([]string, 0, len(addrs))}
	seen := make(map[string]struct{}, len(addrs))
	for _, a := range addrs {
		if a == "" {
			continue
		}
		key := canonical(a)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		s.items = append(s.items, a)
	}
	return s
}

// Len returns the number of members.
func (s MemberSet) Len() int { return len(s.items) }

// Slice returns a copy of the members in order.
func (s MemberSet) Slice() []string {
	out := make([]string, len(s.items))
	copy(out, s.items)
	return out
}

// Contains reports whether addr is a member.
func (s MemberSet) Contains(addr string) bool {
	key := canonical(addr)
	for _, a := range s.items {
		if canonical(a) == key {
			return true
		}
	}
	return false
}

// With returns a copy of the set with addr appended. Adding a present member is a no-op.
func (s MemberSet) With(addr string) MemberSet {
	if addr == "" || s.Contains(addr) {
		return s.clone()
	}
	out := s.clone()
	out.items = append(out.items, addr)
	return out
}

// Without returns a copy of the set with addr removed. Removing an absent member is a no-op.
func (s MemberSet) Without(addr string) MemberSet {
	key := canonical(addr)
	out := MemberSet{items: make([]string, 0, len(s.items))}
	for _, a := range s.items {
		if canonical(a) != key {
			out.items = append(out.items, a)
		}
	}
	return out
}

// Equal compares membership, ignoring order.
func (s MemberSet) Equal(other MemberSet) bool {
	if len(s.items) != len(other.items) {
		return false
	}
	for _, a := range s.items {
		if !other.Contains(a) {
			return false
		}
	}
	return true
}

func (s MemberSet) clone() MemberSet {
	return MemberSet{items: s.Slice()}
}

func canonical(addr string) string {
	if ip, err := netip.ParseAddr(addr); err == nil {
		return ip.String()
	}
	return addr
}
