package auth

import "strings"

// CorpMembership lists who may open a corporate login: whole mail domains
// plus individual addresses. The zero value admits nobody.
type CorpMembership struct {
	domains   map[string]struct{}
	addresses map[string]struct{}
}

// NewCorpMembership builds a membership list. Entries are matched
// case-insensitively and a leading "@" on a domain is ignored.
func NewCorpMembership(domains, addresses []string) *CorpMembership {
	m := &CorpMembership{
		domains:   make(map[string]struct{}, len(domains)),
		addresses: make(map[string]struct{}, len(addresses)),
	}
	for _, d := range domains {
		if d = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(d), "@")); d != "" {
			m.domains[d] = struct{}{}
		}
	}
	for _, a := range addresses {
		if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
			m.addresses[a] = struct{}{}
		}
	}
	return m
}

// Allows reports whether email belongs to staff. A nil list allows nobody.
func (m *CorpMembership) Allows(email string) bool {
	if m == nil {
		return false
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if _, ok := m.addresses[email]; ok {
		return true
	}
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return false
	}
	_, ok := m.domains[email[at+1:]]
	return ok
}

// Empty reports whether the list admits nobody.
func (m *CorpMembership) Empty() bool {
	return m == nil || (len(m.domains) == 0 && len(m.addresses) == 0)
}
