// Package roles derives a principal's supported roles from token claims and
// enforces the single-role policy.
//
// A principal holding zero or several supported roles is rejected. There is
// no precedence between roles and no "first match" fallback.
package roles

import (
	"sort"
)

// Public realm roles.
const (
	Customer     = "customer"
	Admin        = "admin"
	SupportAgent = "support_agent"
	AirlineOps   = "airline_ops"
)

// Corporate realm roles.
const (
	OpsAgent = "OPS_AGENT"
)

var (
	PublicRoles = []string{Customer, Admin, SupportAgent, AirlineOps}
	CorpRoles   = []string{OpsAgent}
)

// Set is an unordered set of role names.
type Set map[string]struct{}

func NewSet(roles ...string) Set {
	s := make(Set, len(roles))
	for _, r := range roles {
		if r != "" {
			s[r] = struct{}{}
		}
	}
	return s
}

func (s Set) Has(role string) bool {
	_, ok := s[role]
	return ok
}

func (s Set) Len() int {
	return len(s)
}

// Slice returns the roles sorted.
func (s Set) Slice() []string {
	out := make([]string, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

func (s Set) Intersect(other Set) Set {
	out := make(Set)
	for r := range s {
		if other.Has(r) {
			out[r] = struct{}{}
		}
	}
	return out
}

// Extractor maps claims to the roles of one client against one whitelist.
type Extractor struct {
	clientID  string
	supported Set
}

func NewExtractor(clientID string, supported ...string) *Extractor {
	return &Extractor{clientID: clientID, supported: NewSet(supported...)}
}

// Supported returns the whitelist, sorted.
func (e *Extractor) Supported() []string {
	return e.supported.Slice()
}

func (e *Extractor) IsSupported(role string) bool {
	return e.supported.Has(role)
}

// FromClaims unions realm and client roles and keeps only supported ones.
func (e *Extractor) FromClaims(c *Claims) Set {
	all := NewSet(c.RealmRoles()...)
	for _, r := range c.ClientRoles(e.clientID) {
		all[r] = struct{}{}
	}
	return all.Intersect(e.supported)
}

// FromAccessToken decodes token (unverified) and extracts its supported roles.
func (e *Extractor) FromAccessToken(token string) (Set, error) {
	claims, err := ParseUnverified(token)
	if err != nil {
		return nil, err
	}
	return e.FromClaims(claims), nil
}

// HasExactlyOneSupportedRole is true iff exactly one supported role is in
// roles. Unsupported roles are ignored.
func (e *Extractor) HasExactlyOneSupportedRole(roles Set) bool {
	return roles.Intersect(e.supported).Len() == 1
}

// HasExactlyRole is true iff required is the only supported role in roles.
func (e *Extractor) HasExactlyRole(roles Set, required string) bool {
	role, ok := e.Single(roles)
	return ok && role == required
}

// HasExactlyOneOfRoles is true iff roles holds exactly one supported role
// and that role is in allowed.
func (e *Extractor) HasExactlyOneOfRoles(roles Set, allowed ...string) bool {
	role, ok := e.Single(roles)
	if !ok {
		return false
	}
	for _, a := range allowed {
		if a == role {
			return true
		}
	}
	return false
}

// Single returns the one supported role in roles.
func (e *Extractor) Single(roles Set) (string, bool) {
	supported := roles.Intersect(e.supported)
	if supported.Len() != 1 {
		return "", false
	}
	for r := range supported {
		return r, true
	}
	return "", false
}
