package featureflags

import "strings"

// PublicSignup gates self-service account creation
const PublicSignup = "public_signup"

// Set is the collection of enabled flags, configured through FEATURE_FLAGS
type Set struct {
	enabled map[string]bool
}

// New builds a flag set from names; names are case-insensitive
func New(names []string) *Set {
	s := &Set{enabled: make(map[string]bool, len(names))}
	for _, n := range names {
		if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
			s.enabled[n] = true
		}
	}
	return s
}

// Enabled returns true if the flag is on. A nil set has every flag off.
func (s *Set) Enabled(name string) bool {
	if s == nil {
		return false
	}
	return s.enabled[strings.ToLower(name)]
}
