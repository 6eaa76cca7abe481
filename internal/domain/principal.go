package domain

// Principal is the authenticated identity attached to a connection.
// It is resolved exactly once, during the connection handshake, and is
// immutable for the lifetime of the connection.
type Principal struct {
	UserID    string
	Roles     []string
	SessionID string

	// Anonymous is set for the synthetic principal issued when the
	// gateway runs with auth bypass enabled and no credential is given.
	Anonymous bool
}

// Authenticated reports whether the principal carries an identity.
// Synthetic anonymous principals count: they only exist when the
// operator explicitly enabled the bypass.
func (p Principal) Authenticated() bool {
	return p.UserID != ""
}

// HasRole checks role membership.
func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}
