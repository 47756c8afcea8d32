package shared

import "strings"

const (
	UserID = "user_id"
	Role   = "role"

	RoleAdmin = "admin"

	IPPrefix   = "ip:"
	UserPrefix = "user:"
)

// IPIdentifier namespaces a client address for rate limiting and blocking.
func IPIdentifier(addr string) string {
	return IPPrefix + addr
}

func UserIdentifier(userID string) string {
	return UserPrefix + userID
}

func IsIdentifier(s string) bool {
	switch {
	case strings.HasPrefix(s, IPPrefix):
		return len(s) > len(IPPrefix)
	case strings.HasPrefix(s, UserPrefix):
		return len(s) > len(UserPrefix)
	}
	return false
}

// IdentifierIP returns the address part of an ip: identifier.
func IdentifierIP(identifier string) (string, bool) {
	if !strings.HasPrefix(identifier, IPPrefix) {
		return "", false
	}
	return strings.TrimPrefix(identifier, IPPrefix), true
}
