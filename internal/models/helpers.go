package models

import "strings"

// NormalizeIdentity trims and lower-cases an e-mail address.
func NormalizeIdentity(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// DisplayName returns the local part of an identity ("pluis" for "pluis@x.nl").
func DisplayName(identity string) string {
	if i := strings.IndexByte(identity, '@'); i >= 0 {
		return identity[:i]
	}
	return identity
}
