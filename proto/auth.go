package proto

import "time"

// Claims are the fields extracted from a validated access token.
type Claims struct {
	LoginID string
	UserID  int64
	Role    string
	Expiry  time.Time
}

// A TokenValidator checks bearer credentials. Implementations must be safe
// for concurrent use and cheap enough to call at connection open.
type TokenValidator interface {
	// Validate reports whether token is well formed, correctly signed and
	// unexpired.
	Validate(token string) bool

	// Claims returns the claims of a token that passed Validate.
	Claims(token string) (*Claims, error)
}
