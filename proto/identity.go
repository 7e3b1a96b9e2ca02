package proto

import (
	"fmt"
	"strconv"
)

// AnonymousLoginID is the login id given to connections that presented no
// valid credential.
const AnonymousLoginID = "anonymous"

// An Identity names the user behind a connection. It is fixed when the
// connection is accepted and never re-evaluated.
type Identity struct {
	UserID  *int64 `json:"userId,omitempty"`
	LoginID string `json:"loginId"`
}

// Anonymous returns the identity of an unauthenticated connection.
func Anonymous() Identity { return Identity{LoginID: AnonymousLoginID} }

// NewIdentity returns the identity of an authenticated user.
func NewIdentity(userID int64, loginID string) Identity {
	return Identity{UserID: &userID, LoginID: loginID}
}

func (id Identity) IsAnonymous() bool { return id.UserID == nil && id.LoginID == AnonymousLoginID }

// UID returns the user id, or 0 and false for anonymous identities.
func (id Identity) UID() (int64, bool) {
	if id.UserID == nil {
		return 0, false
	}
	return *id.UserID, true
}

func (id Identity) String() string {
	if id.UserID == nil {
		return id.LoginID
	}
	return fmt.Sprintf("%s#%s", id.LoginID, strconv.FormatInt(*id.UserID, 10))
}
