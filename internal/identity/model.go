package identity

import "errors"

var (
	// ErrNotFound means the handle does not belong to any account.
	ErrNotFound = errors.New("identity: handle not found")
	// ErrLookupFailed means the resolver could not answer; retrying may help.
	ErrLookupFailed = errors.New("identity: lookup failed")
)

// Identity is a resolved game platform account. It is immutable once
// attached to a claim session.
type Identity struct {
	NumericID   int64  `json:"numericId"`
	AvatarRef   string `json:"avatarRef"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}
