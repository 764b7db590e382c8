package models

import (
	"fmt"
	"strings"
)

// OwnerKind tells which identity owns a wishlist row.
type OwnerKind int

const (
	OwnerNone OwnerKind = iota
	OwnerUser
	OwnerGuest
)

// Owner is either an authenticated user or an anonymous guest session, never both.
// The zero value owns nothing.
type Owner struct {
	kind       OwnerKind
	userID     int64
	sessionKey string
}

// UserOwner scopes rows to an authenticated user.
func UserOwner(userID int64) Owner {
	if userID <= 0 {
		return Owner{}
	}
	return Owner{kind: OwnerUser, userID: userID}
}

// GuestOwner scopes rows to an anonymous session key.
func GuestOwner(sessionKey string) Owner {
	sessionKey = strings.TrimSpace(sessionKey)
	if sessionKey == "" {
		return Owner{}
	}
	return Owner{kind: OwnerGuest, sessionKey: sessionKey}
}

// OwnerFromColumns rebuilds an Owner from the two persisted owner columns.
func OwnerFromColumns(userID int64, sessionKey string) Owner {
	if userID > 0 {
		return UserOwner(userID)
	}
	return GuestOwner(sessionKey)
}

// Kind returns the owner kind.
func (o Owner) Kind() OwnerKind { return o.kind }

// IsZero reports whether the owner is unset.
func (o Owner) IsZero() bool { return o.kind == OwnerNone }

// IsUser reports whether the owner is an authenticated user.
func (o Owner) IsUser() bool { return o.kind == OwnerUser }

// IsGuest reports whether the owner is a guest session.
func (o Owner) IsGuest() bool { return o.kind == OwnerGuest }

// UserID returns the user id, or 0 for guests.
func (o Owner) UserID() int64 { return o.userID }

// SessionKey returns the guest session key, or "" for users.
func (o Owner) SessionKey() string { return o.sessionKey }

// Columns returns the values stored in owner_user_id and owner_session_key.
func (o Owner) Columns() (int64, string) {
	return o.userID, o.sessionKey
}

func (o Owner) String() string {
	switch o.kind {
	case OwnerUser:
		return fmt.Sprintf("user:%d", o.userID)
	case OwnerGuest:
		return "guest:" + o.sessionKey
	default:
		return "none"
	}
}

// MarshalText exposes the owner as "user:<id>" or "guest:<key>".
func (o Owner) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}
