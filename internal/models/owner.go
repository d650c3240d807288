package models

import (
	"encoding/json"
	"fmt"
)

// OwnerKind tags which identity an Owner carries
type OwnerKind string

const (
	OwnerSession OwnerKind = "session"
	OwnerUser    OwnerKind = "user"
)

// Owner is the key a cart, wishlist or order belongs to. It is either a
// session or a user, never both; the zero value is "no owner".
type Owner struct {
	kind OwnerKind
	id   string
}

// SessionOwner returns an owner for an anonymous session
func SessionOwner(sessionID string) Owner {
	return Owner{kind: OwnerSession, id: sessionID}
}

// UserOwner returns an owner for an authenticated user
func UserOwner(userID string) Owner {
	return Owner{kind: OwnerUser, id: userID}
}

// ParseOwner rebuilds an owner from its stored (kind, id) pair
func ParseOwner(kind, id string) (Owner, error) {
	if id == "" {
		return Owner{}, fmt.Errorf("owner id is empty")
	}
	switch OwnerKind(kind) {
	case OwnerSession:
		return SessionOwner(id), nil
	case OwnerUser:
		return UserOwner(id), nil
	default:
		return Owner{}, fmt.Errorf("unknown owner kind %q", kind)
	}
}

func (o Owner) Kind() OwnerKind { return o.kind }
func (o Owner) ID() string      { return o.id }
func (o Owner) IsZero() bool    { return o.id == "" }

func (o Owner) String() string {
	if o.IsZero() {
		return "none"
	}
	return string(o.kind) + ":" + o.id
}

func (o Owner) MarshalJSON() ([]byte, error) {
	if o.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(struct {
		Kind OwnerKind `json:"kind"`
		ID   string    `json:"id"`
	}{o.kind, o.id})
}
