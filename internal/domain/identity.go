package domain

import "fmt"

// GuestIDBase is the offset all guest ids are allocated above, so guest and
// member ids never collide.
const GuestIDBase uint64 = 1_000_000_000_000

// IdentityKind tells members and guests apart.
type IdentityKind string

const (
	KindMember IdentityKind = "member"
	KindGuest  IdentityKind = "guest"
)

// Identity is the resolved caller of an operation.
type Identity struct {
	ID       uint64       `json:"id"`
	Nickname string       `json:"nickname"`
	Kind     IdentityKind `json:"kind"`
}

// IsGuest reports whether the identity is an anonymous guest.
func (i Identity) IsGuest() bool { return i.Kind == KindGuest }

func (i Identity) String() string {
	return fmt.Sprintf("%s:%d(%s)", i.Kind, i.ID, i.Nickname)
}

// KindOf infers the identity kind from the id range.
func KindOf(id uint64) IdentityKind {
	if id > GuestIDBase {
		return KindGuest
	}
	return KindMember
}
