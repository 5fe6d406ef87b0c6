package domain

import "time"

// Membership records that an identity occupies a room. An identity holds at
// most one membership at a time (unique index on IdentityID).
type Membership struct {
	ID           uint         `gorm:"primaryKey"` // monotonic, used as the join order
	RoomID       uint         `gorm:"index;not null"`
	IdentityID   uint64       `gorm:"uniqueIndex:idx_membership_identity;not null"`
	IdentityKind IdentityKind `gorm:"size:16;not null"`
	Nickname     string       `gorm:"size:50;not null"`
	SessionID    *string      `gorm:"size:64;index"` // realtime connection, nil until bound
	CreatedAt    time.Time    `gorm:"autoCreateTime"`
}

// Identity rebuilds the identity snapshot stored on the membership.
func (m *Membership) Identity() Identity {
	return Identity{ID: m.IdentityID, Nickname: m.Nickname, Kind: m.IdentityKind}
}

// HasSession reports whether a realtime connection is bound.
func (m *Membership) HasSession() bool {
	return m.SessionID != nil && *m.SessionID != ""
}

// BoundTo reports whether the membership is bound to sessionID.
func (m *Membership) BoundTo(sessionID string) bool {
	return m.HasSession() && *m.SessionID == sessionID
}
