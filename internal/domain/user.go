package domain

import "time"

// User is a registered member account.
type User struct {
	ID        uint      `gorm:"primaryKey"`
	Email     string    `gorm:"type:varchar(191);uniqueIndex:idx_email;not null"`
	Nickname  string    `gorm:"type:varchar(50);not null"`
	Password  string    `gorm:"type:text;not null"` // bcrypt hash
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// Identity returns the member identity for this account.
func (u *User) Identity() Identity {
	return Identity{ID: uint64(u.ID), Nickname: u.Nickname, Kind: KindMember}
}

// Guest is an anonymous, time-limited identity.
type Guest struct {
	ID        uint64    `json:"id"`
	Nickname  string    `json:"nickname"`
	CreatedAt time.Time `json:"createdAt"`
}

// Identity returns the guest identity.
func (g *Guest) Identity() Identity {
	return Identity{ID: g.ID, Nickname: g.Nickname, Kind: KindGuest}
}
