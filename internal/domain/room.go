package domain

import "time"

// MaxOccupants is the hard cap on memberships per room.
const MaxOccupants = 8

// RoomStatus is the gameplay phase of a room.
type RoomStatus string

const (
	RoomWaiting RoomStatus = "waiting"
	RoomPlaying RoomStatus = "playing"
)

// Valid reports whether s is a known status.
func (s RoomStatus) Valid() bool {
	return s == RoomWaiting || s == RoomPlaying
}

// Room is a drawing-game lobby.
type Room struct {
	ID             uint       `gorm:"primaryKey"`
	Title          string     `gorm:"size:100;not null"`
	HostID         uint64     `gorm:"index;not null;default:0"` // 0 while the room is host-less
	HostNick       string     `gorm:"size:50;not null;default:''"`
	Status         RoomStatus `gorm:"size:16;not null;default:'waiting'"`
	NeedsAttention bool       `gorm:"index;not null;default:false"` // set when host succession could not resolve an identity
	CreatedAt      time.Time  `gorm:"autoCreateTime"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime"`
}

// HasHost reports whether a host is currently assigned.
func (r *Room) HasHost() bool { return r.HostID != 0 }

// IsHost reports whether the identity is the room's host.
func (r *Room) IsHost(identityID uint64) bool {
	return r.HostID != 0 && r.HostID == identityID
}

// AssignHost puts identity in charge and resets the room to Waiting.
func (r *Room) AssignHost(identity Identity) {
	r.HostID = identity.ID
	r.HostNick = identity.Nickname
	r.Status = RoomWaiting
	r.NeedsAttention = false
}

// MarkHostless clears the host fields and flags the room for an operator.
func (r *Room) MarkHostless() {
	r.HostID = 0
	r.HostNick = ""
	r.Status = RoomWaiting
	r.NeedsAttention = true
}

// RoomSummary is a room plus its live occupant count.
type RoomSummary struct {
	Room
	Occupants int64 `gorm:"column:occupants"`
}
