package bookings

import (
	"database/sql"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// Blocks: 枠を占有する状態か
func (s Status) Blocks() bool { return s == StatusApproved || s == StatusPending }

type Room struct {
	ID               string
	Name             string
	Location         sql.NullString
	Capacity         int
	RequiresApproval bool
	CreatedAt        time.Time
}

// Booking: [StartAt, EndAt) の半開区間
type Booking struct {
	ID            string
	RoomID        string
	Title         string
	StartAt       time.Time
	EndAt         time.Time
	Status        Status
	RequesterID   string
	RequesterName string
	Notes         sql.NullString
	DecidedByID   sql.NullString
	DecidedByName sql.NullString
	DecidedAt     sql.NullTime
	Reason        sql.NullString
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
