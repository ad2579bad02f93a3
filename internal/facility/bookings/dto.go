package bookings

import (
	"time"
)

type CreateRoomRequest struct {
	Name             string  `json:"name" binding:"required"`
	Location         *string `json:"location,omitempty"`
	Capacity         int     `json:"capacity" binding:"gte=0"`
	RequiresApproval bool    `json:"requires_approval"`
}

// CreateBookingRequest: start/end は RFC3339
type CreateBookingRequest struct {
	RoomID  string    `json:"room_id" binding:"required"`
	Title   string    `json:"title"`
	StartAt time.Time `json:"start_at" binding:"required"`
	EndAt   time.Time `json:"end_at" binding:"required"`
	Notes   *string   `json:"notes,omitempty"`
}

type DecisionRequest struct {
	Reason *string `json:"reason,omitempty"`
}

type Filter struct {
	RoomID      *string
	Status      *Status
	RequesterID *string
	From        *time.Time
	To          *time.Time
}

type RoomResponse struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Location         *string   `json:"location,omitempty"`
	Capacity         int       `json:"capacity"`
	RequiresApproval bool      `json:"requires_approval"`
	CreatedAt        time.Time `json:"created_at"`
}

type BookingResponse struct {
	ID            string     `json:"id"`
	RoomID        string     `json:"room_id"`
	Title         string     `json:"title"`
	StartAt       time.Time  `json:"start_at"`
	EndAt         time.Time  `json:"end_at"`
	Status        Status     `json:"status"`
	RequesterID   string     `json:"requester_id"`
	RequesterName string     `json:"requester_name"`
	Notes         *string    `json:"notes,omitempty"`
	DecidedByID   *string    `json:"decided_by_id,omitempty"`
	DecidedByName *string    `json:"decided_by_name,omitempty"`
	DecidedAt     *time.Time `json:"decided_at,omitempty"`
	Reason        *string    `json:"reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

type ConflictResponse struct {
	Conflict bool `json:"conflict"`
}

func toRoomResponse(r *Room) RoomResponse {
	return RoomResponse{
		ID:               r.ID,
		Name:             r.Name,
		Location:         nullToPtr(r.Location.String, r.Location.Valid),
		Capacity:         r.Capacity,
		RequiresApproval: r.RequiresApproval,
		CreatedAt:        r.CreatedAt,
	}
}

func toBookingResponse(b *Booking) BookingResponse {
	res := BookingResponse{
		ID:            b.ID,
		RoomID:        b.RoomID,
		Title:         b.Title,
		StartAt:       b.StartAt,
		EndAt:         b.EndAt,
		Status:        b.Status,
		RequesterID:   b.RequesterID,
		RequesterName: b.RequesterName,
		Notes:         nullToPtr(b.Notes.String, b.Notes.Valid),
		DecidedByID:   nullToPtr(b.DecidedByID.String, b.DecidedByID.Valid),
		DecidedByName: nullToPtr(b.DecidedByName.String, b.DecidedByName.Valid),
		Reason:        nullToPtr(b.Reason.String, b.Reason.Valid),
		CreatedAt:     b.CreatedAt,
	}
	if b.DecidedAt.Valid {
		t := b.DecidedAt.Time
		res.DecidedAt = &t
	}
	return res
}

func nullToPtr(s string, ok bool) *string {
	if !ok {
		return nil
	}
	return &s
}
