package photojobs

import (
	"database/sql"
	"time"

	"CAMPUS-backend/internal/asset_mgmt/inventory"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusAssigned  Status = "assigned"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAssigned, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusCancelled }

type Photographer struct {
	ID   string `json:"id" binding:"required"`
	Name string `json:"name"`
}

type Job struct {
	ID            string
	Title         string
	Location      string
	StartAt       time.Time
	EndAt         time.Time
	RequesterID   string
	RequesterName string
	Notes         sql.NullString
	Status        Status
	DeliveryURL   sql.NullString
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   sql.NullTime

	// photo_job_photographers
	Photographers []Photographer
}

func (j *Job) assigned(id string) bool {
	for _, p := range j.Photographers {
		if p.ID == id {
			return true
		}
	}
	return false
}

func (j *Job) photographerIDs() []string {
	out := make([]string, 0, len(j.Photographers))
	for _, p := range j.Photographers {
		out = append(out, p.ID)
	}
	return out
}

// ===== DTO =====

type CreateRequest struct {
	Title    string    `json:"title" binding:"required"`
	Location string    `json:"location" binding:"required"`
	StartAt  time.Time `json:"start_at" binding:"required"`
	EndAt    time.Time `json:"end_at" binding:"required"`
	Notes    *string   `json:"notes,omitempty"`
}

type AssignRequest struct {
	Photographers []Photographer `json:"photographers" binding:"required,min=1,dive"`
}

type CompleteRequest struct {
	DeliveryURL string `json:"delivery_url" binding:"required"`
}

type Filter struct {
	Status         *Status
	RequesterID    *string
	PhotographerID *string
	From           *time.Time
	To             *time.Time
}

type JobResponse struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	Location      string         `json:"location"`
	StartAt       time.Time      `json:"start_at"`
	EndAt         time.Time      `json:"end_at"`
	RequesterID   string         `json:"requester_id"`
	RequesterName string         `json:"requester_name"`
	Notes         *string        `json:"notes,omitempty"`
	Status        Status         `json:"status"`
	Photographers []Photographer `json:"photographers"`
	DeliveryURL   *string        `json:"delivery_url,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
}

func toResponse(j *Job) JobResponse {
	ps := j.Photographers
	if ps == nil {
		ps = []Photographer{}
	}
	return JobResponse{
		ID:            j.ID,
		Title:         j.Title,
		Location:      j.Location,
		StartAt:       j.StartAt,
		EndAt:         j.EndAt,
		RequesterID:   j.RequesterID,
		RequesterName: j.RequesterName,
		Notes:         inventory.NullToPtr(j.Notes),
		Status:        j.Status,
		Photographers: ps,
		DeliveryURL:   inventory.NullToPtr(j.DeliveryURL),
		CreatedAt:     j.CreatedAt,
		UpdatedAt:     j.UpdatedAt,
		CompletedAt:   inventory.NullTimeToPtr(j.CompletedAt),
	}
}
