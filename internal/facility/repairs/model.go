package repairs

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"CAMPUS-backend/internal/asset_mgmt/inventory"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAssigned, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusCancelled }

type Ticket struct {
	ID             string
	ReporterID     string
	ReporterName   string
	Location       string
	Description    string
	ProductID      sql.NullString
	// HoldProduct: 受付中は品目を maintenance にしている
	HoldProduct    bool
	PhotoURL       sql.NullString
	Status         Status
	TechnicianID   sql.NullString
	TechnicianName sql.NullString
	Cost           decimal.NullDecimal
	ResolutionNote sql.NullString
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    sql.NullTime
}

// ===== DTO =====

type CreateRequest struct {
	Location    string  `json:"location" binding:"required"`
	Description string  `json:"description" binding:"required"`
	ProductID   *string `json:"product_id,omitempty"`
	PhotoURL    *string `json:"photo_url,omitempty"`
	HoldProduct bool    `json:"hold_product"`
}

type AssignRequest struct {
	TechnicianID   string `json:"technician_id" binding:"required"`
	TechnicianName string `json:"technician_name"`
}

// CompleteRequest: cost は "1250.50" のような文字列（小数2桁まで）
type CompleteRequest struct {
	Cost string  `json:"cost"`
	Note *string `json:"note,omitempty"`
}

type CancelRequest struct {
	Reason *string `json:"reason,omitempty"`
}

type Filter struct {
	Status       *Status
	ReporterID   *string
	TechnicianID *string
	ProductID    *string
}

type TicketResponse struct {
	ID             string           `json:"id"`
	ReporterID     string           `json:"reporter_id"`
	ReporterName   string           `json:"reporter_name"`
	Location       string           `json:"location"`
	Description    string           `json:"description"`
	ProductID      *string          `json:"product_id,omitempty"`
	HoldProduct    bool             `json:"hold_product"`
	PhotoURL       *string          `json:"photo_url,omitempty"`
	Status         Status           `json:"status"`
	TechnicianID   *string          `json:"technician_id,omitempty"`
	TechnicianName *string          `json:"technician_name,omitempty"`
	Cost           *decimal.Decimal `json:"cost,omitempty"`
	ResolutionNote *string          `json:"resolution_note,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
}

func toResponse(t *Ticket) TicketResponse {
	res := TicketResponse{
		ID:             t.ID,
		ReporterID:     t.ReporterID,
		ReporterName:   t.ReporterName,
		Location:       t.Location,
		Description:    t.Description,
		ProductID:      inventory.NullToPtr(t.ProductID),
		HoldProduct:    t.HoldProduct,
		PhotoURL:       inventory.NullToPtr(t.PhotoURL),
		Status:         t.Status,
		TechnicianID:   inventory.NullToPtr(t.TechnicianID),
		TechnicianName: inventory.NullToPtr(t.TechnicianName),
		ResolutionNote: inventory.NullToPtr(t.ResolutionNote),
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
		CompletedAt:    inventory.NullTimeToPtr(t.CompletedAt),
	}
	if t.Cost.Valid {
		c := t.Cost.Decimal
		res.Cost = &c
	}
	return res
}
