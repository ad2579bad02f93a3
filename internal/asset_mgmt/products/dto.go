package products

import (
	"time"

	"CAMPUS-backend/internal/asset_mgmt/inventory"
)

type StockMode string

const (
	StockSet StockMode = "set" // delta を目標値として扱う
	StockAdd StockMode = "add" // delta を加算（負数可）
)

// ===== Requests =====

type CreateProductRequest struct {
	Name         string         `json:"name" binding:"required"`
	CategoryID   uint           `json:"category_id" binding:"required"`
	Kind         inventory.Kind `json:"kind" binding:"required,productkind"`
	SerialNumber *string        `json:"serial_number,omitempty"`
	Quantity     int            `json:"quantity" binding:"gte=0"`
	Location     *string        `json:"location,omitempty"`
	Notes        *string        `json:"notes,omitempty"`
}

type UpdateProductRequest struct {
	Name         *string `json:"name,omitempty"`
	SerialNumber *string `json:"serial_number,omitempty"`
	Location     *string `json:"location,omitempty"`
	Notes        *string `json:"notes,omitempty"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// StockRequest: mode 未指定なら在庫は変更しない
type StockRequest struct {
	Mode  *StockMode `json:"mode,omitempty" binding:"omitempty,stockmode"`
	Delta int        `json:"delta"`
}

type Filter struct {
	CategoryID *uint
	Kind       *inventory.Kind
	Status     *inventory.Status
	Keyword    *string
}

// ===== Responses =====

type ProductResponse struct {
	ID                  string           `json:"id"`
	StockID             string           `json:"stock_id"`
	Name                string           `json:"name"`
	CategoryID          uint             `json:"category_id"`
	Kind                inventory.Kind   `json:"kind"`
	SerialNumber        *string          `json:"serial_number,omitempty"`
	Quantity            int              `json:"quantity"`
	BorrowedCount       int              `json:"borrowed_count"`
	Available           int              `json:"available"`
	Status              inventory.Status `json:"status"`
	ActiveTransactionID *string          `json:"active_transaction_id,omitempty"`
	Location            *string          `json:"location,omitempty"`
	ImageURL            *string          `json:"image_url,omitempty"`
	ThumbnailURL        *string          `json:"thumbnail_url,omitempty"`
	Notes               *string          `json:"notes,omitempty"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

func toResponse(p *inventory.Product) ProductResponse {
	return ProductResponse{
		ID:                  p.ID,
		StockID:             p.StockID,
		Name:                p.Name,
		CategoryID:          p.CategoryID,
		Kind:                p.Kind,
		SerialNumber:        inventory.NullToPtr(p.SerialNumber),
		Quantity:            p.Quantity,
		BorrowedCount:       p.BorrowedCount,
		Available:           p.Free(),
		Status:              p.Status,
		ActiveTransactionID: inventory.NullToPtr(p.ActiveTransactionID),
		Location:            inventory.NullToPtr(p.Location),
		ImageURL:            inventory.NullToPtr(p.ImageURL),
		ThumbnailURL:        inventory.NullToPtr(p.ThumbnailURL),
		Notes:               inventory.NullToPtr(p.Notes),
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
	}
}
