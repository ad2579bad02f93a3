package lends

import (
	"time"

	"CAMPUS-backend/internal/asset_mgmt/inventory"
)

// ===== Requests =====

type BorrowRequest struct {
	// YYYY-MM-DD
	DueDate      *string `json:"due_date,omitempty"`
	SignatureURL *string `json:"signature_url,omitempty"`
	Notes        *string `json:"notes,omitempty"`
	// staff が代理で貸し出すときだけ使う
	BorrowerID   *string `json:"borrower_id,omitempty"`
	BorrowerName *string `json:"borrower_name,omitempty"`
}

// ReturnRequest: bulk は transaction_id 必須
type ReturnRequest struct {
	TransactionID *string `json:"transaction_id,omitempty"`
	ReturnerName  string  `json:"returner_name"`
	SignatureURL  string  `json:"signature_url"`
	Notes         *string `json:"notes,omitempty"`
}

// Person: 記録に残す利用者（ID と表示名）
type Person struct {
	ID   string
	Name string
}

type TxFilter struct {
	Type       *inventory.TxType
	Status     *inventory.TxStatus
	ProductID  *string
	BorrowerID *string
	From       *time.Time
	To         *time.Time
}

// ===== Responses =====

type TransactionResponse struct {
	ID                 string             `json:"id"`
	Type               inventory.TxType   `json:"type"`
	ProductID          string             `json:"product_id"`
	Status             inventory.TxStatus `json:"status"`
	Amount             int                `json:"amount"`
	BorrowerID         string             `json:"borrower_id"`
	BorrowerName       string             `json:"borrower_name"`
	BorrowDate         *time.Time         `json:"borrow_date,omitempty"`
	DueDate            *time.Time         `json:"due_date,omitempty"`
	ReturnDate         *time.Time         `json:"return_date,omitempty"`
	ReturnerName       *string            `json:"returner_name,omitempty"`
	ReceivedByID       *string            `json:"received_by_id,omitempty"`
	ReceivedByName     *string            `json:"received_by_name,omitempty"`
	SignatureURL       *string            `json:"signature_url,omitempty"`
	ReturnSignatureURL *string            `json:"return_signature_url,omitempty"`
	Notes              *string            `json:"notes,omitempty"`
	RefTransactionID   *string            `json:"ref_transaction_id,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
}

type ProductState struct {
	ID                  string           `json:"id"`
	Status              inventory.Status `json:"status"`
	Quantity            int              `json:"quantity"`
	BorrowedCount       int              `json:"borrowed_count"`
	ActiveTransactionID *string          `json:"active_transaction_id,omitempty"`
}

type BorrowResponse struct {
	Transaction TransactionResponse `json:"transaction"`
	Product     ProductState        `json:"product"`
}

// ReturnResponse: Closed は旧データで対応する貸出が見つからなかったとき nil
type ReturnResponse struct {
	Closed  *TransactionResponse `json:"closed,omitempty"`
	Audit   TransactionResponse  `json:"audit"`
	Product ProductState         `json:"product"`
}

type SignatureResponse struct {
	URL string `json:"url"`
}

func toTxResponse(t *inventory.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:                 t.ID,
		Type:               t.Type,
		ProductID:          t.ProductID,
		Status:             t.Status,
		Amount:             t.Amount,
		BorrowerID:         t.BorrowerID,
		BorrowerName:       t.BorrowerName,
		BorrowDate:         inventory.NullTimeToPtr(t.BorrowDate),
		DueDate:            inventory.NullTimeToPtr(t.DueDate),
		ReturnDate:         inventory.NullTimeToPtr(t.ReturnDate),
		ReturnerName:       inventory.NullToPtr(t.ReturnerName),
		ReceivedByID:       inventory.NullToPtr(t.ReceivedByID),
		ReceivedByName:     inventory.NullToPtr(t.ReceivedByName),
		SignatureURL:       inventory.NullToPtr(t.SignatureURL),
		ReturnSignatureURL: inventory.NullToPtr(t.ReturnSignatureURL),
		Notes:              inventory.NullToPtr(t.Notes),
		RefTransactionID:   inventory.NullToPtr(t.RefTransactionID),
		CreatedAt:          t.CreatedAt,
	}
}

func toProductState(p *inventory.Product) ProductState {
	return ProductState{
		ID:                  p.ID,
		Status:              p.Status,
		Quantity:            p.Quantity,
		BorrowedCount:       p.BorrowedCount,
		ActiveTransactionID: inventory.NullToPtr(p.ActiveTransactionID),
	}
}
