// Package inventory は products / transactions テーブルの共通モデルとSQL
package inventory

import (
	"database/sql"
	"time"
)

type Kind string

const (
	KindUnique Kind = "unique" // シリアル管理（1点物）
	KindBulk   Kind = "bulk"   // 数量管理
)

func (k Kind) Valid() bool { return k == KindUnique || k == KindBulk }

type Product struct {
	ID                  string         `json:"id"`
	StockID             string         `json:"stock_id"`
	Name                string         `json:"name"`
	CategoryID          uint           `json:"category_id"`
	Kind                Kind           `json:"kind"`
	SerialNumber        sql.NullString `json:"-"`
	Quantity            int            `json:"quantity"`
	BorrowedCount       int            `json:"borrowed_count"`
	Status              Status         `json:"status"`
	ActiveTransactionID sql.NullString `json:"-"`
	Location            sql.NullString `json:"-"`
	ImageURL            sql.NullString `json:"-"`
	ThumbnailURL        sql.NullString `json:"-"`
	Notes               sql.NullString `json:"-"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
	DeletedAt           sql.NullTime   `json:"-"`
}

// Free: 貸出可能数。unique は available のときだけ 1
func (p *Product) Free() int {
	if p.Kind == KindUnique {
		if p.Status == StatusAvailable {
			return 1
		}
		return 0
	}
	return p.Quantity - p.BorrowedCount
}

func (p *Product) Deleted() bool { return p.DeletedAt.Valid }

// DeriveStockStatus: 数量変更後の bulk の状態
func DeriveStockStatus(quantity, borrowedCount int) Status {
	if quantity-borrowedCount > 0 {
		return StatusAvailable
	}
	return StatusRequisitioned
}

type TxType string

const (
	TxBorrow      TxType = "borrow"
	TxReturn      TxType = "return"
	TxRequisition TxType = "requisition"
)

type TxStatus string

const (
	TxActive    TxStatus = "active"
	TxCompleted TxStatus = "completed"
)

// Transaction は貸出・返却・払出しの記録。削除しない
type Transaction struct {
	ID                 string
	Type               TxType
	ProductID          string
	Status             TxStatus
	Amount             int
	BorrowerID         string
	BorrowerName       string
	BorrowDate         sql.NullTime
	DueDate            sql.NullTime
	ReturnDate         sql.NullTime
	ReturnerName       sql.NullString
	ReceivedByID       sql.NullString
	ReceivedByName     sql.NullString
	SignatureURL       sql.NullString
	ReturnSignatureURL sql.NullString
	Notes              sql.NullString
	RefTransactionID   sql.NullString
	CreatedAt          time.Time
}

// ReturnStamp: 返却時に貸出記録へ書き込む内容
type ReturnStamp struct {
	ReturnerName       string
	ReceivedByID       string
	ReceivedByName     string
	ReturnSignatureURL string
	Notes              string
	ReturnedAt         time.Time
}
