// Package requisitions は消耗品の払出し（返却されない持ち出し）
package requisitions

import (
	"context"
	"crypto/rand"
	"database/sql"
	"strings"
	"time"

	ulid "github.com/oklog/ulid/v2"

	"CAMPUS-backend/internal/asset_mgmt/inventory"
	"CAMPUS-backend/internal/asset_mgmt/ledger"
	"CAMPUS-backend/internal/platform/apierr"
	"CAMPUS-backend/internal/platform/db"
)

// ---- Clock & ID ----
type Clock interface{ Now() time.Time }
type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type IDGen interface{ NewULID(t time.Time) string }
type ulidGen struct{}

func (ulidGen) NewULID(t time.Time) string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

type Queries interface {
	GetProduct(ctx context.Context, id string, forUpdate bool) (*inventory.Product, error)
	UpdateProductState(ctx context.Context, p *inventory.Product) error
	InsertTransaction(ctx context.Context, t *inventory.Transaction) error
	ApplyStats(ctx context.Context, d ledger.Delta) error
}

type StatsInvalidator interface {
	Invalidate(ctx context.Context)
}

type CreateRequest struct {
	Amount int     `json:"amount"`
	Notes  *string `json:"notes,omitempty"`
}

type Requester struct {
	ID   string
	Name string
}

type Response struct {
	TransactionID string           `json:"transaction_id"`
	ProductID     string           `json:"product_id"`
	Amount        int              `json:"amount"`
	Quantity      int              `json:"quantity"`
	Status        inventory.Status `json:"status"`
	RequestedBy   string           `json:"requested_by"`
	RequestedAt   time.Time        `json:"requested_at"`
}

// ---- Service ----

type Service struct {
	tx    db.TxFunc[Queries]
	clock Clock
	id    IDGen
	stats StatsInvalidator
}

func NewService(conn *sql.DB, stats StatsInvalidator) *Service {
	return &Service{
		tx:    db.Binder(conn, func(q db.DBTX) Queries { return NewStore(q) }),
		clock: realClock{},
		id:    ulidGen{},
		stats: stats,
	}
}

// POST /products/:id/requisitions
func (s *Service) Create(ctx context.Context, productID string, who Requester, in CreateRequest) (Response, error) {
	if strings.TrimSpace(who.ID) == "" {
		return Response{}, apierr.ErrInvalid("requester is required")
	}
	if strings.TrimSpace(who.Name) == "" {
		who.Name = who.ID
	}

	now := s.clock.Now()
	t := &inventory.Transaction{
		ID:           s.id.NewULID(now),
		Type:         inventory.TxRequisition,
		ProductID:    productID,
		Status:       inventory.TxCompleted,
		BorrowerID:   who.ID,
		BorrowerName: who.Name,
		BorrowDate:   sql.NullTime{Time: now, Valid: true},
		CreatedAt:    now,
	}
	if in.Notes != nil {
		t.Notes = inventory.NullString(*in.Notes)
	}

	var out *inventory.Product
	err := s.tx(ctx, func(ctx context.Context, q Queries) error {
		p, err := q.GetProduct(ctx, productID, true)
		if err != nil {
			return err
		}
		before := ledger.SnapshotOf(p)

		if p.Kind == inventory.KindUnique {
			if in.Amount != 0 && in.Amount != 1 {
				return apierr.ErrInvalid("amount must be 1 for unique items")
			}
			if p.Status != inventory.StatusAvailable {
				return apierr.ErrConflict("item is not available")
			}
			t.Amount = 1
			p.Status = inventory.StatusRequisitioned
		} else {
			if in.Amount <= 0 {
				return apierr.ErrInvalid("amount must be > 0")
			}
			if p.Status == inventory.StatusMaintenance {
				return apierr.ErrConflict("item is under maintenance")
			}
			if in.Amount > p.Free() {
				return apierr.ErrConflict("insufficient stock")
			}
			t.Amount = in.Amount
			p.Quantity -= in.Amount
			p.Status = inventory.DeriveStockStatus(p.Quantity, p.BorrowedCount)
		}

		if err := q.InsertTransaction(ctx, t); err != nil {
			return err
		}
		p.UpdatedAt = now
		if err := q.UpdateProductState(ctx, p); err != nil {
			return err
		}
		if err := q.ApplyStats(ctx, ledger.Diff(before, ledger.SnapshotOf(p))); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return Response{}, err
	}
	if s.stats != nil {
		s.stats.Invalidate(ctx)
	}
	return Response{
		TransactionID: t.ID,
		ProductID:     out.ID,
		Amount:        t.Amount,
		Quantity:      out.Quantity,
		Status:        out.Status,
		RequestedBy:   who.Name,
		RequestedAt:   now,
	}, nil
}
