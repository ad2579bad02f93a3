package lends

import (
	"context"
	"strings"

	"CAMPUS-backend/internal/asset_mgmt/inventory"
	"CAMPUS-backend/internal/asset_mgmt/ledger"
	"CAMPUS-backend/internal/platform/db"
	"CAMPUS-backend/internal/platform/paging"
)

type Store struct{ q db.DBTX }

func NewStore(q db.DBTX) *Store { return &Store{q: q} }

func (s *Store) GetProduct(ctx context.Context, id string, forUpdate bool) (*inventory.Product, error) {
	return inventory.GetProduct(ctx, s.q, id, forUpdate)
}

func (s *Store) UpdateProductState(ctx context.Context, p *inventory.Product) error {
	return inventory.UpdateProductState(ctx, s.q, p)
}

func (s *Store) InsertTransaction(ctx context.Context, t *inventory.Transaction) error {
	return inventory.InsertTransaction(ctx, s.q, t)
}

func (s *Store) GetTransaction(ctx context.Context, id string, forUpdate bool) (*inventory.Transaction, error) {
	return inventory.GetTransaction(ctx, s.q, id, forUpdate)
}

func (s *Store) ListActiveBorrows(ctx context.Context, productID string) ([]inventory.Transaction, error) {
	return inventory.ListActiveBorrows(ctx, s.q, productID)
}

func (s *Store) CompleteTransaction(ctx context.Context, id string, st inventory.ReturnStamp) error {
	return inventory.CompleteTransaction(ctx, s.q, id, st)
}

func (s *Store) ApplyStats(ctx context.Context, d ledger.Delta) error {
	return ledger.NewStore(s.q).Apply(ctx, d)
}

func (s *Store) ListTransactions(ctx context.Context, f TxFilter, p paging.Page) ([]inventory.Transaction, int64, error) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(" FROM transactions WHERE 1=1")
	if f.Type != nil {
		sb.WriteString(" AND type = ?")
		args = append(args, *f.Type)
	}
	if f.Status != nil {
		sb.WriteString(" AND status = ?")
		args = append(args, *f.Status)
	}
	if f.ProductID != nil {
		sb.WriteString(" AND product_id = ?")
		args = append(args, *f.ProductID)
	}
	if f.BorrowerID != nil {
		sb.WriteString(" AND borrower_id = ?")
		args = append(args, *f.BorrowerID)
	}
	if f.From != nil {
		sb.WriteString(" AND created_at >= ?")
		args = append(args, *f.From)
	}
	if f.To != nil {
		sb.WriteString(" AND created_at < ?")
		args = append(args, *f.To)
	}
	where := sb.String()

	var total int64
	if err := s.q.QueryRowContext(ctx, "SELECT COUNT(*)"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := inventory.QueryTransactions(ctx, s.q,
		where+" ORDER BY created_at "+p.OrderSQL()+", id LIMIT ? OFFSET ?",
		append(args, p.Limit, p.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}
