package products

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"CAMPUS-backend/internal/asset_mgmt/inventory"
	"CAMPUS-backend/internal/asset_mgmt/ledger"
	"CAMPUS-backend/internal/platform/apierr"
	"CAMPUS-backend/internal/platform/db"
	"CAMPUS-backend/internal/platform/paging"
)

type Store struct {
	q db.DBTX
}

func NewStore(q db.DBTX) *Store { return &Store{q: q} }

func (s *Store) GetProduct(ctx context.Context, id string, forUpdate bool) (*inventory.Product, error) {
	return inventory.GetProduct(ctx, s.q, id, forUpdate)
}

func (s *Store) GetProductByStockID(ctx context.Context, stockID string) (*inventory.Product, error) {
	return inventory.GetProductByStockID(ctx, s.q, stockID)
}

func (s *Store) LockCategory(ctx context.Context, id uint) (string, bool, error) {
	const q = `SELECT code, is_disabled FROM categories WHERE id = ? FOR UPDATE`
	var (
		code     string
		disabled bool
	)
	if err := s.q.QueryRowContext(ctx, q, id).Scan(&code, &disabled); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, apierr.ErrInvalid("category not found")
		}
		return "", false, err
	}
	return code, disabled, nil
}

// MaxStockSeq: 削除済みも含めて最大の連番（番号を再利用しない）
func (s *Store) MaxStockSeq(ctx context.Context, prefix string) (int, error) {
	const q = `
		SELECT COALESCE(MAX(CAST(SUBSTRING(stock_id, ?) AS UNSIGNED)), 0)
		FROM products
		WHERE stock_id LIKE ?`
	var n int
	err := s.q.QueryRowContext(ctx, q, len(prefix)+2, prefix+"-%").Scan(&n)
	return n, err
}

func (s *Store) InsertProduct(ctx context.Context, p *inventory.Product) error {
	const q = `
	INSERT INTO products
	(id, stock_id, name, category_id, kind, serial_number, quantity, borrowed_count, status,
	 location, notes, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.q.ExecContext(ctx, q,
		p.ID, p.StockID, p.Name, p.CategoryID, p.Kind, p.SerialNumber, p.Quantity, p.BorrowedCount, p.Status,
		p.Location, p.Notes, p.CreatedAt, p.UpdatedAt,
	)
	if db.IsDuplicateKey(err) {
		return apierr.ErrConflict("stock_id or serial_number already exists")
	}
	return err
}

func (s *Store) UpdateProductInfo(ctx context.Context, p *inventory.Product) error {
	const q = `
		UPDATE products
		SET name = ?, serial_number = ?, location = ?, notes = ?, image_url = ?, thumbnail_url = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`
	res, err := s.q.ExecContext(ctx, q,
		p.Name, p.SerialNumber, p.Location, p.Notes, p.ImageURL, p.ThumbnailURL, p.UpdatedAt, p.ID)
	if err != nil {
		if db.IsDuplicateKey(err) {
			return apierr.ErrConflict("serial_number already exists")
		}
		return err
	}
	if aff, _ := res.RowsAffected(); aff != 1 {
		return apierr.ErrNotFound("product not found")
	}
	return nil
}

func (s *Store) UpdateProductState(ctx context.Context, p *inventory.Product) error {
	return inventory.UpdateProductState(ctx, s.q, p)
}

func (s *Store) SoftDeleteProduct(ctx context.Context, id string, at time.Time) error {
	const q = `UPDATE products SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`
	res, err := s.q.ExecContext(ctx, q, at, at, id)
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff != 1 {
		return apierr.ErrNotFound("product not found")
	}
	return nil
}

func (s *Store) ApplyStats(ctx context.Context, d ledger.Delta) error {
	return ledger.NewStore(s.q).Apply(ctx, d)
}

func (s *Store) ReconcileStatusChange(ctx context.Context, oldStatus, newStatus inventory.Status) error {
	return ledger.NewStore(s.q).ReconcileStatusChange(ctx, oldStatus, newStatus)
}

func (s *Store) ListProducts(ctx context.Context, f Filter, p paging.Page) ([]inventory.Product, int64, error) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(" FROM products WHERE deleted_at IS NULL")
	if f.CategoryID != nil {
		sb.WriteString(" AND category_id = ?")
		args = append(args, *f.CategoryID)
	}
	if f.Kind != nil {
		sb.WriteString(" AND kind = ?")
		args = append(args, *f.Kind)
	}
	if f.Status != nil {
		sb.WriteString(" AND status = ?")
		args = append(args, *f.Status)
	}
	if f.Keyword != nil && *f.Keyword != "" {
		sb.WriteString(" AND (name LIKE ? OR stock_id LIKE ? OR serial_number LIKE ?)")
		kw := "%" + *f.Keyword + "%"
		args = append(args, kw, kw, kw)
	}
	where := sb.String()

	var total int64
	if err := s.q.QueryRowContext(ctx, "SELECT COUNT(*)"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := "SELECT" + productColumnsForList + where + " ORDER BY created_at " + p.OrderSQL() + ", id LIMIT ? OFFSET ?"
	rows, err := s.q.QueryContext(ctx, q, append(args, p.Limit, p.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]inventory.Product, 0, p.Limit)
	for rows.Next() {
		var pr inventory.Product
		if err := rows.Scan(
			&pr.ID, &pr.StockID, &pr.Name, &pr.CategoryID, &pr.Kind, &pr.SerialNumber, &pr.Quantity, &pr.BorrowedCount,
			&pr.Status, &pr.ActiveTransactionID, &pr.Location, &pr.ImageURL, &pr.ThumbnailURL, &pr.Notes,
			&pr.CreatedAt, &pr.UpdatedAt,
		); err != nil {
			return nil, 0, err
		}
		out = append(out, pr)
	}
	return out, total, rows.Err()
}

const productColumnsForList = `
	id, stock_id, name, category_id, kind, serial_number, quantity, borrowed_count,
	status, active_transaction_id, location, image_url, thumbnail_url, notes, created_at, updated_at`
