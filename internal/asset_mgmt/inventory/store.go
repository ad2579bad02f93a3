package inventory

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"CAMPUS-backend/internal/platform/apierr"
	"CAMPUS-backend/internal/platform/db"
)

const productColumns = `
	id, stock_id, name, category_id, kind, serial_number, quantity, borrowed_count,
	status, active_transaction_id, location, image_url, thumbnail_url, notes,
	created_at, updated_at, deleted_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(r rowScanner) (*Product, error) {
	var p Product
	err := r.Scan(
		&p.ID, &p.StockID, &p.Name, &p.CategoryID, &p.Kind, &p.SerialNumber, &p.Quantity, &p.BorrowedCount,
		&p.Status, &p.ActiveTransactionID, &p.Location, &p.ImageURL, &p.ThumbnailURL, &p.Notes,
		&p.CreatedAt, &p.UpdatedAt, &p.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProduct: forUpdate なら行ロック（Tx内で使うこと）。削除済みは NotFound
func GetProduct(ctx context.Context, q db.DBTX, id string, forUpdate bool) (*Product, error) {
	query := `SELECT` + productColumns + ` FROM products WHERE id = ? AND deleted_at IS NULL`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	p, err := scanProduct(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierr.ErrNotFound("product not found")
		}
		return nil, err
	}
	return p, nil
}

func GetProductByStockID(ctx context.Context, q db.DBTX, stockID string) (*Product, error) {
	query := `SELECT` + productColumns + ` FROM products WHERE stock_id = ? AND deleted_at IS NULL`
	p, err := scanProduct(q.QueryRowContext(ctx, query, stockID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierr.ErrNotFound("product not found")
		}
		return nil, err
	}
	return p, nil
}

func ListProductsByIDs(ctx context.Context, q db.DBTX, ids []string) ([]Product, error) {
	if len(ids) == 0 {
		return []Product{}, nil
	}
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	query := `SELECT` + productColumns + ` FROM products WHERE deleted_at IS NULL AND id IN (?` +
		strings.Repeat(",?", len(ids)-1) + `) ORDER BY stock_id`
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProducts(rows)
}

func collectProducts(rows *sql.Rows) ([]Product, error) {
	out := make([]Product, 0, 16)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// UpdateProductState は在庫・状態・返却用の参照だけを書き換える
func UpdateProductState(ctx context.Context, q db.DBTX, p *Product) error {
	const query = `
		UPDATE products
		SET quantity = ?, borrowed_count = ?, status = ?, active_transaction_id = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`
	res, err := q.ExecContext(ctx, query,
		p.Quantity, p.BorrowedCount, p.Status, p.ActiveTransactionID, p.UpdatedAt, p.ID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff != 1 {
		return apierr.ErrNotFound("product not found")
	}
	return nil
}

// ===== transactions =====

const transactionColumns = `
	id, type, product_id, status, amount, borrower_id, borrower_name, borrow_date, due_date,
	return_date, returner_name, received_by_id, received_by_name, signature_url,
	return_signature_url, notes, ref_transaction_id, created_at`

func scanTransaction(r rowScanner) (*Transaction, error) {
	var t Transaction
	err := r.Scan(
		&t.ID, &t.Type, &t.ProductID, &t.Status, &t.Amount, &t.BorrowerID, &t.BorrowerName, &t.BorrowDate, &t.DueDate,
		&t.ReturnDate, &t.ReturnerName, &t.ReceivedByID, &t.ReceivedByName, &t.SignatureURL,
		&t.ReturnSignatureURL, &t.Notes, &t.RefTransactionID, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func InsertTransaction(ctx context.Context, q db.DBTX, t *Transaction) error {
	const query = `
	INSERT INTO transactions
	(id, type, product_id, status, amount, borrower_id, borrower_name, borrow_date, due_date,
	 return_date, returner_name, received_by_id, received_by_name, signature_url,
	 return_signature_url, notes, ref_transaction_id, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := q.ExecContext(ctx, query,
		t.ID, t.Type, t.ProductID, t.Status, t.Amount, t.BorrowerID, t.BorrowerName, t.BorrowDate, t.DueDate,
		t.ReturnDate, t.ReturnerName, t.ReceivedByID, t.ReceivedByName, t.SignatureURL,
		t.ReturnSignatureURL, t.Notes, t.RefTransactionID, t.CreatedAt,
	)
	return err
}

func GetTransaction(ctx context.Context, q db.DBTX, id string, forUpdate bool) (*Transaction, error) {
	query := `SELECT` + transactionColumns + ` FROM transactions WHERE id = ?`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	t, err := scanTransaction(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierr.ErrNotFound("transaction not found")
		}
		return nil, err
	}
	return t, nil
}

// ListActiveBorrows: 古い順
func ListActiveBorrows(ctx context.Context, q db.DBTX, productID string) ([]Transaction, error) {
	query := `SELECT` + transactionColumns + `
		FROM transactions
		WHERE product_id = ? AND type = 'borrow' AND status = 'active'
		ORDER BY borrow_date ASC, id ASC`
	rows, err := q.QueryContext(ctx, query, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// QueryTransactions: tail は " FROM ..." 以降
func QueryTransactions(ctx context.Context, q db.DBTX, tail string, args ...any) ([]Transaction, error) {
	rows, err := q.QueryContext(ctx, `SELECT`+transactionColumns+tail, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func collectTransactions(rows *sql.Rows) ([]Transaction, error) {
	out := make([]Transaction, 0, 8)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// CompleteTransaction は active な貸出だけを completed にする
func CompleteTransaction(ctx context.Context, q db.DBTX, id string, st ReturnStamp) error {
	const query = `
		UPDATE transactions
		SET status = 'completed', return_date = ?, returner_name = ?, received_by_id = ?,
		    received_by_name = ?, return_signature_url = ?, notes = COALESCE(?, notes)
		WHERE id = ? AND status = 'active'`
	res, err := q.ExecContext(ctx, query,
		st.ReturnedAt, st.ReturnerName, st.ReceivedByID, st.ReceivedByName, st.ReturnSignatureURL,
		NullString(st.Notes), id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff != 1 {
		return apierr.ErrConflict("transaction is not active")
	}
	return nil
}

func NullString(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}

func NullToPtr(ns sql.NullString) *string {
	if ns.Valid {
		v := ns.String
		return &v
	}
	return nil
}

func NullTimeToPtr(nt sql.NullTime) *time.Time {
	if nt.Valid {
		v := nt.Time
		return &v
	}
	return nil
}
