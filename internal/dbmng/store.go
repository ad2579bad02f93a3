package dbmng

import (
	"context"
	"database/sql"

	"CAMPUS-backend/internal/platform/db"
)

type Store struct{ q db.DBTX }

func NewStore(q db.DBTX) *Store { return &Store{q: q} }

// GET /categories?all=1
func (s *Store) ListCategories(ctx context.Context, includeDisabled bool) ([]Category, error) {
	q := `SELECT id, name, code, is_disabled FROM categories`
	if !includeDisabled {
		q += ` WHERE is_disabled = 0`
	}
	q += ` ORDER BY id`

	rows, err := s.q.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := make([]Category, 0, 16)
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Code, &c.IsDisabled); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (s *Store) GetCategory(ctx context.Context, id uint) (*Category, error) {
	const q = `SELECT id, name, code, is_disabled FROM categories WHERE id = ?`
	var c Category
	if err := s.q.QueryRowContext(ctx, q, id).Scan(&c.ID, &c.Name, &c.Code, &c.IsDisabled); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) CreateCategory(ctx context.Context, name, code string) (*Category, error) {
	const q = `INSERT INTO categories (name, code, is_disabled) VALUES (?, ?, 0)`
	r, err := s.q.ExecContext(ctx, q, name, code)
	if err != nil {
		return nil, err
	}
	lastID, err := r.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &Category{ID: uint(lastID), Name: name, Code: code}, nil
}

func (s *Store) UpdateCategory(ctx context.Context, c Category) error {
	const q = `UPDATE categories SET name = ?, code = ?, is_disabled = ? WHERE id = ?`
	r, err := s.q.ExecContext(ctx, q, c.Name, c.Code, c.IsDisabled, c.ID)
	if err != nil {
		return err
	}
	return oneRow(r)
}

// DELETE: is_disabled=1 にする
func (s *Store) DisableCategory(ctx context.Context, id uint) error {
	r, err := s.q.ExecContext(ctx, `UPDATE categories SET is_disabled = 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return oneRow(r)
}

// CountProducts: コード変更可否の判定用
func (s *Store) CountProducts(ctx context.Context, id uint) (int64, error) {
	var n int64
	err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM products WHERE category_id = ?`, id).Scan(&n)
	return n, err
}

func oneRow(r sql.Result) error {
	aff, err := r.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return sql.ErrNoRows
	}
	return nil
}
