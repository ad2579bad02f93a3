package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type Account struct {
	ID           string
	DisplayName  string
	PasswordHash string
	Role         string
	IsDisabled   bool
	CreatedAt    time.Time
}

type AccountStore interface {
	GetByID(ctx context.Context, id string) (*Account, error)
	Create(ctx context.Context, a *Account) error
	Disable(ctx context.Context, id string) (int64, error)
	UpdateDisplayName(ctx context.Context, id, name string) (int64, error)
}

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) AccountStore {
	return &Store{db: db}
}

func (s *Store) GetByID(ctx context.Context, id string) (*Account, error) {
	const q = `
SELECT id, display_name, password_hash, role, is_disabled, created_at
FROM auth_accounts
WHERE id = ?
LIMIT 1
`
	var a Account
	err := s.db.QueryRowContext(ctx, q, id).Scan(
		&a.ID,
		&a.DisplayName,
		&a.PasswordHash,
		&a.Role,
		&a.IsDisabled,
		&a.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) Create(ctx context.Context, a *Account) error {
	const q = `
INSERT INTO auth_accounts (id, display_name, password_hash, role, is_disabled, created_at)
VALUES (?, ?, ?, ?, 0, NOW(6))
`
	_, err := s.db.ExecContext(ctx, q, a.ID, a.DisplayName, a.PasswordHash, a.Role)
	return err
}

// 取引履歴に利用者IDが残るので物理削除はしない
func (s *Store) Disable(ctx context.Context, id string) (int64, error) {
	const q = `UPDATE auth_accounts SET is_disabled = 1 WHERE id = ? AND is_disabled = 0`
	res, err := s.db.ExecContext(ctx, q, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) UpdateDisplayName(ctx context.Context, id, name string) (int64, error) {
	const q = `UPDATE auth_accounts SET display_name = ? WHERE id = ?`
	res, err := s.db.ExecContext(ctx, q, name, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
