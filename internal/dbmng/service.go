package dbmng

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"

	"CAMPUS-backend/internal/platform/apierr"
	"CAMPUS-backend/internal/platform/db"
	"CAMPUS-backend/internal/platform/logging"
)

var codePattern = regexp.MustCompile(`^[A-Z]{2,5}$`)

type Queries interface {
	ListCategories(ctx context.Context, includeDisabled bool) ([]Category, error)
	GetCategory(ctx context.Context, id uint) (*Category, error)
	CreateCategory(ctx context.Context, name, code string) (*Category, error)
	UpdateCategory(ctx context.Context, c Category) error
	DisableCategory(ctx context.Context, id uint) error
	CountProducts(ctx context.Context, id uint) (int64, error)
}

type Service struct{ q Queries }

func NewService(conn *sql.DB) *Service { return &Service{q: NewStore(conn)} }

func parseBoolish(s string) bool {
	s = strings.TrimSpace(strings.ToLower(s))
	return s == "1" || s == "true" || s == "yes" || s == "all"
}

// normalizeCode: 大文字化して 2〜5 文字の英字か確認
func normalizeCode(code string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	if !codePattern.MatchString(c) {
		return "", apierr.ErrInvalid("code must be 2-5 letters")
	}
	return c, nil
}

func (s *Service) ListCategories(ctx context.Context, all string) ([]Category, error) {
	res, err := s.q.ListCategories(ctx, parseBoolish(all))
	if err != nil {
		logging.LogError("dbmng", "ListCategories", "query failed", all, err)
		return nil, apierr.ErrInternal("failed to list categories")
	}
	return res, nil
}

func (s *Service) GetCategory(ctx context.Context, id uint) (*Category, error) {
	c, err := s.q.GetCategory(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierr.ErrNotFound("category not found")
		}
		return nil, apierr.ErrInternal("failed to get category")
	}
	return c, nil
}

func (s *Service) CreateCategory(ctx context.Context, name, code string) (*Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apierr.ErrInvalid("name is required")
	}
	code, err := normalizeCode(code)
	if err != nil {
		return nil, err
	}
	c, err := s.q.CreateCategory(ctx, name, code)
	if err != nil {
		if db.IsDuplicateKey(err) {
			return nil, apierr.ErrConflict("code already exists")
		}
		logging.LogError("dbmng", "CreateCategory", "insert failed", code, err)
		return nil, apierr.ErrInternal("failed to create category")
	}
	return c, nil
}

// UpdateCategory: 品目が登録済みの分類はコードを変えられない（管理番号がずれるため）
func (s *Service) UpdateCategory(ctx context.Context, id uint, name, code string, disabled bool) (*Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apierr.ErrInvalid("name is required")
	}
	code, err := normalizeCode(code)
	if err != nil {
		return nil, err
	}
	cur, err := s.GetCategory(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.Code != code {
		n, err := s.q.CountProducts(ctx, id)
		if err != nil {
			return nil, apierr.ErrInternal("failed to update category")
		}
		if n > 0 {
			return nil, apierr.ErrConflict("code cannot change while products exist")
		}
	}

	next := Category{ID: id, Name: name, Code: code, IsDisabled: disabled}
	if err := s.q.UpdateCategory(ctx, next); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, apierr.ErrNotFound("category not found")
		case db.IsDuplicateKey(err):
			return nil, apierr.ErrConflict("code already exists")
		}
		return nil, apierr.ErrInternal("failed to update category")
	}
	return &next, nil
}

func (s *Service) DisableCategory(ctx context.Context, id uint) error {
	if err := s.q.DisableCategory(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apierr.ErrNotFound("category not found")
		}
		return apierr.ErrInternal("failed to delete category")
	}
	return nil
}
