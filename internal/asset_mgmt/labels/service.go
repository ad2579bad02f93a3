package labels

import (
	"context"
	"database/sql"
	"io"
	"strings"

	"CAMPUS-backend/internal/platform/apierr"
	"CAMPUS-backend/internal/platform/db"
)

const maxLabels = 500

type Queries interface {
	ListLabelRows(ctx context.Context, ids []string) ([]Row, error)
}

type Service struct{ q Queries }

func NewService(conn *sql.DB) *Service { return &Service{q: NewStore(conn)} }

// ParseIDs: "a,b,,c" → [a b c]（重複除去・順序維持）
func ParseIDs(raw string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// Write は ids の品目のラベルCSVを w に書く
func (s *Service) Write(ctx context.Context, ids []string, enc Encoding, w io.Writer) (int, error) {
	if len(ids) == 0 {
		return 0, apierr.ErrInvalid("no printable items selected")
	}
	if len(ids) > maxLabels {
		return 0, apierr.ErrInvalid("too many labels in one request")
	}
	if enc != EncodingCP932 && enc != EncodingUTF16 {
		return 0, apierr.ErrInvalid("encoding must be cp932 or utf16")
	}
	rows, err := s.q.ListLabelRows(ctx, ids)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, apierr.ErrNotFound("no matching products")
	}
	return WriteCSV(w, rows, enc)
}

type Store struct{ q db.DBTX }

func NewStore(q db.DBTX) *Store { return &Store{q: q} }

func (s *Store) ListLabelRows(ctx context.Context, ids []string) ([]Row, error) {
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	query := `
		SELECT p.stock_id, p.name, COALESCE(c.name, ''), COALESCE(p.location, '')
		FROM products p
		LEFT JOIN categories c ON c.id = p.category_id
		WHERE p.deleted_at IS NULL AND p.id IN (?` + strings.Repeat(",?", len(ids)-1) + `)
		ORDER BY p.stock_id`
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Row, 0, len(ids))
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.StockID, &r.Name, &r.Category, &r.Location); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
