package products

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	ulid "github.com/oklog/ulid/v2"

	"CAMPUS-backend/internal/asset_mgmt/inventory"
	"CAMPUS-backend/internal/asset_mgmt/ledger"
	"CAMPUS-backend/internal/platform/apierr"
	"CAMPUS-backend/internal/platform/blob"
	"CAMPUS-backend/internal/platform/db"
	"CAMPUS-backend/internal/platform/logging"
	"CAMPUS-backend/internal/platform/paging"
)

// -------------- Clock & ID --------------

type Clock interface{ Now() time.Time }
type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type IDGen interface{ NewULID(t time.Time) string }
type ulidGen struct{}

func (ulidGen) NewULID(t time.Time) string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// -------------- Queries --------------

type Queries interface {
	GetProduct(ctx context.Context, id string, forUpdate bool) (*inventory.Product, error)
	GetProductByStockID(ctx context.Context, stockID string) (*inventory.Product, error)
	ListProducts(ctx context.Context, f Filter, p paging.Page) ([]inventory.Product, int64, error)
	// LockCategory: 採番のため分類行をロックしてコードを返す
	LockCategory(ctx context.Context, id uint) (code string, disabled bool, err error)
	MaxStockSeq(ctx context.Context, prefix string) (int, error)
	InsertProduct(ctx context.Context, p *inventory.Product) error
	UpdateProductInfo(ctx context.Context, p *inventory.Product) error
	UpdateProductState(ctx context.Context, p *inventory.Product) error
	SoftDeleteProduct(ctx context.Context, id string, at time.Time) error
	ApplyStats(ctx context.Context, d ledger.Delta) error
	ReconcileStatusChange(ctx context.Context, oldStatus, newStatus inventory.Status) error
}

// StatsInvalidator: ledger.Service
type StatsInvalidator interface {
	Invalidate(ctx context.Context)
}

// -------------- Service --------------

type Service struct {
	tx       db.TxFunc[Queries]
	read     Queries
	clock    Clock
	id       IDGen
	stats    StatsInvalidator
	uploader blob.Uploader
	maxWidth int
}

func NewService(conn *sql.DB, stats StatsInvalidator, uploader blob.Uploader, maxWidth int) *Service {
	bind := func(q db.DBTX) Queries { return NewStore(q) }
	return &Service{
		tx:       db.Binder(conn, bind),
		read:     NewStore(conn),
		clock:    realClock{},
		id:       ulidGen{},
		stats:    stats,
		uploader: uploader,
		maxWidth: maxWidth,
	}
}

func (s *Service) invalidate(ctx context.Context) {
	if s.stats != nil {
		s.stats.Invalidate(ctx)
	}
}

// mutate は行ロック済みの品目を fn で書き換え、集計差分と一緒に保存する
func (s *Service) mutate(ctx context.Context, id string, fn func(p *inventory.Product) error) (*inventory.Product, error) {
	var out *inventory.Product
	err := s.tx(ctx, func(ctx context.Context, q Queries) error {
		p, err := q.GetProduct(ctx, id, true)
		if err != nil {
			return err
		}
		before := ledger.SnapshotOf(p)
		if err := fn(p); err != nil {
			return err
		}
		p.UpdatedAt = s.clock.Now()
		if err := q.UpdateProductState(ctx, p); err != nil {
			return err
		}
		if err := applyDiff(ctx, q, before, ledger.SnapshotOf(p)); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return out, nil
}

// unique 品の状態変更だけなら old/new の付け替え1回で済む
func applyDiff(ctx context.Context, q Queries, before, after ledger.Snapshot) error {
	if before.Kind == inventory.KindUnique && !before.Deleted && !after.Deleted && before.Status != after.Status {
		return q.ReconcileStatusChange(ctx, before.Status, after.Status)
	}
	return q.ApplyStats(ctx, ledger.Diff(before, after))
}

// POST /products
func (s *Service) Create(ctx context.Context, in CreateProductRequest) (ProductResponse, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return ProductResponse{}, apierr.ErrInvalid("name is required")
	}
	if !in.Kind.Valid() {
		return ProductResponse{}, apierr.ErrInvalid("kind must be unique or bulk")
	}
	if in.Quantity < 0 {
		return ProductResponse{}, apierr.ErrInvalid("quantity cannot be negative")
	}

	now := s.clock.Now()
	p := &inventory.Product{
		ID:         s.id.NewULID(now),
		Name:       name,
		CategoryID: in.CategoryID,
		Kind:       in.Kind,
		Location:   toNullString(in.Location),
		Notes:      toNullString(in.Notes),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if in.Kind == inventory.KindUnique {
		if in.SerialNumber == nil || strings.TrimSpace(*in.SerialNumber) == "" {
			return ProductResponse{}, apierr.ErrInvalid("serial_number is required for unique items")
		}
		p.SerialNumber = toNullString(in.SerialNumber)
		p.Quantity = 1
		p.Status = inventory.StatusAvailable
	} else {
		p.Quantity = in.Quantity
		p.Status = inventory.DeriveStockStatus(in.Quantity, 0)
	}

	err := s.tx(ctx, func(ctx context.Context, q Queries) error {
		code, disabled, err := q.LockCategory(ctx, in.CategoryID)
		if err != nil {
			return err
		}
		if disabled {
			return apierr.ErrInvalid("category is disabled")
		}
		seq, err := q.MaxStockSeq(ctx, code)
		if err != nil {
			return err
		}
		p.StockID = FormatStockID(code, seq+1)
		if err := q.InsertProduct(ctx, p); err != nil {
			return err
		}
		return q.ApplyStats(ctx, ledger.Contribution(ledger.SnapshotOf(p)))
	})
	if err != nil {
		return ProductResponse{}, err
	}
	s.invalidate(ctx)
	return toResponse(p), nil
}

// FormatStockID: COM-001 形式。1000以上はそのまま桁が増える
func FormatStockID(code string, seq int) string {
	return fmt.Sprintf("%s-%03d", strings.ToUpper(code), seq)
}

func (s *Service) Get(ctx context.Context, id string) (ProductResponse, error) {
	p, err := s.read.GetProduct(ctx, id, false)
	if err != nil {
		return ProductResponse{}, err
	}
	return toResponse(p), nil
}

func (s *Service) GetByStockID(ctx context.Context, stockID string) (ProductResponse, error) {
	p, err := s.read.GetProductByStockID(ctx, strings.ToUpper(strings.TrimSpace(stockID)))
	if err != nil {
		return ProductResponse{}, err
	}
	return toResponse(p), nil
}

func (s *Service) List(ctx context.Context, f Filter, p paging.Page) (paging.Result[ProductResponse], error) {
	rows, total, err := s.read.ListProducts(ctx, f, p)
	if err != nil {
		return paging.Result[ProductResponse]{}, err
	}
	items := make([]ProductResponse, 0, len(rows))
	for i := range rows {
		items = append(items, toResponse(&rows[i]))
	}
	return paging.NewResult(items, total, p), nil
}

// PATCH /products/:id （在庫・状態以外）
func (s *Service) UpdateInfo(ctx context.Context, id string, in UpdateProductRequest) (ProductResponse, error) {
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return ProductResponse{}, apierr.ErrInvalid("name cannot be empty")
	}
	var out *inventory.Product
	err := s.tx(ctx, func(ctx context.Context, q Queries) error {
		p, err := q.GetProduct(ctx, id, true)
		if err != nil {
			return err
		}
		if in.Name != nil {
			p.Name = strings.TrimSpace(*in.Name)
		}
		if in.SerialNumber != nil {
			if p.Kind != inventory.KindUnique {
				return apierr.ErrInvalid("serial_number applies to unique items only")
			}
			if strings.TrimSpace(*in.SerialNumber) == "" {
				return apierr.ErrInvalid("serial_number cannot be empty")
			}
			p.SerialNumber = toNullString(in.SerialNumber)
		}
		if in.Location != nil {
			p.Location = toNullString(in.Location)
		}
		if in.Notes != nil {
			p.Notes = toNullString(in.Notes)
		}
		p.UpdatedAt = s.clock.Now()
		out = p
		return q.UpdateProductInfo(ctx, p)
	})
	if err != nil {
		return ProductResponse{}, err
	}
	return toResponse(out), nil
}

// PUT /products/:id/status
//
//	unique: available / maintenance / requisitioned。貸出中は変更不可
//	bulk:   maintenance にする、または available で在庫から再判定
func (s *Service) UpdateStatus(ctx context.Context, id string, raw string) (ProductResponse, error) {
	target, ok := inventory.NormalizeStatus(raw)
	if !ok {
		return ProductResponse{}, apierr.ErrInvalid("unknown status")
	}
	if target == inventory.StatusBorrowed {
		return ProductResponse{}, apierr.ErrInvalid("use the borrow endpoint to lend an item")
	}

	p, err := s.mutate(ctx, id, func(p *inventory.Product) error {
		if p.Kind == inventory.KindUnique {
			if p.Status == inventory.StatusBorrowed {
				return apierr.ErrConflict("item is borrowed; return it first")
			}
			p.Status = target
			return nil
		}
		switch target {
		case inventory.StatusMaintenance:
			p.Status = inventory.StatusMaintenance
		case inventory.StatusAvailable:
			p.Status = inventory.DeriveStockStatus(p.Quantity, p.BorrowedCount)
		default:
			return apierr.ErrInvalid("bulk items accept available or maintenance")
		}
		return nil
	})
	if err != nil {
		return ProductResponse{}, err
	}
	return toResponse(p), nil
}

// POST /products/:id/stock
func (s *Service) AdjustProductStock(ctx context.Context, id string, in StockRequest) (ProductResponse, error) {
	if in.Mode == nil {
		// 在庫変更なし。集計も触らない
		return s.Get(ctx, id)
	}
	mode := *in.Mode
	if mode != StockSet && mode != StockAdd {
		return ProductResponse{}, apierr.ErrInvalid("mode must be set or add")
	}

	p, err := s.mutate(ctx, id, func(p *inventory.Product) error {
		if p.Kind != inventory.KindBulk {
			return apierr.ErrInvalid("stock adjustment applies to bulk items only")
		}
		return applyStock(p, mode, in.Delta)
	})
	if err != nil {
		return ProductResponse{}, err
	}
	return toResponse(p), nil
}

// DELETE /products/:id （論理削除）
func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.tx(ctx, func(ctx context.Context, q Queries) error {
		p, err := q.GetProduct(ctx, id, true)
		if err != nil {
			return err
		}
		if p.Status == inventory.StatusBorrowed || p.BorrowedCount > 0 {
			return apierr.ErrConflict("item has active borrows")
		}
		before := ledger.SnapshotOf(p)
		if err := q.SoftDeleteProduct(ctx, id, s.clock.Now()); err != nil {
			return err
		}
		return q.ApplyStats(ctx, ledger.Contribution(before).Neg())
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// POST /products/:id/image
func (s *Service) SetImage(ctx context.Context, id string, r io.Reader) (ProductResponse, error) {
	if _, err := s.read.GetProduct(ctx, id, false); err != nil {
		return ProductResponse{}, err
	}
	urls, err := blob.UploadImage(ctx, s.uploader, "products/"+id, r, s.maxWidth)
	if err != nil {
		if errors.Is(err, blob.ErrNotConfigured) {
			return ProductResponse{}, apierr.ErrInternal("image storage is not configured")
		}
		logging.LogError("products", "SetImage", "upload failed", id, err)
		return ProductResponse{}, apierr.ErrInvalid("could not process image")
	}

	var out *inventory.Product
	err = s.tx(ctx, func(ctx context.Context, q Queries) error {
		p, err := q.GetProduct(ctx, id, true)
		if err != nil {
			return err
		}
		p.ImageURL = inventory.NullString(urls.ImageURL)
		p.ThumbnailURL = inventory.NullString(urls.ThumbnailURL)
		p.UpdatedAt = s.clock.Now()
		out = p
		return q.UpdateProductInfo(ctx, p)
	})
	if err != nil {
		return ProductResponse{}, err
	}
	return toResponse(out), nil
}

func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return inventory.NullString(*s)
}
