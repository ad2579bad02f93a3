package lends

import (
	"context"
	"crypto/rand"
	"database/sql"
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

// ===== インターフェース群 =====

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
	GetTransaction(ctx context.Context, id string, forUpdate bool) (*inventory.Transaction, error)
	ListActiveBorrows(ctx context.Context, productID string) ([]inventory.Transaction, error)
	CompleteTransaction(ctx context.Context, id string, st inventory.ReturnStamp) error
	ListTransactions(ctx context.Context, f TxFilter, p paging.Page) ([]inventory.Transaction, int64, error)
	ApplyStats(ctx context.Context, d ledger.Delta) error
}

type StatsInvalidator interface {
	Invalidate(ctx context.Context)
}

// ===== Service本体 =====

type Service struct {
	tx       db.TxFunc[Queries]
	read     Queries
	clock    Clock
	id       IDGen
	stats    StatsInvalidator
	uploader blob.Uploader
}

func NewService(conn *sql.DB, stats StatsInvalidator, uploader blob.Uploader) *Service {
	bind := func(q db.DBTX) Queries { return NewStore(q) }
	return &Service{
		tx:       db.Binder(conn, bind),
		read:     NewStore(conn),
		clock:    realClock{},
		id:       ulidGen{},
		stats:    stats,
		uploader: uploader,
	}
}

func (s *Service) invalidate(ctx context.Context) {
	if s.stats != nil {
		s.stats.Invalidate(ctx)
	}
}

// 貸出登録（1回の貸出で1単位）
func (s *Service) Borrow(ctx context.Context, productID string, who Person, in BorrowRequest) (BorrowResponse, error) {
	if strings.TrimSpace(who.ID) == "" {
		return BorrowResponse{}, apierr.ErrInvalid("borrower is required")
	}
	if strings.TrimSpace(who.Name) == "" {
		who.Name = who.ID
	}

	var due sql.NullTime
	if in.DueDate != nil && *in.DueDate != "" {
		t, err := time.Parse("2006-01-02", *in.DueDate)
		if err != nil {
			return BorrowResponse{}, apierr.ErrInvalid("invalid due_date format, expected YYYY-MM-DD")
		}
		due = sql.NullTime{Time: t, Valid: true}
	}

	now := s.clock.Now()
	t := &inventory.Transaction{
		ID:           s.id.NewULID(now),
		Type:         inventory.TxBorrow,
		ProductID:    productID,
		Status:       inventory.TxActive,
		Amount:       1,
		BorrowerID:   who.ID,
		BorrowerName: who.Name,
		BorrowDate:   sql.NullTime{Time: now, Valid: true},
		DueDate:      due,
		SignatureURL: optString(in.SignatureURL),
		Notes:        optString(in.Notes),
		CreatedAt:    now,
	}

	var out *inventory.Product
	err := s.tx(ctx, func(ctx context.Context, q Queries) error {
		p, err := q.GetProduct(ctx, productID, true)
		if err != nil {
			return err
		}
		before := ledger.SnapshotOf(p)

		switch p.Kind {
		case inventory.KindUnique:
			if p.Status != inventory.StatusAvailable {
				return apierr.ErrConflict("item is not available")
			}
		case inventory.KindBulk:
			if p.Status == inventory.StatusMaintenance {
				return apierr.ErrConflict("item is under maintenance")
			}
			if p.Free() <= 0 {
				return apierr.ErrConflict("no units left")
			}
		default:
			return apierr.ErrInternal("unknown product kind")
		}

		if err := q.InsertTransaction(ctx, t); err != nil {
			return err
		}

		if p.Kind == inventory.KindUnique {
			p.Status = inventory.StatusBorrowed
			p.ActiveTransactionID = sql.NullString{String: t.ID, Valid: true}
		} else {
			p.BorrowedCount += t.Amount
			p.Status = inventory.DeriveStockStatus(p.Quantity, p.BorrowedCount)
		}
		p.UpdatedAt = now
		if err := q.UpdateProductState(ctx, p); err != nil {
			return err
		}
		if err := q.ApplyStats(ctx, ledger.BorrowDelta(before)); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return BorrowResponse{}, err
	}
	s.invalidate(ctx)
	return BorrowResponse{Transaction: toTxResponse(t), Product: toProductState(out)}, nil
}

// 返却登録。receiver は受け取った職員
func (s *Service) CompleteReturn(ctx context.Context, productID string, receiver Person, in ReturnRequest) (ReturnResponse, error) {
	// 書き込み前に検証
	signature := strings.TrimSpace(in.SignatureURL)
	returner := strings.TrimSpace(in.ReturnerName)
	if signature == "" {
		return ReturnResponse{}, apierr.ErrInvalid("signature is required")
	}
	if returner == "" {
		return ReturnResponse{}, apierr.ErrInvalid("returner_name is required")
	}
	if strings.TrimSpace(receiver.ID) == "" {
		return ReturnResponse{}, apierr.ErrInvalid("receiving staff is required")
	}
	if strings.TrimSpace(receiver.Name) == "" {
		receiver.Name = receiver.ID
	}
	var notes string
	if in.Notes != nil {
		notes = *in.Notes
	}

	now := s.clock.Now()
	stamp := inventory.ReturnStamp{
		ReturnerName:       returner,
		ReceivedByID:       receiver.ID,
		ReceivedByName:     receiver.Name,
		ReturnSignatureURL: signature,
		Notes:              notes,
		ReturnedAt:         now,
	}

	var (
		res    ReturnResponse
		closed *inventory.Transaction
		audit  *inventory.Transaction
		out    *inventory.Product
	)
	err := s.tx(ctx, func(ctx context.Context, q Queries) error {
		p, err := q.GetProduct(ctx, productID, true)
		if err != nil {
			return err
		}
		before := ledger.SnapshotOf(p)

		var target *inventory.Transaction
		switch p.Kind {
		case inventory.KindUnique:
			if p.Status != inventory.StatusBorrowed {
				return apierr.ErrConflict("item is not borrowed")
			}
			target, err = s.uniqueTarget(ctx, q, p)
			if err != nil {
				return err
			}
		case inventory.KindBulk:
			if in.TransactionID == nil || strings.TrimSpace(*in.TransactionID) == "" {
				return apierr.ErrInvalid("transaction_id is required for bulk items")
			}
			target, err = q.GetTransaction(ctx, strings.TrimSpace(*in.TransactionID), true)
			if err != nil {
				return err
			}
			if target.ProductID != p.ID || target.Type != inventory.TxBorrow {
				return apierr.ErrInvalid("transaction does not belong to this item")
			}
			if target.Status != inventory.TxActive {
				return apierr.ErrConflict("transaction is already completed")
			}
			if p.BorrowedCount < target.Amount {
				return apierr.ErrConflict("borrowed count is inconsistent; run a recount")
			}
		default:
			return apierr.ErrInternal("unknown product kind")
		}

		a := &inventory.Transaction{
			ID:                 s.id.NewULID(now),
			Type:               inventory.TxReturn,
			ProductID:          p.ID,
			Status:             inventory.TxCompleted,
			Amount:             1,
			BorrowerID:         receiver.ID,
			BorrowerName:       returner,
			ReturnDate:         sql.NullTime{Time: now, Valid: true},
			ReturnerName:       inventory.NullString(returner),
			ReceivedByID:       inventory.NullString(receiver.ID),
			ReceivedByName:     inventory.NullString(receiver.Name),
			ReturnSignatureURL: inventory.NullString(signature),
			Notes:              inventory.NullString(notes),
			CreatedAt:          now,
		}
		if target != nil {
			if err := q.CompleteTransaction(ctx, target.ID, stamp); err != nil {
				return err
			}
			target.Status = inventory.TxCompleted
			target.ReturnDate = sql.NullTime{Time: now, Valid: true}
			target.ReturnerName = inventory.NullString(returner)
			target.ReceivedByID = inventory.NullString(receiver.ID)
			target.ReceivedByName = inventory.NullString(receiver.Name)
			target.ReturnSignatureURL = inventory.NullString(signature)
			if notes != "" {
				target.Notes = inventory.NullString(notes)
			}
			a.Amount = target.Amount
			a.BorrowerID = target.BorrowerID
			a.RefTransactionID = sql.NullString{String: target.ID, Valid: true}
		}
		if err := q.InsertTransaction(ctx, a); err != nil {
			return err
		}

		if p.Kind == inventory.KindUnique {
			p.Status = inventory.StatusAvailable
			p.ActiveTransactionID = sql.NullString{}
		} else {
			p.BorrowedCount -= target.Amount
			if p.Status != inventory.StatusMaintenance {
				p.Status = inventory.DeriveStockStatus(p.Quantity, p.BorrowedCount)
			}
		}
		p.UpdatedAt = now
		if err := q.UpdateProductState(ctx, p); err != nil {
			return err
		}
		if err := q.ApplyStats(ctx, ledger.ReturnDelta(before)); err != nil {
			return err
		}
		closed, audit, out = target, a, p
		return nil
	})
	if err != nil {
		return ReturnResponse{}, err
	}
	s.invalidate(ctx)

	if closed != nil {
		r := toTxResponse(closed)
		res.Closed = &r
	}
	res.Audit = toTxResponse(audit)
	res.Product = toProductState(out)
	return res, nil
}

// uniqueTarget: 逆参照 → 無ければ最古の active 貸出。どちらも無ければ nil
func (s *Service) uniqueTarget(ctx context.Context, q Queries, p *inventory.Product) (*inventory.Transaction, error) {
	if p.ActiveTransactionID.Valid && p.ActiveTransactionID.String != "" {
		t, err := q.GetTransaction(ctx, p.ActiveTransactionID.String, true)
		if err == nil && t.Status == inventory.TxActive && t.ProductID == p.ID {
			return t, nil
		}
		if err != nil && !apierr.Is(err, apierr.CodeNotFound) {
			return nil, err
		}
		logging.LogWarn("lends", "CompleteReturn", "stale active_transaction_id, falling back", p.ID)
	}

	active, err := q.ListActiveBorrows(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if len(active) == 0 {
		logging.LogWarn("lends", "CompleteReturn", "no active borrow found; returning without closing a transaction", p.ID)
		return nil, nil
	}
	t := active[0]
	return &t, nil
}

// 返却前の選択肢（古い順）
func (s *Service) ListActiveBorrows(ctx context.Context, productID string) ([]TransactionResponse, error) {
	if _, err := s.read.GetProduct(ctx, productID, false); err != nil {
		return nil, err
	}
	rows, err := s.read.ListActiveBorrows(ctx, productID)
	if err != nil {
		return nil, err
	}
	out := make([]TransactionResponse, 0, len(rows))
	for i := range rows {
		out = append(out, toTxResponse(&rows[i]))
	}
	return out, nil
}

func (s *Service) ListTransactions(ctx context.Context, f TxFilter, p paging.Page) (paging.Result[TransactionResponse], error) {
	if f.From != nil && f.To != nil && !f.From.Before(*f.To) {
		return paging.Result[TransactionResponse]{}, apierr.ErrInvalid("from must be before to")
	}
	rows, total, err := s.read.ListTransactions(ctx, f, p)
	if err != nil {
		return paging.Result[TransactionResponse]{}, err
	}
	items := make([]TransactionResponse, 0, len(rows))
	for i := range rows {
		items = append(items, toTxResponse(&rows[i]))
	}
	return paging.NewResult(items, total, p), nil
}

func (s *Service) GetTransaction(ctx context.Context, id string) (TransactionResponse, error) {
	t, err := s.read.GetTransaction(ctx, id, false)
	if err != nil {
		return TransactionResponse{}, err
	}
	return toTxResponse(t), nil
}

// UploadSignature: 署名画像(PNG)をそのまま保存して URL を返す
func (s *Service) UploadSignature(ctx context.Context, r io.Reader) (SignatureResponse, error) {
	if s.uploader == nil {
		return SignatureResponse{}, apierr.ErrInternal("signature storage is not configured")
	}
	url, err := s.uploader.Upload(ctx, blob.ObjectPath("signatures", ".png"), "image/png", r)
	if err != nil {
		logging.LogError("lends", "UploadSignature", "upload failed", nil, err)
		return SignatureResponse{}, apierr.ErrInternal("could not store signature")
	}
	return SignatureResponse{URL: url}, nil
}

func optString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return inventory.NullString(*s)
}
