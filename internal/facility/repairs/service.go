// Package repairs は修理依頼の受付から完了まで
package repairs

import (
	"context"
	"crypto/rand"
	"database/sql"
	"strings"
	"time"

	ulid "github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"CAMPUS-backend/internal/asset_mgmt/inventory"
	"CAMPUS-backend/internal/platform/apierr"
	"CAMPUS-backend/internal/platform/auth"
	"CAMPUS-backend/internal/platform/db"
	"CAMPUS-backend/internal/platform/notify"
	"CAMPUS-backend/internal/platform/paging"
)

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
	ReconcileStatusChange(ctx context.Context, oldStatus, newStatus inventory.Status) error
	InsertTicket(ctx context.Context, t *Ticket) error
	GetTicket(ctx context.Context, id string, forUpdate bool) (*Ticket, error)
	UpdateTicket(ctx context.Context, t *Ticket) error
	ListTickets(ctx context.Context, f Filter, p paging.Page) ([]Ticket, int64, error)
}

type StatsInvalidator interface {
	Invalidate(ctx context.Context)
}

type Service struct {
	tx         db.TxFunc[Queries]
	read       Queries
	clock      Clock
	id         IDGen
	stats      StatsInvalidator
	notifier   notify.Notifier
	moderators []string
}

func NewService(conn *sql.DB, stats StatsInvalidator, n notify.Notifier, moderators []string) *Service {
	return &Service{
		tx:         db.Binder(conn, func(q db.DBTX) Queries { return NewStore(q) }),
		read:       NewStore(conn),
		clock:      realClock{},
		id:         ulidGen{},
		stats:      stats,
		notifier:   n,
		moderators: moderators,
	}
}

// POST /repairs
func (s *Service) Create(ctx context.Context, who auth.Identity, in CreateRequest) (TicketResponse, error) {
	loc := strings.TrimSpace(in.Location)
	desc := strings.TrimSpace(in.Description)
	if loc == "" || desc == "" {
		return TicketResponse{}, apierr.ErrInvalid("location and description are required")
	}
	if in.HoldProduct && (in.ProductID == nil || *in.ProductID == "") {
		return TicketResponse{}, apierr.ErrInvalid("hold_product needs product_id")
	}

	now := s.clock.Now()
	t := &Ticket{
		ID:           s.id.NewULID(now),
		ReporterID:   who.ID,
		ReporterName: nameOf(who),
		Location:     loc,
		Description:  desc,
		HoldProduct:  in.HoldProduct,
		Status:       StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if in.ProductID != nil && *in.ProductID != "" {
		t.ProductID = inventory.NullString(*in.ProductID)
	}
	if in.PhotoURL != nil {
		t.PhotoURL = inventory.NullString(*in.PhotoURL)
	}

	held := false
	err := s.tx(ctx, func(ctx context.Context, q Queries) error {
		if t.ProductID.Valid {
			p, err := q.GetProduct(ctx, t.ProductID.String, true)
			if err != nil {
				return err
			}
			if t.HoldProduct {
				if p.Kind != inventory.KindUnique {
					return apierr.ErrInvalid("only unique items can be held for repair")
				}
				if p.Status != inventory.StatusAvailable {
					return apierr.ErrConflict("item must be available to be held for repair")
				}
				if err := s.setProductStatus(ctx, q, p, inventory.StatusMaintenance, now); err != nil {
					return err
				}
				held = true
			}
		}
		return q.InsertTicket(ctx, t)
	})
	if err != nil {
		return TicketResponse{}, err
	}
	if held {
		s.invalidate(ctx)
	}
	s.send(ctx, s.moderators, notify.TplRepairCreated, t)
	return toResponse(t), nil
}

func (s *Service) Get(ctx context.Context, id string) (TicketResponse, error) {
	t, err := s.read.GetTicket(ctx, id, false)
	if err != nil {
		return TicketResponse{}, err
	}
	return toResponse(t), nil
}

func (s *Service) List(ctx context.Context, f Filter, p paging.Page) (paging.Result[TicketResponse], error) {
	rows, total, err := s.read.ListTickets(ctx, f, p)
	if err != nil {
		return paging.Result[TicketResponse]{}, err
	}
	items := make([]TicketResponse, 0, len(rows))
	for i := range rows {
		items = append(items, toResponse(&rows[i]))
	}
	return paging.NewResult(items, total, p), nil
}

// Assign: pending / assigned（担当替え）→ assigned
func (s *Service) Assign(ctx context.Context, mod auth.Identity, id string, in AssignRequest) (TicketResponse, error) {
	techID := strings.TrimSpace(in.TechnicianID)
	if techID == "" {
		return TicketResponse{}, apierr.ErrInvalid("technician_id is required")
	}
	techName := strings.TrimSpace(in.TechnicianName)
	if techName == "" {
		techName = techID
	}
	t, _, err := s.update(ctx, id, func(_ Queries, t *Ticket, _ time.Time) (bool, error) {
		if !mod.IsModerator() {
			return false, apierr.ErrForbidden("moderator only")
		}
		if t.Status != StatusPending && t.Status != StatusAssigned {
			return false, apierr.ErrConflict("ticket can no longer be assigned")
		}
		t.Status = StatusAssigned
		t.TechnicianID = inventory.NullString(techID)
		t.TechnicianName = inventory.NullString(techName)
		return false, nil
	})
	if err != nil {
		return TicketResponse{}, err
	}
	s.send(ctx, []string{techID}, notify.TplRepairAssigned, t)
	s.send(ctx, []string{t.ReporterID}, notify.TplRepairUpdated, t)
	return toResponse(t), nil
}

// Start: assigned → in_progress（担当者かモデレーター）
func (s *Service) Start(ctx context.Context, who auth.Identity, id string) (TicketResponse, error) {
	t, _, err := s.update(ctx, id, func(_ Queries, t *Ticket, _ time.Time) (bool, error) {
		if err := canWork(who, t); err != nil {
			return false, err
		}
		if t.Status != StatusAssigned {
			return false, apierr.ErrConflict("only assigned tickets can be started")
		}
		t.Status = StatusInProgress
		return false, nil
	})
	if err != nil {
		return TicketResponse{}, err
	}
	s.send(ctx, []string{t.ReporterID}, notify.TplRepairUpdated, t)
	return toResponse(t), nil
}

// Complete: in_progress → completed。保留していた品目は available に戻す
func (s *Service) Complete(ctx context.Context, who auth.Identity, id string, in CompleteRequest) (TicketResponse, error) {
	cost, err := ParseCost(in.Cost)
	if err != nil {
		return TicketResponse{}, err
	}
	t, released, err := s.update(ctx, id, func(q Queries, t *Ticket, now time.Time) (bool, error) {
		if err := canWork(who, t); err != nil {
			return false, err
		}
		if t.Status != StatusInProgress {
			return false, apierr.ErrConflict("only in-progress tickets can be completed")
		}
		t.Status = StatusCompleted
		t.Cost = decimal.NullDecimal{Decimal: cost, Valid: true}
		if in.Note != nil {
			t.ResolutionNote = inventory.NullString(*in.Note)
		}
		t.CompletedAt = sql.NullTime{Time: now, Valid: true}
		return s.release(ctx, q, t, now)
	})
	if err != nil {
		return TicketResponse{}, err
	}
	if released {
		s.invalidate(ctx)
	}
	s.send(ctx, []string{t.ReporterID}, notify.TplRepairUpdated, t)
	return toResponse(t), nil
}

// Cancel: 終了していなければ報告者かモデレーターが取り消せる
func (s *Service) Cancel(ctx context.Context, who auth.Identity, id string, in CancelRequest) (TicketResponse, error) {
	t, released, err := s.update(ctx, id, func(q Queries, t *Ticket, now time.Time) (bool, error) {
		if t.ReporterID != who.ID && !who.IsModerator() {
			return false, apierr.ErrForbidden("only the reporter or a moderator can cancel")
		}
		if t.Status.Terminal() {
			return false, apierr.ErrConflict("ticket is already closed")
		}
		t.Status = StatusCancelled
		if in.Reason != nil {
			t.ResolutionNote = inventory.NullString(*in.Reason)
		}
		return s.release(ctx, q, t, now)
	})
	if err != nil {
		return TicketResponse{}, err
	}
	if released {
		s.invalidate(ctx)
	}
	to := []string{t.ReporterID}
	if t.TechnicianID.Valid {
		to = append(to, t.TechnicianID.String)
	}
	s.send(ctx, to, notify.TplRepairUpdated, t)
	return toResponse(t), nil
}

// update はチケットをロックして fn を適用する。fn の bool は品目を戻したか
func (s *Service) update(ctx context.Context, id string, fn func(q Queries, t *Ticket, now time.Time) (bool, error)) (*Ticket, bool, error) {
	var (
		out      *Ticket
		released bool
	)
	err := s.tx(ctx, func(ctx context.Context, q Queries) error {
		t, err := q.GetTicket(ctx, id, true)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		r, err := fn(q, t, now)
		if err != nil {
			return err
		}
		t.UpdatedAt = now
		if err := q.UpdateTicket(ctx, t); err != nil {
			return err
		}
		out, released = t, r
		return nil
	})
	return out, released, err
}

// release: 保留中の品目がまだ maintenance なら available に戻す
func (s *Service) release(ctx context.Context, q Queries, t *Ticket, now time.Time) (bool, error) {
	if !t.HoldProduct || !t.ProductID.Valid {
		return false, nil
	}
	p, err := q.GetProduct(ctx, t.ProductID.String, true)
	if err != nil {
		if apierr.Is(err, apierr.CodeNotFound) {
			// 削除済み
			return false, nil
		}
		return false, err
	}
	if p.Status != inventory.StatusMaintenance {
		return false, nil
	}
	return true, s.setProductStatus(ctx, q, p, inventory.StatusAvailable, now)
}

func (s *Service) setProductStatus(ctx context.Context, q Queries, p *inventory.Product, st inventory.Status, now time.Time) error {
	old := p.Status
	p.Status = st
	p.UpdatedAt = now
	if err := q.UpdateProductState(ctx, p); err != nil {
		return err
	}
	return q.ReconcileStatusChange(ctx, old, st)
}

func (s *Service) invalidate(ctx context.Context) {
	if s.stats != nil {
		s.stats.Invalidate(ctx)
	}
}

func (s *Service) send(ctx context.Context, to []string, tpl notify.Template, t *Ticket) {
	fields := map[string]string{
		"ticket":      t.ID,
		"location":    t.Location,
		"description": t.Description,
		"status":      string(t.Status),
		"reporter":    t.ReporterName,
	}
	if t.TechnicianName.Valid {
		fields["technician"] = t.TechnicianName.String
	}
	notify.Send(ctx, s.notifier, notify.Message{To: to, Template: tpl, Fields: fields})
}

func canWork(who auth.Identity, t *Ticket) error {
	if who.IsModerator() || (t.TechnicianID.Valid && t.TechnicianID.String == who.ID) {
		return nil
	}
	return apierr.ErrForbidden("only the assigned technician can update this ticket")
}

// ParseCost: 空は 0。負数と小数3桁以上は不可
func ParseCost(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(strings.ReplaceAll(raw, ",", ""))
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, apierr.ErrInvalid("cost must be a number")
	}
	if d.IsNegative() {
		return decimal.Zero, apierr.ErrInvalid("cost cannot be negative")
	}
	if !d.Equal(d.Round(2)) {
		return decimal.Zero, apierr.ErrInvalid("cost has at most 2 decimal places")
	}
	return d.Round(2), nil
}

func nameOf(who auth.Identity) string {
	if strings.TrimSpace(who.Name) != "" {
		return who.Name
	}
	return who.ID
}
