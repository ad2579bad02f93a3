// Package bookings は会議室などの予約と重複チェック
package bookings

import (
	"context"
	"crypto/rand"
	"database/sql"
	"strings"
	"time"

	ulid "github.com/oklog/ulid/v2"

	"CAMPUS-backend/internal/platform/apierr"
	"CAMPUS-backend/internal/platform/auth"
	"CAMPUS-backend/internal/platform/db"
	"CAMPUS-backend/internal/platform/notify"
	"CAMPUS-backend/internal/platform/paging"
)

const timeLayout = "2006-01-02 15:04"

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
	InsertRoom(ctx context.Context, r *Room) error
	GetRoom(ctx context.Context, id string, forUpdate bool) (*Room, error)
	ListRooms(ctx context.Context) ([]Room, error)
	// ListRoomBookings: 部屋の予約を全件（期間で絞らない）
	ListRoomBookings(ctx context.Context, roomID string) ([]Booking, error)
	GetBooking(ctx context.Context, id string, forUpdate bool) (*Booking, error)
	InsertBooking(ctx context.Context, b *Booking) error
	UpdateBookingStatus(ctx context.Context, b *Booking) error
	ListBookings(ctx context.Context, f Filter, p paging.Page) ([]Booking, int64, error)
}

type Service struct {
	tx         db.TxFunc[Queries]
	read       Queries
	clock      Clock
	id         IDGen
	notifier   notify.Notifier
	moderators []string
}

func NewService(conn *sql.DB, n notify.Notifier, moderators []string) *Service {
	return &Service{
		tx:         db.Binder(conn, func(q db.DBTX) Queries { return NewStore(q) }),
		read:       NewStore(conn),
		clock:      realClock{},
		id:         ulidGen{},
		notifier:   n,
		moderators: moderators,
	}
}

// ===== rooms =====

func (s *Service) CreateRoom(ctx context.Context, in CreateRoomRequest) (RoomResponse, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return RoomResponse{}, apierr.ErrInvalid("name is required")
	}
	if in.Capacity < 0 {
		return RoomResponse{}, apierr.ErrInvalid("capacity cannot be negative")
	}
	now := s.clock.Now()
	r := &Room{
		ID:               s.id.NewULID(now),
		Name:             name,
		Capacity:         in.Capacity,
		RequiresApproval: in.RequiresApproval,
		CreatedAt:        now,
	}
	if in.Location != nil && strings.TrimSpace(*in.Location) != "" {
		r.Location = sql.NullString{String: strings.TrimSpace(*in.Location), Valid: true}
	}
	if err := s.read.InsertRoom(ctx, r); err != nil {
		if db.IsDuplicateKey(err) {
			return RoomResponse{}, apierr.ErrConflict("room name already exists")
		}
		return RoomResponse{}, err
	}
	return toRoomResponse(r), nil
}

func (s *Service) ListRooms(ctx context.Context) ([]RoomResponse, error) {
	rows, err := s.read.ListRooms(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]RoomResponse, 0, len(rows))
	for i := range rows {
		out = append(out, toRoomResponse(&rows[i]))
	}
	return out, nil
}

// ===== bookings =====

// HasConflict は部屋の予約を全件取得してから重なりを判定する。取得失敗はそのまま返す
func (s *Service) HasConflict(ctx context.Context, roomID string, start, end time.Time) (bool, error) {
	if !start.Before(end) {
		return false, apierr.ErrInvalid("start must be before end")
	}
	existing, err := s.read.ListRoomBookings(ctx, roomID)
	if err != nil {
		return false, err
	}
	return HasConflict(existing, start, end), nil
}

func (s *Service) CreateBooking(ctx context.Context, who auth.Identity, in CreateBookingRequest) (BookingResponse, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return BookingResponse{}, apierr.ErrInvalid("title is required")
	}
	if !in.StartAt.Before(in.EndAt) {
		return BookingResponse{}, apierr.ErrInvalid("start must be before end")
	}
	if who.ID == "" {
		return BookingResponse{}, apierr.ErrInvalid("requester is required")
	}

	now := s.clock.Now()
	b := &Booking{
		ID:            s.id.NewULID(now),
		RoomID:        in.RoomID,
		Title:         title,
		StartAt:       in.StartAt.UTC(),
		EndAt:         in.EndAt.UTC(),
		RequesterID:   who.ID,
		RequesterName: displayName(who),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if in.Notes != nil && strings.TrimSpace(*in.Notes) != "" {
		b.Notes = sql.NullString{String: strings.TrimSpace(*in.Notes), Valid: true}
	}

	var room *Room
	err := s.tx(ctx, func(ctx context.Context, q Queries) error {
		r, err := q.GetRoom(ctx, in.RoomID, true)
		if err != nil {
			return err
		}
		existing, err := q.ListRoomBookings(ctx, r.ID)
		if err != nil {
			return err
		}
		if HasConflict(existing, b.StartAt, b.EndAt) {
			return apierr.ErrConflict("the room is already booked for this time")
		}
		b.Status = StatusApproved
		if r.RequiresApproval {
			b.Status = StatusPending
		}
		room = r
		return q.InsertBooking(ctx, b)
	})
	if err != nil {
		return BookingResponse{}, err
	}

	if b.Status == StatusPending {
		s.send(ctx, s.moderators, notify.TplBookingPending, room, b)
	} else {
		s.send(ctx, []string{b.RequesterID}, notify.TplBookingApproved, room, b)
	}
	return toBookingResponse(b), nil
}

func (s *Service) GetBooking(ctx context.Context, id string) (BookingResponse, error) {
	b, err := s.read.GetBooking(ctx, id, false)
	if err != nil {
		return BookingResponse{}, err
	}
	return toBookingResponse(b), nil
}

func (s *Service) ListBookings(ctx context.Context, f Filter, p paging.Page) (paging.Result[BookingResponse], error) {
	if f.From != nil && f.To != nil && !f.From.Before(*f.To) {
		return paging.Result[BookingResponse]{}, apierr.ErrInvalid("from must be before to")
	}
	rows, total, err := s.read.ListBookings(ctx, f, p)
	if err != nil {
		return paging.Result[BookingResponse]{}, err
	}
	items := make([]BookingResponse, 0, len(rows))
	for i := range rows {
		items = append(items, toBookingResponse(&rows[i]))
	}
	return paging.NewResult(items, total, p), nil
}

// Approve: pending のみ。自分以外との重なりを再確認する
func (s *Service) Approve(ctx context.Context, moderator auth.Identity, id string) (BookingResponse, error) {
	return s.transition(ctx, moderator, id, nil, func(q Queries, b *Booking) error {
		if !moderator.IsModerator() {
			return apierr.ErrForbidden("moderator only")
		}
		if b.Status != StatusPending {
			return apierr.ErrConflict("only pending bookings can be approved")
		}
		existing, err := q.ListRoomBookings(ctx, b.RoomID)
		if err != nil {
			return err
		}
		if HasConflict(without(existing, b.ID), b.StartAt, b.EndAt) {
			return apierr.ErrConflict("the room is already booked for this time")
		}
		b.Status = StatusApproved
		return nil
	})
}

func (s *Service) Reject(ctx context.Context, moderator auth.Identity, id string, reason *string) (BookingResponse, error) {
	return s.transition(ctx, moderator, id, reason, func(_ Queries, b *Booking) error {
		if !moderator.IsModerator() {
			return apierr.ErrForbidden("moderator only")
		}
		if b.Status != StatusPending {
			return apierr.ErrConflict("only pending bookings can be rejected")
		}
		b.Status = StatusRejected
		return nil
	})
}

// Cancel: 申請者本人かモデレーター
func (s *Service) Cancel(ctx context.Context, who auth.Identity, id string, reason *string) (BookingResponse, error) {
	return s.transition(ctx, who, id, reason, func(_ Queries, b *Booking) error {
		if b.RequesterID != who.ID && !who.IsModerator() {
			return apierr.ErrForbidden("only the requester or a moderator can cancel")
		}
		if !b.Status.Blocks() {
			return apierr.ErrConflict("booking is already closed")
		}
		b.Status = StatusCancelled
		return nil
	})
}

// transition は部屋 → 予約の順にロックして fn で状態を変える
func (s *Service) transition(ctx context.Context, who auth.Identity, id string, reason *string, fn func(q Queries, b *Booking) error) (BookingResponse, error) {
	cur, err := s.read.GetBooking(ctx, id, false)
	if err != nil {
		return BookingResponse{}, err
	}

	var (
		out  *Booking
		room *Room
	)
	err = s.tx(ctx, func(ctx context.Context, q Queries) error {
		r, err := q.GetRoom(ctx, cur.RoomID, true)
		if err != nil {
			return err
		}
		b, err := q.GetBooking(ctx, id, true)
		if err != nil {
			return err
		}
		if err := fn(q, b); err != nil {
			return err
		}
		now := s.clock.Now()
		b.DecidedByID = sql.NullString{String: who.ID, Valid: who.ID != ""}
		b.DecidedByName = sql.NullString{String: displayName(who), Valid: who.ID != ""}
		b.DecidedAt = sql.NullTime{Time: now, Valid: true}
		if reason != nil && strings.TrimSpace(*reason) != "" {
			b.Reason = sql.NullString{String: strings.TrimSpace(*reason), Valid: true}
		}
		b.UpdatedAt = now
		if err := q.UpdateBookingStatus(ctx, b); err != nil {
			return err
		}
		out, room = b, r
		return nil
	})
	if err != nil {
		return BookingResponse{}, err
	}

	tpl := map[Status]notify.Template{
		StatusApproved:  notify.TplBookingApproved,
		StatusRejected:  notify.TplBookingRejected,
		StatusCancelled: notify.TplBookingCancelled,
	}[out.Status]
	s.send(ctx, []string{out.RequesterID}, tpl, room, out)
	return toBookingResponse(out), nil
}

func (s *Service) send(ctx context.Context, to []string, tpl notify.Template, r *Room, b *Booking) {
	fields := map[string]string{
		"room":      r.Name,
		"title":     b.Title,
		"start":     b.StartAt.Format(timeLayout),
		"end":       b.EndAt.Format(timeLayout),
		"requester": b.RequesterName,
	}
	if b.Reason.Valid {
		fields["reason"] = b.Reason.String
	}
	notify.Send(ctx, s.notifier, notify.Message{To: to, Template: tpl, Fields: fields})
}

func displayName(who auth.Identity) string {
	if strings.TrimSpace(who.Name) != "" {
		return who.Name
	}
	return who.ID
}
