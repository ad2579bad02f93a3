package bookings

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"CAMPUS-backend/internal/platform/apierr"
	"CAMPUS-backend/internal/platform/db"
	"CAMPUS-backend/internal/platform/paging"
)

type Store struct{ q db.DBTX }

func NewStore(q db.DBTX) *Store { return &Store{q: q} }

type rowScanner interface {
	Scan(dest ...any) error
}

// ===== rooms =====

const roomColumns = ` id, name, location, capacity, requires_approval, created_at`

func scanRoom(r rowScanner) (*Room, error) {
	var rm Room
	if err := r.Scan(&rm.ID, &rm.Name, &rm.Location, &rm.Capacity, &rm.RequiresApproval, &rm.CreatedAt); err != nil {
		return nil, err
	}
	return &rm, nil
}

func (s *Store) InsertRoom(ctx context.Context, r *Room) error {
	const q = `INSERT INTO rooms (id, name, location, capacity, requires_approval, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.q.ExecContext(ctx, q, r.ID, r.Name, r.Location, r.Capacity, r.RequiresApproval, r.CreatedAt)
	return err
}

// GetRoom: forUpdate で部屋単位の予約を直列化する
func (s *Store) GetRoom(ctx context.Context, id string, forUpdate bool) (*Room, error) {
	q := `SELECT` + roomColumns + ` FROM rooms WHERE id = ?`
	if forUpdate {
		q += ` FOR UPDATE`
	}
	r, err := scanRoom(s.q.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierr.ErrNotFound("room not found")
		}
		return nil, err
	}
	return r, nil
}

func (s *Store) ListRooms(ctx context.Context) ([]Room, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT`+roomColumns+` FROM rooms ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Room, 0, 16)
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// ===== bookings =====

const bookingColumns = `
	id, room_id, title, start_at, end_at, status, requester_id, requester_name, notes,
	decided_by_id, decided_by_name, decided_at, reason, created_at, updated_at`

func scanBooking(r rowScanner) (*Booking, error) {
	var b Booking
	err := r.Scan(
		&b.ID, &b.RoomID, &b.Title, &b.StartAt, &b.EndAt, &b.Status, &b.RequesterID, &b.RequesterName, &b.Notes,
		&b.DecidedByID, &b.DecidedByName, &b.DecidedAt, &b.Reason, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func collectBookings(rows *sql.Rows) ([]Booking, error) {
	defer rows.Close()
	out := make([]Booking, 0, 16)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (s *Store) ListRoomBookings(ctx context.Context, roomID string) ([]Booking, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT`+bookingColumns+` FROM bookings WHERE room_id = ?`, roomID)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (s *Store) GetBooking(ctx context.Context, id string, forUpdate bool) (*Booking, error) {
	q := `SELECT` + bookingColumns + ` FROM bookings WHERE id = ?`
	if forUpdate {
		q += ` FOR UPDATE`
	}
	b, err := scanBooking(s.q.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierr.ErrNotFound("booking not found")
		}
		return nil, err
	}
	return b, nil
}

func (s *Store) InsertBooking(ctx context.Context, b *Booking) error {
	const q = `
	INSERT INTO bookings
	(id, room_id, title, start_at, end_at, status, requester_id, requester_name, notes,
	 decided_by_id, decided_by_name, decided_at, reason, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.q.ExecContext(ctx, q,
		b.ID, b.RoomID, b.Title, b.StartAt, b.EndAt, b.Status, b.RequesterID, b.RequesterName, b.Notes,
		b.DecidedByID, b.DecidedByName, b.DecidedAt, b.Reason, b.CreatedAt, b.UpdatedAt)
	return err
}

func (s *Store) UpdateBookingStatus(ctx context.Context, b *Booking) error {
	const q = `
		UPDATE bookings
		SET status = ?, decided_by_id = ?, decided_by_name = ?, decided_at = ?, reason = ?, updated_at = ?
		WHERE id = ?`
	res, err := s.q.ExecContext(ctx, q, b.Status, b.DecidedByID, b.DecidedByName, b.DecidedAt, b.Reason, b.UpdatedAt, b.ID)
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff != 1 {
		return apierr.ErrNotFound("booking not found")
	}
	return nil
}

func (s *Store) ListBookings(ctx context.Context, f Filter, p paging.Page) ([]Booking, int64, error) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(" FROM bookings WHERE 1=1")
	if f.RoomID != nil {
		sb.WriteString(" AND room_id = ?")
		args = append(args, *f.RoomID)
	}
	if f.Status != nil {
		sb.WriteString(" AND status = ?")
		args = append(args, *f.Status)
	}
	if f.RequesterID != nil {
		sb.WriteString(" AND requester_id = ?")
		args = append(args, *f.RequesterID)
	}
	// 期間と重なるもの
	if f.From != nil {
		sb.WriteString(" AND end_at > ?")
		args = append(args, *f.From)
	}
	if f.To != nil {
		sb.WriteString(" AND start_at < ?")
		args = append(args, *f.To)
	}
	where := sb.String()

	var total int64
	if err := s.q.QueryRowContext(ctx, "SELECT COUNT(*)"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.q.QueryContext(ctx,
		"SELECT"+bookingColumns+where+" ORDER BY start_at "+p.OrderSQL()+", id LIMIT ? OFFSET ?",
		append(args, p.Limit, p.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	items, err := collectBookings(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
