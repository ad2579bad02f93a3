package repairs

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"CAMPUS-backend/internal/asset_mgmt/inventory"
	"CAMPUS-backend/internal/asset_mgmt/ledger"
	"CAMPUS-backend/internal/platform/apierr"
	"CAMPUS-backend/internal/platform/db"
	"CAMPUS-backend/internal/platform/paging"
)

type Store struct{ q db.DBTX }

func NewStore(q db.DBTX) *Store { return &Store{q: q} }

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) GetProduct(ctx context.Context, id string, forUpdate bool) (*inventory.Product, error) {
	return inventory.GetProduct(ctx, s.q, id, forUpdate)
}

func (s *Store) UpdateProductState(ctx context.Context, p *inventory.Product) error {
	return inventory.UpdateProductState(ctx, s.q, p)
}

func (s *Store) ReconcileStatusChange(ctx context.Context, oldStatus, newStatus inventory.Status) error {
	return ledger.NewStore(s.q).ReconcileStatusChange(ctx, oldStatus, newStatus)
}

const ticketColumns = `
	id, reporter_id, reporter_name, location, description, product_id, hold_product, photo_url,
	status, technician_id, technician_name, cost, resolution_note, created_at, updated_at, completed_at`

func scanTicket(r rowScanner) (*Ticket, error) {
	var t Ticket
	err := r.Scan(
		&t.ID, &t.ReporterID, &t.ReporterName, &t.Location, &t.Description, &t.ProductID, &t.HoldProduct, &t.PhotoURL,
		&t.Status, &t.TechnicianID, &t.TechnicianName, &t.Cost, &t.ResolutionNote, &t.CreatedAt, &t.UpdatedAt, &t.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) InsertTicket(ctx context.Context, t *Ticket) error {
	const q = `
	INSERT INTO repair_tickets
	(id, reporter_id, reporter_name, location, description, product_id, hold_product, photo_url,
	 status, technician_id, technician_name, cost, resolution_note, created_at, updated_at, completed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.q.ExecContext(ctx, q,
		t.ID, t.ReporterID, t.ReporterName, t.Location, t.Description, t.ProductID, t.HoldProduct, t.PhotoURL,
		t.Status, t.TechnicianID, t.TechnicianName, t.Cost, t.ResolutionNote, t.CreatedAt, t.UpdatedAt, t.CompletedAt)
	if db.IsForeignKeyViolation(err) {
		return apierr.ErrNotFound("product not found")
	}
	return err
}

func (s *Store) GetTicket(ctx context.Context, id string, forUpdate bool) (*Ticket, error) {
	q := `SELECT` + ticketColumns + ` FROM repair_tickets WHERE id = ?`
	if forUpdate {
		q += ` FOR UPDATE`
	}
	t, err := scanTicket(s.q.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierr.ErrNotFound("repair ticket not found")
		}
		return nil, err
	}
	return t, nil
}

func (s *Store) UpdateTicket(ctx context.Context, t *Ticket) error {
	const q = `
		UPDATE repair_tickets
		SET status = ?, technician_id = ?, technician_name = ?, cost = ?, resolution_note = ?,
		    updated_at = ?, completed_at = ?
		WHERE id = ?`
	res, err := s.q.ExecContext(ctx, q,
		t.Status, t.TechnicianID, t.TechnicianName, t.Cost, t.ResolutionNote, t.UpdatedAt, t.CompletedAt, t.ID)
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff != 1 {
		return apierr.ErrNotFound("repair ticket not found")
	}
	return nil
}

func (s *Store) ListTickets(ctx context.Context, f Filter, p paging.Page) ([]Ticket, int64, error) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(" FROM repair_tickets WHERE 1=1")
	if f.Status != nil {
		sb.WriteString(" AND status = ?")
		args = append(args, *f.Status)
	}
	if f.ReporterID != nil {
		sb.WriteString(" AND reporter_id = ?")
		args = append(args, *f.ReporterID)
	}
	if f.TechnicianID != nil {
		sb.WriteString(" AND technician_id = ?")
		args = append(args, *f.TechnicianID)
	}
	if f.ProductID != nil {
		sb.WriteString(" AND product_id = ?")
		args = append(args, *f.ProductID)
	}
	where := sb.String()

	var total int64
	if err := s.q.QueryRowContext(ctx, "SELECT COUNT(*)"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.q.QueryContext(ctx,
		"SELECT"+ticketColumns+where+" ORDER BY created_at "+p.OrderSQL()+", id LIMIT ? OFFSET ?",
		append(args, p.Limit, p.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]Ticket, 0, p.Limit)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
