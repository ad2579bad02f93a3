// Package photojobs は行事撮影の依頼と撮影者の割り当て
package photojobs

import (
	"context"
	"crypto/rand"
	"database/sql"
	"net/url"
	"strings"
	"time"

	ulid "github.com/oklog/ulid/v2"

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
	InsertJob(ctx context.Context, j *Job) error
	GetJob(ctx context.Context, id string, forUpdate bool) (*Job, error)
	UpdateJob(ctx context.Context, j *Job) error
	ReplacePhotographers(ctx context.Context, jobID string, ps []Photographer) error
	ListJobs(ctx context.Context, f Filter, p paging.Page) ([]Job, int64, error)
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

func (s *Service) Create(ctx context.Context, who auth.Identity, in CreateRequest) (JobResponse, error) {
	title := strings.TrimSpace(in.Title)
	loc := strings.TrimSpace(in.Location)
	if title == "" || loc == "" {
		return JobResponse{}, apierr.ErrInvalid("title and location are required")
	}
	if !in.StartAt.Before(in.EndAt) {
		return JobResponse{}, apierr.ErrInvalid("start_at must be before end_at")
	}
	now := s.clock.Now()
	j := &Job{
		ID:            s.id.NewULID(now),
		Title:         title,
		Location:      loc,
		StartAt:       in.StartAt.UTC(),
		EndAt:         in.EndAt.UTC(),
		RequesterID:   who.ID,
		RequesterName: nameOf(who),
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if in.Notes != nil {
		j.Notes = inventory.NullString(*in.Notes)
	}
	if err := s.tx(ctx, func(ctx context.Context, q Queries) error {
		return q.InsertJob(ctx, j)
	}); err != nil {
		return JobResponse{}, err
	}
	s.send(ctx, s.moderators, notify.TplPhotoJobUpdated, j)
	return toResponse(j), nil
}

func (s *Service) Get(ctx context.Context, id string) (JobResponse, error) {
	j, err := s.read.GetJob(ctx, id, false)
	if err != nil {
		return JobResponse{}, err
	}
	return toResponse(j), nil
}

func (s *Service) List(ctx context.Context, f Filter, p paging.Page) (paging.Result[JobResponse], error) {
	if f.From != nil && f.To != nil && !f.From.Before(*f.To) {
		return paging.Result[JobResponse]{}, apierr.ErrInvalid("from must be before to")
	}
	rows, total, err := s.read.ListJobs(ctx, f, p)
	if err != nil {
		return paging.Result[JobResponse]{}, err
	}
	items := make([]JobResponse, 0, len(rows))
	for i := range rows {
		items = append(items, toResponse(&rows[i]))
	}
	return paging.NewResult(items, total, p), nil
}

// Assign: pending / assigned → assigned。撮影者の一覧は置き換え
func (s *Service) Assign(ctx context.Context, mod auth.Identity, id string, in AssignRequest) (JobResponse, error) {
	if !mod.IsModerator() {
		return JobResponse{}, apierr.ErrForbidden("moderator only")
	}
	ps, err := normalizePhotographers(in.Photographers)
	if err != nil {
		return JobResponse{}, err
	}

	var added []string
	j, err := s.update(ctx, id, func(q Queries, j *Job, _ time.Time) error {
		if j.Status != StatusPending && j.Status != StatusAssigned {
			return apierr.ErrConflict("job can no longer be assigned")
		}
		for _, p := range ps {
			if !j.assigned(p.ID) {
				added = append(added, p.ID)
			}
		}
		if err := q.ReplacePhotographers(ctx, j.ID, ps); err != nil {
			return err
		}
		j.Photographers = ps
		j.Status = StatusAssigned
		return nil
	})
	if err != nil {
		return JobResponse{}, err
	}
	// 新しく入った人だけに知らせる
	if len(added) > 0 {
		s.send(ctx, added, notify.TplPhotoJobAssigned, j)
	}
	s.send(ctx, []string{j.RequesterID}, notify.TplPhotoJobUpdated, j)
	return toResponse(j), nil
}

// Complete: assigned → completed。納品リンクは http(s) のみ
func (s *Service) Complete(ctx context.Context, who auth.Identity, id string, in CompleteRequest) (JobResponse, error) {
	link, err := deliveryLink(in.DeliveryURL)
	if err != nil {
		return JobResponse{}, err
	}
	j, err := s.update(ctx, id, func(_ Queries, j *Job, now time.Time) error {
		if !who.IsModerator() && !j.assigned(who.ID) {
			return apierr.ErrForbidden("only an assigned photographer can complete this job")
		}
		if j.Status != StatusAssigned {
			return apierr.ErrConflict("only assigned jobs can be completed")
		}
		j.Status = StatusCompleted
		j.DeliveryURL = inventory.NullString(link)
		j.CompletedAt = sql.NullTime{Time: now, Valid: true}
		return nil
	})
	if err != nil {
		return JobResponse{}, err
	}
	s.send(ctx, []string{j.RequesterID}, notify.TplPhotoJobUpdated, j)
	return toResponse(j), nil
}

func (s *Service) Cancel(ctx context.Context, who auth.Identity, id string) (JobResponse, error) {
	j, err := s.update(ctx, id, func(_ Queries, j *Job, _ time.Time) error {
		if j.RequesterID != who.ID && !who.IsModerator() {
			return apierr.ErrForbidden("only the requester or a moderator can cancel")
		}
		if j.Status.Terminal() {
			return apierr.ErrConflict("job is already closed")
		}
		j.Status = StatusCancelled
		return nil
	})
	if err != nil {
		return JobResponse{}, err
	}
	s.send(ctx, append([]string{j.RequesterID}, j.photographerIDs()...), notify.TplPhotoJobUpdated, j)
	return toResponse(j), nil
}

func (s *Service) update(ctx context.Context, id string, fn func(q Queries, j *Job, now time.Time) error) (*Job, error) {
	var out *Job
	err := s.tx(ctx, func(ctx context.Context, q Queries) error {
		j, err := q.GetJob(ctx, id, true)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if err := fn(q, j, now); err != nil {
			return err
		}
		j.UpdatedAt = now
		if err := q.UpdateJob(ctx, j); err != nil {
			return err
		}
		out = j
		return nil
	})
	return out, err
}

func (s *Service) send(ctx context.Context, to []string, tpl notify.Template, j *Job) {
	fields := map[string]string{
		"job":      j.ID,
		"title":    j.Title,
		"location": j.Location,
		"start":    j.StartAt.Format(time.RFC3339),
		"status":   string(j.Status),
	}
	if j.DeliveryURL.Valid {
		fields["delivery_url"] = j.DeliveryURL.String
	}
	notify.Send(ctx, s.notifier, notify.Message{To: to, Template: tpl, Fields: fields})
}

// 重複は先勝ち、名前が空なら ID
func normalizePhotographers(in []Photographer) ([]Photographer, error) {
	seen := make(map[string]struct{}, len(in))
	out := make([]Photographer, 0, len(in))
	for _, p := range in {
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" {
			return nil, apierr.ErrInvalid("photographer id is required")
		}
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		if p.Name = strings.TrimSpace(p.Name); p.Name == "" {
			p.Name = p.ID
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, apierr.ErrInvalid("at least one photographer is required")
	}
	return out, nil
}

func deliveryLink(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", apierr.ErrInvalid("delivery_url must be an http(s) link")
	}
	return u.String(), nil
}

func nameOf(who auth.Identity) string {
	if strings.TrimSpace(who.Name) != "" {
		return who.Name
	}
	return who.ID
}
