package repairs

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CAMPUS-backend/internal/asset_mgmt/inventory"
	"CAMPUS-backend/internal/asset_mgmt/ledger"
	"CAMPUS-backend/internal/platform/apierr"
	"CAMPUS-backend/internal/platform/auth"
	"CAMPUS-backend/internal/platform/db"
	"CAMPUS-backend/internal/platform/notify"
	"CAMPUS-backend/internal/platform/paging"
)

type memDB struct {
	mu       sync.Mutex
	products map[string]inventory.Product
	tickets  map[string]Ticket
	stats    ledger.Stats
}

func (m *memDB) runner() db.TxFunc[Queries] {
	return func(ctx context.Context, fn func(ctx context.Context, q Queries) error) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		ps := make(map[string]inventory.Product, len(m.products))
		for k, v := range m.products {
			ps[k] = v
		}
		ts := make(map[string]Ticket, len(m.tickets))
		for k, v := range m.tickets {
			ts[k] = v
		}
		stats := m.stats
		if err := fn(ctx, memQ{m}); err != nil {
			m.products, m.tickets, m.stats = ps, ts, stats
			return err
		}
		return nil
	}
}

type memQ struct{ m *memDB }

func (q memQ) GetProduct(_ context.Context, id string, _ bool) (*inventory.Product, error) {
	p, ok := q.m.products[id]
	if !ok {
		return nil, apierr.ErrNotFound("product not found")
	}
	return &p, nil
}

func (q memQ) UpdateProductState(_ context.Context, p *inventory.Product) error {
	q.m.products[p.ID] = *p
	return nil
}

func (q memQ) ReconcileStatusChange(_ context.Context, oldStatus, newStatus inventory.Status) error {
	q.m.stats, _ = q.m.stats.Apply(ledger.StatusChange(oldStatus, newStatus))
	return nil
}

func (q memQ) InsertTicket(_ context.Context, t *Ticket) error {
	q.m.tickets[t.ID] = *t
	return nil
}

func (q memQ) GetTicket(_ context.Context, id string, _ bool) (*Ticket, error) {
	t, ok := q.m.tickets[id]
	if !ok {
		return nil, apierr.ErrNotFound("repair ticket not found")
	}
	return &t, nil
}

func (q memQ) UpdateTicket(_ context.Context, t *Ticket) error {
	q.m.tickets[t.ID] = *t
	return nil
}

func (q memQ) ListTickets(_ context.Context, f Filter, _ paging.Page) ([]Ticket, int64, error) {
	out := []Ticket{}
	for _, t := range q.m.tickets {
		if f.Status != nil && t.Status != *f.Status {
			continue
		}
		if f.ReporterID != nil && t.ReporterID != *f.ReporterID {
			continue
		}
		if f.TechnicianID != nil && (!t.TechnicianID.Valid || t.TechnicianID.String != *f.TechnicianID) {
			continue
		}
		out = append(out, t)
	}
	return out, int64(len(out)), nil
}

type recorder struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (r *recorder) Publish(_ context.Context, m notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
	return nil
}

func (r *recorder) templates() []notify.Template {
	out := make([]notify.Template, 0, len(r.msgs))
	for _, m := range r.msgs {
		out = append(out, m.Template)
	}
	return out
}

type countingInvalidator struct{ n int }

func (c *countingInvalidator) Invalidate(context.Context) { c.n++ }

type fixedClock struct{}

func (fixedClock) Now() time.Time { return time.Date(2026, 9, 14, 8, 30, 0, 0, time.UTC) }

type seqID struct{ n int }

func (s *seqID) NewULID(time.Time) string {
	s.n++
	return fmt.Sprintf("RT%02d", s.n)
}

var (
	reporter = auth.Identity{ID: "u-1", Name: "Ms. Tanaka", Role: auth.RoleUser}
	tech     = auth.Identity{ID: "t-1", Name: "Niran", Role: auth.RoleUser}
	stranger = auth.Identity{ID: "u-9", Role: auth.RoleUser}
	office   = auth.Identity{ID: "s-1", Name: "Office", Role: auth.RoleStaff}
)

func setup() (*Service, *memDB, *recorder, *countingInvalidator) {
	m := &memDB{products: map[string]inventory.Product{}, tickets: map[string]Ticket{}}
	for _, p := range []inventory.Product{
		{ID: "proj", StockID: "COM-001", Kind: inventory.KindUnique, Quantity: 1, Status: inventory.StatusAvailable},
		{ID: "cam", StockID: "COM-002", Kind: inventory.KindUnique, Quantity: 1, Status: inventory.StatusBorrowed},
		{ID: "balls", StockID: "SPT-001", Kind: inventory.KindBulk, Quantity: 10, Status: inventory.StatusAvailable},
	} {
		p := p
		m.products[p.ID] = p
		m.stats, _ = m.stats.Apply(ledger.Contribution(ledger.SnapshotOf(&p)))
	}
	rec := &recorder{}
	inv := &countingInvalidator{}
	return &Service{
		tx:         m.runner(),
		read:       memQ{m},
		clock:      fixedClock{},
		id:         &seqID{},
		stats:      inv,
		notifier:   rec,
		moderators: []string{"s-1"},
	}, m, rec, inv
}

func strp(s string) *string { return &s }

func open(t *testing.T, svc *Service, productID string, hold bool) TicketResponse {
	t.Helper()
	in := CreateRequest{Location: "Room 3-2", Description: "projector does not turn on", HoldProduct: hold}
	if productID != "" {
		in.ProductID = strp(productID)
	}
	res, err := svc.Create(context.Background(), reporter, in)
	require.NoError(t, err)
	return res
}

func TestLifecycle_HoldAndRelease(t *testing.T) {
	svc, m, rec, inv := setup()
	ctx := context.Background()
	start := m.stats

	tk := open(t, svc, "proj", true)
	assert.Equal(t, StatusPending, tk.Status)
	assert.Equal(t, "Ms. Tanaka", tk.ReporterName)
	assert.Equal(t, inventory.StatusMaintenance, m.products["proj"].Status)
	assert.Equal(t, start.Available-1, m.stats.Available)
	assert.Equal(t, start.Maintenance+1, m.stats.Maintenance)
	assert.Equal(t, 1, inv.n)

	_, err := svc.Start(ctx, tech, tk.ID)
	assert.True(t, apierr.Is(err, apierr.CodeForbidden))

	_, err = svc.Assign(ctx, reporter, tk.ID, AssignRequest{TechnicianID: "t-1", TechnicianName: "Niran"})
	assert.True(t, apierr.Is(err, apierr.CodeForbidden))

	a, err := svc.Assign(ctx, office, tk.ID, AssignRequest{TechnicianID: "t-1", TechnicianName: "Niran"})
	require.NoError(t, err)
	assert.Equal(t, StatusAssigned, a.Status)

	_, err = svc.Complete(ctx, tech, tk.ID, CompleteRequest{Cost: "100"})
	assert.True(t, apierr.Is(err, apierr.CodeConflict))

	s, err := svc.Start(ctx, tech, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, s.Status)

	_, err = svc.Assign(ctx, office, tk.ID, AssignRequest{TechnicianID: "t-2"})
	assert.True(t, apierr.Is(err, apierr.CodeConflict))

	done, err := svc.Complete(ctx, tech, tk.ID, CompleteRequest{Cost: "1,250.5", Note: strp("lamp replaced")})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	require.NotNil(t, done.Cost)
	assert.True(t, decimal.RequireFromString("1250.50").Equal(*done.Cost))
	require.NotNil(t, done.CompletedAt)
	require.NotNil(t, done.ResolutionNote)

	assert.Equal(t, inventory.StatusAvailable, m.products["proj"].Status)
	assert.Equal(t, start, m.stats)
	assert.Equal(t, 2, inv.n)

	_, err = svc.Cancel(ctx, reporter, tk.ID, CancelRequest{})
	assert.True(t, apierr.Is(err, apierr.CodeConflict))

	assert.Equal(t, []notify.Template{
		notify.TplRepairCreated,
		notify.TplRepairAssigned,
		notify.TplRepairUpdated,
		notify.TplRepairUpdated,
		notify.TplRepairUpdated,
	}, rec.templates())
	assert.Equal(t, []string{"s-1"}, rec.msgs[0].To)
	assert.Equal(t, []string{"t-1"}, rec.msgs[1].To)
	assert.Equal(t, []string{"u-1"}, rec.msgs[2].To)
}

func TestCreate_HoldPreconditions(t *testing.T) {
	svc, m, rec, inv := setup()
	ctx := context.Background()
	start := m.stats

	_, err := svc.Create(ctx, reporter, CreateRequest{Location: "Lab", Description: "broken", ProductID: strp("cam"), HoldProduct: true})
	assert.True(t, apierr.Is(err, apierr.CodeConflict))

	_, err = svc.Create(ctx, reporter, CreateRequest{Location: "Gym", Description: "flat", ProductID: strp("balls"), HoldProduct: true})
	assert.True(t, apierr.Is(err, apierr.CodeInvalidArgument))

	_, err = svc.Create(ctx, reporter, CreateRequest{Location: "Gym", Description: "flat", ProductID: strp("nope")})
	assert.True(t, apierr.Is(err, apierr.CodeNotFound))

	_, err = svc.Create(ctx, reporter, CreateRequest{Location: "Gym", Description: "flat", HoldProduct: true})
	assert.True(t, apierr.Is(err, apierr.CodeInvalidArgument))

	_, err = svc.Create(ctx, reporter, CreateRequest{Location: " ", Description: "flat"})
	assert.True(t, apierr.Is(err, apierr.CodeInvalidArgument))

	assert.Empty(t, m.tickets)
	assert.Equal(t, start, m.stats)
	assert.Empty(t, rec.msgs)
	assert.Zero(t, inv.n)

	// 保留なしなら貸出中でも受け付ける
	tk := open(t, svc, "cam", false)
	assert.Equal(t, inventory.StatusBorrowed, m.products["cam"].Status)
	assert.Zero(t, inv.n)
	require.NotNil(t, tk.ProductID)
}

func TestCancel_ReleasesHold(t *testing.T) {
	svc, m, _, _ := setup()
	ctx := context.Background()
	start := m.stats

	tk := open(t, svc, "proj", true)

	_, err := svc.Cancel(ctx, stranger, tk.ID, CancelRequest{})
	assert.True(t, apierr.Is(err, apierr.CodeForbidden))
	assert.Equal(t, inventory.StatusMaintenance, m.products["proj"].Status)

	c, err := svc.Cancel(ctx, reporter, tk.ID, CancelRequest{Reason: strp("fixed itself")})
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, c.Status)
	assert.Equal(t, inventory.StatusAvailable, m.products["proj"].Status)
	assert.Equal(t, start, m.stats)
}

func TestRelease_SkipsWhenStatusChangedElsewhere(t *testing.T) {
	svc, m, _, inv := setup()
	ctx := context.Background()

	tk := open(t, svc, "proj", true)
	// 職員が手動で requisitioned にした
	p := m.products["proj"]
	p.Status = inventory.StatusRequisitioned
	m.products["proj"] = p

	_, err := svc.Cancel(ctx, office, tk.ID, CancelRequest{})
	require.NoError(t, err)
	assert.Equal(t, inventory.StatusRequisitioned, m.products["proj"].Status)
	assert.Equal(t, 1, inv.n)
}

func TestParseCost(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"", "0", true},
		{"0", "0", true},
		{"12.5", "12.5", true},
		{"3,000.75", "3000.75", true},
		{"0.125", "", false},
		{"-1", "", false},
		{"abc", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseCost(tc.in)
			if !tc.ok {
				assert.True(t, apierr.Is(err, apierr.CodeInvalidArgument))
				return
			}
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tc.want).Equal(got), got.String())
		})
	}
}

func TestComplete_BadCostWritesNothing(t *testing.T) {
	svc, m, _, _ := setup()
	ctx := context.Background()
	tk := open(t, svc, "proj", true)
	_, err := svc.Assign(ctx, office, tk.ID, AssignRequest{TechnicianID: "t-1"})
	require.NoError(t, err)
	_, err = svc.Start(ctx, tech, tk.ID)
	require.NoError(t, err)

	_, err = svc.Complete(ctx, tech, tk.ID, CompleteRequest{Cost: "9.999"})
	assert.True(t, apierr.Is(err, apierr.CodeInvalidArgument))
	assert.Equal(t, StatusInProgress, m.tickets[tk.ID].Status)
	assert.Equal(t, inventory.StatusMaintenance, m.products["proj"].Status)
}

func TestList_Filters(t *testing.T) {
	svc, _, _, _ := setup()
	ctx := context.Background()
	a := open(t, svc, "", false)
	open(t, svc, "", false)
	_, err := svc.Assign(ctx, office, a.ID, AssignRequest{TechnicianID: "t-1"})
	require.NoError(t, err)

	res, err := svc.List(ctx, Filter{TechnicianID: strp("t-1")}, paging.Normalize(paging.Page{}))
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, a.ID, res.Items[0].ID)
	// 名前未指定なら ID
	require.NotNil(t, res.Items[0].TechnicianName)
	assert.Equal(t, "t-1", *res.Items[0].TechnicianName)
}
