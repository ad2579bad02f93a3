package bookings

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CAMPUS-backend/internal/platform/apierr"
	"CAMPUS-backend/internal/platform/auth"
	"CAMPUS-backend/internal/platform/db"
	"CAMPUS-backend/internal/platform/notify"
	"CAMPUS-backend/internal/platform/paging"
)

// memDB: Tx 中はミューテックスを握る（部屋行ロックの代わり）
type memDB struct {
	mu       sync.Mutex
	rooms    map[string]Room
	bookings map[string]Booking
	failList error
}

func newMemDB() *memDB {
	return &memDB{rooms: map[string]Room{}, bookings: map[string]Booking{}}
}

func (m *memDB) runner() db.TxFunc[Queries] {
	return func(ctx context.Context, fn func(ctx context.Context, q Queries) error) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		saved := make(map[string]Booking, len(m.bookings))
		for k, v := range m.bookings {
			saved[k] = v
		}
		if err := fn(ctx, memQ{m}); err != nil {
			m.bookings = saved
			return err
		}
		return nil
	}
}

type memQ struct{ m *memDB }

func (q memQ) InsertRoom(_ context.Context, r *Room) error {
	q.m.rooms[r.ID] = *r
	return nil
}

func (q memQ) GetRoom(_ context.Context, id string, _ bool) (*Room, error) {
	r, ok := q.m.rooms[id]
	if !ok {
		return nil, apierr.ErrNotFound("room not found")
	}
	return &r, nil
}

func (q memQ) ListRooms(context.Context) ([]Room, error) {
	out := []Room{}
	for _, r := range q.m.rooms {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (q memQ) ListRoomBookings(_ context.Context, roomID string) ([]Booking, error) {
	if q.m.failList != nil {
		return nil, q.m.failList
	}
	out := []Booking{}
	for _, b := range q.m.bookings {
		if b.RoomID == roomID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (q memQ) GetBooking(_ context.Context, id string, _ bool) (*Booking, error) {
	b, ok := q.m.bookings[id]
	if !ok {
		return nil, apierr.ErrNotFound("booking not found")
	}
	return &b, nil
}

func (q memQ) InsertBooking(_ context.Context, b *Booking) error {
	q.m.bookings[b.ID] = *b
	return nil
}

func (q memQ) UpdateBookingStatus(_ context.Context, b *Booking) error {
	q.m.bookings[b.ID] = *b
	return nil
}

func (q memQ) ListBookings(_ context.Context, f Filter, _ paging.Page) ([]Booking, int64, error) {
	out := []Booking{}
	for _, b := range q.m.bookings {
		if f.RoomID != nil && b.RoomID != *f.RoomID {
			continue
		}
		if f.Status != nil && b.Status != *f.Status {
			continue
		}
		out = append(out, b)
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

type failing struct{}

func (failing) Publish(context.Context, notify.Message) error { return fmt.Errorf("broker down") }

type fixedClock struct{}

func (fixedClock) Now() time.Time { return time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC) }

type seqID struct {
	mu sync.Mutex
	n  int
}

func (s *seqID) NewULID(time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("B%03d", s.n)
}

var (
	user  = auth.Identity{ID: "u-1", Name: "Somchai", Role: auth.RoleUser}
	other = auth.Identity{ID: "u-2", Name: "Yuki", Role: auth.RoleUser}
	mod   = auth.Identity{ID: "s-1", Name: "Office", Role: auth.RoleStaff}
)

func setup(n notify.Notifier) (*Service, *memDB) {
	m := newMemDB()
	m.rooms["open"] = Room{ID: "open", Name: "Meeting A"}
	m.rooms["hall"] = Room{ID: "hall", Name: "Hall", RequiresApproval: true}
	return &Service{
		tx:         m.runner(),
		read:       memQ{m},
		clock:      fixedClock{},
		id:         &seqID{},
		notifier:   n,
		moderators: []string{"s-1", "s-2"},
	}, m
}

func req(room string, s, e time.Time) CreateBookingRequest {
	return CreateBookingRequest{RoomID: room, Title: "Staff meeting", StartAt: s, EndAt: e}
}

func TestCreateBooking_AutoApproveAndConflict(t *testing.T) {
	rec := &recorder{}
	svc, _ := setup(rec)
	ctx := context.Background()

	b, err := svc.CreateBooking(ctx, user, req("open", at(9, 0), at(10, 0)))
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, b.Status)
	assert.Equal(t, "Somchai", b.RequesterName)

	_, err = svc.CreateBooking(ctx, other, req("open", at(9, 30), at(10, 30)))
	assert.True(t, apierr.Is(err, apierr.CodeConflict))

	_, err = svc.CreateBooking(ctx, other, req("open", at(10, 0), at(11, 0)))
	require.NoError(t, err)

	require.Len(t, rec.msgs, 2)
	assert.Equal(t, notify.TplBookingApproved, rec.msgs[0].Template)
	assert.Equal(t, []string{"u-1"}, rec.msgs[0].To)
	assert.Equal(t, "Meeting A", rec.msgs[0].Fields["room"])
}

func TestCreateBooking_Validation(t *testing.T) {
	svc, m := setup(nil)
	ctx := context.Background()

	_, err := svc.CreateBooking(ctx, user, req("open", at(10, 0), at(10, 0)))
	assert.True(t, apierr.Is(err, apierr.CodeInvalidArgument))
	_, err = svc.CreateBooking(ctx, user, req("open", at(11, 0), at(10, 0)))
	assert.True(t, apierr.Is(err, apierr.CodeInvalidArgument))

	r := req("open", at(9, 0), at(10, 0))
	r.Title = "  "
	_, err = svc.CreateBooking(ctx, user, r)
	assert.True(t, apierr.Is(err, apierr.CodeInvalidArgument))

	_, err = svc.CreateBooking(ctx, user, req("nope", at(9, 0), at(10, 0)))
	assert.True(t, apierr.Is(err, apierr.CodeNotFound))

	assert.Empty(t, m.bookings)
}

func TestCreateBooking_QueryFailureFailsClosed(t *testing.T) {
	svc, m := setup(nil)
	m.failList = fmt.Errorf("connection reset")

	_, err := svc.CreateBooking(context.Background(), user, req("open", at(9, 0), at(10, 0)))
	require.Error(t, err)
	assert.Empty(t, m.bookings)

	_, err = svc.HasConflict(context.Background(), "open", at(9, 0), at(10, 0))
	require.Error(t, err)
}

func TestApprovalFlow(t *testing.T) {
	rec := &recorder{}
	svc, _ := setup(rec)
	ctx := context.Background()

	b, err := svc.CreateBooking(ctx, user, req("hall", at(13, 0), at(15, 0)))
	require.NoError(t, err)
	assert.Equal(t, StatusPending, b.Status)
	require.Len(t, rec.msgs, 1)
	assert.Equal(t, notify.TplBookingPending, rec.msgs[0].Template)
	assert.Equal(t, []string{"s-1", "s-2"}, rec.msgs[0].To)

	// pending も枠を占有する
	_, err = svc.CreateBooking(ctx, other, req("hall", at(14, 0), at(16, 0)))
	assert.True(t, apierr.Is(err, apierr.CodeConflict))

	_, err = svc.Approve(ctx, user, b.ID)
	assert.True(t, apierr.Is(err, apierr.CodeForbidden))

	ok, err := svc.Approve(ctx, mod, b.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, ok.Status)
	require.NotNil(t, ok.DecidedByName)
	assert.Equal(t, "Office", *ok.DecidedByName)

	_, err = svc.Approve(ctx, mod, b.ID)
	assert.True(t, apierr.Is(err, apierr.CodeConflict))
	_, err = svc.Reject(ctx, mod, b.ID, nil)
	assert.True(t, apierr.Is(err, apierr.CodeConflict))

	last := rec.msgs[len(rec.msgs)-1]
	assert.Equal(t, notify.TplBookingApproved, last.Template)
	assert.Equal(t, []string{"u-1"}, last.To)
}

func TestApprove_RechecksAgainstOthers(t *testing.T) {
	svc, m := setup(nil)
	// 旧データ: 同じ時間に pending と approved が並んでいる
	m.bookings["old"] = Booking{ID: "old", RoomID: "hall", StartAt: at(9, 0), EndAt: at(10, 0), Status: StatusApproved}
	m.bookings["p"] = Booking{ID: "p", RoomID: "hall", StartAt: at(9, 30), EndAt: at(10, 30), Status: StatusPending, RequesterID: "u-1"}

	_, err := svc.Approve(context.Background(), mod, "p")
	assert.True(t, apierr.Is(err, apierr.CodeConflict))
	assert.Equal(t, StatusPending, m.bookings["p"].Status)
}

func TestRejectAndCancelFreeTheSlot(t *testing.T) {
	svc, _ := setup(&recorder{})
	ctx := context.Background()
	reason := "exam week"

	p, err := svc.CreateBooking(ctx, user, req("hall", at(9, 0), at(10, 0)))
	require.NoError(t, err)
	r, err := svc.Reject(ctx, mod, p.ID, &reason)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, r.Status)
	require.NotNil(t, r.Reason)
	assert.Equal(t, reason, *r.Reason)

	a, err := svc.CreateBooking(ctx, other, req("open", at(9, 0), at(10, 0)))
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, user, a.ID, nil)
	assert.True(t, apierr.Is(err, apierr.CodeForbidden))

	c, err := svc.Cancel(ctx, other, a.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, c.Status)

	_, err = svc.Cancel(ctx, mod, a.ID, nil)
	assert.True(t, apierr.Is(err, apierr.CodeConflict))

	conflict, err := svc.HasConflict(ctx, "open", at(9, 0), at(10, 0))
	require.NoError(t, err)
	assert.False(t, conflict)
	_, err = svc.CreateBooking(ctx, user, req("open", at(9, 0), at(10, 0)))
	require.NoError(t, err)
}

func TestNotifyFailureDoesNotFailBooking(t *testing.T) {
	svc, m := setup(failing{})
	_, err := svc.CreateBooking(context.Background(), user, req("open", at(9, 0), at(10, 0)))
	require.NoError(t, err)
	assert.Len(t, m.bookings, 1)
}

func TestCreateBooking_ConcurrentOnlyOneWins(t *testing.T) {
	svc, m := setup(nil)
	const n = 10
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			who := auth.Identity{ID: fmt.Sprintf("u-%d", i), Role: auth.RoleUser}
			_, err := svc.CreateBooking(context.Background(), who, req("open", at(9, i), at(10, i)))
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
	assert.Len(t, m.bookings, 1)
}
