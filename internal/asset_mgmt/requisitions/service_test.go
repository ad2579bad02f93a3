package requisitions

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CAMPUS-backend/internal/asset_mgmt/inventory"
	"CAMPUS-backend/internal/asset_mgmt/ledger"
	"CAMPUS-backend/internal/platform/apierr"
	"CAMPUS-backend/internal/platform/db"
)

type memDB struct {
	mu       sync.Mutex
	products map[string]inventory.Product
	txs      []inventory.Transaction
	stats    ledger.Stats
}

func (m *memDB) runner() db.TxFunc[Queries] {
	return func(ctx context.Context, fn func(ctx context.Context, q Queries) error) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		saved := make(map[string]inventory.Product, len(m.products))
		for k, v := range m.products {
			saved[k] = v
		}
		txs, stats := len(m.txs), m.stats
		if err := fn(ctx, memQ{m}); err != nil {
			m.products, m.txs, m.stats = saved, m.txs[:txs], stats
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

func (q memQ) InsertTransaction(_ context.Context, t *inventory.Transaction) error {
	q.m.txs = append(q.m.txs, *t)
	return nil
}

func (q memQ) ApplyStats(_ context.Context, d ledger.Delta) error {
	q.m.stats, _ = q.m.stats.Apply(d)
	return nil
}

type fixedClock struct{}

func (fixedClock) Now() time.Time { return time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC) }

type seq struct{ n int }

func (s *seq) NewULID(time.Time) string {
	s.n++
	return fmt.Sprintf("R%d", s.n)
}

func setup(ps ...inventory.Product) (*Service, *memDB) {
	m := &memDB{products: map[string]inventory.Product{}}
	for _, p := range ps {
		p := p
		m.products[p.ID] = p
		m.stats, _ = m.stats.Apply(ledger.Contribution(ledger.SnapshotOf(&p)))
	}
	return &Service{tx: m.runner(), clock: fixedClock{}, id: &seq{}}, m
}

var clerk = Requester{ID: "s-1", Name: "Clerk"}

func TestCreate_BulkDepletes(t *testing.T) {
	svc, m := setup(inventory.Product{ID: "paper", Kind: inventory.KindBulk, Quantity: 5, BorrowedCount: 1, Status: inventory.StatusAvailable})
	require.Equal(t, ledger.Stats{Total: 1, Available: 1, Borrowed: 1}, m.stats)

	res, err := svc.Create(context.Background(), "paper", clerk, CreateRequest{Amount: 3})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Quantity)
	assert.Equal(t, inventory.StatusAvailable, res.Status)

	// 貸出中の1つは払い出せない
	_, err = svc.Create(context.Background(), "paper", clerk, CreateRequest{Amount: 2})
	assert.True(t, apierr.Is(err, apierr.CodeConflict))

	res, err = svc.Create(context.Background(), "paper", clerk, CreateRequest{Amount: 1})
	require.NoError(t, err)
	assert.Equal(t, inventory.StatusRequisitioned, res.Status)
	assert.Equal(t, ledger.Stats{Total: 1, Borrowed: 1}, m.stats)

	require.Len(t, m.txs, 2)
	assert.Equal(t, inventory.TxRequisition, m.txs[0].Type)
	assert.Equal(t, inventory.TxCompleted, m.txs[0].Status)
	assert.Equal(t, 3, m.txs[0].Amount)
}

func TestCreate_Unique(t *testing.T) {
	svc, m := setup(inventory.Product{ID: "cam", Kind: inventory.KindUnique, Quantity: 1, Status: inventory.StatusAvailable})

	res, err := svc.Create(context.Background(), "cam", clerk, CreateRequest{})
	require.NoError(t, err)
	assert.Equal(t, inventory.StatusRequisitioned, res.Status)
	assert.Equal(t, ledger.Stats{Total: 1}, m.stats)

	_, err = svc.Create(context.Background(), "cam", clerk, CreateRequest{})
	assert.True(t, apierr.Is(err, apierr.CodeConflict))
}

func TestCreate_InvalidAmount(t *testing.T) {
	svc, m := setup(inventory.Product{ID: "paper", Kind: inventory.KindBulk, Quantity: 5, Status: inventory.StatusAvailable})
	for _, amount := range []int{0, -1} {
		_, err := svc.Create(context.Background(), "paper", clerk, CreateRequest{Amount: amount})
		assert.True(t, apierr.Is(err, apierr.CodeInvalidArgument))
	}
	assert.Empty(t, m.txs)
	assert.Equal(t, 5, m.products["paper"].Quantity)
}
