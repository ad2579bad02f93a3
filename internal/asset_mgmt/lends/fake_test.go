package lends

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"CAMPUS-backend/internal/asset_mgmt/inventory"
	"CAMPUS-backend/internal/asset_mgmt/ledger"
	"CAMPUS-backend/internal/platform/apierr"
	"CAMPUS-backend/internal/platform/db"
	"CAMPUS-backend/internal/platform/paging"
)

// fakeDB: Tx の間ミューテックスを握る（行ロックの代わり）。エラー時は巻き戻す
type fakeDB struct {
	mu       sync.Mutex
	products map[string]inventory.Product
	txs      map[string]inventory.Transaction
	stats    ledger.Stats
}

func newFakeDB() *fakeDB {
	return &fakeDB{products: map[string]inventory.Product{}, txs: map[string]inventory.Transaction{}}
}

func (f *fakeDB) runner() db.TxFunc[Queries] {
	return func(ctx context.Context, fn func(ctx context.Context, q Queries) error) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		products := make(map[string]inventory.Product, len(f.products))
		for k, v := range f.products {
			products[k] = v
		}
		txs := make(map[string]inventory.Transaction, len(f.txs))
		for k, v := range f.txs {
			txs[k] = v
		}
		stats := f.stats
		if err := fn(ctx, fakeQ{f}); err != nil {
			f.products, f.txs, f.stats = products, txs, stats
			return err
		}
		return nil
	}
}

// addProduct は集計にも反映して登録する
func (f *fakeDB) addProduct(p inventory.Product) {
	f.products[p.ID] = p
	f.stats, _ = f.stats.Apply(ledger.Contribution(ledger.SnapshotOf(&p)))
}

func (f *fakeDB) recount() ledger.Stats {
	snaps := make([]ledger.Snapshot, 0, len(f.products))
	for _, p := range f.products {
		p := p
		snaps = append(snaps, ledger.SnapshotOf(&p))
	}
	return ledger.Sum(snaps)
}

type fakeQ struct{ f *fakeDB }

func (q fakeQ) GetProduct(_ context.Context, id string, _ bool) (*inventory.Product, error) {
	p, ok := q.f.products[id]
	if !ok || p.Deleted() {
		return nil, apierr.ErrNotFound("product not found")
	}
	return &p, nil
}

func (q fakeQ) UpdateProductState(_ context.Context, p *inventory.Product) error {
	if _, ok := q.f.products[p.ID]; !ok {
		return apierr.ErrNotFound("product not found")
	}
	q.f.products[p.ID] = *p
	return nil
}

func (q fakeQ) InsertTransaction(_ context.Context, t *inventory.Transaction) error {
	if _, ok := q.f.txs[t.ID]; ok {
		return fmt.Errorf("duplicate transaction %s", t.ID)
	}
	q.f.txs[t.ID] = *t
	return nil
}

func (q fakeQ) GetTransaction(_ context.Context, id string, _ bool) (*inventory.Transaction, error) {
	t, ok := q.f.txs[id]
	if !ok {
		return nil, apierr.ErrNotFound("transaction not found")
	}
	return &t, nil
}

func (q fakeQ) ListActiveBorrows(_ context.Context, productID string) ([]inventory.Transaction, error) {
	out := []inventory.Transaction{}
	for _, t := range q.f.txs {
		if t.ProductID == productID && t.Type == inventory.TxBorrow && t.Status == inventory.TxActive {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].BorrowDate.Time.Equal(out[j].BorrowDate.Time) {
			return out[i].BorrowDate.Time.Before(out[j].BorrowDate.Time)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (q fakeQ) CompleteTransaction(_ context.Context, id string, st inventory.ReturnStamp) error {
	t, ok := q.f.txs[id]
	if !ok || t.Status != inventory.TxActive {
		return apierr.ErrConflict("transaction is not active")
	}
	t.Status = inventory.TxCompleted
	t.ReturnDate.Time, t.ReturnDate.Valid = st.ReturnedAt, true
	t.ReturnerName = inventory.NullString(st.ReturnerName)
	t.ReceivedByID = inventory.NullString(st.ReceivedByID)
	t.ReceivedByName = inventory.NullString(st.ReceivedByName)
	t.ReturnSignatureURL = inventory.NullString(st.ReturnSignatureURL)
	if st.Notes != "" {
		t.Notes = inventory.NullString(st.Notes)
	}
	q.f.txs[id] = t
	return nil
}

func (q fakeQ) ListTransactions(_ context.Context, f TxFilter, p paging.Page) ([]inventory.Transaction, int64, error) {
	out := []inventory.Transaction{}
	for _, t := range q.f.txs {
		if f.Type != nil && t.Type != *f.Type {
			continue
		}
		if f.ProductID != nil && t.ProductID != *f.ProductID {
			continue
		}
		if f.BorrowerID != nil && t.BorrowerID != *f.BorrowerID {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, int64(len(out)), nil
}

func (q fakeQ) ApplyStats(_ context.Context, d ledger.Delta) error {
	q.f.stats, _ = q.f.stats.Apply(d)
	return nil
}

// tickClock は呼ぶたびに1分進む
type tickClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *tickClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Minute)
	return c.t
}

type seqID struct {
	mu sync.Mutex
	n  int
}

func (s *seqID) NewULID(time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("T%04d", s.n)
}

func newTestService(f *fakeDB) *Service {
	return &Service{
		tx:    f.runner(),
		read:  fakeQ{f},
		clock: &tickClock{t: time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)},
		id:    &seqID{},
	}
}

func uniqueProduct(id string) inventory.Product {
	return inventory.Product{ID: id, StockID: "COM-001", Name: "Camera", Kind: inventory.KindUnique, Quantity: 1, Status: inventory.StatusAvailable}
}

func bulkProduct(id string, qty int) inventory.Product {
	return inventory.Product{ID: id, StockID: "SPT-001", Name: "Ball", Kind: inventory.KindBulk, Quantity: qty, Status: inventory.DeriveStockStatus(qty, 0)}
}

func pagingDefault() paging.Page { return paging.Normalize(paging.Page{}) }
