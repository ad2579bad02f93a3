package products

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"CAMPUS-backend/internal/asset_mgmt/inventory"
	"CAMPUS-backend/internal/asset_mgmt/ledger"
	"CAMPUS-backend/internal/platform/apierr"
	"CAMPUS-backend/internal/platform/db"
	"CAMPUS-backend/internal/platform/paging"
)

type fakeCategory struct {
	code     string
	disabled bool
}

// fakeDB は Tx 単位でミューテックスを握り、エラー時は状態を巻き戻す
type fakeDB struct {
	mu         sync.Mutex
	products   map[string]inventory.Product
	categories map[uint]fakeCategory
	stats      ledger.Stats
	writes     int
	reconciled int
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		products:   map[string]inventory.Product{},
		categories: map[uint]fakeCategory{1: {code: "COM"}, 2: {code: "SPT"}, 9: {code: "OLD", disabled: true}},
	}
}

func (f *fakeDB) runner() db.TxFunc[Queries] {
	return func(ctx context.Context, fn func(ctx context.Context, q Queries) error) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		saved := make(map[string]inventory.Product, len(f.products))
		for k, v := range f.products {
			saved[k] = v
		}
		savedStats, savedWrites := f.stats, f.writes
		if err := fn(ctx, fakeQ{f}); err != nil {
			f.products, f.stats, f.writes = saved, savedStats, savedWrites
			return err
		}
		return nil
	}
}

type fakeQ struct{ f *fakeDB }

func (q fakeQ) GetProduct(_ context.Context, id string, _ bool) (*inventory.Product, error) {
	p, ok := q.f.products[id]
	if !ok || p.Deleted() {
		return nil, apierr.ErrNotFound("product not found")
	}
	return &p, nil
}

func (q fakeQ) GetProductByStockID(_ context.Context, stockID string) (*inventory.Product, error) {
	for _, p := range q.f.products {
		if p.StockID == stockID && !p.Deleted() {
			return &p, nil
		}
	}
	return nil, apierr.ErrNotFound("product not found")
}

func (q fakeQ) ListProducts(_ context.Context, f Filter, p paging.Page) ([]inventory.Product, int64, error) {
	var all []inventory.Product
	for _, pr := range q.f.products {
		if pr.Deleted() {
			continue
		}
		if f.Kind != nil && pr.Kind != *f.Kind {
			continue
		}
		if f.Status != nil && pr.Status != *f.Status {
			continue
		}
		if f.Keyword != nil && !strings.Contains(pr.Name, *f.Keyword) {
			continue
		}
		all = append(all, pr)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].StockID < all[j].StockID })
	total := int64(len(all))
	if p.Offset >= len(all) {
		return []inventory.Product{}, total, nil
	}
	end := p.Offset + p.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[p.Offset:end], total, nil
}

func (q fakeQ) LockCategory(_ context.Context, id uint) (string, bool, error) {
	c, ok := q.f.categories[id]
	if !ok {
		return "", false, apierr.ErrInvalid("category not found")
	}
	return c.code, c.disabled, nil
}

func (q fakeQ) MaxStockSeq(_ context.Context, prefix string) (int, error) {
	max := 0
	for _, p := range q.f.products {
		if rest, ok := strings.CutPrefix(p.StockID, prefix+"-"); ok {
			if n, err := strconv.Atoi(rest); err == nil && n > max {
				max = n
			}
		}
	}
	return max, nil
}

func (q fakeQ) InsertProduct(_ context.Context, p *inventory.Product) error {
	if _, ok := q.f.products[p.ID]; ok {
		return fmt.Errorf("duplicate id %s", p.ID)
	}
	q.f.writes++
	q.f.products[p.ID] = *p
	return nil
}

func (q fakeQ) UpdateProductInfo(_ context.Context, p *inventory.Product) error {
	q.f.writes++
	q.f.products[p.ID] = *p
	return nil
}

func (q fakeQ) UpdateProductState(_ context.Context, p *inventory.Product) error {
	q.f.writes++
	q.f.products[p.ID] = *p
	return nil
}

func (q fakeQ) SoftDeleteProduct(_ context.Context, id string, at time.Time) error {
	p := q.f.products[id]
	p.DeletedAt.Time, p.DeletedAt.Valid = at, true
	q.f.writes++
	q.f.products[id] = p
	return nil
}

func (q fakeQ) ApplyStats(_ context.Context, d ledger.Delta) error {
	q.f.stats, _ = q.f.stats.Apply(d)
	return nil
}

func (q fakeQ) ReconcileStatusChange(_ context.Context, oldStatus, newStatus inventory.Status) error {
	q.f.reconciled++
	q.f.stats, _ = q.f.stats.Apply(ledger.StatusChange(oldStatus, newStatus))
	return nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type seqID struct{ n int }

func (s *seqID) NewULID(time.Time) string {
	s.n++
	return fmt.Sprintf("P%03d", s.n)
}

type countingInvalidator struct{ n int }

func (c *countingInvalidator) Invalidate(context.Context) { c.n++ }

func newTestService(f *fakeDB) (*Service, *countingInvalidator) {
	inv := &countingInvalidator{}
	return &Service{
		tx:    f.runner(),
		read:  fakeQ{f},
		clock: fixedClock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)},
		id:    &seqID{},
		stats: inv,
	}, inv
}
