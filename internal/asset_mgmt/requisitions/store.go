package requisitions

import (
	"context"

	"CAMPUS-backend/internal/asset_mgmt/inventory"
	"CAMPUS-backend/internal/asset_mgmt/ledger"
	"CAMPUS-backend/internal/platform/db"
)

type Store struct{ q db.DBTX }

func NewStore(q db.DBTX) *Store { return &Store{q: q} }

func (s *Store) GetProduct(ctx context.Context, id string, forUpdate bool) (*inventory.Product, error) {
	return inventory.GetProduct(ctx, s.q, id, forUpdate)
}

func (s *Store) UpdateProductState(ctx context.Context, p *inventory.Product) error {
	return inventory.UpdateProductState(ctx, s.q, p)
}

func (s *Store) InsertTransaction(ctx context.Context, t *inventory.Transaction) error {
	return inventory.InsertTransaction(ctx, s.q, t)
}

func (s *Store) ApplyStats(ctx context.Context, d ledger.Delta) error {
	return ledger.NewStore(s.q).Apply(ctx, d)
}
