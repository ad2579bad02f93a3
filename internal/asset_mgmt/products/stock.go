package products

import (
	"CAMPUS-backend/internal/asset_mgmt/inventory"
	"CAMPUS-backend/internal/platform/apierr"
)

// AdjustStock は新しい数量を返す。書き込みはしない
//
//	set: delta が目標値
//	add: quantity + delta（負数で減算）
func AdjustStock(quantity, borrowedCount int, mode StockMode, delta int) (int, error) {
	var next int
	switch mode {
	case StockSet:
		next = delta
	case StockAdd:
		next = quantity + delta
	default:
		return quantity, apierr.ErrInvalid("mode must be set or add")
	}
	if next < 0 {
		return quantity, apierr.ErrInvalid("quantity cannot be negative")
	}
	if next < borrowedCount {
		return quantity, apierr.ErrInvalid("quantity cannot be less than borrowed count")
	}
	return next, nil
}

// applyStock は p の数量と状態を書き換える
func applyStock(p *inventory.Product, mode StockMode, delta int) error {
	next, err := AdjustStock(p.Quantity, p.BorrowedCount, mode, delta)
	if err != nil {
		return err
	}
	p.Quantity = next
	// 整備中はそのまま
	if p.Status != inventory.StatusMaintenance {
		p.Status = inventory.DeriveStockStatus(p.Quantity, p.BorrowedCount)
	}
	return nil
}
