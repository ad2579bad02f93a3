package ledger

import (
	"context"
	"database/sql"
	"errors"

	"CAMPUS-backend/internal/asset_mgmt/inventory"
	"CAMPUS-backend/internal/platform/db"
	"CAMPUS-backend/internal/platform/logging"
)

const statKey = "inventory"

type Store struct {
	q db.DBTX
}

// NewStore: 書き込みは呼び出し側の Tx を渡すこと
func NewStore(q db.DBTX) *Store { return &Store{q: q} }

// Get: 行が無ければ (zero, false, nil)
func (s *Store) Get(ctx context.Context) (Stats, bool, error) {
	return s.get(ctx, false)
}

func (s *Store) get(ctx context.Context, forUpdate bool) (Stats, bool, error) {
	q := `SELECT total, available, borrowed, maintenance FROM inventory_stats WHERE stat_key = ?`
	if forUpdate {
		q += ` FOR UPDATE`
	}
	var st Stats
	err := s.q.QueryRowContext(ctx, q, statKey).Scan(&st.Total, &st.Available, &st.Borrowed, &st.Maintenance)
	if errors.Is(err, sql.ErrNoRows) {
		return Stats{}, false, nil
	}
	if err != nil {
		return Stats{}, false, err
	}
	return st, true, nil
}

// Apply は差分を1回の UPDATE で反映する。
// 行が無い場合、増やす項目があれば作成し（減算分は捨てる）、減算だけなら何もしない。
func (s *Store) Apply(ctx context.Context, d Delta) error {
	if d.IsZero() {
		return nil
	}
	cur, ok, err := s.get(ctx, true)
	if err != nil {
		return err
	}
	if !ok {
		if !d.hasIncrement() {
			logging.LogWarn("ledger", "Apply", "stats row missing; decrement ignored", d)
			return nil
		}
		next, _ := Stats{}.Apply(d)
		return s.insert(ctx, next)
	}

	next, drifted := cur.Apply(d)
	if len(drifted) > 0 {
		logging.LogWarn("ledger", "Apply", "stats would go negative; clamped at 0", map[string]any{
			"current": cur, "delta": d, "fields": drifted,
		})
	}
	const q = `
		UPDATE inventory_stats
		SET total = ?, available = ?, borrowed = ?, maintenance = ?
		WHERE stat_key = ?`
	_, err = s.q.ExecContext(ctx, q, next.Total, next.Available, next.Borrowed, next.Maintenance, statKey)
	return err
}

func (s *Store) insert(ctx context.Context, st Stats) error {
	const q = `
		INSERT INTO inventory_stats (stat_key, total, available, borrowed, maintenance)
		VALUES (?, ?, ?, ?, ?)`
	_, err := s.q.ExecContext(ctx, q, statKey, st.Total, st.Available, st.Borrowed, st.Maintenance)
	return err
}

func (s *Store) IncrementStat(ctx context.Context, f Field) error {
	return s.Apply(ctx, Delta{}.With(f, 1))
}

func (s *Store) DecrementStat(ctx context.Context, f Field) error {
	return s.Apply(ctx, Delta{}.With(f, -1))
}

// ReconcileStatusChange: old -1 と new +1 を同じ UPDATE で
func (s *Store) ReconcileStatusChange(ctx context.Context, oldStatus, newStatus inventory.Status) error {
	return s.Apply(ctx, StatusChange(oldStatus, newStatus))
}

// Replace は再集計結果で上書きする
func (s *Store) Replace(ctx context.Context, st Stats) error {
	const q = `
		INSERT INTO inventory_stats (stat_key, total, available, borrowed, maintenance)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			total = VALUES(total), available = VALUES(available),
			borrowed = VALUES(borrowed), maintenance = VALUES(maintenance)`
	_, err := s.q.ExecContext(ctx, q, statKey, st.Total, st.Available, st.Borrowed, st.Maintenance)
	return err
}

// Recount は products から集計をやり直す（行ロックを取る）
func (s *Store) Recount(ctx context.Context) (Stats, error) {
	const q = `
		SELECT kind, status, quantity, borrowed_count
		FROM products
		WHERE deleted_at IS NULL
		FOR UPDATE`
	rows, err := s.q.QueryContext(ctx, q)
	if err != nil {
		return Stats{}, err
	}
	defer rows.Close()

	var snaps []Snapshot
	for rows.Next() {
		var sn Snapshot
		if err := rows.Scan(&sn.Kind, &sn.Status, &sn.Quantity, &sn.BorrowedCount); err != nil {
			return Stats{}, err
		}
		snaps = append(snaps, sn)
	}
	if err := rows.Err(); err != nil {
		return Stats{}, err
	}
	return Sum(snaps), nil
}

// Sum は各品目の Contribution の合計
func Sum(snaps []Snapshot) Stats {
	var st Stats
	for _, sn := range snaps {
		c := Contribution(sn)
		st.Total += int64(c.Total)
		st.Available += int64(c.Available)
		st.Borrowed += int64(c.Borrowed)
		st.Maintenance += int64(c.Maintenance)
	}
	return st
}
