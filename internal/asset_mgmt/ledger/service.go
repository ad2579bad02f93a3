package ledger

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"CAMPUS-backend/internal/platform/apierr"
	"CAMPUS-backend/internal/platform/db"
	"CAMPUS-backend/internal/platform/kv"
	"CAMPUS-backend/internal/platform/logging"
)

const (
	cacheKey    = "stats"
	recountLock = "lock:stats:recount"
	recountTTL  = time.Minute
	defaultTTL  = 30 * time.Second
)

// Source は集計の読み出しと再集計
type Source interface {
	Read(ctx context.Context) (Stats, error)
	Recount(ctx context.Context) (before, after Stats, err error)
}

type sqlSource struct{ db *sql.DB }

func (s sqlSource) Read(ctx context.Context) (st Stats, err error) {
	err = db.ReadOnly(ctx, s.db, func(ctx context.Context, tx db.DBTX) error {
		st, _, err = NewStore(tx).Get(ctx)
		return err
	})
	return st, err
}

// ロック順は他の更新系と同じく products → inventory_stats
func (s sqlSource) Recount(ctx context.Context) (before, after Stats, err error) {
	err = db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		st := NewStore(tx)
		a, err := st.Recount(ctx)
		if err != nil {
			return err
		}
		b, _, err := st.get(ctx, true)
		if err != nil {
			return err
		}
		before, after = b, a
		return st.Replace(ctx, a)
	})
	return before, after, err
}

type Service struct {
	src    Source
	cache  *kv.Cache
	locker *kv.Locker
	ttl    time.Duration
}

func NewService(conn *sql.DB, cache *kv.Cache, locker *kv.Locker, ttl time.Duration) *Service {
	return NewServiceWithSource(sqlSource{db: conn}, cache, locker, ttl)
}

func NewServiceWithSource(src Source, cache *kv.Cache, locker *kv.Locker, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Service{src: src, cache: cache, locker: locker, ttl: ttl}
}

// GetStats: キャッシュ優先
func (s *Service) GetStats(ctx context.Context) (Stats, error) {
	var st Stats
	if ok, err := s.cache.GetObject(ctx, cacheKey, &st); err != nil {
		logging.LogError("ledger", "GetStats", "cache read failed", nil, err)
	} else if ok {
		return st, nil
	}

	st, err := s.src.Read(ctx)
	if err != nil {
		return Stats{}, apierr.ErrInternal("failed to read stats")
	}
	if err := s.cache.SetObject(ctx, cacheKey, st, s.ttl); err != nil {
		logging.LogError("ledger", "GetStats", "cache write failed", nil, err)
	}
	return st, nil
}

// Invalidate は集計を変更した Tx のコミット後に呼ぶ
func (s *Service) Invalidate(ctx context.Context) {
	if s == nil {
		return
	}
	if err := s.cache.Delete(ctx, cacheKey); err != nil {
		logging.LogError("ledger", "Invalidate", "cache delete failed", nil, err)
	}
}

type RecountResult struct {
	Before Stats `json:"before"`
	After  Stats `json:"after"`
	Drift  Delta `json:"drift"`
}

// Recount は products から集計を作り直す。多重実行は分散ロックで防ぐ
func (s *Service) Recount(ctx context.Context) (RecountResult, error) {
	var res RecountResult
	run := func(ctx context.Context) error {
		before, after, err := s.src.Recount(ctx)
		if err != nil {
			return err
		}
		res = RecountResult{Before: before, After: after, Drift: drift(before, after)}
		return nil
	}

	var err error
	if s.locker.Enabled() {
		err = s.locker.WithLock(ctx, recountLock, recountTTL, run)
	} else {
		logging.LogWarn("ledger", "Recount", "redis lock unavailable; recount runs unguarded", nil)
		err = run(ctx)
	}
	if errors.Is(err, kv.ErrLockNotObtained) {
		return RecountResult{}, apierr.ErrConflict("recount already running")
	}
	if err != nil {
		logging.LogError("ledger", "Recount", "recount failed", nil, err)
		return RecountResult{}, apierr.ErrInternal("recount failed")
	}

	if !res.Drift.IsZero() {
		logging.LogWarn("ledger", "Recount", "stats drift corrected", res)
	}
	s.Invalidate(ctx)
	return res, nil
}

func drift(before, after Stats) Delta {
	return Delta{
		Total:       int(after.Total - before.Total),
		Available:   int(after.Available - before.Available),
		Borrowed:    int(after.Borrowed - before.Borrowed),
		Maintenance: int(after.Maintenance - before.Maintenance),
	}
}
