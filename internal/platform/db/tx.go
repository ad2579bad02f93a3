package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	mysql "github.com/go-sql-driver/mysql"
)

type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const (
	errDupEntry        = 1062
	errNoReferencedRow = 1452
	errLockWaitTimeout = 1205
	errDeadlock        = 1213

	maxTxAttempts = 3
)

// Txを開始して fn を実行。fn が nil を返せば COMMIT、エラーなら ROLLBACK。
// デッドロック・ロック待ちタイムアウトは fn ごとやり直す。
func RunInTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = runOnce(ctx, db, opts, fn)
		if err == nil || !IsRetryable(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt*attempt) * 20 * time.Millisecond):
		}
	}
	return err
}

func runOnce(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) error {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// 読み取り専用Tx
func ReadOnly(ctx context.Context, db *sql.DB, fn func(ctx context.Context, tx DBTX) error) error {
	return RunInTx(ctx, db, &sql.TxOptions{ReadOnly: true}, fn)
}

func mysqlNumber(err error) uint16 {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number
	}
	return 0
}

func IsRetryable(err error) bool {
	n := mysqlNumber(err)
	return n == errDeadlock || n == errLockWaitTimeout
}

func IsDuplicateKey(err error) bool { return mysqlNumber(err) == errDupEntry }

func IsForeignKeyViolation(err error) bool { return mysqlNumber(err) == errNoReferencedRow }

// TxFunc は Queries 型 Q を Tx に束ねて fn を実行する
type TxFunc[Q any] func(ctx context.Context, fn func(ctx context.Context, q Q) error) error

// Binder: RunInTx の中で bind(tx) を渡す TxFunc を作る
func Binder[Q any](conn *sql.DB, bind func(DBTX) Q) TxFunc[Q] {
	return func(ctx context.Context, fn func(ctx context.Context, q Q) error) error {
		return RunInTx(ctx, conn, nil, func(ctx context.Context, tx DBTX) error {
			return fn(ctx, bind(tx))
		})
	}
}
