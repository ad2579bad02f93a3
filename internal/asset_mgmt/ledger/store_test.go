package ledger

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CAMPUS-backend/internal/asset_mgmt/inventory"
)

const (
	selectStats = `SELECT total, available, borrowed, maintenance FROM inventory_stats WHERE stat_key = \? FOR UPDATE`
	insertStats = `INSERT INTO inventory_stats`
	updateStats = `UPDATE inventory_stats SET total = \?, available = \?, borrowed = \?, maintenance = \? WHERE stat_key = \?`
)

var statCols = []string{"total", "available", "borrowed", "maintenance"}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = conn.Close()
	})
	return conn, mock
}

func TestStore_IncrementCreatesMissingRow(t *testing.T) {
	conn, mock := newMock(t)
	mock.ExpectQuery(selectStats).WithArgs(statKey).WillReturnRows(sqlmock.NewRows(statCols))
	mock.ExpectExec(insertStats).
		WithArgs(statKey, int64(0), int64(1), int64(0), int64(0)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, NewStore(conn).IncrementStat(context.Background(), FieldAvailable))
}

func TestStore_MissingRowKeepsIncrementsOnly(t *testing.T) {
	conn, mock := newMock(t)
	mock.ExpectQuery(selectStats).WithArgs(statKey).WillReturnRows(sqlmock.NewRows(statCols))
	mock.ExpectExec(insertStats).
		WithArgs(statKey, int64(1), int64(0), int64(0), int64(1)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	d := Delta{Total: 1, Available: -1, Maintenance: 1}
	require.NoError(t, NewStore(conn).Apply(context.Background(), d))
}

func TestStore_DecrementOnMissingRowWritesNothing(t *testing.T) {
	conn, mock := newMock(t)
	mock.ExpectQuery(selectStats).WithArgs(statKey).WillReturnRows(sqlmock.NewRows(statCols))

	// 想定外の Exec があれば sqlmock がエラーを返す
	require.NoError(t, NewStore(conn).DecrementStat(context.Background(), FieldBorrowed))
}

func TestStore_DecrementClampsAtZero(t *testing.T) {
	conn, mock := newMock(t)
	mock.ExpectQuery(selectStats).WithArgs(statKey).
		WillReturnRows(sqlmock.NewRows(statCols).AddRow(int64(2), int64(2), int64(0), int64(0)))
	mock.ExpectExec(updateStats).
		WithArgs(int64(2), int64(2), int64(0), int64(0), statKey).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewStore(conn).DecrementStat(context.Background(), FieldBorrowed))
}

func TestStore_ReconcileStatusChangeIsOneUpdate(t *testing.T) {
	conn, mock := newMock(t)
	mock.ExpectQuery(selectStats).WithArgs(statKey).
		WillReturnRows(sqlmock.NewRows(statCols).AddRow(int64(5), int64(3), int64(1), int64(1)))
	mock.ExpectExec(updateStats).
		WithArgs(int64(5), int64(2), int64(1), int64(2), statKey).
		WillReturnResult(sqlmock.NewResult(0, 1))

	st := NewStore(conn)
	require.NoError(t, st.ReconcileStatusChange(context.Background(), inventory.StatusAvailable, inventory.StatusMaintenance))

	// 同じ状態なら SQL を出さない
	require.NoError(t, st.ReconcileStatusChange(context.Background(), inventory.StatusBorrowed, inventory.StatusBorrowed))
}

func TestSQLSource_RecountLocksProductsFirst(t *testing.T) {
	conn, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT kind, status, quantity, borrowed_count FROM products`).
		WillReturnRows(sqlmock.NewRows([]string{"kind", "status", "quantity", "borrowed_count"}).
			AddRow("unique", "available", 1, 0).
			AddRow("unique", "borrowed", 1, 0).
			AddRow("bulk", "available", 10, 3))
	mock.ExpectQuery(selectStats).WithArgs(statKey).
		WillReturnRows(sqlmock.NewRows(statCols).AddRow(int64(3), int64(1), int64(3), int64(0)))
	mock.ExpectExec(insertStats).
		WithArgs(statKey, int64(3), int64(2), int64(2), int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	before, after, err := sqlSource{db: conn}.Recount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 3, Available: 1, Borrowed: 3}, before)
	assert.Equal(t, Stats{Total: 3, Available: 2, Borrowed: 2}, after)
}

func TestSQLSource_ReadRunsInTx(t *testing.T) {
	conn, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT total, available, borrowed, maintenance FROM inventory_stats`).WithArgs(statKey).
		WillReturnRows(sqlmock.NewRows(statCols).AddRow(int64(4), int64(3), int64(1), int64(0)))
	mock.ExpectCommit()

	st, err := sqlSource{db: conn}.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 4, Available: 3, Borrowed: 1}, st)
}
