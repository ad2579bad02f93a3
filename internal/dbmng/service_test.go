package dbmng

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	mysql "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CAMPUS-backend/internal/platform/apierr"
)

type memCategories struct {
	rows     map[uint]Category
	next     uint
	products map[uint]int64
}

func newMem() *memCategories {
	return &memCategories{rows: map[uint]Category{}, products: map[uint]int64{}}
}

func (m *memCategories) ListCategories(_ context.Context, all bool) ([]Category, error) {
	out := []Category{}
	for id := uint(1); id <= m.next; id++ {
		c, ok := m.rows[id]
		if ok && (all || !c.IsDisabled) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memCategories) GetCategory(_ context.Context, id uint) (*Category, error) {
	c, ok := m.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &c, nil
}

func (m *memCategories) dup(code string, except uint) bool {
	for id, c := range m.rows {
		if c.Code == code && id != except {
			return true
		}
	}
	return false
}

func (m *memCategories) CreateCategory(_ context.Context, name, code string) (*Category, error) {
	if m.dup(code, 0) {
		return nil, &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}
	}
	m.next++
	c := Category{ID: m.next, Name: name, Code: code}
	m.rows[c.ID] = c
	return &c, nil
}

func (m *memCategories) UpdateCategory(_ context.Context, c Category) error {
	if _, ok := m.rows[c.ID]; !ok {
		return sql.ErrNoRows
	}
	if m.dup(c.Code, c.ID) {
		return &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}
	}
	m.rows[c.ID] = c
	return nil
}

func (m *memCategories) DisableCategory(_ context.Context, id uint) error {
	c, ok := m.rows[id]
	if !ok {
		return sql.ErrNoRows
	}
	c.IsDisabled = true
	m.rows[id] = c
	return nil
}

func (m *memCategories) CountProducts(_ context.Context, id uint) (int64, error) {
	return m.products[id], nil
}

func TestCreateCategory_NormalisesCode(t *testing.T) {
	svc := &Service{q: newMem()}
	c, err := svc.CreateCategory(context.Background(), " Computers ", " com ")
	require.NoError(t, err)
	assert.Equal(t, "COM", c.Code)
	assert.Equal(t, "Computers", c.Name)

	_, err = svc.CreateCategory(context.Background(), "Again", "Com")
	assert.True(t, apierr.Is(err, apierr.CodeConflict))

	for _, bad := range []string{"C", "COMPUT", "C0M", "ก"} {
		_, err = svc.CreateCategory(context.Background(), "x", bad)
		assert.True(t, apierr.Is(err, apierr.CodeInvalidArgument), bad)
	}
}

func TestUpdateCategory_CodeLockedOnceUsed(t *testing.T) {
	mem := newMem()
	svc := &Service{q: mem}
	c, err := svc.CreateCategory(context.Background(), "Sports", "SPT")
	require.NoError(t, err)
	mem.products[c.ID] = 3

	_, err = svc.UpdateCategory(context.Background(), c.ID, "Sports", "SPO", false)
	assert.True(t, apierr.Is(err, apierr.CodeConflict))

	got, err := svc.UpdateCategory(context.Background(), c.ID, "Sport gear", "spt", true)
	require.NoError(t, err)
	assert.True(t, got.IsDisabled)
	assert.Equal(t, "SPT", got.Code)

	_, err = svc.UpdateCategory(context.Background(), 99, "x", "XX", false)
	assert.True(t, apierr.Is(err, apierr.CodeNotFound))
}

func TestHandlers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mem := newMem()
	svc := &Service{q: mem}
	r := gin.New()
	RegisterRoutes(r, svc)
	RegisterAdminRoutes(r, svc)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/categories", strings.NewReader(`{"name":"Computers","code":"com"}`)))
	require.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/categories/1", nil))
	require.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/categories", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var active []Category
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &active))
	assert.Empty(t, active)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/categories?all=1", nil))
	var all []Category
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &all))
	require.Len(t, all, 1)
	assert.True(t, all[0].IsDisabled)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/categories/abc", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
