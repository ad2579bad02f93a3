package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

type memAccounts struct{ byID map[string]*Account }

func (m *memAccounts) GetByID(_ context.Context, id string) (*Account, error) {
	a, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (m *memAccounts) Create(_ context.Context, a *Account) error {
	m.byID[a.ID] = a
	return nil
}

func (m *memAccounts) Disable(_ context.Context, id string) (int64, error) {
	a, ok := m.byID[id]
	if !ok || a.IsDisabled {
		return 0, nil
	}
	a.IsDisabled = true
	return 1, nil
}

func (m *memAccounts) UpdateDisplayName(_ context.Context, id, name string) (int64, error) {
	a, ok := m.byID[id]
	if !ok {
		return 0, nil
	}
	a.DisplayName = name
	return 1, nil
}

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequireAuth(testSecret))
	r.GET("/me", func(c *gin.Context) { c.JSON(http.StatusOK, IdentityFrom(c)) })
	r.GET("/admin", RequireRole(RoleAdmin), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func doGet(r http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireAuth_SetsIdentity(t *testing.T) {
	tok, err := IssueToken(testSecret, "u-1", "Somchai", RoleUser, time.Now().Add(time.Hour))
	require.NoError(t, err)

	w := doGet(newTestRouter(), "/me", tok)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"u-1","name":"Somchai","role":"user"}`, w.Body.String())
}

func TestRequireAuth_Rejects(t *testing.T) {
	r := newTestRouter()

	expired, _ := IssueToken(testSecret, "u-1", "n", RoleUser, time.Now().Add(-time.Minute))
	wrongKey, _ := IssueToken([]byte("other"), "u-1", "n", RoleUser, time.Now().Add(time.Hour))
	hs512 := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{"sub": "u-1", "exp": time.Now().Add(time.Hour).Unix()})
	wrongAlg, _ := hs512.SignedString(testSecret)

	for name, tok := range map[string]string{"none": "", "expired": expired, "wrong key": wrongKey, "wrong alg": wrongAlg} {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, http.StatusUnauthorized, doGet(r, "/me", tok).Code)
		})
	}
}

func TestRequireRole(t *testing.T) {
	r := newTestRouter()
	user, _ := IssueToken(testSecret, "u-1", "n", RoleUser, time.Now().Add(time.Hour))
	admin, _ := IssueToken(testSecret, "u-2", "n", RoleAdmin, time.Now().Add(time.Hour))

	assert.Equal(t, http.StatusForbidden, doGet(r, "/admin", user).Code)
	assert.Equal(t, http.StatusNoContent, doGet(r, "/admin", admin).Code)
}

func TestService_RegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	svc := NewServiceWithStore(&memAccounts{byID: map[string]*Account{}}, testSecret, time.Hour)

	require.NoError(t, svc.Register(ctx, "t-01", "Sato Hanako", "password123", RoleStaff))
	assert.ErrorIs(t, svc.Register(ctx, "t-01", "dup", "password123", RoleStaff), ErrAlreadyExists)
	assert.ErrorIs(t, svc.Register(ctx, "t-02", "x", "password123", "root"), ErrInvalidRole)

	_, err := svc.Login(ctx, "t-01", "wrong")
	assert.ErrorIs(t, err, ErrAuthFailed)

	tok, err := svc.Login(ctx, "t-01", "password123")
	require.NoError(t, err)

	w := doGet(newTestRouter(), "/me", tok)
	assert.JSONEq(t, `{"id":"t-01","name":"Sato Hanako","role":"staff"}`, w.Body.String())

	require.NoError(t, svc.Disable(ctx, "t-01"))
	_, err = svc.Login(ctx, "t-01", "password123")
	assert.ErrorIs(t, err, ErrAuthFailed)
}
