package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
	RoleUser  = "user"
)

var (
	ErrAlreadyExists = errors.New("already exists")
	ErrNotFound      = errors.New("not found")
	ErrAuthFailed    = errors.New("authentication failed")
	ErrInvalidRole   = errors.New("invalid role")
)

type Service struct {
	store  AccountStore
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewService(db *sql.DB, secret []byte, ttl time.Duration) *Service {
	return NewServiceWithStore(NewStore(db), secret, ttl)
}

func NewServiceWithStore(store AccountStore, secret []byte, ttl time.Duration) *Service {
	return &Service{store: store, secret: secret, ttl: ttl, now: time.Now}
}

type AuthService interface {
	Login(ctx context.Context, id, password string) (string, error)
	Register(ctx context.Context, id, displayName, password, role string) error
	Disable(ctx context.Context, id string) error
	ChangeDisplayName(ctx context.Context, id, name string) error
}

func (s *Service) Login(ctx context.Context, id, password string) (string, error) {
	acct, err := s.store.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if acct == nil || acct.IsDisabled {
		return "", ErrAuthFailed
	}

	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return "", ErrAuthFailed
	}

	return IssueToken(s.secret, acct.ID, acct.DisplayName, acct.Role, s.now().Add(s.ttl))
}

// IssueToken は HS256 のアクセストークンを発行する
func IssueToken(secret []byte, sub, name, role string, exp time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  sub,
		"name": name,
		"role": role,
		"exp":  exp.Unix(),
	})
	return token.SignedString(secret)
}

func validRole(role string) bool {
	return role == RoleAdmin || role == RoleStaff || role == RoleUser
}

func (s *Service) Register(ctx context.Context, id, displayName, password, role string) error {
	if !validRole(role) {
		return ErrInvalidRole
	}
	exists, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if exists != nil {
		return ErrAlreadyExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	name := strings.TrimSpace(displayName)
	if name == "" {
		name = id
	}
	return s.store.Create(ctx, &Account{
		ID:           id,
		DisplayName:  name,
		PasswordHash: string(hash),
		Role:         role,
	})
}

func (s *Service) Disable(ctx context.Context, id string) error {
	n, err := s.store.Disable(ctx, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Service) ChangeDisplayName(ctx context.Context, id, name string) error {
	acct, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if acct == nil {
		return ErrNotFound
	}
	if _, err := s.store.UpdateDisplayName(ctx, id, strings.TrimSpace(name)); err != nil {
		return err
	}
	return nil
}
