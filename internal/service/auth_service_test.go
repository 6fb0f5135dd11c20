package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/batch-admin-api/internal/models"
	appErrors "github.com/noah-isme/batch-admin-api/pkg/errors"
)

type mockAuthRepo struct {
	userByEmail      *models.User
	findByEmailErr   error
	created          []*models.User
	lastLoginUpdated bool
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.findByEmailErr != nil {
		return nil, m.findByEmailErr
	}
	if m.userByEmail == nil {
		return nil, sql.ErrNoRows
	}
	return m.userByEmail, nil
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if m.userByEmail != nil && m.userByEmail.ID == id {
		return m.userByEmail, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLoginUpdated = true
	return nil
}

func (m *mockAuthRepo) Create(ctx context.Context, user *models.User) error {
	user.ID = "user-new"
	m.created = append(m.created, user)
	return nil
}

func newAuthUser(t *testing.T, password string, active bool) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return &models.User{ID: "user-1", Email: "lead@example.com", PasswordHash: string(hash), FullName: "Lead", Role: models.RoleCoordinator, Active: active}
}

func newTestAuthService(repo *mockAuthRepo) *AuthService {
	return NewAuthService(repo, nil, zap.NewNop(), AuthConfig{AccessTokenSecret: "secret", AccessTokenExpiry: time.Hour, Issuer: "test"})
}

func TestAuthServiceLoginIssuesValidToken(t *testing.T) {
	repo := &mockAuthRepo{userByEmail: newAuthUser(t, "password123", true)}
	svc := newTestAuthService(repo)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "lead@example.com", Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Equal(t, models.RoleCoordinator, resp.User.Role)
	assert.True(t, repo.lastLoginUpdated)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "lead@example.com", claims.Actor())
}

func TestAuthServiceLoginFailures(t *testing.T) {
	ctx := context.Background()

	svc := newTestAuthService(&mockAuthRepo{userByEmail: newAuthUser(t, "password123", true)})
	_, err := svc.Login(ctx, models.LoginRequest{Email: "lead@example.com", Password: "wrong"})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidCredentials))

	_, err = svc.Login(ctx, models.LoginRequest{Email: "not-an-email", Password: "x"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	svc = newTestAuthService(&mockAuthRepo{})
	_, err = svc.Login(ctx, models.LoginRequest{Email: "ghost@example.com", Password: "password123"})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidCredentials))

	svc = newTestAuthService(&mockAuthRepo{userByEmail: newAuthUser(t, "password123", false)})
	_, err = svc.Login(ctx, models.LoginRequest{Email: "lead@example.com", Password: "password123"})
	assert.True(t, errors.Is(err, appErrors.ErrInactiveAccount))

	svc = newTestAuthService(&mockAuthRepo{findByEmailErr: errors.New("db down")})
	_, err = svc.Login(ctx, models.LoginRequest{Email: "lead@example.com", Password: "password123"})
	assert.True(t, errors.Is(err, appErrors.ErrInternal))
}

func TestAuthServiceValidateTokenRejectsForeignSecret(t *testing.T) {
	repo := &mockAuthRepo{userByEmail: newAuthUser(t, "password123", true)}
	issuer := NewAuthService(repo, nil, nil, AuthConfig{AccessTokenSecret: "other", AccessTokenExpiry: time.Hour})
	resp, err := issuer.Login(context.Background(), models.LoginRequest{Email: "lead@example.com", Password: "password123"})
	require.NoError(t, err)

	_, err = newTestAuthService(repo).ValidateToken(resp.AccessToken)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}

func TestAuthServiceSeedUserHashesPassword(t *testing.T) {
	repo := &mockAuthRepo{}
	svc := newTestAuthService(repo)

	user, err := svc.SeedUser(context.Background(), SeedUserRequest{Email: " Admin@Example.com ", Password: "longenough", FullName: "Admin", Role: "admin"})
	require.NoError(t, err)
	assert.Equal(t, "admin@example.com", user.Email)
	assert.Equal(t, models.RoleAdmin, user.Role)
	assert.True(t, user.Active)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("longenough")))

	_, err = svc.SeedUser(context.Background(), SeedUserRequest{Email: "x@example.com", Password: "short", FullName: "X", Role: models.RoleTrainer})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestAuthServiceMe(t *testing.T) {
	svc := newTestAuthService(&mockAuthRepo{userByEmail: newAuthUser(t, "password123", true)})
	info, err := svc.Me(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Lead", info.FullName)

	_, err = svc.Me(context.Background(), "nobody")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}
