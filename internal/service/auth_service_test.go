package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/pbl-teams-api/internal/models"
	appErrors "github.com/noah-isme/pbl-teams-api/pkg/errors"
)

type fakeGoogleVerifier struct {
	identity *GoogleIdentity
	err      error
}

func (f *fakeGoogleVerifier) Verify(ctx context.Context, idToken string) (*GoogleIdentity, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.identity, nil
}

func authConfig() AuthConfig {
	return AuthConfig{TokenSecret: "test-secret", TokenExpiry: time.Hour, Issuer: "pbl-teams-api"}
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestLoginSuccess(t *testing.T) {
	users := &mockUserRepo{}
	users.put(&models.User{
		ID: uuid.NewString(), Email: "admin@pbl.local", FullName: "Admin",
		Role: models.RoleAdmin, PasswordHash: hashPassword(t, "secret-pass"),
	})
	svc := NewAuthService(users, nil, nil, zap.NewNop(), authConfig())

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "admin@pbl.local", Password: "secret-pass"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, models.RoleAdmin, resp.User.Role)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "admin@pbl.local", claims.Email)
	assert.Equal(t, models.RoleAdmin, claims.Role)
}

func TestLoginInvalidCredentials(t *testing.T) {
	users := &mockUserRepo{}
	users.put(&models.User{
		ID: uuid.NewString(), Email: "admin@pbl.local",
		Role: models.RoleAdmin, PasswordHash: hashPassword(t, "right"),
	})
	svc := NewAuthService(users, nil, nil, zap.NewNop(), authConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "admin@pbl.local", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "nobody@pbl.local", Password: "x"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestLoginRejectsStudents(t *testing.T) {
	users := &mockUserRepo{}
	users.put(&models.User{ID: uuid.NewString(), Email: "kid@x.com", Role: models.RoleStudent})
	svc := NewAuthService(users, nil, nil, zap.NewNop(), authConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "kid@x.com", Password: "whatever"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestLoginUnprovisionedTeacher(t *testing.T) {
	users := &mockUserRepo{}
	users.put(&models.User{ID: uuid.NewString(), Email: "prof@x.com", Role: models.RoleTeacher})
	svc := NewAuthService(users, nil, nil, zap.NewNop(), authConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "prof@x.com", Password: "whatever"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestGoogleLoginCreatesStudent(t *testing.T) {
	users := &mockUserRepo{}
	verifier := &fakeGoogleVerifier{identity: &GoogleIdentity{
		Email: "Kid@X.com", Name: "A Kid", EmailVerified: true,
	}}
	svc := NewAuthService(users, verifier, nil, zap.NewNop(), authConfig())

	resp, err := svc.GoogleLogin(context.Background(), models.GoogleLoginRequest{IDToken: "token"})
	require.NoError(t, err)
	assert.Equal(t, "kid@x.com", resp.User.Email)
	assert.Equal(t, models.RoleStudent, resp.User.Role)
	require.Contains(t, users.usersByEmail, "kid@x.com")
	assert.Equal(t, "A Kid", users.usersByEmail["kid@x.com"].FullName)
}

func TestGoogleLoginRoleMismatch(t *testing.T) {
	users := &mockUserRepo{}
	users.put(&models.User{ID: uuid.NewString(), Email: "prof@x.com", Role: models.RoleTeacher})
	verifier := &fakeGoogleVerifier{identity: &GoogleIdentity{Email: "prof@x.com", EmailVerified: true}}
	svc := NewAuthService(users, verifier, nil, zap.NewNop(), authConfig())

	_, err := svc.GoogleLogin(context.Background(), models.GoogleLoginRequest{IDToken: "token"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	// The teacher account is untouched.
	assert.Equal(t, models.RoleTeacher, users.usersByEmail["prof@x.com"].Role)
}

func TestGoogleLoginRejectsBadTokens(t *testing.T) {
	users := &mockUserRepo{}
	svc := NewAuthService(users, &fakeGoogleVerifier{err: errors.New("boom")}, nil, zap.NewNop(), authConfig())

	_, err := svc.GoogleLogin(context.Background(), models.GoogleLoginRequest{IDToken: "token"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)

	svc = NewAuthService(users, &fakeGoogleVerifier{identity: &GoogleIdentity{Email: "kid@x.com"}}, nil, zap.NewNop(), authConfig())
	_, err = svc.GoogleLogin(context.Background(), models.GoogleLoginRequest{IDToken: "token"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestGoogleLoginUnconfigured(t *testing.T) {
	svc := NewAuthService(&mockUserRepo{}, nil, nil, zap.NewNop(), authConfig())
	_, err := svc.GoogleLogin(context.Background(), models.GoogleLoginRequest{IDToken: "token"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestValidateTokenRejectsTampering(t *testing.T) {
	svc := NewAuthService(&mockUserRepo{}, nil, nil, zap.NewNop(), authConfig())
	_, err := svc.ValidateToken("not-a-token")
	require.Error(t, err)

	other := NewAuthService(&mockUserRepo{}, nil, nil, zap.NewNop(), AuthConfig{TokenSecret: "other", TokenExpiry: time.Hour})
	users := &mockUserRepo{}
	users.put(&models.User{ID: uuid.NewString(), Email: "admin@pbl.local", Role: models.RoleAdmin, PasswordHash: hashPassword(t, "p")})
	issuer := NewAuthService(users, nil, nil, zap.NewNop(), authConfig())
	resp, err := issuer.Login(context.Background(), models.LoginRequest{Email: "admin@pbl.local", Password: "p"})
	require.NoError(t, err)

	_, err = other.ValidateToken(resp.AccessToken)
	require.Error(t, err)
}

func TestChangePassword(t *testing.T) {
	users := &mockUserRepo{}
	id := uuid.NewString()
	users.put(&models.User{ID: id, Email: "prof@x.com", Role: models.RoleTeacher, PasswordHash: hashPassword(t, "old-pass")})
	svc := NewAuthService(users, nil, nil, zap.NewNop(), authConfig())

	err := svc.ChangePassword(context.Background(), id, ChangePasswordRequest{CurrentPassword: "wrong", NewPassword: "new-pass-123"})
	require.Error(t, err)

	err = svc.ChangePassword(context.Background(), id, ChangePasswordRequest{CurrentPassword: "old-pass", NewPassword: "new-pass-123"})
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "prof@x.com", Password: "new-pass-123"})
	require.NoError(t, err)
}
