package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/civic-service/internal/domain"
	apperrors "github.com/spec-kit/civic-service/pkg/util"
)

func TestRegisterAndLogin(t *testing.T) {
	f := newFixture(t)
	svc := NewAuthService(testConfig(), f.store.Repos().Users)

	session, err := svc.RegisterCitizen(f.ctx, "Nia", "Nia@Mail.com", "555-0100", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleCitizen, session.User.Role)
	assert.Equal(t, "nia@mail.com", session.User.Email)
	assert.NotEqual(t, "s3cret-pass", session.User.PasswordHash)

	claims, err := svc.TokenManager().ParseToken(session.Token)
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, claims.Subject)

	_, err = svc.RegisterCitizen(f.ctx, "Nia", "nia@mail.com", "", "another-pass")
	requireCode(t, err, apperrors.CodeValidation)

	_, err = svc.RegisterCitizen(f.ctx, "Short", "short@mail.com", "", "123")
	requireCode(t, err, apperrors.CodeValidation)

	login, err := svc.Login(f.ctx, " NIA@mail.com ", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, login.User.ID)

	_, err = svc.Login(f.ctx, "nia@mail.com", "wrong")
	requireCode(t, err, apperrors.CodeUnauthorized)

	_, err = svc.Login(f.ctx, "ghost@mail.com", "s3cret-pass")
	requireCode(t, err, apperrors.CodeUnauthorized)
}

func TestLoginRejectsDeactivatedAccount(t *testing.T) {
	f := newFixture(t)
	svc := NewAuthService(testConfig(), f.store.Repos().Users)

	session, err := svc.RegisterCitizen(f.ctx, "Dee", "dee@mail.com", "", "s3cret-pass")
	require.NoError(t, err)

	users := f.store.Repos().Users
	user, err := users.GetByID(f.ctx, session.User.ID)
	require.NoError(t, err)
	user.IsActive = false
	require.NoError(t, users.Update(f.ctx, user))

	_, err = svc.Login(f.ctx, "dee@mail.com", "s3cret-pass")
	requireCode(t, err, apperrors.CodeUnauthorized)
}
