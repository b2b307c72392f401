package auth

import (
	"context"
	"database/sql"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := NewStore(db, "sqlite")
	require.NoError(t, err)

	tokens, err := NewTokenIssuer("test-secret", time.Hour)
	require.NoError(t, err)

	return NewService(store, NewHasher(4), tokens, slog.Default())
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	user, err := svc.Register(ctx, "alicewalker", "alicewalker@example.com", "s3cretpass")
	require.NoError(t, err)
	assert.False(t, user.IsActive)

	groups, err := svc.Store().UserGroups(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, DefaultGroupID, groups[0].ID)

	// Inactive accounts cannot log in.
	result, err := svc.Login(ctx, "alicewalker", "s3cretpass")
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Equal(t, ReasonUserInactive, result.Reason)

	require.NoError(t, svc.Store().SetUserActive(ctx, user.ID, true))

	result, err = svc.Login(ctx, "alicewalker", "s3cretpass")
	require.NoError(t, err)
	require.True(t, result.OK)
	assert.NotEmpty(t, result.Token)
	assert.Len(t, result.SessionID, 64)
	assert.False(t, result.IsAdmin)

	claims, err := svc.ValidateToken(result.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, "alicewalker", claims.Username)
	assert.False(t, claims.IsAdmin)
}

func TestLoginRejections(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	result, err := svc.Login(ctx, "nobody", "password9")
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Equal(t, ReasonUserNotFound, result.Reason)

	user, err := svc.Register(ctx, "bobmarshall", "bobmarshall@example.com", "rightpassword")
	require.NoError(t, err)
	require.NoError(t, svc.Store().SetUserActive(ctx, user.ID, true))

	result, err = svc.Login(ctx, "bobmarshall", "wrong")
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Equal(t, ReasonInvalidPassword, result.Reason)
}

func TestLoginReplacesPriorSession(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	user, err := svc.Register(ctx, "carolvance", "carolvance@example.com", "password9")
	require.NoError(t, err)
	require.NoError(t, svc.Store().SetUserActive(ctx, user.ID, true))

	first, err := svc.Login(ctx, "carolvance", "password9")
	require.NoError(t, err)
	second, err := svc.Login(ctx, "carolvance", "password9")
	require.NoError(t, err)
	require.NotEqual(t, first.SessionID, second.SessionID)

	ok, err := svc.CheckSession(ctx, first.SessionID)
	require.NoError(t, err)
	assert.False(t, ok, "prior session should be deactivated")

	ok, err = svc.CheckSession(ctx, second.SessionID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLogoutAndCheckSession(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	user, err := svc.Register(ctx, "davidjones", "davidjones@example.com", "password9")
	require.NoError(t, err)
	require.NoError(t, svc.Store().SetUserActive(ctx, user.ID, true))

	result, err := svc.Login(ctx, "davidjones", "password9")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, result.SessionID))

	ok, err := svc.CheckSession(ctx, result.SessionID)
	require.NoError(t, err)
	assert.False(t, ok)

	// Logout is idempotent.
	require.NoError(t, svc.Logout(ctx, result.SessionID))

	ok, err = svc.CheckSession(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegisterRejectsShortCredentials(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	// Eight characters is one short of the minimum.
	_, err := svc.Register(ctx, "eightchr", "eightchr@example.com", "longenough")
	assert.ErrorIs(t, err, ErrUsernameTooShort)

	_, err = svc.Register(ctx, "longenough", "longenough@example.com", "eightchr")
	assert.ErrorIs(t, err, ErrPasswordTooShort)

	// Exactly nine characters passes.
	user, err := svc.Register(ctx, "ninechars", "ninechars@example.com", "ninechars")
	require.NoError(t, err)
	assert.Equal(t, "ninechars", user.Username)
}

func TestRegisterDuplicate(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	_, err := svc.Register(ctx, "erincaldwell", "erincaldwell@example.com", "password9")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "erincaldwell", "other@example.com", "password9")
	assert.ErrorIs(t, err, ErrUserExists)

	_, err = svc.Register(ctx, "otherperson", "erincaldwell@example.com", "password9")
	assert.ErrorIs(t, err, ErrUserExists)
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	user, err := svc.Register(ctx, "franklinroy", "franklinroy@example.com", "oldpassword")
	require.NoError(t, err)
	require.NoError(t, svc.Store().SetUserActive(ctx, user.ID, true))

	err = svc.ChangePassword(ctx, user.ID, "wrong", "newpassword")
	assert.Error(t, err)

	require.NoError(t, svc.ChangePassword(ctx, user.ID, "oldpassword", "newpassword"))

	result, err := svc.Login(ctx, "franklinroy", "newpassword")
	require.NoError(t, err)
	assert.True(t, result.OK)
}

func TestPasswordReset(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	user, err := svc.Register(ctx, "gracehopper", "gracehopper@example.com", "oldpassword")
	require.NoError(t, err)
	require.NoError(t, svc.Store().SetUserActive(ctx, user.ID, true))

	token, err := svc.RequestPasswordReset(ctx, "gracehopper")
	require.NoError(t, err)

	require.NoError(t, svc.ResetPassword(ctx, token, "newpassword"))

	result, err := svc.Login(ctx, "gracehopper", "newpassword")
	require.NoError(t, err)
	assert.True(t, result.OK)

	// Tokens are single use.
	err = svc.ResetPassword(ctx, token, "again")
	assert.ErrorIs(t, err, ErrResetTokenInvalid)
}

func TestAdminMembership(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	user, err := svc.Register(ctx, "rootadmin", "rootadmin@example.com", "password9")
	require.NoError(t, err)
	require.NoError(t, svc.Store().SetUserActive(ctx, user.ID, true))
	require.NoError(t, svc.Store().AddUserToGroup(ctx, user.ID, AdminGroupID))

	isAdmin, err := svc.IsAdmin(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, isAdmin)

	result, err := svc.Login(ctx, "rootadmin", "password9")
	require.NoError(t, err)
	require.True(t, result.OK)
	assert.True(t, result.IsAdmin)

	claims, err := svc.ValidateToken(result.Token)
	require.NoError(t, err)
	assert.True(t, claims.IsAdmin)
}

func TestGroupLifecycle(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	store := svc.Store()

	id, err := store.CreateGroup(ctx, "research", "research department")
	require.NoError(t, err)
	assert.Equal(t, "GRP000003", id, "ids continue after the seeded groups")

	_, err = store.CreateGroup(ctx, "research", "dup")
	assert.ErrorIs(t, err, ErrGroupExists)

	groups, err := store.ListGroups(ctx)
	require.NoError(t, err)
	assert.Len(t, groups, 3)

	assert.Error(t, store.DeleteGroup(ctx, AdminGroupID))
	require.NoError(t, store.DeleteGroup(ctx, id))

	assert.ErrorIs(t, store.DeleteGroup(ctx, id), ErrGroupNotFound)
}

func TestTokenValidation(t *testing.T) {
	tokens, err := NewTokenIssuer("secret-a", time.Hour)
	require.NoError(t, err)

	signed, exp, err := tokens.Issue(&Claims{UserID: 7, Username: "u", IsAdmin: true})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, time.Minute)

	claims, err := tokens.Validate(signed)
	require.NoError(t, err)
	assert.Equal(t, 7, claims.UserID)

	other, err := NewTokenIssuer("secret-b", time.Hour)
	require.NoError(t, err)
	_, err = other.Validate(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)

	short, err := NewTokenIssuer("secret-a", time.Nanosecond)
	require.NoError(t, err)
	expired, _, err := short.Issue(&Claims{UserID: 7, Username: "u"})
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	_, err = short.Validate(expired)
	assert.ErrorIs(t, err, ErrTokenExpired)
}
