package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserService_CreateAndGet(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	u, err := e.users.Create(ctx, "Root", " Root@Example.com ", "admin password", models.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, "root@example.com", u.Email)
	assert.Equal(t, models.RoleAdmin, u.Role)

	got, err := e.users.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	s, err := e.auth.Login(ctx, "root@example.com", "admin password")
	require.NoError(t, err)
	claims, err := e.auth.ParseAccessToken(s.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, claims.Role)

	_, err = e.users.Create(ctx, "Other", "ROOT@example.com", "admin password", models.RoleUser)
	assert.ErrorIs(t, err, common.ErrEmailInUse)

	_, err = e.users.Create(ctx, "Other", "x@example.com", "admin password", models.Role("ROOT"))
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestUserService_GetMissing(t *testing.T) {
	e := newEnv(t)
	_, err := e.users.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestUserService_ListPaging(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	for i := range 5 {
		e.register(t, fmt.Sprintf("User %d", i), fmt.Sprintf("user%d@example.com", i), "password")
	}

	page, total, err := e.users.List(ctx, models.UserFilter{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page, 2)
	assert.Equal(t, "User 2", page[0].Name)

	all, _, err := e.users.List(ctx, models.UserFilter{PageSize: 1000})
	require.NoError(t, err)
	assert.Len(t, all, 5)

	found, total, err := e.users.List(ctx, models.UserFilter{Search: "user3"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, found, 1)
	assert.Equal(t, "user3@example.com", found[0].Email)
}

func TestUserService_Update(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	s := e.register(t, "Alice", "alice@example.com", "password")
	e.register(t, "Bob", "bob@example.com", "password")

	name := "Alicia"
	email := "ALICIA@example.com"
	u, err := e.users.Update(ctx, s.User.ID, models.UserUpdate{Name: &name, Email: &email})
	require.NoError(t, err)
	assert.Equal(t, "Alicia", u.Name)
	assert.Equal(t, "alicia@example.com", u.Email)
	assert.NotNil(t, u.UpdatedAt)

	taken := "bob@example.com"
	_, err = e.users.Update(ctx, s.User.ID, models.UserUpdate{Email: &taken})
	assert.ErrorIs(t, err, common.ErrEmailInUse)

	same, err := e.users.Update(ctx, s.User.ID, models.UserUpdate{})
	require.NoError(t, err)
	assert.Equal(t, "Alicia", same.Name)
}

func TestUserService_ChangePassword(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	s := e.register(t, "Alice", "alice@example.com", "old password")

	err := e.users.ChangePassword(ctx, s.User.ID, "wrong", "new password")
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)

	require.NoError(t, e.users.ChangePassword(ctx, s.User.ID, "old password", "new password"))

	_, err = e.auth.Login(ctx, "alice@example.com", "new password")
	assert.NoError(t, err)
}

func TestUserService_SoftDelete(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	s := e.register(t, "Alice", "alice@example.com", "password")

	require.NoError(t, e.users.SoftDelete(ctx, s.User.ID))

	u, err := e.users.Get(ctx, s.User.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDeleted, u.Status)

	_, err = e.auth.Refresh(ctx, s.RefreshToken)
	assert.ErrorIs(t, err, common.ErrInvalidRefreshToken)

	assert.ErrorIs(t, e.users.SoftDelete(ctx, "missing"), common.ErrorNotFound)
}
