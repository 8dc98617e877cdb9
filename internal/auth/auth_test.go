package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaxsched/vaccine-scheduler/internal/auth"
	"github.com/vaxsched/vaccine-scheduler/internal/memstore"
	"github.com/vaxsched/vaccine-scheduler/internal/scheduler"
)

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	repo := memstore.NewAccounts()
	svc := auth.NewService(repo)

	require.NoError(t, svc.Register(ctx, scheduler.RolePatient, "pat", "hunter2"))

	sess, err := svc.Login(ctx, scheduler.RolePatient, "pat", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, scheduler.RolePatient, sess.Role)
	assert.Equal(t, "pat", sess.Username)
	assert.True(t, sess.LoggedIn())
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	ctx := context.Background()
	svc := auth.NewService(memstore.NewAccounts())

	require.NoError(t, svc.Register(ctx, scheduler.RolePatient, "pat", "hunter2"))

	_, err := svc.Login(ctx, scheduler.RolePatient, "pat", "wrong")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = svc.Login(ctx, scheduler.RolePatient, "nobody", "hunter2")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	// Registered as patient, not caregiver; role namespaces are disjoint.
	_, err = svc.Login(ctx, scheduler.RoleCaregiver, "pat", "hunter2")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestUsernamesUniquePerRole(t *testing.T) {
	ctx := context.Background()
	svc := auth.NewService(memstore.NewAccounts())

	require.NoError(t, svc.Register(ctx, scheduler.RolePatient, "sam", "pw1"))

	err := svc.Register(ctx, scheduler.RolePatient, "sam", "pw2")
	assert.ErrorIs(t, err, auth.ErrUsernameTaken)

	// The same username may exist once per role.
	require.NoError(t, svc.Register(ctx, scheduler.RoleCaregiver, "sam", "pw3"))

	sess, err := svc.Login(ctx, scheduler.RoleCaregiver, "sam", "pw3")
	require.NoError(t, err)
	assert.Equal(t, scheduler.RoleCaregiver, sess.Role)
}

func TestHashesAreSalted(t *testing.T) {
	ctx := context.Background()
	repo := memstore.NewAccounts()
	svc := auth.NewService(repo)

	require.NoError(t, svc.Register(ctx, scheduler.RolePatient, "a", "same-password"))
	require.NoError(t, svc.Register(ctx, scheduler.RolePatient, "b", "same-password"))

	first, err := repo.Find(ctx, scheduler.RolePatient, "a")
	require.NoError(t, err)
	second, err := repo.Find(ctx, scheduler.RolePatient, "b")
	require.NoError(t, err)

	assert.NotEqual(t, first.Salt, second.Salt)
	assert.NotEqual(t, first.Hash, second.Hash)
}
