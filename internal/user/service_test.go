package user

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/examportal/internal/apperr"
	"github.com/mind-engage/examportal/internal/db/dbtest"
	"github.com/mind-engage/examportal/internal/rbac"
)

func newTestService(t *testing.T) (*Service, *SQLStore) {
	t.Helper()
	store := NewSQLStore(dbtest.Open(t))
	clock := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	svc := NewService(store, "Admin@School.edu",
		WithBcryptCost(bcrypt.MinCost),
		WithClock(func() time.Time { return clock }))
	return svc, store
}

func TestRegisterAssignsRoles(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	admin, err := svc.Register(ctx, RegisterInput{Name: "Root", Email: "admin@school.edu", Password: "password1"})
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleAdmin, admin.Role)

	stu, err := svc.Register(ctx, RegisterInput{Name: "Ada", Email: " Ada@School.edu ", Password: "password1", EnrollmentNumber: "E-1"})
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleStudent, stu.Role)
	assert.Equal(t, "ada@school.edu", stu.Email)
	assert.NotEqual(t, "password1", stu.PasswordHash)

	role, err := store.RoleOf(ctx, stu.ID)
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleStudent, role)

	n, err := svc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRegisterRejectsDuplicatesAndBadInput(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{Name: "Ada", Email: "ada@school.edu", Password: "password1", EnrollmentNumber: "E-1"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, RegisterInput{Name: "Ada2", Email: "ADA@school.edu", Password: "password1"})
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	_, err = svc.Register(ctx, RegisterInput{Name: "Bob", Email: "bob@school.edu", Password: "password1", EnrollmentNumber: "E-1"})
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	_, err = svc.Register(ctx, RegisterInput{Name: "Cy", Email: "cy@school.edu", Password: "short"})
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = svc.Register(ctx, RegisterInput{Name: "Di", Email: "not-an-email", Password: "password1"})
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestAuthenticate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, RegisterInput{Name: "Ada", Email: "ada@school.edu", Password: "password1"})
	require.NoError(t, err)

	u, err := svc.Authenticate(ctx, LoginInput{Email: "ADA@school.edu", Password: "password1"})
	require.NoError(t, err)
	require.NotNil(t, u.LastLoginAt)

	got, err := svc.Get(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastLoginAt)
	assert.True(t, got.LastLoginAt.Equal(*u.LastLoginAt))

	_, err = svc.Authenticate(ctx, LoginInput{Email: "ada@school.edu", Password: "password2"})
	assert.True(t, errors.Is(err, apperr.ErrUnauthenticated))

	_, errUnknown := svc.Authenticate(ctx, LoginInput{Email: "ghost@school.edu", Password: "password1"})
	assert.True(t, errors.Is(errUnknown, apperr.ErrUnauthenticated))
	assert.Equal(t, err.Error(), errUnknown.Error())
}

func TestChangePassword(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	u, err := svc.Register(ctx, RegisterInput{Name: "Ada", Email: "ada@school.edu", Password: "password1"})
	require.NoError(t, err)

	err = svc.ChangePassword(ctx, u.ID, ChangePasswordInput{CurrentPassword: "wrong-one", NewPassword: "password2"})
	assert.True(t, errors.Is(err, apperr.ErrUnauthenticated))

	require.NoError(t, svc.ChangePassword(ctx, u.ID, ChangePasswordInput{CurrentPassword: "password1", NewPassword: "password2"}))

	_, err = svc.Authenticate(ctx, LoginInput{Email: "ada@school.edu", Password: "password2"})
	assert.NoError(t, err)
}

func TestListFiltersByRole(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	for _, email := range []string{"admin@school.edu", "a@school.edu", "b@school.edu"} {
		_, err := svc.Register(ctx, RegisterInput{Name: "Person", Email: email, Password: "password1"})
		require.NoError(t, err)
	}
	students, err := svc.List(ctx, rbac.RoleStudent)
	require.NoError(t, err)
	assert.Len(t, students, 2)

	all, err := svc.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = svc.List(ctx, "teacher")
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}
