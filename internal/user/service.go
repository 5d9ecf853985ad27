package user

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/examportal/internal/apperr"
	"github.com/mind-engage/examportal/internal/logger"
	"github.com/mind-engage/examportal/internal/rbac"
	"github.com/mind-engage/examportal/internal/validation"
)

// Store is the persistence the identity service needs.
type Store interface {
	Create(ctx context.Context, u User) error
	GetByID(ctx context.Context, id string) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	TouchLogin(ctx context.Context, id string, at time.Time) error
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	List(ctx context.Context, role string) ([]User, error)
	Count(ctx context.Context) (int, error)
}

type Service struct {
	store      Store
	adminEmail string
	cost       int
	now        func() time.Time
}

type Option func(*Service)

func WithBcryptCost(cost int) Option        { return func(s *Service) { s.cost = cost } }
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService builds the identity service. Registrations whose email equals
// adminEmail (case-insensitive) receive the admin role.
func NewService(store Store, adminEmail string, opts ...Option) *Service {
	s := &Service{
		store:      store,
		adminEmail: strings.ToLower(strings.TrimSpace(adminEmail)),
		cost:       DefaultBcryptCost,
		now:        time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

var errBadCredentials = apperr.Unauthenticated("Invalid credentials")

func (s *Service) Register(ctx context.Context, in RegisterInput) (User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Name = strings.TrimSpace(in.Name)
	if err := validation.Struct(in); err != nil {
		return User{}, err
	}
	hash, err := HashPassword(in.Password, s.cost)
	if err != nil {
		return User{}, err
	}
	role := rbac.RoleStudent
	if s.adminEmail != "" && in.Email == s.adminEmail {
		role = rbac.RoleAdmin
	}
	u := User{
		ID:               uuid.NewString(),
		Name:             in.Name,
		Email:            in.Email,
		Role:             role,
		EnrollmentNumber: strings.TrimSpace(in.EnrollmentNumber),
		Department:       strings.TrimSpace(in.Department),
		CreatedAt:        s.now().UTC(),
		PasswordHash:     hash,
	}
	if err := s.store.Create(ctx, u); err != nil {
		return User{}, err
	}
	logger.Info().Str("user_id", u.ID).Str("role", role).Msg("user registered")
	return u, nil
}

// Authenticate checks credentials and records the login time. Unknown email
// and wrong password produce the same error.
func (s *Service) Authenticate(ctx context.Context, in LoginInput) (User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := validation.Struct(in); err != nil {
		return User{}, err
	}
	u, err := s.store.GetByEmail(ctx, in.Email)
	if errors.Is(err, apperr.ErrNotFound) {
		return User{}, errBadCredentials
	}
	if err != nil {
		return User{}, err
	}
	if !CheckPassword(u.PasswordHash, in.Password) {
		return User{}, errBadCredentials
	}
	at := s.now().UTC()
	if err := s.store.TouchLogin(ctx, u.ID, at); err != nil {
		logger.Warn().Err(err).Str("user_id", u.ID).Msg("record last login")
	} else {
		u.LastLoginAt = &at
	}
	return u, nil
}

func (s *Service) ChangePassword(ctx context.Context, userID string, in ChangePasswordInput) error {
	if err := validation.Struct(in); err != nil {
		return err
	}
	u, err := s.store.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !CheckPassword(u.PasswordHash, in.CurrentPassword) {
		return apperr.Unauthenticated("Current password is incorrect")
	}
	hash, err := HashPassword(in.NewPassword, s.cost)
	if err != nil {
		return err
	}
	return s.store.UpdatePasswordHash(ctx, userID, hash)
}

func (s *Service) Get(ctx context.Context, id string) (User, error) {
	return s.store.GetByID(ctx, id)
}

// List returns users, optionally filtered by role.
func (s *Service) List(ctx context.Context, role string) ([]User, error) {
	if role != "" && role != rbac.RoleAdmin && role != rbac.RoleStudent {
		return nil, apperr.Validation("role must be admin or student")
	}
	return s.store.List(ctx, role)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.store.Count(ctx)
}
