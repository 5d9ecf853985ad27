package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mind-engage/examportal/internal/apperr"
	"github.com/mind-engage/examportal/internal/db"
)

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{db: db} }

const userCols = `id,name,email,password_hash,role,enrollment_number,department,created_at,last_login_at`

func (s *SQLStore) Create(ctx context.Context, u User) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO users (`+userCols+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.Role, nullIfEmpty(u.EnrollmentNumber), u.Department,
		u.CreatedAt.UnixMilli(), nil)
	if db.IsUniqueViolation(err) {
		return apperr.Conflict("User already exists with this email or enrollment number")
	}
	return err
}

func (s *SQLStore) GetByID(ctx context.Context, id string) (User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id=$1`, id))
}

func (s *SQLStore) GetByEmail(ctx context.Context, email string) (User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE email=$1`, email))
}

// RoleOf satisfies the auth middleware's role lookup.
func (s *SQLStore) RoleOf(ctx context.Context, id string) (string, error) {
	var role string
	err := s.db.QueryRowContext(ctx, `SELECT role FROM users WHERE id=$1`, id).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperr.NotFound("user not found")
	}
	return role, err
}

func (s *SQLStore) TouchLogin(ctx context.Context, id string, at time.Time) error {
	return s.execOne(ctx, `UPDATE users SET last_login_at=$1 WHERE id=$2`, at.UnixMilli(), id)
}

func (s *SQLStore) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return s.execOne(ctx, `UPDATE users SET password_hash=$1 WHERE id=$2`, hash, id)
}

func (s *SQLStore) List(ctx context.Context, role string) ([]User, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if role == "" {
		rows, err = s.db.QueryContext(ctx, `SELECT `+userCols+` FROM users ORDER BY created_at DESC`)
	} else {
		rows, err = s.db.QueryContext(ctx, `SELECT `+userCols+` FROM users WHERE role=$1 ORDER BY created_at DESC`, role)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *SQLStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM users`).Scan(&n)
	return n, err
}

func (s *SQLStore) execOne(ctx context.Context, q string, args ...any) error {
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound("user not found")
	}
	return nil
}

func (s *SQLStore) scanOne(row *sql.Row) (User, error) {
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, apperr.NotFound("user not found")
	}
	if err != nil {
		return User{}, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(sc scanner) (User, error) {
	var (
		u          User
		enrollment sql.NullString
		created    int64
		lastLogin  sql.NullInt64
	)
	if err := sc.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &enrollment, &u.Department, &created, &lastLogin); err != nil {
		return User{}, err
	}
	u.EnrollmentNumber = enrollment.String
	u.CreatedAt = time.UnixMilli(created).UTC()
	if lastLogin.Valid {
		t := time.UnixMilli(lastLogin.Int64).UTC()
		u.LastLoginAt = &t
	}
	return u, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
