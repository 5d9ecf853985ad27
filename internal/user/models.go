package user

import "time"

// User is an identity record. PasswordHash never leaves the process.
type User struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Email            string     `json:"email"`
	Role             string     `json:"role"`
	EnrollmentNumber string     `json:"enrollmentNumber,omitempty"`
	Department       string     `json:"department,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	LastLoginAt      *time.Time `json:"lastLogin,omitempty"`
	PasswordHash     string     `json:"-"`
}

type RegisterInput struct {
	Name             string `json:"name" validate:"required,min=2,max=100"`
	Email            string `json:"email" validate:"required,email"`
	Password         string `json:"password" validate:"required,min=8"`
	EnrollmentNumber string `json:"enrollmentNumber" validate:"omitempty,max=64"`
	Department       string `json:"department" validate:"omitempty,max=100"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type ChangePasswordInput struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8"`
}
