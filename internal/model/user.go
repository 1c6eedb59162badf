package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleStudent Role = "student"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

// IsStaff reports whether the role carries review authority over student
// records and appointments.
func (r Role) IsStaff() bool {
	return r == RoleDoctor || r == RoleAdmin
}

type User struct {
	Base
	Email        string  `db:"email" json:"email"`
	PasswordHash string  `db:"password_hash" json:"-"`
	Role         Role    `db:"role" json:"role"`
	FirstName    string  `db:"first_name" json:"first_name"`
	LastName     string  `db:"last_name" json:"last_name"`
	PhoneNumber  *string `db:"phone_number" json:"phone_number,omitempty"`
	IsActive     bool    `db:"is_active" json:"is_active"`
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// NormalizeEmail lowercases the address so the unique constraint is
// case-insensitive in practice.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// DoctorProfile holds professional information for doctor users.
type DoctorProfile struct {
	UserID         uuid.UUID `db:"user_id" json:"user_id"`
	LicenseNumber  *string   `db:"license_number" json:"license_number,omitempty"`
	Specialization string    `db:"specialization" json:"specialization"`
	Department     string    `db:"department" json:"department"`
	RoomNumber     *string   `db:"room_number" json:"room_number,omitempty"`
	IsAvailable    bool      `db:"is_available" json:"is_available"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

type RegisterRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8"`
	FirstName string `json:"first_name" binding:"required,max=150"`
	LastName  string `json:"last_name" binding:"required,max=150"`
	Phone     string `json:"phone_number" binding:"omitempty,max=20"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}
