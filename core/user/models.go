package user

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Roles
const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

var AllRoles = []string{RoleStudent, RoleTeacher, RoleAdmin}

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	IsActive     *bool     `json:"is_active"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    time.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) SetActive(active bool) {
	u.IsActive = &active
}

func (u *User) Active() bool {
	return u.IsActive != nil && *u.IsActive
}

func (u *User) IsStudent() bool {
	return u.Role == RoleStudent
}

func (u *User) IsTeacher() bool {
	return u.Role == RoleTeacher
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

type NewUser struct {
	Name     string `json:"name"`
	Username string `json:"username" validate:"required,alphanum_"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"role" validate:"required,oneof=student teacher admin"`
}

type UpdateUser struct {
	Name     string `json:"name"`
	Username string `json:"username" validate:"omitempty,alphanum_"`
	Email    string `json:"email" validate:"omitempty,email"`
	Password string `json:"password"`
	IsActive *bool  `json:"is_active"`
}

type ResetUserPassword struct {
	UID             string `json:"uid" validate:"required"`
	Token           string `json:"token" validate:"required"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

// QueryFilter fields are applied with an AND operation.
// Search does a case-insensitive match on one of Name, Username or Email.
type QueryFilter struct {
	Search      string    `json:"search"`
	Role        string    `json:"role"`
	IsActive    *bool     `json:"is_active"`
	CreatedFrom time.Time `json:"created_from"`
	CreatedTo   time.Time `json:"created_to"`
}

type GetFilter struct {
	ID              string
	UsernameOrEmail string
}
