package domain

import (
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

// User validation errors.
var (
	ErrEmptyUserID         = errors.New("user ID cannot be empty")
	ErrInvalidEmail        = errors.New("invalid email format")
	ErrEmptyEmail          = errors.New("email cannot be empty")
	ErrPasswordTooShort    = errors.New("password must be at least 8 characters long")
	ErrPasswordTooLong     = errors.New("password must be at most 72 characters long")
	ErrEmptyPassword       = errors.New("password cannot be empty")
	ErrDisplayNameTooLong  = errors.New("display name must be at most 100 characters long")
	ErrEmptyHashedPassword = errors.New("hashed password cannot be empty")
)

const (
	minPasswordLen    = 8
	maxPasswordLen    = 72 // bcrypt input limit
	maxDisplayNameLen = 100
)

// User represents a registered student.
type User struct {
	ID             uuid.UUID `json:"id"`
	Email          string    `json:"email"`
	DisplayName    string    `json:"display_name"`
	Password       string    `json:"-"` // plaintext, only set during registration
	HashedPassword string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NormalizeEmail trims and lower-cases an email address so lookups are
// case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NewUser creates a user with a fresh ID. The email is normalized and an
// empty display name defaults to the local part of the email.
//
// The caller must hash Password before the user is stored.
func NewUser(email, password, displayName string) (*User, error) {
	now := time.Now().UTC()
	email = NormalizeEmail(email)
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName, _, _ = strings.Cut(email, "@")
	}

	user := &User{
		ID:          uuid.New(),
		Email:       email,
		DisplayName: displayName,
		Password:    password,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := user.Validate(); err != nil {
		return nil, err
	}
	return user, nil
}

// Validate checks the user's fields. A user needs either a plaintext password
// in the accepted length range or a stored hash.
func (u *User) Validate() error {
	if u.ID == uuid.Nil {
		return ErrEmptyUserID
	}
	if u.Email == "" {
		return ErrEmptyEmail
	}
	if !validEmail(u.Email) {
		return ErrInvalidEmail
	}
	if len(u.DisplayName) > maxDisplayNameLen {
		return ErrDisplayNameTooLong
	}

	switch {
	case u.Password != "":
		if len(u.Password) < minPasswordLen {
			return ErrPasswordTooShort
		}
		if len(u.Password) > maxPasswordLen {
			return ErrPasswordTooLong
		}
	case u.HashedPassword == "":
		return ErrEmptyPassword
	}
	return nil
}

// validEmail accepts a bare address with a dotted domain.
func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}
	_, domain, _ := strings.Cut(email, "@")
	dot := strings.Index(domain, ".")
	return dot > 0 && dot < len(domain)-1
}
