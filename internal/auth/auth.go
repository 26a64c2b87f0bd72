// Package auth is the local user directory: signup and password login.
package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/persist"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLen is the shortest accepted password.
const MinPasswordLen = 6

var (
	ErrMissingFields      = errors.New("please fill in all fields")
	ErrUserExists         = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidUsername    = errors.New("username must be 3-32 letters, digits, '.', '_' or '-'")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", MinPasswordLen)
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,32}$`)

// UserStore loads and replaces the whole user directory.
type UserStore interface {
	LoadUsers(ctx context.Context) (map[string]persist.UserRecord, error)
	SaveUsers(ctx context.Context, users map[string]persist.UserRecord) error
}

// Directory registers and authenticates users. Only bcrypt hashes are
// stored.
type Directory struct {
	store UserStore
	cost  int

	mu sync.Mutex
}

// NewDirectory returns a directory over store. A cost of 0 uses
// bcrypt.DefaultCost.
func NewDirectory(store UserStore, cost int) *Directory {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Directory{store: store, cost: cost}
}

// ValidateUsername checks the username format.
func ValidateUsername(username string) error {
	if !usernamePattern.MatchString(username) {
		return ErrInvalidUsername
	}
	return nil
}

// Signup registers a new user.
func (d *Directory) Signup(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return ErrMissingFields
	}
	if err := ValidateUsername(username); err != nil {
		return err
	}
	if len(password) < MinPasswordLen {
		return ErrWeakPassword
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	users, err := d.store.LoadUsers(ctx)
	if err != nil {
		return fmt.Errorf("auth: signup: %w", err)
	}
	if _, exists := users[username]; exists {
		return ErrUserExists
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), d.cost)
	if err != nil {
		return fmt.Errorf("auth: hash password: %w", err)
	}
	users[username] = persist.UserRecord{
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	}
	if err := d.store.SaveUsers(ctx, users); err != nil {
		return fmt.Errorf("auth: signup: %w", err)
	}
	return nil
}

// Login checks username and password.
func (d *Directory) Login(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return ErrMissingFields
	}
	d.mu.Lock()
	users, err := d.store.LoadUsers(ctx)
	d.mu.Unlock()
	if err != nil {
		return fmt.Errorf("auth: login: %w", err)
	}
	rec, ok := users[username]
	if !ok {
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// Exists reports whether username is registered.
func (d *Directory) Exists(ctx context.Context, username string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	users, err := d.store.LoadUsers(ctx)
	if err != nil {
		return false, fmt.Errorf("auth: lookup: %w", err)
	}
	_, ok := users[username]
	return ok, nil
}

// IsValidationError reports whether err is a user-facing validation error
// rather than a storage failure.
func IsValidationError(err error) bool {
	for _, target := range []error{ErrMissingFields, ErrUserExists, ErrInvalidCredentials, ErrInvalidUsername, ErrWeakPassword} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
