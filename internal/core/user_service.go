package core

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

type userService struct {
	pool  *pgxpool.Pool
	users *Resource[User]
}

// NewUserService constructs a UserService backed by PostgreSQL.
func NewUserService(pool *pgxpool.Pool) UserService {
	return &userService{
		pool:  pool,
		users: NewResource[User](pool, ResourceSpec{Table: "users", Entity: "user"}),
	}
}

func (s *userService) Register(ctx context.Context, in RegisterInput) (User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if in.Username == "" || in.Email == "" || in.Password == "" {
		return User{}, validationf("username, email and password are required")
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return User{}, validationf("invalid email address %q", in.Email)
	}
	if err := checkPassword(in.Password); err != nil {
		return User{}, err
	}
	return s.create(ctx, in, RoleUser)
}

func (s *userService) create(ctx context.Context, in RegisterInput, role string) (User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	u, err := s.users.Insert(ctx, map[string]any{
		"username":      in.Username,
		"email":         in.Email,
		"password_hash": string(hash),
		"full_name":     in.FullName,
		"role":          role,
	})
	if errors.Is(err, ErrConflict) {
		return User{}, conflictf("username or email already registered")
	}
	return u, err
}

func (s *userService) Authenticate(ctx context.Context, username, password string) (User, error) {
	u, err := s.users.GetBy(ctx, "username", strings.TrimSpace(username))
	if errors.Is(err, ErrNotFound) {
		return User{}, ErrUnauthorized
	}
	if err != nil {
		return User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return User{}, ErrUnauthorized
	}
	if u.Status != UserStatusActive {
		return User{}, ErrUnauthorized
	}
	return s.users.Update(ctx, u.ID, map[string]any{"last_login": nowUTC()})
}

func (s *userService) GetByID(ctx context.Context, id uuid.UUID) (User, error) {
	return s.users.Get(ctx, id)
}

func (s *userService) EnsureAdmin(ctx context.Context, username, password string) (bool, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM users`).Scan(&n); err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	if n > 0 {
		return false, nil
	}
	if username == "" || password == "" {
		return false, validationf("admin username and password are required to seed the first user")
	}
	_, err := s.create(ctx, RegisterInput{
		Username: username,
		Email:    username + "@localhost",
		Password: password,
		FullName: "Administrator",
	}, RoleAdmin)
	if err != nil {
		return false, err
	}
	return true, nil
}

// checkPassword requires at least 8 characters mixing letters and digits.
func checkPassword(p string) error {
	if len(p) < 8 {
		return validationf("password must be at least 8 characters")
	}
	var letter, digit bool
	for _, r := range p {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !letter || !digit {
		return validationf("password must contain letters and digits")
	}
	return nil
}
