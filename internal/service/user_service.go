package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"deepfake-detector/internal/apperr"
	"deepfake-detector/internal/auth"
	"deepfake-detector/internal/domain"
	"deepfake-detector/internal/repository"
)

const (
	minPasswordLen = 8
	// x/crypto bcrypt rejects longer input
	maxPasswordBytes = 72
)

// UserService describes account lifecycle operations.
type UserService interface {
	Register(ctx context.Context, username, email, password string) (*domain.User, string, error)
	Login(ctx context.Context, username, password string) (*domain.User, string, error)
	Verify(token string) (int64, error)
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	UpdateProfile(ctx context.Context, id int64, username, email string) (*domain.User, error)
}

type userService struct {
	users  repository.UserRepository
	tokens *auth.TokenManager
	cost   int

	dummyOnce sync.Once
	dummyHash []byte
}

// NewUserService returns a UserService. cost <= 0 means bcrypt.DefaultCost.
func NewUserService(users repository.UserRepository, tokens *auth.TokenManager, cost int) UserService {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &userService{
		users:  users,
		tokens: tokens,
		cost:   cost,
	}
}

func (s *userService) Register(ctx context.Context, username, email, password string) (*domain.User, string, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))

	if err := validateUsername(username); err != nil {
		return nil, "", err
	}
	if err := validateEmail(email); err != nil {
		return nil, "", err
	}
	if password == "" {
		return nil, "", apperr.New(apperr.KindInvalidInput, "Password is required")
	}
	if len(password) < minPasswordLen {
		return nil, "", apperr.New(apperr.KindInvalidInput,
			fmt.Sprintf("Password must be at least %d characters", minPasswordLen))
	}
	if len(password) > maxPasswordBytes {
		return nil, "", apperr.New(apperr.KindInvalidInput,
			fmt.Sprintf("Password must be at most %d bytes", maxPasswordBytes))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
	}
	if _, err := s.users.Create(ctx, user); err != nil {
		if apperr.KindOf(err) == apperr.KindConflict {
			return nil, "", apperr.Wrap(apperr.KindConflict, "User already exists", err)
		}
		return nil, "", fmt.Errorf("create user: %w", err)
	}

	token, err := s.tokens.Issue(user.ID, user.Username)
	if err != nil {
		return nil, "", err
	}
	return sanitizeUser(user), token, nil
}

func (s *userService) Login(ctx context.Context, username, password string) (*domain.User, string, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, "", apperr.ErrInvalidCredentials
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			// burn the same time as a real comparison
			_ = bcrypt.CompareHashAndPassword(s.dummy(), []byte(password))
			return nil, "", apperr.ErrInvalidCredentials
		}
		return nil, "", fmt.Errorf("load user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", apperr.ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user.ID, user.Username)
	if err != nil {
		return nil, "", err
	}
	return sanitizeUser(user), token, nil
}

func (s *userService) Verify(token string) (int64, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return 0, err
	}
	return claims.ID, nil
}

func (s *userService) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return sanitizeUser(user), nil
}

// UpdateProfile changes username and/or email. Empty values are left as is.
func (s *userService) UpdateProfile(ctx context.Context, id int64, username, email string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if username = strings.TrimSpace(username); username != "" {
		if err := validateUsername(username); err != nil {
			return nil, err
		}
		user.Username = username
	}
	if email = strings.ToLower(strings.TrimSpace(email)); email != "" {
		if err := validateEmail(email); err != nil {
			return nil, err
		}
		user.Email = email
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}
	return sanitizeUser(user), nil
}

func (s *userService) dummy() []byte {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), s.cost)
	})
	return s.dummyHash
}

func validateUsername(username string) error {
	if username == "" {
		return apperr.New(apperr.KindInvalidInput, "Username is required")
	}
	if len(username) < 3 || len(username) > 50 {
		return apperr.New(apperr.KindInvalidInput, "Username must be between 3 and 50 characters")
	}
	return nil
}

func validateEmail(email string) error {
	if email == "" {
		return apperr.New(apperr.KindInvalidInput, "Email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return apperr.New(apperr.KindInvalidInput, "Email is invalid")
	}
	return nil
}

func sanitizeUser(user *domain.User) *domain.User {
	if user == nil {
		return nil
	}
	return &domain.User{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}
