package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vaxsched/vaccine-scheduler/internal/scheduler"
)

var (
	ErrUsernameTaken      = errors.New("username taken")
	ErrAccountNotFound    = errors.New("account not found")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// Account is a registered patient or caregiver. Usernames are unique per
// role, so the same name may exist once as a patient and once as a
// caregiver. Accounts are immutable after creation.
type Account struct {
	Role      scheduler.Role
	Username  string
	Salt      []byte
	Hash      []byte
	CreatedAt time.Time
}

// Repository contains all DB interactions needed by the account service.
type Repository interface {
	Create(ctx context.Context, a Account) error
	Find(ctx context.Context, role scheduler.Role, username string) (*Account, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Register creates an account with a fresh salt and a PBKDF2 hash.
func (s *Service) Register(ctx context.Context, role scheduler.Role, username, password string) error {
	salt, err := generateSalt()
	if err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}

	a := Account{
		Role:     role,
		Username: username,
		Salt:     salt,
		Hash:     hashPassword(password, salt),
	}

	if err := s.repo.Create(ctx, a); err != nil {
		return err
	}
	return nil
}

// Login verifies the credentials and returns the session to act as.
// Unknown users and wrong passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, role scheduler.Role, username, password string) (scheduler.Session, error) {
	a, err := s.repo.Find(ctx, role, username)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return scheduler.Session{}, ErrInvalidCredentials
		}
		return scheduler.Session{}, fmt.Errorf("load account: %w", err)
	}

	if !verifyPassword(password, a.Salt, a.Hash) {
		return scheduler.Session{}, ErrInvalidCredentials
	}

	return scheduler.Session{Role: role, Username: username}, nil
}
