package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/MouhsineNejmi/ecommerce-microservices-sub000/internal/auth"
)

const minPasswordLength = 8

// Service resolves requester identities for the reservation API.
type Service interface {
	Register(ctx context.Context, email, password, name string) (*User, error)
	Login(ctx context.Context, email, password string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
}

type service struct {
	repo   Repository
	hasher auth.PasswordHasher

	// Compared against on unknown emails so both login failures cost a hash.
	decoyOnce sync.Once
	decoyHash string
}

func NewService(repo Repository, hasher auth.PasswordHasher) Service {
	return &service{repo: repo, hasher: hasher}
}

func (s *service) Register(ctx context.Context, email, password, name string) (*User, error) {
	email = canonicalEmail(email)
	if err := checkRegistration(email, password); err != nil {
		return nil, err
	}

	switch _, err := s.repo.GetByEmail(ctx, email); {
	case err == nil:
		return nil, ErrEmailAlreadyUsed
	case !errors.Is(err, ErrNotFound):
		return nil, fmt.Errorf("look up email: %w", err)
	}

	hash, err := s.hasher.Hash(password)
	switch {
	case errors.Is(err, auth.ErrPasswordTooLong):
		return nil, ErrPasswordTooLong
	case err != nil:
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &User{
		Email:        email,
		PasswordHash: hash,
		Name:         strings.TrimSpace(name),
		Role:         RoleUser,
	}
	// Create maps a unique violation from a racing registration to ErrEmailAlreadyUsed.
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "user registered", "user_id", u.ID)
	return u, nil
}

func checkRegistration(email, password string) error {
	switch {
	case email == "":
		return ErrEmailRequired
	case len(password) < minPasswordLength:
		return ErrPasswordTooShort
	}
	return nil
}

func (s *service) Login(ctx context.Context, email, password string) (*User, error) {
	email = canonicalEmail(email)
	if email == "" || strings.TrimSpace(password) == "" {
		return nil, ErrInvalidCredentials
	}

	u, err := s.repo.GetByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		_ = s.hasher.Compare(s.decoy(), password)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("look up email: %w", err)
	}

	if err := s.hasher.Compare(u.PasswordHash, password); err != nil {
		slog.DebugContext(ctx, "login rejected", "user_id", u.ID)
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

func (s *service) decoy() string {
	s.decoyOnce.Do(func() {
		s.decoyHash, _ = s.hasher.Hash("decoy-password-never-matches")
	})
	return s.decoyHash
}

func (s *service) GetByID(ctx context.Context, id string) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

func canonicalEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
