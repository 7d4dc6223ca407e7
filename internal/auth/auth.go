// Package auth registers users, checks credentials and issues session
// tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"

	"storefront-backend/internal/cart"
	"storefront-backend/internal/model"
	"storefront-backend/internal/store"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

type Registration struct {
	Email     string
	Password  string
	Name      string
	Surname   string
	Address   string
	Birthdate time.Time
}

type Service struct {
	users store.Users
	cost  int
	// dummyHash is compared against when the email is unknown so that both
	// failure paths spend the same bcrypt work.
	dummyHash []byte
}

// NewService uses bcrypt.DefaultCost when cost is zero.
func NewService(users store.Users, cost int) *Service {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	dummy, _ := bcrypt.GenerateFromPassword([]byte("storefront-dummy-password"), cost)
	return &Service{users: users, cost: cost, dummyHash: dummy}
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) Register(ctx context.Context, r Registration) (*model.User, error) {
	email := NormalizeEmail(r.Email)

	_, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, ErrEmailTaken
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("lookup email: %w", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(r.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &model.User{
		Email:     email,
		Password:  string(hashed),
		Name:      strings.TrimSpace(r.Name),
		Surname:   strings.TrimSpace(r.Surname),
		Address:   strings.TrimSpace(r.Address),
		Birthdate: r.Birthdate,
		Cart:      cart.Cart{},
		Orders:    []primitive.ObjectID{},
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// Authenticate returns the id of the user owning the credentials. Unknown
// emails and wrong passwords both yield ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (primitive.ObjectID, error) {
	u, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return primitive.NilObjectID, ErrInvalidCredentials
		}
		return primitive.NilObjectID, fmt.Errorf("lookup email: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)) != nil {
		return primitive.NilObjectID, ErrInvalidCredentials
	}
	return u.ID, nil
}
