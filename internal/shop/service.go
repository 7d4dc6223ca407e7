// Package shop implements the storefront operations: catalog reads, cart
// mutations, order placement and order history.
package shop

import (
	"context"
	"errors"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront-backend/internal/apperr"
	"storefront-backend/internal/cart"
	"storefront-backend/internal/events"
	"storefront-backend/internal/model"
	"storefront-backend/internal/store"
)

type Service struct {
	store  store.Store
	events events.Publisher
	logger *log.Logger
	now    func() time.Time
}

func NewService(st store.Store, pub events.Publisher, logger *log.Logger) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Service{store: st, events: pub, logger: logger, now: time.Now}
}

// CartEntry is a cart line with its product loaded from the catalog.
type CartEntry struct {
	Product model.Product `json:"product"`
	Qty     int           `json:"qty"`
}

func parseID(raw, msg string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		return primitive.NilObjectID, apperr.Wrap(apperr.Invalid, msg, err)
	}
	return id, nil
}

// lookupErr turns store.ErrNotFound into a NotFound error with msg and
// everything else into an Internal error.
func lookupErr(err error, msg string) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.New(apperr.NotFound, msg)
	}
	return internal(err)
}

func internal(err error) error {
	var tagged *apperr.Error
	if errors.As(err, &tagged) {
		return err
	}
	return apperr.Wrap(apperr.Internal, "internal error", err)
}

func (s *Service) Catalog(ctx context.Context) ([]model.Product, error) {
	products, err := s.store.Products().List(ctx)
	if err != nil {
		return nil, internal(err)
	}
	return products, nil
}

func (s *Service) Product(ctx context.Context, productID string) (*model.Product, error) {
	pid, err := parseID(productID, "Invalid product ID.")
	if err != nil {
		return nil, err
	}
	p, err := s.store.Products().Get(ctx, pid)
	if err != nil {
		return nil, lookupErr(err, "Product not found.")
	}
	return p, nil
}

func (s *Service) Profile(ctx context.Context, userID string) (*model.User, error) {
	uid, err := parseID(userID, "Invalid user ID.")
	if err != nil {
		return nil, err
	}
	u, err := s.store.Users().GetByID(ctx, uid)
	if err != nil {
		return nil, lookupErr(err, "User not found.")
	}
	return u, nil
}

func (s *Service) Cart(ctx context.Context, userID string) ([]CartEntry, error) {
	uid, err := parseID(userID, "Invalid user ID.")
	if err != nil {
		return nil, err
	}
	u, err := s.store.Users().GetByID(ctx, uid)
	if err != nil {
		return nil, lookupErr(err, "User not found.")
	}
	return s.populateCart(ctx, u.Cart)
}

// SetCartItem sets the quantity of a product in the cart. The boolean
// result reports whether the product was newly added.
func (s *Service) SetCartItem(ctx context.Context, userID, productID string, qty int) ([]CartEntry, bool, error) {
	uid, pid, err := s.cartTarget(ctx, userID, productID, func() error {
		if qty < 1 {
			return apperr.Wrap(apperr.Invalid, "Quantity must be an integer greater than 0.", cart.ErrInvalidQty)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	created, err := s.store.Users().SetCartItem(ctx, uid, pid, qty)
	if err != nil {
		return nil, false, lookupErr(err, "User not found.")
	}

	entries, err := s.Cart(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	return entries, created, nil
}

// RemoveCartItem drops a product from the cart. Removing a product that is
// not in the cart is not an error.
func (s *Service) RemoveCartItem(ctx context.Context, userID, productID string) ([]CartEntry, error) {
	uid, pid, err := s.cartTarget(ctx, userID, productID, nil)
	if err != nil {
		return nil, err
	}

	if err := s.store.Users().RemoveCartItem(ctx, uid, pid); err != nil {
		return nil, lookupErr(err, "User not found.")
	}
	return s.Cart(ctx, userID)
}

func (s *Service) ClearCart(ctx context.Context, userID string) ([]CartEntry, error) {
	uid, err := parseID(userID, "Invalid user ID.")
	if err != nil {
		return nil, err
	}
	if err := s.store.Users().ClearCart(ctx, uid); err != nil {
		return nil, lookupErr(err, "User not found.")
	}
	return s.Cart(ctx, userID)
}

// cartTarget validates ids, runs the extra body check, then verifies that
// both the user and the product exist, in that order.
func (s *Service) cartTarget(ctx context.Context, userID, productID string, check func() error) (primitive.ObjectID, primitive.ObjectID, error) {
	uid, err := parseID(userID, "Invalid user ID or product ID.")
	if err != nil {
		return uid, uid, err
	}
	pid, err := parseID(productID, "Invalid user ID or product ID.")
	if err != nil {
		return uid, pid, err
	}
	if check != nil {
		if err := check(); err != nil {
			return uid, pid, err
		}
	}

	if _, err := s.store.Users().GetByID(ctx, uid); err != nil {
		return uid, pid, lookupErr(err, "User not found.")
	}
	ok, err := s.store.Products().Exists(ctx, pid)
	if err != nil {
		return uid, pid, internal(err)
	}
	if !ok {
		return uid, pid, apperr.New(apperr.NotFound, "Product not found.")
	}
	return uid, pid, nil
}

func (s *Service) populateCart(ctx context.Context, c cart.Cart) ([]CartEntry, error) {
	products, err := s.store.Products().FindByIDs(ctx, c.ProductIDs())
	if err != nil {
		return nil, internal(err)
	}

	entries := make([]CartEntry, 0, c.Len())
	for _, line := range c.Lines() {
		p, ok := products[line.ProductID]
		if !ok {
			// product removed from the catalog after it was added
			continue
		}
		entries = append(entries, CartEntry{Product: p, Qty: line.Qty})
	}
	return entries, nil
}
