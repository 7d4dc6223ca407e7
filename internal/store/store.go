// Package store defines the persistence boundary of the storefront.
// Implementations live in mongostore and memstore.
package store

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront-backend/internal/model"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate key")
)

type Products interface {
	List(ctx context.Context) ([]model.Product, error)
	Get(ctx context.Context, id primitive.ObjectID) (*model.Product, error)
	// FindByIDs loads every listed product in one query. Missing ids are
	// simply absent from the result.
	FindByIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]model.Product, error)
	Exists(ctx context.Context, id primitive.ObjectID) (bool, error)
	Insert(ctx context.Context, p *model.Product) error
	SetPrice(ctx context.Context, id primitive.ObjectID, price float64) error
}

type Users interface {
	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// SetCartItem overwrites the quantity of an existing entry or appends a
	// new one, reporting whether it appended.
	SetCartItem(ctx context.Context, userID, productID primitive.ObjectID, qty int) (bool, error)
	RemoveCartItem(ctx context.Context, userID, productID primitive.ObjectID) error
	ClearCart(ctx context.Context, userID primitive.ObjectID) error
	AppendOrder(ctx context.Context, userID, orderID primitive.ObjectID) error
	RemoveOrder(ctx context.Context, userID, orderID primitive.ObjectID) error
}

type Orders interface {
	Create(ctx context.Context, o *model.Order) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	GetForUser(ctx context.Context, orderID, userID primitive.ObjectID) (*model.Order, error)
	ListByIDs(ctx context.Context, ids []primitive.ObjectID) ([]model.Order, error)
}

type Store interface {
	Products() Products
	Users() Users
	Orders() Orders
	// RunAtomic executes fn so that either all of its writes persist or
	// none do. Store calls inside fn must use the ctx passed to fn.
	RunAtomic(ctx context.Context, fn func(ctx context.Context) error) error
	Close(ctx context.Context) error
}
