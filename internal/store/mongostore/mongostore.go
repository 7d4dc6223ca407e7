// Package mongostore implements store.Store on MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront-backend/internal/cart"
	"storefront-backend/internal/model"
	"storefront-backend/internal/store"
)

type Config struct {
	URI      string
	Database string
	// Transactions requires a replica set or sharded cluster.
	Transactions   bool
	ConnectTimeout time.Duration
}

type Store struct {
	client       *mongo.Client
	products     *mongo.Collection
	users        *mongo.Collection
	orders       *mongo.Collection
	transactions bool
}

var _ store.Store = (*Store)(nil)

// Connect dials MongoDB, verifies the connection and ensures indexes.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	timeout := cfg.ConnectTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	s := New(client, cfg.Database, cfg.Transactions)
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func New(client *mongo.Client, database string, transactions bool) *Store {
	db := client.Database(database)
	return &Store{
		client:       client,
		products:     db.Collection("products"),
		users:        db.Collection("users"),
		orders:       db.Collection("orders"),
		transactions: transactions,
	}
}

func (s *Store) EnsureIndexes(ctx context.Context) error {
	if _, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("users email index: %w", err)
	}
	if _, err := s.products.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("products name index: %w", err)
	}
	if _, err := s.orders.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user", Value: 1}},
	}); err != nil {
		return fmt.Errorf("orders user index: %w", err)
	}
	return nil
}

func (s *Store) Products() store.Products { return productRepo{c: s.products} }
func (s *Store) Users() store.Users       { return userRepo{c: s.users} }
func (s *Store) Orders() store.Orders     { return orderRepo{c: s.orders} }

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// RunAtomic runs fn inside a multi-document transaction. The session
// context handed to fn carries the transaction to every collection call.
// Without transactions fn runs directly and callers must compensate.
func (s *Store) RunAtomic(ctx context.Context, fn func(ctx context.Context) error) error {
	if !s.transactions || mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}

	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return store.ErrNotFound
	}
	return err
}

// --- products ---

type productRepo struct{ c *mongo.Collection }

func (r productRepo) List(ctx context.Context) ([]model.Product, error) {
	cur, err := r.c.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find products: %w", err)
	}
	defer cur.Close(ctx)

	products := []model.Product{}
	if err := cur.All(ctx, &products); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}
	return products, nil
}

func (r productRepo) Get(ctx context.Context, id primitive.ObjectID) (*model.Product, error) {
	var p model.Product
	if err := r.c.FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r productRepo) FindByIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]model.Product, error) {
	out := make(map[primitive.ObjectID]model.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	cur, err := r.c.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("find products by id: %w", err)
	}
	defer cur.Close(ctx)

	var products []model.Product
	if err := cur.All(ctx, &products); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}

func (r productRepo) Exists(ctx context.Context, id primitive.ObjectID) (bool, error) {
	n, err := r.c.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count products: %w", err)
	}
	return n > 0, nil
}

func (r productRepo) Insert(ctx context.Context, p *model.Product) error {
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	if _, err := r.c.InsertOne(ctx, p); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (r productRepo) SetPrice(ctx context.Context, id primitive.ObjectID, price float64) error {
	res, err := r.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"price": price}})
	if err != nil {
		return fmt.Errorf("update product price: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// --- users ---

type userRepo struct{ c *mongo.Collection }

func (r userRepo) Create(ctx context.Context, u *model.User) error {
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	if u.Orders == nil {
		u.Orders = []primitive.ObjectID{}
	}
	if _, err := r.c.InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r userRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*model.User, error) {
	var u model.User
	if err := r.c.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (r userRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	if err := r.c.FindOne(ctx, bson.M{"email": email}).Decode(&u); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// SetCartItem first tries a positional update of an existing entry, then a
// push guarded on the product being absent. The guard keeps product ids
// unique in the array even when two requests race between the two updates;
// the loser retries the positional update.
func (r userRepo) SetCartItem(ctx context.Context, userID, productID primitive.ObjectID, qty int) (bool, error) {
	if qty < 1 {
		return false, cart.ErrInvalidQty
	}

	for attempt := 0; attempt < 2; attempt++ {
		res, err := r.c.UpdateOne(ctx,
			bson.M{"_id": userID, "cartItems.product": productID},
			bson.M{"$set": bson.M{"cartItems.$.qty": qty}},
		)
		if err != nil {
			return false, fmt.Errorf("update cart item: %w", err)
		}
		if res.MatchedCount > 0 {
			return false, nil
		}

		res, err = r.c.UpdateOne(ctx,
			bson.M{"_id": userID, "cartItems.product": bson.M{"$ne": productID}},
			bson.M{"$push": bson.M{"cartItems": cart.Line{ProductID: productID, Qty: qty}}},
		)
		if err != nil {
			return false, fmt.Errorf("push cart item: %w", err)
		}
		if res.MatchedCount > 0 {
			return true, nil
		}

		n, err := r.c.CountDocuments(ctx, bson.M{"_id": userID}, options.Count().SetLimit(1))
		if err != nil {
			return false, fmt.Errorf("count users: %w", err)
		}
		if n == 0 {
			return false, store.ErrNotFound
		}
	}
	return false, fmt.Errorf("update cart item: concurrent modification of user %s", userID.Hex())
}

func (r userRepo) RemoveCartItem(ctx context.Context, userID, productID primitive.ObjectID) error {
	res, err := r.c.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$pull": bson.M{"cartItems": bson.M{"product": productID}}},
	)
	if err != nil {
		return fmt.Errorf("pull cart item: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r userRepo) ClearCart(ctx context.Context, userID primitive.ObjectID) error {
	res, err := r.c.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{"cartItems": bson.A{}}},
	)
	if err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r userRepo) AppendOrder(ctx context.Context, userID, orderID primitive.ObjectID) error {
	res, err := r.c.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$push": bson.M{"orders": orderID}},
	)
	if err != nil {
		return fmt.Errorf("append order: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r userRepo) RemoveOrder(ctx context.Context, userID, orderID primitive.ObjectID) error {
	res, err := r.c.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$pull": bson.M{"orders": orderID}},
	)
	if err != nil {
		return fmt.Errorf("remove order: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// --- orders ---

type orderRepo struct{ c *mongo.Collection }

func (r orderRepo) Create(ctx context.Context, o *model.Order) error {
	if o.ID.IsZero() {
		o.ID = primitive.NewObjectID()
	}
	if _, err := r.c.InsertOne(ctx, o); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r orderRepo) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r orderRepo) GetForUser(ctx context.Context, orderID, userID primitive.ObjectID) (*model.Order, error) {
	var o model.Order
	if err := r.c.FindOne(ctx, bson.M{"_id": orderID, "user": userID}).Decode(&o); err != nil {
		return nil, notFound(err)
	}
	return &o, nil
}

func (r orderRepo) ListByIDs(ctx context.Context, ids []primitive.ObjectID) ([]model.Order, error) {
	orders := []model.Order{}
	if len(ids) == 0 {
		return orders, nil
	}

	cur, err := r.c.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("find orders: %w", err)
	}
	defer cur.Close(ctx)

	if err := cur.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}
	return orders, nil
}
