// Package memstore is an in-memory store.Store used by tests and by the
// memory backend for local development.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront-backend/internal/cart"
	"storefront-backend/internal/model"
	"storefront-backend/internal/store"
)

type Store struct {
	// txMu is held for the whole of a RunAtomic section and briefly by every
	// call outside one, so no caller observes writes that may be rolled back.
	// mu guards the maps.
	txMu sync.Mutex
	mu   sync.RWMutex

	products map[primitive.ObjectID]model.Product
	users    map[primitive.ObjectID]model.User
	emails   map[string]primitive.ObjectID
	orders   map[primitive.ObjectID]model.Order
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		products: make(map[primitive.ObjectID]model.Product),
		users:    make(map[primitive.ObjectID]model.User),
		emails:   make(map[string]primitive.ObjectID),
		orders:   make(map[primitive.ObjectID]model.Order),
	}
}

func (s *Store) Products() store.Products { return productRepo{s} }
func (s *Store) Users() store.Users       { return userRepo{s} }
func (s *Store) Orders() store.Orders     { return orderRepo{s} }

func (s *Store) Close(context.Context) error { return nil }

type txKey struct{}

func (s *Store) inTx(ctx context.Context) bool {
	owner, ok := ctx.Value(txKey{}).(*Store)
	return ok && owner == s
}

// lockRead waits for any RunAtomic section in progress unless ctx belongs
// to it.
func (s *Store) lockRead(ctx context.Context) func() {
	if s.inTx(ctx) {
		s.mu.RLock()
		return s.mu.RUnlock
	}
	s.txMu.Lock()
	s.mu.RLock()
	return func() {
		s.mu.RUnlock()
		s.txMu.Unlock()
	}
}

// lockWrite takes the writer lock unless ctx already belongs to a RunAtomic
// section of this store, which holds it.
func (s *Store) lockWrite(ctx context.Context) func() {
	if s.inTx(ctx) {
		s.mu.Lock()
		return s.mu.Unlock
	}
	s.txMu.Lock()
	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		s.txMu.Unlock()
	}
}

func (s *Store) RunAtomic(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snap := s.snapshot()
	s.mu.RUnlock()

	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.mu.Lock()
		s.restore(snap)
		s.mu.Unlock()
		return err
	}
	return nil
}

type state struct {
	products map[primitive.ObjectID]model.Product
	users    map[primitive.ObjectID]model.User
	emails   map[string]primitive.ObjectID
	orders   map[primitive.ObjectID]model.Order
}

func (s *Store) snapshot() state {
	st := state{
		products: make(map[primitive.ObjectID]model.Product, len(s.products)),
		users:    make(map[primitive.ObjectID]model.User, len(s.users)),
		emails:   make(map[string]primitive.ObjectID, len(s.emails)),
		orders:   make(map[primitive.ObjectID]model.Order, len(s.orders)),
	}
	for k, v := range s.products {
		st.products[k] = v
	}
	for k, v := range s.users {
		st.users[k] = cloneUser(v)
	}
	for k, v := range s.emails {
		st.emails[k] = v
	}
	for k, v := range s.orders {
		st.orders[k] = cloneOrder(v)
	}
	return st
}

func (s *Store) restore(st state) {
	s.products = st.products
	s.users = st.users
	s.emails = st.emails
	s.orders = st.orders
}

func cloneUser(u model.User) model.User {
	u.Cart = u.Cart.Clone()
	u.Orders = append([]primitive.ObjectID(nil), u.Orders...)
	return u
}

func cloneOrder(o model.Order) model.Order {
	o.Items = append([]model.OrderItem(nil), o.Items...)
	return o
}

// --- products ---

type productRepo struct{ s *Store }

func (r productRepo) List(ctx context.Context) ([]model.Product, error) {
	unlock := r.s.lockRead(ctx)
	defer unlock()

	out := make([]model.Product, 0, len(r.s.products))
	for _, p := range r.s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Hex() < out[j].ID.Hex() })
	return out, nil
}

func (r productRepo) Get(ctx context.Context, id primitive.ObjectID) (*model.Product, error) {
	unlock := r.s.lockRead(ctx)
	defer unlock()

	p, ok := r.s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (r productRepo) FindByIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]model.Product, error) {
	unlock := r.s.lockRead(ctx)
	defer unlock()

	out := make(map[primitive.ObjectID]model.Product, len(ids))
	for _, id := range ids {
		if p, ok := r.s.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (r productRepo) Exists(ctx context.Context, id primitive.ObjectID) (bool, error) {
	unlock := r.s.lockRead(ctx)
	defer unlock()

	_, ok := r.s.products[id]
	return ok, nil
}

func (r productRepo) Insert(ctx context.Context, p *model.Product) error {
	unlock := r.s.lockWrite(ctx)
	defer unlock()

	for _, existing := range r.s.products {
		if existing.Name == p.Name {
			return store.ErrDuplicate
		}
	}
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	r.s.products[p.ID] = *p
	return nil
}

func (r productRepo) SetPrice(ctx context.Context, id primitive.ObjectID, price float64) error {
	unlock := r.s.lockWrite(ctx)
	defer unlock()

	p, ok := r.s.products[id]
	if !ok {
		return store.ErrNotFound
	}
	p.Price = price
	r.s.products[id] = p
	return nil
}

// --- users ---

type userRepo struct{ s *Store }

func (r userRepo) Create(ctx context.Context, u *model.User) error {
	unlock := r.s.lockWrite(ctx)
	defer unlock()

	key := strings.ToLower(u.Email)
	if _, taken := r.s.emails[key]; taken {
		return store.ErrDuplicate
	}
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	if u.Orders == nil {
		u.Orders = []primitive.ObjectID{}
	}
	r.s.users[u.ID] = cloneUser(*u)
	r.s.emails[key] = u.ID
	return nil
}

func (r userRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*model.User, error) {
	unlock := r.s.lockRead(ctx)
	defer unlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	u = cloneUser(u)
	return &u, nil
}

func (r userRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	unlock := r.s.lockRead(ctx)
	defer unlock()

	id, ok := r.s.emails[strings.ToLower(email)]
	if !ok {
		return nil, store.ErrNotFound
	}
	u := cloneUser(r.s.users[id])
	return &u, nil
}

func (r userRepo) SetCartItem(ctx context.Context, userID, productID primitive.ObjectID, qty int) (bool, error) {
	unlock := r.s.lockWrite(ctx)
	defer unlock()

	u, ok := r.s.users[userID]
	if !ok {
		return false, store.ErrNotFound
	}
	inserted, err := u.Cart.Set(productID, qty)
	if err != nil {
		return false, err
	}
	r.s.users[userID] = u
	return inserted, nil
}

func (r userRepo) RemoveCartItem(ctx context.Context, userID, productID primitive.ObjectID) error {
	unlock := r.s.lockWrite(ctx)
	defer unlock()

	u, ok := r.s.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	u.Cart.Remove(productID)
	r.s.users[userID] = u
	return nil
}

func (r userRepo) ClearCart(ctx context.Context, userID primitive.ObjectID) error {
	unlock := r.s.lockWrite(ctx)
	defer unlock()

	u, ok := r.s.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	u.Cart = cart.Cart{}
	r.s.users[userID] = u
	return nil
}

func (r userRepo) AppendOrder(ctx context.Context, userID, orderID primitive.ObjectID) error {
	unlock := r.s.lockWrite(ctx)
	defer unlock()

	u, ok := r.s.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	u.Orders = append(append([]primitive.ObjectID(nil), u.Orders...), orderID)
	r.s.users[userID] = u
	return nil
}

func (r userRepo) RemoveOrder(ctx context.Context, userID, orderID primitive.ObjectID) error {
	unlock := r.s.lockWrite(ctx)
	defer unlock()

	u, ok := r.s.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	orders := make([]primitive.ObjectID, 0, len(u.Orders))
	for _, id := range u.Orders {
		if id != orderID {
			orders = append(orders, id)
		}
	}
	u.Orders = orders
	r.s.users[userID] = u
	return nil
}

// --- orders ---

type orderRepo struct{ s *Store }

func (r orderRepo) Create(ctx context.Context, o *model.Order) error {
	unlock := r.s.lockWrite(ctx)
	defer unlock()

	if o.ID.IsZero() {
		o.ID = primitive.NewObjectID()
	}
	if _, exists := r.s.orders[o.ID]; exists {
		return store.ErrDuplicate
	}
	r.s.orders[o.ID] = cloneOrder(*o)
	return nil
}

func (r orderRepo) Delete(ctx context.Context, id primitive.ObjectID) error {
	unlock := r.s.lockWrite(ctx)
	defer unlock()

	if _, ok := r.s.orders[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.s.orders, id)
	return nil
}

func (r orderRepo) GetForUser(ctx context.Context, orderID, userID primitive.ObjectID) (*model.Order, error) {
	unlock := r.s.lockRead(ctx)
	defer unlock()

	o, ok := r.s.orders[orderID]
	if !ok || o.UserID != userID {
		return nil, store.ErrNotFound
	}
	o = cloneOrder(o)
	return &o, nil
}

func (r orderRepo) ListByIDs(ctx context.Context, ids []primitive.ObjectID) ([]model.Order, error) {
	unlock := r.s.lockRead(ctx)
	defer unlock()

	out := make([]model.Order, 0, len(ids))
	for _, id := range ids {
		if o, ok := r.s.orders[id]; ok {
			out = append(out, cloneOrder(o))
		}
	}
	return out, nil
}
