package shop

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront-backend/internal/apperr"
	"storefront-backend/internal/correlation"
	"storefront-backend/internal/model"
	"storefront-backend/internal/store"
	"storefront-backend/internal/store/memstore"
)

type recordingPublisher struct {
	mu     sync.Mutex
	orders []primitive.ObjectID
	corr   []string
	err    error
}

func (p *recordingPublisher) PublishOrderPlaced(_ context.Context, o *model.Order, correlationID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orders = append(p.orders, o.ID)
	p.corr = append(p.corr, correlationID)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

type fixture struct {
	st       *memstore.Store
	svc      *Service
	pub      *recordingPublisher
	user     *model.User
	cancion  model.Product
	paciente model.Product
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	st := memstore.New()
	require.NoError(t, st.Seed(ctx, memstore.DemoCatalog))

	products, err := st.Products().List(ctx)
	require.NoError(t, err)
	f := &fixture{st: st, pub: &recordingPublisher{}}
	for _, p := range products {
		switch p.Name {
		case "Canción de Hielo y Fuego":
			f.cancion = p
		case "El paciente":
			f.paciente = p
		}
	}
	require.False(t, f.cancion.ID.IsZero())
	require.False(t, f.paciente.ID.IsZero())

	f.user = &model.User{Email: "john@doe.com", Name: "John", Surname: "Doe"}
	require.NoError(t, st.Users().Create(ctx, f.user))

	f.svc = NewService(st, f.pub, log.New(io.Discard, "", 0))
	return f
}

func (f *fixture) uid() string { return f.user.ID.Hex() }

func checkout() OrderRequest {
	return OrderRequest{Address: "Fake St 123", CardHolder: "John Doe", CardNumber: "4111 1111 1111 1234"}
}

func assertKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, apperr.KindOf(err), "error: %v", err)
}

func TestSetCartItemCreatesThenOverwrites(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	entries, created, err := f.svc.SetCartItem(ctx, f.uid(), f.cancion.ID.Hex(), 2)
	require.NoError(t, err)
	assert.True(t, created)
	require.Len(t, entries, 1)
	assert.Equal(t, f.cancion.Name, entries[0].Product.Name)
	assert.Equal(t, 2, entries[0].Qty)

	entries, created, err = f.svc.SetCartItem(ctx, f.uid(), f.cancion.ID.Hex(), 3)
	require.NoError(t, err)
	assert.False(t, created)
	require.Len(t, entries, 1)
	assert.Equal(t, 3, entries[0].Qty)

	got, err := f.svc.Cart(ctx, f.uid())
	require.NoError(t, err)
	assert.Equal(t, entries, got)
}

func TestSetCartItemValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	pid := f.cancion.ID.Hex()

	_, _, err := f.svc.SetCartItem(ctx, "nope", pid, 1)
	assertKind(t, err, apperr.Invalid)

	_, _, err = f.svc.SetCartItem(ctx, f.uid(), "nope", 1)
	assertKind(t, err, apperr.Invalid)

	_, _, err = f.svc.SetCartItem(ctx, f.uid(), pid, 0)
	assertKind(t, err, apperr.Invalid)

	_, _, err = f.svc.SetCartItem(ctx, primitive.NewObjectID().Hex(), pid, 1)
	assertKind(t, err, apperr.NotFound)
	assert.Equal(t, "User not found.", apperr.Message(err))

	_, _, err = f.svc.SetCartItem(ctx, f.uid(), primitive.NewObjectID().Hex(), 1)
	assertKind(t, err, apperr.NotFound)
	assert.Equal(t, "Product not found.", apperr.Message(err))

	entries, err := f.svc.Cart(ctx, f.uid())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRemoveCartItem(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, _, err := f.svc.SetCartItem(ctx, f.uid(), f.cancion.ID.Hex(), 2)
	require.NoError(t, err)
	_, _, err = f.svc.SetCartItem(ctx, f.uid(), f.paciente.ID.Hex(), 1)
	require.NoError(t, err)

	entries, err := f.svc.RemoveCartItem(ctx, f.uid(), f.cancion.ID.Hex())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, f.paciente.ID, entries[0].Product.ID)

	// absent product is still a success
	entries, err = f.svc.RemoveCartItem(ctx, f.uid(), f.cancion.ID.Hex())
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	_, err = f.svc.RemoveCartItem(ctx, f.uid(), primitive.NewObjectID().Hex())
	assertKind(t, err, apperr.NotFound)
}

func TestPlaceOrderFromCart(t *testing.T) {
	f := setup(t)
	ctx := correlation.With(context.Background(), "corr-42")

	_, _, err := f.svc.SetCartItem(ctx, f.uid(), f.cancion.ID.Hex(), 2)
	require.NoError(t, err)
	_, _, err = f.svc.SetCartItem(ctx, f.uid(), f.paciente.ID.Hex(), 5)
	require.NoError(t, err)

	order, err := f.svc.PlaceOrder(ctx, f.uid(), checkout())
	require.NoError(t, err)
	assert.False(t, order.ID.IsZero())
	assert.Equal(t, "164.65", order.Total().StringFixed(2))
	assert.Equal(t, "************1234", order.CardNumber)

	cartNow, err := f.svc.Cart(ctx, f.uid())
	require.NoError(t, err)
	assert.Empty(t, cartNow)

	u, err := f.st.Users().GetByID(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, []primitive.ObjectID{order.ID}, u.Orders)

	assert.Equal(t, []primitive.ObjectID{order.ID}, f.pub.orders)
	assert.Equal(t, []string{"corr-42"}, f.pub.corr)
}

func TestPlaceOrderEmptyCart(t *testing.T) {
	f := setup(t)

	_, err := f.svc.PlaceOrder(context.Background(), f.uid(), checkout())
	assertKind(t, err, apperr.BadRequest)
	assert.Empty(t, f.pub.orders)
}

func TestPlaceOrderValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	req := checkout()
	req.Address = " "
	_, err := f.svc.PlaceOrder(ctx, f.uid(), req)
	assertKind(t, err, apperr.Invalid)

	req = checkout()
	req.Items = []OrderItemInput{}
	_, err = f.svc.PlaceOrder(ctx, f.uid(), req)
	assertKind(t, err, apperr.Invalid)

	req = checkout()
	req.Items = []OrderItemInput{{Product: f.cancion.ID.Hex(), Qty: 0}}
	_, err = f.svc.PlaceOrder(ctx, f.uid(), req)
	assertKind(t, err, apperr.Invalid)

	_, err = f.svc.PlaceOrder(ctx, "bad", checkout())
	assertKind(t, err, apperr.Invalid)

	req = checkout()
	req.Items = []OrderItemInput{{Product: f.cancion.ID.Hex(), Qty: 1}}
	_, err = f.svc.PlaceOrder(ctx, primitive.NewObjectID().Hex(), req)
	assertKind(t, err, apperr.NotFound)
}

func TestPlaceOrderMissingProductWritesNothing(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, _, err := f.svc.SetCartItem(ctx, f.uid(), f.cancion.ID.Hex(), 2)
	require.NoError(t, err)

	req := checkout()
	req.Items = []OrderItemInput{
		{Product: f.paciente.ID.Hex(), Qty: 1},
		{Product: primitive.NewObjectID().Hex(), Qty: 1},
	}
	_, err = f.svc.PlaceOrder(ctx, f.uid(), req)
	assertKind(t, err, apperr.BadRequest)

	orders, err := f.svc.Orders(ctx, f.uid())
	require.NoError(t, err)
	assert.Empty(t, orders)

	entries, err := f.svc.Cart(ctx, f.uid())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[0].Qty)
	assert.Empty(t, f.pub.orders)
}

func TestPlaceOrderExplicitItemsKeepCart(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, _, err := f.svc.SetCartItem(ctx, f.uid(), f.cancion.ID.Hex(), 1)
	require.NoError(t, err)

	req := checkout()
	req.Items = []OrderItemInput{
		{Product: f.paciente.ID.Hex(), Qty: 2},
		{Product: f.paciente.ID.Hex(), Qty: 3},
	}
	order, err := f.svc.PlaceOrder(ctx, f.uid(), req)
	require.NoError(t, err)
	require.Len(t, order.Items, 1)
	assert.Equal(t, 5, order.Items[0].Qty)
	assert.Equal(t, 20.95, order.Items[0].Price)

	entries, err := f.svc.Cart(ctx, f.uid())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestOrderKeepsPriceSnapshot(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, _, err := f.svc.SetCartItem(ctx, f.uid(), f.cancion.ID.Hex(), 2)
	require.NoError(t, err)
	order, err := f.svc.PlaceOrder(ctx, f.uid(), checkout())
	require.NoError(t, err)

	require.NoError(t, f.st.Products().SetPrice(ctx, f.cancion.ID, 99.99))

	detail, err := f.svc.Order(ctx, f.uid(), order.ID.Hex())
	require.NoError(t, err)
	require.Len(t, detail.OrderItems, 1)
	assert.Equal(t, 29.95, detail.OrderItems[0].Price)
	assert.Equal(t, 99.99, detail.OrderItems[0].Product.Price)
	assert.Equal(t, "59.90", detail.Total.StringFixed(2))
	assert.Equal(t, "Fake St 123", detail.Address)
}

func TestOrderOfAnotherUserIsNotFound(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, _, err := f.svc.SetCartItem(ctx, f.uid(), f.cancion.ID.Hex(), 1)
	require.NoError(t, err)
	order, err := f.svc.PlaceOrder(ctx, f.uid(), checkout())
	require.NoError(t, err)

	other := &model.User{Email: "jane@doe.com"}
	require.NoError(t, f.st.Users().Create(ctx, other))

	_, err = f.svc.Order(ctx, other.ID.Hex(), order.ID.Hex())
	assertKind(t, err, apperr.NotFound)

	_, err = f.svc.Order(ctx, f.uid(), "bad")
	assertKind(t, err, apperr.Invalid)
}

func TestOrdersNewestFirst(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	var ids []primitive.ObjectID
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Hour)
		f.svc.now = func() time.Time { return at }

		req := checkout()
		req.Items = []OrderItemInput{{Product: f.cancion.ID.Hex(), Qty: i + 1}}
		o, err := f.svc.PlaceOrder(ctx, f.uid(), req)
		require.NoError(t, err)
		ids = append(ids, o.ID)
	}

	orders, err := f.svc.Orders(ctx, f.uid())
	require.NoError(t, err)
	require.Len(t, orders, 3)
	assert.Equal(t, ids[2], orders[0].ID)
	assert.Equal(t, ids[0], orders[2].ID)
	assert.Equal(t, "89.85", orders[0].Total.StringFixed(2))
}

func TestPublishFailureKeepsOrder(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.pub.err = errors.New("broker down")

	req := checkout()
	req.Items = []OrderItemInput{{Product: f.cancion.ID.Hex(), Qty: 1}}
	order, err := f.svc.PlaceOrder(ctx, f.uid(), req)
	require.NoError(t, err)

	_, err = f.svc.Order(ctx, f.uid(), order.ID.Hex())
	assert.NoError(t, err)
}

func TestProductLookup(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	p, err := f.svc.Product(ctx, f.paciente.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, "El paciente", p.Name)

	_, err = f.svc.Product(ctx, primitive.NewObjectID().Hex())
	assertKind(t, err, apperr.NotFound)

	catalog, err := f.svc.Catalog(ctx)
	require.NoError(t, err)
	assert.Len(t, catalog, 2)
}

// directStore runs RunAtomic sections without rollback, like a MongoDB
// deployment with transactions disabled.
type directStore struct {
	*memstore.Store
	users store.Users
}

func (d directStore) Users() store.Users { return d.users }

func (d directStore) RunAtomic(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type failingUsers struct {
	store.Users
	appendErr error
	clearErr  error
}

func (u failingUsers) AppendOrder(ctx context.Context, userID, orderID primitive.ObjectID) error {
	if u.appendErr != nil {
		return u.appendErr
	}
	return u.Users.AppendOrder(ctx, userID, orderID)
}

func (u failingUsers) ClearCart(ctx context.Context, userID primitive.ObjectID) error {
	if u.clearErr != nil {
		return u.clearErr
	}
	return u.Users.ClearCart(ctx, userID)
}

func TestPlaceOrderCompensatesWithoutTransactions(t *testing.T) {
	cases := []struct {
		name  string
		users failingUsers
	}{
		{"append order fails", failingUsers{appendErr: errors.New("write failed")}},
		{"clear cart fails", failingUsers{clearErr: errors.New("write failed")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := setup(t)
			ctx := context.Background()
			_, _, err := f.svc.SetCartItem(ctx, f.uid(), f.cancion.ID.Hex(), 2)
			require.NoError(t, err)

			users := tc.users
			users.Users = f.st.Users()
			svc := NewService(directStore{Store: f.st, users: users}, f.pub, log.New(io.Discard, "", 0))

			_, err = svc.PlaceOrder(ctx, f.uid(), checkout())
			assertKind(t, err, apperr.Internal)

			u, err := f.st.Users().GetByID(ctx, f.user.ID)
			require.NoError(t, err)
			assert.Empty(t, u.Orders)
			assert.Equal(t, 1, u.Cart.Len())

			orders, err := f.svc.Orders(ctx, f.uid())
			require.NoError(t, err)
			assert.Empty(t, orders)
			assert.Empty(t, f.pub.orders)
		})
	}
}

func TestClearCart(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, _, err := f.svc.SetCartItem(ctx, f.uid(), f.cancion.ID.Hex(), 2)
	require.NoError(t, err)
	_, _, err = f.svc.SetCartItem(ctx, f.uid(), f.paciente.ID.Hex(), 1)
	require.NoError(t, err)

	entries, err := f.svc.ClearCart(ctx, f.uid())
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)

	_, err = f.svc.ClearCart(ctx, primitive.NewObjectID().Hex())
	assertKind(t, err, apperr.NotFound)

	_, err = f.svc.ClearCart(ctx, "bad")
	assertKind(t, err, apperr.Invalid)
}
