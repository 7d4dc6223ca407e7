package shop

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/errgroup"

	"storefront-backend/internal/apperr"
	"storefront-backend/internal/cart"
	"storefront-backend/internal/correlation"
	"storefront-backend/internal/model"
	"storefront-backend/internal/store"
)

type OrderItemInput struct {
	Product string `json:"product"`
	Qty     int    `json:"qty"`
}

// OrderRequest places an order from Items when they are given and from the
// stored cart when Items is nil.
type OrderRequest struct {
	Items      []OrderItemInput `json:"items"`
	Address    string           `json:"address"`
	CardHolder string           `json:"cardHolder"`
	CardNumber string           `json:"cardNumber"`
}

func (r OrderRequest) fromCart() bool { return r.Items == nil }

// OrderLine is an order item joined with the current catalog entry. Price is
// the snapshot taken at checkout, not the current catalog price.
type OrderLine struct {
	Product model.Product `json:"product"`
	Qty     int           `json:"qty"`
	Price   float64       `json:"price"`
}

type OrderSummary struct {
	ID    primitive.ObjectID `json:"_id"`
	Date  time.Time          `json:"date"`
	Items []OrderLine        `json:"items"`
	Total decimal.Decimal    `json:"total"`
}

type OrderDetail struct {
	ID         primitive.ObjectID `json:"_id"`
	Address    string             `json:"address"`
	Date       time.Time          `json:"date"`
	CardHolder string             `json:"cardHolder"`
	CardNumber string             `json:"cardNumber"`
	OrderItems []OrderLine        `json:"orderItems"`
	Total      decimal.Decimal    `json:"total"`
}

func (r OrderRequest) validate() ([]cart.Line, error) {
	if strings.TrimSpace(r.Address) == "" || strings.TrimSpace(r.CardHolder) == "" || strings.TrimSpace(r.CardNumber) == "" {
		return nil, apperr.New(apperr.Invalid, "Address, card holder and card number are required.")
	}
	if model.MaskCardNumber(r.CardNumber) == "" {
		return nil, apperr.New(apperr.Invalid, "Card number must contain digits.")
	}
	if r.fromCart() {
		return nil, nil
	}
	if len(r.Items) == 0 {
		return nil, apperr.New(apperr.Invalid, "Order items must not be empty.")
	}

	// repeated products are merged by summing their quantities
	merged := cart.New()
	for _, in := range r.Items {
		pid, err := primitive.ObjectIDFromHex(in.Product)
		if err != nil {
			return nil, apperr.Wrap(apperr.Invalid, "Invalid product ID in order items.", err)
		}
		if in.Qty < 1 {
			return nil, apperr.Wrap(apperr.Invalid, "Quantity must be an integer greater than 0.", cart.ErrInvalidQty)
		}
		prev, _ := merged.Qty(pid)
		if _, err := merged.Set(pid, prev+in.Qty); err != nil {
			return nil, apperr.Wrap(apperr.Invalid, "Quantity must be an integer greater than 0.", err)
		}
	}
	return merged.Lines(), nil
}

// PlaceOrder creates an order with a price snapshot of every item, links it
// to the user and, in cart mode, empties the cart. Either all of these
// writes happen or none do.
func (s *Service) PlaceOrder(ctx context.Context, userID string, req OrderRequest) (*model.Order, error) {
	uid, err := parseID(userID, "Invalid user ID.")
	if err != nil {
		return nil, err
	}
	explicit, err := req.validate()
	if err != nil {
		return nil, err
	}

	var placed *model.Order
	err = s.store.RunAtomic(ctx, func(ctx context.Context) error {
		user, err := s.store.Users().GetByID(ctx, uid)
		if err != nil {
			return lookupErr(err, "User not found.")
		}

		lines := explicit
		if req.fromCart() {
			lines = user.Cart.Lines()
			if len(lines) == 0 {
				return apperr.New(apperr.BadRequest, "Cart is empty.")
			}
		}

		ids := make([]primitive.ObjectID, 0, len(lines))
		for _, l := range lines {
			ids = append(ids, l.ProductID)
		}
		products, err := s.store.Products().FindByIDs(ctx, ids)
		if err != nil {
			return internal(err)
		}

		items := make([]model.OrderItem, 0, len(lines))
		for _, l := range lines {
			p, ok := products[l.ProductID]
			if !ok {
				return apperr.New(apperr.BadRequest, "Product "+l.ProductID.Hex()+" not found.")
			}
			items = append(items, model.OrderItem{ProductID: p.ID, Qty: l.Qty, Price: p.Price})
		}

		order := &model.Order{
			UserID:     uid,
			Items:      items,
			Address:    strings.TrimSpace(req.Address),
			Date:       s.now().UTC(),
			CardHolder: strings.TrimSpace(req.CardHolder),
			CardNumber: model.MaskCardNumber(req.CardNumber),
		}
		if err := s.store.Orders().Create(ctx, order); err != nil {
			return internal(err)
		}

		if err := s.store.Users().AppendOrder(ctx, uid, order.ID); err != nil {
			s.discardOrder(ctx, order, false)
			return lookupErr(err, "User not found.")
		}
		if req.fromCart() {
			if err := s.store.Users().ClearCart(ctx, uid); err != nil {
				s.discardOrder(ctx, order, true)
				return lookupErr(err, "User not found.")
			}
		}

		placed = order
		return nil
	})
	if err != nil {
		return nil, internal(err)
	}

	if err := s.events.PublishOrderPlaced(ctx, placed, correlation.FromContext(ctx)); err != nil {
		s.logger.Printf("publish order %s: %v", placed.ID.Hex(), err)
	}
	return placed, nil
}

// discardOrder undoes the writes of a checkout whose later steps failed:
// the order reference on the user when linked is set, then the order
// itself. Stores that roll back on their own turn both into no-ops.
func (s *Service) discardOrder(ctx context.Context, o *model.Order, linked bool) {
	if linked {
		err := s.store.Users().RemoveOrder(ctx, o.UserID, o.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			s.logger.Printf("unlink order %s from user %s: %v", o.ID.Hex(), o.UserID.Hex(), err)
		}
	}
	err := s.store.Orders().Delete(ctx, o.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.logger.Printf("discard order %s: %v", o.ID.Hex(), err)
	}
}

// Orders lists the user's orders, newest first.
func (s *Service) Orders(ctx context.Context, userID string) ([]OrderSummary, error) {
	uid, err := parseID(userID, "Invalid user ID.")
	if err != nil {
		return nil, err
	}
	user, err := s.store.Users().GetByID(ctx, uid)
	if err != nil {
		return nil, lookupErr(err, "User not found.")
	}

	orders, err := s.store.Orders().ListByIDs(ctx, user.Orders)
	if err != nil {
		return nil, internal(err)
	}
	sort.SliceStable(orders, func(i, j int) bool { return orders[i].Date.After(orders[j].Date) })

	products, err := s.productsFor(ctx, orders...)
	if err != nil {
		return nil, err
	}

	out := make([]OrderSummary, 0, len(orders))
	for _, o := range orders {
		out = append(out, OrderSummary{
			ID:    o.ID,
			Date:  o.Date,
			Items: orderLines(o, products),
			Total: o.Total(),
		})
	}
	return out, nil
}

// Order returns one order of the user. Orders of other users are reported
// as not found.
func (s *Service) Order(ctx context.Context, userID, orderID string) (*OrderDetail, error) {
	uid, err := parseID(userID, "Invalid user ID or order ID.")
	if err != nil {
		return nil, err
	}
	oid, err := parseID(orderID, "Invalid user ID or order ID.")
	if err != nil {
		return nil, err
	}

	var order *model.Order
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if _, err := s.store.Users().GetByID(gctx, uid); err != nil {
			return lookupErr(err, "User not found.")
		}
		return nil
	})
	g.Go(func() error {
		o, err := s.store.Orders().GetForUser(gctx, oid, uid)
		if err != nil {
			return lookupErr(err, "Order not found.")
		}
		order = o
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	products, err := s.productsFor(ctx, *order)
	if err != nil {
		return nil, err
	}
	return &OrderDetail{
		ID:         order.ID,
		Address:    order.Address,
		Date:       order.Date,
		CardHolder: order.CardHolder,
		CardNumber: order.CardNumber,
		OrderItems: orderLines(*order, products),
		Total:      order.Total(),
	}, nil
}

func (s *Service) productsFor(ctx context.Context, orders ...model.Order) (map[primitive.ObjectID]model.Product, error) {
	seen := make(map[primitive.ObjectID]struct{})
	ids := make([]primitive.ObjectID, 0)
	for _, o := range orders {
		for _, it := range o.Items {
			if _, ok := seen[it.ProductID]; ok {
				continue
			}
			seen[it.ProductID] = struct{}{}
			ids = append(ids, it.ProductID)
		}
	}
	products, err := s.store.Products().FindByIDs(ctx, ids)
	if err != nil {
		return nil, internal(err)
	}
	return products, nil
}

// orderLines keeps every item of the order. Products deleted from the
// catalog are reported with their id only.
func orderLines(o model.Order, products map[primitive.ObjectID]model.Product) []OrderLine {
	lines := make([]OrderLine, 0, len(o.Items))
	for _, it := range o.Items {
		p, ok := products[it.ProductID]
		if !ok {
			p = model.Product{ID: it.ProductID}
		}
		lines = append(lines, OrderLine{Product: p, Qty: it.Qty, Price: it.Price})
	}
	return lines
}
