// Package cart holds the per-user shopping cart: a mapping from product id
// to quantity that remembers the order in which products were added.
package cart

import (
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var ErrInvalidQty = errors.New("quantity must be an integer greater than 0")

// Line is one cart entry as stored in the user document.
type Line struct {
	ProductID primitive.ObjectID `bson:"product" json:"product"`
	Qty       int                `bson:"qty" json:"qty"`
}

// Cart is keyed by product, so a product can never appear twice.
// The zero value is an empty cart ready to use.
type Cart struct {
	qty   map[primitive.ObjectID]int
	order []primitive.ObjectID
}

// New builds a cart from stored lines. A later line for the same product
// replaces an earlier one.
func New(lines ...Line) Cart {
	var c Cart
	for _, l := range lines {
		if l.Qty < 1 {
			continue
		}
		_, _ = c.Set(l.ProductID, l.Qty)
	}
	return c
}

// Set stores qty for the product, overwriting any previous quantity.
// It reports whether a new entry was inserted.
func (c *Cart) Set(productID primitive.ObjectID, qty int) (bool, error) {
	if qty < 1 {
		return false, ErrInvalidQty
	}
	if c.qty == nil {
		c.qty = make(map[primitive.ObjectID]int)
	}
	_, exists := c.qty[productID]
	c.qty[productID] = qty
	if !exists {
		c.order = append(c.order, productID)
	}
	return !exists, nil
}

// Remove deletes the entry for the product. Removing an absent product is a no-op.
func (c *Cart) Remove(productID primitive.ObjectID) bool {
	if _, ok := c.qty[productID]; !ok {
		return false
	}
	delete(c.qty, productID)
	for i, id := range c.order {
		if id == productID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return true
}

func (c Cart) Qty(productID primitive.ObjectID) (int, bool) {
	q, ok := c.qty[productID]
	return q, ok
}

func (c Cart) Len() int {
	return len(c.order)
}

// Lines returns the entries in insertion order. The result is never nil.
func (c Cart) Lines() []Line {
	lines := make([]Line, 0, len(c.order))
	for _, id := range c.order {
		lines = append(lines, Line{ProductID: id, Qty: c.qty[id]})
	}
	return lines
}

func (c Cart) ProductIDs() []primitive.ObjectID {
	ids := make([]primitive.ObjectID, len(c.order))
	copy(ids, c.order)
	return ids
}

func (c Cart) Clone() Cart {
	return New(c.Lines()...)
}

// MarshalBSONValue stores the cart as an array of {product, qty} documents.
func (c Cart) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.MarshalValue(c.Lines())
}

func (c *Cart) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	*c = Cart{}
	if t == bson.TypeNull || t == bson.TypeUndefined {
		return nil
	}
	var lines []Line
	if err := (bson.RawValue{Type: t, Value: data}).Unmarshal(&lines); err != nil {
		return err
	}
	*c = New(lines...)
	return nil
}
