package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront-backend/internal/cart"
)

type Product struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Name        string             `bson:"name" json:"name"`
	Description string             `bson:"description" json:"description"`
	Img         string             `bson:"img" json:"img"`
	Price       float64            `bson:"price" json:"price"`
}

type User struct {
	ID        primitive.ObjectID   `bson:"_id,omitempty" json:"_id"`
	Email     string               `bson:"email" json:"email"`
	Password  string               `bson:"password" json:"-"`
	Name      string               `bson:"name" json:"name"`
	Surname   string               `bson:"surname" json:"surname"`
	Address   string               `bson:"address" json:"address"`
	Birthdate time.Time            `bson:"birthdate" json:"birthdate"`
	Cart      cart.Cart            `bson:"cartItems" json:"-"`
	Orders    []primitive.ObjectID `bson:"orders" json:"-"`
}

// OrderItem carries the unit price captured when the order was placed.
type OrderItem struct {
	ProductID primitive.ObjectID `bson:"product" json:"product"`
	Qty       int                `bson:"qty" json:"qty"`
	Price     float64            `bson:"price" json:"price"`
}

type Order struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	UserID     primitive.ObjectID `bson:"user" json:"user"`
	Items      []OrderItem        `bson:"items" json:"items"`
	Address    string             `bson:"address" json:"address"`
	Date       time.Time          `bson:"date" json:"date"`
	CardHolder string             `bson:"cardHolder" json:"cardHolder"`
	CardNumber string             `bson:"cardNumber" json:"cardNumber"`
}

// Total sums the snapshot prices, rounded to cents.
func (o Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range o.Items {
		total = total.Add(LineTotal(it.Price, it.Qty))
	}
	return total.Round(2)
}

func LineTotal(price float64, qty int) decimal.Decimal {
	return decimal.NewFromFloat(price).Mul(decimal.NewFromInt(int64(qty)))
}

// MaskCardNumber keeps only the last four digits of a card number.
func MaskCardNumber(number string) string {
	digits := make([]byte, 0, len(number))
	for i := 0; i < len(number); i++ {
		if number[i] >= '0' && number[i] <= '9' {
			digits = append(digits, number[i])
		}
	}
	if len(digits) <= 4 {
		return string(digits)
	}
	return strings.Repeat("*", len(digits)-4) + string(digits[len(digits)-4:])
}
