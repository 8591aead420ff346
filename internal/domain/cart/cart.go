// Package cart models a per-shop order ledger: item quantities, the quantity
// total and the money total derived from a static price table.
package cart

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrUnknownShop     = errors.New("unknown shop")
	ErrUnknownItem     = errors.New("unknown item type")
	ErrInvalidQuantity = errors.New("quantity must be a single digit")
)

// Shop identifies one of the fixed catalogs.
type Shop string

const (
	ShopCoffee Shop = "coffee"
	ShopTech   Shop = "tech"
	ShopPizza  Shop = "pizza"
)

// TotalKey is the ledger line carrying the quantity sum. It is persisted
// after the item lines.
const TotalKey = "total"

type catalogItem struct {
	name  string
	price decimal.Decimal
}

// Catalog line order matters: it is the order lines are written to the
// ledger file.
var catalogs = map[Shop][]catalogItem{
	ShopCoffee: {
		{"cappuccino", decimal.NewFromFloat(3.50)},
		{"espresso", decimal.NewFromFloat(3.00)},
		{"flat_white", decimal.NewFromFloat(2.50)},
		{"latte", decimal.NewFromFloat(4.50)},
		{"mocha", decimal.NewFromFloat(3.50)},
	},
	ShopTech: {
		{"camera", decimal.NewFromFloat(300.00)},
		{"phone", decimal.NewFromFloat(500.00)},
		{"tv", decimal.NewFromFloat(1200.00)},
		{"pc", decimal.NewFromFloat(1000.00)},
		{"tablet", decimal.NewFromFloat(800.00)},
	},
	ShopPizza: {
		{"meat", decimal.NewFromFloat(5.00)},
		{"cheese", decimal.NewFromFloat(5.00)},
		{"pepperoni", decimal.NewFromFloat(5.00)},
		{"hawaiian", decimal.NewFromFloat(5.00)},
		{"seafood", decimal.NewFromFloat(5.00)},
	},
}

// Shops lists the known shops in a fixed order.
func Shops() []Shop {
	return []Shop{ShopCoffee, ShopTech, ShopPizza}
}

// Items returns the catalog item names for shop in ledger line order.
func Items(shop Shop) ([]string, error) {
	catalog, ok := catalogs[shop]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownShop, shop)
	}

	names := make([]string, 0, len(catalog))
	for _, item := range catalog {
		names = append(names, item.name)
	}

	return names, nil
}

// Price returns the unit price of an item in shop's catalog.
func Price(shop Shop, item string) (decimal.Decimal, error) {
	for _, ci := range catalogs[shop] {
		if ci.name == item {
			return ci.price, nil
		}
	}

	return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrUnknownItem, item)
}

// Cart is one shop's in-memory ledger.
type Cart struct {
	shop       Shop
	quantities map[string]int
}

// New returns an all-zero cart for shop.
func New(shop Shop) (*Cart, error) {
	if _, ok := catalogs[shop]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownShop, shop)
	}

	c := &Cart{
		shop:       shop,
		quantities: make(map[string]int, len(catalogs[shop])),
	}

	for _, item := range catalogs[shop] {
		c.quantities[item.name] = 0
	}

	return c, nil
}

func (c *Cart) Shop() Shop {
	return c.shop
}

// Quantity returns the current quantity for item.
func (c *Cart) Quantity(item string) (int, error) {
	qty, ok := c.quantities[item]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownItem, item)
	}

	return qty, nil
}

// SetQuantity applies one raw entry-field input to item. Empty input means
// zero; otherwise the input must be exactly one ASCII digit. Anything else
// returns ErrInvalidQuantity and leaves the cart unchanged.
func (c *Cart) SetQuantity(item, rawInput string) error {
	if _, ok := c.quantities[item]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownItem, item)
	}

	qty, err := parseQuantity(rawInput)
	if err != nil {
		return err
	}

	c.quantities[item] = qty

	return nil
}

func parseQuantity(rawInput string) (int, error) {
	if rawInput == "" {
		return 0, nil
	}

	if len(rawInput) != 1 || rawInput[0] < '0' || rawInput[0] > '9' {
		return 0, fmt.Errorf("%w: %q", ErrInvalidQuantity, rawInput)
	}

	return int(rawInput[0] - '0'), nil
}

// SetQuantityValue sets item to an already-parsed quantity. Used when
// rehydrating a cart from its ledger file.
func (c *Cart) SetQuantityValue(item string, qty int) error {
	if _, ok := c.quantities[item]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownItem, item)
	}

	if qty < 0 || qty > 9 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, qty)
	}

	c.quantities[item] = qty

	return nil
}

// Total is the sum of all line quantities.
func (c *Cart) Total() int {
	total := 0
	for _, qty := range c.quantities {
		total += qty
	}

	return total
}

// GrandTotal recomputes the money total from the price table. It is always
// derived, never stored.
func (c *Cart) GrandTotal() decimal.Decimal {
	total := decimal.Zero

	for _, item := range catalogs[c.shop] {
		qty := c.quantities[item.name]
		if qty == 0 {
			continue
		}

		total = total.Add(item.price.Mul(decimal.NewFromInt(int64(qty))))
	}

	return total
}

// Empty reports whether every quantity is zero. An empty cart cannot be
// checked out.
func (c *Cart) Empty() bool {
	return c.Total() == 0
}

// Reset zeroes every quantity.
func (c *Cart) Reset() {
	for item := range c.quantities {
		c.quantities[item] = 0
	}
}
