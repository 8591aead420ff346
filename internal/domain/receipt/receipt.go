//nolint:wrapcheck
package receipt

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vworld/virtualworld/internal/domain/account"
	"github.com/vworld/virtualworld/internal/domain/cart"
)

// Receipt records one completed shop purchase.
type Receipt struct {
	id        string
	shop      cart.Shop
	username  string
	amount    decimal.Decimal
	createdAt time.Time
}

func NewReceipt(shop cart.Shop, username string, amount decimal.Decimal) (*Receipt, error) {
	if err := account.ValidateUsername(username); err != nil {
		return nil, err
	}

	return &Receipt{
		id:        uuid.NewString(),
		shop:      shop,
		username:  username,
		amount:    amount,
		createdAt: time.Now(),
	}, nil
}

// Restore rebuilds a receipt from its persisted fields.
func Restore(id string, shop cart.Shop, username string, amount decimal.Decimal, createdAt time.Time) *Receipt {
	return &Receipt{
		id:        id,
		shop:      shop,
		username:  username,
		amount:    amount,
		createdAt: createdAt,
	}
}

func (r *Receipt) ID() string {
	return r.id
}

func (r *Receipt) Shop() cart.Shop {
	return r.shop
}

func (r *Receipt) Username() string {
	return r.username
}

func (r *Receipt) Amount() decimal.Decimal {
	return r.amount
}

func (r *Receipt) CreatedAt() time.Time {
	return r.createdAt
}
