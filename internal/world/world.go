// Package world is the facade the presentation shell talks to: signup and
// login, settings changes, shop carts and checkout. It owns no state of its
// own; everything lives in the record store behind it.
package world

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/vworld/virtualworld/internal/domain/account"
	"github.com/vworld/virtualworld/internal/domain/cart"
	"github.com/vworld/virtualworld/internal/domain/receipt"
	"github.com/vworld/virtualworld/internal/storage"
)

var (
	ErrCredentialsInvalid = errors.New("user credentials invalid")
	ErrCartEmpty          = errors.New("cart is empty")
)

type World struct {
	storage storage.Storage
	log     *slog.Logger
}

// NewWorld returns a new World instance.
func NewWorld(store storage.Storage, opts ...Option) *World {
	world := &World{
		storage: store,
		log:     slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}

	// Apply options
	for _, opt := range opts {
		opt(world)
	}

	return world
}

// Option is a functional option for World.
type Option func(w *World)

// WithLogger is an option for World that sets logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *World) {
		w.log = logger
	}
}

// Register creates an account. The starting balance comes from the age
// bracket table, not from the caller.
func (w *World) Register(ctx context.Context, username, password, age string) (*account.Account, error) {
	acc, err := account.NewAccount(username, password, age)
	if err != nil {
		return nil, err
	}

	if err := w.storage.CreateAccount(ctx, acc); err != nil {
		return nil, fmt.Errorf("storage.CreateAccount: %w", err)
	}

	w.log.Info("user registered", slog.String("username", acc.Username))

	return acc, nil
}

// Authenticate checks the exact username/password pair and makes the account
// the active session.
func (w *World) Authenticate(ctx context.Context, username, password string) (*account.Account, error) {
	ok, err := w.storage.AccountExists(ctx, username, password)
	if err != nil {
		return nil, fmt.Errorf("storage.AccountExists: %w", err)
	}

	if !ok {
		return nil, ErrCredentialsInvalid
	}

	acc, err := w.storage.GetAccount(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("storage.GetAccount: %w", err)
	}

	if err := w.storage.SetSession(ctx, acc); err != nil {
		return nil, fmt.Errorf("storage.SetSession: %w", err)
	}

	w.log.Info("user logged in", slog.String("username", username))

	return acc, nil
}

// EnterAsGuest makes the fixed guest identity the active session.
func (w *World) EnterAsGuest(ctx context.Context) (*account.Account, error) {
	guest := account.Guest()

	if err := w.storage.SetSession(ctx, guest); err != nil {
		return nil, fmt.Errorf("storage.SetSession: %w", err)
	}

	return guest, nil
}

// Logout resets the session to the guest identity.
func (w *World) Logout(ctx context.Context) error {
	if err := w.storage.SetSession(ctx, account.Guest()); err != nil {
		return fmt.Errorf("storage.SetSession: %w", err)
	}

	return nil
}

// CurrentUser returns the active session account.
func (w *World) CurrentUser(ctx context.Context) (*account.Account, error) {
	acc, err := w.storage.GetSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage.GetSession: %w", err)
	}

	return acc, nil
}

// ChangeName renames an account. The name index follows, and so does the
// session when the renamed user is the one logged in.
func (w *World) ChangeName(ctx context.Context, oldUsername, newUsername string) error {
	if err := account.ValidateUsername(newUsername); err != nil {
		return err
	}

	acc, err := w.storage.GetAccount(ctx, oldUsername)
	if err != nil {
		return fmt.Errorf("storage.GetAccount: %w", err)
	}

	acc.Username = newUsername

	if err := w.storage.UpdateAccount(ctx, oldUsername, acc); err != nil {
		return fmt.Errorf("storage.UpdateAccount: %w", err)
	}

	w.log.Info("username changed",
		slog.String("old", oldUsername),
		slog.String("new", newUsername))

	return nil
}

// ChangePassword replaces an account's password.
func (w *World) ChangePassword(ctx context.Context, username, newPassword string) error {
	if err := account.ValidatePassword(newPassword); err != nil {
		return err
	}

	acc, err := w.storage.GetAccount(ctx, username)
	if err != nil {
		return fmt.Errorf("storage.GetAccount: %w", err)
	}

	acc.Password = newPassword

	if err := w.storage.UpdateAccount(ctx, username, acc); err != nil {
		return fmt.Errorf("storage.UpdateAccount: %w", err)
	}

	return nil
}

// ChangeAge replaces an account's age. The balance is untouched: brackets
// only apply at signup.
func (w *World) ChangeAge(ctx context.Context, username, newAge string) error {
	if err := account.ValidateAge(newAge); err != nil {
		return err
	}

	acc, err := w.storage.GetAccount(ctx, username)
	if err != nil {
		return fmt.Errorf("storage.GetAccount: %w", err)
	}

	acc.Age = newAge

	if err := w.storage.UpdateAccount(ctx, username, acc); err != nil {
		return fmt.Errorf("storage.UpdateAccount: %w", err)
	}

	return nil
}

// DeleteAccount removes the account and its name-index entry. When the
// deleted user is the active session, the session falls back to guest.
func (w *World) DeleteAccount(ctx context.Context, username string) error {
	if err := w.storage.DeleteAccount(ctx, username); err != nil {
		return fmt.Errorf("storage.DeleteAccount: %w", err)
	}

	sess, err := w.storage.GetSession(ctx)
	if err != nil {
		return fmt.Errorf("storage.GetSession: %w", err)
	}

	if sess.Username == username {
		if err := w.storage.SetSession(ctx, account.Guest()); err != nil {
			return fmt.Errorf("storage.SetSession: %w", err)
		}
	}

	w.log.Info("user deleted", slog.String("username", username))

	return nil
}

// OpenShop starts a fresh all-zero order ledger for shop and returns the
// live cart.
func (w *World) OpenShop(ctx context.Context, shop cart.Shop) (*cart.Cart, error) {
	if err := w.storage.ResetCart(ctx, shop); err != nil {
		return nil, fmt.Errorf("storage.ResetCart: %w", err)
	}

	c, err := cart.New(shop)
	if err != nil {
		return nil, fmt.Errorf("cart.New: %w", err)
	}

	return c, nil
}

// SetCartQuantity applies one raw entry-field input to the cart. A rejected
// input (multi-character, non-digit) returns false and leaves both the cart
// and the ledger file untouched; an accepted one updates the quantity,
// recomputes the totals and persists the whole ledger.
func (w *World) SetCartQuantity(ctx context.Context, c *cart.Cart, item, rawInput string) (bool, error) {
	if err := c.SetQuantity(item, rawInput); err != nil {
		if errors.Is(err, cart.ErrInvalidQuantity) {
			w.log.Debug("cart input rejected",
				slog.String("item", item),
				slog.String("input", rawInput))

			return false, nil
		}

		return false, fmt.Errorf("cart.SetQuantity: %w", err)
	}

	if err := w.storage.SaveCart(ctx, c); err != nil {
		return false, fmt.Errorf("storage.SaveCart: %w", err)
	}

	return true, nil
}

// Checkout settles the cart against the active session. displayedAmount is
// whatever total the shell was showing; it is confirmation-only, the amount
// actually charged is the cart's own grand total. Guests always succeed.
// An insufficient balance keeps the ledger intact.
func (w *World) Checkout(ctx context.Context, c *cart.Cart, displayedAmount decimal.Decimal) (*receipt.Receipt, error) {
	if c.Empty() {
		return nil, ErrCartEmpty
	}

	amount := c.GrandTotal()

	if !amount.Equal(displayedAmount) {
		w.log.Warn("displayed amount differs from ledger total",
			slog.String("displayed", displayedAmount.String()),
			slog.String("ledger", amount.String()))
	}

	sess, err := w.storage.GetSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage.GetSession: %w", err)
	}

	if sess.Username != account.GuestUsername {
		if err := w.storage.WithdrawBalance(ctx, sess.Username, amount); err != nil {
			return nil, fmt.Errorf("storage.WithdrawBalance: %w", err)
		}

		// The session mirrors the account tuple; refresh it with the new
		// balance.
		acc, err := w.storage.GetAccount(ctx, sess.Username)
		if err != nil {
			return nil, fmt.Errorf("storage.GetAccount: %w", err)
		}

		if err := w.storage.SetSession(ctx, acc); err != nil {
			return nil, fmt.Errorf("storage.SetSession: %w", err)
		}
	}

	rcpt, err := receipt.NewReceipt(c.Shop(), sess.Username, amount)
	if err != nil {
		return nil, fmt.Errorf("receipt.NewReceipt: %w", err)
	}

	if err := w.storage.AppendReceipt(ctx, rcpt); err != nil {
		return nil, fmt.Errorf("storage.AppendReceipt: %w", err)
	}

	c.Reset()

	if err := w.storage.ResetCart(ctx, c.Shop()); err != nil {
		return nil, fmt.Errorf("storage.ResetCart: %w", err)
	}

	w.log.Info("purchase completed",
		slog.String("shop", string(c.Shop())),
		slog.String("username", sess.Username),
		slog.String("amount", amount.String()))

	return rcpt, nil
}

// Receipts returns the purchase history, oldest first.
func (w *World) Receipts(ctx context.Context) ([]*receipt.Receipt, error) {
	receipts, err := w.storage.ListReceipts(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage.ListReceipts: %w", err)
	}

	return receipts, nil
}
