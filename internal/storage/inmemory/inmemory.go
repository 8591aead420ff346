// Package inmemory implements storage.Storage with plain maps. It keeps the
// flat-file semantics (guest defaults, launch lock, one-record session)
// without touching disk, which is what the facade tests want.
package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/vworld/virtualworld/internal/domain/account"
	"github.com/vworld/virtualworld/internal/domain/cart"
	"github.com/vworld/virtualworld/internal/domain/receipt"
	"github.com/vworld/virtualworld/internal/storage"
)

var _ storage.Storage = (*Storage)(nil)

type Storage struct {
	accounts map[string]*account.Account
	names    []string
	session  *account.Account
	carts    map[cart.Shop]*cart.Cart
	options  storage.Options
	receipts []*receipt.Receipt
	mu       sync.Mutex
}

func NewStorage() *Storage {
	return &Storage{
		accounts: make(map[string]*account.Account),
		names:    []string{account.GuestUsername},
		session:  account.Guest(),
		carts:    make(map[cart.Shop]*cart.Cart),
	}
}

func (s *Storage) Close() error {
	return nil
}

func clone(acc *account.Account) *account.Account {
	cp := *acc

	return &cp
}

func (s *Storage) CreateAccount(_ context.Context, acc *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[acc.Username]; ok {
		return storage.ErrUserAlreadyExists
	}

	s.accounts[acc.Username] = clone(acc)
	s.names = append(s.names, acc.Username)

	return nil
}

func (s *Storage) GetAccount(_ context.Context, username string) (*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[username]
	if !ok {
		return nil, storage.ErrUserNotFound
	}

	return clone(acc), nil
}

func (s *Storage) AccountExists(_ context.Context, username, password string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[username]

	return ok && acc.Password == password, nil
}

func (s *Storage) UpdateAccount(_ context.Context, oldUsername string, acc *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[oldUsername]; !ok {
		return storage.ErrUserNotFound
	}

	if acc.Username != oldUsername {
		if _, ok := s.accounts[acc.Username]; ok {
			return storage.ErrUserAlreadyExists
		}

		delete(s.accounts, oldUsername)

		for i, name := range s.names {
			if name == oldUsername {
				s.names[i] = acc.Username
			}
		}
	}

	s.accounts[acc.Username] = clone(acc)

	if s.session.Username == oldUsername {
		s.session = clone(acc)
	}

	return nil
}

func (s *Storage) DeleteAccount(_ context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[username]; !ok {
		return storage.ErrUserNotFound
	}

	delete(s.accounts, username)

	kept := s.names[:0]
	for _, name := range s.names {
		if name != username {
			kept = append(kept, name)
		}
	}
	s.names = kept

	return nil
}

func (s *Storage) WithdrawBalance(_ context.Context, username string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if amount.IsNegative() {
		return storage.ErrNegativeAmount
	}

	acc, ok := s.accounts[username]
	if !ok {
		return storage.ErrUserNotFound
	}

	if acc.Balance.LessThan(amount) {
		return storage.ErrBalanceNotEnough
	}

	acc.Balance = acc.Balance.Sub(amount)

	return nil
}

func (s *Storage) DepositBalance(_ context.Context, username string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if amount.IsNegative() {
		return storage.ErrNegativeAmount
	}

	acc, ok := s.accounts[username]
	if !ok {
		return storage.ErrUserNotFound
	}

	acc.Balance = acc.Balance.Add(amount)

	return nil
}

func (s *Storage) ListUsernames(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, len(s.names))
	copy(names, s.names)

	return names, nil
}

func (s *Storage) SetSession(_ context.Context, acc *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session = clone(acc)

	return nil
}

func (s *Storage) GetSession(_ context.Context) (*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return clone(s.session), nil
}

func (s *Storage) SaveCart(_ context.Context, c *cart.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp, err := copyCart(c)
	if err != nil {
		return err
	}

	s.carts[c.Shop()] = cp

	return nil
}

func (s *Storage) LoadCart(_ context.Context, shop cart.Shop) (*cart.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.carts[shop]
	if !ok {
		return cart.New(shop)
	}

	return copyCart(stored)
}

func (s *Storage) ResetCart(_ context.Context, shop cart.Shop) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := cart.New(shop)
	if err != nil {
		return err
	}

	s.carts[shop] = c

	return nil
}

func copyCart(c *cart.Cart) (*cart.Cart, error) {
	cp, err := cart.New(c.Shop())
	if err != nil {
		return nil, err
	}

	items, err := cart.Items(c.Shop())
	if err != nil {
		return nil, err
	}

	for _, item := range items {
		qty, err := c.Quantity(item)
		if err != nil {
			return nil, err
		}

		if err := cp.SetQuantityValue(item, qty); err != nil {
			return nil, err
		}
	}

	return cp, nil
}

func (s *Storage) AcquireLaunchLock(_ context.Context) (storage.Options, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.options.Running {
		return storage.Options{}, storage.ErrAlreadyRunning
	}

	s.options.Running = true
	s.options.TimesOpened++

	return s.options, nil
}

func (s *Storage) ReleaseLaunchLock(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.options.Running = false

	return nil
}

func (s *Storage) GetOptions(_ context.Context) (storage.Options, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.options, nil
}

func (s *Storage) AppendReceipt(_ context.Context, rcpt *receipt.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.receipts = append(s.receipts, rcpt)

	return nil
}

func (s *Storage) ListReceipts(_ context.Context) ([]*receipt.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	receipts := make([]*receipt.Receipt, len(s.receipts))
	copy(receipts, s.receipts)

	sort.Slice(receipts, func(i, j int) bool {
		return receipts[i].CreatedAt().Before(receipts[j].CreatedAt())
	})

	return receipts, nil
}
