package storage

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/vworld/virtualworld/internal/domain/account"
	"github.com/vworld/virtualworld/internal/domain/cart"
	"github.com/vworld/virtualworld/internal/domain/receipt"
)

var (
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUserNotFound      = errors.New("user not found")
	ErrBalanceNotEnough  = errors.New("user balance not enough")
	ErrNegativeAmount    = errors.New("amount must not be negative")
	ErrCorruptRecord     = errors.New("record file is corrupt")
	ErrCorruptSession    = errors.New("session file is corrupt")
	ErrAlreadyRunning    = errors.New("another instance is already running")
)

// Options is a snapshot of the process-lifecycle ledger.
type Options struct {
	Running     bool
	TimesOpened int
}

type AccountStorage interface {
	CreateAccount(ctx context.Context, acc *account.Account) error
	GetAccount(ctx context.Context, username string) (*account.Account, error)
	AccountExists(ctx context.Context, username, password string) (bool, error)
	// UpdateAccount replaces the record stored under oldUsername with acc.
	// When acc.Username differs from oldUsername the name index follows,
	// and so does the active session if it belongs to oldUsername.
	UpdateAccount(ctx context.Context, oldUsername string, acc *account.Account) error
	DeleteAccount(ctx context.Context, username string) error
	WithdrawBalance(ctx context.Context, username string, amount decimal.Decimal) error
	DepositBalance(ctx context.Context, username string, amount decimal.Decimal) error
	ListUsernames(ctx context.Context) ([]string, error)
}

type SessionStorage interface {
	SetSession(ctx context.Context, acc *account.Account) error
	GetSession(ctx context.Context) (*account.Account, error)
}

type CartStorage interface {
	SaveCart(ctx context.Context, c *cart.Cart) error
	LoadCart(ctx context.Context, shop cart.Shop) (*cart.Cart, error)
	ResetCart(ctx context.Context, shop cart.Shop) error
}

type OptionsStorage interface {
	// AcquireLaunchLock marks the data directory as in use and bumps the
	// launch counter. The lock is advisory: it is a flag in the options
	// file, not an OS file lock, so it only guards cooperating processes.
	AcquireLaunchLock(ctx context.Context) (Options, error)
	ReleaseLaunchLock(ctx context.Context) error
	GetOptions(ctx context.Context) (Options, error)
}

type ReceiptStorage interface {
	AppendReceipt(ctx context.Context, rcpt *receipt.Receipt) error
	ListReceipts(ctx context.Context) ([]*receipt.Receipt, error)
}

type Storage interface {
	AccountStorage
	SessionStorage
	CartStorage
	OptionsStorage
	ReceiptStorage
	Close() error
}

func NewStorage(store Storage) Storage {
	return store
}
