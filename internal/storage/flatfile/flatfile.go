// Package flatfile implements storage.Storage over the delimited text files
// the game has always used. The file formats are byte-exact with the
// original data directory, so an existing install keeps working.
package flatfile

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vworld/virtualworld/internal/domain/account"
	"github.com/vworld/virtualworld/internal/domain/cart"
	"github.com/vworld/virtualworld/internal/domain/receipt"
	"github.com/vworld/virtualworld/internal/recordfile"
	"github.com/vworld/virtualworld/internal/storage"
)

var _ storage.Storage = (*Storage)(nil)

const (
	userNamesFile   = "user_names.txt"
	userDataFile    = "user_data.txt"
	currentUserFile = "current_user.txt"
	optionsFile     = "options.txt"
	receiptsFile    = "receipts.txt"

	accountDelim = ","
	ledgerDelim  = ":"

	accountArity = 4
	receiptArity = 5
)

const (
	defaultUserNames = "Guest"
	defaultUserData  = "Guest,None,50,1000000"
	defaultSession   = "Guest,None,50,1000000"
	defaultOptions   = "running:False\ntimes_opened:0"
	defaultReceipts  = ""
)

const (
	optRunning     = "running"
	optTimesOpened = "times_opened"
)

// Storage is a flat-file record store rooted at a data directory. All
// operations serialize on one mutex: every mutation is a whole-file
// read-modify-write cycle and two interleaved cycles would lose updates.
type Storage struct {
	dir string
	log *slog.Logger
	mu  sync.Mutex
}

// NewStorage returns a store keeping its files under dir.
func NewStorage(dir string, opts ...Option) *Storage {
	s := &Storage{
		dir: dir,
		log: slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Option is a functional option for Storage.
type Option func(s *Storage)

// WithLogger is an option for Storage that sets logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Storage) {
		s.log = logger
	}
}

func (s *Storage) Close() error {
	return nil
}

func (s *Storage) path(name string) string {
	return filepath.Join(s.dir, name)
}

// loadAccounts parses the account table into file order plus a username
// index. A line that does not split into the four comma fields, or whose
// balance is not a decimal, is surfaced as ErrCorruptRecord.
func (s *Storage) loadAccounts() ([]*account.Account, map[string]int, error) {
	lines, err := recordfile.Load(s.path(userDataFile), defaultUserData)
	if err != nil {
		return nil, nil, fmt.Errorf("recordfile.Load: %w", err)
	}

	accounts := make([]*account.Account, 0, len(lines))
	index := make(map[string]int, len(lines))

	for _, line := range lines {
		acc, err := parseAccount(line)
		if err != nil {
			return nil, nil, err
		}

		if _, ok := index[acc.Username]; ok {
			return nil, nil, fmt.Errorf("%w: duplicate record for %q",
				storage.ErrCorruptRecord, acc.Username)
		}

		index[acc.Username] = len(accounts)
		accounts = append(accounts, acc)
	}

	return accounts, index, nil
}

func parseAccount(line string) (*account.Account, error) {
	fields, err := recordfile.Split(line, accountDelim, accountArity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrCorruptRecord, err)
	}

	balance, err := decimal.NewFromString(fields[3])
	if err != nil {
		return nil, fmt.Errorf("%w: bad balance %q", storage.ErrCorruptRecord, fields[3])
	}

	return &account.Account{
		Username: fields[0],
		Password: fields[1],
		Age:      fields[2],
		Balance:  balance,
	}, nil
}

func formatAccount(acc *account.Account) string {
	return strings.Join([]string{acc.Username, acc.Password, acc.Age, acc.Balance.String()}, accountDelim)
}

func (s *Storage) saveAccounts(accounts []*account.Account) error {
	lines := make([]string, 0, len(accounts))
	for _, acc := range accounts {
		lines = append(lines, formatAccount(acc))
	}

	if err := recordfile.Save(s.path(userDataFile), lines); err != nil {
		return fmt.Errorf("recordfile.Save: %w", err)
	}

	return nil
}

func (s *Storage) loadUsernames() ([]string, error) {
	names, err := recordfile.Load(s.path(userNamesFile), defaultUserNames)
	if err != nil {
		return nil, fmt.Errorf("recordfile.Load: %w", err)
	}

	return names, nil
}

func (s *Storage) saveUsernames(names []string) error {
	if err := recordfile.Save(s.path(userNamesFile), names); err != nil {
		return fmt.Errorf("recordfile.Save: %w", err)
	}

	return nil
}

func (s *Storage) CreateAccount(_ context.Context, acc *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts, index, err := s.loadAccounts()
	if err != nil {
		return err
	}

	names, err := s.loadUsernames()
	if err != nil {
		return err
	}

	if _, ok := index[acc.Username]; ok {
		return storage.ErrUserAlreadyExists
	}

	for _, name := range names {
		if name == acc.Username {
			return storage.ErrUserAlreadyExists
		}
	}

	if err := s.saveAccounts(append(accounts, acc)); err != nil {
		return err
	}

	if err := s.saveUsernames(append(names, acc.Username)); err != nil {
		return err
	}

	s.log.Debug("account created", slog.String("username", acc.Username))

	return nil
}

func (s *Storage) GetAccount(_ context.Context, username string) (*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.getAccount(username)
}

func (s *Storage) getAccount(username string) (*account.Account, error) {
	accounts, index, err := s.loadAccounts()
	if err != nil {
		return nil, err
	}

	i, ok := index[username]
	if !ok {
		return nil, storage.ErrUserNotFound
	}

	return accounts[i], nil
}

func (s *Storage) AccountExists(_ context.Context, username, password string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts, _, err := s.loadAccounts()
	if err != nil {
		return false, err
	}

	for _, acc := range accounts {
		if acc.Username == username && acc.Password == password {
			return true, nil
		}
	}

	return false, nil
}

func (s *Storage) UpdateAccount(_ context.Context, oldUsername string, acc *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts, index, err := s.loadAccounts()
	if err != nil {
		return err
	}

	i, ok := index[oldUsername]
	if !ok {
		return storage.ErrUserNotFound
	}

	renamed := acc.Username != oldUsername

	var names []string

	if renamed {
		if _, ok := index[acc.Username]; ok {
			return storage.ErrUserAlreadyExists
		}

		names, err = s.loadUsernames()
		if err != nil {
			return err
		}

		// The name index can carry entries with no matching account
		// record; a rename must not collide with those either.
		for _, name := range names {
			if name == acc.Username {
				return storage.ErrUserAlreadyExists
			}
		}
	}

	// Every input is read and validated before the first write, the session
	// included: a corrupt session file must fail the whole update, not
	// leave a half-applied one behind.
	sess, err := s.getSession()
	if err != nil {
		return err
	}

	accounts[i] = acc

	if err := s.saveAccounts(accounts); err != nil {
		return err
	}

	if renamed {
		for j, name := range names {
			if name == oldUsername {
				names[j] = acc.Username
			}
		}

		if err := s.saveUsernames(names); err != nil {
			return err
		}
	}

	// The active session duplicates the account tuple, so it follows every
	// account update that touches it.
	if sess.Username == oldUsername {
		if err := s.setSession(acc); err != nil {
			return err
		}
	}

	return nil
}

func (s *Storage) DeleteAccount(_ context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts, index, err := s.loadAccounts()
	if err != nil {
		return err
	}

	i, ok := index[username]
	if !ok {
		return storage.ErrUserNotFound
	}

	accounts = append(accounts[:i], accounts[i+1:]...)

	if err := s.saveAccounts(accounts); err != nil {
		return err
	}

	names, err := s.loadUsernames()
	if err != nil {
		return err
	}

	kept := names[:0]
	for _, name := range names {
		if name != username {
			kept = append(kept, name)
		}
	}

	if err := s.saveUsernames(kept); err != nil {
		return err
	}

	s.log.Debug("account deleted", slog.String("username", username))

	return nil
}

func (s *Storage) WithdrawBalance(_ context.Context, username string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if amount.IsNegative() {
		return storage.ErrNegativeAmount
	}

	accounts, index, err := s.loadAccounts()
	if err != nil {
		return err
	}

	i, ok := index[username]
	if !ok {
		return storage.ErrUserNotFound
	}

	if accounts[i].Balance.LessThan(amount) {
		return storage.ErrBalanceNotEnough
	}

	accounts[i].Balance = accounts[i].Balance.Sub(amount)

	s.log.Debug("balance withdrawn",
		slog.String("username", username),
		slog.String("amount", amount.String()))

	return s.saveAccounts(accounts)
}

func (s *Storage) DepositBalance(_ context.Context, username string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if amount.IsNegative() {
		return storage.ErrNegativeAmount
	}

	accounts, index, err := s.loadAccounts()
	if err != nil {
		return err
	}

	i, ok := index[username]
	if !ok {
		return storage.ErrUserNotFound
	}

	accounts[i].Balance = accounts[i].Balance.Add(amount)

	s.log.Debug("balance deposited",
		slog.String("username", username),
		slog.String("amount", amount.String()))

	return s.saveAccounts(accounts)
}

func (s *Storage) ListUsernames(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.loadUsernames()
}

func (s *Storage) SetSession(_ context.Context, acc *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.setSession(acc)
}

func (s *Storage) setSession(acc *account.Account) error {
	if err := recordfile.Save(s.path(currentUserFile), []string{formatAccount(acc)}); err != nil {
		return fmt.Errorf("recordfile.Save: %w", err)
	}

	return nil
}

func (s *Storage) GetSession(_ context.Context) (*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.getSession()
}

func (s *Storage) getSession() (*account.Account, error) {
	lines, err := recordfile.Load(s.path(currentUserFile), defaultSession)
	if err != nil {
		return nil, fmt.Errorf("recordfile.Load: %w", err)
	}

	if len(lines) != 1 {
		return nil, fmt.Errorf("%w: want 1 record, got %d", storage.ErrCorruptSession, len(lines))
	}

	fields, err := recordfile.Split(lines[0], accountDelim, accountArity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrCorruptSession, err)
	}

	balance, err := decimal.NewFromString(fields[3])
	if err != nil {
		return nil, fmt.Errorf("%w: bad balance %q", storage.ErrCorruptSession, fields[3])
	}

	return &account.Account{
		Username: fields[0],
		Password: fields[1],
		Age:      fields[2],
		Balance:  balance,
	}, nil
}

func ledgerFile(shop cart.Shop) (string, error) {
	switch shop {
	case cart.ShopCoffee:
		return "coffee_data.txt", nil
	case cart.ShopTech:
		return "tech_data.txt", nil
	case cart.ShopPizza:
		return "pizza_data.txt", nil
	}

	return "", fmt.Errorf("%w: %q", cart.ErrUnknownShop, shop)
}

// emptyLedger renders the all-zero ledger for shop: one item:0 line per
// catalog item followed by total:0.
func emptyLedger(shop cart.Shop) ([]string, error) {
	items, err := cart.Items(shop)
	if err != nil {
		return nil, fmt.Errorf("cart.Items: %w", err)
	}

	lines := make([]string, 0, len(items)+1)
	for _, item := range items {
		lines = append(lines, item+ledgerDelim+"0")
	}

	return append(lines, cart.TotalKey+ledgerDelim+"0"), nil
}

func (s *Storage) SaveCart(_ context.Context, c *cart.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.saveCart(c)
}

func (s *Storage) saveCart(c *cart.Cart) error {
	file, err := ledgerFile(c.Shop())
	if err != nil {
		return err
	}

	items, err := cart.Items(c.Shop())
	if err != nil {
		return fmt.Errorf("cart.Items: %w", err)
	}

	lines := make([]string, 0, len(items)+1)

	for _, item := range items {
		qty, err := c.Quantity(item)
		if err != nil {
			return fmt.Errorf("cart.Quantity: %w", err)
		}

		lines = append(lines, item+ledgerDelim+strconv.Itoa(qty))
	}

	lines = append(lines, cart.TotalKey+ledgerDelim+strconv.Itoa(c.Total()))

	if err := recordfile.Save(s.path(file), lines); err != nil {
		return fmt.Errorf("recordfile.Save: %w", err)
	}

	return nil
}

func (s *Storage) LoadCart(_ context.Context, shop cart.Shop) (*cart.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := ledgerFile(shop)
	if err != nil {
		return nil, err
	}

	defaultLines, err := emptyLedger(shop)
	if err != nil {
		return nil, err
	}

	lines, err := recordfile.Load(s.path(file), strings.Join(defaultLines, "\n"))
	if err != nil {
		return nil, fmt.Errorf("recordfile.Load: %w", err)
	}

	c, err := cart.New(shop)
	if err != nil {
		return nil, fmt.Errorf("cart.New: %w", err)
	}

	storedTotal := -1

	for _, line := range lines {
		fields, err := recordfile.Split(line, ledgerDelim, 2)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", storage.ErrCorruptRecord, err)
		}

		qty, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("%w: bad quantity %q", storage.ErrCorruptRecord, fields[1])
		}

		if fields[0] == cart.TotalKey {
			storedTotal = qty

			continue
		}

		if err := c.SetQuantityValue(fields[0], qty); err != nil {
			return nil, fmt.Errorf("%w: %v", storage.ErrCorruptRecord, err)
		}
	}

	if storedTotal != c.Total() {
		return nil, fmt.Errorf("%w: total %d does not match quantity sum %d",
			storage.ErrCorruptRecord, storedTotal, c.Total())
	}

	return c, nil
}

func (s *Storage) ResetCart(_ context.Context, shop cart.Shop) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := ledgerFile(shop)
	if err != nil {
		return err
	}

	lines, err := emptyLedger(shop)
	if err != nil {
		return err
	}

	if err := recordfile.Save(s.path(file), lines); err != nil {
		return fmt.Errorf("recordfile.Save: %w", err)
	}

	return nil
}

func (s *Storage) loadOptions() (storage.Options, error) {
	lines, err := recordfile.Load(s.path(optionsFile), defaultOptions)
	if err != nil {
		return storage.Options{}, fmt.Errorf("recordfile.Load: %w", err)
	}

	values := make(map[string]string, len(lines))

	for _, line := range lines {
		fields, err := recordfile.Split(line, ledgerDelim, 2)
		if err != nil {
			return storage.Options{}, fmt.Errorf("%w: %v", storage.ErrCorruptRecord, err)
		}

		values[fields[0]] = fields[1]
	}

	var opts storage.Options

	switch values[optRunning] {
	case "True":
		opts.Running = true
	case "False":
		opts.Running = false
	default:
		return storage.Options{}, fmt.Errorf("%w: bad running flag %q",
			storage.ErrCorruptRecord, values[optRunning])
	}

	opened, err := strconv.Atoi(values[optTimesOpened])
	if err != nil {
		return storage.Options{}, fmt.Errorf("%w: bad times_opened %q",
			storage.ErrCorruptRecord, values[optTimesOpened])
	}

	opts.TimesOpened = opened

	return opts, nil
}

func (s *Storage) saveOptions(opts storage.Options) error {
	running := "False"
	if opts.Running {
		running = "True"
	}

	lines := []string{
		optRunning + ledgerDelim + running,
		optTimesOpened + ledgerDelim + strconv.Itoa(opts.TimesOpened),
	}

	if err := recordfile.Save(s.path(optionsFile), lines); err != nil {
		return fmt.Errorf("recordfile.Save: %w", err)
	}

	return nil
}

func (s *Storage) AcquireLaunchLock(_ context.Context) (storage.Options, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	opts, err := s.loadOptions()
	if err != nil {
		return storage.Options{}, err
	}

	if opts.Running {
		return storage.Options{}, storage.ErrAlreadyRunning
	}

	opts.Running = true
	opts.TimesOpened++

	if err := s.saveOptions(opts); err != nil {
		return storage.Options{}, err
	}

	s.log.Debug("launch lock acquired", slog.Int("times_opened", opts.TimesOpened))

	return opts, nil
}

func (s *Storage) ReleaseLaunchLock(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	opts, err := s.loadOptions()
	if err != nil {
		return err
	}

	if !opts.Running {
		return nil
	}

	opts.Running = false

	return s.saveOptions(opts)
}

func (s *Storage) GetOptions(_ context.Context) (storage.Options, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.loadOptions()
}

func (s *Storage) AppendReceipt(_ context.Context, rcpt *receipt.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines, err := recordfile.Load(s.path(receiptsFile), defaultReceipts)
	if err != nil {
		return fmt.Errorf("recordfile.Load: %w", err)
	}

	line := strings.Join([]string{
		rcpt.ID(),
		string(rcpt.Shop()),
		rcpt.Username(),
		rcpt.Amount().String(),
		strconv.FormatInt(rcpt.CreatedAt().Unix(), 10),
	}, accountDelim)

	if err := recordfile.Save(s.path(receiptsFile), append(lines, line)); err != nil {
		return fmt.Errorf("recordfile.Save: %w", err)
	}

	return nil
}

func (s *Storage) ListReceipts(_ context.Context) ([]*receipt.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines, err := recordfile.Load(s.path(receiptsFile), defaultReceipts)
	if err != nil {
		return nil, fmt.Errorf("recordfile.Load: %w", err)
	}

	receipts := make([]*receipt.Receipt, 0, len(lines))

	for _, line := range lines {
		fields, err := recordfile.Split(line, accountDelim, receiptArity)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", storage.ErrCorruptRecord, err)
		}

		amount, err := decimal.NewFromString(fields[3])
		if err != nil {
			return nil, fmt.Errorf("%w: bad amount %q", storage.ErrCorruptRecord, fields[3])
		}

		createdAt, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad timestamp %q", storage.ErrCorruptRecord, fields[4])
		}

		receipts = append(receipts, receipt.Restore(
			fields[0], cart.Shop(fields[1]), fields[2], amount, time.Unix(createdAt, 0)))
	}

	return receipts, nil
}
