package flatfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vworld/virtualworld/internal/domain/account"
	"github.com/vworld/virtualworld/internal/domain/cart"
	"github.com/vworld/virtualworld/internal/domain/receipt"
	"github.com/vworld/virtualworld/internal/storage"
)

func newTestStorage(t *testing.T) (*Storage, string) {
	t.Helper()

	dir := t.TempDir()

	return NewStorage(dir), dir
}

func readFile(t *testing.T, dir, name string) string {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)

	return string(data)
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()

	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestFreshInstallScenario(t *testing.T) {
	s, _ := newTestStorage(t)
	ctx := context.Background()

	acc, err := account.NewAccount("alice", "pw123", "25")
	require.NoError(t, err)
	require.NoError(t, s.CreateAccount(ctx, acc))

	got, err := s.GetAccount(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "25000", got.Balance.String())

	require.NoError(t, s.WithdrawBalance(ctx, "alice", decimal.NewFromInt(25000)))

	got, err = s.GetAccount(ctx, "alice")
	require.NoError(t, err)
	require.True(t, got.Balance.IsZero())

	err = s.WithdrawBalance(ctx, "alice", decimal.NewFromInt(1))
	require.ErrorIs(t, err, storage.ErrBalanceNotEnough)

	got, err = s.GetAccount(ctx, "alice")
	require.NoError(t, err)
	require.True(t, got.Balance.IsZero())
}

func TestCreateAccount_FileFormats(t *testing.T) {
	s, dir := newTestStorage(t)
	ctx := context.Background()

	acc, err := account.NewAccount("bob", "secret", "35")
	require.NoError(t, err)
	require.NoError(t, s.CreateAccount(ctx, acc))

	require.Equal(t, "Guest,None,50,1000000\nbob,secret,35,25000", readFile(t, dir, "user_data.txt"))
	require.Equal(t, "Guest\nbob", readFile(t, dir, "user_names.txt"))
}

func TestCreateAccount_Duplicate(t *testing.T) {
	s, _ := newTestStorage(t)
	ctx := context.Background()

	acc, err := account.NewAccount("bob", "secret", "35")
	require.NoError(t, err)
	require.NoError(t, s.CreateAccount(ctx, acc))
	require.ErrorIs(t, s.CreateAccount(ctx, acc), storage.ErrUserAlreadyExists)

	// The guest default record is indexed too.
	guest := account.Guest()
	require.ErrorIs(t, s.CreateAccount(ctx, guest), storage.ErrUserAlreadyExists)
}

func TestGetAccount_NotFound(t *testing.T) {
	s, _ := newTestStorage(t)

	_, err := s.GetAccount(context.Background(), "nobody")
	require.ErrorIs(t, err, storage.ErrUserNotFound)
}

func TestAccountExists_ExactMatchOnly(t *testing.T) {
	s, _ := newTestStorage(t)
	ctx := context.Background()

	acc, err := account.NewAccount("carol", "pw", "30")
	require.NoError(t, err)
	require.NoError(t, s.CreateAccount(ctx, acc))

	ok, err := s.AccountExists(ctx, "carol", "pw")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.AccountExists(ctx, "carol", "wrong")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = s.AccountExists(ctx, "caro", "pw")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestUpdateAccount_RenamePreservesFieldsAndIndex(t *testing.T) {
	s, dir := newTestStorage(t)
	ctx := context.Background()

	acc, err := account.NewAccount("dave", "pw", "45")
	require.NoError(t, err)
	require.NoError(t, s.CreateAccount(ctx, acc))

	before, err := s.GetAccount(ctx, "dave")
	require.NoError(t, err)

	renamed := *before
	renamed.Username = "david"
	require.NoError(t, s.UpdateAccount(ctx, "dave", &renamed))

	after, err := s.GetAccount(ctx, "david")
	require.NoError(t, err)
	require.Equal(t, before.Password, after.Password)
	require.Equal(t, before.Age, after.Age)
	require.True(t, before.Balance.Equal(after.Balance))

	_, err = s.GetAccount(ctx, "dave")
	require.ErrorIs(t, err, storage.ErrUserNotFound)

	require.Equal(t, "Guest\ndavid", readFile(t, dir, "user_names.txt"))
}

func TestUpdateAccount_RenameFollowsActiveSession(t *testing.T) {
	s, _ := newTestStorage(t)
	ctx := context.Background()

	acc, err := account.NewAccount("erin", "pw", "30")
	require.NoError(t, err)
	require.NoError(t, s.CreateAccount(ctx, acc))
	require.NoError(t, s.SetSession(ctx, acc))

	renamed := *acc
	renamed.Username = "erin2"
	require.NoError(t, s.UpdateAccount(ctx, "erin", &renamed))

	sess, err := s.GetSession(ctx)
	require.NoError(t, err)
	require.Equal(t, "erin2", sess.Username)
}

func TestUpdateAccount_RenameLeavesOtherSessionAlone(t *testing.T) {
	s, _ := newTestStorage(t)
	ctx := context.Background()

	acc, err := account.NewAccount("frank", "pw", "30")
	require.NoError(t, err)
	require.NoError(t, s.CreateAccount(ctx, acc))

	renamed := *acc
	renamed.Username = "francis"
	require.NoError(t, s.UpdateAccount(ctx, "frank", &renamed))

	sess, err := s.GetSession(ctx)
	require.NoError(t, err)
	require.Equal(t, account.GuestUsername, sess.Username)
}

func TestUpdateAccount_CorruptSessionWritesNothing(t *testing.T) {
	s, dir := newTestStorage(t)
	ctx := context.Background()

	acc, err := account.NewAccount("mallory", "pw", "30")
	require.NoError(t, err)
	require.NoError(t, s.CreateAccount(ctx, acc))

	dataBefore := readFile(t, dir, "user_data.txt")
	namesBefore := readFile(t, dir, "user_names.txt")

	writeFile(t, dir, "current_user.txt", "not-a-session-record")

	renamed := *acc
	renamed.Username = "mallory2"
	require.ErrorIs(t, s.UpdateAccount(ctx, "mallory", &renamed), storage.ErrCorruptSession)

	// The failed update must not have touched the table or the index.
	require.Equal(t, dataBefore, readFile(t, dir, "user_data.txt"))
	require.Equal(t, namesBefore, readFile(t, dir, "user_names.txt"))

	_, err = s.GetAccount(ctx, "mallory")
	require.NoError(t, err)

	// Same for an in-place update.
	changed := *acc
	changed.Password = "newpw"
	require.ErrorIs(t, s.UpdateAccount(ctx, "mallory", &changed), storage.ErrCorruptSession)
	require.Equal(t, dataBefore, readFile(t, dir, "user_data.txt"))
}

func TestUpdateAccount_RenameToIndexOnlyName(t *testing.T) {
	s, dir := newTestStorage(t)
	ctx := context.Background()

	acc, err := account.NewAccount("hank", "pw", "30")
	require.NoError(t, err)
	require.NoError(t, s.CreateAccount(ctx, acc))

	// A legacy index entry with no matching account record still reserves
	// the name, exactly as it does at signup.
	writeFile(t, dir, "user_names.txt", "Guest\nhank\nlegacy")

	renamed := *acc
	renamed.Username = "legacy"
	require.ErrorIs(t, s.UpdateAccount(ctx, "hank", &renamed), storage.ErrUserAlreadyExists)

	require.Equal(t, "Guest\nhank\nlegacy", readFile(t, dir, "user_names.txt"))

	_, err = s.GetAccount(ctx, "hank")
	require.NoError(t, err)
}

func TestUpdateAccount_RenameToTakenName(t *testing.T) {
	s, _ := newTestStorage(t)
	ctx := context.Background()

	a, err := account.NewAccount("gina", "pw", "30")
	require.NoError(t, err)
	require.NoError(t, s.CreateAccount(ctx, a))

	b, err := account.NewAccount("hank", "pw", "30")
	require.NoError(t, err)
	require.NoError(t, s.CreateAccount(ctx, b))

	renamed := *b
	renamed.Username = "gina"
	require.ErrorIs(t, s.UpdateAccount(ctx, "hank", &renamed), storage.ErrUserAlreadyExists)
}

func TestDeleteAccount(t *testing.T) {
	s, dir := newTestStorage(t)
	ctx := context.Background()

	acc, err := account.NewAccount("ivan", "pw", "30")
	require.NoError(t, err)
	require.NoError(t, s.CreateAccount(ctx, acc))
	require.NoError(t, s.DeleteAccount(ctx, "ivan"))

	_, err = s.GetAccount(ctx, "ivan")
	require.ErrorIs(t, err, storage.ErrUserNotFound)
	require.Equal(t, "Guest", readFile(t, dir, "user_names.txt"))

	require.ErrorIs(t, s.DeleteAccount(ctx, "ivan"), storage.ErrUserNotFound)
}

func TestWithdrawDepositRoundTrip(t *testing.T) {
	s, _ := newTestStorage(t)
	ctx := context.Background()

	acc, err := account.NewAccount("judy", "pw", "25")
	require.NoError(t, err)
	require.NoError(t, s.CreateAccount(ctx, acc))

	amount := decimal.RequireFromString("49.99")
	require.NoError(t, s.WithdrawBalance(ctx, "judy", amount))
	require.NoError(t, s.DepositBalance(ctx, "judy", amount))

	got, err := s.GetAccount(ctx, "judy")
	require.NoError(t, err)
	require.True(t, got.Balance.Equal(decimal.NewFromInt(25000)),
		"got %s", got.Balance)
}

func TestWithdrawBalance_NegativeAmount(t *testing.T) {
	s, _ := newTestStorage(t)
	ctx := context.Background()

	acc, err := account.NewAccount("kate", "pw", "25")
	require.NoError(t, err)
	require.NoError(t, s.CreateAccount(ctx, acc))

	err = s.WithdrawBalance(ctx, "kate", decimal.NewFromInt(-5))
	require.ErrorIs(t, err, storage.ErrNegativeAmount)

	err = s.DepositBalance(ctx, "kate", decimal.NewFromInt(-5))
	require.ErrorIs(t, err, storage.ErrNegativeAmount)
}

func TestCorruptAccountRecordSurfaces(t *testing.T) {
	s, dir := newTestStorage(t)
	ctx := context.Background()

	writeFile(t, dir, "user_data.txt", "Guest,None,50,1000000\nbroken,record")

	_, err := s.GetAccount(ctx, "Guest")
	require.ErrorIs(t, err, storage.ErrCorruptRecord)

	err = s.CreateAccount(ctx, account.Guest())
	require.ErrorIs(t, err, storage.ErrCorruptRecord)
}

func TestCorruptBalanceSurfaces(t *testing.T) {
	s, dir := newTestStorage(t)

	writeFile(t, dir, "user_data.txt", "alice,pw,25,not-a-number")

	_, err := s.GetAccount(context.Background(), "alice")
	require.ErrorIs(t, err, storage.ErrCorruptRecord)
}

func TestSession_DefaultsToGuest(t *testing.T) {
	s, dir := newTestStorage(t)

	sess, err := s.GetSession(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Guest", sess.Username)
	require.Equal(t, "None", sess.Password)
	require.Equal(t, "50", sess.Age)
	require.Equal(t, "1000000", sess.Balance.String())

	require.Equal(t, "Guest,None,50,1000000", readFile(t, dir, "current_user.txt"))
}

func TestSession_SetOverwritesWholesale(t *testing.T) {
	s, dir := newTestStorage(t)
	ctx := context.Background()

	acc, err := account.NewAccount("lena", "pw", "25")
	require.NoError(t, err)
	require.NoError(t, s.SetSession(ctx, acc))
	require.Equal(t, "lena,pw,25,25000", readFile(t, dir, "current_user.txt"))

	require.NoError(t, s.SetSession(ctx, account.Guest()))
	require.Equal(t, "Guest,None,50,1000000", readFile(t, dir, "current_user.txt"))
}

func TestSession_CorruptLine(t *testing.T) {
	s, dir := newTestStorage(t)

	writeFile(t, dir, "current_user.txt", "only,three,fields")

	_, err := s.GetSession(context.Background())
	require.ErrorIs(t, err, storage.ErrCorruptSession)
}

func TestSession_MultipleRecords(t *testing.T) {
	s, dir := newTestStorage(t)

	writeFile(t, dir, "current_user.txt", "a,b,50,10\nc,d,50,10")

	_, err := s.GetSession(context.Background())
	require.ErrorIs(t, err, storage.ErrCorruptSession)
}

func TestCart_SaveLoadRoundTrip(t *testing.T) {
	s, dir := newTestStorage(t)
	ctx := context.Background()

	c, err := cart.New(cart.ShopCoffee)
	require.NoError(t, err)
	require.NoError(t, c.SetQuantity("latte", "5"))
	require.NoError(t, c.SetQuantity("espresso", "2"))
	require.NoError(t, s.SaveCart(ctx, c))

	want := "cappuccino:0\nespresso:2\nflat_white:0\nlatte:5\nmocha:0\ntotal:7"
	require.Equal(t, want, readFile(t, dir, "coffee_data.txt"))

	loaded, err := s.LoadCart(ctx, cart.ShopCoffee)
	require.NoError(t, err)
	require.Equal(t, 7, loaded.Total())
	require.Equal(t, "28.50", loaded.GrandTotal().StringFixed(2))
}

func TestCart_LoadCreatesEmptyLedger(t *testing.T) {
	s, dir := newTestStorage(t)

	c, err := s.LoadCart(context.Background(), cart.ShopTech)
	require.NoError(t, err)
	require.True(t, c.Empty())

	want := "camera:0\nphone:0\ntv:0\npc:0\ntablet:0\ntotal:0"
	require.Equal(t, want, readFile(t, dir, "tech_data.txt"))
}

func TestCart_Reset(t *testing.T) {
	s, dir := newTestStorage(t)
	ctx := context.Background()

	c, err := cart.New(cart.ShopPizza)
	require.NoError(t, err)
	require.NoError(t, c.SetQuantity("meat", "3"))
	require.NoError(t, s.SaveCart(ctx, c))

	require.NoError(t, s.ResetCart(ctx, cart.ShopPizza))

	want := "meat:0\ncheese:0\npepperoni:0\nhawaiian:0\nseafood:0\ntotal:0"
	require.Equal(t, want, readFile(t, dir, "pizza_data.txt"))
}

func TestCart_TotalMismatchIsCorrupt(t *testing.T) {
	s, dir := newTestStorage(t)

	writeFile(t, dir, "coffee_data.txt",
		"cappuccino:1\nespresso:0\nflat_white:0\nlatte:0\nmocha:0\ntotal:5")

	_, err := s.LoadCart(context.Background(), cart.ShopCoffee)
	require.ErrorIs(t, err, storage.ErrCorruptRecord)
}

func TestLaunchLock(t *testing.T) {
	s, dir := newTestStorage(t)
	ctx := context.Background()

	opts, err := s.AcquireLaunchLock(ctx)
	require.NoError(t, err)
	require.True(t, opts.Running)
	require.Equal(t, 1, opts.TimesOpened)
	require.Equal(t, "running:True\ntimes_opened:1", readFile(t, dir, "options.txt"))

	_, err = s.AcquireLaunchLock(ctx)
	require.ErrorIs(t, err, storage.ErrAlreadyRunning)

	require.NoError(t, s.ReleaseLaunchLock(ctx))
	require.Equal(t, "running:False\ntimes_opened:1", readFile(t, dir, "options.txt"))

	// Release is idempotent.
	require.NoError(t, s.ReleaseLaunchLock(ctx))

	opts, err = s.AcquireLaunchLock(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, opts.TimesOpened)
}

func TestLaunchLock_CorruptOptions(t *testing.T) {
	s, dir := newTestStorage(t)

	writeFile(t, dir, "options.txt", "running:Maybe\ntimes_opened:0")

	_, err := s.AcquireLaunchLock(context.Background())
	require.ErrorIs(t, err, storage.ErrCorruptRecord)
}

func TestReceipts_AppendAndList(t *testing.T) {
	s, _ := newTestStorage(t)
	ctx := context.Background()

	rcpt, err := receipt.NewReceipt(cart.ShopCoffee, "alice", decimal.RequireFromString("22.50"))
	require.NoError(t, err)
	require.NoError(t, s.AppendReceipt(ctx, rcpt))

	rcpt2, err := receipt.NewReceipt(cart.ShopTech, "bob", decimal.NewFromInt(300))
	require.NoError(t, err)
	require.NoError(t, s.AppendReceipt(ctx, rcpt2))

	receipts, err := s.ListReceipts(ctx)
	require.NoError(t, err)
	require.Len(t, receipts, 2)
	require.Equal(t, rcpt.ID(), receipts[0].ID())
	require.Equal(t, cart.ShopCoffee, receipts[0].Shop())
	require.Equal(t, "alice", receipts[0].Username())
	require.True(t, receipts[0].Amount().Equal(decimal.RequireFromString("22.50")))
	require.Equal(t, rcpt2.ID(), receipts[1].ID())
}
