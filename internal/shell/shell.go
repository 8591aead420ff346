// Package shell is the thin interactive front of the game: a prompt loop
// that translates typed commands into calls on the world facade. It holds
// no game state beyond the cart of the shop currently open.
package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/vworld/virtualworld/internal/domain/account"
	"github.com/vworld/virtualworld/internal/domain/cart"
	"github.com/vworld/virtualworld/internal/storage"
	"github.com/vworld/virtualworld/internal/world"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = func() ([]byte, error) {
	return term.ReadPassword(int(os.Stdin.Fd()))
}

type Shell struct {
	world  *world.World
	log    *slog.Logger
	reader *bufio.Reader
	out    io.Writer
}

// NewShell returns a new Shell instance reading from in and writing to out.
func NewShell(w *world.World, in io.Reader, out io.Writer, opts ...Option) *Shell {
	sh := &Shell{
		world:  w,
		log:    slog.New(slog.NewJSONHandler(io.Discard, nil)),
		reader: bufio.NewReader(in),
		out:    out,
	}

	// Apply options
	for _, opt := range opts {
		opt(sh)
	}

	return sh
}

// Option is a functional option for Shell.
type Option func(s *Shell)

// WithLogger is an option for Shell that sets logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Shell) {
		s.log = logger
	}
}

// Run drives the prompt loop until the user quits, the input ends, or ctx
// is cancelled.
func (s *Shell) Run(ctx context.Context) error {
	fmt.Fprintln(s.out, "Welcome to Virtual World. Type 'help' for commands.")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := s.prompt("")
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}

			return fmt.Errorf("shell.prompt: %w", err)
		}

		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}

		switch args[0] {
		case "help":
			s.printHelp()
		case "login":
			s.login(ctx)
		case "signup":
			s.signup(ctx)
		case "guest":
			s.guest(ctx)
		case "logout":
			s.logout(ctx)
		case "whoami":
			s.whoami(ctx)
		case "settings":
			s.settings(ctx, args[1:])
		case "shop":
			s.shop(ctx, args[1:])
		case "receipts":
			s.receipts(ctx)
		case "exit", "quit":
			return nil
		default:
			fmt.Fprintf(s.out, "Unknown command %q. Type 'help'.\n", args[0])
		}
	}
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.out, `Commands:
  login                      sign in with username and password
  signup                     create an account
  guest                      continue as guest
  logout                     return to the guest identity
  whoami                     show the current user and balance
  settings name <new>        change username
  settings password          change password
  settings age <new>         change age
  settings delete            delete the current account
  shop <coffee|tech|pizza>   enter a shop
  receipts                   show purchase history
  exit                       quit`)
}

func (s *Shell) prompt(label string) (string, error) {
	if label == "" {
		label = "> "
	}

	if _, err := fmt.Fprint(s.out, label); err != nil {
		return "", err
	}

	line, err := s.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return strings.TrimSpace(line), nil
		}

		return "", err
	}

	return strings.TrimSpace(line), nil
}

func (s *Shell) promptPassword() (string, error) {
	fmt.Fprint(s.out, "Password: ")

	pw, err := readPassword()

	fmt.Fprintln(s.out)

	if err != nil {
		return "", fmt.Errorf("term.ReadPassword: %w", err)
	}

	return string(pw), nil
}

func (s *Shell) login(ctx context.Context) {
	username, err := s.prompt("Username: ")
	if err != nil {
		return
	}

	password, err := s.promptPassword()
	if err != nil {
		s.log.Error("shell.promptPassword", slog.Any("error", err))

		return
	}

	acc, err := s.world.Authenticate(ctx, username, password)
	if err != nil {
		if errors.Is(err, world.ErrCredentialsInvalid) {
			fmt.Fprintln(s.out, "Incorrect username/password.")

			return
		}

		s.log.Error("world.Authenticate", slog.Any("error", err))

		return
	}

	fmt.Fprintf(s.out, "Welcome back, %s.\n", acc.Username)
}

func (s *Shell) signup(ctx context.Context) {
	username, err := s.prompt("Username: ")
	if err != nil {
		return
	}

	password, err := s.promptPassword()
	if err != nil {
		s.log.Error("shell.promptPassword", slog.Any("error", err))

		return
	}

	age, err := s.prompt("Age: ")
	if err != nil {
		return
	}

	acc, err := s.world.Register(ctx, username, password, age)
	if err != nil {
		if errors.Is(err, storage.ErrUserAlreadyExists) {
			fmt.Fprintln(s.out, "That username is already taken.")

			return
		}

		fmt.Fprintf(s.out, "Signup failed: %v\n", err)

		return
	}

	fmt.Fprintf(s.out, "Account created. Your starting balance is $%s.\n", acc.Balance.String())
}

func (s *Shell) guest(ctx context.Context) {
	if _, err := s.world.EnterAsGuest(ctx); err != nil {
		s.log.Error("world.EnterAsGuest", slog.Any("error", err))

		return
	}

	fmt.Fprintln(s.out, "Continuing as Guest.")
}

func (s *Shell) logout(ctx context.Context) {
	if err := s.world.Logout(ctx); err != nil {
		s.log.Error("world.Logout", slog.Any("error", err))

		return
	}

	fmt.Fprintln(s.out, "Logged out.")
}

func (s *Shell) whoami(ctx context.Context) {
	acc, err := s.world.CurrentUser(ctx)
	if err != nil {
		s.log.Error("world.CurrentUser", slog.Any("error", err))

		return
	}

	fmt.Fprintf(s.out, "%s (balance: $%s)\n", acc.Username, acc.Balance.String())
}

func (s *Shell) settings(ctx context.Context, args []string) {
	acc, err := s.world.CurrentUser(ctx)
	if err != nil {
		s.log.Error("world.CurrentUser", slog.Any("error", err))

		return
	}

	if acc.Username == account.GuestUsername {
		fmt.Fprintln(s.out, "Guests have no settings. Log in first.")

		return
	}

	if len(args) == 0 {
		fmt.Fprintln(s.out, "Usage: settings <name|password|age|delete> [value]")

		return
	}

	switch args[0] {
	case "name":
		if len(args) < 2 {
			fmt.Fprintln(s.out, "Usage: settings name <new-name>")

			return
		}

		if err := s.world.ChangeName(ctx, acc.Username, args[1]); err != nil {
			fmt.Fprintf(s.out, "Name change failed: %v\n", err)

			return
		}

		fmt.Fprintf(s.out, "Your username is now %q.\n", args[1])
	case "password":
		password, err := s.promptPassword()
		if err != nil {
			s.log.Error("shell.promptPassword", slog.Any("error", err))

			return
		}

		if err := s.world.ChangePassword(ctx, acc.Username, password); err != nil {
			fmt.Fprintf(s.out, "Password change failed: %v\n", err)

			return
		}

		fmt.Fprintln(s.out, "Password changed.")
	case "age":
		if len(args) < 2 {
			fmt.Fprintln(s.out, "Usage: settings age <new-age>")

			return
		}

		if err := s.world.ChangeAge(ctx, acc.Username, args[1]); err != nil {
			fmt.Fprintf(s.out, "Age change failed: %v\n", err)

			return
		}

		fmt.Fprintf(s.out, "You are now %s years old.\n", args[1])
	case "delete":
		confirm, err := s.prompt("Type the username to confirm deletion: ")
		if err != nil {
			return
		}

		if confirm != acc.Username {
			fmt.Fprintln(s.out, "Deletion cancelled.")

			return
		}

		if err := s.world.DeleteAccount(ctx, acc.Username); err != nil {
			fmt.Fprintf(s.out, "Deletion failed: %v\n", err)

			return
		}

		fmt.Fprintln(s.out, "Account deleted. You are now a guest.")
	default:
		fmt.Fprintln(s.out, "Usage: settings <name|password|age|delete> [value]")
	}
}

func (s *Shell) shop(ctx context.Context, args []string) {
	if len(args) == 0 {
		fmt.Fprintln(s.out, "Usage: shop <coffee|tech|pizza>")

		return
	}

	shop := cart.Shop(args[0])

	c, err := s.world.OpenShop(ctx, shop)
	if err != nil {
		if errors.Is(err, cart.ErrUnknownShop) {
			fmt.Fprintln(s.out, "Usage: shop <coffee|tech|pizza>")

			return
		}

		s.log.Error("world.OpenShop", slog.Any("error", err))

		return
	}

	s.printMenu(c)

	for {
		line, err := s.prompt(string(shop) + "> ")
		if err != nil {
			return
		}

		words := strings.Fields(line)
		if len(words) == 0 {
			continue
		}

		switch words[0] {
		case "menu":
			s.printMenu(c)
		case "set":
			if len(words) < 2 {
				fmt.Fprintln(s.out, "Usage: set <item> [quantity]")

				continue
			}

			raw := ""
			if len(words) > 2 {
				raw = words[2]
			}

			ok, err := s.world.SetCartQuantity(ctx, c, words[1], raw)
			if err != nil {
				fmt.Fprintf(s.out, "Rejected: %v\n", err)

				continue
			}

			if !ok {
				// The Tk original rings the terminal bell here.
				fmt.Fprint(s.out, "\aQuantity must be a single digit.\n")

				continue
			}

			fmt.Fprintf(s.out, "Total items: %d, total cost: $%s\n", c.Total(), c.GrandTotal().StringFixed(2))
		case "buy":
			s.buy(ctx, c)
		case "back":
			return
		default:
			fmt.Fprintln(s.out, "Shop commands: menu, set <item> [qty], buy, back")
		}
	}
}

func (s *Shell) printMenu(c *cart.Cart) {
	items, err := cart.Items(c.Shop())
	if err != nil {
		return
	}

	fmt.Fprintln(s.out, "Type        Price    Amount")

	for _, item := range items {
		price, err := cart.Price(c.Shop(), item)
		if err != nil {
			continue
		}

		qty, err := c.Quantity(item)
		if err != nil {
			continue
		}

		fmt.Fprintf(s.out, "%-11s $%-7s %d\n", item, price.StringFixed(2), qty)
	}

	fmt.Fprintf(s.out, "Total cost: $%s\n", c.GrandTotal().StringFixed(2))
}

func (s *Shell) buy(ctx context.Context, c *cart.Cart) {
	if c.Empty() {
		fmt.Fprintln(s.out, "Your cart is empty.")

		return
	}

	rcpt, err := s.world.Checkout(ctx, c, c.GrandTotal())
	if err != nil {
		if errors.Is(err, storage.ErrBalanceNotEnough) {
			fmt.Fprintln(s.out, "Inadequate funds.")

			return
		}

		fmt.Fprintln(s.out, "Transaction failed.")
		s.log.Error("world.Checkout", slog.Any("error", err))

		return
	}

	fmt.Fprintf(s.out, "Transaction successful. Receipt %s: $%s\n", rcpt.ID(), rcpt.Amount().StringFixed(2))
}

func (s *Shell) receipts(ctx context.Context) {
	receipts, err := s.world.Receipts(ctx)
	if err != nil {
		s.log.Error("world.Receipts", slog.Any("error", err))

		return
	}

	if len(receipts) == 0 {
		fmt.Fprintln(s.out, "No purchases yet.")

		return
	}

	for _, rcpt := range receipts {
		fmt.Fprintf(s.out, "%s  %-7s %-12s $%s\n",
			rcpt.CreatedAt().Format("2006-01-02 15:04"),
			rcpt.Shop(), rcpt.Username(), rcpt.Amount().StringFixed(2))
	}
}
