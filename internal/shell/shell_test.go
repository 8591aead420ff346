package shell

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vworld/virtualworld/internal/storage/inmemory"
	"github.com/vworld/virtualworld/internal/world"
)

func runScript(t *testing.T, script string) string {
	t.Helper()

	old := readPassword
	readPassword = func() ([]byte, error) { return []byte("pw123"), nil }
	t.Cleanup(func() { readPassword = old })

	w := world.NewWorld(inmemory.NewStorage())

	var out bytes.Buffer

	sh := NewShell(w, strings.NewReader(script), &out)
	require.NoError(t, sh.Run(context.Background()))

	return out.String()
}

func TestRun_SignupLoginAndPurchase(t *testing.T) {
	out := runScript(t, strings.Join([]string{
		"signup",
		"alice",
		"25",
		"login",
		"alice",
		"shop coffee",
		"set latte 2",
		"buy",
		"back",
		"whoami",
		"exit",
	}, "\n")+"\n")

	require.Contains(t, out, "Account created. Your starting balance is $25000.")
	require.Contains(t, out, "Welcome back, alice.")
	require.Contains(t, out, "Total items: 2, total cost: $9.00")
	require.Contains(t, out, "Transaction successful.")
	require.Contains(t, out, "alice (balance: $24991)")
}

func TestRun_RejectedCartInputRingsBell(t *testing.T) {
	out := runScript(t, strings.Join([]string{
		"guest",
		"shop tech",
		"set tv 12",
		"set tv x",
		"back",
		"exit",
	}, "\n")+"\n")

	require.Equal(t, 2, strings.Count(out, "\aQuantity must be a single digit."))
}

func TestRun_InadequateFunds(t *testing.T) {
	out := runScript(t, strings.Join([]string{
		"signup",
		"kid",
		"14",
		"login",
		"kid",
		"shop tech",
		"set tv 9",
		"buy",
		"back",
		"exit",
	}, "\n")+"\n")

	require.Contains(t, out, "Inadequate funds.")
}

func TestRun_GuestPurchaseAlwaysSucceeds(t *testing.T) {
	out := runScript(t, strings.Join([]string{
		"guest",
		"shop pizza",
		"set meat 2",
		"buy",
		"back",
		"receipts",
		"exit",
	}, "\n")+"\n")

	require.Contains(t, out, "Transaction successful.")
	require.Contains(t, out, "Guest")
	require.Contains(t, out, "$10.00")
}

func TestRun_GuestHasNoSettings(t *testing.T) {
	out := runScript(t, "settings name other\nexit\n")
	require.Contains(t, out, "Guests have no settings.")
}

func TestRun_UnknownCommand(t *testing.T) {
	out := runScript(t, "frobnicate\nexit\n")
	require.Contains(t, out, `Unknown command "frobnicate"`)
}

func TestRun_EOFEndsLoop(t *testing.T) {
	out := runScript(t, "whoami\n")
	require.Contains(t, out, "Guest (balance: $1000000)")
}
