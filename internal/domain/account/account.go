// Package account holds the user account entity and its validation rules.
package account

import (
	"errors"
	"regexp"
	"strconv"

	"github.com/shopspring/decimal"
)

var (
	ErrUsernameEmpty   = errors.New("username is empty")
	ErrUsernameInvalid = errors.New("username may only contain letters, digits, underscores or hyphens")
	ErrPasswordInvalid = errors.New("password may only contain letters, digits, underscores or hyphens")
	ErrAgeInvalid      = errors.New("age must be a two or three digit integer")
)

var (
	charsetRegexp = regexp.MustCompile(`^[A-Za-z0-9_-]*$`)
	ageRegexp     = regexp.MustCompile(`^[0-9]{2,3}$`)
)

// GuestUsername is the identity the session falls back to when nobody is
// logged in.
const GuestUsername = "Guest"

// Account is one registered user. Age stays string-encoded because the
// on-disk record format carries it verbatim.
type Account struct {
	Username string
	Password string
	Age      string
	Balance  decimal.Decimal
}

// NewAccount validates the signup fields and derives the starting balance
// from the age bracket table.
func NewAccount(username, password, age string) (*Account, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}

	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	if err := ValidateAge(age); err != nil {
		return nil, err
	}

	return &Account{
		Username: username,
		Password: password,
		Age:      age,
		Balance:  StartingBalance(age),
	}, nil
}

// Guest returns the fixed guest identity.
func Guest() *Account {
	return &Account{
		Username: GuestUsername,
		Password: "None",
		Age:      "50",
		Balance:  decimal.NewFromInt(1000000),
	}
}

// ValidateUsername requires a non-empty string of letters, digits,
// underscores or hyphens.
func ValidateUsername(username string) error {
	if username == "" {
		return ErrUsernameEmpty
	}

	if !charsetRegexp.MatchString(username) {
		return ErrUsernameInvalid
	}

	return nil
}

// ValidatePassword applies the same charset rule as usernames. An empty
// password passes, as it always has.
func ValidatePassword(password string) error {
	if !charsetRegexp.MatchString(password) {
		return ErrPasswordInvalid
	}

	return nil
}

// ValidateAge accepts a two or three digit decimal string.
func ValidateAge(age string) error {
	if !ageRegexp.MatchString(age) {
		return ErrAgeInvalid
	}

	return nil
}

// StartingBalance maps an age to the initial balance bracket. Every
// comparison is strict, so the boundary ages 15, 20, 40, 60 and 80 fall
// through to the 5000 default. That asymmetry is load-bearing: existing
// account data was created with it.
func StartingBalance(age string) decimal.Decimal {
	years, err := strconv.Atoi(age)
	if err != nil {
		return decimal.NewFromInt(5000)
	}

	switch {
	case years > 80:
		return decimal.NewFromInt(100000)
	case years > 60 && years < 80:
		return decimal.NewFromInt(75000)
	case years > 40 && years < 60:
		return decimal.NewFromInt(50000)
	case years > 20 && years < 40:
		return decimal.NewFromInt(25000)
	case years > 15 && years < 20:
		return decimal.NewFromInt(15000)
	case years > 0 && years < 15:
		return decimal.NewFromInt(2000)
	default:
		return decimal.NewFromInt(5000)
	}
}
