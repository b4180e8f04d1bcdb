package domain

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// AccountSize is the byte length of an account identity.
const AccountSize = 32

// Account is an opaque identity token. The ledger only compares and hashes it.
type Account [AccountSize]byte

func ParseAccount(s string) (Account, error) {
	var a Account
	raw := strings.TrimSpace(s)
	if len(raw) >= 2 && strings.EqualFold(raw[:2], "0x") {
		raw = raw[2:]
	}
	if len(raw) != hex.EncodedLen(AccountSize) {
		return a, fmt.Errorf("ParseAccount: want %d hex digits, got %d: %w", hex.EncodedLen(AccountSize), len(raw), ErrInvalidAccount)
	}
	if _, err := hex.Decode(a[:], []byte(raw)); err != nil {
		return a, fmt.Errorf("ParseAccount: %w", ErrInvalidAccount)
	}
	return a, nil
}

func MustParseAccount(s string) Account {
	a, err := ParseAccount(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Account) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

func (a Account) IsZero() bool {
	return a == Account{}
}

func (a Account) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Account) UnmarshalText(text []byte) error {
	parsed, err := ParseAccount(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
