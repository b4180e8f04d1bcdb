// Command token mints a bearer token for a caller account, for local use
// against the API.
//
//	JWT_SECRET=dev go run ./cmd/token -account 0x... -ttl 24h
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/josh-kwaku/payment-ledger/internal/auth"
	"github.com/josh-kwaku/payment-ledger/internal/domain"
)

func main() {
	account := flag.String("account", "", "caller account, 0x followed by 64 hex digits")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET is required")
		os.Exit(2)
	}

	caller, err := domain.ParseAccount(*account)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -account: %v\n", err)
		os.Exit(2)
	}

	token, err := auth.GenerateToken(caller, secret, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mint token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
