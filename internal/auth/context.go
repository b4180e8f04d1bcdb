package auth

import (
	"context"

	"github.com/josh-kwaku/payment-ledger/internal/domain"
)

type callerKey struct{}

func ContextWithCaller(ctx context.Context, caller domain.Account) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

func CallerFromContext(ctx context.Context) (domain.Account, bool) {
	caller, ok := ctx.Value(callerKey{}).(domain.Account)
	return caller, ok
}
