package domain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Denomination describes how integer base units of the native currency are shown.
type Denomination struct {
	Symbol   string
	Decimals int32
}

func (d Denomination) Decimal(amount uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -d.Decimals)
}

// Format renders amount with exactly Decimals fractional digits and the symbol.
func (d Denomination) Format(amount uint64) string {
	s := d.Decimal(amount).StringFixed(d.Decimals)
	if d.Symbol == "" {
		return s
	}
	return s + " " + d.Symbol
}
