package units

import (
	"math/big"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Decimals is the number of fractional digits between display units and the
// canonical unit stored by the ledger.
const Decimals = 18

// MaxBits is the width of the ledger's uint256 amount field.
const MaxBits = 256

// ParseAmount converts a display decimal string such as "1.5" to the canonical
// smallest-unit integer.
func ParseAmount(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, errors.Wrapf(err, "parse amount %q", s)
	}
	return ToCanonical(d)
}

func ToCanonical(d decimal.Decimal) (*big.Int, error) {
	if d.IsNegative() {
		return nil, errors.Errorf("amount %s is negative", d)
	}
	scaled := d.Shift(Decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, errors.Errorf("amount %s has more than %d decimals", d, Decimals)
	}
	v := scaled.BigInt()
	if v.BitLen() > MaxBits {
		return nil, errors.Errorf("amount %s exceeds %d bits", d, MaxBits)
	}
	return v, nil
}

// FromCanonical scales a canonical integer amount back to display units.
func FromCanonical(v *big.Int) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -Decimals)
}
