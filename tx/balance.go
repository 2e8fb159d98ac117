package tx

import (
	"fmt"
	"math/big"
)

// Balance is a u128 yoctoNEAR amount in Borsh wire form (little-endian).
type Balance [16]byte

// yoctoPerNear is 10^24.
var yoctoPerNear = new(big.Int).Exp(big.NewInt(10), big.NewInt(24), nil)

// BalanceFromBigInt converts a yoctoNEAR amount into wire form. Negative
// amounts and amounts wider than 128 bits are rejected.
func BalanceFromBigInt(v *big.Int) (Balance, error) {
	var out Balance

	if v.Sign() < 0 {
		return out, fmt.Errorf("balance must not be negative: %s", v)
	}
	if v.BitLen() > 128 {
		return out, fmt.Errorf("balance overflows u128: %s", v)
	}

	raw := v.Bytes() // big-endian
	for i, b := range raw {
		out[len(raw)-1-i] = b
	}

	return out, nil
}

// BalanceFromNear converts whole NEAR into yoctoNEAR wire form. It panics
// when the amount is negative or does not fit a u128.
func BalanceFromNear(near int64) Balance {
	b, err := BalanceFromBigInt(new(big.Int).Mul(big.NewInt(near), yoctoPerNear))
	if err != nil {
		panic(err)
	}

	return b
}

// BigInt returns the amount as a yoctoNEAR big.Int.
func (b Balance) BigInt() *big.Int {
	raw := make([]byte, len(b))
	for i := range b {
		raw[len(b)-1-i] = b[i]
	}

	return new(big.Int).SetBytes(raw)
}

// String renders the amount in yoctoNEAR.
func (b Balance) String() string {
	return b.BigInt().String()
}
