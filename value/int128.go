package value

import "math/big"

// Int128 is the engine's arithmetic carrier: wide enough that folding a
// chain of Dalvik int/long operations never truncates before the result
// is narrowed back down by a cast instruction. It is a thin wrapper over
// math/big.Int rather than a hand-rolled fixed-width type: getting
// 128-bit signed division and shifts right by hand is a well-known bug
// farm, and no caller here is hot enough to justify the risk.
type Int128 struct {
	v big.Int
}

// Int128FromInt64 builds an Int128 from a signed 64-bit literal, sign
// extension included for free via big.Int's own semantics.
func Int128FromInt64(n int64) Int128 {
	var i Int128
	i.v.SetInt64(n)
	return i
}

// Int64 truncates the value to a signed 64-bit integer (two's complement
// wraparound), the width every Dalvik register ultimately narrows to.
func (i Int128) Int64() int64 {
	var mod big.Int
	mod.Mod(&i.v, twoPow64)
	return int64(mod.Uint64())
}

// Int32 truncates to a signed 32-bit integer.
func (i Int128) Int32() int32 { return int32(i.Int64()) }

var (
	twoPow64  = new(big.Int).Lsh(big.NewInt(1), 64)
	twoPow127 = new(big.Int).Lsh(big.NewInt(1), 127)
	twoPow128 = new(big.Int).Lsh(big.NewInt(1), 128)
)

func bi(i Int128) *big.Int { return &i.v }

func fromBig(b *big.Int) Int128 {
	var i Int128
	i.v.Set(b)
	return i
}

// Add returns i+j.
func (i Int128) Add(j Int128) Int128 { return fromBig(new(big.Int).Add(bi(i), bi(j))) }

// Sub returns i-j.
func (i Int128) Sub(j Int128) Int128 { return fromBig(new(big.Int).Sub(bi(i), bi(j))) }

// Mul returns i*j.
func (i Int128) Mul(j Int128) Int128 { return fromBig(new(big.Int).Mul(bi(i), bi(j))) }

// Quo returns truncated (toward zero) signed division of i by j. The
// caller must check IsZero(j) first: division by zero has no Int128
// representation here and is handled one layer up as Value::Invalid.
func (i Int128) Quo(j Int128) Int128 { return fromBig(new(big.Int).Quo(bi(i), bi(j))) }

// Rem returns the signed remainder of i divided by j, matching Quo's
// truncation (same sign as the dividend), as Java's % does.
func (i Int128) Rem(j Int128) Int128 { return fromBig(new(big.Int).Rem(bi(i), bi(j))) }

// And returns the bitwise AND of i and j.
func (i Int128) And(j Int128) Int128 { return fromBig(new(big.Int).And(bi(i), bi(j))) }

// Or returns the bitwise OR of i and j.
func (i Int128) Or(j Int128) Int128 { return fromBig(new(big.Int).Or(bi(i), bi(j))) }

// Xor returns the bitwise XOR of i and j.
func (i Int128) Xor(j Int128) Int128 { return fromBig(new(big.Int).Xor(bi(i), bi(j))) }

// Shl returns i shifted left by n bits.
func (i Int128) Shl(n uint) Int128 { return fromBig(new(big.Int).Lsh(bi(i), n)) }

// Shr returns i arithmetic-shifted right by n bits (signed, sign-filling).
func (i Int128) Shr(n uint) Int128 { return fromBig(new(big.Int).Rsh(bi(i), n)) }

// Ushr returns i logically shifted right by n bits, treating i as an
// unsigned 128-bit quantity first the way Java's >>> operator treats its
// signed operand as unsigned: reinterpret, shift, reinterpret back.
func (i Int128) Ushr(n uint) Int128 {
	unsigned := new(big.Int).Set(bi(i))
	if unsigned.Sign() < 0 {
		unsigned.Add(unsigned, twoPow128)
	}
	unsigned.Rsh(unsigned, n)
	if unsigned.Cmp(twoPow127) >= 0 {
		unsigned.Sub(unsigned, twoPow128)
	}
	return fromBig(unsigned)
}

// IsZero reports whether the value is exactly zero.
func (i Int128) IsZero() bool { return i.v.Sign() == 0 }

// Cmp returns -1, 0, or 1 as i is less than, equal to, or greater than j.
func (i Int128) Cmp(j Int128) int { return i.v.Cmp(&j.v) }

// String renders the decimal representation.
func (i Int128) String() string { return i.v.String() }
