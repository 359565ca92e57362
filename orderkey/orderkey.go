// Package orderkey implements fractional-index order keys: opaque strings
// that compare lexicographically, so a list stays ordered without ever
// renumbering siblings on insert or move.
//
// A key is an integer part followed by an optional fraction. The first byte
// encodes the sign and length of the integer part ('a'..'z' positive,
// 'Z'..'A' negative), the remaining bytes are base-36 digits. Fractions
// never end in '0', which guarantees a key strictly between any two
// distinct keys always exists.
package orderkey

import (
	"errors"
	"fmt"
	"strings"
)

const digits = "0123456789abcdefghijklmnopqrstuvwxyz"

var (
	ErrInvalidKey = errors.New("invalid order key")
	ErrKeyRange   = errors.New("order key range exhausted")
)

// First returns the baseline key assigned to the first item of an empty
// list.
func First() string { return "a0" }

// After returns a key strictly greater than k.
func After(k string) (string, error) {
	return Between(k, "")
}

// Between returns a key strictly between a and b. The empty string is a
// sentinel: as a it means "before the first key", as b "after the last".
func Between(a, b string) (string, error) {
	if a != "" {
		if _, _, err := split(a); err != nil {
			return "", err
		}
	}
	if b != "" {
		if _, _, err := split(b); err != nil {
			return "", err
		}
	}
	if a != "" && b != "" && a >= b {
		return "", fmt.Errorf("%w: %q is not below %q", ErrInvalidKey, a, b)
	}
	if a == "" && b == "" {
		return First(), nil
	}
	if a == "" {
		ib, fb, _ := split(b)
		if fb != "" {
			return ib + midpoint("", fb), nil
		}
		return decrementInt(ib)
	}
	if b == "" {
		ia, _, _ := split(a)
		return incrementInt(ia)
	}
	ia, fa, _ := split(a)
	ib, fb, _ := split(b)
	if ia == ib {
		return ia + midpoint(fa, fb), nil
	}
	i, err := incrementInt(ia)
	if err != nil {
		return "", err
	}
	if i < b {
		return i, nil
	}
	return ia + midpoint(fa, ""), nil
}

// IsValid reports whether k is a well-formed order key.
func IsValid(k string) bool {
	_, _, err := split(k)
	return err == nil
}

// intPartLen returns the total length of the integer part (including the
// head byte) encoded by head, or 0 if head is not a valid key head.
func intPartLen(head byte) int {
	switch {
	case head >= 'a' && head <= 'z':
		return int(head-'a') + 2
	case head >= 'A' && head <= 'Z':
		return int('Z'-head) + 2
	}
	return 0
}

func split(key string) (intPart, frac string, err error) {
	if key == "" {
		return "", "", ErrInvalidKey
	}
	n := intPartLen(key[0])
	if n == 0 || len(key) < n {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for i := 1; i < len(key); i++ {
		if strings.IndexByte(digits, key[i]) < 0 {
			return "", "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	intPart, frac = key[:n], key[n:]
	if strings.HasSuffix(frac, "0") {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return intPart, frac, nil
}

func incrementInt(ip string) (string, error) {
	head, ds := ip[0], []byte(ip[1:])
	carry := true
	for i := len(ds) - 1; carry && i >= 0; i-- {
		d := strings.IndexByte(digits, ds[i]) + 1
		if d == len(digits) {
			ds[i] = '0'
		} else {
			ds[i] = digits[d]
			carry = false
		}
	}
	if carry {
		if head == 'Z' {
			return "a0", nil
		}
		if head == 'z' {
			return "", ErrKeyRange
		}
		head++
		if head >= 'a' {
			ds = append(ds, '0')
		} else {
			ds = ds[:len(ds)-1]
		}
	}
	return string(head) + string(ds), nil
}

func decrementInt(ip string) (string, error) {
	head, ds := ip[0], []byte(ip[1:])
	borrow := true
	for i := len(ds) - 1; borrow && i >= 0; i-- {
		d := strings.IndexByte(digits, ds[i]) - 1
		if d < 0 {
			ds[i] = 'z'
		} else {
			ds[i] = digits[d]
			borrow = false
		}
	}
	if borrow {
		if head == 'a' {
			return "Zz", nil
		}
		if head == 'A' {
			return "", ErrKeyRange
		}
		head--
		if head < 'Z' {
			ds = append(ds, 'z')
		} else {
			ds = ds[:len(ds)-1]
		}
	}
	return string(head) + string(ds), nil
}

// midpoint returns a fraction strictly between a and b, where the empty
// string means zero for a and one for b. The result never ends in '0'.
func midpoint(a, b string) string {
	if b != "" {
		n := 0
		for n < len(a) && n < len(b) && a[n] == b[n] {
			n++
		}
		if n > 0 {
			return b[:n] + midpoint(a[n:], b[n:])
		}
	}
	da := 0
	if a != "" {
		da = strings.IndexByte(digits, a[0])
	}
	db := len(digits)
	if b != "" {
		db = strings.IndexByte(digits, b[0])
	}
	if db-da > 1 {
		return string(digits[(da+db+1)/2])
	}
	if da == db {
		// a is empty and b starts with '0'; truncating b here would
		// produce a fraction ending in '0', so descend instead
		return "0" + midpoint("", b[1:])
	}
	if len(b) > 1 {
		return b[:1]
	}
	rest := ""
	if a != "" {
		rest = a[1:]
	}
	return string(digits[da]) + midpoint(rest, "")
}
