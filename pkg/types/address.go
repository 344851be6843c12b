package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// AddressSize is the length of an address in bytes.
const AddressSize = 20

// AddressHexLen is the number of hex characters carried after the network
// prefix (first 34 of hex(ripemd160(sha256(pubkey))), per the address
// format).
const AddressHexLen = 34

// Address HRP (human-readable prefix) constants.
const (
	MainnetHRP = "GXC"
	TestnetHRP = "tGXC"
)

// activeHRP is the address prefix used by String() and MarshalJSON().
// Set once at startup via SetAddressHRP(). Default is mainnet.
var activeHRP = MainnetHRP

// SetAddressHRP sets the active address prefix (call once at startup).
func SetAddressHRP(hrp string) {
	activeHRP = hrp
}

// GetAddressHRP returns the currently active address prefix.
func GetAddressHRP() string {
	return activeHRP
}

// Address represents a 160-bit address (public key hash). Hex and String
// carry only the first AddressHexLen hex characters; HexToAddress
// zero-pads the bytes beyond them.
type Address [AddressSize]byte

// IsZero returns true if the address is all zeros.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Hex returns the raw hex-encoded address, truncated to AddressHexLen
// characters (the wire/display form defined by the address format).
func (a Address) Hex() string {
	full := hex.EncodeToString(a[:])
	if len(full) > AddressHexLen {
		return full[:AddressHexLen]
	}
	return full
}

// String returns the network-prefixed address, e.g. "GXC<34 hex chars>" or
// "tGXC<34 hex chars>".
func (a Address) String() string {
	return activeHRP + a.Hex()
}

// Bytes returns a copy of the address as a byte slice.
func (a Address) Bytes() []byte {
	b := make([]byte, AddressSize)
	copy(b, a[:])
	return b
}

// MarshalJSON encodes the address as its network-prefixed string form.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes a prefixed or raw hex string into an address.
func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*a = Address{}
		return nil
	}
	parsed, err := ParseAddress(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddress parses a network-prefixed ("GXC...", "tGXC...") or raw hex
// address string.
func ParseAddress(s string) (Address, error) {
	if s == "" {
		return Address{}, fmt.Errorf("empty address")
	}

	hexStr := s
	switch {
	case strings.HasPrefix(s, TestnetHRP):
		hexStr = s[len(TestnetHRP):]
	case strings.HasPrefix(s, MainnetHRP):
		hexStr = s[len(MainnetHRP):]
	}

	return HexToAddress(hexStr)
}

// HexToAddress converts a raw hex string (no network prefix) to an Address.
// Accepts the full 40-char hex form or the truncated AddressHexLen (34)
// char form used on the wire; any other length is rejected.
func HexToAddress(s string) (Address, error) {
	if len(s) != AddressHexLen && len(s) != AddressSize*2 {
		return Address{}, fmt.Errorf("address hex must be %d or %d characters, got %d", AddressHexLen, AddressSize*2, len(s))
	}
	padded := s
	if len(padded)%2 != 0 {
		padded += "0"
	}
	b, err := hex.DecodeString(padded)
	if err != nil {
		return Address{}, fmt.Errorf("invalid hex: %w", err)
	}
	var a Address
	copy(a[:], b)
	return a, nil
}
