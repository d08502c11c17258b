package crypto

import (
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
)

// AddressPrefix defines the different types of human-readable address prefixes
// used when rendering identifiers for display and audit output.
type AddressPrefix string

const (
	// PartyPrefix is used for addresses derived from a registered party id.
	PartyPrefix AddressPrefix = "mpcp"
	// PrincipalPrefix is used for addresses derived from an opaque auth principal.
	PrincipalPrefix AddressPrefix = "mpcu"
)

// Address is a 20-byte identifier rendered as a bech32 string with a
// prefix identifying what kind of entity it names. Coordinator identities
// are opaque strings issued by an external auth provider, not cryptographic
// keypairs, so Address exists purely as a stable, collision-resistant
// display and audit encoding.
type Address struct {
	prefix AddressPrefix
	bytes  []byte
}

func NewAddress(prefix AddressPrefix, b []byte) (Address, error) {
	if len(b) != 20 {
		return Address{}, fmt.Errorf("address must be 20 bytes long, got %d", len(b))
	}
	cloned := append([]byte(nil), b...)
	return Address{prefix: prefix, bytes: cloned}, nil
}

// MustNewAddress constructs an address and panics if the input is invalid.
func MustNewAddress(prefix AddressPrefix, b []byte) Address {
	addr, err := NewAddress(prefix, b)
	if err != nil {
		panic(err)
	}
	return addr
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.bytes, 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

func (a Address) Bytes() []byte {
	return append([]byte(nil), a.bytes...)
}

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() AddressPrefix {
	return a.prefix
}

func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	addr, err := NewAddress(AddressPrefix(prefix), conv)
	if err != nil {
		return Address{}, err
	}
	return addr, nil
}

// PartyAddress derives a stable display address from a registered party id.
func PartyAddress(partyID string) Address {
	return addressFromString(PartyPrefix, partyID)
}

// PrincipalAddress derives a stable display address from an opaque auth
// principal (the subject claim of a bearer token). The hash is not a
// security boundary: it only gives audit logs and API responses a
// consistent, non-reversible handle instead of echoing raw principal
// strings that may be emails or provider-specific identifiers.
func PrincipalAddress(principal string) Address {
	return addressFromString(PrincipalPrefix, principal)
}

func addressFromString(prefix AddressPrefix, s string) Address {
	sum := sha256.Sum256([]byte(s))
	return MustNewAddress(prefix, sum[:20])
}
