package identity

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

const (
	// checksumLength is the number of trailing checksum bytes in a decoded address
	checksumLength = 4
)

var (
	// addressPrefix identifies the native token the address belongs to
	addressPrefix = []byte{0x00, 0x00, 0x00}
	// addressVersion is the only address version the node understands
	addressVersion byte = 0x00
)

var (
	// ErrInvalidEncoding is returned when the address is not valid base58 or is too short
	ErrInvalidEncoding = errors.New("invalid wallet address encoding")
	// ErrInvalidChecksum is returned when the embedded checksum does not match the payload
	ErrInvalidChecksum = errors.New("invalid wallet address checksum")
)

// WalletAddress is a validated, checksummed wallet identifier.
// The zero value is not a valid address; build one with AddressFromPublicKey or ParseWalletAddress.
type WalletAddress struct {
	s string
}

// AddressFromPublicKey derives the wallet address owned by the given public key.
//
// Layout before base58: prefix(3) ‖ version(1) ‖ keccak(keccak(pk[1:])[12:]) ‖ checksum(4),
// where checksum is the head of blake2b-256 over everything before it.
func AddressFromPublicKey(key *secp256k1.PublicKey) WalletAddress {
	keyHash := keccak256(key.SerializeUncompressed()[1:])
	ethHash := keccak256(keyHash[len(keyHash)-20:])

	payload := make([]byte, 0, len(addressPrefix)+1+len(ethHash)+checksumLength)
	payload = append(payload, addressPrefix...)
	payload = append(payload, addressVersion)
	payload = append(payload, ethHash...)

	checksum := blake2b.Sum256(payload)
	payload = append(payload, checksum[:checksumLength]...)

	return WalletAddress{s: base58.Encode(payload)}
}

// ParseWalletAddress validates the textual form of a wallet address
func ParseWalletAddress(s string) (WalletAddress, error) {
	decoded, err := base58.Decode(s)
	if err != nil {
		return WalletAddress{}, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}

	if len(decoded) <= checksumLength {
		return WalletAddress{}, fmt.Errorf("%w: decoded size %d", ErrInvalidEncoding, len(decoded))
	}

	payload, checksum := decoded[:len(decoded)-checksumLength], decoded[len(decoded)-checksumLength:]
	expected := blake2b.Sum256(payload)
	if !bytes.Equal(checksum, expected[:checksumLength]) {
		return WalletAddress{}, fmt.Errorf("%w: %s", ErrInvalidChecksum, s)
	}

	return WalletAddress{s: s}, nil
}

// MustParseWalletAddress is like ParseWalletAddress but panics on error
func MustParseWalletAddress(s string) WalletAddress {
	addr, err := ParseWalletAddress(s)
	if err != nil {
		panic(err)
	}
	return addr
}

// String returns the base58 form of the address
func (a WalletAddress) String() string {
	return a.s
}

// IsZero reports whether the address was never initialized
func (a WalletAddress) IsZero() bool {
	return a.s == ""
}

// MarshalText implements encoding.TextMarshaler
func (a WalletAddress) MarshalText() ([]byte, error) {
	return []byte(a.s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler and validates the checksum
func (a *WalletAddress) UnmarshalText(text []byte) error {
	parsed, err := ParseWalletAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func keccak256(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}
