package identity

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/snksoft/crc"
	"github.com/tv42/zbase32"
	"golang.org/x/crypto/blake2b"
)

const (
	// URIPrefix starts every registry uri
	URIPrefix = "rho:id:"

	// uriBits is the number of meaningful bits in the zbase32 payload: 256 of hash + 14 of crc
	uriBits = 270
	// uriPayloadLength is the decoded payload size: hash(32) ‖ crc(2)
	uriPayloadLength = blake2b.Size256 + 2
)

var (
	// ErrBadPrefix is returned when the uri does not start with URIPrefix
	ErrBadPrefix = errors.New("invalid uri prefix")
	// ErrBadEncoding is returned when the payload is not valid zbase32
	ErrBadEncoding = errors.New("invalid uri zbase32 payload")
	// ErrWrongLength is returned when the decoded payload has the wrong size
	ErrWrongLength = errors.New("invalid uri payload length")
	// ErrChecksumMismatch is returned when the embedded crc does not match the hash
	ErrChecksumMismatch = errors.New("uri checksum mismatch")
)

var crc14 = &crc.Parameters{
	Width:      14,
	Polynomial: 0x4805,
	ReflectIn:  false,
	ReflectOut: false,
	Init:       0x0000,
	FinalXor:   0x0000,
}

// URI is a validated content-derived identifier of the form rho:id:<zbase32>.
// It names deployed contracts and is also used as a channel or environment name.
type URI struct {
	s string
}

// URIFromPublicKey derives the registry uri of the given public key
func URIFromPublicKey(key *secp256k1.PublicKey) URI {
	hash := blake2b.Sum256(key.SerializeUncompressed())
	return URI{s: URIPrefix + zbase32.EncodeBitsToString(packURIPayload(hash[:]), uriBits)}
}

// ParseURI validates the textual form of a registry uri
func ParseURI(s string) (URI, error) {
	encoded, ok := strings.CutPrefix(s, URIPrefix)
	if !ok {
		return URI{}, ErrBadPrefix
	}

	if len(encoded) != (uriBits+4)/5 {
		return URI{}, fmt.Errorf("%w: %d characters", ErrWrongLength, len(encoded))
	}

	decoded, err := zbase32.DecodeBitsString(encoded, uriBits)
	if err != nil {
		return URI{}, fmt.Errorf("%w: %v", ErrBadEncoding, err)
	}
	if len(decoded) != uriPayloadLength {
		return URI{}, fmt.Errorf("%w: %d bytes", ErrWrongLength, len(decoded))
	}

	hash, crcBytes := decoded[:blake2b.Size256], decoded[blake2b.Size256:]
	embedded := binary.LittleEndian.Uint16([]byte{crcBytes[0], crcBytes[1] >> 2})
	if embedded != checksum14(hash) {
		return URI{}, ErrChecksumMismatch
	}

	return URI{s: s}, nil
}

// MustParseURI is like ParseURI but panics on error
func MustParseURI(s string) URI {
	uri, err := ParseURI(s)
	if err != nil {
		panic(err)
	}
	return uri
}

// String returns the full rho:id: form
func (u URI) String() string {
	return u.s
}

// IsZero reports whether the uri was never initialized
func (u URI) IsZero() bool {
	return u.s == ""
}

// MarshalText implements encoding.TextMarshaler
func (u URI) MarshalText() ([]byte, error) {
	return []byte(u.s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler and validates the checksum
func (u *URI) UnmarshalText(text []byte) error {
	parsed, err := ParseURI(string(text))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// packURIPayload appends the crc to the hash. The 14-bit crc is stored little endian with
// the high byte shifted left by two, leaving two zero padding bits at the very end.
func packURIPayload(hash []byte) []byte {
	sum := make([]byte, 2)
	binary.LittleEndian.PutUint16(sum, checksum14(hash))

	payload := make([]byte, 0, uriPayloadLength)
	payload = append(payload, hash...)
	return append(payload, sum[0], sum[1]<<2)
}

func checksum14(data []byte) uint16 {
	return uint16(crc.CalculateCRC(crc14, data))
}
