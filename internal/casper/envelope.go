package casper

import (
	"errors"
	"fmt"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/blake2b"

	"firefly/internal/models"
)

// Fixed envelope parameters
const (
	SigAlgorithm = "secp256k1"
	ShardID      = "root"
	PhloPrice    = 1
)

var (
	// ErrMalformedEnvelope is returned when envelope bytes do not decode
	ErrMalformedEnvelope = errors.New("malformed deploy envelope")
	// ErrBadSignature is returned when a signature does not verify against the envelope
	ErrBadSignature = errors.New("bad deploy signature")
)

// NewEnvelope builds the unsigned envelope for data. validAfter is the already resolved
// block number; data.ValidAfterBlockNumber is not consulted. A zero phlo limit or
// timestamp is replaced by the default limit or the current time.
func NewEnvelope(data models.DeployData, validAfter uint64) *DeployDataProto {
	phloLimit := data.PhloLimit
	if phloLimit == 0 {
		phloLimit = models.DefaultPhloLimit
	}
	timestamp := data.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}
	return &DeployDataProto{
		Term:                  data.Term,
		Timestamp:             timestamp.UnixMilli(),
		PhloPrice:             PhloPrice,
		PhloLimit:             int64(phloLimit),
		ValidAfterBlockNumber: int64(validAfter),
		ShardID:               ShardID,
	}
}

// Prepare serializes the unsigned envelope for an external signer
func Prepare(data models.DeployData, validAfter uint64) (models.PreparedContract, error) {
	b, err := NewEnvelope(data, validAfter).MarshalWire()
	if err != nil {
		return nil, err
	}
	return models.PreparedContract(b), nil
}

// Digest is the blake2b-256 hash the node expects the deployer to sign
func Digest(prepared []byte) [32]byte {
	return blake2b.Sum256(prepared)
}

// Sign signs a prepared envelope with key
func Sign(key *secp256k1.PrivateKey, prepared models.PreparedContract) models.SignedCode {
	digest := Digest(prepared)
	sig := ecdsa.Sign(key, digest[:])

	return models.SignedCode{
		Contract:     append([]byte(nil), prepared...),
		Sig:          sig.Serialize(),
		SigAlgorithm: SigAlgorithm,
		Deployer:     key.PubKey().SerializeUncompressed(),
	}
}

// Attach decodes the signed envelope bytes and overwrites their signature fields with the
// detached ones, producing the message submitted to the node
func Attach(signed models.SignedCode) (*DeployDataProto, error) {
	var msg DeployDataProto
	if err := msg.UnmarshalWire(signed.Contract); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}

	msg.Sig = append([]byte(nil), signed.Sig...)
	msg.SigAlgorithm = signed.SigAlgorithm
	msg.Deployer = append([]byte(nil), signed.Deployer...)
	return &msg, nil
}

// Verify checks signed the way the node does: the envelope is re-encoded without its
// signature fields, hashed, and the DER signature is checked against the deployer key
func Verify(signed models.SignedCode) error {
	if signed.SigAlgorithm != SigAlgorithm {
		return fmt.Errorf("%w: unsupported algorithm %q", ErrBadSignature, signed.SigAlgorithm)
	}

	var msg DeployDataProto
	if err := msg.UnmarshalWire(signed.Contract); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	msg.Sig, msg.SigAlgorithm, msg.Deployer = nil, "", nil

	unsigned, err := msg.MarshalWire()
	if err != nil {
		return err
	}

	pub, err := secp256k1.ParsePubKey(signed.Deployer)
	if err != nil {
		return fmt.Errorf("%w: deployer: %v", ErrBadSignature, err)
	}
	sig, err := ecdsa.ParseDERSignature(signed.Sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	digest := Digest(unsigned)
	if !sig.Verify(digest[:], pub) {
		return ErrBadSignature
	}
	return nil
}
